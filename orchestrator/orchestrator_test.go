package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"noteposter/core"
	"noteposter/logging"
	"noteposter/providers"
	"noteposter/vault"
)

// --- Fakes ---

type fakePromptClient struct {
	mu      sync.Mutex
	calls   int
	fn      func(call int) (*core.PromptResult, error)
	entered chan struct{} // closed on first call, if set
	release chan struct{} // blocks the call until closed, if set
}

func (f *fakePromptClient) GeneratePrompt(ctx context.Context, noteText, model string) (*core.PromptResult, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	entered := f.entered
	f.entered = nil
	f.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if f.release != nil {
		<-f.release
	}
	if f.fn != nil {
		return f.fn(call)
	}
	return &core.PromptResult{Prompt: "a vivid poster of " + noteText}, nil
}

func (f *fakePromptClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeImageClient struct {
	mu       sync.Mutex
	calls    int
	lastSpec providers.ImageSpec
	fn       func() (*core.ImageResult, error)
}

func (f *fakeImageClient) GenerateImage(ctx context.Context, spec providers.ImageSpec) (*core.ImageResult, error) {
	f.mu.Lock()
	f.calls++
	f.lastSpec = spec
	f.mu.Unlock()

	if f.fn != nil {
		return f.fn()
	}
	return &core.ImageResult{Bytes: []byte("img"), MimeType: "image/png"}, nil
}

func (f *fakeImageClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingProgress struct {
	mu      sync.Mutex
	updates []ProgressState
	success []string
	errs    []*core.GenerationError
}

func (r *recordingProgress) Update(state ProgressState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, state)
}

func (r *recordingProgress) Success(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success = append(r.success, path)
}

func (r *recordingProgress) Error(err *core.GenerationError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingProgress) last() (ProgressState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return ProgressState{}, false
	}
	return r.updates[len(r.updates)-1], true
}

type stubOptions struct {
	result OptionsResult
}

func (s *stubOptions) Collect(ctx context.Context, defaults OptionsResult) (OptionsResult, error) {
	return s.result, nil
}

type scriptedPreview struct {
	mu      sync.Mutex
	results []PreviewResult
}

func (s *scriptedPreview) ShowPrompt(ctx context.Context, prompt string) (PreviewResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return PreviewResult{Confirmed: true, Prompt: prompt}, nil
	}
	next := s.results[0]
	s.results = s.results[1:]
	return next, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// --- Harness ---

type harness struct {
	orch     *Orchestrator
	vault    *vault.FSVault
	settings *core.Settings
	session  *core.Session
	prompt   *fakePromptClient
	image    *fakeImageClient
	progress *recordingProgress
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	v, err := vault.NewFSVault(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := v.WriteNote("note.md", "Explain TCP handshake"); err != nil {
		t.Fatal(err)
	}

	settings := core.DefaultSettings()
	settings.Provider = core.ProviderGoogle
	settings.APIKeys[core.ProviderGoogle] = "g-key"
	settings.AutoRetryCount = 0
	settings.ShowPreview = false

	session := core.NewSession()
	log := logging.NewNopLogger()
	progress := &recordingProgress{}
	notifier := &recordingNotifier{}

	h := &harness{
		vault:    v,
		settings: settings,
		session:  session,
		prompt:   &fakePromptClient{},
		image:    &fakeImageClient{},
		progress: progress,
		notifier: notifier,
	}

	orch, err := New(Config{
		Vault:    v,
		Writer:   vault.NewWriter(v, log),
		Settings: settings,
		Session:  session,
		Logger:   log,
		Options: &stubOptions{result: OptionsResult{
			Confirmed: true,
			Style:     core.StyleDiagram,
			Size:      core.Size2K,
		}},
		Preview:  &scriptedPreview{},
		Progress: progress,
		Notifier: notifier,
	})
	if err != nil {
		t.Fatal(err)
	}

	orch.newPromptClient = func(id core.ProviderID, apiKey string) (providers.PromptClient, error) {
		return h.prompt, nil
	}
	orch.newImageClient = func(id core.ProviderID, apiKey string) (providers.ImageClient, error) {
		return h.image, nil
	}
	orch.retry.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	h.orch = orch
	return h
}

// --- Tests ---

func TestGenerateHappyPath(t *testing.T) {
	h := newHarness(t)

	path, err := h.orch.Generate(context.Background(), "note.md")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if !strings.HasPrefix(path, "attachments/") {
		t.Errorf("path = %q, want it under the attachment folder", path)
	}
	if !h.vault.Exists(path) {
		t.Error("attachment not written")
	}

	note, err := h.vault.ReadNote("note.md")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(note, "](") || !strings.Contains(note, "poster-note-") {
		t.Errorf("note missing embed reference: %q", note)
	}

	spec := h.image.lastSpec
	if spec.Style != core.StyleDiagram || spec.Size != core.Size2K {
		t.Errorf("image spec = %+v", spec)
	}
	if spec.Prompt == "" {
		t.Error("image client received an empty prompt")
	}

	last, ok := h.progress.last()
	if !ok || last.Step != StepComplete || last.Progress != 100 {
		t.Errorf("final progress = %+v, want {complete 100}", last)
	}
	if len(h.progress.success) != 1 || h.progress.success[0] != path {
		t.Errorf("success callback = %v", h.progress.success)
	}
}

func TestGenerateMilestonesFreshPath(t *testing.T) {
	h := newHarness(t)

	if _, err := h.orch.Generate(context.Background(), "note.md"); err != nil {
		t.Fatal(err)
	}

	want := []int{0, 20, 50, 80, 95, 100}
	if len(h.progress.updates) != len(want) {
		t.Fatalf("got %d updates, want %d: %+v", len(h.progress.updates), len(want), h.progress.updates)
	}
	for i, milestone := range want {
		if h.progress.updates[i].Progress != milestone {
			t.Errorf("update[%d].Progress = %d, want %d", i, h.progress.updates[i].Progress, milestone)
		}
	}
}

func TestGeneratePanelCountReachesImageClient(t *testing.T) {
	h := newHarness(t)
	// The options surface clamps custom input (15) to 12 before the
	// request reaches the pipeline.
	h.orch.options = &stubOptions{result: OptionsResult{
		Confirmed:  true,
		Style:      core.StyleCartoon,
		Size:       core.Size1K,
		PanelCount: core.ClampPanelCount(15),
	}}

	if _, err := h.orch.Generate(context.Background(), "note.md"); err != nil {
		t.Fatal(err)
	}

	if h.image.lastSpec.PanelCount != 12 {
		t.Errorf("PanelCount = %d, want 12", h.image.lastSpec.PanelCount)
	}
}

func TestGenerateInvalidKeyFailsWithoutRetry(t *testing.T) {
	h := newHarness(t)
	h.settings.AutoRetryCount = 3
	h.orch.retry.AutoRetryCount = 3
	h.prompt.fn = func(call int) (*core.PromptResult, error) {
		return nil, core.ErrInvalidAPIKey("google")
	}

	_, err := h.orch.Generate(context.Background(), "note.md")
	genErr, ok := core.AsGenerationError(err)
	if !ok {
		t.Fatalf("expected typed error, got %v", err)
	}
	if genErr.Kind != core.KindInvalidAPIKey {
		t.Errorf("Kind = %s", genErr.Kind)
	}

	if h.prompt.callCount() != 1 {
		t.Errorf("prompt calls = %d, want 1 (no retry on non-retryable)", h.prompt.callCount())
	}
	if h.image.callCount() != 0 {
		t.Error("image client must not run after prompt failure")
	}
	if len(h.progress.errs) != 1 {
		t.Fatalf("error callbacks = %d, want 1", len(h.progress.errs))
	}

	// The single-flight guard is released: a subsequent run succeeds.
	h.prompt.fn = nil
	if _, err := h.orch.Generate(context.Background(), "note.md"); err != nil {
		t.Errorf("subsequent generation rejected: %v", err)
	}
}

func TestGenerateRetriesRetryableErrors(t *testing.T) {
	h := newHarness(t)
	h.settings.AutoRetryCount = 2
	h.orch.retry.AutoRetryCount = 2
	h.prompt.fn = func(call int) (*core.PromptResult, error) {
		if call < 3 {
			return nil, core.ErrRateLimit("google")
		}
		return &core.PromptResult{Prompt: "third time lucky"}, nil
	}

	if _, err := h.orch.Generate(context.Background(), "note.md"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if h.prompt.callCount() != 3 {
		t.Errorf("prompt calls = %d, want 3", h.prompt.callCount())
	}
}

func TestSingleFlightRejectsConcurrentSession(t *testing.T) {
	h := newHarness(t)
	h.prompt.entered = make(chan struct{})
	h.prompt.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Generate(context.Background(), "note.md")
		done <- err
	}()

	<-h.prompt.entered

	// Second request while the first is in flight: rejected immediately,
	// no provider client touched.
	_, err := h.orch.Generate(context.Background(), "note.md")
	if !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
	if h.prompt.callCount() != 1 {
		t.Errorf("prompt calls = %d, second session must not reach providers", h.prompt.callCount())
	}

	close(h.prompt.release)
	if err := <-done; err != nil {
		t.Errorf("first session failed: %v", err)
	}

	// Guard released after completion.
	if _, err := h.orch.Generate(context.Background(), "note.md"); err != nil {
		t.Errorf("generation after release rejected: %v", err)
	}
}

func TestGenerateMissingCredentialFailsFast(t *testing.T) {
	h := newHarness(t)
	delete(h.settings.APIKeys, core.ProviderGoogle)

	_, err := h.orch.Generate(context.Background(), "note.md")
	genErr, ok := core.AsGenerationError(err)
	if !ok {
		t.Fatalf("expected typed error, got %v", err)
	}
	if genErr.Kind != core.KindInvalidAPIKey {
		t.Errorf("Kind = %s", genErr.Kind)
	}
	if h.prompt.callCount() != 0 {
		t.Error("no provider call should happen without a credential")
	}
}

func TestGenerateEmptyNoteRejected(t *testing.T) {
	h := newHarness(t)
	if err := h.vault.WriteNote("empty.md", "   \n\t  "); err != nil {
		t.Fatal(err)
	}

	_, err := h.orch.Generate(context.Background(), "empty.md")
	if err == nil {
		t.Fatal("empty note must be rejected")
	}
	if h.prompt.callCount() != 0 {
		t.Error("no provider call should happen for an empty note")
	}
}

func TestPreviewRegenerateLoops(t *testing.T) {
	h := newHarness(t)
	h.settings.ShowPreview = true
	h.orch.preview = &scriptedPreview{results: []PreviewResult{
		{Regenerate: true},
		{Confirmed: true, Prompt: "edited prompt"},
	}}

	if _, err := h.orch.Generate(context.Background(), "note.md"); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if h.prompt.callCount() != 2 {
		t.Errorf("prompt calls = %d, want 2 (one regeneration)", h.prompt.callCount())
	}
	if h.image.lastSpec.Prompt != "edited prompt" {
		t.Errorf("image prompt = %q, want the user's edit", h.image.lastSpec.Prompt)
	}

	prompt, _, ok := h.session.Last()
	if !ok || prompt != "edited prompt" {
		t.Errorf("session prompt = %q, want the edited prompt cached", prompt)
	}
}

func TestPreviewCancelAbortsSilently(t *testing.T) {
	h := newHarness(t)
	h.settings.ShowPreview = true
	h.orch.preview = &scriptedPreview{results: []PreviewResult{{}}}

	_, err := h.orch.Generate(context.Background(), "note.md")
	if !errors.Is(err, ErrCanceled) {
		t.Errorf("err = %v, want ErrCanceled", err)
	}
	if h.image.callCount() != 0 {
		t.Error("image client must not run after cancel")
	}
	if len(h.progress.errs) != 0 {
		t.Error("a user cancel is not an error")
	}
}

func TestRegenerateLastFailsFastWithoutSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.RegenerateLast(context.Background())
	if err == nil {
		t.Fatal("regenerate without a cached prompt must fail")
	}
	if h.prompt.callCount() != 0 || h.image.callCount() != 0 {
		t.Error("regenerate guard failures must not reach any provider")
	}
}

func TestRegenerateLastFailsFastWhenNoteGone(t *testing.T) {
	h := newHarness(t)
	h.session.Store("cached prompt", "deleted.md")

	_, err := h.orch.RegenerateLast(context.Background())
	if err == nil {
		t.Fatal("regenerate with an unresolvable note must fail")
	}
	if h.prompt.callCount() != 0 || h.image.callCount() != 0 {
		t.Error("regenerate guard failures must not reach any provider")
	}
}

func TestRegenerateLastSkipsPromptGeneration(t *testing.T) {
	h := newHarness(t)
	h.session.Store("cached prompt", "note.md")

	path, err := h.orch.RegenerateLast(context.Background())
	if err != nil {
		t.Fatalf("RegenerateLast: %v", err)
	}

	if h.prompt.callCount() != 0 {
		t.Error("regenerate must bypass the prompt client entirely")
	}
	if h.image.lastSpec.Prompt != "cached prompt" {
		t.Errorf("image prompt = %q, want the cached prompt", h.image.lastSpec.Prompt)
	}
	if !h.vault.Exists(path) {
		t.Error("attachment not written")
	}

	// Shortcut path milestones: 40, 80, 95, 100.
	want := []int{40, 80, 95, 100}
	if len(h.progress.updates) != len(want) {
		t.Fatalf("got %d updates: %+v", len(h.progress.updates), h.progress.updates)
	}
	for i, milestone := range want {
		if h.progress.updates[i].Progress != milestone {
			t.Errorf("update[%d].Progress = %d, want %d", i, h.progress.updates[i].Progress, milestone)
		}
	}
}

func TestGeneratePromptOnly(t *testing.T) {
	h := newHarness(t)

	var copied string
	h.orch.clipboard = func(prompt string) error {
		copied = prompt
		return nil
	}

	prompt, err := h.orch.GeneratePromptOnly(context.Background(), "note.md")
	if err != nil {
		t.Fatalf("GeneratePromptOnly: %v", err)
	}
	if prompt == "" {
		t.Fatal("empty prompt returned")
	}
	if copied != prompt {
		t.Errorf("clipboard got %q, want %q", copied, prompt)
	}
	if h.image.callCount() != 0 {
		t.Error("prompt-only must never touch the image client")
	}

	cached, notePath, ok := h.session.Last()
	if !ok || cached != prompt || notePath != "note.md" {
		t.Errorf("session = %q, %q, %v", cached, notePath, ok)
	}

	// Note content untouched.
	note, _ := h.vault.ReadNote("note.md")
	if note != "Explain TCP handshake" {
		t.Errorf("prompt-only must not modify the note: %q", note)
	}
}

func TestCancellationStopsProgressUpdates(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	h.prompt.fn = func(call int) (*core.PromptResult, error) {
		// Cancel while the call is in flight; the result is discarded.
		cancel()
		return &core.PromptResult{Prompt: "late result"}, nil
	}

	_, err := h.orch.Generate(ctx, "note.md")
	if !errors.Is(err, ErrCanceled) {
		t.Errorf("err = %v, want ErrCanceled", err)
	}
	if h.image.callCount() != 0 {
		t.Error("image client must not run after cancellation")
	}

	for _, update := range h.progress.updates {
		if update.Step == StepGeneratingImage || update.Step == StepComplete {
			t.Errorf("update %+v applied after cancellation", update)
		}
	}
}

func TestBusyRejectionGoesToNotifier(t *testing.T) {
	h := newHarness(t)
	h.prompt.entered = make(chan struct{})
	h.prompt.release = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.orch.Generate(context.Background(), "note.md")
	}()
	<-h.prompt.entered

	_, _ = h.orch.Generate(context.Background(), "note.md")

	h.notifier.mu.Lock()
	notified := len(h.notifier.messages) > 0
	h.notifier.mu.Unlock()
	if !notified {
		t.Error("busy rejection should surface as a notification")
	}

	close(h.prompt.release)
	<-done
}
