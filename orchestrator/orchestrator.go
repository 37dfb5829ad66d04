package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"noteposter/core"
	"noteposter/logging"
	"noteposter/providers"
	"noteposter/vault"
)

// Sentinel errors for guard rejections and user cancellation. These never
// reach the error surface as taxonomy errors: a busy rejection is shown as
// a notification and a cancel is silent.
var (
	ErrBusy     = errors.New("a generation is already in progress")
	ErrCanceled = errors.New("generation canceled by user")
)

// Orchestrator runs generation sessions. At most one session is active at
// a time for the whole instance; concurrent invocations are rejected
// immediately, never queued.
type Orchestrator struct {
	vault    vault.Vault
	writer   *vault.Writer
	settings *core.Settings
	session  *core.Session
	log      *logging.Logger

	options  OptionsSurface
	preview  PreviewSurface
	progress ProgressSurface
	notifier Notifier

	// clipboard receives the prompt in the prompt-only entry point.
	// Host capability; nil disables the copy.
	clipboard func(string) error

	retry *RetryController

	newPromptClient func(id core.ProviderID, apiKey string) (providers.PromptClient, error)
	newImageClient  func(id core.ProviderID, apiKey string) (providers.ImageClient, error)

	// mu guards running, the single-flight flag.
	mu      sync.Mutex
	running bool
}

// Config wires an Orchestrator. Vault, Writer, Settings, and Session are
// required; surfaces are optional (a nil progress surface falls back to
// the notifier, a nil preview surface disables the gate regardless of the
// show-preview setting).
type Config struct {
	Vault      vault.Vault
	Writer     *vault.Writer
	Settings   *core.Settings
	Session    *core.Session
	Logger     *logging.Logger
	HTTPClient *http.Client

	Options  OptionsSurface
	Preview  PreviewSurface
	Progress ProgressSurface
	Notifier Notifier

	Clipboard func(string) error
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Vault == nil {
		return nil, fmt.Errorf("orchestrator: vault cannot be nil")
	}
	if cfg.Writer == nil {
		return nil, fmt.Errorf("orchestrator: writer cannot be nil")
	}
	if cfg.Settings == nil {
		return nil, fmt.Errorf("orchestrator: settings cannot be nil")
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("orchestrator: session cannot be nil")
	}

	log := cfg.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}

	deps := providers.Deps{HTTPClient: cfg.HTTPClient, Logger: log}

	return &Orchestrator{
		vault:     cfg.Vault,
		writer:    cfg.Writer,
		settings:  cfg.Settings,
		session:   cfg.Session,
		log:       log.Named("orchestrator"),
		options:   cfg.Options,
		preview:   cfg.Preview,
		progress:  cfg.Progress,
		notifier:  cfg.Notifier,
		clipboard: cfg.Clipboard,
		retry:     NewRetryController(cfg.Settings.AutoRetryCount),
		newPromptClient: func(id core.ProviderID, apiKey string) (providers.PromptClient, error) {
			return providers.NewPromptClient(id, apiKey, deps)
		},
		newImageClient: func(id core.ProviderID, apiKey string) (providers.ImageClient, error) {
			return providers.NewImageClient(id, apiKey, deps)
		},
	}, nil
}

// tryAcquire takes the single-flight flag, rejecting with ErrBusy when a
// session is already active.
func (o *Orchestrator) tryAcquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrBusy
	}
	o.running = true
	return nil
}

// release clears the single-flight flag. Deferred unconditionally by
// every entry point, so a failure can never lock out future generations.
func (o *Orchestrator) release() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

// Generate runs the full pipeline for the note at notePath: collect
// options, generate a prompt (looping through the preview gate while the
// user requests regeneration), generate the image, save it, and embed it.
// Returns the vault-relative path of the saved attachment.
func (o *Orchestrator) Generate(ctx context.Context, notePath string) (string, error) {
	if err := o.tryAcquire(); err != nil {
		o.notify(err.Error())
		return "", err
	}
	defer o.release()

	correlationID := uuid.NewString()
	log := o.log.With(
		zap.String("correlation_id", correlationID),
		zap.String("note", notePath))
	log.Info("generation started")

	path, err := o.generate(ctx, log, notePath)
	return path, o.finish(log, path, err)
}

// generate is the pipeline body; Generate owns the guard and terminal
// reporting around it.
func (o *Orchestrator) generate(ctx context.Context, log *logging.Logger, notePath string) (string, error) {
	noteText, err := o.vault.ReadNote(notePath)
	if err != nil {
		return "", core.ErrGenerationFailed("cannot read note", err.Error())
	}
	if strings.TrimSpace(noteText) == "" {
		return "", core.ErrGenerationFailed("note is empty", "nothing to illustrate")
	}

	providerID := o.settings.Provider
	apiKey := providers.ResolveKey(o.settings.APIKeys, providerID)
	if apiKey == "" {
		return "", core.ErrInvalidAPIKey(string(providerID))
	}

	o.update(ctx, StepAnalyzing, 0, "Analyzing note...")

	opts, err := o.collectOptions(ctx)
	if err != nil {
		return "", err
	}

	req := core.GenerationRequest{
		NoteText:    noteText,
		NotePath:    notePath,
		ProviderID:  providerID,
		PromptModel: o.settings.PromptModel,
		ImageModel:  o.settings.ImageModel,
		APIKeys:     o.settings.APIKeys,
		Style:       opts.Style,
		Size:        opts.Size,
		PanelCount:  opts.PanelCount,
		Language:    o.settings.Language,
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	prompt, err := o.promptLoop(ctx, log, &req, apiKey)
	if err != nil {
		return "", err
	}

	return o.producePoster(ctx, log, &req, apiKey, prompt, 50)
}

// collectOptions consults the options surface, falling back to settings
// defaults when no surface is wired.
func (o *Orchestrator) collectOptions(ctx context.Context) (OptionsResult, error) {
	defaults := OptionsResult{
		Confirmed:  true,
		Style:      o.settings.DefaultStyle,
		Size:       o.settings.DefaultSize,
		PanelCount: core.ClampPanelCount(o.settings.DefaultPanelCount),
	}
	if o.options == nil {
		return defaults, nil
	}

	opts, err := o.options.Collect(ctx, defaults)
	if err != nil {
		return OptionsResult{}, err
	}
	if !opts.Confirmed {
		return OptionsResult{}, ErrCanceled
	}
	return opts, nil
}

// promptLoop generates a prompt and routes it through the preview gate,
// looping while the user requests regeneration. An explicit loop, not
// recursion: stack depth stays flat under unlimited regenerations.
func (o *Orchestrator) promptLoop(ctx context.Context, log *logging.Logger, req *core.GenerationRequest, apiKey string) (string, error) {
	promptClient, err := o.newPromptClient(req.ProviderID, apiKey)
	if err != nil {
		return "", core.ErrGenerationFailed("cannot initialize prompt client", err.Error())
	}

	for {
		o.update(ctx, StepGeneratingPrompt, 20, "Generating prompt...")

		var result *core.PromptResult
		err := o.retry.Do(ctx, log, "generate-prompt", func() error {
			var opErr error
			result, opErr = promptClient.GeneratePrompt(ctx, req.NoteText, req.PromptModel)
			return opErr
		})
		if err != nil {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ErrCanceled
		}

		prompt := result.Prompt
		o.session.Store(prompt, req.NotePath)

		if !o.settings.ShowPreview || o.preview == nil {
			return prompt, nil
		}

		decision, err := o.preview.ShowPrompt(ctx, prompt)
		if err != nil {
			return "", err
		}
		if decision.Regenerate {
			log.Info("prompt regeneration requested")
			continue
		}
		if !decision.Confirmed {
			return "", ErrCanceled
		}
		if edited := strings.TrimSpace(decision.Prompt); edited != "" && edited != prompt {
			prompt = edited
			o.session.Store(prompt, req.NotePath)
		}
		return prompt, nil
	}
}

// producePoster runs the image, save, and embed phases shared by the
// fresh and regenerate paths. imageMilestone is 50 on the fresh path and
// 40 on the regenerate path.
func (o *Orchestrator) producePoster(ctx context.Context, log *logging.Logger, req *core.GenerationRequest, apiKey, prompt string, imageMilestone int) (string, error) {
	imageClient, err := o.newImageClient(req.ProviderID, apiKey)
	if err != nil {
		return "", core.ErrGenerationFailed("cannot initialize image client", err.Error())
	}

	o.update(ctx, StepGeneratingImage, imageMilestone, "Generating image...")

	spec := providers.ImageSpec{
		Prompt:     prompt,
		Model:      req.ImageModel,
		Style:      req.Style,
		Size:       req.Size,
		PanelCount: req.PanelCount,
		Language:   req.Language,
	}

	var image *core.ImageResult
	err = o.retry.Do(ctx, log, "generate-image", func() error {
		var opErr error
		image, opErr = imageClient.GenerateImage(ctx, spec)
		return opErr
	})
	if err != nil {
		return "", err
	}
	if ctx.Err() != nil {
		// The call was allowed to complete; its result is discarded.
		return "", ErrCanceled
	}

	o.update(ctx, StepSaving, 80, "Saving image...")
	imagePath, err := o.writer.SaveImage(image.Bytes, image.MimeType, req.NotePath, o.settings.AttachmentFolder)
	if err != nil {
		return "", err
	}

	o.update(ctx, StepEmbedding, 95, "Embedding into note...")
	if err := o.writer.EmbedImage(req.NotePath, imagePath); err != nil {
		// The attachment stays behind; an orphaned file is the
		// documented outcome of a failure between saving and embedding.
		log.Warn("embed failed after save, attachment orphaned",
			zap.String("image", imagePath), zap.Error(err))
		return "", err
	}

	o.update(ctx, StepComplete, 100, "Poster complete")
	return imagePath, nil
}

// RegenerateLast re-runs image generation with the cached prompt from the
// last successful prompt generation, skipping the prompt phase entirely.
// Fails fast, without any network call, when the session holds no prompt
// or the cached note no longer resolves.
func (o *Orchestrator) RegenerateLast(ctx context.Context) (string, error) {
	if err := o.tryAcquire(); err != nil {
		o.notify(err.Error())
		return "", err
	}
	defer o.release()

	correlationID := uuid.NewString()
	log := o.log.With(zap.String("correlation_id", correlationID))
	log.Info("regeneration started")

	path, err := o.regenerate(ctx, log)
	return path, o.finish(log, path, err)
}

func (o *Orchestrator) regenerate(ctx context.Context, log *logging.Logger) (string, error) {
	prompt, notePath, ok := o.session.Last()
	if !ok {
		return "", core.ErrGenerationFailed("no previous prompt to regenerate", "generate a poster first")
	}
	if notePath == "" || !o.vault.Exists(notePath) {
		return "", core.ErrGenerationFailed("the original note no longer exists", notePath)
	}

	providerID := o.settings.Provider
	apiKey := providers.ResolveKey(o.settings.APIKeys, providerID)
	if apiKey == "" {
		return "", core.ErrInvalidAPIKey(string(providerID))
	}

	req := core.GenerationRequest{
		NoteText:    prompt, // note text is not re-read; the cached prompt drives this path
		NotePath:    notePath,
		ProviderID:  providerID,
		PromptModel: o.settings.PromptModel,
		ImageModel:  o.settings.ImageModel,
		APIKeys:     o.settings.APIKeys,
		Style:       o.settings.DefaultStyle,
		Size:        o.settings.DefaultSize,
		PanelCount:  core.ClampPanelCount(o.settings.DefaultPanelCount),
		Language:    o.settings.Language,
	}

	return o.producePoster(ctx, log, &req, apiKey, prompt, 40)
}

// GeneratePromptOnly runs only prompt generation, copies the result to the
// clipboard capability, and caches it for a later RegenerateLast. The
// image client and storage writer are never touched.
func (o *Orchestrator) GeneratePromptOnly(ctx context.Context, notePath string) (string, error) {
	if err := o.tryAcquire(); err != nil {
		o.notify(err.Error())
		return "", err
	}
	defer o.release()

	correlationID := uuid.NewString()
	log := o.log.With(
		zap.String("correlation_id", correlationID),
		zap.String("note", notePath))
	log.Info("prompt-only generation started")

	noteText, err := o.vault.ReadNote(notePath)
	if err != nil {
		err = core.ErrGenerationFailed("cannot read note", err.Error())
		o.reportError(log, err)
		return "", err
	}
	if strings.TrimSpace(noteText) == "" {
		err = core.ErrGenerationFailed("note is empty", "nothing to illustrate")
		o.reportError(log, err)
		return "", err
	}

	providerID := o.settings.Provider
	apiKey := providers.ResolveKey(o.settings.APIKeys, providerID)
	if apiKey == "" {
		err = core.ErrInvalidAPIKey(string(providerID))
		o.reportError(log, err)
		return "", err
	}

	promptClient, err := o.newPromptClient(providerID, apiKey)
	if err != nil {
		err = core.ErrGenerationFailed("cannot initialize prompt client", err.Error())
		o.reportError(log, err)
		return "", err
	}

	var result *core.PromptResult
	err = o.retry.Do(ctx, log, "generate-prompt", func() error {
		var opErr error
		result, opErr = promptClient.GeneratePrompt(ctx, noteText, o.settings.PromptModel)
		return opErr
	})
	if err != nil {
		o.reportError(log, err)
		return "", err
	}

	o.session.Store(result.Prompt, notePath)

	if o.clipboard != nil {
		if err := o.clipboard(result.Prompt); err != nil {
			log.Warn("clipboard copy failed", zap.Error(err))
		}
	}

	o.notify("Prompt copied; use regenerate to produce the poster")
	log.Info("prompt-only generation finished")
	return result.Prompt, nil
}

// finish reports the terminal outcome of a session: silent on cancel,
// success callback on success, coerced taxonomy error otherwise.
func (o *Orchestrator) finish(log *logging.Logger, path string, err error) error {
	switch {
	case err == nil:
		log.Info("generation finished", zap.String("image", path))
		if o.progress != nil {
			o.progress.Success(path)
		} else {
			o.notify("Poster saved to " + path)
		}
		return nil
	case errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled):
		log.Info("generation canceled")
		return ErrCanceled
	default:
		o.reportError(log, err)
		return core.CoerceError(err)
	}
}

// reportError routes a failure to the open progress surface, or to a
// transient notification when none is open.
func (o *Orchestrator) reportError(log *logging.Logger, err error) {
	genErr := core.CoerceError(err)
	log.Error("generation failed",
		zap.String("kind", string(genErr.Kind)),
		zap.Bool("retryable", genErr.Retryable),
		zap.Error(genErr))
	if o.progress != nil {
		o.progress.Error(genErr)
	} else {
		o.notify(genErr.Message)
	}
}

// update pushes a progress milestone. After cancellation no further
// updates are applied.
func (o *Orchestrator) update(ctx context.Context, step Step, progress int, message string) {
	if ctx.Err() != nil {
		return
	}
	if o.progress == nil || !o.settings.ShowProgress {
		return
	}
	o.progress.Update(ProgressState{Step: step, Progress: progress, Message: message})
}

func (o *Orchestrator) notify(message string) {
	if o.notifier != nil {
		o.notifier.Notify(message)
	}
}
