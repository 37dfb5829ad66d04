// Package orchestrator sequences the note-to-poster pipeline: prompt
// generation, the optional preview gate, image generation, attachment
// saving, and note embedding, with single-flight guarding, retry with
// exponential backoff, and progress milestone reporting.
package orchestrator

import (
	"context"

	"noteposter/core"
)

// Step names a phase of the generation pipeline as shown to the user.
type Step string

const (
	StepAnalyzing        Step = "analyzing"
	StepGeneratingPrompt Step = "generating-prompt"
	StepGeneratingImage  Step = "generating-image"
	StepSaving           Step = "saving"
	StepEmbedding        Step = "embedding"
	StepComplete         Step = "complete"
)

// ProgressState is the transient snapshot pushed to the progress surface
// at every phase transition. Owned exclusively by the orchestrator;
// read-only to the surface.
type ProgressState struct {
	Step     Step
	Progress int // 0-100
	Message  string
}

// OptionsResult is the outcome of the options dialog. PanelCount arrives
// already clamped to [2,12]; clamping is an input-time concern of the
// surface, not of the pipeline.
type OptionsResult struct {
	Confirmed  bool
	Style      core.Style
	Size       core.Size
	PanelCount int
}

// OptionsSurface collects style, size, and panel-count decisions from the
// user before generation starts. The call blocks until the user decides.
type OptionsSurface interface {
	Collect(ctx context.Context, defaults OptionsResult) (OptionsResult, error)
}

// PreviewResult is the outcome of the prompt preview gate. When Regenerate
// is set the pipeline loops back to prompt generation; when Confirmed is
// set Prompt carries the (possibly user-edited) prompt to use.
type PreviewResult struct {
	Confirmed  bool
	Regenerate bool
	Prompt     string
}

// PreviewSurface shows the generated prompt and blocks until the user
// accepts, edits, cancels, or requests regeneration.
type PreviewSurface interface {
	ShowPrompt(ctx context.Context, prompt string) (PreviewResult, error)
}

// ProgressSurface receives step-by-step status plus the terminal outcome.
// Error receives a coerced typed error; remediation suggestions come from
// err.Kind.Suggestions().
type ProgressSurface interface {
	Update(state ProgressState)
	Success(path string)
	Error(err *core.GenerationError)
}

// Notifier shows a transient notification when no progress surface is
// open.
type Notifier interface {
	Notify(message string)
}
