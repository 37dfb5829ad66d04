// Package providers implements the prompt-generation and image-generation
// clients for the supported AI providers (OpenAI, Google, Anthropic, xAI).
//
// Provider clients are the only components allowed to construct a typed
// core.GenerationError; everything they return is already classified into
// the closed taxonomy.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"noteposter/core"
	"noteposter/logging"
)

// ResolveKey maps a provider identifier to its configured credential.
// Pure lookup with no failure mode: absence is signaled by an empty
// string, which callers check before any network call.
func ResolveKey(keys map[core.ProviderID]string, id core.ProviderID) string {
	if keys == nil {
		return ""
	}
	return keys[id]
}

// PromptClient generates an image-generation prompt from note text.
type PromptClient interface {
	// GeneratePrompt asks the provider's text model to produce an
	// image-generation prompt that illustrates the note.
	GeneratePrompt(ctx context.Context, noteText, model string) (*core.PromptResult, error)
}

// ImageClient turns a prompt plus style parameters into image bytes.
type ImageClient interface {
	// GenerateImage sends the composed instruction to the provider's
	// image model and decodes the returned payload.
	GenerateImage(ctx context.Context, spec ImageSpec) (*core.ImageResult, error)
}

// ImageSpec carries the parameters of one image generation call.
type ImageSpec struct {
	Prompt     string
	Model      string
	Style      core.Style
	Size       core.Size
	PanelCount int
	Language   string
}

// Deps bundles the shared dependencies injected into every provider client.
type Deps struct {
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// NewPromptClient builds the prompt-generation client for a provider.
func NewPromptClient(id core.ProviderID, apiKey string, deps Deps) (PromptClient, error) {
	switch id {
	case core.ProviderOpenAI:
		return NewOpenAIClient(apiKey, OpenAIBaseURL, string(id), deps)
	case core.ProviderXAI:
		return NewOpenAIClient(apiKey, XAIBaseURL, string(id), deps)
	case core.ProviderGoogle:
		return NewGoogleClient(apiKey, deps)
	case core.ProviderAnthropic:
		return NewAnthropicClient(apiKey, deps)
	default:
		return nil, fmt.Errorf("providers: unknown provider %q", id)
	}
}

// NewImageClient builds the image-generation client for a provider.
// Anthropic has no image-generation endpoint; selecting it for images is
// rejected here, before any network call.
func NewImageClient(id core.ProviderID, apiKey string, deps Deps) (ImageClient, error) {
	switch id {
	case core.ProviderOpenAI:
		return NewOpenAIClient(apiKey, OpenAIBaseURL, string(id), deps)
	case core.ProviderXAI:
		return NewOpenAIClient(apiKey, XAIBaseURL, string(id), deps)
	case core.ProviderGoogle:
		return NewGoogleClient(apiKey, deps)
	case core.ProviderAnthropic:
		return nil, fmt.Errorf("providers: anthropic does not support image generation; select openai, google, or xai")
	default:
		return nil, fmt.Errorf("providers: unknown provider %q", id)
	}
}

// promptInstruction is the system instruction for prompt generation.
const promptInstruction = "You are an expert at writing prompts for AI image generators. " +
	"Given a note, write a single vivid prompt describing a poster that illustrates " +
	"the note's key ideas. Respond with the prompt text only, no preamble."

// BuildPromptRequest composes the user message sent to the text model.
func BuildPromptRequest(noteText string) string {
	return "Write an image-generation prompt for a poster illustrating this note:\n\n" + noteText
}

// styleInstructions maps each style to the directive prepended to the
// prompt before it is sent to the image model.
var styleInstructions = map[core.Style]string{
	core.StyleInfographic: "Design a clean infographic with labeled sections and icons.",
	core.StylePoster:      "Design a bold illustrative poster with a strong focal point.",
	core.StyleDiagram:     "Draw a clear technical diagram with labeled arrows and boxes.",
	core.StyleMindmap:     "Draw a mind map radiating from a central concept with branches.",
	core.StyleTimeline:    "Draw a horizontal timeline with ordered, dated milestones.",
	core.StyleCartoon:     "Draw a comic strip in a friendly cartoon style.",
}

// BuildImageInstruction combines the prompt with the style-specific
// directive, the panel-grid directive for cartoons, and the output
// language. The result is the full text sent to the image model.
func BuildImageInstruction(spec ImageSpec) string {
	var b strings.Builder

	if instr, ok := styleInstructions[spec.Style]; ok {
		b.WriteString(instr)
	} else {
		b.WriteString(styleInstructions[core.StylePoster])
	}
	if spec.Style == core.StyleCartoon && spec.PanelCount > 0 {
		fmt.Fprintf(&b, " Lay out exactly %d panels in a grid, numbered in reading order.", spec.PanelCount)
	}
	b.WriteString("\n\n")
	b.WriteString(spec.Prompt)

	if spec.Language != "" {
		fmt.Fprintf(&b, "\n\nRender all text in the image in %s.", spec.Language)
	}

	return b.String()
}

// truncateText shortens text for log fields.
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
