package core

import "strings"

// ProviderID identifies an AI provider for both prompt and image generation.
type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderGoogle    ProviderID = "google"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderXAI       ProviderID = "xai"
)

// KnownProviders lists every supported provider identifier.
var KnownProviders = []ProviderID{
	ProviderOpenAI,
	ProviderGoogle,
	ProviderAnthropic,
	ProviderXAI,
}

// Valid reports whether the identifier names a supported provider.
func (p ProviderID) Valid() bool {
	for _, known := range KnownProviders {
		if p == known {
			return true
		}
	}
	return false
}

// Style selects the visual treatment of the generated poster.
type Style string

const (
	StyleInfographic Style = "infographic"
	StylePoster      Style = "poster"
	StyleDiagram     Style = "diagram"
	StyleMindmap     Style = "mindmap"
	StyleTimeline    Style = "timeline"
	StyleCartoon     Style = "cartoon"
)

// Size selects the output resolution. Values map to square pixel
// dimensions provider-side (1K=1024, 2K=2048, 4K=4096).
type Size string

const (
	Size1K Size = "1K"
	Size2K Size = "2K"
	Size4K Size = "4K"
)

// Pixels returns the square edge length for a size, defaulting to 1024
// for anything unrecognized.
func (s Size) Pixels() int {
	switch s {
	case Size2K:
		return 2048
	case Size4K:
		return 4096
	default:
		return 1024
	}
}

const (
	// MinPanelCount and MaxPanelCount bound the cartoon panel grid.
	// Clamping happens at options-input time, not at read time.
	MinPanelCount = 2
	MaxPanelCount = 12
)

// ClampPanelCount forces a cartoon panel count into [MinPanelCount,
// MaxPanelCount]. Applied by the options surface before a request is built.
func ClampPanelCount(n int) int {
	if n < MinPanelCount {
		return MinPanelCount
	}
	if n > MaxPanelCount {
		return MaxPanelCount
	}
	return n
}

// GenerationRequest carries everything the pipeline needs for one
// generation session. PanelCount is only meaningful when Style is cartoon.
type GenerationRequest struct {
	NoteText    string
	NotePath    string
	ProviderID  ProviderID
	PromptModel string
	ImageModel  string
	APIKeys     map[ProviderID]string
	Style       Style
	Size        Size
	PanelCount  int
	Language    string
}

// Validate checks the request invariants that hold before any network call.
func (r *GenerationRequest) Validate() error {
	if strings.TrimSpace(r.NoteText) == "" {
		return ErrGenerationFailed("note is empty", "nothing to illustrate")
	}
	if !r.ProviderID.Valid() {
		return ErrGenerationFailed("unknown provider", string(r.ProviderID))
	}
	return nil
}

// PromptResult is the output of prompt generation.
type PromptResult struct {
	Prompt string
}

// ImageResult is the output of image generation. Never persisted beyond
// the orchestration call that created it.
type ImageResult struct {
	Bytes    []byte
	MimeType string
}
