package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"noteposter/core"
	"noteposter/logging"
)

// GoogleClient implements PromptClient and ImageClient against the Gemini
// API. Image models return the bitmap inline as a content part rather
// than via a URL, so no separate download step is needed.
type GoogleClient struct {
	client *genai.Client
	log    *logging.Logger
}

// NewGoogleClient creates a Gemini client using the Gemini API backend.
func NewGoogleClient(apiKey string, deps Deps) (*GoogleClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("providers: google API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: deps.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("providers: failed to create google client: %w", err)
	}

	log := deps.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}

	return &GoogleClient{client: client, log: log.Named("google")}, nil
}

// GeneratePrompt asks a Gemini text model for an image prompt summarizing
// the note.
func (c *GoogleClient) GeneratePrompt(ctx context.Context, noteText, model string) (*core.PromptResult, error) {
	c.log.Debug("generating prompt",
		zap.String("model", model),
		zap.Int("note_len", len(noteText)))

	resp, err := c.client.Models.GenerateContent(ctx, model,
		genai.Text(BuildPromptRequest(noteText)),
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: promptInstruction}},
			},
		})
	if err != nil {
		return nil, c.classify(err)
	}

	prompt := strings.TrimSpace(resp.Text())
	if prompt == "" {
		if blocked, reason := blockedByFilter(resp); blocked {
			return nil, core.ErrContentFiltered("google", reason)
		}
		return nil, core.ErrGenerationFailed("google returned an empty prompt", "")
	}

	c.log.Debug("prompt generated", zap.String("prompt_preview", truncateText(prompt, 80)))
	return &core.PromptResult{Prompt: prompt}, nil
}

// GenerateImage sends the composed instruction to a Gemini image model and
// extracts the first inline image part from the response.
func (c *GoogleClient) GenerateImage(ctx context.Context, spec ImageSpec) (*core.ImageResult, error) {
	if spec.Prompt == "" {
		return nil, core.ErrGenerationFailed("prompt cannot be empty", "")
	}

	instruction := BuildImageInstruction(spec)

	c.log.Debug("generating image",
		zap.String("model", spec.Model),
		zap.String("style", string(spec.Style)))

	resp, err := c.client.Models.GenerateContent(ctx, spec.Model,
		genai.Text(instruction),
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		})
	if err != nil {
		return nil, c.classify(err)
	}

	if img := extractInlineImage(resp); img != nil {
		return img, nil
	}

	if blocked, reason := blockedByFilter(resp); blocked {
		return nil, core.ErrContentFiltered("google", reason)
	}
	return nil, core.ErrNoContent("google")
}

// extractInlineImage returns the first inline image part of a response,
// or nil if the response carries no image payload.
func extractInlineImage(resp *genai.GenerateContentResponse) *core.ImageResult {
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return &core.ImageResult{Bytes: part.InlineData.Data, MimeType: mime}
			}
		}
	}
	return nil
}

// blockedByFilter reports whether the response was stopped by a safety
// filter, either via prompt feedback or an abnormal finish reason.
func blockedByFilter(resp *genai.GenerateContentResponse) (bool, string) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return true, "prompt blocked: " + string(resp.PromptFeedback.BlockReason)
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil {
			continue
		}
		switch candidate.FinishReason {
		case genai.FinishReasonUnspecified, genai.FinishReasonStop:
		default:
			return true, "finish reason: " + string(candidate.FinishReason)
		}
	}
	return false, ""
}

// classify maps genai errors into the taxonomy via the embedded HTTP
// status code.
func (c *GoogleClient) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if looksContentFiltered(apiErr.Message) {
			return core.ErrContentFiltered("google", apiErr.Message)
		}
		return classifyStatus("google", apiErr.Code, apiErr.Message)
	}
	return classifyTransport("google", err)
}

var (
	_ PromptClient = (*GoogleClient)(nil)
	_ ImageClient  = (*GoogleClient)(nil)
)
