package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"noteposter/core"
	"noteposter/logging"
)

const (
	anthropicMessagesURL = "https://api.anthropic.com/v1/messages"
	anthropicVersion     = "2023-06-01"
)

// AnthropicClient implements PromptClient against the Anthropic Messages
// API. Anthropic exposes no image-generation endpoint, so this client is
// prompt-only; NewImageClient rejects the provider up front.
type AnthropicClient struct {
	http   *http.Client
	apiKey string
	log    *logging.Logger
}

// NewAnthropicClient creates a Messages API client.
func NewAnthropicClient(apiKey string, deps Deps) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("providers: anthropic API key is required")
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	log := deps.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}

	return &AnthropicClient{
		http:   httpClient,
		apiKey: apiKey,
		log:    log.Named("anthropic"),
	}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// GeneratePrompt asks a Claude model for an image prompt summarizing the note.
func (c *AnthropicClient) GeneratePrompt(ctx context.Context, noteText, model string) (*core.PromptResult, error) {
	c.log.Debug("generating prompt",
		zap.String("model", model),
		zap.Int("note_len", len(noteText)))

	payload := anthropicRequest{
		Model:     model,
		MaxTokens: maxPromptTokens,
		System:    promptInstruction,
		Messages: []anthropicMessage{
			{Role: "user", Content: BuildPromptRequest(noteText)},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, core.ErrGenerationFailed("failed to encode anthropic request", err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicMessagesURL, bytes.NewReader(body))
	if err != nil {
		return nil, core.ErrGenerationFailed("failed to build anthropic request", err.Error())
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classifyTransport("anthropic", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if msg := anthropicErrorMessage(respBody); looksContentFiltered(msg) {
			return nil, core.ErrContentFiltered("anthropic", msg)
		}
		return nil, classifyStatus("anthropic", resp.StatusCode, string(respBody))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, core.ErrGenerationFailed("anthropic returned an unparseable response", err.Error())
	}
	if len(parsed.Content) == 0 {
		return nil, core.ErrGenerationFailed("anthropic returned no content blocks", "")
	}

	prompt := strings.TrimSpace(parsed.Content[0].Text)
	if prompt == "" {
		return nil, core.ErrGenerationFailed("anthropic returned an empty prompt", "")
	}

	c.log.Debug("prompt generated", zap.String("prompt_preview", truncateText(prompt, 80)))
	return &core.PromptResult{Prompt: prompt}, nil
}

// anthropicErrorMessage pulls the error message out of an error response
// body, returning the raw body if it does not parse.
func anthropicErrorMessage(body []byte) string {
	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		return parsed.Error.Message
	}
	return string(body)
}

var _ PromptClient = (*AnthropicClient)(nil)
