package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"noteposter/core"
	"noteposter/logging"
)

// Endpoint bases for the OpenAI-compatible providers.
const (
	OpenAIBaseURL = "https://api.openai.com/v1"
	XAIBaseURL    = "https://api.x.ai/v1"
)

// maxPromptTokens bounds the generated prompt; image prompts are short.
const maxPromptTokens = 1024

// OpenAIClient implements PromptClient and ImageClient against any
// OpenAI-compatible API. The xAI provider reuses it with the api.x.ai
// base URL, which speaks the same wire protocol.
type OpenAIClient struct {
	client   *openai.Client
	provider string
	log      *logging.Logger
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
// provider is the name used in error messages and logs ("openai" or "xai").
func NewOpenAIClient(apiKey, baseURL, provider string, deps Deps) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("providers: %s API key is required", provider)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = baseURL
	if deps.HTTPClient != nil {
		clientConfig.HTTPClient = deps.HTTPClient
	}

	log := deps.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}

	return &OpenAIClient{
		client:   openai.NewClientWithConfig(clientConfig),
		provider: provider,
		log:      log.Named(provider),
	}, nil
}

// GeneratePrompt asks the chat-completion endpoint for an image prompt
// summarizing the note.
func (c *OpenAIClient) GeneratePrompt(ctx context.Context, noteText, model string) (*core.PromptResult, error) {
	c.log.Debug("generating prompt",
		zap.String("model", model),
		zap.Int("note_len", len(noteText)))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: promptInstruction},
			{Role: openai.ChatMessageRoleUser, Content: BuildPromptRequest(noteText)},
		},
		MaxTokens: maxPromptTokens,
	})
	if err != nil {
		return nil, c.classify(err)
	}

	if len(resp.Choices) == 0 {
		return nil, core.ErrGenerationFailed(c.provider+" returned no completion choices", "")
	}
	prompt := strings.TrimSpace(resp.Choices[0].Message.Content)
	if prompt == "" {
		return nil, core.ErrGenerationFailed(c.provider+" returned an empty prompt", "")
	}

	c.log.Debug("prompt generated", zap.String("prompt_preview", truncateText(prompt, 80)))
	return &core.PromptResult{Prompt: prompt}, nil
}

// GenerateImage sends the composed instruction to the image endpoint and
// decodes the base64 payload.
func (c *OpenAIClient) GenerateImage(ctx context.Context, spec ImageSpec) (*core.ImageResult, error) {
	if spec.Prompt == "" {
		return nil, core.ErrGenerationFailed("prompt cannot be empty", "")
	}

	instruction := BuildImageInstruction(spec)
	edge := spec.Size.Pixels()

	c.log.Debug("generating image",
		zap.String("model", spec.Model),
		zap.String("style", string(spec.Style)),
		zap.Int("edge_px", edge))

	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         instruction,
		Model:          spec.Model,
		N:              1,
		Size:           fmt.Sprintf("%dx%d", edge, edge),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, c.classify(err)
	}

	if len(resp.Data) == 0 {
		return nil, core.ErrNoContent(c.provider)
	}
	payload := resp.Data[0].B64JSON
	if payload == "" {
		return nil, core.ErrNoContent(c.provider)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, core.ErrGenerationFailed(c.provider+" returned an undecodable image payload", err.Error())
	}

	return &core.ImageResult{Bytes: raw, MimeType: "image/png"}, nil
}

// classify maps go-openai errors into the taxonomy. API errors carry an
// HTTP status; anything else is a transport failure.
func (c *OpenAIClient) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if looksContentFiltered(apiErr.Message) || codeIsContentPolicy(apiErr.Code) {
			return core.ErrContentFiltered(c.provider, apiErr.Message)
		}
		return classifyStatus(c.provider, apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(c.provider, reqErr.HTTPStatusCode, reqErr.Error())
	}

	return classifyTransport(c.provider, err)
}

// codeIsContentPolicy checks the structured error code go-openai exposes
// as an untyped field.
func codeIsContentPolicy(code any) bool {
	s, ok := code.(string)
	return ok && strings.Contains(s, "content_policy")
}

var (
	_ PromptClient = (*OpenAIClient)(nil)
	_ ImageClient  = (*OpenAIClient)(nil)
)
