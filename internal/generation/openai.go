package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/oauth2/google"

	"github.com/Divas-Gupta30/agentgate/internal/apperr"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// OpenAIConfig configures an OpenAI-compatible chat completion endpoint,
// such as Gemini's OpenAI compatibility layer.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// UseGoogleCredentials authenticates with Application Default
	// Credentials instead of an API key.
	UseGoogleCredentials bool
}

// OpenAIBackend calls the chat completions API.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend builds a backend. ctx is only used to resolve Google
// credentials.
func NewOpenAIBackend(ctx context.Context, cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.APIKey == "" && !cfg.UseGoogleCredentials {
		return nil, errors.New("an API key or Google credentials are required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.UseGoogleCredentials {
		httpClient, err := google.DefaultClient(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("loading google credentials: %w", err)
		}
		clientCfg.HTTPClient = httpClient
	}

	return &OpenAIBackend{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Model implements Backend.
func (o *OpenAIBackend) Model() string { return o.model }

// Complete implements Backend.
func (o *OpenAIBackend) Complete(ctx context.Context, p Prompt) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: p.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: p.Text},
		},
	}
	if p.SystemInstruction != "" {
		req.Messages = append([]openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.SystemInstruction},
		}, req.Messages...)
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s returned no choices", apperr.ErrGeneration, o.model)
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", apperr.ErrRateLimited, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", apperr.ErrRateLimited, err)
	}
	if strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") {
		return fmt.Errorf("%w: %w", apperr.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %w", apperr.ErrGeneration, err)
}
