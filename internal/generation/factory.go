package generation

import (
	"context"
	"fmt"
)

// BackendConfig selects and configures a Backend.
type BackendConfig struct {
	Provider             string // "openai" or "ollama"
	BaseURL              string
	APIKey               string
	Model                string
	UseGoogleCredentials bool
}

// NewBackend builds the configured backend.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIBackend(ctx, OpenAIConfig{
			BaseURL:              cfg.BaseURL,
			APIKey:               cfg.APIKey,
			Model:                cfg.Model,
			UseGoogleCredentials: cfg.UseGoogleCredentials,
		})
	case "ollama":
		return NewOllamaBackend(cfg.BaseURL, cfg.Model, nil), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
