package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Divas-Gupta30/agentgate/internal/apperr"
)

// DefaultOllamaURL is the local Ollama server.
const DefaultOllamaURL = "http://localhost:11434"

// request body for Ollama
type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// Ollama streaming response chunks look like { "response": "...", "done": false }
type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// OllamaBackend calls /api/generate on an Ollama server.
type OllamaBackend struct {
	baseURL string
	model   string
	http    *http.Client
}

// NewOllamaBackend returns a backend for model. An empty baseURL uses
// DefaultOllamaURL.
func NewOllamaBackend(baseURL, model string, httpClient *http.Client) *OllamaBackend {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaBackend{baseURL: strings.TrimRight(baseURL, "/"), model: model, http: httpClient}
}

// Model implements Backend.
func (o *OllamaBackend) Model() string { return o.model }

// Complete implements Backend.
func (o *OllamaBackend) Complete(ctx context.Context, p Prompt) (string, error) {
	reqBody, err := json.Marshal(ollamaRequest{
		Model:   o.model,
		Prompt:  p.Text,
		System:  p.SystemInstruction,
		Options: map[string]any{"temperature": p.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding ollama request: %w", apperr.ErrGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("%w: creating ollama request: %w", apperr.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: calling ollama: %w", apperr.ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: ollama returned %s", apperr.ErrRateLimited, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: ollama returned %s: %s", apperr.ErrGeneration, resp.Status, strings.TrimSpace(string(body)))
	}

	// Read streaming response
	var out strings.Builder
	decoder := json.NewDecoder(resp.Body)
	for {
		var chunk ollamaResponse
		if err := decoder.Decode(&chunk); err == io.EOF {
			break
		} else if err != nil {
			return "", fmt.Errorf("%w: decoding ollama response: %w", apperr.ErrGeneration, err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("%w: ollama: %s", apperr.ErrGeneration, chunk.Error)
		}
		out.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	return out.String(), nil
}
