package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/Divas-Gupta30/agentgate/internal/apperr"
)

// DefaultOllamaEmbeddingsURL is the local Ollama embeddings endpoint.
const DefaultOllamaEmbeddingsURL = "http://localhost:11434/api/embeddings"

// Embedder turns text into a vector. Implementations must be deterministic
// for identical text and model version.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// request struct for Ollama API
type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// response struct from Ollama API
type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// OllamaEmbedder calls a local Ollama embeddings endpoint.
type OllamaEmbedder struct {
	url   string
	model string
	http  *http.Client
}

// NewOllamaEmbedder returns an embedder for model ("nomic-embed-text" when empty).
func NewOllamaEmbedder(url, model string, httpClient *http.Client) *OllamaEmbedder {
	if url == "" {
		url = DefaultOllamaEmbeddingsURL
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaEmbedder{url: url, model: model, http: httpClient}
}

// Embed calls Ollama and returns the embedding vector.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	data, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, apperr.Timeout("embed", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama error: %s: %s", resp.Status, string(bodyBytes))
	}

	var oResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return nil, fmt.Errorf("failed decode response: %w", err)
	}
	if len(oResp.Embedding) == 0 {
		return nil, errors.New("ollama returned an empty embedding")
	}
	return oResp.Embedding, nil
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder returns an embedder using baseURL (empty for api.openai.com).
func NewOpenAIEmbedder(baseURL, apiKey, model string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(cfg), model: openai.EmbeddingModel(model)}
}

// Embed implements Embedder.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: o.model,
	})
	if err != nil {
		return nil, apperr.Timeout("embed", fmt.Errorf("creating embeddings: %w", err))
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("embeddings response contained no vectors")
	}
	return resp.Data[0].Embedding, nil
}

// NewEmbedder builds the configured provider ("ollama" or "openai").
func NewEmbedder(provider, url, model, apiKey string) (Embedder, error) {
	switch provider {
	case "ollama", "":
		return NewOllamaEmbedder(url, model, nil), nil
	case "openai":
		return NewOpenAIEmbedder(url, apiKey, model), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}
