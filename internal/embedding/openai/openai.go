package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"edurag/internal/domain"
	"edurag/internal/embedding"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
// It performs a single request per call; retries belong to embedding.Gateway.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	dimension atomic.Int64
	client    *http.Client
}

var _ domain.Embedder = (*Client)(nil)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
}

// NewClient creates a new embeddings client using the provided configuration.
// An empty APIKeyEnv allows unauthenticated servers such as a local Ollama.
func NewClient(cfg Config) (*Client, error) {
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrInvalidConfiguration, cfg.APIKeyEnv)
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		t := cfg.Timeout
		if t == 0 {
			t = 30 * time.Second
		}
		hc = &http.Client{Timeout: t}
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  key,
		model:   cfg.Model,
		client:  hc,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Dimension returns the dimensionality learned from the first successful
// response, or 0 before that.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	type reqBody struct {
		Input  string `json:"input,omitempty"`
		Prompt string `json:"prompt,omitempty"`
		Model  string `json:"model"`
	}
	data, err := json.Marshal(reqBody{Input: text, Prompt: text, Model: c.model})
	if err != nil {
		return nil, &embedding.ProviderError{Permanent: true, Err: embedding.Unavailable("encode request: %v", err)}
	}
	url := fmt.Sprintf("%s/embeddings", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, &embedding.ProviderError{Permanent: true, Err: embedding.Unavailable("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		perr := &embedding.ProviderError{
			Status: resp.StatusCode,
			Err:    embedding.Unavailable("openai embeddings failed: %s", resp.Status),
		}
		// Respect Retry-After if provided
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				perr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, perr
	}
	if resp.StatusCode >= 300 {
		return nil, &embedding.ProviderError{
			Status:    resp.StatusCode,
			Permanent: true,
			Err:       embedding.Unavailable("openai embeddings failed: %s", resp.Status),
		}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrEmbeddingUnavailable, err)
	}
	v := decodeEmbedding(payload)
	if len(v) == 0 {
		return nil, embedding.Unavailable("no embedding returned")
	}
	c.dimension.CompareAndSwap(0, int64(len(v)))
	return v, nil
}

// decodeEmbedding accepts both the OpenAI shape {"data":[{"embedding":[...]}]}
// and the Ollama-native shape {"embedding":[...]}.
func decodeEmbedding(payload []byte) domain.Embedding {
	var openaiOut struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil {
		if len(openaiOut.Data) > 0 && len(openaiOut.Data[0].Embedding) > 0 {
			return openaiOut.Data[0].Embedding
		}
	}
	var ollamaOut struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil {
		return ollamaOut.Embedding
	}
	return nil
}
