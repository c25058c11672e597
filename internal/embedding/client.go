// Package embedding turns text into dense vectors through a remote
// OpenAI-compatible embeddings endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ricesearch/logscout/internal/pkg/errors"
)

// Default configuration values.
const (
	DefaultTimeout = 30 * time.Second

	// maxErrorBody bounds how much of a failed response ends up in an error.
	maxErrorBody = 512
)

// Embedder produces a vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds configuration for the embedding client.
type Config struct {
	// URL is the full embeddings endpoint, e.g. https://api.openai.com/v1/embeddings.
	URL string

	// APIKey is sent as a bearer credential.
	APIKey string

	// Model identifies the embedding model.
	Model string

	// Timeout bounds a single request.
	Timeout time.Duration

	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64
}

// Client calls the embedding provider.
type Client struct {
	httpClient *http.Client
	url        string
	apiKey     string
	model      string
	limiter    *rate.Limiter
}

// Ensure Client implements Embedder.
var _ Embedder = (*Client)(nil)

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// NewClient creates a new embedding client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.ValidationError("embedding URL is required")
	}
	if cfg.Model == "" {
		return nil, errors.ValidationError("embedding model is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Embed returns the embedding of text. A non-200 response, a transport failure
// or a malformed payload yields a nil vector and an EMBEDDING_UNAVAILABLE error.
// The call is never retried.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.EmbeddingUnavailableError("rate limiter wait", err)
		}
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, errors.InternalError("marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.InternalError("create embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.EmbeddingUnavailableError("send embedding request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.EmbeddingUnavailableError("read embedding response", err)
	}

	if resp.StatusCode != http.StatusOK {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, errors.EmbeddingUnavailableError(
			fmt.Sprintf("embedding provider returned status %d", resp.StatusCode), nil,
		).WithDetail("status", fmt.Sprintf("%d", resp.StatusCode)).
			WithDetail("body", string(data))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errors.EmbeddingUnavailableError("decode embedding response", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, errors.EmbeddingUnavailableError("embedding response has no vector", nil)
	}

	src := parsed.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, v := range src {
		vec[i] = float32(v)
	}
	return vec, nil
}
