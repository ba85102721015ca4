// Package ollama embeds text through Ollama's native /api/embed endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docsearch/internal/embedding"
)

type Config struct {
	BaseURL   string
	Model     string
	Timeout   time.Duration
	BatchSize int
	// MaxRetries bounds retries on transport errors, 429 and 5xx. Zero means 3.
	MaxRetries int
}

type Client struct {
	baseURL    string
	model      string
	batchSize  int
	maxRetries int
	dimension  int
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	host := strings.TrimSuffix(cfg.BaseURL, "/")
	host = strings.TrimSuffix(host, "/v1")
	if host == "" {
		host = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Client{
		baseURL:    host,
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *Client) Name() string { return "ollama:" + c.model }

// Dimension is known after the first successful call.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns the normalized embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedding.Batched(ctx, texts, c.batchSize, c.embed)
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt - 1)):
			}
		}
		vecs, retry, err := c.post(ctx, body, len(texts))
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, body []byte, want int) ([][]float32, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("ollama embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retry, fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) != want {
		return nil, false, fmt.Errorf("ollama embed: expected %d embeddings, got %d", want, len(result.Embeddings))
	}
	for i, v := range result.Embeddings {
		if err := embedding.Normalize(v); err != nil {
			return nil, false, fmt.Errorf("ollama embed [%d]: %w", i, err)
		}
	}
	if c.dimension == 0 {
		c.dimension = len(result.Embeddings[0])
	}
	return result.Embeddings, false, nil
}

// retryDelay doubles from 100ms, capped at 2s.
func retryDelay(attempt int) time.Duration {
	d := 100 * time.Millisecond << attempt
	return min(d, 2*time.Second)
}

// IsHealthy checks if Ollama is reachable. Commands call it before the
// first embedding request.
func (c *Client) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
