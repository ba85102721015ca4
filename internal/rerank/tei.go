// Package rerank scores query/passage pairs with a cross-encoder served
// over the text-embeddings-inference /rerank API.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docsearch/internal/domain"
)

type Config struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	url        string
	maxRetries int
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:8080"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{
		url:        strings.TrimSuffix(cfg.URL, "/"),
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

type rankedText struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// ScorePairs returns one raw logit per text, aligned with texts.
func (c *Client) ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts, RawScores: true})
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("rerank: %w: %w", domain.ErrRerankUnavailable, ctx.Err())
			case <-time.After(retryDelay(attempt - 1)):
			}
		}
		ranked, retry, err := c.post(ctx, body)
		if err == nil {
			return align(ranked, len(texts))
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return nil, fmt.Errorf("rerank: %w: %w", domain.ErrRerankUnavailable, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) ([]rankedText, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retry, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var ranked []rankedText
	if err := json.NewDecoder(resp.Body).Decode(&ranked); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	return ranked, false, nil
}

// align places scores back in request order; the server sorts by score.
func align(ranked []rankedText, n int) ([]float64, error) {
	if len(ranked) != n {
		return nil, fmt.Errorf("rerank: expected %d scores, got %d", n, len(ranked))
	}
	out := make([]float64, n)
	seen := make([]bool, n)
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= n || seen[r.Index] {
			return nil, fmt.Errorf("rerank: bad index %d in response", r.Index)
		}
		seen[r.Index] = true
		out[r.Index] = r.Score
	}
	return out, nil
}

func retryDelay(attempt int) time.Duration {
	d := 100 * time.Millisecond << attempt
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}
