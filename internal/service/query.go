package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"docsearch/internal/domain"
	"docsearch/internal/fusion"
)

// CandidateRetriever fetches index candidates joined to their records.
type CandidateRetriever interface {
	Retrieve(ctx context.Context, query []float32, topK int) ([]domain.Candidate, error)
}

type QueryRequest struct {
	Query      string
	K          int
	TopKIndex  int
	RerankTopN int
	// DebugTop copies the first DebugTop raw index hits into the response.
	DebugTop int
}

type DebugHit struct {
	DocPath string
	Score   float64
}

type QueryResponse struct {
	Query    string          `json:"query"`
	Results  []fusion.Result `json:"results"`
	Strategy string          `json:"-"`
	Debug    []DebugHit      `json:"-"`
}

type Searcher struct {
	embedder     domain.Embedder
	retriever    CandidateRetriever
	strategy     fusion.Strategy
	previewChars int
	logger       *slog.Logger
}

func NewSearcher(embedder domain.Embedder, retriever CandidateRetriever, strategy fusion.Strategy, previewChars int, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	if strategy == nil {
		strategy = fusion.IndexScore{}
	}
	return &Searcher{
		embedder:     embedder,
		retriever:    retriever,
		strategy:     strategy,
		previewChars: previewChars,
		logger:       logger,
	}
}

// Query embeds the query, retrieves TopKIndex candidates, scores the first
// RerankTopN and returns the best K.
func (s *Searcher) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return nil, fmt.Errorf("query: %w: empty query", domain.ErrInvalidConfig)
	}
	k, topKIndex, rerankTopN := fusion.Clamp(req.K, req.TopKIndex, req.RerankTopN)

	var qvec []float32
	err := traced(ctx, "embed", func(ctx context.Context) error {
		var err error
		qvec, err = s.embedder.Embed(ctx, q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query: embed: %w", err)
	}

	var all []domain.Candidate
	err = traced(ctx, "retrieve", func(ctx context.Context) error {
		all, err = s.retriever.Retrieve(ctx, qvec, topKIndex)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) {
			err = fmt.Errorf("%w (index built with a different embedder than %s?)", err, s.embedder.Name())
		}
		return nil, fmt.Errorf("query: %w", err)
	}

	resp := &QueryResponse{Query: req.Query, Strategy: s.strategy.Name(), Results: []fusion.Result{}}
	for _, c := range all[:max(0, min(req.DebugTop, len(all)))] {
		resp.Debug = append(resp.Debug, DebugHit{DocPath: c.Record.DocPath, Score: c.IndexScore})
	}
	if len(all) == 0 {
		return resp, nil
	}

	cands := all[:min(rerankTopN, len(all))]
	err = traced(ctx, "rerank", func(ctx context.Context) error {
		return s.strategy.Score(ctx, q, cands, all)
	})
	if err != nil {
		return nil, fmt.Errorf("query: score: %w", err)
	}
	_ = traced(ctx, "assemble", func(context.Context) error {
		resp.Results = fusion.Assemble(cands, k, s.previewChars)
		return nil
	})
	s.logger.Debug("query done", "query", q, "candidates", len(all), "scored", len(cands), "results", len(resp.Results), "strategy", resp.Strategy)
	return resp, nil
}
