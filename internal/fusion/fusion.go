// Package fusion turns retrieved candidates into final scored results.
package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"docsearch/internal/domain"
)

const (
	DefaultK            = 5
	DefaultTopKIndex    = 50
	DefaultRerankTopN   = 20
	DefaultPreviewChars = 800

	ellipsis = " ..."
)

// Strategy attaches RerankScore and RerankProb to every element of cands.
// cands is the re-rank prefix of all, the full index result set.
type Strategy interface {
	Name() string
	Score(ctx context.Context, query string, cands, all []domain.Candidate) error
}

// Softmax scores candidates with a cross-encoder and normalizes the logits.
// A failing re-ranker degrades to IndexScore.
type Softmax struct {
	Reranker domain.Reranker
	Logger   *slog.Logger
}

func (Softmax) Name() string { return "softmax" }

func (s Softmax) Score(ctx context.Context, query string, cands, all []domain.Candidate) error {
	if len(cands) == 0 {
		return nil
	}
	texts := make([]string, len(cands))
	for i, c := range cands {
		texts[i] = c.Record.Text
	}
	logits, err := s.Reranker.ScorePairs(ctx, query, texts)
	if err == nil && len(logits) != len(cands) {
		err = fmt.Errorf("%w: %d scores for %d candidates", domain.ErrRerankUnavailable, len(logits), len(cands))
	}
	if err != nil {
		s.logger().Warn("reranker failed, using index scores", "error", err)
		return IndexScore{}.Score(ctx, query, cands, all)
	}
	probs := softmax(logits)
	for i := range cands {
		cands[i].RerankScore = logits[i]
		cands[i].RerankProb = probs[i]
	}
	return nil
}

func (s Softmax) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// IndexScore uses the index score as the re-rank score and min-max
// normalizes it over all. Equal scores all map to 1.0.
type IndexScore struct{}

func (IndexScore) Name() string { return "index" }

func (IndexScore) Score(_ context.Context, _ string, cands, all []domain.Candidate) error {
	if len(all) == 0 {
		all = cands
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range all {
		lo = math.Min(lo, c.IndexScore)
		hi = math.Max(hi, c.IndexScore)
	}
	for i := range cands {
		cands[i].RerankScore = cands[i].IndexScore
		if hi == lo {
			cands[i].RerankProb = 1.0
			continue
		}
		cands[i].RerankProb = (cands[i].IndexScore - lo) / (hi - lo)
	}
	return nil
}

func softmax(logits []float64) []float64 {
	m := slices.Max(logits)
	exps := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		exps[i] = math.Exp(l - m)
		sum += exps[i]
	}
	if sum == 0 {
		sum = 1.0
	}
	for i := range exps {
		exps[i] /= sum
	}
	return exps
}

// Clamp applies defaults and keeps rerankTopN within topKIndex.
func Clamp(k, topKIndex, rerankTopN int) (int, int, int) {
	if k <= 0 {
		k = DefaultK
	}
	if topKIndex <= 0 {
		topKIndex = DefaultTopKIndex
	}
	if rerankTopN <= 0 {
		rerankTopN = DefaultRerankTopN
	}
	return k, topKIndex, min(rerankTopN, topKIndex)
}

// Result is one output row.
type Result struct {
	DocPath      string  `json:"doc_path"`
	StartLine    int     `json:"start_line"`
	EndLine      int     `json:"end_line"`
	ChunkPreview string  `json:"chunk_preview"`
	IndexScore   float64 `json:"index_score"`
	RerankScore  float64 `json:"rerank_score"`
	RerankProb   float64 `json:"rerank_prob"`
}

// Assemble orders scored candidates by RerankProb, ties keeping input
// order, and returns the first k as results. cands is reordered in place.
func Assemble(cands []domain.Candidate, k, previewChars int) []Result {
	if previewChars <= 0 {
		previewChars = DefaultPreviewChars
	}
	slices.SortStableFunc(cands, func(a, b domain.Candidate) int {
		switch {
		case a.RerankProb > b.RerankProb:
			return -1
		case a.RerankProb < b.RerankProb:
			return 1
		}
		return 0
	})
	if k >= 0 && k < len(cands) {
		cands = cands[:k]
	}
	out := make([]Result, len(cands))
	for i, c := range cands {
		out[i] = Result{
			DocPath:      c.Record.DocPath,
			StartLine:    c.Record.StartLine,
			EndLine:      c.Record.EndLine,
			ChunkPreview: Preview(c.Record.Text, previewChars),
			IndexScore:   c.IndexScore,
			RerankScore:  c.RerankScore,
			RerankProb:   c.RerankProb,
		}
	}
	return out
}

// Preview cuts text to at most limit characters, appending " ..." when cut.
func Preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + ellipsis
}
