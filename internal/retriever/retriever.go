// Package retriever joins index hits to their persisted chunk records.
package retriever

import (
	"context"
	"fmt"
	"log/slog"

	"docsearch/internal/domain"
)

type Retriever struct {
	searcher domain.Searcher
	records  map[int]domain.ChunkRecord
	logger   *slog.Logger
}

func New(searcher domain.Searcher, records map[int]domain.ChunkRecord, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{searcher: searcher, records: records, logger: logger}
}

// Retrieve returns up to topK candidates in index order. An ordinal with no
// record yields a candidate with an empty record.
func (r *Retriever) Retrieve(ctx context.Context, query []float32, topK int) ([]domain.Candidate, error) {
	hits, err := r.searcher.Search(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	out := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		rec, ok := r.records[h.Ordinal]
		if !ok {
			r.logger.Warn("no record for ordinal", "ordinal", h.Ordinal)
			rec = domain.ChunkRecord{Ordinal: h.Ordinal}
		}
		out = append(out, domain.Candidate{
			Ordinal:    h.Ordinal,
			IndexScore: float64(h.Score),
			Record:     rec,
		})
	}
	return out, nil
}
