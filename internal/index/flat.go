// Package index is an append-only flat vector index with exact
// inner-product search, persisted next to its ordinal → chunk mapping.
package index

import (
	"container/heap"
	"context"
	"fmt"
	"slices"

	"docsearch/internal/domain"
)

// NotFound marks a result slot with no vector behind it. Search never
// returns it.
const NotFound = -1

// Flat holds N vectors of dimension D in insertion order; the position of a
// vector is its ordinal. It is read-only once built.
type Flat struct {
	dimension int
	vectors   [][]float32
}

// Build inserts vectors in input order, assigning ordinals 0..N-1.
func Build(vectors [][]float32) (*Flat, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("index: build: %w", domain.ErrEmptyCorpus)
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("index: build: %w: zero-length vector", domain.ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("index: build: %w: vector %d has %d, want %d", domain.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return &Flat{dimension: dim, vectors: vectors}, nil
}

func (f *Flat) Len() int       { return len(f.vectors) }
func (f *Flat) Dimension() int { return f.dimension }

// Search returns at most min(topK, N) hits, descending by inner product.
// Equal scores keep ordinal order.
func (f *Flat) Search(_ context.Context, query []float32, topK int) ([]domain.Hit, error) {
	if len(query) != f.dimension {
		return nil, fmt.Errorf("index: search: %w: query has %d, index has %d", domain.ErrDimensionMismatch, len(query), f.dimension)
	}
	if topK <= 0 {
		return nil, nil
	}
	k := min(topK, len(f.vectors))
	h := make(hitHeap, 0, k)
	for i, v := range f.vectors {
		hit := domain.Hit{Ordinal: i, Score: dot(v, query)}
		if len(h) < k {
			heap.Push(&h, hit)
			continue
		}
		if better(hit, h[0]) {
			h[0] = hit
			heap.Fix(&h, 0)
		}
	}
	hits := []domain.Hit(h)
	slices.SortFunc(hits, func(a, b domain.Hit) int {
		switch {
		case better(a, b):
			return -1
		case better(b, a):
			return 1
		}
		return 0
	})
	return Found(hits), nil
}

// Found drops NotFound slots, keeping order.
func Found(hits []domain.Hit) []domain.Hit {
	return slices.DeleteFunc(hits, func(h domain.Hit) bool { return h.Ordinal == NotFound })
}

func better(a, b domain.Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Ordinal < b.Ordinal
}

// hitHeap keeps the worst retained hit at the root.
type hitHeap []domain.Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(domain.Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
