// Package embedding holds the helpers shared by the embedder implementations.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrEmptyEmbedding is returned when a provider answers without a vector.
var ErrEmptyEmbedding = errors.New("empty embedding")

// Normalize scales v to unit L2 length in place. A zero vector is an error
// rather than a silently unusable row.
func Normalize(v []float32) error {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return ErrEmptyEmbedding
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return nil
}

// Batched splits texts into groups of at most size and calls embed for each,
// keeping input order. The first failing group fails the whole call.
func Batched(ctx context.Context, texts []string, size int, embed func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	if size <= 0 {
		size = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += size {
		end := min(i+size, len(texts))
		vecs, err := embed(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", i, end, err)
		}
		if len(vecs) != end-i {
			return nil, fmt.Errorf("embed batch [%d:%d]: got %d vectors", i, end, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}
