package hashing

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"docsearch/internal/embedding"
)

// DefaultDimension is used when no dimension is configured.
const DefaultDimension = 512

// Embedder is a stateless feature-hashing vectorizer. Tokens are hashed into
// a fixed number of signed buckets with sublinear term frequency, so the
// same text always maps to the same vector without a fitted vocabulary.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates a hashing embedder producing vectors of the given size.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hashing" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes the hashed embedding for the given text.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := e.tokenize(text)
	if len(tokens) == 0 {
		// Nothing but stopwords or symbols: fall back to raw fields.
		tokens = strings.Fields(strings.ToLower(text))
	}
	if len(tokens) == 0 {
		return nil, errors.New("hashing: no tokens in text")
	}
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	vec := make([]float32, e.dimension)
	for tok, count := range tf {
		idx, sign := e.bucket(tok)
		vec[idx] += sign * float32(1+math.Log(float64(count)))
	}
	if err := embedding.Normalize(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch embeds every text; one bad text fails the batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *Embedder) bucket(token string) (int, float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	sum := h.Sum64()
	sign := float32(1)
	if sum>>63 == 1 {
		sign = -1
	}
	return int(sum % uint64(e.dimension)), sign
}

func (e *Embedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
