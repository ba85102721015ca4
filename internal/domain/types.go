package domain

import "context"

// Document represents a single text file loaded into the system.
type Document struct {
	Path  string
	Lines []string
	Text  string
}

// Chunk is a word window of one document section, sized for embedding.
// Line numbers are 1-indexed and inclusive.
type Chunk struct {
	Text      string
	StartLine int
	EndLine   int
}

// ChunkRecord is the persisted metadata joined to a vector by its ordinal.
type ChunkRecord struct {
	Ordinal   int    `json:"ordinal"`
	DocPath   string `json:"doc_path"`
	Text      string `json:"chunk"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Hit is a single index search result.
type Hit struct {
	Ordinal int
	Score   float32
}

// Candidate is a retrieved chunk moving through re-ranking and fusion.
type Candidate struct {
	Ordinal     int
	IndexScore  float64
	Record      ChunkRecord
	RerankScore float64
	RerankProb  float64
}

// Embedder maps texts to L2-normalized vectors of a fixed dimension.
// A batch either succeeds as a whole or fails.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Searcher returns the nearest ordinals for a query vector, best first.
type Searcher interface {
	Search(ctx context.Context, query []float32, topK int) ([]Hit, error)
}

// Reranker scores (query, text) pairs. One logit per text, same order,
// higher is more relevant.
type Reranker interface {
	ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error)
}
