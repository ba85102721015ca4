// Package output renders query and build results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"docsearch/internal/service"
)

// Debug writes the raw index hits captured before scoring.
func Debug(w io.Writer, hits []service.DebugHit) {
	if len(hits) == 0 {
		return
	}
	fmt.Fprintln(w, "\nTop index hits (raw):")
	for i, h := range hits {
		fmt.Fprintf(w, "%d. %s  score=%.4f\n", i+1, h.DocPath, h.Score)
	}
}

// Summary writes the human-readable score list.
func Summary(w io.Writer, resp *service.QueryResponse) {
	fmt.Fprintf(w, "\nTop %d Scores:\n", len(resp.Results))
	for i, r := range resp.Results {
		fmt.Fprintf(w, "%d. index_score=%.6f, rerank_score=%.6f, rerank_prob=%.6f, file=%s\n",
			i+1, r.IndexScore, r.RerankScore, r.RerankProb, r.DocPath)
	}
}

// JSON writes the result envelope, indented.
func JSON(w io.Writer, resp *service.QueryResponse) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

// Build writes the build summary.
func Build(w io.Writer, r *service.BuildReport) {
	fmt.Fprintf(w, "Documents: %d\n", r.Documents)
	fmt.Fprintf(w, "Total chunks: %d\n", r.Chunks)
	fmt.Fprintf(w, "Index written to %s (dimension %d, embedder %s)\n", r.Dir, r.Meta.Dimension, r.Meta.Embedder)
}
