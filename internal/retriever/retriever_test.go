package retriever

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"docsearch/internal/domain"
)

type fakeSearcher struct {
	hits []domain.Hit
	err  error
}

func (f fakeSearcher) Search(context.Context, []float32, int) ([]domain.Hit, error) {
	return f.hits, f.err
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRetrieveJoinsRecords(t *testing.T) {
	recs := map[int]domain.ChunkRecord{
		0: {Ordinal: 0, DocPath: "a.md", Text: "alpha"},
		2: {Ordinal: 2, DocPath: "b.md", Text: "gamma"},
	}
	s := fakeSearcher{hits: []domain.Hit{{Ordinal: 2, Score: 0.9}, {Ordinal: 7, Score: 0.4}, {Ordinal: 0, Score: 0.1}}}
	got, err := New(s, recs, quiet()).Retrieve(context.Background(), []float32{1}, 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].Record.DocPath != "b.md" || got[2].Record.DocPath != "a.md" {
		t.Errorf("records joined out of order: %+v", got)
	}
	if got[1].Record.DocPath != "" || got[1].Record.Text != "" || got[1].Ordinal != 7 {
		t.Errorf("missing ordinal should carry an empty record, got %+v", got[1])
	}
	if got[0].IndexScore < 0.89 || got[0].IndexScore > 0.91 {
		t.Errorf("unexpected index score %f", got[0].IndexScore)
	}
}

func TestRetrieveSearchError(t *testing.T) {
	boom := errors.New("boom")
	_, err := New(fakeSearcher{err: boom}, nil, quiet()).Retrieve(context.Background(), nil, 1)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
