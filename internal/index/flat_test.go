package index

import (
	"context"
	"errors"
	"testing"

	"docsearch/internal/domain"
)

func TestBuildEmpty(t *testing.T) {
	if _, err := Build(nil); !errors.Is(err, domain.ErrEmptyCorpus) {
		t.Fatalf("expected ErrEmptyCorpus, got %v", err)
	}
}

func TestBuildDimensionMismatch(t *testing.T) {
	_, err := Build([][]float32{{1, 0}, {1, 0, 0}})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSearchOrderAndTruncation(t *testing.T) {
	f, err := Build([][]float32{
		{0.1, 0},
		{0.9, 0},
		{0.5, 0},
		{0.7, 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	hits, err := f.Search(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{1, 3, 2}
	if len(hits) != len(want) {
		t.Fatalf("expected %d hits, got %d", len(want), len(hits))
	}
	for i, h := range hits {
		if h.Ordinal != want[i] {
			t.Errorf("hit %d: ordinal %d, want %d", i, h.Ordinal, want[i])
		}
		if i > 0 && h.Score > hits[i-1].Score {
			t.Errorf("hits not descending at %d", i)
		}
	}
}

func TestSearchTopKLargerThanIndex(t *testing.T) {
	f, _ := Build([][]float32{{1}, {2}})
	hits, err := f.Search(context.Background(), []float32{1}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	for _, h := range hits {
		if h.Ordinal == NotFound {
			t.Fatal("sentinel leaked into results")
		}
	}
}

func TestSearchTiesKeepOrdinalOrder(t *testing.T) {
	f, _ := Build([][]float32{{1}, {1}, {1}, {1}})
	hits, _ := f.Search(context.Background(), []float32{1}, 2)
	if len(hits) != 2 || hits[0].Ordinal != 0 || hits[1].Ordinal != 1 {
		t.Fatalf("expected ordinals [0 1], got %+v", hits)
	}
}

func TestSearchQueryDimension(t *testing.T) {
	f, _ := Build([][]float32{{1, 0}})
	if _, err := f.Search(context.Background(), []float32{1}, 1); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSearchNonPositiveTopK(t *testing.T) {
	f, _ := Build([][]float32{{1}})
	hits, err := f.Search(context.Background(), []float32{1}, 0)
	if err != nil || len(hits) != 0 {
		t.Fatalf("expected no hits, got %v %v", hits, err)
	}
}

func TestFound(t *testing.T) {
	in := []domain.Hit{{Ordinal: 3}, {Ordinal: NotFound}, {Ordinal: 1}}
	out := Found(in)
	if len(out) != 2 || out[0].Ordinal != 3 || out[1].Ordinal != 1 {
		t.Fatalf("unexpected %+v", out)
	}
}
