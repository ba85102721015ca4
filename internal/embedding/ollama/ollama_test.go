package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/v1", Model: "test", BatchSize: 2})
}

func TestEmbedBatch(t *testing.T) {
	var requests int
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		out := embedResponse{}
		for range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{0, 2, 0})
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 || requests != 2 {
		t.Fatalf("expected 3 vectors over 2 requests, got %d over %d", len(vecs), requests)
	}
	if vecs[2][1] != 1 {
		t.Errorf("expected normalized vector, got %v", vecs[2])
	}
	if c.Dimension() != 3 {
		t.Errorf("expected dimension 3, got %d", c.Dimension())
	}
}

func TestEmbedStatusError(t *testing.T) {
	var requests int
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "model not found", http.StatusNotFound)
	})
	if _, err := c.Embed(context.Background(), "q"); err == nil {
		t.Fatal("expected error")
	}
	if requests != 1 {
		t.Errorf("client errors must not be retried, got %d requests", requests)
	}
}

func TestEmbedRetriesUnavailable(t *testing.T) {
	var requests int
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0, 5}}})
	})
	v, err := c.Embed(context.Background(), "q")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if requests != 3 || v[1] != 1 {
		t.Errorf("expected success on third request, got %d requests, vector %v", requests, v)
	}
}

func TestEmbedGivesUpAfterMaxRetries(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Config{BaseURL: srv.URL, MaxRetries: 1})
	if _, err := c.Embed(context.Background(), "q"); err == nil {
		t.Fatal("expected error")
	}
	if requests != 2 {
		t.Errorf("expected 2 requests, got %d", requests)
	}
}

func TestIsHealthy(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	})
	if !c.IsHealthy(context.Background()) {
		t.Error("expected reachable server to be healthy")
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	if NewClient(Config{BaseURL: srv.URL}).IsHealthy(context.Background()) {
		t.Error("expected closed server to be unhealthy")
	}
}

func TestEmbedRejectsZeroVector(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0, 0}}})
	})
	if _, err := c.Embed(context.Background(), "q"); err == nil {
		t.Fatal("expected zero vector to fail")
	}
}
