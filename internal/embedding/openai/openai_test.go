package openai

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type embeddingsReq struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func fakeServer(t *testing.T, failFirst int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if n <= failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"busy","type":"server_error"}}`))
			return
		}
		var req embeddingsReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		// Reverse order on the wire to check index placement.
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = item{Object: "embedding", Embedding: []float32{3, float32(j + 1)}, Index: j}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(t *testing.T, url string, batch int) *Client {
	t.Helper()
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	c, err := NewClient(Config{BaseURL: url + "/v1", APIKeyEnv: "TEST_OPENAI_KEY", Model: "m", BatchSize: batch})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientMissingKey(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "")
	if _, err := NewClient(Config{APIKeyEnv: "TEST_OPENAI_KEY"}); err == nil {
		t.Fatal("expected error when key is missing")
	}
}

func TestEmbedBatchKeepsOrderAndNormalizes(t *testing.T) {
	srv, calls := fakeServer(t, 0)
	c := newTestClient(t, srv.URL, 2)

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 requests for batch size 2, got %d", calls.Load())
	}
	// Within each request, position j got second component j+1.
	want := []float32{1, 2, 1}
	for i, v := range vecs {
		n := math.Sqrt(float64(v[0]*v[0] + v[1]*v[1]))
		if math.Abs(n-1) > 1e-5 {
			t.Errorf("vector %d not normalized: %f", i, n)
		}
		ratio := v[1] / v[0]
		if math.Abs(float64(ratio-want[i]/3)) > 1e-5 {
			t.Errorf("vector %d out of order: %v", i, v)
		}
	}
	if c.Dimension() != 2 {
		t.Errorf("expected dimension 2, got %d", c.Dimension())
	}
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	srv, calls := fakeServer(t, 1)
	c := newTestClient(t, srv.URL, 0)
	if _, err := c.Embed(context.Background(), "query"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected one retry, got %d calls", calls.Load())
	}
}
