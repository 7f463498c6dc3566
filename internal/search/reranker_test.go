package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpReranker_PreservesOrder(t *testing.T) {
	r := &NoOpReranker{}

	results, err := r.Rerank(context.Background(), "query", []string{"a", "b", "c"}, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, res := range results {
		assert.Equal(t, i, res.Index)
		if i > 0 {
			assert.Less(t, res.Score, results[i-1].Score)
		}
	}
}

func TestNoOpReranker_TopK(t *testing.T) {
	r := &NoOpReranker{}

	results, err := r.Rerank(context.Background(), "query", []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

// fakeRerankServer mimics the cross-encoder HTTP API. It scores documents
// by reversing their input order so reordering is observable.
func fakeRerankServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/rerank":
			var req rerankRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			resp := rerankResponse{Model: req.Model}
			n := len(req.Documents)
			for i := n - 1; i >= 0; i-- {
				resp.Results = append(resp.Results, struct {
					Index int     `json:"index"`
					Score float64 `json:"score"`
				}{Index: i, Score: float64(n-i) / float64(n)})
			}
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestCrossEncoderReranker_Rerank(t *testing.T) {
	srv := fakeRerankServer(t)
	defer srv.Close()

	r, err := NewCrossEncoderReranker(context.Background(), CrossEncoderConfig{
		Endpoint: srv.URL,
	})
	require.NoError(t, err)
	defer r.Close()

	results, err := r.Rerank(context.Background(), "protein folding", []string{"doc-a", "doc-b", "doc-c"}, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Server reverses the order: last document scores highest.
	assert.Equal(t, 2, results[0].Index)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, 0, results[2].Index)
}

func TestCrossEncoderReranker_EmptyDocuments(t *testing.T) {
	r, err := NewCrossEncoderReranker(context.Background(), CrossEncoderConfig{
		Endpoint:        "http://localhost:1",
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer r.Close()

	results, err := r.Rerank(context.Background(), "query", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCrossEncoderReranker_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r, err := NewCrossEncoderReranker(context.Background(), CrossEncoderConfig{
		Endpoint:        srv.URL,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Rerank(context.Background(), "query", []string{"doc"}, 0)
	assert.Error(t, err)
	assert.False(t, r.Available(context.Background()))
}

func TestCrossEncoderReranker_HealthCheckFailure(t *testing.T) {
	_, err := NewCrossEncoderReranker(context.Background(), CrossEncoderConfig{
		Endpoint: "http://localhost:1",
	})
	assert.Error(t, err)
}

func TestCrossEncoderReranker_ClosedRejectsCalls(t *testing.T) {
	r, err := NewCrossEncoderReranker(context.Background(), CrossEncoderConfig{
		Endpoint:        "http://localhost:1",
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Rerank(context.Background(), "query", []string{"doc"}, 0)
	assert.Error(t, err)
	assert.False(t, r.Available(context.Background()))
	assert.NoError(t, r.Close())
}

func TestCrossEncoderReranker_RejectsOutOfRangeIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"index":5,"score":0.9}]}`))
	}))
	defer srv.Close()

	r, err := NewCrossEncoderReranker(context.Background(), CrossEncoderConfig{
		Endpoint:        srv.URL,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Rerank(context.Background(), "query", []string{"doc"}, 0)
	assert.ErrorContains(t, err, "references document")
}
