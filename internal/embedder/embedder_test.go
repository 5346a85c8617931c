package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeterministicEmbedder_ShapeCorrectForEmptyInput(t *testing.T) {
	e := NewDeterministic("det", 32, true)
	vecs, err := e.EmbedBatch(context.Background(), []string{"", "hello world"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	require.Len(t, vecs[0], 32)
	require.Len(t, vecs[1], 32)
}

func TestDeterministicEmbedder_DeterministicAcrossCalls(t *testing.T) {
	e := NewDeterministic("det", 16, false)
	v1, err := e.EmbedBatch(context.Background(), []string{"same text"})
	require.NoError(t, err)
	v2, err := e.EmbedBatch(context.Background(), []string{"same text"})
	require.NoError(t, err)
	require.Equal(t, v1, v2)
}

func TestClientEmbedder_CallsConfiguredEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embeddingResponse{
			Data: []struct {
				Embedding []float32 `json:"embedding"`
			}{{Embedding: []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	e := NewClient(Config{Model: "test-model", Endpoint: srv.URL, Dimension: 3})
	vecs, err := e.EmbedBatch(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vecs[0])
}

func TestPool_ReusesEngineForSameKey(t *testing.T) {
	constructed := 0
	pool := NewPool(func(cfg Config) Embedder {
		constructed++
		return NewDeterministic(cfg.Model, 8, false)
	})

	e1 := pool.Get(Config{Model: "m1"})
	e2 := pool.Get(Config{Model: "m1"})
	require.Same(t, e1, e2)
	require.Equal(t, 1, constructed)
}

func TestPool_DistinctConfigHashGetsDistinctEngine(t *testing.T) {
	pool := NewPool(func(cfg Config) Embedder {
		return NewDeterministic(cfg.Model, 8, false)
	})

	e1 := pool.Get(Config{Model: "m1", ConfigHash: "a"})
	e2 := pool.Get(Config{Model: "m1", ConfigHash: "b"})
	require.NotSame(t, e1, e2)
}

func TestPoolKey_FormatMatchesSpec(t *testing.T) {
	require.Equal(t, "embedding_model:m1:default", poolKey(Config{Model: "m1"}))
	require.Equal(t, "embedding_model:m1:abc123", poolKey(Config{Model: "m1", ConfigHash: "abc123"}))
}
