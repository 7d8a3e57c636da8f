package openai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)
	require.NoError(t, err)

	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.Dimension())
}

func TestNewEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := NewEmbedder("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestEmbedder_BatchEmbedOrdersByIndex(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.3, 0.4]},
				{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer srv.Close()

	embedder, err := NewEmbedder("test-key", WithEmbeddingBaseURL(srv.URL+"/"), WithEmbeddingDimension(2))
	require.NoError(t, err)

	vectors, err := embedder.BatchEmbed(t.Context(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.InDeltaSlice(t, []float32{0.1, 0.2}, vectors[0], 1e-6)
	assert.InDeltaSlice(t, []float32{0.3, 0.4}, vectors[1], 1e-6)
	assert.Equal(t, float64(2), got["dimensions"])
	assert.Equal(t, []any{"first", "second"}, got["input"])
}

func TestEmbedder_BatchEmbedValidatesInput(t *testing.T) {
	embedder, err := NewEmbedder("test-key")
	require.NoError(t, err)

	_, err = embedder.BatchEmbed(t.Context(), nil)
	require.Error(t, err)

	_, err = embedder.BatchEmbed(t.Context(), make([]string, MaxEmbeddingBatchSize+1))
	require.Error(t, err)
}
