package parser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cv-scoring-go/internal/config"
	"cv-scoring-go/internal/scorer"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) (*HTTPEmbedder, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	embedder, err := NewHTTPEmbedder(config.EmbeddingConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "text-embedding-v3",
		Dimensions: 3,
	})
	require.NoError(t, err)
	return embedder, server
}

func TestHTTPEmbedderSuccess(t *testing.T) {
	embedder, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-v3", req.Model)

		// 故意乱序返回，客户端必须按Index重排
		resp := embeddingResponse{
			Object: "list",
			Data: []embeddingDataEntry{
				{Object: "embedding", Embedding: []float64{0, 1, 0}, Index: 1},
				{Object: "embedding", Embedding: []float64{1, 0, 0}, Index: 0},
			},
			Usage: embeddingUsage{PromptTokens: 4, TotalTokens: 4},
		}
		json.NewEncoder(w).Encode(resp)
	})

	vectors, err := embedder.EmbedStrings(context.Background(), []string{"golang", "python"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{1, 0, 0}, vectors[0])
	assert.Equal(t, []float64{0, 1, 0}, vectors[1])
}

func TestHTTPEmbedderEmptyInput(t *testing.T) {
	embedder, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("空输入不应该发起HTTP请求")
	})

	vectors, err := embedder.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestHTTPEmbedderServerError(t *testing.T) {
	embedder, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"message": "backend down", "type": "server_error"})
	})

	_, err := embedder.EmbedStrings(context.Background(), []string{"golang"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, scorer.ErrProviderUnavailable))
}

func TestHTTPEmbedderCountMismatch(t *testing.T) {
	embedder, _ := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingResponse{
			Data: []embeddingDataEntry{
				{Embedding: []float64{1, 0, 0}, Index: 0},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})

	_, err := embedder.EmbedStrings(context.Background(), []string{"golang", "python"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "不匹配")
}

func TestNewHTTPEmbedderValidation(t *testing.T) {
	_, err := NewHTTPEmbedder(config.EmbeddingConfig{BaseURL: "http://localhost"})
	assert.Error(t, err)

	_, err = NewHTTPEmbedder(config.EmbeddingConfig{APIKey: "key"})
	assert.Error(t, err)
}
