package parser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cv-scoring-go/internal/config"
	"cv-scoring-go/internal/types"
)

func TestTaggerClientTag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resume_parsing", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req taggerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "John Doe Software Engineer", req.CV)

		conf := 0.98
		resp := taggerResponse{
			Status: "success",
			Tokens: []types.Token{
				{Text: "[CLS]", Tag: "X", Position: 0},
				{Text: "John", Tag: "B-Name", Position: 1, Confidence: &conf},
				{Text: "Doe", Tag: "L-Name", Position: 2},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewTaggerClient(config.TaggerConfig{ServerURL: server.URL})
	require.NoError(t, err)

	tokens, err := client.Tag(context.Background(), "John Doe Software Engineer")
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, "John", tokens[1].Text)
	assert.Equal(t, "B-Name", tokens[1].Tag)
	assert.Equal(t, 1, tokens[1].Position)
	require.NotNil(t, tokens[1].Confidence)
	assert.InDelta(t, 0.98, *tokens[1].Confidence, 1e-9)
}

func TestTaggerClientServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid input text"})
	}))
	defer server.Close()

	client, err := NewTaggerClient(config.TaggerConfig{ServerURL: server.URL})
	require.NoError(t, err)

	_, err = client.Tag(context.Background(), "something")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid input text")
}

func TestTaggerClientEmptyInput(t *testing.T) {
	client, err := NewTaggerClient(config.TaggerConfig{ServerURL: "http://localhost:6969"})
	require.NoError(t, err)

	_, err = client.Tag(context.Background(), "   ")
	assert.Error(t, err)
}

func TestTaggerClientUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(taggerResponse{Status: "partial"})
	}))
	defer server.Close()

	client, err := NewTaggerClient(config.TaggerConfig{ServerURL: server.URL})
	require.NoError(t, err)

	_, err = client.Tag(context.Background(), "resume text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "partial")
}
