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
)

func TestAzureTranslatorTranslate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate", r.URL.Path)
		assert.Equal(t, "3.0", r.URL.Query().Get("api-version"))
		assert.Equal(t, "vi", r.URL.Query().Get("from"))
		assert.Equal(t, "en", r.URL.Query().Get("to"))
		assert.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "southeastasia", r.Header.Get("Ocp-Apim-Subscription-Region"))

		var body []map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body, 1)

		json.NewEncoder(w).Encode([]translateResult{
			{Translations: []struct {
				Text string `json:"text"`
				To   string `json:"to"`
			}{{Text: "Software Engineer", To: "en"}}},
		})
	}))
	defer server.Close()

	translator := NewAzureTranslator(config.TranslatorConfig{
		Endpoint: server.URL,
		Key:      "test-key",
		Region:   "southeastasia",
	})
	require.NotNil(t, translator)

	result := translator.Translate(context.Background(), "Kỹ sư phần mềm")
	assert.Equal(t, "Software Engineer", result)
}

func TestAzureTranslatorSkipsASCII(t *testing.T) {
	translator := NewAzureTranslator(config.TranslatorConfig{
		Endpoint: "http://localhost:1", // 不可达，命中则会失败
		Key:      "test-key",
	})
	require.NotNil(t, translator)

	result := translator.Translate(context.Background(), "Senior Java Developer with 5 years")
	assert.Equal(t, "Senior Java Developer with 5 years", result)
}

func TestAzureTranslatorBestEffortOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	translator := NewAzureTranslator(config.TranslatorConfig{
		Endpoint: server.URL,
		Key:      "bad-key",
	})

	original := "Kỹ sư phần mềm"
	result := translator.Translate(context.Background(), original)
	assert.Equal(t, original, result)
}

func TestNewAzureTranslatorDisabledWithoutKey(t *testing.T) {
	translator := NewAzureTranslator(config.TranslatorConfig{Endpoint: "https://api.example.com"})
	assert.Nil(t, translator)

	// nil接收者安全，直接透传原文
	result := translator.Translate(context.Background(), "xin chào")
	assert.Equal(t, "xin chào", result)
}
