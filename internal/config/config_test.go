package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
embedding:
  base_url: "http://localhost:9000/v1/embeddings"
  model: "all-MiniLM-L6-v2"
  dimensions: 384
tagger:
  server_url: "http://localhost:6969/predict"
scoring:
  aggregation: normalized_average
  gpa_policy: banded
  weights:
    skills: 25
    experience: 20
server:
  address: ":9090"
  api_keys: ["test-key"]
redis:
  address: "localhost:6379"
extractor:
  legacy_compat: true
  memoize_ttl_hours: 24
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000/v1/embeddings", cfg.Embedding.BaseURL)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, "normalized_average", cfg.Scoring.Aggregation)
	assert.Equal(t, 25.0, cfg.Scoring.Weights["skills"])
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.True(t, cfg.Extractor.LegacyCompat)
	assert.Equal(t, 24, cfg.Extractor.MemoizeTTLHours)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t, "logger:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 8, cfg.Server.MaxBatchWorkers)
	assert.Equal(t, "weighted_sum", cfg.Scoring.Aggregation)
	assert.Equal(t, "vi", cfg.Translator.FromLang)
	assert.Equal(t, "en", cfg.Translator.ToLang)
	assert.Equal(t, 30, cfg.Embedding.TimeoutSeconds)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("EMBEDDING_API_KEY", "sk-from-env")
	t.Setenv("AZURE_TRANSLATOR_KEY", "azure-from-env")

	cfg, err := LoadConfig(writeTempConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Embedding.APIKey)
	assert.Equal(t, "azure-from-env", cfg.Translator.Key)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig(writeTempConfig(t, "scoring: [not a map"))
	assert.Error(t, err)
}
