package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadFromAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "test")
	writeConfig(t, dir, "config.yaml", "app:\n  name: kb\n")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "kb", cfg.App.Name)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 3, cfg.RAG.HistoryTurns)
	assert.Equal(t, "general", cfg.RAG.DefaultCategory)
	assert.Equal(t, "learn44_documents", cfg.Vector.Collection)
	assert.Equal(t, VectorBackendEmbedded, cfg.Vector.Backend)
	assert.Equal(t, EmbeddingProviderAuto, cfg.Embedding.Provider)
	assert.Equal(t, time.Hour, cfg.Ephemeral.TTL)
	assert.Equal(t, int64(50<<20), cfg.Ephemeral.MaxFileBytes())
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.HTTP.Addr())
}

func TestLoadFromMergesEnvFileAndPlaceholders(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "staging")
	t.Setenv("KB_TEST_TOPK", "9")
	writeConfig(t, dir, "config.yaml", "rag:\n  top_k: ${KB_TEST_TOPK:5}\n  chunk_size: 800\n")
	writeConfig(t, dir, "config.staging.yaml", "rag:\n  chunk_overlap: 100\nvector:\n  backend: milvus\n")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.RAG.TopK)
	assert.Equal(t, 800, cfg.RAG.ChunkSize)
	assert.Equal(t, 100, cfg.RAG.ChunkOverlap)
	assert.Equal(t, VectorBackendMilvus, cfg.Vector.Backend)
}

func TestLoadFromRejectsBadSettings(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "test")
	writeConfig(t, dir, "config.yaml", "rag:\n  chunk_size: 100\n  chunk_overlap: 100\n")

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
}

func TestLoadFromMissingBaseFile(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	require.Error(t, err)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("KB_SET", "value")
	os.Unsetenv("KB_UNSET")

	assert.Equal(t, "a=value", expandEnv("a=${KB_SET}"))
	assert.Equal(t, "a=fallback", expandEnv("a=${KB_UNSET:fallback}"))
	assert.Equal(t, "a=", expandEnv("a=${KB_UNSET:}"))
	assert.Equal(t, "a=${KB_UNSET}", expandEnv("a=${KB_UNSET}"))
}
