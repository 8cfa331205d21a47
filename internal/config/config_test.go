package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "googleai", cfg.EmbedLLM.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.ChatLLM.Model)
	assert.Equal(t, 200, cfg.RAG.ChunkSize)
	assert.Equal(t, 100, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 10, cfg.RAG.TopK)
	assert.Equal(t, "chromem", cfg.VectorDB.Store)
	assert.Equal(t, "8000", cfg.Server.Port)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
vector_db:
  path: from_file
chat_llm:
  model: file-model
  temperature: 0.9
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	t.Setenv("VECTOR_DB_DIR", "from_env")
	t.Setenv("TEMPERATURE", "0.1")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from_env", cfg.VectorDB.Path)
	assert.Equal(t, "file-model", cfg.ChatLLM.Model)
	assert.InDelta(t, 0.1, cfg.ChatLLM.Temperature, 1e-9)
}

func TestLoadConfig_ProviderKeys(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GOOGLE_API_KEY", "g-test")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.ChatLLM.Key)
	assert.Equal(t, "g-test", cfg.EmbedLLM.Key)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rag: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_ExplicitZeroIsKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
rag:
  chunk_size: 500
  chunk_overlap: 0
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	t.Setenv("TEMPERATURE", "0")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Zero(t, cfg.ChatLLM.Temperature)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Zero(t, cfg.RAG.ChunkOverlap)
}

func TestLoadConfig_OverlapClampedBelowSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rag:\n  chunk_size: 50\n  chunk_overlap: 80\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.RAG.ChunkSize)
	assert.Equal(t, 25, cfg.RAG.ChunkOverlap)
}
