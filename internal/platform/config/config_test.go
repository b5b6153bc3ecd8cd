package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CODEQA_STORAGE_ROOT", root)
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(filepath.Join(root, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Storage.Root)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 8000, cfg.Ingestion.MaxTokens)
	assert.Equal(t, "cl100k_base", cfg.Ingestion.TokenEncoding)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.LLMModel)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.ChatModel)
	assert.Equal(t, "off", cfg.Search.HyDEMode)
	assert.Equal(t, 5, cfg.Search.FetchLimit)
	assert.Equal(t, 3, cfg.Search.KeepLimit)
	assert.False(t, cfg.ChatEnabled())
}

func TestLoad_EnvFileOverrides(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "CODEQA_STORAGE_ROOT=" + dir + "\nCODEQA_VECTOR_BACKEND=postgres\nCODEQA_HYDE_MODE=two-pass\nCODEQA_MAX_TOKENS=not-a-number\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	// godotenv は既存の環境変数を上書きしないため、テスト中は空にしておく
	for _, key := range []string{"CODEQA_STORAGE_ROOT", "CODEQA_VECTOR_BACKEND", "CODEQA_HYDE_MODE", "CODEQA_MAX_TOKENS"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "two-pass", cfg.Search.HyDEMode)
	assert.Equal(t, 8000, cfg.Ingestion.MaxTokens) // 不正値はデフォルトにフォールバック
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("CODEQA_STORAGE_ROOT", t.TempDir())
	t.Setenv("CODEQA_VECTOR_BACKEND", "lancedb")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lancedb")
}

func TestLoad_RejectsKeepGreaterThanFetch(t *testing.T) {
	t.Setenv("CODEQA_STORAGE_ROOT", t.TempDir())
	t.Setenv("CODEQA_SEARCH_FETCH", "2")
	t.Setenv("CODEQA_SEARCH_KEEP", "3")

	_, err := Load("")
	require.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandHome("~/.codeqa/indices")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".codeqa", "indices"), got)

	got, err = expandHome("/var/lib/codeqa/")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/codeqa", got)
}
