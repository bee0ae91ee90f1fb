package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PINECONE_DEFAULT_API_KEY", "pc-default-key")
	t.Setenv("PINECONE_DEFAULT_HOST", "https://idx-1.svc.pinecone.io")
	t.Setenv("TURBOPUFFER_DEFAULT_API_KEY", "tpuf-key")
	t.Setenv("AZURE_SEARCH_ENDPOINT", "https://acct.search.windows.net")
	t.Setenv("AZURE_SEARCH_INDEX", "chunks")
	t.Setenv("AZURE_SEARCH_API_KEY", "az-key")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pc-default-key", cfg.Pinecone.DefaultAPIKey)
	assert.Equal(t, "https://idx-1.svc.pinecone.io", cfg.Pinecone.DefaultHost)
	assert.Equal(t, "tpuf-key", cfg.Turbopuffer.DefaultAPIKey)
	assert.Equal(t, "chunks", cfg.AzureSearch.Index)
	assert.Equal(t, "az-key", cfg.AzureSearch.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadWithFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
log:
  level: warn
  format: console
pinecone:
  default_api_key: file-key
  default_host: https://idx-file.svc.pinecone.io
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "file-key", cfg.Pinecone.DefaultAPIKey)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pinecone:\n  default_api_key: from-file\n"), 0o600))

	t.Setenv("PINECONE_DEFAULT_API_KEY", "from-env")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Pinecone.DefaultAPIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadWithFile("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidateRejectsBadHost(t *testing.T) {
	t.Setenv("PINECONE_DEFAULT_HOST", "idx-1.svc.pinecone.io")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pinecone.default_host")
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}
