package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, envs := range envAliases {
		for _, env := range envs {
			if _, ok := os.LookupEnv(env); ok {
				t.Setenv(env, "")
				os.Unsetenv(env)
			}
		}
	}
}

func TestLoadFileDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 0.5, cfg.Locate.Threshold)
	assert.Equal(t, 5, cfg.Locate.TopK)
	assert.Equal(t, 3, cfg.Decompose.Clusters)
	assert.Equal(t, 1, cfg.Cache.Capacity)
	assert.Equal(t, "deepseek-chat", cfg.LLM.Model)
	assert.Equal(t, cfg.LLM.Model, cfg.LLM.SummaryModel)
	assert.Equal(t, 3001, cfg.Port)
	assert.False(t, cfg.Qdrant.Enabled)
}

func TestLoadFileFlatKeys(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"OPENAI_API_KEY": "file-key",
		"openai_model": "gpt-4o-mini",
		"qdrant_url": "http://qdrant:6334"
	}`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "http://qdrant:6334", cfg.Qdrant.URL)
}

func TestLoadFileEnvWins(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"OPENAI_API_KEY": "file-key", "FEATLOC_TOP_K": 9}`), 0o644))
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("OPENAI_SUMMARY_MODEL", "summary-model")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.OpenAI.APIKey)
	assert.Equal(t, 9, cfg.Locate.TopK)
	assert.Equal(t, "summary-model", cfg.LLM.SummaryModel)
}

func TestLoadFileMalformed(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	base, err := LoadFile("")
	require.NoError(t, err)
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"provider":  func(c *Config) { c.Embedding.Provider = "local" },
		"threshold": func(c *Config) { c.Locate.Threshold = 1.5 },
		"top_k":     func(c *Config) { c.Locate.TopK = 0 },
		"clusters":  func(c *Config) { c.Decompose.Clusters = 0 },
		"depth":     func(c *Config) { c.Chains.MaxDepth = 0 },
		"per_root":  func(c *Config) { c.Chains.MaxPerRoot = -1 },
		"capacity":  func(c *Config) { c.Cache.Capacity = 0 },
		"batch":     func(c *Config) { c.Embedding.BatchSize = 0 },
	}
	for name, mutate := range cases {
		c := *base
		mutate(&c)
		assert.Error(t, c.Validate(), name)
	}
}
