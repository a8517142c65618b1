package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_LLM(t *testing.T) {
	t.Run("OPENAI_API_KEY selects openai", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "oa-key")

		cfg := &Config{LLM: LLMConfig{Provider: "gemini"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "oa-key", cfg.LLM.APIKey)
		assert.Equal(t, "openai", cfg.LLM.Provider)
	})

	t.Run("Precedence: GEMINI overrides OPENAI", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("GEMINI_API_KEY", "gm-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gm-key", cfg.LLM.APIKey)
		assert.Equal(t, "gemini", cfg.LLM.Provider)
	})

	t.Run("GOOGLE_CLOUD_PROJECT enables vertex without a key", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GOOGLE_CLOUD_PROJECT", "proj")
		t.Setenv("GOOGLE_CLOUD_LOCATION", "europe-west4")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.True(t, cfg.LLM.Vertex)
		assert.Equal(t, "proj", cfg.LLM.Project)
		assert.Equal(t, "europe-west4", cfg.LLM.Location)
	})

	t.Run("GOOGLE_CLOUD_PROJECT keeps key auth when a key is set", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "gm-key")
		t.Setenv("GOOGLE_CLOUD_PROJECT", "proj")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.False(t, cfg.LLM.Vertex)
	})

	t.Run("model and retries", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CLEANSYNTH_MODEL", "gemini-2.5-flash")
		t.Setenv("CLEANSYNTH_MAX_RETRIES", "2")

		cfg := &Config{LLM: LLMConfig{MaxRetries: 7}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
		assert.Equal(t, 2, cfg.LLM.MaxRetries)
	})

	t.Run("invalid retries ignored", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CLEANSYNTH_MAX_RETRIES", "many")

		cfg := &Config{LLM: LLMConfig{MaxRetries: 7}}
		cfg.applyEnvOverrides()

		assert.Equal(t, 7, cfg.LLM.MaxRetries)
	})
}

func TestEnvOverrides_Paths(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLEANSYNTH_DB", "/tmp/ledger.db")
	t.Setenv("CLEANSYNTH_OUTPUT_DIR", "/tmp/out")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "/tmp/ledger.db", cfg.Store.DatabasePath)
	assert.Equal(t, "/tmp/out", cfg.Output.Dir)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
