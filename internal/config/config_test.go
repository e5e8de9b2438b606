package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "data/murajaa.db", cfg.Database.Path)
	assert.Equal(t, 300, cfg.Pipeline.PipelineCap)
	assert.Equal(t, 0.9, cfg.Scheduler.TargetRetention)
	assert.Equal(t, []string{"anthropic", "openai", "gemini"}, cfg.LLM.Providers)
	require.NoError(t, cfg.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("MURAJAA_DB", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.LLM.Providers = []string{"openai"}
	cfg.LLM.OpenAIAPIKey = "sk-test"
	cfg.Pipeline.PipelineCap = 150
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"openai"}, loaded.LLM.Providers)
	assert.Equal(t, "sk-test", loaded.LLM.OpenAIAPIKey)
	assert.Equal(t, 150, loaded.Pipeline.PipelineCap)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("MURAJAA_DB", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("MURAJAA_DB", "/tmp/other.db")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	assert.Equal(t, "env-key", cfg.LLM.AnthropicAPIKey)
	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.Equal(t, "env-key", cfg.LLM.ConfiguredKey("anthropic"))
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Providers = []string{"anthropic", "mystery"}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadRetention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scheduler.TargetRetention = 1.2
	require.Error(t, cfg.Validate())
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Timeout = "garbage"
	cfg.Pipeline.Interval = ""
	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())
	assert.Equal(t, 30*time.Minute, cfg.GetPipelineInterval())
	assert.Equal(t, 15*time.Second, cfg.GetReadTimeout())
}
