// Package config loads the murajaa configuration: a YAML file with
// defaults for every field and environment-variable overrides for secrets
// and deployment paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all murajaa configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Selector  SelectorConfig  `yaml:"selector"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	LLM       LLMConfig       `yaml:"llm"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
	// FunctionWordsPath optionally replaces the embedded function-word list.
	FunctionWordsPath string `yaml:"function_words_path"`
}

// SchedulerConfig configures review scheduling.
type SchedulerConfig struct {
	// TargetRetention is the desired recall probability at review time.
	TargetRetention float64 `yaml:"target_retention"`
	// KnownStabilityDays is the stability at which a word counts as known.
	KnownStabilityDays float64 `yaml:"known_stability_days"`
}

// SelectorConfig configures session assembly.
type SelectorConfig struct {
	SessionLimit int `yaml:"session_limit"`
}

// PipelineConfig configures the background material pipeline.
type PipelineConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Interval      string `yaml:"interval"`
	MinSentences  int    `yaml:"min_sentences"`
	PipelineCap   int    `yaml:"pipeline_cap"`
	MinShown      int    `yaml:"min_shown"`
	Workers       int    `yaml:"workers"`
	MaxRetries    int    `yaml:"max_retries"`
	CandidatesPer int    `yaml:"candidates_per_request"`
}

// LLMConfig configures the provider chain. Providers are tried in the
// listed order; the first success wins.
type LLMConfig struct {
	// Providers is the fallback order: anthropic, openai, gemini.
	Providers []string `yaml:"providers"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIModel     string `yaml:"openai_model"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	GeminiModel     string `yaml:"gemini_model"`

	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"anthropic", "openai", "gemini"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8974",
			ReadTimeout:     "15s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "10s",
		},
		Database: DatabaseConfig{
			Path: "data/murajaa.db",
		},
		Scheduler: SchedulerConfig{
			TargetRetention:    0.9,
			KnownStabilityDays: 21,
		},
		Selector: SelectorConfig{
			SessionLimit: 10,
		},
		Pipeline: PipelineConfig{
			Enabled:       true,
			Interval:      "30m",
			MinSentences:  2,
			PipelineCap:   300,
			MinShown:      3,
			Workers:       2,
			MaxRetries:    3,
			CandidatesPer: 4,
		},
		LLM: LLMConfig{
			Providers:      []string{"anthropic", "openai", "gemini"},
			AnthropicModel: "claude-sonnet-4-5",
			OpenAIModel:    "gpt-4o",
			GeminiModel:    "gemini-2.5-flash",
			Timeout:        "120s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults; environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. Secrets come
// from the environment in preference to the file.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.AnthropicAPIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.OpenAIAPIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.GeminiAPIKey = key
	}
	if path := os.Getenv("MURAJAA_DB"); path != "" {
		c.Database.Path = path
	}
	if addr := os.Getenv("MURAJAA_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}

// Validate checks the configuration for unusable values. An empty provider
// chain is allowed: the pipeline just stays idle.
func (c *Config) Validate() error {
	for _, p := range c.LLM.Providers {
		valid := false
		for _, v := range ValidProviders {
			if p == v {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid LLM provider: %s (valid: %v)", p, ValidProviders)
		}
	}
	if c.Scheduler.TargetRetention <= 0 || c.Scheduler.TargetRetention >= 1 {
		return fmt.Errorf("target retention must be in (0, 1), got %v", c.Scheduler.TargetRetention)
	}
	if c.Pipeline.PipelineCap <= 0 {
		return fmt.Errorf("pipeline cap must be positive, got %d", c.Pipeline.PipelineCap)
	}
	return nil
}

// ConfiguredKey returns the API key for a provider name, empty when unset.
func (c *LLMConfig) ConfiguredKey(provider string) string {
	switch provider {
	case "anthropic":
		return c.AnthropicAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "gemini":
		return c.GeminiAPIKey
	}
	return ""
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetPipelineInterval returns the pipeline interval as a duration.
func (c *Config) GetPipelineInterval() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.Interval)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// GetReadTimeout returns the server read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ReadTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// GetWriteTimeout returns the server write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.WriteTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetShutdownTimeout returns the graceful shutdown window as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
