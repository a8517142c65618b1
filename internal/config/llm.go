package config

import (
	"fmt"
	"time"
)

// LLMConfig configures the text-generation backend.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // gemini, openai
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Vertex      bool    `yaml:"vertex"` // gemini via Vertex AI instead of an API key
	Project     string  `yaml:"project"`
	Location    string  `yaml:"location"`
	Temperature float32 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`

	// Transient failure handling
	MaxRetries        int     `yaml:"max_retries"`
	BaseBackoff       string  `yaml:"base_backoff"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// ValidProviders lists the supported LLM backends.

// GetLLMTimeout returns the per-request timeout for LLM calls.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 5*time.Minute)
}

// GetBaseBackoff returns the first retry delay for transient LLM failures.
func (c *Config) GetBaseBackoff() time.Duration {
	return parseDuration(c.LLM.BaseBackoff, time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// RequiresCredentials reports whether the configured backend has what it needs
// to authenticate. Offline commands skip this check.
func (c *Config) RequiresCredentials() error {
	switch c.LLM.Provider {
	case "gemini":
		if c.LLM.APIKey == "" && !(c.LLM.Vertex && c.LLM.Project != "") {
			return fmt.Errorf("gemini needs GEMINI_API_KEY or vertex with GOOGLE_CLOUD_PROJECT")
		}
	case "openai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("openai needs OPENAI_API_KEY")
		}
	}
	return nil
}
