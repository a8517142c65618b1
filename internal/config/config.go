package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cleansynth/internal/logging"
)

// Config holds all cleansynth configuration.
type Config struct {
	// LLM backend used by every collaborator
	LLM LLMConfig `yaml:"llm"`

	// Rule-application behavior
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Persisted artifacts
	Output OutputConfig `yaml:"output"`

	// Run ledger
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging logging.Config `yaml:"logging"`
}


// PipelineConfig configures the state machine and the synthesis loop.
type PipelineConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	SampleRows  int    `yaml:"sample_rows"`
	EntryPoint  string `yaml:"entry_point"`
	SplitMode   string `yaml:"split_mode"` // llm, paragraph
}

// OutputConfig configures the artifact sink.
type OutputConfig struct {
	Dir          string `yaml:"dir"`
	StepCSV      bool   `yaml:"step_csv"`
	RuleLogs     bool   `yaml:"rule_logs"`
	ResultsFile  string `yaml:"results_file"`
	CleanedFile  string `yaml:"cleaned_file"`
	PrintSummary bool   `yaml:"print_summary"`
}

// StoreConfig configures the SQLite run ledger.
type StoreConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

var ValidProviders = []string{"gemini", "openai"}

// ValidSplitModes lists the supported rule segmentation strategies.
var ValidSplitModes = []string{"llm", "paragraph"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          "gemini",
			Model:             "gemini-2.5-pro",
			Location:          "us-central1",
			Temperature:       0,
			Timeout:           "5m",
			MaxRetries:        7,
			BaseBackoff:       "1s",
			RequestsPerSecond: 10,
		},
		Pipeline: PipelineConfig{
			MaxAttempts: 3,
			SampleRows:  3,
			EntryPoint:  "ApplyRule",
			SplitMode:   "llm",
		},
		Output: OutputConfig{
			Dir:          "output",
			StepCSV:      true,
			RuleLogs:     true,
			ResultsFile:  "results.json",
			CleanedFile:  "cleaned_output.csv",
			PrintSummary: true,
		},
		Store: StoreConfig{
			Enabled:      true,
			DatabasePath: filepath.Join("output", "cleansynth.db"),
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file, then applies .env and environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
			logging.BootDebug("config %s not found, using defaults", path)
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// .env is optional; variables already in the environment win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logging.BootDebug("could not load .env: %v", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (c *Config) applyEnvOverrides() {
	// API keys select the provider when set (later wins)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if project := os.Getenv("GOOGLE_CLOUD_PROJECT"); project != "" {
		c.LLM.Project = project
		if c.LLM.APIKey == "" {
			c.LLM.Vertex = true
		}
	}
	if location := os.Getenv("GOOGLE_CLOUD_LOCATION"); location != "" {
		c.LLM.Location = location
	}
	if model := os.Getenv("CLEANSYNTH_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if retries := os.Getenv("CLEANSYNTH_MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil && n >= 0 {
			c.LLM.MaxRetries = n
		}
	}

	if path := os.Getenv("CLEANSYNTH_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if dir := os.Getenv("CLEANSYNTH_OUTPUT_DIR"); dir != "" {
		c.Output.Dir = dir
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}


// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid llm provider %q (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if c.Pipeline.EntryPoint == "" {
		return fmt.Errorf("pipeline entry_point is required")
	}
	if !contains(ValidSplitModes, c.Pipeline.SplitMode) {
		return fmt.Errorf("invalid split_mode %q (valid: %v)", c.Pipeline.SplitMode, ValidSplitModes)
	}
	if err := c.validateLimits(); err != nil {
		return err
	}
	if c.Store.Enabled && c.Store.DatabasePath == "" {
		return fmt.Errorf("store database_path is required when the store is enabled")
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
