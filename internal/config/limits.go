package config

import "fmt"

// validateLimits checks the numeric bounds of the pipeline and LLM sections.
func (c *Config) validateLimits() error {
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline max_attempts must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.SampleRows < 0 {
		return fmt.Errorf("pipeline sample_rows must not be negative, got %d", c.Pipeline.SampleRows)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm max_retries must not be negative")
	}
	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("llm requests_per_second must not be negative")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be within [0, 2], got %v", c.LLM.Temperature)
	}
	return nil
}
