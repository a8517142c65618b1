package llm

import (
	"context"
	"fmt"

	"cleansynth/internal/config"
	"cleansynth/internal/logging"
)

// NewFromConfig builds the configured provider wrapped in a RetryingClient.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Client, error) {
	if err := cfg.RequiresCredentials(); err != nil {
		return nil, err
	}

	var (
		inner Client
		err   error
	)
	switch cfg.LLM.Provider {
	case "gemini":
		inner, err = NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Vertex:      cfg.LLM.Vertex,
			Project:     cfg.LLM.Project,
			Location:    cfg.LLM.Location,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.GetLLMTimeout(),
		})
	case "openai":
		inner, err = NewOpenAIClient(OpenAIConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.GetLLMTimeout(),
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLM.Provider)
	}
	if err != nil {
		return nil, err
	}

	logging.LLM("using %s model %s (max_retries=%d, rps=%.1f)", cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.MaxRetries, cfg.LLM.RequestsPerSecond)
	return NewRetryingClient(inner, RetryConfig{
		MaxRetries:        cfg.LLM.MaxRetries,
		BaseBackoff:       cfg.GetBaseBackoff(),
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	}), nil
}
