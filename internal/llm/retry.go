package llm

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"cleansynth/internal/logging"
)

// RetryConfig controls RetryingClient.
type RetryConfig struct {
	MaxRetries        int
	BaseBackoff       time.Duration
	RequestsPerSecond float64
}

// RetryingClient paces requests and retries transient failures with
// exponential backoff: base * 2^attempt plus up to one second of jitter.
type RetryingClient struct {
	inner       Client
	maxRetries  int
	baseBackoff time.Duration
	limiter     *rate.Limiter

	// sleep and jitter are swapped out by tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// NewRetryingClient wraps inner. A zero RequestsPerSecond disables pacing.
func NewRetryingClient(inner Client, cfg RetryConfig) *RetryingClient {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &RetryingClient{
		inner:       inner,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
		limiter:     rate.NewLimiter(limit, 1),
		sleep:       sleepContext,
		jitter:      func() time.Duration { return rand.N(time.Second) },
	}
}

// Complete implements Client.
func (c *RetryingClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.do(ctx, func(ctx context.Context) (string, error) {
		return c.inner.Complete(ctx, prompt)
	})
}

// CompleteWithSystem implements Client.
func (c *RetryingClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.do(ctx, func(ctx context.Context) (string, error) {
		return c.inner.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	})
}

// Backoff returns the wait before retry number attempt (zero based), without jitter.
func (c *RetryingClient) Backoff(attempt int) time.Duration {
	return c.baseBackoff * time.Duration(1<<attempt)
}

func (c *RetryingClient) do(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.Backoff(attempt-1) + c.jitter()
			logging.LLMWarn("transient failure, retry %d/%d in %s: %v", attempt, c.maxRetries, wait, lastErr)
			if err := c.sleep(ctx, wait); err != nil {
				return "", classifyTransport("retry", err)
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return "", classifyTransport("rate limiter", err)
		}

		text, err := fn(ctx)
		if err == nil {
			return text, nil
		}
		if !IsTransient(err) {
			return "", err
		}
		lastErr = err
	}
	logging.LLMWarn("giving up after %d retries: %v", c.maxRetries, lastErr)
	return "", lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
