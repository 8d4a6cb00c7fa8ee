package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures exponential-backoff retry of an arbitrary
// operation (platform API call, WebSocket dial, warehouse round trip).
type RetryConfig struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	Jitter         bool
	ShouldRetry    func(err error) bool
	CircuitBreaker *CircuitBreaker
}

// DefaultRetryConfig matches the corpus defaults, retrying any non-nil error.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
		ShouldRetry: func(err error) bool { return err != nil },
	}
}

// Do runs fn with exponential backoff, through the configured circuit
// breaker if one is set.
func Do(ctx context.Context, config RetryConfig, fn func() error) error {
	if config.CircuitBreaker != nil {
		return config.CircuitBreaker.Call(func() error {
			return doAttempts(ctx, config, fn)
		})
	}
	return doAttempts(ctx, config, fn)
}

func doAttempts(ctx context.Context, config RetryConfig, fn func() error) error {
	shouldRetry := config.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(err error) bool { return err != nil }
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(config, attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt == config.MaxRetries {
			break
		}
	}
	if lastErr != nil {
		return fmt.Errorf("after %d attempts: %w", config.MaxRetries+1, lastErr)
	}
	return nil
}

func backoffDelay(config RetryConfig, attempt int) time.Duration {
	delay := time.Duration(float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt-1)))
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	if config.Jitter {
		jitter := time.Duration(float64(delay) * 0.1 * (2*rand.Float64() - 1))
		delay += jitter
	}
	return delay
}
