package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{
		MaxRetries:  3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Multiplier:  2.0,
		ShouldRetry: func(err error) bool { return err != nil },
	}
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil after eventual success", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestDoStopsRetryingWhenShouldRetryIsFalse(t *testing.T) {
	attempts := 0
	permanent := errors.New("permanent")
	cfg := RetryConfig{
		MaxRetries:  5,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Multiplier:  2.0,
		ShouldRetry: func(err error) bool { return false },
	}
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want permanent", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (ShouldRetry=false should stop immediately)", attempts)
	}
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{
		MaxRetries:  2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
		ShouldRetry: func(err error) bool { return err != nil },
	}
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errors.New("always fails")
	})
	if err == nil {
		t.Fatalf("expected an error after exhausting retries")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3 (1 initial + 2 retries)", attempts)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{
		MaxRetries:  3,
		BaseDelay:   time.Hour,
		MaxDelay:    time.Hour,
		Multiplier:  2.0,
		ShouldRetry: func(err error) bool { return err != nil },
	}
	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled once the backoff sleep observes the cancelled context", err)
	}
}

func TestDoUsesCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour})
	cfg := RetryConfig{
		MaxRetries:     0,
		BaseDelay:      time.Millisecond,
		MaxDelay:       time.Millisecond,
		Multiplier:     2.0,
		ShouldRetry:    func(err error) bool { return err != nil },
		CircuitBreaker: cb,
	}
	_ = Do(context.Background(), cfg, func() error { return errors.New("boom") })
	if cb.State() != StateOpen {
		t.Fatalf("breaker State() = %v, want open after the wrapped call failed", cb.State())
	}

	calls := 0
	err := Do(context.Background(), cfg, func() error { calls++; return nil })
	if err == nil {
		t.Fatalf("expected the open breaker to short-circuit Do without invoking fn")
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0 (breaker should have blocked the call)", calls)
	}
}
