package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerTripsOpenAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return boom }); err != boom {
			t.Fatalf("attempt %d: err = %v, want boom", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open after 3 consecutive failures", cb.State())
	}

	if err := cb.Call(func() error { return nil }); err == nil {
		t.Fatalf("expected the open breaker to short-circuit without calling fn")
	}
}

func TestCircuitBreakerHalfOpensAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 10 * time.Millisecond})
	_ = cb.Call(func() error { return errors.New("boom") })
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("half-open probe should have run fn: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("State() = %v, want closed after a successful half-open probe meets SuccessThreshold", cb.State())
	}
}

func TestCircuitBreakerResetsFailureCountOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})
	_ = cb.Call(func() error { return errors.New("boom") })
	_ = cb.Call(func() error { return nil })
	_ = cb.Call(func() error { return errors.New("boom") })
	if cb.State() != StateClosed {
		t.Fatalf("State() = %v, want closed: a success between failures should reset the streak", cb.State())
	}
}
