package execution

import (
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 3, OpenDuration: time.Hour, ResetDuration: time.Hour})
	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if b.State() != BreakerClosed {
			t.Fatalf("expected closed after %d failures", i+1)
		}
	}
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatal("expected open after reaching threshold")
	}
	if b.Allow() {
		t.Fatal("open breaker should not allow requests before OpenDuration elapses")
	}
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, OpenDuration: 1 * time.Millisecond, ResetDuration: time.Hour})
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatal("expected open")
	}

	time.Sleep(5 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected half-open probe to be allowed after OpenDuration")
	}
	if b.State() != BreakerHalfOpen {
		t.Fatal("expected half-open state")
	}

	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Fatal("expected closed after successful half-open probe")
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, OpenDuration: 1 * time.Millisecond, ResetDuration: time.Hour})
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	b.Allow() // transitions to half-open

	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatal("a failed half-open probe should reopen the breaker")
	}
}
