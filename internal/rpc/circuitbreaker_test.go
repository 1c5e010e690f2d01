package rpc

import (
	"sync"
	"testing"
	"time"

	"github.com/fueltron/gasstation/internal/config"
)

func TestCircuitBreaker_ClosedAllowsRequests(t *testing.T) {
	cb := newCircuitBreaker("test", 3, 100*time.Millisecond)

	for i := 0; i < 10; i++ {
		if !cb.Allow() {
			t.Fatalf("expected Allow() = true in closed state, iteration %d", i)
		}
	}
	if cb.State() != config.CircuitClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := newCircuitBreaker("test", 3, 100*time.Millisecond)

	cb.RecordFailure(true)
	cb.RecordFailure(true)
	if cb.State() != config.CircuitClosed {
		t.Errorf("expected closed after 2 failures, got %s", cb.State())
	}

	cb.RecordFailure(true)
	if cb.State() != config.CircuitOpen {
		t.Errorf("expected open after 3 failures, got %s", cb.State())
	}
	if cb.ConsecutiveFailures() != 3 {
		t.Errorf("expected 3 consecutive failures, got %d", cb.ConsecutiveFailures())
	}
}

func TestCircuitBreaker_OpenBlocksRequests(t *testing.T) {
	cb := newCircuitBreaker("test", 1, 1*time.Hour)

	cb.RecordFailure(true)
	if cb.State() != config.CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	if cb.Allow() {
		t.Error("expected Allow() = false when circuit is open")
	}
}

func TestCircuitBreaker_HalfOpenAfterCooldown(t *testing.T) {
	cb := newCircuitBreaker("test", 1, 50*time.Millisecond)

	cb.RecordFailure(true)
	time.Sleep(60 * time.Millisecond)

	if !cb.Allow() {
		t.Error("expected Allow() = true after cooldown (half-open)")
	}
	if cb.State() != config.CircuitHalfOpen {
		t.Errorf("expected half_open, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	cb := newCircuitBreaker("test", 1, 50*time.Millisecond)

	cb.RecordFailure(true)
	time.Sleep(60 * time.Millisecond)
	cb.Allow()
	cb.RecordSuccess()

	if cb.State() != config.CircuitClosed {
		t.Errorf("expected closed after half-open success, got %s", cb.State())
	}
	if cb.ConsecutiveFailures() != 0 {
		t.Errorf("expected 0 failures after success, got %d", cb.ConsecutiveFailures())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := newCircuitBreaker("test", 1, 50*time.Millisecond)

	cb.RecordFailure(true)
	time.Sleep(60 * time.Millisecond)
	cb.Allow()
	cb.RecordFailure(true)

	if cb.State() != config.CircuitOpen {
		t.Errorf("expected open after half-open failure, got %s", cb.State())
	}
}

func TestCircuitBreaker_IgnoresNonTransientFailure(t *testing.T) {
	cb := newCircuitBreaker("test", 1, time.Hour)

	cb.RecordFailure(false)
	if cb.State() != config.CircuitClosed {
		t.Errorf("expected closed after a non-transient failure, got %s", cb.State())
	}
	if cb.ConsecutiveFailures() != 0 {
		t.Errorf("expected 0 consecutive failures for a non-transient rejection, got %d", cb.ConsecutiveFailures())
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := newCircuitBreaker("test", 100, 50*time.Millisecond)

	var wg sync.WaitGroup
	iterations := 1000
	wg.Add(3)

	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			cb.Allow()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			cb.RecordSuccess()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			cb.RecordFailure(true)
		}
	}()
	wg.Wait()

	state := cb.State()
	validStates := map[string]bool{
		config.CircuitClosed:   true,
		config.CircuitOpen:     true,
		config.CircuitHalfOpen: true,
	}
	if !validStates[state] {
		t.Errorf("invalid state after concurrent access: %s", state)
	}
}
