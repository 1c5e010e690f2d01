package rpc

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fueltron/gasstation/internal/config"
)

// circuitBreaker guards a single RPC endpoint against cascading failures.
//
// State machine:
//   - closed (normal): all requests pass; a failure increments a counter,
//     tripping to open once the counter reaches threshold.
//   - open (tripped): all requests blocked until cooldown elapses, then
//     moves to half-open.
//   - half-open (testing): allows a bounded number of probe requests; a
//     success closes the breaker, a failure reopens it.
type circuitBreaker struct {
	mu               sync.Mutex
	state            string
	consecutiveFails int
	threshold        int
	cooldown         time.Duration
	lastFailure      time.Time
	halfOpenAllowed  int
	halfOpenCount    int
	name             string
}

func newCircuitBreaker(name string, threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{
		name:            name,
		state:           config.CircuitClosed,
		threshold:       threshold,
		cooldown:        cooldown,
		halfOpenAllowed: config.CircuitBreakerHalfOpenMax,
	}
}

func (cb *circuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case config.CircuitClosed:
		return true
	case config.CircuitOpen:
		if time.Since(cb.lastFailure) >= cb.cooldown {
			slog.Debug("circuit breaker transitioning to half-open", "endpoint", cb.name)
			cb.state = config.CircuitHalfOpen
			cb.halfOpenCount = 0
			return true
		}
		return false
	case config.CircuitHalfOpen:
		if cb.halfOpenCount < cb.halfOpenAllowed {
			cb.halfOpenCount++
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *circuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	previous := cb.state
	cb.consecutiveFails = 0
	cb.state = config.CircuitClosed
	cb.halfOpenCount = 0

	if previous != config.CircuitClosed {
		slog.Info("circuit breaker closed after success", "endpoint", cb.name, "previousState", previous)
	}
}

// RecordFailure counts a failed call against the breaker. transient
// distinguishes an infrastructure fault (timeout, 5xx, connection reset)
// from a request that reached the node and got a definitive answer the
// node itself rejected (bad address, permission denied) — retrying against
// a different endpoint would not have helped in the latter case, so it
// must not count toward quarantining an otherwise healthy endpoint.
func (cb *circuitBreaker) RecordFailure(transient bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !transient {
		slog.Debug("circuit breaker ignoring non-transient failure", "endpoint", cb.name)
		return
	}

	cb.consecutiveFails++
	cb.lastFailure = time.Now()

	if cb.state == config.CircuitHalfOpen {
		slog.Warn("circuit breaker reopened from half-open after failure", "endpoint", cb.name, "consecutiveFails", cb.consecutiveFails)
		cb.state = config.CircuitOpen
		cb.halfOpenCount = 0
		return
	}

	if cb.consecutiveFails >= cb.threshold {
		slog.Warn("circuit breaker tripped to open", "endpoint", cb.name, "consecutiveFails", cb.consecutiveFails, "threshold", cb.threshold)
		cb.state = config.CircuitOpen
		cb.halfOpenCount = 0
	}
}

func (cb *circuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *circuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFails
}
