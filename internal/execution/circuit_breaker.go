package execution

import (
	"sync"
	"time"
)

// circuit_breaker.go - предохранитель на площадку (§4.6)
//
// Per-venue circuit breaker with three states, grounded on
// internal/exchange/ws_reconnect.go's atomic connection-state machine
// (WSStateDisconnected/Connecting/Connected/Reconnecting/Closed) — same
// shape applied to request admission instead of connection lifecycle. No
// circuit-breaker library appears anywhere in the pack, so this is a
// small hand-rolled state machine rather than an imported one.

type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig — default thresholds per §4.6.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	OpenDuration     time.Duration // time before half-open probe
	ResetDuration    time.Duration // carried in the config but not read by CircuitBreaker; no timed reset happens
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		OpenDuration:     60 * time.Second,
		ResetDuration:    300 * time.Second,
	}
}

// CircuitBreaker guards one venue. RecordSuccess/RecordFailure update state;
// Allow reports whether a new request may proceed.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu              sync.Mutex
	state           BreakerState
	consecutiveFail int
	openedAt        time.Time
	halfOpenSince   time.Time
	successSince    time.Time
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: BreakerClosed}
}

// Allow reports whether a request may proceed, transitioning Open->HalfOpen
// once OpenDuration has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.openedAt) >= b.cfg.OpenDuration {
			b.state = BreakerHalfOpen
			b.halfOpenSince = time.Now()
			return true
		}
		return false
	case BreakerHalfOpen:
		return true
	default:
		return true
	}
}

// RecordSuccess clears the failure streak, and a single successful
// HalfOpen probe closes the breaker. The start of the success run is
// recorded but nothing acts on its length.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFail = 0
	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerClosed
		b.successSince = time.Now()
	case BreakerClosed:
		if b.successSince.IsZero() {
			b.successSince = time.Now()
		}
	}
}

// RecordFailure increments the failure streak and opens the breaker once
// the threshold is reached. A HalfOpen probe failure reopens immediately.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successSince = time.Time{}
	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		return
	}

	b.consecutiveFail++
	if b.consecutiveFail >= b.cfg.FailureThreshold {
		b.state = BreakerOpen
		b.openedAt = time.Now()
	}
}

func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
