package resilience

import (
	"sync"
	"time"
)

// State is the current position of a CircuitBreaker in its lifecycle.
type State int

const (
	StateClosed   State = iota // healthy, requests flow
	StateOpen                  // requests blocked until the next probe window
	StateHalfOpen              // exactly one trial request admitted
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig is fixed at construction.
//
// Contract: tripping the breaker from Closed schedules the first recovery
// probe after ResetTimeout. A failed half-open probe re-opens the breaker
// and schedules the next probe after HalfOpenTimeout, so repeated probes
// against a still-broken backend are throttled independently of the
// initial reset window. A zero HalfOpenTimeout falls back to ResetTimeout.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenTimeout  time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenTimeout:  10 * time.Second,
	}
}

func (c BreakerConfig) normalize() BreakerConfig {
	out := c
	def := DefaultBreakerConfig()
	if out.FailureThreshold <= 0 {
		out.FailureThreshold = def.FailureThreshold
	}
	if out.ResetTimeout <= 0 {
		out.ResetTimeout = def.ResetTimeout
	}
	if out.HalfOpenTimeout <= 0 {
		out.HalfOpenTimeout = out.ResetTimeout
	}
	return out
}

// CircuitBreaker gates calls to an unreliable backend. It never returns
// errors; callers treat CanExecute()==false as "fail fast" and fall back.
//
// The clock is an explicit parameter on every call so tests can advance
// time without sleeping. One instance is shared by all requests hitting
// the same backend; every method holds the mutex for its whole body,
// which is what keeps the at-most-one-half-open-probe invariant under
// concurrent callers.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	nextProbeAt         time.Time
	probeInFlight       bool
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:   cfg.normalize(),
		state: StateClosed,
	}
}

// CanExecute reports whether a protected call may run now. While Open it
// transitions to HalfOpen once the probe window has elapsed, and admits
// the caller as the single trial probe.
func (b *CircuitBreaker) CanExecute(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if now.Before(b.nextProbeAt) {
			return false
		}
		b.state = StateHalfOpen
		b.probeInFlight = false
	}

	if b.state == StateHalfOpen {
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}

	return true
}

// RecordSuccess closes the breaker regardless of prior state.
func (b *CircuitBreaker) RecordSuccess(time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.consecutiveFailures = 0
	b.probeInFlight = false
	b.nextProbeAt = time.Time{}
}

// RecordFailure counts a failed protected call. The breaker opens when
// the half-open probe fails or the consecutive-failure threshold is hit.
func (b *CircuitBreaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++

	switch {
	case b.state == StateHalfOpen:
		b.open(now.Add(b.cfg.HalfOpenTimeout))
	case b.consecutiveFailures >= b.cfg.FailureThreshold:
		b.open(now.Add(b.cfg.ResetTimeout))
	}
}

// State returns the current state for observability export.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) open(nextProbeAt time.Time) {
	b.state = StateOpen
	b.consecutiveFailures = 0
	b.probeInFlight = false
	b.nextProbeAt = nextProbeAt
}
