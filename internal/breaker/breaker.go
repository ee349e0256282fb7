// Package breaker implements a per-source circuit breaker with lazy timed
// recovery. The breaker is a pure function of (state, now): no background
// timers run, the open-to-half-open transition happens on the next query
// after the recovery deadline passes.
package breaker

import (
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed admits every request.
	StateClosed State = iota
	// StateOpen rejects every request until the recovery deadline.
	StateOpen
	// StateHalfOpen admits trial requests to probe recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	DefaultFailureThreshold = 3
	DefaultRecoveryTimeout  = 60 * time.Second
	DefaultSuccessThreshold = 2
)

// Config holds the thresholds governing state transitions.
type Config struct {
	FailureThreshold int           // consecutive failures to open from closed
	RecoveryTimeout  time.Duration // how long the circuit stays open before a trial
	SuccessThreshold int           // consecutive successes to close from half-open
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		RecoveryTimeout:  DefaultRecoveryTimeout,
		SuccessThreshold: DefaultSuccessThreshold,
	}
}

// nowFunc is the clock used for recovery timing. Overridden in tests.
var nowFunc = time.Now

// Breaker is the per-source fault-isolation state machine. Safe for
// concurrent use; every operation is synchronous and never blocks on I/O.
type Breaker struct {
	mu                sync.Mutex
	cfg               Config
	state             State
	failureCount      int
	successCount      int
	lastFailureTime   time.Time
	lastFailureReason string
	lastStateChange   time.Time
	nextAttemptTime   time.Time // zero unless state == StateOpen
}

// Metrics is a read-only snapshot of the breaker for reporting.
type Metrics struct {
	State             State
	FailureCount      int
	SuccessCount      int
	LastFailureTime   *time.Time
	LastFailureReason string
	LastStateChange   time.Time
	NextAttemptTime   *time.Time
}

// New creates a closed breaker. Non-positive thresholds fall back to the
// defaults.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	return &Breaker{cfg: cfg, state: StateClosed, lastStateChange: nowFunc()}
}

// CanExecute reports whether a request may proceed. While open it checks
// the recovery deadline and moves to half-open once it has passed. Every
// caller is admitted while half-open; no trial-request limiter applies.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover()
	return b.state != StateOpen
}

// RecordSuccess notes a successful request. The failure streak is zeroed in
// every state; enough consecutive half-open successes close the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover()

	b.successCount++
	b.failureCount = 0

	if b.state == StateHalfOpen && b.successCount >= b.cfg.SuccessThreshold {
		b.transition(StateClosed)
		b.successCount = 0
		b.failureCount = 0
	}
}

// RecordFailure notes a failed request with a human-readable reason. A
// single failure while half-open reopens the circuit immediately and
// restarts the recovery window; from closed the circuit opens once the
// streak reaches the failure threshold.
func (b *Breaker) RecordFailure(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover()

	b.failureCount++
	b.successCount = 0
	b.lastFailureTime = nowFunc()
	b.lastFailureReason = reason

	switch {
	case b.state == StateHalfOpen:
		b.transition(StateOpen)
	case b.state == StateClosed && b.failureCount >= b.cfg.FailureThreshold:
		b.transition(StateOpen)
	}
}

// Reset forces the breaker closed and zeroes both counters. This is an
// operator override and applies regardless of current state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transition(StateClosed)
	b.failureCount = 0
	b.successCount = 0
	b.lastFailureTime = time.Time{}
	b.lastFailureReason = ""
}

// State returns the current state after the lazy recovery check.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover()
	return b.state
}

// Metrics returns a snapshot of the full breaker state. Its only side
// effect is the lazy open-to-half-open check.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover()

	m := Metrics{
		State:             b.state,
		FailureCount:      b.failureCount,
		SuccessCount:      b.successCount,
		LastFailureReason: b.lastFailureReason,
		LastStateChange:   b.lastStateChange,
	}
	if !b.lastFailureTime.IsZero() {
		t := b.lastFailureTime
		m.LastFailureTime = &t
	}
	if !b.nextAttemptTime.IsZero() {
		t := b.nextAttemptTime
		m.NextAttemptTime = &t
	}
	return m
}

// maybeRecover performs the lazy open-to-half-open transition once the
// recovery deadline has passed. Caller must hold mu.
func (b *Breaker) maybeRecover() {
	if b.state == StateOpen && !nowFunc().Before(b.nextAttemptTime) {
		b.transition(StateHalfOpen)
	}
}

// transition moves to the given state and maintains the invariant that
// nextAttemptTime is set only while open. Caller must hold mu.
func (b *Breaker) transition(to State) {
	b.state = to
	b.lastStateChange = nowFunc()
	if to == StateOpen {
		b.nextAttemptTime = nowFunc().Add(b.cfg.RecoveryTimeout)
	} else {
		b.nextAttemptTime = time.Time{}
	}
}
