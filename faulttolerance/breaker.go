package faulttolerance

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is one of the three states a CircuitBreaker can be in.
type BreakerState int32

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
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

// ErrBreakerOpen is returned by Execute when the breaker refuses a call,
// either because it is open and not yet ready to probe, or because it is
// half-open and has already used its probe budget.
var ErrBreakerOpen = errors.New("circuit breaker is open")

const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second
	DefaultSuccessThreshold = 3
	DefaultHalfOpenMaxCalls = 5
)

// BreakerSettings configures a CircuitBreaker. FailureThreshold and
// SuccessThreshold are deliberately independent of HalfOpenMaxCalls: a
// breaker may want to admit five probe calls in half-open state while only
// requiring three of them to succeed before fully closing, a distinction
// libraries that couple "max concurrent requests" with "promotion
// threshold" into one field can't express.
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	RecoveryTimeout  time.Duration
	SuccessThreshold uint32
	HalfOpenMaxCalls uint32
	OnStateChange    func(name string, from, to BreakerState)
}

// withDefaults fills in zero fields with the package defaults.
func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}
	if s.RecoveryTimeout == 0 {
		s.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = DefaultSuccessThreshold
	}
	if s.HalfOpenMaxCalls == 0 {
		s.HalfOpenMaxCalls = DefaultHalfOpenMaxCalls
	}
	return s
}

// CircuitBreaker guards a flaky upstream: after FailureThreshold
// consecutive failures it opens and refuses calls for RecoveryTimeout, then
// admits up to HalfOpenMaxCalls probe calls, promoting back to closed once
// SuccessThreshold of them succeed, or tripping back open on the first
// half-open failure.
type CircuitBreaker struct {
	settings BreakerSettings

	mu              sync.Mutex
	state           BreakerState
	failureCount    uint32
	successCount    uint32
	halfOpenCalls   uint32
	lastFailureTime time.Time
}

// NewCircuitBreaker builds a CircuitBreaker from settings, applying package
// defaults for any zero-valued fields.
func NewCircuitBreaker(settings BreakerSettings) *CircuitBreaker {
	return &CircuitBreaker{settings: settings.withDefaults()}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs fn if the breaker currently admits calls, and records the
// outcome. It returns ErrBreakerOpen without calling fn if the breaker
// refuses the call.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn()
	cb.afterCall(err == nil)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailureTime) < cb.settings.RecoveryTimeout {
			return ErrBreakerOpen
		}
		cb.moveTo(StateHalfOpen)
		cb.halfOpenCalls = 1
		return nil
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.settings.HalfOpenMaxCalls {
			return ErrBreakerOpen
		}
		cb.halfOpenCalls++
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) afterCall(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		if success {
			cb.successCount++
			if cb.successCount >= cb.settings.SuccessThreshold {
				cb.moveTo(StateClosed)
			}
		} else {
			cb.lastFailureTime = time.Now()
			cb.moveTo(StateOpen)
		}
	case StateClosed:
		if success {
			cb.failureCount = 0
		} else {
			cb.failureCount++
			cb.lastFailureTime = time.Now()
			if cb.failureCount >= cb.settings.FailureThreshold {
				cb.moveTo(StateOpen)
			}
		}
	}
}

// moveTo transitions state and resets the counters the new state tracks.
// Callers must hold cb.mu.
func (cb *CircuitBreaker) moveTo(to BreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	switch to {
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.halfOpenCalls = 0
	case StateOpen:
		cb.successCount = 0
		cb.halfOpenCalls = 0
	case StateHalfOpen:
		cb.successCount = 0
	}
	if cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.settings.Name, from, to)
	}
}
