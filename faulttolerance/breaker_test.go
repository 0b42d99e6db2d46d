package faulttolerance

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAfterFailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BreakerSettings{FailureThreshold: 3, RecoveryTimeout: time.Hour})

	fail := func() error { return errors.New("boom") }
	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail)
	}

	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestCircuitBreaker_HalfOpenPromotesToClosedAfterSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(BreakerSettings{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Millisecond,
		SuccessThreshold: 2,
		HalfOpenMaxCalls: 5,
	})

	_ = cb.Execute(func() error { return errors.New("boom") })
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(5 * time.Millisecond)

	_ = cb.Execute(func() error { return nil })
	assert.Equal(t, StateHalfOpen, cb.State())

	_ = cb.Execute(func() error { return nil })
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(BreakerSettings{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Millisecond,
		SuccessThreshold: 2,
		HalfOpenMaxCalls: 5,
	})

	_ = cb.Execute(func() error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)

	_ = cb.Execute(func() error { return errors.New("still broken") })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenRespectsMaxCalls(t *testing.T) {
	cb := NewCircuitBreaker(BreakerSettings{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Millisecond,
		SuccessThreshold: 10,
		HalfOpenMaxCalls: 2,
	})

	_ = cb.Execute(func() error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)

	err1 := cb.Execute(func() error { return nil })
	err2 := cb.Execute(func() error { return nil })
	err3 := cb.Execute(func() error { return nil })

	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.ErrorIs(t, err3, ErrBreakerOpen)
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(BreakerSettings{
		FailureThreshold: 1,
		OnStateChange: func(name string, from, to BreakerState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(func() error { return errors.New("boom") })
	assert.Contains(t, transitions, "closed->open")
}

func TestCircuitBreaker_ClosedResetsFailureCountOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(BreakerSettings{FailureThreshold: 2})

	_ = cb.Execute(func() error { return errors.New("boom") })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errors.New("boom") })

	assert.Equal(t, StateClosed, cb.State())
}
