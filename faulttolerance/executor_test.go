package faulttolerance

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 5 * time.Millisecond
	p.Jitter = false
	return p
}

func TestExecutor_SucceedsOnFirstAttempt(t *testing.T) {
	e := NewExecutor(fastPolicy(), nil, nil, nil, NewStats())
	calls := 0
	outcome := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		return &http.Response{StatusCode: http.StatusOK}, nil
	})

	assert.NoError(t, outcome.Err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, outcome.Attempts)
}

func TestExecutor_RetriesTransientFailureThenSucceeds(t *testing.T) {
	e := NewExecutor(fastPolicy(), nil, nil, nil, nil)
	calls := 0
	outcome := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		if calls < 3 {
			return &http.Response{StatusCode: http.StatusServiceUnavailable, Header: http.Header{}}, nil
		}
		return &http.Response{StatusCode: http.StatusOK}, nil
	})

	assert.NoError(t, outcome.Err)
	assert.Equal(t, 3, calls)
}

func TestExecutor_GivesUpOnNonRetryableStatus(t *testing.T) {
	e := NewExecutor(fastPolicy(), nil, nil, nil, nil)
	calls := 0
	outcome := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		return &http.Response{StatusCode: http.StatusUnauthorized, Header: http.Header{}}, nil
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusUnauthorized, outcome.Response.StatusCode)
}

func TestExecutor_ExhaustsRetryBudget(t *testing.T) {
	policy := fastPolicy()
	policy.MaxRetries = 2
	e := NewExecutor(policy, nil, nil, nil, nil)
	calls := 0
	outcome := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		return &http.Response{StatusCode: http.StatusServiceUnavailable, Header: http.Header{}}, nil
	})

	assert.Equal(t, 3, calls) // initial attempt + 2 retries
	assert.Equal(t, http.StatusServiceUnavailable, outcome.Response.StatusCode)
}

func TestExecutor_RespectsRetryAfterHeader(t *testing.T) {
	policy := fastPolicy()
	policy.MaxDelay = time.Hour // the cap never applies to a disclosed Retry-After wait
	e := NewExecutor(policy, nil, nil, nil, nil)

	calls := 0
	start := time.Now()
	outcome := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		if calls == 1 {
			h := http.Header{}
			h.Set("Retry-After", "0")
			return &http.Response{StatusCode: http.StatusTooManyRequests, Header: h}, nil
		}
		return &http.Response{StatusCode: http.StatusOK}, nil
	})

	assert.NoError(t, outcome.Err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecutor_GivesUpOnUnlistedOther4xxStatus(t *testing.T) {
	e := NewExecutor(fastPolicy(), nil, nil, nil, nil)
	calls := 0
	outcome := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		return &http.Response{StatusCode: http.StatusConflict, Header: http.Header{}}, nil
	})

	assert.Equal(t, 1, calls, "409 isn't in RetryOnStatusCodes or the non-retryable set, but still shouldn't be retried")
	assert.Equal(t, http.StatusConflict, outcome.Response.StatusCode)
}

func TestExecutor_RetriesOther4xxWhenExplicitlyListed(t *testing.T) {
	policy := fastPolicy()
	policy.RetryOnStatusCodes = append(policy.RetryOnStatusCodes, http.StatusConflict)
	e := NewExecutor(policy, nil, nil, nil, nil)

	calls := 0
	outcome := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		if calls < 2 {
			return &http.Response{StatusCode: http.StatusConflict, Header: http.Header{}}, nil
		}
		return &http.Response{StatusCode: http.StatusOK}, nil
	})

	assert.NoError(t, outcome.Err)
	assert.Equal(t, 2, calls)
}

func TestExecutor_DoesNotRetryTransportErrorWhenRetryOnTimeoutDisabled(t *testing.T) {
	policy := fastPolicy()
	policy.RetryOnTimeout = false
	e := NewExecutor(policy, nil, nil, nil, nil)

	calls := 0
	outcome := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		return nil, assert.AnError
	})

	assert.Equal(t, 1, calls)
	assert.Error(t, outcome.Err)
}

func TestExecutor_RetriesTransportErrorWhenRetryOnTimeoutEnabled(t *testing.T) {
	policy := fastPolicy()
	policy.RetryOnTimeout = true
	e := NewExecutor(policy, nil, nil, nil, nil)

	calls := 0
	outcome := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		if calls < 2 {
			return nil, assert.AnError
		}
		return &http.Response{StatusCode: http.StatusOK}, nil
	})

	assert.NoError(t, outcome.Err)
	assert.Equal(t, 2, calls)
}

func TestExecutor_BreakerRejectsWhenOpen(t *testing.T) {
	breaker := NewCircuitBreaker(BreakerSettings{FailureThreshold: 1, RecoveryTimeout: time.Hour})
	_ = breaker.Execute(func() error { return assert.AnError })

	e := NewExecutor(fastPolicy(), breaker, nil, nil, nil)
	outcome := e.Execute(context.Background(), func(ctx context.Context) (*http.Response, error) {
		t.Fatal("do should not be called while breaker is open")
		return nil, nil
	})

	assert.True(t, outcome.BreakerRejected)
	assert.ErrorIs(t, outcome.Err, ErrBreakerOpen)
}

func TestExecutor_ContextCancellationStopsRetries(t *testing.T) {
	e := NewExecutor(fastPolicy(), nil, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	outcome := e.Execute(ctx, func(ctx context.Context) (*http.Response, error) {
		calls++
		cancel()
		return &http.Response{StatusCode: http.StatusServiceUnavailable, Header: http.Header{}}, nil
	})

	assert.Equal(t, 1, calls)
	assert.Error(t, outcome.Err)
}
