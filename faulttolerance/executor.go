package faulttolerance

import (
	"context"
	"net/http"
	"time"

	"github.com/suenot/rate-limit-optimizer/helpers"
	"github.com/suenot/rate-limit-optimizer/logger"
	"github.com/suenot/rate-limit-optimizer/ratelimit"
	"github.com/suenot/rate-limit-optimizer/status"
)

// Do is the shape of a single request attempt: given a context, perform the
// call and return the response (or a transport error).
type Do func(ctx context.Context) (*http.Response, error)

// Outcome is the result of running Execute to completion: either a
// response the retry loop accepted, or the reason it gave up.
type Outcome struct {
	Response        *http.Response
	Err             error
	Attempts        int
	TotalWait       time.Duration
	BreakerRejected bool
}

// Executor runs a Do through the retry loop this module is built around:
// classify the previous attempt's outcome, respect a disclosed Retry-After,
// back off on transient failures, give up on non-retryable ones, and wrap
// every attempt in an optional circuit breaker. The loop's shape mirrors
// the teacher client's executeRequestWithRetries.
type Executor struct {
	Policy     RetryPolicy
	Breaker    *CircuitBreaker // nil disables breaker wrapping
	Classifier *status.Classifier
	Logger     logger.Logger
	Stats      *Stats
}

// NewExecutor builds an Executor. classifier may be nil to use status's
// package defaults; stats may be nil to disable aggregate counting.
func NewExecutor(policy RetryPolicy, breaker *CircuitBreaker, classifier *status.Classifier, log logger.Logger, stats *Stats) *Executor {
	if classifier == nil {
		classifier = status.NewClassifier(policy.RetryOnStatusCodes)
	}
	return &Executor{Policy: policy, Breaker: breaker, Classifier: classifier, Logger: log, Stats: stats}
}

// Execute runs do, retrying according to e.Policy until it succeeds, hits a
// non-retryable outcome, exhausts its retry budget, or the breaker refuses
// the call.
func (e *Executor) Execute(ctx context.Context, do Do) Outcome {
	var resp *http.Response
	var err error
	var totalWait time.Duration

	maxAttempts := e.Policy.MaxRetries + 1
	attempt := 0

	for attempt = 1; attempt <= maxAttempts; attempt++ {
		if breakerErr := e.tryAcquireBreaker(); breakerErr != nil {
			return Outcome{Err: breakerErr, Attempts: attempt, TotalWait: totalWait, BreakerRejected: true}
		}

		resp, err = do(ctx)
		success := e.isBreakerSuccess(resp, err)
		e.releaseBreaker(success)
		e.recordStats(success, resp, err)

		if ctx.Err() != nil {
			return Outcome{Response: resp, Err: ctx.Err(), Attempts: attempt, TotalWait: totalWait}
		}

		if err == nil && resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return Outcome{Response: resp, Attempts: attempt, TotalWait: totalWait}
		}

		if !e.shouldRetry(resp, err) {
			return Outcome{Response: resp, Err: err, Attempts: attempt, TotalWait: totalWait}
		}

		if attempt == maxAttempts {
			break
		}

		wait := e.nextWait(attempt, resp)
		totalWait += wait
		if e.Logger != nil {
			e.Logger.Warn("retrying request after failure")
		}
		select {
		case <-ctx.Done():
			return Outcome{Response: resp, Err: ctx.Err(), Attempts: attempt, TotalWait: totalWait}
		case <-time.After(wait):
		}
	}

	return Outcome{Response: resp, Err: err, Attempts: attempt, TotalWait: totalWait}
}

// nextWait decides how long to sleep before the next attempt, preferring a
// disclosed Retry-After over the policy's computed backoff.
func (e *Executor) nextWait(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter, ok := helpers.ParseRetryAfter(resp.Header, time.Now()); ok {
			return retryAfter
		}
	}
	return e.Policy.Delay(attempt, 0)
}

// shouldRetry decides whether a failed attempt is retryable at all, per
// spec: rate-limit and server-error responses always retry; auth failures
// and 404 never do; any other 4xx retries only if the policy explicitly
// lists it; a transport-level error (including a timeout) retries only if
// RetryOnTimeout is set.
func (e *Executor) shouldRetry(resp *http.Response, err error) bool {
	if err != nil || resp == nil {
		return e.Policy.RetryOnTimeout
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return false
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return true
	}
	return e.Policy.ShouldRetryStatusCode(resp.StatusCode)
}

// isBreakerSuccess decides whether an attempt counts as a breaker success.
// A rate-limit response is a functional failure even though the transport
// succeeded, so it counts against the breaker just like a 5xx would.
func (e *Executor) isBreakerSuccess(resp *http.Response, err error) bool {
	if err != nil {
		return false
	}
	if resp == nil {
		return false
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return resp.StatusCode < 500
}

func (e *Executor) tryAcquireBreaker() error {
	if e.Breaker == nil {
		return nil
	}
	return e.Breaker.beforeCall()
}

func (e *Executor) releaseBreaker(success bool) {
	if e.Breaker == nil {
		return
	}
	e.Breaker.afterCall(success)
}

func (e *Executor) recordStats(success bool, resp *http.Response, err error) {
	if e.Stats == nil {
		return
	}
	if success {
		e.Stats.RecordSuccess()
		return
	}
	e.Stats.RecordError(e.categoryFor(resp, err))
}

func (e *Executor) categoryFor(resp *http.Response, err error) ratelimit.ErrorCategory {
	if e.Classifier != nil {
		return e.Classifier.Categorize(resp, err)
	}
	return status.Categorize(resp, err)
}
