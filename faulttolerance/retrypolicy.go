// Package faulttolerance implements the retry, backoff, and circuit
// breaker behavior the detector wraps every outbound probe request in. The
// backoff math is grounded on httpclient's calculateBackoff; the breaker
// and retry-strategy split (exponential vs linear) are grounded on the
// detector this module replaces, which kept them as separate strategy
// classes behind a common interface.
package faulttolerance

import (
	"math/rand"
	"net/http"
	"time"
)

// Strategy selects how RetryPolicy.Delay grows between attempts.
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
)

const (
	DefaultMaxRetries        = 3
	DefaultBaseDelay         = time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultMaxDelay          = 60 * time.Second
)

// RetryPolicy configures how many times a failed request is retried and
// how long to wait between attempts.
type RetryPolicy struct {
	MaxRetries         int
	BaseDelay          time.Duration
	BackoffMultiplier  float64
	MaxDelay           time.Duration
	Strategy           Strategy
	RetryOnStatusCodes []int
	RetryOnTimeout     bool
	Jitter             bool
}

// DefaultRetryPolicy mirrors create_default_retry_policy: three retries,
// one second base delay, doubling, capped at a minute, jitter on.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        DefaultMaxRetries,
		BaseDelay:         DefaultBaseDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
		MaxDelay:          DefaultMaxDelay,
		Strategy:          StrategyExponential,
		RetryOnStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
		RetryOnTimeout: true,
		Jitter:         true,
	}
}

// AggressiveRetryPolicy retries more often with shorter waits, for probing
// sessions willing to accept more load in exchange for faster detection.
func AggressiveRetryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxRetries = 5
	p.BaseDelay = 500 * time.Millisecond
	p.MaxDelay = 30 * time.Second
	return p
}

// ConservativeRetryPolicy backs off harder and gives up sooner, for probing
// sessions against a production API that can't tolerate much extra load.
func ConservativeRetryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxRetries = 2
	p.BaseDelay = 2 * time.Second
	p.MaxDelay = 120 * time.Second
	return p
}

// Delay computes how long to wait before attempt number `attempt` (1-based).
// retryAfter, when non-zero, overrides the computed delay entirely - a
// server that discloses Retry-After knows its own recovery time better
// than any backoff formula guesses it.
func (p RetryPolicy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}

	var delay time.Duration
	switch p.Strategy {
	case StrategyLinear:
		delay = p.BaseDelay * time.Duration(attempt)
	default:
		multiplier := 1.0
		for i := 1; i < attempt; i++ {
			multiplier *= p.BackoffMultiplier
		}
		delay = time.Duration(float64(p.BaseDelay) * multiplier)
	}

	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.Jitter {
		delay += time.Duration(rand.Float64() * 0.1 * float64(delay))
	}

	return delay
}

// ShouldRetryStatusCode reports whether statusCode is one of the codes this
// policy retries on.
func (p RetryPolicy) ShouldRetryStatusCode(statusCode int) bool {
	for _, code := range p.RetryOnStatusCodes {
		if code == statusCode {
			return true
		}
	}
	return false
}
