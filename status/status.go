// Package status classifies HTTP responses the way the detector needs to
// decide what to do next: retry, back off, trip the circuit breaker, or
// give up. It replaces the exception hierarchy the original detector used
// (RateLimitExceeded, ServerError, NetworkError, AuthenticationError, ...)
// with a flat status-code-driven classification, since Go callers branch on
// return values rather than catching typed exceptions.
package status

import (
	"context"
	"net/http"

	"github.com/suenot/rate-limit-optimizer/ratelimit"
)

// defaultRetryableStatusCodes mirrors RetryPolicy.retry_on_codes from the
// detector this module replaces: 429 (rate limited), 502/503/504 (upstream
// unavailable). 500 is deliberately excluded by default - a generic server
// error is often not transient - but callers may add it via Classifier.
// IsTransientError still treats every 5xx, 500 included, as transient.
var defaultRetryableStatusCodes = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// nonRetryableStatusCodes are failures no amount of retrying fixes: bad
// auth, a missing resource, or a malformed request.
var nonRetryableStatusCodes = map[int]bool{
	http.StatusBadRequest:          true,
	http.StatusUnauthorized:        true,
	http.StatusForbidden:           true,
	http.StatusNotFound:            true,
	http.StatusMethodNotAllowed:    true,
	http.StatusUnprocessableEntity: true,
}

// Classifier holds a configurable retryable-status-code set, since the
// client's retry policy lets callers widen the default ("also retry on
// 500"); codes can only be added, never removed. The package-level functions below
// use a Classifier built from the defaults, mirroring the original
// detector's hard-coded behavior for callers that don't need to configure
// it.
type Classifier struct {
	retryable map[int]bool
}

// NewClassifier builds a Classifier whose retryable set is the default set
// plus extraRetryableCodes.
func NewClassifier(extraRetryableCodes []int) *Classifier {
	retryable := make(map[int]bool, len(defaultRetryableStatusCodes)+len(extraRetryableCodes))
	for code := range defaultRetryableStatusCodes {
		retryable[code] = true
	}
	for _, code := range extraRetryableCodes {
		retryable[code] = true
	}
	return &Classifier{retryable: retryable}
}

var defaultClassifier = NewClassifier(nil)

// TranslateStatusCode returns a short human-readable label for resp's
// status code, for log lines and diagnostics.
func TranslateStatusCode(resp *http.Response) string {
	if resp == nil {
		return "no response"
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return "success"
	case resp.StatusCode == http.StatusTooManyRequests:
		return "rate limited"
	case nonRetryableStatusCodes[resp.StatusCode]:
		return "non-retryable client error"
	case resp.StatusCode >= 500:
		return "server error"
	case resp.StatusCode >= 400:
		return "client error"
	default:
		return http.StatusText(resp.StatusCode)
	}
}

// IsNonRetryableStatusCode reports whether resp's status code should never
// be retried regardless of the caller's retry policy.
func IsNonRetryableStatusCode(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	return nonRetryableStatusCodes[resp.StatusCode]
}

// IsRateLimitError reports whether resp signals the server is rate
// limiting the caller.
func IsRateLimitError(resp *http.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusTooManyRequests
}

// IsTransientError reports whether resp's status code is a transient
// upstream failure worth backing off and retrying, using the default
// retryable set.
func IsTransientError(resp *http.Response) bool {
	return defaultClassifier.IsTransientError(resp)
}

// IsRetryableStatusCode reports whether statusCode is in the default
// retryable set.
func IsRetryableStatusCode(statusCode int) bool {
	return defaultClassifier.retryable[statusCode]
}

// IsTransientError reports whether resp's status code is in c's retryable
// set and isn't already covered by a non-retryable rule.
func (c *Classifier) IsTransientError(resp *http.Response) bool {
	if resp == nil {
		return true // no response at all (network error, timeout) is transient
	}
	if nonRetryableStatusCodes[resp.StatusCode] {
		return false
	}
	return c.retryable[resp.StatusCode] || resp.StatusCode >= 500
}

// IsRetryableStatusCode reports whether statusCode is in c's retryable set.
func (c *Classifier) IsRetryableStatusCode(statusCode int) bool {
	return c.retryable[statusCode]
}

// Categorize maps a response and/or transport error onto the sum-type
// ratelimit.ErrorCategory used throughout the module, replacing the
// original detector's exception-type dispatch (ErrorClassifier.error_mappings).
func (c *Classifier) Categorize(resp *http.Response, err error) ratelimit.ErrorCategory {
	if err != nil {
		if err == context.Canceled || err == context.DeadlineExceeded {
			return ratelimit.CategoryCancelled
		}
		return ratelimit.CategoryNetwork
	}
	if resp == nil {
		return ratelimit.CategoryNetwork
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ratelimit.CategoryRateLimit
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ratelimit.CategoryAuth
	case resp.StatusCode == http.StatusNotFound:
		return ratelimit.CategoryNotFound
	case resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusGatewayTimeout:
		return ratelimit.CategoryNetwork
	case resp.StatusCode >= 500:
		return ratelimit.CategoryServerError
	case resp.StatusCode >= 400:
		return ratelimit.CategoryOther
	default:
		return ratelimit.CategoryOther
	}
}

// Categorize uses the package's default Classifier.
func Categorize(resp *http.Response, err error) ratelimit.ErrorCategory {
	return defaultClassifier.Categorize(resp, err)
}
