// Package tiertester actively probes a single rate-limit tier by ramping
// request volume up until the server pushes back with a 429, the configured
// max rate is passed, or the test budget runs out. It is the Go
// port of the detector this module replaces's TierTester/_test_tier_impl
// ramp loop, paced with golang.org/x/time/rate instead of a hand-rolled
// sleep-per-request loop.
package tiertester

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/suenot/rate-limit-optimizer/httpclient"
	"github.com/suenot/rate-limit-optimizer/logger"
	"github.com/suenot/rate-limit-optimizer/ratelimit"
)

// Prober is the subset of httpclient.Client a Tester needs, narrowed for
// testability.
type Prober interface {
	Probe(ctx context.Context, method string) (httpclient.ProbeResult, error)
}

// maxRetryAfterSleep bounds how long a tier test waits on a disclosed
// Retry-After before moving on - long enough to respect the server, short
// enough that a misbehaving API with a huge Retry-After doesn't stall the
// whole detection run.
const maxRetryAfterSleep = 10 * time.Second

// Tester runs one TierSpec's ramp test against a Prober.
type Tester struct {
	Client Prober
	Logger logger.Logger
	Method string
}

// New builds a Tester. method defaults to GET if empty.
func New(client Prober, log logger.Logger, method string) *Tester {
	if method == "" {
		method = http.MethodGet
	}
	return &Tester{Client: client, Logger: log, Method: method}
}

// Test ramps request volume for spec until it finds spec's limit, the
// configured max rate is reached, or the test duration budget expires.
func (t *Tester) Test(ctx context.Context, spec ratelimit.TierSpec) ratelimit.TierResult {
	result := ratelimit.TierResult{Label: spec.Label}

	start := time.Now()
	deadline := start.Add(spec.MaxTestDuration)
	currentRate := spec.StartRate

	var totalLatency time.Duration
	requestsIssued := 0
	successes := 0
	serverErrors := 0
	adaptiveIncrements := 0

	for time.Now().Before(deadline) && currentRate <= spec.MaxRate && ctx.Err() == nil {
		iterStart := time.Now()

		batchSuccesses, limitFound, retryAfter, stop := t.runBatch(ctx, currentRate, spec, &requestsIssued, &successes, &serverErrors, &totalLatency)
		if limitFound != nil {
			result.LimitFound = true
			result.Limit = limitFound
			result.BackoffTriggered = true
			result.RateWhenLimited = currentRate
			result.RetryAfterSeconds = retryAfter
			break
		}
		if stop {
			result.Diagnostics = append(result.Diagnostics, "cancelled")
			break
		}

		successRate := 0.0
		if currentRate > 0 {
			successRate = float64(batchSuccesses) / float64(currentRate)
		}

		increment := spec.Increment
		if spec.AdaptiveIncrement && successRate > spec.AdaptiveThreshold {
			increment = int(float64(spec.Increment) * spec.AdaptiveMultiplier)
			adaptiveIncrements++
		}
		currentRate += increment

		if !spec.Aggressive {
			t.padToWindow(ctx, iterStart, spec.WindowSeconds)
		}
	}

	if ctx.Err() != nil && len(result.Diagnostics) == 0 {
		result.Diagnostics = append(result.Diagnostics, "cancelled")
	}

	result.RequestsIssued = requestsIssued
	result.Successes = successes
	result.ServerErrors = serverErrors
	if requestsIssued > 0 {
		result.ErrorRate = float64(requestsIssued-successes) / float64(requestsIssued)
		result.MeanLatency = totalLatency / time.Duration(requestsIssued)
	}
	result.Duration = time.Since(start)
	result.AdaptiveIncrements = adaptiveIncrements

	return result
}

// runBatch sends up to currentRate requests paced evenly across spec's
// window, stopping early the moment it hits a rate limit - after sleeping
// min(disclosed Retry-After, 10s) as a safety guard before reporting back.
// It returns the number of successes in the batch, the limit it found (nil
// if none), any disclosed Retry-After in seconds, and whether the caller
// should stop ramping entirely (context cancelled).
func (t *Tester) runBatch(ctx context.Context, currentRate int, spec ratelimit.TierSpec, requestsIssued, successes, serverErrors *int, totalLatency *time.Duration) (int, *ratelimit.RateLimit, int, bool) {
	limiter := rate.NewLimiter(rate.Limit(float64(currentRate)/float64(spec.WindowSeconds)), 1)

	batchSuccesses := 0
	for i := 0; i < currentRate; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return batchSuccesses, nil, 0, true
		}

		probeResult, err := t.Client.Probe(ctx, t.Method)
		*requestsIssued++
		*totalLatency += probeResult.Latency

		switch {
		case err == nil && probeResult.StatusCode >= 200 && probeResult.StatusCode < 300:
			*successes++
			batchSuccesses++
		case probeResult.StatusCode == http.StatusTooManyRequests:
			limit := t.findMatchingLimit(probeResult.Limits, spec)
			if limit == nil {
				synthesized, synthErr := ratelimit.NewRateLimit(max(currentRate-1, 1), 0, nil, spec.WindowSeconds, ratelimit.SourceProbed)
				if synthErr == nil {
					limit = &synthesized
				}
			}
			retryAfterSeconds := t.sleepRetryAfter(ctx, probeResult)
			return batchSuccesses, limit, retryAfterSeconds, false
		case probeResult.StatusCode >= 500:
			*serverErrors++
		}

		if ctx.Err() != nil {
			return batchSuccesses, nil, 0, true
		}
	}

	return batchSuccesses, nil, 0, false
}

// sleepRetryAfter waits min(disclosed Retry-After, maxRetryAfterSleep)
// before the ramp loop moves on from a 429, honoring the server's own
// recovery estimate as a safety guard against hammering it further. Returns
// the disclosed Retry-After in whole seconds (0 if none was disclosed).
func (t *Tester) sleepRetryAfter(ctx context.Context, probeResult httpclient.ProbeResult) int {
	if !probeResult.RetryAfterFound {
		return 0
	}

	wait := probeResult.RetryAfter
	if wait > maxRetryAfterSleep {
		wait = maxRetryAfterSleep
	}
	if wait > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}

	return int(probeResult.RetryAfter.Round(time.Second).Seconds())
}

// findMatchingLimit prefers a header-disclosed limit whose window matches
// spec's window over the synthesized "one less than current rate" guess.
func (t *Tester) findMatchingLimit(limits []ratelimit.RateLimit, spec ratelimit.TierSpec) *ratelimit.RateLimit {
	for i := range limits {
		if limits[i].WindowSeconds == spec.WindowSeconds {
			return &limits[i]
		}
	}
	return nil
}

// padToWindow sleeps the remainder of spec's window after an iteration
// finished early, so each ramp iteration represents one full window.
// Skipped entirely when spec.Aggressive requests back-to-back ramping
// instead of one window per iteration.
func (t *Tester) padToWindow(ctx context.Context, iterStart time.Time, windowSeconds int) {
	remaining := time.Duration(windowSeconds)*time.Second - time.Since(iterStart)
	if remaining <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(remaining):
	}
}
