// Package ratelimit holds the core domain types shared by every component
// of the rate-limit detector: the header analyzer, the fault tolerance
// layer, the endpoint rotator, the tier tester, and the multi-tier
// detector. None of these types talk to the network; they are the nouns
// the rest of the module operates on.
package ratelimit

import (
	"fmt"
	"time"
)

// DetectionSource tags how a RateLimit was discovered.
type DetectionSource string

const (
	SourceHeader DetectionSource = "HEADER"
	SourceProbed DetectionSource = "PROBED"
)

// TierLabel names one of the fixed probing windows.
type TierLabel string

const (
	Tier10Seconds  TierLabel = "10s"
	TierMinute     TierLabel = "1m"
	TierFifteenMin TierLabel = "15m"
	TierHour       TierLabel = "1h"
	TierDay        TierLabel = "1d"
)

// tierWindowSeconds maps every fixed tier label to its window length, used
// to translate a window duration discovered on the wire into a label for
// MultiTierResult's per-tier slots.
var tierWindowSeconds = map[TierLabel]int{
	Tier10Seconds:  10,
	TierMinute:     60,
	TierFifteenMin: 900,
	TierHour:       3600,
	TierDay:        86400,
}

// TierLabelForWindow returns the fixed tier label matching windowSeconds,
// or "" if the window doesn't correspond to one of the five fixed tiers.
func TierLabelForWindow(windowSeconds int) TierLabel {
	for label, secs := range tierWindowSeconds {
		if secs == windowSeconds {
			return label
		}
	}
	return ""
}

// WindowSecondsForTier is the inverse of TierLabelForWindow.
func WindowSecondsForTier(label TierLabel) (int, bool) {
	secs, ok := tierWindowSeconds[label]
	return secs, ok
}

// RateLimit is one disclosed or inferred limit for a single time window.
// Invariant: Remaining <= Ceiling; violations observed on the wire are
// clamped at construction time, never rejected.
type RateLimit struct {
	Ceiling       int
	Remaining     int
	ResetAt       *time.Time
	WindowSeconds int
	Source        DetectionSource
}

// NewRateLimit builds a RateLimit, clamping Remaining into [0, Ceiling] per
// spec.md §3's invariant and §8's boundary behaviors ("remaining = ceiling+1
// on the wire -> record with remaining = ceiling").
func NewRateLimit(ceiling, remaining int, resetAt *time.Time, windowSeconds int, source DetectionSource) (RateLimit, error) {
	if ceiling <= 0 {
		return RateLimit{}, fmt.Errorf("ratelimit: ceiling must be > 0, got %d", ceiling)
	}
	if windowSeconds <= 0 {
		return RateLimit{}, fmt.Errorf("ratelimit: window_seconds must be > 0, got %d", windowSeconds)
	}
	if remaining < 0 {
		remaining = 0
	} else if remaining > ceiling {
		remaining = ceiling
	}
	return RateLimit{
		Ceiling:       ceiling,
		Remaining:     remaining,
		ResetAt:       resetAt,
		WindowSeconds: windowSeconds,
		Source:        source,
	}, nil
}

// PermittedRate is the derived requests-per-second ceiling implies.
func (r RateLimit) PermittedRate() float64 {
	return float64(r.Ceiling) / float64(r.WindowSeconds)
}

// TierSpec is a read-only probe configuration for one time window.
// Invariant: MaxRate > StartRate.
type TierSpec struct {
	Label             TierLabel
	WindowSeconds     int
	StartRate         int
	MaxRate           int
	Increment         int
	MaxTestDuration   time.Duration
	AdaptiveIncrement bool
	Aggressive        bool
	// AdaptiveThreshold and AdaptiveMultiplier expose the otherwise
	// hard-coded 0.95 success-ratio trigger and 2x doubling factor from
	// the original implementation (spec.md §9 Open Question), so tests
	// can pin them.
	AdaptiveThreshold  float64
	AdaptiveMultiplier float64
}

// NewTierSpec validates and returns a TierSpec, applying the adaptive
// defaults (0.95 / 2.0) when unset.
func NewTierSpec(label TierLabel, windowSeconds, startRate, maxRate, increment int, maxTestDuration time.Duration, adaptiveIncrement, aggressive bool) (TierSpec, error) {
	if windowSeconds <= 0 {
		return TierSpec{}, fmt.Errorf("ratelimit: window_seconds must be > 0")
	}
	if startRate <= 0 {
		return TierSpec{}, fmt.Errorf("ratelimit: start_rate must be > 0")
	}
	if maxRate <= startRate {
		return TierSpec{}, fmt.Errorf("ratelimit: max_rate (%d) must be > start_rate (%d)", maxRate, startRate)
	}
	if increment <= 0 {
		return TierSpec{}, fmt.Errorf("ratelimit: increment must be > 0")
	}
	if maxTestDuration <= 0 {
		return TierSpec{}, fmt.Errorf("ratelimit: max_test_duration must be > 0")
	}
	return TierSpec{
		Label:              label,
		WindowSeconds:      windowSeconds,
		StartRate:          startRate,
		MaxRate:            maxRate,
		Increment:          increment,
		MaxTestDuration:    maxTestDuration,
		AdaptiveIncrement:  adaptiveIncrement,
		Aggressive:         aggressive,
		AdaptiveThreshold:  0.95,
		AdaptiveMultiplier: 2.0,
	}, nil
}

// TierResult is the outcome of testing one TierSpec.
type TierResult struct {
	Label              TierLabel
	LimitFound         bool
	Limit              *RateLimit
	RequestsIssued     int
	Successes          int
	ServerErrors       int
	ErrorRate          float64
	MeanLatency        time.Duration
	Duration           time.Duration
	BackoffTriggered   bool
	RetryAfterSeconds  int
	RateWhenLimited    int
	AdaptiveIncrements int
	Diagnostics        []string
}

// MultiTierResult is the Detector's immutable aggregate output.
type MultiTierResult struct {
	Timestamp           time.Time
	BaseURL             string
	Endpoints           []string
	TierLimits          map[TierLabel]*RateLimit
	MostRestrictive     TierLabel
	RecommendedRate     int
	LimitsFound         int
	TotalRequests       int
	TotalDuration       time.Duration
	TierResults         []TierResult
	Confidence          float64
	ConsistencyWarnings []string
}

// EndpointEntry is a rotator-managed endpoint: path, weight, health, and any
// per-endpoint inferred limit, plus a rolling latency window used by the
// performance-adaptive weighted strategy.
type EndpointEntry struct {
	Path            string
	Weight          float64
	Limit           *RateLimit
	Healthy         bool
	RecentLatencies []time.Duration
}

// ErrorCategory is the sum-type tag carried by every outbound request
// outcome, replacing the exception hierarchy the source used (spec.md §9
// "Exception-driven classification").
type ErrorCategory string

const (
	CategoryRateLimit   ErrorCategory = "rate_limit"
	CategoryServerError ErrorCategory = "server_error"
	CategoryNetwork     ErrorCategory = "network_error"
	CategoryTimeout     ErrorCategory = "timeout"
	CategoryAuth        ErrorCategory = "auth_error"
	CategoryNotFound    ErrorCategory = "not_found"
	CategoryOther       ErrorCategory = "other"
	CategoryCancelled   ErrorCategory = "cancelled"
	CategoryBreakerOpen ErrorCategory = "breaker_open"
)
