// Package rotator spreads probe traffic across a pool of equivalent
// endpoints (mirrors, regional hosts, or API keys fronting the same
// service) so a single endpoint's rate limit doesn't become the
// detector's bottleneck. It is grounded on the rotation strategies the
// detector this module replaces implemented as a class hierarchy
// (RandomRotationStrategy, SequentialRotationStrategy,
// WeightedRotationStrategy, PatternAvoidanceRotationStrategy); Go has no
// inheritance, so the four strategies are one type switch inside Rotator
// rather than four types behind an interface.
package rotator

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/suenot/rate-limit-optimizer/ratelimit"
)

// Policy selects which endpoint-selection algorithm a Rotator uses.
type Policy string

const (
	PolicyRandom           Policy = "random"
	PolicySequential       Policy = "sequential"
	PolicyWeighted         Policy = "weighted"
	PolicyPatternAvoidance Policy = "pattern_avoidance"
)

const (
	defaultPerformanceWindow  = 10
	defaultWeightAdjustment   = 0.1
	defaultPatternWindow      = 5
	defaultMaxConsecutiveSame = 2
	defaultRandomization      = 0.3
)

var errNoEndpoints = errors.New("rotator: no endpoints configured")

// RotationMetrics summarizes how evenly a Rotator has spread traffic and
// what it has learned about each endpoint.
type RotationMetrics struct {
	RequestsPerEndpoint map[string]int
	RotationEfficiency  float64
	DetectedLimits      map[string]*ratelimit.RateLimit
	HealthStatus        map[string]bool
	NormalizedWeights   map[string]float64
}

// Rotator selects the next endpoint to probe and tracks each endpoint's
// health, inferred rate limit, and recent latency. All mutation happens
// under a single mutex; Rotator is meant to be shared across concurrently
// running tier tests.
type Rotator struct {
	mu sync.Mutex

	policy                   Policy
	endpoints                []*ratelimit.EndpointEntry
	rotationIntervalRequests int
	avoidConsecutiveRepeats  bool
	respectWeights           bool

	requestCount      int
	seqIndex          int
	lastEndpoint      string
	history           []string
	requestsSeen      map[string]int
	failureRetryDelay time.Duration
}

// New builds a Rotator over paths, all starting healthy with equal weight.
func New(policy Policy, paths []string, rotationIntervalRequests int) *Rotator {
	endpoints := make([]*ratelimit.EndpointEntry, 0, len(paths))
	for _, p := range paths {
		endpoints = append(endpoints, &ratelimit.EndpointEntry{Path: p, Weight: 1.0, Healthy: true})
	}
	if rotationIntervalRequests <= 0 {
		rotationIntervalRequests = 1
	}
	return &Rotator{
		policy:                   policy,
		endpoints:                endpoints,
		rotationIntervalRequests: rotationIntervalRequests,
		avoidConsecutiveRepeats:  true,
		respectWeights:           true,
		requestsSeen:             make(map[string]int),
		failureRetryDelay:        time.Second,
	}
}

// AddEndpoint adds a new, healthy, default-weight endpoint to the pool.
func (r *Rotator) AddEndpoint(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints = append(r.endpoints, &ratelimit.EndpointEntry{Path: path, Weight: 1.0, Healthy: true})
}

// RemoveEndpoint drops path from the pool.
func (r *Rotator) RemoveEndpoint(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.endpoints {
		if e.Path == path {
			r.endpoints = append(r.endpoints[:i], r.endpoints[i+1:]...)
			return
		}
	}
}

// NextEndpoint returns the path to probe next, preferring healthy
// endpoints and falling back to the full pool only if every endpoint is
// currently marked unhealthy.
func (r *Rotator) NextEndpoint() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.endpoints) == 0 {
		return "", errNoEndpoints
	}

	candidates := r.healthyEndpoints()
	if len(candidates) == 0 {
		candidates = r.endpoints
	}

	var chosen string
	switch r.policy {
	case PolicySequential:
		chosen = r.nextSequential(candidates)
	case PolicyWeighted:
		chosen = r.nextWeighted(candidates)
	case PolicyPatternAvoidance:
		chosen = r.nextPatternAvoiding(candidates)
	default:
		chosen = r.nextRandom(candidates)
	}

	r.requestCount++
	r.lastEndpoint = chosen
	r.requestsSeen[chosen]++
	r.recordHistory(chosen)

	return chosen, nil
}

func (r *Rotator) healthyEndpoints() []*ratelimit.EndpointEntry {
	out := make([]*ratelimit.EndpointEntry, 0, len(r.endpoints))
	for _, e := range r.endpoints {
		if e.Healthy {
			out = append(out, e)
		}
	}
	return out
}

func (r *Rotator) recordHistory(path string) {
	r.history = append(r.history, path)
	if len(r.history) > defaultPatternWindow*2 {
		r.history = r.history[len(r.history)-defaultPatternWindow*2:]
	}
}

// shouldRotate reports whether this request count crosses a rotation
// boundary, used by the sequential strategy to hold an endpoint for
// rotationIntervalRequests calls before advancing.
func (r *Rotator) shouldRotate() bool {
	return (r.requestCount+1)%r.rotationIntervalRequests == 0
}

func (r *Rotator) nextRandom(candidates []*ratelimit.EndpointEntry) string {
	pool := candidates
	if r.avoidConsecutiveRepeats && len(candidates) > 1 {
		filtered := make([]*ratelimit.EndpointEntry, 0, len(candidates))
		for _, e := range candidates {
			if e.Path != r.lastEndpoint {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) > 0 {
			pool = filtered
		}
	}
	return pool[rand.Intn(len(pool))].Path
}

func (r *Rotator) nextSequential(candidates []*ratelimit.EndpointEntry) string {
	if r.seqIndex >= len(candidates) {
		r.seqIndex = 0
	}
	chosen := candidates[r.seqIndex].Path
	if r.shouldRotate() {
		r.seqIndex = (r.seqIndex + 1) % len(candidates)
	}
	return chosen
}

func (r *Rotator) nextWeighted(candidates []*ratelimit.EndpointEntry) string {
	total := 0.0
	for _, e := range candidates {
		w := e.Weight
		if !r.respectWeights || w <= 0 {
			w = 1.0
		}
		total += w
	}
	if total <= 0 {
		return candidates[rand.Intn(len(candidates))].Path
	}

	target := rand.Float64() * total
	cumulative := 0.0
	for _, e := range candidates {
		w := e.Weight
		if !r.respectWeights || w <= 0 {
			w = 1.0
		}
		cumulative += w
		if target <= cumulative {
			return e.Path
		}
	}
	return candidates[len(candidates)-1].Path
}

func (r *Rotator) nextPatternAvoiding(candidates []*ratelimit.EndpointEntry) string {
	if rand.Float64() < defaultRandomization {
		return r.nextRandom(candidates)
	}

	filtered := r.filterConsecutiveRepeats(candidates)
	filtered = r.filterPatterns(filtered)
	if len(filtered) == 0 {
		filtered = candidates
	}
	return filtered[rand.Intn(len(filtered))].Path
}

// filterConsecutiveRepeats drops an endpoint from candidates if it has
// appeared as the last defaultMaxConsecutiveSame entries in history.
func (r *Rotator) filterConsecutiveRepeats(candidates []*ratelimit.EndpointEntry) []*ratelimit.EndpointEntry {
	if len(r.history) < defaultMaxConsecutiveSame {
		return candidates
	}
	tail := r.history[len(r.history)-defaultMaxConsecutiveSame:]
	allSame := true
	for _, h := range tail {
		if h != tail[0] {
			allSame = false
			break
		}
	}
	if !allSame {
		return candidates
	}
	out := make([]*ratelimit.EndpointEntry, 0, len(candidates))
	for _, e := range candidates {
		if e.Path != tail[0] {
			out = append(out, e)
		}
	}
	return out
}

// filterPatterns detects a repeating 2-gram in the recent history
// (history[i:i+2] == history[i+2:i+4]) and excludes the endpoint that
// would continue it.
func (r *Rotator) filterPatterns(candidates []*ratelimit.EndpointEntry) []*ratelimit.EndpointEntry {
	n := len(r.history)
	if n < 4 {
		return candidates
	}
	window := r.history
	if n > defaultPatternWindow {
		window = r.history[n-defaultPatternWindow:]
	}
	wn := len(window)
	if wn < 4 {
		return candidates
	}
	if window[wn-4] != window[wn-2] || window[wn-3] != window[wn-1] {
		return candidates
	}
	wouldContinue := window[wn-4]
	out := make([]*ratelimit.EndpointEntry, 0, len(candidates))
	for _, e := range candidates {
		if e.Path != wouldContinue {
			out = append(out, e)
		}
	}
	return out
}

// RecordResult updates an endpoint's health, latency window, and any
// inferred per-endpoint limit after a probe against it completes.
func (r *Rotator) RecordResult(path string, statusCode int, latency time.Duration, limit *ratelimit.RateLimit) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.find(path)
	if e == nil {
		return
	}

	e.Healthy = statusCode < 500 && statusCode != 0
	e.RecentLatencies = append(e.RecentLatencies, latency)
	if len(e.RecentLatencies) > defaultPerformanceWindow {
		e.RecentLatencies = e.RecentLatencies[len(e.RecentLatencies)-defaultPerformanceWindow:]
	}
	if limit != nil {
		e.Limit = limit
	}

	if r.policy == PolicyWeighted {
		r.adaptWeight(e)
	}
}

// adaptWeight nudges an endpoint's weight toward endpoints that respond
// faster, mirroring _adapt_weights_by_performance's
// performance_factor = 1/avg_response_time.
func (r *Rotator) adaptWeight(e *ratelimit.EndpointEntry) {
	if len(e.RecentLatencies) == 0 {
		return
	}
	var total time.Duration
	for _, l := range e.RecentLatencies {
		total += l
	}
	avg := total / time.Duration(len(e.RecentLatencies))
	if avg <= 0 {
		return
	}
	performanceFactor := time.Second.Seconds() / avg.Seconds()
	adjustment := performanceFactor * defaultWeightAdjustment
	e.Weight += adjustment
	if e.Weight < 0.01 {
		e.Weight = 0.01
	}
}

func (r *Rotator) find(path string) *ratelimit.EndpointEntry {
	for _, e := range r.endpoints {
		if e.Path == path {
			return e
		}
	}
	return nil
}

// Metrics snapshots the rotator's bookkeeping for reporting.
func (r *Rotator) Metrics() RotationMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	requests := make(map[string]int, len(r.endpoints))
	limits := make(map[string]*ratelimit.RateLimit, len(r.endpoints))
	health := make(map[string]bool, len(r.endpoints))
	weights := r.normalizedWeightsLocked()

	for _, e := range r.endpoints {
		requests[e.Path] = r.requestsSeen[e.Path]
		limits[e.Path] = e.Limit
		health[e.Path] = e.Healthy
	}

	return RotationMetrics{
		RequestsPerEndpoint: requests,
		RotationEfficiency:  r.rotationEfficiencyLocked(),
		DetectedLimits:      limits,
		HealthStatus:        health,
		NormalizedWeights:   weights,
	}
}

// rotationEfficiencyLocked scores how evenly traffic spread across
// endpoints using 1 minus the coefficient of variation of per-endpoint
// request counts, clamped at zero. A perfectly even split scores 1.0.
func (r *Rotator) rotationEfficiencyLocked() float64 {
	if len(r.endpoints) < 2 {
		return 1.0
	}
	counts := make([]float64, 0, len(r.endpoints))
	var sum float64
	for _, e := range r.endpoints {
		c := float64(r.requestsSeen[e.Path])
		counts = append(counts, c)
		sum += c
	}
	if sum == 0 {
		return 1.0
	}
	mean := sum / float64(len(counts))
	var variance float64
	for _, c := range counts {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(counts))
	stddev := math.Sqrt(variance)
	if mean == 0 {
		return 1.0
	}
	cv := stddev / mean
	efficiency := 1 - cv
	if efficiency < 0 {
		efficiency = 0
	}
	return efficiency
}

func (r *Rotator) normalizedWeightsLocked() map[string]float64 {
	total := 0.0
	for _, e := range r.endpoints {
		total += e.Weight
	}
	out := make(map[string]float64, len(r.endpoints))
	if total <= 0 {
		for _, e := range r.endpoints {
			out[e.Path] = 1.0 / float64(len(r.endpoints))
		}
		return out
	}
	for _, e := range r.endpoints {
		out[e.Path] = e.Weight / total
	}
	return out
}
