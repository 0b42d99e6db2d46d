// Package detector runs the full multi-tier rate-limit discovery process:
// a cheap header probe first, then active ramp tests across every
// configured tier (sequentially or in parallel, bounded by a concurrency
// limit), merged into one MultiTierResult with a recommended safe request
// rate. It is the Go port of the detector this module replaces's
// MultiTierDetector.detect_all_rate_limits.
package detector

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/suenot/rate-limit-optimizer/httpclient"
	"github.com/suenot/rate-limit-optimizer/logger"
	"github.com/suenot/rate-limit-optimizer/ratelimit"
	"github.com/suenot/rate-limit-optimizer/tiertester"
)

// consistencyTolerance is the fraction by which a shorter tier's permitted
// rate may exceed the next longer tier's before a consistency warning is
// raised (e.g. a per-minute limit implying a much higher throughput than
// the per-hour limit actually allows).
const consistencyTolerance = 0.10

// Prober is the subset of httpclient.Client Detect needs for its
// preliminary header probe.
type Prober interface {
	Probe(ctx context.Context, method string) (httpclient.ProbeResult, error)
}

// Detector runs header analysis followed by active tier testing against a
// target site.
type Detector struct {
	Client             Prober
	Logger             logger.Logger
	MaxConcurrentTiers int
	StopOnFirstLimit   bool
}

// New builds a Detector. maxConcurrentTiers <= 1 runs tiers sequentially.
func New(client Prober, log logger.Logger, maxConcurrentTiers int, stopOnFirstLimit bool) *Detector {
	if maxConcurrentTiers <= 0 {
		maxConcurrentTiers = 1
	}
	return &Detector{Client: client, Logger: log, MaxConcurrentTiers: maxConcurrentTiers, StopOnFirstLimit: stopOnFirstLimit}
}

// Detect probes headers once, then active-tests every tier in tiers,
// merges everything it found, and computes the most restrictive tier and
// a recommended safe steady-state rate.
func (d *Detector) Detect(ctx context.Context, baseURL string, endpoints []string, tiers []ratelimit.TierSpec, safetyMarginPercent float64) (ratelimit.MultiTierResult, error) {
	result := ratelimit.MultiTierResult{
		BaseURL:    baseURL,
		Endpoints:  endpoints,
		TierLimits: make(map[ratelimit.TierLabel]*ratelimit.RateLimit),
	}

	headerProbe, err := d.Client.Probe(ctx, http.MethodGet)
	if err == nil {
		for i := range headerProbe.Limits {
			d.mergeLimit(&result, headerProbe.Limits[i])
		}
	}

	tierResults := d.testTiers(ctx, tiers)
	result.TierResults = tierResults

	for _, tr := range tierResults {
		result.TotalRequests += tr.RequestsIssued
		result.TotalDuration += tr.Duration
		if tr.LimitFound && tr.Limit != nil {
			d.mergeLimit(&result, *tr.Limit)
		}
	}

	result.LimitsFound = len(result.TierLimits)
	d.assignMostRestrictive(&result)
	d.computeRecommendedRate(&result, safetyMarginPercent)
	result.ConsistencyWarnings = d.validateConsistency(result.TierLimits)
	result.Confidence = d.confidence(tierResults)

	return result, nil
}

// mergeLimit records limit under its tier label, keeping the
// tighter (lower-ceiling) reading if two sources disagree for the same
// window.
func (d *Detector) mergeLimit(result *ratelimit.MultiTierResult, limit ratelimit.RateLimit) {
	label := ratelimit.TierLabelForWindow(limit.WindowSeconds)
	if label == "" {
		return
	}
	existing, ok := result.TierLimits[label]
	if !ok || limit.Ceiling < existing.Ceiling {
		l := limit
		result.TierLimits[label] = &l
	}
}

// testTiers runs every tier's ramp test, sequentially or bounded-parallel
// depending on MaxConcurrentTiers, honoring StopOnFirstLimit.
func (d *Detector) testTiers(ctx context.Context, tiers []ratelimit.TierSpec) []ratelimit.TierResult {
	if d.MaxConcurrentTiers <= 1 {
		return d.testTiersSequential(ctx, tiers)
	}
	return d.testTiersParallel(ctx, tiers)
}

func (d *Detector) testTiersSequential(ctx context.Context, tiers []ratelimit.TierSpec) []ratelimit.TierResult {
	tester := tiertester.New(d.Client, d.Logger, "")
	results := make([]ratelimit.TierResult, 0, len(tiers))
	for _, spec := range tiers {
		r := tester.Test(ctx, spec)
		results = append(results, r)
		if d.StopOnFirstLimit && r.LimitFound {
			break
		}
	}
	return results
}

func (d *Detector) testTiersParallel(ctx context.Context, tiers []ratelimit.TierSpec) []ratelimit.TierResult {
	results := make([]ratelimit.TierResult, len(tiers))
	sem := make(chan struct{}, d.MaxConcurrentTiers)
	var wg sync.WaitGroup

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i, spec := range tiers {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, spec ratelimit.TierSpec) {
			defer wg.Done()
			defer func() { <-sem }()

			tester := tiertester.New(d.Client, d.Logger, "")
			r := tester.Test(runCtx, spec)
			results[i] = r

			if d.StopOnFirstLimit && r.LimitFound {
				cancel()
			}
		}(i, spec)
	}

	wg.Wait()
	return results
}

// assignMostRestrictive finds the tier whose disclosed or discovered limit
// implies the lowest sustainable requests-per-second, the tier an
// operator's steady-state rate should actually be bound by.
func (d *Detector) assignMostRestrictive(result *ratelimit.MultiTierResult) {
	var best ratelimit.TierLabel
	bestRate := -1.0
	for label, limit := range result.TierLimits {
		rate := limit.PermittedRate()
		if bestRate < 0 || rate < bestRate {
			bestRate = rate
			best = label
		}
	}
	result.MostRestrictive = best
}

// computeRecommendedRate derives a steady-state request rate from the most
// restrictive limit, shaved by safetyMarginPercent, and never below 1.
func (d *Detector) computeRecommendedRate(result *ratelimit.MultiTierResult, safetyMarginPercent float64) {
	limit, ok := result.TierLimits[result.MostRestrictive]
	if !ok {
		return
	}
	margin := safetyMarginPercent / 100
	recommended := int(float64(limit.Ceiling) * (1 - margin))
	if recommended < 1 {
		recommended = 1
	}
	result.RecommendedRate = recommended
}

// validateConsistency checks, for each adjacent pair of tiers sorted by
// window, that the shorter tier's rate extrapolated over the longer window
// doesn't exceed the longer tier's ceiling by more than consistencyTolerance
// - a 10s limit that implies far more per minute than the minute limit
// allows, say, which usually means one of the two readings is wrong.
func (d *Detector) validateConsistency(limits map[ratelimit.TierLabel]*ratelimit.RateLimit) []string {
	type entry struct {
		label  ratelimit.TierLabel
		window int
		rate   float64
	}
	entries := make([]entry, 0, len(limits))
	for label, limit := range limits {
		entries = append(entries, entry{label: label, window: limit.WindowSeconds, rate: limit.PermittedRate()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].window < entries[j].window })

	var warnings []string
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if cur.rate <= 0 {
			continue
		}
		diff := (prev.rate - cur.rate) / cur.rate
		if diff > consistencyTolerance {
			warnings = append(warnings, fmt.Sprintf("%s implies a higher rate (%.2f/s) than %s permits (%.2f/s); one of these readings may be stale", prev.label, prev.rate, cur.label, cur.rate))
		}
	}
	return warnings
}

// confidence scores how much of the tested tier set actually found a
// limit: 1.0 if every tested tier found one, 0 if none did.
func (d *Detector) confidence(results []ratelimit.TierResult) float64 {
	if len(results) == 0 {
		return 0
	}
	found := 0
	for _, r := range results {
		if r.LimitFound {
			found++
		}
	}
	return float64(found) / float64(len(results))
}
