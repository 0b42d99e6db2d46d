// Package headeranalyzer turns the rate-limit headers a server discloses on
// a single response into ratelimit.RateLimit values, without sending a
// single extra request. It is the cheapest of the two detection methods the
// detector runs (the other being tiertester's active ramp probing), and is
// always tried first.
package headeranalyzer

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/suenot/rate-limit-optimizer/helpers"
	"github.com/suenot/rate-limit-optimizer/ratelimit"
)

// basicLimitNames, basicRemainingNames and basicResetNames list the header
// name families a server might use to
// disclose a single, tier-less limit. Go's http.Header canonicalizes keys,
// so each entry here must already be in canonical form.
var (
	basicLimitNames     = []string{"X-Ratelimit-Limit", "X-Rate-Limit-Limit", "Ratelimit-Limit", "X-Api-Limit"}
	basicRemainingNames = []string{"X-Ratelimit-Remaining", "X-Rate-Limit-Remaining", "Ratelimit-Remaining", "X-Api-Remaining"}
	basicResetNames     = []string{"X-Ratelimit-Reset", "X-Rate-Limit-Reset", "Ratelimit-Reset", "X-Api-Reset"}
)

// defaultBasicWindowSeconds is assumed for a basic (tier-less) disclosure,
// since the majority of APIs that emit unqualified X-RateLimit-* headers
// are windowing per minute. Callers that know better should prefer the
// tier-qualified headers extractTierLimits already understands.
const defaultBasicWindowSeconds = 60

// tierPattern pairs a fixed tier label with the header-name substrings a
// server might use to qualify a limit header for that window.
type tierPattern struct {
	label         ratelimit.TierLabel
	windowSeconds int
	substrings    []string
}

var tierPatterns = []tierPattern{
	{ratelimit.Tier10Seconds, 10, []string{"10s", "10sec", "burst"}},
	{ratelimit.TierMinute, 60, []string{"minute", "per-min", "1m"}},
	{ratelimit.TierFifteenMin, 900, []string{"15min", "15-minute", "quarterhour"}},
	{ratelimit.TierHour, 3600, []string{"hour", "hourly"}},
	{ratelimit.TierDay, 86400, []string{"day", "daily"}},
}

// Analyzer extracts RateLimit values from response headers. It carries no
// state and is safe for concurrent use across tier testers and requests.
type Analyzer struct{}

// New returns a ready-to-use Analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// Extract parses every rate limit disclosure it can find in headers,
// combining a basic tier-less reading, any tier-qualified headers, and a
// standalone Retry-After, then removes duplicates by window, keeping the
// first (highest-precedence) reading for each.
func (a *Analyzer) Extract(headers http.Header, now time.Time) []ratelimit.RateLimit {
	var found []ratelimit.RateLimit

	if basic, ok := a.extractBasicLimit(headers, now); ok {
		found = append(found, basic)
	}
	found = append(found, a.extractTierLimits(headers, now)...)
	if retry, ok := a.extractRetryAfterLimit(headers, now); ok {
		found = append(found, retry)
	}

	return a.filterValid(found)
}

func (a *Analyzer) extractBasicLimit(headers http.Header, now time.Time) (ratelimit.RateLimit, bool) {
	limit, ok := firstIntHeader(headers, basicLimitNames)
	if !ok || limit <= 0 {
		return ratelimit.RateLimit{}, false
	}

	remaining, ok := firstIntHeader(headers, basicRemainingNames)
	if !ok {
		remaining = limit
	}

	resetAt := parseResetHeader(headers, basicResetNames, now)

	rl, err := ratelimit.NewRateLimit(limit, remaining, resetAt, defaultBasicWindowSeconds, ratelimit.SourceHeader)
	if err != nil {
		return ratelimit.RateLimit{}, false
	}
	return rl, true
}

// extractTierLimits walks every header actually present on the response
// looking for one that names a limit and matches a tier's substrings, then
// looks for the remaining/reset counterpart of that exact header name.
func (a *Analyzer) extractTierLimits(headers http.Header, now time.Time) []ratelimit.RateLimit {
	var out []ratelimit.RateLimit

	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		lower := strings.ToLower(name)
		if !strings.Contains(lower, "limit") || strings.Contains(lower, "remaining") || strings.Contains(lower, "reset") {
			continue
		}

		tier, matched := matchTier(lower)
		if !matched {
			continue
		}

		limit, err := strconv.Atoi(strings.TrimSpace(values[0]))
		if err != nil || limit <= 0 {
			continue
		}

		remaining := limit
		if v := headers.Get(strings.Replace(name, "Limit", "Remaining", 1)); v != "" {
			if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				remaining = parsed
			}
		}

		resetAt := parseResetHeader(headers, []string{strings.Replace(name, "Limit", "Reset", 1)}, now)

		rl, err := ratelimit.NewRateLimit(limit, remaining, resetAt, tier.windowSeconds, ratelimit.SourceHeader)
		if err != nil {
			continue
		}
		out = append(out, rl)
	}

	return out
}

// extractRetryAfterLimit turns a standalone Retry-After header (no
// accompanying X-RateLimit-* triplet) into a RateLimit: the server hasn't
// disclosed a ceiling, only that the caller is blocked until ResetAt, so
// this is modeled as a fully exhausted one-request window sized to the
// disclosed wait.
func (a *Analyzer) extractRetryAfterLimit(headers http.Header, now time.Time) (ratelimit.RateLimit, bool) {
	wait, ok := helpers.ParseRetryAfter(headers, now)
	if !ok || wait <= 0 {
		return ratelimit.RateLimit{}, false
	}

	windowSeconds := int(wait.Round(time.Second).Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	resetAt := now.Add(wait)

	rl, err := ratelimit.NewRateLimit(1, 0, &resetAt, windowSeconds, ratelimit.SourceHeader)
	if err != nil {
		return ratelimit.RateLimit{}, false
	}
	return rl, true
}

// filterValid deduplicates by window, keeping the first reading encountered
// per window in Extract's order: the tier-less basic reading, then the
// tier-qualified readings (in header map iteration order), then Retry-After.
func (a *Analyzer) filterValid(limits []ratelimit.RateLimit) []ratelimit.RateLimit {
	seen := make(map[int]bool, len(limits))
	out := make([]ratelimit.RateLimit, 0, len(limits))
	for _, rl := range limits {
		if seen[rl.WindowSeconds] {
			continue
		}
		seen[rl.WindowSeconds] = true
		out = append(out, rl)
	}
	return out
}

func matchTier(lowerHeaderName string) (tierPattern, bool) {
	for _, tp := range tierPatterns {
		for _, sub := range tp.substrings {
			if strings.Contains(lowerHeaderName, sub) {
				return tp, true
			}
		}
	}
	return tierPattern{}, false
}

func firstIntHeader(headers http.Header, names []string) (int, bool) {
	for _, name := range names {
		v := headers.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

// parseResetHeader tries each candidate header name as a Unix epoch seconds
// value, a delta-seconds-from-now value, or an RFC3339 timestamp (some APIs
// disclose X-RateLimit-Reset as an ISO8601 date rather than a number). It
// returns nil if none of the candidates parse.
func parseResetHeader(headers http.Header, names []string, now time.Time) *time.Time {
	for _, name := range names {
		v := strings.TrimSpace(headers.Get(name))
		if v == "" {
			continue
		}

		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			// Epoch seconds are unambiguously large; a delta-from-now value
			// for any tier this module probes never exceeds a day.
			var t time.Time
			if n > 86400 {
				t = time.Unix(n, 0)
			} else {
				t = now.Add(time.Duration(n) * time.Second)
			}
			return &t
		}

		if t, err := helpers.ParseISO8601Date(v); err == nil {
			return &t
		}
	}
	return nil
}
