// Package helpers holds small parsing utilities shared across the module
// that don't belong to any single domain package: date/time parsing and
// the Retry-After header convention (either delta-seconds or an HTTP-date).
package helpers

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ParseISO8601Date parses an RFC3339 timestamp, the canonical form ISO8601
// timestamps take on the wire (rate-limit reset times, result storage
// timestamps).
func ParseISO8601Date(dateStr string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(dateStr))
}

// ParseRetryAfter reads the Retry-After header per RFC 9110 §10.2.3: either
// an integer number of seconds, or an HTTP-date. It returns ok=false if the
// header is absent or unparseable as either form.
func ParseRetryAfter(headers http.Header, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(headers.Get("Retry-After"))
	if v == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}

	if when, err := http.ParseTime(v); err == nil {
		d := when.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}
