package faulttolerance

import (
	"sync"

	"github.com/suenot/rate-limit-optimizer/ratelimit"
)

// Stats accumulates error counters across an Executor's lifetime, the
// equivalent of the original detector's ErrorStats aggregate. Safe for
// concurrent use since tier tests run in parallel against the same client.
type Stats struct {
	mu               sync.Mutex
	totalRequests    int
	totalErrors      int
	errorsByCategory map[ratelimit.ErrorCategory]int
}

// NewStats returns an empty Stats.
func NewStats() *Stats {
	return &Stats{errorsByCategory: make(map[ratelimit.ErrorCategory]int)}
}

// RecordSuccess counts one successful request.
func (s *Stats) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRequests++
}

// RecordError counts one failed request under category.
func (s *Stats) RecordError(category ratelimit.ErrorCategory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRequests++
	s.totalErrors++
	s.errorsByCategory[category]++
}

// TotalRequests returns the total number of recorded requests (successes
// and errors).
func (s *Stats) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalRequests
}

// ErrorRate returns the fraction of recorded requests that errored, 0 if
// nothing has been recorded yet.
func (s *Stats) ErrorRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.totalRequests == 0 {
		return 0
	}
	return float64(s.totalErrors) / float64(s.totalRequests)
}

// ErrorsByCategory returns a snapshot copy of the per-category error
// counts.
func (s *Stats) ErrorsByCategory() map[ratelimit.ErrorCategory]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[ratelimit.ErrorCategory]int, len(s.errorsByCategory))
	for k, v := range s.errorsByCategory {
		out[k] = v
	}
	return out
}
