// Package ratelimit implements request budget tracking and request gating.
// It monitors the X-Request-Limit-Remaining and X-Request-Limit-Reset
// response headers to stop the client before the API starts rejecting
// requests for the project.
package ratelimit

import (
	"time"
)

// Thresholds for rate limit decisions.
const (
	// ThresholdCritical blocks all requests when the remaining budget falls
	// below this value, keeping headroom for in-flight requests.
	ThresholdCritical = 5

	// ThresholdWarning applies throttling when the remaining budget falls
	// below this value, slowing consumption until the window resets.
	ThresholdWarning = 20

	// ThresholdHealthy indicates normal operation. At or above this value no
	// restrictions apply.
	ThresholdHealthy = 50
)

// State is the most recently observed request budget of the project. The SDK
// keeps it in process memory; every response refreshes it.
type State struct {
	// RequestsRemaining is the number of requests left in the current
	// window, from the X-Request-Limit-Remaining header.
	RequestsRemaining int

	// ResetAt is when the budget window resets, calculated from the
	// X-Request-Limit-Reset header (seconds until reset).
	ResetAt time.Time

	// LastUpdate is when this state was last refreshed from headers. Stale
	// state is discarded rather than acted on.
	LastUpdate time.Time

	// IsHealthy is true while RequestsRemaining is at or above
	// ThresholdHealthy.
	IsHealthy bool
}

// IsStale reports whether the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock reports whether requests must be blocked until the
// window resets.
func (s *State) NeedsCriticalBlock() bool {
	return s.RequestsRemaining < ThresholdCritical
}

// NeedsThrottling reports whether requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return s.RequestsRemaining < ThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the budget window resets, 0 if
// the reset time has passed.
func (s *State) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth recomputes IsHealthy from RequestsRemaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.RequestsRemaining >= ThresholdHealthy
}
