package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Response headers carrying the project's request budget.
const (
	HeaderRemaining = "X-Request-Limit-Remaining"
	HeaderReset     = "X-Request-Limit-Reset"
)

const (
	// maxStateAge bounds how long an observed state stays trustworthy.
	// Older observations are replaced by an optimistic default.
	maxStateAge = time.Minute

	// throttleDelay is the pause inserted before each request while the
	// budget is in the warning band.
	throttleDelay = time.Second
)

// Prometheus metrics for request budget tracking.
var (
	requestsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tidemark_requests_remaining",
		Help: "Number of requests remaining in current rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tidemark_rate_limit_blocks_total",
		Help: "Total number of requests blocked due to critical request budget",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tidemark_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to low request budget",
	})
)

// Tracker monitors the project's request budget and gates requests.
// It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	state  *State
	logger zerolog.Logger
}

// NewTracker creates a new request budget tracker.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		logger: logger,
	}
}

// GetState returns the current request budget state.
// Returns a default healthy state when nothing has been observed yet or the
// last observation is stale.
func (t *Tracker) GetState() *State {
	t.mu.Lock()
	state := t.state
	t.mu.Unlock()

	if state == nil || state.IsStale(maxStateAge) {
		return &State{
			RequestsRemaining: 100, // Assume healthy until we get real data
			ResetAt:           time.Now().Add(60 * time.Second),
			LastUpdate:        time.Now(),
			IsHealthy:         true,
		}
	}

	return state
}

// UpdateFromHeaders parses rate limit headers and updates the tracked state.
// Responses without the remaining header leave the state untouched.
func (t *Tracker) UpdateFromHeaders(headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		// Header not present - this is OK for some endpoints
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return fmt.Errorf("%s header missing", HeaderReset)
	}

	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	now := time.Now()
	state := &State{
		RequestsRemaining: remain,
		ResetAt:           now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate:        now,
	}
	state.UpdateHealth()

	t.mu.Lock()
	t.state = state
	t.mu.Unlock()

	requestsRemaining.Set(float64(remain))

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("requests_remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Request budget CRITICAL - requests will be blocked")
	} else if state.NeedsThrottling() {
		t.logger.Warn().
			Int("requests_remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Request budget WARNING - requests will be throttled")
	} else {
		t.logger.Info().
			Int("requests_remaining", remain).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Request budget state updated")
	}

	return nil
}

// ShouldAllowRequest checks if a request should be allowed based on the
// current request budget.
// Returns false if the request should be blocked due to a critical budget.
// Returns true but may sleep for throttling if in warning state; the wait
// respects ctx cancellation.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state := t.GetState()

	// Critical: Block all requests
	if state.NeedsCriticalBlock() {
		waitDuration := state.TimeUntilReset()

		t.logger.Error().
			Int("requests_remaining", state.RequestsRemaining).
			Dur("wait_duration", waitDuration).
			Msg("Request budget critical - blocking request")

		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	// Warning: Apply throttling
	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("requests_remaining", state.RequestsRemaining).
			Msg("Request budget warning - throttling request")

		rateLimitThrottlesTotal.Inc()

		timer := time.NewTimer(throttleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	// Healthy: Allow request
	return true, nil
}
