package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeSpec is a point in time as accepted by query parameters. The supported
// forms are:
//
//   - epoch milliseconds as decimal digits, e.g. "1522188000000"
//   - the literal "now"
//   - a relative expression "N<unit>-ago" with unit one of w, d, h, m, s,
//     e.g. "2d-ago"
//   - an RFC 3339 timestamp, e.g. "2018-04-01T00:00:00Z"
//
// The zero value is empty and resolves only where a default is documented.
type TimeSpec string

// Now is the time expression for the current wall-clock time.
const Now TimeSpec = "now"

// Millis returns the TimeSpec for an absolute epoch-millisecond timestamp.
func Millis(ms int64) TimeSpec {
	return TimeSpec(strconv.FormatInt(ms, 10))
}

// FromTime returns the TimeSpec for a time.Time, truncated to milliseconds.
func FromTime(t time.Time) TimeSpec {
	return Millis(t.UnixMilli())
}

// IsZero reports whether the spec is empty.
func (ts TimeSpec) IsZero() bool {
	return strings.TrimSpace(string(ts)) == ""
}

// Resolve converts the expression to epoch milliseconds, evaluating relative
// expressions against now. Empty specs fail with ErrInvalidTimeExpression.
func (ts TimeSpec) Resolve(now time.Time) (int64, error) {
	s := strings.TrimSpace(string(ts))
	if s == "" {
		return 0, fmt.Errorf("%w: empty expression", ErrInvalidTimeExpression)
	}

	if strings.EqualFold(s, string(Now)) {
		return now.UnixMilli(), nil
	}

	// Absolute epoch milliseconds.
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}

	// Relative "N<unit>-ago".
	if rest, ok := strings.CutSuffix(strings.ToLower(s), "-ago"); ok {
		ms, err := parseAgo(rest)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeExpression, s)
		}
		return now.UnixMilli() - ms, nil
	}

	// RFC 3339 timestamp.
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidTimeExpression, s)
}

// parseAgo parses the "N<unit>" part of a relative expression and returns the
// offset in milliseconds.
func parseAgo(s string) (int64, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("too short")
	}

	unitMs, ok := agoUnits[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", s[len(s)-1])
	}

	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad factor %q", s[:len(s)-1])
	}

	return n * unitMs, nil
}

// ResolveInterval resolves a start/end pair against now. start is required;
// an empty end defaults to now. The resolved interval must satisfy
// start < end, otherwise ErrInvalidArgument is returned.
func ResolveInterval(start, end TimeSpec, now time.Time) (int64, int64, error) {
	startMs, err := start.Resolve(now)
	if err != nil {
		return 0, 0, err
	}

	endMs := now.UnixMilli()
	if !end.IsZero() {
		endMs, err = end.Resolve(now)
		if err != nil {
			return 0, 0, err
		}
	}

	if startMs >= endMs {
		return 0, 0, fmt.Errorf("%w: start %d must be before end %d", ErrInvalidArgument, startMs, endMs)
	}

	return startMs, endMs, nil
}
