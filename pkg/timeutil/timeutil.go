// Package timeutil converts the time expressions accepted by the Tidemark API
// into epoch-millisecond timestamps. The paging core operates exclusively on
// concrete millisecond integers; this package is where relative expressions
// such as "2d-ago" and granularity strings such as "12hour" get resolved.
package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validation errors returned by this package. All are raised synchronously
// during query construction and are never retried.
var (
	// ErrInvalidGranularity is returned for granularity strings with an
	// unknown unit or a non-positive factor.
	ErrInvalidGranularity = errors.New("invalid granularity")

	// ErrInvalidTimeExpression is returned for time expressions that cannot
	// be resolved to an epoch-millisecond timestamp.
	ErrInvalidTimeExpression = errors.New("invalid time expression")

	// ErrInvalidArgument is returned for arguments that are structurally
	// valid but out of the accepted domain (e.g. a non-positive base).
	ErrInvalidArgument = errors.New("invalid argument")
)

// Millisecond values for the granularity units the API accepts.
const (
	MsPerSecond int64 = 1000
	MsPerMinute int64 = 60 * MsPerSecond
	MsPerHour   int64 = 60 * MsPerMinute
	MsPerDay    int64 = 24 * MsPerHour
	MsPerWeek   int64 = 7 * MsPerDay
)

// granularityUnits maps every accepted unit spelling to its millisecond value.
// Matching is case-insensitive and accepts singular and plural long forms.
var granularityUnits = map[string]int64{
	"s":       MsPerSecond,
	"second":  MsPerSecond,
	"seconds": MsPerSecond,
	"m":       MsPerMinute,
	"minute":  MsPerMinute,
	"minutes": MsPerMinute,
	"h":       MsPerHour,
	"hour":    MsPerHour,
	"hours":   MsPerHour,
	"d":       MsPerDay,
	"day":     MsPerDay,
	"days":    MsPerDay,
}

// agoUnits maps the single-letter units accepted in "N<unit>-ago" expressions.
var agoUnits = map[byte]int64{
	'w': MsPerWeek,
	'd': MsPerDay,
	'h': MsPerHour,
	'm': MsPerMinute,
	's': MsPerSecond,
}

// GranularityToMs parses a granularity string of the form <int><unit> and
// returns the bucket width in milliseconds. The unit is one of s/m/h/d or
// their long forms (second, minute, hour, day; singular or plural,
// case-insensitive). A missing factor defaults to 1, so "hour" is one hour.
func GranularityToMs(granularity string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(granularity))
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidGranularity)
	}

	// Split the leading integer factor from the unit.
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}

	factor := int64(1)
	if i > 0 {
		f, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidGranularity, granularity)
		}
		factor = f
	}
	if factor <= 0 {
		return 0, fmt.Errorf("%w: factor must be positive in %q", ErrInvalidGranularity, granularity)
	}

	unitMs, ok := granularityUnits[s[i:]]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q in %q", ErrInvalidGranularity, s[i:], granularity)
	}

	return factor * unitMs, nil
}

// RoundDownToMultiple returns the largest multiple of base that is less than
// or equal to value. base must be positive.
func RoundDownToMultiple(value, base int64) (int64, error) {
	if base <= 0 {
		return 0, fmt.Errorf("%w: base must be positive, got %d", ErrInvalidArgument, base)
	}

	rem := value % base
	if rem < 0 {
		rem += base
	}
	return value - rem, nil
}

// ToTime converts an epoch-millisecond timestamp to a UTC time.Time.
func ToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
