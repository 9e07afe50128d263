// Package series defines the data model shared by every layer of the SDK:
// datapoints, values, time windows, pages, and series queries. The paging
// core, the decoders, and the high-level client all exchange these types.
package series

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidemark-io/tidemark-go/pkg/timeutil"
)

// Value is one datapoint value. Tidemark series are numeric or string typed;
// a Value carries exactly one of the two representations.
type Value struct {
	num   float64
	str   string
	isStr bool
}

// Float returns a numeric Value.
func Float(f float64) Value {
	return Value{num: f}
}

// Str returns a string Value.
func Str(s string) Value {
	return Value{str: s, isStr: true}
}

// IsString reports whether the value is string typed.
func (v Value) IsString() bool {
	return v.isStr
}

// Float64 returns the numeric value. It is 0 for string values.
func (v Value) Float64() float64 {
	return v.num
}

// String implements fmt.Stringer. String values return their payload, numeric
// values their shortest decimal representation.
func (v Value) String() string {
	if v.isStr {
		return v.str
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

// MarshalJSON encodes numeric values as JSON numbers and string values as
// JSON strings, matching the API wire format.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.isStr {
		return json.Marshal(v.str)
	}
	return json.Marshal(v.num)
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (v *Value) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Str(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("datapoint value must be a number or a string: %w", err)
	}
	*v = Float(f)
	return nil
}

// Datapoint is one recorded or aggregated observation. Within a series,
// timestamps are strictly increasing.
type Datapoint struct {
	Timestamp int64 `json:"timestamp"`
	Value     Value `json:"value"`
}

// TimeWindow is a half-open interval [Start, End) in epoch milliseconds UTC.
type TimeWindow struct {
	Start int64
	End   int64
}

// Span returns the window length in milliseconds.
func (w TimeWindow) Span() int64 {
	return w.End - w.Start
}

// Validate enforces the Start < End invariant.
func (w TimeWindow) Validate() error {
	if w.Start >= w.End {
		return fmt.Errorf("%w: window start %d must be before end %d", timeutil.ErrInvalidArgument, w.Start, w.End)
	}
	return nil
}

// Page is the result of one fetch call: an ordered run of datapoints whose
// length never exceeds the requested limit.
type Page []Datapoint

// Short reports whether the page signals end-of-data for its window, i.e.
// the server returned fewer datapoints than requested.
func (p Page) Short(limit int) bool {
	return len(p) < limit
}

// LastTimestamp returns the timestamp of the final datapoint. The page must
// not be empty.
func (p Page) LastTimestamp() int64 {
	return p[len(p)-1].Timestamp
}
