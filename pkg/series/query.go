package series

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tidemark-io/tidemark-go/pkg/timeutil"
)

// Query selects one series and the shape of values to read from it: either
// raw recorded datapoints, or aggregate buckets of a fixed granularity. The
// two variants are built through NewRawQuery and NewAggregateQuery and are
// fully validated at construction.
type Query struct {
	name          string
	aggregates    []string
	granularity   string
	granularityMs int64

	start    int64
	end      int64
	hasStart bool
	hasEnd   bool
}

// NewRawQuery returns a query for unaggregated recorded datapoints.
func NewRawQuery(name string) (Query, error) {
	if strings.TrimSpace(name) == "" {
		return Query{}, fmt.Errorf("%w: series name must not be empty", timeutil.ErrInvalidArgument)
	}
	return Query{name: name}, nil
}

// NewAggregateQuery returns a query for aggregate buckets of the given
// granularity. At least one aggregate function is required and the
// granularity string must parse.
func NewAggregateQuery(name string, aggregates []string, granularity string) (Query, error) {
	if strings.TrimSpace(name) == "" {
		return Query{}, fmt.Errorf("%w: series name must not be empty", timeutil.ErrInvalidArgument)
	}
	if len(aggregates) == 0 {
		return Query{}, fmt.Errorf("%w: aggregate query for %q needs at least one aggregate function", timeutil.ErrInvalidArgument, name)
	}
	ms, err := timeutil.GranularityToMs(granularity)
	if err != nil {
		return Query{}, err
	}
	return Query{
		name:          name,
		aggregates:    slices.Clone(aggregates),
		granularity:   granularity,
		granularityMs: ms,
	}, nil
}

// Name returns the series name.
func (q Query) Name() string {
	return q.name
}

// IsAggregate reports whether the query requests aggregate buckets rather
// than raw data.
func (q Query) IsAggregate() bool {
	return len(q.aggregates) > 0
}

// Aggregates returns a copy of the requested aggregate functions, in request
// order. It is empty for raw queries.
func (q Query) Aggregates() []string {
	return slices.Clone(q.aggregates)
}

// AggregatesParam returns the comma-joined aggregate list as sent on the
// wire, or the empty string for raw queries.
func (q Query) AggregatesParam() string {
	return strings.Join(q.aggregates, ",")
}

// Granularity returns the granularity string, empty for raw queries.
func (q Query) Granularity() string {
	return q.granularity
}

// GranularityMs returns the granularity bucket width in milliseconds, 0 for
// raw queries.
func (q Query) GranularityMs() int64 {
	return q.granularityMs
}

// Step returns the paging cursor increment: the granularity width for
// aggregate queries, 1 ms for raw data.
func (q Query) Step() int64 {
	if q.granularityMs > 0 {
		return q.granularityMs
	}
	return 1
}

// WithStart pins the query's own lower bound, overriding the shared window
// of a batched call.
func (q Query) WithStart(ms int64) Query {
	q.start, q.hasStart = ms, true
	return q
}

// WithEnd pins the query's own upper bound, overriding the shared window of
// a batched call.
func (q Query) WithEnd(ms int64) Query {
	q.end, q.hasEnd = ms, true
	return q
}

// Start returns the query's own lower bound, if one was set.
func (q Query) Start() (int64, bool) {
	return q.start, q.hasStart
}

// End returns the query's own upper bound, if one was set.
func (q Query) End() (int64, bool) {
	return q.end, q.hasEnd
}
