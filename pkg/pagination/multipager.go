package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tidemark-io/tidemark-go/pkg/series"
	"github.com/tidemark-io/tidemark-go/pkg/timeutil"
)

// Page budgets the API enforces per batched request. Raw data and aggregates
// are capped separately.
const (
	DefaultRawLimit       = 100_000
	DefaultAggregateLimit = 10_000
)

// Limits carries the per-request datapoint budgets shared by the queries of
// a batched call. Fields left at zero select the API defaults.
type Limits struct {
	// RawBudget is split evenly among the raw queries of a batch.
	RawBudget int
	// AggregateBudget is split evenly among the aggregate queries of a batch.
	AggregateBudget int
}

// BatchRequest is one query's slice of a batched fetch: its cursor window
// and page limit for this round.
type BatchRequest struct {
	Query series.Query
	Start int64
	End   int64
	Limit int
}

// BatchFetcher performs one batched fetch carrying several queries and
// returns one page per request, aligned by index.
type BatchFetcher interface {
	FetchBatch(ctx context.Context, reqs []BatchRequest) ([]series.Page, error)
}

// BatchFetchFunc adapts a function to the BatchFetcher interface.
type BatchFetchFunc func(ctx context.Context, reqs []BatchRequest) ([]series.Page, error)

// FetchBatch calls f.
func (f BatchFetchFunc) FetchBatch(ctx context.Context, reqs []BatchRequest) ([]series.Page, error) {
	return f(ctx, reqs)
}

// batchState tracks one query through the lockstep rounds. On completion the
// cursor parks at the final timestamp of the query's effective window.
type batchState struct {
	query  series.Query
	cursor int64
	end    int64
	final  int64
	limit  int
	result series.Page
}

// PageAll advances every query of a batch in lockstep: each round issues one
// batched fetch carrying the cursors of the queries that still have data,
// appends every returned page to its query's accumulator, and either marks
// the query done (short page) or advances its cursor by that query's own
// step. Queries that finish leave the batch; the loop ends when none remain.
//
// Per-query page limits are computed once up front by splitting each class
// budget evenly across the queries of that class. A computed limit of zero
// (more queries than budget) fails with ErrInvalidArgument rather than
// silently fetching empty windows.
//
// The result maps each series name to its ordered datapoints, so every query
// must target a distinct series. Any batch fetch error aborts the whole call
// with no partial results.
func PageAll(ctx context.Context, fetcher BatchFetcher, queries []series.Query, shared series.TimeWindow, limits Limits) (map[string]series.Page, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("%w: at least one query is required", timeutil.ErrInvalidArgument)
	}
	if err := shared.Validate(); err != nil {
		return nil, err
	}
	if limits.RawBudget <= 0 {
		limits.RawBudget = DefaultRawLimit
	}
	if limits.AggregateBudget <= 0 {
		limits.AggregateBudget = DefaultAggregateLimit
	}

	rawCount, aggCount := 0, 0
	names := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		if q.Name() == "" {
			return nil, fmt.Errorf("%w: query must be built with NewRawQuery or NewAggregateQuery", timeutil.ErrInvalidArgument)
		}
		if _, dup := names[q.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate series %q in batch", timeutil.ErrInvalidArgument, q.Name())
		}
		names[q.Name()] = struct{}{}
		if q.IsAggregate() {
			aggCount++
		} else {
			rawCount++
		}
	}

	states := make([]*batchState, len(queries))
	for i, q := range queries {
		limit := 0
		if q.IsAggregate() {
			limit = limits.AggregateBudget / aggCount
		} else {
			limit = limits.RawBudget / rawCount
		}
		if limit <= 0 {
			return nil, fmt.Errorf("%w: per-query page limit is zero (budget too small for %d queries)", timeutil.ErrInvalidArgument, len(queries))
		}

		cursor := shared.Start
		if s, ok := q.Start(); ok {
			cursor = s
		}
		end := shared.End
		final := shared.End - 1
		if e, ok := q.End(); ok {
			end = e
			final = min(shared.End, e) - 1
		}

		states[i] = &batchState{
			query:  q,
			cursor: cursor,
			end:    end,
			final:  final,
			limit:  limit,
		}
	}

	start := time.Now()
	log.Info().
		Int("queries", len(queries)).
		Int("raw", rawCount).
		Int("aggregate", aggCount).
		Int64("window_start", shared.Start).
		Int64("window_end", shared.End).
		Msg("Starting batched fetch")

	rounds := 0
	pending := states
	for len(pending) > 0 {
		reqs := make([]BatchRequest, len(pending))
		for i, st := range pending {
			reqs[i] = BatchRequest{
				Query: st.query,
				Start: st.cursor,
				End:   st.end,
				Limit: st.limit,
			}
		}

		pages, err := fetcher.FetchBatch(ctx, reqs)
		if err != nil {
			return nil, &FetchFailedError{Window: shared, Err: err}
		}
		if len(pages) != len(reqs) {
			return nil, &FetchFailedError{
				Window: shared,
				Err:    fmt.Errorf("server returned %d pages for %d queries", len(pages), len(reqs)),
			}
		}
		rounds++
		pagesFetched.WithLabelValues(modeBatch).Add(float64(len(pages)))

		next := make([]*batchState, 0, len(pending))
		for i, st := range pending {
			page := pages[i]
			// Terminal pages are appended like any other.
			st.result = append(st.result, page...)
			datapointsFetched.WithLabelValues(modeBatch).Add(float64(len(page)))

			done := page.Short(st.limit)
			if !done {
				advanced := page.LastTimestamp() + st.query.Step()
				// Non-increasing server timestamps terminate a query the
				// same way a short page does.
				done = advanced <= st.cursor
				if !done {
					st.cursor = advanced
				}
			}
			if done {
				st.cursor = st.final
				log.Debug().
					Str("series", st.query.Name()).
					Int64("cursor", st.cursor).
					Int("datapoints", len(st.result)).
					Msg("Query left the batch")
				continue
			}
			next = append(next, st)
		}
		pending = next

		log.Debug().
			Int("round", rounds).
			Int("pending", len(pending)).
			Msg("Batched fetch round complete")
	}

	out := make(map[string]series.Page, len(states))
	for _, st := range states {
		out[st.query.Name()] = st.result
	}

	log.Info().
		Int("queries", len(queries)).
		Int("rounds", rounds).
		Dur("duration", time.Since(start)).
		Msg("Batched fetch complete")

	return out, nil
}
