package pagination

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tidemark-io/tidemark-go/pkg/series"
	"github.com/tidemark-io/tidemark-go/pkg/timeutil"
)

// FetchRequest is one bounded fetch issued by the paging core: a query plus
// the concrete cursor window and page limit for this single call.
type FetchRequest struct {
	Query series.Query
	// Start and End bound this fetch as a half-open interval [Start, End).
	Start int64
	End   int64
	// Limit is the maximum number of datapoints the server may return.
	Limit int
	// IncludeOutsidePoints additionally requests the nearest datapoint on
	// each side of the interval.
	IncludeOutsidePoints bool
}

// Fetcher performs one bounded fetch against the datapoints API and decodes
// the response into a Page. Implementations never page; the paging core owns
// cursor advancement and termination.
type Fetcher interface {
	FetchPage(ctx context.Context, req FetchRequest) (series.Page, error)
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc func(ctx context.Context, req FetchRequest) (series.Page, error)

// FetchPage calls f.
func (f FetchFunc) FetchPage(ctx context.Context, req FetchRequest) (series.Page, error) {
	return f(ctx, req)
}

// Task is one fully resolved paging unit: a query bound to a concrete window
// and page limit.
type Task struct {
	Query  series.Query
	Window series.TimeWindow
	// Limit is the page limit per fetch.
	Limit int
	// IncludeOutsidePoints is forwarded to every fetch of this task.
	IncludeOutsidePoints bool
}

// Validate checks the task before any fetch is issued.
func (t Task) Validate() error {
	if t.Query.Name() == "" {
		return fmt.Errorf("%w: query must be built with NewRawQuery or NewAggregateQuery", timeutil.ErrInvalidArgument)
	}
	if err := t.Window.Validate(); err != nil {
		return err
	}
	if t.Limit <= 0 {
		return fmt.Errorf("%w: page limit must be positive, got %d", timeutil.ErrInvalidArgument, t.Limit)
	}
	return nil
}

// Paginate retrieves every datapoint of one task window through repeated
// bounded fetches. The cursor starts at the window start and advances past
// the last returned timestamp by the query's step (granularity width for
// aggregates, 1 ms for raw data), so no boundary point is ever re-requested.
// Paging stops on an empty page, on a short page, or when the cursor reaches
// the window end.
//
// Any fetch error aborts the call with a FetchFailedError; partial results
// are never returned.
func Paginate(ctx context.Context, fetcher Fetcher, task Task) (series.Page, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	step := task.Query.Step()
	cursor := task.Window.Start
	pages := 0

	var out series.Page
	for {
		page, err := fetcher.FetchPage(ctx, FetchRequest{
			Query:                task.Query,
			Start:                cursor,
			End:                  task.Window.End,
			Limit:                task.Limit,
			IncludeOutsidePoints: task.IncludeOutsidePoints,
		})
		if err != nil {
			return nil, &FetchFailedError{Series: task.Query.Name(), Window: task.Window, Err: err}
		}
		pages++
		pagesFetched.WithLabelValues(modeSeries).Inc()

		if len(page) == 0 {
			break
		}
		out = append(out, page...)
		datapointsFetched.WithLabelValues(modeSeries).Add(float64(len(page)))

		if page.Short(task.Limit) {
			break
		}

		next := page.LastTimestamp() + step
		if next <= cursor {
			// Non-increasing server timestamps terminate the scan; the
			// cursor must make monotonic progress.
			break
		}
		cursor = next
		if cursor >= task.Window.End {
			break
		}
	}

	log.Debug().
		Str("series", task.Query.Name()).
		Int("pages", pages).
		Int("datapoints", len(out)).
		Msg("Pagination complete")

	return out, nil
}
