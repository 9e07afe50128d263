package datapoints

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tidemark-io/tidemark-go/pkg/client"
	"github.com/tidemark-io/tidemark-go/pkg/frame"
	"github.com/tidemark-io/tidemark-go/pkg/pagination"
	"github.com/tidemark-io/tidemark-go/pkg/series"
	"github.com/tidemark-io/tidemark-go/pkg/timeutil"
)

// FrameOptions shape one dataframe read.
type FrameOptions struct {
	// Start of the window. Empty means the beginning of time.
	Start timeutil.TimeSpec

	// End of the window, exclusive. Empty means now.
	End timeutil.TimeSpec

	// Workers overrides the configured parallel worker cap when positive.
	Workers int
}

// frameRequest is the dataframe endpoint request body.
type frameRequest struct {
	Items       []string `json:"items"`
	Aggregates  []string `json:"aggregates"`
	Granularity string   `json:"granularity"`
	Start       int64    `json:"start"`
	End         int64    `json:"end"`
	Limit       int      `json:"limit"`
}

// GetDatapointsFrame retrieves aggregates of several series as one columnar
// frame, with a "<series>|<aggregate>" column per pair. The window is fanned
// out across parallel workers on granularity-aligned boundaries and each
// sub-window is paged on row count; joining drops rows that do not advance
// past the previous sub-window, so boundary rows never repeat.
//
// The per-request row limit is the raw request budget divided by the column
// count, keeping every response within the API's datapoint cap.
func (a *API) GetDatapointsFrame(ctx context.Context, names []string, aggregates []string, granularity string, opts FrameOptions) (*frame.Frame, error) {
	req, granMs, err := a.frameQuery(names, aggregates, granularity)
	if err != nil {
		return nil, err
	}
	window, err := frameWindow(opts)
	if err != nil {
		return nil, err
	}

	rowLimit := pagination.DefaultRawLimit / (len(names) * len(aggregates))
	if rowLimit <= 0 {
		return nil, fmt.Errorf("%w: %d frame columns exceed the request budget", timeutil.ErrInvalidArgument, len(names)*len(aggregates))
	}

	workers := opts.Workers
	if workers <= 0 || workers > a.config.MaxWorkers {
		workers = a.config.MaxWorkers
	}
	subWindows, err := pagination.SplitWindow(window, workers, granMs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	frames := make([]*frame.Frame, len(subWindows))
	g, gctx := errgroup.WithContext(ctx)
	for i, sw := range subWindows {
		g.Go(func() error {
			f, err := a.pageFrame(gctx, req, sw, rowLimit, granMs)
			if err != nil {
				return err
			}
			frames[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := frame.New(frameColumns(names, aggregates))
	for _, f := range frames {
		if err := out.Append(f); err != nil {
			return nil, err
		}
	}

	a.logger.Info().
		Int("columns", len(out.Columns)).
		Int("rows", out.Len()).
		Int("sub_windows", len(subWindows)).
		Dur("duration", time.Since(start)).
		Msg("Frame fetch complete")

	return out, nil
}

// GetDatapointsFrameWithLimit retrieves at most limit rows from the start of
// the window in one request. No paging, no parallelism.
func (a *API) GetDatapointsFrameWithLimit(ctx context.Context, names []string, aggregates []string, granularity string, limit int, opts FrameOptions) (*frame.Frame, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", timeutil.ErrInvalidArgument, limit)
	}
	req, _, err := a.frameQuery(names, aggregates, granularity)
	if err != nil {
		return nil, err
	}
	window, err := frameWindow(opts)
	if err != nil {
		return nil, err
	}

	req.Start = window.Start
	req.End = window.End
	req.Limit = limit
	return a.fetchFramePage(ctx, req)
}

// frameQuery validates the frame shape and returns the request template and
// the granularity width.
func (a *API) frameQuery(names []string, aggregates []string, granularity string) (frameRequest, int64, error) {
	if len(names) == 0 {
		return frameRequest{}, 0, fmt.Errorf("%w: at least one series is required", timeutil.ErrInvalidArgument)
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			return frameRequest{}, 0, fmt.Errorf("%w: series name must not be empty", timeutil.ErrInvalidArgument)
		}
		if _, dup := seen[name]; dup {
			return frameRequest{}, 0, fmt.Errorf("%w: duplicate series %q in frame", timeutil.ErrInvalidArgument, name)
		}
		seen[name] = struct{}{}
	}
	if len(aggregates) == 0 {
		return frameRequest{}, 0, fmt.Errorf("%w: at least one aggregate function is required", timeutil.ErrInvalidArgument)
	}
	granMs, err := timeutil.GranularityToMs(granularity)
	if err != nil {
		return frameRequest{}, 0, err
	}

	return frameRequest{
		Items:       names,
		Aggregates:  aggregates,
		Granularity: granularity,
	}, granMs, nil
}

func frameWindow(opts FrameOptions) (series.TimeWindow, error) {
	start := opts.Start
	if start.IsZero() {
		start = timeutil.Millis(0)
	}
	startMs, endMs, err := timeutil.ResolveInterval(start, opts.End, time.Now())
	if err != nil {
		return series.TimeWindow{}, err
	}
	return series.TimeWindow{Start: startMs, End: endMs}, nil
}

// frameColumns returns the column names in wire order: series major,
// aggregate minor.
func frameColumns(names []string, aggregates []string) []string {
	columns := make([]string, 0, len(names)*len(aggregates))
	for _, name := range names {
		for _, agg := range aggregates {
			columns = append(columns, name+"|"+agg)
		}
	}
	return columns
}

// pageFrame retrieves one sub-window through repeated row-limited requests,
// advancing the cursor past the last returned row by one granularity bucket.
// The same termination rules as datapoint paging apply: an empty page, a
// short page, or a cursor past the window end.
func (a *API) pageFrame(ctx context.Context, req frameRequest, window series.TimeWindow, rowLimit int, granMs int64) (*frame.Frame, error) {
	out := frame.New(frameColumns(req.Items, req.Aggregates))
	cursor := window.Start

	for {
		req.Start = cursor
		req.End = window.End
		req.Limit = rowLimit
		page, err := a.fetchFramePage(ctx, req)
		if err != nil {
			return nil, err
		}

		if page.Len() == 0 {
			break
		}
		last := page.LastTimestamp()
		if err := out.Append(page); err != nil {
			return nil, err
		}

		if page.Len() < rowLimit {
			break
		}
		next := last + granMs
		if next <= cursor {
			break
		}
		cursor = next
		if cursor >= window.End {
			break
		}
	}

	return out, nil
}

// fetchFramePage performs one dataframe request and parses the CSV response.
func (a *API) fetchFramePage(ctx context.Context, req frameRequest) (*frame.Frame, error) {
	resp, err := a.client.PostJSON(ctx, "/timeseries/dataframe", req, client.AcceptCSV)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, client.ParseErrorResponse(resp)
	}

	return frame.ReadCSV(resp.Body)
}
