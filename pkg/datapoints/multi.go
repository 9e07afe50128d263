package datapoints

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidemark-io/tidemark-go/pkg/client"
	"github.com/tidemark-io/tidemark-go/pkg/codec"
	"github.com/tidemark-io/tidemark-go/pkg/pagination"
	"github.com/tidemark-io/tidemark-go/pkg/series"
	"github.com/tidemark-io/tidemark-go/pkg/timeutil"
)

// dataQueryItem is one query inside a batched dataquery request body.
type dataQueryItem struct {
	Name        string   `json:"name"`
	Start       int64    `json:"start"`
	End         int64    `json:"end"`
	Limit       int      `json:"limit"`
	Aggregates  []string `json:"aggregates,omitempty"`
	Granularity string   `json:"granularity,omitempty"`
}

// GetMultiTimeSeriesDatapoints retrieves the full window of several series
// through the batched dataquery endpoint. All queries advance in lockstep,
// one batched request per round, and the shared request budget is split
// evenly within each query class: raw queries share limits.RawBudget,
// aggregate queries share limits.AggregateBudget. Zero budgets select the
// API defaults.
//
// Every query must target a distinct series; the result maps each series
// name to its ordered datapoints. An empty start means the beginning of
// time, an empty end means now.
func (a *API) GetMultiTimeSeriesDatapoints(ctx context.Context, queries []series.Query, start, end timeutil.TimeSpec, limits pagination.Limits) (map[string]series.Page, error) {
	if start.IsZero() {
		start = timeutil.Millis(0)
	}
	startMs, endMs, err := timeutil.ResolveInterval(start, end, time.Now())
	if err != nil {
		return nil, err
	}

	window := series.TimeWindow{Start: startMs, End: endMs}
	return pagination.PageAll(ctx, batchFetcher{api: a}, queries, window, limits)
}

// batchFetcher adapts the dataquery endpoint to the paging core's
// BatchFetcher interface.
type batchFetcher struct {
	api *API
}

// FetchBatch performs one batched fetch. The response carries one item per
// query in request order; a misaligned response is a protocol error.
func (f batchFetcher) FetchBatch(ctx context.Context, reqs []pagination.BatchRequest) ([]series.Page, error) {
	items := make([]dataQueryItem, len(reqs))
	for i, req := range reqs {
		items[i] = dataQueryItem{
			Name:        req.Query.Name(),
			Start:       req.Start,
			End:         req.End,
			Limit:       req.Limit,
			Aggregates:  req.Query.Aggregates(),
			Granularity: req.Query.Granularity(),
		}
	}
	body := map[string]any{"items": items}

	resp, err := f.api.client.PostJSON(ctx, "/timeseries/dataquery", body, client.AcceptJSON)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, client.ParseErrorResponse(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	decoded, err := codec.DecodeJSONItems(data)
	if err != nil {
		return nil, err
	}
	if len(decoded) != len(reqs) {
		return nil, fmt.Errorf("dataquery returned %d items for %d queries", len(decoded), len(reqs))
	}

	pages := make([]series.Page, len(decoded))
	for i, item := range decoded {
		if item.Name != reqs[i].Query.Name() {
			return nil, fmt.Errorf("dataquery item %d is series %q, want %q", i, item.Name, reqs[i].Query.Name())
		}
		pages[i] = item.Datapoints
	}
	return pages, nil
}
