// Package datapoints is the high-level datapoints API of the SDK: auto-paged
// reads, batched multi-series reads, columnar frame reads, chunked uploads,
// and live polling. All reads run on the paging core in pkg/pagination; this
// package binds it to the HTTP transport in pkg/client.
package datapoints

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tidemark-io/tidemark-go/pkg/client"
	"github.com/tidemark-io/tidemark-go/pkg/codec"
	"github.com/tidemark-io/tidemark-go/pkg/pagination"
	"github.com/tidemark-io/tidemark-go/pkg/series"
	"github.com/tidemark-io/tidemark-go/pkg/timeutil"
)

// API provides datapoint operations against one Tidemark project.
type API struct {
	client *client.Client
	config pagination.Config
	logger zerolog.Logger
}

// New creates a datapoints API on top of a client, with default paging
// configuration.
func New(c *client.Client) *API {
	return NewWithConfig(c, pagination.DefaultConfig())
}

// NewWithConfig creates a datapoints API with explicit paging configuration.
func NewWithConfig(c *client.Client, cfg pagination.Config) *API {
	return &API{
		client: c,
		config: cfg,
		logger: log.With().Str("component", "datapoints").Logger(),
	}
}

// QueryOptions shape one datapoints read.
type QueryOptions struct {
	// Start of the window. Empty means the beginning of time.
	Start timeutil.TimeSpec

	// End of the window, exclusive. Empty means now.
	End timeutil.TimeSpec

	// Aggregates requests aggregate buckets instead of raw recorded data.
	Aggregates []string

	// Granularity is the aggregate bucket width, e.g. "1m". Required when
	// Aggregates is set.
	Granularity string

	// Workers overrides the configured parallel worker cap when positive.
	Workers int

	// IncludeOutsidePoints additionally returns the closest datapoint on
	// each side of the window. Forces a single worker.
	IncludeOutsidePoints bool

	// DisableProtobuf forces raw reads onto the JSON wire format. Aggregate
	// reads are always JSON.
	DisableProtobuf bool
}

// query builds the validated series query the options describe.
func (o QueryOptions) query(name string) (series.Query, error) {
	if len(o.Aggregates) > 0 {
		return series.NewAggregateQuery(name, o.Aggregates, o.Granularity)
	}
	return series.NewRawQuery(name)
}

// window resolves the option bounds against now.
func (o QueryOptions) window() (series.TimeWindow, error) {
	start := o.Start
	if start.IsZero() {
		start = timeutil.Millis(0)
	}
	startMs, endMs, err := timeutil.ResolveInterval(start, o.End, time.Now())
	if err != nil {
		return series.TimeWindow{}, err
	}
	return series.TimeWindow{Start: startMs, End: endMs}, nil
}

// pageLimit returns the per-fetch page limit for a query's class.
func pageLimit(q series.Query) int {
	if q.IsAggregate() {
		return pagination.DefaultAggregateLimit
	}
	return pagination.DefaultRawLimit
}

// GetDatapoints retrieves every datapoint of a series in the window, fanning
// the window out across parallel workers and paging each sub-window until the
// server signals end-of-data. Results are in ascending timestamp order.
func (a *API) GetDatapoints(ctx context.Context, name string, opts QueryOptions) (series.Page, error) {
	query, err := opts.query(name)
	if err != nil {
		return nil, err
	}
	window, err := opts.window()
	if err != nil {
		return nil, err
	}

	fetcher := pagination.NewParallelFetcher(pageFetcher{api: a, disableProtobuf: opts.DisableProtobuf}, a.config)
	return fetcher.FetchAll(ctx, pagination.Task{
		Query:                query,
		Window:               window,
		Limit:                pageLimit(query),
		IncludeOutsidePoints: opts.IncludeOutsidePoints,
	}, opts.Workers)
}

// GetDatapointsWithLimit retrieves at most limit datapoints from the start of
// the window in one bounded fetch. No paging, no parallelism.
func (a *API) GetDatapointsWithLimit(ctx context.Context, name string, limit int, opts QueryOptions) (series.Page, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", timeutil.ErrInvalidArgument, limit)
	}
	query, err := opts.query(name)
	if err != nil {
		return nil, err
	}
	window, err := opts.window()
	if err != nil {
		return nil, err
	}

	return a.fetchPage(ctx, pagination.FetchRequest{
		Query:                query,
		Start:                window.Start,
		End:                  window.End,
		Limit:                limit,
		IncludeOutsidePoints: opts.IncludeOutsidePoints,
	}, opts.DisableProtobuf)
}

// GetLatest retrieves the most recent datapoint of a series before the given
// time. An empty before means the newest datapoint overall. It returns nil
// when the series holds no datapoint in range.
func (a *API) GetLatest(ctx context.Context, name string, before timeutil.TimeSpec) (*series.Datapoint, error) {
	params := url.Values{}
	if !before.IsZero() {
		ms, err := before.Resolve(time.Now())
		if err != nil {
			return nil, err
		}
		params.Set("before", strconv.FormatInt(ms, 10))
	}

	resp, err := a.client.Get(ctx, "/timeseries/latest/"+url.PathEscape(name), params, client.AcceptJSON)
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
	page, err := codec.DecodeJSONPage(data)
	if err != nil {
		return nil, err
	}
	if len(page) == 0 {
		return nil, nil
	}
	dp := page[len(page)-1]
	return &dp, nil
}

// pageFetcher adapts the transport to the paging core's Fetcher interface.
type pageFetcher struct {
	api             *API
	disableProtobuf bool
}

func (f pageFetcher) FetchPage(ctx context.Context, req pagination.FetchRequest) (series.Page, error) {
	return f.api.fetchPage(ctx, req, f.disableProtobuf)
}

// fetchPage performs one bounded datapoints fetch and decodes the response.
// Raw reads use the binary protobuf format unless disabled; aggregate reads
// always use the JSON envelope.
func (a *API) fetchPage(ctx context.Context, req pagination.FetchRequest, disableProtobuf bool) (series.Page, error) {
	params := url.Values{}
	params.Set("start", strconv.FormatInt(req.Start, 10))
	params.Set("end", strconv.FormatInt(req.End, 10))
	params.Set("limit", strconv.Itoa(req.Limit))
	if req.Query.IsAggregate() {
		params.Set("aggregates", req.Query.AggregatesParam())
		params.Set("granularity", req.Query.Granularity())
	}
	if req.IncludeOutsidePoints {
		params.Set("includeOutsidePoints", "true")
	}

	accept := client.AcceptJSON
	if !req.Query.IsAggregate() && !disableProtobuf {
		accept = client.AcceptProtobuf
	}

	resp, err := a.client.Get(ctx, "/timeseries/data/"+url.PathEscape(req.Query.Name()), params, accept)
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

	if accept == client.AcceptProtobuf {
		_, page, err := codec.DecodeProtobuf(data)
		return page, err
	}
	return codec.DecodeJSONPage(data)
}
