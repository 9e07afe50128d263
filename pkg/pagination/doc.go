// Package pagination implements the adaptive paging core of the SDK.
//
// The Tidemark API bounds every datapoints request by a page limit, so large
// time windows must be fetched through repeated bounded calls. This package
// owns that loop: a window is split into granularity-aligned sub-windows,
// each sub-window is paged independently until the server signals
// end-of-data, and the results are joined back in sub-window order.
//
// Example usage:
//
//	query, _ := series.NewAggregateQuery("equipment/pump42", []string{"avg"}, "1m")
//	fetcher := pagination.NewParallelFetcher(transport, pagination.DefaultConfig())
//	page, err := fetcher.FetchAll(ctx, pagination.Task{
//		Query:  query,
//		Window: series.TimeWindow{Start: startMs, End: endMs},
//		Limit:  10_000,
//	}, 0)
//
// The paging core:
//   - Advances each cursor past the last returned timestamp, never
//     re-requesting a boundary point
//   - Aligns every sub-window boundary to the query granularity so no
//     aggregate bucket is split across workers
//   - Joins sub-window results in dispatch order, keeping the sequence
//     globally time-ordered without a sort
//   - Fails the whole call on any fetch error; partial results are never
//     returned
//   - Pages several series in lockstep through one batched request
//     (PageAll) with separate raw and aggregate budgets
package pagination
