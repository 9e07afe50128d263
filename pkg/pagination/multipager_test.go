package pagination

import (
	"context"
	"errors"
	"testing"

	"github.com/tidemark-io/tidemark-go/pkg/series"
	"github.com/tidemark-io/tidemark-go/pkg/timeutil"
)

// recordingBatchFetcher serves generated pages per query and records the
// requests of every round.
type recordingBatchFetcher struct {
	rounds [][]BatchRequest
	err    error
}

func (rb *recordingBatchFetcher) FetchBatch(ctx context.Context, reqs []BatchRequest) ([]series.Page, error) {
	rb.rounds = append(rb.rounds, reqs)
	if rb.err != nil {
		return nil, rb.err
	}

	pages := make([]series.Page, len(reqs))
	for i, req := range reqs {
		pages[i] = genPage(req.Start, req.End, req.Query.Step(), req.Limit)
	}
	return pages, nil
}

func TestPageAllLockstep(t *testing.T) {
	shared := series.TimeWindow{Start: 1_522_188_000_000, End: 1_522_620_000_000}
	q30 := mustAggQuery(t, "sensor/fast", "30s")
	q60 := mustAggQuery(t, "sensor/slow", "60s")

	fetcher := &recordingBatchFetcher{}
	got, err := PageAll(context.Background(), fetcher, []series.Query{q30, q60}, shared, Limits{})
	if err != nil {
		t.Fatalf("PageAll failed: %v", err)
	}

	// 432_000_000 ms of data: 14400 30s-buckets and 7200 60s-buckets.
	if len(got["sensor/fast"]) != 14_400 {
		t.Errorf("len(fast) = %d, want 14400", len(got["sensor/fast"]))
	}
	if len(got["sensor/slow"]) != 7_200 {
		t.Errorf("len(slow) = %d, want 7200", len(got["sensor/slow"]))
	}

	// Consecutive deltas are nonzero and multiples of each query's own
	// granularity.
	for name, gran := range map[string]int64{"sensor/fast": 30_000, "sensor/slow": 60_000} {
		result := got[name]
		for i := 1; i < len(result); i++ {
			delta := result[i].Timestamp - result[i-1].Timestamp
			if delta == 0 {
				t.Fatalf("%s: zero delta at index %d", name, i)
			}
			if delta%gran != 0 {
				t.Fatalf("%s: delta %d at index %d is not a multiple of %d", name, delta, i, gran)
			}
		}
	}

	// Budget 10000 split across two aggregate queries: 5000 per page. The
	// 30s query needs three rounds, the 60s query two; the finished query
	// leaves the batch for the final round.
	if len(fetcher.rounds) != 3 {
		t.Fatalf("rounds = %d, want 3", len(fetcher.rounds))
	}
	if len(fetcher.rounds[0]) != 2 || len(fetcher.rounds[1]) != 2 || len(fetcher.rounds[2]) != 1 {
		t.Errorf("batch sizes = %d/%d/%d, want 2/2/1",
			len(fetcher.rounds[0]), len(fetcher.rounds[1]), len(fetcher.rounds[2]))
	}
	if fetcher.rounds[2][0].Query.Name() != "sensor/fast" {
		t.Errorf("final round fetches %q, want %q", fetcher.rounds[2][0].Query.Name(), "sensor/fast")
	}

	// Cursors resume one step past the last returned bucket.
	if start := fetcher.rounds[1][0].Start; start != 1_522_188_000_000+5_000*30_000 {
		t.Errorf("round 2 fast cursor = %d, want %d", start, 1_522_188_000_000+5_000*30_000)
	}
}

func TestPageAllBudgets(t *testing.T) {
	shared := series.TimeWindow{Start: 0, End: 60_000}

	t.Run("defaults", func(t *testing.T) {
		fetcher := &recordingBatchFetcher{}
		queries := []series.Query{
			mustRawQuery(t, "raw/a"),
			mustAggQuery(t, "agg/a", "1m"),
		}
		if _, err := PageAll(context.Background(), fetcher, queries, shared, Limits{}); err != nil {
			t.Fatalf("PageAll failed: %v", err)
		}

		first := fetcher.rounds[0]
		if first[0].Limit != DefaultRawLimit {
			t.Errorf("raw limit = %d, want %d", first[0].Limit, DefaultRawLimit)
		}
		if first[1].Limit != DefaultAggregateLimit {
			t.Errorf("aggregate limit = %d, want %d", first[1].Limit, DefaultAggregateLimit)
		}
	})

	t.Run("split per class", func(t *testing.T) {
		fetcher := &recordingBatchFetcher{}
		queries := []series.Query{
			mustRawQuery(t, "raw/a"),
			mustRawQuery(t, "raw/b"),
			mustAggQuery(t, "agg/a", "1m"),
			mustAggQuery(t, "agg/b", "30s"),
		}
		limits := Limits{RawBudget: 1_000, AggregateBudget: 100}
		if _, err := PageAll(context.Background(), fetcher, queries, shared, limits); err != nil {
			t.Fatalf("PageAll failed: %v", err)
		}

		want := []int{500, 500, 50, 50}
		for i, req := range fetcher.rounds[0] {
			if req.Limit != want[i] {
				t.Errorf("query %d limit = %d, want %d", i, req.Limit, want[i])
			}
		}
	})

	t.Run("zero per-query limit", func(t *testing.T) {
		fetcher := &recordingBatchFetcher{}
		queries := []series.Query{
			mustAggQuery(t, "agg/a", "1m"),
			mustAggQuery(t, "agg/b", "1m"),
			mustAggQuery(t, "agg/c", "1m"),
		}
		_, err := PageAll(context.Background(), fetcher, queries, shared, Limits{AggregateBudget: 2})
		if !errors.Is(err, timeutil.ErrInvalidArgument) {
			t.Errorf("PageAll() error = %v, want ErrInvalidArgument", err)
		}
		if len(fetcher.rounds) != 0 {
			t.Errorf("rounds = %d, want 0 (no fetch on validation failure)", len(fetcher.rounds))
		}
	})
}

func TestPageAllQueryBounds(t *testing.T) {
	shared := series.TimeWindow{Start: 0, End: 600_000}
	bounded := mustAggQuery(t, "agg/bounded", "1m").WithStart(120_000).WithEnd(300_000)
	plain := mustAggQuery(t, "agg/plain", "1m")

	fetcher := &recordingBatchFetcher{}
	got, err := PageAll(context.Background(), fetcher, []series.Query{bounded, plain}, shared, Limits{})
	if err != nil {
		t.Fatalf("PageAll failed: %v", err)
	}

	first := fetcher.rounds[0]
	if first[0].Start != 120_000 || first[0].End != 300_000 {
		t.Errorf("bounded request window = [%d, %d), want [120000, 300000)", first[0].Start, first[0].End)
	}
	if first[1].Start != 0 || first[1].End != 600_000 {
		t.Errorf("plain request window = [%d, %d), want [0, 600000)", first[1].Start, first[1].End)
	}

	if len(got["agg/bounded"]) != 3 {
		t.Errorf("len(bounded) = %d, want 3", len(got["agg/bounded"]))
	}
	if len(got["agg/plain"]) != 10 {
		t.Errorf("len(plain) = %d, want 10", len(got["agg/plain"]))
	}
}

func TestPageAllTerminalPageAppended(t *testing.T) {
	// The whole series fits in one short page; its datapoints must still be
	// in the result.
	shared := series.TimeWindow{Start: 0, End: 300_000}
	fetcher := &recordingBatchFetcher{}

	got, err := PageAll(context.Background(), fetcher, []series.Query{mustAggQuery(t, "agg/tiny", "1m")}, shared, Limits{})
	if err != nil {
		t.Fatalf("PageAll failed: %v", err)
	}
	if len(got["agg/tiny"]) != 5 {
		t.Errorf("len(result) = %d, want 5", len(got["agg/tiny"]))
	}
	if len(fetcher.rounds) != 1 {
		t.Errorf("rounds = %d, want 1", len(fetcher.rounds))
	}
}

func TestPageAllValidation(t *testing.T) {
	shared := series.TimeWindow{Start: 0, End: 1000}
	fetcher := &recordingBatchFetcher{}

	tests := []struct {
		name    string
		queries []series.Query
		window  series.TimeWindow
	}{
		{name: "no queries", queries: nil, window: shared},
		{name: "zero query", queries: []series.Query{{}}, window: shared},
		{
			name:    "duplicate series",
			queries: []series.Query{mustRawQuery(t, "dup"), mustRawQuery(t, "dup")},
			window:  shared,
		},
		{
			name:    "inverted window",
			queries: []series.Query{mustRawQuery(t, "ts")},
			window:  series.TimeWindow{Start: 1000, End: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PageAll(context.Background(), fetcher, tt.queries, tt.window, Limits{})
			if !errors.Is(err, timeutil.ErrInvalidArgument) {
				t.Errorf("PageAll() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestPageAllFetchErrorAborts(t *testing.T) {
	fetchErr := errors.New("gateway timeout")
	fetcher := &recordingBatchFetcher{err: fetchErr}

	got, err := PageAll(context.Background(), fetcher,
		[]series.Query{mustRawQuery(t, "ts")},
		series.TimeWindow{Start: 0, End: 1000}, Limits{})
	if got != nil {
		t.Error("result != nil, want nil (no partial results)")
	}
	var fetchFailed *FetchFailedError
	if !errors.As(err, &fetchFailed) {
		t.Fatalf("error = %v, want *FetchFailedError", err)
	}
	if !errors.Is(err, fetchErr) {
		t.Error("errors.Is(err, fetchErr) = false, want true")
	}
}

func TestPageAllPageCountMismatch(t *testing.T) {
	fetcher := BatchFetchFunc(func(ctx context.Context, reqs []BatchRequest) ([]series.Page, error) {
		return make([]series.Page, len(reqs)+1), nil
	})

	_, err := PageAll(context.Background(), fetcher,
		[]series.Query{mustRawQuery(t, "ts")},
		series.TimeWindow{Start: 0, End: 1000}, Limits{})
	var fetchFailed *FetchFailedError
	if !errors.As(err, &fetchFailed) {
		t.Fatalf("error = %v, want *FetchFailedError", err)
	}
}
