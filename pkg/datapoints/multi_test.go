package datapoints

import (
	"context"
	"errors"
	"testing"

	"github.com/tidemark-io/tidemark-go/internal/testutil"
	"github.com/tidemark-io/tidemark-go/pkg/pagination"
	"github.com/tidemark-io/tidemark-go/pkg/series"
	"github.com/tidemark-io/tidemark-go/pkg/timeutil"
)

func TestGetMultiTimeSeriesDatapoints(t *testing.T) {
	mock, api := newTestAPI(t)
	mock.RegisterSeries("sensor/r1", testutil.SeriesSpec{First: 0, Last: 999, Step: 1})
	mock.RegisterSeries("sensor/r2", testutil.SeriesSpec{First: 0, Last: 4_999, Step: 1})
	mock.RegisterSeries("equipment/a1", testutil.SeriesSpec{First: 0, Last: 599_999, Step: 1_000})

	r1 := mustRaw(t, "sensor/r1")
	r2 := mustRaw(t, "sensor/r2")
	a1 := mustAgg(t, "equipment/a1", []string{"avg"}, "1m")

	got, err := api.GetMultiTimeSeriesDatapoints(context.Background(),
		[]series.Query{r1, r2, a1},
		timeutil.Millis(0), timeutil.Millis(600_000),
		pagination.Limits{RawBudget: 1_000, AggregateBudget: 5},
	)
	if err != nil {
		t.Fatalf("GetMultiTimeSeriesDatapoints failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("result has %d series, want 3", len(got))
	}
	if n := len(got["sensor/r1"]); n != 1_000 {
		t.Errorf("sensor/r1 has %d datapoints, want 1000", n)
	}
	if n := len(got["sensor/r2"]); n != 5_000 {
		t.Errorf("sensor/r2 has %d datapoints, want 5000", n)
	}
	if n := len(got["equipment/a1"]); n != 10 {
		t.Errorf("equipment/a1 has %d datapoints, want 10", n)
	}

	for _, page := range got {
		assertAscending(t, page)
	}
	for i, dp := range got["equipment/a1"] {
		if want := int64(i) * 60_000; dp.Timestamp != want {
			t.Errorf("aggregate bucket %d at %d, want %d", i, dp.Timestamp, want)
		}
	}

	rounds := mock.DataQueryRequests()

	// The raw budget splits into 500 per raw query, so sensor/r2 needs ten
	// full pages plus the empty page that ends it; the other queries finish
	// earlier and leave the batch.
	if len(rounds) != 11 {
		t.Fatalf("rounds = %d, want 11", len(rounds))
	}
	if len(rounds[0]) != 3 {
		t.Errorf("first round carries %d queries, want 3", len(rounds[0]))
	}
	if len(rounds[len(rounds)-1]) != 1 {
		t.Errorf("last round carries %d queries, want 1", len(rounds[len(rounds)-1]))
	}
	if name := rounds[len(rounds)-1][0].Name; name != "sensor/r2" {
		t.Errorf("last pending query is %q, want sensor/r2", name)
	}

	for _, item := range rounds[0] {
		switch item.Name {
		case "sensor/r1", "sensor/r2":
			if item.Limit != 500 {
				t.Errorf("%s limit = %d, want 500", item.Name, item.Limit)
			}
		case "equipment/a1":
			if item.Limit != 5 {
				t.Errorf("%s limit = %d, want 5", item.Name, item.Limit)
			}
		}
	}
}

func TestGetMultiTimeSeriesDatapoints_PerQueryBounds(t *testing.T) {
	mock, api := newTestAPI(t)
	mock.RegisterSeries("sensor/r1", testutil.SeriesSpec{First: 0, Last: 999, Step: 1})
	mock.RegisterSeries("sensor/r2", testutil.SeriesSpec{First: 0, Last: 999, Step: 1})

	r1 := mustRaw(t, "sensor/r1")
	r2 := mustRaw(t, "sensor/r2").WithStart(400).WithEnd(600)

	got, err := api.GetMultiTimeSeriesDatapoints(context.Background(),
		[]series.Query{r1, r2},
		timeutil.Millis(0), timeutil.Millis(1_000),
		pagination.Limits{},
	)
	if err != nil {
		t.Fatalf("GetMultiTimeSeriesDatapoints failed: %v", err)
	}

	if n := len(got["sensor/r1"]); n != 1_000 {
		t.Errorf("sensor/r1 has %d datapoints, want 1000", n)
	}
	page := got["sensor/r2"]
	if n := len(page); n != 200 {
		t.Fatalf("sensor/r2 has %d datapoints, want 200", n)
	}
	if page[0].Timestamp != 400 || page.LastTimestamp() != 599 {
		t.Errorf("sensor/r2 spans [%d, %d], want [400, 599]", page[0].Timestamp, page.LastTimestamp())
	}
}

func TestGetMultiTimeSeriesDatapoints_DuplicateSeries(t *testing.T) {
	_, api := newTestAPI(t)

	q := mustRaw(t, "sensor/r1")
	_, err := api.GetMultiTimeSeriesDatapoints(context.Background(),
		[]series.Query{q, q},
		timeutil.Millis(0), timeutil.Millis(1_000),
		pagination.Limits{},
	)
	if !errors.Is(err, timeutil.ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestGetMultiTimeSeriesDatapoints_BudgetTooSmall(t *testing.T) {
	_, api := newTestAPI(t)

	queries := make([]series.Query, 6)
	for i, name := range []string{"a", "b", "c", "d", "e", "f"} {
		queries[i] = mustRaw(t, "sensor/"+name)
	}

	_, err := api.GetMultiTimeSeriesDatapoints(context.Background(),
		queries,
		timeutil.Millis(0), timeutil.Millis(1_000),
		pagination.Limits{RawBudget: 5},
	)
	if !errors.Is(err, timeutil.ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

func mustRaw(t *testing.T, name string) series.Query {
	t.Helper()
	q, err := series.NewRawQuery(name)
	if err != nil {
		t.Fatalf("NewRawQuery(%q) failed: %v", name, err)
	}
	return q
}

func mustAgg(t *testing.T, name string, aggregates []string, granularity string) series.Query {
	t.Helper()
	q, err := series.NewAggregateQuery(name, aggregates, granularity)
	if err != nil {
		t.Fatalf("NewAggregateQuery(%q) failed: %v", name, err)
	}
	return q
}
