package pagination

import (
	"errors"
	"testing"

	"github.com/tidemark-io/tidemark-go/pkg/series"
	"github.com/tidemark-io/tidemark-go/pkg/timeutil"
)

func TestSplitWindowEvenSplit(t *testing.T) {
	got, err := SplitWindow(series.TimeWindow{Start: 0, End: 1_000_000}, 4, 10_000)
	if err != nil {
		t.Fatalf("SplitWindow failed: %v", err)
	}

	want := []series.TimeWindow{
		{Start: 0, End: 250_000},
		{Start: 250_000, End: 500_000},
		{Start: 500_000, End: 750_000},
		{Start: 750_000, End: 1_000_000},
	}
	if len(got) != len(want) {
		t.Fatalf("len(windows) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("window %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSplitWindowCoverage(t *testing.T) {
	tests := []struct {
		name          string
		window        series.TimeWindow
		workerCount   int
		granularityMs int64
	}{
		{name: "even split", window: series.TimeWindow{Start: 0, End: 1_000_000}, workerCount: 4, granularityMs: 10_000},
		{name: "remainder absorbed by last", window: series.TimeWindow{Start: 0, End: 1_000_001}, workerCount: 4, granularityMs: 10_000},
		{name: "unaligned span", window: series.TimeWindow{Start: 7, End: 999_999}, workerCount: 7, granularityMs: 30_000},
		{name: "single worker", window: series.TimeWindow{Start: 100, End: 10_100}, workerCount: 1, granularityMs: 1_000},
		{name: "raw data", window: series.TimeWindow{Start: 0, End: 12_345}, workerCount: 10, granularityMs: 1},
		{name: "more workers than buckets", window: series.TimeWindow{Start: 0, End: 90_000}, workerCount: 10, granularityMs: 30_000},
		{name: "epoch scale", window: series.TimeWindow{Start: 1_522_188_000_000, End: 1_522_620_000_000}, workerCount: 10, granularityMs: 60_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitWindow(tt.window, tt.workerCount, tt.granularityMs)
			if err != nil {
				t.Fatalf("SplitWindow failed: %v", err)
			}

			if len(got) == 0 {
				t.Fatal("SplitWindow returned no windows")
			}
			if len(got) > tt.workerCount {
				t.Errorf("len(windows) = %d, want <= %d", len(got), tt.workerCount)
			}

			// Exact coverage: contiguous, ordered, first and last pinned.
			if got[0].Start != tt.window.Start {
				t.Errorf("first window starts at %d, want %d", got[0].Start, tt.window.Start)
			}
			if got[len(got)-1].End != tt.window.End {
				t.Errorf("last window ends at %d, want %d", got[len(got)-1].End, tt.window.End)
			}
			for i, w := range got {
				if w.Start >= w.End {
					t.Errorf("window %d is empty: %+v", i, w)
				}
				if i > 0 && w.Start != got[i-1].End {
					t.Errorf("gap or overlap between window %d and %d: %d != %d", i-1, i, got[i-1].End, w.Start)
				}
			}

			// Every boundary between sub-windows is granularity-aligned
			// relative to the window start.
			for i := 0; i < len(got)-1; i++ {
				if offset := got[i].End - tt.window.Start; offset%tt.granularityMs != 0 {
					t.Errorf("boundary %d at offset %d is not a multiple of %d", i, offset, tt.granularityMs)
				}
			}
		})
	}
}

func TestSplitWindowNarrowerThanBucket(t *testing.T) {
	window := series.TimeWindow{Start: 1000, End: 5000}

	got, err := SplitWindow(window, 8, 30_000)
	if err != nil {
		t.Fatalf("SplitWindow failed: %v", err)
	}
	if len(got) != 1 || got[0] != window {
		t.Errorf("windows = %+v, want the unsplit input window", got)
	}
}

func TestSplitWindowValidation(t *testing.T) {
	valid := series.TimeWindow{Start: 0, End: 1000}

	tests := []struct {
		name          string
		window        series.TimeWindow
		workerCount   int
		granularityMs int64
	}{
		{name: "inverted window", window: series.TimeWindow{Start: 1000, End: 0}, workerCount: 4, granularityMs: 100},
		{name: "zero workers", window: valid, workerCount: 0, granularityMs: 100},
		{name: "negative workers", window: valid, workerCount: -1, granularityMs: 100},
		{name: "zero granularity", window: valid, workerCount: 4, granularityMs: 0},
		{name: "negative granularity", window: valid, workerCount: 4, granularityMs: -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SplitWindow(tt.window, tt.workerCount, tt.granularityMs)
			if !errors.Is(err, timeutil.ErrInvalidArgument) {
				t.Errorf("SplitWindow() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}
