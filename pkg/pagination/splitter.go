package pagination

import (
	"fmt"

	"github.com/tidemark-io/tidemark-go/pkg/series"
	"github.com/tidemark-io/tidemark-go/pkg/timeutil"
)

// SplitWindow divides a window into at most workerCount sub-windows for
// parallel paging. Every boundary between sub-windows is a multiple of
// granularityMs from the window start, so no aggregate bucket is split
// across two workers, and the window is never cut into more pieces than it
// has granularity buckets. The final sub-window ends exactly at the window
// end, absorbing any remainder the alignment rounding left over.
//
// The returned sub-windows are disjoint, ordered, and cover [Start, End)
// exactly. Raw-data callers pass granularityMs 1.
func SplitWindow(window series.TimeWindow, workerCount int, granularityMs int64) ([]series.TimeWindow, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if workerCount <= 0 {
		return nil, fmt.Errorf("%w: worker count must be positive, got %d", timeutil.ErrInvalidArgument, workerCount)
	}
	if granularityMs <= 0 {
		return nil, fmt.Errorf("%w: granularity must be positive, got %d", timeutil.ErrInvalidArgument, granularityMs)
	}

	span := window.Span()
	steps := int64(workerCount)
	if buckets := span / granularityMs; buckets < steps {
		steps = buckets
	}
	if steps < 1 {
		steps = 1
	}

	stepSize, err := timeutil.RoundDownToMultiple(span/steps, granularityMs)
	if err != nil {
		return nil, err
	}
	if stepSize == 0 {
		// Narrower than one granularity bucket: nothing to split.
		return []series.TimeWindow{window}, nil
	}

	out := make([]series.TimeWindow, 0, steps)
	for i := int64(0); i < steps; i++ {
		out = append(out, series.TimeWindow{
			Start: window.Start + i*stepSize,
			End:   window.Start + (i+1)*stepSize,
		})
	}
	out[len(out)-1].End = window.End
	return out, nil
}
