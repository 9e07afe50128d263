package pagination

import (
	"fmt"

	"github.com/tidemark-io/tidemark-go/pkg/series"
)

// FetchFailedError wraps any transport or decoding failure raised by a fetch
// callback. The paging core never returns partial results: the first failure
// aborts the whole paginate, fan-out, or batch call.
type FetchFailedError struct {
	// Series is the series name of the failing fetch, empty for batched
	// fetches covering several series.
	Series string
	// Window is the window the failing fetch was scanning.
	Window series.TimeWindow
	// Err is the underlying fetch error.
	Err error
}

// Error implements the error interface.
func (e *FetchFailedError) Error() string {
	if e.Series == "" {
		return fmt.Sprintf("fetch failed in window [%d, %d): %v", e.Window.Start, e.Window.End, e.Err)
	}
	return fmt.Sprintf("fetch failed for series %q in window [%d, %d): %v", e.Series, e.Window.Start, e.Window.End, e.Err)
}

// Unwrap returns the underlying fetch error.
func (e *FetchFailedError) Unwrap() error {
	return e.Err
}
