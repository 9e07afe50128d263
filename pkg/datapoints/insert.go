package datapoints

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tidemark-io/tidemark-go/pkg/client"
	"github.com/tidemark-io/tidemark-go/pkg/series"
	"github.com/tidemark-io/tidemark-go/pkg/timeutil"
)

// maxInsertSize is the API cap on datapoints per upload request.
const maxInsertSize = 100_000

// SeriesDatapoints is one series' worth of datapoints in a multi-series
// upload.
type SeriesDatapoints struct {
	Name       string      `json:"name"`
	Datapoints series.Page `json:"datapoints"`
}

// InsertDatapoints uploads datapoints to one series, splitting the upload
// into requests of at most the API cap. Datapoints must be in ascending
// timestamp order.
func (a *API) InsertDatapoints(ctx context.Context, name string, dps series.Page) error {
	if name == "" {
		return fmt.Errorf("%w: series name must not be empty", timeutil.ErrInvalidArgument)
	}

	requests := 0
	for len(dps) > 0 {
		chunk := dps
		if len(chunk) > maxInsertSize {
			chunk = dps[:maxInsertSize]
		}
		dps = dps[len(chunk):]

		body := map[string]any{"items": chunk}
		if err := a.postInsert(ctx, "/timeseries/data/"+url.PathEscape(name), body); err != nil {
			return err
		}
		requests++
	}

	a.logger.Debug().
		Str("series", name).
		Int("requests", requests).
		Msg("Insert complete")

	return nil
}

// InsertMultiTimeSeriesDatapoints uploads datapoints to several series in as
// few requests as the API cap allows. Oversized series are first split into
// cap-sized chunks, then all chunks are packed first-fit into request bins
// that never exceed the cap. Within each series, datapoints stay in their
// given order.
func (a *API) InsertMultiTimeSeriesDatapoints(ctx context.Context, batches []SeriesDatapoints) error {
	chunks := make([]SeriesDatapoints, 0, len(batches))
	for _, batch := range batches {
		if batch.Name == "" {
			return fmt.Errorf("%w: series name must not be empty", timeutil.ErrInvalidArgument)
		}
		dps := batch.Datapoints
		for len(dps) > maxInsertSize {
			chunks = append(chunks, SeriesDatapoints{Name: batch.Name, Datapoints: dps[:maxInsertSize]})
			dps = dps[maxInsertSize:]
		}
		if len(dps) > 0 {
			chunks = append(chunks, SeriesDatapoints{Name: batch.Name, Datapoints: dps})
		}
	}

	bins := packInsertBins(chunks)

	start := time.Now()
	for _, bin := range bins {
		body := map[string]any{"items": bin}
		if err := a.postInsert(ctx, "/timeseries/data", body); err != nil {
			return err
		}
	}

	a.logger.Debug().
		Int("series", len(batches)).
		Int("requests", len(bins)).
		Dur("duration", time.Since(start)).
		Msg("Multi-series insert complete")

	return nil
}

// packInsertBins packs chunks into request bins using first fit: each chunk
// goes into the first bin with room for it, or opens a new bin.
func packInsertBins(chunks []SeriesDatapoints) [][]SeriesDatapoints {
	var bins [][]SeriesDatapoints
	var sizes []int

	for _, chunk := range chunks {
		placed := false
		for i := range bins {
			if sizes[i]+len(chunk.Datapoints) <= maxInsertSize {
				bins[i] = append(bins[i], chunk)
				sizes[i] += len(chunk.Datapoints)
				placed = true
				break
			}
		}
		if !placed {
			bins = append(bins, []SeriesDatapoints{chunk})
			sizes = append(sizes, len(chunk.Datapoints))
		}
	}

	return bins
}

// postInsert performs one upload request. Bodies are gzip-compressed by the
// transport unless the client disables it.
func (a *API) postInsert(ctx context.Context, endpoint string, body any) error {
	resp, err := a.client.PostJSON(ctx, endpoint, body, client.AcceptJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return client.ParseErrorResponse(resp)
	}
	return nil
}
