package datapoints

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidemark-io/tidemark-go/pkg/series"
)

// LivePoller follows the head of a series by polling its latest datapoint on
// a fixed interval.
type LivePoller struct {
	api      *API
	name     string
	interval time.Duration
	logger   zerolog.Logger
}

// NewLivePoller creates a poller for one series. A non-positive interval
// defaults to one second.
func (a *API) NewLivePoller(name string, interval time.Duration) *LivePoller {
	if interval <= 0 {
		interval = time.Second
	}
	return &LivePoller{
		api:      a,
		name:     name,
		interval: interval,
		logger:   a.logger.With().Str("series", name).Logger(),
	}
}

// Run starts polling and returns the channel of new datapoints. A datapoint
// is emitted only when its timestamp advances past the last emitted one, so
// an idle series produces nothing. Fetch errors are logged and polling
// continues; the channel closes when the context ends.
func (p *LivePoller) Run(ctx context.Context) <-chan series.Datapoint {
	out := make(chan series.Datapoint)

	go func() {
		defer close(out)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		var last int64
		seen := false
		for {
			dp, err := p.api.GetLatest(ctx, p.name, "")
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				p.logger.Warn().Err(err).Msg("Live poll failed")
			case dp != nil && (!seen || dp.Timestamp > last):
				last = dp.Timestamp
				seen = true
				select {
				case out <- *dp:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}
