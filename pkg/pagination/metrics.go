package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values for the two paging modes.
const (
	modeSeries = "series"
	modeBatch  = "batch"
)

var (
	pagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidemark_pagination_pages_total",
			Help: "Total number of pages fetched by the paging core",
		},
		[]string{"mode"},
	)

	datapointsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidemark_pagination_datapoints_total",
			Help: "Total number of datapoints accumulated by the paging core",
		},
		[]string{"mode"},
	)

	subWindowsPerFetch = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tidemark_pagination_sub_windows",
			Help:    "Number of sub-windows per parallel fetch",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)
)
