// Package metrics provides the centralized Prometheus metrics registry for
// the Tidemark SDK. All metrics are defined in their respective packages
// (client, ratelimit, pagination) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the SDK.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - tidemark_requests_remaining (Gauge): Request budget remaining in the current window
//   - tidemark_rate_limit_blocks_total (Counter): Requests blocked due to critical budget
//   - tidemark_rate_limit_throttles_total (Counter): Requests throttled due to low budget
//
// Request Metrics (pkg/client):
//   - tidemark_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - tidemark_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - tidemark_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - tidemark_retries_total{error_class} (Counter): Retry attempts by error class
//   - tidemark_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - tidemark_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Pagination Metrics (pkg/pagination):
//   - tidemark_pagination_pages_total{mode} (Counter): Pages fetched in series or batch mode
//   - tidemark_pagination_datapoints_total{mode} (Counter): Datapoints fetched in series or batch mode
//   - tidemark_pagination_sub_windows (Histogram): Sub-windows per parallel fetch
//
// Example Prometheus Queries:
//
//   # Request Budget Status
//   tidemark_requests_remaining < 20
//
//   # Request Error Rate
//   rate(tidemark_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(tidemark_request_duration_seconds_bucket[5m]))
//
//   # Datapoint Throughput
//   rate(tidemark_pagination_datapoints_total[5m])
