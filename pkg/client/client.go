// Package client provides the core Tidemark HTTP client with rate limiting,
// retries, and error handling.
package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tidemark-io/tidemark-go/pkg/ratelimit"
)

// Prometheus metrics for API client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidemark_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tidemark_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidemark_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Accepted response content types.
const (
	AcceptJSON     = "application/json"
	AcceptProtobuf = "application/protobuf"
	AcceptCSV      = "text/csv"
)

const (
	// DefaultBaseURL is the production Tidemark API endpoint.
	DefaultBaseURL = "https://api.tidemark.io"

	defaultClientName = "tidemark-go/1.0.0"
	defaultTimeout    = 30 * time.Second
)

// Client is the project-scoped Tidemark API client.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	config      Config
	baseURL     string
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the Tidemark API.
	BaseURL string

	// Project scopes every request path.
	Project string

	// APIKey sent in the api-key header on every request.
	APIKey string

	// ClientName identifies the application in the User-Agent header.
	// Format: "AppName/Version"
	ClientName string

	// Timeout per HTTP request, including retried attempts' bodies.
	Timeout time.Duration

	// DisableGzip turns off gzip compression of POST bodies.
	DisableGzip bool
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(project, apiKey string) Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		Project:    project,
		APIKey:     apiKey,
		ClientName: defaultClientName,
		Timeout:    defaultTimeout,
	}
}

// New creates a new Tidemark client.
func New(cfg Config) (*Client, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("project is required")
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.ClientName == "" {
		cfg.ClientName = defaultClientName
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	// Initialize logger
	logger := log.With().Str("component", "tidemark-client").Logger()

	// Create rate limit tracker
	rateLimiter := ratelimit.NewTracker(logger)

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: rateLimiter,
		config:      cfg,
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:      logger,
	}, nil
}

// apiURL builds the project-scoped URL for an endpoint path.
func (c *Client) apiURL(endpoint string) string {
	return c.baseURL + "/api/v1/projects/" + url.PathEscape(c.config.Project) + endpoint
}

// Do performs an HTTP request with rate limiting, retries, and error handling.
// This is the core request method that orchestrates all client features.
// Responses with 4xx statuses are returned, not converted to errors; callers
// decide how to surface them.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	// Start request timing
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check rate limit
	allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Rate limit check failed")
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Msg("Request blocked by rate limiter")
		requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		return nil, fmt.Errorf("request blocked: %w", ErrRateLimited)
	}

	// Step 2: Set identification headers
	req.Header.Set("api-key", c.config.APIKey)
	req.Header.Set("User-Agent", c.config.ClientName)
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", AcceptJSON)
	}

	// Step 3: Execute HTTP request with retry logic
	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Msg("Executing API request")

	var resp *http.Response
	var errClass ErrorClass

	retryErr := retryWithBackoff(ctx, func() error {
		// Restore the body for re-sent requests
		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				errClass = ErrorClassNetwork
				return fmt.Errorf("reset request body: %w", bodyErr)
			}
			req.Body = body
		}

		// Execute the HTTP request
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)

		// Handle network errors
		if reqErr != nil {
			c.logger.Error().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			errClass = c.classifyError(nil, reqErr)
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return reqErr
		}

		// Update rate limit from headers
		if err := c.rateLimiter.UpdateFromHeaders(resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}

		// Handle HTTP errors
		if resp.StatusCode >= 400 {
			errClass = c.classifyError(resp, nil)
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("API request error")

			// Check if we should retry this error
			if shouldRetry(errClass) {
				apiErr := ParseErrorResponse(resp)
				resp.Body.Close() // Close the body before retrying
				return apiErr
			}

			// Don't retry client errors - return success (let caller handle status)
			return nil
		}

		// Success
		requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		return nil
	}, func(err error) ErrorClass {
		// Classify error dynamically for retry logic
		return errClass
	})

	// Handle retry exhaustion
	if retryErr != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, retryErr
	}

	return resp, nil
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	return classifyStatus(resp.StatusCode)
}

// classifyStatus maps an HTTP status code to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// Get performs a GET request to a project-scoped endpoint. An empty accept
// defaults to JSON.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, accept string) (*http.Response, error) {
	u := c.apiURL(endpoint)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	return c.Do(req)
}

// PostJSON performs a POST request with a JSON body to a project-scoped
// endpoint. The body is gzip-compressed unless disabled in the config.
func (c *Client) PostJSON(ctx context.Context, endpoint string, body any, accept string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	contentEncoding := ""
	if !c.config.DisableGzip {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(payload); err != nil {
			return nil, fmt.Errorf("compress request body: %w", err)
		}
		if err := gz.Close(); err != nil {
			return nil, fmt.Errorf("compress request body: %w", err)
		}
		payload = buf.Bytes()
		contentEncoding = "gzip"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL(endpoint), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if contentEncoding != "" {
		req.Header.Set("Content-Encoding", contentEncoding)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	return c.Do(req)
}

// Close closes the client and releases resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// RateLimiter returns the request budget tracker (for testing).
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}
