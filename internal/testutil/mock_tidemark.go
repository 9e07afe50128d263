// Package testutil provides testing utilities for the Tidemark client.
package testutil

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidemark-io/tidemark-go/pkg/codec"
	"github.com/tidemark-io/tidemark-go/pkg/frame"
	"github.com/tidemark-io/tidemark-go/pkg/series"
	"github.com/tidemark-io/tidemark-go/pkg/timeutil"
)

// SeriesSpec describes the data a mock time series holds. Datapoints live on
// a fixed grid: First, First+Step, ... up to Last inclusive. Aggregate reads
// reuse the same anchor with the requested granularity as spacing.
type SeriesSpec struct {
	First   int64
	Last    int64
	Step    int64
	Strings bool
}

// DataRequest records one GET datapoints request.
type DataRequest struct {
	Name          string
	Start         int64
	End           int64
	Limit         int
	Aggregates    string
	Granularity   string
	OutsidePoints bool
	Accept        string
}

// DataQueryItem is one query inside a batched dataquery request body.
type DataQueryItem struct {
	Name        string   `json:"name"`
	Start       int64    `json:"start"`
	End         int64    `json:"end"`
	Limit       int      `json:"limit"`
	Aggregates  []string `json:"aggregates,omitempty"`
	Granularity string   `json:"granularity,omitempty"`
}

// FrameRequest records one dataframe request body.
type FrameRequest struct {
	Items       []string `json:"items"`
	Aggregates  []string `json:"aggregates"`
	Granularity string   `json:"granularity"`
	Start       int64    `json:"start"`
	End         int64    `json:"end"`
	Limit       int      `json:"limit"`
}

// InsertItem is one series' worth of uploaded datapoints.
type InsertItem struct {
	Name       string      `json:"name"`
	Datapoints series.Page `json:"datapoints"`
}

// InsertRequest records one upload request.
type InsertRequest struct {
	Items []InsertItem
}

// MockResponse defines a canned response for an endpoint path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockTidemark is a configurable mock Tidemark API server for testing. It
// serves generated datapoints for registered series and records the requests
// it receives.
type MockTidemark struct {
	server  *httptest.Server
	project string

	mu       sync.RWMutex
	series   map[string]SeriesSpec
	handlers map[string]http.HandlerFunc

	requestCount      int
	lastRequestHeader http.Header
	dataRequests      []DataRequest
	dataQueryRequests [][]DataQueryItem
	frameRequests     []FrameRequest
	insertRequests    []InsertRequest
	inserted          map[string]series.Page

	budgetRemaining string
	budgetReset     string
}

// NewMockTidemark creates a mock server scoped to a project.
func NewMockTidemark(project string) *MockTidemark {
	mock := &MockTidemark{
		project:         project,
		series:          make(map[string]SeriesSpec),
		handlers:        make(map[string]http.HandlerFunc),
		inserted:        make(map[string]series.Page),
		budgetRemaining: "100",
		budgetReset:     "60",
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.route))

	return mock
}

// URL returns the mock server URL.
func (m *MockTidemark) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockTidemark) Close() {
	m.server.Close()
}

// RegisterSeries makes a time series available for reads.
func (m *MockTidemark) RegisterSeries(name string, spec SeriesSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[name] = spec
}

// SetBudgetHeaders overrides the rate limit headers sent on every response.
func (m *MockTidemark) SetBudgetHeaders(remaining, reset string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgetRemaining = remaining
	m.budgetReset = reset
}

// SetHandler sets a custom handler for a project-relative path, bypassing
// the built-in endpoints.
func (m *MockTidemark) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a project-relative path.
func (m *MockTidemark) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// Reset clears all tracked requests and captured uploads.
func (m *MockTidemark) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.lastRequestHeader = nil
	m.dataRequests = nil
	m.dataQueryRequests = nil
	m.frameRequests = nil
	m.insertRequests = nil
	m.inserted = make(map[string]series.Page)
}

// RequestCount returns the number of requests made to the server.
func (m *MockTidemark) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockTidemark) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

// DataRequests returns all recorded GET datapoints requests.
func (m *MockTidemark) DataRequests() []DataRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]DataRequest(nil), m.dataRequests...)
}

// DataQueryRequests returns the item lists of all recorded dataquery
// requests, in arrival order.
func (m *MockTidemark) DataQueryRequests() [][]DataQueryItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]DataQueryItem(nil), m.dataQueryRequests...)
}

// FrameRequests returns all recorded dataframe requests.
func (m *MockTidemark) FrameRequests() []FrameRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]FrameRequest(nil), m.frameRequests...)
}

// InsertRequests returns all recorded upload requests.
func (m *MockTidemark) InsertRequests() []InsertRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]InsertRequest(nil), m.insertRequests...)
}

// Inserted returns all datapoints uploaded for a series, in arrival order.
func (m *MockTidemark) Inserted(name string) series.Page {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append(series.Page(nil), m.inserted[name]...)
}

// route dispatches project-scoped requests to the built-in endpoints.
func (m *MockTidemark) route(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestCount++
	m.lastRequestHeader = r.Header.Clone()
	m.mu.Unlock()

	prefix := "/api/v1/projects/" + url.PathEscape(m.project)
	if !strings.HasPrefix(r.URL.Path, prefix) {
		m.writeError(w, http.StatusNotFound, "unknown project path "+r.URL.Path)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)

	m.mu.RLock()
	handler, exists := m.handlers[path]
	m.mu.RUnlock()
	if exists {
		handler(w, r)
		return
	}

	switch {
	case path == "/timeseries/dataquery" && r.Method == http.MethodPost:
		m.handleDataQuery(w, r)
	case path == "/timeseries/dataframe" && r.Method == http.MethodPost:
		m.handleDataFrame(w, r)
	case path == "/timeseries/data" && r.Method == http.MethodPost:
		m.handleMultiInsert(w, r)
	case strings.HasPrefix(path, "/timeseries/data/") && r.Method == http.MethodGet:
		m.handleData(w, r, pathName(path, "/timeseries/data/"))
	case strings.HasPrefix(path, "/timeseries/data/") && r.Method == http.MethodPost:
		m.handleInsert(w, r, pathName(path, "/timeseries/data/"))
	case strings.HasPrefix(path, "/timeseries/latest/") && r.Method == http.MethodGet:
		m.handleLatest(w, r, pathName(path, "/timeseries/latest/"))
	default:
		m.writeError(w, http.StatusNotFound, "no such endpoint "+path)
	}
}

func pathName(path, prefix string) string {
	name, err := url.PathUnescape(strings.TrimPrefix(path, prefix))
	if err != nil {
		return strings.TrimPrefix(path, prefix)
	}
	return name
}

func (m *MockTidemark) handleData(w http.ResponseWriter, r *http.Request, name string) {
	m.mu.RLock()
	spec, ok := m.series[name]
	m.mu.RUnlock()
	if !ok {
		m.writeError(w, http.StatusNotFound, "time series not found: "+name)
		return
	}

	q := r.URL.Query()
	start := parseInt64(q.Get("start"), spec.First)
	end := parseInt64(q.Get("end"), spec.Last+1)
	aggregates := q.Get("aggregates")
	granularity := q.Get("granularity")
	outside := q.Get("includeOutsidePoints") == "true"
	accept := r.Header.Get("Accept")

	step := spec.Step
	limit := parseInt(q.Get("limit"), 100_000)
	if aggregates != "" {
		if accept == "application/protobuf" {
			m.writeError(w, http.StatusBadRequest, "protobuf is not supported for aggregate reads")
			return
		}
		ms, err := timeutil.GranularityToMs(granularity)
		if err != nil {
			m.writeError(w, http.StatusBadRequest, "invalid granularity: "+granularity)
			return
		}
		step = ms
		if q.Get("limit") == "" {
			limit = 10_000
		}
	}

	m.mu.Lock()
	m.dataRequests = append(m.dataRequests, DataRequest{
		Name:          name,
		Start:         start,
		End:           end,
		Limit:         limit,
		Aggregates:    aggregates,
		Granularity:   granularity,
		OutsidePoints: outside,
		Accept:        accept,
	})
	m.mu.Unlock()

	page := generatePage(spec, start, end, step, limit)
	if outside {
		page = addOutsidePoints(spec, page, start, end, step)
	}

	m.setBudget(w)
	if accept == "application/protobuf" {
		data, err := codec.EncodeProtobuf(name, page)
		if err != nil {
			m.writeError(w, http.StatusInternalServerError, "encode protobuf: "+err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/protobuf")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}

	m.writeItems(w, []codec.Item{{Name: name, Datapoints: page}})
}

func (m *MockTidemark) handleDataQuery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Items []DataQueryItem `json:"items"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		m.writeError(w, http.StatusBadRequest, "decode body: "+err.Error())
		return
	}

	m.mu.Lock()
	m.dataQueryRequests = append(m.dataQueryRequests, append([]DataQueryItem(nil), body.Items...))
	m.mu.Unlock()

	items := make([]codec.Item, 0, len(body.Items))
	for _, item := range body.Items {
		m.mu.RLock()
		spec, ok := m.series[item.Name]
		m.mu.RUnlock()
		if !ok {
			m.writeError(w, http.StatusNotFound, "time series not found: "+item.Name)
			return
		}

		step := spec.Step
		if len(item.Aggregates) > 0 {
			ms, err := timeutil.GranularityToMs(item.Granularity)
			if err != nil {
				m.writeError(w, http.StatusBadRequest, "invalid granularity: "+item.Granularity)
				return
			}
			step = ms
		}

		items = append(items, codec.Item{
			Name:       item.Name,
			Datapoints: generatePage(spec, item.Start, item.End, step, item.Limit),
		})
	}

	m.setBudget(w)
	m.writeItems(w, items)
}

func (m *MockTidemark) handleDataFrame(w http.ResponseWriter, r *http.Request) {
	var body FrameRequest
	if err := decodeJSONBody(r, &body); err != nil {
		m.writeError(w, http.StatusBadRequest, "decode body: "+err.Error())
		return
	}

	m.mu.Lock()
	m.frameRequests = append(m.frameRequests, body)
	m.mu.Unlock()

	step, err := timeutil.GranularityToMs(body.Granularity)
	if err != nil {
		m.writeError(w, http.StatusBadRequest, "invalid granularity: "+body.Granularity)
		return
	}

	specs := make([]SeriesSpec, 0, len(body.Items))
	var lastData int64
	for _, name := range body.Items {
		m.mu.RLock()
		spec, ok := m.series[name]
		m.mu.RUnlock()
		if !ok {
			m.writeError(w, http.StatusNotFound, "time series not found: "+name)
			return
		}
		specs = append(specs, spec)
		if spec.Last > lastData {
			lastData = spec.Last
		}
	}

	columns := make([]string, 0, len(body.Items)*len(body.Aggregates))
	for _, name := range body.Items {
		for _, agg := range body.Aggregates {
			columns = append(columns, name+"|"+agg)
		}
	}

	f := frame.New(columns)
	stop := body.End
	if lastData+1 < stop {
		stop = lastData + 1
	}
	for ts := body.Start; ts < stop; ts += step {
		if body.Limit > 0 && f.Len() >= body.Limit {
			break
		}
		row := make([]float64, 0, len(columns))
		for i, spec := range specs {
			for range body.Aggregates {
				if ts > spec.Last {
					row = append(row, math.NaN())
				} else {
					row = append(row, float64(ts)/1000.0+float64(i))
				}
			}
		}
		if err := f.AppendRow(ts, row); err != nil {
			m.writeError(w, http.StatusInternalServerError, "build frame: "+err.Error())
			return
		}
	}

	m.setBudget(w)
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	if err := f.WriteCSV(w); err != nil {
		return
	}
}

func (m *MockTidemark) handleInsert(w http.ResponseWriter, r *http.Request, name string) {
	var body struct {
		Items series.Page `json:"items"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		m.writeError(w, http.StatusBadRequest, "decode body: "+err.Error())
		return
	}

	m.mu.Lock()
	m.inserted[name] = append(m.inserted[name], body.Items...)
	m.insertRequests = append(m.insertRequests, InsertRequest{
		Items: []InsertItem{{Name: name, Datapoints: body.Items}},
	})
	m.mu.Unlock()

	m.setBudget(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{}`))
}

func (m *MockTidemark) handleMultiInsert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Items []InsertItem `json:"items"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		m.writeError(w, http.StatusBadRequest, "decode body: "+err.Error())
		return
	}

	m.mu.Lock()
	for _, item := range body.Items {
		m.inserted[item.Name] = append(m.inserted[item.Name], item.Datapoints...)
	}
	m.insertRequests = append(m.insertRequests, InsertRequest{Items: body.Items})
	m.mu.Unlock()

	m.setBudget(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{}`))
}

func (m *MockTidemark) handleLatest(w http.ResponseWriter, r *http.Request, name string) {
	m.mu.RLock()
	spec, ok := m.series[name]
	m.mu.RUnlock()
	if !ok {
		m.writeError(w, http.StatusNotFound, "time series not found: "+name)
		return
	}

	before := parseInt64(r.URL.Query().Get("before"), spec.Last+1)

	page := series.Page{}
	if before > spec.First {
		ts := spec.First + ((before-1-spec.First)/spec.Step)*spec.Step
		if ts > spec.Last {
			ts = spec.First + ((spec.Last-spec.First)/spec.Step)*spec.Step
		}
		page = append(page, series.Datapoint{Timestamp: ts, Value: specValue(spec, ts)})
	}

	m.setBudget(w)
	m.writeItems(w, []codec.Item{{Name: name, Datapoints: page}})
}

// generatePage produces the datapoints of [start, end) on the series grid,
// capped at limit. Empty when start >= end.
func generatePage(spec SeriesSpec, start, end, step int64, limit int) series.Page {
	if step <= 0 {
		step = spec.Step
	}

	first := spec.First
	if start > first {
		k := (start - first + step - 1) / step
		first += k * step
	}

	stop := spec.Last + 1
	if end < stop {
		stop = end
	}

	page := series.Page{}
	for ts := first; ts < stop; ts += step {
		if limit > 0 && len(page) >= limit {
			break
		}
		page = append(page, series.Datapoint{Timestamp: ts, Value: specValue(spec, ts)})
	}
	return page
}

// addOutsidePoints prepends the closest point before start and appends the
// closest point at or after end, when they exist.
func addOutsidePoints(spec SeriesSpec, page series.Page, start, end, step int64) series.Page {
	out := series.Page{}

	if start > spec.First {
		k := (start - spec.First + step - 1) / step
		prev := spec.First + (k-1)*step
		if prev >= spec.First && prev <= spec.Last {
			out = append(out, series.Datapoint{Timestamp: prev, Value: specValue(spec, prev)})
		}
	}

	out = append(out, page...)

	if end > spec.First {
		k := (end - spec.First + step - 1) / step
		next := spec.First + k*step
		if next <= spec.Last {
			out = append(out, series.Datapoint{Timestamp: next, Value: specValue(spec, next)})
		}
	}

	return out
}

func specValue(spec SeriesSpec, ts int64) series.Value {
	if spec.Strings {
		return series.Str(fmt.Sprintf("s%d", ts))
	}
	return series.Float(float64(ts) / 1000.0)
}

func (m *MockTidemark) setBudget(w http.ResponseWriter) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w.Header().Set("X-Request-Limit-Remaining", m.budgetRemaining)
	w.Header().Set("X-Request-Limit-Reset", m.budgetReset)
}

func (m *MockTidemark) writeItems(w http.ResponseWriter, items []codec.Item) {
	data, err := codec.EncodeJSONItems(items)
	if err != nil {
		m.writeError(w, http.StatusInternalServerError, "encode items: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (m *MockTidemark) writeError(w http.ResponseWriter, code int, message string) {
	m.setBudget(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	body := map[string]any{
		"error": map[string]any{"code": code, "message": message},
	}
	data, _ := json.Marshal(body)
	w.Write(data)
}

func decodeJSONBody(r *http.Request, v any) error {
	var reader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return err
		}
		defer gz.Close()
		reader = gz
	}
	return json.NewDecoder(reader).Decode(v)
}

func parseInt64(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}
