// Package testutil provides a mock notifications API for tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/notification-window/pkg/notification"
	"github.com/Sternrassler/notification-window/pkg/ratelimit"
)

// MockResponse defines a canned response for a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// PageRequest records the page parameters of one request.
type PageRequest struct {
	Page     int
	PageSize int
}

// MockAPI is a notifications API server for tests. By default it serves
// notification.Handler over an in-memory backend; paths can be overridden
// and canned failures queued in front of it.
type MockAPI struct {
	server   *httptest.Server
	backend  *notification.Backend
	fallback http.Handler

	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	failures []MockResponse

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
	PageRequests      []PageRequest
}

// NewMockAPI starts a mock server over a backend with totalItems
// notifications and no artificial latency.
func NewMockAPI(totalItems int) *MockAPI {
	backend := notification.NewBackend(notification.BackendConfig{
		TotalItems:     totalItems,
		NotViewedCount: 10,
	})
	return NewMockAPIWithBackend(backend)
}

// NewMockAPIWithBackend starts a mock server over backend.
func NewMockAPIWithBackend(backend *notification.Backend) *MockAPI {
	mock := &MockAPI{
		backend:  backend,
		fallback: notification.NewHandler(backend, notification.DefaultHandlerConfig()),
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		mock.PageRequests = append(mock.PageRequests, PageRequest{Page: page, PageSize: pageSize})

		var failure *MockResponse
		if len(mock.failures) > 0 {
			failure = &mock.failures[0]
			mock.failures = mock.failures[1:]
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		switch {
		case failure != nil:
			writeMockResponse(w, *failure)
		case exists:
			handler(w, r)
		default:
			mock.fallback.ServeHTTP(w, r)
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Backend returns the backend behind the default handler.
func (m *MockAPI) Backend() *notification.Backend {
	return m.backend
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters and queued failures.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.PageRequests = nil
	m.failures = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeMockResponse(w, resp)
	})
}

// FailNext answers the next n requests with resp, whatever their path.
func (m *MockAPI) FailNext(n int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures = append(m.failures, resp)
	}
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockAPI) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetPageRequests returns the page parameters seen so far.
func (m *MockAPI) GetPageRequests() []PageRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]PageRequest(nil), m.PageRequests...)
}

func writeMockResponse(w http.ResponseWriter, resp MockResponse) {
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
}

// NewHealthyResponse creates a 200 OK response with error limit headers.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			ratelimit.HeaderErrorLimitRemain: "100",
			ratelimit.HeaderErrorLimitReset:  "60",
			"ETag":                           `"test-etag-123"`,
			"Expires":                        time.Now().Add(5 * time.Minute).Format(http.TimeFormat),
			"Content-Type":                   "application/json; charset=utf-8",
		},
	}
}

// NewNotModifiedResponse creates a 304 Not Modified response.
func NewNotModifiedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotModified,
		Headers: map[string]string{
			ratelimit.HeaderErrorLimitRemain: "100",
			ratelimit.HeaderErrorLimitReset:  "60",
			"Expires":                        time.Now().Add(5 * time.Minute).Format(http.TimeFormat),
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "rate limit exceeded"}`,
		Headers: map[string]string{
			ratelimit.HeaderErrorLimitRemain: "30",
			ratelimit.HeaderErrorLimitReset:  "30",
			"Content-Type":                   "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers: map[string]string{
			ratelimit.HeaderErrorLimitRemain: "95",
			ratelimit.HeaderErrorLimitReset:  "60",
			"Content-Type":                   "application/json; charset=utf-8",
		},
	}
}

// NewCriticalErrorLimitResponse creates a 500 response that leaves the error
// limit below the critical threshold.
func NewCriticalErrorLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers: map[string]string{
			ratelimit.HeaderErrorLimitRemain: "2",
			ratelimit.HeaderErrorLimitReset:  "60",
			"Content-Type":                   "application/json; charset=utf-8",
		},
	}
}

// NewBadRequestResponse creates a 400 Bad Request response.
func NewBadRequestResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"error": "page: invalid integer"}`,
		Headers: map[string]string{
			ratelimit.HeaderErrorLimitRemain: "99",
			ratelimit.HeaderErrorLimitReset:  "60",
			"Content-Type":                   "application/json; charset=utf-8",
		},
	}
}
