// Package testutil provides an HTTP upstream double for tests that exercise
// fetch and the streaming proxy end to end.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockUpstream is an httptest server with scripted responses per path. It
// records every request it receives.
type MockUpstream struct {
	server    *httptest.Server
	mu        sync.Mutex
	responses map[string]MockResponse
	requests  []RecordedRequest
}

// MockResponse scripts one path.
type MockResponse struct {
	StatusCode int
	// Body is written as-is for string and []byte, JSON-encoded otherwise.
	Body    any
	Headers map[string]string
	// Delay is slept before the status line is written.
	Delay time.Duration

	// Chunks, if set, replace Body: each is written and flushed in turn,
	// ChunkDelay apart, so the response goes out chunked.
	Chunks     []string
	ChunkDelay time.Duration
}

// RecordedRequest is what the upstream saw.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// NewMockUpstream starts a mock upstream. It is closed by t's cleanup if
// cleanup is non-nil.
func NewMockUpstream(cleanup func(func())) *MockUpstream {
	mu := &MockUpstream{responses: make(map[string]MockResponse)}
	mu.server = httptest.NewServer(http.HandlerFunc(mu.handler))
	if cleanup != nil {
		cleanup(mu.Close)
	}
	return mu
}

// URL returns the base URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts the server down.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// SetResponse scripts the response for path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = resp
}

// Requests returns a copy of the recorded requests.
func (m *MockUpstream) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// LastRequest returns the most recent request, or false if none arrived.
func (m *MockUpstream) LastRequest() (RecordedRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return RecordedRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

func (m *MockUpstream) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	resp, ok := m.responses[r.URL.Path]
	m.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	if len(resp.Chunks) > 0 {
		m.stream(w, r, status, resp)
		return
	}

	w.WriteHeader(status)
	switch v := resp.Body.(type) {
	case nil:
	case string:
		_, _ = io.WriteString(w, v)
	case []byte:
		_, _ = w.Write(v)
	default:
		_ = json.NewEncoder(w).Encode(v)
	}
}

func (m *MockUpstream) stream(w http.ResponseWriter, r *http.Request, status int, resp MockResponse) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	for i, chunk := range resp.Chunks {
		if i > 0 && resp.ChunkDelay > 0 {
			select {
			case <-time.After(resp.ChunkDelay):
			case <-r.Context().Done():
				return
			}
		}
		_, _ = io.WriteString(w, chunk)
		flusher.Flush()
	}
}
