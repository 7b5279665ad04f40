package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// BackendEnvelope mirrors the wire shape of backend responses so tests can
// script them without importing the gateway package.
type BackendEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RecordedRequest captures one request the fake backend received.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Backend is a scriptable in-process stand-in for the visitor-management
// REST backend. Routes are registered per method+path; unscripted routes
// return 404 so tests fail loudly on unexpected calls.
type Backend struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests []RecordedRequest
}

// NewBackend starts a fake backend and registers shutdown on t.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	b := &Backend{t: t, handlers: make(map[string]http.HandlerFunc)}
	b.server = httptest.NewServer(http.HandlerFunc(b.dispatch))
	t.Cleanup(b.server.Close)
	return b
}

// URL returns the backend base URL.
func (b *Backend) URL() string { return b.server.URL }

// Close shuts the backend down early, for tests that simulate an unreachable
// backend.
func (b *Backend) Close() { b.server.Close() }

// Handle scripts a route. Later registrations replace earlier ones.
func (b *Backend) Handle(method, path string, fn http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[method+" "+path] = fn
}

// Respond scripts a route with a fixed status and envelope.
func (b *Backend) Respond(method, path string, status int, env BackendEnvelope) {
	b.Handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		WriteBackendEnvelope(w, status, env)
	})
}

func (b *Backend) dispatch(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	b.mu.Lock()
	b.requests = append(b.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
	})
	fn, ok := b.handlers[r.Method+" "+r.URL.Path]
	b.mu.Unlock()

	if !ok {
		WriteBackendEnvelope(w, http.StatusNotFound, BackendEnvelope{
			Success: false,
			Error:   "no handler for " + r.Method + " " + r.URL.Path,
		})
		return
	}
	fn(w, r)
}

// Requests returns a copy of everything received so far.
func (b *Backend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RecordedRequest, len(b.requests))
	copy(out, b.requests)
	return out
}

// CallCount returns how many times method+path was hit.
func (b *Backend) CallCount(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, req := range b.requests {
		if req.Method == method && req.Path == path {
			n++
		}
	}
	return n
}

// LastRequest returns the most recent request to method+path, or nil.
func (b *Backend) LastRequest(method, path string) *RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.requests) - 1; i >= 0; i-- {
		if b.requests[i].Method == method && b.requests[i].Path == path {
			req := b.requests[i]
			return &req
		}
	}
	return nil
}

// WriteBackendEnvelope writes an envelope as JSON with the given status.
func WriteBackendEnvelope(w http.ResponseWriter, status int, env BackendEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
