package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/onnwee/chatfeed/jsoncodec"
)

// MockSourceServer is a test server that stands in for every third-party
// registry at once. Requests are routed by "host/path" of the URL the client
// originally asked for, so adapters keep their production base URLs and only
// the HTTP client returned by Client needs to be injected.
type MockSourceServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
}

// NewMockSourceServer creates a new mock registry server.
func NewMockSourceServer(t *testing.T) *MockSourceServer {
	t.Helper()
	m := &MockSourceServer{
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Host + r.URL.Path
		m.mu.Lock()
		handler, ok := m.handlers[key]
		m.hits[key]++
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle registers a handler for hostPath, e.g. "api.betterttv.net/3/cached/emotes/global".
func (m *MockSourceServer) Handle(hostPath string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[hostPath] = h
}

// JSON registers a handler that answers hostPath with body encoded as JSON.
func (m *MockSourceServer) JSON(hostPath string, body any) {
	m.Handle(hostPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = jsoncodec.Encode(w, body) //nolint:errcheck // test mock response
	})
}

// Status registers a handler that answers hostPath with an empty response and code.
func (m *MockSourceServer) Status(hostPath string, code int) {
	m.Handle(hostPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

// Hits reports how many requests reached hostPath.
func (m *MockSourceServer) Hits(hostPath string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[hostPath]
}

// Client returns an HTTP client that sends every request to the mock server
// while preserving the original host for routing.
func (m *MockSourceServer) Client() *http.Client {
	return &http.Client{Transport: &RewriteTransport{Target: m.URL}}
}

// RewriteTransport redirects requests to Target, keeping the original host in
// the Host header.
type RewriteTransport struct {
	Target    string
	Transport http.RoundTripper
}

func (t *RewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Host = req.URL.Host
	clone.URL.Scheme = "http"
	host := strings.TrimPrefix(t.Target, "http://")
	host = strings.TrimPrefix(host, "https://")
	clone.URL.Host = host
	rt := t.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	return rt.RoundTrip(clone)
}
