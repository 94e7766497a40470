// Package httputil holds the JSON plumbing shared by the planner's HTTP API
// and the tools that query it.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Doer sends HTTP requests. *http.Client satisfies it; MockHTTPClient is for
// tests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned by GetJSON when the server answers with a non-2xx
// status. Message carries the server's ErrorBody when it sent one.
type StatusError struct {
	URL     string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("GET %s: %d %s", e.URL, e.Code, e.Message)
	}
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// GetJSON fetches url and decodes the JSON body into v.
func GetJSON(ctx context.Context, c Doer, url string, v interface{}) error {
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb ErrorBody
		_ = json.Unmarshal(body, &eb)
		return &StatusError{URL: url, Code: resp.StatusCode, Message: eb.Error}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// MockHTTPClient answers requests from canned responses keyed by URL path.
// Unknown paths get 404.
type MockHTTPClient struct {
	mu        sync.Mutex
	responses map[string]MockResponse
	requests  []*http.Request
}

// MockResponse is one canned answer. A non-nil Error fails the request.
type MockResponse struct {
	StatusCode int
	Body       string
	Error      error
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{responses: make(map[string]MockResponse)}
}

// Handle sets the response for path.
func (m *MockHTTPClient) Handle(path string, status int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = MockResponse{StatusCode: status, Body: body}
	return m
}

// Fail makes requests for path return err.
func (m *MockHTTPClient) Fail(path string, err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = MockResponse{Error: err}
	return m
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	r, ok := m.responses[req.URL.Path]
	if !ok {
		r = MockResponse{StatusCode: http.StatusNotFound, Body: `{"error":"not found"}`}
	}
	if r.Error != nil {
		return nil, r.Error
	}
	return &http.Response{
		StatusCode: r.StatusCode,
		Body:       io.NopCloser(bytes.NewBufferString(r.Body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Request:    req,
	}, nil
}

// Requests returns the paths requested so far, in order.
func (m *MockHTTPClient) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, len(m.requests))
	for i, r := range m.requests {
		paths[i] = r.URL.Path
	}
	return paths
}
