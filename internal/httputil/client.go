// Package httputil holds the outbound HTTP plumbing shared by the speech and
// sink clients plus the JSON response helpers used by the API.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPClient is the part of *http.Client the outbound clients need.
// Tests substitute MockHTTPClient.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultTimeout bounds every outbound call so no network response can hold
// a loop open indefinitely.
const DefaultTimeout = 15 * time.Second

// NewClient returns an *http.Client with timeout, or DefaultTimeout if zero.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// StatusError is a non-2xx response. Body holds at most the first KiB.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.Code)
	}
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// CheckStatus returns a *StatusError for non-2xx responses, closing the body.
// On success the body is left open for the caller.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
}

// PostJSON marshals body and POSTs it to url with the given extra headers.
// Non-2xx responses come back as *StatusError.
func PostJSON(ctx context.Context, c HTTPClient, url string, headers map[string]string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if err := CheckStatus(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// MockHTTPClient records requests and replays queued responses in order.
// Once the queue is drained it answers 200 with an empty body.
type MockHTTPClient struct {
	mu        sync.Mutex
	DoFunc    func(req *http.Request) (*http.Response, error)
	requests  []*http.Request
	bodies    [][]byte
	responses []MockResponse
	next      int
}

// MockResponse is one canned reply. A non-nil Error is returned instead of
// a response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    http.Header
	Error      error
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a reply.
func (m *MockHTTPClient) AddResponse(status int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, MockResponse{StatusCode: status, Body: body, Headers: make(http.Header)})
	return m
}

// AddErrorResponse queues a transport failure.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, MockResponse{Error: err})
	return m
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)

	if m.DoFunc != nil {
		req.Body = io.NopCloser(bytes.NewReader(body))
		return m.DoFunc(req)
	}

	r := MockResponse{StatusCode: http.StatusOK, Headers: make(http.Header)}
	if m.next < len(m.responses) {
		r = m.responses[m.next]
		m.next++
	}
	if r.Error != nil {
		return nil, r.Error
	}
	return &http.Response{
		StatusCode: r.StatusCode,
		Body:       io.NopCloser(bytes.NewBufferString(r.Body)),
		Header:     r.Headers,
		Request:    req,
	}, nil
}

// Request returns the nth recorded request and its body, or nil.
func (m *MockHTTPClient) Request(n int) (*http.Request, []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.requests) {
		return nil, nil
	}
	return m.requests[n], m.bodies[n]
}

func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
