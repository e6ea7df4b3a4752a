// Package relay forwards HTTP requests to caller-specified targets. The
// browser-side pipeline cannot reach third-party hosts directly because of
// CORS, so every upstream call goes through here.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request describes one proxied call.
type Request struct {
	TargetURL string            `json:"targetUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Body      json.RawMessage   `json:"body"`
}

// WantsStream reports whether the proxied request asks the upstream for a
// server-sent-event response: a POST whose JSON body carries "stream": true.
func (r Request) WantsStream() bool {
	if !strings.EqualFold(r.Method, http.MethodPost) || len(r.Body) == 0 {
		return false
	}
	var probe struct {
		Stream bool `json:"stream"`
	}
	if err := json.Unmarshal(r.Body, &probe); err != nil {
		return false
	}
	return probe.Stream
}

// Validate checks the request can be forwarded at all.
func (r Request) Validate() error {
	if r.TargetURL == "" {
		return fmt.Errorf("targetUrl is required")
	}
	u, err := url.Parse(r.TargetURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("targetUrl must be an absolute URL")
	}
	return nil
}

// Relay performs outbound calls on behalf of callers. It holds no state
// between calls.
type Relay struct {
	client *http.Client
}

// New builds a relay. The underlying client carries no overall timeout so
// long-lived upstream streams survive; callers bound latency via ctx.
func New() *Relay {
	return &Relay{client: &http.Client{}}
}

// NewWithClient is used by tests to substitute a transport.
func NewWithClient(c *http.Client) *Relay {
	return &Relay{client: c}
}

// Do forwards the request and returns the upstream response unread. The
// caller owns the body.
func (r *Relay) Do(ctx context.Context, req Request) (*http.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hr, err := http.NewRequestWithContext(ctx, method, req.TargetURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		hr.Header.Set(k, v)
	}
	if body != nil && hr.Header.Get("Content-Type") == "" {
		hr.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.client.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("forward to %s: %w", req.TargetURL, err)
	}
	return resp, nil
}
