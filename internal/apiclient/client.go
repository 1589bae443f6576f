// Package apiclient is the single HTTP entry point the suite uses to talk to
// the nursery API. Do never turns an HTTP status into an error; callers assert
// on Response.Status themselves.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuitang/nursery-suite/internal/config"
	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/kuitang/nursery-suite/internal/logutil"
	"github.com/kuitang/nursery-suite/internal/obs"
)

const maxLoggedBody = 2048

// Request describes one API call. Path is joined onto the client's base URL.
// Body, when non-nil, is JSON encoded.
type Request struct {
	Method string
	Path   string
	Token  string
	Query  url.Values
	Body   any
}

// Client sends requests to the application under test.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	metrics *Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRequestsPerSecond paces outgoing requests. rps <= 0 disables pacing.
func WithRequestsPerSecond(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithMetrics records every exchange into m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a client from suite configuration.
func NewFromConfig(cfg *config.Config, m *Metrics) *Client {
	return New(cfg.BaseURL,
		WithTimeout(cfg.RequestTimeout),
		WithRequestsPerSecond(cfg.RequestsPerSec),
		WithMetrics(m),
	)
}

// BaseURL returns the base URL requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Metrics returns the recorder attached to the client, if any.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// Do sends the request and returns whatever the server answered. Only
// encoding and transport failures are returned as errors.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, errs.Wrap(errs.Setup, "invalid request path "+req.Path, err)
	}

	var body io.Reader
	var payload []byte
	if req.Body != nil {
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, errs.Wrap(errs.Setup, "encode request body for "+method+" "+req.Path, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errs.Wrap(errs.Setup, "build request "+method+" "+req.Path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token := strings.TrimSpace(req.Token); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if id := obs.CorrelationFromContext(ctx).ScenarioID; id != "" {
		httpReq.Header.Set("X-Request-Id", id+"-"+shortID())
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errs.Wrap(errs.Setup, "request pacing interrupted", err)
		}
	}

	logger := obs.From(ctx).With("pkg", "apiclient")
	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		logger.Warn("api_request_failed", "method", method, "path", req.Path, "error", err)
		return nil, errs.Wrap(errs.Setup, method+" "+req.Path+" failed", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.Setup, "read response body of "+method+" "+req.Path, err)
	}
	elapsed := time.Since(start)

	resp := &Response{
		Method:   method,
		Path:     req.Path,
		Status:   httpResp.StatusCode,
		Headers:  httpResp.Header.Clone(),
		Body:     respBody,
		Duration: elapsed,
	}

	c.metrics.Observe(method, req.Path, resp.Status, elapsed)

	logger.Debug(
		"api_request",
		"method", method,
		"path", req.Path,
		"query", req.Query.Encode(),
		"status", resp.Status,
		"dur_ms", float64(elapsed.Microseconds())/1000.0,
		"req_headers", logutil.FormatHeadersForLog(httpReq.Header),
		"req_body", logutil.FormatBodyForLog("application/json", payload, maxLoggedBody),
		"resp_body", logutil.FormatBodyForLog(httpResp.Header.Get("Content-Type"), respBody, maxLoggedBody),
	)
	return resp, nil
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	path = strings.TrimSpace(path)
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
