package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 10 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 10 << 20

// Client is a small JSON HTTP client for effect handlers.
// Every call takes the handler's context, so cancelling the effect aborts the
// request in flight.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	headers    http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL resolves relative request paths against base.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// New creates a client with JSON Accept and Content-Type headers.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		headers:    make(http.Header),
	}
	c.headers.Set("Accept", "application/json")
	c.headers.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestOption adjusts one request.
type RequestOption func(*requestConfig)

type requestConfig struct {
	timeout time.Duration
	headers http.Header
}

// Timeout overrides the client timeout for one request.
func Timeout(d time.Duration) RequestOption {
	return func(rc *requestConfig) {
		rc.timeout = d
	}
}

// Header sets a header on one request.
func Header(key, value string) RequestOption {
	return func(rc *requestConfig) {
		rc.headers.Set(key, value)
	}
}

// Bearer sets an Authorization bearer token when token is not empty.
func Bearer(token string) RequestOption {
	return func(rc *requestConfig) {
		if token != "" {
			rc.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// Get issues a GET request and decodes the response into out.
func (c *Client) Get(ctx context.Context, url string, out any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodGet, url, nil, out, opts...)
}

// Post issues a POST request with body encoded as JSON.
func (c *Client) Post(ctx context.Context, url string, body, out any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodPost, url, body, out, opts...)
}

// Put issues a PUT request with body encoded as JSON.
func (c *Client) Put(ctx context.Context, url string, body, out any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodPut, url, body, out, opts...)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, out any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodDelete, url, nil, out, opts...)
}

// Request performs an HTTP request.
//
// A non-2xx response, a network failure or a timeout is returned as an
// *APIError. Cancellation of ctx is returned as ctx.Err() so callers can tell
// it apart from a failure. out may be nil, a *string (raw body), a *any (JSON,
// or the raw text when the body is not JSON) or any JSON-decodable pointer.
func (c *Client) Request(ctx context.Context, method, url string, body, out any, opts ...RequestOption) error {
	rc := requestConfig{timeout: c.timeout, headers: make(http.Header)}
	for _, opt := range opts {
		opt(&rc)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &APIError{Code: CodeUnknown, Message: fmt.Sprintf("marshal request: %v", err), Err: err}
		}
		reader = bytes.NewReader(data)
	}

	reqCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.resolve(url), reader)
	if err != nil {
		return &APIError{Code: CodeUnknown, Message: fmt.Sprintf("create request: %v", err), Err: err}
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	for k, v := range rc.headers {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return classify(ctx, reqCtx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fromResponse(resp.StatusCode, respBody)
	}
	return decode(respBody, out)
}

func (c *Client) resolve(url string) string {
	if c.baseURL == "" || strings.Contains(url, "://") {
		return url
	}
	return c.baseURL + "/" + strings.TrimLeft(url, "/")
}

func classify(parent, reqCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return &APIError{Code: CodeTimeout, Message: "request timed out", Err: err}
	}
	return &APIError{Code: CodeNetwork, Message: "Network Error", Err: err}
}

func decode(body []byte, out any) error {
	switch dst := out.(type) {
	case nil:
		return nil
	case *string:
		*dst = string(body)
		return nil
	case *any:
		if len(bytes.TrimSpace(body)) == 0 {
			*dst = nil
			return nil
		}
		if err := json.Unmarshal(body, dst); err != nil {
			*dst = string(body)
		}
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Code: CodeUnknown, Message: fmt.Sprintf("decode response: %v", err), Body: string(body), Err: err}
	}
	return nil
}
