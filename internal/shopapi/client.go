// Package shopapi is a typed HTTP client for the merch shop API.
package shopapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/merchload/pkg/jsonpath"
)

// Endpoint paths.
const (
	PathAuth     = "/api/auth"
	PathInfo     = "/api/info"
	PathSendCoin = "/api/sendCoin"
	PathBuy      = "/api/buy/"
)

// NetworkError wraps a transport-level failure: the request never produced
// an HTTP status.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a timeout.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// TransportConfig contains connection pool settings.
type TransportConfig struct {
	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host (0 = unlimited)
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultTransportConfig returns defaults sized for a single target host
// under high request rates.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 1000,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewTransport builds an HTTP transport from cfg.
func NewTransport(cfg TransportConfig) *http.Transport {
	t := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
		ForceAttemptHTTP2:   true,
	}
	if cfg.InsecureSkipVerify {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test targets
	}
	return t
}

// DefaultTimeout bounds a call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Client calls the shop API. It is safe for concurrent use; VUs share one
// client so that they share its connection pool.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	timeout    time.Duration
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// NewClient creates a client with the given options.
func NewClient(options ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{Transport: NewTransport(DefaultTransportConfig())},
		baseURL:    "http://localhost:8080",
		headers:    make(map[string]string),
		timeout:    DefaultTimeout,
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// WithBaseURL sets the shop's base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout bounds each call.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTransport replaces the underlying transport.
func WithTransport(cfg TransportConfig) ClientOption {
	return func(c *Client) {
		c.httpClient = &http.Client{Transport: NewTransport(cfg)}
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Response is a fully read HTTP response with its timings.
type Response struct {
	StatusCode int
	Body       []byte

	// Duration is the wall time from sending the request until the body
	// was fully read, or until the call failed.
	Duration time.Duration

	// Waiting is the time from the request being written until the first
	// response byte arrived.
	Waiting time.Duration
}

// OK reports a 200 status.
func (r *Response) OK() bool { return r != nil && r.StatusCode == http.StatusOK }

// Failed reports whether the call failed at the transport level or with a
// 4xx/5xx status.
func (r *Response) Failed() bool { return r == nil || r.StatusCode == 0 || r.StatusCode >= 400 }

// Has reports whether path exists in the JSON body.
func (r *Response) Has(path string) bool {
	return r != nil && jsonpath.Exists(r.Body, path)
}

// Lookup resolves path in the JSON body.
func (r *Response) Lookup(path string) (gjson.Result, bool) {
	if r == nil {
		return gjson.Result{}, false
	}
	return jsonpath.Lookup(r.Body, path)
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// ErrorMessage returns the "error" field of an error body, if any.
func (r *Response) ErrorMessage() string {
	s, _ := jsonpath.String(r.Body, "$.error")
	return s
}

// Auth calls POST /api/auth.
func (c *Client) Auth(ctx context.Context, username, password string) (*Response, error) {
	return c.do(ctx, http.MethodPost, PathAuth, "", AuthRequest{Username: username, Password: password})
}

// Info calls GET /api/info.
func (c *Client) Info(ctx context.Context, token string) (*Response, error) {
	return c.do(ctx, http.MethodGet, PathInfo, token, nil)
}

// SendCoin calls POST /api/sendCoin.
func (c *Client) SendCoin(ctx context.Context, token, toUser string, amount int64) (*Response, error) {
	return c.do(ctx, http.MethodPost, PathSendCoin, token, SendCoinRequest{ToUser: toUser, Amount: amount})
}

// Buy calls GET /api/buy/{item}.
func (c *Client) Buy(ctx context.Context, token, item string) (*Response, error) {
	return c.do(ctx, http.MethodGet, PathBuy+url.PathEscape(item), token, nil)
}

// Ping issues GET / and reports whether the host answered at all.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/", "", nil)
	return err
}

// do executes one call. The returned Response is never nil so that callers
// can record its duration even when err is a *NetworkError.
func (c *Client) do(ctx context.Context, method, path, token string, body any) (*Response, error) {
	resp := &Response{}
	target := c.baseURL + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return resp, fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// Trace hooks may run on transport goroutines.
	var wroteRequest, firstByte atomic.Int64
	trace := &httptrace.ClientTrace{
		WroteRequest:         func(httptrace.WroteRequestInfo) { wroteRequest.Store(time.Now().UnixNano()) },
		GotFirstResponseByte: func() { firstByte.Store(time.Now().UnixNano()) },
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), method, target, reader)
	if err != nil {
		return resp, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		resp.Duration = time.Since(start)
		return resp, &NetworkError{Op: method, URL: target, Err: err}
	}
	defer httpResp.Body.Close()

	resp.StatusCode = httpResp.StatusCode
	resp.Body, err = io.ReadAll(httpResp.Body)
	resp.Duration = time.Since(start)
	if fb, wr := firstByte.Load(), wroteRequest.Load(); fb > 0 && wr > 0 && fb >= wr {
		resp.Waiting = time.Duration(fb - wr)
	}
	if err != nil {
		return resp, &NetworkError{Op: method, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	return resp, nil
}
