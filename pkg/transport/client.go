// Package transport sends requests to the Onyx HTTP API. It owns the
// authentication headers, the lenient JSON codec, error mapping, retries
// and client-side rate limiting.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/onyx-dev/onyx-database-go/internal/debug"
	"github.com/onyx-dev/onyx-database-go/internal/jsonx"
)

// Header names sent with every request.
const (
	HeaderKey    = "x-onyx-key"
	HeaderSecret = "x-onyx-secret"
)

// Metrics receives one observation per HTTP attempt. internal/metrics
// provides the Prometheus implementation.
type Metrics interface {
	ObserveRequest(method string, status int, elapsed time.Duration)
	ObserveRetry(method string)
}

// Options configure a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client
	Retry      RetryConfig
	// Limiter, when set, is waited on before every attempt.
	Limiter *rate.Limiter
	Metrics Metrics
	Logger  *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	key     string
	secret  string
	http    *http.Client
	retry   RetryConfig
	limiter *rate.Limiter
	metrics Metrics
	log     *slog.Logger
}

// New returns a client for opts. A nil HTTPClient means http.DefaultClient.
func New(opts Options) *Client {
	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		key:     opts.APIKey,
		secret:  opts.APISecret,
		http:    opts.HTTPClient,
		retry:   opts.Retry,
		limiter: opts.Limiter,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.log == nil {
		c.log = debug.With("component", "transport")
	}
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Do sends one request and decodes the JSON response into out. body is
// encoded with non-finite floats as null; a nil body sends no payload.
// out may be nil to discard the response.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	payload, err := encodeBody(body)
	if err != nil {
		return fmt.Errorf("encode %s %s body: %w", method, path, err)
	}
	target := c.url(path, query)

	var data []byte
	attempts := c.retry.attemptsFor(method)
	err = retry(ctx, c.retry, attempts, func(attempt int) error {
		var sendErr error
		data, sendErr = c.send(ctx, method, target, payload)
		return sendErr
	}, func(attempt int, delay time.Duration, err error) {
		c.log.Debug("retrying request", "method", method, "path", path, "attempt", attempt, "delay", delay, "error", err)
		if c.metrics != nil {
			c.metrics.ObserveRetry(method)
		}
	})
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := jsonx.Unmarshal(data, out); err != nil {
		return &decodeError{method: method, path: path, err: err}
	}
	return nil
}

// Stream opens a request whose response body is read incrementally by the
// caller, who must close it. Non-2xx responses are returned as *HTTPError.
// Streams are never retried here.
func (c *Client) Stream(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
	}
	target := c.url(path, query)
	req, err := c.newRequest(ctx, method, target, payload)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.observe(method, 0, start)
		return nil, err
	}
	c.observe(method, res.StatusCode, start)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer res.Body.Close()
		raw, _ := io.ReadAll(res.Body)
		return nil, newHTTPError(method, target, res, raw)
	}
	c.log.Debug("stream opened", "method", method, "path", path)
	return res, nil
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, method, target, payload)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.observe(method, 0, start)
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	c.observe(method, res.StatusCode, start)
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", method, target, err)
	}
	c.log.Debug("request", "method", method, "url", target, "status", res.StatusCode, "elapsed", time.Since(start))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, newHTTPError(method, target, res, data)
	}
	return data, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(HeaderKey, c.key)
	req.Header.Set(HeaderSecret, c.secret)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodDelete {
		req.Header.Set("Prefer", "return=representation")
	}
	return req, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) observe(method string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveRequest(method, status, time.Since(start))
	}
}

func (c *Client) url(path string, query url.Values) string {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	}
	return jsonx.Marshal(body)
}

type decodeError struct {
	method string
	path   string
	err    error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("decode %s %s response: %v", e.method, e.path, e.err)
}

func (e *decodeError) Unwrap() error { return e.err }
