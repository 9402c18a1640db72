// Package client is a JSON HTTP client with retry and backoff, request,
// response and error interceptors, and a typed error taxonomy. It
// understands the {success, data, error, message} envelope the sieve API
// responds with.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Response is a successful (2xx) response.
type Response struct {
	// Data is the raw response body.
	Data       json.RawMessage
	Status     int
	StatusText string
	Headers    http.Header
}

// JSON decodes the whole body into v.
func (r *Response) JSON(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("sieve: empty response body")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("sieve: decode response: %w", err)
	}
	return nil
}

// Unwrap decodes the data field of an enveloped body into v. Bodies that are
// not envelopes are decoded whole.
func (r *Response) Unwrap(v any) error {
	var env envelope
	if err := json.Unmarshal(r.Data, &env); err == nil && env.Success != nil {
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return nil
		}
		if err := json.Unmarshal(env.Data, v); err != nil {
			return fmt.Errorf("sieve: decode response data: %w", err)
		}
		return nil
	}
	return r.JSON(v)
}

type (
	// RequestInterceptor may modify or replace an outgoing request.
	RequestInterceptor func(req *http.Request) (*http.Request, error)
	// ResponseInterceptor may modify or replace a successful response.
	ResponseInterceptor func(resp *Response) (*Response, error)
	// ErrorInterceptor may transform the final error of a failed request.
	ErrorInterceptor func(err error) error
)

// Client performs requests against a base URL. It is safe for concurrent
// use.
type Client struct {
	cfg    Config
	jar    http.CookieJar
	logger *zap.Logger

	mu                   sync.RWMutex
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
	errorInterceptors    []ErrorInterceptor
}

// NewClient returns a client with cfg as its defaults. A nil logger discards
// output.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, jar: newJar(), logger: logger}
}

// UseRequest appends interceptors run on every attempt before it is sent.
func (c *Client) UseRequest(interceptors ...RequestInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestInterceptors = append(c.requestInterceptors, interceptors...)
}

// UseResponse appends interceptors run on every successful response.
func (c *Client) UseResponse(interceptors ...ResponseInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseInterceptors = append(c.responseInterceptors, interceptors...)
}

// UseError appends interceptors run on the final error of a failed request.
func (c *Client) UseError(interceptors ...ErrorInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorInterceptors = append(c.errorInterceptors, interceptors...)
}

// Get sends a GET request. cfg may be nil.
func (c *Client) Get(ctx context.Context, url string, cfg *Config) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, cfg)
}

// Delete sends a DELETE request. cfg may be nil.
func (c *Client) Delete(ctx context.Context, url string, cfg *Config) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, url, nil, cfg)
}

// Post sends body as a POST request. cfg may be nil.
func (c *Client) Post(ctx context.Context, url string, body any, cfg *Config) (*Response, error) {
	return c.Do(ctx, http.MethodPost, url, body, cfg)
}

// Put sends body as a PUT request. cfg may be nil.
func (c *Client) Put(ctx context.Context, url string, body any, cfg *Config) (*Response, error) {
	return c.Do(ctx, http.MethodPut, url, body, cfg)
}

// Patch sends body as a PATCH request. cfg may be nil.
func (c *Client) Patch(ctx context.Context, url string, body any, cfg *Config) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, url, body, cfg)
}

// Do sends a request. A []byte, json.RawMessage or string body is sent as
// is; any other non-nil body is encoded as JSON. Failed attempts are retried
// per the retry policy; the final failure is an *APIError passed through the
// error interceptors.
func (c *Client) Do(ctx context.Context, method, url string, body any, cfg *Config) (*Response, error) {
	merged := c.cfg.merge(cfg)
	target := merged.resolveURL(url)

	payload, err := encodeBody(body)
	if err != nil {
		return nil, c.handleError(err)
	}

	c.mu.RLock()
	reqInterceptors := append([]RequestInterceptor(nil), c.requestInterceptors...)
	respInterceptors := append([]ResponseInterceptor(nil), c.responseInterceptors...)
	c.mu.RUnlock()

	hc := httpClientFor(merged, c.jar)
	policy := merged.retryPolicy()

	var resp *Response
	attempt := 0
	err = retry(ctx, policy, func() error {
		attempt++
		r, err := c.attempt(ctx, hc, merged, method, target, payload, reqInterceptors)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, func(err error, wait time.Duration) {
		c.logger.Warn("Retrying request",
			zap.String("method", method),
			zap.String("url", target),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			err = classify(err)
		}
		return nil, c.handleError(err)
	}

	for _, interceptor := range respInterceptors {
		if resp, err = interceptor(resp); err != nil {
			return nil, c.handleError(err)
		}
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, hc *http.Client, cfg Config, method, target string, payload []byte, interceptors []RequestInterceptor) (*Response, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("sieve: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	for _, interceptor := range interceptors {
		if req, err = interceptor(req); err != nil {
			return nil, err
		}
		if req == nil {
			return nil, fmt.Errorf("sieve: request interceptor returned no request")
		}
	}

	httpResp, err := hc.Do(req)
	if err != nil {
		return nil, newNetworkError(err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, newNetworkError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, newStatusError(httpResp.StatusCode, data)
	}

	return &Response{
		Data:       data,
		Status:     httpResp.StatusCode,
		StatusText: http.StatusText(httpResp.StatusCode),
		Headers:    httpResp.Header,
	}, nil
}

func (c *Client) handleError(err error) error {
	c.mu.RLock()
	interceptors := append([]ErrorInterceptor(nil), c.errorInterceptors...)
	c.mu.RUnlock()

	for _, interceptor := range interceptors {
		err = interceptor(err)
	}
	return err
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("sieve: marshal request: %w", err)
		}
		return data, nil
	}
}
