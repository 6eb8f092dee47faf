package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/servicelab/svc-acceptor/metrics"
	"github.com/servicelab/svc-acceptor/types"
)

const defaultRequestTimeout = 30 * time.Second

// Config holds configuration for creating a new request client.
type Config struct {
	Service   types.ServiceDescriptor
	Log       log.Logger
	Headers   http.Header       // default headers merged into every request
	LogSize   int               // request log capacity, defaulted when zero
	Transport http.RoundTripper // overridable for tests
}

// Client performs HTTP operations against one service with per-request
// timeouts, retry/backoff and rate limiting. A client is owned exclusively by
// the worker running its service for the lifetime of that run; it must not be
// shared across services.
type Client struct {
	service    types.ServiceDescriptor
	base       *url.URL
	httpClient *http.Client
	headers    http.Header
	retry      types.RetryPolicy
	bucket     *tokenBucket
	reqLog     *requestLog
	log        log.Logger
}

// Response describes the outcome of a successful request.
type Response struct {
	Status   int
	Headers  http.Header
	Body     []byte
	Elapsed  time.Duration // elapsed time of the final attempt
	Attempts int           // total tries issued for this logical request
}

// New creates a request client for the given service descriptor.
func New(cfg Config) (*Client, error) {
	if err := cfg.Service.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid service descriptor")
	}
	base, err := url.Parse(cfg.Service.BaseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing base URL %q", cfg.Service.BaseURL)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}

	headers := make(http.Header)
	for k, vs := range cfg.Headers {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}
	if headers.Get("Accept") == "" {
		headers.Set("Accept", "application/json")
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		service: cfg.Service,
		base:    base,
		// Per-request timeouts are applied via context; the http.Client
		// itself carries no deadline.
		httpClient: &http.Client{Transport: transport},
		headers:    headers,
		retry:      cfg.Service.Retry.WithDefaults(),
		bucket:     newTokenBucket(cfg.Service.Name, cfg.Service.RateLimit),
		reqLog:     newRequestLog(cfg.LogSize),
		log:        cfg.Log.New("component", "client", "service", cfg.Service.Name),
	}, nil
}

// Service returns the descriptor this client was built from.
func (c *Client) Service() types.ServiceDescriptor {
	return c.service
}

// RequestLog returns a copy of the recorded attempts, oldest first.
func (c *Client) RequestLog() []RequestLogEntry {
	return c.reqLog.snapshot()
}

// AttemptCount returns the total number of attempts recorded over the
// client's lifetime, counting entries evicted from the bounded log.
func (c *Client) AttemptCount() int {
	return c.reqLog.count()
}

type requestOptions struct {
	headers http.Header
	query   url.Values
	body    []byte
	timeout time.Duration
}

// RequestOption customizes a single request.
type RequestOption func(*requestOptions) error

// WithHeader adds a header for this request, overriding any default of the
// same name.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) error {
		o.headers.Set(key, value)
		return nil
	}
}

// WithQuery adds a query parameter for this request.
func WithQuery(key, value string) RequestOption {
	return func(o *requestOptions) error {
		o.query.Add(key, value)
		return nil
	}
}

// WithTimeout overrides the per-request timeout for this request.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) error {
		o.timeout = d
		return nil
	}
}

// WithBody sets a raw request body and content type.
func WithBody(body []byte, contentType string) RequestOption {
	return func(o *requestOptions) error {
		o.body = body
		o.headers.Set("Content-Type", contentType)
		return nil
	}
}

// WithJSONBody marshals v as the JSON request body.
func WithJSONBody(v any) RequestOption {
	return func(o *requestOptions) error {
		data, err := json.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "marshaling request body")
		}
		o.body = data
		o.headers.Set("Content-Type", "application/json")
		return nil
	}
}

func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, opts...)
}

func (c *Client) Post(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, opts...)
}

func (c *Client) Put(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, opts...)
}

func (c *Client) Patch(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPatch, path, opts...)
}

// do runs one logical request through the retry loop. Responses with a
// non-retryable status are returned as-is so assertion helpers can inspect
// them; retryable statuses and network-level errors are retried up to
// MaxAttempts total tries, after which a RetryExhaustedError wrapping the
// last observed error is returned.
func (c *Client) do(ctx context.Context, method, path string, opts ...RequestOption) (*Response, error) {
	options := requestOptions{
		headers: make(http.Header),
		query:   make(url.Values),
		timeout: c.service.Timeout,
	}
	if options.timeout <= 0 {
		options.timeout = defaultRequestTimeout
	}
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, err
		}
	}

	target, err := c.resolve(path, options.query)
	if err != nil {
		return nil, err
	}

	maxAttempts := c.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.retryDelay(attempt - 1)
			c.log.Debug("Retrying request",
				"method", method,
				"path", path,
				"attempt", attempt,
				"delay", delay,
				"cause", lastErr)
			metrics.RecordRetry(c.service.Name)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.attempt(ctx, method, target, &options, attempt)
		if err != nil {
			if !isRetryableTransportError(err) || ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}
		if !c.retry.Retryable(resp.Status) {
			resp.Attempts = attempt
			return resp, nil
		}
		lastErr = &retryableStatusError{Status: resp.Status}
	}

	c.log.Warn("Request failed after exhausting retries",
		"method", method,
		"path", path,
		"attempts", maxAttempts,
		"cause", lastErr)
	return nil, &RetryExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

// attempt issues a single HTTP attempt: take a rate-limit token, apply the
// per-request timeout, send, and record the outcome in the request log.
func (c *Client) attempt(ctx context.Context, method string, target *url.URL, options *requestOptions, attempt int) (*Response, error) {
	if c.bucket != nil {
		waitStart := time.Now()
		if err := c.bucket.take(ctx); err != nil {
			// An attempt aborted before send still counts as an attempt.
			c.reqLog.append(RequestLogEntry{
				Method:   method,
				Path:     target.Path,
				Err:      err.Error(),
				Duration: time.Since(waitStart),
				Attempt:  attempt,
				Time:     waitStart,
			})
			return nil, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, options.timeout)
	defer cancel()

	var body io.Reader
	if options.body != nil {
		body = bytes.NewReader(options.body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, target.String(), body)
	if err != nil {
		return nil, errors.Wrapf(err, "building request %s %s", method, target)
	}
	for k, vs := range c.headers {
		req.Header[k] = vs
	}
	for k, vs := range options.headers {
		req.Header[k] = vs
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		typed := c.classifyTransportError(ctx, reqCtx, method, target, options.timeout, err)
		c.reqLog.append(RequestLogEntry{
			Method:   method,
			Path:     target.Path,
			Err:      typed.Error(),
			Duration: elapsed,
			Attempt:  attempt,
			Time:     start,
		})
		metrics.RecordRequest(c.service.Name, method, 0)
		return nil, typed
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &ConnectionError{Method: method, URL: target.String(), Err: err}
	}

	c.reqLog.append(RequestLogEntry{
		Method:   method,
		Path:     target.Path,
		Status:   httpResp.StatusCode,
		Duration: elapsed,
		Attempt:  attempt,
		Time:     start,
	})
	metrics.RecordRequest(c.service.Name, method, httpResp.StatusCode)
	c.log.Debug("Request completed",
		"method", method,
		"path", target.Path,
		"status", httpResp.StatusCode,
		"elapsed", elapsed,
		"attempt", attempt)

	return &Response{
		Status:  httpResp.StatusCode,
		Headers: httpResp.Header,
		Body:    data,
		Elapsed: elapsed,
	}, nil
}

func (c *Client) classifyTransportError(ctx, reqCtx context.Context, method string, target *url.URL, timeout time.Duration, err error) error {
	if IsRateLimitError(err) {
		return err
	}
	// The parent being cancelled takes precedence over the per-request
	// deadline: a run-wide cancellation must not be mistaken for a timeout.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if reqCtx.Err() == context.DeadlineExceeded {
		return &TimeoutError{Method: method, URL: target.String(), Timeout: timeout, Err: err}
	}
	return &ConnectionError{Method: method, URL: target.String(), Err: err}
}

// isRetryableTransportError reports whether a failed attempt may be retried.
// Connection errors and per-request timeouts are retryable; rate-limit
// exhaustion and context cancellation are not.
func isRetryableTransportError(err error) bool {
	return IsConnectionError(err) || IsTimeoutError(err)
}

// retryDelay computes the backoff before retry k (1-based):
// min(maxDelay, baseDelay*multiplier^(k-1)) plus uniform jitter.
func (c *Client) retryDelay(k int) time.Duration {
	delay := time.Duration(float64(c.retry.BaseDelay) * math.Pow(c.retry.Multiplier, float64(k-1)))
	if delay > c.retry.MaxDelay || delay <= 0 {
		delay = c.retry.MaxDelay
	}
	if c.retry.JitterMax > 0 {
		delay += time.Duration(rand.Int63n(int64(c.retry.JitterMax)))
	}
	return delay
}

func (c *Client) resolve(path string, query url.Values) (*url.URL, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing request path %q", path)
	}
	target := c.base.ResolveReference(rel)
	if len(query) > 0 {
		q := target.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}
	return target, nil
}
