package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/tracing"
)

var (
	ErrUnavailable = errors.New("external service unavailable: circuit breaker open")
	ErrTooLarge    = errors.New("response body too large")
)

// StatusError reports a page fetch answered with a non-2xx status
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s (url: %s)", e.Status, http.StatusText(e.Status), e.URL)
}

// NewClient creates production-ready HTTP client with circuit breaker
func NewClient(opts ...Option) *Client {
	o := options{config: DefaultConfig(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := o.config
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}

	// Create underlying retryable client
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.Logger = leveledLogger{s: o.logger.Sugar()}

	// Create resty client with retry support
	restyClient := resty.New()
	restyClient.
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryWaitMin).
		SetRetryMaxWaitTime(cfg.RetryWaitMax).
		SetHeader("User-Agent", cfg.UserAgent)

	// Share the pooled transport
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	logger := o.logger
	hosts := resilience.NewGroup("fetch", resilience.Settings{
		Probes:   5,
		Window:   60 * time.Second,
		Cooldown: 30 * time.Second,
		// Archived pages reference many dead hosts; trip only on sustained failure
		Trip: resilience.AnyOf(
			resilience.ConsecutiveFailures(10),
			resilience.FailureRatio(20, 0.7),
		),
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	c := &Client{
		Resty:     restyClient,
		Retry:     retryClient,
		Limiter:   rate.NewLimiter(rate.Inf, 0),
		Breakers:  hosts,
		userAgent: cfg.UserAgent,
		logger:    o.logger,
	}
	c.SetRateLimit(cfg.RateLimit)
	return c
}

// SetHeader adds default header
func (c *Client) SetHeader(key, value string) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetHeader(key, value)
}

// GetHeaders returns copy of all headers
func (c *Client) GetHeaders() map[string]string {
	c.Mu.RLock()
	defer c.Mu.RUnlock()

	headers := make(map[string]string)
	for k, v := range c.Resty.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return headers
}

// SetTimeout configures request timeout
func (c *Client) SetTimeout(duration time.Duration) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetTimeout(duration)
	c.Retry.HTTPClient.Timeout = duration
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, minWait, maxWait time.Duration) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetRetryCount(maxRetries).
		SetRetryWaitTime(minWait).
		SetRetryMaxWaitTime(maxWait)
	c.Retry.RetryMax = maxRetries
	c.Retry.RetryWaitMin = minWait
	c.Retry.RetryWaitMax = maxWait
}

// SetRateLimit configures rate limiting (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if rps <= 0 {
		c.Limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		c.Limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// Breaker returns the breaker guarding the host of rawURL
func (c *Client) Breaker(rawURL string) *resilience.Breaker {
	return c.Breakers.Get(hostKey(rawURL))
}

// wait checks the host breaker and the rate limiter
func (c *Client) wait(ctx context.Context, b *resilience.Breaker) error {
	if b.State() == resilience.StateOpen {
		return ErrUnavailable
	}

	c.Mu.RLock()
	limiter := c.Limiter
	c.Mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}
	return nil
}

// Request creates a resty request once the breaker for rawURL's host and
// the rate limiter let it through
func (c *Client) Request(ctx context.Context, rawURL string) (*resty.Request, error) {
	if err := c.wait(ctx, c.Breaker(rawURL)); err != nil {
		return nil, err
	}

	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return c.Resty.R().SetContext(ctx), nil
}

// guard runs fn through b, reporting an open breaker as ErrUnavailable
func guard[T any](b *resilience.Breaker, fn func() (T, error)) (T, error) {
	v, err := resilience.Do(b, fn)
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrUnavailable, b.Name())
	}
	return v, err
}

// Do sends a request on behalf of the page. Any status is a response;
// only transport failures are errors.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	b := c.Breaker(req.URL)
	r, err := c.Request(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Header {
		r.SetHeader(k, v)
	}
	if req.Body != "" {
		r.SetBody(req.Body)
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	resp, err := guard(b, func() (*resty.Response, error) {
		return r.Execute(method, req.URL)
	})
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s %s: %w", method, req.URL, err)
	}

	out := &Response{
		Status:     resp.StatusCode(),
		StatusText: http.StatusText(resp.StatusCode()),
		URL:        req.URL,
		Header:     flattenHeader(resp.Header()),
		Body:       resp.Body(),
	}
	if raw := resp.RawResponse; raw != nil && raw.Request != nil {
		out.URL = raw.Request.URL.String()
	}
	return out, nil
}

// FetchPage loads a page document with retries on connection errors and
// 5xx answers. Non-2xx final statuses are errors.
func (c *Client) FetchPage(ctx context.Context, rawURL string) (*Response, error) {
	b := c.Breaker(rawURL)
	if err := c.wait(ctx, b); err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip")
	trace := map[string]string{}
	tracing.InjectTraceContext(ctx, trace)
	for k, v := range trace {
		req.Header.Set(k, v)
	}

	resp, err := guard(b, func() (*Response, error) {
		res, err := c.Retry.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		body, err := io.ReadAll(io.LimitReader(res.Body, MaxBodySize+1))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if len(body) > MaxBodySize {
			return nil, ErrTooLarge
		}
		return &Response{
			Status:     res.StatusCode,
			StatusText: http.StatusText(res.StatusCode),
			URL:        res.Request.URL.String(),
			Header:     flattenHeader(res.Header),
			Body:       body,
		}, nil
	})
	if errors.Is(err, ErrUnavailable) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	if resp.Status < 200 || resp.Status >= 300 {
		return resp, &StatusError{Status: resp.Status, URL: rawURL}
	}
	return resp, nil
}

// TrippedHosts returns the hosts whose breaker is open or probing
func (c *Client) TrippedHosts() []string {
	return c.Breakers.Tripped()
}

func hostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "invalid"
	}
	return strings.ToLower(u.Host)
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = strings.Join(v, ", ")
		}
	}
	return out
}
