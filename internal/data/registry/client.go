// Package registry talks to the crates.io HTTP API.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"modernity/internal/shared/httputil"
	"modernity/internal/shared/observability"
	"modernity/internal/shared/util"
)

var (
	// ErrNotFound is returned for a 404 response.
	ErrNotFound = errors.New("not found")
	// ErrNetwork wraps transport failures and unexpected statuses.
	ErrNetwork = errors.New("network error")
)

// Client performs rate-limited, retried GET requests with a fixed set of
// headers. It is shared by the registry API client and the archive fetcher so
// both draw from the same per-host token bucket.
type Client struct {
	http     *http.Client
	limiters *util.LimiterRegistry
	headers  map[string]string
	attempts int
	delay    time.Duration
}

// ClientOptions configures NewClient. Zero values pick the defaults.
type ClientOptions struct {
	UserAgent  string
	Timeout    time.Duration
	RateLimit  float64 // requests per second and host; 0 disables limiting
	Burst      int
	Attempts   int
	RetryDelay time.Duration
}

func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	headers := map[string]string{}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}
	// file:// URLs serve mirrored registries from disk.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
	return &Client{
		http:     &http.Client{Timeout: opts.Timeout, Transport: transport},
		limiters: util.NewLimiterRegistry(opts.RateLimit, opts.Burst, 10*time.Minute),
		headers:  headers,
		attempts: opts.Attempts,
		delay:    opts.RetryDelay,
	}
}

// GetJSON fetches rawURL and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	return c.retry(ctx, func() error {
		body, err := c.Open(ctx, rawURL)
		if err != nil {
			return err
		}
		defer body.Close()
		if err := json.NewDecoder(body).Decode(v); err != nil {
			return fmt.Errorf("decode %s: %w", rawURL, err)
		}
		return nil
	})
}

// Download hands the body of rawURL to fn, retrying transient failures. fn
// may run more than once and must discard partial output itself.
func (c *Client) Download(ctx context.Context, rawURL string, fn func(io.Reader) error) error {
	return c.retry(ctx, func() error {
		body, err := c.Open(ctx, rawURL)
		if err != nil {
			return err
		}
		defer body.Close()
		return fn(body)
	})
}

func (c *Client) retry(ctx context.Context, fn func() error) error {
	return httputil.Retry(ctx, c.attempts, c.delay, fn)
}

// Open performs a single GET after waiting for the host's rate limiter.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if err := c.limiters.Get(u.Host).Wait(ctx, 1); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		observability.RegistryRequestsTotal.WithLabelValues("transport_error").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &httputil.RetryableError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}

	if err := checkStatus(resp.StatusCode); err != nil {
		observability.RegistryRequestsTotal.WithLabelValues(fmt.Sprintf("%dxx", resp.StatusCode/100)).Inc()
		resp.Body.Close()
		return nil, err
	}
	observability.RegistryRequestsTotal.WithLabelValues("ok").Inc()
	return resp.Body, nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests || code >= 500:
		return &httputil.RetryableError{Err: fmt.Errorf("%w: status %d", ErrNetwork, code)}
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}
