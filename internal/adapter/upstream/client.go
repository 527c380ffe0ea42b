// Package upstream is the shared HTTP transport for the feed clients: a
// bounded retry policy with exponential backoff and typed status errors.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/observability"
)

// maxErrorBody caps how much of an error response is kept for the message.
const maxErrorBody = 512

// Policy bounds retries of a single request.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy starts at 200ms and doubles up to 5s.
func DefaultPolicy(maxAttempts int) Policy {
	return Policy{MaxAttempts: maxAttempts, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 5 * time.Second}
}

// StatusError is a non-success HTTP response from an upstream feed.
type StatusError struct {
	Upstream   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error: status %d: %s", e.Upstream, e.StatusCode, e.Body)
}

// Unwrap maps the status onto the domain error taxonomy.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case retryableStatus(e.StatusCode):
		return domain.ErrTransientFetch
	default:
		return nil
	}
}

// Client issues GET requests with retries and records upstream metrics.
type Client struct {
	name       string
	httpClient *http.Client
	policy     Policy
	header     http.Header
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a client for one named upstream. header is sent with
// every request (User-Agent, Accept).
func NewClient(name string, timeout time.Duration, policy Policy, header http.Header, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Client{
		name:       name,
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy,
		header:     header,
		metrics:    metrics,
		logger:     logger,
	}
}

// Get performs a GET, retrying network errors, 429 and 5xx responses. Any
// other response is returned to the caller, who owns the body.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	backoff := c.policy.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		resp, err := c.do(ctx, url, header)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("%s request %s: %w: %w", c.name, url, domain.ErrTransientFetch, err)
		case retryableStatus(resp.StatusCode):
			lastErr = ResponseError(c.name, resp)
		default:
			return resp, nil
		}

		if attempt == c.policy.MaxAttempts {
			break
		}
		c.metrics.UpstreamRequests.WithLabelValues(c.name, "retry").Inc()
		c.logger.Warn("upstream request failed, retrying", "upstream", c.name, "attempt", attempt, "error", lastErr)
		if !sleepWithContext(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = nextBackoff(backoff, c.policy.MaxBackoff)
	}

	c.metrics.UpstreamRequests.WithLabelValues(c.name, "error").Inc()
	return nil, lastErr
}

// GetJSON performs a GET and decodes a 200 response into v.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, v any) error {
	resp, err := c.Get(ctx, url, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ResponseError(c.name, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", c.name, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.UpstreamDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	if err == nil && resp.StatusCode < 400 {
		c.metrics.UpstreamRequests.WithLabelValues(c.name, "success").Inc()
	}
	return resp, err
}

// ResponseError builds a StatusError from resp, consuming and closing the body.
func ResponseError(name string, resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Upstream: name, StatusCode: resp.StatusCode, Body: string(body)}
}

// IsNotFound reports whether err is a 404 from an upstream.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
