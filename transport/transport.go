package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/rhr-session/internal/metrics"
	"github.com/jrsteele09/rhr-session/internal/retry"
	"github.com/rs/zerolog/log"
)

// Client is an http.Client wrapper that re-attempts idempotent requests after
// network errors and gateway failures. Other requests are sent once.
type Client struct {
	httpClient *http.Client
	policy     retry.Policy
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetry sets the attempt budget and initial backoff. maxAttempts < 2
// disables retries.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.policy.MaxAttempts = maxAttempts
		c.policy.InitialBackoff = backoff
	}
}

func New(options ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy:     retry.Policy{MaxAttempts: 3, InitialBackoff: 200 * time.Millisecond},
	}
	for _, opt := range options {
		opt(c)
	}
	c.policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		metrics.TransportRetries.Inc()
		log.Debug().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("Retrying request")
	}
	return c
}

// Do sends req. Idempotent requests are retried according to the policy;
// the final response is returned unchanged.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if !idempotent(req.Method) || c.policy.MaxAttempts < 2 {
		return c.httpClient.Do(req)
	}
	if err := rewindable(req); err != nil {
		return nil, err
	}

	ctx := req.Context()
	var last *http.Response
	resp, err := retry.Do(ctx, c.policy, classify(ctx), func(attempt int) (*http.Response, error) {
		if last != nil {
			discard(last)
			last = nil
		}
		r := req.Clone(ctx)
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, retry.Permanent(err)
			}
			r.Body = body
		}
		resp, err := c.httpClient.Do(r)
		if resp != nil {
			last = resp
		}
		return resp, err
	})
	if err != nil && resp == nil && last != nil {
		discard(last)
	}
	return resp, err
}

func classify(ctx context.Context) retry.Classify[*http.Response] {
	return func(resp *http.Response, err error) retry.Action {
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || retry.IsPermanent(err) {
				return retry.Stop
			}
			return retry.Retry
		}
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return retry.Retry
		}
		return retry.Stop
	}
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// rewindable makes sure the body can be replayed on a later attempt.
func rewindable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return fmt.Errorf("transport: buffer request body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
