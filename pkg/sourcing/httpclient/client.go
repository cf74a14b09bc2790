// Package httpclient provides the collector runtime's rate-limited,
// retrying HTTP GET helper.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/ratelimit"
	"github.com/sourcingengine/core/pkg/sourcing/retry"
)

// Client wraps http.Client with per-API rate limiting and the collector
// runtime's retry policy.
type Client struct {
	HTTP    *http.Client
	Limiter ratelimit.Limiter
	Policy  retry.Policy
	Log     *slog.Logger
}

// New builds a Client for apiName, pulling its limiter from the global
// rate-limit pool and using the collector runtime's default retry
// policy.
func New(apiName string, log *slog.Logger) *Client {
	return &Client{
		HTTP:    &http.Client{Timeout: 20 * time.Second},
		Limiter: ratelimit.Get(apiName),
		Policy:  retry.DefaultPolicy(),
		Log:     log,
	}
}

// GetJSON performs a rate-limited, retrying GET request and decodes the
// JSON response body into out.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	var body []byte
	err := retry.Do(ctx, c.Log, c.Policy, func(ctx context.Context) retry.Attempt {
		if err := c.Limiter.Acquire(ctx); err != nil {
			return retry.Attempt{Err: err, Retryable: false}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Attempt{Err: err, Retryable: false}
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return retry.Attempt{Err: err, Retryable: true}
		}
		defer resp.Body.Close()

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return retry.Attempt{Err: readErr, Retryable: true}
		}

		if resp.StatusCode >= 400 {
			httpErr := fmt.Errorf("httpclient: %s returned status %d", url, resp.StatusCode)
			retryable := retry.IsRetryable(resp.StatusCode, false)
			if wait, ok := retry.RetryAfter(resp.Header.Get("Retry-After")); ok {
				return retry.Attempt{Err: httpErr, Retryable: retryable, RetryAfter: wait, HasRetryAfter: true}
			}
			return retry.Attempt{Err: httpErr, Retryable: retryable}
		}

		body = data
		return retry.Attempt{}
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if unmarshalErr := json.Unmarshal(body, out); unmarshalErr != nil {
		return fmt.Errorf("httpclient: decode %s: %w", url, unmarshalErr)
	}
	return nil
}
