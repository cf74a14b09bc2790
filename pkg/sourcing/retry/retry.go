package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Attempt is the outcome of one call inside Do: its error (nil on
// success), whether that error is retryable, and an optional
// Retry-After override.
type Attempt struct {
	Err          error
	Retryable    bool
	RetryAfter   time.Duration
	HasRetryAfter bool
}

// Do executes fn, retrying according to policy when fn reports a
// retryable failure. fn returns its own Attempt so callers can classify
// HTTP responses precisely (status code, network error) without retry
// needing to know about HTTP.
func Do(ctx context.Context, log *slog.Logger, policy Policy, fn func(ctx context.Context) Attempt) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result := fn(ctx)
		if result.Err == nil {
			return nil
		}
		if !result.Retryable {
			return result.Err
		}
		lastErr = result.Err

		if attempt >= policy.MaxRetries {
			if log != nil {
				log.Error("retries exhausted", "attempts", policy.MaxRetries+1, "error", lastErr)
			}
			return fmt.Errorf("retries exhausted after %d attempts: %w", policy.MaxRetries+1, lastErr)
		}

		wait := policy.WaitFor(attempt)
		if result.HasRetryAfter {
			wait = result.RetryAfter
		}
		if log != nil {
			log.Warn("retrying", "attempt", attempt+1, "of", policy.MaxRetries+1, "wait", wait, "error", result.Err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("retry: unexpected state with no error recorded")
	}
	return lastErr
}
