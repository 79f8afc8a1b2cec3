package llmclient

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/Gliksbot/gliksbot/collab"
)

// RetryConfig bounds the backoff loop around a single provider call.
type RetryConfig struct {
	MaxRetries int           // attempts beyond the first; 0 disables retry
	BaseDelay  time.Duration // backoff base, doubled per retry
	MaxJitter  time.Duration // uniform random delay added on top of backoff
}

// DefaultRetryConfig matches the collaboration protocol's call policy:
// up to 3 retries, 500ms*2^k backoff, jitter in [0, 250ms).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxJitter:  250 * time.Millisecond,
	}
}

// isRetryable reports whether err belongs to a transient taxonomy class.
// Cancellation is never retried regardless of class.
func isRetryable(err error) bool {
	if errors.Is(err, collab.ErrCanceled) {
		return false
	}
	return errors.Is(err, collab.ErrTransport) ||
		errors.Is(err, collab.ErrProvider5xx) ||
		errors.Is(err, collab.ErrTimeout)
}

// withRetry runs call, retrying transient failures up to cfg.MaxRetries
// times with exponential backoff plus jitter. Cancellation aborts
// immediately rather than waiting out a pending backoff.
func withRetry(ctx context.Context, cfg RetryConfig, call func(attempt int) (collab.CallResult, error)) (collab.CallResult, int, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return collab.CallResult{}, attempt, collab.CallError(collab.ErrCanceled, "", "context canceled before call", err)
		}

		result, err := call(attempt)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err
		if attempt == cfg.MaxRetries || !isRetryable(err) {
			return collab.CallResult{}, attempt, err
		}

		delay := backoffDelay(cfg, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return collab.CallResult{}, attempt, collab.CallError(collab.ErrCanceled, "", "context canceled during backoff", ctx.Err())
		case <-timer.C:
		}
	}
	return collab.CallResult{}, cfg.MaxRetries, lastErr
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	base := cfg.BaseDelay << attempt
	if cfg.MaxJitter <= 0 {
		return base
	}
	jitter := time.Duration(rand.Int64N(int64(cfg.MaxJitter)))
	return base + jitter
}
