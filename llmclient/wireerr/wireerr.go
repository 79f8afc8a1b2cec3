// Package wireerr maps raw transport and HTTP outcomes onto the
// collaboration error taxonomy, shared by every provider wire adapter.
package wireerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Gliksbot/gliksbot/collab"
)

// Transport classifies a non-HTTP error returned by an http.Client.Do call.
func Transport(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %v", collab.ErrCanceled, err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", collab.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", collab.ErrTransport, err)
}

// Status classifies an HTTP response status code, embedding body for context.
func Status(status int, body []byte) error {
	switch {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status=%d body=%s", collab.ErrProvider5xx, status, truncate(body))
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		return fmt.Errorf("%w: status=%d body=%s", collab.ErrProvider4xx, status, truncate(body))
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status=%d body=%s", collab.ErrProvider5xx, status, truncate(body))
	default:
		return fmt.Errorf("%w: unexpected status=%d body=%s", collab.ErrInternal, status, truncate(body))
	}
}

// Decode wraps a response-body parsing failure.
func Decode(reason string, cause error) error {
	return fmt.Errorf("%w: %s: %v", collab.ErrDecode, reason, cause)
}

func truncate(body []byte) string {
	const max = 512
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "...(truncated)"
}
