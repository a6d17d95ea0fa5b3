package tvapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork covers transport failures and unexpected HTTP statuses.
	ErrNetwork = errors.New("network error")
	// ErrDecode covers malformed response bodies.
	ErrDecode = errors.New("decode error")
	// ErrNotFound reports a channel or group the backend does not know.
	ErrNotFound = errors.New("not found")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s failed with status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return ErrNetwork
}

// Kind names the error class for display: "network", "decode", "not found",
// "cancelled" or "error".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return "network"
	default:
		return "error"
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrDecode) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Status >= 500 || status.Status == http.StatusTooManyRequests
	}
	return errors.Is(err, ErrNetwork)
}

func networkErr(op string, err error) error {
	return fmt.Errorf("%s request failed: %w: %w", op, ErrNetwork, err)
}

func decodeErr(op string, err error) error {
	return fmt.Errorf("decode %s response: %w: %w", op, ErrDecode, err)
}
