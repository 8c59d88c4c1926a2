package analytics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrNotFound is returned when the backend has no record for the given id
var ErrNotFound = errors.New("record not found")

// StatusError is a non-2xx response from the analytics backend
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.Code, e.Body)
}

// Is lets a 404 match ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// IsCancelled reports whether err stems from the caller abandoning the
// request, as opposed to the backend failing.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// isRetryableError determines if an error is retryable: server errors, rate
// limiting, per-attempt timeouts and transport failures. Cancellation never is.
func isRetryableError(err error) bool {
	if err == nil || IsCancelled(err) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
