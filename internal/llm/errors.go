package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrModelUnavailable means the backend could not produce an answer
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrModelTimeout means the backend did not answer within its budget
	ErrModelTimeout = errors.New("model timeout")
)

// TransientError marks a failure worth retrying (rate limit, 5xx, network)
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// classifyStatus maps an HTTP error status to the error taxonomy
func classifyStatus(provider string, status int, msg string) error {
	err := fmt.Errorf("%w: %s API error (%d): %s", ErrModelUnavailable, provider, status, msg)
	if status == http.StatusTooManyRequests || status >= 500 {
		return &TransientError{Err: err}
	}
	return err
}

// classifyTransport maps a failed request to the error taxonomy
func classifyTransport(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: fmt.Errorf("%w: %s: %v", ErrModelTimeout, provider, err)}
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %w", ErrModelUnavailable, provider, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransientError{Err: fmt.Errorf("%w: %s: %v", ErrModelTimeout, provider, err)}
	}

	wrapped := fmt.Errorf("%w: %s: %v", ErrModelUnavailable, provider, err)
	if isRetryableNetworkError(err.Error()) {
		return &TransientError{Err: wrapped}
	}
	return wrapped
}

// isRetryableNetworkError checks error strings for transient network failures
func isRetryableNetworkError(errMsg string) bool {
	s := strings.ToLower(errMsg)
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "eof")
}
