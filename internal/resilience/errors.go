// Package resilience holds the retry, transient-error and rate-limit
// primitives shared by the LLM provider clients.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrRateLimited is returned when a provider call is refused, either by the
// local limiter or by the provider itself (HTTP 429). Callers treat it as a
// signal to stop escalating, never as something to retry.
var ErrRateLimited = errors.New("rate limit exceeded")

// IsRateLimited reports whether err (or its chain) is ErrRateLimited.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// TransientError wraps an error that is safe to retry (5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
}

// IsTransient returns true if err is worth retrying: an explicit
// TransientError, a network timeout, a reset/refused connection, or a
// message matching a known transient pattern. Rate-limit errors are never
// transient.
func IsTransient(err error) bool {
	if err == nil || IsRateLimited(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// ClassifyHTTPStatus maps a provider HTTP status to the error taxonomy:
// 429 becomes ErrRateLimited, 408/5xx become transient, anything else is
// returned unchanged.
func ClassifyHTTPStatus(err error, statusCode int) error {
	switch statusCode {
	case 429:
		return errors.Join(ErrRateLimited, err)
	case 408, 500, 502, 503, 504, 529:
		return NewTransientError(err, statusCode)
	default:
		return err
	}
}
