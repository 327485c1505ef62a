package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrorKind classifies generation failures.
type ErrorKind string

const (
	KindNotConfigured ErrorKind = "not_configured"
	KindAuth          ErrorKind = "authentication_error"
	KindQuota         ErrorKind = "rate_limit_error"
	KindNotFound      ErrorKind = "not_found_error"
	KindNetwork       ErrorKind = "network_error"
	KindUnavailable   ErrorKind = "unavailable_error"
	KindInvalid       ErrorKind = "invalid_request_error"
	KindEmpty         ErrorKind = "empty_response"
)

// Error is a classified failure from a generation backend.
type Error struct {
	Kind       ErrorKind
	Message    string
	Model      string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s: %s (model %s)", e.Kind, e.Message, e.Model)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the same model is worth another attempt.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindQuota, KindNetwork, KindUnavailable:
		return true
	}
	return false
}

// ErrNotConfigured is returned when no API key was supplied.
var ErrNotConfigured = &Error{Kind: KindNotConfigured, Message: "no generation backend configured"}

// KindOf returns the kind of err, KindNetwork for unclassified transport
// failures and "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnavailable
}

// kindForStatus maps an HTTP status from a backend onto a kind.
func kindForStatus(code int) ErrorKind {
	switch {
	case code == 401 || code == 403:
		return KindAuth
	case code == 404:
		return KindNotFound
	case code == 429:
		return KindQuota
	case code == 400:
		return KindInvalid
	case code >= 500:
		return KindUnavailable
	}
	return KindUnavailable
}
