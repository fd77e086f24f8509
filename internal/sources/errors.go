package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/azure/brand-mentions-bot/internal/retry"
)

// ErrorKind is attached to every feed error at the point of origin
type ErrorKind string

const (
	KindTransient     ErrorKind = "transient"     // transport failures, timeouts, 5xx
	KindRateLimited   ErrorKind = "rate_limited"  // 429
	KindAuthorization ErrorKind = "authorization" // 401/403, rejected credentials
	KindValidation    ErrorKind = "validation"    // malformed request or response
	KindUnknown       ErrorKind = "unknown"
)

// Error is a classified feed API failure
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure may succeed on another attempt
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimited
}

// KindOf returns the kind of a feed error, or KindUnknown for anything else
func KindOf(err error) ErrorKind {
	var feedErr *Error
	if errors.As(err, &feedErr) {
		return feedErr.Kind
	}
	return KindUnknown
}

// IsAuthorization reports whether err needs human remediation of credentials
func IsAuthorization(err error) bool {
	return KindOf(err) == KindAuthorization
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindTransient
	case status >= 400:
		return KindValidation
	default:
		return KindUnknown
	}
}

func statusError(op string, status int, body []byte) *Error {
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &Error{
		Kind:       classifyStatus(status),
		Op:         op,
		StatusCode: status,
		Err:        fmt.Errorf("unexpected response: %s", msg),
	}
}

func transportError(op string, err error) *Error {
	var feedErr *Error
	if errors.As(err, &feedErr) {
		return feedErr
	}
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func validationError(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// classify maps feed errors onto retry actions
func classify(err error) retry.Action {
	var feedErr *Error
	if errors.As(err, &feedErr) {
		if feedErr.Retryable() {
			return retry.Retry
		}
		return retry.Stop
	}
	if errors.Is(err, context.Canceled) {
		return retry.Stop
	}
	return retry.Retry
}
