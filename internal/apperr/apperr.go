// Package apperr defines a closed error taxonomy that every component
// surfaces instead of raw provider or driver errors, so the HTTP layer
// can map them to status codes without knowing anything about the
// component that produced them.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidInput
	KindServiceUnavailable
	KindTransientProvider
	KindRateLimited
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindTransientProvider:
		return "transient_provider_error"
	case KindRateLimited:
		return "rate_limited"
	case KindInternal:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a taxonomy Kind and a user-facing
// detail message. Kind drives HTTP status selection; Detail is always
// safe to show a caller (KindInternal's Detail is a non-revealing
// constant).
type Error struct {
	Kind       Kind
	Detail     string
	RetryAfter int // seconds; only meaningful for KindRateLimited
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, cause: cause}
}

func NotFound(detail string) *Error {
	return New(KindNotFound, detail)
}

func InvalidInput(detail string) *Error {
	return New(KindInvalidInput, detail)
}

func Internal(cause error) *Error {
	return Wrap(KindInternal, "an internal error occurred", cause)
}

func RateLimited(detail string, retryAfterSeconds int) *Error {
	return &Error{Kind: KindRateLimited, Detail: detail, RetryAfter: retryAfterSeconds}
}

// As extracts an *Error from err if present.
func As(err error) (*Error, bool) {
	var ae *Error
	ok := errors.As(err, &ae)
	return ae, ok
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else
// KindUnknown.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindUnknown
}
