// Package autherr defines the stable-coded failure taxonomy shared by the auth
// services. Handlers map Kind to a transport status; services never return raw
// store or driver errors to callers.
package autherr

import (
	"errors"
	"fmt"
)

// Kind is a stable machine-readable failure code.
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindConflict           Kind = "conflict"
	KindRateLimited        Kind = "rate_limited"
	KindNotFound           Kind = "not_found"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindInvalidCode        Kind = "invalid_code"
	KindExpired            Kind = "expired"
	KindAttemptsExceeded   Kind = "attempts_exceeded"
	KindUsed               Kind = "used"
	KindUnauthorized       Kind = "unauthorized"
	KindInternal           Kind = "internal_failure"
)

// Error carries a Kind, a caller-facing message, and an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports Kind equality so sentinel-style comparison works via errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// E returns an Error with the given kind and message.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap returns an Error with the given kind and message wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Internal wraps a store or transport fault as an internal failure.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Msg: "internal failure", Err: cause}
}

// KindOf returns the Kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
