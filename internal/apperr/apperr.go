// Package apperr defines the error taxonomy shared by every component. Each
// failure carries a Kind that the HTTP layer maps to a status code and a
// stable Code clients can branch on.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindUnauthenticated Kind = "unauthenticated"
	KindAuthorization   Kind = "authorization"
	KindNotFound        Kind = "not_found"
	KindRateLimit       Kind = "rate_limit"
	KindExternal        Kind = "external_dependency"
	KindInternal        Kind = "internal"
)

// Datastore sentinels. Both datastore implementations return these so the
// components can translate them without knowing the backend.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("unique constraint violated")
	ErrStale     = errors.New("conditional write matched no row")
)

// Error is a classified failure. RetryAfter is only set on rate-limit
// errors.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Err        error
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap attaches a cause to a copy of e.
func (e *Error) Wrap(err error) *Error {
	out := *e
	out.Err = err
	return &out
}

// After returns a copy of e carrying a retry delay.
func (e *Error) After(d time.Duration) *Error {
	out := *e
	out.RetryAfter = d
	return &out
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Validation(code, msg string) *Error      { return newError(KindValidation, code, msg) }
func Conflict(code, msg string) *Error        { return newError(KindConflict, code, msg) }
func Unauthenticated(code, msg string) *Error { return newError(KindUnauthenticated, code, msg) }
func Authorization(code, msg string) *Error   { return newError(KindAuthorization, code, msg) }
func NotFound(code, msg string) *Error        { return newError(KindNotFound, code, msg) }
func RateLimit(code, msg string) *Error       { return newError(KindRateLimit, code, msg) }
func External(code, msg string) *Error        { return newError(KindExternal, code, msg) }
func Internal(code, msg string) *Error        { return newError(KindInternal, code, msg) }

// KindOf returns the Kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the Code of the first *Error in the chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
