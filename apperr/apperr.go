// Package apperr carries the failure taxonomy shared by the generation,
// assembly, edit and chat paths. Every failure has a stable Kind code and a
// human-readable message; the underlying cause stays reachable via errors.Unwrap.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	GenerationInvalid     Kind = "generation_invalid"
	GenerationUnavailable Kind = "generation_unavailable"
	AssemblyInvalid       Kind = "assembly_invalid"
	TripNotFound          Kind = "trip_not_found"
	EditConflict          Kind = "edit_conflict"
	AccessDenied          Kind = "access_denied"
	AuthenticationFailed  Kind = "authentication_failed"
	RateLimited           Kind = "rate_limited"
	SessionTimeout        Kind = "session_timeout"
	InvalidRequest        Kind = "invalid_request"
	Internal              Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so sentinel-style comparisons
// like errors.Is(err, &Error{Kind: EditConflict}) work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Message returns the human-readable summary for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps a kind to the status code the HTTP surface answers with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidRequest:
		return http.StatusBadRequest
	case AuthenticationFailed:
		return http.StatusUnauthorized
	case AccessDenied:
		return http.StatusForbidden
	case TripNotFound:
		return http.StatusNotFound
	case EditConflict:
		return http.StatusConflict
	case AssemblyInvalid, GenerationInvalid:
		return http.StatusUnprocessableEntity
	case RateLimited:
		return http.StatusTooManyRequests
	case GenerationUnavailable:
		return http.StatusServiceUnavailable
	case SessionTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
