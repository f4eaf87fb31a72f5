// Package apperror defines the error taxonomy shared by the service and
// handler layers.
//
// Every AppError wraps one sentinel (ErrValidation, ErrUpstream, ...) so
// callers classify with errors.Is, and carries a client-safe Message. The
// optional Cause is the underlying error; it shows up in Error() (and so in
// logs) but never in the Message sent to clients.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrMissingEmail    = errors.New("missing email")
	ErrUpstream        = errors.New("upstream error")
	ErrUpstreamTimeout = errors.New("upstream timeout")
)

type AppError struct {
	Err     error  // sentinel
	Message string // Human-readable, safe to return to clients
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error, for logs only
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// MissingEmail is returned when the provider profile has no primary email.
func MissingEmail(message string) *AppError {
	return &AppError{
		Err:     ErrMissingEmail,
		Message: message,
		Field:   "email",
	}
}

// Upstream reports a failed call to an identity provider: a transport
// failure or a non-success status.
func Upstream(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: message,
		Cause:   cause,
	}
}

// UpstreamTimeout reports an identity provider call that hit its deadline.
func UpstreamTimeout(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrUpstreamTimeout,
		Message: message,
		Cause:   cause,
	}
}

// Wrap attaches a cause to a sentinel-classified error.
func Wrap(sentinel error, message string, cause error) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
		Cause:   cause,
	}
}

// Kind returns the machine-readable name of err's class, as sent in the
// "error" field of API responses and used as a metric label.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingEmail):
		return "missing_email"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUpstreamTimeout):
		return "upstream_timeout"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	default:
		return "internal_error"
	}
}
