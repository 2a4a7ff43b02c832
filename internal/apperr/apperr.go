// Package apperr defines the application error taxonomy and its mapping
// onto HTTP status codes. Component packages keep their own sentinels and
// typed errors; they wrap these categories so handlers can classify any
// error chain with a single errors.Is walk.
package apperr

import (
	"errors"
	"net/http"
)

// Error categories. Use errors.Is(err, apperr.ErrAuthentication) to check.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrAuthentication    = errors.New("authentication required")
	ErrAuthorization     = errors.New("not authorized")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstream          = errors.New("upstream error")
	ErrPartialFailure    = errors.New("partial failure")
	ErrSyncInconsistency = errors.New("sync inconsistency")
)

// Error is a categorized error carrying the message safe to show a client.
// The wrapped Cause stays server-side.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}

	return e.Message
}

// Unwrap exposes both the category and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}

	return []error{e.Kind}
}

// New returns a categorized error with a client-facing message.
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns a categorized error that keeps cause for logging.
func Wrap(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// HTTPStatus maps an error chain to an HTTP status code. Unknown errors are 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrPartialFailure):
		return http.StatusMultiStatus
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Public is implemented by typed errors that carry their own client-facing
// message.
type Public interface {
	PublicMessage() string
}

// PublicMessage returns the message a client may see. Only *Error values
// and Public implementations carry one; everything else collapses to a
// generic message.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}

	var pub Public
	if errors.As(err, &pub) {
		return pub.PublicMessage()
	}

	return "Internal server error"
}
