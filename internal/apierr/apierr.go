// Package apierr provides the Control API's typed error kinds and their
// HTTP status mapping.
package apierr

import "net/http"

// Kind is one of the seven HTTP-facing error classes.
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindAuthRequired    Kind = "AuthRequired"
	KindForbidden       Kind = "Forbidden"
	KindNotFound        Kind = "NotFound"
	KindConflict        Kind = "Conflict"
	KindRateLimited     Kind = "RateLimited"
	KindUpstreamFailure Kind = "UpstreamFailure"
)

// Error is a typed, HTTP-classifiable error.
type Error struct {
	Kind    Kind
	Message string
	// Extra carries kind-specific response fields (e.g. requiresPassword,
	// retryAfterMs) merged into the JSON error body.
	Extra map[string]any
}

func (e *Error) Error() string { return e.Message }

// Status maps a Kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthRequired:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Validation(message string) *Error   { return New(KindValidation, message) }
func AuthRequired(message string) *Error { return New(KindAuthRequired, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Upstream(message string) *Error     { return New(KindUpstreamFailure, message) }

// Conflict builds a 409 carrying extra fields (e.g. requiresPassword).
func Conflict(message string, extra map[string]any) *Error {
	return &Error{Kind: KindConflict, Message: message, Extra: extra}
}
