package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable error code surfaced to transports
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not-found"
	KindUnauthorized     Kind = "unauthorized"
	KindConflict         Kind = "conflict"
	KindToolFailure      Kind = "tool-failure"
	KindModelFailure     Kind = "model-failure"
	KindApprovalRejected Kind = "approval-rejected"
	KindApprovalTimeout  Kind = "approval-timeout"
	KindCancelled        Kind = "cancelled"
	KindInternal         Kind = "internal"
)

// Error is the typed error carried through the engine and services.
// Transports expose Kind and Message only; Context and the wrapped
// cause stay server-side.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	cause   error
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithContext attaches a context entry and returns the same error
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches errors of the same kind
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf returns the kind of err, or KindInternal for untyped errors
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// Retryable reports whether the executor may retry the failed node
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindToolFailure, KindModelFailure:
		return true
	default:
		return false
	}
}

// HTTPStatus maps an error kind to its transport status code
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusForbidden
	case KindConflict, KindApprovalRejected:
		return http.StatusConflict
	case KindApprovalTimeout:
		return http.StatusRequestTimeout
	case KindToolFailure, KindModelFailure:
		return http.StatusBadGateway
	case KindCancelled:
		// Nginx convention for client-closed-request
		return 499
	default:
		return http.StatusInternalServerError
	}
}
