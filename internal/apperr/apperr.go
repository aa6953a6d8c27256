package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"billdesk/backend/internal/store"
)

// Kind names a failure class that callers can act on.
type Kind string

const (
	Unauthenticated    Kind = "unauthenticated"
	InvalidArgument    Kind = "invalid-argument"
	NotFound           Kind = "not-found"
	FailedPrecondition Kind = "failed-precondition"
	PermissionDenied   Kind = "permission-denied"
	AlreadyExists      Kind = "already-exists"
	Aborted            Kind = "aborted"
	Internal           Kind = "internal"
)

// Error carries a Kind and a human-readable message, optionally wrapping a cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf classifies err. Store sentinels map onto their closest kind and
// anything unrecognised is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return NotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return AlreadyExists
	case errors.Is(err, store.ErrAborted):
		return Aborted
	case errors.Is(err, store.ErrInvalidPath):
		return InvalidArgument
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Aborted
	default:
		return Internal
	}
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Normalize returns err as an *Error, classifying bare errors with KindOf.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	kind := KindOf(err)
	msg := err.Error()
	if kind == Internal {
		msg = "internal error"
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthenticated:
		return http.StatusUnauthorized
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case FailedPrecondition:
		return http.StatusPreconditionFailed
	case PermissionDenied:
		return http.StatusForbidden
	case AlreadyExists, Aborted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
