// Package apperr holds the typed business errors returned by services and mapped to HTTP by handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindCapacity      Kind = "capacity"
	KindConflict      Kind = "conflict"
	KindExternal      Kind = "external"
	KindState         Kind = "state"
)

type Error struct {
	Kind      Kind
	Code      string
	Field     string
	Message   string
	Retryable bool
	Details   map[string]any
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and code, so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Field: field, Message: message}
}

func Authorization(code, message string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func State(code, message string) *Error {
	return &Error{Kind: KindState, Code: code, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// Capacity reports that the requested weight does not fit; amounts are grams.
func Capacity(requested, remaining int64) *Error {
	return &Error{
		Kind:    KindCapacity,
		Code:    "CAPACITY_EXCEEDED",
		Message: fmt.Sprintf("requested %d g exceeds remaining %d g", requested, remaining),
		Details: map[string]any{"requested_grams": requested, "remaining_grams": remaining},
	}
}

func External(op string, retryable bool, err error) *Error {
	return &Error{
		Kind:      KindExternal,
		Code:      "PAYMENT_PROCESSOR_ERROR",
		Message:   op + " failed",
		Retryable: retryable,
		Err:       err,
	}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// HTTPStatus maps an error kind to its response status. Unknown errors are 500.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindCapacity, KindState:
		return http.StatusConflict
	case KindConflict:
		return http.StatusOK
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
