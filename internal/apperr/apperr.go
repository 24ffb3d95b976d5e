package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Type classifies an application error.  Every fatal turn failure surfaces
// to the caller as one of these.
type Type string

const (
	TypeNotFound         Type = "not_found"
	TypeValidation       Type = "invalid_request"
	TypeConflict         Type = "conflict"
	TypeModelUnavailable Type = "model_unavailable"
	TypeInternal         Type = "internal"
)

// Error is an application error carrying its classification.
type Error struct {
	Type    Type
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(message string) *Error {
	return &Error{Type: TypeNotFound, Message: message}
}

func Validation(message string) *Error {
	return &Error{Type: TypeValidation, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Type: TypeConflict, Message: message}
}

// ModelUnavailable wraps a failed or timed out language-model call.
func ModelUnavailable(err error) *Error {
	return &Error{Type: TypeModelUnavailable, Message: "language model unavailable", Err: err}
}

func Internal(message string, err error) *Error {
	return &Error{Type: TypeInternal, Message: message, Err: err}
}

// Is reports whether err is an application error of type t.
func Is(err error, t Type) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Type == t
	}
	return false
}

// Status maps err to the HTTP status the caller sees.
func Status(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Type {
	case TypeNotFound:
		return http.StatusNotFound
	case TypeValidation:
		return http.StatusBadRequest
	case TypeConflict:
		return http.StatusConflict
	case TypeModelUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the wire code for err.
func Code(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return string(ae.Type)
	}
	return string(TypeInternal)
}
