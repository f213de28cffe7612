// Package pipelineerr implements the five error kinds spec.md §7 defines:
// InvalidArgument, NotFound, InvalidState, Transient, and Fatal. Adapted
// from the teacher's internal/errors AppError shape (Kind-tagged struct
// with New/Wrap/WithDetails and an HTTP status mapping for the admin
// surface in cmd/pipeline-runtimed).
package pipelineerr

import (
	"fmt"
	"net/http"
)

// Kind is one of the five error kinds from spec.md §7.
type Kind string

const (
	InvalidArgument Kind = "invalid_argument"
	NotFound        Kind = "not_found"
	InvalidState    Kind = "invalid_state"
	Transient       Kind = "transient"
	Fatal           Kind = "fatal"
)

// httpStatus maps a Kind to the status code the admin REST surface reports
// for it; this mapping has no bearing on core semantics.
var httpStatus = map[Kind]int{
	InvalidArgument: http.StatusBadRequest,
	NotFound:        http.StatusNotFound,
	InvalidState:    http.StatusConflict,
	Transient:       http.StatusServiceUnavailable,
	Fatal:           http.StatusInternalServerError,
}

// Error is a Kind-tagged error with optional details and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Details string
	Cause   error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// StatusCode returns the HTTP status code associated with e's Kind.
func (e *Error) StatusCode() int {
	return httpStatus[e.Kind]
}

// New builds a Kind-tagged error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a Kind-tagged error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a Kind-tagged error around an existing cause.
func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrapf builds a Kind-tagged error around an existing cause with a
// formatted message.
func Wrapf(cause error, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithDetails attaches additional detail text, mutating and returning e.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// WithDetailsf attaches formatted detail text, mutating and returning e.
func (e *Error) WithDetailsf(format string, args ...interface{}) *Error {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// Is reports whether err is a pipelineerr.Error of the given kind,
// supporting errors.Is-style matching by callers that only care about kind.
func Is(err error, kind Kind) bool {
	pe, ok := err.(*Error)
	if !ok {
		return false
	}
	return pe.Kind == kind
}
