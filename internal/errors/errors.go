// Package errors provides structured, machine-readable error handling for
// the tracker core and its API shell.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"
	// CodeValidationFailure marks a command rejected by a decider. The
	// rejection's own SCREAMING_SNAKE code travels in Error.Reason.
	CodeValidationFailure Code = "VALIDATION_FAILURE"
	// CodeNotFound marks a missing work item or record.
	CodeNotFound Code = "NOT_FOUND"
	// CodeStoreFailure marks an event store append or read that failed; the
	// speculative state has been rolled back.
	CodeStoreFailure Code = "STORE_FAILURE"
)

// Error is a domain error carrying a code, an optional rejection reason, and
// a human-readable message.
type Error struct {
	Code    Code
	Reason  string
	Message string
	cause   error
}

// New creates a domain error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Validation creates a validation failure from a decider rejection.
func Validation(reason, message string) *Error {
	return &Error{Code: CodeValidationFailure, Reason: reason, Message: message}
}

// Wrap creates a domain error that preserves the underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// As is a passthrough to the standard library so callers need a single
// errors import.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a passthrough to the standard library.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// GetCode extracts the error code from any error. Returns CodeUnknown if the
// error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// HTTPStatus maps domain codes to HTTP status codes for the API shell.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidationFailure:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeStoreFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
