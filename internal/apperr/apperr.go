// Package apperr defines the error taxonomy shared by all service layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION"
	CodeGeocoding           Code = "GEOCODING"
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodeNoFeasibleSolution  Code = "NO_FEASIBLE_SOLUTION"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInternal            Code = "INTERNAL"
)

// Error carries a machine-readable code alongside the message so handlers
// can map failures to HTTP statuses without string matching.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation, CodeGeocoding:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNoFeasibleSolution:
		return http.StatusUnprocessableEntity
	case CodeProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Validation(field, reason string) *Error {
	return Newf(CodeValidation, "field %q invalid: %s", field, reason)
}

func NotFound(resource, id string) *Error {
	return Newf(CodeNotFound, "%s %q not found", resource, id)
}

func Geocoding(address string) *Error {
	return Newf(CodeGeocoding, "address %q could not be resolved", address)
}
