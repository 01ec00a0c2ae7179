// Package apierror provides standardized API error responses shared by all
// HTTP handlers.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/traceprint/api/pkg/domain/shared"
)

// Code is a machine-readable error code.
type Code string

// Standard error codes.
const (
	CodeBadRequest        Code = "BAD_REQUEST"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeForbidden         Code = "FORBIDDEN"
	CodeValidationFailed  Code = "VALIDATION_FAILED"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodeInternalError     Code = "INTERNAL_ERROR"
)

// Error is a standardized API error.
type Error struct {
	Status  int    `json:"-"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// New creates an API error.
func New(status int, code Code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// BadRequest creates a 400 error.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

// NotFound creates a 404 error.
func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message)
}

// Conflict creates a 409 error.
func Conflict(message string) *Error {
	return New(http.StatusConflict, CodeConflict, message)
}

// Validation creates a 422 error with field details.
func Validation(message string, details any) *Error {
	e := New(http.StatusUnprocessableEntity, CodeValidationFailed, message)
	e.Details = details
	return e
}

// RateLimitExceeded creates a 429 error.
func RateLimitExceeded() *Error {
	return New(http.StatusTooManyRequests, CodeRateLimitExceeded, "rate limit exceeded")
}

// Internal creates a 500 error wrapping the cause.
func Internal(err error) *Error {
	e := New(http.StatusInternalServerError, CodeInternalError, "internal server error")
	e.Err = err
	return e
}

// FromDomain maps a domain error to an API error.
func FromDomain(err error) *Error {
	switch {
	case shared.IsNotFound(err):
		return NotFound(err.Error())
	case shared.IsValidation(err):
		return New(http.StatusUnprocessableEntity, CodeValidationFailed, err.Error())
	case shared.IsConflict(err):
		return Conflict(err.Error())
	case errors.Is(err, shared.ErrForbidden):
		return New(http.StatusForbidden, CodeForbidden, err.Error())
	default:
		return Internal(err)
	}
}

// Response is the wire shape of an error response body.
type Response struct {
	Error     string `json:"error"`
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Write sends the error as JSON on w.
func Write(w http.ResponseWriter, e *Error, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(Response{
		Error:     string(e.Code),
		Code:      e.Code,
		Message:   e.Message,
		Details:   e.Details,
		RequestID: requestID,
	})
}
