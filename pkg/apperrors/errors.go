// Package apperrors defines the error taxonomy surfaced to API callers.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound   = "NOT_FOUND"
	CodeForbidden  = "FORBIDDEN"
	CodeConflict   = "CONFLICT"
	CodeBadRequest = "BAD_REQUEST"
	CodeInternal   = "INTERNAL_ERROR"
)

// Error is a structured application error carrying the HTTP status it should
// be reported with.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"error"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code, message string, httpStatus int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(CodeNotFound, fmt.Sprintf(format, args...), http.StatusNotFound)
}

func Forbidden(format string, args ...interface{}) *Error {
	return New(CodeForbidden, fmt.Sprintf(format, args...), http.StatusForbidden)
}

// Conflict reports an invariant violation. It maps to 400, which is how the
// API reports a room that already has an active session.
func Conflict(format string, args ...interface{}) *Error {
	return New(CodeConflict, fmt.Sprintf(format, args...), http.StatusBadRequest)
}

func BadRequest(format string, args ...interface{}) *Error {
	return New(CodeBadRequest, fmt.Sprintf(format, args...), http.StatusBadRequest)
}

func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", HTTPStatus: http.StatusInternalServerError, Err: err}
}

// From extracts an *Error from err, wrapping unknown errors as Internal.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
