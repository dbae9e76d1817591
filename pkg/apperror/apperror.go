// Package apperror defines the error taxonomy shared by the gateway, the
// services and the REST handlers.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error.
type Code string

const (
	CodeAuth        Code = "AUTH_ERROR"
	CodeSelfMessage Code = "SELF_MESSAGE"
	CodeValidation  Code = "VALIDATION_ERROR"
	CodeNotFound    Code = "NOT_FOUND"
	CodeConflict    Code = "CONFLICT"
	CodeProtocol    Code = "PROTOCOL_ERROR"
	CodeForbidden   Code = "FORBIDDEN"
	CodeInternal    Code = "INTERNAL"
)

// Error is a classified application error.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an error with the given code.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error with the given code and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Auth(msg string) error        { return New(CodeAuth, msg) }
func SelfMessage(msg string) error { return New(CodeSelfMessage, msg) }
func Validation(msg string) error  { return New(CodeValidation, msg) }
func NotFound(msg string) error    { return New(CodeNotFound, msg) }
func Protocol(msg string) error    { return New(CodeProtocol, msg) }
func Forbidden(msg string) error   { return New(CodeForbidden, msg) }

// Conflict wraps the last conflicting store error.
func Conflict(msg string, cause error) error {
	return Wrap(CodeConflict, msg, cause)
}

// Internal wraps an unexpected failure.
func Internal(msg string, cause error) error {
	return Wrap(CodeInternal, msg, cause)
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Message returns the client-facing message of err. Unclassified errors are
// reported generically so internal details stay in the logs.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != CodeInternal {
		return appErr.Message
	}
	return "internal error"
}

// HTTPStatus maps an error to the REST status code.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeSelfMessage, CodeValidation, CodeProtocol:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
