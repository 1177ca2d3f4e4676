package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeBadRequest       Code = "BAD_REQUEST"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeNotAuthenticated Code = "NOT_AUTHENTICATED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeTransient        Code = "TRANSIENT"
	CodeInternal         Code = "INTERNAL"

	// CodeStalePresence is raised and consumed inside the delivery path only.
	CodeStalePresence Code = "STALE_PRESENCE"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches any AppError carrying the same code, so sentinels work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func BadRequest(msg string) error {
	return New(CodeBadRequest, msg)
}

func Forbidden(msg string) error {
	return New(CodePermissionDenied, msg)
}

func Unauthenticated(msg string) error {
	return New(CodeNotAuthenticated, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func Transient(msg string, cause error) error {
	return Wrap(CodeTransient, msg, cause)
}

func Internal(msg string) error {
	return New(CodeInternal, msg)
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotAuthenticated:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var errHidden = Internal("internal error")

// Public strips the cause so internal details never reach a client. Errors
// without a client-facing code collapse to a generic INTERNAL.
func Public(err error) *AppError {
	var ae *AppError
	if !errors.As(err, &ae) || ae.Code == CodeStalePresence {
		ae = errHidden.(*AppError)
	}
	return &AppError{Code: ae.Code, Message: ae.Message}
}
