// Package errors defines the structured application error used across gatehouse and
// the mapping from infrastructure failures onto it.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode categorizes an AppError.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "not_found"
	ErrCodeConflict     ErrorCode = "conflict"
	ErrCodeValidation   ErrorCode = "validation"
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	ErrCodeUnavailable  ErrorCode = "unavailable"
	ErrCodeInternal     ErrorCode = "internal"
	ErrCodeTimeout      ErrorCode = "timeout"
	ErrCodeCanceled     ErrorCode = "canceled"
)

// statusClientClosed is nginx's "client closed request".
const statusClientClosed = 499

var statusByCode = map[ErrorCode]int{
	ErrCodeNotFound:     http.StatusNotFound,
	ErrCodeConflict:     http.StatusConflict,
	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeUnavailable:  http.StatusServiceUnavailable,
	ErrCodeInternal:     http.StatusInternalServerError,
	ErrCodeTimeout:      http.StatusGatewayTimeout,
	ErrCodeCanceled:     statusClientClosed,
}

// AppError carries a code, a user-facing message and optionally the field
// and underlying cause. It participates in errors.Is and errors.As through Unwrap.
type AppError struct {
	Code    ErrorCode
	Message string
	Field   string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// New builds an AppError without a cause.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// ValidationField reports invalid input for a named field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Wrap attaches a code and message to err. A nil err stays nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// GetCode returns the code of the outermost AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	if appErr, ok := asAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// GetField returns the offending field recorded on err, if any.
func GetField(err error) string {
	if appErr, ok := asAppError(err); ok {
		return appErr.Field
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool { return GetCode(err) == code }

func IsNotFound(err error) bool   { return Is(err, ErrCodeNotFound) }
func IsConflict(err error) bool   { return Is(err, ErrCodeConflict) }
func IsValidation(err error) bool { return Is(err, ErrCodeValidation) }
func IsTimeout(err error) bool    { return Is(err, ErrCodeTimeout) }

// HTTPStatus maps err onto a response status. Anything without a known code is a 500.
func HTTPStatus(err error) int {
	if status, ok := statusByCode[GetCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
