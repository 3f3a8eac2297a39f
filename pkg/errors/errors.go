package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a stable discriminant the API layer maps to user-facing behaviour.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeSeatConflict      Code = "SEAT_CONFLICT"
	CodeGateway           Code = "GATEWAY_ERROR"
	CodeGatewayAmbiguous  Code = "GATEWAY_AMBIGUOUS"
	CodeNotFound          Code = "NOT_FOUND"
	CodeForbidden         Code = "FORBIDDEN"
	CodeIllegalTransition Code = "ILLEGAL_TRANSITION"
	CodePersistence       Code = "PERSISTENCE_ERROR"
)

// Sentinels usable with errors.Is; matching is by code only.
var (
	ErrValidation        = &AppError{Code: CodeValidation}
	ErrSeatConflict      = &AppError{Code: CodeSeatConflict}
	ErrGateway           = &AppError{Code: CodeGateway}
	ErrGatewayAmbiguous  = &AppError{Code: CodeGatewayAmbiguous}
	ErrNotFound          = &AppError{Code: CodeNotFound}
	ErrForbidden         = &AppError{Code: CodeForbidden}
	ErrIllegalTransition = &AppError{Code: CodeIllegalTransition}
	ErrPersistence       = &AppError{Code: CodePersistence}
)

type AppError struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail returns the error with an extra detail attached.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func Validation(format string, args ...interface{}) *AppError {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

func SeatConflict(seats []string) *AppError {
	return New(CodeSeatConflict, "selected seats are not available").WithDetail("seats", seats)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, resource+" not found")
}

func Forbidden(message string) *AppError {
	return New(CodeForbidden, message)
}

func Gateway(message string, err error) *AppError {
	return Wrap(CodeGateway, message, err)
}

func GatewayAmbiguous(message string, err error) *AppError {
	return Wrap(CodeGatewayAmbiguous, message, err)
}

func IllegalTransition(from, to string) *AppError {
	return New(CodeIllegalTransition, fmt.Sprintf("cannot move booking from %s to %s", from, to))
}

func Persistence(message string, err error) *AppError {
	return Wrap(CodePersistence, message, err)
}

// CodeOf extracts the code of the outermost AppError in err's chain.
// Unknown errors are reported as persistence failures.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodePersistence
}

// As is a shorthand for errors.As against *AppError.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}
