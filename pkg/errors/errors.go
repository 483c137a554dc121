package errors

import (
	stderrors "errors"
	"fmt"
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

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func AlreadyExists(msg string) error {
	return New(CodeAlreadyExists, msg)
}

func Unavailable(msg string, cause error) error {
	return Wrap(CodeUnavailable, msg, cause)
}

func Internal(msg string) error {
	return New(CodeInternal, msg)
}

// CodeOf extracts the Code from err, walking the wrap chain.  Errors that
// are not AppErrors report CodeUnknown.
func CodeOf(err error) Code {
	var app *AppError
	if stderrors.As(err, &app) {
		return app.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
