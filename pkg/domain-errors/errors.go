// Package domainerrors provides coded errors for the auth domain. Services
// convert infrastructure facts (sentinel errors, HTTP statuses) into coded
// errors at their boundary; callers branch on the code, never on message text.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the failure class of a domain error.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeOTPInvalid         Code = "OTP_INVALID_OR_EXPIRED"
	CodeTokenNotFound      Code = "TOKEN_NOT_FOUND"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeNetwork            Code = "NETWORK_ERROR"
	CodeTimeout            Code = "TIMEOUT"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeOperationInFlight  Code = "OPERATION_IN_FLIGHT"
	CodeInternal           Code = "INTERNAL"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	code  Code
	msg   string
	cause error
}

func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. A nil cause
// returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: msg, cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the failure class.
func (e *Error) Code() Code { return e.code }

// Message returns the human-readable message without the code prefix.
func (e *Error) Message() string { return e.msg }

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		if de.code == code {
			return true
		}
		return HasCode(de.cause, code)
	}
	return false
}

// CodeOf returns the code of the outermost coded error, or CodeInternal when
// err carries no code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// MessageOf returns the outermost coded message, or err.Error() for uncoded
// errors, so UIs always have something to render.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
