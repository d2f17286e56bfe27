package reservation

import (
	"errors"
	"fmt"
)

// Code classifies an engine failure.  Callers switch on the code (or use
// errors.Is against the sentinels below) to decide how to respond; the
// message is for humans only.
type Code string

const (
	CodeInvalidRequest           Code = "invalid_request"
	CodeNotFound                 Code = "not_found"
	CodeForbidden                Code = "forbidden"
	CodeExpired                  Code = "expired"
	CodeInsufficientSeats        Code = "insufficient_seats"
	CodeAlreadyCancelled         Code = "already_cancelled"
	CodeCancellationWindowClosed Code = "cancellation_window_closed"
	CodeBusy                     Code = "busy"
	CodeConflict                 Code = "conflict"
	CodeInternal                 Code = "internal"
)

// Error is the structured failure returned by every engine operation.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so errors.Is(err,
// ErrInsufficientSeats) holds regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidRequest           = &Error{Code: CodeInvalidRequest}
	ErrNotFound                 = &Error{Code: CodeNotFound}
	ErrForbidden                = &Error{Code: CodeForbidden}
	ErrExpired                  = &Error{Code: CodeExpired}
	ErrInsufficientSeats        = &Error{Code: CodeInsufficientSeats}
	ErrAlreadyCancelled         = &Error{Code: CodeAlreadyCancelled}
	ErrCancellationWindowClosed = &Error{Code: CodeCancellationWindowClosed}
	ErrBusy                     = &Error{Code: CodeBusy}
	ErrConflict                 = &Error{Code: CodeConflict}
	ErrInternal                 = &Error{Code: CodeInternal}
)

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a new *Error of the given code.
func Wrap(code Code, cause error, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: cause}
}

// CodeOf extracts the code of err.  Errors that did not originate in the
// engine or a store are reported as internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
