// Package bonerr defines the engine's stable error taxonomy.
package bonerr

import (
	"errors"
	"fmt"
)

// Code is a stable short error code surfaced to callers across the engine.
type Code string

const (
	NotAProject       Code = "not_a_project"
	LockTimeout       Code = "lock_timeout"
	ParseError        Code = "parse_error"
	HashMismatch      Code = "hash_mismatch"
	UnknownParent     Code = "unknown_parent"
	InvalidTransition Code = "invalid_transition"
	ItemNotFound      Code = "item_not_found"
	DuplicateEvent    Code = "duplicate_event"
	InvalidInput      Code = "invalid_input"
	IO                Code = "io"
)

// Error is the engine's error type: a stable code plus a human message and
// an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error carrying cause as the wrapped error.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the Code of err, or "" if err is not (or does not wrap) an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
