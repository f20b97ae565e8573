// Package domainerrors provides the error taxonomy shared by all services.
//
// Services return *Error values built with New or Wrap; transport layers map
// the Code to a protocol status. Expected business outcomes (a rejected
// compliance check, a missing record the caller asked about) are NOT errors
// in this taxonomy - they travel as result values. Only faults cross
// component boundaries as errors.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping and alerting.
type Code string

const (
	// CodeBadRequest marks malformed or unparsable caller input.
	CodeBadRequest Code = "bad_request"

	// CodeNotFound marks a lookup for an entity that does not exist.
	CodeNotFound Code = "not_found"

	// CodeUnauthorized marks a missing or rejected identity claim.
	CodeUnauthorized Code = "unauthorized"

	// CodeUnavailable marks an unreachable or timed-out dependency
	// (cache, ledger, rule source). Callers should retry.
	CodeUnavailable Code = "unavailable"

	// CodeInternal marks an invariant breach inside this process.
	CodeInternal Code = "internal"
)

// Error carries a classification code alongside the message chain.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. A nil cause returns nil so call sites
// can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the classification from an error chain.
// Unclassified errors report CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether the error chain carries the given code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
