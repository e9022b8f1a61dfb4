// Package domainerrors provides coded errors for the service.
//
// Every error that crosses a package boundary carries a Code so transport
// layers can map it without string matching and services can branch on
// classes of failure instead of concrete causes.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers and for HTTP mapping.
type Code string

// Ambient codes shared by every module.
const (
	CodeValidation         Code = "validation"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvalidRequest     Code = "invalid_request"
	CodeBadRequest         Code = "bad_request"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeUnavailable        Code = "unavailable"
	CodeInternal           Code = "internal"
	CodeInvariantViolation Code = "invariant_violation"
)

// Trust-boundary codes. These are terminal for the operation that raised
// them; no retry path may resolve one toward a disclosure.
const (
	// CodePolicyViolation: a requested disclosure is outside the active
	// whitelist policy (unlisted field, sensitivity above the cap, wrong
	// policy scope for the operation).
	CodePolicyViolation Code = "policy_violation"

	// CodeAuthorization: the caller lacks the relationship required for the
	// operation (therapist does not own the context, couple link mismatch).
	CodeAuthorization Code = "authorization_error"

	// CodeDetectionFailure: the PHI classifier could not produce a verdict.
	// Callers must treat this as Blocked, never as Allowed.
	CodeDetectionFailure Code = "detection_failure"

	// CodeAuditWriteFailure: the audit trail could not be extended. The
	// guarded operation must fail even if its own work succeeded.
	CodeAuditWriteFailure Code = "audit_write_failure"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	code Code
	msg  string
	err  error
}

// New constructs a coded error.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

// Newf constructs a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
// A nil err yields a plain coded error so callers need not branch.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{code: code, msg: msg, err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.err
}

// Is matches another coded error by code and message, so tests can assert
// with errors.Is against a freshly constructed value.
func (e *Error) Is(target error) bool {
	var te *Error
	if !errors.As(target, &te) {
		return false
	}
	return e.code == te.code && e.msg == te.msg
}

// Code returns the classification of this error.
func (e *Error) Code() Code {
	return e.code
}

// Message returns the outward-safe message without the wrapped cause.
func (e *Error) Message() string {
	return e.msg
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.code == code {
			return true
		}
		err = de.err
		if err == nil {
			return false
		}
	}
	return false
}

// Is is an alias for HasCode kept for older call sites.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none. Unknown errors must not leak detail, so the safe
// default is the opaque classification.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}
