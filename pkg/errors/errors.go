// Package errors provides structured error types for the frame-graph engine.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the engine core and the CLI
//   - Machine-readable error codes for programmatic handling
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Every frame-compilation failure carries one of the codes below. The
// build-time codes (UNKNOWN_RESOURCE, CYCLIC_DEPENDENCY,
// ALLOCATION_EXHAUSTED, UNDECLARED_ACCESS, INVALID_DECLARATION,
// UNSUPPORTED) are raised strictly before any GPU submission, so a frame
// that fails compilation has zero GPU-visible side effects. DEVICE_LOST is
// the single post-build failure and indicates the process-wide GPU context
// is gone, not a recoverable frame error.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeUnknownResource, "pass %q references handle %d", name, h)
//	if errors.Is(err, errors.ErrCodeUnknownResource) {
//	    // Handle declaration error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeDeviceLost, vkErr, "queue submit failed")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for the engine's failure taxonomy.
const (
	// Build-time errors: caller bugs or budget limits detected before
	// any GPU submission. The frame is aborted, nothing is submitted.
	ErrCodeUnknownResource     Code = "UNKNOWN_RESOURCE"
	ErrCodeCyclicDependency    Code = "CYCLIC_DEPENDENCY"
	ErrCodeAllocationExhausted Code = "ALLOCATION_EXHAUSTED"
	ErrCodeUndeclaredAccess    Code = "UNDECLARED_ACCESS"
	ErrCodeInvalidDeclaration  Code = "INVALID_DECLARATION"

	// Features the baseline engine deliberately rejects rather than
	// mishandles (e.g. passes spanning multiple GPU queues).
	ErrCodeUnsupported Code = "UNSUPPORTED"

	// Submission-time error: the GPU context is lost. Fatal to the
	// device context, not locally recoverable.
	ErrCodeDeviceLost Code = "DEVICE_LOST"

	// Internal errors that indicate an engine bug, not a caller bug.
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsBuildError reports whether err carries one of the build-time codes
// raised before submission. Callers can use this to decide whether a
// corrected re-declaration is worth attempting.
func IsBuildError(err error) bool {
	switch GetCode(err) {
	case ErrCodeUnknownResource, ErrCodeCyclicDependency,
		ErrCodeAllocationExhausted, ErrCodeUndeclaredAccess,
		ErrCodeInvalidDeclaration, ErrCodeUnsupported:
		return true
	}
	return false
}
