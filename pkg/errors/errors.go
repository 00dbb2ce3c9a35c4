// Package errors provides structured error types for mybget.
//
// Every failure the engine reports to the command-line layer carries a
// machine-readable [Code], so callers can decide between aborting the whole
// invocation (configuration problems) and degrading gracefully (one source or
// one module failing inside a batch).
//
// # Error Codes
//
//   - CONFIG_ERROR: bad or missing local configuration. Fatal to one operation.
//   - SOURCE_UNREACHABLE: network failure or timeout for one registry source.
//   - MALFORMED_REGISTRY: a registry payload could not be decoded.
//   - NOT_FOUND: a name matches no catalog or installed module.
//   - AMBIGUOUS: a case-insensitive name matches more than one module.
//   - ALREADY_INSTALLED: install without reinstall on an installed module.
//   - EXTRACTION_FAILED: unpacking a downloaded module archive failed.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeNotFound, "module %q not found", name)
//	if errors.Is(err, errors.ErrCodeNotFound) {
//	    // Handle missing module
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeSourceUnreachable, origErr, "fetch %s", url)
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	ErrCodeConfig            Code = "CONFIG_ERROR"
	ErrCodeSourceUnreachable Code = "SOURCE_UNREACHABLE"
	ErrCodeMalformedRegistry Code = "MALFORMED_REGISTRY"
	ErrCodeNotFound          Code = "NOT_FOUND"
	ErrCodeAmbiguous         Code = "AMBIGUOUS"
	ErrCodeAlreadyInstalled  Code = "ALREADY_INSTALLED"
	ErrCodeExtractionFailed  Code = "EXTRACTION_FAILED"

	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInternal     Code = "INTERNAL_ERROR"
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

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is, and "" for nil.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s", e.Message, UserMessage(e.Cause))
		}
		return e.Message
	}
	return err.Error()
}

// IsFatal reports whether err should abort the whole invocation rather than
// a single source or module. Only configuration-level failures are fatal.
func IsFatal(err error) bool {
	return Is(err, ErrCodeConfig)
}

// MultiError collects independent failures from a batch operation.
type MultiError struct {
	errs []error
}

// NewMultiError returns nil when errs is empty so callers can return it
// directly as an error value.
func NewMultiError(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &MultiError{errs: errs}
}

func (e *MultiError) Error() string {
	msgs := make([]string, len(e.errs))
	for i, err := range e.errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

// Errors returns the collected errors in the order they were reported.
func (e *MultiError) Errors() []error {
	return e.errs
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e *MultiError) Unwrap() []error {
	return e.errs
}
