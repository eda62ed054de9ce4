// Package errors provides error handling for Forgesyte.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrNotFound) {
//	    // handle not found
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllDetails  = crdb.GetAllDetails
	FlattenDetails = crdb.FlattenDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Common sentinel errors for use across Forgesyte.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrConflict indicates a resource conflict (e.g., duplicate key)
	ErrConflict = New("resource conflict")

	// ErrServiceUnavailable indicates a required service cannot accept work
	ErrServiceUnavailable = New("service unavailable")

	// ErrDuplicateID indicates a job id collided with an existing row
	ErrDuplicateID = New("duplicate job id")

	// ErrIllegalTransition indicates a job state transition the state
	// machine does not permit. Observing this is a bug in the caller.
	ErrIllegalTransition = New("illegal job state transition")

	// ErrBadKey indicates a blob key that is absolute or traverses upward
	ErrBadKey = New("bad blob key")

	// ErrUnknownPlugin indicates a plugin id absent from the registry
	ErrUnknownPlugin = New("unknown plugin")

	// ErrUnknownTool indicates a tool name the plugin does not declare
	ErrUnknownTool = New("unknown tool")

	// ErrUnsupportedInputKind indicates a tool that does not accept the
	// submitted upload kind
	ErrUnsupportedInputKind = New("unsupported input kind")

	// ErrNoToolsRequested indicates a submission with an empty tool set
	ErrNoToolsRequested = New("no tools requested")

	// ErrPluginFailed wraps an error raised inside a plugin's dispatch
	ErrPluginFailed = New("plugin error")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
// or one of the validation sentinels that surface as HTTP 400.
func IsInvalidRequestError(err error) bool {
	return err != nil && IsAny(err,
		ErrInvalidRequest,
		ErrUnknownTool,
		ErrUnsupportedInputKind,
		ErrNoToolsRequested,
		ErrBadKey,
	)
}

// IsServiceUnavailableError checks if an error is or wraps ErrServiceUnavailable
func IsServiceUnavailableError(err error) bool {
	return err != nil && Is(err, ErrServiceUnavailable)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
