// Package aspdiag defines the closed, coded error taxonomy shared
// across the registry, lock, store, lint, harness and session layers.
package aspdiag

import (
	"errors"
	"fmt"
)

// Code is one of the closed set of error codes this system emits.
type Code string

const (
	// Parse errors
	CodeRefInvalid      Code = "ref_invalid"
	CodeManifestInvalid Code = "manifest_invalid"
	CodeLockInvalid     Code = "lock_invalid"

	// Resolution errors
	CodeDistTagNotFound   Code = "dist_tag_not_found"
	CodeVersionNotFound   Code = "version_not_found"
	CodeNoVersionMatches  Code = "no_version_matches"
	CodeMissingDependency Code = "missing_dependency"
	CodeCyclicDependency  Code = "cyclic_dependency"

	// I/O errors
	CodeGitError            Code = "git_error"
	CodeRegistryUnavailable Code = "registry_unavailable"
	CodeFilesystemError     Code = "filesystem_error"
	CodeNotFound            Code = "not_found"

	// Integrity errors
	CodeIntegrityMismatch Code = "integrity_mismatch"

	// Lint errors
	CodeLintError Code = "lint_error"

	// Runtime/session errors
	CodeResolveFailed        Code = "resolve_failed"
	CodeModelNotSupported    Code = "model_not_supported"
	CodeProviderMismatch     Code = "provider_mismatch"
	CodeContinuationNotFound Code = "continuation_not_found"
	CodeUnsupportedFrontend  Code = "unsupported_frontend"
	CodeCancelled            Code = "cancelled"
)

// Error is the single closed error type surfaced across exported
// boundaries: the CLI façade, the install/build orchestrator, and the
// run/session driver.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Wrapped error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New constructs an Error with no details and no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an Error that wraps a lower-layer cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Wrapped: cause}
}

// WithDetails returns a copy of e with details attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error,
// returning ok=false otherwise.
func CodeOf(err error) (Code, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code, true
	}
	return "", false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
