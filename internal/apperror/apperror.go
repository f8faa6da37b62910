// Package apperror defines the stable error taxonomy shared by every
// manager, the capability router, and the HTTP layer. Handlers map a Kind
// to a status code; the core never imports net/http.
package apperror

import (
	"errors"
	"fmt"
)

// Kind is a wire-stable error classification. Clients may branch on the
// string value, so existing names must never change meaning.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindUnauthorized         Kind = "unauthorized"
	KindForbidden            Kind = "forbidden"
	KindValidation           Kind = "validation_error"
	KindConflict             Kind = "conflict"
	KindQuotaExceeded        Kind = "quota_exceeded"
	KindSessionNotReady      Kind = "session_not_ready"
	KindTimeout              Kind = "timeout"
	KindRuntimeError         Kind = "runtime_error"
	KindCapabilityNotSupported Kind = "capability_not_supported"
	KindInvalidPath          Kind = "invalid_path"
	KindFileNotFound         Kind = "file_not_found"
	KindSandboxExpired       Kind = "sandbox_expired"
	KindSandboxTTLInfinite   Kind = "sandbox_ttl_infinite"
)

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, apperror.New(KindNotFound, "")) to match on Kind
// alone, ignoring Message/Details.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an underlying error, preserving it for Unwrap.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails returns a copy of e with Details set.
func (e *Error) WithDetails(details map[string]any) *Error {
	ne := *e
	ne.Details = details
	return &ne
}

// KindOf extracts the Kind from err, falling back to KindRuntimeError when
// err is not (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindRuntimeError
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
