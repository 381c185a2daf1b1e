// Package domainerrors provides coded errors for the governance ledger domain.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate
// them into coded errors here so handlers and CLI tooling can map codes to
// exit statuses and HTTP responses without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport mapping and retry decisions.
type Code string

const (
	// CodeValidation marks malformed caller input. Never retried.
	CodeValidation Code = "validation"
	// CodeConflict marks an optimistic-concurrency loss. Retryable by the
	// caller against re-read state.
	CodeConflict Code = "conflict"
	// CodeNotFound marks a missing or soft-deleted entity.
	CodeNotFound Code = "not_found"
	// CodeAlreadyFinalized marks a terminal state conflict on finalize.
	// Not retryable; the caller must refresh and resubmit.
	CodeAlreadyFinalized Code = "already_finalized"
	// CodeParentMismatch marks a lost amendment race: the chain head moved
	// between read and commit. Not retryable as-is; restart against the
	// new head.
	CodeParentMismatch Code = "parent_mismatch"
	// CodeAllocationExhausted marks a subnumber allocation that lost every
	// bounded retry. Fatal for the request; the caller may submit again
	// once contention subsides.
	CodeAllocationExhausted Code = "allocation_exhausted"
	// CodeIntegrity marks persisted state violating an invariant. Raised
	// only by the consistency validator, never by the live write path.
	CodeIntegrity Code = "integrity"
	// CodeTimeout marks an operation whose outcome is unknown. Callers
	// must re-read state before assuming failure.
	CodeTimeout Code = "timeout"
	// CodeUnauthorized marks a missing or invalid caller identity.
	CodeUnauthorized Code = "unauthorized"
	// CodeInternal marks unexpected infrastructure failure.
	CodeInternal Code = "internal"
)

// Error is a coded domain error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil cause
// returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Retryable reports whether the caller may retry the same operation.
// Only optimistic-concurrency losses and exhausted allocation retries
// qualify; terminal state conflicts and validation failures never do.
func Retryable(err error) bool {
	return HasCode(err, CodeConflict) || HasCode(err, CodeAllocationExhausted)
}
