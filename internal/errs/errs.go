// Package errs defines the typed error kinds surfaced by the adaptive
// hash map engine, shared across internal/hashmap, internal/config,
// internal/replay, internal/snapshot and internal/telemetry so a driver
// can map any failure to a
// stable exit code regardless of which package produced it.
package errs

import (
	"errors"
	"fmt"
)

// Kind enumerates the error categories a driver must distinguish.
type Kind int

const (
	// KindBadConfig indicates a constructor parameter violated a precondition.
	KindBadConfig Kind = iota
	// KindBadInput indicates an operation-stream schema/row/size violation.
	KindBadInput
	// KindInvariantViolation indicates an internal consistency check failed.
	KindInvariantViolation
	// KindPolicyViolation indicates an operation was refused by contract.
	KindPolicyViolation
	// KindIoError indicates a filesystem or serialization-transport failure.
	KindIoError
	// KindCancelled indicates cooperative cancellation was observed.
	KindCancelled
)

// String renders the kind using the same lower_snake_case tokens the driver
// prints as the machine-stable exit condition name.
func (k Kind) String() string {
	switch k {
	case KindBadConfig:
		return "bad_config"
	case KindBadInput:
		return "bad_input"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindPolicyViolation:
		return "policy_violation"
	case KindIoError:
		return "io_error"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ExitCode maps a Kind to the process exit code the driver returns.
func (k Kind) ExitCode() int {
	switch k {
	case KindBadConfig:
		return 2
	case KindBadInput:
		return 2
	case KindInvariantViolation:
		return 3
	case KindPolicyViolation:
		return 4
	case KindIoError:
		return 5
	case KindCancelled:
		return 130
	default:
		return 1
	}
}

// Error is the typed error carried across package boundaries. It always
// reports a Kind, a short human-readable Detail, and an optional
// machine-stable Hint for BadInput/PolicyViolation kinds.
type Error struct {
	Kind   Kind
	Detail string
	Hint   string
	Cause  error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Kind, e.Detail, e.Hint)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, KindBadInput-sentinel-style) work against the
// package-level sentinels below, by kind equality rather than identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}

	return false
}

// Option configures an Error at construction time.
type Option func(*Error)

// Hint attaches a machine-stable remediation hint.
func Hint(hint string) Option {
	return func(e *Error) { e.Hint = hint }
}

// Cause wraps an underlying error.
func Cause(err error) Option {
	return func(e *Error) { e.Cause = err }
}

// New constructs an *Error of the given kind.
func New(kind Kind, detail string, opts ...Option) *Error {
	e := &Error{Kind: kind, Detail: detail}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Newf is New with a formatted detail string.
func Newf(kind Kind, opts []Option, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...), opts...)
}

// sentinel kinds usable with errors.Is(err, errs.BadConfig), etc. Each is a
// zero-detail *Error whose Is method compares by Kind only.
var (
	BadConfig          = &Error{Kind: KindBadConfig}
	BadInput           = &Error{Kind: KindBadInput}
	InvariantViolation = &Error{Kind: KindInvariantViolation}
	PolicyViolation    = &Error{Kind: KindPolicyViolation}
	IoError            = &Error{Kind: KindIoError}
	Cancelled          = &Error{Kind: KindCancelled}
)

// KindOf extracts the Kind from err, returning (kind, true) if err (or
// something in its chain) is an *Error, else (0, false).
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}

	return 0, false
}
