// Package pylock provides the shared value types used across the
// resolver, distribution database, build dispatch, and installer
// subpackages: the error domain type, content digests, and the
// persisted Lock data model.
package pylock

import (
	"errors"
	"strings"
)

// Error is the pylock error domain type.
//
// Errors coming from pylock components should be able to be inspected
// as ([errors.As]) an *Error at some point in the error chain.
//
// Implementers of pylock components should create an Error at the
// system boundary (e.g. a failed HTTP request, a corrupt cache entry, a
// non-zero build backend exit) and intermediate layers should not wrap
// in another Error except to add additional [ErrorKind] information.
// Prefer [fmt.Errorf] with a "%w" verb over constructing another Error.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Message string
	Op      string
}

// Assert this implements all the cool features.
var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	switch e.Kind {
	case ErrUser,
		ErrResolution,
		ErrNetworkTransient,
		ErrNetworkPermanent,
		ErrCache,
		ErrBuild,
		ErrInstall,
		ErrLockfile:
		b.WriteString(string(e.Kind))
	default:
		b.WriteString("???")
	}
	b.WriteString("]: ")
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Op == "" && e.Message == "" {
		b.Reset()
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is].
//
// It compares the error kind. Callers should compare against a declared
// [ErrorKind] over a specific error.
func (e *Error) Is(kind error) bool {
	switch kind {
	case ErrRetryable:
		return errors.Is(e, ErrNetworkTransient) || errors.Is(e, ErrCache)
	default:
	}
	return errors.Is(e.Kind, kind)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error {
	return e.Inner
}

// ErrorKind represents classes of errors to be checked against, mapped
// onto the error taxonomy of the resolver's design: user input,
// resolution failure, network transient/permanent, cache corruption,
// build failure, install failure, and lockfile problems.
//
// If an error is unsure which kind to use, ErrResolution should not be
// assumed; prefer the most specific kind that still applies.
type ErrorKind string

// Defined error kinds.
var (
	ErrUser             = ErrorKind("user input")        // invalid requirement, unknown extra, contradictory flags
	ErrResolution       = ErrorKind("resolution")        // no solution, conflicting requirements
	ErrNetworkTransient = ErrorKind("network transient") // 5xx, reset, timeout: safe to retry
	ErrNetworkPermanent = ErrorKind("network permanent") // 404, exhausted credentials
	ErrCache            = ErrorKind("cache")             // corrupt entry, cache format version mismatch
	ErrBuild            = ErrorKind("build")             // PEP 517/660 backend failure
	ErrInstall          = ErrorKind("install")           // RECORD mismatch, unpack failure
	ErrLockfile         = ErrorKind("lockfile")          // unknown version, unparseable, out-of-date

	// ErrRetryable should only be used for an [Is] comparison. It is
	// true for errors that local retry logic has already classified as
	// safe to retry once more (transient network, discardable cache
	// entry) and false for everything else.
	ErrRetryable = ErrorKind("retryable")
)

// Error implements error.
func (e ErrorKind) Error() string {
	return string(e)
}
