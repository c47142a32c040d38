// Package stagerr defines the error taxonomy shared by the store, the
// mutation algebra, and the FS callback layer. Kind is platform-agnostic;
// translation to a concrete errno happens at the FS boundary (pkg/fs),
// which is the only layer that knows about cgofuse's error constants.
package stagerr

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// Kind classifies why an operation failed, independent of how the failure
// is eventually surfaced to the calling process.
type Kind int

const (
	// IOError is the default for unclassified store/OS failures.
	IOError Kind = iota
	NotFound
	AlreadyExists
	InvalidPath
	RecursiveLink
	BadTag
	BadTagGroup
	PermissionDenied
	NotSupported
	NoAttribute
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not-found"
	case AlreadyExists:
		return "already-exists"
	case InvalidPath:
		return "invalid-path"
	case RecursiveLink:
		return "recursive-link"
	case BadTag:
		return "bad-tag"
	case BadTagGroup:
		return "bad-tag-group"
	case PermissionDenied:
		return "permission-denied"
	case NotSupported:
		return "not-supported"
	case NoAttribute:
		return "no-attribute"
	default:
		return "io-error"
	}
}

// Error is a Kind plus the underlying cause, if any.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Kind.String() + ": " + e.cause.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a bare Error of the given kind.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Wrap attaches kind to an existing error, preserving it as the cause via
// github.com/pkg/errors so callers retain a stack trace at the wrap site.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return New(kind)
	}
	return &Error{Kind: kind, cause: errors.WithStack(cause)}
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, defaulting
// to IOError for anything else — the same fallback the original's generic
// FuseErrno conversion uses for unclassified failures.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return IOError
}
