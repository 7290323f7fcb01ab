// Package joinerr defines the error taxonomy the join engine's core reports
// through (spec §7): a small Kind enum plus a wrapping Error type so callers
// can branch with errors.As/errors.Is the same way the rest of the module's
// stdlib-errors-based error handling works. No third-party error library is
// used anywhere in this codebase's ancestry, so there is nothing to ground
// this on beyond errors.As/fmt.Errorf wrapping.
package joinerr

import (
	"errors"
	"fmt"
)

// Kind tags which class of failure occurred.
type Kind int

const (
	InvalidArgument Kind = iota
	InvariantViolated
	CapacityExceeded
	CryptoFailure
	OutOfMemory
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case InvariantViolated:
		return "invariant violated"
	case CapacityExceeded:
		return "capacity exceeded"
	case CryptoFailure:
		return "crypto failure"
	case OutOfMemory:
		return "out of memory"
	default:
		return "unknown error"
	}
}

// Error wraps an underlying cause with the operation that failed and its
// Kind, so CapacityExceeded errors can carry the offending size (spec §7's
// propagation policy) while still composing with errors.As.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error whose cause is fmt.Errorf(format, args...).
func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap builds an *Error around an existing error.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
