// Package callerr holds the error classes shared by the call session packages.
package callerr

import "github.com/pkg/errors"

// ErrFailedPrecondition marks an operation that was called outside its valid
// phase window. It signals a bug in the caller, not a runtime condition.
var ErrFailedPrecondition = errors.New("failed precondition")

// FailedPrecondition wraps ErrFailedPrecondition with a message.
func FailedPrecondition(format string, args ...any) error {
	return errors.Wrapf(ErrFailedPrecondition, format, args...)
}

// IsFailedPrecondition reports whether err is a sequencing violation.
func IsFailedPrecondition(err error) bool {
	return errors.Is(err, ErrFailedPrecondition)
}
