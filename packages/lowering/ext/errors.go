package ext

import (
	"github.com/pkg/errors"
)

// Errors returned by node factories. Factories wrap them with details, so
// callers should test with errors.Is.
var (
	ErrTypeMismatch       = errors.New("type mismatch")
	ErrArgumentCount      = errors.New("wrong number of arguments")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrDuplicateVariable  = errors.New("duplicate variable")
	ErrDuplicateTestValue = errors.New("duplicate test value")
	ErrDuplicateParameter = errors.New("duplicate parameter")
	ErrNotAssignable      = errors.New("expression is not assignable")
	ErrUnsupported        = errors.New("unsupported combination")
)

func mismatch(format string, args ...any) error {
	return errors.Wrapf(ErrTypeMismatch, format, args...)
}

func invalid(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

func unsupported(format string, args ...any) error {
	return errors.Wrapf(ErrUnsupported, format, args...)
}

// must panics when a factory fails. Update uses it because it only
// rebuilds nodes from children of the same shape.
func must[T any](n T, err error) T {
	if err != nil {
		panic(errors.Wrap(err, "update produced an invalid node"))
	}
	return n
}

func wrapf(sentinel error, format string, args ...any) error {
	return errors.Wrapf(sentinel, format, args...)
}
