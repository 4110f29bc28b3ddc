package async

import (
	"github.com/pkg/errors"
)

// Errors returned by the factories of this package
var (
	ErrAwaitPattern   = errors.New("operand does not implement the await pattern")
	ErrForbiddenAwait = errors.New("await is not allowed here")
	ErrReturnType     = errors.New("invalid async return type")
	ErrTypeMismatch   = errors.New("type mismatch")
)
