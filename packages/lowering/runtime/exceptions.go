package runtime

import (
	"errors"

	"exprfutures-go/packages/lowering/types"
)

// Exception is a thrown value. It doubles as the Go error propagated by
// the evaluator while the exception unwinds.
type Exception struct {
	Type    *types.Type
	Message string
	// Data carries the payload of exceptions such as
	// SwitchExpressionException.
	Data any
}

func (e *Exception) Error() string {
	if e.Message == "" {
		return e.Type.String()
	}
	return e.Type.String() + ": " + e.Message
}

// RuntimeType implements Typed
func (e *Exception) RuntimeType() *types.Type { return e.Type }

// Exception types
var (
	ExceptionType                 = types.NewClass("Exception", nil)
	InvalidOperationExceptionType = types.NewClass("InvalidOperationException", ExceptionType)
	InvalidCastExceptionType      = types.NewClass("InvalidCastException", ExceptionType)
	NullReferenceExceptionType    = types.NewClass("NullReferenceException", ExceptionType)
	IndexOutOfRangeExceptionType  = types.NewClass("IndexOutOfRangeException", ExceptionType)
	DivideByZeroExceptionType     = types.NewClass("DivideByZeroException", ExceptionType)
	SwitchExpressionExceptionType = types.NewClass("SwitchExpressionException", InvalidOperationExceptionType)
	ArgumentExceptionType         = types.NewClass("ArgumentException", ExceptionType)
)

func init() {
	for _, t := range []*types.Type{
		ExceptionType,
		InvalidOperationExceptionType,
		InvalidCastExceptionType,
		NullReferenceExceptionType,
		IndexOutOfRangeExceptionType,
		DivideByZeroExceptionType,
		ArgumentExceptionType,
	} {
		t := t
		t.DefineConstructor([]*types.Parameter{types.Param("message", types.String)}, func(_ any, args []any) (any, error) {
			msg, _ := args[0].(string)
			return &Exception{Type: t, Message: msg}, nil
		})
	}
	SwitchExpressionExceptionType.DefineConstructor([]*types.Parameter{types.Param("unmatchedValue", types.Object)}, func(_ any, args []any) (any, error) {
		return &Exception{Type: SwitchExpressionExceptionType, Message: "unmatched value: " + ToString(args[0]), Data: args[0]}, nil
	})
	ExceptionType.DefineProperty("Message", types.String, func(recv any, _ []any) (any, error) {
		return recv.(*Exception).Message, nil
	}, nil)
}

// NewException creates an exception of type t
func NewException(t *types.Type, msg string) *Exception {
	return &Exception{Type: t, Message: msg}
}

// AsException converts a Go error surfaced by a member implementation into
// a thrown exception. Exceptions pass through unchanged.
func AsException(err error) *Exception {
	var ex *Exception
	if errors.As(err, &ex) {
		return ex
	}
	if errors.Is(err, types.ErrNoValue) {
		return NewException(InvalidOperationExceptionType, err.Error())
	}
	return NewException(ExceptionType, err.Error())
}
