package async

import (
	"github.com/pkg/errors"

	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// AwaitInfo holds the members of the await pattern bound for an operand
// type. GetAwaiter is either an instance method without parameters or a
// static method taking the operand.
type AwaitInfo struct {
	OperandType *types.Type
	GetAwaiter  *types.Method
	IsCompleted *types.Property
	GetResult   *types.Method
}

// AwaiterType returns the type of the awaiter produced by GetAwaiter
func (i *AwaitInfo) AwaiterType() *types.Type { return i.GetAwaiter.Return }

// ResultType returns the type of the await expression
func (i *AwaitInfo) ResultType() *types.Type { return i.GetResult.Return }

// BindAwaitInfo resolves the await pattern on operandType through the
// binder
func BindAwaitInfo(operandType *types.Type) (*AwaitInfo, error) {
	if operandType == nil || operandType.IsVoid() {
		return nil, errors.Wrap(ErrAwaitPattern, "cannot await a void expression")
	}
	getAwaiter, err := types.Binder.LookupMethod(operandType, "GetAwaiter")
	if err != nil {
		return nil, errors.Wrapf(ErrAwaitPattern, "%s: %v", operandType, err)
	}
	awaiter := getAwaiter.Return
	isCompleted, err := types.Binder.LookupProperty(awaiter, "IsCompleted")
	if err != nil {
		return nil, errors.Wrapf(ErrAwaitPattern, "%s: %v", awaiter, err)
	}
	getResult, err := types.Binder.LookupMethod(awaiter, "GetResult")
	if err != nil {
		return nil, errors.Wrapf(ErrAwaitPattern, "%s: %v", awaiter, err)
	}
	return NewAwaitInfo(operandType, getAwaiter, isCompleted, getResult)
}

// NewAwaitInfo checks that the given members form the await pattern for
// operandType
func NewAwaitInfo(operandType *types.Type, getAwaiter *types.Method, isCompleted *types.Property, getResult *types.Method) (*AwaitInfo, error) {
	if getAwaiter == nil || isCompleted == nil || getResult == nil {
		return nil, errors.Wrap(ErrAwaitPattern, "GetAwaiter, IsCompleted and GetResult are required")
	}
	switch {
	case getAwaiter.IsGenericDefinition():
		return nil, errors.Wrapf(ErrAwaitPattern, "%s is an open generic method", getAwaiter)
	case getAwaiter.Static:
		if len(getAwaiter.Params) != 1 || getAwaiter.Params[0].ByRef || !types.Binder.IsAssignable(getAwaiter.Params[0].Type, operandType) {
			return nil, errors.Wrapf(ErrAwaitPattern, "static %s must take a single %s argument", getAwaiter, operandType)
		}
	default:
		if len(getAwaiter.Params) != 0 {
			return nil, errors.Wrapf(ErrAwaitPattern, "%s must not take parameters", getAwaiter)
		}
		if !types.Binder.IsAssignable(getAwaiter.DeclaringType, operandType) {
			return nil, errors.Wrapf(ErrAwaitPattern, "%s is not declared on %s", getAwaiter, operandType)
		}
	}
	awaiter := getAwaiter.Return
	if awaiter.IsVoid() {
		return nil, errors.Wrapf(ErrAwaitPattern, "%s returns void", getAwaiter)
	}
	if !types.Binder.IsAssignable(runtime.INotifyCompletionType, awaiter) {
		return nil, errors.Wrapf(ErrAwaitPattern, "awaiter %s does not implement %s", awaiter, runtime.INotifyCompletionType)
	}
	if isCompleted.Type != types.Bool || !isCompleted.CanRead() || isCompleted.IsIndexer() || isCompleted.Static {
		return nil, errors.Wrapf(ErrAwaitPattern, "%s.IsCompleted must be a readable bool instance property", awaiter)
	}
	if !types.Binder.IsAssignable(isCompleted.DeclaringType, awaiter) {
		return nil, errors.Wrapf(ErrAwaitPattern, "IsCompleted is not declared on %s", awaiter)
	}
	if getResult.Static || len(getResult.Params) != 0 || getResult.IsGenericDefinition() {
		return nil, errors.Wrapf(ErrAwaitPattern, "%s.GetResult must be an instance method without parameters", awaiter)
	}
	if !types.Binder.IsAssignable(getResult.DeclaringType, awaiter) {
		return nil, errors.Wrapf(ErrAwaitPattern, "GetResult is not declared on %s", awaiter)
	}
	return &AwaitInfo{
		OperandType: operandType,
		GetAwaiter:  getAwaiter,
		IsCompleted: isCompleted,
		GetResult:   getResult,
	}, nil
}

// getAwaiter creates the call producing the awaiter of operand
func (i *AwaitInfo) getAwaiter(operand ir.Node) ir.Node {
	if i.GetAwaiter.Static {
		return ir.NewCall(nil, i.GetAwaiter, ir.Convert(operand, i.GetAwaiter.Params[0].Type))
	}
	return ir.NewCall(operand, i.GetAwaiter)
}

// Await suspends the enclosing async lambda until its operand completes
type Await struct {
	Operand ir.Node
	Info    *AwaitInfo
}

// NewAwait creates an await expression. A nil info binds the await pattern
// of the operand type.
func NewAwait(operand ir.Node, info *AwaitInfo) (*Await, error) {
	if operand == nil {
		return nil, errors.Wrap(ErrAwaitPattern, "await operand is missing")
	}
	if info == nil {
		var err error
		if info, err = BindAwaitInfo(operand.Type()); err != nil {
			return nil, err
		}
	} else if !types.Binder.IsAssignable(info.OperandType, operand.Type()) {
		return nil, errors.Wrapf(ErrTypeMismatch, "operand of type %s does not match await info for %s", operand.Type(), info.OperandType)
	}
	return &Await{
		Operand: operand,
		Info:    info,
	}, nil
}

// Kind implements Node interface
func (a *Await) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (a *Await) Type() *types.Type { return a.Info.ResultType() }

// NodeName implements ir.Named
func (a *Await) NodeName() string { return "Await" }

// Update returns a with the given operand
func (a *Await) Update(operand ir.Node) *Await {
	if operand == a.Operand {
		return a
	}
	res, err := NewAwait(operand, a.Info)
	if err != nil {
		panic(errors.Wrap(err, "update produced an invalid node"))
	}
	return res
}

// VisitChildren implements Node interface
func (a *Await) VisitChildren(v ir.Visitor) ir.Node {
	return a.Update(ir.Accept(a.Operand, v))
}

// Reduce returns the blocking form operand.GetAwaiter().GetResult(). Async
// lambdas never reduce their awaits this way; the blocking form serves
// analyses that reduce arbitrary trees and fails at run time when the
// operand has not completed.
func (a *Await) Reduce() ir.Node {
	return ir.NewCall(a.Info.getAwaiter(a.Operand), a.Info.GetResult)
}

// IsAwait reports whether n is an await expression
func IsAwait(n ir.Node) bool {
	_, ok := n.(*Await)
	return ok
}

// ContainsAwait reports whether n contains an await outside nested lambdas
func ContainsAwait(n ir.Node) bool {
	found := false
	var v ir.Visitor
	v = ir.VisitorFunc(func(c ir.Node) ir.Node {
		if found {
			return c
		}
		switch c.(type) {
		case *Await:
			found = true
			return c
		case *ir.LambdaExpr, *AsyncLambda:
			return c
		}
		return c.VisitChildren(v)
	})
	ir.Accept(n, v)
	return found
}
