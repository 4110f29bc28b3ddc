package async

import (
	"github.com/pkg/errors"

	"exprfutures-go/packages/lowering/config"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// AsyncLambda is a lambda whose body may suspend at Await nodes. Its
// delegate type returns void, Task or Task<T>; the body yields the T.
type AsyncLambda struct {
	Name   string
	Params []*ir.Variable
	Body   ir.Node
	// Config is what Reduce lowers with. NewAsyncLambda takes it from the
	// package configuration current at creation.
	Config *config.LoweringConfig
	typ    *types.Type
}

// awaitFence is implemented by extension nodes with regions in which
// awaits are not allowed, such as lock bodies and catch filters
type awaitFence interface {
	AwaitForbiddenIn() []ir.Node
}

// NewAsyncLambda creates an async lambda of the delegate type t
func NewAsyncLambda(t *types.Type, body ir.Node, params ...*ir.Variable) (*AsyncLambda, error) {
	if t == nil || t.Invoke == nil {
		return nil, errors.Wrapf(ErrTypeMismatch, "%s is not a delegate type", t)
	}
	if body == nil {
		return nil, errors.New("async lambda body is missing")
	}
	sig := t.Invoke
	if len(params) != len(sig.Params) {
		return nil, errors.Wrapf(ErrTypeMismatch, "%s expects %d parameters, got %d", t, len(sig.Params), len(params))
	}
	seen := map[*ir.Variable]bool{}
	for i, p := range params {
		switch {
		case p == nil:
			return nil, errors.Errorf("parameter %d is nil", i)
		case seen[p]:
			return nil, errors.Errorf("parameter %s is declared twice", p)
		case p.ByRef || sig.Params[i].ByRef:
			return nil, errors.Errorf("async lambdas cannot have by-reference parameter %s", p)
		case p.Type() != sig.Params[i].Type:
			return nil, errors.Wrapf(ErrTypeMismatch, "parameter %s of type %s does not match %s", p, p.Type(), sig.Params[i].Type)
		}
		seen[p] = true
	}
	ret := sig.Return
	if !ret.IsVoid() && runtime.TaskResultType(ret) == nil {
		return nil, errors.Wrapf(ErrReturnType, "%s is neither void, Task nor Task<T>", ret)
	}
	l := &AsyncLambda{
		Params: params,
		Body:   body,
		Config: currentConfig(),
		typ:    t,
	}
	if elem := l.ResultType(); !elem.IsVoid() && !types.Binder.IsAssignable(elem, body.Type()) {
		return nil, errors.Wrapf(ErrTypeMismatch, "body of type %s does not match result type %s", body.Type(), elem)
	}
	if err := checkAwaits(body); err != nil {
		return nil, err
	}
	return l, nil
}

// checkAwaits reports awaits in lock bodies, catch filters and nested
// lambdas that are not async
func checkAwaits(body ir.Node) error {
	var err error
	var v ir.Visitor
	v = ir.VisitorFunc(func(n ir.Node) ir.Node {
		if err != nil {
			return n
		}
		switch x := n.(type) {
		case *AsyncLambda:
			return n
		case *ir.LambdaExpr:
			if ir.Contains(x.Body, IsAwait) {
				err = errors.Wrap(ErrForbiddenAwait, "await inside a lambda that is not async")
			}
			return n
		case *ir.TryExpr:
			for _, h := range x.Handlers {
				if ContainsAwait(h.Filter) {
					err = errors.Wrap(ErrForbiddenAwait, "await inside a catch filter")
					return n
				}
			}
		case awaitFence:
			for _, r := range x.AwaitForbiddenIn() {
				if ContainsAwait(r) {
					err = errors.Wrapf(ErrForbiddenAwait, "await inside %s", regionName(n, r))
					return n
				}
			}
		}
		return n.VisitChildren(v)
	})
	ir.Accept(body, v)
	return err
}

func regionName(owner, region ir.Node) string {
	name := "an extension node"
	if named, ok := owner.(ir.Named); ok {
		name = named.NodeName()
	}
	if region.Type() == types.Bool {
		return "a filter of " + name
	}
	return "the body of " + name
}

// Kind implements Node interface
func (l *AsyncLambda) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (l *AsyncLambda) Type() *types.Type { return l.typ }

// NodeName implements ir.Named
func (l *AsyncLambda) NodeName() string { return "AsyncLambda" }

// ReturnType returns the return type of the delegate
func (l *AsyncLambda) ReturnType() *types.Type { return l.typ.Invoke.Return }

// ResultType returns the type produced by the body: T for Task<T>, void
// otherwise
func (l *AsyncLambda) ResultType() *types.Type {
	ret := l.ReturnType()
	if ret.IsVoid() {
		return types.Void
	}
	return runtime.TaskResultType(ret)
}

// Update returns l with the given parameters and body
func (l *AsyncLambda) Update(params []*ir.Variable, body ir.Node) *AsyncLambda {
	if body == l.Body && sameParams(params, l.Params) {
		return l
	}
	res, err := NewAsyncLambda(l.typ, body, params...)
	if err != nil {
		panic(errors.Wrap(err, "update produced an invalid node"))
	}
	res.Name = l.Name
	res.Config = l.Config
	return res
}

// VisitChildren implements Node interface
func (l *AsyncLambda) VisitChildren(v ir.Visitor) ir.Node {
	var params []*ir.Variable
	for i, p := range l.Params {
		np, _ := ir.Accept(p, v).(*ir.Variable)
		if np == nil {
			panic("visitor replaced a parameter by a non-variable")
		}
		if params == nil && np != p {
			params = make([]*ir.Variable, len(l.Params))
			copy(params, l.Params[:i])
		}
		if params != nil {
			params[i] = np
		}
	}
	if params == nil {
		params = l.Params
	}
	return l.Update(params, ir.Accept(l.Body, v))
}

// Reduce implements ir.Extension. It lowers the lambda with the package
// configuration.
func (l *AsyncLambda) Reduce() ir.Node {
	res, err := Lower(l, l.Config)
	if err != nil {
		panic(errors.Wrapf(err, "lowering %s", l.NodeName()))
	}
	return res
}

func sameParams(a, b []*ir.Variable) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
