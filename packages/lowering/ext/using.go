package ext

import (
	"sync/atomic"

	"exprfutures-go/packages/lowering/async"
	"exprfutures-go/packages/lowering/config"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

var preferSealedDispose atomic.Bool

func init() {
	preferSealedDispose.Store(true)
}

// Configure sets the reduction settings copied into nodes created afterwards
func Configure(cfg *config.LoweringConfig) {
	preferSealedDispose.Store(cfg.PreferSealedDispose)
}

// Using evaluates Resource, runs Body and disposes the resource when Body
// exits, normally or through an exception. Variable holds the resource
// within Body; a fresh variable is used when it is nil.
type Using struct {
	Variable *ir.Variable
	Resource ir.Node
	Body     ir.Node
	// DisposeAwait is set for await using.
	DisposeAwait *async.AwaitInfo
	// PreferSealedDispose calls Dispose on a sealed resource directly
	// instead of through the interface. The factories copy it from the
	// package configuration.
	PreferSealedDispose bool
}

// NewUsing creates a using statement
func NewUsing(variable *ir.Variable, resource, body ir.Node) (*Using, error) {
	return newUsing(variable, resource, body, false)
}

// NewAwaitUsing creates a using statement that awaits DisposeAsync
func NewAwaitUsing(variable *ir.Variable, resource, body ir.Node) (*Using, error) {
	return newUsing(variable, resource, body, true)
}

func newUsing(variable *ir.Variable, resource, body ir.Node, isAsync bool) (*Using, error) {
	if resource == nil || body == nil {
		return nil, invalid("using resource and body are required")
	}
	rt := resource.Type()
	if variable != nil {
		if err := requireAssignable("using resource", variable.Type(), resource); err != nil {
			return nil, err
		}
		rt = variable.Type()
	}
	itf := runtime.IDisposableType
	if isAsync {
		itf = runtime.IAsyncDisposableType
	}
	if !isAssignable(itf, rt.NonNullable()) {
		return nil, mismatch("using resource of type %s does not implement %s", rt, itf)
	}
	u := &Using{
		Variable:            variable,
		Resource:            resource,
		Body:                body,
		PreferSealedDispose: preferSealedDispose.Load(),
	}
	if isAsync {
		aw, err := async.BindAwaitInfo(disposeMethod(rt, true).Return)
		if err != nil {
			return nil, err
		}
		u.DisposeAwait = aw
	}
	return u, nil
}

// IsAsync reports whether disposal is awaited
func (u *Using) IsAsync() bool { return u.DisposeAwait != nil }

// Kind implements Node interface
func (u *Using) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (u *Using) Type() *types.Type { return u.Body.Type() }

// NodeName implements ir.Named
func (u *Using) NodeName() string {
	if u.IsAsync() {
		return "AwaitUsing"
	}
	return "Using"
}

// Update returns u with the given children
func (u *Using) Update(variable *ir.Variable, resource, body ir.Node) *Using {
	if variable == u.Variable && resource == u.Resource && body == u.Body {
		return u
	}
	res := must(newUsing(variable, resource, body, u.IsAsync()))
	res.PreferSealedDispose = u.PreferSealedDispose
	return res
}

// VisitChildren implements Node interface
func (u *Using) VisitChildren(v ir.Visitor) ir.Node {
	return u.Update(visitVariable(v, u.Variable), ir.Accept(u.Resource, v), ir.Accept(u.Body, v))
}

// disposeMethod returns the Dispose (or DisposeAsync) method declared by
// the resource type itself, or the interface method
func disposeMethod(rt *types.Type, isAsync bool) *types.Method {
	name, itf := runtime.DisposeMethod.Name, runtime.DisposeMethod
	if isAsync {
		name, itf = runtime.DisposeAsyncMethod.Name, runtime.DisposeAsyncMethod
	}
	m, err := types.Binder.LookupMethod(rt.NonNullable(), name)
	if err != nil || m.Static {
		return itf
	}
	return m
}

// Reduce implements ir.Extension
func (u *Using) Reduce() ir.Node {
	v := u.Variable
	if v == nil {
		v = ir.NewVariable(u.Resource.Type(), "resource")
	}
	try := ir.NewTry(u.Type(), u.Body, u.dispose(v), nil)
	if u.Variable != nil && ir.IsFree(u.Resource, u.Variable) {
		// the resource reads an outer variable that the using scope shadows
		tmp := ir.NewVariable(u.Resource.Type(), "resource")
		inner := ir.NewBlockTyped(u.Type(), []*ir.Variable{v}, ir.NewAssign(v, convertIfNeeded(tmp, v.Type())), try)
		return ir.NewBlockTyped(u.Type(), []*ir.Variable{tmp}, ir.NewAssign(tmp, u.Resource), inner)
	}
	return ir.NewBlockTyped(u.Type(), []*ir.Variable{v}, ir.NewAssign(v, convertIfNeeded(u.Resource, v.Type())), try)
}

// dispose builds the finally block disposing v
func (u *Using) dispose(v *ir.Variable) ir.Node {
	rt := v.Type()
	m := disposeMethod(rt, u.IsAsync())
	itf := runtime.DisposeMethod
	if u.IsAsync() {
		itf = runtime.DisposeAsyncMethod
	}
	call := func(recv ir.Node) ir.Node {
		var c ir.Node
		if m != itf && (recv.Type().IsValueType() || recv.Type().Sealed && u.PreferSealedDispose) {
			c = ir.NewCall(recv, m)
		} else {
			c = ir.NewCall(ir.Convert(recv, itf.DeclaringType), itf)
		}
		if u.IsAsync() {
			c = must(async.NewAwait(c, u.DisposeAwait))
		}
		return voidBlock(c)
	}
	switch {
	case rt.IsNullable():
		return ir.IfThen(ir.NewProperty(v, rt.Property("HasValue")), call(ir.NewProperty(v, rt.Property("Value"))))
	case rt.IsValueType():
		return call(v)
	}
	return ir.IfThen(ir.IsNotNull(v), call(v))
}

// Lock runs Body while holding the monitor of Object
type Lock struct {
	Object ir.Node
	Body   ir.Node
}

// NewLock creates a lock statement
func NewLock(object, body ir.Node) (*Lock, error) {
	if object == nil || body == nil {
		return nil, invalid("lock object and body are required")
	}
	if object.Type().IsValueType() || object.Type().IsVoid() {
		return nil, mismatch("lock requires a reference type, got %s", object.Type())
	}
	return &Lock{
		Object: object,
		Body:   body,
	}, nil
}

// Kind implements Node interface
func (l *Lock) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (l *Lock) Type() *types.Type { return l.Body.Type() }

// NodeName implements ir.Named
func (l *Lock) NodeName() string { return "Lock" }

// AwaitForbiddenIn returns the lock body: the monitor is owned by the
// thread that entered it, so it cannot be held across a suspension
func (l *Lock) AwaitForbiddenIn() []ir.Node { return []ir.Node{l.Body} }

// Update returns l with the given children
func (l *Lock) Update(object, body ir.Node) *Lock {
	if object == l.Object && body == l.Body {
		return l
	}
	return must(NewLock(object, body))
}

// VisitChildren implements Node interface
func (l *Lock) VisitChildren(v ir.Visitor) ir.Node {
	return l.Update(ir.Accept(l.Object, v), ir.Accept(l.Body, v))
}

// Reduce implements ir.Extension
func (l *Lock) Reduce() ir.Node {
	obj := ir.NewVariable(l.Object.Type(), "lockObj")
	taken := ir.NewVariable(types.Bool, "lockTaken")
	body := ir.NewBlockTyped(l.Type(), nil,
		ir.NewCall(nil, runtime.MonitorEnter, ir.Convert(obj, types.Object), taken),
		l.Body)
	release := ir.IfThen(taken, ir.NewCall(nil, runtime.MonitorExit, ir.Convert(obj, types.Object)))
	return ir.NewBlockTyped(l.Type(), []*ir.Variable{obj, taken},
		ir.NewAssign(obj, l.Object),
		ir.NewAssign(taken, ir.Const(false)),
		ir.NewTry(l.Type(), body, release, nil))
}
