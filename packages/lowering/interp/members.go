package interp

import (
	"fmt"

	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// closure is the runtime value of a lambda expression
type closure struct {
	in     *Interpreter
	lambda *ir.LambdaExpr
	env    *env
}

// RuntimeType implements runtime.Typed
func (c *closure) RuntimeType() *types.Type { return c.lambda.Type() }

// Invoke implements runtime.Delegate. Arguments for by-ref parameters are
// runtime.Ref values.
func (c *closure) Invoke(args []any) (any, error) {
	if len(args) != len(c.lambda.Params) {
		panic(fmt.Sprintf("lambda expects %d arguments, got %d", len(c.lambda.Params), len(args)))
	}
	scope := newEnv(c.env)
	for i, p := range c.lambda.Params {
		if p.ByRef {
			ref, ok := args[i].(runtime.Ref)
			if !ok {
				ref = &runtime.Cell{Value: args[i]}
			}
			scope.vars[p] = ref
			continue
		}
		scope.vars[p] = &runtime.Cell{Value: runtime.Copy(args[i])}
	}
	v, err := c.in.exec(scope, c.lambda.Body, nil)
	if j, ok := asJump(err); ok {
		panic(fmt.Sprintf("jump to %s escaped lambda", j.target))
	}
	return result(c.lambda.ReturnType(), v, err)
}

func (c *closure) String() string {
	return c.lambda.Type().String()
}

// findImpl looks up the implementation of a virtual or interface member on
// the runtime type t
func findImpl(t *types.Type, name string, arity int) *types.Method {
	match := func(m *types.Method) bool {
		return m != nil && m.Impl != nil && m.Name == name && len(m.Params) == arity
	}
	for c := t; c != nil; c = c.Base {
		for _, m := range c.Methods {
			if match(m) {
				return m
			}
		}
		for _, p := range c.Properties {
			if match(p.Get) {
				return p.Get
			}
			if match(p.Set) {
				return p.Set
			}
		}
	}
	return nil
}

// dispatch resolves the method to run for a call on recv
func dispatch(m *types.Method, recv any) (*types.Method, error) {
	if m.Static || (m.Impl != nil && !m.Virtual) {
		return m, nil
	}
	if recv != nil {
		if impl := findImpl(runtime.TypeOf(recv), m.Name, len(m.Params)); impl != nil {
			return impl, nil
		}
	}
	if m.Impl != nil {
		return m, nil
	}
	return nil, runtime.NewException(runtime.InvalidOperationExceptionType, fmt.Sprintf("no implementation of %s for %s", m, runtime.TypeOf(recv)))
}

// invokeMethod runs a method implementation. Panics raised by the
// implementation surface as exceptions.
func (in *Interpreter) invokeMethod(m *types.Method, recv any, args []any) (res any, err error) {
	impl, err := dispatch(m, recv)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, runtime.NewException(runtime.ExceptionType, fmt.Sprintf("%s: %v", impl, r))
		}
	}()
	res, err = impl.Impl(recv, args)
	if err != nil {
		if _, ok := asJump(err); !ok {
			err = runtime.AsException(err)
		}
		return nil, err
	}
	return res, nil
}

func (in *Interpreter) receiver(e *env, obj ir.Node) (any, error) {
	if obj == nil {
		return nil, nil
	}
	v, err := in.exec(e, obj, nil)
	if err != nil {
		return nil, err
	}
	if v == nil && !obj.Type().IsNullable() {
		return nil, nullReference(obj.Type().String() + " receiver")
	}
	return v, nil
}

func (in *Interpreter) args(e *env, params []*types.Parameter, args []ir.Node) ([]any, error) {
	res := make([]any, len(args))
	for i, a := range args {
		if params[i].ByRef {
			ref, err := in.location(e, a)
			if err != nil {
				return nil, err
			}
			res[i] = ref
			continue
		}
		v, err := in.exec(e, a, nil)
		if err != nil {
			return nil, err
		}
		res[i] = runtime.Copy(v)
	}
	return res, nil
}

func (in *Interpreter) call(e *env, c *ir.CallExpr) (any, error) {
	recv, err := in.receiver(e, c.Object)
	if err != nil {
		return nil, err
	}
	args, err := in.args(e, c.Method.Params, c.Args)
	if err != nil {
		return nil, err
	}
	res, err := in.invokeMethod(c.Method, recv, args)
	return result(c.Type(), res, err)
}

func (in *Interpreter) invoke(e *env, i *ir.InvokeExpr) (any, error) {
	d, err := in.exec(e, i.Expr, nil)
	if err != nil {
		return nil, err
	}
	del, ok := d.(runtime.Delegate)
	if !ok {
		return nil, nullReference("delegate")
	}
	args, err := in.args(e, i.Expr.Type().Invoke.Params, i.Args)
	if err != nil {
		return nil, err
	}
	res, err := del.Invoke(args)
	if err != nil {
		return nil, runtime.AsException(err)
	}
	return result(i.Type(), res, nil)
}

func (in *Interpreter) member(e *env, m *ir.MemberExpr) (any, error) {
	recv, err := in.receiver(e, m.Object)
	if err != nil {
		return nil, err
	}
	if m.Field != nil {
		obj, ok := recv.(*runtime.Object)
		if !ok {
			panic(fmt.Sprintf("field %s read from %T", m.Field.Name, recv))
		}
		return obj.Fields[m.Field.Name], nil
	}
	if !m.Property.CanRead() {
		panic(fmt.Sprintf("property %s has no getter", m.Property.Name))
	}
	return in.invokeMethod(m.Property.Get, recv, nil)
}

func indexOutOfRange(i int) error {
	return runtime.NewException(runtime.IndexOutOfRangeExceptionType, fmt.Sprintf("index %d was outside the bounds of the array", i))
}

func (in *Interpreter) index(e *env, x *ir.IndexExpr) (any, error) {
	recv, err := in.receiver(e, x.Object)
	if err != nil {
		return nil, err
	}
	if x.Indexer == nil {
		idx, err := in.exec(e, x.Args[0], nil)
		if err != nil {
			return nil, err
		}
		arr := recv.(*runtime.Array)
		i := idx.(int)
		if i < 0 || i >= arr.Len() {
			return nil, indexOutOfRange(i)
		}
		return arr.Items[i], nil
	}
	args, err := in.args(e, x.Indexer.Params, x.Args)
	if err != nil {
		return nil, err
	}
	return in.invokeMethod(x.Indexer.Get, recv, args)
}

func (in *Interpreter) assign(e *env, a *ir.AssignExpr) (any, error) {
	switch l := a.Left.(type) {
	case *ir.Variable:
		ref := e.lookup(l)
		v, err := in.exec(e, a.Right, nil)
		if err != nil {
			return nil, err
		}
		v = runtime.Copy(v)
		ref.Set(v)
		return v, nil
	case *ir.MemberExpr:
		recv, err := in.receiver(e, l.Object)
		if err != nil {
			return nil, err
		}
		v, err := in.exec(e, a.Right, nil)
		if err != nil {
			return nil, err
		}
		v = runtime.Copy(v)
		if l.Field != nil {
			recv.(*runtime.Object).Fields[l.Field.Name] = v
			return v, nil
		}
		if _, err := in.invokeMethod(l.Property.Set, recv, []any{v}); err != nil {
			return nil, err
		}
		return v, nil
	case *ir.IndexExpr:
		recv, err := in.receiver(e, l.Object)
		if err != nil {
			return nil, err
		}
		var args []any
		if l.Indexer == nil {
			idx, err := in.exec(e, l.Args[0], nil)
			if err != nil {
				return nil, err
			}
			args = []any{idx}
		} else if args, err = in.args(e, l.Indexer.Params, l.Args); err != nil {
			return nil, err
		}
		v, err := in.exec(e, a.Right, nil)
		if err != nil {
			return nil, err
		}
		v = runtime.Copy(v)
		if l.Indexer == nil {
			arr := recv.(*runtime.Array)
			i := args[0].(int)
			if i < 0 || i >= arr.Len() {
				return nil, indexOutOfRange(i)
			}
			arr.Items[i] = v
			return v, nil
		}
		if _, err := in.invokeMethod(l.Indexer.Set, recv, append(args, v)); err != nil {
			return nil, err
		}
		return v, nil
	}
	panic(fmt.Sprintf("cannot assign to %s", a.Left.Kind()))
}

// location evaluates n as a storage location for a by-ref argument.
// Expressions that do not denote a location are passed as temporaries.
func (in *Interpreter) location(e *env, n ir.Node) (runtime.Ref, error) {
	switch x := n.(type) {
	case *ir.Variable:
		return e.lookup(x), nil
	case *ir.MemberExpr:
		recv, err := in.receiver(e, x.Object)
		if err != nil {
			return nil, err
		}
		if x.Field != nil {
			return &fieldRef{obj: recv.(*runtime.Object), name: x.Field.Name}, nil
		}
		return &accessorRef{in: in, prop: x.Property, recv: recv}, nil
	case *ir.IndexExpr:
		recv, err := in.receiver(e, x.Object)
		if err != nil {
			return nil, err
		}
		if x.Indexer == nil {
			idx, err := in.exec(e, x.Args[0], nil)
			if err != nil {
				return nil, err
			}
			arr, i := recv.(*runtime.Array), idx.(int)
			if i < 0 || i >= arr.Len() {
				return nil, indexOutOfRange(i)
			}
			return &elemRef{arr: arr, i: i}, nil
		}
		args, err := in.args(e, x.Indexer.Params, x.Args)
		if err != nil {
			return nil, err
		}
		return &accessorRef{in: in, prop: x.Indexer, recv: recv, args: args}, nil
	}
	v, err := in.exec(e, n, nil)
	if err != nil {
		return nil, err
	}
	return &runtime.Cell{Value: runtime.Copy(v)}, nil
}

type fieldRef struct {
	obj  *runtime.Object
	name string
}

func (r *fieldRef) Get() any  { return r.obj.Fields[r.name] }
func (r *fieldRef) Set(v any) { r.obj.Fields[r.name] = v }

type elemRef struct {
	arr *runtime.Array
	i   int
}

func (r *elemRef) Get() any  { return r.arr.Items[r.i] }
func (r *elemRef) Set(v any) { r.arr.Items[r.i] = v }

// accessorRef writes through a property or indexer setter
type accessorRef struct {
	in   *Interpreter
	prop *types.Property
	recv any
	args []any
}

func (r *accessorRef) Get() any {
	v, err := r.in.invokeMethod(r.prop.Get, r.recv, r.args)
	if err != nil {
		panic(err)
	}
	return v
}

func (r *accessorRef) Set(v any) {
	if _, err := r.in.invokeMethod(r.prop.Set, r.recv, append(append([]any(nil), r.args...), v)); err != nil {
		panic(err)
	}
}

func (in *Interpreter) newObject(e *env, n *ir.NewExpr) (any, error) {
	args, err := in.args(e, n.Ctor.Params, n.Args)
	if err != nil {
		return nil, err
	}
	if n.Ctor.Impl != nil {
		return in.invokeMethod(&types.Method{Name: ".ctor", DeclaringType: n.Ctor.DeclaringType, Params: n.Ctor.Params, Static: true, Impl: n.Ctor.Impl}, nil, args)
	}
	obj := runtime.NewObject(n.Ctor.DeclaringType)
	for i, f := range n.Ctor.Assigns {
		obj.Fields[f.Name] = args[i]
	}
	return obj, nil
}

func (in *Interpreter) newArray(e *env, n *ir.NewArrayExpr) (any, error) {
	if n.Length != nil {
		l, err := in.exec(e, n.Length, nil)
		if err != nil {
			return nil, err
		}
		size := l.(int)
		if size < 0 {
			return nil, runtime.NewException(runtime.ArgumentExceptionType, "array size cannot be negative")
		}
		return runtime.NewArray(n.Elem, size), nil
	}
	arr := &runtime.Array{Elem: n.Elem, Items: make([]any, len(n.Items))}
	for i, item := range n.Items {
		v, err := in.exec(e, item, nil)
		if err != nil {
			return nil, err
		}
		arr.Items[i] = runtime.Copy(v)
	}
	return arr, nil
}
