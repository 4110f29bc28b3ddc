package ext

import (
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/types"
)

// ParameterAssignment binds an argument to a parameter by name rather than
// by position
type ParameterAssignment struct {
	Parameter  *types.Parameter
	Expression ir.Node
}

// Bind creates a parameter assignment
func Bind(p *types.Parameter, e ir.Node) *ParameterAssignment {
	return &ParameterAssignment{Parameter: p, Expression: e}
}

// Positional binds args to params in order
func Positional(params []*types.Parameter, args ...ir.Node) []*ParameterAssignment {
	res := make([]*ParameterAssignment, len(args))
	for i, a := range args {
		var p *types.Parameter
		if i < len(params) {
			p = params[i]
		}
		res[i] = Bind(p, a)
	}
	return res
}

// checkArguments validates that args bind every parameter exactly once
func checkArguments(params []*types.Parameter, args []*ParameterAssignment) error {
	seen := make(map[*types.Parameter]bool, len(args))
	for i, a := range args {
		if a == nil || a.Parameter == nil || a.Expression == nil {
			return invalid("argument %d is incomplete", i)
		}
		if parameterIndex(params, a.Parameter) < 0 {
			return invalid("%s is not a parameter of the callee", a.Parameter.Name)
		}
		if seen[a.Parameter] {
			return wrapf(ErrDuplicateParameter, "parameter %s is assigned more than once", a.Parameter.Name)
		}
		seen[a.Parameter] = true
		if err := checkArgument(a); err != nil {
			return err
		}
	}
	if len(args) != len(params) {
		for _, p := range params {
			if !seen[p] {
				return wrapf(ErrArgumentCount, "no argument for parameter %s", p.Name)
			}
		}
	}
	return nil
}

func checkArgument(a *ParameterAssignment) error {
	p, e := a.Parameter, a.Expression
	if !p.ByRef {
		return requireAssignable("argument "+p.Name, p.Type, e)
	}
	if e.Type() != p.Type {
		return mismatch("by-ref argument %s must be of type %s, got %s", p.Name, p.Type, e.Type())
	}
	switch x := e.(type) {
	case *ArrayAccess:
		if x.Argument.Type() != types.Int {
			return unsupported("%s argument cannot be passed by reference", x.Argument.Type())
		}
		return nil
	case *IndexerAccess:
		return unsupported("%s argument cannot be passed by reference", x.Argument.Type())
	case *ir.Variable, *ir.MemberExpr, *ir.IndexExpr:
		if err := checkLocation(e); err != nil {
			return err
		}
		return nil
	}
	return wrapf(ErrNotAssignable, "argument %s must be a variable, field or element to be passed by reference", p.Name)
}

func parameterIndex(params []*types.Parameter, p *types.Parameter) int {
	for i, q := range params {
		if q == p {
			return i
		}
	}
	return -1
}

// inOrder reports whether args are written in declaration order
func inOrder(params []*types.Parameter, args []*ParameterAssignment) bool {
	for i, a := range args {
		if params[i] != a.Parameter {
			return false
		}
	}
	return true
}

// reduceArguments returns the arguments in declaration order. Arguments
// written out of order are evaluated into temporaries in written order
// first.
func reduceArguments(t *temps, params []*types.Parameter, args []*ParameterAssignment) []ir.Node {
	res := make([]ir.Node, len(params))
	ordered := inOrder(params, args)
	for _, a := range args {
		e := a.Expression
		switch {
		case a.Parameter.ByRef:
			if x, ok := e.(*ArrayAccess); ok {
				e = ir.ReduceAll(x)
			}
		case !ordered:
			e = t.spill(e, a.Parameter.Name)
		}
		res[parameterIndex(params, a.Parameter)] = convertIfNeeded(e, a.Parameter.Type)
	}
	return res
}

func visitArguments(v ir.Visitor, args []*ParameterAssignment) []*ParameterAssignment {
	var res []*ParameterAssignment
	for i, a := range args {
		e := ir.Accept(a.Expression, v)
		if res == nil && e != a.Expression {
			res = make([]*ParameterAssignment, len(args))
			copy(res, args[:i])
		}
		if res != nil {
			res[i] = Bind(a.Parameter, e)
		}
	}
	if res == nil {
		return args
	}
	return res
}

func sameArguments(a, b []*ParameterAssignment) bool {
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

// Call calls a method with named arguments
type Call struct {
	Object    ir.Node
	Method    *types.Method
	Arguments []*ParameterAssignment
}

// NewCall creates a method call; object is nil for static methods
func NewCall(object ir.Node, method *types.Method, args ...*ParameterAssignment) (*Call, error) {
	if method == nil {
		return nil, invalid("method is missing")
	}
	if method.IsGenericDefinition() {
		return nil, mismatch("%s must be instantiated before it is called", method)
	}
	switch {
	case method.Static && object != nil:
		return nil, invalid("static method %s called with a receiver", method)
	case !method.Static && object == nil:
		return nil, invalid("instance method %s called without a receiver", method)
	case object != nil && !isAssignable(method.DeclaringType, object.Type()):
		return nil, mismatch("%s is not a member of %s", method, object.Type())
	}
	if err := checkArguments(method.Params, args); err != nil {
		return nil, err
	}
	return &Call{
		Object:    object,
		Method:    method,
		Arguments: args,
	}, nil
}

// Kind implements Node interface
func (c *Call) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (c *Call) Type() *types.Type { return c.Method.Return }

// NodeName implements ir.Named
func (c *Call) NodeName() string { return "Call" }

// Update returns c with the given children
func (c *Call) Update(object ir.Node, args []*ParameterAssignment) *Call {
	if object == c.Object && sameArguments(args, c.Arguments) {
		return c
	}
	return must(NewCall(object, c.Method, args...))
}

// VisitChildren implements Node interface
func (c *Call) VisitChildren(v ir.Visitor) ir.Node {
	return c.Update(ir.Accept(c.Object, v), visitArguments(v, c.Arguments))
}

// Reduce implements ir.Extension
func (c *Call) Reduce() ir.Node {
	var t temps
	obj := c.Object
	if obj != nil && !inOrder(c.Method.Params, c.Arguments) && !obj.Type().IsValueType() {
		obj = t.spill(obj, "receiver")
	}
	args := reduceArguments(&t, c.Method.Params, c.Arguments)
	return t.blockTyped(c.Type(), ir.NewCall(obj, c.Method, args...))
}

// Invoke invokes a delegate with named arguments
type Invoke struct {
	Expression ir.Node
	Arguments  []*ParameterAssignment
}

// NewInvoke creates a delegate invocation
func NewInvoke(expr ir.Node, args ...*ParameterAssignment) (*Invoke, error) {
	if expr == nil {
		return nil, invalid("invoked expression is missing")
	}
	sig := expr.Type().Invoke
	if sig == nil {
		return nil, mismatch("%s is not a delegate type", expr.Type())
	}
	if err := checkArguments(sig.Params, args); err != nil {
		return nil, err
	}
	return &Invoke{
		Expression: expr,
		Arguments:  args,
	}, nil
}

// Kind implements Node interface
func (i *Invoke) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (i *Invoke) Type() *types.Type { return i.Expression.Type().Invoke.Return }

// NodeName implements ir.Named
func (i *Invoke) NodeName() string { return "Invoke" }

// Update returns i with the given children
func (i *Invoke) Update(expr ir.Node, args []*ParameterAssignment) *Invoke {
	if expr == i.Expression && sameArguments(args, i.Arguments) {
		return i
	}
	return must(NewInvoke(expr, args...))
}

// VisitChildren implements Node interface
func (i *Invoke) VisitChildren(v ir.Visitor) ir.Node {
	return i.Update(ir.Accept(i.Expression, v), visitArguments(v, i.Arguments))
}

// Reduce implements ir.Extension
func (i *Invoke) Reduce() ir.Node {
	var t temps
	params := i.Expression.Type().Invoke.Params
	fn := i.Expression
	if !inOrder(params, i.Arguments) {
		fn = t.spill(fn, "delegate")
	}
	args := reduceArguments(&t, params, i.Arguments)
	return t.blockTyped(i.Type(), ir.NewInvoke(fn, args...))
}

// New calls a constructor with named arguments
type New struct {
	Constructor *types.Constructor
	Arguments   []*ParameterAssignment
}

// NewNew creates a constructor call
func NewNew(ctor *types.Constructor, args ...*ParameterAssignment) (*New, error) {
	if ctor == nil {
		return nil, invalid("constructor is missing")
	}
	if err := checkArguments(ctor.Params, args); err != nil {
		return nil, err
	}
	return &New{
		Constructor: ctor,
		Arguments:   args,
	}, nil
}

// Kind implements Node interface
func (n *New) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (n *New) Type() *types.Type { return n.Constructor.DeclaringType }

// NodeName implements ir.Named
func (n *New) NodeName() string { return "New" }

// Update returns n with the given arguments
func (n *New) Update(args []*ParameterAssignment) *New {
	if sameArguments(args, n.Arguments) {
		return n
	}
	return must(NewNew(n.Constructor, args...))
}

// VisitChildren implements Node interface
func (n *New) VisitChildren(v ir.Visitor) ir.Node {
	return n.Update(visitArguments(v, n.Arguments))
}

// Reduce implements ir.Extension
func (n *New) Reduce() ir.Node {
	var t temps
	args := reduceArguments(&t, n.Constructor.Params, n.Arguments)
	return t.blockTyped(n.Type(), ir.NewObject(n.Constructor, args...))
}

// Index reads an indexer with named arguments
type Index struct {
	Object    ir.Node
	Indexer   *types.Property
	Arguments []*ParameterAssignment
}

// NewIndex creates object[args]
func NewIndex(object ir.Node, indexer *types.Property, args ...*ParameterAssignment) (*Index, error) {
	if object == nil || indexer == nil {
		return nil, invalid("object and indexer are required")
	}
	if !indexer.IsIndexer() {
		return nil, mismatch("%s is not an indexer", indexer.Name)
	}
	if !isAssignable(indexer.DeclaringType, object.Type()) {
		return nil, mismatch("indexer of %s does not apply to %s", indexer.DeclaringType, object.Type())
	}
	if err := checkArguments(indexer.Params, args); err != nil {
		return nil, err
	}
	return &Index{
		Object:    object,
		Indexer:   indexer,
		Arguments: args,
	}, nil
}

// Kind implements Node interface
func (i *Index) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (i *Index) Type() *types.Type { return i.Indexer.Type }

// NodeName implements ir.Named
func (i *Index) NodeName() string { return "Index" }

// Update returns i with the given children
func (i *Index) Update(object ir.Node, args []*ParameterAssignment) *Index {
	if object == i.Object && sameArguments(args, i.Arguments) {
		return i
	}
	return must(NewIndex(object, i.Indexer, args...))
}

// VisitChildren implements Node interface
func (i *Index) VisitChildren(v ir.Visitor) ir.Node {
	return i.Update(ir.Accept(i.Object, v), visitArguments(v, i.Arguments))
}

func (i *Index) canAssign() bool { return i.Indexer.CanWrite() }

// Reduce implements ir.Extension
func (i *Index) Reduce() ir.Node {
	var t temps
	obj := i.Object
	if !inOrder(i.Indexer.Params, i.Arguments) {
		obj = t.spill(obj, "receiver")
	}
	args := reduceArguments(&t, i.Indexer.Params, i.Arguments)
	return t.blockTyped(i.Type(), ir.NewIndexer(obj, i.Indexer, args...))
}

func (i *Index) reduceAssign(fn func(loc ir.Node) ir.Node) ir.Node {
	var t temps
	obj := t.spill(i.Object, "receiver")
	args := reduceArguments(&t, i.Indexer.Params, i.Arguments)
	args = spillAll(&t, args, "index")
	return t.block(fn(ir.NewIndexer(obj, i.Indexer, args...)))
}
