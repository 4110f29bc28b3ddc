package ext

import (
	"fmt"

	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// assignable is implemented by extension nodes that denote a storage
// location
type assignable interface {
	ir.Node
	canAssign() bool
	// reduceAssign lowers the node with its receiver and arguments
	// evaluated once, passing a repeatable location to fn.
	reduceAssign(fn func(loc ir.Node) ir.Node) ir.Node
}

// checkLocation rejects nodes that cannot be assigned
func checkLocation(n ir.Node) error {
	if n == nil {
		return invalid("assignment target is missing")
	}
	switch l := n.(type) {
	case *ir.Variable:
		return nil
	case *ir.MemberExpr:
		if l.Field != nil && l.Field.ReadOnly {
			return wrapf(ErrNotAssignable, "field %s is read-only", l.Field.Name)
		}
		if l.Property != nil && !l.Property.CanWrite() {
			return wrapf(ErrNotAssignable, "property %s is read-only", l.Property.Name)
		}
		return nil
	case *ir.IndexExpr:
		if l.Indexer != nil && !l.Indexer.CanWrite() {
			return wrapf(ErrNotAssignable, "indexer of %s is read-only", l.Object.Type())
		}
		return nil
	case assignable:
		if !l.canAssign() {
			return wrapf(ErrNotAssignable, "%s cannot be assigned", nodeName(n))
		}
		return nil
	}
	return wrapf(ErrNotAssignable, "%s cannot be assigned", nodeName(n))
}

func nodeName(n ir.Node) string {
	if nn, ok := n.(ir.Named); ok {
		return nn.NodeName()
	}
	return n.Kind().String()
}

// reduceLocation evaluates the receiver and arguments of left once and
// passes the resulting location to fn
func reduceLocation(left ir.Node, fn func(loc ir.Node) ir.Node) ir.Node {
	switch l := left.(type) {
	case *ir.Variable:
		return fn(l)
	case assignable:
		return l.reduceAssign(fn)
	case *ir.MemberExpr:
		if l.Object == nil {
			return fn(l)
		}
		if isValueReceiver(l.Object) {
			return withByRef(l.Object, func(r ir.Node) ir.Node { return fn(l.Update(r)) })
		}
		var t temps
		o := t.spill(l.Object, "receiver")
		return t.block(fn(l.Update(o)))
	case *ir.IndexExpr:
		if isValueReceiver(l.Object) {
			var t temps
			obj := pinLocation(&t, l.Object)
			args := spillAll(&t, l.Args, "index")
			return t.block(withByRef(obj, func(r ir.Node) ir.Node { return fn(l.Update(r, args)) }))
		}
		var t temps
		o := t.spill(l.Object, "receiver")
		args := spillAll(&t, l.Args, "index")
		return t.block(fn(l.Update(o, args)))
	}
	panic(fmt.Sprintf("%s is not a location", nodeName(left)))
}

// isValueReceiver reports whether writing through n must reach the
// storage n denotes rather than a copy of it
func isValueReceiver(n ir.Node) bool {
	if !n.Type().IsValueType() {
		return false
	}
	_, isVar := n.(*ir.Variable)
	return !isVar
}

// pinLocation evaluates the receivers and indices selecting the storage n
// denotes, keeping n a location. Values that are not locations are
// captured whole.
func pinLocation(t *temps, n ir.Node) ir.Node {
	switch x := n.(type) {
	case *ir.Variable:
		return x
	case *ir.MemberExpr:
		if x.Field == nil {
			break
		}
		if x.Object == nil {
			return x
		}
		if isValueReceiver(x.Object) {
			return x.Update(pinLocation(t, x.Object))
		}
		return x.Update(t.spill(x.Object, "receiver"))
	case *ir.IndexExpr:
		if x.Indexer != nil {
			break
		}
		o := t.spill(x.Object, "receiver")
		return x.Update(o, spillAll(t, x.Args, "index"))
	}
	return t.spill(n, "receiver")
}

func spillAll(t *temps, ns []ir.Node, name string) []ir.Node {
	res := make([]ir.Node, len(ns))
	for i, n := range ns {
		res[i] = t.spill(n, name)
	}
	return res
}

// withByRef calls RuntimeOps.WithByRef(ref obj, (ref r) => fn(r))
func withByRef(obj ir.Node, fn func(recv ir.Node) ir.Node) ir.Node {
	r := ir.NewRefParameter(obj.Type(), "r")
	body := fn(r)
	m := must(types.Binder.Instantiate(runtime.WithByRefMethod, obj.Type(), body.Type()))
	return ir.NewCall(nil, m, obj, ir.NewLambda(m.Params[1].Type, body, r))
}

// Assign stores Right into a location that may be an extension node
type Assign struct {
	Left  ir.Node
	Right ir.Node
}

// NewAssign creates left = right
func NewAssign(left, right ir.Node) (*Assign, error) {
	if err := checkLocation(left); err != nil {
		return nil, err
	}
	if err := requireAssignable("assigned value", left.Type(), right); err != nil {
		return nil, err
	}
	return &Assign{
		Left:  left,
		Right: right,
	}, nil
}

// Kind implements Node interface
func (a *Assign) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (a *Assign) Type() *types.Type { return a.Left.Type() }

// NodeName implements ir.Named
func (a *Assign) NodeName() string { return "Assign" }

// Update returns a with the given children
func (a *Assign) Update(left, right ir.Node) *Assign {
	if left == a.Left && right == a.Right {
		return a
	}
	return must(NewAssign(left, right))
}

// VisitChildren implements Node interface
func (a *Assign) VisitChildren(v ir.Visitor) ir.Node {
	return a.Update(ir.Accept(a.Left, v), ir.Accept(a.Right, v))
}

// Reduce implements ir.Extension
func (a *Assign) Reduce() ir.Node {
	if _, ok := a.Left.(assignable); !ok {
		return ir.NewAssign(a.Left, convertIfNeeded(a.Right, a.Left.Type()))
	}
	return reduceLocation(a.Left, func(loc ir.Node) ir.Node {
		return ir.NewAssign(loc, convertIfNeeded(a.Right, loc.Type()))
	})
}

// AssignBinary is the compound assignment Left op= Right. Coalesce stands
// for ??=, which only assigns when Left is null.
type AssignBinary struct {
	Op    ir.BinaryOp
	Left  ir.Node
	Right ir.Node
	// Method implements the operator when set.
	Method *types.Method
}

// NewAssignBinary creates left op= right
func NewAssignBinary(op ir.BinaryOp, left, right ir.Node, method *types.Method) (*AssignBinary, error) {
	if err := checkLocation(left); err != nil {
		return nil, err
	}
	if right == nil {
		return nil, invalid("right operand is missing")
	}
	lt := left.Type()
	switch op {
	case ir.OpAdd, ir.OpSubtract, ir.OpMultiply, ir.OpDivide, ir.OpModulo,
		ir.OpAnd, ir.OpOr, ir.OpExclusiveOr, ir.OpLeftShift, ir.OpRightShift:
		if method != nil {
			if !method.Static || len(method.Params) != 2 {
				return nil, mismatch("operator method %s must be static and take two operands", method)
			}
			if !isAssignable(lt, method.Return) {
				return nil, mismatch("operator %s returns %s, not assignable to %s", method, method.Return, lt)
			}
			break
		}
		if lt != types.String && !lt.NonNullable().IsNumeric() && lt.NonNullable() != types.Bool {
			return nil, mismatch("operator %s= is not defined for %s", op, lt)
		}
		if rt := ir.NewBinary(op, left, right).Type(); !isAssignable(lt, rt) && !canConvert(rt, lt) {
			return nil, mismatch("%s %s %s yields %s, not assignable to %s", lt, op, right.Type(), rt, lt)
		}
	case ir.OpCoalesce:
		if method != nil {
			return nil, unsupported("??= does not take an operator method")
		}
		if !lt.CanBeNull() {
			return nil, mismatch("??= requires a nullable target, got %s", lt)
		}
		if err := requireAssignable("??= operand", lt, right); err != nil {
			return nil, err
		}
	default:
		return nil, invalid("%s is not a compound assignment operator", op)
	}
	return &AssignBinary{
		Op:     op,
		Left:   left,
		Right:  right,
		Method: method,
	}, nil
}

// Kind implements Node interface
func (a *AssignBinary) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (a *AssignBinary) Type() *types.Type { return a.Left.Type() }

// NodeName implements ir.Named
func (a *AssignBinary) NodeName() string { return "Assign" + a.Op.String() }

// Update returns a with the given children
func (a *AssignBinary) Update(left, right ir.Node) *AssignBinary {
	if left == a.Left && right == a.Right {
		return a
	}
	return must(NewAssignBinary(a.Op, left, right, a.Method))
}

// VisitChildren implements Node interface
func (a *AssignBinary) VisitChildren(v ir.Visitor) ir.Node {
	return a.Update(ir.Accept(a.Left, v), ir.Accept(a.Right, v))
}

// Reduce implements ir.Extension
func (a *AssignBinary) Reduce() ir.Node {
	return reduceLocation(a.Left, func(loc ir.Node) ir.Node {
		if a.Op == ir.OpCoalesce {
			return ir.Coalesce(loc, ir.NewAssign(loc, convertIfNeeded(a.Right, loc.Type())))
		}
		value := ir.NewBinaryMethod(a.Op, loc, a.Right, a.Method)
		return ir.NewAssign(loc, convertIfNeeded(value, loc.Type()))
	})
}

// UnaryAssignOp selects an increment or decrement form
type UnaryAssignOp int

const (
	PreIncrement UnaryAssignOp = iota
	PreDecrement
	PostIncrement
	PostDecrement
)

var unaryAssignNames = [...]string{
	PreIncrement:  "PreIncrementAssign",
	PreDecrement:  "PreDecrementAssign",
	PostIncrement: "PostIncrementAssign",
	PostDecrement: "PostDecrementAssign",
}

func (op UnaryAssignOp) String() string {
	if int(op) < len(unaryAssignNames) {
		return unaryAssignNames[op]
	}
	return fmt.Sprintf("UnaryAssignOp(%d)", int(op))
}

func (op UnaryAssignOp) isPost() bool { return op == PostIncrement || op == PostDecrement }

// AssignUnary increments or decrements a location. Prefix forms yield the
// new value, postfix forms the old one.
type AssignUnary struct {
	Op      UnaryAssignOp
	Operand ir.Node
}

// NewAssignUnary creates ++operand, operand++, --operand or operand--
func NewAssignUnary(op UnaryAssignOp, operand ir.Node) (*AssignUnary, error) {
	if op < PreIncrement || op > PostDecrement {
		return nil, invalid("unknown unary assignment %d", int(op))
	}
	if err := checkLocation(operand); err != nil {
		return nil, err
	}
	if !operand.Type().NonNullable().IsNumeric() {
		return nil, mismatch("%s requires a numeric operand, got %s", op, operand.Type())
	}
	return &AssignUnary{
		Op:      op,
		Operand: operand,
	}, nil
}

// Kind implements Node interface
func (a *AssignUnary) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (a *AssignUnary) Type() *types.Type { return a.Operand.Type() }

// NodeName implements ir.Named
func (a *AssignUnary) NodeName() string { return a.Op.String() }

// Update returns a with the given operand
func (a *AssignUnary) Update(operand ir.Node) *AssignUnary {
	if operand == a.Operand {
		return a
	}
	return must(NewAssignUnary(a.Op, operand))
}

// VisitChildren implements Node interface
func (a *AssignUnary) VisitChildren(v ir.Visitor) ir.Node {
	return a.Update(ir.Accept(a.Operand, v))
}

// one returns the constant 1 of the numeric type underlying t
func one(t *types.Type) ir.Node {
	e := t.NonNullable()
	switch e.Kind {
	case types.KindLong:
		return ir.NewConstant(int64(1), e)
	case types.KindDouble:
		return ir.NewConstant(float64(1), e)
	}
	return ir.NewConstant(1, e)
}

// Reduce implements ir.Extension
func (a *AssignUnary) Reduce() ir.Node {
	step := func(n ir.Node) ir.Node {
		if a.Op == PreIncrement || a.Op == PostIncrement {
			return convertIfNeeded(ir.Add(n, one(n.Type())), n.Type())
		}
		return convertIfNeeded(ir.Subtract(n, one(n.Type())), n.Type())
	}
	return reduceLocation(a.Operand, func(loc ir.Node) ir.Node {
		if !a.Op.isPost() {
			return ir.NewAssign(loc, step(loc))
		}
		old := ir.NewVariable(loc.Type(), "old")
		return ir.NewBlock([]*ir.Variable{old},
			ir.NewAssign(old, loc),
			ir.NewAssign(loc, step(old)),
			old)
	})
}
