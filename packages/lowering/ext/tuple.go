package ext

import (
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/types"
)

// TupleLiteral creates a value tuple from its elements
type TupleLiteral struct {
	Elements []ir.Node
	typ      *types.Type
}

// NewTupleLiteral creates a tuple of type t. A nil t is inferred from the
// element types.
func NewTupleLiteral(t *types.Type, elems ...ir.Node) (*TupleLiteral, error) {
	for i, e := range elems {
		if e == nil {
			return nil, invalid("tuple element %d is nil", i)
		}
		if e.Type().IsVoid() {
			return nil, mismatch("tuple element %d is void", i)
		}
	}
	if t == nil {
		ts := make([]*types.Type, len(elems))
		for i, e := range elems {
			ts[i] = e.Type()
		}
		t = types.TupleOf(ts...)
	}
	if !types.IsTuple(t) {
		return nil, mismatch("%s is not a tuple type", t)
	}
	if len(t.Fields) != len(elems) {
		return nil, wrapf(ErrArgumentCount, "%s has %d elements, got %d", t, len(t.Fields), len(elems))
	}
	for i, f := range t.Fields {
		if err := requireAssignable(f.Name, f.Type, elems[i]); err != nil {
			return nil, err
		}
	}
	return &TupleLiteral{
		Elements: elems,
		typ:      t,
	}, nil
}

// Kind implements Node interface
func (l *TupleLiteral) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (l *TupleLiteral) Type() *types.Type { return l.typ }

// NodeName implements ir.Named
func (l *TupleLiteral) NodeName() string { return "TupleLiteral" }

// Update returns l with the given elements
func (l *TupleLiteral) Update(elems []ir.Node) *TupleLiteral {
	if sameNodes(elems, l.Elements) {
		return l
	}
	return must(NewTupleLiteral(l.typ, elems...))
}

// VisitChildren implements Node interface
func (l *TupleLiteral) VisitChildren(v ir.Visitor) ir.Node {
	return l.Update(visitList(v, l.Elements))
}

// Reduce implements ir.Extension
func (l *TupleLiteral) Reduce() ir.Node {
	args := make([]ir.Node, len(l.Elements))
	for i, e := range l.Elements {
		args[i] = convertIfNeeded(e, l.typ.Fields[i].Type)
	}
	return ir.NewObject(l.typ.Constructors[0], args...)
}

// TupleBinary compares two tuples element-wise with == or !=. Either
// operand may be a nullable tuple.
type TupleBinary struct {
	Op    ir.BinaryOp
	Left  ir.Node
	Right ir.Node
}

// NewTupleBinary creates left == right or left != right over tuples
func NewTupleBinary(op ir.BinaryOp, left, right ir.Node) (*TupleBinary, error) {
	if op != ir.OpEqual && op != ir.OpNotEqual {
		return nil, invalid("tuples compare with == or !=, got %s", op)
	}
	if left == nil || right == nil {
		return nil, invalid("tuple operands are required")
	}
	if err := checkTupleOperands(left.Type(), right.Type()); err != nil {
		return nil, err
	}
	return &TupleBinary{
		Op:    op,
		Left:  left,
		Right: right,
	}, nil
}

func checkTupleOperands(l, r *types.Type) error {
	lt, rt := l.NonNullable(), r.NonNullable()
	if !types.IsTuple(lt) || !types.IsTuple(rt) {
		return mismatch("tuple comparison of %s and %s", l, r)
	}
	if len(lt.Fields) != len(rt.Fields) {
		return mismatch("tuple comparison of %s and %s with different cardinality", l, r)
	}
	for i := range lt.Fields {
		a, b := lt.Fields[i].Type, rt.Fields[i].Type
		if types.IsTuple(a.NonNullable()) || types.IsTuple(b.NonNullable()) {
			if err := checkTupleOperands(a, b); err != nil {
				return err
			}
			continue
		}
		if !canCompare(a, b) {
			return mismatch("element %d: %s cannot be compared with %s", i+1, a, b)
		}
	}
	return nil
}

func canCompare(a, b *types.Type) bool {
	switch {
	case isAssignable(a, b), isAssignable(b, a):
		return true
	case a.NonNullable().IsNumeric() && b.NonNullable().IsNumeric():
		return true
	}
	return a.NonNullable() == b.NonNullable()
}

// Kind implements Node interface
func (b *TupleBinary) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (b *TupleBinary) Type() *types.Type { return types.Bool }

// NodeName implements ir.Named
func (b *TupleBinary) NodeName() string { return "Tuple" + b.Op.String() }

// Update returns b with the given operands
func (b *TupleBinary) Update(left, right ir.Node) *TupleBinary {
	if left == b.Left && right == b.Right {
		return b
	}
	return must(NewTupleBinary(b.Op, left, right))
}

// VisitChildren implements Node interface
func (b *TupleBinary) VisitChildren(v ir.Visitor) ir.Node {
	return b.Update(ir.Accept(b.Left, v), ir.Accept(b.Right, v))
}

// Reduce implements ir.Extension
func (b *TupleBinary) Reduce() ir.Node {
	var t temps
	l := tupleOperand(&t, b.Left)
	r := tupleOperand(&t, b.Right)
	return t.blockTyped(types.Bool, compareTuples(b.Op, l, r))
}

// tupleOp is a tuple operand evaluated once: either the elements of a
// literal or a captured tuple value
type tupleOp struct {
	elems []ir.Node
	value ir.Node
}

func tupleOperand(t *temps, n ir.Node) tupleOp {
	if l, ok := n.(*TupleLiteral); ok {
		return tupleOp{elems: spillAll(t, l.Elements, "item")}
	}
	return tupleOp{value: t.spill(n, "tuple")}
}

func (o tupleOp) nullable() bool { return o.value != nil && o.value.Type().IsNullable() }

func (o tupleOp) hasValue() ir.Node {
	return ir.NewProperty(o.value, o.value.Type().Property("HasValue"))
}

// item returns element i of a non-null operand
func (o tupleOp) item(i int) ir.Node {
	if o.elems != nil {
		return o.elems[i]
	}
	v := o.value
	if v.Type().IsNullable() {
		v = ir.NewProperty(v, v.Type().Property("Value"))
	}
	return ir.NewField(v, v.Type().Fields[i])
}

func (o tupleOp) arity() int {
	if o.elems != nil {
		return len(o.elems)
	}
	return len(o.value.Type().NonNullable().Fields)
}

// compareTuples combines element comparisons with && for == and || for
// !=. Null operands compare equal only to each other.
func compareTuples(op ir.BinaryOp, l, r tupleOp) ir.Node {
	var res ir.Node
	for i := 0; i < l.arity(); i++ {
		c := compareItems(op, l.item(i), r.item(i))
		switch {
		case res == nil:
			res = c
		case op == ir.OpEqual:
			res = ir.AndAlso(res, c)
		default:
			res = ir.OrElse(res, c)
		}
	}
	if res == nil {
		res = ir.Const(op == ir.OpEqual)
	}
	switch {
	case l.nullable() && r.nullable():
		lh, rh := l.hasValue(), r.hasValue()
		if op == ir.OpEqual {
			// both null, or both set and equal
			return ir.AndAlso(ir.Equal(lh, rh), ir.OrElse(ir.Not(lh), res))
		}
		return ir.OrElse(ir.NotEqual(lh, rh), ir.AndAlso(lh, res))
	case l.nullable():
		return liftNull(op, l.hasValue(), res)
	case r.nullable():
		return liftNull(op, r.hasValue(), res)
	}
	return res
}

func liftNull(op ir.BinaryOp, hasValue, res ir.Node) ir.Node {
	if op == ir.OpEqual {
		return ir.AndAlso(hasValue, res)
	}
	return ir.OrElse(ir.Not(hasValue), res)
}

func compareItems(op ir.BinaryOp, a, b ir.Node) ir.Node {
	at, bt := a.Type(), b.Type()
	if types.IsTuple(at.NonNullable()) {
		var t temps
		l, r := tupleOperand(&t, a), tupleOperand(&t, b)
		return t.blockTyped(types.Bool, compareTuples(op, l, r))
	}
	switch {
	case at == bt:
	case isAssignable(at, bt):
		b = ir.Convert(b, at)
	case isAssignable(bt, at):
		a = ir.Convert(a, bt)
	case at.NonNullable().IsNumeric() && bt.NonNullable().IsNumeric():
		a, b = promote(a, b)
	}
	return ir.NewBinary(op, a, b)
}

// promote converts the narrower numeric operand to the wider type
func promote(a, b ir.Node) (ir.Node, ir.Node) {
	rank := func(t *types.Type) int {
		switch t.NonNullable().Kind {
		case types.KindDouble:
			return 2
		case types.KindLong:
			return 1
		}
		return 0
	}
	wide := func(x, y *types.Type) *types.Type {
		t := x.NonNullable()
		if x.IsNullable() || y.IsNullable() {
			return types.NullableOf(t)
		}
		return t
	}
	if rank(a.Type()) >= rank(b.Type()) {
		t := wide(a.Type(), b.Type())
		return convertIfNeeded(a, t), convertIfNeeded(b, t)
	}
	t := wide(b.Type(), a.Type())
	return convertIfNeeded(a, t), convertIfNeeded(b, t)
}
