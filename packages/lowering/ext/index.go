package ext

import (
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// FromEndIndex is the index ^Operand, counting from the end of a sequence
type FromEndIndex struct {
	Operand ir.Node
}

// NewFromEndIndex creates ^operand
func NewFromEndIndex(operand ir.Node) (*FromEndIndex, error) {
	if operand == nil {
		return nil, invalid("index operand is missing")
	}
	if operand.Type() != types.Int {
		return nil, mismatch("from-end index requires an int operand, got %s", operand.Type())
	}
	return &FromEndIndex{Operand: operand}, nil
}

// Kind implements Node interface
func (f *FromEndIndex) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (f *FromEndIndex) Type() *types.Type { return runtime.IndexType }

// NodeName implements ir.Named
func (f *FromEndIndex) NodeName() string { return "FromEndIndex" }

// Update returns f with the given operand
func (f *FromEndIndex) Update(operand ir.Node) *FromEndIndex {
	if operand == f.Operand {
		return f
	}
	return must(NewFromEndIndex(operand))
}

// VisitChildren implements Node interface
func (f *FromEndIndex) VisitChildren(v ir.Visitor) ir.Node {
	return f.Update(ir.Accept(f.Operand, v))
}

// Reduce implements ir.Extension
func (f *FromEndIndex) Reduce() ir.Node {
	return ir.NewObject(runtime.IndexCtor, f.Operand, ir.Const(true))
}

// Range is the range Left..Right. Either bound may be nil; operands are
// ints or Index values.
type Range struct {
	Left  ir.Node
	Right ir.Node
}

// NewRange creates left..right
func NewRange(left, right ir.Node) (*Range, error) {
	for _, b := range []ir.Node{left, right} {
		if b != nil && b.Type() != types.Int && b.Type() != runtime.IndexType {
			return nil, mismatch("range bound must be int or Index, got %s", b.Type())
		}
	}
	return &Range{
		Left:  left,
		Right: right,
	}, nil
}

// Kind implements Node interface
func (r *Range) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (r *Range) Type() *types.Type { return runtime.RangeType }

// NodeName implements ir.Named
func (r *Range) NodeName() string { return "Range" }

// Update returns r with the given bounds
func (r *Range) Update(left, right ir.Node) *Range {
	if left == r.Left && right == r.Right {
		return r
	}
	return must(NewRange(left, right))
}

// VisitChildren implements Node interface
func (r *Range) VisitChildren(v ir.Visitor) ir.Node {
	return r.Update(ir.Accept(r.Left, v), ir.Accept(r.Right, v))
}

// Reduce implements ir.Extension
func (r *Range) Reduce() ir.Node {
	switch {
	case r.Left == nil && r.Right == nil:
		return ir.NewProperty(nil, runtime.RangeAll)
	case r.Left == nil:
		return ir.NewCall(nil, runtime.RangeEndAt, toIndex(r.Right))
	case r.Right == nil:
		return ir.NewCall(nil, runtime.RangeStartAt, toIndex(r.Left))
	}
	return ir.NewObject(runtime.RangeCtor, toIndex(r.Left), toIndex(r.Right))
}

func toIndex(n ir.Node) ir.Node {
	if n.Type() == types.Int {
		return ir.NewObject(runtime.IndexCtor, n, ir.Const(false))
	}
	return n
}

// indexForm is an index whose direction is known at construction time
type indexForm struct {
	value   ir.Node
	fromEnd bool
}

// classifyIndex returns the int value and direction of n when they can be
// read off the tree
func classifyIndex(n ir.Node) (indexForm, bool) {
	switch x := n.(type) {
	case *FromEndIndex:
		return indexForm{x.Operand, true}, true
	case *ir.NewExpr:
		if x.Ctor == runtime.IndexCtor {
			if c, ok := x.Args[1].(*ir.ConstantExpr); ok {
				return indexForm{x.Args[0], c.Value.(bool)}, true
			}
		}
	}
	if n.Type() == types.Int {
		return indexForm{n, false}, true
	}
	return indexForm{}, false
}

// classifyRange returns the bounds of a range literal. A missing start is
// 0, a missing end is ^0.
func classifyRange(n ir.Node) (start, end indexForm, ok bool) {
	r, isRange := n.(*Range)
	if !isRange {
		return indexForm{}, indexForm{}, false
	}
	start, end = indexForm{ir.Const(0), false}, indexForm{ir.Const(0), true}
	if r.Left != nil {
		if start, ok = classifyIndex(r.Left); !ok {
			return indexForm{}, indexForm{}, false
		}
	}
	if r.Right != nil {
		if end, ok = classifyIndex(r.Right); !ok {
			return indexForm{}, indexForm{}, false
		}
	}
	return start, end, true
}

// sub builds a - b, folding constants and subtraction of zero
func sub(a, b ir.Node) ir.Node {
	cb, okb := b.(*ir.ConstantExpr)
	if okb && cb.Value == 0 {
		return a
	}
	if ca, ok := a.(*ir.ConstantExpr); ok && okb {
		return ir.Const(ca.Value.(int) - cb.Value.(int))
	}
	return ir.Subtract(a, b)
}

// ArrayAccess reads an array element through an int or Index argument, or
// a sub-array through a Range argument
type ArrayAccess struct {
	Array    ir.Node
	Argument ir.Node
}

// NewArrayAccess creates array[argument]
func NewArrayAccess(array, argument ir.Node) (*ArrayAccess, error) {
	if array == nil || argument == nil {
		return nil, invalid("array and argument are required")
	}
	if array.Type().Kind != types.KindArray {
		return nil, mismatch("%s is not an array type", array.Type())
	}
	switch argument.Type() {
	case types.Int, runtime.IndexType, runtime.RangeType:
	default:
		return nil, mismatch("array argument must be int, Index or Range, got %s", argument.Type())
	}
	return &ArrayAccess{
		Array:    array,
		Argument: argument,
	}, nil
}

// Kind implements Node interface
func (a *ArrayAccess) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (a *ArrayAccess) Type() *types.Type {
	if a.Argument.Type() == runtime.RangeType {
		return a.Array.Type()
	}
	return a.Array.Type().Elem
}

// NodeName implements ir.Named
func (a *ArrayAccess) NodeName() string { return "ArrayAccess" }

// Update returns a with the given children
func (a *ArrayAccess) Update(array, argument ir.Node) *ArrayAccess {
	if array == a.Array && argument == a.Argument {
		return a
	}
	return must(NewArrayAccess(array, argument))
}

// VisitChildren implements Node interface
func (a *ArrayAccess) VisitChildren(v ir.Visitor) ir.Node {
	return a.Update(ir.Accept(a.Array, v), ir.Accept(a.Argument, v))
}

func (a *ArrayAccess) canAssign() bool { return a.Argument.Type() != runtime.RangeType }

// Reduce implements ir.Extension
func (a *ArrayAccess) Reduce() ir.Node {
	switch a.Argument.Type() {
	case types.Int:
		return ir.NewArrayIndex(a.Array, a.Argument)
	case runtime.RangeType:
		m := must(types.Binder.Instantiate(runtime.GetSubArray, a.Array.Type().Elem))
		return ir.NewCall(nil, m, a.Array, a.Argument)
	}
	var t temps
	loc := a.element(&t, false)
	return t.block(loc)
}

// element builds the element access for an Index argument. With stable set
// the array and the offset are captured so the access can be repeated.
func (a *ArrayAccess) element(t *temps, stable bool) ir.Node {
	length := func(arr ir.Node) ir.Node { return ir.ArrayLength(arr) }
	if a.Argument.Type() == types.Int {
		arr := a.Array
		idx := a.Argument
		if stable {
			arr = t.spill(arr, "array")
			idx = t.spill(idx, "index")
		}
		return ir.NewArrayIndex(arr, idx)
	}
	arr, offset := indexOffset(t, a.Array, a.Argument, length, stable)
	return ir.NewArrayIndex(arr, offset)
}

func (a *ArrayAccess) reduceAssign(fn func(loc ir.Node) ir.Node) ir.Node {
	var t temps
	return t.block(fn(a.element(&t, true)))
}

// indexOffset computes the receiver and int offset addressed by an Index
// argument. Length is only read for from-end or unknown indices and is
// read after the argument is evaluated.
func indexOffset(t *temps, obj, arg ir.Node, length func(ir.Node) ir.Node, stable bool) (ir.Node, ir.Node) {
	f, known := classifyIndex(arg)
	switch {
	case known && !f.fromEnd:
		if stable {
			return t.spill(obj, "receiver"), t.spill(f.value, "index")
		}
		return obj, f.value
	case known:
		o := t.spill(obj, "receiver")
		v := t.spill(f.value, "index")
		offset := ir.Node(ir.Subtract(length(o), v))
		if stable {
			offset = t.capture(offset, "offset")
		}
		return o, offset
	}
	o := t.spill(obj, "receiver")
	idx := t.spill(arg, "index")
	offset := ir.Node(ir.NewCall(idx, runtime.IndexGetOffset, length(o)))
	if stable {
		offset = t.capture(offset, "offset")
	}
	return o, offset
}

// IndexerAccess reads an element of a countable type through an Index
// argument, or a slice through a Range argument. The type must expose an
// int Length or Count property and an int indexer or a Slice(int, int)
// method.
type IndexerAccess struct {
	Object   ir.Node
	Argument ir.Node
	Length   *types.Property
	// Indexer is set for Index arguments, Slice for Range arguments.
	Indexer *types.Property
	Slice   *types.Method
}

// NewIndexerAccess creates object[argument], binding the members from the
// object type
func NewIndexerAccess(object, argument ir.Node) (*IndexerAccess, error) {
	if object == nil || argument == nil {
		return nil, invalid("object and argument are required")
	}
	ot := object.Type()
	length := lengthProperty(ot)
	if length == nil {
		return nil, mismatch("%s has no readable int Length or Count property", ot)
	}
	var indexer *types.Property
	var slice *types.Method
	switch argument.Type() {
	case runtime.IndexType:
		if ot == types.String {
			indexer = types.StringChars
			break
		}
		ix, err := types.Binder.LookupIndexer(ot, types.Int)
		if err != nil {
			return nil, mismatch("%s has no int indexer", ot)
		}
		indexer = ix
	case runtime.RangeType:
		if ot == types.String {
			slice = types.StringSubstring
			break
		}
		m, err := types.Binder.LookupMethod(ot, "Slice", types.Int, types.Int)
		if err != nil || m.Static {
			return nil, mismatch("%s has no Slice(int, int) method", ot)
		}
		slice = m
	default:
		return nil, mismatch("indexer argument must be Index or Range, got %s", argument.Type())
	}
	return newIndexerAccess(object, argument, length, indexer, slice)
}

// NewIndexerAccessWith creates object[argument] with explicitly bound
// members; exactly one of indexer and slice must be set
func NewIndexerAccessWith(object, argument ir.Node, length, indexer *types.Property, slice *types.Method) (*IndexerAccess, error) {
	if object == nil || argument == nil {
		return nil, invalid("object and argument are required")
	}
	return newIndexerAccess(object, argument, length, indexer, slice)
}

func newIndexerAccess(object, argument ir.Node, length, indexer *types.Property, slice *types.Method) (*IndexerAccess, error) {
	if length == nil || length.Type != types.Int || !length.CanRead() || length.Static {
		return nil, mismatch("length member must be a readable int instance property")
	}
	switch argument.Type() {
	case runtime.IndexType:
		if indexer == nil || slice != nil {
			return nil, invalid("an Index argument requires an indexer")
		}
		if len(indexer.Params) != 1 || indexer.Params[0].Type != types.Int || !indexer.CanRead() {
			return nil, mismatch("indexer %s must take a single int", indexer.Name)
		}
	case runtime.RangeType:
		if slice == nil || indexer != nil {
			return nil, invalid("a Range argument requires a slice method")
		}
		if slice.Static || len(slice.Params) != 2 || slice.Params[0].Type != types.Int || slice.Params[1].Type != types.Int {
			return nil, mismatch("slice method %s must take (int, int)", slice)
		}
	default:
		return nil, mismatch("indexer argument must be Index or Range, got %s", argument.Type())
	}
	return &IndexerAccess{
		Object:   object,
		Argument: argument,
		Length:   length,
		Indexer:  indexer,
		Slice:    slice,
	}, nil
}

func lengthProperty(t *types.Type) *types.Property {
	if t == types.String {
		return types.StringLength
	}
	for _, name := range []string{"Length", "Count"} {
		p, err := types.Binder.LookupProperty(t, name)
		if err == nil && p.Type == types.Int && p.CanRead() && !p.Static && !p.IsIndexer() {
			return p
		}
	}
	return nil
}

// Kind implements Node interface
func (a *IndexerAccess) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (a *IndexerAccess) Type() *types.Type {
	if a.Slice != nil {
		return a.Slice.Return
	}
	return a.Indexer.Type
}

// NodeName implements ir.Named
func (a *IndexerAccess) NodeName() string { return "IndexerAccess" }

// Update returns a with the given children
func (a *IndexerAccess) Update(object, argument ir.Node) *IndexerAccess {
	if object == a.Object && argument == a.Argument {
		return a
	}
	return must(newIndexerAccess(object, argument, a.Length, a.Indexer, a.Slice))
}

// VisitChildren implements Node interface
func (a *IndexerAccess) VisitChildren(v ir.Visitor) ir.Node {
	return a.Update(ir.Accept(a.Object, v), ir.Accept(a.Argument, v))
}

func (a *IndexerAccess) canAssign() bool { return a.Indexer != nil && a.Indexer.CanWrite() }

func (a *IndexerAccess) length(o ir.Node) ir.Node { return ir.NewProperty(o, a.Length) }

// Reduce implements ir.Extension
func (a *IndexerAccess) Reduce() ir.Node {
	var t temps
	if a.Indexer != nil {
		o, offset := indexOffset(&t, a.Object, a.Argument, a.length, false)
		return t.block(ir.NewIndexer(o, a.Indexer, offset))
	}
	o, start, size := a.slice(&t)
	return t.block(ir.NewCall(o, a.Slice, start, size))
}

func (a *IndexerAccess) reduceAssign(fn func(loc ir.Node) ir.Node) ir.Node {
	var t temps
	o, offset := indexOffset(&t, a.Object, a.Argument, a.length, true)
	return t.block(fn(ir.NewIndexer(o, a.Indexer, offset)))
}

// slice computes the start and size of a Range argument. Range literals
// fold constants and cancel the length where both bounds count from the
// same end.
func (a *IndexerAccess) slice(t *temps) (o, start, size ir.Node) {
	s, e, ok := classifyRange(a.Argument)
	if !ok {
		o = t.spill(a.Object, "receiver")
		r := t.spill(a.Argument, "range")
		n := t.capture(a.length(o), "length")
		st := t.capture(ir.NewCall(ir.NewProperty(r, runtime.RangeStart), runtime.IndexGetOffset, n), "start")
		end := ir.NewCall(ir.NewProperty(r, runtime.RangeEnd), runtime.IndexGetOffset, n)
		return o, st, ir.Subtract(end, st)
	}
	o = t.spill(a.Object, "receiver")
	sv := t.spill(s.value, "start")
	ev := t.spill(e.value, "end")
	switch {
	case !s.fromEnd && !e.fromEnd:
		return o, sv, sub(ev, sv)
	case s.fromEnd && e.fromEnd:
		// (length - ev) - (length - sv)
		return o, sub(a.length(o), sv), sub(sv, ev)
	case !s.fromEnd:
		return o, sv, sub(sub(a.length(o), ev), sv)
	}
	st := t.capture(sub(a.length(o), sv), "start")
	return o, st, sub(ev, st)
}
