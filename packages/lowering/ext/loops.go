package ext

import (
	"exprfutures-go/packages/lowering/async"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

func requireVoidLabel(what string, l *ir.LabelTarget) error {
	if l != nil && !l.Type().IsVoid() {
		return mismatch("%s label %s must be void, got %s", what, l, l.Type())
	}
	return nil
}

func checkLoopLabels(brk, cont *ir.LabelTarget) error {
	if err := requireVoidLabel("break", brk); err != nil {
		return err
	}
	if err := requireVoidLabel("continue", cont); err != nil {
		return err
	}
	if brk != nil && brk == cont {
		return invalid("break and continue labels must differ")
	}
	return nil
}

// labelOr returns l, or a fresh void label when l is nil
func labelOr(l *ir.LabelTarget, name string) *ir.LabelTarget {
	if l != nil {
		return l
	}
	return ir.NewLabelTarget(types.Void, name)
}

func isConstTrue(n ir.Node) bool {
	c, ok := n.(*ir.ConstantExpr)
	return ok && c.Value == true
}

// exitUnless creates if (!test) break
func exitUnless(test ir.Node, brk *ir.LabelTarget) ir.Node {
	return ir.IfThen(ir.Not(test), ir.Break(brk))
}

// While runs Body as long as Test holds
type While struct {
	Test          ir.Node
	Body          ir.Node
	BreakLabel    *ir.LabelTarget
	ContinueLabel *ir.LabelTarget
}

// NewWhile creates a while loop; the labels may be nil
func NewWhile(test, body ir.Node, brk, cont *ir.LabelTarget) (*While, error) {
	if err := requireBool("while condition", test); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, invalid("while body is missing")
	}
	if err := checkLoopLabels(brk, cont); err != nil {
		return nil, err
	}
	return &While{
		Test:          test,
		Body:          body,
		BreakLabel:    brk,
		ContinueLabel: cont,
	}, nil
}

// Kind implements Node interface
func (w *While) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (w *While) Type() *types.Type { return types.Void }

// NodeName implements ir.Named
func (w *While) NodeName() string { return "While" }

// Update returns w with the given children
func (w *While) Update(brk, cont *ir.LabelTarget, test, body ir.Node) *While {
	if brk == w.BreakLabel && cont == w.ContinueLabel && test == w.Test && body == w.Body {
		return w
	}
	return must(NewWhile(test, body, brk, cont))
}

// VisitChildren implements Node interface
func (w *While) VisitChildren(v ir.Visitor) ir.Node {
	return w.Update(w.BreakLabel, w.ContinueLabel, ir.Accept(w.Test, v), ir.Accept(w.Body, v))
}

// Reduce implements ir.Extension
func (w *While) Reduce() ir.Node {
	brk := labelOr(w.BreakLabel, "break")
	cont := labelOr(w.ContinueLabel, "continue")
	if isConstTrue(w.Test) {
		return ir.NewLoop(voidBlock(w.Body), brk, cont)
	}
	return ir.NewLoop(ir.VoidBlock(exitUnless(w.Test, brk), w.Body), brk, cont)
}

// DoWhile runs Body once and then as long as Test holds
type DoWhile struct {
	Body          ir.Node
	Test          ir.Node
	BreakLabel    *ir.LabelTarget
	ContinueLabel *ir.LabelTarget
}

// NewDoWhile creates a do-while loop; the labels may be nil
func NewDoWhile(body, test ir.Node, brk, cont *ir.LabelTarget) (*DoWhile, error) {
	if body == nil {
		return nil, invalid("do body is missing")
	}
	if err := requireBool("do-while condition", test); err != nil {
		return nil, err
	}
	if err := checkLoopLabels(brk, cont); err != nil {
		return nil, err
	}
	return &DoWhile{
		Body:          body,
		Test:          test,
		BreakLabel:    brk,
		ContinueLabel: cont,
	}, nil
}

// Kind implements Node interface
func (d *DoWhile) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (d *DoWhile) Type() *types.Type { return types.Void }

// NodeName implements ir.Named
func (d *DoWhile) NodeName() string { return "DoWhile" }

// Update returns d with the given children
func (d *DoWhile) Update(brk, cont *ir.LabelTarget, body, test ir.Node) *DoWhile {
	if brk == d.BreakLabel && cont == d.ContinueLabel && body == d.Body && test == d.Test {
		return d
	}
	return must(NewDoWhile(body, test, brk, cont))
}

// VisitChildren implements Node interface
func (d *DoWhile) VisitChildren(v ir.Visitor) ir.Node {
	return d.Update(d.BreakLabel, d.ContinueLabel, ir.Accept(d.Body, v), ir.Accept(d.Test, v))
}

// Reduce implements ir.Extension. The continue label sits right before
// the test, so continue re-evaluates the condition.
func (d *DoWhile) Reduce() ir.Node {
	brk := labelOr(d.BreakLabel, "break")
	cont := labelOr(d.ContinueLabel, "continue")
	return ir.NewLoop(ir.VoidBlock(d.Body, ir.Label(cont), exitUnless(d.Test, brk)), brk, nil)
}

// For is a for loop. Variables are scoped over the whole loop; the
// initializers run once, the iterators after every iteration.
type For struct {
	Variables     []*ir.Variable
	Initializers  []ir.Node
	Test          ir.Node
	Iterators     []ir.Node
	Body          ir.Node
	BreakLabel    *ir.LabelTarget
	ContinueLabel *ir.LabelTarget
}

// NewFor creates a for loop. A nil test loops until a break.
func NewFor(vars []*ir.Variable, inits []ir.Node, test ir.Node, iterators []ir.Node, body ir.Node, brk, cont *ir.LabelTarget) (*For, error) {
	if err := checkUniqueVariables(vars); err != nil {
		return nil, err
	}
	if test != nil {
		if err := requireBool("for condition", test); err != nil {
			return nil, err
		}
	}
	if body == nil {
		return nil, invalid("for body is missing")
	}
	for _, list := range [][]ir.Node{inits, iterators} {
		for _, n := range list {
			if n == nil {
				return nil, invalid("nil for initializer or iterator")
			}
		}
	}
	if err := checkLoopLabels(brk, cont); err != nil {
		return nil, err
	}
	return &For{
		Variables:     vars,
		Initializers:  inits,
		Test:          test,
		Iterators:     iterators,
		Body:          body,
		BreakLabel:    brk,
		ContinueLabel: cont,
	}, nil
}

// Kind implements Node interface
func (f *For) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (f *For) Type() *types.Type { return types.Void }

// NodeName implements ir.Named
func (f *For) NodeName() string { return "For" }

// Update returns f with the given children
func (f *For) Update(brk, cont *ir.LabelTarget, vars []*ir.Variable, inits []ir.Node, test ir.Node, iterators []ir.Node, body ir.Node) *For {
	if brk == f.BreakLabel && cont == f.ContinueLabel && sameVariables(vars, f.Variables) && sameNodes(inits, f.Initializers) &&
		test == f.Test && sameNodes(iterators, f.Iterators) && body == f.Body {
		return f
	}
	return must(NewFor(vars, inits, test, iterators, body, brk, cont))
}

// VisitChildren implements Node interface
func (f *For) VisitChildren(v ir.Visitor) ir.Node {
	return f.Update(f.BreakLabel, f.ContinueLabel,
		visitVariables(v, f.Variables),
		visitList(v, f.Initializers),
		ir.Accept(f.Test, v),
		visitList(v, f.Iterators),
		ir.Accept(f.Body, v))
}

// Reduce implements ir.Extension
func (f *For) Reduce() ir.Node {
	brk := labelOr(f.BreakLabel, "break")
	cont := labelOr(f.ContinueLabel, "continue")
	var body []ir.Node
	if f.Test != nil && !isConstTrue(f.Test) {
		body = append(body, exitUnless(f.Test, brk))
	}
	body = append(body, f.Body, ir.Label(cont))
	body = append(body, f.Iterators...)
	loop := ir.NewLoop(ir.VoidBlock(body...), brk, nil)
	return ir.NewBlockTyped(types.Void, f.Variables, append(append([]ir.Node(nil), f.Initializers...), loop)...)
}

// EnumeratorInfo holds the members used by foreach over a collection type:
// GetEnumerator (or GetAsyncEnumerator), MoveNext (or MoveNextAsync) and
// Current. MoveNextAwait is set for asynchronous enumeration.
type EnumeratorInfo struct {
	CollectionType *types.Type
	GetEnumerator  *types.Method
	MoveNext       *types.Method
	Current        *types.Property
	MoveNextAwait  *async.AwaitInfo
}

// EnumeratorType returns the type of the enumerator
func (e *EnumeratorInfo) EnumeratorType() *types.Type { return e.GetEnumerator.Return }

// ElementType returns the type of Current
func (e *EnumeratorInfo) ElementType() *types.Type { return e.Current.Type }

// IsAsync reports whether the enumeration awaits MoveNextAsync
func (e *EnumeratorInfo) IsAsync() bool { return e.MoveNextAwait != nil }

// BindEnumeratorInfo resolves the enumeration pattern of collectionType
// through the binder
func BindEnumeratorInfo(collectionType *types.Type, isAsync bool) (*EnumeratorInfo, error) {
	getName, moveName := "GetEnumerator", "MoveNext"
	if isAsync {
		getName, moveName = "GetAsyncEnumerator", "MoveNextAsync"
	}
	get, err := types.Binder.LookupMethod(collectionType, getName)
	if err != nil {
		return nil, wrapf(ErrInvalidArgument, "%s is not enumerable: %v", collectionType, err)
	}
	move, err := types.Binder.LookupMethod(get.Return, moveName)
	if err != nil {
		return nil, wrapf(ErrInvalidArgument, "enumerator %s: %v", get.Return, err)
	}
	current, err := types.Binder.LookupProperty(get.Return, "Current")
	if err != nil {
		return nil, wrapf(ErrInvalidArgument, "enumerator %s: %v", get.Return, err)
	}
	return NewEnumeratorInfo(collectionType, get, move, current, isAsync)
}

// NewEnumeratorInfo checks the shape of the enumeration members
func NewEnumeratorInfo(collectionType *types.Type, getEnumerator, moveNext *types.Method, current *types.Property, isAsync bool) (*EnumeratorInfo, error) {
	if getEnumerator == nil || moveNext == nil || current == nil {
		return nil, invalid("enumerator info requires GetEnumerator, MoveNext and Current")
	}
	if getEnumerator.Static || len(getEnumerator.Params) != 0 || getEnumerator.Return.IsVoid() {
		return nil, invalid("%s must be an instance method without parameters returning the enumerator", getEnumerator)
	}
	if !isAssignable(getEnumerator.DeclaringType, collectionType) {
		return nil, mismatch("%s is not declared on %s", getEnumerator, collectionType)
	}
	en := getEnumerator.Return
	if moveNext.Static || len(moveNext.Params) != 0 || !isAssignable(moveNext.DeclaringType, en) {
		return nil, invalid("%s must be an instance method of %s without parameters", moveNext, en)
	}
	if current.Static || current.IsIndexer() || !current.CanRead() || !isAssignable(current.DeclaringType, en) {
		return nil, invalid("Current must be a readable instance property of %s", en)
	}
	info := &EnumeratorInfo{
		CollectionType: collectionType,
		GetEnumerator:  getEnumerator,
		MoveNext:       moveNext,
		Current:        current,
	}
	if !isAsync {
		if moveNext.Return != types.Bool {
			return nil, mismatch("%s must return bool, got %s", moveNext, moveNext.Return)
		}
		return info, nil
	}
	aw, err := async.BindAwaitInfo(moveNext.Return)
	if err != nil {
		return nil, err
	}
	if aw.ResultType() != types.Bool {
		return nil, mismatch("awaiting %s must produce bool, got %s", moveNext, aw.ResultType())
	}
	info.MoveNextAwait = aw
	return info, nil
}

// ForEach runs Body for every element of Collection, assigning the element
// to Variable. Arrays are enumerated by index; other collections through
// their enumerator, which is disposed when the loop ends.
type ForEach struct {
	Variable      *ir.Variable
	Collection    ir.Node
	Body          ir.Node
	BreakLabel    *ir.LabelTarget
	ContinueLabel *ir.LabelTarget
	Info          *EnumeratorInfo
	// PreferSealedDispose is passed on to the using that disposes the
	// enumerator
	PreferSealedDispose bool
}

// NewForEach creates a foreach loop. A nil info binds the enumeration
// pattern of the collection type; arrays need none.
func NewForEach(variable *ir.Variable, collection, body ir.Node, brk, cont *ir.LabelTarget, info *EnumeratorInfo) (*ForEach, error) {
	return newForEach(variable, collection, body, brk, cont, info, false)
}

// NewAwaitForEach creates an asynchronous foreach loop
func NewAwaitForEach(variable *ir.Variable, collection, body ir.Node, brk, cont *ir.LabelTarget, info *EnumeratorInfo) (*ForEach, error) {
	return newForEach(variable, collection, body, brk, cont, info, true)
}

func newForEach(variable *ir.Variable, collection, body ir.Node, brk, cont *ir.LabelTarget, info *EnumeratorInfo, isAsync bool) (*ForEach, error) {
	if variable == nil {
		return nil, invalid("foreach variable is missing")
	}
	if collection == nil || body == nil {
		return nil, invalid("foreach collection and body are required")
	}
	if err := checkLoopLabels(brk, cont); err != nil {
		return nil, err
	}
	ct := collection.Type()
	elem := ct.Elem
	if ct.Kind != types.KindArray || isAsync || info != nil {
		if info == nil {
			var err error
			if info, err = BindEnumeratorInfo(ct, isAsync); err != nil {
				return nil, err
			}
		}
		if info.IsAsync() != isAsync {
			return nil, invalid("enumerator info does not match the foreach kind")
		}
		if !isAssignable(info.CollectionType, ct) {
			return nil, mismatch("collection of type %s does not match enumerator info for %s", ct, info.CollectionType)
		}
		elem = info.ElementType()
	}
	if !isAssignable(variable.Type(), elem) && !canConvert(elem, variable.Type()) {
		return nil, mismatch("element of type %s cannot be assigned to %s of type %s", elem, variable, variable.Type())
	}
	return &ForEach{
		Variable:            variable,
		Collection:          collection,
		Body:                body,
		BreakLabel:          brk,
		ContinueLabel:       cont,
		Info:                info,
		PreferSealedDispose: preferSealedDispose.Load(),
	}, nil
}

// canConvert reports whether an explicit conversion from one type to the
// other exists
func canConvert(from, to *types.Type) bool {
	switch {
	case isAssignable(to, from), isAssignable(from, to):
		return true
	case from.NonNullable().IsNumeric() && to.NonNullable().IsNumeric():
		return true
	case to.IsNullable():
		return isAssignable(to.Elem, from)
	case from.IsNullable():
		return isAssignable(to, from.Elem)
	case to.Kind == types.KindInterface || from.Kind == types.KindInterface:
		return !from.Sealed || from.Implements(to)
	}
	return false
}

// IsAsync reports whether the loop awaits its enumerator
func (f *ForEach) IsAsync() bool { return f.Info != nil && f.Info.IsAsync() }

// Kind implements Node interface
func (f *ForEach) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (f *ForEach) Type() *types.Type { return types.Void }

// NodeName implements ir.Named
func (f *ForEach) NodeName() string {
	if f.IsAsync() {
		return "AwaitForEach"
	}
	return "ForEach"
}

// Update returns f with the given children
func (f *ForEach) Update(brk, cont *ir.LabelTarget, variable *ir.Variable, collection, body ir.Node) *ForEach {
	if brk == f.BreakLabel && cont == f.ContinueLabel && variable == f.Variable && collection == f.Collection && body == f.Body {
		return f
	}
	res := must(newForEach(variable, collection, body, brk, cont, f.Info, f.IsAsync()))
	res.PreferSealedDispose = f.PreferSealedDispose
	return res
}

// VisitChildren implements Node interface
func (f *ForEach) VisitChildren(v ir.Visitor) ir.Node {
	return f.Update(f.BreakLabel, f.ContinueLabel, visitVariable(v, f.Variable), ir.Accept(f.Collection, v), ir.Accept(f.Body, v))
}

// iteration declares the loop variable for a single iteration, so closures
// capture a fresh variable each time
func (f *ForEach) iteration(current ir.Node) ir.Node {
	return ir.NewBlockTyped(types.Void, []*ir.Variable{f.Variable},
		ir.NewAssign(f.Variable, convertIfNeeded(current, f.Variable.Type())),
		f.Body)
}

// Reduce implements ir.Extension
func (f *ForEach) Reduce() ir.Node {
	brk := labelOr(f.BreakLabel, "break")
	cont := labelOr(f.ContinueLabel, "continue")
	if f.Info == nil {
		return f.reduceArray(brk, cont)
	}
	return f.reduceEnumerator(brk, cont)
}

func (f *ForEach) reduceArray(brk, cont *ir.LabelTarget) ir.Node {
	arr := ir.NewVariable(f.Collection.Type(), "array")
	i := ir.NewVariable(types.Int, "i")
	loop := ir.NewLoop(ir.VoidBlock(
		exitUnless(ir.LessThan(i, ir.ArrayLength(arr)), brk),
		f.iteration(ir.NewArrayIndex(arr, i)),
		ir.Label(cont),
		ir.NewAssign(i, ir.Add(i, ir.Const(1))),
	), brk, nil)
	return ir.NewBlockTyped(types.Void, []*ir.Variable{arr, i},
		ir.NewAssign(arr, f.Collection),
		ir.NewAssign(i, ir.Const(0)),
		loop)
}

func (f *ForEach) reduceEnumerator(brk, cont *ir.LabelTarget) ir.Node {
	info := f.Info
	en := ir.NewVariable(info.EnumeratorType(), "enumerator")
	var moveNext ir.Node = ir.NewCall(en, info.MoveNext)
	if info.IsAsync() {
		moveNext = must(async.NewAwait(moveNext, info.MoveNextAwait))
	}
	loop := ir.NewLoop(ir.VoidBlock(
		exitUnless(moveNext, brk),
		f.iteration(ir.NewProperty(en, info.Current)),
		ir.Label(cont),
	), brk, nil)

	getEnumerator := ir.NewCall(convertIfNeeded(f.Collection, info.GetEnumerator.DeclaringType), info.GetEnumerator)
	disposable := runtime.IDisposableType
	if info.IsAsync() {
		disposable = runtime.IAsyncDisposableType
	}
	if isAssignable(disposable, en.Type().NonNullable()) {
		tracer().Debugf("foreach over %s disposes its enumerator", f.Collection.Type())
		u := must(newUsing(en, getEnumerator, loop, info.IsAsync()))
		u.PreferSealedDispose = f.PreferSealedDispose
		return u
	}
	return ir.NewBlockTyped(types.Void, []*ir.Variable{en}, ir.NewAssign(en, getEnumerator), loop)
}
