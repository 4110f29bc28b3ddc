package ir

import (
	"fmt"
	"sync/atomic"

	"exprfutures-go/packages/lowering/types"
)

var variableIDs atomic.Int64

// ConstantExpr is a constant value
type ConstantExpr struct {
	Value any
	typ   *types.Type
}

// NewConstant creates a constant of type t
func NewConstant(value any, t *types.Type) *ConstantExpr {
	return &ConstantExpr{
		Value: value,
		typ:   t,
	}
}

// Const creates a constant whose type is inferred from the Go value. A nil
// value is an object-typed null.
func Const(value any) *ConstantExpr {
	switch value.(type) {
	case nil:
		return NewConstant(nil, types.Object)
	case bool:
		return NewConstant(value, types.Bool)
	case int:
		return NewConstant(value, types.Int)
	case int64:
		return NewConstant(value, types.Long)
	case float64:
		return NewConstant(value, types.Double)
	case string:
		return NewConstant(value, types.String)
	}
	panic(fmt.Sprintf("Const: cannot infer the type of %T", value))
}

// Kind implements Node interface
func (c *ConstantExpr) Kind() NodeKind { return KindConstant }

// Type implements Node interface
func (c *ConstantExpr) Type() *types.Type { return c.typ }

// VisitChildren implements Node interface
func (c *ConstantExpr) VisitChildren(Visitor) Node { return c }

// DefaultExpr produces the default value of a type; the void default is the
// empty expression
type DefaultExpr struct {
	typ *types.Type
}

// NewDefault creates a default expression
func NewDefault(t *types.Type) *DefaultExpr {
	return &DefaultExpr{typ: t}
}

// Empty creates a void no-op
func Empty() *DefaultExpr {
	return NewDefault(types.Void)
}

// Kind implements Node interface
func (d *DefaultExpr) Kind() NodeKind { return KindDefault }

// Type implements Node interface
func (d *DefaultExpr) Type() *types.Type { return d.typ }

// VisitChildren implements Node interface
func (d *DefaultExpr) VisitChildren(Visitor) Node { return d }

// IsEmpty reports whether n is a void default expression
func IsEmpty(n Node) bool {
	d, ok := n.(*DefaultExpr)
	return ok && d.typ.IsVoid()
}

// Variable is a local, a lambda parameter or a catch variable. Variables
// are compared by identity; ID is unique within the process.
type Variable struct {
	Name  string
	ID    int64
	ByRef bool
	typ   *types.Type
}

// NewVariable creates a variable
func NewVariable(t *types.Type, name string) *Variable {
	if t.IsVoid() {
		panic("NewVariable: variables cannot be of type void")
	}
	return &Variable{
		Name: name,
		ID:   variableIDs.Add(1),
		typ:  t,
	}
}

// NewRefParameter creates a by-reference lambda parameter
func NewRefParameter(t *types.Type, name string) *Variable {
	v := NewVariable(t, name)
	v.ByRef = true
	return v
}

// Kind implements Node interface
func (v *Variable) Kind() NodeKind { return KindVariable }

// Type implements Node interface
func (v *Variable) Type() *types.Type { return v.typ }

// VisitChildren implements Node interface
func (v *Variable) VisitChildren(Visitor) Node { return v }

func (v *Variable) String() string {
	if v.Name == "" {
		return fmt.Sprintf("$%d", v.ID)
	}
	return v.Name
}

// AssignExpr stores Right into the location Left: a variable, a field, a
// writable property or an array element or indexer
type AssignExpr struct {
	Left  Node
	Right Node
}

// NewAssign creates an assignment
func NewAssign(left, right Node) *AssignExpr {
	switch l := left.(type) {
	case *Variable:
	case *MemberExpr:
		if l.Property != nil && !l.Property.CanWrite() {
			panic(fmt.Sprintf("NewAssign: property %s is read-only", l.Property.Name))
		}
	case *IndexExpr:
		if l.Indexer != nil && !l.Indexer.CanWrite() {
			panic(fmt.Sprintf("NewAssign: indexer %s is read-only", l.Indexer.Name))
		}
	default:
		panic(fmt.Sprintf("NewAssign: %s is not assignable", left.Kind()))
	}
	return &AssignExpr{
		Left:  left,
		Right: right,
	}
}

// Kind implements Node interface
func (a *AssignExpr) Kind() NodeKind { return KindAssign }

// Type implements Node interface
func (a *AssignExpr) Type() *types.Type { return a.Left.Type() }

// Update returns a with the given children
func (a *AssignExpr) Update(left, right Node) *AssignExpr {
	if left == a.Left && right == a.Right {
		return a
	}
	return NewAssign(left, right)
}

// VisitChildren implements Node interface
func (a *AssignExpr) VisitChildren(v Visitor) Node {
	return a.Update(Accept(a.Left, v), Accept(a.Right, v))
}

// BinaryOp is a binary operator
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpAnd
	OpOr
	OpExclusiveOr
	OpLeftShift
	OpRightShift
	OpAndAlso
	OpOrElse
	OpEqual
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpCoalesce
)

var binaryOpNames = [...]string{
	OpAdd:                "+",
	OpSubtract:           "-",
	OpMultiply:           "*",
	OpDivide:             "/",
	OpModulo:             "%",
	OpAnd:                "&",
	OpOr:                 "|",
	OpExclusiveOr:        "^",
	OpLeftShift:          "<<",
	OpRightShift:         ">>",
	OpAndAlso:            "&&",
	OpOrElse:             "||",
	OpEqual:              "==",
	OpNotEqual:           "!=",
	OpLessThan:           "<",
	OpLessThanOrEqual:    "<=",
	OpGreaterThan:        ">",
	OpGreaterThanOrEqual: ">=",
	OpCoalesce:           "??",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

// IsComparison reports whether op produces a bool from two operands
func (op BinaryOp) IsComparison() bool {
	return op >= OpEqual && op <= OpGreaterThanOrEqual
}

// BinaryExpr applies a binary operator. With a Method, the operator is a
// call to that static method.
type BinaryExpr struct {
	Op     BinaryOp
	Left   Node
	Right  Node
	Method *types.Method
	typ    *types.Type
}

// NewBinary creates a binary expression, inferring the result type. An
// operand of nullable type lifts arithmetic to a nullable result.
func NewBinary(op BinaryOp, left, right Node) *BinaryExpr {
	return &BinaryExpr{
		Op:    op,
		Left:  left,
		Right: right,
		typ:   binaryResultType(op, left.Type(), right.Type()),
	}
}

// NewBinaryMethod creates a binary expression implemented by a static
// method taking both operands
func NewBinaryMethod(op BinaryOp, left, right Node, method *types.Method) *BinaryExpr {
	if method == nil {
		return NewBinary(op, left, right)
	}
	if len(method.Params) != 2 || !method.Static {
		panic(fmt.Sprintf("NewBinaryMethod: %s must be static and take two parameters", method))
	}
	return &BinaryExpr{
		Op:     op,
		Left:   left,
		Right:  right,
		Method: method,
		typ:    method.Return,
	}
}

func binaryResultType(op BinaryOp, l, r *types.Type) *types.Type {
	switch {
	case op.IsComparison(), op == OpAndAlso, op == OpOrElse:
		return types.Bool
	case op == OpCoalesce:
		if l.IsNullable() && !r.IsNullable() {
			return r
		}
		return l
	case op == OpLeftShift, op == OpRightShift:
		return l
	}
	if l.IsNullable() || r.IsNullable() {
		elem := l.NonNullable()
		if elem.Kind == types.KindString || elem.Kind == types.KindObject {
			return elem
		}
		return types.NullableOf(elem)
	}
	return l
}

// Kind implements Node interface
func (b *BinaryExpr) Kind() NodeKind { return KindBinary }

// Type implements Node interface
func (b *BinaryExpr) Type() *types.Type { return b.typ }

// Update returns b with the given operands
func (b *BinaryExpr) Update(left, right Node) *BinaryExpr {
	if left == b.Left && right == b.Right {
		return b
	}
	if b.Method != nil {
		return NewBinaryMethod(b.Op, left, right, b.Method)
	}
	return NewBinary(b.Op, left, right)
}

// VisitChildren implements Node interface
func (b *BinaryExpr) VisitChildren(v Visitor) Node {
	return b.Update(Accept(b.Left, v), Accept(b.Right, v))
}

// Add creates left + right
func Add(left, right Node) *BinaryExpr { return NewBinary(OpAdd, left, right) }

// Subtract creates left - right
func Subtract(left, right Node) *BinaryExpr { return NewBinary(OpSubtract, left, right) }

// Equal creates left == right
func Equal(left, right Node) *BinaryExpr { return NewBinary(OpEqual, left, right) }

// NotEqual creates left != right
func NotEqual(left, right Node) *BinaryExpr { return NewBinary(OpNotEqual, left, right) }

// LessThan creates left < right
func LessThan(left, right Node) *BinaryExpr { return NewBinary(OpLessThan, left, right) }

// GreaterThanOrEqual creates left >= right
func GreaterThanOrEqual(left, right Node) *BinaryExpr {
	return NewBinary(OpGreaterThanOrEqual, left, right)
}

// AndAlso creates left && right
func AndAlso(left, right Node) *BinaryExpr { return NewBinary(OpAndAlso, left, right) }

// OrElse creates left || right
func OrElse(left, right Node) *BinaryExpr { return NewBinary(OpOrElse, left, right) }

// Coalesce creates left ?? right
func Coalesce(left, right Node) *BinaryExpr { return NewBinary(OpCoalesce, left, right) }

// IsNull creates operand == null
func IsNull(operand Node) *BinaryExpr {
	return Equal(operand, NewConstant(nil, operand.Type()))
}

// IsNotNull creates operand != null
func IsNotNull(operand Node) *BinaryExpr {
	return NotEqual(operand, NewConstant(nil, operand.Type()))
}

// UnaryOp is a unary operator
type UnaryOp int

const (
	OpNegate UnaryOp = iota
	OpNot
	OpOnesComplement
	// OpConvert converts the operand to the node type
	OpConvert
	// OpTypeAs yields the operand when it is an instance of the node type,
	// and null otherwise
	OpTypeAs
	// OpArrayLength reads the length of an array
	OpArrayLength
)

var unaryOpNames = [...]string{
	OpNegate:         "-",
	OpNot:            "!",
	OpOnesComplement: "~",
	OpConvert:        "convert",
	OpTypeAs:         "as",
	OpArrayLength:    "length",
}

func (op UnaryOp) String() string {
	if int(op) < len(unaryOpNames) {
		return unaryOpNames[op]
	}
	return fmt.Sprintf("UnaryOp(%d)", int(op))
}

// UnaryExpr applies a unary operator
type UnaryExpr struct {
	Op      UnaryOp
	Operand Node
	Method  *types.Method
	typ     *types.Type
}

// NewUnary creates a unary expression of type t. A nil t keeps the operand
// type, or int for OpArrayLength.
func NewUnary(op UnaryOp, operand Node, t *types.Type) *UnaryExpr {
	if t == nil {
		switch op {
		case OpConvert, OpTypeAs:
			panic(fmt.Sprintf("NewUnary: %s requires a target type", op))
		case OpArrayLength:
			if operand.Type().Kind != types.KindArray {
				panic(fmt.Sprintf("NewUnary: length of non-array %s", operand.Type()))
			}
			t = types.Int
		default:
			t = operand.Type()
		}
	}
	if op == OpTypeAs && !t.CanBeNull() {
		panic(fmt.Sprintf("NewUnary: as %s requires a type that can be null", t))
	}
	return &UnaryExpr{
		Op:      op,
		Operand: operand,
		typ:     t,
	}
}

// Kind implements Node interface
func (u *UnaryExpr) Kind() NodeKind { return KindUnary }

// Type implements Node interface
func (u *UnaryExpr) Type() *types.Type { return u.typ }

// Update returns u with the given operand
func (u *UnaryExpr) Update(operand Node) *UnaryExpr {
	if operand == u.Operand {
		return u
	}
	res := NewUnary(u.Op, operand, u.typ)
	res.Method = u.Method
	return res
}

// VisitChildren implements Node interface
func (u *UnaryExpr) VisitChildren(v Visitor) Node {
	return u.Update(Accept(u.Operand, v))
}

// Not creates !operand
func Not(operand Node) *UnaryExpr { return NewUnary(OpNot, operand, nil) }

// Negate creates -operand
func Negate(operand Node) *UnaryExpr { return NewUnary(OpNegate, operand, nil) }

// Convert converts operand to t. Converting to the operand's own type
// returns the operand.
func Convert(operand Node, t *types.Type) Node {
	if operand.Type() == t {
		return operand
	}
	return NewUnary(OpConvert, operand, t)
}

// TypeAs creates operand as t
func TypeAs(operand Node, t *types.Type) *UnaryExpr { return NewUnary(OpTypeAs, operand, t) }

// ArrayLength creates array.Length
func ArrayLength(array Node) *UnaryExpr { return NewUnary(OpArrayLength, array, nil) }

// TypeIsExpr tests whether the operand is a non-null instance of a type
type TypeIsExpr struct {
	Operand     Node
	TypeOperand *types.Type
}

// NewTypeIs creates operand is t
func NewTypeIs(operand Node, t *types.Type) *TypeIsExpr {
	return &TypeIsExpr{
		Operand:     operand,
		TypeOperand: t,
	}
}

// Kind implements Node interface
func (t *TypeIsExpr) Kind() NodeKind { return KindTypeIs }

// Type implements Node interface
func (t *TypeIsExpr) Type() *types.Type { return types.Bool }

// Update returns t with the given operand
func (t *TypeIsExpr) Update(operand Node) *TypeIsExpr {
	if operand == t.Operand {
		return t
	}
	return NewTypeIs(operand, t.TypeOperand)
}

// VisitChildren implements Node interface
func (t *TypeIsExpr) VisitChildren(v Visitor) Node {
	return t.Update(Accept(t.Operand, v))
}

// BlockExpr evaluates expressions in sequence within the scope of its
// variables; its value is the value of the last expression unless the
// block is typed void
type BlockExpr struct {
	Variables []*Variable
	Exprs     []Node
	typ       *types.Type
}

// NewBlock creates a block whose type is the type of its last expression
func NewBlock(vars []*Variable, exprs ...Node) *BlockExpr {
	if len(exprs) == 0 {
		exprs = []Node{Empty()}
	}
	return NewBlockTyped(exprs[len(exprs)-1].Type(), vars, exprs...)
}

// NewBlockTyped creates a block of type t. A non-void t must match the
// type of the last expression.
func NewBlockTyped(t *types.Type, vars []*Variable, exprs ...Node) *BlockExpr {
	if len(exprs) == 0 {
		exprs = []Node{Empty()}
	}
	if !t.IsVoid() && !types.IsAssignable(t, exprs[len(exprs)-1].Type()) {
		panic(fmt.Sprintf("NewBlockTyped: last expression of type %s does not match %s", exprs[len(exprs)-1].Type(), t))
	}
	return &BlockExpr{
		Variables: vars,
		Exprs:     exprs,
		typ:       t,
	}
}

// Block creates a block without variables
func Block(exprs ...Node) *BlockExpr {
	return NewBlock(nil, exprs...)
}

// VoidBlock creates a void block without variables
func VoidBlock(exprs ...Node) *BlockExpr {
	return NewBlockTyped(types.Void, nil, exprs...)
}

// Kind implements Node interface
func (b *BlockExpr) Kind() NodeKind { return KindBlock }

// Type implements Node interface
func (b *BlockExpr) Type() *types.Type { return b.typ }

// Result returns the last expression
func (b *BlockExpr) Result() Node { return b.Exprs[len(b.Exprs)-1] }

// Update returns b with the given variables and expressions
func (b *BlockExpr) Update(vars []*Variable, exprs []Node) *BlockExpr {
	if sameVariables(vars, b.Variables) && sameNodes(exprs, b.Exprs) {
		return b
	}
	return NewBlockTyped(b.typ, vars, exprs...)
}

// VisitChildren implements Node interface
func (b *BlockExpr) VisitChildren(v Visitor) Node {
	return b.Update(visitVariables(v, b.Variables), visitList(v, b.Exprs))
}

// ConditionalExpr is test ? IfTrue : IfFalse, or an if statement when void
type ConditionalExpr struct {
	Test    Node
	IfTrue  Node
	IfFalse Node
	typ     *types.Type
}

// NewConditional creates a conditional of type t
func NewConditional(test, ifTrue, ifFalse Node, t *types.Type) *ConditionalExpr {
	if test.Type() != types.Bool {
		panic(fmt.Sprintf("NewConditional: test must be bool, got %s", test.Type()))
	}
	if ifFalse == nil {
		ifFalse = NewDefault(t)
	}
	return &ConditionalExpr{
		Test:    test,
		IfTrue:  ifTrue,
		IfFalse: ifFalse,
		typ:     t,
	}
}

// Condition creates test ? ifTrue : ifFalse typed after ifTrue
func Condition(test, ifTrue, ifFalse Node) *ConditionalExpr {
	return NewConditional(test, ifTrue, ifFalse, ifTrue.Type())
}

// IfThen creates a void if statement
func IfThen(test, then Node) *ConditionalExpr {
	return NewConditional(test, then, Empty(), types.Void)
}

// IfThenElse creates a void if-else statement
func IfThenElse(test, then, els Node) *ConditionalExpr {
	return NewConditional(test, then, els, types.Void)
}

// Kind implements Node interface
func (c *ConditionalExpr) Kind() NodeKind { return KindConditional }

// Type implements Node interface
func (c *ConditionalExpr) Type() *types.Type { return c.typ }

// Update returns c with the given children
func (c *ConditionalExpr) Update(test, ifTrue, ifFalse Node) *ConditionalExpr {
	if test == c.Test && ifTrue == c.IfTrue && ifFalse == c.IfFalse {
		return c
	}
	return NewConditional(test, ifTrue, ifFalse, c.typ)
}

// VisitChildren implements Node interface
func (c *ConditionalExpr) VisitChildren(v Visitor) Node {
	return c.Update(Accept(c.Test, v), Accept(c.IfTrue, v), Accept(c.IfFalse, v))
}

// LabelTarget identifies a jump target. Targets are compared by identity.
type LabelTarget struct {
	Name string
	ID   int64
	typ  *types.Type
}

// NewLabelTarget creates a jump target carrying values of type t (void for
// plain labels)
func NewLabelTarget(t *types.Type, name string) *LabelTarget {
	if t == nil {
		t = types.Void
	}
	return &LabelTarget{
		Name: name,
		ID:   variableIDs.Add(1),
		typ:  t,
	}
}

// Type returns the type of values carried by jumps to the target
func (l *LabelTarget) Type() *types.Type { return l.typ }

func (l *LabelTarget) String() string {
	if l.Name == "" {
		return fmt.Sprintf("L%d", l.ID)
	}
	return l.Name
}

// LabelExpr marks the position of a target. Its value is Default when
// reached by falling through, or the jump value otherwise.
type LabelExpr struct {
	Target  *LabelTarget
	Default Node
}

// NewLabel creates a label expression
func NewLabel(target *LabelTarget, defaultValue Node) *LabelExpr {
	if defaultValue == nil && !target.typ.IsVoid() {
		defaultValue = NewDefault(target.typ)
	}
	return &LabelExpr{
		Target:  target,
		Default: defaultValue,
	}
}

// Label creates a label without a default value
func Label(target *LabelTarget) *LabelExpr {
	return NewLabel(target, nil)
}

// Kind implements Node interface
func (l *LabelExpr) Kind() NodeKind { return KindLabel }

// Type implements Node interface
func (l *LabelExpr) Type() *types.Type { return l.Target.typ }

// Update returns l with the given target and default value
func (l *LabelExpr) Update(target *LabelTarget, defaultValue Node) *LabelExpr {
	if target == l.Target && defaultValue == l.Default {
		return l
	}
	return NewLabel(target, defaultValue)
}

// VisitChildren implements Node interface
func (l *LabelExpr) VisitChildren(v Visitor) Node {
	return l.Update(l.Target, Accept(l.Default, v))
}

// GotoKind describes the statement a jump originates from
type GotoKind int

const (
	GotoKindGoto GotoKind = iota
	GotoKindReturn
	GotoKindBreak
	GotoKindContinue
)

func (k GotoKind) String() string {
	switch k {
	case GotoKindReturn:
		return "return"
	case GotoKindBreak:
		return "break"
	case GotoKindContinue:
		return "continue"
	}
	return "goto"
}

// GotoExpr jumps to a target, optionally carrying a value
type GotoExpr struct {
	GotoKind GotoKind
	Target   *LabelTarget
	Value    Node
	typ      *types.Type
}

// NewGoto creates a jump of type t
func NewGoto(kind GotoKind, target *LabelTarget, value Node, t *types.Type) *GotoExpr {
	if t == nil {
		t = types.Void
	}
	if value == nil && !target.typ.IsVoid() {
		panic(fmt.Sprintf("NewGoto: jump to %s requires a value of type %s", target, target.typ))
	}
	if value != nil && target.typ.IsVoid() {
		panic(fmt.Sprintf("NewGoto: jump to void label %s cannot carry a value", target))
	}
	return &GotoExpr{
		GotoKind: kind,
		Target:   target,
		Value:    value,
		typ:      t,
	}
}

// Goto creates a void jump to target
func Goto(target *LabelTarget) *GotoExpr {
	return NewGoto(GotoKindGoto, target, nil, nil)
}

// GotoValue creates a void jump to target carrying value
func GotoValue(target *LabelTarget, value Node) *GotoExpr {
	return NewGoto(GotoKindGoto, target, value, nil)
}

// Return creates a return jump
func Return(target *LabelTarget, value Node) *GotoExpr {
	return NewGoto(GotoKindReturn, target, value, nil)
}

// Break creates a break jump
func Break(target *LabelTarget) *GotoExpr {
	return NewGoto(GotoKindBreak, target, nil, nil)
}

// Continue creates a continue jump
func Continue(target *LabelTarget) *GotoExpr {
	return NewGoto(GotoKindContinue, target, nil, nil)
}

// Kind implements Node interface
func (g *GotoExpr) Kind() NodeKind { return KindGoto }

// Type implements Node interface
func (g *GotoExpr) Type() *types.Type { return g.typ }

// Update returns g with the given target and value
func (g *GotoExpr) Update(target *LabelTarget, value Node) *GotoExpr {
	if target == g.Target && value == g.Value {
		return g
	}
	return NewGoto(g.GotoKind, target, value, g.typ)
}

// VisitChildren implements Node interface
func (g *GotoExpr) VisitChildren(v Visitor) Node {
	return g.Update(g.Target, Accept(g.Value, v))
}

// LoopExpr repeats Body until a jump to Break. A jump to Continue starts the
// next iteration.
type LoopExpr struct {
	Body     Node
	Break    *LabelTarget
	Continue *LabelTarget
}

// NewLoop creates a loop; either label may be nil
func NewLoop(body Node, brk, cont *LabelTarget) *LoopExpr {
	if cont != nil && !cont.typ.IsVoid() {
		panic("NewLoop: continue label must be void")
	}
	return &LoopExpr{
		Body:     body,
		Break:    brk,
		Continue: cont,
	}
}

// Kind implements Node interface
func (l *LoopExpr) Kind() NodeKind { return KindLoop }

// Type implements Node interface
func (l *LoopExpr) Type() *types.Type {
	if l.Break == nil {
		return types.Void
	}
	return l.Break.typ
}

// Update returns l with the given labels and body
func (l *LoopExpr) Update(brk, cont *LabelTarget, body Node) *LoopExpr {
	if brk == l.Break && cont == l.Continue && body == l.Body {
		return l
	}
	return NewLoop(body, brk, cont)
}

// VisitChildren implements Node interface
func (l *LoopExpr) VisitChildren(v Visitor) Node {
	return l.Update(l.Break, l.Continue, Accept(l.Body, v))
}

// SwitchCase is one case of a SwitchExpr
type SwitchCase struct {
	TestValues []Node
	Body       Node
}

// NewSwitchCase creates a case matching any of the test values
func NewSwitchCase(body Node, tests ...Node) *SwitchCase {
	if len(tests) == 0 {
		panic("NewSwitchCase: a case requires at least one test value")
	}
	return &SwitchCase{
		TestValues: tests,
		Body:       body,
	}
}

// Update returns c with the given children
func (c *SwitchCase) Update(tests []Node, body Node) *SwitchCase {
	if sameNodes(tests, c.TestValues) && body == c.Body {
		return c
	}
	return NewSwitchCase(body, tests...)
}

// SwitchExpr compares a value with the test values of each case and runs
// the first matching case body, or Default. Control never falls through
// from one case to another.
type SwitchExpr struct {
	SwitchValue Node
	Cases       []*SwitchCase
	Default     Node
	typ         *types.Type
}

// NewSwitch creates a switch of type t; defaultBody may be nil
func NewSwitch(t *types.Type, value Node, defaultBody Node, cases ...*SwitchCase) *SwitchExpr {
	if t == nil {
		t = types.Void
	}
	if defaultBody == nil && !t.IsVoid() {
		panic("NewSwitch: a non-void switch requires a default body")
	}
	return &SwitchExpr{
		SwitchValue: value,
		Cases:       cases,
		Default:     defaultBody,
		typ:         t,
	}
}

// Kind implements Node interface
func (s *SwitchExpr) Kind() NodeKind { return KindSwitch }

// Type implements Node interface
func (s *SwitchExpr) Type() *types.Type { return s.typ }

// Update returns s with the given children
func (s *SwitchExpr) Update(value Node, cases []*SwitchCase, defaultBody Node) *SwitchExpr {
	if value == s.SwitchValue && defaultBody == s.Default && len(cases) == len(s.Cases) {
		same := true
		for i := range cases {
			if cases[i] != s.Cases[i] {
				same = false
				break
			}
		}
		if same {
			return s
		}
	}
	return NewSwitch(s.typ, value, defaultBody, cases...)
}

// VisitChildren implements Node interface
func (s *SwitchExpr) VisitChildren(v Visitor) Node {
	value := Accept(s.SwitchValue, v)
	var cases []*SwitchCase
	for i, c := range s.Cases {
		nc := c.Update(visitList(v, c.TestValues), Accept(c.Body, v))
		if cases == nil && nc != c {
			cases = make([]*SwitchCase, len(s.Cases))
			copy(cases, s.Cases[:i])
		}
		if cases != nil {
			cases[i] = nc
		}
	}
	if cases == nil {
		cases = s.Cases
	}
	return s.Update(value, cases, Accept(s.Default, v))
}

// CatchBlock handles exceptions assignable to Test for which Filter, when
// present, evaluates to true
type CatchBlock struct {
	Test     *types.Type
	Variable *Variable
	Filter   Node
	Body     Node
}

// NewCatch creates a catch block; variable and filter may be nil
func NewCatch(test *types.Type, variable *Variable, body, filter Node) *CatchBlock {
	if variable != nil && variable.Type() != test {
		panic(fmt.Sprintf("NewCatch: variable of type %s does not match %s", variable.Type(), test))
	}
	if filter != nil && filter.Type() != types.Bool {
		panic("NewCatch: filter must be bool")
	}
	return &CatchBlock{
		Test:     test,
		Variable: variable,
		Filter:   filter,
		Body:     body,
	}
}

// Update returns c with the given children
func (c *CatchBlock) Update(variable *Variable, filter, body Node) *CatchBlock {
	if variable == c.Variable && filter == c.Filter && body == c.Body {
		return c
	}
	return NewCatch(c.Test, variable, body, filter)
}

// TryExpr is a protected region with catch handlers, a finally block that
// always runs, or a fault block that runs only when an exception escapes
type TryExpr struct {
	Body     Node
	Handlers []*CatchBlock
	Finally  Node
	Fault    Node
	typ      *types.Type
}

// NewTry creates a try expression of type t
func NewTry(t *types.Type, body, finally, fault Node, handlers ...*CatchBlock) *TryExpr {
	if t == nil {
		t = body.Type()
	}
	if fault != nil && (finally != nil || len(handlers) > 0) {
		panic("NewTry: a fault block cannot be combined with catch or finally")
	}
	if finally == nil && fault == nil && len(handlers) == 0 {
		panic("NewTry: a try requires a handler, a finally or a fault block")
	}
	return &TryExpr{
		Body:     body,
		Handlers: handlers,
		Finally:  finally,
		Fault:    fault,
		typ:      t,
	}
}

// TryFinally creates try { body } finally { finally }
func TryFinally(body, finally Node) *TryExpr {
	return NewTry(body.Type(), body, finally, nil)
}

// TryCatch creates try { body } catch ...
func TryCatch(body Node, handlers ...*CatchBlock) *TryExpr {
	return NewTry(body.Type(), body, nil, nil, handlers...)
}

// Kind implements Node interface
func (t *TryExpr) Kind() NodeKind { return KindTry }

// Type implements Node interface
func (t *TryExpr) Type() *types.Type { return t.typ }

// Update returns t with the given children
func (t *TryExpr) Update(body Node, handlers []*CatchBlock, finally, fault Node) *TryExpr {
	if body == t.Body && finally == t.Finally && fault == t.Fault && len(handlers) == len(t.Handlers) {
		same := true
		for i := range handlers {
			if handlers[i] != t.Handlers[i] {
				same = false
				break
			}
		}
		if same {
			return t
		}
	}
	return NewTry(t.typ, body, finally, fault, handlers...)
}

// VisitChildren implements Node interface
func (t *TryExpr) VisitChildren(v Visitor) Node {
	body := Accept(t.Body, v)
	var handlers []*CatchBlock
	for i, h := range t.Handlers {
		nh := h.Update(visitVariable(v, h.Variable), Accept(h.Filter, v), Accept(h.Body, v))
		if handlers == nil && nh != h {
			handlers = make([]*CatchBlock, len(t.Handlers))
			copy(handlers, t.Handlers[:i])
		}
		if handlers != nil {
			handlers[i] = nh
		}
	}
	if handlers == nil {
		handlers = t.Handlers
	}
	return t.Update(body, handlers, Accept(t.Finally, v), Accept(t.Fault, v))
}

// ThrowExpr throws Value, or rethrows the exception being handled when
// Value is nil
type ThrowExpr struct {
	Value Node
	typ   *types.Type
}

// NewThrow creates a throw expression of type t
func NewThrow(value Node, t *types.Type) *ThrowExpr {
	if t == nil {
		t = types.Void
	}
	return &ThrowExpr{
		Value: value,
		typ:   t,
	}
}

// Throw creates a void throw statement
func Throw(value Node) *ThrowExpr {
	return NewThrow(value, nil)
}

// Rethrow creates a void rethrow statement
func Rethrow() *ThrowExpr {
	return NewThrow(nil, nil)
}

// Kind implements Node interface
func (t *ThrowExpr) Kind() NodeKind { return KindThrow }

// Type implements Node interface
func (t *ThrowExpr) Type() *types.Type { return t.typ }

// Update returns t with the given value
func (t *ThrowExpr) Update(value Node) *ThrowExpr {
	if value == t.Value {
		return t
	}
	return NewThrow(value, t.typ)
}

// VisitChildren implements Node interface
func (t *ThrowExpr) VisitChildren(v Visitor) Node {
	return t.Update(Accept(t.Value, v))
}

// CallExpr calls a method. Object is nil for static methods.
type CallExpr struct {
	Object Node
	Method *types.Method
	Args   []Node
}

// NewCall creates a method call
func NewCall(object Node, method *types.Method, args ...Node) *CallExpr {
	if method.IsGenericDefinition() {
		panic(fmt.Sprintf("NewCall: %s is an open generic method", method))
	}
	if method.Static != (object == nil) {
		panic(fmt.Sprintf("NewCall: receiver mismatch for %s", method))
	}
	if len(args) != len(method.Params) {
		panic(fmt.Sprintf("NewCall: %s expects %d arguments, got %d", method, len(method.Params), len(args)))
	}
	return &CallExpr{
		Object: object,
		Method: method,
		Args:   args,
	}
}

// Kind implements Node interface
func (c *CallExpr) Kind() NodeKind { return KindCall }

// Type implements Node interface
func (c *CallExpr) Type() *types.Type { return c.Method.Return }

// Update returns c with the given receiver and arguments
func (c *CallExpr) Update(object Node, args []Node) *CallExpr {
	if object == c.Object && sameNodes(args, c.Args) {
		return c
	}
	return NewCall(object, c.Method, args...)
}

// VisitChildren implements Node interface
func (c *CallExpr) VisitChildren(v Visitor) Node {
	return c.Update(Accept(c.Object, v), visitList(v, c.Args))
}

// InvokeExpr invokes a delegate or a lambda expression
type InvokeExpr struct {
	Expr Node
	Args []Node
}

// NewInvoke creates a delegate invocation
func NewInvoke(expr Node, args ...Node) *InvokeExpr {
	sig := expr.Type().Invoke
	if sig == nil {
		panic(fmt.Sprintf("NewInvoke: %s is not a delegate", expr.Type()))
	}
	if len(args) != len(sig.Params) {
		panic(fmt.Sprintf("NewInvoke: delegate expects %d arguments, got %d", len(sig.Params), len(args)))
	}
	return &InvokeExpr{
		Expr: expr,
		Args: args,
	}
}

// Kind implements Node interface
func (i *InvokeExpr) Kind() NodeKind { return KindInvoke }

// Type implements Node interface
func (i *InvokeExpr) Type() *types.Type { return i.Expr.Type().Invoke.Return }

// Update returns i with the given children
func (i *InvokeExpr) Update(expr Node, args []Node) *InvokeExpr {
	if expr == i.Expr && sameNodes(args, i.Args) {
		return i
	}
	return NewInvoke(expr, args...)
}

// VisitChildren implements Node interface
func (i *InvokeExpr) VisitChildren(v Visitor) Node {
	return i.Update(Accept(i.Expr, v), visitList(v, i.Args))
}

// LambdaExpr is an anonymous function. Its parameters are in scope in Body
// and the lambda captures enclosing variables by reference.
type LambdaExpr struct {
	Name   string
	Params []*Variable
	Body   Node
	typ    *types.Type
}

// NewLambda creates a lambda of the delegate type t
func NewLambda(t *types.Type, body Node, params ...*Variable) *LambdaExpr {
	sig := t.Invoke
	if sig == nil {
		panic(fmt.Sprintf("NewLambda: %s is not a delegate type", t))
	}
	if len(params) != len(sig.Params) {
		panic(fmt.Sprintf("NewLambda: %s expects %d parameters, got %d", t, len(sig.Params), len(params)))
	}
	return &LambdaExpr{
		Params: params,
		Body:   body,
		typ:    t,
	}
}

// Lambda creates a lambda whose delegate type is inferred from the body
// and parameters
func Lambda(body Node, params ...*Variable) *LambdaExpr {
	return NewLambda(DelegateTypeOf(body.Type(), params...), body, params...)
}

// DelegateTypeOf returns the delegate type for a lambda with the given
// return type and parameters
func DelegateTypeOf(ret *types.Type, params ...*Variable) *types.Type {
	ps := make([]*types.Parameter, len(params))
	for i, p := range params {
		ps[i] = &types.Parameter{Name: p.Name, Type: p.Type(), ByRef: p.ByRef}
	}
	return types.DelegateOf(ret, ps...)
}

// Kind implements Node interface
func (l *LambdaExpr) Kind() NodeKind { return KindLambda }

// Type implements Node interface
func (l *LambdaExpr) Type() *types.Type { return l.typ }

// ReturnType returns the return type of the delegate
func (l *LambdaExpr) ReturnType() *types.Type { return l.typ.Invoke.Return }

// Update returns l with the given parameters and body
func (l *LambdaExpr) Update(params []*Variable, body Node) *LambdaExpr {
	if sameVariables(params, l.Params) && body == l.Body {
		return l
	}
	res := NewLambda(l.typ, body, params...)
	res.Name = l.Name
	return res
}

// VisitChildren implements Node interface
func (l *LambdaExpr) VisitChildren(v Visitor) Node {
	return l.Update(visitVariables(v, l.Params), Accept(l.Body, v))
}

// MemberExpr reads a field or a property. Object is nil for static
// properties.
type MemberExpr struct {
	Object   Node
	Field    *types.Field
	Property *types.Property
}

// NewField creates a field access
func NewField(object Node, field *types.Field) *MemberExpr {
	return &MemberExpr{
		Object: object,
		Field:  field,
	}
}

// NewProperty creates a property access
func NewProperty(object Node, prop *types.Property) *MemberExpr {
	if prop.IsIndexer() {
		panic(fmt.Sprintf("NewProperty: %s is an indexer", prop.Name))
	}
	if prop.Static != (object == nil) {
		panic(fmt.Sprintf("NewProperty: receiver mismatch for %s", prop.Name))
	}
	return &MemberExpr{
		Object:   object,
		Property: prop,
	}
}

// Member returns the name of the accessed member
func (m *MemberExpr) Member() string {
	if m.Field != nil {
		return m.Field.Name
	}
	return m.Property.Name
}

// Kind implements Node interface
func (m *MemberExpr) Kind() NodeKind { return KindMember }

// Type implements Node interface
func (m *MemberExpr) Type() *types.Type {
	if m.Field != nil {
		return m.Field.Type
	}
	return m.Property.Type
}

// Update returns m with the given receiver
func (m *MemberExpr) Update(object Node) *MemberExpr {
	if object == m.Object {
		return m
	}
	if m.Field != nil {
		return NewField(object, m.Field)
	}
	return NewProperty(object, m.Property)
}

// VisitChildren implements Node interface
func (m *MemberExpr) VisitChildren(v Visitor) Node {
	return m.Update(Accept(m.Object, v))
}

// IndexExpr accesses an array element (Indexer is nil) or an indexer
type IndexExpr struct {
	Object  Node
	Indexer *types.Property
	Args    []Node
}

// NewArrayIndex creates array[index]
func NewArrayIndex(array, index Node) *IndexExpr {
	if array.Type().Kind != types.KindArray {
		panic(fmt.Sprintf("NewArrayIndex: %s is not an array", array.Type()))
	}
	if index.Type() != types.Int {
		panic(fmt.Sprintf("NewArrayIndex: index must be int, got %s", index.Type()))
	}
	return &IndexExpr{
		Object: array,
		Args:   []Node{index},
	}
}

// NewIndexer creates object[args] through an indexer property
func NewIndexer(object Node, indexer *types.Property, args ...Node) *IndexExpr {
	if !indexer.IsIndexer() {
		panic(fmt.Sprintf("NewIndexer: %s is not an indexer", indexer.Name))
	}
	if len(args) != len(indexer.Params) {
		panic(fmt.Sprintf("NewIndexer: %s expects %d arguments, got %d", indexer.Name, len(indexer.Params), len(args)))
	}
	return &IndexExpr{
		Object:  object,
		Indexer: indexer,
		Args:    args,
	}
}

// Kind implements Node interface
func (i *IndexExpr) Kind() NodeKind { return KindIndex }

// Type implements Node interface
func (i *IndexExpr) Type() *types.Type {
	if i.Indexer == nil {
		return i.Object.Type().Elem
	}
	return i.Indexer.Type
}

// Update returns i with the given children
func (i *IndexExpr) Update(object Node, args []Node) *IndexExpr {
	if object == i.Object && sameNodes(args, i.Args) {
		return i
	}
	if i.Indexer == nil {
		return NewArrayIndex(object, args[0])
	}
	return NewIndexer(object, i.Indexer, args...)
}

// VisitChildren implements Node interface
func (i *IndexExpr) VisitChildren(v Visitor) Node {
	return i.Update(Accept(i.Object, v), visitList(v, i.Args))
}

// NewExpr calls a constructor
type NewExpr struct {
	Ctor *types.Constructor
	Args []Node
}

// NewObject creates a constructor call
func NewObject(ctor *types.Constructor, args ...Node) *NewExpr {
	if len(args) != len(ctor.Params) {
		panic(fmt.Sprintf("NewObject: %s constructor expects %d arguments, got %d", ctor.DeclaringType, len(ctor.Params), len(args)))
	}
	return &NewExpr{
		Ctor: ctor,
		Args: args,
	}
}

// Kind implements Node interface
func (n *NewExpr) Kind() NodeKind { return KindNew }

// Type implements Node interface
func (n *NewExpr) Type() *types.Type { return n.Ctor.DeclaringType }

// Update returns n with the given arguments
func (n *NewExpr) Update(args []Node) *NewExpr {
	if sameNodes(args, n.Args) {
		return n
	}
	return NewObject(n.Ctor, args...)
}

// VisitChildren implements Node interface
func (n *NewExpr) VisitChildren(v Visitor) Node {
	return n.Update(visitList(v, n.Args))
}

// NewArrayExpr allocates an array, either of Length default elements or
// initialized with Items
type NewArrayExpr struct {
	Elem   *types.Type
	Length Node
	Items  []Node
}

// NewArrayBounds creates new elem[length]
func NewArrayBounds(elem *types.Type, length Node) *NewArrayExpr {
	if length.Type() != types.Int {
		panic("NewArrayBounds: length must be int")
	}
	return &NewArrayExpr{
		Elem:   elem,
		Length: length,
	}
}

// NewArrayInit creates new elem[] { items }
func NewArrayInit(elem *types.Type, items ...Node) *NewArrayExpr {
	return &NewArrayExpr{
		Elem:  elem,
		Items: items,
	}
}

// Kind implements Node interface
func (n *NewArrayExpr) Kind() NodeKind { return KindNewArray }

// Type implements Node interface
func (n *NewArrayExpr) Type() *types.Type { return types.ArrayOf(n.Elem) }

// Update returns n with the given children
func (n *NewArrayExpr) Update(length Node, items []Node) *NewArrayExpr {
	if length == n.Length && sameNodes(items, n.Items) {
		return n
	}
	if length != nil {
		return NewArrayBounds(n.Elem, length)
	}
	return NewArrayInit(n.Elem, items...)
}

// VisitChildren implements Node interface
func (n *NewArrayExpr) VisitChildren(v Visitor) Node {
	return n.Update(Accept(n.Length, v), visitList(v, n.Items))
}
