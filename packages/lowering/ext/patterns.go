package ext

import (
	"fmt"

	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/types"
)

// Pattern is a test against an input value that may assign variables when
// it matches. Patterns are not expressions; IsPattern, switch statements
// and switch expressions apply them.
type Pattern interface {
	// InputType returns the type of values the pattern is applied to
	InputType() *types.Type
	// Variables returns the variables assigned when the pattern matches
	Variables() []*ir.Variable
	// test builds the bool test of the pattern. input must be free of side
	// effects, it may be evaluated more than once.
	test(input ir.Node) ir.Node
	// visit rewrites the expressions held by the pattern
	visit(v ir.Visitor) Pattern
}

// ConstantPattern matches a value equal to a constant, or null
type ConstantPattern struct {
	Input *types.Type
	Value *ir.ConstantExpr
}

// NewConstantPattern creates a constant pattern
func NewConstantPattern(input *types.Type, value *ir.ConstantExpr) (*ConstantPattern, error) {
	if value == nil {
		return nil, invalid("constant pattern requires a constant")
	}
	if value.Value == nil {
		if !input.CanBeNull() {
			return nil, mismatch("null pattern on non-nullable %s", input)
		}
	} else if !patternApplies(input, value.Type()) {
		return nil, mismatch("constant of type %s cannot match input of type %s", value.Type(), input)
	}
	return &ConstantPattern{Input: input, Value: value}, nil
}

// patternApplies reports whether an input of type input can hold values
// of type t
func patternApplies(input, t *types.Type) bool {
	return input == t || input.NonNullable() == t || isAssignable(input, t)
}

// InputType implements Pattern
func (p *ConstantPattern) InputType() *types.Type { return p.Input }

// Variables implements Pattern
func (p *ConstantPattern) Variables() []*ir.Variable { return nil }

func (p *ConstantPattern) test(input ir.Node) ir.Node {
	if p.Value.Value == nil {
		return ir.IsNull(input)
	}
	return narrowed(input, p.Value.Type(), func(x ir.Node) ir.Node {
		return ir.Equal(x, p.Value)
	})
}

func (p *ConstantPattern) visit(ir.Visitor) Pattern { return p }

// narrowed applies test to input seen as type t: directly when the input
// has type t, lifted when it is t?, and behind a type test otherwise
func narrowed(input ir.Node, t *types.Type, test func(ir.Node) ir.Node) ir.Node {
	it := input.Type()
	switch {
	case it == t:
		return test(input)
	case it.IsNullable() && it.Elem == t:
		// lifted comparisons are false for null
		return test(input)
	}
	return ir.AndAlso(ir.NewTypeIs(input, t), test(ir.Convert(input, t)))
}

// DiscardPattern matches everything
type DiscardPattern struct {
	Input *types.Type
}

// NewDiscardPattern creates a discard pattern
func NewDiscardPattern(input *types.Type) *DiscardPattern {
	return &DiscardPattern{Input: input}
}

// InputType implements Pattern
func (p *DiscardPattern) InputType() *types.Type { return p.Input }

// Variables implements Pattern
func (p *DiscardPattern) Variables() []*ir.Variable { return nil }

func (p *DiscardPattern) test(ir.Node) ir.Node { return ir.Const(true) }

func (p *DiscardPattern) visit(ir.Visitor) Pattern { return p }

// TypePattern matches non-null instances of a type
type TypePattern struct {
	Input *types.Type
	Type  *types.Type
}

// NewTypePattern creates a type pattern
func NewTypePattern(input, t *types.Type) (*TypePattern, error) {
	if !patternApplies(input, t) {
		return nil, mismatch("input of type %s can never be a %s", input, t)
	}
	return &TypePattern{Input: input, Type: t}, nil
}

// InputType implements Pattern
func (p *TypePattern) InputType() *types.Type { return p.Input }

// Variables implements Pattern
func (p *TypePattern) Variables() []*ir.Variable { return nil }

func (p *TypePattern) test(input ir.Node) ir.Node {
	return ir.NewTypeIs(input, p.Type)
}

func (p *TypePattern) visit(ir.Visitor) Pattern { return p }

// DeclarationPattern matches non-null instances of a type and stores the
// converted input into Variable
type DeclarationPattern struct {
	Input    *types.Type
	Type     *types.Type
	Variable *ir.Variable
}

// NewDeclarationPattern creates a declaration pattern
func NewDeclarationPattern(input, t *types.Type, variable *ir.Variable) (*DeclarationPattern, error) {
	if variable == nil {
		return nil, invalid("declaration pattern requires a variable")
	}
	if !patternApplies(input, t) {
		return nil, mismatch("input of type %s can never be a %s", input, t)
	}
	if !isAssignable(variable.Type(), t) {
		return nil, mismatch("%s of type %s cannot hold a %s", variable, variable.Type(), t)
	}
	return &DeclarationPattern{Input: input, Type: t, Variable: variable}, nil
}

// InputType implements Pattern
func (p *DeclarationPattern) InputType() *types.Type { return p.Input }

// Variables implements Pattern
func (p *DeclarationPattern) Variables() []*ir.Variable { return []*ir.Variable{p.Variable} }

func (p *DeclarationPattern) test(input ir.Node) ir.Node {
	assign := ir.Block(ir.NewAssign(p.Variable, convertIfNeeded(ir.Convert(input, p.Type), p.Variable.Type())), ir.Const(true))
	if input.Type() == p.Type && !p.Type.CanBeNull() {
		return assign
	}
	return ir.Condition(ir.NewTypeIs(input, p.Type), assign, ir.Const(false))
}

func (p *DeclarationPattern) visit(v ir.Visitor) Pattern {
	nv := visitVariable(v, p.Variable)
	if nv == p.Variable {
		return p
	}
	return must(NewDeclarationPattern(p.Input, p.Type, nv))
}

// VarPattern matches everything, including null, and stores the input
// into Variable
type VarPattern struct {
	Variable *ir.Variable
}

// NewVarPattern creates a var pattern
func NewVarPattern(variable *ir.Variable) (*VarPattern, error) {
	if variable == nil {
		return nil, invalid("var pattern requires a variable")
	}
	return &VarPattern{Variable: variable}, nil
}

// InputType implements Pattern
func (p *VarPattern) InputType() *types.Type { return p.Variable.Type() }

// Variables implements Pattern
func (p *VarPattern) Variables() []*ir.Variable { return []*ir.Variable{p.Variable} }

func (p *VarPattern) test(input ir.Node) ir.Node {
	return ir.Block(ir.NewAssign(p.Variable, input), ir.Const(true))
}

func (p *VarPattern) visit(v ir.Visitor) Pattern {
	nv := visitVariable(v, p.Variable)
	if nv == p.Variable {
		return p
	}
	return must(NewVarPattern(nv))
}

// RelationalPattern matches values comparing to a constant with <, <=, >
// or >=
type RelationalPattern struct {
	Input *types.Type
	Op    ir.BinaryOp
	Value *ir.ConstantExpr
}

// NewRelationalPattern creates a relational pattern
func NewRelationalPattern(input *types.Type, op ir.BinaryOp, value *ir.ConstantExpr) (*RelationalPattern, error) {
	switch op {
	case ir.OpLessThan, ir.OpLessThanOrEqual, ir.OpGreaterThan, ir.OpGreaterThanOrEqual:
	default:
		return nil, invalid("relational pattern operator must be <, <=, > or >=, got %s", op)
	}
	if value == nil || value.Value == nil {
		return nil, invalid("relational pattern requires a non-null constant")
	}
	vt := value.Type()
	if !vt.IsNumeric() && vt != types.String {
		return nil, mismatch("relational pattern constant must be numeric, got %s", vt)
	}
	if !patternApplies(input, vt) {
		return nil, mismatch("constant of type %s cannot match input of type %s", vt, input)
	}
	return &RelationalPattern{Input: input, Op: op, Value: value}, nil
}

// InputType implements Pattern
func (p *RelationalPattern) InputType() *types.Type { return p.Input }

// Variables implements Pattern
func (p *RelationalPattern) Variables() []*ir.Variable { return nil }

func (p *RelationalPattern) test(input ir.Node) ir.Node {
	return narrowed(input, p.Value.Type(), func(x ir.Node) ir.Node {
		return ir.NewBinary(p.Op, x, p.Value)
	})
}

func (p *RelationalPattern) visit(ir.Visitor) Pattern { return p }

// NotPattern matches when Operand does not
type NotPattern struct {
	Operand Pattern
}

// NewNotPattern creates a negated pattern. The operand may not assign
// variables.
func NewNotPattern(operand Pattern) (*NotPattern, error) {
	if operand == nil {
		return nil, invalid("not pattern requires an operand")
	}
	if len(operand.Variables()) > 0 {
		return nil, unsupported("variables cannot be declared under a not pattern")
	}
	return &NotPattern{Operand: operand}, nil
}

// InputType implements Pattern
func (p *NotPattern) InputType() *types.Type { return p.Operand.InputType() }

// Variables implements Pattern
func (p *NotPattern) Variables() []*ir.Variable { return nil }

func (p *NotPattern) test(input ir.Node) ir.Node {
	return ir.Not(p.Operand.test(input))
}

func (p *NotPattern) visit(v ir.Visitor) Pattern {
	op := p.Operand.visit(v)
	if op == p.Operand {
		return p
	}
	return must(NewNotPattern(op))
}

// BinaryPattern combines two patterns with and (both match) or or (either
// matches)
type BinaryPattern struct {
	Or    bool
	Left  Pattern
	Right Pattern
}

// NewAndPattern creates left and right
func NewAndPattern(left, right Pattern) (*BinaryPattern, error) {
	return newBinaryPattern(false, left, right)
}

// NewOrPattern creates left or right. Neither side may assign variables.
func NewOrPattern(left, right Pattern) (*BinaryPattern, error) {
	return newBinaryPattern(true, left, right)
}

func newBinaryPattern(or bool, left, right Pattern) (*BinaryPattern, error) {
	if left == nil || right == nil {
		return nil, invalid("binary pattern requires two operands")
	}
	if left.InputType() != right.InputType() {
		return nil, mismatch("pattern operands apply to %s and %s", left.InputType(), right.InputType())
	}
	if or && len(left.Variables())+len(right.Variables()) > 0 {
		return nil, unsupported("variables cannot be declared under an or pattern")
	}
	return &BinaryPattern{Or: or, Left: left, Right: right}, nil
}

// InputType implements Pattern
func (p *BinaryPattern) InputType() *types.Type { return p.Left.InputType() }

// Variables implements Pattern
func (p *BinaryPattern) Variables() []*ir.Variable {
	return append(append([]*ir.Variable(nil), p.Left.Variables()...), p.Right.Variables()...)
}

func (p *BinaryPattern) test(input ir.Node) ir.Node {
	if p.Or {
		return ir.OrElse(p.Left.test(input), p.Right.test(input))
	}
	return ir.AndAlso(p.Left.test(input), p.Right.test(input))
}

func (p *BinaryPattern) visit(v ir.Visitor) Pattern {
	l, r := p.Left.visit(v), p.Right.visit(v)
	if l == p.Left && r == p.Right {
		return p
	}
	return must(newBinaryPattern(p.Or, l, r))
}

// PropertySubpattern applies Pattern to a field or property of the input
type PropertySubpattern struct {
	Field    *types.Field
	Property *types.Property
	Pattern  Pattern
}

func (s *PropertySubpattern) memberType() *types.Type {
	if s.Field != nil {
		return s.Field.Type
	}
	return s.Property.Type
}

func (s *PropertySubpattern) access(obj ir.Node) ir.Node {
	if s.Field != nil {
		return ir.NewField(obj, s.Field)
	}
	return ir.NewProperty(obj, s.Property)
}

// PropertyPattern matches non-null values of Type whose members match the
// subpatterns; Variable, when set, receives the matched value
type PropertyPattern struct {
	Input       *types.Type
	Type        *types.Type
	Subpatterns []*PropertySubpattern
	Variable    *ir.Variable
}

// NewPropertyPattern creates a property pattern. A nil t matches on the
// input type.
func NewPropertyPattern(input, t *types.Type, subpatterns []*PropertySubpattern, variable *ir.Variable) (*PropertyPattern, error) {
	if t == nil {
		t = input.NonNullable()
	}
	if !patternApplies(input, t) {
		return nil, mismatch("input of type %s can never be a %s", input, t)
	}
	for i, s := range subpatterns {
		if s == nil || s.Pattern == nil || (s.Field == nil) == (s.Property == nil) {
			return nil, invalid("subpattern %d needs a pattern and exactly one member", i)
		}
		if s.Property != nil && (!s.Property.CanRead() || s.Property.IsIndexer() || s.Property.Static) {
			return nil, invalid("subpattern member %s must be a readable instance property", s.Property.Name)
		}
		decl := s.Field
		if decl != nil && !isAssignable(decl.DeclaringType, t) {
			return nil, mismatch("field %s is not declared on %s", decl.Name, t)
		}
		if s.Property != nil && !isAssignable(s.Property.DeclaringType, t) {
			return nil, mismatch("property %s is not declared on %s", s.Property.Name, t)
		}
		if s.Pattern.InputType() != s.memberType() {
			return nil, mismatch("subpattern %d applies to %s, member is %s", i, s.Pattern.InputType(), s.memberType())
		}
	}
	if variable != nil && !isAssignable(variable.Type(), t) {
		return nil, mismatch("%s of type %s cannot hold a %s", variable, variable.Type(), t)
	}
	return &PropertyPattern{
		Input:       input,
		Type:        t,
		Subpatterns: subpatterns,
		Variable:    variable,
	}, nil
}

// InputType implements Pattern
func (p *PropertyPattern) InputType() *types.Type { return p.Input }

// Variables implements Pattern
func (p *PropertyPattern) Variables() []*ir.Variable {
	var res []*ir.Variable
	for _, s := range p.Subpatterns {
		res = append(res, s.Pattern.Variables()...)
	}
	if p.Variable != nil {
		res = append(res, p.Variable)
	}
	return res
}

func (p *PropertyPattern) test(input ir.Node) ir.Node {
	var guard ir.Node
	obj := input
	var vars []*ir.Variable
	var stmts []ir.Node
	switch {
	case input.Type() != p.Type:
		guard = ir.NewTypeIs(input, p.Type)
		n := ir.NewVariable(p.Type, "narrowed")
		vars = append(vars, n)
		stmts = append(stmts, ir.NewAssign(n, ir.Convert(input, p.Type)))
		obj = n
	case input.Type().CanBeNull():
		guard = ir.IsNotNull(input)
	}
	var conds []ir.Node
	for i, s := range p.Subpatterns {
		m := ir.NewVariable(s.memberType(), fmt.Sprintf("member%d", i))
		conds = append(conds, ir.Block(ir.NewAssign(m, s.access(obj)), s.Pattern.test(m)))
		vars = append(vars, m)
	}
	if p.Variable != nil {
		conds = append(conds, ir.Block(ir.NewAssign(p.Variable, convertIfNeeded(obj, p.Variable.Type())), ir.Const(true)))
	}
	var body ir.Node = ir.Const(true)
	if len(conds) > 0 {
		body = conds[0]
		for _, c := range conds[1:] {
			body = ir.AndAlso(body, c)
		}
	}
	if len(vars) > 0 {
		body = ir.NewBlock(vars, append(stmts, body)...)
	}
	if guard == nil {
		return body
	}
	return ir.AndAlso(guard, body)
}

func (p *PropertyPattern) visit(v ir.Visitor) Pattern {
	changed := false
	subs := make([]*PropertySubpattern, len(p.Subpatterns))
	for i, s := range p.Subpatterns {
		np := s.Pattern.visit(v)
		if np != s.Pattern {
			changed = true
			subs[i] = &PropertySubpattern{Field: s.Field, Property: s.Property, Pattern: np}
			continue
		}
		subs[i] = s
	}
	nv := visitVariable(v, p.Variable)
	if !changed && nv == p.Variable {
		return p
	}
	return must(NewPropertyPattern(p.Input, p.Type, subs, nv))
}

// IsPattern tests an expression against a pattern
type IsPattern struct {
	Expression ir.Node
	Pattern    Pattern
}

// NewIsPattern creates expression is pattern
func NewIsPattern(expr ir.Node, pattern Pattern) (*IsPattern, error) {
	if expr == nil || pattern == nil {
		return nil, invalid("is-pattern requires an expression and a pattern")
	}
	if pattern.InputType() != expr.Type() {
		return nil, mismatch("pattern applies to %s, expression is %s", pattern.InputType(), expr.Type())
	}
	return &IsPattern{Expression: expr, Pattern: pattern}, nil
}

// Kind implements Node interface
func (p *IsPattern) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (p *IsPattern) Type() *types.Type { return types.Bool }

// NodeName implements ir.Named
func (p *IsPattern) NodeName() string { return "IsPattern" }

// Update returns p with the given children
func (p *IsPattern) Update(expr ir.Node, pattern Pattern) *IsPattern {
	if expr == p.Expression && pattern == p.Pattern {
		return p
	}
	return must(NewIsPattern(expr, pattern))
}

// VisitChildren implements Node interface
func (p *IsPattern) VisitChildren(v ir.Visitor) ir.Node {
	return p.Update(ir.Accept(p.Expression, v), p.Pattern.visit(v))
}

// Reduce implements ir.Extension
func (p *IsPattern) Reduce() ir.Node {
	var t temps
	in := t.spill(p.Expression, "input")
	return t.block(p.Pattern.test(in))
}

// patternVariables collects the variables assigned by the patterns
func patternVariables(ps ...Pattern) []*ir.Variable {
	var res []*ir.Variable
	for _, p := range ps {
		if p != nil {
			res = append(res, p.Variables()...)
		}
	}
	return res
}
