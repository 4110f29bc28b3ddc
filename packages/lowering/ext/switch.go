package ext

import (
	"fmt"

	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

type switchSentinel struct {
	name string
}

func (s *switchSentinel) String() string { return s.name }

// Sentinel test values of switch sections. They are compared by identity.
var (
	// SwitchDefault marks the default section
	SwitchDefault any = &switchSentinel{"default"}
	// SwitchNull marks the section matching null
	SwitchNull any = &switchSentinel{"null"}
)

func sameTestValue(a, b any) bool {
	if _, ok := a.(*switchSentinel); ok {
		return a == b
	}
	if _, ok := b.(*switchSentinel); ok {
		return false
	}
	return runtime.Equals(a, b)
}

// SwitchLabel is a pattern label of a switch section, with an optional
// guard
type SwitchLabel struct {
	Pattern Pattern
	Guard   ir.Node
}

// SwitchSection is a group of statements reached through any of its test
// values or pattern labels. Control does not fall through to the next
// section.
type SwitchSection struct {
	TestValues []any
	Labels     []*SwitchLabel
	Statements []ir.Node
}

// NewSwitchSection creates a section matching constant test values
func NewSwitchSection(testValues []any, stmts ...ir.Node) *SwitchSection {
	return &SwitchSection{TestValues: testValues, Statements: stmts}
}

// NewPatternSection creates a section matching pattern labels
func NewPatternSection(labels []*SwitchLabel, stmts ...ir.Node) *SwitchSection {
	return &SwitchSection{Labels: labels, Statements: stmts}
}

func (s *SwitchSection) isDefault() bool {
	for _, v := range s.TestValues {
		if v == SwitchDefault {
			return true
		}
	}
	return false
}

func (s *SwitchSection) has(value any) bool {
	for _, v := range s.TestValues {
		if sameTestValue(v, value) {
			return true
		}
	}
	return false
}

// SwitchStatement runs the section matching Value. Variables are in scope
// in all sections; a jump to BreakLabel leaves the switch.
type SwitchStatement struct {
	Value      ir.Node
	Sections   []*SwitchSection
	BreakLabel *ir.LabelTarget
	Variables  []*ir.Variable
}

// NewSwitchStatement creates a switch statement; brk may be nil
func NewSwitchStatement(value ir.Node, sections []*SwitchSection, brk *ir.LabelTarget, vars []*ir.Variable) (*SwitchStatement, error) {
	if value == nil {
		return nil, invalid("switch value is missing")
	}
	if err := requireVoidLabel("break", brk); err != nil {
		return nil, err
	}
	if err := checkUniqueVariables(vars); err != nil {
		return nil, err
	}
	vt := value.Type()
	if vt.IsVoid() {
		return nil, mismatch("cannot switch on a void value")
	}
	var seen []any
	defaults := 0
	for i, s := range sections {
		if s == nil {
			return nil, invalid("switch section %d is nil", i)
		}
		if len(s.TestValues) == 0 && len(s.Labels) == 0 {
			return nil, invalid("switch section %d has no test value", i)
		}
		for _, tv := range s.TestValues {
			if err := checkTestValue(vt, tv); err != nil {
				return nil, err
			}
			for _, prev := range seen {
				if sameTestValue(prev, tv) {
					return nil, wrapf(ErrDuplicateTestValue, "test value %v occurs more than once", tv)
				}
			}
			seen = append(seen, tv)
			if tv == SwitchDefault {
				defaults++
			}
		}
		for j, l := range s.Labels {
			if l == nil || l.Pattern == nil {
				return nil, invalid("label %d of section %d has no pattern", j, i)
			}
			if l.Pattern.InputType() != vt {
				return nil, mismatch("pattern applies to %s, switch value is %s", l.Pattern.InputType(), vt)
			}
			if l.Guard != nil {
				if err := requireBool("case guard", l.Guard); err != nil {
					return nil, err
				}
			}
		}
	}
	s := &SwitchStatement{
		Value:      value,
		Sections:   sections,
		BreakLabel: brk,
		Variables:  vars,
	}
	for _, g := range s.gotos() {
		switch x := g.(type) {
		case *GotoCase:
			if s.sectionOf(x.Value) < 0 {
				return nil, unsupported("goto case %v has no matching case", x.Value)
			}
		case *GotoDefault:
			if defaults == 0 {
				return nil, unsupported("goto default in a switch without default section")
			}
		}
	}
	return s, nil
}

func checkTestValue(vt *types.Type, tv any) error {
	switch tv {
	case nil:
		return invalid("nil test value, use SwitchNull to match null")
	case SwitchDefault:
		return nil
	case SwitchNull:
		if !vt.CanBeNull() {
			return mismatch("null test value for non-nullable switch value of type %s", vt)
		}
		return nil
	}
	if !runtime.IsInstance(tv, vt.NonNullable()) {
		return mismatch("test value %v is not a %s", tv, vt.NonNullable())
	}
	return nil
}

// sectionOf returns the index of the section holding value, or -1
func (s *SwitchStatement) sectionOf(value any) int {
	for i, sec := range s.Sections {
		if sec.has(value) {
			return i
		}
	}
	return -1
}

func (s *SwitchStatement) defaultSection() int {
	for i, sec := range s.Sections {
		if sec.isDefault() {
			return i
		}
	}
	return -1
}

func (s *SwitchStatement) hasPatterns() bool {
	for _, sec := range s.Sections {
		if len(sec.Labels) > 0 {
			return true
		}
	}
	return false
}

// gotos finds the goto case and goto default statements belonging to this
// switch. Nested switch statements and lambdas are not searched.
func (s *SwitchStatement) gotos() []ir.Node {
	var res []ir.Node
	var v ir.Visitor
	v = ir.VisitorFunc(func(n ir.Node) ir.Node {
		switch n.(type) {
		case *GotoCase, *GotoDefault:
			res = append(res, n)
			return n
		case *SwitchStatement, *ir.LambdaExpr:
			return n
		}
		return n.VisitChildren(v)
	})
	for _, sec := range s.Sections {
		for _, st := range sec.Statements {
			ir.Accept(st, v)
		}
	}
	return res
}

// Kind implements Node interface
func (s *SwitchStatement) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (s *SwitchStatement) Type() *types.Type { return types.Void }

// NodeName implements ir.Named
func (s *SwitchStatement) NodeName() string { return "SwitchStatement" }

// Update returns s with the given children
func (s *SwitchStatement) Update(brk *ir.LabelTarget, vars []*ir.Variable, value ir.Node, sections []*SwitchSection) *SwitchStatement {
	if brk == s.BreakLabel && sameVariables(vars, s.Variables) && value == s.Value && sameSections(sections, s.Sections) {
		return s
	}
	return must(NewSwitchStatement(value, sections, brk, vars))
}

func sameSections(a, b []*SwitchSection) bool {
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

// VisitChildren implements Node interface
func (s *SwitchStatement) VisitChildren(v ir.Visitor) ir.Node {
	vars := visitVariables(v, s.Variables)
	value := ir.Accept(s.Value, v)
	var sections []*SwitchSection
	for i, sec := range s.Sections {
		ns := visitSection(v, sec)
		if sections == nil && ns != sec {
			sections = make([]*SwitchSection, len(s.Sections))
			copy(sections, s.Sections[:i])
		}
		if sections != nil {
			sections[i] = ns
		}
	}
	if sections == nil {
		sections = s.Sections
	}
	return s.Update(s.BreakLabel, vars, value, sections)
}

func visitSection(v ir.Visitor, sec *SwitchSection) *SwitchSection {
	changed := false
	var labels []*SwitchLabel
	for _, l := range sec.Labels {
		p, g := l.Pattern.visit(v), ir.Accept(l.Guard, v)
		if p != l.Pattern || g != l.Guard {
			changed = true
			l = &SwitchLabel{Pattern: p, Guard: g}
		}
		labels = append(labels, l)
	}
	stmts := visitList(v, sec.Statements)
	if !changed && sameNodes(stmts, sec.Statements) {
		return sec
	}
	return &SwitchSection{TestValues: sec.TestValues, Labels: labels, Statements: stmts}
}

// Reduce implements ir.Extension
func (s *SwitchStatement) Reduce() ir.Node {
	brk := labelOr(s.BreakLabel, "break")
	labels := make([]*ir.LabelTarget, len(s.Sections))
	for i := range s.Sections {
		labels[i] = ir.NewLabelTarget(types.Void, fmt.Sprintf("case%d", i))
	}
	def := s.defaultSection()
	bodies := make([]ir.Node, len(s.Sections))
	for i, sec := range s.Sections {
		bodies[i] = ir.VoidBlock(append([]ir.Node{ir.Label(labels[i])}, s.rewriteGotos(sec.Statements, labels, def)...)...)
	}

	var t temps
	value := s.Value
	if s.hasPatterns() || value.Type().IsNullable() && len(s.Sections) > 0 {
		value = t.spill(value, "switchValue")
	}
	var body ir.Node
	switch {
	case len(s.Sections) == 0:
		body = voidBlock(value)
	case s.hasPatterns():
		body = s.reducePatterns(value, bodies, labels, brk, def)
	default:
		body = s.reduceTable(value, bodies, def)
	}
	tracer().Debugf("switch on %s with %d sections", s.Value.Type(), len(s.Sections))
	inner := ir.NewBlockTyped(types.Void, s.Variables, body, ir.Label(brk))
	t.add(inner)
	return ir.NewBlockTyped(types.Void, t.vars, t.stmts...)
}

// rewriteGotos replaces goto case and goto default by jumps to the
// section labels
func (s *SwitchStatement) rewriteGotos(stmts []ir.Node, labels []*ir.LabelTarget, def int) []ir.Node {
	var v ir.Visitor
	v = ir.VisitorFunc(func(n ir.Node) ir.Node {
		switch x := n.(type) {
		case *GotoCase:
			return ir.Goto(labels[s.sectionOf(x.Value)])
		case *GotoDefault:
			return ir.Goto(labels[def])
		case *SwitchStatement, *ir.LambdaExpr:
			return n
		}
		return n.VisitChildren(v)
	})
	return visitList(v, stmts)
}

// reduceTable lowers a switch over constant test values to a base-IR
// switch. A nullable switch value is dispatched on HasValue first unless
// null shares a section with other values.
func (s *SwitchStatement) reduceTable(value ir.Node, bodies []ir.Node, def int) ir.Node {
	vt := value.Type()
	var cases []*ir.SwitchCase
	nullSection := -1
	for i, sec := range s.Sections {
		if i == def {
			// values sharing the default body need no case of their own
			continue
		}
		if sec.has(SwitchNull) {
			nullSection = i
		}
		cases = append(cases, ir.NewSwitchCase(bodies[i], testNodes(sec.TestValues, vt)...))
	}
	var defaultBody ir.Node
	if def >= 0 {
		defaultBody = bodies[def]
	}
	if !vt.IsNullable() {
		return ir.NewSwitch(types.Void, value, defaultBody, cases...)
	}

	hasValue := ir.NewProperty(value, vt.Property("HasValue"))
	unwrapped := ir.NewProperty(value, vt.Property("Value"))
	switch {
	case nullSection >= 0 && len(s.Sections[nullSection].TestValues) == 1:
		// null has a section of its own
		var rest []*ir.SwitchCase
		for i, c := range cases {
			if c.Body != bodies[nullSection] {
				rest = append(rest, liftCase(cases[i], vt.Elem))
			}
		}
		table := ir.NewSwitch(types.Void, unwrapped, defaultBody, rest...)
		return ir.IfThenElse(hasValue, table, bodies[nullSection])
	case nullSection >= 0:
		// null is bundled with other values, compare on the nullable value
		return ir.NewSwitch(types.Void, value, defaultBody, cases...)
	}
	for i := range cases {
		cases[i] = liftCase(cases[i], vt.Elem)
	}
	table := ir.NewSwitch(types.Void, unwrapped, defaultBody, cases...)
	if def < 0 {
		return ir.IfThen(hasValue, table)
	}
	// null continues at the default section
	return ir.VoidBlock(ir.IfThen(ir.Not(hasValue), ir.Goto(s.sectionLabel(bodies[def]))), table)
}

// sectionLabel returns the label heading a section body
func (s *SwitchStatement) sectionLabel(body ir.Node) *ir.LabelTarget {
	return body.(*ir.BlockExpr).Exprs[0].(*ir.LabelExpr).Target
}

func testNodes(tests []any, vt *types.Type) []ir.Node {
	res := make([]ir.Node, len(tests))
	for i, tv := range tests {
		if tv == SwitchNull {
			res[i] = ir.NewConstant(nil, vt)
			continue
		}
		res[i] = ir.NewConstant(tv, vt)
	}
	return res
}

// liftCase retypes the test values of c for a switch on the unwrapped
// value
func liftCase(c *ir.SwitchCase, elem *types.Type) *ir.SwitchCase {
	tests := make([]ir.Node, len(c.TestValues))
	for i, tv := range c.TestValues {
		tests[i] = ir.NewConstant(tv.(*ir.ConstantExpr).Value, elem)
	}
	return ir.NewSwitchCase(c.Body, tests...)
}

// reducePatterns lowers a switch with pattern labels to a chain of tests
// jumping to the section labels
func (s *SwitchStatement) reducePatterns(value ir.Node, bodies []ir.Node, labels []*ir.LabelTarget, brk *ir.LabelTarget, def int) ir.Node {
	vt := value.Type()
	var stmts []ir.Node
	for i, sec := range s.Sections {
		for _, tv := range sec.TestValues {
			if tv == SwitchDefault {
				continue
			}
			var p Pattern
			if tv == SwitchNull {
				p = must(NewConstantPattern(vt, ir.NewConstant(nil, vt)))
			} else {
				p = must(NewConstantPattern(vt, ir.NewConstant(tv, vt.NonNullable())))
			}
			stmts = append(stmts, ir.IfThen(p.test(value), ir.Goto(labels[i])))
		}
		for _, l := range sec.Labels {
			test := l.Pattern.test(value)
			if l.Guard != nil {
				test = ir.AndAlso(test, l.Guard)
			}
			stmts = append(stmts, ir.IfThen(test, ir.Goto(labels[i])))
		}
	}
	if def >= 0 {
		stmts = append(stmts, ir.Goto(labels[def]))
	} else {
		stmts = append(stmts, ir.Goto(brk))
	}
	for _, b := range bodies {
		stmts = append(stmts, b, ir.Goto(brk))
	}
	return ir.VoidBlock(stmts...)
}

// SwitchExpressionArm is an arm of a switch expression. Variables are
// scoped to the arm.
type SwitchExpressionArm struct {
	Variables []*ir.Variable
	Pattern   Pattern
	Guard     ir.Node
	Value     ir.Node
}

// SwitchExpression evaluates to the value of the first arm whose pattern
// matches and whose guard holds. When no arm matches it throws a
// SwitchExpressionException.
type SwitchExpression struct {
	Value ir.Node
	Arms  []*SwitchExpressionArm
	typ   *types.Type
}

// NewSwitchExpression creates a switch expression of type t
func NewSwitchExpression(t *types.Type, value ir.Node, arms ...*SwitchExpressionArm) (*SwitchExpression, error) {
	if value == nil {
		return nil, invalid("switch expression value is missing")
	}
	if t == nil || t.IsVoid() {
		return nil, mismatch("switch expression requires a non-void type")
	}
	for i, a := range arms {
		if a == nil || a.Pattern == nil || a.Value == nil {
			return nil, invalid("arm %d needs a pattern and a value", i)
		}
		if err := checkUniqueVariables(a.Variables); err != nil {
			return nil, err
		}
		if a.Pattern.InputType() != value.Type() {
			return nil, mismatch("arm %d pattern applies to %s, value is %s", i, a.Pattern.InputType(), value.Type())
		}
		if a.Guard != nil {
			if err := requireBool("arm guard", a.Guard); err != nil {
				return nil, err
			}
		}
		if !isAssignable(t, a.Value.Type()) && !canConvert(a.Value.Type(), t) {
			return nil, mismatch("arm %d value of type %s is not a %s", i, a.Value.Type(), t)
		}
	}
	return &SwitchExpression{
		Value: value,
		Arms:  arms,
		typ:   t,
	}, nil
}

// Kind implements Node interface
func (s *SwitchExpression) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (s *SwitchExpression) Type() *types.Type { return s.typ }

// NodeName implements ir.Named
func (s *SwitchExpression) NodeName() string { return "SwitchExpression" }

// Update returns s with the given children
func (s *SwitchExpression) Update(value ir.Node, arms []*SwitchExpressionArm) *SwitchExpression {
	if value == s.Value && len(arms) == len(s.Arms) {
		same := true
		for i := range arms {
			if arms[i] != s.Arms[i] {
				same = false
				break
			}
		}
		if same {
			return s
		}
	}
	return must(NewSwitchExpression(s.typ, value, arms...))
}

// VisitChildren implements Node interface
func (s *SwitchExpression) VisitChildren(v ir.Visitor) ir.Node {
	value := ir.Accept(s.Value, v)
	arms := make([]*SwitchExpressionArm, len(s.Arms))
	for i, a := range s.Arms {
		vars := visitVariables(v, a.Variables)
		p, g, val := a.Pattern.visit(v), ir.Accept(a.Guard, v), ir.Accept(a.Value, v)
		if sameVariables(vars, a.Variables) && p == a.Pattern && g == a.Guard && val == a.Value {
			arms[i] = a
			continue
		}
		arms[i] = &SwitchExpressionArm{Variables: vars, Pattern: p, Guard: g, Value: val}
	}
	return s.Update(value, arms)
}

// Reduce implements ir.Extension
func (s *SwitchExpression) Reduce() ir.Node {
	var t temps
	value := t.spill(s.Value, "switchValue")
	var res ir.Node = ir.NewThrow(ir.NewObject(runtime.SwitchExpressionExceptionType.Constructors[0], ir.Convert(value, types.Object)), s.typ)
	for i := len(s.Arms) - 1; i >= 0; i-- {
		a := s.Arms[i]
		test := a.Pattern.test(value)
		if a.Guard != nil {
			test = ir.AndAlso(test, a.Guard)
		}
		res = ir.NewConditional(test, convertIfNeeded(a.Value, s.typ), res, s.typ)
		if len(a.Variables) > 0 {
			res = ir.NewBlockTyped(s.typ, a.Variables, res)
		}
	}
	return t.blockTyped(s.typ, res)
}
