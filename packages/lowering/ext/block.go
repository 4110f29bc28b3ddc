package ext

import (
	"fmt"

	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/types"
)

// Block is a statement block. A return jump to ReturnLabel ends the block
// with the jump value; falling off the end yields the default value of the
// label type.
type Block struct {
	Variables   []*ir.Variable
	Statements  []ir.Node
	ReturnLabel *ir.LabelTarget
}

// NewBlock creates a statement block; returnLabel may be nil
func NewBlock(vars []*ir.Variable, stmts []ir.Node, returnLabel *ir.LabelTarget) (*Block, error) {
	if err := checkUniqueVariables(vars); err != nil {
		return nil, err
	}
	for i, s := range stmts {
		if s == nil {
			return nil, invalid("statement %d of block is nil", i)
		}
	}
	return &Block{
		Variables:   vars,
		Statements:  stmts,
		ReturnLabel: returnLabel,
	}, nil
}

// Kind implements Node interface
func (b *Block) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (b *Block) Type() *types.Type {
	if b.ReturnLabel == nil {
		return types.Void
	}
	return b.ReturnLabel.Type()
}

// NodeName implements ir.Named
func (b *Block) NodeName() string { return "Block" }

// Update returns b with the given children
func (b *Block) Update(vars []*ir.Variable, stmts []ir.Node, returnLabel *ir.LabelTarget) *Block {
	if sameVariables(vars, b.Variables) && sameNodes(stmts, b.Statements) && returnLabel == b.ReturnLabel {
		return b
	}
	return must(NewBlock(vars, stmts, returnLabel))
}

// VisitChildren implements Node interface
func (b *Block) VisitChildren(v ir.Visitor) ir.Node {
	return b.Update(visitVariables(v, b.Variables), visitList(v, b.Statements), b.ReturnLabel)
}

// Reduce implements ir.Extension
func (b *Block) Reduce() ir.Node {
	exprs := append([]ir.Node(nil), b.Statements...)
	if b.ReturnLabel != nil {
		exprs = append(exprs, ir.Label(b.ReturnLabel))
	}
	return ir.NewBlockTyped(b.Type(), b.Variables, exprs...)
}

// GotoLabel jumps to a label, optionally carrying a value
type GotoLabel struct {
	Target *ir.LabelTarget
	Value  ir.Node
}

// NewGotoLabel creates a goto statement
func NewGotoLabel(target *ir.LabelTarget, value ir.Node) (*GotoLabel, error) {
	if target == nil {
		return nil, invalid("goto target is missing")
	}
	switch {
	case value == nil && !target.Type().IsVoid():
		return nil, mismatch("jump to %s requires a value of type %s", target, target.Type())
	case value != nil && target.Type().IsVoid():
		return nil, mismatch("jump to void label %s cannot carry a value", target)
	case value != nil:
		if err := requireAssignable("goto value", target.Type(), value); err != nil {
			return nil, err
		}
	}
	return &GotoLabel{
		Target: target,
		Value:  value,
	}, nil
}

// Kind implements Node interface
func (g *GotoLabel) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (g *GotoLabel) Type() *types.Type { return types.Void }

// NodeName implements ir.Named
func (g *GotoLabel) NodeName() string { return "GotoLabel" }

// Update returns g with the given value
func (g *GotoLabel) Update(value ir.Node) *GotoLabel {
	if value == g.Value {
		return g
	}
	return must(NewGotoLabel(g.Target, value))
}

// VisitChildren implements Node interface
func (g *GotoLabel) VisitChildren(v ir.Visitor) ir.Node {
	return g.Update(ir.Accept(g.Value, v))
}

// Reduce implements ir.Extension
func (g *GotoLabel) Reduce() ir.Node {
	if g.Value == nil {
		return ir.Goto(g.Target)
	}
	return ir.GotoValue(g.Target, convertIfNeeded(g.Value, g.Target.Type()))
}

// GotoCase jumps to the section of the enclosing switch statement that
// holds Value
type GotoCase struct {
	Value any
}

// NewGotoCase creates a goto case statement. Use SwitchNull to jump to the
// null case.
func NewGotoCase(value any) (*GotoCase, error) {
	if value == nil {
		return nil, invalid("goto case requires a test value, use SwitchNull for the null case")
	}
	if value == SwitchDefault {
		return nil, invalid("use GotoDefault to jump to the default section")
	}
	return &GotoCase{Value: value}, nil
}

// Kind implements Node interface
func (g *GotoCase) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (g *GotoCase) Type() *types.Type { return types.Void }

// NodeName implements ir.Named
func (g *GotoCase) NodeName() string { return fmt.Sprintf("GotoCase(%v)", g.Value) }

// VisitChildren implements Node interface
func (g *GotoCase) VisitChildren(ir.Visitor) ir.Node { return g }

// Reduce panics: goto case is rewritten by the switch statement containing
// it
func (g *GotoCase) Reduce() ir.Node {
	panic(fmt.Sprintf("goto case %v outside of a switch statement", g.Value))
}

// GotoDefault jumps to the default section of the enclosing switch
// statement
type GotoDefault struct{}

// NewGotoDefault creates a goto default statement
func NewGotoDefault() *GotoDefault {
	return &GotoDefault{}
}

// Kind implements Node interface
func (g *GotoDefault) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (g *GotoDefault) Type() *types.Type { return types.Void }

// NodeName implements ir.Named
func (g *GotoDefault) NodeName() string { return "GotoDefault" }

// VisitChildren implements Node interface
func (g *GotoDefault) VisitChildren(ir.Visitor) ir.Node { return g }

// Reduce panics: goto default is rewritten by the switch statement
// containing it
func (g *GotoDefault) Reduce() ir.Node {
	panic("goto default outside of a switch statement")
}

func visitList(v ir.Visitor, list []ir.Node) []ir.Node {
	var res []ir.Node
	for i, n := range list {
		m := ir.Accept(n, v)
		if res == nil && m != n {
			res = make([]ir.Node, len(list))
			copy(res, list[:i])
		}
		if res != nil {
			res[i] = m
		}
	}
	if res == nil {
		return list
	}
	return res
}

func visitVariables(v ir.Visitor, vars []*ir.Variable) []*ir.Variable {
	var res []*ir.Variable
	for i, p := range vars {
		m := visitVariable(v, p)
		if res == nil && m != p {
			res = make([]*ir.Variable, len(vars))
			copy(res, vars[:i])
		}
		if res != nil {
			res[i] = m
		}
	}
	if res == nil {
		return vars
	}
	return res
}

func visitVariable(v ir.Visitor, p *ir.Variable) *ir.Variable {
	if p == nil {
		return nil
	}
	m, ok := v.Visit(p).(*ir.Variable)
	if !ok {
		panic(fmt.Sprintf("visitor must map declaration of %s to a variable", p))
	}
	return m
}

func sameNodes(a, b []ir.Node) bool {
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

func sameVariables(a, b []*ir.Variable) bool {
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
