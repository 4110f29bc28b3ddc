package async

import (
	"github.com/pkg/errors"

	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/types"
)

// SpillStack rewrites the body so that awaits only occur as statements of
// blocks, either alone or assigned to a variable. Operands evaluated before
// an await are stored in hoisted variables first, so that suspending
// neither reorders nor repeats their side effects.
func SpillStack(job *LoweringJob) error {
	s := &spiller{job: job}
	pre, value := s.expr(job.Body)
	if s.err != nil {
		return s.err
	}
	if len(pre) == 0 {
		job.Body = value
		return nil
	}
	t := job.Body.Type()
	if t.IsVoid() {
		job.Body = ir.NewBlockTyped(t, nil, append(pre, value)...)
		return nil
	}
	job.Body = ir.NewBlockTyped(t, nil, append(pre, ir.Convert(value, t))...)
	return nil
}

type spiller struct {
	job *LoweringJob
	err error
}

func seq(pre []ir.Node, last ir.Node) ir.Node {
	if len(pre) == 0 {
		return last
	}
	return ir.NewBlockTyped(types.Void, nil, append(pre, last)...)
}

// stmt rewrites n, whose value is not used
func (s *spiller) stmt(n ir.Node) ir.Node {
	if !ContainsAwait(n) {
		return n
	}
	switch x := n.(type) {
	case *Await:
		pre, op := s.expr(x.Operand)
		return ir.NewBlockTyped(types.Void, nil, append(pre, x.Update(op))...)
	case *ir.AssignExpr:
		v, isVar := x.Left.(*ir.Variable)
		a, isAwait := x.Right.(*Await)
		if isVar && isAwait {
			pre, op := s.expr(a.Operand)
			return ir.NewBlockTyped(types.Void, nil, append(pre, ir.NewAssign(v, a.Update(op)))...)
		}
	case *ir.BlockExpr:
		exprs := make([]ir.Node, len(x.Exprs))
		for i, e := range x.Exprs {
			exprs[i] = s.stmt(e)
		}
		return ir.NewBlockTyped(types.Void, x.Variables, exprs...)
	case *ir.ConditionalExpr:
		pre, test := s.expr(x.Test)
		return seq(pre, ir.IfThenElse(test, s.stmt(x.IfTrue), s.stmt(x.IfFalse)))
	case *ir.LoopExpr:
		return ir.NewLoop(s.stmt(x.Body), x.Break, x.Continue)
	case *ir.SwitchExpr:
		pre, value := s.expr(x.SwitchValue)
		cases := make([]*ir.SwitchCase, len(x.Cases))
		for i, c := range x.Cases {
			cases[i] = ir.NewSwitchCase(s.stmt(c.Body), c.TestValues...)
		}
		return seq(pre, ir.NewSwitch(types.Void, value, s.stmt(x.Default), cases...))
	case *ir.TryExpr:
		return ir.NewTry(types.Void, s.stmt(x.Body), x.Finally, x.Fault, x.Handlers...)
	case *ir.LabelExpr:
		pre, d := s.expr(x.Default)
		return seq(pre, x.Update(x.Target, d))
	}
	pre, value := s.expr(n)
	return seq(pre, value)
}

// expr rewrites n into statements evaluating its awaits and an expression
// without awaits yielding its value
func (s *spiller) expr(n ir.Node) ([]ir.Node, ir.Node) {
	if !ContainsAwait(n) {
		return nil, n
	}
	switch x := n.(type) {
	case *Await:
		pre, op := s.expr(x.Operand)
		a := x.Update(op)
		if a.Type().IsVoid() {
			return append(pre, a), ir.Empty()
		}
		t := s.job.temp(a.Type(), "awaited")
		return append(pre, ir.NewAssign(t, a)), t
	case *ir.BlockExpr:
		var pre []ir.Node
		for _, v := range x.Variables {
			s.job.hoist(v)
			pre = append(pre, ir.NewAssign(v, ir.NewDefault(v.Type())))
		}
		last := len(x.Exprs) - 1
		for _, e := range x.Exprs[:last] {
			pre = append(pre, s.stmt(e))
		}
		p, value := s.expr(x.Exprs[last])
		pre = append(pre, p...)
		if x.Type().IsVoid() {
			if !ir.IsPure(value, true) {
				pre = append(pre, value)
			}
			return pre, ir.Empty()
		}
		return pre, ir.Convert(value, x.Type())
	case *ir.ConditionalExpr:
		pre, test := s.expr(x.Test)
		if x.Type().IsVoid() {
			return append(pre, ir.IfThenElse(test, s.stmt(x.IfTrue), s.stmt(x.IfFalse))), ir.Empty()
		}
		t := s.job.temp(x.Type(), "conditional")
		return append(pre, ir.IfThenElse(test, s.assign(t, x.IfTrue), s.assign(t, x.IfFalse))), t
	case *ir.LoopExpr, *ir.SwitchExpr, *ir.TryExpr:
		if n.Type().IsVoid() {
			return []ir.Node{s.stmt(n)}, ir.Empty()
		}
		t := s.job.temp(n.Type(), "value")
		return []ir.Node{s.assign(t, n)}, t
	case *ir.LabelExpr:
		pre, d := s.expr(x.Default)
		return pre, x.Update(x.Target, d)
	case *ir.AssignExpr:
		return s.assignExpr(x)
	case *ir.BinaryExpr:
		if ContainsAwait(x.Right) {
			switch x.Op {
			case ir.OpAndAlso, ir.OpOrElse:
				return s.shortCircuit(x)
			case ir.OpCoalesce:
				return s.coalesce(x)
			}
		}
	case *ir.LambdaExpr:
		return nil, n
	}
	return s.operands(n)
}

// assign rewrites n into statements storing its value in t
func (s *spiller) assign(t *ir.Variable, n ir.Node) ir.Node {
	if ContainsAwait(n) {
		switch x := n.(type) {
		case *ir.BlockExpr:
			last := len(x.Exprs) - 1
			exprs := make([]ir.Node, len(x.Exprs))
			for i, e := range x.Exprs[:last] {
				exprs[i] = s.stmt(e)
			}
			exprs[last] = s.assign(t, x.Exprs[last])
			return ir.NewBlockTyped(types.Void, x.Variables, exprs...)
		case *ir.ConditionalExpr:
			pre, test := s.expr(x.Test)
			return seq(pre, ir.IfThenElse(test, s.assign(t, x.IfTrue), s.assign(t, x.IfFalse)))
		case *ir.SwitchExpr:
			pre, value := s.expr(x.SwitchValue)
			cases := make([]*ir.SwitchCase, len(x.Cases))
			for i, c := range x.Cases {
				cases[i] = ir.NewSwitchCase(s.assign(t, c.Body), c.TestValues...)
			}
			var def ir.Node
			if x.Default != nil {
				def = s.assign(t, x.Default)
			}
			return seq(pre, ir.NewSwitch(types.Void, value, def, cases...))
		case *ir.TryExpr:
			handlers := make([]*ir.CatchBlock, len(x.Handlers))
			for i, h := range x.Handlers {
				handlers[i] = ir.NewCatch(h.Test, h.Variable, ir.NewAssign(t, ir.Convert(h.Body, t.Type())), h.Filter)
			}
			return ir.NewTry(types.Void, s.assign(t, x.Body), x.Finally, x.Fault, handlers...)
		case *ir.LoopExpr:
			if x.Break != nil && !x.Break.Type().IsVoid() {
				brk := ir.NewLabelTarget(types.Void, x.Break.Name)
				body := rewrite(x.Body, func(n ir.Node) ir.Node {
					g, ok := n.(*ir.GotoExpr)
					if !ok || g.Target != x.Break {
						return n
					}
					return ir.NewBlockTyped(g.Type(), nil,
						ir.NewAssign(t, ir.Convert(g.Value, t.Type())),
						ir.NewGoto(g.GotoKind, brk, nil, g.Type()))
				})
				return ir.NewLoop(s.stmt(body), brk, x.Continue)
			}
		}
	}
	pre, value := s.expr(n)
	return seq(pre, ir.NewAssign(t, ir.Convert(value, t.Type())))
}

// keep returns n, or a variable holding the value of n when evaluating
// later could change it
func (s *spiller) keep(n ir.Node, later []ir.Node, pre *[]ir.Node) ir.Node {
	if ir.IsPure(n, false) || n.Type().IsVoid() {
		return n
	}
	if v, ok := n.(*ir.Variable); ok && !s.job.Config.SpillVariables && !assignsAny(later, v) {
		return n
	}
	t := s.job.temp(n.Type(), "spilled")
	*pre = append(*pre, ir.NewAssign(t, n))
	return t
}

func assignsAny(nodes []ir.Node, v *ir.Variable) bool {
	for _, n := range nodes {
		if ir.Contains(n, func(c ir.Node) bool {
			a, ok := c.(*ir.AssignExpr)
			return ok && a.Left == v
		}) {
			return true
		}
	}
	return false
}

// operands spills the operands of n evaluated before its last operand
// containing an await
func (s *spiller) operands(n ir.Node) ([]ir.Node, ir.Node) {
	kids := ir.Children(n)
	last := -1
	for i, k := range kids {
		if ContainsAwait(k) {
			last = i
		}
	}
	byRef := byRefOperands(n)
	var pre []ir.Node
	repl := make([]ir.Node, len(kids))
	for i, k := range kids {
		switch {
		case i > last:
			repl[i] = k
		case byRef[i]:
			repl[i] = s.location(k, i < last, kids[i+1:last+1], &pre)
		default:
			p, value := s.expr(k)
			pre = append(pre, p...)
			if i < last {
				value = s.keep(value, kids[i+1:last+1], &pre)
			}
			repl[i] = value
		}
	}
	i := 0
	res := n.VisitChildren(ir.VisitorFunc(func(ir.Node) ir.Node {
		r := repl[i]
		i++
		return r
	}))
	return pre, res
}

// byRefOperands returns the positions of the children of n passed by
// reference
func byRefOperands(n ir.Node) map[int]bool {
	var params []*types.Parameter
	offset := 0
	switch x := n.(type) {
	case *ir.CallExpr:
		params = x.Method.Params
		if x.Object != nil {
			offset = 1
		}
	case *ir.InvokeExpr:
		params = x.Expr.Type().Invoke.Params
		offset = 1
	case *ir.NewExpr:
		params = x.Ctor.Params
	}
	res := map[int]bool{}
	for i, p := range params {
		if p.ByRef {
			res[offset+i] = true
		}
	}
	return res
}

// location rewrites the storage location loc. When spill is set the
// receivers and indices are stored in variables, except for variables
// holding value types, which are storage themselves.
func (s *spiller) location(loc ir.Node, spill bool, later []ir.Node, pre *[]ir.Node) ir.Node {
	receiver := func(obj ir.Node) ir.Node {
		if obj == nil {
			return nil
		}
		if _, ok := obj.(*ir.Variable); ok && obj.Type().IsValueType() {
			return obj
		}
		if obj.Type().IsValueType() {
			return s.location(obj, spill, later, pre)
		}
		p, value := s.expr(obj)
		*pre = append(*pre, p...)
		if spill {
			value = s.keep(value, later, pre)
		}
		return value
	}
	switch x := loc.(type) {
	case *ir.Variable:
		return x
	case *ir.MemberExpr:
		return x.Update(receiver(x.Object))
	case *ir.IndexExpr:
		obj := receiver(x.Object)
		args := make([]ir.Node, len(x.Args))
		for i, a := range x.Args {
			p, value := s.expr(a)
			*pre = append(*pre, p...)
			if spill {
				value = s.keep(value, later, pre)
			}
			args[i] = value
		}
		return x.Update(obj, args)
	}
	p, value := s.expr(loc)
	*pre = append(*pre, p...)
	if spill {
		value = s.keep(value, later, pre)
	}
	return value
}

func (s *spiller) assignExpr(x *ir.AssignExpr) ([]ir.Node, ir.Node) {
	var pre []ir.Node
	loc := s.location(x.Left, ContainsAwait(x.Right), []ir.Node{x.Right}, &pre)
	p, value := s.expr(x.Right)
	pre = append(pre, p...)
	return pre, x.Update(loc, value)
}

// shortCircuit evaluates the right operand of && and || only when needed
func (s *spiller) shortCircuit(x *ir.BinaryExpr) ([]ir.Node, ir.Node) {
	if x.Type() != types.Bool || x.Method != nil {
		s.fail(errors.Errorf("await in the right operand of %s on %s", x.Op, x.Type()))
		return nil, x
	}
	pre, left := s.expr(x.Left)
	t := s.job.temp(types.Bool, "condition")
	pre = append(pre, ir.NewAssign(t, left))
	var test ir.Node = t
	if x.Op == ir.OpOrElse {
		test = ir.Not(t)
	}
	return append(pre, ir.IfThen(test, s.assign(t, x.Right))), t
}

// coalesce evaluates the right operand of ?? only when the left one is
// null
func (s *spiller) coalesce(x *ir.BinaryExpr) ([]ir.Node, ir.Node) {
	pre, left := s.expr(x.Left)
	lt := left.Type()
	held := s.job.temp(lt, "left")
	pre = append(pre, ir.NewAssign(held, left))
	res := s.job.temp(x.Type(), "coalesce")
	var test, value ir.Node
	if lt.IsNullable() {
		test = ir.NewProperty(held, lt.Property("HasValue"))
		value = held
		if x.Type() != lt {
			value = ir.NewProperty(held, lt.Property("Value"))
		}
	} else {
		test = ir.IsNotNull(held)
		value = held
	}
	return append(pre, ir.IfThenElse(test,
		ir.NewAssign(res, ir.Convert(value, x.Type())),
		s.assign(res, x.Right),
	)), res
}

func (s *spiller) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}
