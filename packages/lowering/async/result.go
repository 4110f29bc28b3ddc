package async

import (
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/types"
)

// PropagateResult stores the value of the body in the result variable
// passed to SetResult. The body of a lambda without a result becomes void.
func PropagateResult(job *LoweringJob) error {
	if job.Result == nil {
		if !job.Body.Type().IsVoid() {
			job.Body = ir.NewBlockTyped(types.Void, nil, job.Body)
		}
		return nil
	}
	job.Body = ir.NewBlockTyped(types.Void, nil, percolate(job.Result, job.Body))
	return nil
}

// RewriteTypedLabels replaces labels carrying values by void labels. The
// value travels in a hoisted variable: goto L(v) becomes
//
//	{ value_L = v; goto L' }
//
// and the label itself becomes { value_L = default; L': value_L }. A loop
// breaking with a value becomes { loop with break L'; value_L }.
func RewriteTypedLabels(job *LoweringJob) error {
	values := map[*ir.LabelTarget]*ir.Variable{}
	targets := map[*ir.LabelTarget]*ir.LabelTarget{}
	for _, l := range ir.DeclaredLabels(job.Body) {
		if l.Type().IsVoid() || targets[l] != nil {
			continue
		}
		values[l] = job.temp(l.Type(), l.Name+"Value")
		targets[l] = ir.NewLabelTarget(types.Void, l.Name)
	}
	if len(targets) == 0 {
		return nil
	}
	job.Body = rewrite(job.Body, func(n ir.Node) ir.Node {
		switch x := n.(type) {
		case *ir.GotoExpr:
			if t, ok := targets[x.Target]; ok {
				v := values[x.Target]
				return ir.NewBlockTyped(x.Type(), nil,
					ir.NewAssign(v, ir.Convert(x.Value, v.Type())),
					ir.NewGoto(x.GotoKind, t, nil, x.Type()),
				)
			}
		case *ir.LoopExpr:
			if t, ok := targets[x.Break]; ok {
				v := values[x.Break]
				return ir.NewBlockTyped(v.Type(), nil, ir.NewLoop(x.Body, t, x.Continue), v)
			}
		case *ir.LabelExpr:
			if t, ok := targets[x.Target]; ok {
				v := values[x.Target]
				return ir.NewBlockTyped(v.Type(), nil,
					ir.NewAssign(v, ir.Convert(x.Default, v.Type())),
					ir.Label(t),
					v,
				)
			}
		}
		return n
	})
	tracer().Debugf("async: retyped %d labels", len(targets))
	return nil
}

// PercolateAssignments pushes assignments of variables into the blocks,
// conditionals, switches and trys that produce the assigned value when
// these declare labels, so that no label is left inside an expression.
func PercolateAssignments(job *LoweringJob) error {
	job.Body = rewrite(job.Body, func(n ir.Node) ir.Node {
		a, ok := n.(*ir.AssignExpr)
		if !ok {
			return n
		}
		v, ok := a.Left.(*ir.Variable)
		if !ok || len(ir.DeclaredLabels(a.Right)) == 0 {
			return n
		}
		return percolate(v, a.Right)
	})
	return nil
}

// percolate creates the statement storing the value of n in v, with the
// assignment moved into the branches of n
func percolate(v *ir.Variable, n ir.Node) ir.Node {
	t := v.Type()
	switch x := n.(type) {
	case *ir.BlockExpr:
		last := len(x.Exprs) - 1
		exprs := make([]ir.Node, len(x.Exprs))
		copy(exprs, x.Exprs)
		exprs[last] = percolate(v, x.Exprs[last])
		return ir.NewBlockTyped(t, x.Variables, exprs...)
	case *ir.ConditionalExpr:
		return ir.NewConditional(x.Test, percolate(v, x.IfTrue), percolate(v, x.IfFalse), t)
	case *ir.SwitchExpr:
		cases := make([]*ir.SwitchCase, len(x.Cases))
		for i, c := range x.Cases {
			cases[i] = ir.NewSwitchCase(percolate(v, c.Body), c.TestValues...)
		}
		var def ir.Node = ir.NewAssign(v, ir.NewDefault(t))
		if x.Default != nil {
			def = percolate(v, x.Default)
		}
		return ir.NewSwitch(t, x.SwitchValue, def, cases...)
	case *ir.TryExpr:
		handlers := make([]*ir.CatchBlock, len(x.Handlers))
		for i, h := range x.Handlers {
			handlers[i] = ir.NewCatch(h.Test, h.Variable, percolate(v, h.Body), h.Filter)
		}
		return ir.NewTry(t, percolate(v, x.Body), x.Finally, x.Fault, handlers...)
	case *ir.UnaryExpr:
		if x.Op == ir.OpConvert && x.Method == nil && len(ir.DeclaredLabels(x.Operand)) > 0 {
			return percolate(v, x.Operand)
		}
	}
	return ir.NewAssign(v, ir.Convert(n, t))
}
