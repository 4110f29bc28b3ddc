package async

import (
	"exprfutures-go/packages/lowering/ir"
)

// EliminateAliases gives every variable declaration of the body its own
// variable. Reductions may reuse a subtree, so the same variable can be
// declared by several blocks; once locals are hoisted such declarations
// would share storage. Later declarations are renamed.
func EliminateAliases(job *LoweringJob) error {
	declared := map[*ir.Variable]bool{}
	for _, p := range job.Lambda.Params {
		declared[p] = true
	}
	renamed := 0
	var v ir.Visitor
	v = ir.VisitorFunc(func(n ir.Node) ir.Node {
		switch x := n.(type) {
		case *ir.LambdaExpr:
			return n
		case *ir.BlockExpr:
			m := map[*ir.Variable]ir.Node{}
			for _, d := range x.Variables {
				if declared[d] {
					m[d] = ir.NewVariable(d.Type(), d.Name)
					renamed++
				}
			}
			if len(m) > 0 {
				x = ir.Substitute(x, m).(*ir.BlockExpr)
			}
			for _, d := range x.Variables {
				declared[d] = true
			}
			return x.VisitChildren(v)
		case *ir.TryExpr:
			handlers := make([]*ir.CatchBlock, len(x.Handlers))
			for i, h := range x.Handlers {
				if h.Variable != nil && declared[h.Variable] {
					fresh := ir.NewVariable(h.Variable.Type(), h.Variable.Name)
					m := map[*ir.Variable]ir.Node{h.Variable: fresh}
					h = ir.NewCatch(h.Test, fresh, ir.Substitute(h.Body, m), ir.Substitute(h.Filter, m))
					renamed++
				}
				if h.Variable != nil {
					declared[h.Variable] = true
				}
				handlers[i] = h.Update(h.Variable, ir.Accept(h.Filter, v), ir.Accept(h.Body, v))
			}
			return x.Update(ir.Accept(x.Body, v), handlers, ir.Accept(x.Finally, v), ir.Accept(x.Fault, v))
		}
		return n.VisitChildren(v)
	})
	job.Body = ir.Accept(job.Body, v)
	if renamed > 0 {
		tracer().Debugf("async: renamed %d aliased declarations", renamed)
	}
	return nil
}
