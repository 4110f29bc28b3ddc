package async

import (
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// RewriteCatchFinally moves catch, finally and fault blocks that await out
// of their protected region. The exception is stored in a variable by a
// catch that does not await, and the original block runs after the try.
// Jumps leaving a try whose finally awaits are routed through the finally
// block.
func RewriteCatchFinally(job *LoweringJob) error {
	job.Body = rewrite(job.Body, func(n ir.Node) ir.Node {
		if t, ok := n.(*ir.TryExpr); ok && handlersAwait(t) {
			return job.rewriteTry(t)
		}
		return n
	})
	return nil
}

func handlersAwait(t *ir.TryExpr) bool {
	if ContainsAwait(t.Finally) || ContainsAwait(t.Fault) {
		return true
	}
	for _, h := range t.Handlers {
		if ContainsAwait(h.Body) {
			return true
		}
	}
	return false
}

func (job *LoweringJob) rewriteTry(t *ir.TryExpr) ir.Node {
	if len(t.Handlers) > 0 && t.Finally != nil {
		inner := ir.NewTry(t.Type(), t.Body, nil, nil, t.Handlers...)
		var body ir.Node = inner
		if handlersAwait(inner) {
			body = job.rewriteCatch(inner)
		}
		outer := ir.NewTry(t.Type(), body, t.Finally, nil)
		if ContainsAwait(outer.Finally) {
			return job.rewriteFinally(outer)
		}
		return outer
	}
	switch {
	case t.Fault != nil:
		return job.rewriteFault(t)
	case t.Finally != nil:
		return job.rewriteFinally(t)
	}
	return job.rewriteCatch(t)
}

// tryResult returns the variable receiving the value of a typed try, nil
// for void ones
func (job *LoweringJob) tryResult(t *ir.TryExpr) *ir.Variable {
	if t.Type().IsVoid() {
		return nil
	}
	return job.temp(t.Type(), "tryResult")
}

func storeResult(res *ir.Variable, n ir.Node) ir.Node {
	if res == nil {
		return n
	}
	return ir.NewAssign(res, ir.Convert(n, res.Type()))
}

func finish(t *ir.TryExpr, res *ir.Variable, stmts ...ir.Node) ir.Node {
	if res == nil {
		return ir.NewBlockTyped(types.Void, nil, stmts...)
	}
	return ir.NewBlockTyped(t.Type(), nil, append(stmts, res)...)
}

// rewriteCatch turns
//
//	try { B } catch (E e) { H }
//
// into
//
//	which = 0
//	try { B } catch (E e) { ex = e; which = 1 }
//	switch (which) { case 1: e' = (E)ex; H' }
//
// where H' throws ex instead of rethrowing. Handlers that do not await
// stay in place.
func (job *LoweringJob) rewriteCatch(t *ir.TryExpr) ir.Node {
	res := job.tryResult(t)
	ex := job.temp(runtime.ExceptionType, "exception")
	which := job.temp(types.Int, "handler")
	handlers := make([]*ir.CatchBlock, len(t.Handlers))
	var cases []*ir.SwitchCase
	for i, h := range t.Handlers {
		if !ContainsAwait(h.Body) {
			handlers[i] = ir.NewCatch(h.Test, h.Variable, storeResult(res, h.Body), h.Filter)
			continue
		}
		caught := h.Variable
		if caught == nil {
			caught = ir.NewVariable(h.Test, "caught")
		}
		handlers[i] = ir.NewCatch(h.Test, caught, ir.VoidBlock(
			ir.NewAssign(ex, ir.Convert(caught, runtime.ExceptionType)),
			ir.NewAssign(which, ir.Const(i+1)),
		), h.Filter)
		body := replaceRethrow(h.Body, ex)
		stmts := []ir.Node{}
		if h.Variable != nil {
			moved := job.temp(h.Test, h.Variable.Name)
			stmts = append(stmts, ir.NewAssign(moved, ir.Convert(ex, h.Test)))
			body = ir.Substitute(body, map[*ir.Variable]ir.Node{h.Variable: moved})
		}
		stmts = append(stmts, storeResult(res, body))
		cases = append(cases, ir.NewSwitchCase(ir.NewBlockTyped(types.Void, nil, stmts...), ir.Const(i+1)))
	}
	try := ir.NewTry(types.Void, storeResult(res, t.Body), nil, nil, handlers...)
	return finish(t, res,
		ir.NewAssign(which, ir.Const(0)),
		try,
		ir.NewSwitch(types.Void, which, nil, cases...),
	)
}

// rewriteFinally turns
//
//	try { B } finally { F }
//
// into
//
//	ex = null; pending = 0
//	try { B' } catch (Exception e) { ex = e }
//	done: F
//	if (ex != null) throw ex
//	switch (pending) { case i: goto L_i }
//
// where B' records in pending the jumps leaving the try and routes them to
// done.
func (job *LoweringJob) rewriteFinally(t *ir.TryExpr) ir.Node {
	res := job.tryResult(t)
	ex := job.temp(runtime.ExceptionType, "exception")
	pending := job.temp(types.Int, "pending")
	done := ir.NewLabelTarget(types.Void, "finally")

	body, exits := job.routeExits(t.Body, done, pending)
	caught := ir.NewVariable(runtime.ExceptionType, "caught")
	try := ir.NewTry(types.Void, storeResult(res, body), nil, nil,
		ir.NewCatch(runtime.ExceptionType, caught, ir.NewAssign(ex, caught), nil))

	stmts := []ir.Node{
		ir.NewAssign(ex, ir.NewDefault(runtime.ExceptionType)),
		ir.NewAssign(pending, ir.Const(0)),
		try,
		ir.Label(done),
		t.Finally,
		ir.IfThen(ir.IsNotNull(ex), ir.Throw(ex)),
	}
	if len(exits) > 0 {
		cases := make([]*ir.SwitchCase, len(exits))
		for i, e := range exits {
			cases[i] = ir.NewSwitchCase(e.resume(), ir.Const(i+1))
		}
		stmts = append(stmts, ir.NewSwitch(types.Void, pending, nil, cases...))
	}
	return finish(t, res, stmts...)
}

// rewriteFault turns
//
//	try { B } fault { F }
//
// into
//
//	ex = null
//	try { B } catch (Exception e) { ex = e }
//	if (ex != null) { F; throw ex }
func (job *LoweringJob) rewriteFault(t *ir.TryExpr) ir.Node {
	res := job.tryResult(t)
	ex := job.temp(runtime.ExceptionType, "exception")
	caught := ir.NewVariable(runtime.ExceptionType, "caught")
	try := ir.NewTry(types.Void, storeResult(res, t.Body), nil, nil,
		ir.NewCatch(runtime.ExceptionType, caught, ir.NewAssign(ex, caught), nil))
	return finish(t, res,
		ir.NewAssign(ex, ir.NewDefault(runtime.ExceptionType)),
		try,
		ir.IfThen(ir.IsNotNull(ex), ir.VoidBlock(t.Fault, ir.Throw(ex))),
	)
}

// pendingExit is a jump that left a try whose finally awaits
type pendingExit struct {
	target *ir.LabelTarget
	kind   ir.GotoKind
	value  *ir.Variable
}

func (e *pendingExit) resume() ir.Node {
	if e.value == nil {
		return ir.NewGoto(e.kind, e.target, nil, nil)
	}
	return ir.NewGoto(e.kind, e.target, e.value, nil)
}

// routeExits replaces the jumps in body whose target is outside body by
// recording the jump in pending and jumping to done
func (job *LoweringJob) routeExits(body ir.Node, done *ir.LabelTarget, pending *ir.Variable) (ir.Node, []*pendingExit) {
	inside := map[*ir.LabelTarget]bool{}
	for _, l := range ir.DeclaredLabels(body) {
		inside[l] = true
	}
	var exits []*pendingExit
	index := map[*ir.LabelTarget]int{}
	res := rewrite(body, func(n ir.Node) ir.Node {
		g, ok := n.(*ir.GotoExpr)
		if !ok || inside[g.Target] {
			return n
		}
		i, seen := index[g.Target]
		if !seen {
			e := &pendingExit{target: g.Target, kind: g.GotoKind}
			if !g.Target.Type().IsVoid() {
				e.value = job.temp(g.Target.Type(), "exitValue")
			}
			exits = append(exits, e)
			i = len(exits)
			index[g.Target] = i
		}
		stmts := []ir.Node{}
		if g.Value != nil {
			stmts = append(stmts, ir.NewAssign(exits[i-1].value, ir.Convert(g.Value, g.Target.Type())))
		}
		stmts = append(stmts,
			ir.NewAssign(pending, ir.Const(i)),
			ir.NewGoto(ir.GotoKindGoto, done, nil, g.Type()),
		)
		return ir.NewBlockTyped(g.Type(), nil, stmts...)
	})
	return res, exits
}

// replaceRethrow replaces the rethrows of a handler body that has been
// moved out of its catch block by throwing ex. Rethrows inside nested
// handlers refer to their own exception and are kept.
func replaceRethrow(body ir.Node, ex *ir.Variable) ir.Node {
	var v ir.Visitor
	v = ir.VisitorFunc(func(n ir.Node) ir.Node {
		switch x := n.(type) {
		case *ir.LambdaExpr:
			return n
		case *ir.ThrowExpr:
			if x.Value == nil {
				return ir.NewThrow(ex, x.Type())
			}
		case *ir.TryExpr:
			return x.Update(ir.Accept(x.Body, v), x.Handlers, ir.Accept(x.Finally, v), ir.Accept(x.Fault, v))
		}
		return n.VisitChildren(v)
	})
	return ir.Accept(body, v)
}
