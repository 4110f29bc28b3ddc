package async

import (
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// BuildDriver wraps the rewritten body into the MoveNext action
//
//	localState = state
//	try { jump table; body }
//	catch (Exception ex) { state = -2; builder.SetException(ex); goto exit }
//	state = -2
//	builder.SetResult(result)
//	exit:
//
// and creates the lambda that starts the state machine and returns the
// task of its builder.
func BuildDriver(job *LoweringJob) error {
	body := job.Body
	if len(job.Resume) > 0 {
		body = ir.NewBlockTyped(types.Void, nil, job.jumpTable(job.Resume), body)
	}
	var setResult ir.Node
	if job.Result != nil {
		setResult = builderCall(job.Builder, "SetResult", job.Result)
	} else {
		setResult = builderCall(job.Builder, "SetResult")
	}
	ex := ir.NewVariable(runtime.ExceptionType, "ex")
	locals := []*ir.Variable{job.LocalState}
	if job.Result != nil {
		locals = append(locals, job.Result)
	}
	moveNext := ir.NewLambda(types.ActionOf(), ir.NewBlockTyped(types.Void, locals,
		ir.NewAssign(job.LocalState, job.State),
		ir.NewTry(types.Void, body, nil, nil, ir.NewCatch(runtime.ExceptionType, ex, ir.VoidBlock(
			ir.NewAssign(job.State, ir.Const(-2)),
			builderCall(job.Builder, "SetException", ex),
			ir.Goto(job.Exit),
		), nil)),
		ir.NewAssign(job.State, ir.Const(-2)),
		setResult,
		ir.Label(job.Exit),
	))
	moveNext.Name = "MoveNext"

	stmts := []ir.Node{
		ir.NewAssign(job.State, ir.Const(-1)),
		ir.NewAssign(job.Builder, builderCall(job.Builder, "Create")),
		ir.NewAssign(job.Machine, ir.NewObject(runtime.StateMachineCtor, moveNext)),
		builderCall(job.Builder, "Start", ir.Convert(job.Machine, runtime.IAsyncStateMachineType)),
	}
	ret := job.Lambda.ReturnType()
	if !ret.IsVoid() {
		task, err := types.Binder.LookupProperty(job.Builder.Type(), "Task")
		if err != nil {
			return err
		}
		stmts = append(stmts, ir.Convert(ir.NewProperty(job.Builder, task), ret))
	}
	vars := append([]*ir.Variable{job.Builder, job.Machine, job.State}, job.Hoisted...)
	job.Output = ir.NewLambda(job.Lambda.Type(), ir.NewBlockTyped(ret, vars, stmts...), job.Lambda.Params...)
	job.Output.Name = job.Lambda.Name
	return nil
}

// OptimizeBlocks merges blocks without variables into the enclosing block,
// drops void no-ops and unwraps blocks holding a single expression
func OptimizeBlocks(job *LoweringJob) error {
	job.Output = ir.Transform(job.Output, func(n ir.Node) ir.Node {
		if b, ok := n.(*ir.BlockExpr); ok {
			return flatten(b)
		}
		return n
	}).(*ir.LambdaExpr)
	return nil
}

func flatten(b *ir.BlockExpr) ir.Node {
	last := len(b.Exprs) - 1
	var merged []ir.Node
	changed := false
	for i, e := range b.Exprs {
		if inner, ok := e.(*ir.BlockExpr); ok && len(inner.Variables) == 0 && (i < last || inner.Type() == b.Type()) {
			merged = append(merged, inner.Exprs...)
			changed = true
			continue
		}
		merged = append(merged, e)
	}
	exprs := merged[:0:0]
	for i, e := range merged {
		if i < len(merged)-1 && ir.IsEmpty(e) {
			changed = true
			continue
		}
		exprs = append(exprs, e)
	}
	if changed {
		b = ir.NewBlockTyped(b.Type(), b.Variables, exprs...)
	}
	if len(b.Variables) == 0 && len(b.Exprs) == 1 && b.Exprs[0].Type() == b.Type() {
		return b.Exprs[0]
	}
	return b
}
