package async

import (
	"fmt"

	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// RewriteAwaits turns each await statement into a suspension point:
//
//	awaiter = operand.GetAwaiter()
//	if (!awaiter.IsCompleted) {
//	    state = localState = k
//	    builder.AwaitOnCompleted(awaiter, stateMachine)
//	    goto exit
//	}
//	resume_k:
//	state = localState = -1
//	[v =] awaiter.GetResult()
//
// and records resume_k in the jump table run when MoveNext starts. Awaits
// inside a try are entered through a label placed before the try and a
// table at the start of its body. Finally blocks of such trys only run
// when the machine is not suspending. Locals of blocks that await are
// hoisted into the outer lambda.
func RewriteAwaits(job *LoweringJob) error {
	r := &awaitRewriter{job: job}
	r.push()
	job.Body = r.node(job.Body)
	job.Resume = r.pop()
	tracer().Debugf("async: %d await sites", job.states)
	return nil
}

type awaitRewriter struct {
	job    *LoweringJob
	tables [][]resumePoint
}

func (r *awaitRewriter) push() {
	r.tables = append(r.tables, nil)
}

func (r *awaitRewriter) pop() []resumePoint {
	last := len(r.tables) - 1
	t := r.tables[last]
	r.tables = r.tables[:last]
	return t
}

func (r *awaitRewriter) add(p resumePoint) {
	last := len(r.tables) - 1
	r.tables[last] = append(r.tables[last], p)
}

func (r *awaitRewriter) node(n ir.Node) ir.Node {
	if !ContainsAwait(n) {
		return n
	}
	switch x := n.(type) {
	case *ir.BlockExpr:
		r.job.hoist(x.Variables...)
		var exprs []ir.Node
		for _, v := range x.Variables {
			exprs = append(exprs, ir.NewAssign(v, ir.NewDefault(v.Type())))
		}
		for _, e := range x.Exprs {
			if target, a, ok := awaitStatement(e); ok {
				exprs = append(exprs, r.suspend(target, a)...)
				continue
			}
			exprs = append(exprs, r.node(e))
		}
		return ir.NewBlockTyped(x.Type(), nil, exprs...)
	case *ir.ConditionalExpr:
		return x.Update(x.Test, r.node(x.IfTrue), r.node(x.IfFalse))
	case *ir.LoopExpr:
		return x.Update(x.Break, x.Continue, r.node(x.Body))
	case *ir.SwitchExpr:
		cases := make([]*ir.SwitchCase, len(x.Cases))
		for i, c := range x.Cases {
			cases[i] = c.Update(c.TestValues, r.node(c.Body))
		}
		return x.Update(x.SwitchValue, cases, r.node(x.Default))
	case *ir.LabelExpr:
		return x.Update(x.Target, r.node(x.Default))
	case *ir.TryExpr:
		return r.try(x)
	}
	panic(fmt.Sprintf("await left inside %s expression", n.Kind()))
}

func (r *awaitRewriter) try(t *ir.TryExpr) ir.Node {
	r.push()
	body := r.node(t.Body)
	points := r.pop()
	if len(points) == 0 {
		return t.Update(body, t.Handlers, t.Finally, t.Fault)
	}
	entry := ir.NewLabelTarget(types.Void, "tryEntry")
	for _, p := range points {
		r.add(resumePoint{state: p.state, label: entry})
	}
	body = ir.NewBlockTyped(body.Type(), nil, r.job.jumpTable(points), body)
	finally := t.Finally
	if finally != nil {
		finally = ir.IfThen(ir.LessThan(r.job.LocalState, ir.Const(0)), finally)
	}
	return ir.NewBlockTyped(t.Type(), nil,
		ir.Label(entry),
		ir.NewTry(t.Type(), body, finally, t.Fault, t.Handlers...),
	)
}

// jumpTable switches on the local state to the resume labels of points
func (job *LoweringJob) jumpTable(points []resumePoint) ir.Node {
	cases := make([]*ir.SwitchCase, len(points))
	for i, p := range points {
		cases[i] = ir.NewSwitchCase(ir.Goto(p.label), ir.Const(p.state))
	}
	return ir.NewSwitch(types.Void, job.LocalState, nil, cases...)
}

// awaitStatement matches await x and v = await x
func awaitStatement(n ir.Node) (*ir.Variable, *Await, bool) {
	switch x := n.(type) {
	case *Await:
		return nil, x, true
	case *ir.AssignExpr:
		v, isVar := x.Left.(*ir.Variable)
		a, isAwait := x.Right.(*Await)
		if isVar && isAwait {
			return v, a, true
		}
	}
	return nil, nil, false
}

func (r *awaitRewriter) suspend(target *ir.Variable, a *Await) []ir.Node {
	if ContainsAwait(a.Operand) {
		panic("await operand was not spilled")
	}
	job := r.job
	state := job.nextState()
	awaiter := job.temp(a.Info.AwaiterType(), fmt.Sprintf("awaiter%d", state))
	resume := ir.NewLabelTarget(types.Void, fmt.Sprintf("resume%d", state))
	r.add(resumePoint{state: state, label: resume})

	var result ir.Node = ir.NewCall(awaiter, a.Info.GetResult)
	if target != nil {
		result = ir.NewAssign(target, ir.Convert(result, target.Type()))
	}
	return []ir.Node{
		ir.NewAssign(awaiter, a.Info.getAwaiter(a.Operand)),
		ir.IfThen(ir.Not(ir.NewProperty(awaiter, a.Info.IsCompleted)), ir.VoidBlock(
			ir.NewAssign(job.State, ir.Const(state)),
			ir.NewAssign(job.LocalState, ir.Const(state)),
			builderCall(job.Builder, "AwaitOnCompleted",
				ir.Convert(awaiter, runtime.INotifyCompletionType),
				ir.Convert(job.Machine, runtime.IAsyncStateMachineType)),
			ir.Goto(job.Exit),
		)),
		ir.Label(resume),
		ir.NewAssign(job.State, ir.Const(-1)),
		ir.NewAssign(job.LocalState, ir.Const(-1)),
		result,
	}
}

// builderCall binds the builder member name against the types of args and
// calls it on builder, or statically when the member is static
func builderCall(builder *ir.Variable, name string, args ...ir.Node) *ir.CallExpr {
	argTypes := make([]*types.Type, len(args))
	for i, a := range args {
		argTypes[i] = a.Type()
	}
	m, err := types.Binder.LookupMethod(builder.Type(), name, argTypes...)
	if err != nil {
		panic(fmt.Sprintf("method builder %s: %v", builder.Type(), err))
	}
	if m.Static {
		return ir.NewCall(nil, m, args...)
	}
	return ir.NewCall(builder, m, args...)
}
