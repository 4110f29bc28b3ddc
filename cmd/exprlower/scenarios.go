package main

import (
	"sort"

	"github.com/pkg/errors"

	"exprfutures-go/packages/lowering/async"
	"exprfutures-go/packages/lowering/ext"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// scenario builds a closed tree. Async scenarios post their completions on
// loop.
type scenario struct {
	summary string
	build   func(loop *runtime.EventLoop) (ir.Node, error)
}

var scenarios = map[string]scenario{
	"for-sum":         {"sum of 0..9 with a for loop", forSum},
	"index-from-end":  {`"hello"[^1]`, indexFromEnd},
	"range":           {`"hello"[1..3]`, rangeSlice},
	"interpolate":     {`$"{1 + 2} is {"three"}"`, interpolate},
	"tuple-equals":    {`(1, "a") == (1, "a")`, tupleEquals},
	"switch":          {"switch expression over constant patterns", switchExpression},
	"compound-assign": {"x = 5; x *= 3; x++", compoundAssign},
	"async-add":       {"1 + await loop.Yield(2)", asyncAdd},
	"async-loop":      {"sum of await loop.Yield(i) for i in 0..4", asyncLoop},
	"async-catch":     {"await inside a catch block", asyncCatch},
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func forSum(*runtime.EventLoop) (ir.Node, error) {
	sum := ir.NewVariable(types.Int, "sum")
	i := ir.NewVariable(types.Int, "i")
	add, err := ext.NewAssignBinary(ir.OpAdd, sum, i, nil)
	if err != nil {
		return nil, err
	}
	inc, err := ext.NewAssignUnary(ext.PostIncrement, i)
	if err != nil {
		return nil, err
	}
	loop, err := ext.NewFor([]*ir.Variable{i}, []ir.Node{ir.NewAssign(i, ir.Const(0))},
		ir.LessThan(i, ir.Const(10)), []ir.Node{inc}, add, nil, nil)
	if err != nil {
		return nil, err
	}
	return ir.NewBlock([]*ir.Variable{sum}, ir.NewAssign(sum, ir.Const(0)), loop, sum), nil
}

func indexFromEnd(*runtime.EventLoop) (ir.Node, error) {
	idx, err := ext.NewFromEndIndex(ir.Const(1))
	if err != nil {
		return nil, err
	}
	return ext.NewIndexerAccess(ir.Const("hello"), idx)
}

func rangeSlice(*runtime.EventLoop) (ir.Node, error) {
	r, err := ext.NewRange(ir.Const(1), ir.Const(3))
	if err != nil {
		return nil, err
	}
	return ext.NewIndexerAccess(ir.Const("hello"), r)
}

func interpolate(*runtime.EventLoop) (ir.Node, error) {
	return ext.NewInterpolatedString(
		ext.Hole(ir.Add(ir.Const(1), ir.Const(2)), 0, ""),
		ext.Literal(" is "),
		ext.Hole(ir.Const("three"), 0, ""),
	)
}

func tupleEquals(*runtime.EventLoop) (ir.Node, error) {
	t := types.TupleOf(types.Int, types.String)
	left, err := ext.NewTupleLiteral(t, ir.Const(1), ir.Const("a"))
	if err != nil {
		return nil, err
	}
	right, err := ext.NewTupleLiteral(t, ir.Const(1), ir.Const("a"))
	if err != nil {
		return nil, err
	}
	return ext.NewTupleBinary(ir.OpEqual, left, right)
}

func switchExpression(*runtime.EventLoop) (ir.Node, error) {
	var arms []*ext.SwitchExpressionArm
	for i, name := range []string{"one", "two"} {
		p, err := ext.NewConstantPattern(types.Int, ir.Const(i+1))
		if err != nil {
			return nil, err
		}
		arms = append(arms, &ext.SwitchExpressionArm{Pattern: p, Value: ir.Const(name)})
	}
	arms = append(arms, &ext.SwitchExpressionArm{Pattern: ext.NewDiscardPattern(types.Int), Value: ir.Const("many")})
	return ext.NewSwitchExpression(types.String, ir.Const(2), arms...)
}

func compoundAssign(*runtime.EventLoop) (ir.Node, error) {
	x := ir.NewVariable(types.Int, "x")
	mul, err := ext.NewAssignBinary(ir.OpMultiply, x, ir.Const(3), nil)
	if err != nil {
		return nil, err
	}
	inc, err := ext.NewAssignUnary(ext.PreIncrement, x)
	if err != nil {
		return nil, err
	}
	return ir.NewBlock([]*ir.Variable{x}, ir.NewAssign(x, ir.Const(5)), mul, inc), nil
}

// yield creates await loop.Yield<int>(value)
func yield(loop *runtime.EventLoop, value ir.Node) (*async.Await, error) {
	m := runtime.YieldMethod.Instantiate([]*types.Type{types.Int})
	return async.NewAwait(ir.NewCall(ir.NewConstant(loop, runtime.EventLoopType), m, value), nil)
}

// invokeAsync creates an invocation of an async lambda returning Task<int>
func invokeAsync(body ir.Node) (ir.Node, error) {
	l, err := async.NewAsyncLambda(types.FuncOf(runtime.TaskOf(types.Int)), body)
	if err != nil {
		return nil, err
	}
	return ir.NewInvoke(l), nil
}

func asyncAdd(loop *runtime.EventLoop) (ir.Node, error) {
	aw, err := yield(loop, ir.Const(2))
	if err != nil {
		return nil, err
	}
	return invokeAsync(ir.Add(ir.Const(1), aw))
}

func asyncLoop(loop *runtime.EventLoop) (ir.Node, error) {
	sum := ir.NewVariable(types.Int, "sum")
	i := ir.NewVariable(types.Int, "i")
	aw, err := yield(loop, i)
	if err != nil {
		return nil, err
	}
	add, err := ext.NewAssignBinary(ir.OpAdd, sum, aw, nil)
	if err != nil {
		return nil, err
	}
	inc, err := ext.NewAssignUnary(ext.PostIncrement, i)
	if err != nil {
		return nil, err
	}
	forLoop, err := ext.NewFor([]*ir.Variable{i}, []ir.Node{ir.NewAssign(i, ir.Const(0))},
		ir.LessThan(i, ir.Const(5)), []ir.Node{inc}, add, nil, nil)
	if err != nil {
		return nil, err
	}
	return invokeAsync(ir.NewBlock([]*ir.Variable{sum}, ir.NewAssign(sum, ir.Const(0)), forLoop, sum))
}

func asyncCatch(loop *runtime.EventLoop) (ir.Node, error) {
	r := ir.NewVariable(types.Int, "r")
	first, err := yield(loop, ir.Const(1))
	if err != nil {
		return nil, err
	}
	second, err := yield(loop, ir.Const(7))
	if err != nil {
		return nil, err
	}
	boom := runtime.NewException(runtime.InvalidOperationExceptionType, "boom")
	try := ir.NewTry(types.Void,
		ir.VoidBlock(ir.NewAssign(r, first), ir.Throw(ir.NewConstant(boom, runtime.InvalidOperationExceptionType))),
		nil, nil,
		ir.NewCatch(runtime.ExceptionType, nil, ir.VoidBlock(ir.NewAssign(r, second)), nil),
	)
	return invokeAsync(ir.NewBlock([]*ir.Variable{r}, try, r))
}

func lookupScenario(name string) (scenario, error) {
	s, ok := scenarios[name]
	if !ok {
		return scenario{}, errors.Errorf("unknown scenario %q, see 'exprlower list'", name)
	}
	return s, nil
}
