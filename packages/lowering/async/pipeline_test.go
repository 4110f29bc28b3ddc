package async_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"exprfutures-go/packages/lowering/async"
	"exprfutures-go/packages/lowering/config"
	"exprfutures-go/packages/lowering/ext"
	"exprfutures-go/packages/lowering/interp"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// await runs an async lambda returning Task<elem> with body to completion
// on loop
func await(t *testing.T, loop *runtime.EventLoop, elem *types.Type, body ir.Node, cfg *config.LoweringConfig) (any, error) {
	t.Helper()
	l, err := async.NewAsyncLambda(types.FuncOf(runtime.TaskOf(elem)), body)
	if err != nil {
		t.Fatalf("NewAsyncLambda: %v", err)
	}
	lowered, err := async.Lower(l, cfg)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	v, err := interp.Eval(ir.NewInvoke(lowered))
	if err != nil {
		t.Fatalf("starting the lambda failed: %v", err)
	}
	task, ok := v.(*runtime.Task)
	if !ok {
		t.Fatalf("expected a task, got %T", v)
	}
	loop.Run()
	if !task.IsCompleted() {
		t.Fatalf("task did not complete:\n%s", ir.Print(lowered))
	}
	return task.Result()
}

func TestLower(t *testing.T) {
	tests := []struct {
		name string
		elem *types.Type
		body func(t *testing.T, loop *runtime.EventLoop) ir.Node
		want any
	}{
		{"no awaits", types.Int, func(t *testing.T, loop *runtime.EventLoop) ir.Node {
			return ir.Const(42)
		}, 42},
		{"await in a binary operand", types.Int, func(t *testing.T, loop *runtime.EventLoop) ir.Node {
			return ir.Add(ir.Const(1), yield(t, loop, ir.Const(2)))
		}, 3},
		{"await in a conditional branch", types.Int, func(t *testing.T, loop *runtime.EventLoop) ir.Node {
			return ir.Condition(ir.Const(true), yield(t, loop, ir.Const(4)), ir.Const(5))
		}, 4},
		{"awaits in a for loop", types.Int, func(t *testing.T, loop *runtime.EventLoop) ir.Node {
			sum := ir.NewVariable(types.Int, "sum")
			i := ir.NewVariable(types.Int, "i")
			add := mustNode(t)(ext.NewAssignBinary(ir.OpAdd, sum, yield(t, loop, i), nil))
			inc := mustNode(t)(ext.NewAssignUnary(ext.PostIncrement, i))
			forLoop := mustNode(t)(ext.NewFor([]*ir.Variable{i}, []ir.Node{ir.NewAssign(i, ir.Const(0))},
				ir.LessThan(i, ir.Const(5)), []ir.Node{inc}, add, nil, nil))
			return ir.NewBlock([]*ir.Variable{sum}, ir.NewAssign(sum, ir.Const(0)), forLoop, sum)
		}, 10},
		{"await in a catch block", types.Int, func(t *testing.T, loop *runtime.EventLoop) ir.Node {
			r := ir.NewVariable(types.Int, "r")
			try := ir.NewTry(types.Void,
				ir.VoidBlock(ir.NewAssign(r, yield(t, loop, ir.Const(1))), ir.Throw(boom())),
				nil, nil,
				ir.NewCatch(runtime.ExceptionType, nil, ir.VoidBlock(ir.NewAssign(r, ir.Add(r, yield(t, loop, ir.Const(6))))), nil),
			)
			return ir.NewBlock([]*ir.Variable{r}, try, r)
		}, 7},
		{"await in a finally block", types.Int, func(t *testing.T, loop *runtime.EventLoop) ir.Node {
			r := ir.NewVariable(types.Int, "r")
			try := ir.TryFinally(
				ir.VoidBlock(ir.NewAssign(r, ir.Const(1))),
				ir.VoidBlock(ir.NewAssign(r, ir.Add(r, yield(t, loop, ir.Const(10))))),
			)
			return ir.NewBlock([]*ir.Variable{r}, try, r)
		}, 11},
		{"loop exits in a try with an awaiting finally", types.Int, func(t *testing.T, loop *runtime.EventLoop) ir.Node {
			n := ir.NewVariable(types.Int, "n")
			brk := ir.NewLabelTarget(types.Void, "break")
			cont := ir.NewLabelTarget(types.Void, "continue")
			body := ir.VoidBlock(
				ir.NewAssign(n, ir.Add(n, ir.Const(1))),
				ir.IfThen(ir.LessThan(n, ir.Const(3)), ir.Continue(cont)),
				ir.Break(brk),
			)
			try := ir.TryFinally(
				ir.NewLoop(body, brk, cont),
				ir.VoidBlock(ir.NewAssign(n, ir.Add(n, yield(t, loop, ir.Const(10))))),
			)
			return ir.NewBlock([]*ir.Variable{n}, ir.NewAssign(n, ir.Const(0)), try, n)
		}, 13},
		{"await in a try body", types.Int, func(t *testing.T, loop *runtime.EventLoop) ir.Node {
			r := ir.NewVariable(types.Int, "r")
			try := ir.TryCatch(
				ir.VoidBlock(ir.NewAssign(r, yield(t, loop, ir.Const(1))), ir.Throw(boom()), ir.NewAssign(r, ir.Const(100))),
				ir.NewCatch(runtime.ExceptionType, nil, ir.VoidBlock(ir.NewAssign(r, ir.Add(r, ir.Const(1)))), nil),
			)
			return ir.NewBlock([]*ir.Variable{r}, try, r)
		}, 2},
		{"await in a switch value", types.String, func(t *testing.T, loop *runtime.EventLoop) ir.Node {
			var arms []*ext.SwitchExpressionArm
			for i, name := range []string{"one", "two"} {
				p, err := ext.NewConstantPattern(types.Int, ir.Const(i+1))
				if err != nil {
					t.Fatal(err)
				}
				arms = append(arms, &ext.SwitchExpressionArm{Pattern: p, Value: ir.Const(name)})
			}
			return mustNode(t)(ext.NewSwitchExpression(types.String, yield(t, loop, ir.Const(2)), arms...))
		}, "two"},
		{"await in an interpolation hole", types.String, func(t *testing.T, loop *runtime.EventLoop) ir.Node {
			return mustNode(t)(ext.NewInterpolatedString(ext.Hole(yield(t, loop, ir.Const(3)), 0, ""), ext.Literal("!")))
		}, "3!"},
		{"await of a nested async lambda", types.Int, func(t *testing.T, loop *runtime.EventLoop) ir.Node {
			inner, err := async.NewAsyncLambda(types.FuncOf(runtime.TaskOf(types.Int)), ir.Add(yield(t, loop, ir.Const(4)), ir.Const(1)))
			if err != nil {
				t.Fatal(err)
			}
			aw, err := async.NewAwait(ir.NewInvoke(inner), nil)
			if err != nil {
				t.Fatal(err)
			}
			return aw
		}, 5},
		{"await foreach", types.Int, func(t *testing.T, loop *runtime.EventLoop) ir.Node {
			seq := runtime.NewAsyncSequence(types.Int, loop, 1, 2, 3)
			sum := ir.NewVariable(types.Int, "sum")
			x := ir.NewVariable(types.Int, "x")
			add := mustNode(t)(ext.NewAssignBinary(ir.OpAdd, sum, x, nil))
			each := mustNode(t)(ext.NewAwaitForEach(x, ir.NewConstant(seq, runtime.AsyncSequenceOf(types.Int)), add, nil, nil, nil))
			return ir.NewBlock([]*ir.Variable{sum}, ir.NewAssign(sum, ir.Const(0)), each, sum)
		}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop := runtime.NewEventLoop()
			got, err := await(t, loop, tt.elem, tt.body(t, loop), nil)
			if err != nil {
				t.Fatalf("task faulted: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func mustNode(t *testing.T) func(n ir.Node, err error) ir.Node {
	return func(n ir.Node, err error) ir.Node {
		t.Helper()
		if err != nil {
			t.Fatalf("factory failed: %v", err)
		}
		return n
	}
}

func boom() ir.Node {
	return ir.NewConstant(runtime.NewException(runtime.InvalidOperationExceptionType, "boom"), runtime.InvalidOperationExceptionType)
}

func TestEvaluationOrder(t *testing.T) {
	loop := runtime.NewEventLoop()
	var log []string
	calls := types.NewClass("Calls", nil)
	f := calls.DefineStaticMethod("F", types.Int, nil, func(any, []any) (any, error) {
		log = append(log, "f")
		return 1, nil
	})
	g := calls.DefineStaticMethod("G", runtime.TaskOf(types.Int), nil, func(any, []any) (any, error) {
		log = append(log, "g")
		return loop.Yield(types.Int, 2), nil
	})
	aw, err := async.NewAwait(ir.NewCall(nil, g), nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := await(t, loop, types.Int, ir.Add(ir.NewCall(nil, f), aw), nil)
	if err != nil {
		t.Fatalf("task faulted: %v", err)
	}
	if diff := cmp.Diff(any(3), got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"f", "g"}, log); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestSpillVariables(t *testing.T) {
	// x + await { x = 100; loop.Yield(1) } reads x before the await operand
	// assigns it
	for _, spill := range []bool{true, false} {
		cfg := config.NewLoweringConfig(config.WithSpillVariables(spill))
		loop := runtime.NewEventLoop()
		x := ir.NewVariable(types.Int, "x")
		m := runtime.YieldMethod.Instantiate([]*types.Type{types.Int})
		operand := ir.Block(ir.NewAssign(x, ir.Const(100)), ir.NewCall(ir.NewConstant(loop, runtime.EventLoopType), m, ir.Const(1)))
		aw, err := async.NewAwait(operand, nil)
		if err != nil {
			t.Fatal(err)
		}
		body := ir.NewBlock([]*ir.Variable{x}, ir.NewAssign(x, ir.Const(1)), ir.Add(x, aw))
		got, err := await(t, loop, types.Int, body, cfg)
		if err != nil {
			t.Fatalf("task faulted: %v", err)
		}
		if diff := cmp.Diff(any(2), got); diff != "" {
			t.Errorf("spill=%v: result mismatch (-want +got):\n%s", spill, diff)
		}
	}
}

func TestFaultedTask(t *testing.T) {
	loop := runtime.NewEventLoop()
	body := ir.Block(yield(t, loop, ir.Const(1)), ir.Throw(boom()), ir.Const(0))
	_, err := await(t, loop, types.Int, body, nil)
	var ex *runtime.Exception
	if !errors.As(err, &ex) {
		t.Fatalf("expected the task to fault with an exception, got %v", err)
	}
	if diff := cmp.Diff("boom", ex.Message); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}

func TestAsyncVoid(t *testing.T) {
	loop := runtime.NewEventLoop()
	var log []any
	recorder := types.NewClass("Recorder", nil)
	record := recorder.DefineStaticMethod("Record", types.Void, []*types.Parameter{types.Param("v", types.Int)}, func(_ any, args []any) (any, error) {
		log = append(log, args[0])
		return nil, nil
	})
	body := ir.VoidBlock(ir.NewCall(nil, record, yield(t, loop, ir.Const(8))))
	l, err := async.NewAsyncLambda(types.ActionOf(), body)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := interp.Eval(ir.NewInvoke(l)); err != nil {
		t.Fatalf("starting the lambda failed: %v", err)
	}
	if len(log) != 0 {
		t.Fatalf("recorded before the loop ran: %v", log)
	}
	loop.Run()
	if diff := cmp.Diff([]any{8}, log); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestPhases(t *testing.T) {
	want := []string{"normalize", "ref-locals", "catch-finally", "aliases", "spill", "awaits",
		"result", "typed-labels", "percolate", "driver", "optimize"}
	if diff := cmp.Diff(want, async.Phases()); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}

	t.Run("should leave only awaits after normalize", func(t *testing.T) {
		loop := runtime.NewEventLoop()
		i := ir.NewVariable(types.Int, "i")
		w := mustNode(t)(ext.NewWhile(ir.LessThan(i, ir.Const(3)),
			ir.NewAssign(i, ir.Add(i, yield(t, loop, ir.Const(1)))), nil, nil))
		l, err := async.NewAsyncLambda(types.FuncOf(runtime.TaskOf(types.Int)), ir.NewBlock([]*ir.Variable{i}, w, i))
		if err != nil {
			t.Fatal(err)
		}
		job, err := async.Run(l, nil, 1)
		if err != nil {
			t.Fatal(err)
		}
		others := ir.Find(job.Body, func(n ir.Node) bool { return ir.IsExtension(n) && !async.IsAwait(n) })
		if len(others) != 0 {
			t.Errorf("extension nodes left after normalize:\n%s", ir.Print(job.Body))
		}
		if job.Output != nil {
			t.Errorf("driver ran")
		}
	})

	t.Run("should produce the same result without block optimization", func(t *testing.T) {
		for _, optimize := range []bool{true, false} {
			loop := runtime.NewEventLoop()
			cfg := config.NewLoweringConfig(config.WithOptimizeBlocks(optimize))
			got, err := await(t, loop, types.Int, ir.Add(yield(t, loop, ir.Const(20)), yield(t, loop, ir.Const(22))), cfg)
			if err != nil {
				t.Fatalf("task faulted: %v", err)
			}
			if diff := cmp.Diff(any(42), got); diff != "" {
				t.Errorf("optimize=%v: mismatch (-want +got):\n%s", optimize, diff)
			}
		}
	})
}

func TestReduce(t *testing.T) {
	async.Configure(config.NewLoweringConfig(config.WithOptimizeBlocks(false)))
	loop := runtime.NewEventLoop()
	l, err := async.NewAsyncLambda(types.FuncOf(runtime.TaskOf(types.Int)), ir.Add(yield(t, loop, ir.Const(1)), ir.Const(1)))
	async.Configure(config.NewLoweringConfig())
	if err != nil {
		t.Fatal(err)
	}
	if l.Config.OptimizeBlocks {
		t.Errorf("lambda took the configuration set after its creation")
	}
	if u := l.Update(l.Params, ir.Add(yield(t, loop, ir.Const(1)), ir.Const(1))); u.Config != l.Config {
		t.Errorf("update dropped the configuration")
	}
	reduced, ok := ir.ReduceAll(l).(*ir.LambdaExpr)
	if !ok {
		t.Fatalf("expected a lambda, got %T", ir.ReduceAll(l))
	}
	if ir.Contains(reduced, ir.IsExtension) {
		t.Fatalf("extension nodes left after reduction:\n%s", ir.Print(reduced))
	}
	v, err := interp.Eval(ir.NewInvoke(reduced))
	if err != nil {
		t.Fatal(err)
	}
	loop.Run()
	got, err := v.(*runtime.Task).Result()
	if err != nil {
		t.Fatalf("task faulted: %v", err)
	}
	if diff := cmp.Diff(any(2), got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
