package interp_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"exprfutures-go/packages/lowering/interp"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

func eval(t *testing.T, n ir.Node, vars map[*ir.Variable]any) any {
	t.Helper()
	v, err := interp.New().EvalWith(n, vars)
	if err != nil {
		t.Fatalf("evaluation failed: %v\n%s", err, ir.Print(n))
	}
	return v
}

func TestLoop(t *testing.T) {
	i := ir.NewVariable(types.Int, "i")
	brk := ir.NewLabelTarget(types.Void, "break")
	loop := ir.NewLoop(ir.IfThenElse(ir.LessThan(i, ir.Const(3)), ir.NewAssign(i, ir.Add(i, ir.Const(1))), ir.Break(brk)), brk, nil)
	block := ir.NewBlock([]*ir.Variable{i}, ir.NewAssign(i, ir.Const(0)), loop, i)
	if diff := cmp.Diff(any(3), eval(t, block, nil)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSwitch(t *testing.T) {
	x := ir.NewVariable(types.Int, "x")
	sw := ir.NewSwitch(types.String, x, ir.Const("other"),
		ir.NewSwitchCase(ir.Const("one"), ir.Const(1)),
		ir.NewSwitchCase(ir.Const("two or three"), ir.Const(2), ir.Const(3)),
	)
	var got []any
	for _, v := range []int{1, 3, 4} {
		got = append(got, eval(t, sw, map[*ir.Variable]any{x: v}))
	}
	if diff := cmp.Diff([]any{"one", "two or three", "other"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestTry(t *testing.T) {
	x := ir.NewVariable(types.Int, "x")
	divide := ir.NewBinary(ir.OpDivide, ir.Const(6), x)

	t.Run("should catch a matching exception", func(t *testing.T) {
		try := ir.NewTry(types.Int, divide, nil, nil,
			ir.NewCatch(runtime.DivideByZeroExceptionType, nil, ir.Const(-1), nil))
		got := []any{eval(t, try, map[*ir.Variable]any{x: 2}), eval(t, try, map[*ir.Variable]any{x: 0})}
		if diff := cmp.Diff([]any{3, -1}, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should skip a handler whose filter fails", func(t *testing.T) {
		try := ir.NewTry(types.Int, divide, nil, nil,
			ir.NewCatch(runtime.ExceptionType, nil, ir.Const(-1), ir.Const(false)))
		_, err := interp.New().EvalWith(try, map[*ir.Variable]any{x: 0})
		var ex *runtime.Exception
		if !errors.As(err, &ex) || ex.Type != runtime.DivideByZeroExceptionType {
			t.Errorf("got %v, want a DivideByZeroException", err)
		}
	})

	t.Run("should rethrow the caught exception", func(t *testing.T) {
		e := ir.NewVariable(runtime.InvalidOperationExceptionType, "e")
		thrown := runtime.NewException(runtime.InvalidOperationExceptionType, "boom")
		try := ir.TryCatch(ir.Throw(ir.NewConstant(thrown, runtime.InvalidOperationExceptionType)),
			ir.NewCatch(runtime.InvalidOperationExceptionType, e, ir.Rethrow(), nil))
		_, err := interp.Eval(try)
		var ex *runtime.Exception
		if !errors.As(err, &ex) || ex != thrown {
			t.Errorf("got %v, want %v", err, thrown)
		}
	})

	t.Run("should run finally blocks", func(t *testing.T) {
		r := ir.NewVariable(types.Int, "r")
		try := ir.TryFinally(ir.VoidBlock(ir.NewAssign(r, ir.Const(1))), ir.VoidBlock(ir.NewAssign(r, ir.Add(r, ir.Const(10)))))
		block := ir.NewBlock([]*ir.Variable{r}, try, r)
		if diff := cmp.Diff(any(11), eval(t, block, nil)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestLambda(t *testing.T) {
	captured := ir.NewVariable(types.Int, "captured")
	p := ir.NewVariable(types.Int, "p")
	addCaptured := ir.NewLambda(types.FuncOf(types.Int, types.Int), ir.Add(p, captured), p)
	f := ir.NewVariable(addCaptured.Type(), "f")
	block := ir.NewBlock([]*ir.Variable{captured, f},
		ir.NewAssign(f, addCaptured),
		ir.NewAssign(captured, ir.Const(10)),
		ir.NewInvoke(f, ir.Const(5)),
	)
	if diff := cmp.Diff(any(15), eval(t, block, nil)); diff != "" {
		t.Errorf("closure mismatch (-want +got):\n%s", diff)
	}
}
