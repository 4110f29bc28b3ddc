package ext_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"exprfutures-go/packages/lowering/ext"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

func TestFor(t *testing.T) {
	t.Run("should run ten iterations", func(t *testing.T) {
		count := ir.NewVariable(types.Int, "count")
		i := ir.NewVariable(types.Int, "i")
		inc := must[*ext.AssignUnary](t)(ext.NewAssignUnary(ext.PostIncrement, i))
		body := must[*ext.AssignUnary](t)(ext.NewAssignUnary(ext.PreIncrement, count))
		loop := must[*ext.For](t)(ext.NewFor([]*ir.Variable{i}, []ir.Node{ir.NewAssign(i, ir.Const(0))},
			ir.LessThan(i, ir.Const(10)), []ir.Node{inc}, body, nil, nil))
		block := ir.NewBlock([]*ir.Variable{count}, ir.NewAssign(count, ir.Const(0)), loop, count)
		if diff := cmp.Diff(any(10), eval(t, block)); diff != "" {
			t.Errorf("iterations mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should run the iterators after continue", func(t *testing.T) {
		sum := ir.NewVariable(types.Int, "sum")
		i := ir.NewVariable(types.Int, "i")
		cont := ir.NewLabelTarget(types.Void, "continue")
		inc := must[*ext.AssignUnary](t)(ext.NewAssignUnary(ext.PostIncrement, i))
		add := must[*ext.AssignBinary](t)(ext.NewAssignBinary(ir.OpAdd, sum, i, nil))
		body := ir.VoidBlock(
			ir.IfThen(ir.Equal(ir.NewBinary(ir.OpModulo, i, ir.Const(2)), ir.Const(1)), ir.Continue(cont)),
			add,
		)
		loop := must[*ext.For](t)(ext.NewFor([]*ir.Variable{i}, []ir.Node{ir.NewAssign(i, ir.Const(0))},
			ir.LessThan(i, ir.Const(10)), []ir.Node{inc}, body, nil, cont))
		block := ir.NewBlock([]*ir.Variable{sum}, ir.NewAssign(sum, ir.Const(0)), loop, sum)
		if diff := cmp.Diff(any(0+2+4+6+8), eval(t, block)); diff != "" {
			t.Errorf("sum mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestWhile(t *testing.T) {
	t.Run("should stop at break", func(t *testing.T) {
		n := ir.NewVariable(types.Int, "n")
		brk := ir.NewLabelTarget(types.Void, "break")
		body := ir.VoidBlock(
			ir.IfThen(ir.Equal(n, ir.Const(4)), ir.Break(brk)),
			must[*ext.AssignUnary](t)(ext.NewAssignUnary(ext.PreIncrement, n)),
		)
		loop := must[*ext.While](t)(ext.NewWhile(ir.Const(true), body, brk, nil))
		block := ir.NewBlock([]*ir.Variable{n}, ir.NewAssign(n, ir.Const(0)), loop, n)
		if diff := cmp.Diff(any(4), eval(t, block)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should run a do-while body once", func(t *testing.T) {
		n := ir.NewVariable(types.Int, "n")
		body := must[*ext.AssignUnary](t)(ext.NewAssignUnary(ext.PreIncrement, n))
		loop := must[*ext.DoWhile](t)(ext.NewDoWhile(body, ir.Const(false), nil, nil))
		block := ir.NewBlock([]*ir.Variable{n}, ir.NewAssign(n, ir.Const(0)), loop, n)
		if diff := cmp.Diff(any(1), eval(t, block)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestForEach(t *testing.T) {
	sumOf := func(t *testing.T, collection ir.Node) any {
		sum := ir.NewVariable(types.Int, "sum")
		x := ir.NewVariable(types.Int, "x")
		add := must[*ext.AssignBinary](t)(ext.NewAssignBinary(ir.OpAdd, sum, x, nil))
		loop := must[*ext.ForEach](t)(ext.NewForEach(x, collection, add, nil, nil, nil))
		return eval(t, ir.NewBlock([]*ir.Variable{sum}, ir.NewAssign(sum, ir.Const(0)), loop, sum))
	}

	t.Run("should enumerate an array by index", func(t *testing.T) {
		arr := ir.NewArrayInit(types.Int, ir.Const(1), ir.Const(2), ir.Const(3))
		if diff := cmp.Diff(any(6), sumOf(t, arr)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should enumerate a list through its enumerator", func(t *testing.T) {
		list := ir.NewConstant(runtime.NewList(types.Int, 4, 5, 6), runtime.ListOf(types.Int))
		if diff := cmp.Diff(any(15), sumOf(t, list)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should reject a collection without enumerator", func(t *testing.T) {
		x := ir.NewVariable(types.Int, "x")
		if _, err := ext.NewForEach(x, ir.Const(1), ir.Empty(), nil, nil, nil); err == nil {
			t.Errorf("expected an error")
		}
	})
}
