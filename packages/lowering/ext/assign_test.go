package ext_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"exprfutures-go/packages/lowering/ext"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

func TestAssignBinary(t *testing.T) {
	t.Run("should evaluate the receiver once", func(t *testing.T) {
		arr := runtime.NewArray(types.Int, 2)
		arr.Items[1] = 41
		calls := 0
		src := types.NewClass("Source", nil)
		get := src.DefineStaticMethod("Get", types.ArrayOf(types.Int), nil, func(any, []any) (any, error) {
			calls++
			return arr, nil
		})
		access := must[*ext.ArrayAccess](t)(ext.NewArrayAccess(ir.NewCall(nil, get), ir.Const(1)))
		add := must[*ext.AssignBinary](t)(ext.NewAssignBinary(ir.OpAdd, access, ir.Const(1), nil))

		got := eval(t, add)
		if diff := cmp.Diff(any(42), got); diff != "" {
			t.Errorf("value mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]any{0, 42}, arr.Items); diff != "" {
			t.Errorf("array mismatch (-want +got):\n%s", diff)
		}
		if calls != 1 {
			t.Errorf("receiver evaluated %d times, want 1", calls)
		}
	})

	t.Run("should assign through a list indexer", func(t *testing.T) {
		list := runtime.NewList(types.Int, 5, 6)
		lt := runtime.ListOf(types.Int)
		item, err := types.Binder.LookupIndexer(lt, types.Int)
		if err != nil {
			t.Fatal(err)
		}
		target := ir.NewIndexer(ir.NewConstant(list, lt), item, ir.Const(0))
		mul := must[*ext.AssignBinary](t)(ext.NewAssignBinary(ir.OpMultiply, target, ir.Const(3), nil))
		eval(t, mul)
		if diff := cmp.Diff([]any{15, 6}, list.Items); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestAssignUnary(t *testing.T) {
	x := ir.NewVariable(types.Int, "x")
	tests := []struct {
		op        ext.UnaryAssignOp
		wantValue any
		wantX     any
	}{
		{ext.PreIncrement, 6, 6},
		{ext.PostIncrement, 5, 6},
		{ext.PreDecrement, 4, 4},
		{ext.PostDecrement, 5, 4},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			result := ir.NewVariable(types.Int, "result")
			op := must[*ext.AssignUnary](t)(ext.NewAssignUnary(tt.op, x))
			block := ir.NewBlock([]*ir.Variable{x, result},
				ir.NewAssign(x, ir.Const(5)),
				ir.NewAssign(result, op),
				ir.NewArrayInit(types.Int, result, x),
			)
			got := eval(t, block).(*runtime.Array).Items
			if diff := cmp.Diff([]any{tt.wantValue, tt.wantX}, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWith(t *testing.T) {
	point := types.NewStruct("Point")
	px := point.DefineField("X", types.Int)
	py := point.DefineField("Y", types.Int)
	ctor := point.DefineRecordConstructor(px, py)

	p := ir.NewVariable(point, "p")
	q := ir.NewVariable(point, "q")
	with := must[*ext.With](t)(ext.NewWith(p, ext.InitField(py, ir.Const(9))))
	block := ir.NewBlock([]*ir.Variable{p, q},
		ir.NewAssign(p, ir.NewObject(ctor, ir.Const(1), ir.Const(2))),
		ir.NewAssign(q, with),
		ir.NewArrayInit(types.Int, ir.NewField(p, py), ir.NewField(q, px), ir.NewField(q, py)),
	)
	got := eval(t, block).(*runtime.Array).Items
	if diff := cmp.Diff([]any{2, 1, 9}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestConditionalAccess(t *testing.T) {
	box := types.NewClass("Box", nil)
	size := box.DefineField("Size", types.Int)
	access := func(t *testing.T, recv any) any {
		return eval(t, must[*ext.ConditionalAccess](t)(ext.NewConditionalMember(ir.NewConstant(recv, box), size.Name)))
	}

	t.Run("should yield null for a null receiver", func(t *testing.T) {
		if got := access(t, nil); got != nil {
			t.Errorf("expected null, got %v", got)
		}
	})

	t.Run("should read the member of a receiver", func(t *testing.T) {
		obj := runtime.NewObject(box)
		obj.Fields["Size"] = 3
		if diff := cmp.Diff(any(3), access(t, obj)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}
