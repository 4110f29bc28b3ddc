package ext_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"exprfutures-go/packages/lowering/ext"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

func TestTupleBinary(t *testing.T) {
	pair := types.TupleOf(types.Int, types.String)
	tuple := func(t *testing.T, n int, s string) *ext.TupleLiteral {
		return must[*ext.TupleLiteral](t)(ext.NewTupleLiteral(pair, ir.Const(n), ir.Const(s)))
	}
	tests := []struct {
		name  string
		op    ir.BinaryOp
		right *ext.TupleLiteral
		want  any
	}{
		{"equal tuples", ir.OpEqual, tuple(t, 1, "a"), true},
		{"different second element", ir.OpEqual, tuple(t, 1, "b"), false},
		{"not equal", ir.OpNotEqual, tuple(t, 2, "a"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmpNode := must[*ext.TupleBinary](t)(ext.NewTupleBinary(tt.op, tuple(t, 1, "a"), tt.right))
			if diff := cmp.Diff(tt.want, eval(t, cmpNode)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("should reject tuples of different arity", func(t *testing.T) {
		single := must[*ext.TupleLiteral](t)(ext.NewTupleLiteral(types.TupleOf(types.Int), ir.Const(1)))
		if _, err := ext.NewTupleBinary(ir.OpEqual, tuple(t, 1, "a"), single); err == nil {
			t.Errorf("expected an error")
		}
	})
}

func TestInterpolatedString(t *testing.T) {
	tests := []struct {
		name  string
		parts []*ext.InterpolatedPart
		want  any
	}{
		{"literal only", []*ext.InterpolatedPart{ext.Literal("{plain}")}, "{plain}"},
		{"holes with alignment and format", []*ext.InterpolatedPart{
			ext.Hole(ir.Add(ir.Const(1), ir.Const(2)), 4, "D2"),
			ext.Literal("|{"),
			ext.Hole(ir.Const("x"), -2, ""),
			ext.Literal("}"),
		}, "  03|{x }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := must[*ext.InterpolatedString](t)(ext.NewInterpolatedString(tt.parts...))
			if diff := cmp.Diff(tt.want, eval(t, s)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("should reject alignment on a literal", func(t *testing.T) {
		bad := &ext.InterpolatedPart{Literal: "x", Alignment: 3}
		if _, err := ext.NewInterpolatedString(bad); err == nil {
			t.Errorf("expected an error")
		}
	})
}

func TestEventAssign(t *testing.T) {
	var added, removed []any
	button := types.NewClass("Button", nil)
	clicked := button.DefineEvent("Clicked", types.ActionOf(),
		func(_ any, args []any) (any, error) {
			added = append(added, args[0])
			return nil, nil
		},
		func(_ any, args []any) (any, error) {
			removed = append(removed, args[0])
			return nil, nil
		})
	obj := ir.NewConstant(runtime.NewObject(button), button)
	handler := ir.NewLambda(types.ActionOf(), ir.Empty())

	eval(t, must[*ext.EventAssign](t)(ext.NewEventAssign(obj, clicked, handler, true)))
	eval(t, must[*ext.EventAssign](t)(ext.NewEventAssign(obj, clicked, handler, false)))
	if len(added) != 1 || len(removed) != 1 {
		t.Errorf("got %d adds and %d removes, want one of each", len(added), len(removed))
	}

	if _, err := ext.NewEventAssign(nil, clicked, handler, true); err == nil {
		t.Errorf("expected an error for an instance event without object")
	}
}
