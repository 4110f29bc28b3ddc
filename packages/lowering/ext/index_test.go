package ext_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"exprfutures-go/packages/lowering/ext"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

func readsLength(n ir.Node) bool {
	return ir.Contains(n, func(c ir.Node) bool {
		m, ok := c.(*ir.MemberExpr)
		return ok && m.Property == types.StringLength
	})
}

func TestIndexerAccess(t *testing.T) {
	t.Run("should index from the end", func(t *testing.T) {
		idx := must[*ext.FromEndIndex](t)(ext.NewFromEndIndex(ir.Const(1)))
		access := must[*ext.IndexerAccess](t)(ext.NewIndexerAccess(ir.Const("hello"), idx))
		if diff := cmp.Diff("o", eval(t, access)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should not read the length for a constant start index", func(t *testing.T) {
		idx := ir.NewObject(runtime.IndexCtor, ir.Const(1), ir.Const(false))
		access := must[*ext.IndexerAccess](t)(ext.NewIndexerAccess(ir.Const("hello"), idx))
		reduced := ir.ReduceExtensions(access, nil)
		if readsLength(reduced) {
			t.Errorf("reduced tree reads Length:\n%s", ir.Print(reduced))
		}
		if diff := cmp.Diff("e", eval(t, access)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should fold the size of a constant range", func(t *testing.T) {
		r := must[*ext.Range](t)(ext.NewRange(ir.Const(1), ir.Const(3)))
		access := must[*ext.IndexerAccess](t)(ext.NewIndexerAccess(ir.Const("hello"), r))
		reduced := ir.ReduceExtensions(access, nil)
		if readsLength(reduced) {
			t.Errorf("reduced tree reads Length:\n%s", ir.Print(reduced))
		}
		calls := ir.Find(reduced, func(n ir.Node) bool {
			c, ok := n.(*ir.CallExpr)
			return ok && c.Method == types.StringSubstring
		})
		if len(calls) != 1 {
			t.Fatalf("expected a single Substring call, got %d", len(calls))
		}
		size, ok := calls[0].(*ir.CallExpr).Args[1].(*ir.ConstantExpr)
		if !ok {
			t.Fatalf("slice size is not a constant:\n%s", ir.Print(reduced))
		}
		if diff := cmp.Diff(any(2), size.Value); diff != "" {
			t.Errorf("size mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff("el", eval(t, access)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should slice between from-end bounds", func(t *testing.T) {
		start := must[*ext.FromEndIndex](t)(ext.NewFromEndIndex(ir.Const(4)))
		end := must[*ext.FromEndIndex](t)(ext.NewFromEndIndex(ir.Const(1)))
		r := must[*ext.Range](t)(ext.NewRange(start, end))
		access := must[*ext.IndexerAccess](t)(ext.NewIndexerAccess(ir.Const("hello"), r))
		if diff := cmp.Diff("ell", eval(t, access)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should reject an int argument", func(t *testing.T) {
		if _, err := ext.NewIndexerAccess(ir.Const("hello"), ir.Const(1)); err == nil {
			t.Errorf("expected an error")
		}
	})
}

func TestArrayAccess(t *testing.T) {
	arr := ir.NewArrayInit(types.Int, ir.Const(10), ir.Const(20), ir.Const(30))

	t.Run("should read from the end", func(t *testing.T) {
		idx := must[*ext.FromEndIndex](t)(ext.NewFromEndIndex(ir.Const(1)))
		access := must[*ext.ArrayAccess](t)(ext.NewArrayAccess(arr, idx))
		if diff := cmp.Diff(any(30), eval(t, access)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should copy a sub-array", func(t *testing.T) {
		r := must[*ext.Range](t)(ext.NewRange(ir.Const(1), nil))
		access := must[*ext.ArrayAccess](t)(ext.NewArrayAccess(arr, r))
		got, ok := eval(t, access).(*runtime.Array)
		if !ok {
			t.Fatalf("expected an array")
		}
		if diff := cmp.Diff([]any{20, 30}, got.Items); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}
