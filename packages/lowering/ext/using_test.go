package ext_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"exprfutures-go/packages/lowering/config"
	"exprfutures-go/packages/lowering/ext"
	"exprfutures-go/packages/lowering/interp"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// disposable defines a type implementing IDisposable whose Dispose counts
// its calls
func disposable(t *types.Type, disposed *int) *types.Constructor {
	t.Interfaces = append(t.Interfaces, runtime.IDisposableType)
	t.DefineMethod("Dispose", types.Void, nil, func(any, []any) (any, error) {
		*disposed++
		return nil, nil
	})
	return t.DefineRecordConstructor()
}

func hasNullCheck(n ir.Node) bool {
	return ir.Contains(n, func(c ir.Node) bool {
		b, ok := c.(*ir.BinaryExpr)
		if !ok || b.Op != ir.OpNotEqual {
			return false
		}
		k, ok := b.Right.(*ir.ConstantExpr)
		return ok && k.Value == nil
	})
}

func TestUsing(t *testing.T) {
	t.Run("should dispose a value type without null check", func(t *testing.T) {
		disposed := 0
		handle := types.NewStruct("Handle")
		ctor := disposable(handle, &disposed)
		h := ir.NewVariable(handle, "h")
		u := must[*ext.Using](t)(ext.NewUsing(h, ir.NewObject(ctor), ir.Const(7)))

		if reduced := ir.ReduceExtensions(u, nil); hasNullCheck(reduced) {
			t.Errorf("value type resource is checked for null:\n%s", ir.Print(reduced))
		}
		if diff := cmp.Diff(any(7), eval(t, u)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
		if disposed != 1 {
			t.Errorf("disposed %d times, want 1", disposed)
		}
	})

	t.Run("should skip disposal of a null reference", func(t *testing.T) {
		disposed := 0
		file := types.NewClass("File", nil)
		disposable(file, &disposed)
		u := must[*ext.Using](t)(ext.NewUsing(nil, ir.NewConstant(nil, file), ir.Empty()))

		if reduced := ir.ReduceExtensions(u, nil); !hasNullCheck(reduced) {
			t.Errorf("reference resource is not checked for null:\n%s", ir.Print(reduced))
		}
		eval(t, u)
		if disposed != 0 {
			t.Errorf("disposed %d times, want 0", disposed)
		}
	})

	t.Run("should dispose when the body throws", func(t *testing.T) {
		disposed := 0
		file := types.NewClass("Stream", nil)
		ctor := disposable(file, &disposed)
		boom := ir.NewConstant(runtime.NewException(runtime.InvalidOperationExceptionType, "boom"), runtime.InvalidOperationExceptionType)
		u := must[*ext.Using](t)(ext.NewUsing(nil, ir.NewObject(ctor), ir.Throw(boom)))
		if _, err := interp.Eval(u); err == nil {
			t.Fatalf("expected the exception to escape")
		}
		if disposed != 1 {
			t.Errorf("disposed %d times, want 1", disposed)
		}
	})

	t.Run("should keep the dispose setting current at creation", func(t *testing.T) {
		ext.Configure(config.NewLoweringConfig(config.WithPreferSealedDispose(false)))
		disposed := 0
		sealed := types.NewClass("Sealed", nil)
		sealed.Sealed = true
		ctor := disposable(sealed, &disposed)
		u := must[*ext.Using](t)(ext.NewUsing(nil, ir.NewObject(ctor), ir.Empty()))
		ext.Configure(config.NewLoweringConfig())

		if u.PreferSealedDispose {
			t.Fatalf("node took the setting configured after its creation")
		}
		reduced := ir.ReduceExtensions(u, nil)
		viaInterface := ir.Contains(reduced, func(n ir.Node) bool {
			c, ok := n.(*ir.CallExpr)
			return ok && c.Method == runtime.DisposeMethod
		})
		if !viaInterface {
			t.Errorf("expected IDisposable.Dispose:\n%s", ir.Print(reduced))
		}
	})
}

func TestLock(t *testing.T) {
	gate := types.NewClass("Gate", nil)
	obj := runtime.NewObject(gate)
	inspector := types.NewClass("Inspector", nil)
	held := inspector.DefineStaticMethod("Held", types.Int, nil, func(any, []any) (any, error) {
		return runtime.LockCount(obj), nil
	})
	l := must[*ext.Lock](t)(ext.NewLock(ir.NewConstant(obj, gate), ir.NewCall(nil, held)))

	if diff := cmp.Diff(any(1), eval(t, l)); diff != "" {
		t.Errorf("lock count inside the body mismatch (-want +got):\n%s", diff)
	}
	if n := runtime.LockCount(obj); n != 0 {
		t.Errorf("lock still held %d times", n)
	}
}
