package ext_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"exprfutures-go/packages/lowering/ext"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

func TestNamedArguments(t *testing.T) {
	var log []string
	calc := types.NewClass("Calc", nil)
	a, b := types.Param("a", types.Int), types.Param("b", types.Int)
	sub := calc.DefineStaticMethod("Sub", types.Int, []*types.Parameter{a, b}, func(_ any, args []any) (any, error) {
		return args[0].(int) - args[1].(int), nil
	})
	trace := calc.DefineStaticMethod("Trace", types.Int, []*types.Parameter{types.Param("name", types.String), types.Param("v", types.Int)},
		func(_ any, args []any) (any, error) {
			log = append(log, args[0].(string))
			return args[1], nil
		})
	traced := func(name string, v int) ir.Node {
		return ir.NewCall(nil, trace, ir.Const(name), ir.Const(v))
	}

	t.Run("should evaluate arguments in written order", func(t *testing.T) {
		log = nil
		call := must[*ext.Call](t)(ext.NewCall(nil, sub, ext.Bind(b, traced("b", 2)), ext.Bind(a, traced("a", 10))))
		if diff := cmp.Diff(any(8), eval(t, call)); diff != "" {
			t.Errorf("value mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"b", "a"}, log); diff != "" {
			t.Errorf("evaluation order mismatch (-want +got):\n%s", diff)
		}
	})

	errorCases := []struct {
		name string
		args []*ext.ParameterAssignment
		want error
	}{
		{"missing argument", []*ext.ParameterAssignment{ext.Bind(a, ir.Const(1))}, ext.ErrArgumentCount},
		{"duplicate parameter", []*ext.ParameterAssignment{ext.Bind(a, ir.Const(1)), ext.Bind(a, ir.Const(2))}, ext.ErrDuplicateParameter},
		{"foreign parameter", []*ext.ParameterAssignment{ext.Bind(a, ir.Const(1)), ext.Bind(types.Param("b", types.Int), ir.Const(2))}, ext.ErrInvalidArgument},
		{"wrong argument type", ext.Positional(sub.Params, ir.Const(1), ir.Const("2")), ext.ErrTypeMismatch},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ext.NewCall(nil, sub, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want an error wrapping %v", err, tt.want)
			}
		})
	}
}

func TestByRefArguments(t *testing.T) {
	counter := types.NewClass("Counter", nil)
	x := types.RefParam("x", types.Int)
	inc := counter.DefineStaticMethod("Inc", types.Void, []*types.Parameter{x}, func(_ any, args []any) (any, error) {
		ref := args[0].(runtime.Ref)
		ref.Set(ref.Get().(int) + 1)
		return nil, nil
	})

	t.Run("should write through a variable", func(t *testing.T) {
		v := ir.NewVariable(types.Int, "v")
		call := must[*ext.Call](t)(ext.NewCall(nil, inc, ext.Bind(x, v)))
		block := ir.NewBlock([]*ir.Variable{v}, ir.NewAssign(v, ir.Const(41)), call, v)
		if diff := cmp.Diff(any(42), eval(t, block)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should reject an element selected by a from-end index", func(t *testing.T) {
		arr := ir.NewConstant(runtime.NewArray(types.Int, 3), types.ArrayOf(types.Int))
		hat := must[*ext.FromEndIndex](t)(ext.NewFromEndIndex(ir.Const(1)))
		elem := must[*ext.ArrayAccess](t)(ext.NewArrayAccess(arr, hat))
		if _, err := ext.NewCall(nil, inc, ext.Bind(x, elem)); !errors.Is(err, ext.ErrUnsupported) {
			t.Errorf("got %v, want an error wrapping %v", err, ext.ErrUnsupported)
		}
	})

	t.Run("should accept an element selected by an int", func(t *testing.T) {
		arr := runtime.NewArray(types.Int, 3)
		elem := must[*ext.ArrayAccess](t)(ext.NewArrayAccess(ir.NewConstant(arr, types.ArrayOf(types.Int)), ir.Const(2)))
		eval(t, must[*ext.Call](t)(ext.NewCall(nil, inc, ext.Bind(x, elem))))
		if diff := cmp.Diff([]any{0, 0, 1}, arr.Items); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestCompoundAssignOnStructElement(t *testing.T) {
	point := types.NewStruct("Pt")
	px := point.DefineField("X", types.Int)
	arr := runtime.NewArray(point, 1)
	arr.Items[0].(*runtime.Object).Fields["X"] = 1

	elem := ir.NewArrayIndex(ir.NewConstant(arr, types.ArrayOf(point)), ir.Const(0))
	add := must[*ext.AssignBinary](t)(ext.NewAssignBinary(ir.OpAdd, ir.NewField(elem, px), ir.Const(5), nil))

	reduced := ir.ReduceExtensions(add, nil)
	viaRef := ir.Contains(reduced, func(n ir.Node) bool {
		c, ok := n.(*ir.CallExpr)
		return ok && c.Method.Name == "WithByRef"
	})
	if !viaRef {
		t.Errorf("expected the element to be updated through WithByRef:\n%s", ir.Print(reduced))
	}
	if diff := cmp.Diff(any(6), eval(t, add)); diff != "" {
		t.Errorf("value mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(any(6), arr.Items[0].(*runtime.Object).Fields["X"]); diff != "" {
		t.Errorf("element mismatch (-want +got):\n%s", diff)
	}
}

func TestCompoundAssignOnStructIndexer(t *testing.T) {
	var log []string
	row := types.NewStruct("Row")
	row.DefineField("C0", types.Int)
	row.DefineField("C1", types.Int)
	cell := func(args []any) string { return fmt.Sprintf("C%d", args[0].(int)) }
	item := row.DefineIndexer("", types.Int, []*types.Parameter{types.Param("i", types.Int)},
		func(recv any, args []any) (any, error) {
			return recv.(*runtime.Object).Fields[cell(args)], nil
		},
		func(recv any, args []any) (any, error) {
			recv.(*runtime.Object).Fields[cell(args)] = args[1]
			return nil, nil
		})
	trace := types.NewClass("Trace", nil)
	traced := func(name string, v int) ir.Node {
		m := trace.DefineStaticMethod(name, types.Int, nil, func(any, []any) (any, error) {
			log = append(log, name)
			return v, nil
		})
		return ir.NewCall(nil, m)
	}

	arr := runtime.NewArray(row, 2)
	elem := ir.NewArrayIndex(ir.NewConstant(arr, types.ArrayOf(row)), traced("f", 1))
	target := ir.NewIndexer(elem, item, traced("g", 1))
	add := must[*ext.AssignBinary](t)(ext.NewAssignBinary(ir.OpAdd, target, ir.Const(5), nil))

	if diff := cmp.Diff(any(5), eval(t, add)); diff != "" {
		t.Errorf("value mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"f", "g"}, log); diff != "" {
		t.Errorf("evaluation order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(any(5), arr.Items[1].(*runtime.Object).Fields["C1"]); diff != "" {
		t.Errorf("element mismatch (-want +got):\n%s", diff)
	}
}

func TestTryCatchVariables(t *testing.T) {
	boom := ir.NewConstant(runtime.NewException(runtime.InvalidOperationExceptionType, "boom"), runtime.InvalidOperationExceptionType)
	code := ir.NewVariable(types.Int, "code")
	clause := func(t *testing.T, test *types.Type, value int) *ext.CatchBlock {
		filter := ir.Block(ir.NewAssign(code, ir.Const(value)), ir.GreaterThanOrEqual(code, ir.Const(3)))
		return must[*ext.CatchBlock](t)(ext.NewCatchBlock([]*ir.Variable{code}, test, nil, filter, code))
	}
	body := ir.Block(ir.Throw(boom), ir.Const(0))
	try := must[*ext.Try](t)(ext.NewTry(types.Int, body, nil, nil,
		clause(t, runtime.InvalidOperationExceptionType, 1),
		clause(t, runtime.ExceptionType, 4),
	))

	if diff := cmp.Diff(any(4), eval(t, try)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	block, ok := ir.ReduceExtensions(try, nil).(*ir.BlockExpr)
	if !ok {
		t.Fatalf("expected the catch variables to be hoisted into a block")
	}
	if len(block.Variables) != 2 || block.Variables[0] == block.Variables[1] || block.Variables[0] == code {
		t.Errorf("each clause needs its own fresh copy of code:\n%s", ir.Print(block))
	}

	t.Run("should reject a catch variable declared twice", func(t *testing.T) {
		e := ir.NewVariable(runtime.ExceptionType, "e")
		_, err := ext.NewCatchBlock([]*ir.Variable{e}, runtime.ExceptionType, e, nil, ir.Empty())
		if !errors.Is(err, ext.ErrDuplicateVariable) {
			t.Errorf("got %v, want an error wrapping %v", err, ext.ErrDuplicateVariable)
		}
	})
}
