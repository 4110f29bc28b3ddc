package ext_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"exprfutures-go/packages/lowering/ext"
	"exprfutures-go/packages/lowering/interp"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

func eval(t *testing.T, n ir.Node) any {
	t.Helper()
	v, err := interp.Eval(n)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	return v
}

func must[T any](t *testing.T) func(T, error) T {
	return func(n T, err error) T {
		t.Helper()
		if err != nil {
			t.Fatalf("factory failed: %v", err)
		}
		return n
	}
}

func TestUpdateIdentity(t *testing.T) {
	i := ir.NewVariable(types.Int, "i")
	s := ir.NewVariable(types.String, "s")
	cls := types.NewClass("Gate", nil)
	gate := ir.NewConstant(runtime.NewObject(cls), cls)
	tuple := types.TupleOf(types.Int, types.String)
	idx := must[*ext.FromEndIndex](t)(ext.NewFromEndIndex(ir.Const(1)))
	rng := must[*ext.Range](t)(ext.NewRange(ir.Const(0), idx))
	lit := must[*ext.TupleLiteral](t)(ext.NewTupleLiteral(tuple, ir.Const(1), ir.Const("a")))
	one := must[*ext.ConstantPattern](t)(ext.NewConstantPattern(types.Int, ir.Const(1)))

	nodes := map[string]ir.Node{
		"FromEndIndex":  idx,
		"Range":         rng,
		"IndexerAccess": must[*ext.IndexerAccess](t)(ext.NewIndexerAccess(s, idx)),
		"ArrayAccess":   must[*ext.ArrayAccess](t)(ext.NewArrayAccess(ir.NewArrayInit(types.Int, ir.Const(1)), rng)),
		"For": must[*ext.For](t)(ext.NewFor([]*ir.Variable{i}, []ir.Node{ir.NewAssign(i, ir.Const(0))},
			ir.LessThan(i, ir.Const(3)), []ir.Node{must[*ext.AssignUnary](t)(ext.NewAssignUnary(ext.PostIncrement, i))}, ir.Empty(), nil, nil)),
		"While":              must[*ext.While](t)(ext.NewWhile(ir.Const(false), ir.Empty(), nil, nil)),
		"Assign":             must[*ext.Assign](t)(ext.NewAssign(i, ir.Const(2))),
		"AssignBinary":       must[*ext.AssignBinary](t)(ext.NewAssignBinary(ir.OpAdd, i, ir.Const(2), nil)),
		"TupleLiteral":       lit,
		"TupleBinary":        must[*ext.TupleBinary](t)(ext.NewTupleBinary(ir.OpEqual, lit, lit)),
		"InterpolatedString": must[*ext.InterpolatedString](t)(ext.NewInterpolatedString(ext.Literal("i = "), ext.Hole(i, 0, ""))),
		"SwitchStatement": must[*ext.SwitchStatement](t)(ext.NewSwitchStatement(i,
			[]*ext.SwitchSection{ext.NewSwitchSection([]any{1}, ir.Empty())}, nil, nil)),
		"SwitchExpression": must[*ext.SwitchExpression](t)(ext.NewSwitchExpression(types.String, i,
			&ext.SwitchExpressionArm{Pattern: one, Value: ir.Const("one")})),
		"IsPattern": must[*ext.IsPattern](t)(ext.NewIsPattern(i, one)),
		"Lock":      must[*ext.Lock](t)(ext.NewLock(gate, ir.Empty())),
		"Block":     must[*ext.Block](t)(ext.NewBlock([]*ir.Variable{i}, []ir.Node{i}, nil)),
	}

	same := ir.VisitorFunc(func(n ir.Node) ir.Node { return n })
	for name, n := range nodes {
		t.Run(name, func(t *testing.T) {
			if got := n.VisitChildren(same); got != n {
				t.Errorf("VisitChildren with unchanged children returned a new node")
			}
			if got := ir.Transform(n, func(n ir.Node) ir.Node { return n }); got != n {
				t.Errorf("identity transform returned a new node")
			}
		})
	}
}

func TestFactoryErrors(t *testing.T) {
	v := ir.NewVariable(types.Int, "v")
	brk := ir.NewLabelTarget(types.Void, "brk")
	tests := []struct {
		name string
		make func() error
		want error
	}{
		{"for condition must be bool", func() error {
			_, err := ext.NewFor(nil, nil, ir.Const(1), nil, ir.Empty(), nil, nil)
			return err
		}, ext.ErrTypeMismatch},
		{"constant is not assignable", func() error {
			_, err := ext.NewAssign(ir.Const(1), ir.Const(2))
			return err
		}, ext.ErrNotAssignable},
		{"duplicate test value", func() error {
			_, err := ext.NewSwitchStatement(v, []*ext.SwitchSection{
				ext.NewSwitchSection([]any{1}, ir.Empty()),
				ext.NewSwitchSection([]any{1}, ir.Empty()),
			}, nil, nil)
			return err
		}, ext.ErrDuplicateTestValue},
		{"duplicate block variable", func() error {
			_, err := ext.NewBlock([]*ir.Variable{v, v}, []ir.Node{ir.Empty()}, nil)
			return err
		}, ext.ErrDuplicateVariable},
		{"from-end index of a string", func() error {
			_, err := ext.NewFromEndIndex(ir.Const("x"))
			return err
		}, ext.ErrTypeMismatch},
		{"break and continue share a label", func() error {
			_, err := ext.NewWhile(ir.Const(true), ir.Empty(), brk, brk)
			return err
		}, ext.ErrInvalidArgument},
		{"goto case without section", func() error {
			gc := must[*ext.GotoCase](t)(ext.NewGotoCase(2))
			_, err := ext.NewSwitchStatement(v, []*ext.SwitchSection{
				ext.NewSwitchSection([]any{1}, gc),
			}, nil, nil)
			return err
		}, ext.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.make()
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want an error wrapping %v", err, tt.want)
			}
		})
	}
}

func TestPatterns(t *testing.T) {
	gt5 := must[*ext.RelationalPattern](t)(ext.NewRelationalPattern(types.Int, ir.OpGreaterThan, ir.Const(5)))
	nine := must[*ext.ConstantPattern](t)(ext.NewConstantPattern(types.Int, ir.Const(9)))
	not9 := must[*ext.NotPattern](t)(ext.NewNotPattern(nine))
	p := must[*ext.BinaryPattern](t)(ext.NewAndPattern(gt5, not9))

	got := map[int]any{}
	for _, x := range []int{3, 7, 9} {
		got[x] = eval(t, must[*ext.IsPattern](t)(ext.NewIsPattern(ir.Const(x), p)))
	}
	want := map[int]any{3: false, 7: true, 9: false}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pattern mismatch (-want +got):\n%s", diff)
	}
}
