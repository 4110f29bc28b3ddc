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

// classify builds
//
//	switch (x) { case 1: r = "one"; case null: r = "null"; default: r = "other" }
//
// leaving out the null section when withNull is false
func classify(t *testing.T, x *ir.Variable, withNull bool) ir.Node {
	r := ir.NewVariable(types.String, "r")
	brk := ir.NewLabelTarget(types.Void, "break")
	section := func(tv any, value string) *ext.SwitchSection {
		return ext.NewSwitchSection([]any{tv}, ir.NewAssign(r, ir.Const(value)), ir.Break(brk))
	}
	sections := []*ext.SwitchSection{section(1, "one")}
	if withNull {
		sections = append(sections, section(ext.SwitchNull, "null"))
	}
	sections = append(sections, section(ext.SwitchDefault, "other"))
	sw := must[*ext.SwitchStatement](t)(ext.NewSwitchStatement(x, sections, brk, nil))
	return ir.NewBlock([]*ir.Variable{r}, sw, r)
}

func TestSwitchStatement(t *testing.T) {
	x := ir.NewVariable(types.NullableOf(types.Int), "x")
	run := func(t *testing.T, n ir.Node, value any) any {
		v, err := interp.New().EvalWith(n, map[*ir.Variable]any{x: value})
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		return v
	}

	t.Run("should take the null section of a nullable value", func(t *testing.T) {
		n := classify(t, x, true)
		got := []any{run(t, n, 1), run(t, n, nil), run(t, n, 7)}
		if diff := cmp.Diff([]any{"one", "null", "other"}, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should send null to the default section", func(t *testing.T) {
		n := classify(t, x, false)
		got := []any{run(t, n, 1), run(t, n, nil)}
		if diff := cmp.Diff([]any{"one", "other"}, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should share a section between null and a value", func(t *testing.T) {
		r := ir.NewVariable(types.String, "r")
		brk := ir.NewLabelTarget(types.Void, "break")
		section := func(value string, tvs ...any) *ext.SwitchSection {
			return ext.NewSwitchSection(tvs, ir.NewAssign(r, ir.Const(value)), ir.Break(brk))
		}
		sw := must[*ext.SwitchStatement](t)(ext.NewSwitchStatement(x, []*ext.SwitchSection{
			section("one-or-null", 1, ext.SwitchNull),
			section("two", 2),
			section("other", ext.SwitchDefault),
		}, brk, nil))
		n := ir.NewBlock([]*ir.Variable{r}, sw, r)
		got := []any{run(t, n, 1), run(t, n, nil), run(t, n, 2), run(t, n, 7)}
		if diff := cmp.Diff([]any{"one-or-null", "one-or-null", "two", "other"}, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should jump with goto case", func(t *testing.T) {
		v := ir.NewVariable(types.Int, "v")
		r := ir.NewVariable(types.Int, "r")
		brk := ir.NewLabelTarget(types.Void, "break")
		gotoTwo := must[*ext.GotoCase](t)(ext.NewGotoCase(2))
		sw := must[*ext.SwitchStatement](t)(ext.NewSwitchStatement(v, []*ext.SwitchSection{
			ext.NewSwitchSection([]any{1}, ir.NewAssign(r, ir.Const(10)), gotoTwo),
			ext.NewSwitchSection([]any{2}, ir.NewAssign(r, ir.Add(r, ir.Const(5))), ir.Break(brk)),
		}, brk, nil))
		block := ir.NewBlock([]*ir.Variable{v, r}, ir.NewAssign(v, ir.Const(1)), ir.NewAssign(r, ir.Const(0)), sw, r)
		if diff := cmp.Diff(any(15), eval(t, block)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSwitchExpression(t *testing.T) {
	arms := func(t *testing.T) []*ext.SwitchExpressionArm {
		var res []*ext.SwitchExpressionArm
		for i, name := range []string{"one", "two"} {
			p := must[*ext.ConstantPattern](t)(ext.NewConstantPattern(types.Int, ir.Const(i+1)))
			res = append(res, &ext.SwitchExpressionArm{Pattern: p, Value: ir.Const(name)})
		}
		return res
	}

	t.Run("should pick the first matching arm", func(t *testing.T) {
		sw := must[*ext.SwitchExpression](t)(ext.NewSwitchExpression(types.String, ir.Const(2), arms(t)...))
		if diff := cmp.Diff("two", eval(t, sw)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should bind a guarded variable", func(t *testing.T) {
		n := ir.NewVariable(types.Int, "n")
		p := must[*ext.VarPattern](t)(ext.NewVarPattern(n))
		arm := &ext.SwitchExpressionArm{Variables: []*ir.Variable{n}, Pattern: p, Guard: ir.GreaterThanOrEqual(n, ir.Const(3)), Value: ir.Const("many")}
		sw := must[*ext.SwitchExpression](t)(ext.NewSwitchExpression(types.String, ir.Const(4), append(arms(t), arm)...))
		if diff := cmp.Diff("many", eval(t, sw)); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should throw when no arm matches", func(t *testing.T) {
		sw := must[*ext.SwitchExpression](t)(ext.NewSwitchExpression(types.String, ir.Const(3), arms(t)...))
		_, err := interp.Eval(sw)
		var ex *runtime.Exception
		if !errors.As(err, &ex) {
			t.Fatalf("expected an exception, got %v", err)
		}
		if ex.Type != runtime.SwitchExpressionExceptionType {
			t.Errorf("got %s, want %s", ex.Type, runtime.SwitchExpressionExceptionType)
		}
	})
}
