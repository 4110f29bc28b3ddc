package ir_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/types"
)

func TestPrint(t *testing.T) {
	x := ir.NewVariable(types.Int, "x")
	shadow := ir.NewVariable(types.Int, "x")
	block := ir.NewBlock([]*ir.Variable{x, shadow},
		ir.NewAssign(x, ir.Const(1)),
		ir.NewAssign(shadow, ir.Add(x, ir.Const(2))),
	)
	want := "{\n    int x;\n    int x__1;\n    x = 1;\n    x__1 = (x + 2);\n}"
	if diff := cmp.Diff(want, ir.Print(block)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestFreeVariables(t *testing.T) {
	a := ir.NewVariable(types.Int, "a")
	b := ir.NewVariable(types.Int, "b")
	p := ir.NewVariable(types.Int, "p")
	lambda := ir.NewLambda(types.FuncOf(types.Int, types.Int), ir.Add(p, b), p)
	n := ir.NewBlock([]*ir.Variable{a}, ir.NewAssign(a, ir.Const(1)), lambda, ir.Add(a, b))

	if free := ir.FreeVariables(n); len(free) != 1 || free[0] != b {
		t.Errorf("got %v, want [b]", free)
	}
	if ir.IsFree(n, a) {
		t.Errorf("declared variable reported free")
	}
}

func TestSubstitute(t *testing.T) {
	a := ir.NewVariable(types.Int, "a")
	b := ir.NewVariable(types.Int, "b")
	renamed := ir.NewVariable(types.Int, "c")
	n := ir.NewBlock([]*ir.Variable{a}, ir.NewAssign(a, b), ir.Add(a, b))

	got := ir.Substitute(n, map[*ir.Variable]ir.Node{a: renamed, b: ir.Const(2)})
	want := "{\n    int c;\n    c = 2;\n    (c + 2);\n}"
	if diff := cmp.Diff(want, ir.Print(got)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("{\n    int a;\n    a = b;\n    (a + b);\n}", ir.Print(n)); diff != "" {
		t.Errorf("input was modified (-want +got):\n%s", diff)
	}
}

func TestTransform(t *testing.T) {
	sum := ir.Add(ir.Const(1), ir.Add(ir.Const(2), ir.Const(3)))
	doubled := ir.Transform(sum, func(n ir.Node) ir.Node {
		if c, ok := n.(*ir.ConstantExpr); ok {
			return ir.Const(c.Value.(int) * 2)
		}
		return n
	})
	if diff := cmp.Diff("(2 + (4 + 6))", ir.Print(doubled)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	same := ir.Transform(sum, func(n ir.Node) ir.Node { return n })
	if same != ir.Node(sum) {
		t.Errorf("identity transform rebuilt the tree")
	}
	if got := ir.Count(sum, func(n ir.Node) bool { _, ok := n.(*ir.ConstantExpr); return ok }); got != 3 {
		t.Errorf("counted %d constants, want 3", got)
	}
}

func TestIsPure(t *testing.T) {
	v := ir.NewVariable(types.Int, "v")
	tests := []struct {
		name     string
		n        ir.Node
		readOnly bool
		want     bool
	}{
		{"constant", ir.Const(1), false, true},
		{"variable", v, false, false},
		{"read-only variable", v, true, true},
		{"assignment", ir.NewAssign(v, ir.Const(1)), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ir.IsPure(tt.n, tt.readOnly); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
