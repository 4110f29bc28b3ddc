package runtime_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

func TestTask(t *testing.T) {
	t.Run("should run continuations on completion", func(t *testing.T) {
		task := runtime.NewTask(runtime.TaskOf(types.Int))
		var got []any
		task.OnCompleted(func() {
			v, _ := task.Result()
			got = append(got, v)
		})
		if _, err := task.Result(); err == nil {
			t.Errorf("expected an error for a pending task")
		}
		if err := task.SetResult(3); err != nil {
			t.Fatal(err)
		}
		task.OnCompleted(func() { got = append(got, "late") })
		if diff := cmp.Diff([]any{3, "late"}, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should reject a second completion", func(t *testing.T) {
		task := runtime.FromResult(types.Int, 1)
		if err := task.SetResult(2); err == nil {
			t.Errorf("expected an error")
		}
	})

	t.Run("should surface the exception of a faulted task", func(t *testing.T) {
		task := runtime.NewTask(runtime.TaskType)
		ex := runtime.NewException(runtime.InvalidOperationExceptionType, "boom")
		if err := task.SetException(ex); err != nil {
			t.Fatal(err)
		}
		_, err := task.Result()
		var got *runtime.Exception
		if !errors.As(err, &got) || got != ex {
			t.Errorf("got %v, want %v", err, ex)
		}
	})
}

func TestEventLoop(t *testing.T) {
	loop := runtime.NewEventLoop()
	first := loop.Yield(types.Int, 1)
	var order []int
	first.OnCompleted(func() {
		order = append(order, 1)
		loop.Yield(types.Int, 2).OnCompleted(func() { order = append(order, 2) })
	})
	if first.IsCompleted() {
		t.Fatalf("yielded task completed before the loop ran")
	}
	if n := loop.Run(); n != 2 {
		t.Errorf("ran %d callbacks, want 2", n)
	}
	if diff := cmp.Diff([]int{1, 2}, order); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRange(t *testing.T) {
	tests := []struct {
		name       string
		r          runtime.Range
		start, len int
	}{
		{"whole", runtime.Range{Start: runtime.Index{}, End: runtime.Index{FromEnd: true}}, 0, 5},
		{"from end", runtime.Range{Start: runtime.Index{Value: 3, FromEnd: true}, End: runtime.Index{Value: 1, FromEnd: true}}, 2, 2},
		{"empty", runtime.Range{Start: runtime.Index{Value: 2}, End: runtime.Index{Value: 2}}, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, n, err := tt.r.GetOffsetAndLength(5)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]int{tt.start, tt.len}, []int{start, n}); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("should reject a reversed range", func(t *testing.T) {
		r := runtime.Range{Start: runtime.Index{Value: 4}, End: runtime.Index{Value: 1}}
		if _, _, err := r.GetOffsetAndLength(5); err == nil {
			t.Errorf("expected an error")
		}
	})
}

func TestFormat(t *testing.T) {
	tests := []struct {
		format string
		args   []any
		want   string
	}{
		{"{0}-{1}", []any{1, "a"}, "1-a"},
		{"{{{0}}}", []any{true}, "{True}"},
		{"[{0,4:D2}]", []any{7}, "[  07]"},
		{"[{0,-3}]", []any{"x"}, "[x  ]"},
		{"{0:X}", []any{255}, "FF"},
		{"{0:F2}", []any{3.14159}, "3.14"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			got, err := runtime.Format(tt.format, tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	for _, bad := range []string{"{1}", "{0", "{0,x}"} {
		t.Run(bad, func(t *testing.T) {
			if _, err := runtime.Format(bad, []any{1}); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}

func TestEquals(t *testing.T) {
	point := types.NewStruct("Point")
	point.DefineField("X", types.Int)
	a, b := runtime.NewObject(point), runtime.NewObject(point)
	a.Fields["X"], b.Fields["X"] = 1, 1
	if !runtime.Equals(a, b) {
		t.Errorf("structs with equal fields differ")
	}
	b.Fields["X"] = 2
	if runtime.Equals(a, b) {
		t.Errorf("structs with different fields are equal")
	}
	if runtime.Equals([]int{1}, []int{1}) {
		t.Errorf("non-comparable values are equal")
	}
}
