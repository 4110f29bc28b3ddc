package async_test

import (
	"testing"

	"github.com/pkg/errors"

	"exprfutures-go/packages/lowering/async"
	"exprfutures-go/packages/lowering/ext"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// yield creates await loop.Yield<T>(value)
func yield(t *testing.T, loop *runtime.EventLoop, value ir.Node) *async.Await {
	t.Helper()
	m := runtime.YieldMethod.Instantiate([]*types.Type{value.Type()})
	aw, err := async.NewAwait(ir.NewCall(ir.NewConstant(loop, runtime.EventLoopType), m, value), nil)
	if err != nil {
		t.Fatalf("NewAwait: %v", err)
	}
	return aw
}

func TestNewAsyncLambda(t *testing.T) {
	loop := runtime.NewEventLoop()
	taskOfInt := types.FuncOf(runtime.TaskOf(types.Int))
	gate := types.NewClass("Gate", nil)

	tests := []struct {
		name string
		make func(t *testing.T) error
		// want is nil when any error will do
		want error
	}{
		{"int return type", func(t *testing.T) error {
			_, err := async.NewAsyncLambda(types.FuncOf(types.Int), ir.Const(1))
			return err
		}, async.ErrReturnType},
		{"body does not match the task type", func(t *testing.T) error {
			_, err := async.NewAsyncLambda(taskOfInt, ir.Const("x"))
			return err
		}, async.ErrTypeMismatch},
		{"await inside a lock", func(t *testing.T) error {
			lock, err := ext.NewLock(ir.NewConstant(runtime.NewObject(gate), gate), yield(t, loop, ir.Const(1)))
			if err != nil {
				return err
			}
			_, err = async.NewAsyncLambda(taskOfInt, lock)
			return err
		}, async.ErrForbiddenAwait},
		{"await inside a lambda", func(t *testing.T) error {
			inner := ir.NewLambda(types.FuncOf(types.Int), yield(t, loop, ir.Const(1)))
			_, err := async.NewAsyncLambda(taskOfInt, ir.Block(inner, ir.Const(1)))
			return err
		}, async.ErrForbiddenAwait},
		{"await inside a catch filter", func(t *testing.T) error {
			filter := ir.Equal(yield(t, loop, ir.Const(1)), ir.Const(1))
			try := ir.NewTry(types.Void, ir.Empty(), nil, nil, ir.NewCatch(runtime.ExceptionType, nil, ir.Empty(), filter))
			_, err := async.NewAsyncLambda(taskOfInt, ir.Block(try, ir.Const(1)))
			return err
		}, async.ErrForbiddenAwait},
		{"by-reference parameter", func(t *testing.T) error {
			p := ir.NewRefParameter(types.Int, "p")
			_, err := async.NewAsyncLambda(types.DelegateOf(runtime.TaskType, types.RefParam("p", types.Int)), ir.Empty(), p)
			return err
		}, nil},
		{"parameter count", func(t *testing.T) error {
			p := ir.NewVariable(types.Int, "p")
			_, err := async.NewAsyncLambda(taskOfInt, ir.Const(1), p)
			return err
		}, async.ErrTypeMismatch},
		{"await on a value without awaiter", func(t *testing.T) error {
			_, err := async.NewAwait(ir.Const(1), nil)
			return err
		}, async.ErrAwaitPattern},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.make(t)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("got %v, want an error wrapping %v", err, tt.want)
			}
		})
	}

	t.Run("should allow awaits in nested async lambdas", func(t *testing.T) {
		inner, err := async.NewAsyncLambda(taskOfInt, yield(t, loop, ir.Const(1)))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := async.NewAsyncLambda(types.ActionOf(), ir.VoidBlock(inner)); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestUpdateIdentity(t *testing.T) {
	loop := runtime.NewEventLoop()
	aw := yield(t, loop, ir.Const(1))
	l, err := async.NewAsyncLambda(types.FuncOf(runtime.TaskOf(types.Int)), aw)
	if err != nil {
		t.Fatal(err)
	}
	same := ir.VisitorFunc(func(n ir.Node) ir.Node { return n })
	for name, n := range map[string]ir.Node{"Await": aw, "AsyncLambda": l} {
		t.Run(name, func(t *testing.T) {
			if got := n.VisitChildren(same); got != n {
				t.Errorf("VisitChildren with unchanged children returned a new node")
			}
		})
	}
	t.Run("should keep the name on update", func(t *testing.T) {
		l.Name = "compute"
		u := l.Update(l.Params, yield(t, loop, ir.Const(2)))
		if u == l || u.Name != "compute" {
			t.Errorf("got %p named %q", u, u.Name)
		}
	})
}
