package runtime

import (
	"sync"

	"exprfutures-go/packages/lowering/types"
)

// StateMachine drives a lowered async body. MoveNext runs the body until
// it completes or suspends on an incomplete awaiter.
type StateMachine struct {
	moveNext Delegate
}

// NewStateMachine wraps the moveNext delegate produced by async lowering
func NewStateMachine(moveNext Delegate) *StateMachine {
	return &StateMachine{moveNext: moveNext}
}

// RuntimeType implements Typed
func (sm *StateMachine) RuntimeType() *types.Type { return StateMachineType }

// MoveNext resumes the state machine
func (sm *StateMachine) MoveNext() error {
	_, err := sm.moveNext.Invoke(nil)
	return err
}

// MethodBuilder completes the task returned by an async lambda. A builder
// without a task backs async lambdas returning void.
type MethodBuilder struct {
	typ  *types.Type
	task *Task
	// Unobserved holds errors that escaped a continuation or an async
	// void body.
	Unobserved []error
}

// RuntimeType implements Typed
func (b *MethodBuilder) RuntimeType() *types.Type { return b.typ }

// Task returns the task completed by the builder, nil for void builders
func (b *MethodBuilder) Task() *Task { return b.task }

// Start runs the state machine synchronously until its first suspension
func (b *MethodBuilder) Start(sm *StateMachine) {
	if err := sm.MoveNext(); err != nil {
		b.Unobserved = append(b.Unobserved, err)
	}
}

// AwaitOnCompleted resumes sm once awaiter completes
func (b *MethodBuilder) AwaitOnCompleted(awaiter any, sm *StateMachine) error {
	resume := func() {
		if err := sm.MoveNext(); err != nil {
			b.Unobserved = append(b.Unobserved, err)
		}
	}
	if n, ok := awaiter.(Notifier); ok {
		n.OnCompleted(resume)
		return nil
	}
	if t, ok := awaiter.(Typed); ok {
		for c := t.RuntimeType(); c != nil; c = c.Base {
			for _, m := range c.Methods {
				if m.Name == OnCompletedMethod.Name && len(m.Params) == 1 && m.Impl != nil {
					_, err := m.Impl(awaiter, []any{FuncDelegate(func([]any) (any, error) {
						resume()
						return nil, nil
					})})
					return err
				}
			}
		}
	}
	return NewException(InvalidOperationExceptionType, "awaiter does not implement INotifyCompletion")
}

// SetResult completes the task
func (b *MethodBuilder) SetResult(v any) error {
	if b.task == nil {
		return nil
	}
	return b.task.SetResult(v)
}

// SetException faults the task
func (b *MethodBuilder) SetException(ex *Exception) error {
	if b.task == nil {
		b.Unobserved = append(b.Unobserved, ex)
		return nil
	}
	return b.task.SetException(ex)
}

// Builder and state machine types
var (
	StateMachineType      = types.NewClass("RuntimeAsyncStateMachine", nil)
	TaskMethodBuilderType = types.NewClass("AsyncTaskMethodBuilder", nil)
	VoidMethodBuilderType = types.NewClass("AsyncVoidMethodBuilder", nil)

	StateMachineCtor *types.Constructor

	builderMu  sync.Mutex
	buildersOf = map[*types.Type]*types.Type{}
)

func init() {
	StateMachineType.Sealed = true
	StateMachineType.Interfaces = []*types.Type{IAsyncStateMachineType}
	StateMachineCtor = StateMachineType.DefineConstructor([]*types.Parameter{types.Param("moveNext", types.ActionOf())}, func(_ any, args []any) (any, error) {
		return NewStateMachine(args[0].(Delegate)), nil
	})
	StateMachineType.DefineMethod("MoveNext", types.Void, nil, func(recv any, _ []any) (any, error) {
		return nil, recv.(*StateMachine).MoveNext()
	})

	defineBuilderMembers(TaskMethodBuilderType, TaskType, types.Void)
	defineBuilderMembers(VoidMethodBuilderType, nil, types.Void)
}

// MethodBuilderFor returns the builder type for an async lambda whose
// delegate returns ret: Task, Task<T> or void
func MethodBuilderFor(ret *types.Type) *types.Type {
	if ret.IsVoid() {
		return VoidMethodBuilderType
	}
	if ret == TaskType {
		return TaskMethodBuilderType
	}
	elem := TaskResultType(ret)
	if elem == nil {
		return nil
	}
	builderMu.Lock()
	defer builderMu.Unlock()
	if b, ok := buildersOf[elem]; ok {
		return b
	}
	b := &types.Type{Name: "AsyncTaskMethodBuilder", Kind: types.KindClass, Base: types.Object, Sealed: true, TypeArgs: []*types.Type{elem}}
	defineBuilderMembers(b, ret, elem)
	buildersOf[elem] = b
	return b
}

func defineBuilderMembers(b, task, elem *types.Type) {
	b.Sealed = true
	b.DefineStaticMethod("Create", b, nil, func(any, []any) (any, error) {
		mb := &MethodBuilder{typ: b}
		if task != nil {
			mb.task = NewTask(task)
		}
		return mb, nil
	})
	b.DefineMethod("Start", types.Void, []*types.Parameter{types.Param("stateMachine", IAsyncStateMachineType)}, func(recv any, args []any) (any, error) {
		recv.(*MethodBuilder).Start(args[0].(*StateMachine))
		return nil, nil
	})
	b.DefineMethod("AwaitOnCompleted", types.Void, []*types.Parameter{
		types.Param("awaiter", INotifyCompletionType),
		types.Param("stateMachine", IAsyncStateMachineType),
	}, func(recv any, args []any) (any, error) {
		return nil, recv.(*MethodBuilder).AwaitOnCompleted(args[0], args[1].(*StateMachine))
	})
	var resultParams []*types.Parameter
	if !elem.IsVoid() {
		resultParams = []*types.Parameter{types.Param("result", elem)}
	}
	b.DefineMethod("SetResult", types.Void, resultParams, func(recv any, args []any) (any, error) {
		var v any
		if len(args) > 0 {
			v = args[0]
		}
		return nil, recv.(*MethodBuilder).SetResult(v)
	})
	b.DefineMethod("SetException", types.Void, []*types.Parameter{types.Param("exception", ExceptionType)}, func(recv any, args []any) (any, error) {
		return nil, recv.(*MethodBuilder).SetException(args[0].(*Exception))
	})
	if task != nil {
		b.DefineProperty("Task", task, func(recv any, _ []any) (any, error) {
			return recv.(*MethodBuilder).Task(), nil
		}, nil)
	}
}
