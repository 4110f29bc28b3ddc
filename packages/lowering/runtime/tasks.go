package runtime

import (
	"fmt"
	"sync"

	"exprfutures-go/packages/lowering/types"
)

// Notifier is implemented by awaiters that can schedule a continuation
type Notifier interface {
	OnCompleted(continuation func())
}

// Task is the result of an asynchronous operation. Continuations run
// synchronously on the goroutine that completes the task.
type Task struct {
	typ    *types.Type
	mu     sync.Mutex
	done   bool
	result any
	err    *Exception
	conts  []func()
}

// NewTask creates a pending task of type t, which is TaskType or the
// result of TaskOf
func NewTask(t *types.Type) *Task {
	return &Task{typ: t}
}

// FromResult creates a completed Task<elem> holding v
func FromResult(elem *types.Type, v any) *Task {
	t := NewTask(TaskOf(elem))
	t.done, t.result = true, v
	return t
}

// CompletedTask creates a completed non-generic task
func CompletedTask() *Task {
	t := NewTask(TaskType)
	t.done = true
	return t
}

// RuntimeType implements Typed
func (t *Task) RuntimeType() *types.Type { return t.typ }

// IsCompleted reports whether the task ran to completion or faulted
func (t *Task) IsCompleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Result returns the value of a completed task or the exception it
// faulted with
func (t *Task) Result() (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.done {
		return nil, NewException(InvalidOperationExceptionType, "task has not completed")
	}
	if t.err != nil {
		return nil, t.err
	}
	return t.result, nil
}

// OnCompleted schedules f to run when the task completes. If the task has
// already completed, f runs immediately.
func (t *Task) OnCompleted(f func()) {
	t.mu.Lock()
	if !t.done {
		t.conts = append(t.conts, f)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	f()
}

// SetResult completes the task with v
func (t *Task) SetResult(v any) error {
	return t.complete(v, nil)
}

// SetException completes the task with an exception
func (t *Task) SetException(ex *Exception) error {
	return t.complete(nil, ex)
}

func (t *Task) complete(v any, ex *Exception) error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return NewException(InvalidOperationExceptionType, "task was already completed")
	}
	t.done, t.result, t.err = true, v, ex
	conts := t.conts
	t.conts = nil
	t.mu.Unlock()
	for _, f := range conts {
		f()
	}
	return nil
}

func (t *Task) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case !t.done:
		return fmt.Sprintf("%s(pending)", t.typ)
	case t.err != nil:
		return fmt.Sprintf("%s(faulted: %s)", t.typ, t.err.Error())
	}
	return fmt.Sprintf("%s(%s)", t.typ, ToString(t.result))
}

// TaskAwaiter awaits a Task
type TaskAwaiter struct {
	typ  *types.Type
	task *Task
}

// RuntimeType implements Typed
func (a *TaskAwaiter) RuntimeType() *types.Type { return a.typ }

// OnCompleted implements Notifier
func (a *TaskAwaiter) OnCompleted(f func()) { a.task.OnCompleted(f) }

// Task types and the awaiter pattern
var (
	INotifyCompletionType  = types.NewInterface("INotifyCompletion")
	IAsyncStateMachineType = types.NewInterface("IAsyncStateMachine")

	TaskType        = types.NewClass("Task", nil)
	TaskAwaiterType = types.NewClass("TaskAwaiter", nil)

	OnCompletedMethod *types.Method
	MoveNextMethod    *types.Method
)

var (
	taskMu  sync.Mutex
	tasksOf = map[*types.Type]*types.Type{}
)

func init() {
	OnCompletedMethod = INotifyCompletionType.DefineMethod("OnCompleted", types.Void, []*types.Parameter{types.Param("continuation", types.ActionOf())}, nil)
	OnCompletedMethod.Virtual = true
	MoveNextMethod = IAsyncStateMachineType.DefineMethod("MoveNext", types.Void, nil, nil)
	MoveNextMethod.Virtual = true

	defineTaskMembers(TaskType, TaskAwaiterType)
	defineAwaiterMembers(TaskAwaiterType, types.Void)
}

// TaskOf returns the Task<elem> type
func TaskOf(elem *types.Type) *types.Type {
	if elem.IsVoid() {
		return TaskType
	}
	taskMu.Lock()
	defer taskMu.Unlock()
	if t, ok := tasksOf[elem]; ok {
		return t
	}
	aw := &types.Type{Name: "TaskAwaiter", Kind: types.KindClass, Base: types.Object, Sealed: true, TypeArgs: []*types.Type{elem}}
	defineAwaiterMembers(aw, elem)

	t := &types.Type{Name: "Task", Kind: types.KindClass, Base: TaskType, Sealed: true, TypeArgs: []*types.Type{elem}}
	defineTaskMembers(t, aw)
	t.DefineProperty("Result", elem, func(recv any, _ []any) (any, error) {
		return recv.(*Task).Result()
	}, nil)
	tasksOf[elem] = t
	return t
}

// TaskResultType returns the element type of Task<T>, or void for Task
func TaskResultType(t *types.Type) *types.Type {
	if t == TaskType {
		return types.Void
	}
	if t.Name == "Task" && len(t.TypeArgs) == 1 {
		return t.TypeArgs[0]
	}
	return nil
}

func defineTaskMembers(t, awaiter *types.Type) {
	t.DefineMethod("GetAwaiter", awaiter, nil, func(recv any, _ []any) (any, error) {
		return &TaskAwaiter{typ: awaiter, task: recv.(*Task)}, nil
	})
	t.DefineProperty("IsCompleted", types.Bool, func(recv any, _ []any) (any, error) {
		return recv.(*Task).IsCompleted(), nil
	}, nil)
}

func defineAwaiterMembers(aw, elem *types.Type) {
	aw.Interfaces = []*types.Type{INotifyCompletionType}
	aw.DefineProperty("IsCompleted", types.Bool, func(recv any, _ []any) (any, error) {
		return recv.(*TaskAwaiter).task.IsCompleted(), nil
	}, nil)
	aw.DefineMethod("GetResult", elem, nil, func(recv any, _ []any) (any, error) {
		v, err := recv.(*TaskAwaiter).task.Result()
		if err != nil || elem.IsVoid() {
			return nil, err
		}
		return v, nil
	})
	aw.DefineMethod("OnCompleted", types.Void, []*types.Parameter{types.Param("continuation", types.ActionOf())}, func(recv any, args []any) (any, error) {
		d := args[0].(Delegate)
		recv.(*TaskAwaiter).OnCompleted(func() { _, _ = d.Invoke(nil) })
		return nil, nil
	})
}

// EventLoop queues task completions so that awaited operations complete
// asynchronously when the loop is run
type EventLoop struct {
	mu    sync.Mutex
	queue []func()
}

// NewEventLoop creates an empty event loop
func NewEventLoop() *EventLoop {
	return &EventLoop{}
}

// RuntimeType implements Typed
func (l *EventLoop) RuntimeType() *types.Type { return EventLoopType }

// Post queues f
func (l *EventLoop) Post(f func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, f)
}

// Run drains the queue, including work queued while draining, and returns
// the number of callbacks executed
func (l *EventLoop) Run() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		f := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		f()
		n++
	}
}

// Yield returns a pending Task<elem> that completes with v once the loop
// runs
func (l *EventLoop) Yield(elem *types.Type, v any) *Task {
	t := NewTask(TaskOf(elem))
	l.Post(func() { _ = t.SetResult(v) })
	return t
}

// EventLoopType exposes the event loop to expression trees; Yield<T> is a
// generic method definition.
var (
	EventLoopType = types.NewClass("EventLoop", nil)
	YieldMethod   *types.Method
)

func init() {
	EventLoopType.Sealed = true
	YieldMethod = &types.Method{
		Name:          "Yield",
		DeclaringType: EventLoopType,
		TypeParams:    []string{"T"},
		Instantiate: func(args []*types.Type) *types.Method {
			elem := args[0]
			return &types.Method{
				Name:          "Yield",
				DeclaringType: EventLoopType,
				Params:        []*types.Parameter{types.Param("value", elem)},
				Return:        TaskOf(elem),
				Impl: func(recv any, a []any) (any, error) {
					return recv.(*EventLoop).Yield(elem, a[0]), nil
				},
			}
		},
	}
	EventLoopType.Methods = append(EventLoopType.Methods, YieldMethod)
}
