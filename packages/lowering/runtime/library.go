package runtime

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"exprfutures-go/packages/lowering/types"
)

// Disposal and enumeration interfaces
var (
	IDisposableType      = types.NewInterface("IDisposable")
	IAsyncDisposableType = types.NewInterface("IAsyncDisposable")
	IEnumerableType      = types.NewInterface("IEnumerable")
	IEnumeratorType      = types.NewInterface("IEnumerator")

	DisposeMethod      *types.Method
	DisposeAsyncMethod *types.Method
)

func init() {
	DisposeMethod = IDisposableType.DefineMethod("Dispose", types.Void, nil, nil)
	DisposeMethod.Virtual = true
	DisposeAsyncMethod = IAsyncDisposableType.DefineMethod("DisposeAsync", TaskType, nil, nil)
	DisposeAsyncMethod.Virtual = true

	IEnumeratorType.Interfaces = []*types.Type{IDisposableType}
	IEnumeratorType.DefineMethod("MoveNext", types.Bool, nil, nil).Virtual = true
	IEnumeratorType.DefineAbstractProperty("Current", types.Object, false)
	IEnumerableType.DefineMethod("GetEnumerator", IEnumeratorType, nil, nil).Virtual = true
}

// List is a growable list of values
type List struct {
	typ   *types.Type
	Items []any
}

// NewList creates a List<elem> holding items
func NewList(elem *types.Type, items ...any) *List {
	return &List{typ: ListOf(elem), Items: append([]any(nil), items...)}
}

// RuntimeType implements Typed
func (l *List) RuntimeType() *types.Type { return l.typ }

// Len implements types.Lengther
func (l *List) Len() int { return len(l.Items) }

func (l *List) String() string {
	parts := make([]string, len(l.Items))
	for i, v := range l.Items {
		parts[i] = ToString(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ListEnumerator enumerates a List
type ListEnumerator struct {
	typ      *types.Type
	list     *List
	pos      int
	Disposed bool
}

// RuntimeType implements Typed
func (e *ListEnumerator) RuntimeType() *types.Type { return e.typ }

var (
	listMu      sync.Mutex
	listsOf     = map[*types.Type]*types.Type{}
	sequencesOf = map[*types.Type]*types.Type{}
)

// ListOf returns the List<elem> type
func ListOf(elem *types.Type) *types.Type {
	listMu.Lock()
	defer listMu.Unlock()
	if t, ok := listsOf[elem]; ok {
		return t
	}
	t := &types.Type{Name: "List", Kind: types.KindClass, Base: types.Object, Sealed: true, TypeArgs: []*types.Type{elem}, Interfaces: []*types.Type{IEnumerableType}}
	en := &types.Type{Name: "List.Enumerator", Kind: types.KindClass, Base: types.Object, Sealed: true, TypeArgs: []*types.Type{elem}, Interfaces: []*types.Type{IEnumeratorType}}
	listsOf[elem] = t

	t.DefineConstructor(nil, func(any, []any) (any, error) {
		return &List{typ: t}, nil
	})
	t.DefineProperty("Count", types.Int, func(recv any, _ []any) (any, error) {
		return len(recv.(*List).Items), nil
	}, nil)
	t.DefineIndexer("", elem, []*types.Parameter{types.Param("index", types.Int)}, func(recv any, args []any) (any, error) {
		l, i := recv.(*List), args[0].(int)
		if i < 0 || i >= len(l.Items) {
			return nil, NewException(IndexOutOfRangeExceptionType, fmt.Sprintf("index %d out of range", i))
		}
		return l.Items[i], nil
	}, func(recv any, args []any) (any, error) {
		l, i := recv.(*List), args[0].(int)
		if i < 0 || i >= len(l.Items) {
			return nil, NewException(IndexOutOfRangeExceptionType, fmt.Sprintf("index %d out of range", i))
		}
		l.Items[i] = Copy(args[1])
		return nil, nil
	})
	t.DefineMethod("Add", types.Void, []*types.Parameter{types.Param("item", elem)}, func(recv any, args []any) (any, error) {
		l := recv.(*List)
		l.Items = append(l.Items, Copy(args[0]))
		return nil, nil
	})
	t.DefineMethod("Slice", t, []*types.Parameter{types.Param("start", types.Int), types.Param("length", types.Int)}, func(recv any, args []any) (any, error) {
		l := recv.(*List)
		start, n := args[0].(int), args[1].(int)
		if start < 0 || n < 0 || start+n > len(l.Items) {
			return nil, NewException(ArgumentExceptionType, fmt.Sprintf("slice [%d, %d) out of range", start, start+n))
		}
		return &List{typ: t, Items: append([]any(nil), l.Items[start:start+n]...)}, nil
	})
	t.DefineMethod("GetEnumerator", en, nil, func(recv any, _ []any) (any, error) {
		return &ListEnumerator{typ: en, list: recv.(*List), pos: -1}, nil
	})

	en.DefineMethod("MoveNext", types.Bool, nil, func(recv any, _ []any) (any, error) {
		e := recv.(*ListEnumerator)
		if e.pos+1 >= len(e.list.Items) {
			e.pos = len(e.list.Items)
			return false, nil
		}
		e.pos++
		return true, nil
	})
	current := func(recv any, _ []any) (any, error) {
		e := recv.(*ListEnumerator)
		if e.pos < 0 || e.pos >= len(e.list.Items) {
			return nil, NewException(InvalidOperationExceptionType, "enumeration has not started or has finished")
		}
		return e.list.Items[e.pos], nil
	}
	en.DefineProperty("Current", elem, current, nil)
	en.DefineMethod("Dispose", types.Void, nil, func(recv any, _ []any) (any, error) {
		recv.(*ListEnumerator).Disposed = true
		return nil, nil
	})
	return t
}

// AsyncSequence is an asynchronous stream over a fixed set of values. When
// Loop is set, every MoveNextAsync completes through the loop.
type AsyncSequence struct {
	typ      *types.Type
	Items    []any
	Loop     *EventLoop
	Disposed bool
}

// NewAsyncSequence creates an IAsyncEnumerable<elem> over items
func NewAsyncSequence(elem *types.Type, loop *EventLoop, items ...any) *AsyncSequence {
	return &AsyncSequence{typ: AsyncSequenceOf(elem), Items: items, Loop: loop}
}

// RuntimeType implements Typed
func (s *AsyncSequence) RuntimeType() *types.Type { return s.typ }

type asyncEnumerator struct {
	typ *types.Type
	seq *AsyncSequence
	pos int
}

func (e *asyncEnumerator) RuntimeType() *types.Type { return e.typ }

// AsyncSequenceOf returns the AsyncSequence<elem> type. Its enumerator
// exposes MoveNextAsync, Current and DisposeAsync.
func AsyncSequenceOf(elem *types.Type) *types.Type {
	listMu.Lock()
	defer listMu.Unlock()
	if t, ok := sequencesOf[elem]; ok {
		return t
	}
	t := &types.Type{Name: "AsyncSequence", Kind: types.KindClass, Base: types.Object, Sealed: true, TypeArgs: []*types.Type{elem}}
	en := &types.Type{Name: "AsyncSequence.Enumerator", Kind: types.KindClass, Base: types.Object, Sealed: true, TypeArgs: []*types.Type{elem}, Interfaces: []*types.Type{IAsyncDisposableType}}
	sequencesOf[elem] = t

	t.DefineMethod("GetAsyncEnumerator", en, nil, func(recv any, _ []any) (any, error) {
		return &asyncEnumerator{typ: en, seq: recv.(*AsyncSequence), pos: -1}, nil
	})
	en.DefineMethod("MoveNextAsync", TaskOf(types.Bool), nil, func(recv any, _ []any) (any, error) {
		e := recv.(*asyncEnumerator)
		ok := e.pos+1 < len(e.seq.Items)
		if ok {
			e.pos++
		}
		if e.seq.Loop != nil {
			return e.seq.Loop.Yield(types.Bool, ok), nil
		}
		return FromResult(types.Bool, ok), nil
	})
	en.DefineProperty("Current", elem, func(recv any, _ []any) (any, error) {
		e := recv.(*asyncEnumerator)
		if e.pos < 0 || e.pos >= len(e.seq.Items) {
			return nil, NewException(InvalidOperationExceptionType, "enumeration has not started or has finished")
		}
		return e.seq.Items[e.pos], nil
	}, nil)
	en.DefineMethod("DisposeAsync", TaskType, nil, func(recv any, _ []any) (any, error) {
		recv.(*asyncEnumerator).seq.Disposed = true
		return CompletedTask(), nil
	})
	return t
}

type monitor struct {
	mu   sync.Mutex
	held map[any]int
}

var locks = &monitor{held: map[any]int{}}

// LockCount returns how many times obj is currently entered
func LockCount(obj any) int {
	locks.mu.Lock()
	defer locks.mu.Unlock()
	return locks.held[obj]
}

// Monitor and helper types
var (
	MonitorType    = types.NewClass("Monitor", nil)
	RuntimeOpsType = types.NewClass("RuntimeOps", nil)

	MonitorEnter    *types.Method
	MonitorExit     *types.Method
	WithByRefMethod *types.Method
	GetSubArray     *types.Method
	FormatMethod    *types.Method
)

func init() {
	MonitorType.Sealed = true
	MonitorEnter = MonitorType.DefineStaticMethod("Enter", types.Void, []*types.Parameter{
		types.Param("obj", types.Object),
		types.RefParam("lockTaken", types.Bool),
	}, func(_ any, args []any) (any, error) {
		if args[0] == nil {
			return nil, NewException(ArgumentExceptionType, "lock object is null")
		}
		locks.mu.Lock()
		locks.held[args[0]]++
		locks.mu.Unlock()
		args[1].(Ref).Set(true)
		return nil, nil
	})
	MonitorExit = MonitorType.DefineStaticMethod("Exit", types.Void, []*types.Parameter{types.Param("obj", types.Object)}, func(_ any, args []any) (any, error) {
		locks.mu.Lock()
		defer locks.mu.Unlock()
		if locks.held[args[0]] == 0 {
			return nil, NewException(InvalidOperationExceptionType, "object synchronization method was called from an unsynchronized block of code")
		}
		locks.held[args[0]]--
		return nil, nil
	})

	RuntimeOpsType.Sealed = true
	WithByRefMethod = &types.Method{
		Name:          "WithByRef",
		DeclaringType: RuntimeOpsType,
		Static:        true,
		TypeParams:    []string{"T", "TResult"},
		Instantiate: func(args []*types.Type) *types.Method {
			t, res := args[0], args[1]
			return &types.Method{
				Name:          "WithByRef",
				DeclaringType: RuntimeOpsType,
				Static:        true,
				Params: []*types.Parameter{
					types.RefParam("value", t),
					types.Param("body", types.DelegateOf(res, types.RefParam("arg", t))),
				},
				Return: res,
				Impl: func(_ any, a []any) (any, error) {
					return a[1].(Delegate).Invoke([]any{a[0]})
				},
			}
		},
	}
	GetSubArray = &types.Method{
		Name:          "GetSubArray",
		DeclaringType: RuntimeOpsType,
		Static:        true,
		TypeParams:    []string{"T"},
		Instantiate: func(args []*types.Type) *types.Method {
			elem := args[0]
			return &types.Method{
				Name:          "GetSubArray",
				DeclaringType: RuntimeOpsType,
				Static:        true,
				Params:        []*types.Parameter{types.Param("array", types.ArrayOf(elem)), types.Param("range", RangeType)},
				Return:        types.ArrayOf(elem),
				Impl: func(_ any, a []any) (any, error) {
					arr, ok := a[0].(*Array)
					if !ok {
						return nil, NewException(NullReferenceExceptionType, "array is null")
					}
					start, n, err := a[1].(Range).GetOffsetAndLength(arr.Len())
					if err != nil {
						return nil, err
					}
					return &Array{Elem: elem, Items: append([]any(nil), arr.Items[start:start+n]...)}, nil
				},
			}
		},
	}
	RuntimeOpsType.Methods = append(RuntimeOpsType.Methods, WithByRefMethod, GetSubArray)
	FormatMethod = RuntimeOpsType.DefineStaticMethod("Format", types.String, []*types.Parameter{
		types.Param("format", types.String),
		types.Param("args", types.ArrayOf(types.Object)),
	}, func(_ any, args []any) (any, error) {
		arr, _ := args[1].(*Array)
		var items []any
		if arr != nil {
			items = arr.Items
		}
		return Format(args[0].(string), items)
	})
}

// Format expands composite format items "{index[,alignment][:format]}"
func Format(format string, args []any) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		switch {
		case c == '{' && i+1 < len(format) && format[i+1] == '{':
			sb.WriteByte('{')
			i++
		case c == '}' && i+1 < len(format) && format[i+1] == '}':
			sb.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(format[i:], '}')
			if end < 0 {
				return "", NewException(ArgumentExceptionType, "unterminated format item")
			}
			item := format[i+1 : i+end]
			i += end
			spec := ""
			if k := strings.IndexByte(item, ':'); k >= 0 {
				item, spec = item[:k], item[k+1:]
			}
			align := 0
			if k := strings.IndexByte(item, ','); k >= 0 {
				a, err := strconv.Atoi(strings.TrimSpace(item[k+1:]))
				if err != nil {
					return "", NewException(ArgumentExceptionType, "invalid alignment "+item[k+1:])
				}
				item, align = item[:k], a
			}
			n, err := strconv.Atoi(strings.TrimSpace(item))
			if err != nil || n < 0 || n >= len(args) {
				return "", NewException(ArgumentExceptionType, "invalid format item {"+item+"}")
			}
			sb.WriteString(pad(FormatValue(args[n], spec), align))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}

// FormatValue formats v with a standard numeric format such as D4, F2 or X
func FormatValue(v any, spec string) string {
	if spec == "" {
		return ToString(v)
	}
	prec := -1
	if len(spec) > 1 {
		if p, err := strconv.Atoi(spec[1:]); err == nil {
			prec = p
		}
	}
	switch spec[0] {
	case 'D', 'd':
		if n, ok := asInt64(v); ok {
			s := strconv.FormatInt(n, 10)
			neg := strings.HasPrefix(s, "-")
			s = strings.TrimPrefix(s, "-")
			for len(s) < prec {
				s = "0" + s
			}
			if neg {
				s = "-" + s
			}
			return s
		}
	case 'X', 'x':
		if n, ok := asInt64(v); ok {
			s := strconv.FormatInt(n, 16)
			if spec[0] == 'X' {
				s = strings.ToUpper(s)
			}
			for len(s) < prec {
				s = "0" + s
			}
			return s
		}
	case 'F', 'f':
		if prec < 0 {
			prec = 2
		}
		switch x := v.(type) {
		case float64:
			return strconv.FormatFloat(x, 'f', prec, 64)
		case int:
			return strconv.FormatFloat(float64(x), 'f', prec, 64)
		case int64:
			return strconv.FormatFloat(float64(x), 'f', prec, 64)
		}
	}
	return ToString(v)
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

func pad(s string, align int) string {
	switch {
	case align > 0:
		for len(s) < align {
			s = " " + s
		}
	case align < 0:
		for len(s) < -align {
			s += " "
		}
	}
	return s
}

// InterpolatedStringHandler builds a string from literal and formatted
// parts
type InterpolatedStringHandler struct {
	sb strings.Builder
}

// RuntimeType implements Typed
func (h *InterpolatedStringHandler) RuntimeType() *types.Type { return InterpolatedStringHandlerType }

// InterpolatedStringHandlerType is DefaultInterpolatedStringHandler
var InterpolatedStringHandlerType = types.NewClass("DefaultInterpolatedStringHandler", nil)

func init() {
	h := InterpolatedStringHandlerType
	h.Sealed = true
	h.DefineConstructor([]*types.Parameter{types.Param("literalLength", types.Int), types.Param("formattedCount", types.Int)}, func(_ any, args []any) (any, error) {
		ish := &InterpolatedStringHandler{}
		ish.sb.Grow(args[0].(int) + 8*args[1].(int))
		return ish, nil
	})
	h.DefineMethod("AppendLiteral", types.Void, []*types.Parameter{types.Param("value", types.String)}, func(recv any, args []any) (any, error) {
		recv.(*InterpolatedStringHandler).sb.WriteString(args[0].(string))
		return nil, nil
	})
	h.DefineMethod("AppendFormatted", types.Void, []*types.Parameter{types.Param("value", types.Object)}, func(recv any, args []any) (any, error) {
		recv.(*InterpolatedStringHandler).sb.WriteString(ToString(args[0]))
		return nil, nil
	})
	h.DefineMethod("AppendFormatted", types.Void, []*types.Parameter{types.Param("value", types.Object), types.Param("format", types.String)}, func(recv any, args []any) (any, error) {
		spec, _ := args[1].(string)
		recv.(*InterpolatedStringHandler).sb.WriteString(FormatValue(args[0], spec))
		return nil, nil
	})
	h.DefineMethod("ToStringAndClear", types.String, nil, func(recv any, _ []any) (any, error) {
		ish := recv.(*InterpolatedStringHandler)
		s := ish.sb.String()
		ish.sb.Reset()
		return s, nil
	})
}
