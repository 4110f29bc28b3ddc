package types

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// Predefined types
var (
	Void   = &Type{Name: "void", Kind: KindVoid}
	Object = &Type{Name: "object", Kind: KindObject}
	Bool   = &Type{Name: "bool", Kind: KindBool, Base: Object, Sealed: true, Zero: func() any { return false }}
	Int    = &Type{Name: "int", Kind: KindInt, Base: Object, Sealed: true, Zero: func() any { return 0 }}
	Long   = &Type{Name: "long", Kind: KindLong, Base: Object, Sealed: true, Zero: func() any { return int64(0) }}
	Double = &Type{Name: "double", Kind: KindDouble, Base: Object, Sealed: true, Zero: func() any { return float64(0) }}
	String = &Type{Name: "string", Kind: KindString, Base: Object, Sealed: true}
)

// ErrNoValue is returned when reading the value of an empty nullable
var ErrNoValue = errors.New("nullable object must have a value")

// Lengther is implemented by runtime values exposing a Length
type Lengther interface {
	Len() int
}

var (
	StringLength    *Property
	StringChars     *Property
	StringSubstring *Method
)

func init() {
	StringLength = String.DefineProperty("Length", Int, func(recv any, _ []any) (any, error) {
		return utf8.RuneCountInString(recv.(string)), nil
	}, nil)
	StringChars = String.DefineIndexer("Chars", String, []*Parameter{Param("index", Int)}, func(recv any, args []any) (any, error) {
		runes := []rune(recv.(string))
		i := args[0].(int)
		if i < 0 || i >= len(runes) {
			return nil, fmt.Errorf("index %d was outside the bounds of the string", i)
		}
		return string(runes[i]), nil
	}, nil)
	StringSubstring = String.DefineMethod("Substring", String, []*Parameter{Param("startIndex", Int), Param("length", Int)}, func(recv any, args []any) (any, error) {
		runes := []rune(recv.(string))
		start, n := args[0].(int), args[1].(int)
		if start < 0 || n < 0 || start+n > len(runes) {
			return nil, fmt.Errorf("substring [%d, %d) out of range", start, start+n)
		}
		return string(runes[start : start+n]), nil
	})
	String.DefineMethod("ToString", String, nil, func(recv any, _ []any) (any, error) {
		return recv, nil
	})
}

var (
	cacheMu   sync.Mutex
	nullables = map[*Type]*Type{}
	arrays    = map[*Type]*Type{}
	delegates = map[string]*Type{}
	tuples    = map[string]*Type{}
)

// ZeroOf returns the default value of a primitive type, or nil when the
// default is a reference or needs an object allocation
func ZeroOf(t *Type) any {
	if t.Zero != nil {
		return t.Zero()
	}
	return nil
}

// NullableOf returns the nullable type wrapping the value type t
func NullableOf(t *Type) *Type {
	if t.Kind == KindNullable {
		return t
	}
	if !t.IsValueType() {
		panic(fmt.Sprintf("NullableOf: %s is not a value type", t))
	}
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if n, ok := nullables[t]; ok {
		return n
	}
	n := &Type{Name: "Nullable", Kind: KindNullable, Elem: t, Base: Object, Sealed: true, TypeArgs: []*Type{t}}
	n.DefineProperty("HasValue", Bool, func(recv any, _ []any) (any, error) {
		return recv != nil, nil
	}, nil)
	n.DefineProperty("Value", t, func(recv any, _ []any) (any, error) {
		if recv == nil {
			return nil, ErrNoValue
		}
		return recv, nil
	}, nil)
	n.DefineMethod("GetValueOrDefault", t, nil, func(recv any, _ []any) (any, error) {
		if recv == nil {
			return ZeroOf(t), nil
		}
		return recv, nil
	})
	nullables[t] = n
	return n
}

// ArrayOf returns the single-dimensional array type of elem
func ArrayOf(elem *Type) *Type {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if a, ok := arrays[elem]; ok {
		return a
	}
	a := &Type{Name: "Array", Kind: KindArray, Elem: elem, Base: Object, Sealed: true}
	a.DefineProperty("Length", Int, func(recv any, _ []any) (any, error) {
		return recv.(Lengther).Len(), nil
	}, nil)
	arrays[elem] = a
	return a
}

// DelegateOf returns the delegate type with the given signature
func DelegateOf(ret *Type, params ...*Parameter) *Type {
	ret = orVoid(ret)
	var sb strings.Builder
	sb.WriteString(ret.String())
	sb.WriteString("(")
	for i, p := range params {
		if i > 0 {
			sb.WriteString(",")
		}
		if p.ByRef {
			sb.WriteString("ref ")
		}
		sb.WriteString(p.Type.String())
	}
	sb.WriteString(")")
	key := sb.String()

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if d, ok := delegates[key]; ok {
		return d
	}
	name := "Func"
	if ret.IsVoid() {
		name = "Action"
	}
	d := &Type{Name: name + key, Kind: KindDelegate, Base: Object, Sealed: true}
	d.Invoke = &Method{Name: "Invoke", DeclaringType: d, Params: params, Return: ret, Virtual: true}
	delegates[key] = d
	return d
}

// FuncOf returns the delegate type returning ret and taking by-value
// parameters of the given types
func FuncOf(ret *Type, params ...*Type) *Type {
	ps := make([]*Parameter, len(params))
	for i, p := range params {
		ps[i] = Param(fmt.Sprintf("arg%d", i), p)
	}
	return DelegateOf(ret, ps...)
}

// ActionOf returns the void delegate type taking the given parameters
func ActionOf(params ...*Type) *Type {
	return FuncOf(Void, params...)
}

// TupleOf returns the value tuple type with the given element types
func TupleOf(elems ...*Type) *Type {
	names := make([]string, len(elems))
	for i, e := range elems {
		names[i] = e.String()
	}
	key := strings.Join(names, ", ")

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if t, ok := tuples[key]; ok {
		return t
	}
	t := &Type{Name: "(" + key + ")", Kind: KindStruct, Base: Object, Sealed: true, TypeArgs: elems}
	fields := make([]*Field, len(elems))
	for i, e := range elems {
		fields[i] = t.DefineField(fmt.Sprintf("Item%d", i+1), e)
	}
	t.DefineRecordConstructor(fields...)
	tuples[key] = t
	return t
}

// IsTuple reports whether t is a value tuple type
func IsTuple(t *Type) bool {
	return t.Kind == KindStruct && strings.HasPrefix(t.Name, "(") && len(t.Fields) == len(t.TypeArgs)
}

// NewAnonymousType creates an anonymous type whose read-only fields are
// initialized by a single constructor in declaration order
func NewAnonymousType(name string, fields map[string]*Type, order []string) *Type {
	t := &Type{Name: name, Kind: KindClass, Base: Object, Sealed: true, Anonymous: true}
	fs := make([]*Field, len(order))
	for i, n := range order {
		fs[i] = t.DefineField(n, fields[n])
		fs[i].ReadOnly = true
	}
	t.DefineRecordConstructor(fs...)
	return t
}
