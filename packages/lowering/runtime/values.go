package runtime

import (
	"fmt"
	"strconv"
	"strings"

	"exprfutures-go/packages/lowering/types"
)

// Object is an instance of a class, struct, tuple or anonymous type.
// Struct values are copied whenever they are stored.
type Object struct {
	Type   *types.Type
	Fields map[string]any
}

// NewObject allocates an object of type t with all fields set to their
// default values
func NewObject(t *types.Type) *Object {
	o := &Object{Type: t, Fields: make(map[string]any)}
	for c := t; c != nil; c = c.Base {
		for _, f := range c.Fields {
			if _, ok := o.Fields[f.Name]; !ok {
				o.Fields[f.Name] = Default(f.Type)
			}
		}
	}
	return o
}

// Clone performs a shallow copy; nested struct fields are copied as well
func (o *Object) Clone() *Object {
	c := &Object{Type: o.Type, Fields: make(map[string]any, len(o.Fields))}
	for k, v := range o.Fields {
		c.Fields[k] = Copy(v)
	}
	return c
}

// RuntimeType implements Typed
func (o *Object) RuntimeType() *types.Type { return o.Type }

func (o *Object) String() string {
	if types.IsTuple(o.Type) {
		parts := make([]string, len(o.Type.Fields))
		for i, f := range o.Type.Fields {
			parts[i] = ToString(o.Fields[f.Name])
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	if len(o.Type.Fields) == 0 {
		return o.Type.String()
	}
	parts := make([]string, 0, len(o.Type.Fields))
	for _, f := range o.Type.Fields {
		parts = append(parts, f.Name+" = "+ToString(o.Fields[f.Name]))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

// Array is a single-dimensional array
type Array struct {
	Elem  *types.Type
	Items []any
}

// NewArray allocates an array of n default elements
func NewArray(elem *types.Type, n int) *Array {
	a := &Array{Elem: elem, Items: make([]any, n)}
	for i := range a.Items {
		a.Items[i] = Default(elem)
	}
	return a
}

// Len implements types.Lengther
func (a *Array) Len() int { return len(a.Items) }

// RuntimeType implements Typed
func (a *Array) RuntimeType() *types.Type { return types.ArrayOf(a.Elem) }

// Typed is implemented by runtime values that know their type
type Typed interface {
	RuntimeType() *types.Type
}

// Ref is a storage location passed to a by-ref parameter
type Ref interface {
	Get() any
	Set(v any)
}

// Cell is a Ref holding its own value
type Cell struct {
	Value any
}

// Get implements Ref
func (c *Cell) Get() any { return c.Value }

// Set implements Ref
func (c *Cell) Set(v any) { c.Value = v }

// Delegate is a callable value
type Delegate interface {
	Invoke(args []any) (any, error)
}

// FuncDelegate adapts a Go function to a Delegate
type FuncDelegate func(args []any) (any, error)

// Invoke implements Delegate
func (f FuncDelegate) Invoke(args []any) (any, error) { return f(args) }

// Default returns the default value of t
func Default(t *types.Type) any {
	if t == nil {
		return nil
	}
	if t.Zero != nil {
		return t.Zero()
	}
	if t.Kind == types.KindStruct {
		return NewObject(t)
	}
	return nil
}

// Copy copies struct objects and returns every other value unchanged
func Copy(v any) any {
	if o, ok := v.(*Object); ok && o.Type.Kind == types.KindStruct {
		return o.Clone()
	}
	return v
}

// TypeOf returns the runtime type of a value
func TypeOf(v any) *types.Type {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return types.Bool
	case int:
		return types.Int
	case int64:
		return types.Long
	case float64:
		return types.Double
	case string:
		return types.String
	case Typed:
		return x.RuntimeType()
	}
	return types.Object
}

// IsInstance reports whether v is a non-null value assignable to t
func IsInstance(v any, t *types.Type) bool {
	if v == nil {
		return false
	}
	if t == nil {
		return true
	}
	rt := TypeOf(v)
	if t.Kind == types.KindNullable {
		t = t.Elem
	}
	return types.IsAssignable(t, rt)
}

// Equals compares two values, structurally for structs
func Equals(a, b any) bool {
	oa, ok1 := a.(*Object)
	ob, ok2 := b.(*Object)
	if ok1 && ok2 && oa.Type.Kind == types.KindStruct {
		if oa.Type != ob.Type {
			return false
		}
		for k, v := range oa.Fields {
			if !Equals(v, ob.Fields[k]) {
				return false
			}
		}
		return true
	}
	defer func() {
		// values of non-comparable dynamic types are never equal
		_ = recover()
	}()
	return a == b
}

// ToString formats a runtime value the way string interpolation does
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
