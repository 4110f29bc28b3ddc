package types

import (
	"fmt"
	"strings"
)

// Kind classifies a Type
type Kind int

const (
	KindVoid Kind = iota
	KindBool
	KindInt
	KindLong
	KindDouble
	KindString
	KindObject
	KindStruct
	KindClass
	KindInterface
	KindNullable
	KindArray
	KindDelegate
)

var kindNames = map[Kind]string{
	KindVoid:      "void",
	KindBool:      "bool",
	KindInt:       "int",
	KindLong:      "long",
	KindDouble:    "double",
	KindString:    "string",
	KindObject:    "object",
	KindStruct:    "struct",
	KindClass:     "class",
	KindInterface: "interface",
	KindNullable:  "nullable",
	KindArray:     "array",
	KindDelegate:  "delegate",
}

// String returns the kind name
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Func is the executable body of a method, accessor or constructor.
// Constructors receive a nil receiver. Arguments bound to by-ref parameters
// are passed as Ref values.
type Func func(recv any, args []any) (any, error)

// Type describes a type known to the binder. Types are built once and are
// treated as immutable after construction.
type Type struct {
	Name       string
	Kind       Kind
	Elem       *Type
	Base       *Type
	Interfaces []*Type
	Sealed     bool
	Anonymous  bool
	TypeArgs   []*Type

	Fields       []*Field
	Properties   []*Property
	Methods      []*Method
	Constructors []*Constructor
	Events       []*Event

	// Invoke is the signature of a delegate type.
	Invoke *Method

	// Zero produces the default value of value types that are not
	// represented by an object with fields.
	Zero func() any
}

// NewType creates a named type of the given kind
func NewType(name string, kind Kind) *Type {
	return &Type{Name: name, Kind: kind}
}

// NewStruct creates a value type
func NewStruct(name string) *Type {
	return &Type{Name: name, Kind: KindStruct, Sealed: true}
}

// NewClass creates a reference type deriving from base (object when nil)
func NewClass(name string, base *Type) *Type {
	if base == nil {
		base = Object
	}
	return &Type{Name: name, Kind: KindClass, Base: base}
}

// NewInterface creates an interface type
func NewInterface(name string) *Type {
	return &Type{Name: name, Kind: KindInterface}
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case KindNullable:
		return t.Elem.String() + "?"
	case KindArray:
		return t.Elem.String() + "[]"
	}
	if len(t.TypeArgs) > 0 && !strings.Contains(t.Name, "<") {
		args := make([]string, len(t.TypeArgs))
		for i, a := range t.TypeArgs {
			args[i] = a.String()
		}
		return t.Name + "<" + strings.Join(args, ", ") + ">"
	}
	return t.Name
}

// IsValueType reports whether values of t are copied on assignment
func (t *Type) IsValueType() bool {
	switch t.Kind {
	case KindBool, KindInt, KindLong, KindDouble, KindStruct, KindNullable:
		return true
	}
	return false
}

// IsNullable reports whether t is a nullable value type
func (t *Type) IsNullable() bool {
	return t.Kind == KindNullable
}

// CanBeNull reports whether the null value is a valid value of t
func (t *Type) CanBeNull() bool {
	return t.Kind == KindNullable || (!t.IsValueType() && t.Kind != KindVoid)
}

// NonNullable strips a nullable wrapper
func (t *Type) NonNullable() *Type {
	if t.Kind == KindNullable {
		return t.Elem
	}
	return t
}

// IsVoid reports whether t is the void type
func (t *Type) IsVoid() bool {
	return t == nil || t.Kind == KindVoid
}

// IsIntegral reports whether t is int or long
func (t *Type) IsIntegral() bool {
	return t.Kind == KindInt || t.Kind == KindLong
}

// IsNumeric reports whether t supports arithmetic
func (t *Type) IsNumeric() bool {
	return t.Kind == KindInt || t.Kind == KindLong || t.Kind == KindDouble
}

// Field finds a field declared on t or its base types
func (t *Type) Field(name string) *Field {
	for c := t; c != nil; c = c.Base {
		for _, f := range c.Fields {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// Property finds a non-indexed property declared on t, its base types or
// its interfaces
func (t *Type) Property(name string) *Property {
	for c := t; c != nil; c = c.Base {
		for _, p := range c.Properties {
			if p.Name == name && len(p.Params) == 0 {
				return p
			}
		}
	}
	for _, itf := range t.AllInterfaces() {
		for _, p := range itf.Properties {
			if p.Name == name && len(p.Params) == 0 {
				return p
			}
		}
	}
	return nil
}

// Event finds an event declared on t or its base types
func (t *Type) Event(name string) *Event {
	for c := t; c != nil; c = c.Base {
		for _, e := range c.Events {
			if e.Name == name {
				return e
			}
		}
	}
	return nil
}

// AllInterfaces returns every interface implemented by t, transitively
func (t *Type) AllInterfaces() []*Type {
	var res []*Type
	seen := make(map[*Type]bool)
	var walk func(*Type)
	walk = func(x *Type) {
		for _, itf := range x.Interfaces {
			if !seen[itf] {
				seen[itf] = true
				res = append(res, itf)
				walk(itf)
			}
		}
	}
	for c := t; c != nil; c = c.Base {
		walk(c)
	}
	return res
}

// DerivesFrom reports whether t is base or inherits from it
func (t *Type) DerivesFrom(base *Type) bool {
	for c := t; c != nil; c = c.Base {
		if c == base {
			return true
		}
	}
	return false
}

// Implements reports whether t implements the interface itf
func (t *Type) Implements(itf *Type) bool {
	if t == itf {
		return true
	}
	for _, i := range t.AllInterfaces() {
		if i == itf {
			return true
		}
	}
	return false
}

// Parameter describes a formal parameter
type Parameter struct {
	Name  string
	Type  *Type
	ByRef bool
}

// Param creates a by-value parameter
func Param(name string, typ *Type) *Parameter {
	return &Parameter{Name: name, Type: typ}
}

// RefParam creates a by-reference parameter
func RefParam(name string, typ *Type) *Parameter {
	return &Parameter{Name: name, Type: typ, ByRef: true}
}

// Field describes an instance field
type Field struct {
	Name          string
	Type          *Type
	DeclaringType *Type
	ReadOnly      bool
}

// Property describes a property or, when Params is non-empty, an indexer
type Property struct {
	Name          string
	Type          *Type
	DeclaringType *Type
	Params        []*Parameter
	Static        bool
	Get           *Method
	Set           *Method
}

// CanRead reports whether the property has a getter
func (p *Property) CanRead() bool { return p.Get != nil }

// CanWrite reports whether the property has a setter
func (p *Property) CanWrite() bool { return p.Set != nil }

// IsIndexer reports whether the property takes index arguments
func (p *Property) IsIndexer() bool { return len(p.Params) > 0 }

// Method describes a method, including property accessors
type Method struct {
	Name          string
	DeclaringType *Type
	Params        []*Parameter
	Return        *Type
	Static        bool
	Virtual       bool
	Impl          Func

	// TypeParams names the generic parameters of an uninstantiated method;
	// Instantiate builds the closed method for concrete type arguments.
	TypeParams  []string
	Instantiate func(typeArgs []*Type) *Method
}

func (m *Method) String() string {
	if m.DeclaringType != nil {
		return m.DeclaringType.String() + "." + m.Name
	}
	return m.Name
}

// IsGenericDefinition reports whether m still needs type arguments
func (m *Method) IsGenericDefinition() bool {
	return len(m.TypeParams) > 0
}

// Constructor describes an instance constructor. When Impl is nil, the
// constructor creates an object and stores argument i into Assigns[i].
type Constructor struct {
	DeclaringType *Type
	Params        []*Parameter
	Assigns       []*Field
	Impl          Func
}

// Event describes an event with add/remove accessors
type Event struct {
	Name          string
	Type          *Type
	DeclaringType *Type
	Add           *Method
	Remove        *Method
}

// DefineField adds a field to t
func (t *Type) DefineField(name string, typ *Type) *Field {
	f := &Field{Name: name, Type: typ, DeclaringType: t}
	t.Fields = append(t.Fields, f)
	return f
}

// DefineMethod adds an instance method to t
func (t *Type) DefineMethod(name string, ret *Type, params []*Parameter, impl Func) *Method {
	m := &Method{Name: name, DeclaringType: t, Params: params, Return: orVoid(ret), Impl: impl}
	t.Methods = append(t.Methods, m)
	return m
}

// DefineStaticMethod adds a static method to t
func (t *Type) DefineStaticMethod(name string, ret *Type, params []*Parameter, impl Func) *Method {
	m := t.DefineMethod(name, ret, params, impl)
	m.Static = true
	return m
}

// DefineProperty adds a property to t. A nil getter or setter leaves the
// corresponding accessor out.
func (t *Type) DefineProperty(name string, typ *Type, get Func, set Func) *Property {
	p := &Property{Name: name, Type: typ, DeclaringType: t}
	if get != nil {
		p.Get = &Method{Name: "get_" + name, DeclaringType: t, Return: typ, Impl: get}
	}
	if set != nil {
		p.Set = &Method{Name: "set_" + name, DeclaringType: t, Params: []*Parameter{Param("value", typ)}, Return: Void, Impl: set}
	}
	t.Properties = append(t.Properties, p)
	return p
}

// DefineAbstractProperty adds a property whose accessors are dispatched on
// the runtime type of the receiver
func (t *Type) DefineAbstractProperty(name string, typ *Type, writable bool) *Property {
	p := &Property{Name: name, Type: typ, DeclaringType: t}
	p.Get = &Method{Name: "get_" + name, DeclaringType: t, Return: typ, Virtual: true}
	if writable {
		p.Set = &Method{Name: "set_" + name, DeclaringType: t, Params: []*Parameter{Param("value", typ)}, Return: Void, Virtual: true}
	}
	t.Properties = append(t.Properties, p)
	return p
}

// DefineIndexer adds an indexer named Item (or name, when given)
func (t *Type) DefineIndexer(name string, typ *Type, params []*Parameter, get Func, set Func) *Property {
	if name == "" {
		name = "Item"
	}
	p := &Property{Name: name, Type: typ, DeclaringType: t, Params: params}
	if get != nil {
		p.Get = &Method{Name: "get_" + name, DeclaringType: t, Params: params, Return: typ, Impl: get}
	}
	if set != nil {
		setParams := append(append([]*Parameter{}, params...), Param("value", typ))
		p.Set = &Method{Name: "set_" + name, DeclaringType: t, Params: setParams, Return: Void, Impl: set}
	}
	t.Properties = append(t.Properties, p)
	return p
}

// DefineConstructor adds a constructor with an explicit implementation
func (t *Type) DefineConstructor(params []*Parameter, impl Func) *Constructor {
	c := &Constructor{DeclaringType: t, Params: params, Impl: impl}
	t.Constructors = append(t.Constructors, c)
	return c
}

// DefineRecordConstructor adds a constructor assigning each argument to
// the field of the same position
func (t *Type) DefineRecordConstructor(fields ...*Field) *Constructor {
	params := make([]*Parameter, len(fields))
	for i, f := range fields {
		params[i] = Param(strings.ToLower(f.Name[:1])+f.Name[1:], f.Type)
	}
	c := &Constructor{DeclaringType: t, Params: params, Assigns: fields}
	t.Constructors = append(t.Constructors, c)
	return c
}

// DefineEvent adds an event with add and remove accessors
func (t *Type) DefineEvent(name string, delegate *Type, add Func, remove Func) *Event {
	e := &Event{Name: name, Type: delegate, DeclaringType: t}
	e.Add = t.DefineMethod("add_"+name, Void, []*Parameter{Param("value", delegate)}, add)
	e.Remove = t.DefineMethod("remove_"+name, Void, []*Parameter{Param("value", delegate)}, remove)
	t.Events = append(t.Events, e)
	return e
}

func orVoid(t *Type) *Type {
	if t == nil {
		return Void
	}
	return t
}
