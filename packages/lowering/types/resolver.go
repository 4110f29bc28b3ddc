package types

import (
	"github.com/pkg/errors"
)

// ErrMemberNotFound is returned when a lookup finds no matching member
var ErrMemberNotFound = errors.New("member not found")

// Resolver is the binding service used by node factories to find the
// members an operation should call
type Resolver interface {
	// LookupMethod finds an instance or static method by name whose
	// parameters accept arguments of the given types
	LookupMethod(t *Type, name string, args ...*Type) (*Method, error)
	// LookupProperty finds a non-indexed property by name
	LookupProperty(t *Type, name string) (*Property, error)
	// LookupIndexer finds an indexer accepting arguments of the given types
	LookupIndexer(t *Type, args ...*Type) (*Property, error)
	// LookupConstructor finds a constructor accepting the given argument types
	LookupConstructor(t *Type, args ...*Type) (*Constructor, error)
	// IsAssignable reports whether a value of type from can be stored in a
	// location of type to without an explicit conversion
	IsAssignable(to, from *Type) bool
	// Instantiate closes a generic method definition over type arguments
	Instantiate(m *Method, typeArgs ...*Type) (*Method, error)
}

// Binder is the default Resolver backed by the static symbol tables in Type
var Binder Resolver = symbolTable{}

type symbolTable struct{}

func (symbolTable) LookupMethod(t *Type, name string, args ...*Type) (*Method, error) {
	for _, c := range searchOrder(t) {
		for _, m := range c.Methods {
			if m.Name == name && paramsAccept(m.Params, args) {
				return m, nil
			}
		}
	}
	return nil, errors.Wrapf(ErrMemberNotFound, "method %s.%s(%s)", t, name, typeList(args))
}

func (symbolTable) LookupProperty(t *Type, name string) (*Property, error) {
	if p := t.Property(name); p != nil {
		return p, nil
	}
	return nil, errors.Wrapf(ErrMemberNotFound, "property %s.%s", t, name)
}

func (symbolTable) LookupIndexer(t *Type, args ...*Type) (*Property, error) {
	for _, c := range searchOrder(t) {
		for _, p := range c.Properties {
			if p.IsIndexer() && paramsAccept(p.Params, args) {
				return p, nil
			}
		}
	}
	return nil, errors.Wrapf(ErrMemberNotFound, "indexer %s[%s]", t, typeList(args))
}

func (symbolTable) LookupConstructor(t *Type, args ...*Type) (*Constructor, error) {
	for _, c := range t.Constructors {
		if paramsAccept(c.Params, args) {
			return c, nil
		}
	}
	return nil, errors.Wrapf(ErrMemberNotFound, "constructor %s(%s)", t, typeList(args))
}

func (symbolTable) IsAssignable(to, from *Type) bool {
	return IsAssignable(to, from)
}

func (symbolTable) Instantiate(m *Method, typeArgs ...*Type) (*Method, error) {
	if !m.IsGenericDefinition() {
		return nil, errors.Errorf("method %s is not a generic method definition", m)
	}
	if len(typeArgs) != len(m.TypeParams) {
		return nil, errors.Errorf("method %s expects %d type arguments, got %d", m, len(m.TypeParams), len(typeArgs))
	}
	if m.Instantiate == nil {
		return nil, errors.Errorf("method %s cannot be instantiated", m)
	}
	return m.Instantiate(typeArgs), nil
}

// IsAssignable reports whether from is identical to to, is a reference or
// boxing conversion to it, or derives from or implements it
func IsAssignable(to, from *Type) bool {
	if to == from {
		return true
	}
	if to == nil || from == nil {
		return false
	}
	if to.Kind == KindObject {
		return from.Kind != KindVoid
	}
	switch to.Kind {
	case KindClass:
		return from.DerivesFrom(to)
	case KindInterface:
		return from.Implements(to)
	}
	return false
}

func searchOrder(t *Type) []*Type {
	var res []*Type
	for c := t; c != nil; c = c.Base {
		res = append(res, c)
	}
	return append(res, t.AllInterfaces()...)
}

func paramsAccept(params []*Parameter, args []*Type) bool {
	if len(params) != len(args) {
		return false
	}
	for i, p := range params {
		if args[i] == nil {
			if !p.Type.CanBeNull() {
				return false
			}
			continue
		}
		if !IsAssignable(p.Type, args[i]) {
			return false
		}
	}
	return true
}

func typeList(ts []*Type) string {
	s := ""
	for i, t := range ts {
		if i > 0 {
			s += ", "
		}
		s += t.String()
	}
	return s
}
