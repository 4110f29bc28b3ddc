package ext

import (
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/types"
)

// MemberInitializer sets a field or property of the copy made by a With
// expression
type MemberInitializer struct {
	Field      *types.Field
	Property   *types.Property
	Expression ir.Node
}

// InitField creates an initializer for a field
func InitField(f *types.Field, e ir.Node) *MemberInitializer {
	return &MemberInitializer{Field: f, Expression: e}
}

// InitProperty creates an initializer for a property
func InitProperty(p *types.Property, e ir.Node) *MemberInitializer {
	return &MemberInitializer{Property: p, Expression: e}
}

func (m *MemberInitializer) name() string {
	if m.Field != nil {
		return m.Field.Name
	}
	return m.Property.Name
}

func (m *MemberInitializer) memberType() *types.Type {
	if m.Field != nil {
		return m.Field.Type
	}
	return m.Property.Type
}

func (m *MemberInitializer) access(obj ir.Node) ir.Node {
	if m.Field != nil {
		return ir.NewField(obj, m.Field)
	}
	return ir.NewProperty(obj, m.Property)
}

// With copies Object and applies the initializers to the copy. Anonymous
// types are rebuilt through their constructor, value types are copied by
// assignment and reference types are copied by Clone.
type With struct {
	Object       ir.Node
	Initializers []*MemberInitializer
	// Clone is the copy method of reference types that are not anonymous.
	Clone *types.Method
}

// NewWith creates object with { initializers }, binding Clone when the
// object type needs one
func NewWith(object ir.Node, inits ...*MemberInitializer) (*With, error) {
	if object == nil {
		return nil, invalid("with operand is missing")
	}
	var clone *types.Method
	ot := object.Type()
	if !ot.IsValueType() && !ot.Anonymous {
		m, err := types.Binder.LookupMethod(ot, "Clone")
		if err != nil || m.Static {
			return nil, mismatch("%s has no Clone method", ot)
		}
		clone = m
	}
	return NewWithClone(object, clone, inits...)
}

// NewWithClone creates object with { initializers } copying reference
// types through clone
func NewWithClone(object ir.Node, clone *types.Method, inits ...*MemberInitializer) (*With, error) {
	if object == nil {
		return nil, invalid("with operand is missing")
	}
	ot := object.Type()
	switch {
	case ot.IsVoid() || ot.IsNullable():
		return nil, mismatch("with expression on %s", ot)
	case ot.IsValueType() || ot.Anonymous:
		if clone != nil {
			return nil, invalid("%s is copied without a Clone method", ot)
		}
	default:
		if clone == nil {
			return nil, invalid("%s requires a Clone method", ot)
		}
		if clone.Static || len(clone.Params) != 0 || !canConvert(clone.Return, ot) {
			return nil, mismatch("clone method %s must be an instance method without parameters returning %s", clone, ot)
		}
	}
	seen := map[string]bool{}
	for i, m := range inits {
		if m == nil || m.Expression == nil || (m.Field == nil) == (m.Property == nil) {
			return nil, invalid("initializer %d needs exactly one member and a value", i)
		}
		if seen[m.name()] {
			return nil, invalid("member %s is initialized twice", m.name())
		}
		seen[m.name()] = true
		if err := checkInitializer(ot, m); err != nil {
			return nil, err
		}
	}
	return &With{
		Object:       object,
		Initializers: inits,
		Clone:        clone,
	}, nil
}

func checkInitializer(ot *types.Type, m *MemberInitializer) error {
	if m.Field != nil {
		if ot.Field(m.Field.Name) != m.Field {
			return mismatch("%s is not a field of %s", m.Field.Name, ot)
		}
		if m.Field.ReadOnly && !ot.Anonymous {
			return wrapf(ErrNotAssignable, "field %s is read-only", m.Field.Name)
		}
	} else {
		if m.Property.Static || m.Property.IsIndexer() || ot.Property(m.Property.Name) != m.Property {
			return mismatch("%s is not an instance property of %s", m.Property.Name, ot)
		}
		if ot.Anonymous {
			return unsupported("anonymous type members are fields")
		}
		if !m.Property.CanWrite() {
			return wrapf(ErrNotAssignable, "property %s is read-only", m.Property.Name)
		}
	}
	return requireAssignable(m.name(), m.memberType(), m.Expression)
}

// Kind implements Node interface
func (w *With) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (w *With) Type() *types.Type { return w.Object.Type() }

// NodeName implements ir.Named
func (w *With) NodeName() string { return "With" }

// Update returns w with the given children
func (w *With) Update(object ir.Node, inits []*MemberInitializer) *With {
	if object == w.Object && len(inits) == len(w.Initializers) {
		same := true
		for i := range inits {
			if inits[i] != w.Initializers[i] {
				same = false
				break
			}
		}
		if same {
			return w
		}
	}
	return must(NewWithClone(object, w.Clone, inits...))
}

// VisitChildren implements Node interface
func (w *With) VisitChildren(v ir.Visitor) ir.Node {
	obj := ir.Accept(w.Object, v)
	inits := make([]*MemberInitializer, len(w.Initializers))
	for i, m := range w.Initializers {
		e := ir.Accept(m.Expression, v)
		if e == m.Expression {
			inits[i] = m
			continue
		}
		inits[i] = &MemberInitializer{Field: m.Field, Property: m.Property, Expression: e}
	}
	return w.Update(obj, inits)
}

// Reduce implements ir.Extension
func (w *With) Reduce() ir.Node {
	ot := w.Type()
	var t temps
	if ot.Anonymous {
		obj := t.spill(w.Object, "original")
		values := map[*types.Field]ir.Node{}
		for _, m := range w.Initializers {
			values[m.Field] = t.spill(m.Expression, m.Field.Name)
		}
		ctor := ot.Constructors[0]
		args := make([]ir.Node, len(ctor.Assigns))
		for i, f := range ctor.Assigns {
			if v, ok := values[f]; ok {
				args[i] = convertIfNeeded(v, f.Type)
			} else {
				args[i] = ir.NewField(obj, f)
			}
		}
		return t.blockTyped(ot, ir.NewObject(ctor, args...))
	}
	var cp *ir.Variable
	if ot.IsValueType() {
		cp = t.capture(w.Object, "copy")
	} else {
		cp = t.capture(convertIfNeeded(ir.NewCall(w.Object, w.Clone), ot), "copy")
	}
	for _, m := range w.Initializers {
		t.add(ir.NewAssign(m.access(cp), convertIfNeeded(m.Expression, m.memberType())))
	}
	return t.blockTyped(ot, cp)
}
