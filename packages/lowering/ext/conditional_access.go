package ext

import (
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/types"
)

// ConditionalReceiver stands for the non-null receiver inside the
// WhenNotNull expression of a ConditionalAccess. It is matched by
// identity.
type ConditionalReceiver struct {
	typ *types.Type
}

// NewConditionalReceiver creates a placeholder of the non-nullable type t
func NewConditionalReceiver(t *types.Type) *ConditionalReceiver {
	return &ConditionalReceiver{typ: t.NonNullable()}
}

// Kind implements Node interface
func (r *ConditionalReceiver) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (r *ConditionalReceiver) Type() *types.Type { return r.typ }

// NodeName implements ir.Named
func (r *ConditionalReceiver) NodeName() string { return "ConditionalReceiver" }

// VisitChildren implements Node interface
func (r *ConditionalReceiver) VisitChildren(ir.Visitor) ir.Node { return r }

// Reduce panics: the receiver is replaced when its ConditionalAccess
// reduces
func (r *ConditionalReceiver) Reduce() ir.Node {
	panic("conditional receiver used outside of its conditional access")
}

// ConditionalAccess evaluates WhenNotNull with Placeholder bound to
// Receiver when Receiver is not null, and yields null otherwise
type ConditionalAccess struct {
	Receiver    ir.Node
	Placeholder *ConditionalReceiver
	WhenNotNull ir.Node
}

// NewConditionalAccess creates receiver?.whenNotNull
func NewConditionalAccess(receiver ir.Node, placeholder *ConditionalReceiver, whenNotNull ir.Node) (*ConditionalAccess, error) {
	if receiver == nil || placeholder == nil || whenNotNull == nil {
		return nil, invalid("conditional access requires a receiver, a placeholder and an access")
	}
	rt := receiver.Type()
	if !rt.CanBeNull() {
		return nil, mismatch("conditional access on %s, which cannot be null", rt)
	}
	if placeholder.Type() != rt.NonNullable() {
		return nil, mismatch("placeholder of type %s does not match receiver %s", placeholder.Type(), rt)
	}
	return &ConditionalAccess{
		Receiver:    receiver,
		Placeholder: placeholder,
		WhenNotNull: whenNotNull,
	}, nil
}

// Kind implements Node interface
func (c *ConditionalAccess) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface. Non-nullable value types are lifted.
func (c *ConditionalAccess) Type() *types.Type {
	t := c.WhenNotNull.Type()
	if t.IsValueType() && !t.IsNullable() {
		return types.NullableOf(t)
	}
	return t
}

// NodeName implements ir.Named
func (c *ConditionalAccess) NodeName() string { return "ConditionalAccess" }

// Update returns c with the given children
func (c *ConditionalAccess) Update(receiver ir.Node, whenNotNull ir.Node) *ConditionalAccess {
	if receiver == c.Receiver && whenNotNull == c.WhenNotNull {
		return c
	}
	return must(NewConditionalAccess(receiver, c.Placeholder, whenNotNull))
}

// VisitChildren implements Node interface
func (c *ConditionalAccess) VisitChildren(v ir.Visitor) ir.Node {
	return c.Update(ir.Accept(c.Receiver, v), ir.Accept(c.WhenNotNull, v))
}

// Reduce implements ir.Extension
func (c *ConditionalAccess) Reduce() ir.Node {
	var t temps
	recv := t.spill(c.Receiver, "receiver")
	rt := recv.Type()
	var test, value ir.Node
	if rt.IsNullable() {
		test = ir.NewProperty(recv, rt.Property("HasValue"))
		value = ir.NewProperty(recv, rt.Property("Value"))
	} else {
		test = ir.IsNotNull(recv)
		value = recv
	}
	body := ir.Transform(c.WhenNotNull, func(n ir.Node) ir.Node {
		if n == c.Placeholder {
			return value
		}
		return n
	})
	typ := c.Type()
	if typ.IsVoid() {
		return t.blockTyped(types.Void, ir.IfThen(test, body))
	}
	return t.blockTyped(typ, ir.NewConditional(test, convertIfNeeded(body, typ), nil, typ))
}

// NewConditionalMember creates receiver?.name for a field or property
func NewConditionalMember(receiver ir.Node, name string) (*ConditionalAccess, error) {
	if receiver == nil {
		return nil, invalid("receiver is missing")
	}
	p := NewConditionalReceiver(receiver.Type())
	var access ir.Node
	if f := p.Type().Field(name); f != nil {
		access = ir.NewField(p, f)
	} else if prop, err := types.Binder.LookupProperty(p.Type(), name); err == nil && !prop.Static && !prop.IsIndexer() {
		if !prop.CanRead() {
			return nil, mismatch("property %s is write-only", name)
		}
		access = ir.NewProperty(p, prop)
	} else {
		return nil, mismatch("%s has no field or property %s", p.Type(), name)
	}
	return NewConditionalAccess(receiver, p, access)
}

// NewConditionalCall creates receiver?.method(args)
func NewConditionalCall(receiver ir.Node, method *types.Method, args ...*ParameterAssignment) (*ConditionalAccess, error) {
	if receiver == nil {
		return nil, invalid("receiver is missing")
	}
	p := NewConditionalReceiver(receiver.Type())
	call, err := NewCall(p, method, args...)
	if err != nil {
		return nil, err
	}
	return NewConditionalAccess(receiver, p, call)
}

// NewConditionalIndex creates receiver?[args]
func NewConditionalIndex(receiver ir.Node, indexer *types.Property, args ...*ParameterAssignment) (*ConditionalAccess, error) {
	if receiver == nil {
		return nil, invalid("receiver is missing")
	}
	p := NewConditionalReceiver(receiver.Type())
	index, err := NewIndex(p, indexer, args...)
	if err != nil {
		return nil, err
	}
	return NewConditionalAccess(receiver, p, index)
}

// NewConditionalInvoke creates receiver?.Invoke(args)
func NewConditionalInvoke(receiver ir.Node, args ...*ParameterAssignment) (*ConditionalAccess, error) {
	if receiver == nil {
		return nil, invalid("receiver is missing")
	}
	p := NewConditionalReceiver(receiver.Type())
	invoke, err := NewInvoke(p, args...)
	if err != nil {
		return nil, err
	}
	return NewConditionalAccess(receiver, p, invoke)
}
