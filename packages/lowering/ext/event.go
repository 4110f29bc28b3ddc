package ext

import (
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/types"
)

// EventAssign subscribes (+=) or unsubscribes (-=) Handler to an event
type EventAssign struct {
	Object  ir.Node
	Event   *types.Event
	Handler ir.Node
	Add     bool
}

// NewEventAssign creates object.event += handler, or -= when add is false.
// Object is nil for static events.
func NewEventAssign(object ir.Node, event *types.Event, handler ir.Node, add bool) (*EventAssign, error) {
	if event == nil {
		return nil, invalid("event is missing")
	}
	accessor := event.Remove
	if add {
		accessor = event.Add
	}
	if accessor == nil {
		return nil, mismatch("event %s has no accessor for this operation", event.Name)
	}
	switch {
	case accessor.Static && object != nil:
		return nil, invalid("static event %s accessed through an instance", event.Name)
	case !accessor.Static && object == nil:
		return nil, invalid("instance event %s requires an object", event.Name)
	case object != nil && !isAssignable(event.DeclaringType, object.Type()):
		return nil, mismatch("event %s is not a member of %s", event.Name, object.Type())
	}
	if err := requireAssignable("event handler", event.Type, handler); err != nil {
		return nil, err
	}
	return &EventAssign{
		Object:  object,
		Event:   event,
		Handler: handler,
		Add:     add,
	}, nil
}

// Kind implements Node interface
func (e *EventAssign) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (e *EventAssign) Type() *types.Type { return types.Void }

// NodeName implements ir.Named
func (e *EventAssign) NodeName() string {
	if e.Add {
		return "AddEventHandler"
	}
	return "RemoveEventHandler"
}

// Update returns e with the given children
func (e *EventAssign) Update(object, handler ir.Node) *EventAssign {
	if object == e.Object && handler == e.Handler {
		return e
	}
	return must(NewEventAssign(object, e.Event, handler, e.Add))
}

// VisitChildren implements Node interface
func (e *EventAssign) VisitChildren(v ir.Visitor) ir.Node {
	return e.Update(ir.Accept(e.Object, v), ir.Accept(e.Handler, v))
}

// Reduce implements ir.Extension
func (e *EventAssign) Reduce() ir.Node {
	accessor := e.Event.Remove
	if e.Add {
		accessor = e.Event.Add
	}
	return ir.NewCall(e.Object, accessor, convertIfNeeded(e.Handler, e.Event.Type))
}
