package ext

import (
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/types"
)

// CatchBlock is a catch clause whose Variables are in scope in both the
// filter and the body, such as variables declared by patterns in the
// filter
type CatchBlock struct {
	Variables []*ir.Variable
	Test      *types.Type
	Variable  *ir.Variable
	Filter    ir.Node
	Body      ir.Node
}

// NewCatchBlock creates a catch clause. variable, filter and vars may be
// nil.
func NewCatchBlock(vars []*ir.Variable, test *types.Type, variable *ir.Variable, filter, body ir.Node) (*CatchBlock, error) {
	if test == nil || body == nil {
		return nil, invalid("catch block requires an exception type and a body")
	}
	if variable != nil && variable.Type() != test {
		return nil, mismatch("catch variable of type %s does not match %s", variable.Type(), test)
	}
	if filter != nil {
		if err := requireBool("catch filter", filter); err != nil {
			return nil, err
		}
	}
	if err := checkUniqueVariables(vars); err != nil {
		return nil, err
	}
	for _, v := range vars {
		if v == variable {
			return nil, duplicateVariable(v)
		}
	}
	return &CatchBlock{
		Variables: vars,
		Test:      test,
		Variable:  variable,
		Filter:    filter,
		Body:      body,
	}, nil
}

// Update returns c with the given children
func (c *CatchBlock) Update(vars []*ir.Variable, variable *ir.Variable, filter, body ir.Node) *CatchBlock {
	if sameVariables(vars, c.Variables) && variable == c.Variable && filter == c.Filter && body == c.Body {
		return c
	}
	return must(NewCatchBlock(vars, c.Test, variable, filter, body))
}

func (c *CatchBlock) visit(v ir.Visitor) *CatchBlock {
	return c.Update(visitVariables(v, c.Variables), visitVariable(v, c.Variable), ir.Accept(c.Filter, v), ir.Accept(c.Body, v))
}

// Try is a protected region with extended catch clauses
type Try struct {
	Body     ir.Node
	Handlers []*CatchBlock
	Finally  ir.Node
	Fault    ir.Node
	typ      *types.Type
}

// NewTry creates a try statement of type t (the body type when nil)
func NewTry(t *types.Type, body ir.Node, finally, fault ir.Node, handlers ...*CatchBlock) (*Try, error) {
	if body == nil {
		return nil, invalid("try body is missing")
	}
	if t == nil {
		t = body.Type()
	}
	switch {
	case fault != nil && (finally != nil || len(handlers) > 0):
		return nil, invalid("a fault block cannot be combined with catch or finally")
	case fault == nil && finally == nil && len(handlers) == 0:
		return nil, invalid("try requires a catch, finally or fault block")
	}
	if !t.IsVoid() {
		if err := requireAssignable("try body", t, body); err != nil {
			return nil, err
		}
	}
	for i, h := range handlers {
		if h == nil {
			return nil, invalid("handler %d is nil", i)
		}
		if !t.IsVoid() {
			if err := requireAssignable("catch body", t, h.Body); err != nil {
				return nil, err
			}
		}
	}
	return &Try{
		Body:     body,
		Handlers: handlers,
		Finally:  finally,
		Fault:    fault,
		typ:      t,
	}, nil
}

// Kind implements Node interface
func (t *Try) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (t *Try) Type() *types.Type { return t.typ }

// NodeName implements ir.Named
func (t *Try) NodeName() string { return "Try" }

// AwaitForbiddenIn returns the catch filters
func (t *Try) AwaitForbiddenIn() []ir.Node {
	var res []ir.Node
	for _, h := range t.Handlers {
		if h.Filter != nil {
			res = append(res, h.Filter)
		}
	}
	return res
}

// Update returns t with the given children
func (t *Try) Update(body ir.Node, handlers []*CatchBlock, finally, fault ir.Node) *Try {
	if body == t.Body && finally == t.Finally && fault == t.Fault && len(handlers) == len(t.Handlers) {
		same := true
		for i := range handlers {
			if handlers[i] != t.Handlers[i] {
				same = false
				break
			}
		}
		if same {
			return t
		}
	}
	return must(NewTry(t.typ, body, finally, fault, handlers...))
}

// VisitChildren implements Node interface
func (t *Try) VisitChildren(v ir.Visitor) ir.Node {
	body := ir.Accept(t.Body, v)
	handlers := make([]*CatchBlock, len(t.Handlers))
	for i, h := range t.Handlers {
		handlers[i] = h.visit(v)
	}
	return t.Update(body, handlers, ir.Accept(t.Finally, v), ir.Accept(t.Fault, v))
}

// Reduce implements ir.Extension. Catch clause variables are hoisted into
// an enclosing block; each clause gets its own copies so clauses never
// share storage.
func (t *Try) Reduce() ir.Node {
	var hoisted []*ir.Variable
	handlers := make([]*ir.CatchBlock, len(t.Handlers))
	for i, h := range t.Handlers {
		m := make(map[*ir.Variable]ir.Node, len(h.Variables))
		for _, v := range h.Variables {
			fresh := ir.NewVariable(v.Type(), v.Name)
			m[v] = fresh
			hoisted = append(hoisted, fresh)
		}
		body, filter := ir.Substitute(h.Body, m), ir.Substitute(h.Filter, m)
		if !t.typ.IsVoid() {
			body = convertIfNeeded(body, t.typ)
		}
		handlers[i] = ir.NewCatch(h.Test, h.Variable, body, filter)
	}
	body := t.Body
	if !t.typ.IsVoid() {
		body = convertIfNeeded(body, t.typ)
	}
	try := ir.NewTry(t.typ, body, t.Finally, t.Fault, handlers...)
	if len(hoisted) == 0 {
		return try
	}
	return ir.NewBlockTyped(t.typ, hoisted, try)
}
