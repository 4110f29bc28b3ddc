package ir

import (
	"fmt"
)

// IsPure reports whether evaluating n has no side effects and yields the
// same value when repeated. Variables are only pure when readOnly is set,
// i.e. when the caller knows nothing assigns them in between.
func IsPure(n Node, readOnly bool) bool {
	switch x := n.(type) {
	case nil:
		return true
	case *ConstantExpr, *DefaultExpr, *LambdaExpr:
		return true
	case *Variable:
		return readOnly
	case *UnaryExpr:
		if x.Op == OpConvert && x.Method == nil {
			return IsPure(x.Operand, readOnly)
		}
	}
	return false
}

// Children returns the direct children of n in evaluation order, including
// declared variables
func Children(n Node) []Node {
	var res []Node
	n.VisitChildren(VisitorFunc(func(c Node) Node {
		res = append(res, c)
		return c
	}))
	return res
}

// Find returns every node of the tree, in pre-order, for which pred
// returns true. Lambda bodies are searched as well.
func Find(n Node, pred func(Node) bool) []Node {
	var res []Node
	var v Visitor
	v = VisitorFunc(func(c Node) Node {
		if pred(c) {
			res = append(res, c)
		}
		return c.VisitChildren(v)
	})
	Accept(n, v)
	return res
}

// Count returns the number of nodes for which pred returns true
func Count(n Node, pred func(Node) bool) int {
	return len(Find(n, pred))
}

// Contains reports whether any node of the tree satisfies pred
func Contains(n Node, pred func(Node) bool) bool {
	found := false
	var v Visitor
	v = VisitorFunc(func(c Node) Node {
		if found {
			return c
		}
		if pred(c) {
			found = true
			return c
		}
		return c.VisitChildren(v)
	})
	Accept(n, v)
	return found
}

// IsExtension reports whether n is not a base-IR node
func IsExtension(n Node) bool {
	return n != nil && n.Kind() == KindExtension
}

// Substitute replaces every occurrence of the variables in m, matched by
// identity. A declaration whose variable maps to another variable is
// renamed; a declaration whose variable maps to an expression is dropped.
func Substitute(n Node, m map[*Variable]Node) Node {
	if len(m) == 0 {
		return n
	}
	s := &substituter{m: m}
	return Accept(n, s)
}

type substituter struct {
	m map[*Variable]Node
}

func (s *substituter) Visit(n Node) Node {
	switch x := n.(type) {
	case *Variable:
		if r, ok := s.m[x]; ok {
			return r
		}
		return x
	case *BlockExpr:
		var vars []*Variable
		changed := false
		for _, v := range x.Variables {
			r, ok := s.m[v]
			if !ok {
				vars = append(vars, v)
				continue
			}
			changed = true
			if rv, ok := r.(*Variable); ok {
				vars = append(vars, rv)
			}
		}
		if !changed {
			vars = x.Variables
		}
		return x.Update(vars, visitList(s, x.Exprs))
	case *LambdaExpr:
		for _, p := range x.Params {
			if r, ok := s.m[p]; ok {
				if _, ok := r.(*Variable); !ok {
					panic(fmt.Sprintf("Substitute: parameter %s cannot be replaced by an expression", p))
				}
			}
		}
	}
	return n.VisitChildren(s)
}

// FreeVariables returns the variables referenced by n that are not
// declared within n, in order of first occurrence. Extension nodes are
// reduced to find their references.
func FreeVariables(n Node) []*Variable {
	f := &freeVars{bound: map[*Variable]int{}, seen: map[*Variable]bool{}}
	Accept(n, f)
	return f.free
}

// IsFree reports whether v occurs free in n
func IsFree(n Node, v *Variable) bool {
	for _, f := range FreeVariables(n) {
		if f == v {
			return true
		}
	}
	return false
}

type freeVars struct {
	bound map[*Variable]int
	seen  map[*Variable]bool
	free  []*Variable
}

func (f *freeVars) bind(vars ...*Variable) {
	for _, v := range vars {
		if v != nil {
			f.bound[v]++
		}
	}
}

func (f *freeVars) unbind(vars ...*Variable) {
	for _, v := range vars {
		if v != nil {
			f.bound[v]--
		}
	}
}

func (f *freeVars) Visit(n Node) Node {
	switch x := n.(type) {
	case *Variable:
		if f.bound[x] == 0 && !f.seen[x] {
			f.seen[x] = true
			f.free = append(f.free, x)
		}
		return x
	case *BlockExpr:
		f.bind(x.Variables...)
		x.VisitChildren(f)
		f.unbind(x.Variables...)
		return x
	case *LambdaExpr:
		f.bind(x.Params...)
		x.VisitChildren(f)
		f.unbind(x.Params...)
		return x
	case *TryExpr:
		Accept(x.Body, f)
		for _, h := range x.Handlers {
			f.bind(h.Variable)
			Accept(h.Filter, f)
			Accept(h.Body, f)
			f.unbind(h.Variable)
		}
		Accept(x.Finally, f)
		Accept(x.Fault, f)
		return x
	case Extension:
		Accept(ReduceAll(x), f)
		return x
	}
	return n.VisitChildren(f)
}

// DeclaredLabels returns the targets of the labels defined in n, including
// the break and continue targets of loops, without descending into lambdas
func DeclaredLabels(n Node) []*LabelTarget {
	var res []*LabelTarget
	var v Visitor
	v = VisitorFunc(func(c Node) Node {
		switch x := c.(type) {
		case *LambdaExpr:
			return c
		case *LabelExpr:
			res = append(res, x.Target)
		case *LoopExpr:
			if x.Break != nil {
				res = append(res, x.Break)
			}
			if x.Continue != nil {
				res = append(res, x.Continue)
			}
		}
		return c.VisitChildren(v)
	})
	Accept(n, v)
	return res
}
