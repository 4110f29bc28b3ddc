package ir

import (
	"fmt"

	"exprfutures-go/packages/lowering/types"
)

// NodeKind is the tag of a node in the closed base-IR node set
type NodeKind int

const (
	KindConstant NodeKind = iota
	KindDefault
	KindVariable
	KindAssign
	KindBinary
	KindUnary
	KindTypeIs
	KindBlock
	KindConditional
	KindLoop
	KindLabel
	KindGoto
	KindSwitch
	KindTry
	KindThrow
	KindCall
	KindInvoke
	KindLambda
	KindMember
	KindIndex
	KindNew
	KindNewArray
	// KindExtension tags nodes outside the base IR. They implement Extension.
	KindExtension
)

var nodeKindNames = [...]string{
	KindConstant:    "Constant",
	KindDefault:     "Default",
	KindVariable:    "Variable",
	KindAssign:      "Assign",
	KindBinary:      "Binary",
	KindUnary:       "Unary",
	KindTypeIs:      "TypeIs",
	KindBlock:       "Block",
	KindConditional: "Conditional",
	KindLoop:        "Loop",
	KindLabel:       "Label",
	KindGoto:        "Goto",
	KindSwitch:      "Switch",
	KindTry:         "Try",
	KindThrow:       "Throw",
	KindCall:        "Call",
	KindInvoke:      "Invoke",
	KindLambda:      "Lambda",
	KindMember:      "Member",
	KindIndex:       "Index",
	KindNew:         "New",
	KindNewArray:    "NewArray",
	KindExtension:   "Extension",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// Node is an immutable expression tree node
type Node interface {
	// Kind returns the node tag
	Kind() NodeKind
	// Type returns the static type of the value the node produces
	Type() *types.Type
	// VisitChildren visits every child with v and rebuilds the node through
	// its Update method. The same instance is returned when no child
	// changed.
	VisitChildren(v Visitor) Node
}

// Extension is a node that lowers itself into base-IR nodes
type Extension interface {
	Node
	// Reduce returns an equivalent tree. The result may contain other
	// extension nodes, each of which reduces in turn.
	Reduce() Node
}

// Visitor rewrites a node. Implementations usually type-switch on the node
// and fall back to n.VisitChildren(v).
type Visitor interface {
	Visit(n Node) Node
}

// VisitorFunc adapts a function to a Visitor
type VisitorFunc func(n Node) Node

// Visit implements Visitor interface
func (f VisitorFunc) Visit(n Node) Node { return f(n) }

// Accept dispatches n to v. A nil node is returned unchanged.
func Accept(n Node, v Visitor) Node {
	if n == nil {
		return nil
	}
	return v.Visit(n)
}

// ReduceAll reduces n until the result is a base-IR node. Children are not
// reduced.
func ReduceAll(n Node) Node {
	for {
		e, ok := n.(Extension)
		if !ok {
			return n
		}
		r := e.Reduce()
		if r == nil || r == n {
			panic(fmt.Sprintf("extension node %T did not reduce", n))
		}
		n = r
	}
}

// ReduceExtensions reduces every extension node in the tree, leaving a tree
// of base-IR nodes only. Nodes for which keep returns true are left in
// place; their children are still visited.
func ReduceExtensions(n Node, keep func(Node) bool) Node {
	var v Visitor
	v = VisitorFunc(func(n Node) Node {
		if e, ok := n.(Extension); ok && (keep == nil || !keep(n)) {
			return v.Visit(ReduceAll(e))
		}
		return n.VisitChildren(v)
	})
	return Accept(n, v)
}

// Transform rewrites the tree bottom up: children are transformed before
// fn is applied to the rebuilt parent. Lambdas are descended into.
func Transform(n Node, fn func(Node) Node) Node {
	var v Visitor
	v = VisitorFunc(func(n Node) Node {
		return fn(n.VisitChildren(v))
	})
	return Accept(n, v)
}

// visitList visits every node of list, returning list itself when nothing
// changed
func visitList(v Visitor, list []Node) []Node {
	var res []Node
	for i, n := range list {
		m := Accept(n, v)
		if res == nil && m != n {
			res = make([]Node, len(list))
			copy(res, list[:i])
		}
		if res != nil {
			res[i] = m
		}
	}
	if res == nil {
		return list
	}
	return res
}

// visitVariables visits declared variables. A visitor may only map a
// declaration to another variable.
func visitVariables(v Visitor, vars []*Variable) []*Variable {
	var res []*Variable
	for i, p := range vars {
		m := visitVariable(v, p)
		if res == nil && m != p {
			res = make([]*Variable, len(vars))
			copy(res, vars[:i])
		}
		if res != nil {
			res[i] = m
		}
	}
	if res == nil {
		return vars
	}
	return res
}

func visitVariable(v Visitor, p *Variable) *Variable {
	if p == nil {
		return nil
	}
	m, ok := v.Visit(p).(*Variable)
	if !ok {
		panic(fmt.Sprintf("visitor must map declaration of %s to a variable", p))
	}
	return m
}

func sameNodes(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameVariables(a, b []*Variable) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
