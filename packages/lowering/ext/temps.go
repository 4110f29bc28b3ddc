package ext

import (
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/types"
)

// temps collects the temporaries introduced while reducing a node, in the
// order their initializers must run
type temps struct {
	vars  []*ir.Variable
	stmts []ir.Node
}

// fresh declares a temporary without initializing it
func (t *temps) fresh(typ *types.Type, name string) *ir.Variable {
	v := ir.NewVariable(typ, name)
	t.vars = append(t.vars, v)
	return v
}

// capture evaluates n into a new temporary
func (t *temps) capture(n ir.Node, name string) *ir.Variable {
	v := t.fresh(n.Type(), name)
	t.stmts = append(t.stmts, ir.NewAssign(v, n))
	return v
}

// spill captures n unless it can be evaluated again without observable
// effects
func (t *temps) spill(n ir.Node, name string) ir.Node {
	if ir.IsPure(n, true) {
		return n
	}
	return t.capture(n, name)
}

// add appends a statement to run before the result
func (t *temps) add(stmts ...ir.Node) {
	t.stmts = append(t.stmts, stmts...)
}

// empty reports whether nothing was captured
func (t *temps) empty() bool {
	return len(t.vars) == 0 && len(t.stmts) == 0
}

// block wraps the collected statements and exprs into a block typed after
// the last expression
func (t *temps) block(exprs ...ir.Node) ir.Node {
	if t.empty() && len(exprs) == 1 {
		return exprs[0]
	}
	return ir.NewBlock(t.vars, append(append([]ir.Node(nil), t.stmts...), exprs...)...)
}

// blockTyped wraps the collected statements and exprs into a block of type
// typ
func (t *temps) blockTyped(typ *types.Type, exprs ...ir.Node) ir.Node {
	if t.empty() && len(exprs) == 1 && exprs[0].Type() == typ {
		return exprs[0]
	}
	return ir.NewBlockTyped(typ, t.vars, append(append([]ir.Node(nil), t.stmts...), exprs...)...)
}

func isAssignable(to, from *types.Type) bool {
	return types.Binder.IsAssignable(to, from)
}

// convertIfNeeded converts n to t when the types differ
func convertIfNeeded(n ir.Node, t *types.Type) ir.Node {
	if n.Type() == t {
		return n
	}
	return ir.Convert(n, t)
}

// requireAssignable checks that a value of n's type can be stored in t
func requireAssignable(what string, to *types.Type, n ir.Node) error {
	if n == nil {
		return invalid("%s is missing", what)
	}
	if !isAssignable(to, n.Type()) {
		return mismatch("%s of type %s is not assignable to %s", what, n.Type(), to)
	}
	return nil
}

// requireBool checks that n is a bool-typed condition
func requireBool(what string, n ir.Node) error {
	if n == nil {
		return invalid("%s is missing", what)
	}
	if n.Type() != types.Bool {
		return mismatch("%s must be of type bool, got %s", what, n.Type())
	}
	return nil
}

// checkUniqueVariables rejects a scope declaring the same variable twice
func checkUniqueVariables(vars []*ir.Variable) error {
	seen := make(map[*ir.Variable]bool, len(vars))
	for _, v := range vars {
		if v == nil {
			return invalid("nil variable in scope")
		}
		if seen[v] {
			return duplicateVariable(v)
		}
		seen[v] = true
	}
	return nil
}

func duplicateVariable(v *ir.Variable) error {
	return wrapf(ErrDuplicateVariable, "variable %s declared more than once in the same scope", v)
}

func voidBlock(exprs ...ir.Node) ir.Node {
	if len(exprs) == 1 && exprs[0].Type().IsVoid() {
		return exprs[0]
	}
	return ir.VoidBlock(exprs...)
}
