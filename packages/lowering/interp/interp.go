// Package interp evaluates base-IR trees. Extension nodes are reduced on
// first use. The evaluator exists to execute the output of the lowering
// passes; it performs no optimization.
package interp

import (
	"errors"
	"fmt"
	"sync"

	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// Interpreter evaluates trees. It caches reductions of extension nodes and
// the label sets of statement containers, so reusing an Interpreter for
// repeated evaluation of the same tree is cheaper.
type Interpreter struct {
	mu      sync.Mutex
	reduced map[ir.Node]ir.Node
	labels  map[ir.Node]map[*ir.LabelTarget]bool
}

// New creates an interpreter
func New() *Interpreter {
	return &Interpreter{
		reduced: map[ir.Node]ir.Node{},
		labels:  map[ir.Node]map[*ir.LabelTarget]bool{},
	}
}

// Eval evaluates a closed tree with a fresh interpreter
func Eval(n ir.Node) (any, error) {
	return New().Eval(n)
}

// Eval evaluates a closed tree. An exception escaping the tree is returned
// as a *runtime.Exception.
func (in *Interpreter) Eval(n ir.Node) (any, error) {
	v, err := in.exec(newEnv(nil), n, nil)
	var j *jump
	if errors.As(err, &j) {
		panic(fmt.Sprintf("jump to %s escaped the tree", j.target))
	}
	return v, err
}

// EvalWith evaluates n with the free variables bound to the given values
func (in *Interpreter) EvalWith(n ir.Node, vars map[*ir.Variable]any) (any, error) {
	e := newEnv(nil)
	for v, val := range vars {
		e.vars[v] = &runtime.Cell{Value: val}
	}
	v, err := in.exec(e, n, nil)
	var j *jump
	if errors.As(err, &j) {
		panic(fmt.Sprintf("jump to %s escaped the tree", j.target))
	}
	return v, err
}

// jump unwinds evaluation up to the container declaring the target label
type jump struct {
	target *ir.LabelTarget
	value  any
}

func (j *jump) Error() string { return "jump to " + j.target.String() }

type env struct {
	vars      map[*ir.Variable]runtime.Ref
	parent    *env
	exception *runtime.Exception
}

func newEnv(parent *env) *env {
	return &env{vars: map[*ir.Variable]runtime.Ref{}, parent: parent}
}

func (e *env) lookup(v *ir.Variable) runtime.Ref {
	for s := e; s != nil; s = s.parent {
		if r, ok := s.vars[v]; ok {
			return r
		}
	}
	panic(fmt.Sprintf("variable %s#%d is not in scope", v, v.ID))
}

func (e *env) current() *runtime.Exception {
	for s := e; s != nil; s = s.parent {
		if s.exception != nil {
			return s.exception
		}
	}
	return nil
}

func (in *Interpreter) reduce(n ir.Extension) ir.Node {
	in.mu.Lock()
	r, ok := in.reduced[n]
	in.mu.Unlock()
	if ok {
		return r
	}
	r = ir.ReduceAll(n)
	in.mu.Lock()
	in.reduced[n] = r
	in.mu.Unlock()
	return r
}

// labelsOf returns the labels declared in n, not counting those inside
// lambdas
func (in *Interpreter) labelsOf(n ir.Node) map[*ir.LabelTarget]bool {
	if n == nil {
		return nil
	}
	in.mu.Lock()
	s, ok := in.labels[n]
	in.mu.Unlock()
	if ok {
		return s
	}
	s = map[*ir.LabelTarget]bool{}
	switch x := n.(type) {
	case *ir.LambdaExpr:
	case *ir.LabelExpr:
		s[x.Target] = true
		for l := range in.labelsOf(x.Default) {
			s[l] = true
		}
	case ir.Extension:
		s = in.labelsOf(in.reduce(x))
	default:
		for _, c := range ir.Children(n) {
			for l := range in.labelsOf(c) {
				s[l] = true
			}
		}
	}
	in.mu.Lock()
	in.labels[n] = s
	in.mu.Unlock()
	return s
}

func (in *Interpreter) owns(n ir.Node, target *ir.LabelTarget) bool {
	return in.labelsOf(n)[target]
}

func asJump(err error) (*jump, bool) {
	j, ok := err.(*jump)
	return j, ok
}

// exec evaluates n. When seek is set, evaluation enters n at the label
// seek.target, skipping everything before it.
func (in *Interpreter) exec(e *env, n ir.Node, seek *jump) (any, error) {
	v, err := in.step(e, n, seek)
	for err != nil {
		j, ok := asJump(err)
		if !ok || !in.owns(n, j.target) {
			break
		}
		if _, isBlock := n.(*ir.BlockExpr); isBlock {
			break
		}
		if _, isLoop := n.(*ir.LoopExpr); isLoop {
			break
		}
		v, err = in.step(e, n, j)
	}
	return v, err
}

func (in *Interpreter) step(e *env, n ir.Node, seek *jump) (any, error) {
	if seek != nil {
		switch n.(type) {
		case *ir.BlockExpr, *ir.ConditionalExpr, *ir.LoopExpr, *ir.SwitchExpr, *ir.TryExpr, *ir.LabelExpr, ir.Extension:
		default:
			panic(fmt.Sprintf("cannot jump to %s inside a %s expression", seek.target, n.Kind()))
		}
	}
	switch x := n.(type) {
	case nil:
		return nil, nil
	case *ir.ConstantExpr:
		return x.Value, nil
	case *ir.DefaultExpr:
		return runtime.Default(x.Type()), nil
	case *ir.Variable:
		return e.lookup(x).Get(), nil
	case *ir.AssignExpr:
		return in.assign(e, x)
	case *ir.BinaryExpr:
		return in.binary(e, x)
	case *ir.UnaryExpr:
		return in.unary(e, x)
	case *ir.TypeIsExpr:
		v, err := in.exec(e, x.Operand, nil)
		if err != nil {
			return nil, err
		}
		return runtime.IsInstance(v, x.TypeOperand), nil
	case *ir.BlockExpr:
		return in.block(e, x, seek)
	case *ir.ConditionalExpr:
		return in.conditional(e, x, seek)
	case *ir.LoopExpr:
		return in.loop(e, x, seek)
	case *ir.LabelExpr:
		if seek != nil && seek.target == x.Target {
			if seek.value == nil && !x.Type().IsVoid() {
				return runtime.Default(x.Type()), nil
			}
			return seek.value, nil
		}
		if x.Default == nil {
			return nil, nil
		}
		return in.exec(e, x.Default, seek)
	case *ir.GotoExpr:
		var val any
		if x.Value != nil {
			v, err := in.exec(e, x.Value, nil)
			if err != nil {
				return nil, err
			}
			val = v
		}
		return nil, &jump{target: x.Target, value: val}
	case *ir.SwitchExpr:
		return in.switchExpr(e, x, seek)
	case *ir.TryExpr:
		return in.try(e, x, seek)
	case *ir.ThrowExpr:
		return in.throw(e, x)
	case *ir.CallExpr:
		return in.call(e, x)
	case *ir.InvokeExpr:
		return in.invoke(e, x)
	case *ir.LambdaExpr:
		return &closure{in: in, lambda: x, env: e}, nil
	case *ir.MemberExpr:
		return in.member(e, x)
	case *ir.IndexExpr:
		return in.index(e, x)
	case *ir.NewExpr:
		return in.newObject(e, x)
	case *ir.NewArrayExpr:
		return in.newArray(e, x)
	case ir.Extension:
		return in.exec(e, in.reduce(x), seek)
	}
	panic(fmt.Sprintf("interp: unsupported node %T", n))
}

func (in *Interpreter) block(e *env, b *ir.BlockExpr, seek *jump) (any, error) {
	scope := e
	if len(b.Variables) > 0 {
		scope = newEnv(e)
		for _, v := range b.Variables {
			scope.vars[v] = &runtime.Cell{Value: runtime.Default(v.Type())}
		}
	}
	start := 0
	if seek != nil {
		start = in.childWithLabel(b.Exprs, seek.target)
	}
	var res any
	for i := start; i < len(b.Exprs); i++ {
		var s *jump
		if i == start {
			s = seek
		}
		v, err := in.exec(scope, b.Exprs[i], s)
		if err != nil {
			j, ok := asJump(err)
			if !ok || !in.owns(b, j.target) {
				return nil, err
			}
			seek = j
			start = in.childWithLabel(b.Exprs, j.target)
			i = start - 1
			continue
		}
		res = v
	}
	if b.Type().IsVoid() {
		return nil, nil
	}
	return res, nil
}

func (in *Interpreter) childWithLabel(children []ir.Node, target *ir.LabelTarget) int {
	for i, c := range children {
		if in.owns(c, target) {
			return i
		}
	}
	panic(fmt.Sprintf("label %s not found in container", target))
}

func (in *Interpreter) conditional(e *env, c *ir.ConditionalExpr, seek *jump) (any, error) {
	if seek != nil {
		branch := c.IfFalse
		if in.owns(c.IfTrue, seek.target) {
			branch = c.IfTrue
		}
		v, err := in.exec(e, branch, seek)
		return result(c.Type(), v, err)
	}
	t, err := in.exec(e, c.Test, nil)
	if err != nil {
		return nil, err
	}
	branch := c.IfFalse
	if t.(bool) {
		branch = c.IfTrue
	}
	v, err := in.exec(e, branch, nil)
	return result(c.Type(), v, err)
}

func result(t *types.Type, v any, err error) (any, error) {
	if err != nil || t.IsVoid() {
		return nil, err
	}
	return v, nil
}

func (in *Interpreter) loop(e *env, l *ir.LoopExpr, seek *jump) (any, error) {
	for {
		_, err := in.exec(e, l.Body, seek)
		seek = nil
		if err == nil {
			continue
		}
		j, ok := asJump(err)
		switch {
		case !ok:
			return nil, err
		case j.target == l.Break:
			return j.value, nil
		case j.target == l.Continue:
			continue
		case in.owns(l.Body, j.target):
			seek = j
			continue
		}
		return nil, err
	}
}

func (in *Interpreter) switchExpr(e *env, s *ir.SwitchExpr, seek *jump) (any, error) {
	if seek != nil {
		body := s.Default
		for _, c := range s.Cases {
			if in.owns(c.Body, seek.target) {
				body = c.Body
				break
			}
		}
		v, err := in.exec(e, body, seek)
		return result(s.Type(), v, err)
	}
	v, err := in.exec(e, s.SwitchValue, nil)
	if err != nil {
		return nil, err
	}
	body := s.Default
cases:
	for _, c := range s.Cases {
		for _, t := range c.TestValues {
			tv, err := in.exec(e, t, nil)
			if err != nil {
				return nil, err
			}
			if runtime.Equals(v, tv) {
				body = c.Body
				break cases
			}
		}
	}
	if body == nil {
		return nil, nil
	}
	v, err = in.exec(e, body, nil)
	return result(s.Type(), v, err)
}

func (in *Interpreter) try(e *env, t *ir.TryExpr, seek *jump) (any, error) {
	if seek != nil && !in.owns(t.Body, seek.target) {
		panic(fmt.Sprintf("cannot jump to %s inside a catch, finally or fault block", seek.target))
	}
	v, err := in.exec(e, t.Body, seek)
	if err != nil {
		if _, isJump := asJump(err); !isJump {
			ex := runtime.AsException(err)
			err = ex
			for _, h := range t.Handlers {
				if !runtime.IsInstance(ex, h.Test) {
					continue
				}
				scope := newEnv(e)
				scope.exception = ex
				if h.Variable != nil {
					scope.vars[h.Variable] = &runtime.Cell{Value: ex}
				}
				if h.Filter != nil {
					fv, ferr := in.exec(scope, h.Filter, nil)
					if ferr != nil || fv != true {
						continue
					}
				}
				v, err = in.exec(scope, h.Body, nil)
				break
			}
			if t.Fault != nil && err == ex {
				if _, ferr := in.exec(e, t.Fault, nil); ferr != nil {
					err = ferr
				}
			}
		}
	}
	if t.Finally != nil {
		if _, ferr := in.exec(e, t.Finally, nil); ferr != nil {
			return nil, ferr
		}
	}
	if err != nil {
		return nil, err
	}
	if t.Type().IsVoid() {
		return nil, nil
	}
	return v, nil
}

func (in *Interpreter) throw(e *env, t *ir.ThrowExpr) (any, error) {
	if t.Value == nil {
		ex := e.current()
		if ex == nil {
			panic("rethrow outside of a catch block")
		}
		return nil, ex
	}
	v, err := in.exec(e, t.Value, nil)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case nil:
		return nil, runtime.NewException(runtime.NullReferenceExceptionType, "thrown value is null")
	case *runtime.Exception:
		return nil, x
	case error:
		return nil, runtime.AsException(x)
	}
	return nil, runtime.NewException(runtime.InvalidCastExceptionType, fmt.Sprintf("cannot throw %T", v))
}
