package async

import (
	"fmt"

	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// rewrite applies fn bottom up. Nested lambdas are passed to fn without
// visiting their bodies.
func rewrite(n ir.Node, fn func(ir.Node) ir.Node) ir.Node {
	var v ir.Visitor
	v = ir.VisitorFunc(func(n ir.Node) ir.Node {
		if _, ok := n.(*ir.LambdaExpr); ok {
			return fn(n)
		}
		return fn(n.VisitChildren(v))
	})
	return ir.Accept(n, v)
}

// Normalize reduces every extension node of the body except awaits. Nested
// async lambdas are lowered with the configuration of the job.
func Normalize(job *LoweringJob) error {
	var err error
	var v ir.Visitor
	v = ir.VisitorFunc(func(n ir.Node) ir.Node {
		switch x := n.(type) {
		case *Await:
			return n.VisitChildren(v)
		case *AsyncLambda:
			res, lerr := Lower(x, job.Config)
			if lerr != nil {
				if err == nil {
					err = lerr
				}
				return n
			}
			return res
		case ir.Extension:
			r := x.Reduce()
			if r == nil || r == n {
				panic(fmt.Sprintf("extension node %T did not reduce", n))
			}
			return v.Visit(r)
		}
		return n.VisitChildren(v)
	})
	body := ir.Accept(job.Body, v)
	if err != nil {
		return err
	}
	job.Body = body
	return nil
}

// RewriteRefLocals inlines by-reference helper calls whose callback awaits.
// The reference parameter is replaced by the location itself, with the
// parts of the location that are not storage spilled into variables.
func RewriteRefLocals(job *LoweringJob) error {
	job.Body = rewrite(job.Body, func(n ir.Node) ir.Node {
		call, ok := n.(*ir.CallExpr)
		if !ok || !isWithByRef(call.Method) {
			return n
		}
		lambda, ok := call.Args[1].(*ir.LambdaExpr)
		if !ok || !ir.Contains(lambda.Body, IsAwait) {
			return n
		}
		var pre []ir.Node
		loc := job.pin(call.Args[0], &pre)
		body := ir.Substitute(lambda.Body, map[*ir.Variable]ir.Node{lambda.Params[0]: loc})
		tracer().Debugf("async: inlined by-reference access to %s", loc.Kind())
		return ir.NewBlock(nil, append(pre, body)...)
	})
	return nil
}

func isWithByRef(m *types.Method) bool {
	return m.Name == runtime.WithByRefMethod.Name && m.DeclaringType == runtime.WithByRefMethod.DeclaringType && len(m.Params) == 2
}

// pin returns a location equivalent to loc whose receivers and indices
// are variables or constants. The assignments evaluating them are appended
// to pre.
func (job *LoweringJob) pin(loc ir.Node, pre *[]ir.Node) ir.Node {
	switch x := loc.(type) {
	case *ir.Variable:
		return x
	case *ir.MemberExpr:
		if x.Object == nil {
			return x
		}
		if x.Object.Type().IsValueType() {
			return x.Update(job.pin(x.Object, pre))
		}
		return x.Update(job.spillTo(x.Object, "receiver", pre))
	case *ir.IndexExpr:
		var obj ir.Node
		if x.Object.Type().IsValueType() {
			obj = job.pin(x.Object, pre)
		} else {
			obj = job.spillTo(x.Object, "receiver", pre)
		}
		args := make([]ir.Node, len(x.Args))
		for i, a := range x.Args {
			args[i] = job.spillTo(a, "index", pre)
		}
		return x.Update(obj, args)
	}
	return job.spillTo(loc, "value", pre)
}

// spillTo assigns n to a fresh hoisted variable unless n is a constant
func (job *LoweringJob) spillTo(n ir.Node, name string, pre *[]ir.Node) ir.Node {
	if ir.IsPure(n, false) {
		return n
	}
	t := job.temp(n.Type(), name)
	*pre = append(*pre, ir.NewAssign(t, n))
	return t
}
