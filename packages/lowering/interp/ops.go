package interp

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"

	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

func divideByZero() error {
	return runtime.NewException(runtime.DivideByZeroExceptionType, "attempted to divide by zero")
}

func arith[T constraints.Integer | constraints.Float](op ir.BinaryOp, a, b T) (T, bool) {
	switch op {
	case ir.OpAdd:
		return a + b, true
	case ir.OpSubtract:
		return a - b, true
	case ir.OpMultiply:
		return a * b, true
	case ir.OpDivide:
		return a / b, true
	}
	return 0, false
}

func integral[T constraints.Integer](op ir.BinaryOp, a, b T) (any, error) {
	switch op {
	case ir.OpDivide, ir.OpModulo:
		if b == 0 {
			return nil, divideByZero()
		}
		if op == ir.OpModulo {
			return a % b, nil
		}
	case ir.OpAnd:
		return a & b, nil
	case ir.OpOr:
		return a | b, nil
	case ir.OpExclusiveOr:
		return a ^ b, nil
	case ir.OpLeftShift:
		return a << uint(b&63), nil
	case ir.OpRightShift:
		return a >> uint(b&63), nil
	}
	if r, ok := arith(op, a, b); ok {
		return r, nil
	}
	if op.IsComparison() {
		return compare(op, a, b), nil
	}
	return nil, fmt.Errorf("operator %s is not defined on %T", op, a)
}

func floating[T constraints.Float](op ir.BinaryOp, a, b T) (any, error) {
	if op == ir.OpModulo {
		return T(math.Mod(float64(a), float64(b))), nil
	}
	if r, ok := arith(op, a, b); ok {
		return r, nil
	}
	if op.IsComparison() {
		return compare(op, a, b), nil
	}
	return nil, fmt.Errorf("operator %s is not defined on %T", op, a)
}

func compare[T constraints.Ordered](op ir.BinaryOp, a, b T) bool {
	switch op {
	case ir.OpEqual:
		return a == b
	case ir.OpNotEqual:
		return a != b
	case ir.OpLessThan:
		return a < b
	case ir.OpLessThanOrEqual:
		return a <= b
	case ir.OpGreaterThan:
		return a > b
	case ir.OpGreaterThanOrEqual:
		return a >= b
	}
	panic(fmt.Sprintf("compare: %s is not a comparison", op))
}

func negate[T constraints.Signed | constraints.Float](v T) T { return -v }

func (in *Interpreter) binary(e *env, b *ir.BinaryExpr) (any, error) {
	l, err := in.exec(e, b.Left, nil)
	if err != nil {
		return nil, err
	}
	switch b.Op {
	case ir.OpAndAlso:
		if l != true {
			return false, nil
		}
		return in.exec(e, b.Right, nil)
	case ir.OpOrElse:
		if l == true {
			return true, nil
		}
		return in.exec(e, b.Right, nil)
	case ir.OpCoalesce:
		if l != nil {
			return l, nil
		}
		return in.exec(e, b.Right, nil)
	}
	r, err := in.exec(e, b.Right, nil)
	if err != nil {
		return nil, err
	}
	if b.Method != nil {
		return in.invokeMethod(b.Method, nil, []any{runtime.Copy(l), runtime.Copy(r)})
	}
	return applyBinary(b.Op, l, r)
}

func applyBinary(op ir.BinaryOp, l, r any) (any, error) {
	switch op {
	case ir.OpEqual:
		return runtime.Equals(l, r), nil
	case ir.OpNotEqual:
		return !runtime.Equals(l, r), nil
	}
	if l == nil || r == nil {
		if op == ir.OpAdd {
			if s, ok := l.(string); ok {
				return s + runtime.ToString(r), nil
			}
			if s, ok := r.(string); ok {
				return runtime.ToString(l) + s, nil
			}
		}
		if op.IsComparison() {
			return false, nil
		}
		return nil, nil
	}
	switch x := l.(type) {
	case int:
		if y, ok := r.(int); ok {
			return integral(op, x, y)
		}
	case int64:
		if y, ok := r.(int64); ok {
			return integral(op, x, y)
		}
	case float64:
		if y, ok := r.(float64); ok {
			return floating(op, x, y)
		}
	case bool:
		if y, ok := r.(bool); ok {
			switch op {
			case ir.OpAnd:
				return x && y, nil
			case ir.OpOr:
				return x || y, nil
			case ir.OpExclusiveOr:
				return x != y, nil
			}
		}
	case string:
		if op == ir.OpAdd {
			return x + runtime.ToString(r), nil
		}
		if y, ok := r.(string); ok && op.IsComparison() {
			return compare(op, x, y), nil
		}
	}
	if s, ok := r.(string); ok && op == ir.OpAdd {
		return runtime.ToString(l) + s, nil
	}
	panic(fmt.Sprintf("operator %s is not defined on %T and %T", op, l, r))
}

func (in *Interpreter) unary(e *env, u *ir.UnaryExpr) (any, error) {
	v, err := in.exec(e, u.Operand, nil)
	if err != nil {
		return nil, err
	}
	if u.Method != nil {
		return in.invokeMethod(u.Method, nil, []any{runtime.Copy(v)})
	}
	switch u.Op {
	case ir.OpConvert:
		return convert(v, u.Operand.Type(), u.Type())
	case ir.OpTypeAs:
		if runtime.IsInstance(v, u.Type()) {
			return v, nil
		}
		return nil, nil
	case ir.OpArrayLength:
		arr, ok := v.(*runtime.Array)
		if !ok {
			return nil, nullReference("array")
		}
		return arr.Len(), nil
	}
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case int:
		switch u.Op {
		case ir.OpNegate:
			return negate(x), nil
		case ir.OpOnesComplement, ir.OpNot:
			return ^x, nil
		}
	case int64:
		switch u.Op {
		case ir.OpNegate:
			return negate(x), nil
		case ir.OpOnesComplement, ir.OpNot:
			return ^x, nil
		}
	case float64:
		if u.Op == ir.OpNegate {
			return negate(x), nil
		}
	case bool:
		if u.Op == ir.OpNot {
			return !x, nil
		}
	}
	panic(fmt.Sprintf("operator %s is not defined on %T", u.Op, v))
}

func nullReference(what string) error {
	return runtime.NewException(runtime.NullReferenceExceptionType, what+" is null")
}

func invalidCast(v any, to *types.Type) error {
	return runtime.NewException(runtime.InvalidCastExceptionType, fmt.Sprintf("unable to cast %s to %s", runtime.TypeOf(v), to))
}

// convert implements explicit conversions between numeric types, nullable
// wrapping and unwrapping, boxing, unboxing and reference conversions
func convert(v any, from, to *types.Type) (any, error) {
	if to.IsVoid() {
		return nil, nil
	}
	if v == nil {
		switch {
		case to.CanBeNull():
			return nil, nil
		case from.IsNullable():
			return nil, runtime.NewException(runtime.InvalidOperationExceptionType, types.ErrNoValue.Error())
		}
		return nil, nullReference("value")
	}
	target := to.NonNullable()
	switch target.Kind {
	case types.KindInt:
		return numeric(v, target, func(f float64) any { return int(f) }, func(i int64) any { return int(i) })
	case types.KindLong:
		return numeric(v, target, func(f float64) any { return int64(f) }, func(i int64) any { return i })
	case types.KindDouble:
		return numeric(v, target, func(f float64) any { return f }, func(i int64) any { return float64(i) })
	case types.KindObject:
		return v, nil
	}
	if !runtime.IsInstance(v, target) {
		return nil, invalidCast(v, to)
	}
	if target.IsValueType() {
		return runtime.Copy(v), nil
	}
	return v, nil
}

func numeric(v any, to *types.Type, fromFloat func(float64) any, fromInt func(int64) any) (any, error) {
	switch x := v.(type) {
	case int:
		return fromInt(int64(x)), nil
	case int64:
		return fromInt(x), nil
	case float64:
		return fromFloat(x), nil
	}
	return nil, invalidCast(v, to)
}
