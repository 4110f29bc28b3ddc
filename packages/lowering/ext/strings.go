package ext

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// InterpolatedPart is a literal run or a hole of an interpolated string.
// Value is nil for literals.
type InterpolatedPart struct {
	Literal   string
	Value     ir.Node
	Alignment int
	Format    string
}

// Literal creates a literal part
func Literal(s string) *InterpolatedPart { return &InterpolatedPart{Literal: s} }

// Hole creates an interpolation hole {value,alignment:format}
func Hole(value ir.Node, alignment int, format string) *InterpolatedPart {
	return &InterpolatedPart{Value: value, Alignment: alignment, Format: format}
}

func (p *InterpolatedPart) isHole() bool { return p.Value != nil }

// InterpolatedString formats its parts into a string
type InterpolatedString struct {
	Parts []*InterpolatedPart
}

// NewInterpolatedString creates $"..." from its parts
func NewInterpolatedString(parts ...*InterpolatedPart) (*InterpolatedString, error) {
	for i, p := range parts {
		if p == nil {
			return nil, invalid("part %d is nil", i)
		}
		if p.isHole() && p.Value.Type().IsVoid() {
			return nil, mismatch("hole %d has no value", i)
		}
		if !p.isHole() && (p.Alignment != 0 || p.Format != "") {
			return nil, invalid("literal part %d cannot carry alignment or format", i)
		}
	}
	return &InterpolatedString{Parts: parts}, nil
}

// Kind implements Node interface
func (s *InterpolatedString) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (s *InterpolatedString) Type() *types.Type { return types.String }

// NodeName implements ir.Named
func (s *InterpolatedString) NodeName() string { return "InterpolatedString" }

// Update returns s with the given parts
func (s *InterpolatedString) Update(parts []*InterpolatedPart) *InterpolatedString {
	if len(parts) == len(s.Parts) {
		same := true
		for i := range parts {
			if parts[i] != s.Parts[i] {
				same = false
				break
			}
		}
		if same {
			return s
		}
	}
	return must(NewInterpolatedString(parts...))
}

// VisitChildren implements Node interface
func (s *InterpolatedString) VisitChildren(v ir.Visitor) ir.Node {
	return s.Update(visitParts(v, s.Parts))
}

func visitParts(v ir.Visitor, parts []*InterpolatedPart) []*InterpolatedPart {
	res := make([]*InterpolatedPart, len(parts))
	for i, p := range parts {
		if !p.isHole() {
			res[i] = p
			continue
		}
		if e := ir.Accept(p.Value, v); e != p.Value {
			res[i] = Hole(e, p.Alignment, p.Format)
		} else {
			res[i] = p
		}
	}
	return res
}

func (s *InterpolatedString) holes() []*InterpolatedPart {
	var res []*InterpolatedPart
	for _, p := range s.Parts {
		if p.isHole() {
			res = append(res, p)
		}
	}
	return res
}

// Reduce implements ir.Extension
func (s *InterpolatedString) Reduce() ir.Node {
	var sb strings.Builder
	var args []ir.Node
	escape := strings.NewReplacer("{", "{{", "}", "}}")
	hasHoles := len(s.holes()) > 0
	for _, p := range s.Parts {
		switch {
		case !p.isHole() && hasHoles:
			sb.WriteString(escape.Replace(p.Literal))
			continue
		case !p.isHole():
			sb.WriteString(p.Literal)
			continue
		}
		sb.WriteString(fmt.Sprintf("{%d", len(args)))
		if p.Alignment != 0 {
			sb.WriteString(fmt.Sprintf(",%d", p.Alignment))
		}
		if p.Format != "" {
			sb.WriteString(":" + p.Format)
		}
		sb.WriteString("}")
		args = append(args, ir.Convert(p.Value, types.Object))
	}
	if len(args) == 0 {
		return ir.Const(sb.String())
	}
	return ir.NewCall(nil, runtime.FormatMethod, ir.Const(sb.String()), ir.NewArrayInit(types.Object, args...))
}

// InterpolatedStringHandlerInfo describes how an interpolated string is
// built through a handler type. Construction takes the literal length and
// the number of holes, plus an optional by-ref bool reporting whether the
// appends should run. Append lambdas take the handler first and return
// either void or bool; a false result stops the remaining appends.
type InterpolatedStringHandlerInfo struct {
	Construction    *ir.LambdaExpr
	AppendLiteral   *ir.LambdaExpr
	AppendFormatted []*ir.LambdaExpr
}

// NewInterpolatedStringHandlerInfo validates the lambda shapes
func NewInterpolatedStringHandlerInfo(construction, appendLiteral *ir.LambdaExpr, appendFormatted ...*ir.LambdaExpr) (*InterpolatedStringHandlerInfo, error) {
	if construction == nil || appendLiteral == nil {
		return nil, invalid("handler construction and AppendLiteral are required")
	}
	h := construction.ReturnType()
	if h.IsVoid() {
		return nil, mismatch("handler construction must return the handler")
	}
	cp := construction.Params
	switch {
	case len(cp) < 2 || len(cp) > 3:
		return nil, wrapf(ErrArgumentCount, "handler construction takes 2 or 3 parameters, got %d", len(cp))
	case cp[0].Type() != types.Int || cp[1].Type() != types.Int:
		return nil, mismatch("handler construction takes (int literalLength, int formattedCount)")
	case len(cp) == 3 && (cp[2].Type() != types.Bool || !cp[2].ByRef):
		return nil, mismatch("third construction parameter must be a by-ref bool")
	}
	ret := appendLiteral.ReturnType()
	if ret != types.Void && ret != types.Bool {
		return nil, mismatch("AppendLiteral must return void or bool, got %s", ret)
	}
	if err := checkAppend("AppendLiteral", appendLiteral, h, ret, 2); err != nil {
		return nil, err
	}
	if len(appendLiteral.Params) == 2 && appendLiteral.Params[1].Type() != types.String {
		return nil, mismatch("AppendLiteral takes a string")
	}
	for _, af := range appendFormatted {
		if af == nil {
			return nil, invalid("nil AppendFormatted lambda")
		}
		if len(af.Params) == 3 && af.Params[2].Type() != types.String {
			return nil, mismatch("format parameter of AppendFormatted must be a string")
		}
		if err := checkAppend("AppendFormatted", af, h, ret, 2, 3); err != nil {
			return nil, err
		}
	}
	return &InterpolatedStringHandlerInfo{
		Construction:    construction,
		AppendLiteral:   appendLiteral,
		AppendFormatted: appendFormatted,
	}, nil
}

func checkAppend(what string, l *ir.LambdaExpr, h, ret *types.Type, arity ...int) error {
	ok := false
	for _, n := range arity {
		ok = ok || len(l.Params) == n
	}
	if !ok {
		return wrapf(ErrArgumentCount, "%s takes %v parameters, got %d", what, arity, len(l.Params))
	}
	if l.Params[0].Type() != h {
		return mismatch("%s must take the handler %s first", what, h)
	}
	if l.ReturnType() != ret {
		return mismatch("appends must all return %s, %s returns %s", ret, what, l.ReturnType())
	}
	return nil
}

// HandlerType returns the type built by the handler
func (i *InterpolatedStringHandlerInfo) HandlerType() *types.Type { return i.Construction.ReturnType() }

func (i *InterpolatedStringHandlerInfo) hasShouldAppend() bool { return len(i.Construction.Params) == 3 }

func (i *InterpolatedStringHandlerInfo) returnsBool() bool {
	return i.AppendLiteral.ReturnType() == types.Bool
}

// appendFor picks the AppendFormatted overload for a hole, preferring an
// exact value type
func (i *InterpolatedStringHandlerInfo) appendFor(p *InterpolatedPart) *ir.LambdaExpr {
	arity := 2
	if p.Format != "" {
		arity = 3
	}
	var match *ir.LambdaExpr
	for _, af := range i.AppendFormatted {
		if len(af.Params) != arity {
			continue
		}
		pt := af.Params[1].Type()
		if pt == p.Value.Type() {
			return af
		}
		if match == nil && isAssignable(pt, p.Value.Type()) {
			match = af
		}
	}
	return match
}

// DefaultInterpolatedStringHandlerInfo binds the runtime
// DefaultInterpolatedStringHandler
func DefaultInterpolatedStringHandlerInfo() *InterpolatedStringHandlerInfo {
	h := runtime.InterpolatedStringHandlerType
	ctor := must(types.Binder.LookupConstructor(h, types.Int, types.Int))
	n, count := ir.NewVariable(types.Int, "literalLength"), ir.NewVariable(types.Int, "formattedCount")
	construction := ir.Lambda(ir.NewObject(ctor, n, count), n, count)

	handler := ir.NewVariable(h, "handler")
	s := ir.NewVariable(types.String, "value")
	appendLiteral := ir.Lambda(ir.NewCall(handler, must(types.Binder.LookupMethod(h, "AppendLiteral", types.String)), s), handler, s)

	value, format := ir.NewVariable(types.Object, "value"), ir.NewVariable(types.String, "format")
	h1, h2 := ir.NewVariable(h, "handler"), ir.NewVariable(h, "handler")
	appendValue := ir.Lambda(ir.NewCall(h1, must(types.Binder.LookupMethod(h, "AppendFormatted", types.Object)), value), h1, value)
	value2 := ir.NewVariable(types.Object, "value")
	appendFormat := ir.Lambda(ir.NewCall(h2, must(types.Binder.LookupMethod(h, "AppendFormatted", types.Object, types.String)), value2, format), h2, value2, format)
	return must(NewInterpolatedStringHandlerInfo(construction, appendLiteral, appendValue, appendFormat))
}

// InterpolatedStringHandlerConversion builds a handler value from an
// interpolated string
type InterpolatedStringHandlerConversion struct {
	Value *InterpolatedString
	Info  *InterpolatedStringHandlerInfo
}

// NewInterpolatedStringHandlerConversion creates the conversion of value
// to the handler described by info
func NewInterpolatedStringHandlerConversion(value *InterpolatedString, info *InterpolatedStringHandlerInfo) (*InterpolatedStringHandlerConversion, error) {
	if value == nil || info == nil {
		return nil, invalid("interpolated string and handler info are required")
	}
	for _, p := range value.holes() {
		if p.Alignment != 0 {
			return nil, unsupported("alignment in a handler conversion")
		}
		if info.appendFor(p) == nil {
			return nil, mismatch("no AppendFormatted overload accepts %s", p.Value.Type())
		}
	}
	return &InterpolatedStringHandlerConversion{
		Value: value,
		Info:  info,
	}, nil
}

// Kind implements Node interface
func (c *InterpolatedStringHandlerConversion) Kind() ir.NodeKind { return ir.KindExtension }

// Type implements Node interface
func (c *InterpolatedStringHandlerConversion) Type() *types.Type { return c.Info.HandlerType() }

// NodeName implements ir.Named
func (c *InterpolatedStringHandlerConversion) NodeName() string {
	return "InterpolatedStringHandlerConversion"
}

// Update returns c with the given string
func (c *InterpolatedStringHandlerConversion) Update(value *InterpolatedString) *InterpolatedStringHandlerConversion {
	if value == c.Value {
		return c
	}
	return must(NewInterpolatedStringHandlerConversion(value, c.Info))
}

// VisitChildren implements Node interface
func (c *InterpolatedStringHandlerConversion) VisitChildren(v ir.Visitor) ir.Node {
	return c.Update(c.Value.Update(visitParts(v, c.Value.Parts)))
}

// Reduce implements ir.Extension
func (c *InterpolatedStringHandlerConversion) Reduce() ir.Node {
	info := c.Info
	h := ir.NewVariable(c.Type(), "handler")
	vars := []*ir.Variable{h}
	literalLength := 0
	for _, p := range c.Value.Parts {
		if !p.isHole() {
			literalLength += utf8.RuneCountInString(p.Literal)
		}
	}
	ctorArgs := []ir.Node{ir.Const(literalLength), ir.Const(len(c.Value.holes()))}
	var shouldAppend *ir.Variable
	if info.hasShouldAppend() {
		shouldAppend = ir.NewVariable(types.Bool, "shouldAppend")
		vars = append(vars, shouldAppend)
		ctorArgs = append(ctorArgs, shouldAppend)
	}
	stmts := []ir.Node{ir.NewAssign(h, ir.NewInvoke(info.Construction, ctorArgs...))}

	var appends []ir.Node
	for _, p := range c.Value.Parts {
		if !p.isHole() {
			if p.Literal != "" {
				appends = append(appends, ir.NewInvoke(info.AppendLiteral, h, ir.Const(p.Literal)))
			}
			continue
		}
		af := info.appendFor(p)
		args := []ir.Node{h, convertIfNeeded(p.Value, af.Params[1].Type())}
		if p.Format != "" {
			args = append(args, ir.Const(p.Format))
		}
		appends = append(appends, ir.NewInvoke(af, args...))
	}

	switch {
	case len(appends) == 0:
	case info.returnsBool():
		var chain ir.Node
		if shouldAppend != nil {
			chain = shouldAppend
		}
		for _, a := range appends {
			if chain == nil {
				chain = a
				continue
			}
			chain = ir.AndAlso(chain, a)
		}
		stmts = append(stmts, chain)
	case shouldAppend != nil:
		stmts = append(stmts, ir.IfThen(shouldAppend, ir.VoidBlock(appends...)))
	default:
		stmts = append(stmts, appends...)
	}
	stmts = append(stmts, h)
	return ir.NewBlockTyped(c.Type(), vars, stmts...)
}
