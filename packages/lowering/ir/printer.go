package ir

import (
	"fmt"
	"strconv"
	"strings"

	"exprfutures-go/packages/lowering/types"
)

// Named is implemented by extension nodes to control how Print labels them
type Named interface {
	NodeName() string
}

// Print renders a tree as C#-like pseudo code. Distinct variables and
// labels sharing a name are disambiguated with a numeric suffix.
func Print(n Node) string {
	p := &printer{
		vars:   map[*Variable]string{},
		labels: map[*LabelTarget]string{},
		used:   map[string]int{},
	}
	p.node(n)
	return p.sb.String()
}

type printer struct {
	sb     strings.Builder
	indent int
	vars   map[*Variable]string
	labels map[*LabelTarget]string
	used   map[string]int
}

func (p *printer) write(s string) { p.sb.WriteString(s) }

func (p *printer) nl() {
	p.sb.WriteByte('\n')
	p.sb.WriteString(strings.Repeat("    ", p.indent))
}

func (p *printer) unique(base string) string {
	n := p.used[base]
	p.used[base] = n + 1
	if n == 0 {
		return base
	}
	return base + "__" + strconv.Itoa(n)
}

func (p *printer) varName(v *Variable) string {
	if s, ok := p.vars[v]; ok {
		return s
	}
	base := v.Name
	if base == "" {
		base = "t"
	}
	s := p.unique(base)
	p.vars[v] = s
	return s
}

func (p *printer) labelName(l *LabelTarget) string {
	if s, ok := p.labels[l]; ok {
		return s
	}
	base := l.Name
	if base == "" {
		base = "L"
	}
	s := p.unique(base)
	p.labels[l] = s
	return s
}

func (p *printer) list(nodes []Node) {
	for i, n := range nodes {
		if i > 0 {
			p.write(", ")
		}
		p.node(n)
	}
}

func (p *printer) decl(v *Variable) {
	if v.ByRef {
		p.write("ref ")
	}
	p.write(v.Type().String() + " " + p.varName(v))
}

func (p *printer) body(n Node) {
	if b, ok := n.(*BlockExpr); ok {
		p.node(b)
		return
	}
	p.write("{")
	p.indent++
	p.nl()
	p.node(n)
	p.write(";")
	p.indent--
	p.nl()
	p.write("}")
}

func (p *printer) node(n Node) {
	switch x := n.(type) {
	case nil:
		p.write("<nil>")
	case *ConstantExpr:
		p.write(formatConstant(x.Value))
	case *DefaultExpr:
		if x.Type().IsVoid() {
			p.write("default(void)")
		} else {
			p.write("default(" + x.Type().String() + ")")
		}
	case *Variable:
		p.write(p.varName(x))
	case *AssignExpr:
		p.node(x.Left)
		p.write(" = ")
		p.node(x.Right)
	case *BinaryExpr:
		p.write("(")
		p.node(x.Left)
		p.write(" " + x.Op.String() + " ")
		p.node(x.Right)
		p.write(")")
		if x.Method != nil {
			p.write("[" + x.Method.String() + "]")
		}
	case *UnaryExpr:
		switch x.Op {
		case OpConvert:
			p.write("(" + x.Type().String() + ")")
			p.node(x.Operand)
		case OpTypeAs:
			p.write("(")
			p.node(x.Operand)
			p.write(" as " + x.Type().String() + ")")
		case OpArrayLength:
			p.node(x.Operand)
			p.write(".Length")
		default:
			p.write(x.Op.String())
			p.node(x.Operand)
		}
	case *TypeIsExpr:
		p.write("(")
		p.node(x.Operand)
		p.write(" is " + x.TypeOperand.String() + ")")
	case *BlockExpr:
		p.write("{")
		p.indent++
		for _, v := range x.Variables {
			p.nl()
			p.decl(v)
			p.write(";")
		}
		for _, e := range x.Exprs {
			p.nl()
			p.node(e)
			if _, ok := e.(*LabelExpr); !ok {
				p.write(";")
			}
		}
		p.indent--
		p.nl()
		p.write("}")
	case *ConditionalExpr:
		if x.Type().IsVoid() {
			p.write("if (")
			p.node(x.Test)
			p.write(") ")
			p.body(x.IfTrue)
			if !IsEmpty(x.IfFalse) {
				p.write(" else ")
				p.body(x.IfFalse)
			}
			return
		}
		p.write("(")
		p.node(x.Test)
		p.write(" ? ")
		p.node(x.IfTrue)
		p.write(" : ")
		p.node(x.IfFalse)
		p.write(")")
	case *LabelExpr:
		p.write(p.labelName(x.Target) + ":")
		if x.Default != nil {
			p.write(" ")
			p.node(x.Default)
			p.write(";")
		}
	case *GotoExpr:
		p.write(x.GotoKind.String() + " " + p.labelName(x.Target))
		if x.Value != nil {
			p.write("(")
			p.node(x.Value)
			p.write(")")
		}
	case *LoopExpr:
		p.write("loop")
		if x.Break != nil || x.Continue != nil {
			p.write(" (")
			if x.Break != nil {
				p.write("break: " + p.labelName(x.Break))
			}
			if x.Continue != nil {
				if x.Break != nil {
					p.write(", ")
				}
				p.write("continue: " + p.labelName(x.Continue))
			}
			p.write(")")
		}
		p.write(" ")
		p.body(x.Body)
	case *SwitchExpr:
		p.write("switch (")
		p.node(x.SwitchValue)
		p.write(") {")
		p.indent++
		for _, c := range x.Cases {
			for _, t := range c.TestValues {
				p.nl()
				p.write("case ")
				p.node(t)
				p.write(":")
			}
			p.indent++
			p.nl()
			p.node(c.Body)
			p.write(";")
			p.indent--
		}
		if x.Default != nil {
			p.nl()
			p.write("default:")
			p.indent++
			p.nl()
			p.node(x.Default)
			p.write(";")
			p.indent--
		}
		p.indent--
		p.nl()
		p.write("}")
	case *TryExpr:
		p.write("try ")
		p.body(x.Body)
		for _, h := range x.Handlers {
			p.write(" catch (" + h.Test.String())
			if h.Variable != nil {
				p.write(" " + p.varName(h.Variable))
			}
			p.write(")")
			if h.Filter != nil {
				p.write(" when (")
				p.node(h.Filter)
				p.write(")")
			}
			p.write(" ")
			p.body(h.Body)
		}
		if x.Finally != nil {
			p.write(" finally ")
			p.body(x.Finally)
		}
		if x.Fault != nil {
			p.write(" fault ")
			p.body(x.Fault)
		}
	case *ThrowExpr:
		p.write("throw")
		if x.Value != nil {
			p.write(" ")
			p.node(x.Value)
		}
	case *CallExpr:
		if x.Object == nil {
			p.write(x.Method.DeclaringType.String())
		} else {
			p.node(x.Object)
		}
		p.write("." + x.Method.Name + "(")
		for i, a := range x.Args {
			if i > 0 {
				p.write(", ")
			}
			if x.Method.Params[i].ByRef {
				p.write("ref ")
			}
			p.node(a)
		}
		p.write(")")
	case *InvokeExpr:
		p.node(x.Expr)
		p.write("(")
		p.list(x.Args)
		p.write(")")
	case *LambdaExpr:
		p.write("(")
		for i, v := range x.Params {
			if i > 0 {
				p.write(", ")
			}
			p.decl(v)
		}
		p.write(") => ")
		p.node(x.Body)
	case *MemberExpr:
		if x.Object == nil {
			p.write(x.Property.DeclaringType.String())
		} else {
			p.node(x.Object)
		}
		p.write("." + x.Member())
	case *IndexExpr:
		p.node(x.Object)
		p.write("[")
		p.list(x.Args)
		p.write("]")
	case *NewExpr:
		p.write("new " + x.Type().String() + "(")
		p.list(x.Args)
		p.write(")")
	case *NewArrayExpr:
		if x.Length != nil {
			p.write("new " + x.Elem.String() + "[")
			p.node(x.Length)
			p.write("]")
			return
		}
		p.write("new " + x.Elem.String() + "[] { ")
		p.list(x.Items)
		p.write(" }")
	default:
		p.extension(n)
	}
}

func (p *printer) extension(n Node) {
	name := fmt.Sprintf("%T", n)
	if named, ok := n.(Named); ok {
		name = named.NodeName()
	} else if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	p.write(name + "(")
	p.list(Children(n))
	p.write(")")
}

func formatConstant(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10) + "L"
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return s
	case *types.Type:
		return "typeof(" + x.String() + ")"
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
