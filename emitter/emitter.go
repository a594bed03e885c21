// Package emitter renders programs back to source text. The output is
// re-readable by the parser: emitting, parsing and emitting again reaches a
// fixed point.
package emitter

import (
	"fmt"
	"io"
	"strings"

	"github.com/verlang/verl/parser"
)

// Emit writes the whole program, one declaration per stanza.
func Emit(w io.Writer, program *parser.Program) error {
	p := &printer{w: w}
	for i, decl := range program.Decls {
		if i > 0 {
			p.printf("\n")
		}
		p.decl(decl, 0)
	}
	return p.err
}

// EmitDecl writes a single declaration at the given indent level.
func EmitDecl(w io.Writer, decl *parser.Decl, indent int) error {
	p := &printer{w: w}
	p.decl(decl, indent)
	return p.err
}

// ExprString renders an expression with minimal parentheses.
func ExprString(e *parser.Expr) string {
	sb := &strings.Builder{}
	p := &printer{w: sb}
	p.expr(e, 0)
	return sb.String()
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) indent(level int) {
	p.printf("%s", strings.Repeat("  ", level))
}

func (p *printer) decl(decl *parser.Decl, indent int) {
	switch {
	case decl.TypeDecl != nil:
		p.typeDecl(decl.TypeDecl, indent)
	case decl.Const != nil:
		p.constDecl(decl.Const, indent)
	case decl.Var != nil:
		p.varDecl(decl.Var, indent)
	case decl.Function != nil:
		p.funcDecl(decl.Function, indent)
	case decl.Axiom != nil:
		p.indent(indent)
		p.printf("axiom ")
		p.attributes(decl.Axiom.Attributes)
		p.expr(decl.Axiom.Expr, 0)
		p.printf(";\n")
	case decl.Procedure != nil:
		p.procDecl(decl.Procedure, indent)
	case decl.Implementation != nil:
		p.implDecl(decl.Implementation, indent)
	default:
		panic("??")
	}
}

func (p *printer) attributes(attrs []*parser.Attribute) {
	for _, a := range attrs {
		p.printf("{:%s", a.Name)
		for i, e := range a.Params {
			if i == 0 {
				p.printf(" ")
			} else {
				p.printf(", ")
			}
			p.expr(e, 0)
		}
		p.printf("} ")
	}
}

func (p *printer) typeDecl(d *parser.TypeDecl, indent int) {
	p.indent(indent)
	p.printf("type ")
	p.attributes(d.Attributes)
	p.printf("%s", d.Name)
	for _, param := range d.Params {
		p.printf(" %s", param)
	}
	if d.Body != nil {
		p.printf(" = ")
		p.typeRef(d.Body)
	}
	p.printf(";\n")
}

func (p *printer) constDecl(d *parser.ConstDecl, indent int) {
	p.indent(indent)
	p.printf("const ")
	p.attributes(d.Attributes)
	if d.Unique {
		p.printf("unique ")
	}
	p.printf("%s: ", strings.Join(d.Names, ", "))
	p.typeRef(d.Type)
	if d.Order != nil {
		p.printf(" extends")
		for i, edge := range d.Order.Parents {
			if i > 0 {
				p.printf(",")
			}
			if edge.Unique {
				p.printf(" unique %s", edge.Name)
			} else {
				p.printf(" %s", edge.Name)
			}
		}
		if d.Order.Complete {
			p.printf(" complete")
		}
	}
	p.printf(";\n")
}

func (p *printer) typedIdents(groups []*parser.TypedIdents) {
	for i, g := range groups {
		if i > 0 {
			p.printf(", ")
		}
		p.printf("%s: ", strings.Join(g.Names, ", "))
		p.typeRef(g.Type)
		if g.Where != nil {
			p.printf(" where ")
			p.expr(g.Where, 0)
		}
	}
}

func (p *printer) varDecl(d *parser.VarDecl, indent int) {
	p.indent(indent)
	p.printf("var ")
	p.attributes(d.Attributes)
	p.typedIdents(d.Groups)
	p.printf(";\n")
}

func (p *printer) typeParams(params []string) {
	if len(params) == 0 {
		return
	}
	p.printf("<%s>", strings.Join(params, ", "))
}

func (p *printer) funcDecl(d *parser.FuncDecl, indent int) {
	p.indent(indent)
	p.printf("function ")
	p.attributes(d.Attributes)
	p.printf("%s", d.Name)
	p.typeParams(d.TypeParams)
	p.printf("(")
	for i, param := range d.Params {
		if i > 0 {
			p.printf(", ")
		}
		if param.Name != "" {
			p.printf("%s: ", param.Name)
		}
		p.typeRef(param.Type)
	}
	p.printf(") returns (")
	if d.Result.Name != "" {
		p.printf("%s: ", d.Result.Name)
	}
	p.typeRef(d.Result.Type)
	p.printf(")")
	if d.Body == nil {
		p.printf(";\n")
		return
	}
	p.printf(" { ")
	p.expr(d.Body, 0)
	p.printf(" }\n")
}

func (p *printer) signature(name string, typeParams []string, params, returns []*parser.TypedIdents) {
	p.printf("%s", name)
	p.typeParams(typeParams)
	p.printf("(")
	p.typedIdents(params)
	p.printf(")")
	if returns != nil {
		p.printf(" returns (")
		p.typedIdents(returns)
		p.printf(")")
	}
}

func (p *printer) procDecl(d *parser.ProcDecl, indent int) {
	p.indent(indent)
	p.printf("procedure ")
	p.attributes(d.Attributes)
	p.signature(d.Name, d.TypeParams, d.Params, d.Returns)
	if d.Semi {
		p.printf(";")
	}
	p.printf("\n")
	for _, clause := range d.Specs {
		p.indent(indent + 1)
		if clause.Free {
			p.printf("free ")
		}
		switch {
		case clause.Requires != nil:
			p.printf("requires ")
			p.attributes(clause.Requires.Attributes)
			p.expr(clause.Requires.Expr, 0)
		case clause.Modifies:
			p.printf("modifies %s", strings.Join(clause.ModNames, ", "))
		case clause.Ensures != nil:
			p.printf("ensures ")
			p.attributes(clause.Ensures.Attributes)
			p.expr(clause.Ensures.Expr, 0)
		default:
			panic("??")
		}
		p.printf(";\n")
	}
	if d.Body != nil {
		p.body(d.Body, indent)
	}
}

func (p *printer) implDecl(d *parser.ImplDecl, indent int) {
	p.indent(indent)
	p.printf("implementation ")
	p.attributes(d.Attributes)
	p.signature(d.Name, d.TypeParams, d.Params, d.Returns)
	p.printf("\n")
	p.body(d.Body, indent)
}

func (p *printer) body(b *parser.Body, indent int) {
	p.indent(indent)
	p.printf("{\n")
	for _, local := range b.Locals {
		p.varDecl(local, indent+1)
	}
	p.stmts(b.Stmts, indent+1)
	p.indent(indent)
	p.printf("}\n")
}

func (p *printer) stmts(stmts []*parser.Stmt, indent int) {
	for _, s := range stmts {
		p.stmt(s, indent)
	}
}

func (p *printer) stmt(s *parser.Stmt, indent int) {
	switch {
	case s.Label != nil:
		p.indent(indent)
		p.printf("%s:\n", s.Label.Name)

	case s.Assert != nil:
		p.indent(indent)
		p.printf("assert ")
		p.attributes(s.Assert.Attributes)
		p.expr(s.Assert.Expr, 0)
		p.printf(";\n")

	case s.Assume != nil:
		p.indent(indent)
		p.printf("assume ")
		p.attributes(s.Assume.Attributes)
		p.expr(s.Assume.Expr, 0)
		p.printf(";\n")

	case s.Havoc != nil:
		p.indent(indent)
		p.printf("havoc %s;\n", strings.Join(s.Havoc.Names, ", "))

	case s.Call != nil:
		p.indent(indent)
		p.printf("call ")
		if len(s.Call.Outs) > 0 {
			p.printf("%s := ", strings.Join(s.Call.Outs, ", "))
		}
		p.printf("%s(", s.Call.Name)
		p.exprList(s.Call.Args)
		p.printf(");\n")

	case s.If != nil:
		p.indent(indent)
		p.ifStmt(s.If, indent)
		p.printf("\n")

	case s.While != nil:
		w := s.While
		p.indent(indent)
		p.printf("while ")
		p.guard(w.Guard)
		p.printf("\n")
		for _, inv := range w.Invariants {
			p.indent(indent + 1)
			if inv.Free {
				p.printf("free ")
			}
			p.printf("invariant ")
			p.expr(inv.Cond, 0)
			p.printf(";\n")
		}
		p.indent(indent)
		p.printf("{\n")
		p.stmts(w.Body.Stmts, indent+1)
		p.indent(indent)
		p.printf("}\n")

	case s.Break != nil:
		p.indent(indent)
		if s.Break.Label != "" {
			p.printf("break %s;\n", s.Break.Label)
		} else {
			p.printf("break;\n")
		}

	case s.Return != nil:
		p.indent(indent)
		p.printf("return;\n")

	case s.Goto != nil:
		p.indent(indent)
		p.printf("goto %s;\n", strings.Join(s.Goto.Labels, ", "))

	case s.Assign != nil:
		p.indent(indent)
		for i, lhs := range s.Assign.LHS {
			if i > 0 {
				p.printf(", ")
			}
			p.printf("%s", lhs.Name)
			for _, idx := range lhs.Indexes {
				p.printf("[")
				p.exprList(idx.Args)
				p.printf("]")
			}
		}
		p.printf(" := ")
		p.exprList(s.Assign.RHS)
		p.printf(";\n")

	default:
		panic("??")
	}
}

func (p *printer) guard(g *parser.Guard) {
	if g.Wild {
		p.printf("(*)")
		return
	}
	p.printf("(")
	p.expr(g.Expr, 0)
	p.printf(")")
}

func (p *printer) ifStmt(s *parser.IfStmt, indent int) {
	p.printf("if ")
	p.guard(s.Guard)
	p.printf(" {\n")
	p.stmts(s.Then.Stmts, indent+1)
	p.indent(indent)
	p.printf("}")
	switch {
	case s.ElseIf != nil:
		p.printf(" else ")
		p.ifStmt(s.ElseIf, indent)
	case s.Else != nil:
		p.printf(" else {\n")
		p.stmts(s.Else.Stmts, indent+1)
		p.indent(indent)
		p.printf("}")
	}
}

func (p *printer) exprList(exprs []*parser.Expr) {
	for i, e := range exprs {
		if i > 0 {
			p.printf(", ")
		}
		p.expr(e, 0)
	}
}

// expr prints e, parenthesising when its operator binds looser than the
// enclosing context.
func (p *printer) expr(e *parser.Expr, minPrec int) {
	if e == nil {
		return
	}
	if e.Unary != nil {
		p.unary(e.Unary)
		return
	}
	prec := e.Op.Priority()
	if prec < minPrec {
		p.printf("(")
		p.expr(e, 0)
		p.printf(")")
		return
	}
	leftMin, rightMin := prec, prec+1
	if e.Op.RightAssociative() {
		leftMin, rightMin = prec+1, prec
	}
	p.expr(e.Left, leftMin)
	p.printf(" %s ", e.Op)
	p.expr(e.Right, rightMin)
}

func (p *printer) unary(u *parser.Unary) {
	if u.Op != parser.OpNone {
		p.printf("%s", u.Op)
	}
	p.primary(u.Primary)
}

func (p *printer) primary(pr *parser.Primary) {
	switch {
	case pr.Quantifier != nil:
		p.quantifier(pr.Quantifier)

	case pr.Old != nil:
		p.printf("old(")
		p.expr(pr.Old.Expr, 0)
		p.printf(")")

	case pr.Literal != nil:
		p.literal(pr.Literal)

	case pr.SubExpr != nil:
		p.printf("(")
		p.expr(pr.SubExpr, 0)
		p.printf(")")

	case pr.Call != nil:
		p.printf("%s(", pr.Ident)
		p.exprList(pr.Call.Args)
		p.printf(")")

	default:
		p.printf("%s", pr.Ident)
	}
	for _, sel := range pr.Selects {
		p.printf("[")
		p.exprList(sel.Args)
		if sel.Value != nil {
			p.printf(" := ")
			p.expr(sel.Value, 0)
		}
		p.printf("]")
	}
}

func (p *printer) quantifier(q *parser.QuantifierExpr) {
	if q.Exists {
		p.printf("(exists ")
	} else {
		p.printf("(forall ")
	}
	p.typeParams(q.TypeParams)
	if len(q.TypeParams) > 0 {
		p.printf(" ")
	}
	p.typedIdents(q.Vars)
	p.printf(" :: ")
	for _, a := range q.Attrs {
		if a.IsTrigger() {
			p.printf("{ ")
			p.exprList(a.Exprs)
			p.printf(" } ")
		} else {
			p.printf("{:%s", a.Name)
			for i, e := range a.Exprs {
				if i == 0 {
					p.printf(" ")
				} else {
					p.printf(", ")
				}
				p.expr(e, 0)
			}
			p.printf("} ")
		}
	}
	p.expr(q.Body, 0)
	p.printf(")")
}

func (p *printer) literal(l *parser.Literal) {
	switch {
	case l.BvLit != nil:
		p.printf("%s", l.BvLit)
	case l.Number != nil:
		p.printf("%s", l.Number.Int.String())
	case l.Str != nil:
		p.printf("%q", string(*l.Str))
	case l.Bool != nil:
		p.printf("%t", bool(*l.Bool))
	default:
		panic("??")
	}
}

func (p *printer) typeRef(ref *parser.TypeRef) {
	if ref.Map != nil {
		p.mapTypeRef(ref.Map)
		return
	}
	p.printf("%s", ref.Name)
	for _, atom := range ref.Args {
		p.printf(" ")
		p.typeRefAtom(atom)
	}
}

func (p *printer) typeRefAtom(atom *parser.TypeRefAtom) {
	switch {
	case atom.Map != nil:
		p.mapTypeRef(atom.Map)
	case atom.Group != nil:
		p.printf("(")
		p.typeRef(atom.Group)
		p.printf(")")
	default:
		p.printf("%s", atom.Name)
	}
}

func (p *printer) mapTypeRef(m *parser.MapTypeRef) {
	p.typeParams(m.TypeParams)
	p.printf("[")
	for i, arg := range m.Args {
		if i > 0 {
			p.printf(", ")
		}
		p.typeRef(arg)
	}
	p.printf("]")
	p.typeRef(m.Result)
}
