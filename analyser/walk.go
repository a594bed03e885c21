package analyser

import (
	"fmt"

	"github.com/verlang/verl/parser"
	"github.com/verlang/verl/types"
)

func walkExpr(e *parser.Expr, fn func(*parser.Expr)) {
	if e == nil {
		return
	}
	fn(e)
	if e.Unary != nil {
		walkPrimary(e.Unary.Primary, fn)
		return
	}
	walkExpr(e.Left, fn)
	walkExpr(e.Right, fn)
}

func walkPrimary(p *parser.Primary, fn func(*parser.Expr)) {
	switch {
	case p.Quantifier != nil:
		q := p.Quantifier
		for _, g := range q.Vars {
			walkExpr(g.Where, fn)
		}
		for _, a := range q.Attrs {
			for _, e := range a.Exprs {
				walkExpr(e, fn)
			}
		}
		walkExpr(q.Body, fn)

	case p.Old != nil:
		walkExpr(p.Old.Expr, fn)

	case p.SubExpr != nil:
		walkExpr(p.SubExpr, fn)

	case p.Call != nil:
		for _, arg := range p.Call.Args {
			walkExpr(arg, fn)
		}
	}
	for _, sel := range p.Selects {
		for _, arg := range sel.Args {
			walkExpr(arg, fn)
		}
		walkExpr(sel.Value, fn)
	}
}

func walkAttrExprs(attrs []*parser.Attribute, fn func(*parser.Expr)) {
	for _, a := range attrs {
		for _, e := range a.Params {
			walkExpr(e, fn)
		}
	}
}

func walkStmtExprs(stmts []*parser.Stmt, fn func(*parser.Expr)) {
	for _, s := range stmts {
		switch {
		case s.Assert != nil:
			walkAttrExprs(s.Assert.Attributes, fn)
			walkExpr(s.Assert.Expr, fn)
		case s.Assume != nil:
			walkAttrExprs(s.Assume.Attributes, fn)
			walkExpr(s.Assume.Expr, fn)
		case s.Call != nil:
			for _, arg := range s.Call.Args {
				walkExpr(arg, fn)
			}
		case s.If != nil:
			walkIfExprs(s.If, fn)
		case s.While != nil:
			walkExpr(s.While.Guard.Expr, fn)
			for _, inv := range s.While.Invariants {
				walkExpr(inv.Cond, fn)
			}
			walkStmtExprs(s.While.Body.Stmts, fn)
		case s.Assign != nil:
			for _, lhs := range s.Assign.LHS {
				for _, idx := range lhs.Indexes {
					for _, arg := range idx.Args {
						walkExpr(arg, fn)
					}
				}
			}
			for _, rhs := range s.Assign.RHS {
				walkExpr(rhs, fn)
			}
		}
	}
}

func walkIfExprs(s *parser.IfStmt, fn func(*parser.Expr)) {
	walkExpr(s.Guard.Expr, fn)
	walkStmtExprs(s.Then.Stmts, fn)
	if s.ElseIf != nil {
		walkIfExprs(s.ElseIf, fn)
	}
	if s.Else != nil {
		walkStmtExprs(s.Else.Stmts, fn)
	}
}

func walkDeclExprs(d *parser.Decl, fn func(*parser.Expr)) {
	switch {
	case d.TypeDecl != nil:
		walkAttrExprs(d.TypeDecl.Attributes, fn)

	case d.Const != nil:
		walkAttrExprs(d.Const.Attributes, fn)

	case d.Var != nil:
		walkAttrExprs(d.Var.Attributes, fn)
		for _, g := range d.Var.Groups {
			walkExpr(g.Where, fn)
		}

	case d.Function != nil:
		walkAttrExprs(d.Function.Attributes, fn)
		walkExpr(d.Function.Body, fn)

	case d.Axiom != nil:
		walkAttrExprs(d.Axiom.Attributes, fn)
		walkExpr(d.Axiom.Expr, fn)

	case d.Procedure != nil:
		walkProcExprs(d.Procedure, fn)

	case d.Implementation != nil:
		walkImplExprs(d.Implementation, fn)
	}
}

func walkProcExprs(p *parser.ProcDecl, fn func(*parser.Expr)) {
	walkAttrExprs(p.Attributes, fn)
	for _, g := range append(append([]*parser.TypedIdents{}, p.Params...), p.Returns...) {
		walkExpr(g.Where, fn)
	}
	for _, clause := range p.Specs {
		if clause.Requires != nil {
			walkAttrExprs(clause.Requires.Attributes, fn)
			walkExpr(clause.Requires.Expr, fn)
		}
		if clause.Ensures != nil {
			walkAttrExprs(clause.Ensures.Attributes, fn)
			walkExpr(clause.Ensures.Expr, fn)
		}
	}
}

func walkImplExprs(impl *parser.ImplDecl, fn func(*parser.Expr)) {
	walkAttrExprs(impl.Attributes, fn)
	for _, local := range impl.Body.Locals {
		for _, g := range local.Groups {
			walkExpr(g.Where, fn)
		}
	}
	walkStmtExprs(impl.Body.Stmts, fn)
}

// sweepProxies verifies that a 0-error typecheck left no expression with an
// unresolved proxy in its type. A hit is a type-checker bug or an
// under-constrained program the checker failed to report, so it is fatal.
func sweepProxies(p *Program) {
	fn := func(e *parser.Expr) {
		if e.T != nil && types.HasProxies(e.T) {
			panic(fmt.Sprintf("%s: unresolved type proxy %s survived typechecking", e.Pos, e.T))
		}
	}
	for _, d := range p.AST.Decls {
		if d.Implementation != nil && p.isDropped(d.Implementation) {
			continue
		}
		walkDeclExprs(d, fn)
	}
	for _, impl := range p.Synthetic {
		if !p.isDropped(impl) {
			walkImplExprs(impl, fn)
		}
	}
}
