package analyser

import (
	"fmt"

	"github.com/alecthomas/participle/lexer"

	"github.com/verlang/verl/parser"
	"github.com/verlang/verl/types"
)

func mustUnify(c *Context, pos lexer.Position, got, want types.Type, what string) {
	if !types.Unify(got, want, nil, types.Subst{}) {
		c.Errors.Errorf(pos, "%s must be %s, not %s", what, want, got)
	}
}

func checkBool(c *Context, e *parser.Expr, what string) {
	if e == nil {
		return
	}
	mustUnify(c, e.Pos, checkExpr(c, e), types.Bool, what)
}

func checkAttributes(c *Context, attrs []*parser.Attribute) {
	for _, a := range attrs {
		for _, e := range a.Params {
			// String parameters are out-of-band data, not values.
			if _, ok := e.StringLiteral(); ok {
				continue
			}
			checkExpr(c, e)
		}
	}
}

func checkConstDecl(c *Context, d *parser.ConstDecl) {
	checkAttributes(c, d.Attributes)
	for _, v := range d.Vars {
		for _, edge := range v.Parents {
			if edge.Parent == nil {
				continue
			}
			if !types.Equal(edge.Parent.T, v.T) {
				c.Errors.Errorf(edge.Pos, "parent constant %q has type %s, but %q has type %s",
					edge.Name, edge.Parent.T, v.Name, v.T)
			}
		}
	}
}

func checkGlobalVarDecl(c *Context, d *parser.VarDecl) {
	checkAttributes(c, d.Attributes)
	for _, g := range d.Groups {
		checkBool(c, g.Where, "where clause")
	}
}

func checkFuncDecl(c *Context, f *parser.FuncDecl) {
	checkAttributes(c, f.Attributes)
	if f.Body == nil {
		return
	}
	t := checkExpr(c, f.Body)
	if !types.Unify(t, f.OutVar.T, nil, types.Subst{}) {
		c.Errors.Errorf(f.Body.Pos, "body of function %q has type %s, but the function returns %s", f.Name, t, f.OutVar.T)
	}
}

func checkAxiom(c *Context, d *parser.AxiomDecl) {
	checkAttributes(c, d.Attributes)
	checkBool(c, d.Expr, "axiom")
}

func checkProcDecl(c *Context, p *parser.ProcDecl) {
	checkAttributes(c, p.Attributes)
	for _, g := range append(append([]*parser.TypedIdents{}, p.Params...), p.Returns...) {
		checkBool(c, g.Where, "where clause")
	}
	for _, clause := range p.Specs {
		switch {
		case clause.Requires != nil:
			checkAttributes(c, clause.Requires.Attributes)
			checkBool(c, clause.Requires.Expr, "precondition")
		case clause.Ensures != nil:
			checkAttributes(c, clause.Ensures.Attributes)
			checkBool(c, clause.Ensures.Expr, "postcondition")
		case clause.Modifies:
		default:
			panic("??")
		}
	}
	for _, v := range p.ModVars {
		if v.Kind != parser.VarGlobal {
			c.Errors.Errorf(p.Pos, "modifies target %q is a %s, not a global variable", v.Name, v.Kind)
		}
	}
}

func checkImplDecl(c *Context, impl *parser.ImplDecl) {
	checkAttributes(c, impl.Attributes)
	if !impl.Synthetic {
		checkImplSignature(c, impl)
	}

	frame := map[*parser.Var]bool{}
	if impl.Proc != nil {
		for _, v := range impl.Proc.ModVars {
			frame[v] = true
		}
	}
	prev := c.frame
	c.frame = frame
	defer func() { c.frame = prev }()

	for _, local := range impl.Body.Locals {
		checkAttributes(c, local.Attributes)
		for _, g := range local.Groups {
			checkBool(c, g.Where, "where clause")
		}
	}
	checkStmts(c, impl.Body.Stmts)
}

// checkImplSignature verifies the implementation's formals element-wise
// against its procedure's, up to a positional renaming of type parameters.
func checkImplSignature(c *Context, impl *parser.ImplDecl) {
	proc := impl.Proc
	if proc == nil {
		return
	}
	if len(impl.TypeVars) != len(proc.TypeVars) {
		c.Errors.Errorf(impl.Pos, "implementation %q has %d type parameters, but procedure has %d",
			impl.Name, len(impl.TypeVars), len(proc.TypeVars))
	}
	rename := types.Subst{}
	for i, tv := range impl.TypeVars {
		if i < len(proc.TypeVars) {
			rename[tv] = proc.TypeVars[i]
		}
	}
	checkFormals(c, impl, rename, impl.InVars, proc.InVars, "in-parameter")
	checkFormals(c, impl, rename, impl.OutVars, proc.OutVars, "out-parameter")
}

func checkFormals(c *Context, impl *parser.ImplDecl, rename types.Subst, got, want []*parser.Var, kind string) {
	if len(got) != len(want) {
		c.Errors.Errorf(impl.Pos, "implementation %q has %d %ss, but procedure has %d",
			impl.Name, len(got), kind, len(want))
	}
	for i := 0; i < len(got) && i < len(want); i++ {
		it := types.Substitute(got[i].T, rename)
		if types.Equal(it, want[i].T) {
			continue
		}
		// Report the implementation's name for the parameter; mention the
		// procedure's when they differ.
		name := got[i].Name
		if want[i].Name != got[i].Name && got[i].Name == "" {
			name = want[i].Name
		}
		c.Errors.Errorf(got[i].Pos, "%s %q of implementation %q has type %s, but procedure declares %s",
			kind, name, impl.Name, got[i].T, want[i].T)
	}
}

func checkStmts(c *Context, stmts []*parser.Stmt) {
	for _, s := range stmts {
		switch {
		case s.Label != nil:

		case s.Assert != nil:
			checkAttributes(c, s.Assert.Attributes)
			checkBool(c, s.Assert.Expr, "assertion")

		case s.Assume != nil:
			checkAttributes(c, s.Assume.Attributes)
			checkBool(c, s.Assume.Expr, "assumption")

		case s.Havoc != nil:
			for _, v := range s.Havoc.Vars {
				checkFrame(c, s.Havoc.Pos, v)
			}

		case s.Call != nil:
			checkCallStmt(c, s.Call)

		case s.If != nil:
			checkIf(c, s.If)

		case s.While != nil:
			checkGuard(c, s.While.Guard)
			for _, inv := range s.While.Invariants {
				checkBool(c, inv.Cond, "loop invariant")
			}
			checkStmts(c, s.While.Body.Stmts)

		case s.Break != nil, s.Return != nil, s.Goto != nil:

		case s.Assign != nil:
			checkAssign(c, s.Assign)

		default:
			panic("??")
		}
	}
}

func checkIf(c *Context, s *parser.IfStmt) {
	checkGuard(c, s.Guard)
	checkStmts(c, s.Then.Stmts)
	if s.ElseIf != nil {
		checkIf(c, s.ElseIf)
	}
	if s.Else != nil {
		checkStmts(c, s.Else.Stmts)
	}
}

func checkGuard(c *Context, g *parser.Guard) {
	if g.Expr != nil {
		checkBool(c, g.Expr, "guard")
	}
}

// checkFrame reports a write to a global the enclosing procedure's contract
// does not permit modifying.
func checkFrame(c *Context, pos lexer.Position, v *parser.Var) {
	if v == nil || v.Kind != parser.VarGlobal {
		return
	}
	if c.frame == nil || !c.frame[v] {
		c.Errors.Errorf(pos, "global %q is not in the enclosing procedure's modifies clause", v.Name)
	}
}

func checkCallStmt(c *Context, call *parser.CallStmt) {
	for _, arg := range call.Args {
		checkExpr(c, arg)
	}
	callee := call.Proc
	if callee == nil {
		return
	}
	if len(call.Args) != len(callee.InVars) {
		c.Errors.Errorf(call.Pos, "procedure %q expects %s, got %d", call.Name, plural(len(callee.InVars), "argument", "arguments"), len(call.Args))
	}
	if len(call.Outs) != len(callee.OutVars) {
		c.Errors.Errorf(call.Pos, "procedure %q returns %d values, but the call binds %d", call.Name, len(callee.OutVars), len(call.Outs))
	}

	inst := types.Subst{}
	for _, tv := range callee.TypeVars {
		inst[tv] = types.NewProxy()
	}
	for i, arg := range call.Args {
		if i >= len(callee.InVars) {
			break
		}
		want := types.Substitute(callee.InVars[i].T, inst)
		if !types.Unify(arg.T, want, nil, types.Subst{}) {
			c.Errors.Errorf(arg.Pos, "argument %d to %q must be %s, not %s", i+1, call.Name, want, arg.T)
		}
	}
	for i, v := range call.OutVars {
		if i >= len(callee.OutVars) {
			break
		}
		want := types.Substitute(callee.OutVars[i].T, inst)
		if !types.Unify(v.T, want, nil, types.Subst{}) {
			c.Errors.Errorf(call.Pos, "result %d of %q has type %s, but is bound to %q of type %s", i+1, call.Name, want, v.Name, v.T)
		}
		checkFrame(c, call.Pos, v)
	}
	for _, m := range callee.ModVars {
		if c.frame == nil || !c.frame[m] {
			c.Errors.Errorf(call.Pos, "call to %q modifies %q, which is not in the enclosing procedure's modifies clause", call.Name, m.Name)
		}
	}
}

func checkAssign(c *Context, a *parser.AssignStmt) {
	seen := map[*parser.Var]bool{}
	for i, lhs := range a.LHS {
		var rt types.Type
		if i < len(a.RHS) {
			rt = checkExpr(c, a.RHS[i])
		}
		if lhs.Var == nil {
			continue
		}
		if len(lhs.Indexes) == 0 {
			if seen[lhs.Var] {
				c.Errors.Errorf(lhs.Pos, "%q is assigned more than once in a parallel assignment", lhs.Name)
			}
			seen[lhs.Var] = true
		}
		checkFrame(c, lhs.Pos, lhs.Var)
		if rt == nil {
			continue
		}
		// a[i][j] := v is sugar for a := a[i := a[i][j := v]]: navigate by
		// selects and unify the element type with the value.
		t := lhs.Var.T
		for _, idx := range lhs.Indexes {
			t = checkSelect(c, idx.Pos, t, idx.Args)
		}
		if !types.Unify(rt, t, nil, types.Subst{}) {
			c.Errors.Errorf(lhs.Pos, "cannot assign %s to %q of type %s", rt, lhs.Name, t)
		}
	}
	for i := len(a.LHS); i < len(a.RHS); i++ {
		checkExpr(c, a.RHS[i])
	}
}

func checkExpr(c *Context, e *parser.Expr) types.Type {
	if e == nil {
		return types.Bool
	}
	if e.T != nil {
		return e.T
	}
	if e.Unary != nil {
		e.T = checkUnary(c, e.Unary)
		return e.T
	}
	e.T = checkBinary(c, e)
	return e.T
}

func checkBinary(c *Context, e *parser.Expr) types.Type {
	l := checkExpr(c, e.Left)
	r := checkExpr(c, e.Right)
	op := e.Op
	switch {
	case op.IsLogical():
		mustUnify(c, e.Left.Pos, l, types.Bool, fmt.Sprintf("left operand of %s", op))
		mustUnify(c, e.Right.Pos, r, types.Bool, fmt.Sprintf("right operand of %s", op))
		return types.Bool

	case op == parser.OpEq, op == parser.OpNe, op == parser.OpSubtype:
		if !types.Unify(l, r, nil, types.Subst{}) {
			c.Errors.Errorf(e.Pos, "cannot compare %s and %s with %s", l, r, op)
		}
		return types.Bool

	case op.IsRelational():
		mustUnify(c, e.Left.Pos, l, types.Int, fmt.Sprintf("left operand of %s", op))
		mustUnify(c, e.Right.Pos, r, types.Int, fmt.Sprintf("right operand of %s", op))
		return types.Bool

	case op == parser.OpConcat:
		return checkConcat(c, e, l, r)

	case op.IsArithmetic():
		mustUnify(c, e.Left.Pos, l, types.Int, fmt.Sprintf("left operand of %s", op))
		mustUnify(c, e.Right.Pos, r, types.Int, fmt.Sprintf("right operand of %s", op))
		return types.Int

	default:
		panic("??")
	}
}

// bvOperand coerces a concatenation operand to a bitvector shape, returning
// its minimum width.
func bvOperand(c *Context, pos lexer.Position, t types.Type) (int, bool) {
	switch t := types.Expand(t).(type) {
	case *types.BV:
		return t.Bits, true
	case *types.BVProxy:
		return t.MinBits, true
	case *types.Proxy:
		if types.Unify(t, types.NewBVProxy(0), nil, types.Subst{}) {
			return 0, true
		}
	}
	c.Errors.Errorf(pos, "++ operand must be a bitvector, not %s", t)
	return 0, false
}

func checkConcat(c *Context, e *parser.Expr, l, r types.Type) types.Type {
	lw, lok := bvOperand(c, e.Left.Pos, l)
	rw, rok := bvOperand(c, e.Right.Pos, r)
	if !lok || !rok {
		return types.BVBits(0)
	}
	le, re := types.Expand(l), types.Expand(r)
	if lb, ok := le.(*types.BV); ok {
		if rb, ok := re.(*types.BV); ok {
			return types.BVBits(lb.Bits + rb.Bits)
		}
	}
	// At least one operand width is still open: the result is a proxy whose
	// width must equal the sum of the operands'.
	cat := types.NewBVProxy(lw + rw)
	cat.Constraints = []types.BVConstraint{{T0: le, T1: re}}
	return cat
}

func checkUnary(c *Context, u *parser.Unary) types.Type {
	t := checkPrimary(c, u.Primary)
	switch u.Op {
	case parser.OpNone:
	case parser.OpNot:
		mustUnify(c, u.Pos, t, types.Bool, "operand of !")
		t = types.Bool
	case parser.OpSub:
		mustUnify(c, u.Pos, t, types.Int, "operand of unary -")
		t = types.Int
	default:
		panic("??")
	}
	u.T = t
	return t
}

func checkPrimary(c *Context, p *parser.Primary) types.Type {
	var t types.Type
	switch {
	case p.Quantifier != nil:
		t = checkQuantifier(c, p.Quantifier)

	case p.Old != nil:
		t = checkExpr(c, p.Old.Expr)

	case p.Literal != nil:
		t = checkLiteral(c, p.Literal)

	case p.SubExpr != nil:
		t = checkExpr(c, p.SubExpr)

	case p.Call != nil:
		t = checkCall(c, p)

	default:
		if p.Var == nil {
			t = types.Bool
		} else {
			t = p.Var.T
		}
	}
	for _, sel := range p.Selects {
		if sel.IsStore() {
			t = checkStore(c, sel, t)
		} else {
			t = checkSelect(c, sel.Pos, t, sel.Args)
		}
	}
	p.T = t
	return t
}

func checkLiteral(c *Context, l *parser.Literal) types.Type {
	switch {
	case l.BvLit != nil:
		if l.BvLit.Value.BitLen() > l.BvLit.Bits {
			c.Errors.Errorf(l.Pos, "bitvector literal %s does not fit in %d bits", l.BvLit.Value.String(), l.BvLit.Bits)
		}
		return types.BVBits(l.BvLit.Bits)
	case l.Number != nil:
		return types.Int
	case l.Str != nil:
		c.Errors.Errorf(l.Pos, "string literals are only allowed as attribute parameters")
		return types.Bool
	case l.Bool != nil:
		return types.Bool
	default:
		panic("??")
	}
}

func checkCall(c *Context, p *parser.Primary) types.Type {
	for _, arg := range p.Call.Args {
		checkExpr(c, arg)
	}
	fn := p.Func
	if fn == nil {
		return types.Bool
	}
	if len(p.Call.Args) != len(fn.InVars) {
		c.Errors.Errorf(p.Pos, "function %q expects %s, got %d", fn.Name, plural(len(fn.InVars), "argument", "arguments"), len(p.Call.Args))
	}
	inst := types.Subst{}
	for _, tv := range fn.TypeVars {
		inst[tv] = types.NewProxy()
	}
	for i, arg := range p.Call.Args {
		if i >= len(fn.InVars) {
			break
		}
		want := types.Substitute(fn.InVars[i].T, inst)
		if !types.Unify(arg.T, want, nil, types.Subst{}) {
			c.Errors.Errorf(arg.Pos, "argument %d to %q must be %s, not %s", i+1, fn.Name, want, arg.T)
		}
	}
	return types.Substitute(fn.OutVar.T, inst)
}

func checkQuantifier(c *Context, q *parser.QuantifierExpr) types.Type {
	for _, g := range q.Vars {
		checkBool(c, g.Where, "where clause")
	}
	for _, a := range q.Attrs {
		for _, e := range a.Exprs {
			if _, ok := e.StringLiteral(); ok && !a.IsTrigger() {
				continue
			}
			checkExpr(c, e)
		}
		if a.IsTrigger() && len(a.Exprs) == 0 {
			c.Errors.Errorf(a.Pos, "trigger must contain at least one expression")
		}
	}
	checkBool(c, q.Body, "quantifier body")
	return types.Bool
}

// checkSelect types t[args], returning the element type.
func checkSelect(c *Context, pos lexer.Position, t types.Type, args []*parser.Expr) types.Type {
	argTs := make([]types.Type, 0, len(args))
	for _, arg := range args {
		argTs = append(argTs, checkExpr(c, arg))
	}
	switch m := types.Expand(t).(type) {
	case *types.Map:
		if len(m.Args) != len(args) {
			c.Errors.Errorf(pos, "map of type %s expects %s, got %d", t, plural(len(m.Args), "index", "indexes"), len(args))
			return types.Bool
		}
		inst := types.Subst{}
		for _, tv := range m.Params {
			inst[tv] = types.NewProxy()
		}
		for i, at := range argTs {
			want := types.Substitute(m.Args[i], inst)
			if !types.Unify(at, want, nil, types.Subst{}) {
				c.Errors.Errorf(args[i].Pos, "map index %d must be %s, not %s", i+1, want, at)
			}
		}
		return types.Substitute(m.Result, inst)

	case *types.Proxy, *types.MapProxy:
		surv := deferSelect(c, pos, m, len(args))
		if surv == nil {
			return types.Bool
		}
		result := types.NewProxy()
		surv.Constraints = append(surv.Constraints, types.MapConstraint{Args: argTs, Result: result})
		return result

	default:
		c.Errors.Errorf(pos, "cannot index a value of type %s", t)
		return types.Bool
	}
}

// checkStore types t[args := value], returning the map type itself.
func checkStore(c *Context, sel *parser.MapOp, t types.Type) types.Type {
	argTs := make([]types.Type, 0, len(sel.Args))
	for _, arg := range sel.Args {
		argTs = append(argTs, checkExpr(c, arg))
	}
	vt := checkExpr(c, sel.Value)
	switch m := types.Expand(t).(type) {
	case *types.Map:
		if len(m.Args) != len(sel.Args) {
			c.Errors.Errorf(sel.Pos, "map of type %s expects %s, got %d", t, plural(len(m.Args), "index", "indexes"), len(sel.Args))
			return t
		}
		inst := types.Subst{}
		for _, tv := range m.Params {
			inst[tv] = types.NewProxy()
		}
		for i, at := range argTs {
			want := types.Substitute(m.Args[i], inst)
			if !types.Unify(at, want, nil, types.Subst{}) {
				c.Errors.Errorf(sel.Args[i].Pos, "map index %d must be %s, not %s", i+1, want, at)
			}
		}
		want := types.Substitute(m.Result, inst)
		if !types.Unify(vt, want, nil, types.Subst{}) {
			c.Errors.Errorf(sel.Value.Pos, "map of type %s stores %s, cannot assign %s", t, want, vt)
		}
		return t

	case *types.Proxy, *types.MapProxy:
		surv := deferSelect(c, sel.Pos, m, len(sel.Args))
		if surv == nil {
			return t
		}
		surv.Constraints = append(surv.Constraints, types.MapConstraint{Args: argTs, Result: vt})
		return t

	default:
		c.Errors.Errorf(sel.Pos, "cannot index a value of type %s", t)
		return t
	}
}

// deferSelect forces an unresolved type into a map proxy of the given arity
// so that usage constraints can be recorded against it.
func deferSelect(c *Context, pos lexer.Position, t types.Type, arity int) *types.MapProxy {
	mp := types.NewMapProxy(arity)
	if !types.Unify(t, mp, nil, types.Subst{}) {
		c.Errors.Errorf(pos, "cannot index a value of type %s with %d indexes", t, arity)
		return nil
	}
	surv, ok := types.Follow(mp).(*types.MapProxy)
	if !ok {
		panic("??")
	}
	return surv
}
