package analyser

import (
	"strconv"
	"strings"

	"github.com/verlang/verl/parser"
	"github.com/verlang/verl/types"
)

// explode flattens names:type groups into one Var per name.
func explode(groups []*parser.TypedIdents, kind parser.VarKind) []*parser.Var {
	vars := []*parser.Var{}
	for _, g := range groups {
		for _, name := range g.Names {
			vars = append(vars, &parser.Var{
				Pos:   g.Pos,
				Name:  name,
				Kind:  kind,
				Ref:   g.Type,
				Where: g.Where,
			})
		}
	}
	return vars
}

func registerDecl(c *Context, decl *parser.Decl) {
	switch {
	case decl.TypeDecl != nil:
		c.AddType(decl.TypeDecl)

	case decl.Const != nil:
		d := decl.Const
		d.Vars = nil
		for _, name := range d.Names {
			v := &parser.Var{
				Pos:      d.Pos,
				Name:     name,
				Kind:     parser.VarConst,
				Ref:      d.Type,
				Unique:   d.Unique,
				Complete: d.Order != nil && d.Order.Complete,
			}
			if d.Order != nil {
				v.Parents = d.Order.Parents
			}
			d.Vars = append(d.Vars, v)
			c.AddVariable(v)
		}

	case decl.Var != nil:
		d := decl.Var
		d.Vars = explode(d.Groups, parser.VarGlobal)
		for _, v := range d.Vars {
			c.AddVariable(v)
		}

	case decl.Function != nil:
		c.AddFunction(decl.Function)

	case decl.Procedure != nil:
		c.AddProcedure(decl.Procedure)

	case decl.Axiom != nil, decl.Implementation != nil:
		// Axioms are anonymous; implementations bind to their procedure
		// during resolution instead of registering a name.

	default:
		panic("??")
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}

// bvTypeName reports whether name denotes a bitvector type bv<digits>.
func bvTypeName(name string) (int, bool) {
	if !strings.HasPrefix(name, "bv") || len(name) == 2 {
		return 0, false
	}
	for _, r := range name[2:] {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	bits, err := strconv.Atoi(name[2:])
	if err != nil {
		return 0, false
	}
	return bits, true
}

// resolveTypeRef resolves type syntax to a structural type, caching the
// result on the node. Errors recover to bool so resolution can continue.
func resolveTypeRef(c *Context, ref *parser.TypeRef) types.Type {
	if ref == nil {
		return types.Bool
	}
	if ref.Resolved == nil {
		ref.Resolved = resolveTypeSyntax(c, ref)
	}
	return ref.Resolved
}

func resolveTypeSyntax(c *Context, ref *parser.TypeRef) types.Type {
	if ref.Map != nil {
		return resolveMapTypeRef(c, ref.Map)
	}
	args := make([]types.Type, 0, len(ref.Args))
	for _, atom := range ref.Args {
		args = append(args, resolveTypeRef(c, atom.Ref()))
	}
	if v := c.LookupTypeBinder(ref.Name); v != nil {
		if len(args) != 0 {
			c.Errors.Errorf(ref.Pos, "type parameter %q cannot be applied to arguments", ref.Name)
		}
		return v
	}
	if decl := c.LookupType(ref.Name); decl != nil {
		switch {
		case decl.Ctor != nil:
			if len(args) != decl.Ctor.Arity {
				c.Errors.Errorf(ref.Pos, "type %q expects %s, got %d", ref.Name, plural(decl.Ctor.Arity, "argument", "arguments"), len(args))
				return types.Bool
			}
			return types.NewCtor(decl.Ctor, args)

		case decl.Synonym != nil:
			if len(args) != len(decl.Synonym.Params) {
				c.Errors.Errorf(ref.Pos, "type synonym %q expects %s, got %d", ref.Name, plural(len(decl.Synonym.Params), "argument", "arguments"), len(args))
				return types.Bool
			}
			return types.NewSynonym(decl.Synonym, args)

		default:
			// Only reachable from within the synonym fixed point, which
			// guarantees dependencies resolve first.
			c.Errors.Errorf(ref.Pos, "type %q used before it is resolved", ref.Name)
			return types.Bool
		}
	}
	switch ref.Name {
	case "int":
		if len(args) == 0 {
			return types.Int
		}
	case "bool":
		if len(args) == 0 {
			return types.Bool
		}
	}
	if bits, ok := bvTypeName(ref.Name); ok && len(args) == 0 {
		return types.BVBits(bits)
	}
	c.Errors.Errorf(ref.Pos, "unknown type %q", ref.Name)
	return types.Bool
}

func resolveMapTypeRef(c *Context, m *parser.MapTypeRef) types.Type {
	mark := c.SaveTypeBinders()
	defer c.RestoreTypeBinders(mark)
	var params []*types.Variable
	for _, name := range m.TypeParams {
		params = append(params, c.AddTypeBinder(m.Pos, name))
	}
	args := make([]types.Type, 0, len(m.Args))
	for _, arg := range m.Args {
		args = append(args, resolveTypeRef(c, arg))
	}
	result := resolveTypeRef(c, m.Result)
	free := types.VarSet{}
	for _, arg := range args {
		types.FreeVariables(arg, free)
	}
	types.FreeVariables(result, free)
	for i, p := range params {
		if !free[p] {
			c.Errors.Errorf(m.Pos, "type parameter %q does not occur in the map's argument or result types", m.TypeParams[i])
		}
	}
	return &types.Map{Params: params, Args: args, Result: result}
}

func resolveAttributes(c *Context, attrs []*parser.Attribute) {
	for _, a := range attrs {
		for _, e := range a.Params {
			resolveExpr(c, e)
		}
	}
}

func resolveExpr(c *Context, e *parser.Expr) {
	if e == nil {
		return
	}
	if e.Unary != nil {
		resolvePrimary(c, e.Unary.Primary)
		return
	}
	resolveExpr(c, e.Left)
	resolveExpr(c, e.Right)
}

func resolvePrimary(c *Context, p *parser.Primary) {
	switch {
	case p.Quantifier != nil:
		resolveQuantifier(c, p.Quantifier)

	case p.Old != nil:
		if c.mode != TwoState {
			c.Errors.Errorf(p.Old.Pos, "old() is only allowed in a two-state context")
		}
		resolveExpr(c, p.Old.Expr)

	case p.Literal != nil:

	case p.SubExpr != nil:
		resolveExpr(c, p.SubExpr)

	case p.Call != nil:
		fn := c.LookupFunction(p.Ident)
		if fn == nil {
			c.Errors.Errorf(p.Pos, "unknown function %q", p.Ident)
		}
		p.Func = fn
		for _, arg := range p.Call.Args {
			resolveExpr(c, arg)
		}

	default:
		v := c.LookupVariable(p.Ident)
		if v == nil {
			c.Errors.Errorf(p.Pos, "unknown identifier %q", p.Ident)
		} else if v.Kind == parser.VarGlobal && c.mode == Stateless {
			c.Errors.Errorf(p.Pos, "global variable %q is not allowed in a stateless context", p.Ident)
		}
		p.Var = v
	}
	for _, sel := range p.Selects {
		for _, arg := range sel.Args {
			resolveExpr(c, arg)
		}
		resolveExpr(c, sel.Value)
	}
}

func resolveQuantifier(c *Context, q *parser.QuantifierExpr) {
	mark := c.SaveTypeBinders()
	defer c.RestoreTypeBinders(mark)
	q.TypeVars = nil
	for _, name := range q.TypeParams {
		q.TypeVars = append(q.TypeVars, c.AddTypeBinder(q.Pos, name))
	}
	c.PushVarScope()
	defer c.PopVarScope()
	q.BoundVars = explode(q.Vars, parser.VarBound)
	for _, v := range q.BoundVars {
		v.T = resolveTypeRef(c, v.Ref)
		c.AddVariable(v)
	}
	for _, g := range q.Vars {
		resolveExpr(c, g.Where)
	}
	for _, a := range q.Attrs {
		for _, e := range a.Exprs {
			resolveExpr(c, e)
		}
	}
	resolveExpr(c, q.Body)
}

func resolveConstDecl(c *Context, d *parser.ConstDecl) {
	resolveAttributes(c, d.Attributes)
	for _, v := range d.Vars {
		v.T = resolveTypeRef(c, v.Ref)
		seen := map[string]bool{}
		for _, edge := range v.Parents {
			if seen[edge.Name] {
				c.Errors.Errorf(edge.Pos, "duplicate parent constant %q", edge.Name)
				continue
			}
			seen[edge.Name] = true
			parent := c.LookupVariable(edge.Name)
			switch {
			case parent == nil:
				c.Errors.Errorf(edge.Pos, "unknown parent constant %q", edge.Name)
			case parent.Kind != parser.VarConst:
				c.Errors.Errorf(edge.Pos, "parent %q is a %s, not a constant", edge.Name, parent.Kind)
			default:
				edge.Parent = parent
			}
		}
	}
}

func resolveGlobalVarDecl(c *Context, d *parser.VarDecl) {
	resolveAttributes(c, d.Attributes)
	for _, v := range d.Vars {
		v.T = resolveTypeRef(c, v.Ref)
	}
	// Where clauses may reference any global; they resolve in a later pass.
}

// orderTypeVars sorts declared into first-occurrence order across the formal
// types, appending parameters that never occur there. The caller reports the
// appended ones if its declaration kind disallows them.
func orderTypeVars(declared []*types.Variable, formals []types.Type) (ordered, late []*types.Variable) {
	candidates := types.NewVarSet(declared...)
	for _, t := range formals {
		ordered = types.VariablesInOrder(t, candidates, ordered)
	}
	for _, v := range declared {
		found := false
		for _, o := range ordered {
			if o == v {
				found = true
				break
			}
		}
		if !found {
			ordered = append(ordered, v)
			late = append(late, v)
		}
	}
	return ordered, late
}

func resolveFuncDecl(c *Context, f *parser.FuncDecl) {
	mark := c.SaveTypeBinders()
	defer c.RestoreTypeBinders(mark)
	declared := make([]*types.Variable, 0, len(f.TypeParams))
	for _, name := range f.TypeParams {
		declared = append(declared, c.AddTypeBinder(f.Pos, name))
	}
	resolveAttributes(c, f.Attributes)

	f.InVars = nil
	inTypes := []types.Type{}
	for _, p := range f.Params {
		v := &parser.Var{Pos: p.Pos, Name: p.Name, Kind: parser.VarFormalIn, Ref: p.Type}
		v.T = resolveTypeRef(c, p.Type)
		f.InVars = append(f.InVars, v)
		inTypes = append(inTypes, v.T)
	}
	out := &parser.Var{Pos: f.Result.Pos, Name: f.Result.Name, Kind: parser.VarFormalOut, Ref: f.Result.Type}
	out.T = resolveTypeRef(c, f.Result.Type)
	f.OutVar = out

	f.TypeVars, f.LateTypeVars = orderTypeVars(declared, inTypes)
	outFree := types.VarSet{}
	types.FreeVariables(out.T, outFree)
	for _, v := range f.LateTypeVars {
		if !outFree[v] {
			c.Errors.Errorf(f.Pos, "type parameter %q of function %q does not occur in its signature", v.Name, f.Name)
		}
	}

	if f.Body != nil {
		c.PushVarScope()
		defer c.PopVarScope()
		for _, v := range f.InVars {
			if v.Name != "" {
				c.AddVariable(v)
			}
		}
		prev := c.mode
		c.mode = Stateless
		resolveExpr(c, f.Body)
		c.mode = prev
	}
}

func resolveAxiom(c *Context, d *parser.AxiomDecl) {
	resolveAttributes(c, d.Attributes)
	prev := c.mode
	c.mode = Stateless
	resolveExpr(c, d.Expr)
	c.mode = prev
}

func resolveProcDecl(c *Context, p *parser.ProcDecl) {
	if p.Semi && p.Body != nil {
		c.Errors.Errorf(p.Pos, "procedure %q has both a semicolon and a body", p.Name)
	}
	if !p.Semi && p.Body == nil {
		c.Errors.Errorf(p.Pos, "procedure %q without a body must end its signature with a semicolon", p.Name)
	}

	mark := c.SaveTypeBinders()
	defer c.RestoreTypeBinders(mark)
	declared := make([]*types.Variable, 0, len(p.TypeParams))
	for _, name := range p.TypeParams {
		declared = append(declared, c.AddTypeBinder(p.Pos, name))
	}
	resolveAttributes(c, p.Attributes)

	p.InVars = explode(p.Params, parser.VarFormalIn)
	p.OutVars = explode(p.Returns, parser.VarFormalOut)
	formals := []types.Type{}
	for _, v := range append(append([]*parser.Var{}, p.InVars...), p.OutVars...) {
		v.T = resolveTypeRef(c, v.Ref)
		formals = append(formals, v.T)
	}
	p.TypeVars, p.LateTypeVars = orderTypeVars(declared, formals)
	for _, v := range p.LateTypeVars {
		c.Errors.Errorf(p.Pos, "type parameter %q of procedure %q does not occur in its signature", v.Name, p.Name)
	}

	c.PushVarScope()
	defer c.PopVarScope()
	for _, v := range p.InVars {
		c.AddVariable(v)
	}
	prev := c.mode
	defer func() { c.mode = prev }()

	// In-parameter where clauses see in-parameters only.
	c.mode = SingleState
	for _, g := range p.Params {
		resolveExpr(c, g.Where)
	}
	for _, clause := range p.Specs {
		if clause.Requires != nil {
			c.mode = SingleState
			resolveAttributes(c, clause.Requires.Attributes)
			resolveExpr(c, clause.Requires.Expr)
		}
	}

	c.PushVarScope()
	defer c.PopVarScope()
	for _, v := range p.OutVars {
		c.AddVariable(v)
	}
	c.mode = SingleState
	for _, g := range p.Returns {
		resolveExpr(c, g.Where)
	}

	p.ModVars = nil
	for _, clause := range p.Specs {
		switch {
		case clause.Modifies:
			if clause.Free {
				c.Errors.Errorf(clause.Pos, "modifies clauses cannot be free")
			}
			for _, name := range clause.ModNames {
				v := c.LookupVariable(name)
				if v == nil {
					c.Errors.Errorf(clause.Pos, "unknown variable %q in modifies clause", name)
					continue
				}
				p.ModVars = append(p.ModVars, v)
			}
		case clause.Ensures != nil:
			c.mode = TwoState
			resolveAttributes(c, clause.Ensures.Attributes)
			resolveExpr(c, clause.Ensures.Expr)
		}
	}
}

// synthesiseImpl desugars a procedure body into an implementation that
// shares the procedure's resolved formals.
func synthesiseImpl(p *parser.ProcDecl) *parser.ImplDecl {
	return &parser.ImplDecl{
		Pos:       p.Pos,
		Name:      p.Name,
		Body:      p.Body,
		Synthetic: true,
	}
}

func resolveImplDecl(c *Context, impl *parser.ImplDecl) {
	proc := c.LookupProcedure(impl.Name)
	if proc == nil {
		c.Errors.Errorf(impl.Pos, "implementation %q has no matching procedure", impl.Name)
	}
	impl.Proc = proc

	mark := c.SaveTypeBinders()
	defer c.RestoreTypeBinders(mark)
	resolveAttributes(c, impl.Attributes)

	if impl.Synthetic {
		// Desugared from the procedure's own body: reuse its formals and
		// rebind the procedure's type-parameter names to the variables it
		// already resolved, so the body's type references see them.
		if proc != nil {
			impl.TypeVars = proc.TypeVars
			impl.InVars = proc.InVars
			impl.OutVars = proc.OutVars
			for _, name := range proc.TypeParams {
				for _, v := range proc.TypeVars {
					if v.Name == name {
						c.BindTypeVar(name, v)
						break
					}
				}
			}
		}
	} else {
		declared := make([]*types.Variable, 0, len(impl.TypeParams))
		for _, name := range impl.TypeParams {
			declared = append(declared, c.AddTypeBinder(impl.Pos, name))
		}
		for _, g := range append(append([]*parser.TypedIdents{}, impl.Params...), impl.Returns...) {
			if g.Where != nil {
				c.Errors.Errorf(g.Pos, "implementation parameters cannot have where clauses")
			}
		}
		impl.InVars = explode(impl.Params, parser.VarFormalIn)
		impl.OutVars = explode(impl.Returns, parser.VarFormalOut)
		formals := []types.Type{}
		for _, v := range append(append([]*parser.Var{}, impl.InVars...), impl.OutVars...) {
			v.T = resolveTypeRef(c, v.Ref)
			formals = append(formals, v.T)
		}
		var late []*types.Variable
		impl.TypeVars, late = orderTypeVars(declared, formals)
		for _, v := range late {
			c.Errors.Errorf(impl.Pos, "type parameter %q of implementation %q does not occur in its signature", v.Name, impl.Name)
		}
	}

	c.PushVarScope()
	defer c.PopVarScope()
	for _, v := range impl.InVars {
		c.AddVariable(v)
	}
	for _, v := range impl.OutVars {
		c.AddVariable(v)
	}

	body := impl.Body
	body.Vars = nil
	for _, local := range body.Locals {
		resolveAttributes(c, local.Attributes)
		local.Vars = explode(local.Groups, parser.VarLocal)
		for _, v := range local.Vars {
			v.T = resolveTypeRef(c, v.Ref)
			c.AddVariable(v)
		}
		body.Vars = append(body.Vars, local.Vars...)
	}

	prev := c.mode
	c.mode = TwoState
	defer func() { c.mode = prev }()
	for _, local := range body.Locals {
		for _, g := range local.Groups {
			resolveExpr(c, g.Where)
		}
	}

	labels := collectLabels(c, body.Stmts)
	resolveStmts(c, body.Stmts, labels, nil)
}

func collectLabels(c *Context, stmts []*parser.Stmt) map[string]bool {
	labels := map[string]bool{}
	var walk func(stmts []*parser.Stmt)
	var walkIf func(s *parser.IfStmt)
	walkIf = func(s *parser.IfStmt) {
		walk(s.Then.Stmts)
		if s.ElseIf != nil {
			walkIf(s.ElseIf)
		}
		if s.Else != nil {
			walk(s.Else.Stmts)
		}
	}
	walk = func(stmts []*parser.Stmt) {
		for _, s := range stmts {
			switch {
			case s.Label != nil:
				if labels[s.Label.Name] {
					c.Errors.Errorf(s.Label.Pos, "duplicate label %q", s.Label.Name)
				}
				labels[s.Label.Name] = true
			case s.If != nil:
				walkIf(s.If)
			case s.While != nil:
				walk(s.While.Body.Stmts)
			}
		}
	}
	walk(stmts)
	return labels
}

// resolveStmts walks a statement list. loops carries the labels of enclosing
// while loops, innermost last; an unlabelled loop contributes "".
func resolveStmts(c *Context, stmts []*parser.Stmt, labels map[string]bool, loops []string) {
	pendingLabel := ""
	for _, s := range stmts {
		label := pendingLabel
		pendingLabel = ""
		switch {
		case s.Label != nil:
			pendingLabel = s.Label.Name

		case s.Assert != nil:
			resolveAttributes(c, s.Assert.Attributes)
			resolveExpr(c, s.Assert.Expr)

		case s.Assume != nil:
			resolveAttributes(c, s.Assume.Attributes)
			resolveExpr(c, s.Assume.Expr)

		case s.Havoc != nil:
			h := s.Havoc
			h.Vars = nil
			for _, name := range h.Names {
				v := c.LookupVariable(name)
				switch {
				case v == nil:
					c.Errors.Errorf(h.Pos, "unknown identifier %q", name)
				case !v.Mutable():
					c.Errors.Errorf(h.Pos, "cannot havoc %s %q", v.Kind, name)
				default:
					h.Vars = append(h.Vars, v)
				}
			}

		case s.Call != nil:
			call := s.Call
			call.Proc = c.LookupProcedure(call.Name)
			if call.Proc == nil {
				c.Errors.Errorf(call.Pos, "unknown procedure %q", call.Name)
			}
			for _, arg := range call.Args {
				resolveExpr(c, arg)
			}
			call.OutVars = nil
			for _, name := range call.Outs {
				v := c.LookupVariable(name)
				switch {
				case v == nil:
					c.Errors.Errorf(call.Pos, "unknown identifier %q", name)
				case !v.Mutable():
					c.Errors.Errorf(call.Pos, "cannot assign call result to %s %q", v.Kind, name)
				default:
					call.OutVars = append(call.OutVars, v)
				}
			}

		case s.If != nil:
			resolveIf(c, s.If, labels, loops)

		case s.While != nil:
			w := s.While
			resolveGuard(c, w.Guard)
			for _, inv := range w.Invariants {
				resolveExpr(c, inv.Cond)
			}
			resolveStmts(c, w.Body.Stmts, labels, append(loops, label))

		case s.Break != nil:
			b := s.Break
			if len(loops) == 0 {
				c.Errors.Errorf(b.Pos, "break is not inside a loop")
			} else if b.Label != "" {
				found := false
				for _, l := range loops {
					if l == b.Label {
						found = true
						break
					}
				}
				if !found {
					c.Errors.Errorf(b.Pos, "break label %q does not name an enclosing loop", b.Label)
				}
			}

		case s.Return != nil:

		case s.Goto != nil:
			for _, target := range s.Goto.Labels {
				if !labels[target] {
					c.Errors.Errorf(s.Goto.Pos, "goto target %q is not a label in this implementation", target)
				}
			}

		case s.Assign != nil:
			a := s.Assign
			if len(a.LHS) != len(a.RHS) {
				c.Errors.Errorf(a.Pos, "assignment has %d targets but %d values", len(a.LHS), len(a.RHS))
			}
			for _, lhs := range a.LHS {
				v := c.LookupVariable(lhs.Name)
				switch {
				case v == nil:
					c.Errors.Errorf(lhs.Pos, "unknown identifier %q", lhs.Name)
				case !v.Mutable():
					c.Errors.Errorf(lhs.Pos, "cannot assign to %s %q", v.Kind, lhs.Name)
				default:
					lhs.Var = v
				}
				for _, idx := range lhs.Indexes {
					for _, arg := range idx.Args {
						resolveExpr(c, arg)
					}
				}
			}
			for _, rhs := range a.RHS {
				resolveExpr(c, rhs)
			}

		default:
			panic("??")
		}
	}
}

func resolveIf(c *Context, s *parser.IfStmt, labels map[string]bool, loops []string) {
	resolveGuard(c, s.Guard)
	resolveStmts(c, s.Then.Stmts, labels, loops)
	if s.ElseIf != nil {
		resolveIf(c, s.ElseIf, labels, loops)
	}
	if s.Else != nil {
		resolveStmts(c, s.Else.Stmts, labels, loops)
	}
}

func resolveGuard(c *Context, g *parser.Guard) {
	if g.Expr != nil {
		resolveExpr(c, g.Expr)
	}
}
