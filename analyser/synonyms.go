package analyser

import (
	"github.com/verlang/verl/parser"
	"github.com/verlang/verl/types"
)

// resolveTypeCtors fills in the constructor declaration of every body-less
// type. Constructors carry no structure beyond name and arity, so this
// cannot fail except for malformed parameter lists.
func resolveTypeCtors(c *Context, decls []*parser.TypeDecl) {
	for _, d := range decls {
		if d.IsSynonym() {
			continue
		}
		checkTypeParams(c, d)
		d.Ctor = &types.CtorDecl{Name: d.Name, Arity: len(d.Params)}
	}
}

func checkTypeParams(c *Context, d *parser.TypeDecl) {
	seen := map[string]bool{}
	for _, p := range d.Params {
		if seen[p] {
			c.Errors.Errorf(d.Pos, "duplicate type parameter %q in type %q", p, d.Name)
		}
		seen[p] = true
	}
}

// resolveSynonyms resolves synonym bodies to fixed point: each pass resolves
// every synonym whose referenced synonyms are already resolved. A pass with
// no progress means the remainder form cycles; each member gets an error and
// a bool body so later resolution does not cascade.
func resolveSynonyms(c *Context, decls []*parser.TypeDecl) {
	var pending []*parser.TypeDecl
	for _, d := range decls {
		if d.IsSynonym() {
			pending = append(pending, d)
		}
	}
	for len(pending) > 0 {
		var remaining []*parser.TypeDecl
		for _, d := range pending {
			if dependsOnUnresolved(c, d.Body, map[string]bool{}, paramSet(d.Params)) {
				remaining = append(remaining, d)
				continue
			}
			resolveSynonymBody(c, d)
		}
		if len(remaining) == len(pending) {
			for _, d := range remaining {
				c.Errors.Errorf(d.Pos, "type synonym %q has a cyclic definition", d.Name)
				params := make([]*types.Variable, 0, len(d.Params))
				for _, name := range d.Params {
					params = append(params, types.NewVariable(name))
				}
				d.Synonym = &types.SynonymDecl{Name: d.Name, Params: params, Body: types.Bool}
			}
			return
		}
		pending = remaining
	}
}

func paramSet(names []string) map[string]bool {
	set := map[string]bool{}
	for _, n := range names {
		set[n] = true
	}
	return set
}

// dependsOnUnresolved is a purely syntactic walk over unresolved type syntax
// looking for references to synonyms that have not been resolved yet. Names
// bound by the synonym's own parameters or by map type parameters are not
// dependencies.
func dependsOnUnresolved(c *Context, ref *parser.TypeRef, bound, params map[string]bool) bool {
	if ref == nil {
		return false
	}
	if ref.Map != nil {
		return mapDependsOnUnresolved(c, ref.Map, bound, params)
	}
	if !bound[ref.Name] && !params[ref.Name] {
		if d := c.LookupType(ref.Name); d != nil && d.IsSynonym() && d.Synonym == nil {
			return true
		}
	}
	for _, atom := range ref.Args {
		if dependsOnUnresolved(c, atom.Ref(), bound, params) {
			return true
		}
	}
	return false
}

func mapDependsOnUnresolved(c *Context, m *parser.MapTypeRef, bound, params map[string]bool) bool {
	inner := bound
	if len(m.TypeParams) > 0 {
		inner = map[string]bool{}
		for k := range bound {
			inner[k] = true
		}
		for _, p := range m.TypeParams {
			inner[p] = true
		}
	}
	for _, arg := range m.Args {
		if dependsOnUnresolved(c, arg, inner, params) {
			return true
		}
	}
	return dependsOnUnresolved(c, m.Result, inner, params)
}

func resolveSynonymBody(c *Context, d *parser.TypeDecl) {
	mark := c.SaveTypeBinders()
	defer c.RestoreTypeBinders(mark)
	checkTypeParams(c, d)
	params := make([]*types.Variable, 0, len(d.Params))
	for _, name := range d.Params {
		params = append(params, c.AddTypeBinder(d.Pos, name))
	}
	body := resolveTypeRef(c, d.Body)
	d.Synonym = &types.SynonymDecl{Name: d.Name, Params: params, Body: body}
}
