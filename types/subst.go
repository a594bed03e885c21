package types

// Subst is a substitution of type variables. Unification keeps substitutions
// idempotent: no variable in the domain occurs free in any bound value.
type Subst map[*Variable]Type

// VarSet is a set of type variables.
type VarSet map[*Variable]bool

// NewVarSet builds a set from the given variables.
func NewVarSet(vars ...*Variable) VarSet {
	s := VarSet{}
	for _, v := range vars {
		s[v] = true
	}
	return s
}

// FreeVariables adds the free type variables of t to the set. Resolved
// proxies and synonyms are looked through; map type parameters are bound and
// excluded within their scope.
func FreeVariables(t Type, into VarSet) {
	freeVariables(t, nil, into)
}

func freeVariables(t Type, bound []*Variable, into VarSet) {
	t = Expand(t)
	switch t := t.(type) {
	case *Variable:
		if bindingIndex(bound, t) < 0 {
			into[t] = true
		}
	case *Ctor:
		for _, a := range t.Args {
			freeVariables(a, bound, into)
		}
	case *Map:
		inner := append(append([]*Variable{}, bound...), t.Params...)
		for _, a := range t.Args {
			freeVariables(a, inner, into)
		}
		freeVariables(t.Result, inner, into)
	case *BVProxy:
		for _, c := range t.Constraints {
			freeVariables(c.T0, bound, into)
			freeVariables(c.T1, bound, into)
		}
	case *MapProxy:
		for _, c := range t.Constraints {
			for _, a := range c.Args {
				freeVariables(a, bound, into)
			}
			freeVariables(c.Result, bound, into)
		}
	}
}

// occursFree reports whether v occurs free in t.
func occursFree(v *Variable, t Type) bool {
	free := VarSet{}
	FreeVariables(t, free)
	return free[v]
}

// Substitute replaces free occurrences of the substitution's variables in t.
// Map type parameters shadow outer bindings of the same variable instance.
// The input is never mutated; untouched subtrees are shared.
func Substitute(t Type, s Subst) Type {
	if len(s) == 0 {
		return t
	}
	return substitute(t, s)
}

func substitute(t Type, s Subst) Type {
	t = Follow(t)
	switch t := t.(type) {
	case *Variable:
		if r, ok := s[t]; ok {
			return r
		}
		return t
	case *Ctor:
		args, changed := substituteAll(t.Args, s)
		if !changed {
			return t
		}
		return &Ctor{Decl: t.Decl, Args: args}
	case *Synonym:
		args, changed := substituteAll(t.Args, s)
		if !changed {
			return t
		}
		return NewSynonym(t.Decl, args)
	case *Map:
		inner := s
		for _, p := range t.Params {
			if _, ok := inner[p]; ok {
				// Shadowed binder: narrow the substitution.
				narrowed := Subst{}
				for k, v := range inner {
					if bindingIndex(t.Params, k) < 0 {
						narrowed[k] = v
					}
				}
				inner = narrowed
				break
			}
		}
		if len(inner) == 0 {
			return t
		}
		args, changedA := substituteAll(t.Args, inner)
		result := substitute(t.Result, inner)
		if !changedA && result == t.Result {
			return t
		}
		return &Map{Params: t.Params, Args: args, Result: result}
	default:
		return t
	}
}

func substituteAll(ts []Type, s Subst) ([]Type, bool) {
	changed := false
	out := make([]Type, len(ts))
	for i, t := range ts {
		out[i] = substitute(t, s)
		if out[i] != t {
			changed = true
		}
	}
	return out, changed
}

// bind extends the substitution with v -> t, re-substituting existing
// entries so the substitution stays idempotent. The caller has already
// normalised t and performed the occurs check.
func (s Subst) bind(v *Variable, t Type) {
	one := Subst{v: t}
	for w, u := range s {
		s[w] = Substitute(u, one)
	}
	s[v] = t
}
