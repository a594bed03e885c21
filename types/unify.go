package types

// Unify attempts to make a and b equal by extending subst with bindings for
// variables in unifiable and by resolving proxies. On success subst remains
// idempotent and Substitute(a, subst) equals Substitute(b, subst). On
// failure it returns false; subst may have been partially extended and
// proxies partially resolved.
func Unify(a, b Type, unifiable VarSet, subst Subst) bool {
	a = Expand(a)
	b = Expand(b)
	if a == b {
		return true
	}

	// Unifiable type variables bind before proxies so that explicit type
	// parameters win over placeholders.
	if av, ok := a.(*Variable); ok && unifiable[av] {
		return bindVariable(av, b, unifiable, subst)
	}
	if bv, ok := b.(*Variable); ok && unifiable[bv] {
		return bindVariable(bv, a, unifiable, subst)
	}

	if ap, ok := a.(proxyType); ok {
		return unifyProxy(ap, b, unifiable, subst)
	}
	if bp, ok := b.(proxyType); ok {
		return unifyProxy(bp, a, unifiable, subst)
	}

	switch at := a.(type) {
	case Basic:
		bt, ok := b.(Basic)
		return ok && at == bt
	case *BV:
		bt, ok := b.(*BV)
		return ok && at.Bits == bt.Bits
	case *Variable:
		bt, ok := b.(*Variable)
		return ok && at == bt
	case *Ctor:
		bt, ok := b.(*Ctor)
		if !ok || at.Decl != bt.Decl {
			return false
		}
		for i := range at.Args {
			if !Unify(at.Args[i], bt.Args[i], unifiable, subst) {
				return false
			}
		}
		return true
	case *Map:
		bt, ok := b.(*Map)
		if !ok {
			return false
		}
		return unifyMaps(at, bt, unifiable, subst)
	default:
		return false
	}
}

// bindVariable binds v to t in subst, unifying against any previous binding.
func bindVariable(v *Variable, t Type, unifiable VarSet, subst Subst) bool {
	if prev, ok := subst[v]; ok {
		return Unify(prev, t, unifiable, subst)
	}
	t = Substitute(Expand(t), subst)
	if tv, ok := Expand(t).(*Variable); ok && tv == v {
		return true
	}
	if occursFree(v, t) {
		return false
	}
	subst.bind(v, t)
	return true
}

// unifyProxy unifies an unresolved proxy p with other (already expanded,
// known not to be a unifiable variable).
func unifyProxy(p proxyType, other Type, unifiable VarSet, subst Subst) bool {
	switch pt := p.(type) {
	case *Proxy:
		if occursInType(p, other) {
			return other == Type(p) // p ~ p is fine, a cycle is not
		}
		resolveProxy(pt, other)
		return true

	case *BVProxy:
		switch ot := other.(type) {
		case *BV:
			return resolveBVProxy(pt, ot.Bits, unifiable, subst)
		case *BVProxy:
			return mergeBVProxies(pt, ot)
		case *Proxy:
			if occursInType(ot, pt) {
				return false
			}
			resolveProxy(ot, pt)
			return true
		default:
			return false
		}

	case *MapProxy:
		switch ot := other.(type) {
		case *Map:
			return resolveMapProxy(pt, ot, unifiable, subst)
		case *MapProxy:
			return mergeMapProxies(pt, ot)
		case *Proxy:
			if occursInType(ot, pt) {
				return false
			}
			resolveProxy(ot, pt)
			return true
		default:
			return false
		}

	default:
		panic("??")
	}
}

// unifyMaps unifies two concrete map types. Both sides' bound type
// parameters are renamed to shared fresh variables before the component
// types are compared; afterwards no fresh variable may have escaped into the
// substitution or into either side's free variables. The escape check
// rejects unifying e.g. <T>[T]int with [int]int in a way that leaks T.
func unifyMaps(a, b *Map, unifiable VarSet, subst Subst) bool {
	if len(a.Params) != len(b.Params) || len(a.Args) != len(b.Args) {
		return false
	}
	fresh := make([]*Variable, len(a.Params))
	renameA, renameB := Subst{}, Subst{}
	for i := range a.Params {
		fresh[i] = NewVariable(a.Params[i].Name)
		renameA[a.Params[i]] = fresh[i]
		renameB[b.Params[i]] = fresh[i]
	}
	for i := range a.Args {
		if !Unify(Substitute(a.Args[i], renameA), Substitute(b.Args[i], renameB), unifiable, subst) {
			return false
		}
	}
	if !Unify(Substitute(a.Result, renameA), Substitute(b.Result, renameB), unifiable, subst) {
		return false
	}
	if len(fresh) == 0 {
		return true
	}
	escaped := VarSet{}
	for _, u := range subst {
		FreeVariables(u, escaped)
	}
	// Proxies resolved during the component unifications can also carry a
	// fresh variable out of the binder's scope.
	FreeVariables(a, escaped)
	FreeVariables(b, escaped)
	for _, f := range fresh {
		if escaped[f] {
			return false
		}
	}
	return true
}

// bvWidth returns the known or minimum width of a bitvector-shaped type. An
// unconstrained proxy is committed to being a bitvector of unknown width.
func bvWidth(t Type) (bits int, p *BVProxy, ok bool) {
	switch t := Expand(t).(type) {
	case *BV:
		return t.Bits, nil, true
	case *BVProxy:
		return t.MinBits, t, true
	case *Proxy:
		bp := NewBVProxy(0)
		resolveProxy(t, bp)
		return 0, bp, true
	default:
		return 0, nil, false
	}
}

// resolveBVProxy commits p to a bitvector of exactly bits bits, distributing
// the residual width across any recorded width-sum constraints. A proxy's
// minimum can always be raised to any value not less than it, so a feasible
// distribution always exists when the minima fit.
func resolveBVProxy(p *BVProxy, bits int, unifiable VarSet, subst Subst) bool {
	if r := Follow(p); r != Type(p) {
		return Unify(r, BVBits(bits), unifiable, subst)
	}
	if p.MinBits > bits {
		return false
	}
	resolveProxy(p, BVBits(bits))
	for _, c := range p.Constraints {
		if !distributeBVWidth(c, bits, unifiable, subst) {
			return false
		}
	}
	return true
}

// distributeBVWidth makes the widths of a constraint's two operands sum to
// total, widening proxies as needed.
func distributeBVWidth(c BVConstraint, total int, unifiable VarSet, subst Subst) bool {
	w0, p0, ok0 := bvWidth(c.T0)
	w1, p1, ok1 := bvWidth(c.T1)
	if !ok0 || !ok1 || w0+w1 > total {
		return false
	}
	switch {
	case p0 == nil && p1 == nil:
		return w0+w1 == total
	case p0 == nil:
		return resolveBVProxy(p1, total-w0, unifiable, subst)
	case p1 == nil:
		return resolveBVProxy(p0, total-w1, unifiable, subst)
	default:
		// Both flexible: the left operand keeps its minimum, the right
		// absorbs the residual capacity.
		return resolveBVProxy(p0, w0, unifiable, subst) &&
			resolveBVProxy(p1, total-w0, unifiable, subst)
	}
}

// mergeBVProxies merges two unknown-width bitvector proxies. Without
// width-sum constraints the less constrained defers to the larger minimum;
// with constraints a fresh proxy takes the union of both constraint sets.
func mergeBVProxies(a, b *BVProxy) bool {
	if a == b {
		return true
	}
	if len(a.Constraints) == 0 && len(b.Constraints) == 0 {
		if a.MinBits >= b.MinBits {
			resolveProxy(b, a)
		} else {
			resolveProxy(a, b)
		}
		return true
	}
	min := a.MinBits
	if b.MinBits > min {
		min = b.MinBits
	}
	merged := NewBVProxy(min)
	merged.Constraints = append(append([]BVConstraint{}, a.Constraints...), b.Constraints...)
	resolveProxy(a, merged)
	resolveProxy(b, merged)
	return true
}

// resolveMapProxy commits p to the concrete map type m. Every recorded
// usage-site constraint must independently unify against m's shape, with
// m's type parameters freshly instantiated to proxies per constraint.
func resolveMapProxy(p *MapProxy, m *Map, unifiable VarSet, subst Subst) bool {
	if p.Arity != len(m.Args) {
		return false
	}
	if occursInType(p, m) {
		return false
	}
	resolveProxy(p, m)
	for _, c := range p.Constraints {
		if !checkMapConstraint(m, c, unifiable, subst) {
			return false
		}
	}
	return true
}

func checkMapConstraint(m *Map, c MapConstraint, unifiable VarSet, subst Subst) bool {
	inst := Subst{}
	for _, tp := range m.Params {
		inst[tp] = NewProxy()
	}
	for i := range c.Args {
		if !Unify(Substitute(m.Args[i], inst), c.Args[i], unifiable, subst) {
			return false
		}
	}
	return Unify(Substitute(m.Result, inst), c.Result, unifiable, subst)
}

// mergeMapProxies folds a's constraints onto b, which survives.
func mergeMapProxies(a, b *MapProxy) bool {
	if a == b {
		return true
	}
	if a.Arity != b.Arity {
		return false
	}
	b.Constraints = append(b.Constraints, a.Constraints...)
	resolveProxy(a, b)
	return true
}
