package types

// VariablesInOrder appends the members of candidates that occur free in t to
// out, in first-occurrence order, skipping any already present in out.
// Declarations use this to sort their type parameters by where they first
// appear in the formal argument types.
func VariablesInOrder(t Type, candidates VarSet, out []*Variable) []*Variable {
	return variablesInOrder(Follow(t), candidates, nil, out)
}

func variablesInOrder(t Type, candidates VarSet, bound []*Variable, out []*Variable) []*Variable {
	switch t := Follow(t).(type) {
	case Basic, *BV:

	case *Variable:
		for _, b := range bound {
			if b == t {
				return out
			}
		}
		if !candidates[t] {
			return out
		}
		for _, v := range out {
			if v == t {
				return out
			}
		}
		out = append(out, t)

	case *Ctor:
		for _, arg := range t.Args {
			out = variablesInOrder(arg, candidates, bound, out)
		}

	case *Synonym:
		out = variablesInOrder(t.Expansion, candidates, bound, out)

	case *Map:
		inner := append(bound[:len(bound):len(bound)], t.Params...)
		for _, arg := range t.Args {
			out = variablesInOrder(arg, candidates, inner, out)
		}
		out = variablesInOrder(t.Result, candidates, inner, out)

	case *Proxy, *BVProxy, *MapProxy:
		// Unresolved proxies contain no variables.

	default:
		panic("??")
	}
	return out
}
