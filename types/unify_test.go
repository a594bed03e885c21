package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnifyConcreteMatchesEqual(t *testing.T) {
	ctor := &CtorDecl{Name: "ref", Arity: 1}
	tv := NewVariable("T")
	concrete := []Type{
		Int,
		Bool,
		BVBits(8),
		BVBits(16),
		NewCtor(ctor, []Type{Int}),
		NewCtor(ctor, []Type{Bool}),
		&Map{Args: []Type{Int}, Result: Bool},
		&Map{Args: []Type{Int, Int}, Result: Bool},
		&Map{Params: []*Variable{tv}, Args: []Type{tv}, Result: tv},
	}
	for _, a := range concrete {
		for _, b := range concrete {
			subst := Subst{}
			got := Unify(a, b, nil, subst)
			require.Equal(t, Equal(a, b), got, "unify(%s, %s)", a, b)
			require.Empty(t, subst)
		}
	}
}

func TestUnifyBindsVariable(t *testing.T) {
	tv := NewVariable("T")
	subst := Subst{}
	require.True(t, Unify(tv, Int, NewVarSet(tv), subst))
	require.True(t, Equal(subst[tv], Int))
	// Rebinding against an incompatible type fails.
	require.False(t, Unify(tv, Bool, NewVarSet(tv), subst))
	// A rigid (non-unifiable) variable does not bind.
	rigid := NewVariable("U")
	require.False(t, Unify(rigid, Int, nil, Subst{}))
}

func TestUnifySubstitutionIdempotent(t *testing.T) {
	tv, uv := NewVariable("T"), NewVariable("U")
	unifiable := NewVarSet(tv, uv)
	subst := Subst{}
	// T ~ U then U ~ int: both end up mapped to int with no chains.
	require.True(t, Unify(tv, uv, unifiable, subst))
	require.True(t, Unify(uv, Int, unifiable, subst))
	for v, bound := range subst {
		require.True(t, Equal(Substitute(bound, subst), bound), "binding of %s not idempotent", v)
	}
	require.True(t, Equal(Substitute(tv, subst), Substitute(uv, subst)))
}

func TestUnifyOccursCheckVariable(t *testing.T) {
	tv := NewVariable("T")
	m := &Map{Args: []Type{tv}, Result: Bool}
	require.False(t, Unify(tv, m, NewVarSet(tv), Subst{}))
}

func TestUnifyProxyResolves(t *testing.T) {
	for _, target := range []Type{Int, Bool, BVBits(8), &Map{Args: []Type{Int}, Result: Bool}} {
		p := NewProxy()
		require.True(t, Unify(p, target, nil, Subst{}))
		require.True(t, Equal(p, target))
		// Resolving is idempotent: unifying again is a no-op success.
		require.True(t, Unify(p, target, nil, Subst{}))
		require.True(t, Equal(p, target))
	}
}

func TestUnifyProxyOccursCheck(t *testing.T) {
	p := NewProxy()
	m := &Map{Args: []Type{p}, Result: Bool}
	require.False(t, Unify(p, m, nil, Subst{}))
	q := NewProxy()
	m2 := &Map{Args: []Type{Int}, Result: q}
	require.False(t, Unify(q, m2, nil, Subst{}))
}

func TestUnifyProxyChains(t *testing.T) {
	p, q := NewProxy(), NewProxy()
	require.True(t, Unify(p, q, nil, Subst{}))
	require.True(t, Unify(q, Int, nil, Subst{}))
	require.True(t, Equal(p, Int))
}

func TestBVProxyMonotonic(t *testing.T) {
	p := NewBVProxy(4)
	require.True(t, Unify(p, BVBits(8), nil, Subst{}))
	require.True(t, Equal(p, BVBits(8)))
	// Already resolved to width 8; width 4 no longer fits.
	require.False(t, Unify(p, BVBits(4), nil, Subst{}))
}

func TestBVProxyMinimumTooLarge(t *testing.T) {
	p := NewBVProxy(16)
	require.False(t, Unify(p, BVBits(8), nil, Subst{}))
}

func TestBVProxyMerge(t *testing.T) {
	a, b := NewBVProxy(4), NewBVProxy(12)
	require.True(t, Unify(a, b, nil, Subst{}))
	// The merged proxy keeps the larger minimum.
	require.False(t, Unify(a, BVBits(8), nil, Subst{}))
	require.True(t, Unify(b, BVBits(16), nil, Subst{}))
	require.True(t, Equal(a, BVBits(16)))
}

func TestBVConcatConstraint(t *testing.T) {
	// x ++ y : bv12 with x : bv8 forces y : bv4.
	x := BVBits(8)
	y := NewBVProxy(0)
	cat := NewBVProxy(8)
	cat.Constraints = []BVConstraint{{T0: x, T1: y}}
	require.True(t, Unify(cat, BVBits(12), nil, Subst{}))
	require.True(t, Equal(y, BVBits(4)))
}

func TestBVConcatBothFlexible(t *testing.T) {
	x, y := NewBVProxy(4), NewBVProxy(2)
	cat := NewBVProxy(6)
	cat.Constraints = []BVConstraint{{T0: x, T1: y}}
	require.True(t, Unify(cat, BVBits(10), nil, Subst{}))
	w0, _, _ := bvWidth(x)
	w1, _, _ := bvWidth(y)
	require.Equal(t, 10, w0+w1)
}

func TestBVConcatInfeasible(t *testing.T) {
	cat := NewBVProxy(8)
	cat.Constraints = []BVConstraint{{T0: BVBits(8), T1: BVBits(8)}}
	require.False(t, Unify(cat, BVBits(12), nil, Subst{}))
}

func TestMapProxyAgainstConcrete(t *testing.T) {
	m := &Map{Args: []Type{Int}, Result: Bool}
	p := NewMapProxy(1)
	result := NewProxy()
	p.Constraints = []MapConstraint{{Args: []Type{Int}, Result: result}}
	require.True(t, Unify(p, m, nil, Subst{}))
	require.True(t, Equal(p, m))
	require.True(t, Equal(result, Bool))
}

func TestMapProxyPolymorphicConstraint(t *testing.T) {
	// <T>[T]T selected at int must produce int.
	tv := NewVariable("T")
	m := &Map{Params: []*Variable{tv}, Args: []Type{tv}, Result: tv}
	p := NewMapProxy(1)
	result := NewProxy()
	p.Constraints = []MapConstraint{{Args: []Type{Int}, Result: result}}
	require.True(t, Unify(p, m, nil, Subst{}))
	require.True(t, Equal(result, Int))
}

func TestMapProxyArityMismatch(t *testing.T) {
	p := NewMapProxy(2)
	m := &Map{Args: []Type{Int}, Result: Bool}
	require.False(t, Unify(p, m, nil, Subst{}))
	q := NewMapProxy(1)
	require.False(t, Unify(NewMapProxy(2), q, nil, Subst{}))
}

func TestMapProxyMerge(t *testing.T) {
	a, b := NewMapProxy(1), NewMapProxy(1)
	r1, r2 := NewProxy(), NewProxy()
	a.Constraints = []MapConstraint{{Args: []Type{Int}, Result: r1}}
	b.Constraints = []MapConstraint{{Args: []Type{Int}, Result: r2}}
	require.True(t, Unify(a, b, nil, Subst{}))
	m := &Map{Args: []Type{Int}, Result: Bool}
	require.True(t, Unify(a, m, nil, Subst{}))
	require.True(t, Equal(r1, Bool))
	require.True(t, Equal(r2, Bool))
}

func TestMismatchedProxyKinds(t *testing.T) {
	require.False(t, Unify(NewBVProxy(0), NewMapProxy(1), nil, Subst{}))
	require.False(t, Unify(NewBVProxy(0), Int, nil, Subst{}))
	require.False(t, Unify(NewMapProxy(1), BVBits(8), nil, Subst{}))
}

func TestUnifyPolymorphicMapsRenamesBinders(t *testing.T) {
	tv, uv := NewVariable("T"), NewVariable("U")
	a := &Map{Params: []*Variable{tv}, Args: []Type{tv}, Result: tv}
	b := &Map{Params: []*Variable{uv}, Args: []Type{uv}, Result: uv}
	require.True(t, Unify(a, b, nil, Subst{}))
}

func TestUnifyMapBinderEscape(t *testing.T) {
	// <T>[T]int against <U>[U']int where U' is chosen so the fresh binder
	// would have to leak into the substitution.
	tv, uv := NewVariable("T"), NewVariable("U")
	ext := NewVariable("X")
	a := &Map{Params: []*Variable{tv}, Args: []Type{tv}, Result: Int}
	b := &Map{Params: []*Variable{uv}, Args: []Type{ext}, Result: Int}
	subst := Subst{}
	require.False(t, Unify(a, b, NewVarSet(ext), subst))
}

func TestUnifySynonymTransparent(t *testing.T) {
	decl := &SynonymDecl{Name: "heap", Body: &Map{Args: []Type{Int}, Result: Bool}}
	s := NewSynonym(decl, nil)
	require.True(t, Unify(s, &Map{Args: []Type{Int}, Result: Bool}, nil, Subst{}))
	p := NewProxy()
	require.True(t, Unify(p, s, nil, Subst{}))
	require.False(t, HasProxies(p))
}
