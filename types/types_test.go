package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBVInterning(t *testing.T) {
	require.True(t, BVBits(8) == BVBits(8))
	require.True(t, BVBits(64) == BVBits(64))
	require.Equal(t, "bv8", BVBits(8).String())
	// Widths beyond the cache are still well-formed.
	a, b := BVBits(1024), BVBits(1024)
	require.Equal(t, a.Bits, b.Bits)
}

func TestCtorArity(t *testing.T) {
	pair := &CtorDecl{Name: "Pair", Arity: 2}
	c := NewCtor(pair, []Type{Int, Bool})
	require.Equal(t, "(Pair int bool)", c.String())
	require.Panics(t, func() { NewCtor(pair, []Type{Int}) })
}

func TestVariableIdentity(t *testing.T) {
	a, b := NewVariable("T"), NewVariable("T")
	require.False(t, Equal(a, b))
	require.True(t, Equal(a, a))
}

func TestAlphaEquivalence(t *testing.T) {
	// <T>[T]T == <U>[U]U
	tv, uv := NewVariable("T"), NewVariable("U")
	a := &Map{Params: []*Variable{tv}, Args: []Type{tv}, Result: tv}
	b := &Map{Params: []*Variable{uv}, Args: []Type{uv}, Result: uv}
	require.True(t, Equal(a, b))

	// <T>[T]T != [V]V for free V.
	fv := NewVariable("V")
	c := &Map{Args: []Type{fv}, Result: fv}
	require.False(t, Equal(a, c))

	// Same free variable on both sides is equal.
	d := &Map{Args: []Type{fv}, Result: fv}
	require.True(t, Equal(c, d))

	// A variable bound on one side cannot match itself free on the other.
	e := &Map{Params: []*Variable{fv}, Args: []Type{fv}, Result: fv}
	require.False(t, Equal(d, e))
}

func TestSynonymTransparency(t *testing.T) {
	// type Pair T = <U>[U]T; Pair int expands to <U>[U]int.
	tv := NewVariable("T")
	uv := NewVariable("U")
	decl := &SynonymDecl{
		Name:   "Pair",
		Params: []*Variable{tv},
		Body:   &Map{Params: []*Variable{uv}, Args: []Type{uv}, Result: tv},
	}
	s := NewSynonym(decl, []Type{Int})
	m, ok := Expand(s).(*Map)
	require.True(t, ok)
	require.True(t, Equal(m.Result, Int))
	wv := NewVariable("W")
	require.True(t, Equal(s, &Map{Params: []*Variable{wv}, Args: []Type{wv}, Result: Int}))
}

func TestSubstituteShadowing(t *testing.T) {
	tv := NewVariable("T")
	m := &Map{Params: []*Variable{tv}, Args: []Type{tv}, Result: tv}
	// T is bound by the map; substituting it is a no-op.
	out := Substitute(m, Subst{tv: Int})
	require.True(t, Equal(m, out))
}

func TestFreeVariables(t *testing.T) {
	tv, uv := NewVariable("T"), NewVariable("U")
	m := &Map{Params: []*Variable{tv}, Args: []Type{tv, uv}, Result: Int}
	free := VarSet{}
	FreeVariables(m, free)
	require.False(t, free[tv])
	require.True(t, free[uv])
}

func TestFollowPathCompression(t *testing.T) {
	p, q := NewProxy(), NewProxy()
	resolveProxy(p, q)
	resolveProxy(q, Int)
	require.Equal(t, Int, Follow(p))
	// After compression p points straight at the root.
	require.Equal(t, Int, p.target())
	require.Panics(t, func() { resolveProxy(q, Bool) })
}
