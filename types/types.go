package types

import (
	"fmt"
	"strings"
)

// A Type in the verl type system.
//
// Types are immutable once resolved. The exception is the proxy family
// (Proxy, BVProxy, MapProxy), whose instances stand in for a type not yet
// determined by unification and resolve to another type at most once.
type Type interface {
	Kind() Kind
	String() string
}

// Basic is one of the built-in scalar types.
type Basic Kind

var (
	Int  Type = Basic(KindInt)
	Bool Type = Basic(KindBool)
)

var _ Type = Basic(KindInt)

func (b Basic) Kind() Kind     { return Kind(b) }
func (b Basic) String() string { return Kind(b).String() }

// BV is a bitvector type of fixed width.
type BV struct {
	Bits int
}

var _ Type = &BV{}

// Common widths are interned so repeated bv8/bv32/bv64 references share one
// instance. The core is single-threaded, so a plain map suffices.
var bvCache = map[int]*BV{}

// BVBits returns the bitvector type of the given width.
func BVBits(bits int) *BV {
	if bits < 0 {
		panic("negative bitvector width")
	}
	if bits <= 64 {
		if t, ok := bvCache[bits]; ok {
			return t
		}
		t := &BV{Bits: bits}
		bvCache[bits] = t
		return t
	}
	return &BV{Bits: bits}
}

func (b *BV) Kind() Kind     { return KindBV }
func (b *BV) String() string { return fmt.Sprintf("bv%d", b.Bits) }

// A Variable is a type variable. Identity is the pointer; the name exists
// only for printing. Two free variables are equal only if they are the same
// instance, while bound variables compare by binding position.
type Variable struct {
	Name string
	id   uint64
}

var _ Type = &Variable{}

var variableID uint64

// NewVariable creates a fresh type variable. Every call returns a distinct
// identity even when names collide.
func NewVariable(name string) *Variable {
	variableID++
	return &Variable{Name: name, id: variableID}
}

func (v *Variable) Kind() Kind     { return KindVariable }
func (v *Variable) String() string { return v.Name }

// CtorDecl is the resolved identity of a top-level type constructor
// declaration. Two Ctor types are the same constructor iff they share the
// declaration instance.
type CtorDecl struct {
	Name  string
	Arity int
}

// Ctor is a nullary or applied type constructor.
type Ctor struct {
	Decl *CtorDecl
	Args []Type
}

var _ Type = &Ctor{}

// NewCtor applies a type constructor to arguments. The argument count must
// equal the constructor's declared arity; a mismatch is a resolution bug.
func NewCtor(decl *CtorDecl, args []Type) *Ctor {
	if len(args) != decl.Arity {
		panic(fmt.Sprintf("type constructor %s expects %d arguments, got %d", decl.Name, decl.Arity, len(args)))
	}
	return &Ctor{Decl: decl, Args: args}
}

func (c *Ctor) Kind() Kind { return KindCtor }
func (c *Ctor) String() string {
	if len(c.Args) == 0 {
		return c.Decl.Name
	}
	parts := []string{c.Decl.Name}
	for _, a := range c.Args {
		parts = append(parts, atomString(a))
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// SynonymDecl is the resolved identity of a type synonym declaration. Body
// is filled in by the synonym fixed-point pass and is bool when the synonym
// participated in a cycle.
type SynonymDecl struct {
	Name   string
	Params []*Variable
	Body   Type
}

// Instantiate expands the synonym body at the given arguments.
func (d *SynonymDecl) Instantiate(args []Type) Type {
	if len(args) != len(d.Params) {
		panic(fmt.Sprintf("type synonym %s expects %d arguments, got %d", d.Name, len(d.Params), len(args)))
	}
	if len(args) == 0 {
		return d.Body
	}
	s := Subst{}
	for i, p := range d.Params {
		s[p] = args[i]
	}
	return Substitute(d.Body, s)
}

// Synonym is a transparent annotation wrapping the expansion of a type
// synonym application. Equality, unification and substitution all behave as
// if it were the expansion; the wrapper survives only so the synonym name
// can be reproduced on output.
type Synonym struct {
	Decl      *SynonymDecl
	Args      []Type
	Expansion Type
}

var _ Type = &Synonym{}

// NewSynonym applies a synonym to arguments, computing the expansion.
func NewSynonym(decl *SynonymDecl, args []Type) *Synonym {
	return &Synonym{Decl: decl, Args: args, Expansion: decl.Instantiate(args)}
}

func (s *Synonym) Kind() Kind { return KindSynonym }
func (s *Synonym) String() string {
	if len(s.Args) == 0 {
		return s.Decl.Name
	}
	parts := []string{s.Decl.Name}
	for _, a := range s.Args {
		parts = append(parts, atomString(a))
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Map is a polymorphic map type <Params>[Args]Result. Resolution checks that
// every parameter occurs free in Args or Result.
type Map struct {
	Params []*Variable
	Args   []Type
	Result Type
}

var _ Type = &Map{}

func (m *Map) Kind() Kind { return KindMap }
func (m *Map) String() string {
	w := &strings.Builder{}
	if len(m.Params) > 0 {
		names := make([]string, len(m.Params))
		for i, p := range m.Params {
			names[i] = p.Name
		}
		fmt.Fprintf(w, "<%s>", strings.Join(names, ","))
	}
	args := make([]string, len(m.Args))
	for i, a := range m.Args {
		args[i] = a.String()
	}
	fmt.Fprintf(w, "[%s]%s", strings.Join(args, ","), m.Result.String())
	return w.String()
}

// atomString parenthesises compound types in application-argument position.
func atomString(t Type) string {
	switch t := Expand(t).(type) {
	case *Ctor:
		if len(t.Args) > 0 {
			return t.String() // already parenthesised
		}
	case *Map:
		return "(" + t.String() + ")"
	}
	return t.String()
}

// Equal reports structural equality of two types up to consistent renaming
// of bound type variables (alpha-equivalence). Free variables are equal only
// by identity. Synonyms compare as their expansions and resolved proxies as
// their targets.
func Equal(a, b Type) bool {
	return alphaEqual(a, b, nil, nil)
}

func alphaEqual(a, b Type, boundA, boundB []*Variable) bool {
	a = Expand(a)
	b = Expand(b)
	if a == b {
		// Identical instance; bound occurrences still need positional
		// agreement, but an instance bound on one side cannot appear free
		// on the other within the same comparison.
		if av, ok := a.(*Variable); ok {
			return bindingIndex(boundA, av) == bindingIndex(boundB, av)
		}
		return true
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
		if !ok {
			return false
		}
		ia, ib := bindingIndex(boundA, at), bindingIndex(boundB, bt)
		if ia < 0 && ib < 0 {
			return at == bt
		}
		return ia == ib
	case *Ctor:
		bt, ok := b.(*Ctor)
		if !ok || at.Decl != bt.Decl {
			return false
		}
		for i := range at.Args {
			if !alphaEqual(at.Args[i], bt.Args[i], boundA, boundB) {
				return false
			}
		}
		return true
	case *Map:
		bt, ok := b.(*Map)
		if !ok || len(at.Params) != len(bt.Params) || len(at.Args) != len(bt.Args) {
			return false
		}
		ba := append(append([]*Variable{}, boundA...), at.Params...)
		bb := append(append([]*Variable{}, boundB...), bt.Params...)
		for i := range at.Args {
			if !alphaEqual(at.Args[i], bt.Args[i], ba, bb) {
				return false
			}
		}
		return alphaEqual(at.Result, bt.Result, ba, bb)
	default:
		// Unresolved proxies compare by identity, handled above.
		return false
	}
}

// bindingIndex returns the innermost binding position of v, or -1 if free.
func bindingIndex(bound []*Variable, v *Variable) int {
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] == v {
			return i
		}
	}
	return -1
}
