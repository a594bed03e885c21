package types

import "fmt"

// proxyType is implemented by all three proxy flavors. A proxy resolves at
// most once; Follow chases resolution chains with path compression.
type proxyType interface {
	Type
	target() Type
	setTarget(Type)
}

var proxyID uint64

func nextProxyName(prefix string) string {
	proxyID++
	return fmt.Sprintf("%s!%d", prefix, proxyID)
}

// Proxy is an unconstrained placeholder type. It unifies with anything via a
// single resolve-once assignment.
type Proxy struct {
	Name string
	ref  Type
}

var _ Type = &Proxy{}

func NewProxy() *Proxy {
	return &Proxy{Name: nextProxyName("ty")}
}

func (p *Proxy) Kind() Kind         { return KindProxy }
func (p *Proxy) target() Type       { return p.ref }
func (p *Proxy) setTarget(t Type)   { p.ref = t }
func (p *Proxy) Resolved() (Type, bool) {
	if p.ref == nil {
		return nil, false
	}
	return Follow(p), true
}
func (p *Proxy) String() string {
	if p.ref != nil {
		return Follow(p).String()
	}
	return p.Name
}

// BVConstraint records that the widths of two bitvector operands must sum to
// the width of the constrained proxy. Produced by bit concatenation.
type BVConstraint struct {
	T0, T1 Type
}

// BVProxy is a placeholder for a bitvector type of unknown width. MinBits is
// a lower bound on the final width.
type BVProxy struct {
	Name        string
	ref         Type
	MinBits     int
	Constraints []BVConstraint
}

var _ Type = &BVProxy{}

func NewBVProxy(minBits int) *BVProxy {
	return &BVProxy{Name: nextProxyName("bv"), MinBits: minBits}
}

func (p *BVProxy) Kind() Kind       { return KindBVProxy }
func (p *BVProxy) target() Type     { return p.ref }
func (p *BVProxy) setTarget(t Type) { p.ref = t }
func (p *BVProxy) String() string {
	if p.ref != nil {
		return Follow(p).String()
	}
	return fmt.Sprintf("%s(>=%d)", p.Name, p.MinBits)
}

// MapConstraint records a usage-site shape a map proxy must be unifiable
// with once its concrete map type is known.
type MapConstraint struct {
	Args   []Type
	Result Type
}

// MapProxy is a placeholder for a map type of known arity but unknown
// argument and result types.
type MapProxy struct {
	Name        string
	ref         Type
	Arity       int
	Constraints []MapConstraint
}

var _ Type = &MapProxy{}

func NewMapProxy(arity int) *MapProxy {
	return &MapProxy{Name: nextProxyName("map"), Arity: arity}
}

func (p *MapProxy) Kind() Kind       { return KindMapProxy }
func (p *MapProxy) target() Type     { return p.ref }
func (p *MapProxy) setTarget(t Type) { p.ref = t }
func (p *MapProxy) String() string {
	if p.ref != nil {
		return Follow(p).String()
	}
	return fmt.Sprintf("%s/%d", p.Name, p.Arity)
}

// Follow chases a chain of resolved proxies to its ultimate target,
// compressing the path so later lookups are O(1). Unresolved proxies and
// non-proxies are returned unchanged. Not safe for concurrent use.
func Follow(t Type) Type {
	p, ok := t.(proxyType)
	if !ok || p.target() == nil {
		return t
	}
	root := Follow(p.target())
	p.setTarget(root)
	return root
}

// Expand follows proxies and expands synonym annotations until a structural
// head is reached.
func Expand(t Type) Type {
	t = Follow(t)
	if s, ok := t.(*Synonym); ok {
		return Expand(s.Expansion)
	}
	return t
}

// resolveProxy binds an unresolved proxy to its final type. Resolving twice
// is a unification bug.
func resolveProxy(p proxyType, t Type) {
	if p.target() != nil {
		panic("proxy resolved twice")
	}
	if t == p {
		panic("proxy resolved to itself")
	}
	p.setTarget(t)
}

// occursInType reports whether the proxy p occurs (transitively, following
// resolved proxies and synonym expansions) inside t. Used as the occurs
// check before resolving p: a proxy may not specialise to a compound type
// containing itself.
func occursInType(p proxyType, t Type) bool {
	t = Expand(t)
	if t == p {
		return true
	}
	switch t := t.(type) {
	case *Ctor:
		for _, a := range t.Args {
			if occursInType(p, a) {
				return true
			}
		}
	case *Map:
		for _, a := range t.Args {
			if occursInType(p, a) {
				return true
			}
		}
		return occursInType(p, t.Result)
	case *BVProxy:
		for _, c := range t.Constraints {
			if occursInType(p, c.T0) || occursInType(p, c.T1) {
				return true
			}
		}
	case *MapProxy:
		for _, c := range t.Constraints {
			for _, a := range c.Args {
				if occursInType(p, a) {
					return true
				}
			}
			if occursInType(p, c.Result) {
				return true
			}
		}
	}
	return false
}

// HasProxies reports whether t contains any unresolved proxy. A type that
// still does after a successful typecheck indicates an under-constrained
// program or a checker bug.
func HasProxies(t Type) bool {
	t = Expand(t)
	switch t := t.(type) {
	case *Proxy, *BVProxy, *MapProxy:
		return true
	case *Ctor:
		for _, a := range t.Args {
			if HasProxies(a) {
				return true
			}
		}
	case *Map:
		for _, a := range t.Args {
			if HasProxies(a) {
				return true
			}
		}
		return HasProxies(t.Result)
	}
	return false
}
