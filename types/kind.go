package types

type Kind int

const (
	KindInt Kind = iota
	KindBool
	KindBV
	KindVariable
	KindCtor
	KindMap
	KindSynonym
	KindProxy
	KindBVProxy
	KindMapProxy
)

// IsProxy reports whether the kind is one of the unification placeholders.
func (k Kind) IsProxy() bool {
	switch k {
	case KindProxy, KindBVProxy, KindMapProxy:
		return true
	}
	return false
}

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindBV:
		return "bitvector"
	case KindVariable:
		return "type variable"
	case KindCtor:
		return "type constructor"
	case KindMap:
		return "map"
	case KindSynonym:
		return "type synonym"
	case KindProxy:
		return "proxy"
	case KindBVProxy:
		return "bitvector proxy"
	case KindMapProxy:
		return "map proxy"
	default:
		panic("??")
	}
}
