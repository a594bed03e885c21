package parser

type Op int

const (
	OpNone    Op = iota
	OpIff        // <==>
	OpImplies    // ==>
	OpOr         // ||
	OpAnd        // &&
	OpEq         // ==
	OpNe         // !=
	OpLt         // <
	OpLe         // <=
	OpGt         // >
	OpGe         // >=
	OpSubtype    // <:
	OpConcat     // ++
	OpAdd        // +
	OpSub        // -
	OpMul        // *
	OpDiv        // /
	OpMod        // %
	OpNot        // !
)

func (o Op) String() string {
	switch o {
	case OpIff:
		return "<==>"
	case OpImplies:
		return "==>"
	case OpOr:
		return "||"
	case OpAnd:
		return "&&"
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpSubtype:
		return "<:"
	case OpConcat:
		return "++"
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpNot:
		return "!"
	default:
		panic("??")
	}
}

func (o *Op) Capture(values []string) error {
	op, ok := binaryOps[values[0]]
	if !ok {
		switch values[0] {
		case "!":
			op = OpNot
		default:
			panic(values[0])
		}
	}
	*o = op
	return nil
}

var binaryOps = map[string]Op{
	"<==>": OpIff,
	"==>":  OpImplies,
	"||":   OpOr,
	"&&":   OpAnd,
	"==":   OpEq,
	"!=":   OpNe,
	"<":    OpLt,
	"<=":   OpLe,
	">":    OpGt,
	">=":   OpGe,
	"<:":   OpSubtype,
	"++":   OpConcat,
	"+":    OpAdd,
	"-":    OpSub,
	"*":    OpMul,
	"/":    OpDiv,
	"%":    OpMod,
}

type opInfo struct {
	RightAssociative bool
	Priority         int
}

var info = map[Op]opInfo{
	OpIff:     {Priority: 1},
	OpImplies: {RightAssociative: true, Priority: 2},
	OpOr:      {Priority: 3},
	OpAnd:     {Priority: 4},
	OpEq:      {Priority: 5},
	OpNe:      {Priority: 5},
	OpLt:      {Priority: 5},
	OpLe:      {Priority: 5},
	OpGt:      {Priority: 5},
	OpGe:      {Priority: 5},
	OpSubtype: {Priority: 5},
	OpConcat:  {Priority: 6},
	OpAdd:     {Priority: 7},
	OpSub:     {Priority: 7},
	OpMul:     {Priority: 8},
	OpDiv:     {Priority: 8},
	OpMod:     {Priority: 8},
}

// Priority returns the operator's binding strength; higher binds tighter.
func (o Op) Priority() int { return info[o].Priority }

func (o Op) RightAssociative() bool { return info[o].RightAssociative }

// IsRelational reports whether the operator yields bool from comparable
// operands.
func (o Op) IsRelational() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpSubtype:
		return true
	}
	return false
}

// IsLogical reports whether the operator works on bool operands.
func (o Op) IsLogical() bool {
	switch o {
	case OpIff, OpImplies, OpOr, OpAnd:
		return true
	}
	return false
}

// IsArithmetic reports whether the operator works on int operands.
func (o Op) IsArithmetic() bool {
	switch o {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		return true
	}
	return false
}
