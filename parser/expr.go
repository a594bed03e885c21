package parser

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/alecthomas/participle"
	"github.com/alecthomas/participle/lexer"
	"github.com/pkg/errors"

	"github.com/verlang/verl/types"
)

// Expr is an expression: either a unary leaf or a binary node. Binary
// structure is built by hand with precedence climbing because operator
// precedence tables don't map cleanly onto a PEG.
type Expr struct {
	Pos lexer.Position

	Unary *Unary

	Left  *Expr
	Op    Op
	Right *Expr

	T types.Type // resolved
}

func (e *Expr) Parse(lex *lexer.PeekingLexer) error {
	ex, err := parseExpr(lex, 0)
	if err != nil {
		return err
	}
	*e = *ex
	return nil
}

func parseExpr(lex *lexer.PeekingLexer, minPrec int) (*Expr, error) {
	lhs, err := parseOperand(lex)
	if err != nil {
		return nil, err
	}
	for {
		token, err := lex.Peek(0)
		if err != nil {
			return nil, err
		}
		op, ok := binaryOps[token.Value]
		if token.Type != operatorToken || !ok {
			break
		}
		prec := info[op].Priority
		if prec < minPrec {
			break
		}
		_, _ = lex.Next()
		next := prec + 1
		if info[op].RightAssociative {
			next = prec
		}
		rhs, err := parseExpr(lex, next)
		if err != nil {
			return nil, err
		}
		lhs = &Expr{Pos: lhs.Pos, Left: lhs, Op: op, Right: rhs}
	}
	return lhs, nil
}

func parseOperand(lex *lexer.PeekingLexer) (*Expr, error) {
	u := &Unary{}
	err := unaryParser.ParseFromLexer(lex, u, participle.AllowTrailing(true))
	if err != nil {
		return nil, err
	}
	return &Expr{Pos: u.Pos, Unary: u}, nil
}

// IntLiteral returns the expression's value when it is a bare integer
// literal, and nil otherwise.
func (e *Expr) IntLiteral() *big.Int {
	if e == nil || e.Unary == nil {
		return nil
	}
	u := e.Unary
	if u.Op != OpNone || u.Primary == nil || len(u.Primary.Selects) != 0 {
		return nil
	}
	if u.Primary.Literal == nil || u.Primary.Literal.Number == nil {
		return nil
	}
	return &u.Primary.Literal.Number.Int
}

// StringLiteral returns the expression's value when it is a bare string
// literal.
func (e *Expr) StringLiteral() (string, bool) {
	if e == nil || e.Unary == nil {
		return "", false
	}
	u := e.Unary
	if u.Op != OpNone || u.Primary == nil || len(u.Primary.Selects) != 0 {
		return "", false
	}
	if u.Primary.Literal == nil || u.Primary.Literal.Str == nil {
		return "", false
	}
	return string(*u.Primary.Literal.Str), true
}

type Unary struct {
	Pos lexer.Position

	Op      Op       `@( "!" | "-" )?`
	Primary *Primary `@@`

	T types.Type // resolved
}

// Primary is an atomic expression followed by zero or more map operations.
type Primary struct {
	Pos lexer.Position

	Quantifier *QuantifierExpr `( @@`
	Old        *OldExpr        `| @@`
	Literal    *Literal        `| @@`
	SubExpr    *Expr           `| "(" @@ ")"`
	Ident      string          `| @Ident`
	Call       *CallArgs       `  @@? )`
	Selects    []*MapOp        `@@*`

	// Filled in by resolution: for an identifier, the variable or function
	// it binds to.
	Var  *Var
	Func *FuncDecl
	T    types.Type
}

type CallArgs struct {
	Pos lexer.Position

	Args []*Expr `"(" ( @@ ( "," @@ )* )? ")"`
}

// MapOp is one [args] select, or an [args := value] store.
type MapOp struct {
	Pos lexer.Position

	Args  []*Expr `"[" @@ ( "," @@ )*`
	Value *Expr   `( ":=" @@ )? "]"`
}

func (m *MapOp) IsStore() bool { return m.Value != nil }

type OldExpr struct {
	Pos lexer.Position

	Expr *Expr `"old" "(" @@ ")"`
}

type QuantifierExpr struct {
	Pos lexer.Position

	Exists     bool             `"(" ( @"exists" | "forall" )`
	TypeParams []string         `( "<" @Ident ( "," @Ident )* ">" )?`
	Vars       []*TypedIdents   `@@ ( "," @@ )* "::"`
	Attrs      []*AttrOrTrigger `@@*`
	Body       *Expr            `@@ ")"`

	// Filled in by resolution.
	BoundVars []*Var
	TypeVars  []*types.Variable
}

// AttrOrTrigger is a {:name ...} attribute or a bare {e, ...} trigger in
// quantifier position.
type AttrOrTrigger struct {
	Pos lexer.Position

	Name  string  `"{" ( ":" @Ident )?`
	Exprs []*Expr `( @@ ( "," @@ )* )? "}"`
}

func (a *AttrOrTrigger) IsTrigger() bool { return a.Name == "" }

type Literal struct {
	Pos lexer.Position

	BvLit  *BvLit   `( @BvLit`
	Number *Number  `| @Number`
	Str    *StrLit  `| @String`
	Bool   *BoolLit `| @( "true" | "false" ) )`
}

// Number is an arbitrary-precision integer literal.
type Number struct {
	big.Int
}

func (n *Number) Capture(values []string) error {
	if _, ok := n.SetString(values[0], 10); !ok {
		return errors.Errorf("invalid integer literal %q", values[0])
	}
	return nil
}

// BvLit is a bitvector literal of the form <value>bv<bits>.
type BvLit struct {
	Value big.Int
	Bits  int
}

func (b *BvLit) Capture(values []string) error {
	parts := strings.SplitN(values[0], "bv", 2)
	if _, ok := b.Value.SetString(parts[0], 10); !ok {
		return errors.Errorf("invalid bitvector literal %q", values[0])
	}
	bits, err := strconv.Atoi(parts[1])
	if err != nil {
		return errors.Wrapf(err, "invalid bitvector width in %q", values[0])
	}
	b.Bits = bits
	return nil
}

func (b *BvLit) String() string {
	return b.Value.String() + "bv" + strconv.Itoa(b.Bits)
}

// StrLit is a quoted string literal, stored with its escapes expanded.
// Strings appear only as attribute parameters.
type StrLit string

func (s *StrLit) Capture(values []string) error {
	out, err := strconv.Unquote(values[0])
	if err != nil {
		return errors.Wrapf(err, "invalid string literal %s", values[0])
	}
	*s = StrLit(out)
	return nil
}

type BoolLit bool

func (b *BoolLit) Capture(values []string) error {
	*b = values[0] == "true"
	return nil
}
