package parser

import (
	"io"
	"strings"

	"github.com/alecthomas/participle"
	"github.com/alecthomas/participle/lexer"

	"github.com/verlang/verl/types"
)

var (
	parser = participle.MustBuild(&Program{},
		participle.Lexer(lex),
		participle.UseLookahead(2),
	)
	unaryParser = participle.MustBuild(&Unary{},
		participle.Lexer(lex),
		participle.UseLookahead(2),
	)
)

// Program is the top-level parse result: an ordered list of declarations.
type Program struct {
	Pos lexer.Position

	Decls []*Decl `@@*`
}

// Decl is a top-level declaration.
type Decl struct {
	Pos lexer.Position

	TypeDecl       *TypeDecl  `( @@`
	Const          *ConstDecl `| @@`
	Var            *VarDecl   `| @@`
	Function       *FuncDecl  `| @@`
	Axiom          *AxiomDecl `| @@`
	Procedure      *ProcDecl  `| @@`
	Implementation *ImplDecl  `| @@ )`
}

// An Attribute is an out-of-band {:name e, ...} directive attached to a
// declaration. Downstream passes query these by name.
type Attribute struct {
	Pos lexer.Position

	Name   string  `"{" ":" @Ident`
	Params []*Expr `( @@ ( "," @@ )* )? "}"`
}

// TypeDecl declares either a type constructor (no body; arity is the number
// of parameters) or a type synonym (with a body).
type TypeDecl struct {
	Pos lexer.Position

	Attributes []*Attribute `"type" @@*`
	Name       string       `@Ident`
	Params     []string     `@Ident*`
	Body       *TypeRef     `( "=" @@ )? ";"`

	// Filled in by resolution: exactly one of the two is set.
	Ctor    *types.CtorDecl
	Synonym *types.SynonymDecl
}

// IsSynonym reports whether the declaration has a synonym body.
func (t *TypeDecl) IsSynonym() bool { return t.Body != nil }

// ConstDecl declares one or more constants, optionally unique and optionally
// with parent constants forming a subtyping order.
type ConstDecl struct {
	Pos lexer.Position

	Attributes []*Attribute `"const" @@*`
	Unique     bool         `@"unique"?`
	Names      []string     `@Ident ( "," @Ident )*`
	Type       *TypeRef     `":" @@`
	Order      *OrderSpec   `( "extends" @@ )? ";"`

	Vars []*Var // resolved
}

type OrderSpec struct {
	Pos lexer.Position

	Parents  []*ParentEdge `( @@ ( "," @@ )* )?`
	Complete bool          `@"complete"?`
}

type ParentEdge struct {
	Pos lexer.Position

	Unique bool   `@"unique"?`
	Name   string `@Ident`

	Parent *Var // resolved
}

// VarDecl declares global variables, or locals when it appears inside an
// implementation body.
type VarDecl struct {
	Pos lexer.Position

	Attributes []*Attribute  `"var" @@*`
	Groups     []*TypedIdents `@@ ( "," @@ )* ";"`

	Vars []*Var // resolved
}

// TypedIdents is a names:type group, used for variables, formal parameters
// and quantifier bindings.
type TypedIdents struct {
	Pos lexer.Position

	Names []string `@Ident ( "," @Ident )*`
	Type  *TypeRef `":" @@`
	Where *Expr    `( "where" @@ )?`
}

// FuncDecl declares an uninterpreted or expandable function. The body is
// present only for expandable functions.
type FuncDecl struct {
	Pos lexer.Position

	Attributes []*Attribute `"function" @@*`
	Name       string       `@Ident`
	TypeParams []string     `( "<" @Ident ( "," @Ident )* ">" )?`
	Params     []*FuncParam `"(" ( @@ ( "," @@ )* )? ")"`
	Result     *FuncParam   `"returns" "(" @@ ")"`
	Body       *Expr        `( "{" @@ "}" | ";" )`

	// Filled in by resolution. TypeVars is reordered to first-occurrence
	// order in the formal argument types; type parameters that never occur
	// there are appended and also listed in LateTypeVars.
	TypeVars     []*types.Variable
	LateTypeVars []*types.Variable
	InVars       []*Var
	OutVar       *Var
}

func (f *FuncDecl) DeclName() string { return f.Name }

// FuncParam is a (possibly anonymous) function parameter.
type FuncParam struct {
	Pos lexer.Position

	Name string   `( @Ident ":" )?`
	Type *TypeRef `@@`
}

type AxiomDecl struct {
	Pos lexer.Position

	Attributes []*Attribute `"axiom" @@*`
	Expr       *Expr        `@@ ";"`
}

// ProcDecl declares a procedure signature and contract. A body is sugar for
// an accompanying implementation, synthesised during resolution.
type ProcDecl struct {
	Pos lexer.Position

	Attributes []*Attribute   `"procedure" @@*`
	Name       string         `@Ident`
	TypeParams []string       `( "<" @Ident ( "," @Ident )* ">" )?`
	Params     []*TypedIdents `"(" ( @@ ( "," @@ )* )? ")"`
	Returns    []*TypedIdents `( "returns" "(" ( @@ ( "," @@ )* )? ")" )?`
	Semi       bool           `@";"?`
	Specs      []*SpecClause  `@@*`
	Body       *Body          `@@?`

	TypeVars     []*types.Variable
	LateTypeVars []*types.Variable
	InVars       []*Var
	OutVars      []*Var
	ModVars      []*Var // resolved modifies targets, in declaration order
}

func (p *ProcDecl) DeclName() string { return p.Name }

// SpecClause is one requires/modifies/ensures contract clause.
type SpecClause struct {
	Pos lexer.Position

	Free     bool       `@"free"?`
	Requires *Condition `( "requires" @@ ";"`
	Modifies bool       `| @"modifies"`
	ModNames []string   `  ( @Ident ( "," @Ident )* )? ";"`
	Ensures  *Condition `| "ensures" @@ ";" )`
}

// Condition is a contract expression. A {:comment} attribute documents the
// clause; {:msg} overrides the verification error message.
type Condition struct {
	Pos lexer.Position

	Attributes []*Attribute `@@*`
	Expr       *Expr        `@@`
}

func (c *Condition) Comment() (string, bool) {
	return FindStringAttribute(c.Attributes, "comment")
}

func (c *Condition) ErrorMessage() (string, bool) {
	return FindStringAttribute(c.Attributes, "msg")
}

// ImplDecl provides a body for a procedure of the same name.
type ImplDecl struct {
	Pos lexer.Position

	Attributes []*Attribute   `"implementation" @@*`
	Name       string         `@Ident`
	TypeParams []string       `( "<" @Ident ( "," @Ident )* ">" )?`
	Params     []*TypedIdents `"(" ( @@ ( "," @@ )* )? ")"`
	Returns    []*TypedIdents `( "returns" "(" ( @@ ( "," @@ )* )? ")" )?`
	Body       *Body          `@@`

	// Filled in by resolution.
	Proc      *ProcDecl
	TypeVars  []*types.Variable
	InVars    []*Var
	OutVars   []*Var
	Synthetic bool // desugared from a procedure body
}

// Body is an implementation body: local declarations followed by structured
// statements, lowered to a basic-block graph during resolution.
type Body struct {
	Pos lexer.Position

	Locals []*VarDecl `"{" @@*`
	Stmts  []*Stmt    `@@* "}"`

	Vars []*Var // resolved locals
}

// Stmt is one structured statement.
type Stmt struct {
	Pos lexer.Position

	Label  *LabelStmt  `( @@`
	Assert *AssertStmt `| @@`
	Assume *AssumeStmt `| @@`
	Havoc  *HavocStmt  `| @@`
	Call   *CallStmt   `| @@`
	If     *IfStmt     `| @@`
	While  *WhileStmt  `| @@`
	Break  *BreakStmt  `| @@`
	Return *ReturnStmt `| @@`
	Goto   *GotoStmt   `| @@`
	Assign *AssignStmt `| @@ )`
}

type LabelStmt struct {
	Pos lexer.Position

	Name string `@Ident ":"`
}

type AssertStmt struct {
	Pos lexer.Position

	Attributes []*Attribute `"assert" @@*`
	Expr       *Expr        `@@ ";"`
}

type AssumeStmt struct {
	Pos lexer.Position

	Attributes []*Attribute `"assume" @@*`
	Expr       *Expr        `@@ ";"`
}

type HavocStmt struct {
	Pos lexer.Position

	Names []string `"havoc" @Ident ( "," @Ident )* ";"`

	Vars []*Var // resolved
}

// CallStmt invokes a procedure, optionally binding its out-parameters.
type CallStmt struct {
	Pos lexer.Position

	Outs []string `"call" ( @Ident ( "," @Ident )* ":=" )?`
	Name string   `@Ident`
	Args []*Expr  `"(" ( @@ ( "," @@ )* )? ")" ";"`

	// Filled in by resolution.
	Proc    *ProcDecl
	OutVars []*Var
}

// AssignStmt assigns in parallel; a[i] := v is sugar for a := a[i := v].
type AssignStmt struct {
	Pos lexer.Position

	LHS []*AssignLHS `@@ ( "," @@ )*`
	RHS []*Expr      `":=" @@ ( "," @@ )* ";"`
}

type AssignLHS struct {
	Pos lexer.Position

	Name    string      `@Ident`
	Indexes []*LHSIndex `@@*`

	Var *Var // resolved
}

type LHSIndex struct {
	Pos lexer.Position

	Args []*Expr `"[" @@ ( "," @@ )* "]"`
}

// Guard is a branch or loop condition; * is the nondeterministic wildcard.
type Guard struct {
	Pos lexer.Position

	Wild bool  `"(" ( @"*"`
	Expr *Expr `| @@ ) ")"`
}

type IfStmt struct {
	Pos lexer.Position

	Guard  *Guard     `"if" @@`
	Then   *StmtBlock `@@`
	ElseIf *IfStmt    `( "else" ( @@`
	Else   *StmtBlock `| @@ ) )?`
}

type StmtBlock struct {
	Pos lexer.Position

	Stmts []*Stmt `"{" @@* "}"`
}

type WhileStmt struct {
	Pos lexer.Position

	Guard      *Guard       `"while" @@`
	Invariants []*Invariant `@@*`
	Body       *StmtBlock   `@@`
}

type Invariant struct {
	Pos lexer.Position

	Free bool  `@"free"?`
	Cond *Expr `"invariant" @@ ";"`
}

type BreakStmt struct {
	Pos lexer.Position

	Label string `"break" @Ident? ";"`
}

type ReturnStmt struct {
	Pos lexer.Position

	Return bool `@"return" ";"`
}

type GotoStmt struct {
	Pos lexer.Position

	Labels []string `"goto" @Ident ( "," @Ident )* ";"`
}

// TypeRef is unresolved type syntax: a name with optional constructor
// arguments, or a map type. Resolution replaces it with a types.Type.
type TypeRef struct {
	Pos lexer.Position

	Map  *MapTypeRef    `( @@`
	Name string         `| @Ident`
	Args []*TypeRefAtom `  @@* )`

	Resolved types.Type
}

// TypeRefAtom is a type in constructor-argument position, where application
// requires parentheses.
type TypeRefAtom struct {
	Pos lexer.Position

	Map   *MapTypeRef `( @@`
	Name  string      `| @Ident`
	Group *TypeRef    `| "(" @@ ")" )`
}

// Ref normalises an atom to an equivalent TypeRef.
func (a *TypeRefAtom) Ref() *TypeRef {
	switch {
	case a.Group != nil:
		return a.Group
	case a.Map != nil:
		return &TypeRef{Pos: a.Pos, Map: a.Map}
	default:
		return &TypeRef{Pos: a.Pos, Name: a.Name}
	}
}

type MapTypeRef struct {
	Pos lexer.Position

	TypeParams []string   `( "<" @Ident ( "," @Ident )* ">" )?`
	Args       []*TypeRef `"[" ( @@ ( "," @@ )* )? "]"`
	Result     *TypeRef   `@@`
}

// VarKind distinguishes the variable flavors of the declaration model.
type VarKind int

const (
	VarGlobal VarKind = iota
	VarConst
	VarFormalIn
	VarFormalOut
	VarLocal
	VarBound
)

func (k VarKind) String() string {
	switch k {
	case VarGlobal:
		return "global variable"
	case VarConst:
		return "constant"
	case VarFormalIn:
		return "in-parameter"
	case VarFormalOut:
		return "out-parameter"
	case VarLocal:
		return "local variable"
	case VarBound:
		return "bound variable"
	default:
		panic("??")
	}
}

// A Var is a single declared variable of any flavor. Grammar nodes group
// several names under one type; resolution explodes them into Vars, which
// are what identifier expressions bind to.
type Var struct {
	Pos   lexer.Position
	Name  string
	Kind  VarKind
	Ref   *TypeRef // shared with the declaring group
	Where *Expr

	// Constant metadata.
	Unique   bool
	Parents  []*ParentEdge // nil when there is no extends clause
	Complete bool

	T types.Type // resolved
}

// Mutable reports whether the variable may be assigned or havoced.
func (v *Var) Mutable() bool {
	switch v.Kind {
	case VarGlobal, VarFormalOut, VarLocal:
		return true
	}
	return false
}

// FindAttribute returns the first attribute with the given name, or nil.
func FindAttribute(attrs []*Attribute, name string) *Attribute {
	for _, a := range attrs {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// FindExprAttribute returns the first parameter of the named attribute.
func FindExprAttribute(attrs []*Attribute, name string) *Expr {
	a := FindAttribute(attrs, name)
	if a == nil || len(a.Params) == 0 {
		return nil
	}
	return a.Params[0]
}

// FindBoolAttribute reports whether the named attribute is present and not
// explicitly disabled with a 0 parameter.
func FindBoolAttribute(attrs []*Attribute, name string) bool {
	a := FindAttribute(attrs, name)
	if a == nil {
		return false
	}
	if len(a.Params) == 0 {
		return true
	}
	if lit := a.Params[0].IntLiteral(); lit != nil {
		return lit.Int64() != 0
	}
	return true
}

// FindStringAttribute returns the named attribute's string parameter.
func FindStringAttribute(attrs []*Attribute, name string) (string, bool) {
	a := FindAttribute(attrs, name)
	if a == nil || len(a.Params) == 0 {
		return "", false
	}
	return a.Params[0].StringLiteral()
}

// FindIntAttribute returns the named attribute's integer parameter, or def.
func FindIntAttribute(attrs []*Attribute, name string, def int64) int64 {
	a := FindAttribute(attrs, name)
	if a == nil || len(a.Params) == 0 {
		return def
	}
	if lit := a.Params[0].IntLiteral(); lit != nil {
		return lit.Int64()
	}
	return def
}

func Parse(r io.Reader) (*Program, error) {
	program := &Program{}
	return program, parser.Parse(r, program)
}

func ParseString(s string) (*Program, error) {
	return Parse(strings.NewReader(s))
}
