package analyser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verlang/verl/parser"
	"github.com/verlang/verl/types"
)

func analyse(t *testing.T, source string) *Program {
	t.Helper()
	ast, err := parser.ParseString(source)
	require.NoError(t, err)
	p := New(ast, Options{})
	require.Equal(t, 0, p.Resolve(), "resolution: %v", p.Errors())
	require.Equal(t, 0, p.Typecheck(), "typecheck: %v", p.Errors())
	return p
}

func resolve(t *testing.T, source string) *Program {
	t.Helper()
	ast, err := parser.ParseString(source)
	require.NoError(t, err)
	return New(ast, Options{})
}

func TestAnalyse(t *testing.T) {
	analyse(t, `
type Wicket;
type Field a;
type Heap = <a>[ref, Field a]a;
type ref;

const unique null: ref;
const unique f, g: Field int;
const unique a, b: Wicket extends unique c complete;
const c: Wicket;

var heap: Heap;
var counter: int where counter >= 0;

function add(x: int, y: int) returns (int) { x + y }
function id<T>(T) returns (T);

axiom (forall x: int :: {:weight 2} {add(x, 0)} add(x, 0) == x);
axiom (forall <T> x: T :: id(x) == x);
axiom (exists y: int :: y > 0);
axiom 0bv4 ++ 1bv8 == 1bv12;

procedure Inc(n: int) returns (r: int);
  free requires {:msg "n must be nonnegative"} n >= 0;
  modifies counter;
  ensures r == old(counter) + n;

implementation Inc(n: int) returns (r: int)
{
  var i: int;
  i := 0;
  head:
  while (i < n)
    invariant i <= n;
    free invariant counter >= 0;
  {
    i := i + 1;
    counter := counter + 1;
    if (counter > 100) {
      break head;
    }
  }
  if (*) {
    r := counter;
  } else if (i == n) {
    havoc r;
    assume r == counter;
  } else {
    goto done;
  }
  assert r >= 0 || true;
  done:
  return;
}

procedure Twice(n: int) returns (r: int)
  modifies counter;
{
  call r := Inc(n);
  call r := Inc(r);
}

procedure Bump(p: ref)
  modifies heap, counter;
{
  heap[p, f], counter := heap[p, f] + 1, heap[p, g];
}
`)
}

func TestUniqueConstant(t *testing.T) {
	p := analyse(t, `const unique c: int;`)
	v := p.AST.Decls[0].Const.Vars[0]
	require.True(t, v.Unique)
	require.Nil(t, v.Parents)
	require.Equal(t, types.Int, v.T)
}

func TestConstantOrder(t *testing.T) {
	p := analyse(t, `
type Wicket;
const unique a: Wicket extends unique b, c complete;
const unique b, c: Wicket;
`)
	v := p.AST.Decls[1].Const.Vars[0]
	require.Len(t, v.Parents, 2)
	require.True(t, v.Parents[0].Unique)
	require.False(t, v.Parents[1].Unique)
	require.True(t, v.Complete)
	require.Equal(t, "b", v.Parents[0].Parent.Name)
}

func TestGenericFunction(t *testing.T) {
	p := analyse(t, `function f<T>(x: T) returns (T) { x }`)
	f := p.AST.Decls[0].Function
	require.Len(t, f.TypeVars, 1)
	require.Empty(t, f.LateTypeVars)
	require.True(t, types.Equal(f.Body.T, f.OutVar.T))
}

func TestLateFunctionTypeParams(t *testing.T) {
	p := resolve(t, `function pick<T>() returns (T);`)
	require.Equal(t, 0, p.Resolve(), "%v", p.Errors())
	f := p.AST.Decls[0].Function
	require.Len(t, f.TypeVars, 1)
	require.Len(t, f.LateTypeVars, 1)
}

func TestUnusedFunctionTypeParam(t *testing.T) {
	p := resolve(t, `function bad<T>(x: int) returns (int);`)
	require.Equal(t, 1, p.Resolve())
	require.Contains(t, p.Errors()[0].Message, "does not occur in its signature")
}

func TestImplementationSignatureMismatch(t *testing.T) {
	p := resolve(t, `
procedure P() returns (r: int);
implementation P() returns (r: bool) { r := true; }
`)
	require.Equal(t, 0, p.Resolve(), "%v", p.Errors())
	require.Equal(t, 1, p.Typecheck())
	require.Contains(t, p.Errors()[0].Message, "out-parameter")
}

func TestCyclicSynonyms(t *testing.T) {
	p := resolve(t, `
type A = B;
type B = A;
`)
	require.Equal(t, 2, p.Resolve())
	for _, e := range p.Errors() {
		require.Contains(t, e.Message, "cyclic")
	}
	// Both members recover to bool so later references still resolve.
	for _, d := range p.AST.Decls {
		require.NotNil(t, d.TypeDecl.Synonym)
		require.Equal(t, types.Bool, d.TypeDecl.Synonym.Body)
	}
}

func TestSynonymForwardReference(t *testing.T) {
	p := analyse(t, `
type Heap = [ref]Cell;
type Cell = int;
type ref;
var h: Heap;
`)
	v := p.AST.Decls[3].Var.Vars[0]
	m, ok := types.Expand(v.T).(*types.Map)
	require.True(t, ok)
	require.Equal(t, types.Int, types.Expand(m.Result))
}

func TestRedeclarationReplaces(t *testing.T) {
	p := resolve(t, `
var x: int;
var x: bool;
`)
	require.Equal(t, 1, p.Resolve())
	require.Contains(t, p.Errors()[0].Message, "redeclared")
	require.Equal(t, p.AST.Decls[1].Var.Vars[0], p.ctx.LookupVariable("x"))
}

func TestStatelessAxiom(t *testing.T) {
	p := resolve(t, `
var g: int;
axiom g == 0;
`)
	require.Equal(t, 1, p.Resolve())
	require.Contains(t, p.Errors()[0].Message, "stateless")
}

func TestOldInPrecondition(t *testing.T) {
	p := resolve(t, `
procedure P(n: int);
  requires old(n) == 0;
`)
	require.Equal(t, 1, p.Resolve())
	require.Contains(t, p.Errors()[0].Message, "two-state")
}

func TestAssignOutsideModifies(t *testing.T) {
	p := resolve(t, `
var g: int;
procedure P();
implementation P() { g := 1; }
`)
	require.Equal(t, 0, p.Resolve(), "%v", p.Errors())
	require.Equal(t, 1, p.Typecheck())
	require.Contains(t, p.Errors()[0].Message, "modifies clause")
}

func TestHavocOutsideModifies(t *testing.T) {
	p := resolve(t, `
var g: int;
procedure P();
implementation P() { havoc g; }
`)
	require.Equal(t, 0, p.Resolve(), "%v", p.Errors())
	require.Equal(t, 1, p.Typecheck())
	require.Contains(t, p.Errors()[0].Message, "modifies clause")
}

func TestCallModifiesPropagates(t *testing.T) {
	p := resolve(t, `
var g: int;
procedure W(); modifies g;
procedure C();
implementation C() { call W(); }
`)
	require.Equal(t, 0, p.Resolve(), "%v", p.Errors())
	require.Equal(t, 1, p.Typecheck())
	require.Contains(t, p.Errors()[0].Message, "modifies")
}

func TestProcedureBodyDesugars(t *testing.T) {
	p := analyse(t, `procedure P(n: int) returns (r: int) { r := n; }`)
	require.Len(t, p.Synthetic, 1)
	impl := p.Synthetic[0]
	require.True(t, impl.Synthetic)
	require.Equal(t, p.AST.Decls[0].Procedure, impl.Proc)
	require.Equal(t, []*parser.ImplDecl{impl}, p.Impls())
}

func TestGenericProcedureBodyDesugars(t *testing.T) {
	p := analyse(t, `
procedure P<T>(x: T) returns (r: T)
{
  var y: T;
  y := x;
  r := y;
}
`)
	proc := p.AST.Decls[0].Procedure
	impl := p.Synthetic[0]
	require.Len(t, proc.TypeVars, 1)
	// The local's type resolves to the procedure's own type parameter.
	require.True(t, types.Equal(proc.TypeVars[0], impl.Body.Vars[0].T))
}

func TestStringLiteralOutsideAttribute(t *testing.T) {
	p := resolve(t, `axiom "boom";`)
	require.Equal(t, 0, p.Resolve(), "%v", p.Errors())
	require.Equal(t, 1, p.Typecheck())
	require.Contains(t, p.Errors()[0].Message, "attribute parameters")
}

func TestOverlookResolutionErrors(t *testing.T) {
	ast, err := parser.ParseString(`
procedure P();
implementation P() { x := 1; }
`)
	require.NoError(t, err)
	p := New(ast, Options{OverlookResolutionErrors: true})
	require.Equal(t, 0, p.Resolve(), "%v", p.Errors())
	require.Len(t, p.Dropped, 1)
	require.Empty(t, p.Impls())
	require.Equal(t, 0, p.Typecheck(), "%v", p.Errors())
}

func TestParallelAssignDuplicateTarget(t *testing.T) {
	p := resolve(t, `
procedure P();
implementation P() {
  var x: int;
  x, x := 1, 2;
}
`)
	require.Equal(t, 0, p.Resolve(), "%v", p.Errors())
	require.Equal(t, 1, p.Typecheck())
	require.Contains(t, p.Errors()[0].Message, "more than once")
}

func TestBitvectorConcat(t *testing.T) {
	analyse(t, `
procedure P(x: bv8, y: bv4) returns (r: bv12);
implementation P(x: bv8, y: bv4) returns (r: bv12) {
  r := x ++ y;
}
`)
}

func TestBitvectorConcatWidthMismatch(t *testing.T) {
	p := resolve(t, `
procedure P(x: bv8) returns (r: bv12);
implementation P(x: bv8) returns (r: bv12) {
  r := x ++ x;
}
`)
	require.Equal(t, 0, p.Resolve(), "%v", p.Errors())
	require.Equal(t, 1, p.Typecheck())
	require.Contains(t, p.Errors()[0].Message, "cannot assign")
}

func TestBitvectorLiteralWidth(t *testing.T) {
	p := resolve(t, `axiom 9bv2 == 1bv2;`)
	require.Equal(t, 0, p.Resolve(), "%v", p.Errors())
	require.Equal(t, 1, p.Typecheck())
	require.Contains(t, p.Errors()[0].Message, "does not fit")
}

func TestPolymorphicMapSelect(t *testing.T) {
	p := analyse(t, `
type Field a;
type ref;
var heap: <a>[ref, Field a]a;
const unique f: Field int;
const unique null: ref;
procedure Get() returns (r: int);
implementation Get() returns (r: int) {
  r := heap[null, f];
}
`)
	impl := p.AST.Decls[6].Implementation
	rhs := impl.Body.Stmts[0].Assign.RHS[0]
	require.Equal(t, types.Int, types.Follow(rhs.T))
}

func TestPolymorphicMapStore(t *testing.T) {
	analyse(t, `
type Field a;
type ref;
var heap: <a>[ref, Field a]a;
const unique f: Field bool;
const unique null: ref;
procedure Set();
  modifies heap;
implementation Set() {
  heap[null, f] := true;
}
`)
}

func TestTypeArity(t *testing.T) {
	p := resolve(t, `
type Field a;
var x: Field;
`)
	require.Equal(t, 1, p.Resolve())
	require.Contains(t, p.Errors()[0].Message, "expects 1 argument, got 0")
}

func TestMapTypeParamMustOccur(t *testing.T) {
	p := resolve(t, `var m: <T>[int]int;`)
	require.Equal(t, 1, p.Resolve())
	require.Contains(t, p.Errors()[0].Message, "does not occur")
}

func TestBreakOutsideLoop(t *testing.T) {
	p := resolve(t, `
procedure P();
implementation P() { break; }
`)
	require.Equal(t, 1, p.Resolve())
	require.Contains(t, p.Errors()[0].Message, "not inside a loop")
}

func TestGotoUnknownLabel(t *testing.T) {
	p := resolve(t, `
procedure P();
implementation P() { goto missing; }
`)
	require.Equal(t, 1, p.Resolve())
	require.Contains(t, p.Errors()[0].Message, "not a label")
}

func TestTypecheckRequiresResolve(t *testing.T) {
	p := resolve(t, `axiom true;`)
	require.Panics(t, func() { p.Typecheck() })
}
