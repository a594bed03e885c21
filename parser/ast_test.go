package parser

import (
	"testing"

	"github.com/alecthomas/repr"
	"github.com/stretchr/testify/require"
)

// This source should contain all constructs supported by the parser.
const testSource = `
type Wicket;
type {:datatype} Field a;
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
  assert {:subsumption 0} r >= 0 || true;
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
  modifies heap;
{
  heap[p, f], counter := heap[p, f] + 1, heap[p, g];
}
`

func BenchmarkParse(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, err := ParseString(testSource)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func TestParse(t *testing.T) {
	ast, err := ParseString(testSource)
	repr.Println(ast)
	require.NoError(t, err)
}

func TestParsePrecedence(t *testing.T) {
	ast, err := ParseString(`axiom a + b * c == d ==> e ==> f;`)
	require.NoError(t, err)
	e := ast.Decls[0].Axiom.Expr
	require.Equal(t, OpImplies, e.Op)
	// ==> associates to the right.
	require.Equal(t, OpImplies, e.Right.Op)
	require.Equal(t, OpEq, e.Left.Op)
	require.Equal(t, OpAdd, e.Left.Left.Op)
	require.Equal(t, OpMul, e.Left.Left.Right.Op)
}

func TestParseMapOps(t *testing.T) {
	ast, err := ParseString(`axiom m[1] == m[1 := x][2];`)
	require.NoError(t, err)
	e := ast.Decls[0].Axiom.Expr
	require.Equal(t, OpEq, e.Op)
	left := e.Left.Unary.Primary
	require.Len(t, left.Selects, 1)
	require.False(t, left.Selects[0].IsStore())
	right := e.Right.Unary.Primary
	require.Len(t, right.Selects, 2)
	require.True(t, right.Selects[0].IsStore())
	require.False(t, right.Selects[1].IsStore())
}

func TestParseBvLit(t *testing.T) {
	ast, err := ParseString(`axiom 5bv8 ++ 1bv4 == 0bv12;`)
	require.NoError(t, err)
	e := ast.Decls[0].Axiom.Expr
	require.Equal(t, OpEq, e.Op)
	require.Equal(t, OpConcat, e.Left.Op)
	lit := e.Left.Left.Unary.Primary.Literal.BvLit
	require.Equal(t, int64(5), lit.Value.Int64())
	require.Equal(t, 8, lit.Bits)
}

func TestParseLabelVsAssign(t *testing.T) {
	ast, err := ParseString(`
implementation M()
{
  L: x := 1;
  goto L;
}
`)
	require.NoError(t, err)
	stmts := ast.Decls[0].Implementation.Body.Stmts
	require.Len(t, stmts, 3)
	require.NotNil(t, stmts[0].Label)
	require.Equal(t, "L", stmts[0].Label.Name)
	require.NotNil(t, stmts[1].Assign)
	require.NotNil(t, stmts[2].Goto)
}

func TestParseWildcardGuard(t *testing.T) {
	ast, err := ParseString(`
implementation M()
{
  if (*) {
    return;
  }
  while (*) {
  }
}
`)
	require.NoError(t, err)
	stmts := ast.Decls[0].Implementation.Body.Stmts
	require.True(t, stmts[0].If.Guard.Wild)
	require.Nil(t, stmts[0].If.Guard.Expr)
	require.True(t, stmts[1].While.Guard.Wild)
}

func TestParseGenericMapType(t *testing.T) {
	ast, err := ParseString(`var h: <a>[ref, Field a]a;`)
	require.NoError(t, err)
	ref := ast.Decls[0].Var.Groups[0].Type
	require.NotNil(t, ref.Map)
	require.Equal(t, []string{"a"}, ref.Map.TypeParams)
	require.Len(t, ref.Map.Args, 2)
	require.Equal(t, "Field", ref.Map.Args[1].Name)
	require.Equal(t, "a", ref.Map.Result.Name)
}

func TestParseParallelAssign(t *testing.T) {
	ast, err := ParseString(`
implementation M()
{
  x, a[i] := y, 1;
}
`)
	require.NoError(t, err)
	assign := ast.Decls[0].Implementation.Body.Stmts[0].Assign
	require.Len(t, assign.LHS, 2)
	require.Len(t, assign.RHS, 2)
	require.Equal(t, "a", assign.LHS[1].Name)
	require.Len(t, assign.LHS[1].Indexes, 1)
}

func TestParseStringAttribute(t *testing.T) {
	ast, err := ParseString(`
procedure P(n: int);
  requires {:msg "n must be positive"} {:comment "entry gate"} n > 0;
`)
	require.NoError(t, err)
	req := ast.Decls[0].Procedure.Specs[0].Requires
	msg, ok := req.ErrorMessage()
	require.True(t, ok)
	require.Equal(t, "n must be positive", msg)
	comment, ok := req.Comment()
	require.True(t, ok)
	require.Equal(t, "entry gate", comment)
	_, ok = FindStringAttribute(req.Attributes, "absent")
	require.False(t, ok)
}

func TestParseStringEscapes(t *testing.T) {
	ast, err := ParseString(`procedure P(); requires {:msg "say \"hi\""} true;`)
	require.NoError(t, err)
	msg, ok := ast.Decls[0].Procedure.Specs[0].Requires.ErrorMessage()
	require.True(t, ok)
	require.Equal(t, `say "hi"`, msg)
}

func TestParseError(t *testing.T) {
	_, err := ParseString(`axiom 1 +;`)
	require.Error(t, err)
}
