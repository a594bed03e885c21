package analyser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const loopSource = `
procedure P(n: int) returns (r: int);
implementation P(n: int) returns (r: int)
{
  var i: int;
  i := 0;
  while (i < n)
    invariant i <= n;
  {
    i := i + 1;
  }
  r := i;
}
`

func TestLowerStraightLine(t *testing.T) {
	p := analyse(t, `
procedure P() returns (r: int);
implementation P() returns (r: int)
{
  r := 1;
  r := r + 1;
}
`)
	blocks := p.Blocks(p.Impls()[0])
	require.Len(t, blocks, 1)
	require.Len(t, blocks[0].Cmds, 2)
	require.True(t, blocks[0].IsReturn)
	require.Empty(t, blocks[0].Targets)
}

func TestLowerIf(t *testing.T) {
	p := analyse(t, `
procedure P(n: int) returns (r: int);
implementation P(n: int) returns (r: int)
{
  if (n > 0) {
    r := 1;
  } else {
    r := 2;
  }
}
`)
	blocks := p.Blocks(p.Impls()[0])
	require.Len(t, blocks, 4)
	entry, then, alt, join := blocks[0], blocks[1], blocks[2], blocks[3]
	require.Equal(t, []*Block{then, alt}, entry.Targets)
	// Each arm starts with an assumption of its branch condition.
	require.NotNil(t, then.Cmds[0].Assume)
	require.NotNil(t, alt.Cmds[0].Assume)
	require.Equal(t, []*Block{join}, then.Targets)
	require.Equal(t, []*Block{join}, alt.Targets)
	require.True(t, join.IsReturn)
}

func TestLowerWhile(t *testing.T) {
	p := analyse(t, loopSource)
	impl := p.Impls()[0]
	blocks := p.Blocks(impl)
	require.Len(t, blocks, 4)
	entry, head, body, exit := blocks[0], blocks[1], blocks[2], blocks[3]
	require.Equal(t, []*Block{head}, entry.Targets)
	require.Len(t, head.Invariants, 1)
	require.Equal(t, []*Block{body, exit}, head.Targets)
	require.Equal(t, []*Block{head}, body.Targets)
	require.True(t, exit.IsReturn)
	// The exit assumes the negated guard before r := i.
	require.NotNil(t, exit.Cmds[0].Assume)
	require.NotNil(t, exit.Cmds[1].Assign)

	preds := p.Predecessors(impl)
	require.Equal(t, []*Block{entry, body}, preds[head])
}

func TestLowerGoto(t *testing.T) {
	p := analyse(t, `
procedure P() returns (r: int);
implementation P() returns (r: int)
{
  goto L;
  r := 0;
  L:
  return;
}
`)
	blocks := p.Blocks(p.Impls()[0])
	require.Len(t, blocks, 3)
	entry, dead, l := blocks[0], blocks[1], blocks[2]
	require.Equal(t, "L", l.Label)
	require.Equal(t, []*Block{l}, entry.Targets)
	// The statement after the goto is unreachable but still lowered.
	require.Equal(t, []*Block{l}, dead.Targets)
	require.True(t, l.IsReturn)
}

func TestSCCs(t *testing.T) {
	succs := map[int][]int{0: {1}, 1: {2}, 2: {0, 3}, 3: nil}
	comps := sccs(4, func(i int) []int { return succs[i] })
	require.Len(t, comps, 2)
	// Callees come out first.
	require.Equal(t, []int{3}, comps[0])
	require.ElementsMatch(t, []int{0, 1, 2}, comps[1])
}

func TestCallGraphSCCs(t *testing.T) {
	p := analyse(t, `
procedure A();
procedure B();
implementation A() { call B(); }
implementation B() { call A(); }
procedure C();
implementation C() { call A(); }
`)
	comps := p.CallGraphSCCs()
	require.Len(t, comps, 2)
	names := []string{comps[0][0].Name, comps[0][1].Name}
	require.ElementsMatch(t, []string{"A", "B"}, names)
	require.Equal(t, "C", comps[1][0].Name)
}

func TestExtractLoops(t *testing.T) {
	p := analyse(t, loopSource)
	impl := p.Impls()[0]
	loops := p.ExtractLoops(impl)
	require.Len(t, loops, 1)
	require.Len(t, p.Extracted, 1)

	loop := loops[0]
	require.Equal(t, "P$anon1", loop.Proc.Name)

	// Every invariant becomes a free pre- and postcondition.
	require.Len(t, loop.Proc.Specs, 2)
	require.True(t, loop.Proc.Specs[0].Free)
	require.NotNil(t, loop.Proc.Specs[0].Requires)
	require.True(t, loop.Proc.Specs[1].Free)
	require.NotNil(t, loop.Proc.Specs[1].Ensures)

	// The loop procedure threads the in-parameters, out-parameters and
	// locals of the enclosing implementation.
	ins := []string{}
	for _, v := range loop.Proc.InVars {
		ins = append(ins, v.Name)
	}
	require.Equal(t, []string{"n", "r", "i"}, ins)
	outs := []string{}
	for _, v := range loop.Proc.OutVars {
		outs = append(outs, v.Name)
	}
	require.Equal(t, []string{"r", "i"}, outs)

	// The loop body ends in a recursive call; the exit edge is a return.
	require.Len(t, loop.Blocks, 4)
	head, body, call, exit := loop.Blocks[0], loop.Blocks[1], loop.Blocks[2], loop.Blocks[3]
	require.Equal(t, []*Block{body, exit}, head.Targets)
	require.Equal(t, []*Block{call}, body.Targets)
	require.True(t, call.IsReturn)
	require.Equal(t, loop.Proc, call.Cmds[0].Call.Proc)
	require.True(t, exit.IsReturn)

	// The original graph summarises the loop as a call followed by a jump
	// to the loop's exits.
	rewritten := p.Blocks(impl)
	require.Len(t, rewritten, 3)
	summary := rewritten[1]
	require.Equal(t, loop.Proc, summary.Cmds[0].Call.Proc)
	require.Equal(t, []*Block{rewritten[2]}, summary.Targets)
	require.Equal(t, []*Block{summary}, rewritten[0].Targets)
}

func TestExtractSelfLoop(t *testing.T) {
	p := analyse(t, `
procedure P();
implementation P()
{
  L:
  goto L;
}
`)
	impl := p.Impls()[0]
	loops := p.ExtractLoops(impl)
	require.Len(t, loops, 1)
	require.Equal(t, "P$L", loops[0].Proc.Name)
	// The loop never exits, so its summary block is a return.
	rewritten := p.Blocks(impl)
	require.Len(t, rewritten, 2)
	require.True(t, rewritten[1].IsReturn)
	require.Empty(t, rewritten[1].Targets)
}

func TestExtractAdjacentLoops(t *testing.T) {
	p := analyse(t, `
procedure P();
implementation P()
{
  L1:
  goto L1, L2;
  L2:
  goto L2, L3;
  L3:
  return;
}
`)
	impl := p.Impls()[0]
	loops := p.ExtractLoops(impl)
	require.Len(t, loops, 2)
	names := []string{loops[0].Proc.Name, loops[1].Proc.Name}
	require.ElementsMatch(t, []string{"P$L1", "P$L2"}, names)

	// The first loop exits straight into the second loop's header, so its
	// summary must target the second loop's summary, not the removed
	// original header.
	rewritten := p.Blocks(impl)
	require.Len(t, rewritten, 4)
	first, second, last := rewritten[1], rewritten[2], rewritten[3]
	require.NotNil(t, first.Cmds[0].Call)
	require.Equal(t, []*Block{second}, first.Targets)
	require.NotNil(t, second.Cmds[0].Call)
	require.Equal(t, []*Block{last}, second.Targets)
	require.True(t, last.IsReturn)
}

func TestExtractIrreducible(t *testing.T) {
	p := analyse(t, `
procedure P();
implementation P()
{
  if (*) {
    goto L1;
  } else {
    goto L2;
  }
  L1:
  goto L2;
  L2:
  goto L1;
}
`)
	impl := p.Impls()[0]
	require.Panics(t, func() { p.ExtractLoops(impl) })
}
