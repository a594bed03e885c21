package analyser

import (
	"fmt"

	"github.com/alecthomas/participle/lexer"

	"github.com/verlang/verl/parser"
	"github.com/verlang/verl/types"
)

// Block is one node of an implementation's control-flow graph: a label,
// straight-line simple statements and a transfer, either gotos or a return.
// Loop-head blocks carry the loop's invariants.
type Block struct {
	Pos        lexer.Position
	Label      string
	Cmds       []*parser.Stmt
	Invariants []*parser.Invariant
	Targets    []*Block
	IsReturn   bool
}

// Blocks returns impl's control-flow graph, lowering the structured body on
// first use and caching the result.
func (p *Program) Blocks(impl *parser.ImplDecl) []*Block {
	if blocks, ok := p.blocks[impl]; ok {
		return blocks
	}
	if impl.Body == nil {
		panic(fmt.Sprintf("implementation %q has no body to lower", impl.Name))
	}
	blocks := lowerBody(impl.Body)
	p.blocks[impl] = blocks
	return blocks
}

// Predecessors returns the predecessor lists of impl's blocks. The result
// is cached alongside the blocks and invalidated with them.
func (p *Program) Predecessors(impl *parser.ImplDecl) map[*Block][]*Block {
	if preds, ok := p.preds[impl]; ok {
		return preds
	}
	preds := map[*Block][]*Block{}
	for _, b := range p.Blocks(impl) {
		for _, t := range b.Targets {
			preds[t] = append(preds[t], b)
		}
	}
	p.preds[impl] = preds
	return preds
}

// InvalidateCFG discards impl's cached blocks and predecessors together.
func (p *Program) InvalidateCFG(impl *parser.ImplDecl) {
	delete(p.blocks, impl)
	delete(p.preds, impl)
}

type loopFrame struct {
	label string
	exit  *Block
}

type lowering struct {
	blocks  []*Block
	byLabel map[string]*Block
	anon    int
}

func lowerBody(body *parser.Body) []*Block {
	l := &lowering{byLabel: map[string]*Block{}}
	l.scanLabels(body.Stmts)
	entry := l.fresh(body.Pos)
	if open := l.stmts(body.Stmts, entry, nil); open != nil {
		open.IsReturn = true
	}
	return l.blocks
}

func (l *lowering) fresh(pos lexer.Position) *Block {
	b := &Block{Pos: pos, Label: fmt.Sprintf("anon%d", l.anon)}
	l.anon++
	l.blocks = append(l.blocks, b)
	return b
}

// scanLabels pre-creates a block per label so forward gotos can link
// directly. The blocks join the list when their label is reached.
func (l *lowering) scanLabels(stmts []*parser.Stmt) {
	for _, s := range stmts {
		switch {
		case s.Label != nil:
			l.byLabel[s.Label.Name] = &Block{Pos: s.Label.Pos, Label: s.Label.Name}
		case s.If != nil:
			for i := s.If; i != nil; i = i.ElseIf {
				l.scanLabels(i.Then.Stmts)
				if i.Else != nil {
					l.scanLabels(i.Else.Stmts)
				}
			}
		case s.While != nil:
			l.scanLabels(s.While.Body.Stmts)
		}
	}
}

func assumeStmt(e *parser.Expr) *parser.Stmt {
	return &parser.Stmt{Pos: e.Pos, Assume: &parser.AssumeStmt{Pos: e.Pos, Expr: e}}
}

func notExpr(e *parser.Expr) *parser.Expr {
	primary := &parser.Primary{Pos: e.Pos, SubExpr: e, T: types.Bool}
	unary := &parser.Unary{Pos: e.Pos, Op: parser.OpNot, Primary: primary, T: types.Bool}
	return &parser.Expr{Pos: e.Pos, Unary: unary, T: types.Bool}
}

// stmts lowers a statement list into cur, returning the open trailing block
// or nil when control cannot fall through.
func (l *lowering) stmts(stmts []*parser.Stmt, cur *Block, loops []loopFrame) *Block {
	pending := ""
	for _, s := range stmts {
		label := pending
		pending = ""
		if s.Label != nil {
			pending = s.Label.Name
			b := l.byLabel[s.Label.Name]
			l.blocks = append(l.blocks, b)
			if cur != nil {
				cur.Targets = append(cur.Targets, b)
			}
			cur = b
			continue
		}
		if cur == nil {
			// Unreachable tail after a goto or return.
			cur = l.fresh(s.Pos)
		}
		switch {
		case s.Assert != nil, s.Assume != nil, s.Havoc != nil, s.Call != nil, s.Assign != nil:
			cur.Cmds = append(cur.Cmds, s)

		case s.If != nil:
			cur = l.lowerIf(s.If, cur, loops)

		case s.While != nil:
			cur = l.lowerWhile(s.While, cur, loops, label)

		case s.Break != nil:
			frame := l.findLoop(loops, s.Break.Label)
			cur.Targets = append(cur.Targets, frame.exit)
			cur = nil

		case s.Return != nil:
			cur.IsReturn = true
			cur = nil

		case s.Goto != nil:
			for _, name := range s.Goto.Labels {
				target, ok := l.byLabel[name]
				if !ok {
					panic(fmt.Sprintf("goto target %q missing after resolution", name))
				}
				cur.Targets = append(cur.Targets, target)
			}
			cur = nil

		default:
			panic("??")
		}
	}
	return cur
}

func (l *lowering) findLoop(loops []loopFrame, label string) loopFrame {
	if len(loops) == 0 {
		panic("break outside a loop after resolution")
	}
	if label == "" {
		return loops[len(loops)-1]
	}
	for i := len(loops) - 1; i >= 0; i-- {
		if loops[i].label == label {
			return loops[i]
		}
	}
	panic(fmt.Sprintf("break target %q missing after resolution", label))
}

func (l *lowering) lowerIf(s *parser.IfStmt, cur *Block, loops []loopFrame) *Block {
	then := l.fresh(s.Pos)
	alt := l.fresh(s.Pos)
	join := l.fresh(s.Pos)
	cur.Targets = append(cur.Targets, then, alt)
	if s.Guard.Expr != nil {
		then.Cmds = append(then.Cmds, assumeStmt(s.Guard.Expr))
		alt.Cmds = append(alt.Cmds, assumeStmt(notExpr(s.Guard.Expr)))
	}
	if open := l.stmts(s.Then.Stmts, then, loops); open != nil {
		open.Targets = append(open.Targets, join)
	}
	var altOpen *Block
	switch {
	case s.ElseIf != nil:
		altOpen = l.lowerIf(s.ElseIf, alt, loops)
	case s.Else != nil:
		altOpen = l.stmts(s.Else.Stmts, alt, loops)
	default:
		altOpen = alt
	}
	if altOpen != nil {
		altOpen.Targets = append(altOpen.Targets, join)
	}
	return join
}

// lowerWhile lowers a loop; label is the name of the label statement
// immediately preceding it, if any, which break statements may target.
func (l *lowering) lowerWhile(w *parser.WhileStmt, cur *Block, loops []loopFrame, label string) *Block {
	head := l.fresh(w.Pos)
	head.Invariants = w.Invariants
	cur.Targets = append(cur.Targets, head)

	body := l.fresh(w.Pos)
	exit := l.fresh(w.Pos)
	head.Targets = append(head.Targets, body, exit)
	if w.Guard.Expr != nil {
		body.Cmds = append(body.Cmds, assumeStmt(w.Guard.Expr))
		exit.Cmds = append(exit.Cmds, assumeStmt(notExpr(w.Guard.Expr)))
	}

	frame := loopFrame{label: label, exit: exit}
	if open := l.stmts(w.Body.Stmts, body, append(loops, frame)); open != nil {
		open.Targets = append(open.Targets, head)
	}
	return exit
}

// sccs computes the strongly connected components of the n-node graph given
// by succs, returned with callees/inner components first (reverse
// topological order).
func sccs(n int, succs func(int) []int) [][]int {
	const unvisited = -1
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = unvisited
	}
	var (
		stack []int
		next  int
		out   [][]int
	)
	var connect func(v int)
	connect = func(v int) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true
		for _, w := range succs(v) {
			if index[w] == unvisited {
				connect(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] && index[w] < low[v] {
				low[v] = index[w]
			}
		}
		if low[v] == index[v] {
			var comp []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			out = append(out, comp)
		}
	}
	for v := 0; v < n; v++ {
		if index[v] == unvisited {
			connect(v)
		}
	}
	return out
}

func walkCalls(stmts []*parser.Stmt, fn func(*parser.CallStmt)) {
	for _, s := range stmts {
		switch {
		case s.Call != nil:
			fn(s.Call)
		case s.If != nil:
			for i := s.If; i != nil; i = i.ElseIf {
				walkCalls(i.Then.Stmts, fn)
				if i.Else != nil {
					walkCalls(i.Else.Stmts, fn)
				}
			}
		case s.While != nil:
			walkCalls(s.While.Body.Stmts, fn)
		}
	}
}

// CallGraphSCCs groups the program's procedures into strongly connected
// components of the call graph, callees before callers. Mutually recursive
// procedures share a component.
func (p *Program) CallGraphSCCs() [][]*parser.ProcDecl {
	var procs []*parser.ProcDecl
	index := map[*parser.ProcDecl]int{}
	for _, d := range p.AST.Decls {
		if d.Procedure != nil {
			index[d.Procedure] = len(procs)
			procs = append(procs, d.Procedure)
		}
	}
	edges := make([]map[int]bool, len(procs))
	for i := range edges {
		edges[i] = map[int]bool{}
	}
	for _, impl := range p.Impls() {
		if impl.Proc == nil {
			continue
		}
		from := index[impl.Proc]
		walkCalls(impl.Body.Stmts, func(call *parser.CallStmt) {
			if call.Proc != nil {
				edges[from][index[call.Proc]] = true
			}
		})
	}
	comps := sccs(len(procs), func(i int) []int {
		var out []int
		for j := range edges[i] {
			out = append(out, j)
		}
		return out
	})
	result := make([][]*parser.ProcDecl, 0, len(comps))
	for _, comp := range comps {
		group := make([]*parser.ProcDecl, 0, len(comp))
		for _, i := range comp {
			group = append(group, procs[i])
		}
		result = append(result, group)
	}
	return result
}

// Loop is one natural loop rewritten into a recursive procedure. The
// synthetic procedure's formals mirror the enclosing implementation's
// variables; its body blocks operate on the original variables directly.
type Loop struct {
	Header *Block
	Blocks []*Block
	Proc   *parser.ProcDecl
	Impl   *parser.ImplDecl
}

// ExtractLoops rewrites every loop of impl into a call to a synthetic
// recursive procedure: back edges become recursive calls, loop exits become
// returns, and invariants become free pre- and postconditions. Panics on
// irreducible control flow. Nested loops are extracted recursively from the
// synthetic implementations.
func (p *Program) ExtractLoops(impl *parser.ImplDecl) []*Loop {
	blocks := p.Blocks(impl)
	idx := map[*Block]int{}
	for i, b := range blocks {
		idx[b] = i
	}
	comps := sccs(len(blocks), func(i int) []int {
		out := make([]int, 0, len(blocks[i].Targets))
		for _, t := range blocks[i].Targets {
			out = append(out, idx[t])
		}
		return out
	})
	preds := p.Predecessors(impl)

	var loops []*Loop
	replace := map[*Block]*Block{}
	remove := map[*Block]bool{}
	for _, comp := range comps {
		if len(comp) == 1 && !selfLoop(blocks[comp[0]]) {
			continue
		}
		member := map[*Block]bool{}
		for _, i := range comp {
			member[blocks[i]] = true
		}
		header := loopHeader(impl, blocks, member, preds)
		loop, replacement := p.extractLoop(impl, header, member)
		loops = append(loops, loop)
		replace[header] = replacement
		for _, i := range comp {
			if blocks[i] != header {
				remove[blocks[i]] = true
			}
		}
	}
	if len(loops) == 0 {
		return nil
	}

	rewritten := make([]*Block, 0, len(blocks))
	for _, b := range blocks {
		if remove[b] {
			continue
		}
		if r, ok := replace[b]; ok {
			b = r
		}
		// Summary blocks can exit into another loop's header, so their
		// targets need rewriting too.
		for i, t := range b.Targets {
			if r, ok := replace[t]; ok {
				b.Targets[i] = r
			}
		}
		rewritten = append(rewritten, b)
	}
	p.InvalidateCFG(impl)
	p.blocks[impl] = rewritten
	p.Extracted = append(p.Extracted, loops...)

	all := append([]*Loop{}, loops...)
	for _, loop := range loops {
		all = append(all, p.ExtractLoops(loop.Impl)...)
	}
	return all
}

func selfLoop(b *Block) bool {
	for _, t := range b.Targets {
		if t == b {
			return true
		}
	}
	return false
}

// loopHeader finds the unique entry block of a loop component. More than
// one entry means the graph is irreducible, which the extraction cannot
// express as a single recursive procedure.
func loopHeader(impl *parser.ImplDecl, blocks []*Block, member map[*Block]bool, preds map[*Block][]*Block) *Block {
	var header *Block
	for _, b := range blocks {
		if !member[b] {
			continue
		}
		entered := b == blocks[0]
		for _, pr := range preds[b] {
			if !member[pr] {
				entered = true
			}
		}
		if !entered {
			continue
		}
		if header != nil && header != b {
			panic(fmt.Sprintf("irreducible control flow in implementation %q", impl.Name))
		}
		header = b
	}
	if header == nil {
		panic(fmt.Sprintf("loop without an entry in implementation %q", impl.Name))
	}
	return header
}

func varExpr(v *parser.Var) *parser.Expr {
	primary := &parser.Primary{Pos: v.Pos, Ident: v.Name, Var: v, T: v.T}
	unary := &parser.Unary{Pos: v.Pos, Primary: primary, T: v.T}
	return &parser.Expr{Pos: v.Pos, Unary: unary, T: v.T}
}

func (p *Program) extractLoop(impl *parser.ImplDecl, header *Block, member map[*Block]bool) (*Loop, *Block) {
	ins := append(append([]*parser.Var{}, impl.InVars...), impl.OutVars...)
	ins = append(ins, impl.Body.Vars...)
	outs := append(append([]*parser.Var{}, impl.OutVars...), impl.Body.Vars...)

	proc := &parser.ProcDecl{
		Pos:  header.Pos,
		Name: fmt.Sprintf("%s$%s", impl.Name, header.Label),
	}
	for _, v := range ins {
		proc.InVars = append(proc.InVars, &parser.Var{Pos: v.Pos, Name: v.Name, Kind: parser.VarFormalIn, T: v.T})
	}
	for _, v := range outs {
		proc.OutVars = append(proc.OutVars, &parser.Var{Pos: v.Pos, Name: v.Name, Kind: parser.VarFormalOut, T: v.T})
	}
	if impl.Proc != nil {
		proc.ModVars = impl.Proc.ModVars
	}
	for _, inv := range header.Invariants {
		proc.Specs = append(proc.Specs,
			&parser.SpecClause{Pos: inv.Pos, Free: true, Requires: &parser.Condition{Pos: inv.Pos, Expr: inv.Cond}},
			&parser.SpecClause{Pos: inv.Pos, Free: true, Ensures: &parser.Condition{Pos: inv.Pos, Expr: inv.Cond}})
	}

	recurse := func() *parser.Stmt {
		call := &parser.CallStmt{Pos: header.Pos, Name: proc.Name, Proc: proc}
		for _, v := range ins {
			call.Args = append(call.Args, varExpr(v))
		}
		for _, v := range outs {
			call.Outs = append(call.Outs, v.Name)
			call.OutVars = append(call.OutVars, v)
		}
		return &parser.Stmt{Pos: header.Pos, Call: call}
	}

	// Clone the loop body: back edges become a recursive call and return,
	// exit edges become plain returns.
	callBlock := &Block{Pos: header.Pos, Label: "recurse", Cmds: []*parser.Stmt{recurse()}, IsReturn: true}
	exitBlock := &Block{Pos: header.Pos, Label: "exit", IsReturn: true}
	clones := map[*Block]*Block{}
	var cloneOrder []*Block
	for _, b := range p.Blocks(impl) {
		if member[b] {
			clone := &Block{Pos: b.Pos, Label: b.Label, Cmds: b.Cmds, IsReturn: b.IsReturn}
			clones[b] = clone
			cloneOrder = append(cloneOrder, clone)
		}
	}
	usedCall, usedExit := false, false
	for b, clone := range clones {
		for _, t := range b.Targets {
			switch {
			case t == header:
				clone.Targets = append(clone.Targets, callBlock)
				usedCall = true
			case member[t]:
				clone.Targets = append(clone.Targets, clones[t])
			default:
				clone.Targets = append(clone.Targets, exitBlock)
				usedExit = true
			}
		}
	}

	loopBlocks := []*Block{clones[header]}
	for _, clone := range cloneOrder {
		if clone != clones[header] {
			loopBlocks = append(loopBlocks, clone)
		}
	}
	if usedCall {
		loopBlocks = append(loopBlocks, callBlock)
	}
	if usedExit {
		loopBlocks = append(loopBlocks, exitBlock)
	}

	loopImpl := &parser.ImplDecl{
		Pos:       header.Pos,
		Name:      proc.Name,
		Body:      &parser.Body{Pos: header.Pos},
		Proc:      proc,
		InVars:    ins,
		OutVars:   outs,
		Synthetic: true,
	}
	p.blocks[loopImpl] = loopBlocks

	// The original graph summarises the loop as one call followed by a
	// nondeterministic jump to any exit.
	replacement := &Block{Pos: header.Pos, Label: header.Label, Cmds: []*parser.Stmt{recurse()}}
	exitSeen := map[*Block]bool{}
	for _, b := range p.Blocks(impl) {
		if !member[b] {
			continue
		}
		for _, t := range b.Targets {
			if !member[t] && !exitSeen[t] {
				exitSeen[t] = true
				replacement.Targets = append(replacement.Targets, t)
			}
		}
	}
	if len(replacement.Targets) == 0 {
		replacement.IsReturn = true
	}

	return &Loop{Header: header, Blocks: loopBlocks, Proc: proc, Impl: loopImpl}, replacement
}
