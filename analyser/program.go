// Package analyser resolves and typechecks parsed programs.
//
// Analysis runs in two gated passes. Resolve binds every identifier to its
// declaration, resolves all type syntax to structural types and desugars
// procedure bodies into implementations. Typecheck runs only on an
// error-free resolution and computes the type of every expression.
package analyser

import (
	"github.com/pkg/errors"

	"github.com/verlang/verl/parser"
)

type Options struct {
	// OverlookResolutionErrors drops implementations that fail to resolve,
	// rolling back their diagnostics, instead of failing the program.
	OverlookResolutionErrors bool
}

// Program wraps an AST with its analysis state and derived control-flow
// graphs.
type Program struct {
	AST *parser.Program

	// Implementations desugared from procedure bodies. These are analysed
	// like ordinary implementations but are not part of the AST.
	Synthetic []*parser.ImplDecl
	// Implementations dropped under OverlookResolutionErrors.
	Dropped []*parser.ImplDecl
	// Recursive procedures synthesised by loop extraction.
	Extracted []*Loop

	options       Options
	ctx           *Context
	errors        ErrorSink
	resolved      bool
	resolveErrors int

	blocks map[*parser.ImplDecl][]*Block
	preds  map[*parser.ImplDecl]map[*Block][]*Block
}

func New(ast *parser.Program, options Options) *Program {
	p := &Program{
		AST:     ast,
		options: options,
		blocks:  map[*parser.ImplDecl][]*Block{},
		preds:   map[*parser.ImplDecl]map[*Block][]*Block{},
	}
	p.ctx = newContext(&p.errors)
	return p
}

// Analyse resolves and typechecks the AST, returning an error carrying the
// diagnostic count of the first pass that failed.
func Analyse(ast *parser.Program) (*Program, error) {
	p := New(ast, Options{})
	if n := p.Resolve(); n > 0 {
		return p, errors.Errorf("%d resolution errors", n)
	}
	if n := p.Typecheck(); n > 0 {
		return p, errors.Errorf("%d typechecking errors", n)
	}
	return p, nil
}

func (p *Program) Errors() []Error { return p.errors.Errors() }

// Impls returns all implementations that survived resolution, synthetic
// ones last.
func (p *Program) Impls() []*parser.ImplDecl {
	impls := []*parser.ImplDecl{}
	for _, d := range p.AST.Decls {
		if d.Implementation != nil && !p.isDropped(d.Implementation) {
			impls = append(impls, d.Implementation)
		}
	}
	for _, impl := range p.Synthetic {
		if !p.isDropped(impl) {
			impls = append(impls, impl)
		}
	}
	return impls
}

func (p *Program) isDropped(impl *parser.ImplDecl) bool {
	for _, d := range p.Dropped {
		if d == impl {
			return true
		}
	}
	return false
}

// Resolve runs registration and name resolution over the whole program and
// returns the number of errors reported.
func (p *Program) Resolve() int {
	if p.resolved {
		panic("resolve called twice")
	}
	c := p.ctx
	start := p.errors.Count()

	for _, d := range p.AST.Decls {
		registerDecl(c, d)
	}
	for _, d := range p.AST.Decls {
		if d.Procedure != nil && d.Procedure.Body != nil {
			p.Synthetic = append(p.Synthetic, synthesiseImpl(d.Procedure))
		}
	}

	// Types first: constructors, then synonyms to fixed point, so that
	// every later type reference resolves in one step.
	var typeDecls []*parser.TypeDecl
	for _, d := range p.AST.Decls {
		if d.TypeDecl != nil {
			typeDecls = append(typeDecls, d.TypeDecl)
		}
	}
	resolveTypeCtors(c, typeDecls)
	resolveSynonyms(c, typeDecls)

	for _, d := range p.AST.Decls {
		switch {
		case d.TypeDecl != nil:

		case d.Const != nil:
			resolveConstDecl(c, d.Const)

		case d.Var != nil:
			resolveGlobalVarDecl(c, d.Var)

		case d.Function != nil:
			resolveFuncDecl(c, d.Function)

		case d.Axiom != nil:
			resolveAxiom(c, d.Axiom)

		case d.Procedure != nil:
			resolveProcDecl(c, d.Procedure)

		case d.Implementation != nil:
			p.resolveImpl(d.Implementation)

		default:
			panic("??")
		}
	}
	for _, impl := range p.Synthetic {
		p.resolveImpl(impl)
	}

	// Global where clauses run last: they may reference any global.
	prev := c.mode
	c.mode = SingleState
	for _, d := range p.AST.Decls {
		if d.Var == nil {
			continue
		}
		for _, g := range d.Var.Groups {
			resolveExpr(c, g.Where)
		}
	}
	c.mode = prev

	p.resolved = true
	p.resolveErrors = p.errors.Count() - start
	return p.resolveErrors
}

func (p *Program) resolveImpl(impl *parser.ImplDecl) {
	mark := p.errors.Count()
	resolveImplDecl(p.ctx, impl)
	if p.options.OverlookResolutionErrors && p.errors.Count() > mark {
		p.errors.truncate(mark)
		p.Dropped = append(p.Dropped, impl)
	}
}

// Typecheck computes and validates the type of every expression, returning
// the number of errors reported. It requires an error-free resolution and,
// when it reports no errors itself, verifies that no type proxy was left
// unresolved.
func (p *Program) Typecheck() int {
	if !p.resolved {
		panic("typecheck called before resolve")
	}
	if p.resolveErrors > 0 {
		panic("typecheck called after a failed resolution")
	}
	start := p.errors.Count()
	c := p.ctx

	for _, d := range p.AST.Decls {
		switch {
		case d.TypeDecl != nil:

		case d.Const != nil:
			checkConstDecl(c, d.Const)

		case d.Var != nil:
			checkGlobalVarDecl(c, d.Var)

		case d.Function != nil:
			checkFuncDecl(c, d.Function)

		case d.Axiom != nil:
			checkAxiom(c, d.Axiom)

		case d.Procedure != nil:
			checkProcDecl(c, d.Procedure)

		case d.Implementation != nil:
			if !p.isDropped(d.Implementation) {
				checkImplDecl(c, d.Implementation)
			}

		default:
			panic("??")
		}
	}
	for _, impl := range p.Synthetic {
		if !p.isDropped(impl) {
			checkImplDecl(c, impl)
		}
	}

	n := p.errors.Count() - start
	if n == 0 {
		sweepProxies(p)
	}
	return n
}
