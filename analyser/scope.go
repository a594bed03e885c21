package analyser

import (
	"github.com/alecthomas/participle/lexer"

	"github.com/verlang/verl/parser"
	"github.com/verlang/verl/types"
)

// StateMode restricts which state an expression may refer to. Axioms and
// function bodies are stateless, preconditions and where clauses see a
// single state, postconditions and implementation bodies see two states
// and may therefore use old().
type StateMode int

const (
	Stateless StateMode = iota
	SingleState
	TwoState
)

func (m StateMode) String() string {
	switch m {
	case Stateless:
		return "stateless"
	case SingleState:
		return "single-state"
	case TwoState:
		return "two-state"
	default:
		panic("??")
	}
}

type typeBinder struct {
	name string
	v    *types.Variable
}

// Context is the symbol environment threaded through resolution and
// typechecking. Types and procedures/functions live in flat top-level
// namespaces; variables and type binders are stacks.
type Context struct {
	Errors *ErrorSink

	types     map[string]*parser.TypeDecl
	functions map[string]*parser.FuncDecl
	procs     map[string]*parser.ProcDecl

	scopes  []map[string]*parser.Var
	binders []typeBinder

	mode StateMode

	// Mutable globals the enclosing procedure's contract permits writing.
	// Nil outside an implementation body.
	frame map[*parser.Var]bool
}

func newContext(errors *ErrorSink) *Context {
	return &Context{
		Errors:    errors,
		types:     map[string]*parser.TypeDecl{},
		functions: map[string]*parser.FuncDecl{},
		procs:     map[string]*parser.ProcDecl{},
		scopes:    []map[string]*parser.Var{{}},
	}
}

func (c *Context) PushVarScope() {
	c.scopes = append(c.scopes, map[string]*parser.Var{})
}

func (c *Context) PopVarScope() {
	if len(c.scopes) == 1 {
		panic("popping the global scope")
	}
	c.scopes = c.scopes[:len(c.scopes)-1]
}

// AddVariable installs v in the innermost scope. A collision in the same
// scope is an error, and the newer binding replaces the older one so that
// later references resolve consistently.
func (c *Context) AddVariable(v *parser.Var) {
	scope := c.scopes[len(c.scopes)-1]
	if prev, ok := scope[v.Name]; ok {
		c.Errors.Errorf(v.Pos, "%s %q redeclared (previously declared at %s)", v.Kind, v.Name, prev.Pos)
	}
	scope[v.Name] = v
}

func (c *Context) LookupVariable(name string) *parser.Var {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i][name]; ok {
			return v
		}
	}
	return nil
}

// SaveTypeBinders returns a token for the current binder depth. Every
// matching RestoreTypeBinders must run on all exit paths.
func (c *Context) SaveTypeBinders() int { return len(c.binders) }

func (c *Context) RestoreTypeBinders(mark int) { c.binders = c.binders[:mark] }

func (c *Context) AddTypeBinder(pos lexer.Position, name string) *types.Variable {
	for i := len(c.binders) - 1; i >= 0; i-- {
		if c.binders[i].name == name {
			c.Errors.Errorf(pos, "type parameter %q shadows an enclosing type parameter", name)
			break
		}
	}
	v := types.NewVariable(name)
	c.binders = append(c.binders, typeBinder{name: name, v: v})
	return v
}

// BindTypeVar installs an existing type variable under name without
// allocating a fresh one. Synthetic implementations use it to share their
// procedure's type parameters.
func (c *Context) BindTypeVar(name string, v *types.Variable) {
	c.binders = append(c.binders, typeBinder{name: name, v: v})
}

func (c *Context) LookupTypeBinder(name string) *types.Variable {
	for i := len(c.binders) - 1; i >= 0; i-- {
		if c.binders[i].name == name {
			return c.binders[i].v
		}
	}
	return nil
}

func (c *Context) AddType(decl *parser.TypeDecl) {
	if prev, ok := c.types[decl.Name]; ok {
		c.Errors.Errorf(decl.Pos, "type %q redeclared (previously declared at %s)", decl.Name, prev.Pos)
	}
	c.types[decl.Name] = decl
}

func (c *Context) LookupType(name string) *parser.TypeDecl { return c.types[name] }

func (c *Context) AddFunction(decl *parser.FuncDecl) {
	if prev, ok := c.functions[decl.Name]; ok {
		c.Errors.Errorf(decl.Pos, "function %q redeclared (previously declared at %s)", decl.Name, prev.Pos)
	}
	if _, ok := c.procs[decl.Name]; ok {
		c.Errors.Errorf(decl.Pos, "function %q collides with a procedure of the same name", decl.Name)
	}
	c.functions[decl.Name] = decl
}

func (c *Context) LookupFunction(name string) *parser.FuncDecl { return c.functions[name] }

func (c *Context) AddProcedure(decl *parser.ProcDecl) {
	if prev, ok := c.procs[decl.Name]; ok {
		c.Errors.Errorf(decl.Pos, "procedure %q redeclared (previously declared at %s)", decl.Name, prev.Pos)
	}
	if _, ok := c.functions[decl.Name]; ok {
		c.Errors.Errorf(decl.Pos, "procedure %q collides with a function of the same name", decl.Name)
	}
	c.procs[decl.Name] = decl
}

func (c *Context) LookupProcedure(name string) *parser.ProcDecl { return c.procs[name] }
