package parser

import (
	"github.com/alecthomas/participle/lexer"
	"github.com/alecthomas/participle/lexer/regex"
)

var (
	lex = lexer.Must(regex.New(`
		comment = //.*|(?s:/\*.*?\*/)
		whitespace = [\r\n\t ]+

		Keyword = \b(type|const|unique|extends|complete|var|where|function|returns|axiom|procedure|implementation|requires|ensures|modifies|free|invariant|forall|exists|old|assert|assume|havoc|call|if|else|while|break|return|goto|true|false)\b
		BvLit = \b\d+bv\d+\b
		Number = \b\d+\b
		String = "(\\.|[^"])*"
		Ident = \b[[:alpha:]_]\w*\b
		Operator = <==>|==>|<=|>=|<:|==|!=|&&|\|\||\+\+|::|:=|[-+*/%!<>=]
		Punct = [][(){}:;,]
	`))

	operatorToken = lex.Symbols()["Operator"]
)
