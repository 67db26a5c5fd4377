// Package ast is the equation front end: tokenizing, `{name}` reference
// markup stripping, and classification of equation sides into the shapes
// the resolver pattern-matches against.
package ast

import "github.com/alecthomas/participle/v2/lexer"

// Lexer defines the token rules for equation text.
var Lexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "Whitespace", Pattern: `\s+`, Action: nil},
		{Name: "Float", Pattern: `\d+\.\d+`, Action: nil},
		{Name: "Int", Pattern: `\d+`, Action: nil},
		{Name: "String", Pattern: `"(?:\\.|[^"])*"|'(?:\\.|[^'])*'`, Action: nil},
		{Name: "Operator", Pattern: `==|!=|>=|<=|&&|\|\||[><+\-*/%^!?]`, Action: nil},
		{Name: "Ident", Pattern: `[a-zA-Z_$][a-zA-Z0-9_$]*`, Action: nil},
		{Name: "Assign", Pattern: `=`, Action: nil},
		{Name: "Punct", Pattern: `[(),\[\].:]`, Action: nil},
		{Name: "Braces", Pattern: `[{}]`, Action: nil},
	},
})
