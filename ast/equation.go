package ast

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Equation is one parsed relationship. Both sides are stored with reference
// markup stripped; the shape fields drive the resolver's pattern matching.
// Equations are immutable inputs to the resolver.
type Equation struct {
	Raw   string
	Left  string
	Right string

	// VectorNames is non-nil when the left side is a destructuring head
	// like [a, b, c].
	VectorNames []string
	// LeftIdent / RightIdent are set when the corresponding side is a
	// single bare identifier.
	LeftIdent  string
	RightIdent string
}

// vectorHead matches a destructuring left side: [a, b, ...].
type vectorHead struct {
	Names []string `parser:"'[' @Ident ( ',' @Ident )* ']'"`
}

// bareIdent matches a side consisting of exactly one identifier.
type bareIdent struct {
	Name string `parser:"@Ident"`
}

var (
	vectorParser = participle.MustBuild[vectorHead](
		participle.Lexer(Lexer),
		participle.Elide("Whitespace"),
	)
	identParser = participle.MustBuild[bareIdent](
		participle.Lexer(Lexer),
		participle.Elide("Whitespace"),
	)

	markupPattern = regexp.MustCompile(`\{([^{}]+)\}`)
)

// StripMarkup rewrites brace-delimited variable references: {name} -> name.
func StripMarkup(s string) string {
	return markupPattern.ReplaceAllString(s, "$1")
}

// Parse parses one equation line. The line must contain exactly one
// top-level assignment; `==` and friends inside either side are fine.
func Parse(line string) (*Equation, error) {
	stripped := StripMarkup(line)
	left, right, err := splitAssignment(stripped)
	if err != nil {
		return nil, fmt.Errorf("parsing equation %q: %w", line, err)
	}

	eq := &Equation{
		Raw:   line,
		Left:  strings.TrimSpace(left),
		Right: strings.TrimSpace(right),
	}
	if eq.Left == "" || eq.Right == "" {
		return nil, fmt.Errorf("parsing equation %q: empty side", line)
	}

	if head, err := vectorParser.ParseString("", eq.Left); err == nil {
		eq.VectorNames = head.Names
	} else if id, err := identParser.ParseString("", eq.Left); err == nil {
		eq.LeftIdent = id.Name
	}
	if id, err := identParser.ParseString("", eq.Right); err == nil {
		eq.RightIdent = id.Name
	}
	return eq, nil
}

// ParseAll parses a batch of equation lines, skipping blanks.
func ParseAll(lines []string) ([]*Equation, error) {
	out := make([]*Equation, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		eq, err := Parse(line)
		if err != nil {
			return nil, err
		}
		out = append(out, eq)
	}
	return out, nil
}

// Identifiers returns the identifier tokens of an expression in order of
// first appearance. Call heads (an identifier directly followed by an open
// parenthesis) are excluded; those are function references, not variables.
func Identifiers(exprText string) []string {
	toks, err := lexAll(exprText)
	if err != nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for i, tok := range toks {
		if tok.kind != "Ident" {
			continue
		}
		if i+1 < len(toks) && toks[i+1].value == "(" {
			continue
		}
		if !seen[tok.value] {
			seen[tok.value] = true
			out = append(out, tok.value)
		}
	}
	return out
}

type token struct {
	kind  string
	value string
}

func lexAll(s string) ([]token, error) {
	lex, err := Lexer.LexString("", s)
	if err != nil {
		return nil, err
	}
	symbols := Lexer.Symbols()
	names := make(map[lexer.TokenType]string, len(symbols))
	for name, t := range symbols {
		names[t] = name
	}
	var out []token
	for {
		tok, err := lex.Next()
		if err != nil {
			return nil, err
		}
		if tok.EOF() {
			return out, nil
		}
		kind := names[tok.Type]
		if kind == "Whitespace" {
			continue
		}
		out = append(out, token{kind: kind, value: tok.Value})
	}
}

// splitAssignment finds the single top-level `=` of an equation, ignoring
// comparison operators, bracketed subexpressions and string literals.
func splitAssignment(s string) (string, string, error) {
	depth := 0
	var inString byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString != 0 {
			if c == '\\' {
				i++
			} else if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '=':
			if depth != 0 {
				continue
			}
			if i+1 < len(s) && s[i+1] == '=' {
				i++ // ==
				continue
			}
			if i > 0 {
				switch s[i-1] {
				case '=', '<', '>', '!':
					continue
				}
			}
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("no top-level assignment")
}
