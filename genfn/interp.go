package genfn

import (
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	calcflow "github.com/calcflow/calcflow-go"
)

// Evaluator interprets a validated evaluate routine. The generated body is
// parsed into a prelude of simple bindings plus a returned object whose
// values are compiled expr programs over a fixed function set of
// arithmetic, comparisons and Math functions. Anything outside that grammar
// is rejected
// at build time, so generated text never runs as code.
type Evaluator struct {
	prelude  []binding
	bindings []binding
	funcs    map[string]interface{}
}

type binding struct {
	name    string
	program *vm.Program
}

// BuildEvaluator parses validated generated text into an interpreted
// evaluator. It returns GeneratedCodeError when the body falls outside the
// restricted grammar.
func BuildEvaluator(text string) (*Evaluator, error) {
	body, err := functionBody(text)
	if err != nil {
		return nil, err
	}
	param := paramName(text)

	e := &Evaluator{funcs: allowedFuncs()}
	statements := splitStatements(body)
	sawReturn := false
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if sawReturn {
			return nil, &calcflow.GeneratedCodeError{Reason: "statement after return"}
		}
		switch {
		case strings.HasPrefix(stmt, "return"):
			entries, err := parseReturnObject(stmt)
			if err != nil {
				return nil, err
			}
			for _, entry := range entries {
				program, err := compileRestricted(entry.expr, param)
				if err != nil {
					return nil, err
				}
				e.bindings = append(e.bindings, binding{name: entry.key, program: program})
			}
			sawReturn = true
		case hasDeclPrefix(stmt):
			name, exprText, err := parseDecl(stmt)
			if err != nil {
				return nil, err
			}
			program, err := compileRestricted(exprText, param)
			if err != nil {
				return nil, err
			}
			e.prelude = append(e.prelude, binding{name: name, program: program})
		default:
			return nil, &calcflow.GeneratedCodeError{
				Reason: fmt.Sprintf("statement outside restricted grammar: %q", firstLine(stmt)),
			}
		}
	}
	if !sawReturn {
		return nil, &calcflow.GeneratedCodeError{Reason: "evaluate body has no return object"}
	}
	return e, nil
}

// Evaluate implements calcflow.Evaluator.
func (e *Evaluator) Evaluate(in calcflow.Values) (calcflow.Values, error) {
	env := make(map[string]interface{}, len(in)+len(e.funcs)+len(e.prelude))
	for name, fn := range e.funcs {
		env[name] = fn
	}
	for name, value := range in {
		if n, ok := calcflow.ToNumber(value); ok {
			env[name] = n
		} else {
			env[name] = value
		}
	}
	for _, b := range e.prelude {
		v, err := expr.Run(b.program, env)
		if err != nil {
			return nil, fmt.Errorf("evaluating binding %s: %w", b.name, err)
		}
		env[b.name] = v
	}
	results := make(calcflow.Values, len(e.bindings))
	for _, b := range e.bindings {
		v, err := expr.Run(b.program, env)
		if err != nil {
			return nil, fmt.Errorf("evaluating result %s: %w", b.name, err)
		}
		results[b.name] = v
	}
	return results, nil
}

// functionBody extracts the brace-delimited body of the evaluate function.
func functionBody(text string) (string, error) {
	loc := evaluateDecl.FindStringIndex(text)
	if loc == nil {
		return "", &calcflow.GeneratedCodeError{Reason: "no function named evaluate"}
	}
	open := strings.IndexByte(text[loc[0]:], '{')
	if open < 0 {
		return "", &calcflow.GeneratedCodeError{Reason: "evaluate has no body"}
	}
	open += loc[0]
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[open+1 : i], nil
			}
		}
	}
	return "", &calcflow.GeneratedCodeError{Reason: "unbalanced braces in evaluate body"}
}

// paramName extracts the name of the evaluate function's single object
// parameter, "" when it cannot be determined.
func paramName(text string) string {
	loc := evaluateDecl.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	open := strings.IndexByte(text[loc[0]:], '(')
	if open < 0 {
		return ""
	}
	rest := text[loc[0]+open+1:]
	closeIdx := strings.IndexByte(rest, ')')
	if closeIdx < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:closeIdx])
}

// splitStatements splits a body on top-level semicolons and newlines,
// keeping object literals and parenthesized expressions intact.
func splitStatements(body string) []string {
	var out []string
	depth := 0
	start := 0
	var inString byte
	for i := 0; i < len(body); i++ {
		c := body[i]
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
		case ';', '\n':
			if depth == 0 {
				out = append(out, body[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, body[start:])
	return out
}

func hasDeclPrefix(stmt string) bool {
	for _, kw := range []string{"let ", "const ", "var "} {
		if strings.HasPrefix(stmt, kw) {
			return true
		}
	}
	return false
}

// parseDecl parses a simple binding: let|const|var NAME = EXPR.
func parseDecl(stmt string) (string, string, error) {
	rest := strings.TrimSpace(stmt[strings.IndexByte(stmt, ' ')+1:])
	eq := strings.IndexByte(rest, '=')
	if eq < 0 {
		return "", "", &calcflow.GeneratedCodeError{
			Reason: fmt.Sprintf("declaration without initializer: %q", firstLine(stmt)),
		}
	}
	name := strings.TrimSpace(rest[:eq])
	if name == "" || strings.ContainsAny(name, " \t,[]{}") {
		return "", "", &calcflow.GeneratedCodeError{
			Reason: fmt.Sprintf("unsupported declaration form: %q", firstLine(stmt)),
		}
	}
	return name, rest[eq+1:], nil
}

type returnEntry struct {
	key  string
	expr string
}

// parseReturnObject parses `return { key: expr, ... }`.
func parseReturnObject(stmt string) ([]returnEntry, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(stmt, "return"))
	if !strings.HasPrefix(rest, "{") || !strings.HasSuffix(strings.TrimSpace(rest), "}") {
		return nil, &calcflow.GeneratedCodeError{Reason: "return value is not an object literal"}
	}
	inner := strings.TrimSpace(rest)
	inner = inner[1 : len(inner)-1]

	var entries []returnEntry
	for _, part := range splitTopLevel(inner, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		colon := topLevelIndex(part, ':')
		if colon < 0 {
			return nil, &calcflow.GeneratedCodeError{
				Reason: fmt.Sprintf("object entry without key: %q", firstLine(part)),
			}
		}
		key := strings.Trim(strings.TrimSpace(part[:colon]), `"'`)
		if key == "" {
			return nil, &calcflow.GeneratedCodeError{Reason: "empty object key"}
		}
		entries = append(entries, returnEntry{key: key, expr: part[colon+1:]})
	}
	if len(entries) == 0 {
		return nil, &calcflow.GeneratedCodeError{Reason: "return object is empty"}
	}
	return entries, nil
}

// compileRestricted translates surface JavaScript (Math.*, access through
// the object parameter, strict equality) into the expression grammar and
// compiles it. Compilation failure means the binding is outside the
// grammar.
func compileRestricted(text, param string) (*vm.Program, error) {
	pairs := []string{"Math.", "", "===", "==", "!==", "!="}
	if param != "" {
		pairs = append(pairs, param+".", "")
	}
	translated := strings.NewReplacer(pairs...).Replace(strings.TrimSpace(text))
	if strings.Contains(translated, "function") || strings.Contains(translated, "=>") {
		return nil, &calcflow.GeneratedCodeError{
			Reason: fmt.Sprintf("nested function in binding: %q", firstLine(text)),
		}
	}
	program, err := expr.Compile(translated, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, &calcflow.GeneratedCodeError{
			Reason: fmt.Sprintf("binding outside restricted grammar: %v", err),
		}
	}
	return program, nil
}

func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth := 0
	start := 0
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
		default:
			if c == sep && depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

func topLevelIndex(s string, target byte) int {
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
		default:
			if c == target && depth == 0 {
				return i
			}
		}
	}
	return -1
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// allowedFuncs is the fixed function set available to generated bindings.
func allowedFuncs() map[string]interface{} {
	return map[string]interface{}{
		"abs":   math.Abs,
		"sqrt":  math.Sqrt,
		"cbrt":  math.Cbrt,
		"pow":   math.Pow,
		"exp":   math.Exp,
		"log":   math.Log,
		"log2":  math.Log2,
		"log10": math.Log10,
		"sin":   math.Sin,
		"cos":   math.Cos,
		"tan":   math.Tan,
		"asin":  math.Asin,
		"acos":  math.Acos,
		"atan":  math.Atan,
		"atan2": math.Atan2,
		"floor": math.Floor,
		"ceil":  math.Ceil,
		"round": math.Round,
		"sign":  signOf,
		"min":   math.Min,
		"max":   math.Max,
		"PI":    math.Pi,
		"E":     math.E,
	}
}

// signOf follows Math.sign: zero and NaN pass through unchanged.
func signOf(x float64) float64 {
	if x == 0 || math.IsNaN(x) {
		return x
	}
	return math.Copysign(1, x)
}
