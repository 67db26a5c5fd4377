package genfn

import (
	"log"
	"regexp"
	"strings"

	calcflow "github.com/calcflow/calcflow-go"
)

// evaluateDecl matches a function literally named evaluate, in declaration,
// assignment or method-shorthand form.
var evaluateDecl = regexp.MustCompile(
	`\bfunction\s+evaluate\s*\(|\bevaluate\s*[:=]\s*(?:function\b|\()|\bevaluate\s*\([^)]*\)\s*(?:=>|\{)`)

// Validate checks generated function text against the request it answers.
// It fails when the text does not contain a function named evaluate, or
// when any target variable lacks a key-like binding (a quoted or bare
// identifier followed by a colon). A binding of the formula's inferable
// left-hand head also satisfies a target. Declared inputs the text never
// references produce a warning only.
func Validate(text, formula string, inputs, targets []string) error {
	if !evaluateDecl.MatchString(text) {
		return &calcflow.GeneratedCodeError{Reason: "no function named evaluate"}
	}

	head := InferredHead(formula)
	var missing []string
	for _, target := range targets {
		if hasBinding(text, target) {
			continue
		}
		if head != "" && hasBinding(text, head) {
			continue
		}
		missing = append(missing, target)
	}
	if len(missing) > 0 {
		return &calcflow.GeneratedCodeError{
			Reason:  "targets without bindings",
			Missing: missing,
		}
	}

	for _, input := range inputs {
		if !strings.Contains(text, input) {
			log.Printf("genfn: generated code never references declared input %q", input)
		}
	}
	return nil
}

// hasBinding reports whether the text contains a key-like pattern binding
// the name: the whole identifier, optionally quoted, followed by a colon.
// The identifier must not continue in either direction, so a name that is a
// substring of another key does not count.
func hasBinding(text, name string) bool {
	pattern := regexp.MustCompile(
		`(^|[^A-Za-z0-9_$'"])["']?` + regexp.QuoteMeta(name) + `["']?\s*:`)
	return pattern.MatchString(text)
}
