// Package genfn bridges the engine to the remote code-generation service.
// It builds generation requests, validates responses, and turns a validated
// evaluate routine into an interpreted evaluator. Generated source is never
// executed as code; its bindings are parsed into a restricted expression
// grammar and interpreted.
package genfn

import (
	"fmt"
	"strings"
)

// SystemInstruction is the fixed instruction sent with every generation
// request. The service must answer with a single function named evaluate
// taking one object parameter and returning an object of computed values.
const SystemInstruction = "Write a single JavaScript function named evaluate. " +
	"It takes exactly one object parameter whose keys are the input variable " +
	"names and returns an object whose keys are the target variable names. " +
	"Use only arithmetic, comparisons and Math functions. Return only the function."

// Request is the generation request contract:
// { formulaText, inputVariableNames, targetVariableNames }.
type Request struct {
	FormulaText         string   `json:"formulaText"`
	InputVariableNames  []string `json:"inputVariableNames"`
	TargetVariableNames []string `json:"targetVariableNames"`
}

// Response is the generation response contract.
type Response struct {
	GeneratedFunctionText string `json:"generatedFunctionText"`
}

// BuildRequest assembles a generation request. The system instruction is
// folded into the formula text so the wire shape stays exactly the
// three-field contract.
func BuildRequest(formula string, inputs, targets []string) Request {
	var b strings.Builder
	b.WriteString(SystemInstruction)
	b.WriteString("\n\nFormula: ")
	b.WriteString(formula)
	fmt.Fprintf(&b, "\nInputs: %s", strings.Join(inputs, ", "))
	fmt.Fprintf(&b, "\nTargets: %s", strings.Join(targets, ", "))
	return Request{
		FormulaText:         b.String(),
		InputVariableNames:  append([]string(nil), inputs...),
		TargetVariableNames: append([]string(nil), targets...),
	}
}

// InferredHead returns the single-letter left-hand variable of a formula
// like "y = …", or "" when the head is not inferable. A binding of this
// name in generated code is accepted in place of an explicit target
// binding.
func InferredHead(formula string) string {
	trimmed := strings.TrimSpace(formula)
	if len(trimmed) < 2 {
		return ""
	}
	head := trimmed[0]
	if !isLetter(head) {
		return ""
	}
	rest := strings.TrimSpace(trimmed[1:])
	if !strings.HasPrefix(rest, "=") || strings.HasPrefix(rest, "==") {
		return ""
	}
	return string(head)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
