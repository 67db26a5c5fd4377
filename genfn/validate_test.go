package genfn

import (
	"errors"
	"testing"

	calcflow "github.com/calcflow/calcflow-go"
)

const goodText = `function evaluate(inputs) {
	const root = Math.sqrt(inputs.x);
	return { y: root + 1 };
}`

func TestValidateAccepts(t *testing.T) {
	if err := Validate(goodText, "y = sqrt(x) + 1", []string{"x"}, []string{"y"}); err != nil {
		t.Fatalf("valid text rejected: %v", err)
	}
}

func TestValidateAcceptsArrowForm(t *testing.T) {
	text := `const evaluate = (inputs) => { return { y: inputs.x * 2 }; }`
	if err := Validate(text, "y = x * 2", []string{"x"}, []string{"y"}); err != nil {
		t.Fatalf("arrow form rejected: %v", err)
	}
}

func TestValidateMissingEvaluate(t *testing.T) {
	text := `function compute(inputs) { return { y: 1 }; }`
	err := Validate(text, "y = 1", nil, []string{"y"})
	var gce *calcflow.GeneratedCodeError
	if !errors.As(err, &gce) {
		t.Fatalf("want GeneratedCodeError, got %v", err)
	}
}

func TestValidateMissingTargetBinding(t *testing.T) {
	text := `function evaluate(inputs) { return { y: 1 }; }`
	err := Validate(text, "area = w * h", []string{"w", "h"}, []string{"area", "perimeter"})
	var gce *calcflow.GeneratedCodeError
	if !errors.As(err, &gce) {
		t.Fatalf("want GeneratedCodeError, got %v", err)
	}
	if len(gce.Missing) != 2 {
		t.Fatalf("expected both targets missing, got %v", gce.Missing)
	}
}

func TestValidateRejectsSubstringBindings(t *testing.T) {
	// "max" binds the key max, not the target x; a target name that is a
	// substring of a returned key must not satisfy it.
	text := `function evaluate(inputs) { return { max: inputs.a }; }`
	err := Validate(text, "", []string{"a"}, []string{"x"})
	var gce *calcflow.GeneratedCodeError
	if !errors.As(err, &gce) {
		t.Fatalf("want GeneratedCodeError, got %v", err)
	}
	if len(gce.Missing) != 1 || gce.Missing[0] != "x" {
		t.Fatalf("x should be reported missing, got %v", gce.Missing)
	}

	quoted := `function evaluate(inputs) { return { "maxima": 1 }; }`
	if err := Validate(quoted, "", nil, []string{"axi"}); err == nil {
		t.Fatalf("quoted-key substring should not satisfy a target")
	}

	// Whole-identifier bindings still pass, bare and quoted.
	whole := `function evaluate(inputs) { return { x: 1, "y": 2 }; }`
	if err := Validate(whole, "", nil, []string{"x", "y"}); err != nil {
		t.Fatalf("whole-identifier bindings rejected: %v", err)
	}
}

func TestValidateInferredHeadSatisfiesTarget(t *testing.T) {
	// The generated code binds the formula's left-hand head instead of the
	// registered target id; that binding is accepted.
	text := `function evaluate(inputs) { return { y: inputs.x * inputs.x }; }`
	if err := Validate(text, "y = x^2", []string{"x"}, []string{"squared"}); err != nil {
		t.Fatalf("head binding should satisfy target: %v", err)
	}
}

func TestValidateUnusedInputIsWarningOnly(t *testing.T) {
	text := `function evaluate(inputs) { return { y: 1 }; }`
	if err := Validate(text, "y = 1", []string{"unused_input"}, []string{"y"}); err != nil {
		t.Fatalf("unused input must not fail validation: %v", err)
	}
}
