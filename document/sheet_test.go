package document

import (
	"strings"
	"testing"

	calcflow "github.com/calcflow/calcflow-go"
	"github.com/calcflow/calcflow-go/engine"
	"github.com/calcflow/calcflow-go/registry"
)

const circleSheet = `
strategy: symbolic
formula: "area of a circle"
variables:
  - id: r
    role: input
    value: 2
    range: [0, 10]
    step: 0.1
  - id: area
    role: computed
  - id: circumference
    role: computed
equations:
  - "area = PI * r * r"
  - "circumference = 2 * PI * r"
`

func TestParseAndApply(t *testing.T) {
	sheet, err := Parse([]byte(circleSheet))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if sheet.ParsedStrategy() != calcflow.StrategySymbolic {
		t.Fatalf("unexpected strategy %v", sheet.ParsedStrategy())
	}

	eng := engine.New(registry.New())
	if err := sheet.Apply(eng); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	area, _ := eng.Registry().Get("area")
	n, ok := calcflow.ToNumber(area.Value)
	if !ok || n < 12.56 || n > 12.57 {
		t.Fatalf("area = %v, want ~12.566", area.Value)
	}

	r, _ := eng.Registry().Get("r")
	if r.Min != 0 || r.Max != 10 || r.Step != 0.1 {
		t.Fatalf("range/step not applied: %+v", r)
	}
}

func TestApplyResolvesRelationships(t *testing.T) {
	const text = `
variables:
  - id: shape
    role: input
    value: square
    set: [circle, square, triangle]
  - id: sides
    role: input
    key: shape
    set: [0, 4, 3]
  - id: y
    role: computed
equations:
  - "y = sides * 2"
`
	sheet, err := Parse([]byte(text))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	eng := engine.New(registry.New())
	if err := sheet.Apply(eng); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	sides, _ := eng.Registry().Get("sides")
	n, _ := calcflow.ToNumber(sides.Value)
	if n != 4 {
		t.Fatalf("key join not applied, sides = %v", sides.Value)
	}
	y, _ := eng.Registry().Get("y")
	yn, _ := calcflow.ToNumber(y.Value)
	if yn != 8 {
		t.Fatalf("y = %v, want 8", y.Value)
	}
}

func TestApplyStepModeSkipsInitialPass(t *testing.T) {
	const text = `
step_mode: true
variables:
  - id: x
    role: input
    value: 1
  - id: y
    role: computed
equations:
  - "y = x + 1"
`
	sheet, err := Parse([]byte(text))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	eng := engine.New(registry.New())
	if err := sheet.Apply(eng); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	y, _ := eng.Registry().Get("y")
	if y.Value != nil {
		t.Fatalf("step mode must skip the initial pass, y = %v", y.Value)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{
			"unknown strategy",
			"strategy: quantum",
			"unknown strategy",
		},
		{
			"empty id",
			"variables:\n  - role: input",
			"empty id",
		},
		{
			"duplicate id",
			"variables:\n  - id: x\n  - id: x",
			"duplicate",
		},
		{
			"unknown role",
			"variables:\n  - id: x\n    role: widget",
			"unknown role",
		},
		{
			"bad range",
			"variables:\n  - id: x\n    range: [1]",
			"range",
		},
		{
			"undeclared key",
			"variables:\n  - id: x\n    key: ghost",
			"undeclared key",
		},
		{
			"undeclared parent",
			"variables:\n  - id: x\n    member_of: ghost",
			"undeclared parent",
		},
	}
	for _, c := range cases {
		_, err := Parse([]byte(c.text))
		if err == nil {
			t.Fatalf("%s: Parse should fail", c.name)
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Fatalf("%s: error %q does not mention %q", c.name, err, c.want)
		}
	}
}
