// Package document loads formula sheets: a YAML description of one
// formula system (variables, equations, strategy) applied as a batch to
// a registry/engine pair.
package document

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	calcflow "github.com/calcflow/calcflow-go"
	"github.com/calcflow/calcflow-go/engine"
	"github.com/calcflow/calcflow-go/registry"
)

// Sheet is one formula document.
type Sheet struct {
	Strategy  string         `yaml:"strategy"`
	Formula   string         `yaml:"formula"`
	StepMode  bool           `yaml:"step_mode"`
	Variables []VariableSpec `yaml:"variables"`
	Equations []string       `yaml:"equations"`
}

// VariableSpec describes one variable in a sheet.
type VariableSpec struct {
	ID        string        `yaml:"id"`
	Role      string        `yaml:"role"`
	Value     interface{}   `yaml:"value"`
	Set       []interface{} `yaml:"set"`
	Precision int           `yaml:"precision"`
	Range     []float64     `yaml:"range"`
	Step      float64       `yaml:"step"`
	Key       string        `yaml:"key"`
	MemberOf  string        `yaml:"member_of"`
}

// Load reads and validates a sheet file.
func Load(path string) (*Sheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sheet: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates sheet bytes.
func Parse(data []byte) (*Sheet, error) {
	var sheet Sheet
	if err := yaml.Unmarshal(data, &sheet); err != nil {
		return nil, fmt.Errorf("parsing sheet: %w", err)
	}
	if err := sheet.Validate(); err != nil {
		return nil, err
	}
	return &sheet, nil
}

// Validate checks internal consistency: unique non-empty ids, known roles,
// well-formed ranges, and key/memberOf references to declared variables.
func (s *Sheet) Validate() error {
	switch s.Strategy {
	case "", string(calcflow.StrategySymbolic), string(calcflow.StrategyManual), string(calcflow.StrategyExternal):
	default:
		return fmt.Errorf("unknown strategy %q", s.Strategy)
	}

	ids := make(map[string]bool, len(s.Variables))
	for i, v := range s.Variables {
		if v.ID == "" {
			return fmt.Errorf("variable %d has empty id", i)
		}
		if ids[v.ID] {
			return fmt.Errorf("duplicate variable id %q", v.ID)
		}
		ids[v.ID] = true
		switch v.Role {
		case "", string(registry.RoleConstant), string(registry.RoleInput), string(registry.RoleComputed):
		default:
			return fmt.Errorf("variable %q has unknown role %q", v.ID, v.Role)
		}
		if len(v.Range) != 0 && len(v.Range) != 2 {
			return fmt.Errorf("variable %q: range must be a pair", v.ID)
		}
	}
	for _, v := range s.Variables {
		if v.Key != "" && !ids[v.Key] {
			return fmt.Errorf("variable %q references undeclared key %q", v.ID, v.Key)
		}
		if v.MemberOf != "" && !ids[v.MemberOf] {
			return fmt.Errorf("variable %q references undeclared parent %q", v.ID, v.MemberOf)
		}
	}
	return nil
}

// ParsedStrategy returns the sheet's strategy, defaulting to symbolic.
func (s *Sheet) ParsedStrategy() calcflow.Strategy {
	if s.Strategy == "" {
		return calcflow.StrategySymbolic
	}
	return calcflow.Strategy(s.Strategy)
}

// Apply loads the sheet into an engine: variables are registered as a
// batch, relationships are resolved in the dedicated passes, and the
// computation is set for the sheet's strategy.
func (s *Sheet) Apply(eng *engine.Engine) error {
	reg := eng.Registry()
	reg.SetStepMode(s.StepMode)

	reg.BeginInit()
	for _, v := range s.Variables {
		def := registry.Definition{
			Role:      registry.Role(v.Role),
			Value:     v.Value,
			Set:       v.Set,
			Precision: v.Precision,
			Step:      v.Step,
			Key:       v.Key,
			MemberOf:  v.MemberOf,
		}
		if len(v.Range) == 2 {
			def.Min, def.Max = v.Range[0], v.Range[1]
		}
		reg.Add(v.ID, def)
	}
	reg.ResolveKeys()
	reg.ResolveMemberships()
	reg.EndInit()

	eng.SetFormula(s.Formula)
	return eng.Configure(s.ParsedStrategy(), s.Equations, nil)
}
