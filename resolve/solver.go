package resolve

import (
	"fmt"
	"log"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	calcflow "github.com/calcflow/calcflow-go"
	"github.com/calcflow/calcflow-go/ast"
)

// Solver resolves a system of equations for a set of target variables by
// fixed-point iteration: full passes over all equations repeat until every
// target is resolved or a pass makes no progress. Targets still unresolved
// at a no-progress fixed point are reported as the NaN sentinel rather than
// an error; circular or underspecified systems are a valid configuration.
//
// When two equations both define the same unresolved target, the first
// match in equation order wins for that pass. Equation order is source
// order, so the tie-break is deterministic.
type Solver struct {
	equations []*ast.Equation
	targets   []string // original names, registration order
	names     *NameMap
	overrides map[string]calcflow.Mapping
	programs  map[string]*vm.Program
	funcs     map[string]interface{}
}

// NewSolver parses and rewrites the equation set for the given computed
// targets. allNames must contain every variable id the equations may
// reference; it determines the (pure) name translation.
func NewSolver(lines []string, targets []string, allNames []string, overrides map[string]calcflow.Mapping) (*Solver, error) {
	if len(targets) == 0 {
		return nil, &calcflow.ConfigError{Reason: "no computed variables"}
	}
	if len(lines) == 0 && len(overrides) == 0 {
		return nil, &calcflow.ConfigError{Reason: "no expressions"}
	}

	names := NewNameMap(allNames)
	rewritten := make([]string, len(lines))
	for i, line := range lines {
		rewritten[i] = names.Rewrite(line)
	}
	equations, err := ast.ParseAll(rewritten)
	if err != nil {
		return nil, err
	}

	return &Solver{
		equations: equations,
		targets:   append([]string(nil), targets...),
		names:     names,
		overrides: overrides,
		programs:  make(map[string]*vm.Program),
		funcs:     mathFuncs(),
	}, nil
}

// Names exposes the solver's name translation, mainly for diagnostics.
func (s *Solver) Names() *NameMap { return s.names }

// Evaluate implements calcflow.Evaluator.
func (s *Solver) Evaluate(in calcflow.Values) (calcflow.Values, error) {
	env := make(map[string]interface{}, len(in)+len(s.funcs))
	for name, fn := range s.funcs {
		env[name] = fn
	}
	for orig, value := range in {
		safe, ok := s.names.Safe(orig)
		if !ok {
			safe = Sanitize(orig)
		}
		env[safe] = coerce(value)
	}

	results := make(calcflow.Values, len(s.targets))
	unresolved := make(map[string]bool, len(s.targets))
	for _, t := range s.targets {
		unresolved[t] = true
	}

	settle := func(orig string, value interface{}) {
		results[orig] = value
		if safe, ok := s.names.Safe(orig); ok {
			env[safe] = value
		}
		delete(unresolved, orig)
	}

	for len(unresolved) > 0 {
		progress := false

		// Explicit overrides take precedence over pattern matching.
		for _, orig := range s.targets {
			if !unresolved[orig] {
				continue
			}
			fn := s.overrides[orig]
			if fn == nil {
				continue
			}
			if v := fn(s.originalScope(env)); v != nil {
				settle(orig, coerce(v))
				progress = true
			}
		}

		for _, eq := range s.equations {
			// Vector/matrix form: [a, b] = rhs.
			if len(eq.VectorNames) > 0 {
				if !s.anyUnresolved(eq.VectorNames, unresolved) {
					continue
				}
				out, err := s.eval(eq.Right, env)
				if err != nil {
					continue // try again next pass
				}
				arr, ok := calcflow.ToNumberSlice(out)
				if !ok || len(arr) != len(eq.VectorNames) {
					continue
				}
				for i, safe := range eq.VectorNames {
					orig, ok := s.names.Original(safe)
					if !ok {
						orig = safe
					}
					if unresolved[orig] {
						settle(orig, arr[i])
						progress = true
					}
				}
				continue
			}

			// Scalar left form: v = rhs.
			if eq.LeftIdent != "" {
				if orig, ok := s.unresolvedTarget(eq.LeftIdent, unresolved); ok {
					if s.overrides[orig] == nil {
						out, err := s.eval(eq.Right, env)
						if err == nil && usable(out) {
							settle(orig, coerce(out))
							progress = true
							continue
						}
					}
				}
			}

			// Scalar right form: lhs = v.
			if eq.RightIdent != "" {
				if orig, ok := s.unresolvedTarget(eq.RightIdent, unresolved); ok {
					if s.overrides[orig] == nil {
						out, err := s.eval(eq.Left, env)
						if err == nil && usable(out) {
							settle(orig, coerce(out))
							progress = true
						}
					}
				}
			}
		}

		if !progress {
			break
		}
	}

	// Deliberate non-fatal degradation: a fixed point with residue marks
	// every leftover target unresolved instead of failing.
	if len(unresolved) > 0 {
		residue := make([]string, 0, len(unresolved))
		for _, orig := range s.targets {
			if unresolved[orig] {
				results[orig] = calcflow.Unresolved()
				residue = append(residue, orig)
			}
		}
		log.Printf("resolve: fixed point reached with unresolved targets: %v", residue)
	}

	return results, nil
}

func (s *Solver) anyUnresolved(safeNames []string, unresolved map[string]bool) bool {
	for _, safe := range safeNames {
		if orig, ok := s.names.Original(safe); ok && unresolved[orig] {
			return true
		}
	}
	return false
}

func (s *Solver) unresolvedTarget(safe string, unresolved map[string]bool) (string, bool) {
	orig, ok := s.names.Original(safe)
	if !ok {
		orig = safe
	}
	return orig, unresolved[orig]
}

// originalScope presents the evaluation scope under original names for
// mapping overrides, which predate the name translation.
func (s *Solver) originalScope(env map[string]interface{}) calcflow.Values {
	scope := make(calcflow.Values)
	for safe, value := range env {
		if orig, ok := s.names.Original(safe); ok {
			scope[orig] = value
		}
	}
	return scope
}

// eval runs one expression side against the scope. Programs are compiled
// lazily and cached for the solver's lifetime; a failed individual attempt
// (a referenced symbol not yet in scope) is an error the caller swallows.
func (s *Solver) eval(text string, env map[string]interface{}) (interface{}, error) {
	program, ok := s.programs[text]
	if !ok {
		var err error
		program, err = expr.Compile(text, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("compiling %q: %w", text, err)
		}
		s.programs[text] = program
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("running %q: %w", text, err)
	}
	return out, nil
}

// usable reports whether an evaluation result can settle a target. nil
// means a referenced variable was still undefined this pass.
func usable(v interface{}) bool {
	if v == nil {
		return false
	}
	if _, ok := calcflow.ToNumber(v); ok {
		return true
	}
	_, ok := calcflow.ToNumberSlice(v)
	return ok
}

// coerce normalizes numeric values to float64 so arithmetic in later
// expressions stays in one domain.
func coerce(v interface{}) interface{} {
	if n, ok := calcflow.ToNumber(v); ok {
		return n
	}
	if s, ok := v.([]interface{}); ok {
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = coerce(item)
		}
		return out
	}
	return v
}

// mathFuncs is the fixed function set available inside equations.
func mathFuncs() map[string]interface{} {
	return map[string]interface{}{
		"abs":   math.Abs,
		"sqrt":  math.Sqrt,
		"cbrt":  math.Cbrt,
		"pow":   math.Pow,
		"exp":   math.Exp,
		"ln":    math.Log,
		"log":   math.Log10,
		"log2":  math.Log2,
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
