// Package calcflow defines the shared contracts of the computation engine:
// the value model exchanged between the registry and the evaluation
// strategies, the Evaluator interface every strategy produces, and the
// engine's error taxonomy.
package calcflow

import (
	"math"
)

// Values is a snapshot of variable values keyed by variable id. A value is
// either a scalar number (float64), a numeric vector ([]float64), or an
// ordered set element list ([]interface{} of numbers/strings) for set-valued
// variables. A variable never holds a scalar and a list at the same time.
type Values map[string]interface{}

// Evaluator produces computed-variable values from a snapshot of all
// variable values. Exactly one evaluator is active at a time; it is swapped
// atomically when the strategy or the expression set changes.
type Evaluator interface {
	Evaluate(in Values) (Values, error)
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(in Values) (Values, error)

// Mapping is an explicit per-variable override for the symbolic strategy:
// it derives one variable directly from the evaluation scope and takes
// precedence over any pattern-matched equation for the same target. A nil
// return means the mapping could not produce a value this pass.
type Mapping func(scope Values) interface{}

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(in Values) (Values, error) { return f(in) }

// Strategy selects how computed variables are derived from inputs.
type Strategy string

const (
	// StrategySymbolic resolves a system of declarative equations by
	// fixed-point iteration.
	StrategySymbolic Strategy = "symbolic"
	// StrategyManual runs user-supplied functions that mutate variable
	// state through an explicit accessor.
	StrategyManual Strategy = "manual"
	// StrategyExternal applies a validated, externally generated evaluate
	// routine interpreted over a restricted expression grammar.
	StrategyExternal Strategy = "external"
)

// Unresolved is the sentinel written to computed variables the resolver
// could not determine. Circular or underspecified systems degrade to this
// value instead of failing.
func Unresolved() float64 { return math.NaN() }

// ToNumber coerces the numeric types an evaluator may produce to float64.
func ToNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// ToNumberSlice coerces an evaluator result to a numeric vector. It accepts
// []float64 directly and []interface{} whose elements are all numeric.
func ToNumberSlice(v interface{}) ([]float64, bool) {
	switch s := v.(type) {
	case []float64:
		return s, true
	case []interface{}:
		out := make([]float64, len(s))
		for i, item := range s {
			n, ok := ToNumber(item)
			if !ok {
				return nil, false
			}
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

// ValidResult reports whether an evaluator result may be written back to a
// computed variable: a finite number or a vector of finite numbers. NaN and
// infinities are rejected so a failed resolution leaves the previous value
// in place.
func ValidResult(v interface{}) bool {
	if n, ok := ToNumber(v); ok {
		return !math.IsNaN(n) && !math.IsInf(n, 0)
	}
	if s, ok := ToNumberSlice(v); ok {
		for _, n := range s {
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return false
			}
		}
		return true
	}
	return false
}
