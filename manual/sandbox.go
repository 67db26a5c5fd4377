// Package manual implements the manual strategy: user-supplied functions
// that compute by mutating variable state directly through an explicit
// accessor, with side channels for plot points and recorded steps.
package manual

import (
	"log"

	calcflow "github.com/calcflow/calcflow-go"
	"github.com/calcflow/calcflow-go/registry"
)

// Fn is one user-supplied manual computation. It reads and writes
// variables through the sandbox rather than returning results.
type Fn func(sb *Sandbox)

// Point is one collected plot coordinate set.
type Point []float64

// StepValue is one (variable, value) pair inside a recorded step.
type StepValue struct {
	ID    string
	Value interface{}
}

// Step is one checkpoint recorded during a manual execution while step
// recording is enabled.
type Step struct {
	Index          int
	Description    string
	Values         []StepValue
	TargetFormulas []string // optional per-formula override
}

// Sandbox is the controlled view handed to a manual function for the
// duration of exactly one invocation.
type Sandbox struct {
	vars *Accessor

	points      map[string][]Point
	steps       []Step
	recordSteps bool
}

// Accessor is the explicit get/set-by-name view over the registry. Reading
// an unknown id yields nil; writing to an unknown id is a no-op. Writes
// store on the underlying variable immediately, with no buffering.
type Accessor struct {
	reg *registry.Registry
}

// Get returns the current value of a variable, or nil if the id is
// unknown or unset.
func (a *Accessor) Get(id string) interface{} {
	v, ok := a.reg.Value(id)
	if !ok {
		return nil
	}
	return v
}

// GetNumber returns a variable's value as a float64, or 0 with false.
func (a *Accessor) GetNumber(id string) (float64, bool) {
	v, ok := a.reg.Value(id)
	if !ok {
		return 0, false
	}
	return calcflow.ToNumber(v)
}

// Set stores a value on a known variable immediately. Unknown ids are
// ignored. The store never triggers a recompute; manual functions run
// inside one.
func (a *Accessor) Set(id string, value interface{}) {
	a.reg.Store(id, value)
}

// Vars returns the variable accessor.
func (sb *Sandbox) Vars() *Accessor { return sb.vars }

// Get is shorthand for Vars().Get.
func (sb *Sandbox) Get(id string) interface{} { return sb.vars.Get(id) }

// Set is shorthand for Vars().Set.
func (sb *Sandbox) Set(id string, value interface{}) { sb.vars.Set(id, value) }

// Collect appends a plot point to the ordered list for a graph id.
func (sb *Sandbox) Collect(graphID string, coords ...float64) {
	p := make(Point, len(coords))
	copy(p, coords)
	sb.points[graphID] = append(sb.points[graphID], p)
}

// Step appends a recorded checkpoint. It is a no-op unless step recording
// was requested for this invocation.
func (sb *Sandbox) Step(description string, values map[string]interface{}, targetFormulas ...string) {
	if !sb.recordSteps {
		return
	}
	step := Step{
		Index:          len(sb.steps),
		Description:    description,
		TargetFormulas: targetFormulas,
	}
	for id, v := range values {
		step.Values = append(step.Values, StepValue{ID: id, Value: v})
	}
	sb.steps = append(sb.steps, step)
}

// Evaluator runs the manual functions as the active strategy. It
// implements calcflow.Evaluator; results are collected by re-reading every
// computed variable after the functions ran.
type Evaluator struct {
	reg         *registry.Registry
	fns         []Fn
	recordSteps bool

	lastPoints map[string][]Point
	lastSteps  []Step
}

// NewEvaluator builds the manual evaluator over a registry.
func NewEvaluator(reg *registry.Registry, fns []Fn, recordSteps bool) (*Evaluator, error) {
	if len(fns) == 0 {
		return nil, &calcflow.ConfigError{Reason: "no manual functions"}
	}
	return &Evaluator{reg: reg, fns: fns, recordSteps: recordSteps}, nil
}

// Evaluate implements calcflow.Evaluator. Each function is invoked exactly
// once. A panic inside one function is caught and logged; it contributes
// nothing this pass but never aborts the remaining functions.
func (e *Evaluator) Evaluate(in calcflow.Values) (calcflow.Values, error) {
	sb := &Sandbox{
		vars:        &Accessor{reg: e.reg},
		points:      make(map[string][]Point),
		recordSteps: e.recordSteps,
	}

	for i, fn := range e.fns {
		e.run(i, fn, sb)
	}

	e.lastPoints = sb.points
	e.lastSteps = sb.steps

	results := make(calcflow.Values)
	for _, id := range e.reg.ByRole(registry.RoleComputed) {
		if v, ok := e.reg.Value(id); ok && v != nil {
			results[id] = v
		}
	}
	return results, nil
}

func (e *Evaluator) run(index int, fn Fn, sb *Sandbox) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("manual: function %d panicked: %v", index, r)
		}
	}()
	fn(sb)
}

// Points returns the plot points collected by the most recent execution.
func (e *Evaluator) Points(graphID string) []Point {
	return e.lastPoints[graphID]
}

// Steps returns the checkpoints recorded by the most recent execution.
func (e *Evaluator) Steps() []Step {
	return e.lastSteps
}
