// Package engine is the strategy dispatcher and reactive controller. It
// owns the active evaluation strategy, the recompute trigger and the
// re-entrancy guard, and writes strategy results back into the registry.
package engine

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	calcflow "github.com/calcflow/calcflow-go"
	"github.com/calcflow/calcflow-go/genfn"
	"github.com/calcflow/calcflow-go/manual"
	"github.com/calcflow/calcflow-go/registry"
	"github.com/calcflow/calcflow-go/resolve"
)

// Engine coordinates one formula system: a registry, the currently active
// strategy and its evaluator. The execution model is single-threaded and
// cooperative; the recomputing guard makes writes that happen inside a
// recompute safe by turning nested recompute triggers into no-ops.
type Engine struct {
	reg *registry.Registry

	mu          sync.Mutex
	strategy    calcflow.Strategy
	evaluator   calcflow.Evaluator
	expressions []string
	manualFns   []manual.Fn
	recordSteps bool

	adapter     *genfn.Adapter
	formula     string
	externalEv  calcflow.Evaluator
	activeGenID string
	inflight    int32

	recomputing atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithAdapter installs the generation adapter used by the external
// strategy.
func WithAdapter(a *genfn.Adapter) Option {
	return func(e *Engine) { e.adapter = a }
}

// WithStepRecording enables the manual strategy's step recorder.
func WithStepRecording() Option {
	return func(e *Engine) { e.recordSteps = true }
}

// New creates an engine over a registry and wires the registry's recompute
// and role-change triggers to it. The initial strategy is symbolic.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{reg: reg, strategy: calcflow.StrategySymbolic}
	for _, opt := range opts {
		opt(e)
	}
	reg.OnRecompute(e.Recompute)
	reg.OnRoleChange(func() {
		if err := e.rebuild(); err != nil {
			log.Printf("engine: rebuilding evaluator after role change: %v", err)
			return
		}
		e.Recompute()
	})
	return e
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Strategy returns the active strategy.
func (e *Engine) Strategy() calcflow.Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.strategy
}

// SetComputation records the expression and manual-function set, rebuilds
// the evaluator for the active strategy, and performs one recompute pass.
// The initial pass is skipped in step mode, where values are staged by an
// external driver instead.
func (e *Engine) SetComputation(expressions []string, fns []manual.Fn) error {
	if len(e.reg.ByRole(registry.RoleComputed)) == 0 {
		return &calcflow.ConfigError{Reason: "no computed variables"}
	}

	e.mu.Lock()
	e.expressions = append([]string(nil), expressions...)
	e.manualFns = fns
	e.mu.Unlock()

	if err := e.rebuild(); err != nil {
		return err
	}
	if !e.reg.StepMode() {
		e.Recompute()
	}
	return nil
}

// Configure records the strategy and the computation in one step, then
// behaves like SetComputation. Used when applying a document, where the
// strategy and expression set arrive together.
func (e *Engine) Configure(s calcflow.Strategy, expressions []string, fns []manual.Fn) error {
	e.mu.Lock()
	e.strategy = s
	e.mu.Unlock()
	return e.SetComputation(expressions, fns)
}

// SetStrategy switches the active strategy, re-derives the evaluator and
// recomputes.
func (e *Engine) SetStrategy(s calcflow.Strategy) error {
	e.mu.Lock()
	e.strategy = s
	e.mu.Unlock()
	if err := e.rebuild(); err != nil {
		return err
	}
	e.Recompute()
	return nil
}

// SetFormula records the natural-language/algebraic formula text used for
// generation requests.
func (e *Engine) SetFormula(formula string) {
	e.mu.Lock()
	e.formula = formula
	e.mu.Unlock()
}

// rebuild derives a fresh evaluator for the active strategy from the
// current expression/function set and swaps it in atomically.
func (e *Engine) rebuild() error {
	e.mu.Lock()
	strategy := e.strategy
	expressions := e.expressions
	fns := e.manualFns
	recordSteps := e.recordSteps
	external := e.externalEv
	e.mu.Unlock()

	var evaluator calcflow.Evaluator
	switch strategy {
	case calcflow.StrategySymbolic:
		solver, err := resolve.NewSolver(
			expressions,
			e.reg.ByRole(registry.RoleComputed),
			e.reg.IDs(),
			e.reg.Mappings(),
		)
		if err != nil {
			return err
		}
		evaluator = solver
	case calcflow.StrategyManual:
		ev, err := manual.NewEvaluator(e.reg, fns, recordSteps)
		if err != nil {
			return err
		}
		evaluator = ev
	case calcflow.StrategyExternal:
		// The external evaluator is installed by Generate; until one
		// arrives, recompute passes are no-ops.
		evaluator = external
	default:
		return &calcflow.ConfigError{Reason: "unknown strategy " + string(strategy)}
	}

	e.mu.Lock()
	e.evaluator = evaluator
	e.mu.Unlock()
	return nil
}

// Recompute runs one full evaluation pass: snapshot, evaluate, filtered
// write-back, change notification. If a pass is already in progress the
// call returns immediately, so a write performed by a strategy during its
// own recompute never cascades into a nested pass.
func (e *Engine) Recompute() {
	if !e.recomputing.CompareAndSwap(false, true) {
		return
	}
	defer e.recomputing.Store(false)

	e.mu.Lock()
	evaluator := e.evaluator
	e.mu.Unlock()
	if evaluator == nil {
		return
	}

	results, err := evaluator.Evaluate(e.reg.Snapshot())
	if err != nil {
		log.Printf("engine: recompute failed: %v", err)
		return
	}
	written := e.reg.ApplyResults(results)
	e.reg.NotifyChanged(written)
}

// Generate asks the generation service for an evaluate routine for the
// recorded formula and, on successful validation, installs it as the
// external evaluator. While the request is outstanding the previous
// evaluator stays live; a failed request or invalid response leaves state
// unchanged. Overlapping requests are not deduplicated: the last response
// to arrive wins, and a supersession is logged.
func (e *Engine) Generate(ctx context.Context) error {
	e.mu.Lock()
	adapter := e.adapter
	formula := e.formula
	e.mu.Unlock()
	if adapter == nil {
		return &calcflow.ConfigError{Reason: "no generation adapter configured"}
	}
	if formula == "" {
		return &calcflow.ConfigError{Reason: "no formula set"}
	}

	inputs := e.reg.ByRole(registry.RoleInput)
	targets := e.reg.ByRole(registry.RoleComputed)

	atomic.AddInt32(&e.inflight, 1)
	evaluator, requestID, err := adapter.Generate(ctx, formula, inputs, targets)
	remaining := atomic.AddInt32(&e.inflight, -1)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if remaining > 0 {
		log.Printf("engine: generation %s activated with %d requests still outstanding; last response wins",
			requestID, remaining)
	}
	e.externalEv = evaluator
	e.activeGenID = requestID
	active := e.strategy == calcflow.StrategyExternal
	if active {
		e.evaluator = evaluator
	}
	e.mu.Unlock()

	if active {
		e.Recompute()
	}
	return nil
}

// ActiveGeneration returns the request id of the installed external
// evaluator, or "" when none has been activated.
func (e *Engine) ActiveGeneration() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeGenID
}

// ManualEvaluator returns the active manual evaluator for access to its
// side channels (points, steps), or nil when another strategy is active.
func (e *Engine) ManualEvaluator() *manual.Evaluator {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev, ok := e.evaluator.(*manual.Evaluator); ok {
		return ev
	}
	return nil
}
