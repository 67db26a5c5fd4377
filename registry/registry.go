// Package registry is the canonical store of variable definitions, values
// and their cross-references. UI collaborators mutate variables here; the
// engine reads snapshots and writes strategy results back.
package registry

import (
	"log"
	"sync"

	calcflow "github.com/calcflow/calcflow-go"
)

// Role determines write ownership of a variable. Computed variables are
// written only by the active strategy during a recompute pass, except in
// step mode where an external driver may stage values.
type Role string

const (
	RoleConstant Role = "constant"
	RoleInput    Role = "input"
	RoleComputed Role = "computed"
)

// Definition describes a variable at registration time.
type Definition struct {
	Role      Role
	Value     interface{}   // initial value, nil when unset
	Set       []interface{} // ordered permissible values, nil for continuous
	Precision int
	Min, Max  float64 // meaningful only for RoleInput
	Step      float64
	Key       string // id of the variable whose set index selects this value
	MemberOf  string // id of the parent variable whose set this one inherits
	Mapping   calcflow.Mapping
}

// Variable is the stored form of a definition plus runtime state.
type Variable struct {
	ID        string
	Role      Role
	Value     interface{}
	Set       []interface{}
	Precision int
	Min, Max  float64
	Step      float64
	Key       string
	MemberOf  string
	Mapping   calcflow.Mapping
	Errored   bool
}

// Registry holds all variables of one formula system.
type Registry struct {
	mu    sync.RWMutex
	vars  map[string]*Variable
	order []string

	batch    bool
	stepMode bool

	recompute    func()
	onRoleChange func()
	listeners    []func(changed []string)
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{vars: make(map[string]*Variable)}
}

// OnRecompute installs the dispatcher's recompute trigger. SetValue and
// SetSetValue invoke it after a successful mutation unless the registry is
// in batch initialization.
func (r *Registry) OnRecompute(fn func()) {
	r.mu.Lock()
	r.recompute = fn
	r.mu.Unlock()
}

// OnRoleChange installs the dispatcher's hook for role transitions, which
// require a full evaluator re-derivation.
func (r *Registry) OnRoleChange(fn func()) {
	r.mu.Lock()
	r.onRoleChange = fn
	r.mu.Unlock()
}

// OnChange subscribes to change notifications. Listeners are invoked with
// the ids written by each successful recompute pass.
func (r *Registry) OnChange(fn func(changed []string)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// NotifyChanged fans a change set out to all subscribers. Called by the
// engine after write-back; exported so step-mode drivers can announce staged
// values the same way.
func (r *Registry) NotifyChanged(changed []string) {
	if len(changed) == 0 {
		return
	}
	r.mu.RLock()
	listeners := make([]func([]string), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(changed)
	}
}

// BeginInit enters batch initialization: mutations no longer trigger
// recompute until EndInit. Used while loading a document's variables.
func (r *Registry) BeginInit() {
	r.mu.Lock()
	r.batch = true
	r.mu.Unlock()
}

// EndInit leaves batch initialization. It does not trigger a recompute by
// itself; SetComputation performs the initial pass.
func (r *Registry) EndInit() {
	r.mu.Lock()
	r.batch = false
	r.mu.Unlock()
}

// SetStepMode toggles step mode. While active, computed variables may be
// staged externally and memberOf resolution assigns no default value.
func (r *Registry) SetStepMode(on bool) {
	r.mu.Lock()
	r.stepMode = on
	r.mu.Unlock()
}

// StepMode reports whether step mode is active.
func (r *Registry) StepMode() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stepMode
}

// Add inserts a variable if absent. A second add for the same id is a
// silent no-op; Add never fails.
func (r *Registry) Add(id string, def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.vars[id]; exists {
		return
	}
	role := def.Role
	if role == "" {
		role = RoleConstant
	}
	r.vars[id] = &Variable{
		ID:        id,
		Role:      role,
		Value:     def.Value,
		Set:       append([]interface{}(nil), def.Set...),
		Precision: def.Precision,
		Min:       def.Min,
		Max:       def.Max,
		Step:      def.Step,
		Key:       def.Key,
		MemberOf:  def.MemberOf,
		Mapping:   def.Mapping,
	}
	r.order = append(r.order, id)
}

// SetValue mutates a variable in place and triggers a recompute. Unknown
// ids are logged and reported as failure, not raised. Computed variables
// are owned by the active strategy and writable here only in step mode.
func (r *Registry) SetValue(id string, value interface{}) bool {
	r.mu.Lock()
	v, ok := r.vars[id]
	if !ok {
		r.mu.Unlock()
		log.Printf("registry: %v", &calcflow.UnknownVariableError{ID: id})
		return false
	}
	if v.Role == RoleComputed && !r.stepMode {
		r.mu.Unlock()
		log.Printf("registry: refusing direct write to computed variable %s", id)
		return false
	}
	v.Value = value
	v.Errored = false
	r.syncIndexLocked(v)
	trigger := r.recompute
	skip := r.batch || trigger == nil
	r.mu.Unlock()
	if !skip {
		trigger()
	}
	return true
}

// StageValue stores a value without triggering recompute. Step-mode drivers
// use it to walk recorded checkpoints; outside step mode it behaves like a
// plain store for input variables during setup.
func (r *Registry) StageValue(id string, value interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vars[id]
	if !ok {
		log.Printf("registry: %v", &calcflow.UnknownVariableError{ID: id})
		return false
	}
	if v.Role == RoleComputed && !r.stepMode {
		log.Printf("registry: refusing staged write to computed variable %s outside step mode", id)
		return false
	}
	v.Value = value
	v.Errored = false
	return true
}

// Store writes a value with no ownership check and no recompute trigger.
// This is the write path of the active strategy: the manual sandbox stores
// through it while a recompute pass is in progress.
func (r *Registry) Store(id string, value interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vars[id]
	if !ok {
		return false
	}
	v.Value = value
	v.Errored = false
	return true
}

// SetSetValue replaces a variable's ordered set and triggers a recompute.
func (r *Registry) SetSetValue(id string, set []interface{}) bool {
	r.mu.Lock()
	v, ok := r.vars[id]
	if !ok {
		r.mu.Unlock()
		log.Printf("registry: %v", &calcflow.UnknownVariableError{ID: id})
		return false
	}
	v.Set = append([]interface{}(nil), set...)
	trigger := r.recompute
	skip := r.batch || trigger == nil
	r.mu.Unlock()
	if !skip {
		trigger()
	}
	return true
}

// SetRole changes a variable's role and notifies the dispatcher, which
// rebuilds the active evaluator and recomputes.
func (r *Registry) SetRole(id string, role Role) bool {
	r.mu.Lock()
	v, ok := r.vars[id]
	if !ok {
		r.mu.Unlock()
		log.Printf("registry: %v", &calcflow.UnknownVariableError{ID: id})
		return false
	}
	v.Role = role
	hook := r.onRoleChange
	skip := r.batch || hook == nil
	r.mu.Unlock()
	if !skip {
		hook()
	}
	return true
}

// Get returns a copy of a variable.
func (r *Registry) Get(id string) (Variable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vars[id]
	if !ok {
		return Variable{}, false
	}
	out := *v
	out.Set = append([]interface{}(nil), v.Set...)
	return out, true
}

// Value returns a variable's current value.
func (r *Registry) Value(id string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vars[id]
	if !ok {
		return nil, false
	}
	return v.Value, true
}

// Snapshot returns the current value of every variable that has one, keyed
// by id. This is the scope handed to the active evaluator.
func (r *Registry) Snapshot() calcflow.Values {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(calcflow.Values, len(r.vars))
	for id, v := range r.vars {
		if v.Value != nil {
			out[id] = v.Value
		}
	}
	return out
}

// IDs returns every variable id in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ByRole returns ids with the given role in registration order.
func (r *Registry) ByRole(role Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, id := range r.order {
		if r.vars[id].Role == role {
			out = append(out, id)
		}
	}
	return out
}

// Mappings returns the explicit per-variable overrides, keyed by id.
func (r *Registry) Mappings() map[string]calcflow.Mapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]calcflow.Mapping)
	for id, v := range r.vars {
		if v.Mapping != nil {
			out[id] = v.Mapping
		}
	}
	return out
}

// ApplyResults writes strategy results back after a recompute pass. Only
// valid results (finite numbers, finite vectors) are stored; anything else
// leaves the previous value in place and flags the variable errored. The
// ids actually written are returned for change notification.
func (r *Registry) ApplyResults(results calcflow.Values) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var written []string
	for _, id := range r.order {
		v := r.vars[id]
		if v.Role != RoleComputed {
			continue
		}
		result, ok := results[id]
		if !ok {
			continue
		}
		if !calcflow.ValidResult(result) {
			v.Errored = true
			continue
		}
		v.Value = result
		v.Errored = false
		written = append(written, id)
	}
	return written
}

// Reset destroys every variable. This is the only way a variable is
// removed; there is no per-id delete.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vars = make(map[string]*Variable)
	r.order = nil
}
