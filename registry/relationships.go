package registry

import (
	"log"

	calcflow "github.com/calcflow/calcflow-go"
)

// Relationship resolution runs in a dedicated pass after a batch of Add
// calls, because a variable may reference one that is registered later.

// ResolveKeys applies the key positional join: for a variable with key K and
// its own set, find the index of K's current value inside K's set and assign
// the element at the same index of this variable's set. This is an index
// join, not a value-equality lookup.
func (r *Registry) ResolveKeys() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		v := r.vars[id]
		if v.Key == "" || len(v.Set) == 0 {
			continue
		}
		src, ok := r.vars[v.Key]
		if !ok {
			log.Printf("registry: variable %s references unknown key %s", id, v.Key)
			continue
		}
		idx := indexOf(src.Set, src.Value)
		if idx < 0 || idx >= len(v.Set) {
			continue
		}
		v.Value = v.Set[idx]
	}
}

// ResolveMemberships applies memberOf inheritance: the variable adopts its
// parent's set verbatim and, unless step mode is active or an explicit value
// was given, defaults to the first element.
func (r *Registry) ResolveMemberships() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		v := r.vars[id]
		if v.MemberOf == "" {
			continue
		}
		parent, ok := r.vars[v.MemberOf]
		if !ok {
			log.Printf("registry: variable %s references unknown parent %s", id, v.MemberOf)
			continue
		}
		v.Set = append([]interface{}(nil), parent.Set...)
		if v.Value == nil && len(v.Set) > 0 && !r.stepMode {
			v.Value = v.Set[0]
		}
	}
}

// syncIndexLocked propagates the positional join in both directions after a
// value change. The rule is the same both ways: find the index of the new
// value within the source variable's own set and apply the target's set
// element at that index. A value not found in the relevant set propagates
// nothing; that is not an error.
func (r *Registry) syncIndexLocked(changed *Variable) {
	idx := indexOf(changed.Set, changed.Value)
	if idx < 0 {
		return
	}
	// Dependent direction: variables selecting their value via this one.
	for _, id := range r.order {
		dep := r.vars[id]
		if dep == changed || dep.Key != changed.ID {
			continue
		}
		if idx < len(dep.Set) {
			dep.Value = dep.Set[idx]
			dep.Errored = false
		}
	}
	// Inverse direction: this variable selects via its own key.
	if changed.Key != "" {
		if src, ok := r.vars[changed.Key]; ok && idx < len(src.Set) {
			src.Value = src.Set[idx]
			src.Errored = false
		}
	}
}

// indexOf locates a value inside an ordered set. Numbers compare
// numerically so 2 and 2.0 select the same index.
func indexOf(set []interface{}, value interface{}) int {
	if value == nil {
		return -1
	}
	want, wantNum := calcflow.ToNumber(value)
	for i, item := range set {
		if have, ok := calcflow.ToNumber(item); ok && wantNum {
			if have == want {
				return i
			}
			continue
		}
		if item == value {
			return i
		}
	}
	return -1
}
