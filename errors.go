package calcflow

import (
	"fmt"
	"strings"
)

// ConfigError aborts SetComputation: the caller asked for a computation that
// cannot be set up at all (no computed variables, no expressions). It is the
// only registry/engine error that propagates instead of degrading.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid computation configuration: %s", e.Reason)
}

// UnknownVariableError reports an operation on an id that was never added.
// Callers treat it as non-fatal: the operation is logged and skipped.
type UnknownVariableError struct {
	ID string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable: %s", e.ID)
}

// GeneratedCodeError reports that an externally generated evaluate routine
// failed validation. The previously active evaluator stays installed.
type GeneratedCodeError struct {
	Reason  string
	Missing []string
}

func (e *GeneratedCodeError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("generated code invalid: %s (missing: %s)",
			e.Reason, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("generated code invalid: %s", e.Reason)
}
