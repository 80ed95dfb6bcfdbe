package engine

import "context"

// ValidateStepDependencies reports whether every declared prerequisite of
// id is completed in the current workflow state. A step with no declared
// prerequisite list passes vacuously even before initialization; a declared
// list with no active workflow fails closed.
func (e *Engine) ValidateStepDependencies(id int) bool {
	deps, declared := e.registry.Dependencies(id)
	if !declared {
		return true
	}
	if e.state == nil {
		return false
	}
	for _, dep := range deps {
		if !e.state.IsStepCompleted(dep) {
			return false
		}
	}
	return true
}

// ValidateStepPrerequisites is the full pre-execution gate: dependency
// check first, then the registered custom validator if present (its verdict
// is authoritative, and a fault counts as failure), then the cached step
// instance's own Validate if one exists. With nothing to check it passes.
func (e *Engine) ValidateStepPrerequisites(ctx context.Context, id int) bool {
	if !e.ValidateStepDependencies(id) {
		return false
	}
	if v, ok := e.registry.Validator(id); ok {
		valid, err := safeValidatorCall(ctx, v)
		return err == nil && valid
	}
	if s, ok := e.instances[id]; ok {
		valid, err := safeValidate(ctx, s)
		return err == nil && valid
	}
	return true
}

// CanExecuteStep reports whether id is currently runnable: an active
// workflow exists, id is registered, not yet completed, and its
// dependencies are met.
func (e *Engine) CanExecuteStep(id int) bool {
	if e.state == nil {
		return false
	}
	if e.state.IsStepCompleted(id) {
		return false
	}
	if !e.registry.Registered(id) {
		return false
	}
	return e.ValidateStepDependencies(id)
}

// NextAvailableStep scans registered step ids in ascending order and
// returns the first uncompleted one whose dependencies are satisfied.
// The second return is false when nothing is runnable or no workflow is
// active. This is the scheduling policy: lowest id first among unblocked
// steps.
func (e *Engine) NextAvailableStep() (int, bool) {
	if e.state == nil {
		return 0, false
	}
	for _, id := range e.registry.IDs() {
		if e.state.IsStepCompleted(id) {
			continue
		}
		if e.ValidateStepDependencies(id) {
			return id, true
		}
	}
	return 0, false
}
