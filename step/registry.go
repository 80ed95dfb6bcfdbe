package step

import (
	"sort"
	"sync"
)

// Registry maps step ids to factories, prerequisite lists, custom
// validators, and custom error handlers. Registration overwrites
// silently and never fails. It is safe for concurrent use, though a
// single engine instance drives it from one goroutine.
type Registry struct {
	mu         sync.RWMutex
	factories  map[int]Factory
	deps       map[int][]int
	validators map[int]Validator
	handlers   map[int]ErrorHandler
}

// NewRegistry creates an empty step registry.
func NewRegistry() *Registry {
	return &Registry{
		factories:  make(map[int]Factory),
		deps:       make(map[int][]int),
		validators: make(map[int]Validator),
		handlers:   make(map[int]ErrorHandler),
	}
}

// Register records how to build the step for the given id.
func (r *Registry) Register(stepID int, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[stepID] = f
}

// RegisterDependencies declares that stepID may run only once every listed
// prerequisite is complete. Absence of a declaration means no prerequisites.
func (r *Registry) RegisterDependencies(stepID int, prereqs ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deps[stepID] = append([]int(nil), prereqs...)
}

// RegisterValidator installs a custom validation gate for stepID.
func (r *Registry) RegisterValidator(stepID int, v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[stepID] = v
}

// RegisterErrorHandler installs a custom error handler for stepID.
func (r *Registry) RegisterErrorHandler(stepID int, h ErrorHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[stepID] = h
}

// Factory returns the factory for stepID, if registered.
func (r *Registry) Factory(stepID int) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[stepID]
	return f, ok
}

// Registered reports whether a factory exists for stepID.
func (r *Registry) Registered(stepID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[stepID]
	return ok
}

// Dependencies returns the declared prerequisite ids for stepID.
// The second return is false when no list was ever declared.
func (r *Registry) Dependencies(stepID int) ([]int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.deps[stepID]
	return d, ok
}

// Validator returns the custom validator for stepID, if any.
func (r *Registry) Validator(stepID int) (Validator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[stepID]
	return v, ok
}

// ErrorHandler returns the custom error handler for stepID, if any.
func (r *Registry) ErrorHandler(stepID int) (ErrorHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[stepID]
	return h, ok
}

// IDs returns all registered step ids in ascending order.
func (r *Registry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Len returns the number of registered steps.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}
