package step

import (
	"context"
	"time"
)

// Status represents the lifecycle state of a workflow step.
type Status string

const (
	// StatusPending means the step has not been executed yet.
	StatusPending Status = "pending"
	// StatusInProgress means an execution attempt is underway.
	StatusInProgress Status = "in_progress"
	// StatusCompleted means the step finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the step failed.
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Result is the outcome of exactly one step execution attempt.
// It is immutable once constructed; the engine never mutates a Result
// after receiving it.
type Result struct {
	StepID int `json:"step_id"`

	Status Status `json:"status"`

	// Data carries step-specific output, opaque to the engine.
	Data map[string]any `json:"data,omitempty"`

	// ErrorMessage is set iff Status is StatusFailed.
	ErrorMessage string `json:"error_message,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Completed builds a successful Result for the given step.
func Completed(stepID int, data map[string]any) *Result {
	return &Result{
		StepID:    stepID,
		Status:    StatusCompleted,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Failed builds a failed Result carrying a diagnostic message.
func Failed(stepID int, message string) *Result {
	return &Result{
		StepID:       stepID,
		Status:       StatusFailed,
		ErrorMessage: message,
		Timestamp:    time.Now().UTC(),
	}
}

// Successful reports whether the result is a completion.
func (r *Result) Successful() bool { return r.Status == StatusCompleted }

// Step is a registered unit of workflow work. Implementations are
// constructed by a Factory with no arguments; any error (or panic)
// returned from the three methods is tolerated by the engine and
// normalized into a failed result or validation failure.
type Step interface {
	// Execute performs the step's work and returns its result.
	Execute(ctx context.Context) (*Result, error)

	// Validate reports whether the step's own preconditions hold.
	Validate(ctx context.Context) (bool, error)

	// Rollback undoes the step's externally visible effects.
	Rollback(ctx context.Context) error
}

// Factory constructs a Step instance. The engine invokes a factory at most
// once per step id and caches the instance for its own lifetime, so repeated
// executions reuse any state the step itself holds.
type Factory interface {
	New() Step
}

// FactoryFunc adapts a plain function to a Factory.
type FactoryFunc func() Step

// New calls f.
func (f FactoryFunc) New() Step { return f() }

// Validator is an optional extra gate evaluated in addition to dependency
// checks and the step's own Validate. An error return is treated as a
// validation failure.
type Validator func(ctx context.Context) (bool, error)

// ErrorHandler is an optional hook invoked when an execution attempt fails.
// It receives the triggering error and reports whether it resolved the
// underlying condition; a true return makes the engine retry immediately.
// The handler mediates transient external-resource issues between attempts.
// It cannot extend the retry ceiling, since every loop iteration consumes
// an attempt regardless.
type ErrorHandler func(ctx context.Context, cause error) bool
