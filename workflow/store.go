package workflow

import (
	"context"
	"time"

	"github.com/xraph/stepflow/step"
)

// Store defines the progress persistence contract consumed by the engine.
// The engine assumes no particular storage medium; it only requires these
// operations to be durable across process restarts so an interrupted
// workflow can be reloaded and resumed.
//
// Stores own the durable state derivation: a SaveProgress with
// step.StatusCompleted marks the step complete in the persisted state and
// advances its current step to the successor.
type Store interface {
	// SaveProgress records the outcome (or in-flight marker) of a step
	// attempt. errorMessage is empty unless status is step.StatusFailed.
	SaveProgress(ctx context.Context, stepID int, status step.Status, data map[string]any, errorMessage string) error

	// LoadState returns the persisted workflow state, or
	// stepflow.ErrStateNotFound if no workflow has been initialized.
	LoadState(ctx context.Context) (*State, error)

	// MarkComplete records a step as completed with no result data.
	MarkComplete(ctx context.Context, stepID int) error

	// CompletionSummary returns a projection of the persisted progress.
	CompletionSummary(ctx context.Context) (*CompletionSummary, error)
}

// Initializer is an optional store capability used preferentially by the
// engine when initializing a new workflow.
type Initializer interface {
	InitializeWorkflow(ctx context.Context, projectName string) error
}

// StepRollbacker is an optional store capability that clears the store's
// own record for a step during failure recovery.
type StepRollbacker interface {
	RollbackStep(ctx context.Context, stepID int) error
}

// ResultReader is an optional store capability exposing the last recorded
// result for a step. Implementations return (nil, nil) when no result
// has been recorded.
type ResultReader interface {
	StepResult(ctx context.Context, stepID int) (*step.Result, error)
}

// CompletionSummary is a read-only projection of persisted progress.
type CompletionSummary struct {
	ProjectName        string    `json:"project_name"`
	CurrentStep        int       `json:"current_step"`
	TotalSteps         int       `json:"total_steps"`
	CompletedSteps     int       `json:"completed_steps"`
	CompletedStepIDs   []int     `json:"completed_step_ids"`
	ProgressPercentage float64   `json:"progress_percentage"`
	LastUpdated        time.Time `json:"last_updated"`
}
