package hook

import (
	"context"
	"time"

	"github.com/xraph/stepflow/step"
	"github.com/xraph/stepflow/workflow"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Step lifecycle hooks
// ──────────────────────────────────────────────────

// StepStarted is called before each execution attempt of a step.
type StepStarted interface {
	OnStepStarted(ctx context.Context, stepID, attempt, maxAttempts int) error
}

// StepCompleted is called after a step finishes successfully.
type StepCompleted interface {
	OnStepCompleted(ctx context.Context, res *step.Result, elapsed time.Duration) error
}

// StepFailed is called when an execution attempt fails terminally
// (single-attempt failure, or retry exhaustion).
type StepFailed interface {
	OnStepFailed(ctx context.Context, stepID int, cause error) error
}

// StepRetrying is called between failed attempts, before the next one.
type StepRetrying interface {
	OnStepRetrying(ctx context.Context, stepID, attempt int) error
}

// StepRolledBack is called after a step's completion has been reversed.
type StepRolledBack interface {
	OnStepRolledBack(ctx context.Context, stepID int) error
}

// StepRecovered is called after failure recovery has reset a step.
type StepRecovered interface {
	OnStepRecovered(ctx context.Context, stepID int) error
}

// ──────────────────────────────────────────────────
// Workflow lifecycle hooks
// ──────────────────────────────────────────────────

// WorkflowInitialized is called after a fresh workflow is initialized.
type WorkflowInitialized interface {
	OnWorkflowInitialized(ctx context.Context, projectName string) error
}

// WorkflowLoaded is called after an existing workflow state is rehydrated
// from the progress store.
type WorkflowLoaded interface {
	OnWorkflowLoaded(ctx context.Context, st *workflow.State) error
}
