package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/stepflow/step"
	"github.com/xraph/stepflow/workflow"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type stepStartedEntry struct {
	name string
	hook StepStarted
}

type stepCompletedEntry struct {
	name string
	hook StepCompleted
}

type stepFailedEntry struct {
	name string
	hook StepFailed
}

type stepRetryingEntry struct {
	name string
	hook StepRetrying
}

type stepRolledBackEntry struct {
	name string
	hook StepRolledBack
}

type stepRecoveredEntry struct {
	name string
	hook StepRecovered
}

type workflowInitializedEntry struct {
	name string
	hook WorkflowInitialized
}

type workflowLoadedEntry struct {
	name string
	hook WorkflowLoaded
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	stepStarted         []stepStartedEntry
	stepCompleted       []stepCompletedEntry
	stepFailed          []stepFailedEntry
	stepRetrying        []stepRetryingEntry
	stepRolledBack      []stepRolledBackEntry
	stepRecovered       []stepRecoveredEntry
	workflowInitialized []workflowInitializedEntry
	workflowLoaded      []workflowLoadedEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(StepStarted); ok {
		r.stepStarted = append(r.stepStarted, stepStartedEntry{name, h})
	}
	if h, ok := e.(StepCompleted); ok {
		r.stepCompleted = append(r.stepCompleted, stepCompletedEntry{name, h})
	}
	if h, ok := e.(StepFailed); ok {
		r.stepFailed = append(r.stepFailed, stepFailedEntry{name, h})
	}
	if h, ok := e.(StepRetrying); ok {
		r.stepRetrying = append(r.stepRetrying, stepRetryingEntry{name, h})
	}
	if h, ok := e.(StepRolledBack); ok {
		r.stepRolledBack = append(r.stepRolledBack, stepRolledBackEntry{name, h})
	}
	if h, ok := e.(StepRecovered); ok {
		r.stepRecovered = append(r.stepRecovered, stepRecoveredEntry{name, h})
	}
	if h, ok := e.(WorkflowInitialized); ok {
		r.workflowInitialized = append(r.workflowInitialized, workflowInitializedEntry{name, h})
	}
	if h, ok := e.(WorkflowLoaded); ok {
		r.workflowLoaded = append(r.workflowLoaded, workflowLoadedEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Step event emitters
// ──────────────────────────────────────────────────

// EmitStepStarted notifies all extensions that implement StepStarted.
func (r *Registry) EmitStepStarted(ctx context.Context, stepID, attempt, maxAttempts int) {
	for _, e := range r.stepStarted {
		if err := e.hook.OnStepStarted(ctx, stepID, attempt, maxAttempts); err != nil {
			r.logHookError("OnStepStarted", e.name, err)
		}
	}
}

// EmitStepCompleted notifies all extensions that implement StepCompleted.
func (r *Registry) EmitStepCompleted(ctx context.Context, res *step.Result, elapsed time.Duration) {
	for _, e := range r.stepCompleted {
		if err := e.hook.OnStepCompleted(ctx, res, elapsed); err != nil {
			r.logHookError("OnStepCompleted", e.name, err)
		}
	}
}

// EmitStepFailed notifies all extensions that implement StepFailed.
func (r *Registry) EmitStepFailed(ctx context.Context, stepID int, cause error) {
	for _, e := range r.stepFailed {
		if err := e.hook.OnStepFailed(ctx, stepID, cause); err != nil {
			r.logHookError("OnStepFailed", e.name, err)
		}
	}
}

// EmitStepRetrying notifies all extensions that implement StepRetrying.
func (r *Registry) EmitStepRetrying(ctx context.Context, stepID, attempt int) {
	for _, e := range r.stepRetrying {
		if err := e.hook.OnStepRetrying(ctx, stepID, attempt); err != nil {
			r.logHookError("OnStepRetrying", e.name, err)
		}
	}
}

// EmitStepRolledBack notifies all extensions that implement StepRolledBack.
func (r *Registry) EmitStepRolledBack(ctx context.Context, stepID int) {
	for _, e := range r.stepRolledBack {
		if err := e.hook.OnStepRolledBack(ctx, stepID); err != nil {
			r.logHookError("OnStepRolledBack", e.name, err)
		}
	}
}

// EmitStepRecovered notifies all extensions that implement StepRecovered.
func (r *Registry) EmitStepRecovered(ctx context.Context, stepID int) {
	for _, e := range r.stepRecovered {
		if err := e.hook.OnStepRecovered(ctx, stepID); err != nil {
			r.logHookError("OnStepRecovered", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Workflow event emitters
// ──────────────────────────────────────────────────

// EmitWorkflowInitialized notifies all extensions that implement
// WorkflowInitialized.
func (r *Registry) EmitWorkflowInitialized(ctx context.Context, projectName string) {
	for _, e := range r.workflowInitialized {
		if err := e.hook.OnWorkflowInitialized(ctx, projectName); err != nil {
			r.logHookError("OnWorkflowInitialized", e.name, err)
		}
	}
}

// EmitWorkflowLoaded notifies all extensions that implement WorkflowLoaded.
func (r *Registry) EmitWorkflowLoaded(ctx context.Context, st *workflow.State) {
	for _, e := range r.workflowLoaded {
		if err := e.hook.OnWorkflowLoaded(ctx, st); err != nil {
			r.logHookError("OnWorkflowLoaded", e.name, err)
		}
	}
}

// logHookError logs a hook failure. Hook errors never interrupt the
// engine's control flow.
func (r *Registry) logHookError(hookName, extName string, err error) {
	r.logger.Error("extension hook error",
		slog.String("hook", hookName),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
