package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/backoff"
	"github.com/xraph/stepflow/hook"
	"github.com/xraph/stepflow/step"
	"github.com/xraph/stepflow/workflow"
)

// Engine orchestrates one workflow run. Construct with New, register steps,
// then initialize or load a workflow before executing anything.
type Engine struct {
	store    workflow.Store
	registry *step.Registry
	state    *workflow.State

	// instances caches constructed steps for the engine's lifetime so
	// repeated executions reuse any state the step itself holds.
	instances map[int]step.Step

	// retryCounts tracks per-step retry bookkeeping across calls. Reset to
	// zero on success and by failure recovery.
	retryCounts map[int]int

	maxRetries int
	backoff    backoff.Strategy
	hooks      *hook.Registry
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxRetries sets the retry ceiling: the number of additional attempts
// after the first failure, so ExecuteStepWithRetry makes up to n+1 total
// attempts. Defaults to stepflow.DefaultConfig().MaxRetries.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithBackoff sets an inter-attempt delay strategy for the retry loop.
// Without it the engine retries immediately.
func WithBackoff(s backoff.Strategy) Option {
	return func(e *Engine) { e.backoff = s }
}

// WithHooks sets the lifecycle extension registry notified of step and
// workflow events.
func WithHooks(r *hook.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.hooks = r
		}
	}
}

// New creates an engine over the given progress store. The store may offer
// optional capabilities (workflow.Initializer, workflow.StepRollbacker,
// workflow.ResultReader); the engine discovers them by type assertion.
func New(store workflow.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		registry:    step.NewRegistry(),
		instances:   make(map[int]step.Step),
		retryCounts: make(map[int]int),
		maxRetries:  stepflow.DefaultConfig().MaxRetries,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.hooks == nil {
		e.hooks = hook.NewRegistry(e.logger)
	}
	return e
}

// ──────────────────────────────────────────────────
// Registration
// ──────────────────────────────────────────────────

// RegisterStep records how to build the step for id. Re-registration
// overwrites silently.
func (e *Engine) RegisterStep(id int, f step.Factory) {
	e.registry.Register(id, f)
}

// RegisterDependencies declares that id may run only once every listed
// prerequisite is complete.
func (e *Engine) RegisterDependencies(id int, prereqs ...int) {
	e.registry.RegisterDependencies(id, prereqs...)
}

// RegisterValidator installs an extra validation gate for id, evaluated in
// addition to dependency checks and the step's own Validate.
func (e *Engine) RegisterValidator(id int, v step.Validator) {
	e.registry.RegisterValidator(id, v)
}

// RegisterErrorHandler installs an error handler for id, invoked when an
// execution attempt fails.
func (e *Engine) RegisterErrorHandler(id int, h step.ErrorHandler) {
	e.registry.RegisterErrorHandler(id, h)
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// InitializeWorkflow creates a fresh workflow for the given project. When
// the store implements workflow.Initializer that path is used; otherwise a
// pending marker is persisted through SaveProgress.
func (e *Engine) InitializeWorkflow(ctx context.Context, projectName string) error {
	if e.store == nil {
		return stepflow.ErrNoStore
	}

	if init, ok := e.store.(workflow.Initializer); ok {
		if err := init.InitializeWorkflow(ctx, projectName); err != nil {
			return fmt.Errorf("initialize workflow %q: %w", projectName, err)
		}
	} else {
		data := map[string]any{"project_name": projectName, "initialized": true}
		if err := e.store.SaveProgress(ctx, 0, step.StatusPending, data, ""); err != nil {
			return fmt.Errorf("initialize workflow %q: %w", projectName, err)
		}
	}

	st, err := e.store.LoadState(ctx)
	if err != nil {
		// Stores without their own initialization path may have nothing to
		// load yet; the in-memory state is authoritative until the first
		// completed step is persisted.
		st = workflow.NewState(projectName)
	}
	e.state = st
	e.retryCounts = make(map[int]int)

	e.logger.Info("workflow initialized", slog.String("project", projectName))
	e.hooks.EmitWorkflowInitialized(ctx, projectName)
	return nil
}

// LoadExistingWorkflow rehydrates a previously persisted workflow so an
// interrupted run can resume. Returns stepflow.ErrStateNotFound (wrapped)
// when no workflow has been initialized in the store.
func (e *Engine) LoadExistingWorkflow(ctx context.Context) error {
	if e.store == nil {
		return stepflow.ErrNoStore
	}

	st, err := e.store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load workflow: %w", err)
	}
	e.state = st

	e.logger.Info("workflow loaded",
		slog.String("project", st.ProjectName),
		slog.Int("current_step", st.CurrentStep),
		slog.Int("completed", len(st.CompletedSteps)),
	)
	e.hooks.EmitWorkflowLoaded(ctx, st)
	return nil
}

// State returns the engine's live workflow state, or nil before
// initialization. Callers must treat it as read-only.
func (e *Engine) State() *workflow.State { return e.state }

// saveProgress persists a progress record best-effort: a failing save is
// logged and does not roll back the in-memory state mutation already
// applied. A crash between mutation and persistence can therefore diverge
// the two; resumption then reflects the last persisted record.
func (e *Engine) saveProgress(ctx context.Context, stepID int, status step.Status, data map[string]any, errorMessage string) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveProgress(ctx, stepID, status, data, errorMessage); err != nil {
		e.logger.Warn("failed to persist step progress",
			slog.Int("step_id", stepID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
}
