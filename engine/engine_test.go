package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/backoff"
	"github.com/xraph/stepflow/engine"
	"github.com/xraph/stepflow/step"
	"github.com/xraph/stepflow/store/memory"
)

// fakeStep is a configurable step double. Zero value validates true,
// executes successfully with no data, and rolls back cleanly.
type fakeStep struct {
	id         int
	executeFn  func(ctx context.Context) (*step.Result, error)
	validateFn func(ctx context.Context) (bool, error)
	rollbackFn func(ctx context.Context) error

	executions int
	rollbacks  int
}

func (f *fakeStep) Execute(ctx context.Context) (*step.Result, error) {
	f.executions++
	if f.executeFn != nil {
		return f.executeFn(ctx)
	}
	return step.Completed(f.id, nil), nil
}

func (f *fakeStep) Validate(ctx context.Context) (bool, error) {
	if f.validateFn != nil {
		return f.validateFn(ctx)
	}
	return true, nil
}

func (f *fakeStep) Rollback(ctx context.Context) error {
	f.rollbacks++
	if f.rollbackFn != nil {
		return f.rollbackFn(ctx)
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine builds an engine over a fresh memory store with an
// initialized workflow.
func newTestEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *memory.Store) {
	t.Helper()
	st := memory.New()
	opts = append([]engine.Option{engine.WithLogger(testLogger())}, opts...)
	e := engine.New(st, opts...)
	if err := e.InitializeWorkflow(context.Background(), "test-project"); err != nil {
		t.Fatalf("InitializeWorkflow: %v", err)
	}
	return e, st
}

func registerFake(e *engine.Engine, id int) *fakeStep {
	f := &fakeStep{id: id}
	e.RegisterStep(id, step.FactoryFunc(func() step.Step { return f }))
	return f
}

// ──────────────────────────────────────────────────
// Preconditions
// ──────────────────────────────────────────────────

func TestExecuteStep_WorkflowNotInitialized(t *testing.T) {
	e := engine.New(memory.New(), engine.WithLogger(testLogger()))
	f := registerFake(e, 1)

	res := e.ExecuteStep(context.Background(), 1)
	if res.Status != step.StatusFailed {
		t.Fatalf("Status = %v, want failed", res.Status)
	}
	if !strings.Contains(res.ErrorMessage, "not initialized") {
		t.Errorf("ErrorMessage = %q, want mention of initialization", res.ErrorMessage)
	}
	if f.executions != 0 {
		t.Error("step must not execute before initialization")
	}
	if e.State() != nil {
		t.Error("state must remain absent")
	}
}

func TestExecuteStep_NotRegistered(t *testing.T) {
	e, _ := newTestEngine(t)

	res := e.ExecuteStep(context.Background(), 42)
	if res.Status != step.StatusFailed || !strings.Contains(res.ErrorMessage, "not registered") {
		t.Errorf("result = %+v, want failed/not registered", res)
	}
}

func TestExecuteStepWithRetry_SamePreconditions(t *testing.T) {
	e := engine.New(memory.New(), engine.WithLogger(testLogger()))
	if res := e.ExecuteStepWithRetry(context.Background(), 1); !strings.Contains(res.ErrorMessage, "not initialized") {
		t.Errorf("ErrorMessage = %q", res.ErrorMessage)
	}

	e2, _ := newTestEngine(t)
	if res := e2.ExecuteStepWithRetry(context.Background(), 7); !strings.Contains(res.ErrorMessage, "not registered") {
		t.Errorf("ErrorMessage = %q", res.ErrorMessage)
	}
}

// ──────────────────────────────────────────────────
// Single-attempt execution
// ──────────────────────────────────────────────────

func TestExecuteStep_Success(t *testing.T) {
	e, _ := newTestEngine(t)
	f := registerFake(e, 1)
	f.executeFn = func(context.Context) (*step.Result, error) {
		return step.Completed(1, map[string]any{"github_repo": "org/demo"}), nil
	}

	res := e.ExecuteStep(context.Background(), 1)
	if !res.Successful() {
		t.Fatalf("result = %+v", res)
	}
	if !e.IsStepCompleted(1) {
		t.Error("step 1 should be completed")
	}
	if cur, _ := e.CurrentStep(); cur != 2 {
		t.Errorf("CurrentStep = %d, want 2", cur)
	}
	if e.State().Repository != "org/demo" {
		t.Errorf("Repository = %q, want org/demo", e.State().Repository)
	}
}

func TestExecuteStep_ValidateFalse(t *testing.T) {
	e, _ := newTestEngine(t)
	f := registerFake(e, 1)
	f.validateFn = func(context.Context) (bool, error) { return false, nil }

	res := e.ExecuteStep(context.Background(), 1)
	if res.Status != step.StatusFailed || !strings.Contains(res.ErrorMessage, "validation failed") {
		t.Errorf("result = %+v", res)
	}
	if f.executions != 0 {
		t.Error("Execute must not run when Validate is false")
	}
	if e.IsStepCompleted(1) {
		t.Error("step must not be completed")
	}
}

func TestExecuteStep_PanicNormalized(t *testing.T) {
	e, _ := newTestEngine(t)
	f := registerFake(e, 1)
	f.executeFn = func(context.Context) (*step.Result, error) { panic("kaboom") }

	res := e.ExecuteStep(context.Background(), 1)
	if res.Status != step.StatusFailed || !strings.Contains(res.ErrorMessage, "kaboom") {
		t.Errorf("result = %+v", res)
	}
}

func TestExecuteStep_FailureNotPersisted(t *testing.T) {
	e, st := newTestEngine(t)
	f := registerFake(e, 1)
	f.executeFn = func(context.Context) (*step.Result, error) {
		return step.Failed(1, "transient"), nil
	}

	res := e.ExecuteStep(context.Background(), 1)
	if res.ErrorMessage != "transient" {
		t.Errorf("result must be returned unchanged, got %+v", res)
	}
	if rec, _ := st.StepResult(context.Background(), 1); rec != nil {
		t.Errorf("single-attempt execution must not record failures, got %+v", rec)
	}
}

func TestExecuteStep_InstanceCached(t *testing.T) {
	e, _ := newTestEngine(t)
	built := 0
	e.RegisterStep(1, step.FactoryFunc(func() step.Step {
		built++
		return &fakeStep{id: 1, executeFn: func(context.Context) (*step.Result, error) {
			return step.Failed(1, "nope"), nil
		}}
	}))

	e.ExecuteStep(context.Background(), 1)
	e.ExecuteStep(context.Background(), 1)
	if built != 1 {
		t.Errorf("factory invoked %d times, want 1", built)
	}
}

// ──────────────────────────────────────────────────
// Resolution
// ──────────────────────────────────────────────────

func TestValidateStepDependencies(t *testing.T) {
	e := engine.New(memory.New(), engine.WithLogger(testLogger()))
	registerFake(e, 1)
	registerFake(e, 2)
	e.RegisterDependencies(2, 1)

	// No declared list passes even before initialization; a declared list
	// fails closed without state.
	if !e.ValidateStepDependencies(1) {
		t.Error("undeclared dependencies should pass vacuously")
	}
	if e.ValidateStepDependencies(2) {
		t.Error("declared dependencies must fail closed without a workflow")
	}

	if err := e.InitializeWorkflow(context.Background(), "p"); err != nil {
		t.Fatal(err)
	}
	if e.ValidateStepDependencies(2) {
		t.Error("step 2 should be blocked until 1 completes")
	}
	e.ExecuteStep(context.Background(), 1)
	if !e.ValidateStepDependencies(2) {
		t.Error("step 2 should unblock after 1 completes")
	}
}

func TestCanExecuteStep_DependencyGating(t *testing.T) {
	e, _ := newTestEngine(t)
	registerFake(e, 1)
	registerFake(e, 2)
	e.RegisterDependencies(2, 1)

	if e.CanExecuteStep(2) {
		t.Error("B must be blocked until A completes")
	}
	if !e.CanExecuteStep(1) {
		t.Error("A should be runnable")
	}

	e.ExecuteStep(context.Background(), 1)
	if !e.CanExecuteStep(2) {
		t.Error("B should be runnable after A")
	}
	if e.CanExecuteStep(1) {
		t.Error("a completed step is not runnable")
	}
}

func TestNextAvailableStep_LowestIDFirst(t *testing.T) {
	e, _ := newTestEngine(t)
	registerFake(e, 3)
	registerFake(e, 1)
	registerFake(e, 2)
	e.RegisterDependencies(2, 1)
	e.RegisterDependencies(3, 2)

	if id, ok := e.NextAvailableStep(); !ok || id != 1 {
		t.Errorf("next = %d/%v, want 1", id, ok)
	}
	e.ExecuteStep(context.Background(), 1)
	if id, ok := e.NextAvailableStep(); !ok || id != 2 {
		t.Errorf("next = %d/%v, want 2", id, ok)
	}
	e.ExecuteStep(context.Background(), 2)
	e.ExecuteStep(context.Background(), 3)
	if _, ok := e.NextAvailableStep(); ok {
		t.Error("nothing should be runnable when all steps completed")
	}
}

func TestValidateStepPrerequisites_CustomValidatorAuthoritative(t *testing.T) {
	e, _ := newTestEngine(t)
	f := registerFake(e, 1)
	f.validateFn = func(context.Context) (bool, error) { return false, nil }
	// Instantiate so the step's own Validate would apply absent a custom one.
	e.ExecuteStep(context.Background(), 1)

	if e.ValidateStepPrerequisites(context.Background(), 1) {
		t.Error("step's own Validate should gate when no custom validator")
	}

	e.RegisterValidator(1, func(context.Context) (bool, error) { return true, nil })
	if !e.ValidateStepPrerequisites(context.Background(), 1) {
		t.Error("custom validator verdict is authoritative")
	}

	e.RegisterValidator(1, func(context.Context) (bool, error) { return false, errors.New("probe failed") })
	if e.ValidateStepPrerequisites(context.Background(), 1) {
		t.Error("validator errors count as validation failure")
	}
}

// ──────────────────────────────────────────────────
// Retry
// ──────────────────────────────────────────────────

func TestExecuteStepWithRetry_SucceedsOnLastAttempt(t *testing.T) {
	const maxRetries = 3
	e, _ := newTestEngine(t, engine.WithMaxRetries(maxRetries))
	f := registerFake(e, 1)
	f.executeFn = func(context.Context) (*step.Result, error) {
		if f.executions <= maxRetries {
			return step.Failed(1, "flaky"), nil
		}
		return step.Completed(1, nil), nil
	}

	res := e.ExecuteStepWithRetry(context.Background(), 1)
	if !res.Successful() {
		t.Fatalf("result = %+v", res)
	}
	if f.executions != maxRetries+1 {
		t.Errorf("executions = %d, want %d", f.executions, maxRetries+1)
	}
	if !e.IsStepCompleted(1) {
		t.Error("step should be completed")
	}
}

func TestExecuteStepWithRetry_Exhausts(t *testing.T) {
	e, st := newTestEngine(t, engine.WithMaxRetries(3))
	f := registerFake(e, 1)
	f.executeFn = func(context.Context) (*step.Result, error) {
		return nil, errors.New("hard failure")
	}

	res := e.ExecuteStepWithRetry(context.Background(), 1)
	if res.Status != step.StatusFailed {
		t.Fatalf("result = %+v", res)
	}
	if f.executions != 4 {
		t.Errorf("executions = %d, want exactly 4", f.executions)
	}
	if !strings.Contains(res.ErrorMessage, "after 4 attempts") {
		t.Errorf("ErrorMessage = %q, want attempt count", res.ErrorMessage)
	}

	rec, err := st.StepResult(context.Background(), 1)
	if err != nil || rec == nil {
		t.Fatalf("exhaustion must persist the failure, got %v, %v", rec, err)
	}
	if rec.Status != step.StatusFailed {
		t.Errorf("persisted status = %v", rec.Status)
	}
	if rc, ok := rec.Data["retry_count"].(int); !ok || rc != 3 {
		t.Errorf("retry_count = %v, want 3", rec.Data["retry_count"])
	}
}

func TestExecuteStepWithRetry_PrerequisiteFailureAborts(t *testing.T) {
	e, _ := newTestEngine(t, engine.WithMaxRetries(3))
	registerFake(e, 1)
	f2 := registerFake(e, 2)
	e.RegisterDependencies(2, 1)

	res := e.ExecuteStepWithRetry(context.Background(), 2)
	if res.Status != step.StatusFailed || !strings.Contains(res.ErrorMessage, "prerequisites not met") {
		t.Errorf("result = %+v", res)
	}
	if f2.executions != 0 {
		t.Errorf("executions = %d, want 0: prerequisite failure must abort the loop", f2.executions)
	}
}

func TestExecuteStepWithRetry_HandlerConsumesAttempts(t *testing.T) {
	e, _ := newTestEngine(t, engine.WithMaxRetries(2))
	f := registerFake(e, 1)
	f.executeFn = func(context.Context) (*step.Result, error) {
		return step.Failed(1, "locked"), nil
	}

	handled := 0
	e.RegisterErrorHandler(1, func(_ context.Context, cause error) bool {
		handled++
		return true
	})

	res := e.ExecuteStepWithRetry(context.Background(), 1)
	if res.Status != step.StatusFailed {
		t.Fatalf("result = %+v", res)
	}
	// A handler that always reports resolution cannot extend the ceiling:
	// each loop iteration is one attempt.
	if f.executions != 3 {
		t.Errorf("executions = %d, want 3", f.executions)
	}
	if handled != 3 {
		t.Errorf("handler invoked %d times, want 3", handled)
	}
}

func TestExecuteStepWithRetry_HandlerReceivesCause(t *testing.T) {
	e, _ := newTestEngine(t, engine.WithMaxRetries(0))
	f := registerFake(e, 1)
	f.executeFn = func(context.Context) (*step.Result, error) {
		return nil, errors.New("disk full")
	}

	var got error
	e.RegisterErrorHandler(1, func(_ context.Context, cause error) bool {
		got = cause
		return false
	})

	e.ExecuteStepWithRetry(context.Background(), 1)
	if got == nil || got.Error() != "disk full" {
		t.Errorf("handler cause = %v, want disk full", got)
	}
}

func TestExecuteStepWithRetry_WithBackoff(t *testing.T) {
	e, _ := newTestEngine(t,
		engine.WithMaxRetries(2),
		engine.WithBackoff(backoff.NewConstant(time.Millisecond)),
	)
	f := registerFake(e, 1)
	f.executeFn = func(context.Context) (*step.Result, error) {
		if f.executions < 2 {
			return step.Failed(1, "flaky"), nil
		}
		return step.Completed(1, nil), nil
	}

	res := e.ExecuteStepWithRetry(context.Background(), 1)
	if !res.Successful() {
		t.Fatalf("result = %+v", res)
	}
}

func TestExecuteStepWithRetry_PersistsInProgressMarker(t *testing.T) {
	e, st := newTestEngine(t, engine.WithMaxRetries(0))
	f := registerFake(e, 1)
	marker := make(chan *step.Result, 1)
	f.executeFn = func(ctx context.Context) (*step.Result, error) {
		// Observe the in-flight marker during the attempt.
		rec, _ := st.StepResult(ctx, 1)
		marker <- rec
		return step.Completed(1, nil), nil
	}

	e.ExecuteStepWithRetry(context.Background(), 1)
	rec := <-marker
	if rec == nil || rec.Status != step.StatusInProgress {
		t.Fatalf("in-flight record = %+v, want in_progress", rec)
	}
	if rec.Data["attempt"] != 1 || rec.Data["max_attempts"] != 1 {
		t.Errorf("marker data = %v", rec.Data)
	}
}

// ──────────────────────────────────────────────────
// Rollback and recovery
// ──────────────────────────────────────────────────

func TestRollbackStep_ReversesCompletion(t *testing.T) {
	e, _ := newTestEngine(t)
	f := registerFake(e, 1)

	e.ExecuteStep(context.Background(), 1)
	if !e.IsStepCompleted(1) {
		t.Fatal("setup: step should be completed")
	}

	if err := e.RollbackStep(context.Background(), 1); err != nil {
		t.Fatalf("RollbackStep: %v", err)
	}
	if e.IsStepCompleted(1) {
		t.Error("step should no longer be completed")
	}
	if cur, _ := e.CurrentStep(); cur != 1 {
		t.Errorf("CurrentStep = %d, want 1", cur)
	}
	if f.rollbacks != 1 {
		t.Errorf("rollbacks = %d, want 1", f.rollbacks)
	}
}

func TestRollbackStep_NotInstantiated(t *testing.T) {
	e, _ := newTestEngine(t)
	registerFake(e, 1)

	err := e.RollbackStep(context.Background(), 1)
	if !errors.Is(err, stepflow.ErrStepNotInstantiated) {
		t.Errorf("err = %v, want ErrStepNotInstantiated", err)
	}
}

func TestRollbackStep_FaultLeavesStateIntact(t *testing.T) {
	e, _ := newTestEngine(t)
	f := registerFake(e, 1)
	e.ExecuteStep(context.Background(), 1)

	f.rollbackFn = func(context.Context) error { return errors.New("undo failed") }
	err := e.RollbackStep(context.Background(), 1)
	if err == nil || !strings.Contains(err.Error(), "undo failed") {
		t.Errorf("err = %v, want the rollback cause", err)
	}
	if !e.IsStepCompleted(1) {
		t.Error("a faulting rollback must not mutate the workflow state")
	}
	if cur, _ := e.CurrentStep(); cur != 2 {
		t.Errorf("CurrentStep = %d, want unchanged 2", cur)
	}
}

func TestRecoverFromFailure(t *testing.T) {
	e, st := newTestEngine(t, engine.WithMaxRetries(0))
	built := 0
	var current *fakeStep
	e.RegisterStep(2, step.FactoryFunc(func() step.Step {
		built++
		current = &fakeStep{id: 2, executeFn: func(context.Context) (*step.Result, error) {
			return step.Failed(2, "broken"), nil
		}}
		return current
	}))
	registerFake(e, 1)
	e.ExecuteStep(context.Background(), 1)
	e.ExecuteStepWithRetry(context.Background(), 2)

	first := current
	if err := e.RecoverFromFailure(context.Background(), 2); err != nil {
		t.Fatalf("RecoverFromFailure: %v", err)
	}
	if first.rollbacks != 1 {
		t.Errorf("best-effort rollback invocations = %d, want 1", first.rollbacks)
	}
	if rec, _ := st.StepResult(context.Background(), 2); rec != nil {
		t.Errorf("store record should be cleared, got %+v", rec)
	}
	if cur, _ := e.CurrentStep(); cur != 2 {
		t.Errorf("CurrentStep = %d, want rewind to 2", cur)
	}

	// The cached instance is discarded; the next execution builds afresh.
	e.ExecuteStepWithRetry(context.Background(), 2)
	if built != 2 {
		t.Errorf("factory invocations = %d, want 2", built)
	}
}

func TestRecoverFromFailure_RollbackFaultSwallowed(t *testing.T) {
	e, _ := newTestEngine(t, engine.WithMaxRetries(0))
	f := registerFake(e, 1)
	f.executeFn = func(context.Context) (*step.Result, error) { return step.Failed(1, "x"), nil }
	f.rollbackFn = func(context.Context) error { return errors.New("undo failed") }
	e.ExecuteStepWithRetry(context.Background(), 1)

	if err := e.RecoverFromFailure(context.Background(), 1); err != nil {
		t.Errorf("recovery must proceed past a best-effort rollback fault, got %v", err)
	}
}

func TestRecoverFromFailure_NeverMovesCurrentStepForward(t *testing.T) {
	e, _ := newTestEngine(t)
	registerFake(e, 5)

	// CurrentStep is 1; recovering step 5 must not advance it.
	if err := e.RecoverFromFailure(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	if cur, _ := e.CurrentStep(); cur != 1 {
		t.Errorf("CurrentStep = %d, want 1", cur)
	}
}

// ──────────────────────────────────────────────────
// Resumption
// ──────────────────────────────────────────────────

func TestResumption(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	e1 := engine.New(st, engine.WithLogger(testLogger()))
	for id := 1; id <= 4; id++ {
		registerFake(e1, id)
	}
	if err := e1.InitializeWorkflow(ctx, "resume-me"); err != nil {
		t.Fatal(err)
	}
	for id := 1; id <= 3; id++ {
		if res := e1.ExecuteStep(ctx, id); !res.Successful() {
			t.Fatalf("step %d: %+v", id, res)
		}
	}

	e2 := engine.New(st, engine.WithLogger(testLogger()))
	if err := e2.LoadExistingWorkflow(ctx); err != nil {
		t.Fatalf("LoadExistingWorkflow: %v", err)
	}
	got := e2.State()
	if got.ProjectName != "resume-me" {
		t.Errorf("ProjectName = %q", got.ProjectName)
	}
	want := []int{1, 2, 3}
	if len(got.CompletedSteps) != len(want) {
		t.Fatalf("CompletedSteps = %v, want %v", got.CompletedSteps, want)
	}
	for i, id := range want {
		if got.CompletedSteps[i] != id {
			t.Errorf("CompletedSteps = %v, want %v", got.CompletedSteps, want)
			break
		}
	}
	if got.CurrentStep != 4 {
		t.Errorf("CurrentStep = %d, want 4", got.CurrentStep)
	}
}

func TestLoadExistingWorkflow_NotFound(t *testing.T) {
	e := engine.New(memory.New(), engine.WithLogger(testLogger()))
	err := e.LoadExistingWorkflow(context.Background())
	if !errors.Is(err, stepflow.ErrStateNotFound) {
		t.Errorf("err = %v, want ErrStateNotFound", err)
	}
}

// ──────────────────────────────────────────────────
// Summary and health
// ──────────────────────────────────────────────────

func TestSummary_Arithmetic(t *testing.T) {
	e, _ := newTestEngine(t)
	for id := 1; id <= 3; id++ {
		registerFake(e, id)
	}
	e.ExecuteStep(context.Background(), 1)
	e.ExecuteStep(context.Background(), 2)

	sum, err := e.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.CompletedSteps != 2 || sum.TotalSteps != 3 {
		t.Errorf("completed/total = %d/%d", sum.CompletedSteps, sum.TotalSteps)
	}
	if math.Abs(sum.ProgressPercentage-66.67) > 0.01 {
		t.Errorf("ProgressPercentage = %v, want ~66.67", sum.ProgressPercentage)
	}
}

func TestSummary_NotInitialized(t *testing.T) {
	e := engine.New(memory.New(), engine.WithLogger(testLogger()))
	if _, err := e.Summary(); !errors.Is(err, stepflow.ErrWorkflowNotInitialized) {
		t.Errorf("err = %v, want ErrWorkflowNotInitialized", err)
	}
}

func TestSummary_ZeroRegisteredSteps(t *testing.T) {
	e, _ := newTestEngine(t)
	sum, err := e.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if sum.ProgressPercentage != 0 {
		t.Errorf("ProgressPercentage = %v, want 0 with empty registry", sum.ProgressPercentage)
	}
}

func failStep(t *testing.T, e *engine.Engine, id int) {
	t.Helper()
	f := registerFake(e, id)
	f.executeFn = func(context.Context) (*step.Result, error) {
		return step.Failed(id, "broken"), nil
	}
	if res := e.ExecuteStepWithRetry(context.Background(), id); res.Successful() {
		t.Fatalf("setup: step %d should fail", id)
	}
}

func TestHealth_Grades(t *testing.T) {
	ctx := context.Background()

	t.Run("excellent", func(t *testing.T) {
		e, _ := newTestEngine(t)
		registerFake(e, 1)
		registerFake(e, 2)
		e.ExecuteStep(ctx, 1)
		e.ExecuteStep(ctx, 2)
		h, err := e.Health(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if h.Status != engine.HealthExcellent {
			t.Errorf("Status = %q, want excellent", h.Status)
		}
	})

	t.Run("warning", func(t *testing.T) {
		e, _ := newTestEngine(t, engine.WithMaxRetries(0))
		registerFake(e, 1)
		e.ExecuteStep(ctx, 1)
		failStep(t, e, 2)
		h, err := e.Health(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if h.Status != engine.HealthWarning {
			t.Errorf("Status = %q, want warning", h.Status)
		}
		if len(h.FailedSteps) != 1 || h.FailedSteps[0] != 2 {
			t.Errorf("FailedSteps = %v, want [2]", h.FailedSteps)
		}
	})

	t.Run("critical", func(t *testing.T) {
		e, _ := newTestEngine(t, engine.WithMaxRetries(0))
		failStep(t, e, 1)
		failStep(t, e, 2)
		h, err := e.Health(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if h.Status != engine.HealthCritical {
			t.Errorf("Status = %q, want critical", h.Status)
		}
	})

	t.Run("good", func(t *testing.T) {
		e, _ := newTestEngine(t)
		for id := 1; id <= 6; id++ {
			registerFake(e, id)
		}
		for id := 1; id <= 5; id++ {
			e.ExecuteStep(ctx, id)
		}
		h, err := e.Health(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if h.Status != engine.HealthGood {
			t.Errorf("Status = %q, want good above 80%%", h.Status)
		}
		if !h.HasNextStep || h.NextStep != 6 {
			t.Errorf("NextStep = %d/%v, want 6", h.NextStep, h.HasNextStep)
		}
	})

	t.Run("fair", func(t *testing.T) {
		e, _ := newTestEngine(t)
		for id := 1; id <= 5; id++ {
			registerFake(e, id)
		}
		e.ExecuteStep(ctx, 1)
		h, err := e.Health(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if h.Status != engine.HealthFair {
			t.Errorf("Status = %q, want fair", h.Status)
		}
		if len(h.PendingSteps) != 4 {
			t.Errorf("PendingSteps = %v, want four entries", h.PendingSteps)
		}
	})
}

func TestStepStatus(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, engine.WithMaxRetries(0))
	registerFake(e, 1)
	failStep(t, e, 2)
	e.ExecuteStep(ctx, 1)

	if got := e.StepStatus(ctx, 1); got != step.StatusCompleted {
		t.Errorf("status(1) = %v, want completed", got)
	}
	if got := e.StepStatus(ctx, 2); got != step.StatusFailed {
		t.Errorf("status(2) = %v, want failed from store record", got)
	}
	if got := e.StepStatus(ctx, 3); got != step.StatusPending {
		t.Errorf("status(3) = %v, want pending", got)
	}

	// Idempotent: repeated probes report the same status.
	for i := 0; i < 3; i++ {
		if got := e.StepStatus(ctx, 1); got != step.StatusCompleted {
			t.Fatalf("status(1) probe %d = %v", i, got)
		}
	}
}
