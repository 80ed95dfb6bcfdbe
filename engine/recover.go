package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/workflow"
)

// RollbackStep undoes a step's externally visible effects through its own
// Rollback capability. It is defined only for steps that were actually
// instantiated by this engine; otherwise stepflow.ErrStepNotInstantiated
// is returned.
//
// On success the step is removed from the completed set and the current
// step rewinds to this id, making it the frontier again. A faulting
// Rollback leaves the workflow state untouched and returns the cause.
func (e *Engine) RollbackStep(ctx context.Context, id int) error {
	s, ok := e.instances[id]
	if !ok {
		return fmt.Errorf("rollback step %d: %w", id, stepflow.ErrStepNotInstantiated)
	}

	if err := safeRollback(ctx, s); err != nil {
		return fmt.Errorf("rollback step %d: %w", id, err)
	}

	if e.state != nil {
		e.state.UnmarkStepCompleted(id)
		e.state.CurrentStep = id
	}

	e.logger.Info("step rolled back", slog.Int("step_id", id))
	e.hooks.EmitStepRolledBack(ctx, id)
	return nil
}

// RecoverFromFailure is a heavier reset than RollbackStep, intended after a
// step is judged unrecoverable by simple retry. It zeroes the retry
// counter, best-effort rolls back the cached instance (a rollback fault is
// logged and recovery proceeds), discards the cached instance so the next
// execution reconstructs it fresh, removes the step from the completed set,
// rewinds the current step to id when it is ahead (never forward), and asks
// the store to clear its own record when it supports that.
//
// Only a store-side clearing failure is returned; the best-effort rollback
// never fails recovery.
func (e *Engine) RecoverFromFailure(ctx context.Context, id int) error {
	e.retryCounts[id] = 0

	if s, ok := e.instances[id]; ok {
		if err := safeRollback(ctx, s); err != nil {
			e.logger.Warn("best-effort rollback failed during recovery",
				slog.Int("step_id", id),
				slog.String("error", err.Error()),
			)
		}
		delete(e.instances, id)
	}

	if e.state != nil {
		e.state.UnmarkStepCompleted(id)
		if e.state.CurrentStep > id {
			e.state.CurrentStep = id
		}
	}

	if rb, ok := e.store.(workflow.StepRollbacker); ok {
		if err := rb.RollbackStep(ctx, id); err != nil {
			return fmt.Errorf("recover step %d: %w", id, err)
		}
	}

	e.logger.Info("step recovered", slog.Int("step_id", id))
	e.hooks.EmitStepRecovered(ctx, id)
	return nil
}
