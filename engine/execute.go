package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/stepflow/step"
)

// instance returns the cached step for id, constructing it through the
// registered factory on first use.
func (e *Engine) instance(id int) (step.Step, bool) {
	if s, ok := e.instances[id]; ok {
		return s, true
	}
	f, ok := e.registry.Factory(id)
	if !ok {
		return nil, false
	}
	s := f.New()
	e.instances[id] = s
	return s, true
}

// ExecuteStep runs a single execution attempt for id. All faults, including
// panics from the step itself, are normalized into a failed Result; this
// method never returns nil.
//
// On success the step is marked completed, the current step advances to the
// strict successor id+1, and the outcome is persisted. A non-success result
// is returned unchanged with no state mutation and no persistence; only the
// retrying variant records failures.
func (e *Engine) ExecuteStep(ctx context.Context, id int) *step.Result {
	if e.state == nil {
		return step.Failed(id, "workflow not initialized")
	}
	s, ok := e.instance(id)
	if !ok {
		return step.Failed(id, fmt.Sprintf("step %d not registered", id))
	}

	valid, err := safeValidate(ctx, s)
	if err != nil {
		return step.Failed(id, fmt.Sprintf("step validation failed: %v", err))
	}
	if !valid {
		return step.Failed(id, "step validation failed")
	}

	e.hooks.EmitStepStarted(ctx, id, 1, 1)
	start := time.Now()
	res, err := safeExecute(ctx, s, id)
	if err != nil {
		return step.Failed(id, err.Error())
	}
	if res.Successful() {
		e.completeStep(ctx, id, res)
		e.hooks.EmitStepCompleted(ctx, res, time.Since(start))
	}
	return res
}

// ExecuteStepWithRetry runs id with bounded retry: up to maxRetries+1 total
// attempts. Before each attempt an in-progress marker carrying the attempt
// number and ceiling is persisted, so in-flight attempts remain observable
// after a crash. A prerequisite failure aborts the whole loop immediately
// regardless of remaining attempts.
//
// A registered error handler is consulted on each failed attempt; when it
// reports the error resolved the loop continues immediately without bumping
// the retry counter, but the attempt is still consumed. Exhaustion persists
// the final failure with the accumulated retry count.
func (e *Engine) ExecuteStepWithRetry(ctx context.Context, id int) *step.Result {
	if e.state == nil {
		return step.Failed(id, "workflow not initialized")
	}
	if !e.registry.Registered(id) {
		return step.Failed(id, fmt.Sprintf("step %d not registered", id))
	}

	maxAttempts := e.maxRetries + 1
	var lastCause error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		e.saveProgress(ctx, id, step.StatusInProgress, map[string]any{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
		}, "")
		e.hooks.EmitStepStarted(ctx, id, attempt, maxAttempts)

		if !e.ValidateStepPrerequisites(ctx, id) {
			cause := errors.New("step prerequisites not met")
			e.hooks.EmitStepFailed(ctx, id, cause)
			return step.Failed(id, cause.Error())
		}

		s, _ := e.instance(id)
		start := time.Now()
		res, err := safeExecute(ctx, s, id)
		if err == nil && res.Successful() {
			e.completeStep(ctx, id, res)
			e.hooks.EmitStepCompleted(ctx, res, time.Since(start))
			return res
		}

		cause := err
		if cause == nil {
			cause = errors.New(res.ErrorMessage)
		}
		lastCause = cause
		e.logger.Warn("step attempt failed",
			slog.Int("step_id", id),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.String("error", cause.Error()),
		)

		if h, ok := e.registry.ErrorHandler(id); ok && h(ctx, cause) {
			// Handler resolved the condition; retry immediately. The
			// attempt is consumed but the retry counter is untouched.
			e.hooks.EmitStepRetrying(ctx, id, attempt)
			continue
		}

		if attempt < maxAttempts {
			e.retryCounts[id]++
			e.hooks.EmitStepRetrying(ctx, id, attempt)
			if e.backoff != nil {
				if err := e.wait(ctx, e.backoff.Delay(attempt)); err != nil {
					lastCause = err
					break
				}
			}
		}
	}

	msg := fmt.Sprintf("step execution failed after %d attempts: %v", maxAttempts, lastCause)
	e.saveProgress(ctx, id, step.StatusFailed, map[string]any{
		"retry_count": e.retryCounts[id],
	}, msg)
	e.hooks.EmitStepFailed(ctx, id, lastCause)
	return step.Failed(id, msg)
}

// completeStep applies the success path: mark completed, promote well-known
// result keys, advance the current step to the strict successor, persist,
// and reset the retry counter.
func (e *Engine) completeStep(ctx context.Context, id int, res *step.Result) {
	e.state.MarkStepCompleted(id)
	e.state.PromoteResultData(res.Data)
	e.state.CurrentStep = id + 1
	e.saveProgress(ctx, id, step.StatusCompleted, res.Data, "")
	e.retryCounts[id] = 0

	e.logger.Info("step completed",
		slog.Int("step_id", id),
		slog.Int("current_step", e.state.CurrentStep),
	)
}

// wait sleeps for the given delay or until the context is cancelled.
func (e *Engine) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ──────────────────────────────────────────────────
// Fault containment
// ──────────────────────────────────────────────────

// safeExecute invokes the step's Execute, converting panics and nil results
// into errors.
func safeExecute(ctx context.Context, s step.Step, id int) (res *step.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("step %d panicked: %v", id, r)
		}
	}()
	res, err = s.Execute(ctx)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("step %d returned no result", id)
	}
	return res, nil
}

// safeValidate invokes the step's Validate, converting panics into errors.
func safeValidate(ctx context.Context, s step.Step) (valid bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			valid, err = false, fmt.Errorf("validate panicked: %v", r)
		}
	}()
	return s.Validate(ctx)
}

// safeValidatorCall invokes a registered custom validator, converting
// panics into errors.
func safeValidatorCall(ctx context.Context, v step.Validator) (valid bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			valid, err = false, fmt.Errorf("validator panicked: %v", r)
		}
	}()
	return v(ctx)
}

// safeRollback invokes the step's Rollback, converting panics into errors.
func safeRollback(ctx context.Context, s step.Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rollback panicked: %v", r)
		}
	}()
	return s.Rollback(ctx)
}
