package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/step"
	"github.com/xraph/stepflow/workflow"
)

// InitializeWorkflow writes a fresh state for the project, discarding any
// previous state and recorded results in this namespace.
func (s *Store) InitializeWorkflow(ctx context.Context, projectName string) error {
	if err := s.clearSteps(ctx); err != nil {
		return err
	}

	m, err := stateToMap(workflow.NewState(projectName))
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.stateKey())
	pipe.HSet(ctx, s.stateKey(), m)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stepflow/redis: initialize workflow: %w", err)
	}
	return nil
}

// SaveProgress records a step outcome and derives the durable state from
// it: a completed status marks the step complete, promotes well-known
// result keys, and advances the current step to the successor.
func (s *Store) SaveProgress(ctx context.Context, stepID int, status step.Status, data map[string]any, errorMessage string) error {
	st, err := s.LoadState(ctx)
	if err != nil {
		if !errors.Is(err, stepflow.ErrStateNotFound) {
			return err
		}
		name, _ := data["project_name"].(string)
		st = workflow.NewState(name)
	}

	pipe := s.client.TxPipeline()

	if stepID > 0 {
		res := &step.Result{
			StepID:       stepID,
			Status:       status,
			Data:         data,
			ErrorMessage: errorMessage,
			Timestamp:    time.Now().UTC(),
		}
		m, err := resultToMap(res)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, s.stepKey(stepID), m)
		pipe.SAdd(ctx, s.stepIDsKey(), strconv.Itoa(stepID))
	}

	switch status {
	case step.StatusCompleted:
		if stepID > 0 {
			st.MarkStepCompleted(stepID)
			st.PromoteResultData(data)
			st.CurrentStep = stepID + 1
		}
	default:
		st.Touch()
	}

	m, err := stateToMap(st)
	if err != nil {
		return err
	}
	pipe.HSet(ctx, s.stateKey(), m)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stepflow/redis: save progress: %w", err)
	}
	return nil
}

// LoadState returns the persisted workflow state, or
// stepflow.ErrStateNotFound when no workflow was initialized in this
// namespace.
func (s *Store) LoadState(ctx context.Context) (*workflow.State, error) {
	vals, err := s.client.HGetAll(ctx, s.stateKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: load state: %w", err)
	}
	if len(vals) == 0 {
		return nil, stepflow.ErrStateNotFound
	}
	return mapToState(vals)
}

// MarkComplete records stepID as completed with no result data.
func (s *Store) MarkComplete(ctx context.Context, stepID int) error {
	return s.SaveProgress(ctx, stepID, step.StatusCompleted, nil, "")
}

// RollbackStep clears this namespace's record for stepID: the result hash
// is dropped, the step leaves the completed set, and the current step
// rewinds to stepID when it was ahead.
func (s *Store) RollbackStep(ctx context.Context, stepID int) error {
	st, err := s.LoadState(ctx)
	if err != nil && !errors.Is(err, stepflow.ErrStateNotFound) {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.stepKey(stepID))
	pipe.SRem(ctx, s.stepIDsKey(), strconv.Itoa(stepID))

	if st != nil {
		st.UnmarkStepCompleted(stepID)
		if st.CurrentStep > stepID {
			st.CurrentStep = stepID
		}
		m, err := stateToMap(st)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, s.stateKey(), m)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stepflow/redis: rollback step %d: %w", stepID, err)
	}
	return nil
}

// StepResult returns the last recorded result for stepID, or (nil, nil)
// when none exists.
func (s *Store) StepResult(ctx context.Context, stepID int) (*step.Result, error) {
	vals, err := s.client.HGetAll(ctx, s.stepKey(stepID)).Result()
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: get step result: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return mapToResult(vals)
}

// CompletionSummary projects the persisted progress. TotalSteps counts the
// distinct step ids this namespace has records for.
func (s *Store) CompletionSummary(ctx context.Context) (*workflow.CompletionSummary, error) {
	st, err := s.LoadState(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := s.client.SMembers(ctx, s.stepIDsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: list step ids: %w", err)
	}
	seen := make(map[int]struct{}, len(ids))
	for _, raw := range ids {
		if id, convErr := strconv.Atoi(raw); convErr == nil {
			seen[id] = struct{}{}
		}
	}
	for _, id := range st.CompletedSteps {
		seen[id] = struct{}{}
	}
	total := len(seen)

	return &workflow.CompletionSummary{
		ProjectName:        st.ProjectName,
		CurrentStep:        st.CurrentStep,
		TotalSteps:         total,
		CompletedSteps:     len(st.CompletedSteps),
		CompletedStepIDs:   append([]int(nil), st.CompletedSteps...),
		ProgressPercentage: st.Progress(total),
		LastUpdated:        st.UpdatedAt,
	}, nil
}

// clearSteps drops every recorded step result in this namespace.
func (s *Store) clearSteps(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, s.stepIDsKey()).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("stepflow/redis: list step ids: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, raw := range ids {
		if id, convErr := strconv.Atoi(raw); convErr == nil {
			pipe.Del(ctx, s.stepKey(id))
		}
	}
	pipe.Del(ctx, s.stepIDsKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stepflow/redis: clear steps: %w", err)
	}
	return nil
}
