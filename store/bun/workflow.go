package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/step"
	"github.com/xraph/stepflow/workflow"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// InitializeWorkflow writes a fresh state for the project, replacing any
// previous state and recorded results in this namespace.
func (s *Store) InitializeWorkflow(ctx context.Context, projectName string) error {
	m := toStateModel(s.namespace, workflow.NewState(projectName))
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (namespace) DO UPDATE").
		Set("project_name = EXCLUDED.project_name").
		Set("current_step = EXCLUDED.current_step").
		Set("completed_steps = EXCLUDED.completed_steps").
		Set("repository = EXCLUDED.repository").
		Set("submission_ref = EXCLUDED.submission_ref").
		Set("created_at = EXCLUDED.created_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("stepflow/bun: initialize workflow: %w", err)
	}

	if _, err := s.db.NewDelete().Model((*resultModel)(nil)).
		Where("namespace = ?", s.namespace).
		Exec(ctx); err != nil {
		return fmt.Errorf("stepflow/bun: clear step results: %w", err)
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

	if stepID > 0 {
		m := &resultModel{
			Namespace:    s.namespace,
			StepID:       stepID,
			Status:       string(status),
			Data:         data,
			ErrorMessage: errorMessage,
			RecordedAt:   time.Now().UTC(),
		}
		if _, err := s.db.NewInsert().Model(m).
			On("CONFLICT (namespace, step_id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("data = EXCLUDED.data").
			Set("error_message = EXCLUDED.error_message").
			Set("recorded_at = EXCLUDED.recorded_at").
			Exec(ctx); err != nil {
			return fmt.Errorf("stepflow/bun: save step result: %w", err)
		}
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
	return s.writeState(ctx, st)
}

// LoadState returns the persisted workflow state, or
// stepflow.ErrStateNotFound when no workflow was initialized in this
// namespace.
func (s *Store) LoadState(ctx context.Context) (*workflow.State, error) {
	m := new(stateModel)
	err := s.db.NewSelect().Model(m).
		Where("namespace = ?", s.namespace).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, stepflow.ErrStateNotFound
		}
		return nil, fmt.Errorf("stepflow/bun: load state: %w", err)
	}
	return fromStateModel(m), nil
}

// MarkComplete records stepID as completed with no result data.
func (s *Store) MarkComplete(ctx context.Context, stepID int) error {
	return s.SaveProgress(ctx, stepID, step.StatusCompleted, nil, "")
}

// RollbackStep clears this namespace's record for stepID: the result row
// is deleted, the step leaves the completed set, and the current step
// rewinds to stepID when it was ahead.
func (s *Store) RollbackStep(ctx context.Context, stepID int) error {
	if _, err := s.db.NewDelete().Model((*resultModel)(nil)).
		Where("namespace = ?", s.namespace).
		Where("step_id = ?", stepID).
		Exec(ctx); err != nil {
		return fmt.Errorf("stepflow/bun: delete step result: %w", err)
	}

	st, err := s.LoadState(ctx)
	if err != nil {
		if errors.Is(err, stepflow.ErrStateNotFound) {
			return nil
		}
		return err
	}
	st.UnmarkStepCompleted(stepID)
	if st.CurrentStep > stepID {
		st.CurrentStep = stepID
	}
	return s.writeState(ctx, st)
}

// StepResult returns the last recorded result for stepID, or (nil, nil)
// when none exists.
func (s *Store) StepResult(ctx context.Context, stepID int) (*step.Result, error) {
	m := new(resultModel)
	err := s.db.NewSelect().Model(m).
		Where("namespace = ?", s.namespace).
		Where("step_id = ?", stepID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stepflow/bun: get step result: %w", err)
	}
	return fromResultModel(m), nil
}

// CompletionSummary projects the persisted progress. TotalSteps counts the
// distinct step ids this namespace has records for.
func (s *Store) CompletionSummary(ctx context.Context) (*workflow.CompletionSummary, error) {
	st, err := s.LoadState(ctx)
	if err != nil {
		return nil, err
	}

	var ids []int
	if err := s.db.NewSelect().Model((*resultModel)(nil)).
		Column("step_id").
		Where("namespace = ?", s.namespace).
		Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("stepflow/bun: list step results: %w", err)
	}

	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
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

// writeState upserts the namespace's state row, preserving created_at.
func (s *Store) writeState(ctx context.Context, st *workflow.State) error {
	m := toStateModel(s.namespace, st)
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (namespace) DO UPDATE").
		Set("project_name = EXCLUDED.project_name").
		Set("current_step = EXCLUDED.current_step").
		Set("completed_steps = EXCLUDED.completed_steps").
		Set("repository = EXCLUDED.repository").
		Set("submission_ref = EXCLUDED.submission_ref").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("stepflow/bun: write state: %w", err)
	}
	return nil
}
