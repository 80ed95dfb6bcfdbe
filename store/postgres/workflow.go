package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/step"
	"github.com/xraph/stepflow/workflow"
)

// InitializeWorkflow writes a fresh state for the project, replacing any
// previous state and recorded results in this namespace.
func (s *Store) InitializeWorkflow(ctx context.Context, projectName string) error {
	st := workflow.NewState(projectName)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stepflow_workflow_states
			(namespace, project_name, current_step, completed_steps, repository, submission_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (namespace) DO UPDATE SET
			project_name = EXCLUDED.project_name,
			current_step = EXCLUDED.current_step,
			completed_steps = EXCLUDED.completed_steps,
			repository = EXCLUDED.repository,
			submission_ref = EXCLUDED.submission_ref,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`,
		s.namespace, st.ProjectName, st.CurrentStep, st.CompletedSteps,
		st.Repository, st.SubmissionRef, st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("stepflow/postgres: initialize workflow: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM stepflow_step_results WHERE namespace = $1`, s.namespace,
	); err != nil {
		return fmt.Errorf("stepflow/postgres: clear step results: %w", err)
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
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO stepflow_step_results
				(namespace, step_id, status, data, error_message, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (namespace, step_id) DO UPDATE SET
				status = EXCLUDED.status,
				data = EXCLUDED.data,
				error_message = EXCLUDED.error_message,
				recorded_at = EXCLUDED.recorded_at`,
			s.namespace, stepID, string(status), data, errorMessage, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("stepflow/postgres: save step result: %w", err)
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
	st := &workflow.State{}
	err := s.pool.QueryRow(ctx, `
		SELECT project_name, current_step, completed_steps, repository, submission_ref, created_at, updated_at
		FROM stepflow_workflow_states WHERE namespace = $1`,
		s.namespace,
	).Scan(
		&st.ProjectName, &st.CurrentStep, &st.CompletedSteps,
		&st.Repository, &st.SubmissionRef, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stepflow.ErrStateNotFound
		}
		return nil, fmt.Errorf("stepflow/postgres: load state: %w", err)
	}
	return st, nil
}

// MarkComplete records stepID as completed with no result data.
func (s *Store) MarkComplete(ctx context.Context, stepID int) error {
	return s.SaveProgress(ctx, stepID, step.StatusCompleted, nil, "")
}

// RollbackStep clears this namespace's record for stepID: the result row
// is deleted, the step leaves the completed set, and the current step
// rewinds to stepID when it was ahead.
func (s *Store) RollbackStep(ctx context.Context, stepID int) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM stepflow_step_results WHERE namespace = $1 AND step_id = $2`,
		s.namespace, stepID,
	); err != nil {
		return fmt.Errorf("stepflow/postgres: delete step result: %w", err)
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
	res := &step.Result{StepID: stepID}
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT status, data, error_message, recorded_at
		FROM stepflow_step_results WHERE namespace = $1 AND step_id = $2`,
		s.namespace, stepID,
	).Scan(&status, &res.Data, &res.ErrorMessage, &res.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("stepflow/postgres: get step result: %w", err)
	}
	res.Status = step.Status(status)
	return res, nil
}

// CompletionSummary projects the persisted progress. TotalSteps counts the
// distinct step ids this namespace has records for.
func (s *Store) CompletionSummary(ctx context.Context) (*workflow.CompletionSummary, error) {
	st, err := s.LoadState(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT step_id FROM stepflow_step_results WHERE namespace = $1`, s.namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("stepflow/postgres: list step results: %w", err)
	}
	defer rows.Close()

	seen := make(map[int]struct{})
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("stepflow/postgres: scan step id: %w", err)
		}
		seen[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stepflow/postgres: list step results: %w", err)
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

// writeState upserts the namespace's state row.
func (s *Store) writeState(ctx context.Context, st *workflow.State) error {
	completed := st.CompletedSteps
	if completed == nil {
		completed = []int{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stepflow_workflow_states
			(namespace, project_name, current_step, completed_steps, repository, submission_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (namespace) DO UPDATE SET
			project_name = EXCLUDED.project_name,
			current_step = EXCLUDED.current_step,
			completed_steps = EXCLUDED.completed_steps,
			repository = EXCLUDED.repository,
			submission_ref = EXCLUDED.submission_ref,
			updated_at = EXCLUDED.updated_at`,
		s.namespace, st.ProjectName, st.CurrentStep, completed,
		st.Repository, st.SubmissionRef, st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("stepflow/postgres: write state: %w", err)
	}
	return nil
}
