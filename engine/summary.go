package engine

import (
	"context"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/step"
	"github.com/xraph/stepflow/workflow"
)

// Summary is a read-only projection of the workflow state plus the size of
// the step registry.
type Summary struct {
	ProjectName        string  `json:"project_name"`
	CurrentStep        int     `json:"current_step"`
	TotalSteps         int     `json:"total_steps"`
	CompletedSteps     int     `json:"completed_steps"`
	CompletedStepIDs   []int   `json:"completed_step_ids"`
	ProgressPercentage float64 `json:"progress_percentage"`
	Repository         string  `json:"repository,omitempty"`
	SubmissionRef      string  `json:"submission_ref,omitempty"`
}

// Health grades.
const (
	HealthCritical  = "critical"
	HealthWarning   = "warning"
	HealthExcellent = "excellent"
	HealthGood      = "good"
	HealthFair      = "fair"
)

// Health classifies the workflow's condition from per-step statuses,
// recomputed by probing StepStatus for every registered id.
type Health struct {
	Status             string  `json:"status"`
	ProgressPercentage float64 `json:"progress_percentage"`

	// NextStep is the next runnable step id; HasNextStep is false when
	// nothing is runnable.
	NextStep    int  `json:"next_step,omitempty"`
	HasNextStep bool `json:"has_next_step"`

	FailedSteps  []int `json:"failed_steps"`
	PendingSteps []int `json:"pending_steps"`

	CompletedSteps int `json:"completed_steps"`
	TotalSteps     int `json:"total_steps"`
}

// IsStepCompleted reports whether id is completed in the active workflow.
// False before initialization.
func (e *Engine) IsStepCompleted(id int) bool {
	return e.state != nil && e.state.IsStepCompleted(id)
}

// CurrentStep returns the active workflow's current step. The second
// return is false before initialization.
func (e *Engine) CurrentStep() (int, bool) {
	if e.state == nil {
		return 0, false
	}
	return e.state.CurrentStep, true
}

// StepStatus returns the observed status of id: Completed when it is in
// the completed set, else the last result status the store recorded for it
// when the store exposes results, else Pending.
func (e *Engine) StepStatus(ctx context.Context, id int) step.Status {
	if e.state == nil {
		return step.StatusPending
	}
	if e.state.IsStepCompleted(id) {
		return step.StatusCompleted
	}
	if rr, ok := e.store.(workflow.ResultReader); ok {
		if res, err := rr.StepResult(ctx, id); err == nil && res != nil {
			return res.Status
		}
	}
	return step.StatusPending
}

// Summary projects the workflow state for reporting. Returns
// stepflow.ErrWorkflowNotInitialized before initialization.
func (e *Engine) Summary() (*Summary, error) {
	if e.state == nil {
		return nil, stepflow.ErrWorkflowNotInitialized
	}
	total := e.registry.Len()
	return &Summary{
		ProjectName:        e.state.ProjectName,
		CurrentStep:        e.state.CurrentStep,
		TotalSteps:         total,
		CompletedSteps:     len(e.state.CompletedSteps),
		CompletedStepIDs:   append([]int(nil), e.state.CompletedSteps...),
		ProgressPercentage: e.state.Progress(total),
		Repository:         e.state.Repository,
		SubmissionRef:      e.state.SubmissionRef,
	}, nil
}

// Health classifies the workflow: critical with more than one failed step,
// warning with exactly one, excellent when every registered step is
// completed, good above 80 percent progress, fair otherwise.
func (e *Engine) Health(ctx context.Context) (*Health, error) {
	if e.state == nil {
		return nil, stepflow.ErrWorkflowNotInitialized
	}

	ids := e.registry.IDs()
	var completed int
	failed := make([]int, 0)
	pending := make([]int, 0)
	for _, id := range ids {
		switch e.StepStatus(ctx, id) {
		case step.StatusCompleted:
			completed++
		case step.StatusFailed:
			failed = append(failed, id)
		default:
			pending = append(pending, id)
		}
	}

	total := len(ids)
	progress := 0.0
	if total > 0 {
		progress = float64(completed) / float64(total) * 100
	}

	var status string
	switch {
	case len(failed) > 1:
		status = HealthCritical
	case len(failed) == 1:
		status = HealthWarning
	case total > 0 && completed == total:
		status = HealthExcellent
	case progress > 80:
		status = HealthGood
	default:
		status = HealthFair
	}

	h := &Health{
		Status:             status,
		ProgressPercentage: progress,
		FailedSteps:        failed,
		PendingSteps:       pending,
		CompletedSteps:     completed,
		TotalSteps:         total,
	}
	if next, ok := e.NextAvailableStep(); ok {
		h.NextStep = next
		h.HasNextStep = true
	}
	return h, nil
}
