package bunstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/step"
	"github.com/xraph/stepflow/workflow"
)

// ── Workflow state model ──────────────────────────────────────────

type stateModel struct {
	bun.BaseModel `bun:"table:stepflow_workflow_states"`

	Namespace      string    `bun:"namespace,pk"`
	ProjectName    string    `bun:"project_name,notnull"`
	CurrentStep    int       `bun:"current_step,notnull,default:1"`
	CompletedSteps []int     `bun:"completed_steps,array"`
	Repository     string    `bun:"repository"`
	SubmissionRef  string    `bun:"submission_ref"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toStateModel(namespace string, st *workflow.State) *stateModel {
	completed := st.CompletedSteps
	if completed == nil {
		completed = []int{}
	}
	return &stateModel{
		Namespace:      namespace,
		ProjectName:    st.ProjectName,
		CurrentStep:    st.CurrentStep,
		CompletedSteps: completed,
		Repository:     st.Repository,
		SubmissionRef:  st.SubmissionRef,
		CreatedAt:      st.CreatedAt,
		UpdatedAt:      st.UpdatedAt,
	}
}

func fromStateModel(m *stateModel) *workflow.State {
	return &workflow.State{
		Entity: stepflow.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ProjectName:    m.ProjectName,
		CurrentStep:    m.CurrentStep,
		CompletedSteps: append([]int(nil), m.CompletedSteps...),
		Repository:     m.Repository,
		SubmissionRef:  m.SubmissionRef,
	}
}

// ── Step result model ─────────────────────────────────────────────

type resultModel struct {
	bun.BaseModel `bun:"table:stepflow_step_results"`

	Namespace    string         `bun:"namespace,pk"`
	StepID       int            `bun:"step_id,pk"`
	Status       string         `bun:"status,notnull"`
	Data         map[string]any `bun:"data,type:jsonb"`
	ErrorMessage string         `bun:"error_message"`
	RecordedAt   time.Time      `bun:"recorded_at,notnull,default:current_timestamp"`
}

func fromResultModel(m *resultModel) *step.Result {
	return &step.Result{
		StepID:       m.StepID,
		Status:       step.Status(m.Status),
		Data:         m.Data,
		ErrorMessage: m.ErrorMessage,
		Timestamp:    m.RecordedAt,
	}
}
