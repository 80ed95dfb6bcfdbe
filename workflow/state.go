package workflow

import (
	"sort"

	"github.com/xraph/stepflow"
)

// State is the durable, resumable record of one workflow run's progress.
// ProjectName and CreatedAt are set once at initialization and immutable
// thereafter; every other mutation bumps UpdatedAt.
type State struct {
	stepflow.Entity

	ProjectName string `json:"project_name"`

	// CurrentStep is the next step the workflow intends to run. It is a
	// strict sequential successor counter; dependency-aware selection is
	// the engine's NextAvailableStep, not this field.
	CurrentStep int `json:"current_step"`

	// CompletedSteps holds completed step ids in ascending order. It grows
	// monotonically except on explicit rollback or recovery.
	CompletedSteps []int `json:"completed_steps"`

	// Repository and SubmissionRef are cross-cutting references written by
	// steps through their result data and surfaced in summary reporting.
	Repository    string `json:"repository,omitempty"`
	SubmissionRef string `json:"submission_ref,omitempty"`
}

// NewState creates the state for a fresh workflow run on the given project,
// positioned at step 1.
func NewState(projectName string) *State {
	return &State{
		Entity:      stepflow.NewEntity(),
		ProjectName: projectName,
		CurrentStep: 1,
	}
}

// IsStepCompleted reports whether stepID is in the completed set.
func (s *State) IsStepCompleted(stepID int) bool {
	for _, id := range s.CompletedSteps {
		if id == stepID {
			return true
		}
	}
	return false
}

// MarkStepCompleted adds stepID to the completed set (keeping it sorted)
// and bumps UpdatedAt. Adding an already completed step is a no-op apart
// from the timestamp.
func (s *State) MarkStepCompleted(stepID int) {
	if !s.IsStepCompleted(stepID) {
		s.CompletedSteps = append(s.CompletedSteps, stepID)
		sort.Ints(s.CompletedSteps)
	}
	s.Touch()
}

// UnmarkStepCompleted removes stepID from the completed set, if present,
// and bumps UpdatedAt.
func (s *State) UnmarkStepCompleted(stepID int) {
	for i, id := range s.CompletedSteps {
		if id == stepID {
			s.CompletedSteps = append(s.CompletedSteps[:i], s.CompletedSteps[i+1:]...)
			break
		}
	}
	s.Touch()
}

// Progress returns the completion percentage against the given total.
// Zero total yields zero to avoid division by zero.
func (s *State) Progress(totalSteps int) float64 {
	if totalSteps == 0 {
		return 0
	}
	return float64(len(s.CompletedSteps)) / float64(totalSteps) * 100
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	cp := *s
	cp.CompletedSteps = append([]int(nil), s.CompletedSteps...)
	return &cp
}

// resultKeyRepository and resultKeySubmission are the well-known result
// data keys steps use to publish cross-cutting references.
const (
	resultKeyRepository = "github_repo"
	resultKeySubmission = "submission_link"
)

// PromoteResultData lifts well-known keys from a completed step's result
// data into the dedicated state fields. Unknown keys are ignored.
func (s *State) PromoteResultData(data map[string]any) {
	if v, ok := data[resultKeyRepository].(string); ok && v != "" {
		s.Repository = v
	}
	if v, ok := data[resultKeySubmission].(string); ok && v != "" {
		s.SubmissionRef = v
	}
}
