// Package memory provides an in-memory progress store for tests and
// development. State vanishes when the process exits, so it offers none of
// the resumption guarantees the durable backends do.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/step"
	"github.com/xraph/stepflow/store"
	"github.com/xraph/stepflow/workflow"
)

var (
	_ store.Store             = (*Store)(nil)
	_ workflow.Initializer    = (*Store)(nil)
	_ workflow.StepRollbacker = (*Store)(nil)
	_ workflow.ResultReader   = (*Store)(nil)
)

// Store is an in-memory progress store. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	state   *workflow.State
	results map[int]*step.Result
	closed  bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{results: make(map[int]*step.Result)}
}

// InitializeWorkflow creates a fresh workflow state for the project,
// discarding any previous state and recorded results.
func (s *Store) InitializeWorkflow(_ context.Context, projectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stepflow.ErrStoreClosed
	}
	s.state = workflow.NewState(projectName)
	s.results = make(map[int]*step.Result)
	return nil
}

// SaveProgress records a step outcome and derives the durable state from
// it: a completed status marks the step complete, promotes well-known
// result keys, and advances the current step to the successor.
func (s *Store) SaveProgress(_ context.Context, stepID int, status step.Status, data map[string]any, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stepflow.ErrStoreClosed
	}

	if s.state == nil {
		name, _ := data["project_name"].(string)
		s.state = workflow.NewState(name)
	}

	if stepID > 0 {
		s.results[stepID] = &step.Result{
			StepID:       stepID,
			Status:       status,
			Data:         data,
			ErrorMessage: errorMessage,
			Timestamp:    time.Now().UTC(),
		}
	}

	switch status {
	case step.StatusCompleted:
		if stepID > 0 {
			s.state.MarkStepCompleted(stepID)
			s.state.PromoteResultData(data)
			s.state.CurrentStep = stepID + 1
		}
	default:
		s.state.Touch()
	}
	return nil
}

// LoadState returns a copy of the persisted state, or
// stepflow.ErrStateNotFound when no workflow was initialized.
func (s *Store) LoadState(_ context.Context) (*workflow.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, stepflow.ErrStoreClosed
	}
	if s.state == nil {
		return nil, stepflow.ErrStateNotFound
	}
	return s.state.Clone(), nil
}

// MarkComplete records stepID as completed with no result data.
func (s *Store) MarkComplete(ctx context.Context, stepID int) error {
	return s.SaveProgress(ctx, stepID, step.StatusCompleted, nil, "")
}

// RollbackStep clears the store's record for stepID: the result is
// dropped, the step leaves the completed set, and the current step rewinds
// to stepID when it was ahead.
func (s *Store) RollbackStep(_ context.Context, stepID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stepflow.ErrStoreClosed
	}
	delete(s.results, stepID)
	if s.state != nil {
		s.state.UnmarkStepCompleted(stepID)
		if s.state.CurrentStep > stepID {
			s.state.CurrentStep = stepID
		}
	}
	return nil
}

// StepResult returns the last recorded result for stepID, or (nil, nil)
// when none exists.
func (s *Store) StepResult(_ context.Context, stepID int) (*step.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, stepflow.ErrStoreClosed
	}
	res, ok := s.results[stepID]
	if !ok {
		return nil, nil
	}
	cp := *res
	return &cp, nil
}

// CompletionSummary projects the persisted progress. TotalSteps counts the
// distinct step ids the store has seen; the engine-side Summary uses the
// registry size instead.
func (s *Store) CompletionSummary(_ context.Context) (*workflow.CompletionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, stepflow.ErrStoreClosed
	}
	if s.state == nil {
		return nil, stepflow.ErrStateNotFound
	}

	seen := make(map[int]struct{}, len(s.results))
	for id := range s.results {
		seen[id] = struct{}{}
	}
	for _, id := range s.state.CompletedSteps {
		seen[id] = struct{}{}
	}
	total := len(seen)

	return &workflow.CompletionSummary{
		ProjectName:        s.state.ProjectName,
		CurrentStep:        s.state.CurrentStep,
		TotalSteps:         total,
		CompletedSteps:     len(s.state.CompletedSteps),
		CompletedStepIDs:   append([]int(nil), s.state.CompletedSteps...),
		ProgressPercentage: s.state.Progress(total),
		LastUpdated:        s.state.UpdatedAt,
	}, nil
}

// Migrate is a no-op for the in-memory backend.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is usable.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return stepflow.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Further operations return
// stepflow.ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
