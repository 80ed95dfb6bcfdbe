// Package file provides a durable progress store backed by JSON files on
// local disk. The workflow state lives in a single state file, each step's
// last result in its own file, and every state overwrite first rotates the
// previous version into a bounded backup set.
//
// Layout under the store directory:
//
//	state.json            current workflow state
//	steps/step_<id>.json  last recorded result per step
//	backups/state_<ts>.json  rotated state backups, newest last
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
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

const (
	stateFile  = "state.json"
	stepsDir   = "steps"
	backupsDir = "backups"
)

// Store persists workflow progress as JSON files under a directory.
// One directory holds exactly one workflow; isolation between workflows is
// directory-level.
type Store struct {
	dir       string
	retention int
	logger    *slog.Logger
}

// Option configures a file store.
type Option func(*Store)

// WithBackupRetention sets how many rotated state backups to keep.
// Defaults to stepflow.DefaultConfig().BackupRetention.
func WithBackupRetention(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.retention = n
		}
	}
}

// WithLogger sets the store's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a file store rooted at dir, creating the directory layout if
// needed.
func New(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:       dir,
		retention: stepflow.DefaultConfig().BackupRetention,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) statePath() string { return filepath.Join(s.dir, stateFile) }

func (s *Store) stepPath(stepID int) string {
	return filepath.Join(s.dir, stepsDir, fmt.Sprintf("step_%d.json", stepID))
}

// InitializeWorkflow writes a fresh state for the project, rotating any
// existing state into the backups and clearing recorded step results.
func (s *Store) InitializeWorkflow(_ context.Context, projectName string) error {
	if err := s.backupState(); err != nil {
		return err
	}
	if err := s.clearSteps(); err != nil {
		return err
	}
	return s.writeState(workflow.NewState(projectName))
}

// SaveProgress records a step outcome and derives the durable state from
// it: a completed status marks the step complete, promotes well-known
// result keys, and advances the current step to the successor. Each state
// overwrite rotates the previous version into the backup set first.
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
		res := &step.Result{
			StepID:       stepID,
			Status:       status,
			Data:         data,
			ErrorMessage: errorMessage,
			Timestamp:    time.Now().UTC(),
		}
		if err := writeJSON(s.stepPath(stepID), res); err != nil {
			return err
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

	if err := s.backupState(); err != nil {
		return err
	}
	return s.writeState(st)
}

// LoadState reads the persisted state, or returns stepflow.ErrStateNotFound
// when no workflow was initialized in this directory.
func (s *Store) LoadState(_ context.Context) (*workflow.State, error) {
	var st workflow.State
	if err := readJSON(s.statePath(), &st); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, stepflow.ErrStateNotFound
		}
		return nil, err
	}
	return &st, nil
}

// MarkComplete records stepID as completed with no result data.
func (s *Store) MarkComplete(ctx context.Context, stepID int) error {
	return s.SaveProgress(ctx, stepID, step.StatusCompleted, nil, "")
}

// RollbackStep clears the store's record for stepID: its result file is
// removed, the step leaves the completed set, and the current step rewinds
// to stepID when it was ahead.
func (s *Store) RollbackStep(ctx context.Context, stepID int) error {
	if err := os.Remove(s.stepPath(stepID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stepflow/file: remove step %d result: %w", stepID, err)
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
	if err := s.backupState(); err != nil {
		return err
	}
	return s.writeState(st)
}

// StepResult returns the last recorded result for stepID, or (nil, nil)
// when none exists.
func (s *Store) StepResult(_ context.Context, stepID int) (*step.Result, error) {
	var res step.Result
	if err := readJSON(s.stepPath(stepID), &res); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// CompletionSummary projects the persisted progress. TotalSteps counts the
// distinct step ids the store has records for.
func (s *Store) CompletionSummary(ctx context.Context) (*workflow.CompletionSummary, error) {
	st, err := s.LoadState(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]struct{})
	entries, err := os.ReadDir(filepath.Join(s.dir, stepsDir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stepflow/file: list step results: %w", err)
	}
	for _, entry := range entries {
		var id int
		if _, err := fmt.Sscanf(entry.Name(), "step_%d.json", &id); err == nil {
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

// Migrate creates the store's directory layout.
func (s *Store) Migrate(_ context.Context) error {
	for _, dir := range []string{s.dir, filepath.Join(s.dir, stepsDir), filepath.Join(s.dir, backupsDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("stepflow/file: create %s: %w", dir, err)
		}
	}
	return nil
}

// Ping checks the store directory is accessible.
func (s *Store) Ping(_ context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("stepflow/file: stat %s: %w", s.dir, err)
	}
	return nil
}

// Close is a no-op; the store holds no open handles between operations.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// JSON helpers
// ──────────────────────────────────────────────────

// writeState writes the state file atomically via a temp file rename.
func (s *Store) writeState(st *workflow.State) error {
	return writeJSON(s.statePath(), st)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("stepflow/file: encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("stepflow/file: write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("stepflow/file: rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("stepflow/file: decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Store) clearSteps() error {
	dir := filepath.Join(s.dir, stepsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stepflow/file: list step results: %w", err)
	}
	for _, entry := range entries {
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("stepflow/file: clear step results: %w", err)
		}
	}
	return nil
}
