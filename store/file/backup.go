package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// backupState rotates the current state file into the backup set and
// prunes backups beyond the retention limit. Missing state is a no-op.
func (s *Store) backupState() error {
	data, err := os.ReadFile(s.statePath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stepflow/file: read state for backup: %w", err)
	}

	name := fmt.Sprintf("state_%s.json", time.Now().UTC().Format("20060102T150405.000000000"))
	path := filepath.Join(s.dir, backupsDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("stepflow/file: write backup: %w", err)
	}
	return s.pruneBackups()
}

// Backups returns the rotated backup file names, oldest first.
func (s *Store) Backups() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, backupsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stepflow/file: list backups: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// RestoreFromBackup replaces the current state with the most recent
// rotated backup. Returns stepflow-wrapped errors; with no backups
// available the state is left untouched and an error is returned.
func (s *Store) RestoreFromBackup(_ context.Context) error {
	names, err := s.Backups()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errors.New("stepflow/file: no backups available")
	}

	latest := filepath.Join(s.dir, backupsDir, names[len(names)-1])
	data, err := os.ReadFile(latest)
	if err != nil {
		return fmt.Errorf("stepflow/file: read backup %s: %w", names[len(names)-1], err)
	}
	tmp := s.statePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("stepflow/file: restore state: %w", err)
	}
	if err := os.Rename(tmp, s.statePath()); err != nil {
		return fmt.Errorf("stepflow/file: restore state: %w", err)
	}

	s.logger.Info("state restored from backup", slog.String("backup", names[len(names)-1]))
	return nil
}

// Clear removes the state file, all step results, and all backups, leaving
// an empty store directory layout behind.
func (s *Store) Clear(_ context.Context) error {
	if err := os.Remove(s.statePath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stepflow/file: remove state: %w", err)
	}
	if err := s.clearSteps(); err != nil {
		return err
	}

	dir := filepath.Join(s.dir, backupsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stepflow/file: list backups: %w", err)
	}
	for _, entry := range entries {
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("stepflow/file: clear backups: %w", err)
		}
	}
	return nil
}

// Info describes the store's on-disk footprint.
type Info struct {
	Dir         string `json:"dir"`
	HasState    bool   `json:"has_state"`
	StepResults int    `json:"step_results"`
	Backups     int    `json:"backups"`
	SizeBytes   int64  `json:"size_bytes"`
}

// StorageInfo reports the store directory's contents and total size.
func (s *Store) StorageInfo() (*Info, error) {
	info := &Info{Dir: s.dir}

	if st, err := os.Stat(s.statePath()); err == nil {
		info.HasState = true
		info.SizeBytes += st.Size()
	}

	steps, err := os.ReadDir(filepath.Join(s.dir, stepsDir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stepflow/file: list step results: %w", err)
	}
	for _, entry := range steps {
		info.StepResults++
		if fi, err := entry.Info(); err == nil {
			info.SizeBytes += fi.Size()
		}
	}

	backups, err := os.ReadDir(filepath.Join(s.dir, backupsDir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stepflow/file: list backups: %w", err)
	}
	for _, entry := range backups {
		info.Backups++
		if fi, err := entry.Info(); err == nil {
			info.SizeBytes += fi.Size()
		}
	}
	return info, nil
}

// pruneBackups removes the oldest backups beyond the retention limit.
func (s *Store) pruneBackups() error {
	names, err := s.Backups()
	if err != nil {
		return err
	}
	for len(names) > s.retention {
		if err := os.Remove(filepath.Join(s.dir, backupsDir, names[0])); err != nil {
			return fmt.Errorf("stepflow/file: prune backup %s: %w", names[0], err)
		}
		names = names[1:]
	}
	return nil
}
