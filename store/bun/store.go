// Package bunstore implements a progress store on PostgreSQL through the
// Bun ORM. It persists the same schema as the pgx backend, so the two are
// interchangeable against one database.
package bunstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/uptrace/bun"

	"github.com/xraph/stepflow/store"
	"github.com/xraph/stepflow/workflow"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Compile-time interface checks.
var (
	_ store.Store             = (*Store)(nil)
	_ workflow.Initializer    = (*Store)(nil)
	_ workflow.StepRollbacker = (*Store)(nil)
	_ workflow.ResultReader   = (*Store)(nil)
)

// Store is a Bun ORM progress store scoped to one namespace. The caller
// owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db        *bun.DB
	namespace string
	logger    *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Bun store scoped to the given namespace.
func New(db *bun.DB, namespace string, opts ...Option) *Store {
	s := &Store{
		db:        db,
		namespace: namespace,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate runs all embedded SQL migration files in order, tracking applied
// files so repeated calls are no-ops.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS stepflow_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("stepflow/bun: create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("stepflow/bun: read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var applied bool
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM stepflow_migrations WHERE filename = ?)`,
			entry.Name(),
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("stepflow/bun: check migration %s: %w", entry.Name(), err)
		}
		if applied {
			continue
		}

		data, readErr := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if readErr != nil {
			return fmt.Errorf("stepflow/bun: read migration %s: %w", entry.Name(), readErr)
		}
		if _, execErr := s.db.ExecContext(ctx, string(data)); execErr != nil {
			return fmt.Errorf("stepflow/bun: execute migration %s: %w", entry.Name(), execErr)
		}
		if _, recErr := s.db.ExecContext(ctx,
			`INSERT INTO stepflow_migrations (filename) VALUES (?)`,
			entry.Name(),
		); recErr != nil {
			return fmt.Errorf("stepflow/bun: record migration %s: %w", entry.Name(), recErr)
		}

		s.logger.Info("applied migration", "file", entry.Name())
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error { return nil }
