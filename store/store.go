// Package store defines the aggregate persistence interface for workflow
// progress. The engine consumes the narrow workflow.Store contract; the
// composite Store here adds lifecycle operations every full backend
// provides. Backends: Memory, File, Redis, Postgres, and Bun.
package store

import (
	"context"

	"github.com/xraph/stepflow/workflow"
)

// Store is the full persistence interface implemented by every backend.
// The engine only requires workflow.Store; Migrate, Ping, and Close are for
// the application wiring the backend up.
//
// Backends additionally implement the optional capabilities the engine
// discovers by type assertion: workflow.Initializer, workflow.StepRollbacker,
// and workflow.ResultReader. All backends in this module implement all
// three.
type Store interface {
	workflow.Store

	// Migrate creates or upgrades the backend's schema. A no-op for
	// schemaless backends.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
