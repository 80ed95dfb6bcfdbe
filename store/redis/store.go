// Package redis implements a progress store backed by Redis. The workflow
// state and each step result are stored as Redis Hashes under a per-project
// namespace, so distinct workflows sharing one Redis instance stay
// isolated. Step result data is msgpack-encoded.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client, "my-project")
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/stepflow/store"
	"github.com/xraph/stepflow/workflow"
)

// Compile-time interface checks.
var (
	_ store.Store             = (*Store)(nil)
	_ workflow.Initializer    = (*Store)(nil)
	_ workflow.StepRollbacker = (*Store)(nil)
	_ workflow.ResultReader   = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the progress store contract backed by Redis.
type Store struct {
	client    redis.Cmdable
	namespace string
	logger    *slog.Logger
}

// New creates a Redis-backed store scoped to the given namespace. The
// caller owns the Redis client lifecycle.
func New(client redis.Cmdable, namespace string, opts ...Option) *Store {
	s := &Store{client: client, namespace: namespace, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
