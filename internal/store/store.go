// Package store defines the key-value contract every sync engine persists
// through, plus an in-memory implementation for tests and one-shot CLI runs.
package store

import (
	"context"
	"time"
)

// CreateResult is the outcome of an atomic create-if-absent. When Created is
// false, Existing holds the record that already occupied the key.
type CreateResult[T any] struct {
	Created  bool
	Existing T
}

// EntityStore persists records of one kind by key. Records are never deleted.
type EntityStore[T any] interface {
	// Create stores v under key only if the key is free.
	Create(ctx context.Context, key string, v T) (CreateResult[T], error)
	// Get returns domain.ErrNotFound for unknown keys.
	Get(ctx context.Context, key string) (T, error)
	// Update overwrites an existing record; unknown keys return domain.ErrNotFound.
	Update(ctx context.Context, key string, v T) error
	Exists(ctx context.Context, key string) (bool, error)
	// List returns every record whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]T, error)
}

// ProcessedSet remembers which items were already handled within a scope.
type ProcessedSet interface {
	IsProcessed(ctx context.Context, scope, id string) (bool, error)
	MarkProcessed(ctx context.Context, scope, id string) error
}

// Watermarks records the time of the last successful run per job.
type Watermarks interface {
	// Get reports ok=false when no watermark was recorded yet.
	Get(ctx context.Context, name string) (t time.Time, ok bool, err error)
	Set(ctx context.Context, name string, t time.Time) error
}
