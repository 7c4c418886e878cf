// Package storage defines the repository interfaces the sync engine
// persists through. Implementations live in the postgres and memory
// subpackages.
package storage

import (
	"context"

	"github.com/vietddude/todosync/internal/core/domain"
)

// TodoFilter narrows List queries. Nil fields are ignored.
type TodoFilter struct {
	Owner     *string
	Deleted   *bool
	Completed *bool
}

// TodoRepository stores projected cache rows, uniquely keyed by
// (source id, todo id).
type TodoRepository interface {
	// Get returns the row, or nil when absent.
	Get(ctx context.Context, source domain.SourceID, todoID uint64) (*domain.Todo, error)

	// Upsert inserts or fully replaces the row for (source, todo id).
	Upsert(ctx context.Context, todo *domain.Todo) error

	// List returns rows of one source matching the filter.
	List(ctx context.Context, source domain.SourceID, filter TodoFilter) ([]*domain.Todo, error)

	// MarkSyncedBelow flips pending rows whose last applied block is at or
	// below the confirmed boundary to synced. Returns rows affected.
	MarkSyncedBelow(ctx context.Context, source domain.SourceID, boundary uint64) (int64, error)

	// SetSyncStatus overrides the sync status of one row.
	SetSyncStatus(ctx context.Context, source domain.SourceID, todoID uint64, status domain.SyncStatus) error
}

// CursorRepository stores one sync cursor per source.
type CursorRepository interface {
	// Get returns the cursor, or nil when the source has never run.
	Get(ctx context.Context, source domain.SourceID) (*domain.Cursor, error)

	// Save upserts the cursor.
	Save(ctx context.Context, cursor *domain.Cursor) error
}
