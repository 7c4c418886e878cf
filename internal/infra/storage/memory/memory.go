// Package memory implements the storage repositories in process memory.
// Used when no database is configured, and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/todosync/internal/core/domain"
	"github.com/vietddude/todosync/internal/infra/storage"
)

type todoKey struct {
	source domain.SourceID
	id     uint64
}

// TodoRepo is an in-memory storage.TodoRepository.
type TodoRepo struct {
	mu    sync.RWMutex
	todos map[todoKey]*domain.Todo
}

// NewTodoRepo creates an empty in-memory todo repository.
func NewTodoRepo() *TodoRepo {
	return &TodoRepo{todos: make(map[todoKey]*domain.Todo)}
}

func cloneTodo(t *domain.Todo) *domain.Todo {
	c := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// Get returns the row, or nil when absent.
func (r *TodoRepo) Get(ctx context.Context, source domain.SourceID, todoID uint64) (*domain.Todo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.todos[todoKey{source, todoID}]
	if !ok {
		return nil, nil
	}
	return cloneTodo(t), nil
}

// Upsert inserts or replaces the row.
func (r *TodoRepo) Upsert(ctx context.Context, todo *domain.Todo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.todos[todoKey{todo.SourceID, todo.TodoID}] = cloneTodo(todo)
	return nil
}

// List returns rows of one source matching the filter, ordered by todo id.
func (r *TodoRepo) List(ctx context.Context, source domain.SourceID, filter storage.TodoFilter) ([]*domain.Todo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Todo
	for k, t := range r.todos {
		if k.source != source {
			continue
		}
		if filter.Owner != nil && t.Owner != *filter.Owner {
			continue
		}
		if filter.Deleted != nil && t.Deleted != *filter.Deleted {
			continue
		}
		if filter.Completed != nil && t.Completed != *filter.Completed {
			continue
		}
		out = append(out, cloneTodo(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TodoID < out[j].TodoID })
	return out, nil
}

// MarkSyncedBelow flips pending rows at or below the boundary to synced.
func (r *TodoRepo) MarkSyncedBelow(ctx context.Context, source domain.SourceID, boundary uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, t := range r.todos {
		if k.source != source || t.SyncStatus != domain.SyncPending {
			continue
		}
		if t.LastPos.Block <= boundary {
			t.SyncStatus = domain.SyncSynced
			t.LastSyncedAt = time.Now()
			n++
		}
	}
	return n, nil
}

// SetSyncStatus overrides the sync status of one row.
func (r *TodoRepo) SetSyncStatus(ctx context.Context, source domain.SourceID, todoID uint64, status domain.SyncStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.todos[todoKey{source, todoID}]; ok {
		t.SyncStatus = status
		t.LastSyncedAt = time.Now()
	}
	return nil
}

// CursorRepo is an in-memory storage.CursorRepository.
type CursorRepo struct {
	mu      sync.RWMutex
	cursors map[domain.SourceID]*domain.Cursor
}

// NewCursorRepo creates an empty in-memory cursor repository.
func NewCursorRepo() *CursorRepo {
	return &CursorRepo{cursors: make(map[domain.SourceID]*domain.Cursor)}
}

// Get returns the cursor, or nil when absent.
func (r *CursorRepo) Get(ctx context.Context, source domain.SourceID) (*domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cursors[source]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

// Save upserts the cursor.
func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *cursor
	copied.UpdatedAt = time.Now()
	r.cursors[cursor.SourceID] = &copied
	return nil
}
