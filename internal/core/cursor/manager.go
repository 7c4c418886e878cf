// Package cursor manages the per-source sync cursor: the persisted
// pointer to the last safely processed log position.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/todosync/internal/core/domain"
	"github.com/vietddude/todosync/internal/infra/storage"
	"github.com/vietddude/todosync/internal/sync/metrics"
)

// ErrCursorBackward is returned by Rollback when the target position is
// ahead of the current cursor.
var ErrCursorBackward = errors.New("rollback target is ahead of cursor")

// Manager enforces the cursor invariant: the cursor never moves backward
// except through explicit Rollback, and re-advancing to an already
// processed position is an idempotent no-op.
type Manager struct {
	repo storage.CursorRepository
	mu   sync.Mutex
}

// NewManager creates a cursor manager over the given repository.
func NewManager(repo storage.CursorRepository) *Manager {
	return &Manager{repo: repo}
}

// GetOrInit returns the cursor for a source, creating it at startBlock
// on first run. A freshly initialized cursor points at startBlock with
// log index 0, so scanning resumes at startBlock+1.
func (m *Manager) GetOrInit(ctx context.Context, source domain.SourceID, startBlock uint64) (*domain.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.repo.Get(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	if cur != nil {
		return cur, nil
	}

	cur = &domain.Cursor{
		SourceID:  source,
		Block:     startBlock,
		UpdatedAt: time.Now(),
	}
	if err := m.repo.Save(ctx, cur); err != nil {
		return nil, fmt.Errorf("failed to initialize cursor: %w", err)
	}
	return cur, nil
}

// Advance moves the cursor forward to (block, logIndex). Positions at or
// behind the current cursor are a no-op: replayed events are expected
// under at-least-once delivery and must not rewind progress.
func (m *Manager) Advance(ctx context.Context, source domain.SourceID, block, logIndex uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.repo.Get(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to get cursor: %w", err)
	}
	if cur == nil {
		cur = &domain.Cursor{SourceID: source}
	}

	next := domain.Position{Block: block, LogIndex: logIndex}
	if !cur.Position().Before(next) {
		return nil
	}

	cur.Block = block
	cur.LogIndex = logIndex
	cur.UpdatedAt = time.Now()
	if err := m.repo.Save(ctx, cur); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}

	metrics.CursorBlock.WithLabelValues(string(source)).Set(float64(block))
	return nil
}

// Rollback explicitly rewinds the cursor, used only by operator
// tooling and reorg reconciliation. Rolling forward is rejected.
func (m *Manager) Rollback(ctx context.Context, source domain.SourceID, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.repo.Get(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to get cursor: %w", err)
	}
	if cur == nil {
		return fmt.Errorf("no cursor for source %s", source)
	}
	if block > cur.Block {
		return fmt.Errorf("%w: cursor at %d, target %d", ErrCursorBackward, cur.Block, block)
	}

	cur.Block = block
	cur.LogIndex = 0
	cur.UpdatedAt = time.Now()
	if err := m.repo.Save(ctx, cur); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// Lag returns how many blocks the cursor trails the given head.
func (m *Manager) Lag(ctx context.Context, source domain.SourceID, head uint64) (int64, error) {
	cur, err := m.repo.Get(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor: %w", err)
	}
	if cur == nil {
		return int64(head), nil
	}
	return int64(head) - int64(cur.Block), nil
}
