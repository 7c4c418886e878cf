package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/todosync/internal/core/domain"
)

// CursorRepo implements storage.CursorRepository using PostgreSQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

type cursorRow struct {
	SourceID    string    `db:"source_id"`
	BlockNumber uint64    `db:"block_number"`
	LogIndex    uint64    `db:"log_index"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Get retrieves a cursor by source id, or nil when absent.
func (r *CursorRepo) Get(ctx context.Context, source domain.SourceID) (*domain.Cursor, error) {
	query := `SELECT source_id, block_number, log_index, updated_at FROM cursors WHERE source_id = $1`

	var row cursorRow
	err := r.db.GetContext(ctx, &row, query, string(source))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	return &domain.Cursor{
		SourceID:  domain.SourceID(row.SourceID),
		Block:     row.BlockNumber,
		LogIndex:  row.LogIndex,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// Save upserts the cursor.
func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	query := `
		INSERT INTO cursors (source_id, block_number, log_index, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (source_id) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			log_index = EXCLUDED.log_index,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, string(cursor.SourceID), cursor.Block, cursor.LogIndex)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}
