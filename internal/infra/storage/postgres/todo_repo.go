package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vietddude/todosync/internal/core/domain"
	"github.com/vietddude/todosync/internal/infra/storage"
)

// TodoRepo implements storage.TodoRepository using PostgreSQL.
type TodoRepo struct {
	db *DB
}

// NewTodoRepo creates a new PostgreSQL todo repository.
func NewTodoRepo(db *DB) *TodoRepo {
	return &TodoRepo{db: db}
}

type todoRow struct {
	SourceID        string       `db:"source_id"`
	TodoID          uint64       `db:"todo_id"`
	Owner           string       `db:"owner"`
	Content         string       `db:"content"`
	Completed       bool         `db:"completed"`
	Deleted         bool         `db:"deleted"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
	CompletedAt     sql.NullTime `db:"completed_at"`
	ContentBlock    uint64       `db:"content_block"`
	ContentLogIdx   uint64       `db:"content_log_idx"`
	CompletedBlock  uint64       `db:"completed_block"`
	CompletedLogIdx uint64       `db:"completed_log_idx"`
	DeletedBlock    uint64       `db:"deleted_block"`
	DeletedLogIdx   uint64       `db:"deleted_log_idx"`
	LastBlock       uint64       `db:"last_block"`
	LastLogIdx      uint64       `db:"last_log_idx"`
	SyncStatus      string       `db:"sync_status"`
	LastSyncedAt    time.Time    `db:"last_synced_at"`
}

func (r *todoRow) toDomain() *domain.Todo {
	t := &domain.Todo{
		SourceID:     domain.SourceID(r.SourceID),
		TodoID:       r.TodoID,
		Owner:        r.Owner,
		Content:      r.Content,
		Completed:    r.Completed,
		Deleted:      r.Deleted,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		ContentPos:   domain.Position{Block: r.ContentBlock, LogIndex: r.ContentLogIdx},
		CompletedPos: domain.Position{Block: r.CompletedBlock, LogIndex: r.CompletedLogIdx},
		DeletedPos:   domain.Position{Block: r.DeletedBlock, LogIndex: r.DeletedLogIdx},
		LastPos:      domain.Position{Block: r.LastBlock, LogIndex: r.LastLogIdx},
		SyncStatus:   domain.SyncStatus(r.SyncStatus),
		LastSyncedAt: r.LastSyncedAt,
	}
	if r.CompletedAt.Valid {
		at := r.CompletedAt.Time
		t.CompletedAt = &at
	}
	return t
}

const todoColumns = `source_id, todo_id, owner, content, completed, deleted,
	created_at, updated_at, completed_at,
	content_block, content_log_idx, completed_block, completed_log_idx,
	deleted_block, deleted_log_idx, last_block, last_log_idx,
	sync_status, last_synced_at`

// Get retrieves one row, or nil when absent.
func (r *TodoRepo) Get(ctx context.Context, source domain.SourceID, todoID uint64) (*domain.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE source_id = $1 AND todo_id = $2`

	var row todoRow
	err := r.db.GetContext(ctx, &row, query, string(source), todoID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get todo: %w", err)
	}
	return row.toDomain(), nil
}

// Upsert inserts or fully replaces the row for (source, todo id).
func (r *TodoRepo) Upsert(ctx context.Context, todo *domain.Todo) error {
	query := `
		INSERT INTO todos (` + todoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (source_id, todo_id) DO UPDATE SET
			owner = EXCLUDED.owner,
			content = EXCLUDED.content,
			completed = EXCLUDED.completed,
			deleted = EXCLUDED.deleted,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at,
			content_block = EXCLUDED.content_block,
			content_log_idx = EXCLUDED.content_log_idx,
			completed_block = EXCLUDED.completed_block,
			completed_log_idx = EXCLUDED.completed_log_idx,
			deleted_block = EXCLUDED.deleted_block,
			deleted_log_idx = EXCLUDED.deleted_log_idx,
			last_block = EXCLUDED.last_block,
			last_log_idx = EXCLUDED.last_log_idx,
			sync_status = EXCLUDED.sync_status,
			last_synced_at = EXCLUDED.last_synced_at
	`

	var completedAt sql.NullTime
	if todo.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *todo.CompletedAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		string(todo.SourceID), todo.TodoID, todo.Owner, todo.Content,
		todo.Completed, todo.Deleted, todo.CreatedAt, todo.UpdatedAt, completedAt,
		todo.ContentPos.Block, todo.ContentPos.LogIndex,
		todo.CompletedPos.Block, todo.CompletedPos.LogIndex,
		todo.DeletedPos.Block, todo.DeletedPos.LogIndex,
		todo.LastPos.Block, todo.LastPos.LogIndex,
		string(todo.SyncStatus), todo.LastSyncedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return fmt.Errorf("failed to upsert todo (pg %s): %w", pgErr.Code, err)
		}
		return fmt.Errorf("failed to upsert todo: %w", err)
	}
	return nil
}

// List returns rows of one source matching the filter, supporting the
// by-owner / by-deleted / by-completed queries the API layer needs.
func (r *TodoRepo) List(ctx context.Context, source domain.SourceID, filter storage.TodoFilter) ([]*domain.Todo, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + todoColumns + ` FROM todos WHERE source_id = $1`)
	args := []any{string(source)}

	if filter.Owner != nil {
		args = append(args, *filter.Owner)
		fmt.Fprintf(&sb, " AND owner = $%d", len(args))
	}
	if filter.Deleted != nil {
		args = append(args, *filter.Deleted)
		fmt.Fprintf(&sb, " AND deleted = $%d", len(args))
	}
	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		fmt.Fprintf(&sb, " AND completed = $%d", len(args))
	}
	sb.WriteString(" ORDER BY todo_id")

	rows, err := r.db.QueryxContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	var todos []*domain.Todo
	for rows.Next() {
		var row todoRow
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		todos = append(todos, row.toDomain())
	}
	return todos, rows.Err()
}

// MarkSyncedBelow flips pending rows at or below the confirmed boundary
// to synced in one statement.
func (r *TodoRepo) MarkSyncedBelow(ctx context.Context, source domain.SourceID, boundary uint64) (int64, error) {
	query := `
		UPDATE todos SET sync_status = $1, last_synced_at = now()
		WHERE source_id = $2 AND sync_status = $3 AND last_block <= $4
	`
	res, err := r.db.ExecContext(ctx, query,
		string(domain.SyncSynced), string(source), string(domain.SyncPending), boundary)
	if err != nil {
		return 0, fmt.Errorf("failed to mark synced: %w", err)
	}
	return res.RowsAffected()
}

// SetSyncStatus overrides the sync status of one row.
func (r *TodoRepo) SetSyncStatus(ctx context.Context, source domain.SourceID, todoID uint64, status domain.SyncStatus) error {
	query := `UPDATE todos SET sync_status = $1, last_synced_at = now() WHERE source_id = $2 AND todo_id = $3`
	_, err := r.db.ExecContext(ctx, query, string(status), string(source), todoID)
	if err != nil {
		return fmt.Errorf("failed to set sync status: %w", err)
	}
	return nil
}
