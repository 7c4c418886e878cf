package domain

import "time"

// SyncStatus reflects how far an entity's latest applied event has
// progressed towards finality.
type SyncStatus string

const (
	// SyncPending: applied, but the originating event has not reached
	// the configured confirmation depth yet.
	SyncPending SyncStatus = "pending"
	// SyncSynced: the originating event is final.
	SyncSynced SyncStatus = "synced"
	// SyncError: a reorg suspicion or projection failure was recorded;
	// the row awaits reconciliation.
	SyncError SyncStatus = "error"
)

// Todo is the projected cache row for one entity, uniquely keyed by
// (SourceID, TodoID). Rows are only ever soft-deleted so that replaying
// any historical event remains safe.
type Todo struct {
	SourceID SourceID
	TodoID   uint64

	Owner     string
	Content   string
	Completed bool
	Deleted   bool

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time

	// Last applied event position per field group. Events older than the
	// recorded position for their group are stale and must not be applied.
	ContentPos   Position
	CompletedPos Position
	DeletedPos   Position

	// LastPos is the newest position applied to any field of this row.
	// The confirmation sweep flips pending rows to synced once this
	// position is final.
	LastPos Position

	SyncStatus   SyncStatus
	LastSyncedAt time.Time
}
