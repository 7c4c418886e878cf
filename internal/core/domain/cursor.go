package domain

import "time"

// Cursor is the persisted pointer to the last safely processed position
// in a source's event log. Recovery resumes from here after downtime.
type Cursor struct {
	SourceID  SourceID
	Block     uint64
	LogIndex  uint64
	UpdatedAt time.Time
}

// Position returns the cursor as a log position.
func (c *Cursor) Position() Position {
	return Position{Block: c.Block, LogIndex: c.LogIndex}
}
