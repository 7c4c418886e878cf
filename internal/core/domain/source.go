package domain

// SourceID identifies one independently synchronized upstream event log
// (e.g. one blockchain network).
type SourceID string

// Position is the total order of events within a single source:
// (block number, log index within block).
type Position struct {
	Block    uint64
	LogIndex uint64
}

// Before reports whether p is strictly older than other.
func (p Position) Before(other Position) bool {
	if p.Block != other.Block {
		return p.Block < other.Block
	}
	return p.LogIndex < other.LogIndex
}

// Max returns the newer of the two positions.
func (p Position) Max(other Position) Position {
	if p.Before(other) {
		return other
	}
	return p
}
