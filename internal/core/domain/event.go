package domain

// EventName identifies one event kind of the source contract.
type EventName string

const (
	EventTodoCreated   EventName = "TodoCreated"
	EventTodoUpdated   EventName = "TodoUpdated"
	EventTodoCompleted EventName = "TodoCompleted"
	EventTodoDeleted   EventName = "TodoDeleted"
	EventTodoRestored  EventName = "TodoRestored"
)

// RawEvent is a decoded contract event as observed on a source.
// It is transient: produced by the source adapter, consumed by the
// dispatcher and projector, never persisted.
type RawEvent struct {
	SourceID SourceID
	Name     EventName

	// Decoded arguments. Owner and Content are only set for the
	// event kinds that carry them.
	TodoID  uint64
	Owner   string
	Content string

	Block    uint64
	TxHash   string
	LogIndex uint64
}

// Position returns the event's position within its source log.
func (e *RawEvent) Position() Position {
	return Position{Block: e.Block, LogIndex: e.LogIndex}
}
