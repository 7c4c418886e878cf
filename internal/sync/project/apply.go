package project

import (
	"errors"
	"time"

	"github.com/vietddude/todosync/internal/core/domain"
)

// ErrIllegalTransition marks an event whose transition is not legal for
// the entity's current logical state (e.g. completing a deleted todo).
var ErrIllegalTransition = errors.New("illegal state transition")

// apply mutates the row with one event's effect and reports whether
// anything changed. It is a pure state machine over the row: safe under
// duplicate delivery (same position twice is a no-op) and out-of-order
// delivery (each field group only accepts positions newer than its
// last applied one), so any delivery order converges to the same row.
func apply(t *domain.Todo, ev *domain.RawEvent, now time.Time) (bool, error) {
	pos := ev.Position()
	var changed bool

	switch ev.Name {
	case domain.EventTodoCreated:
		if t.Owner == "" && ev.Owner != "" {
			t.Owner = ev.Owner
			changed = true
		}
		if t.ContentPos.Before(pos) {
			t.Content = ev.Content
			t.ContentPos = pos
			changed = true
		}

	case domain.EventTodoUpdated:
		if !t.ContentPos.Before(pos) {
			return false, nil
		}
		if t.Deleted && t.DeletedPos.Before(pos) {
			return false, ErrIllegalTransition
		}
		t.Content = ev.Content
		t.ContentPos = pos
		changed = true

	case domain.EventTodoCompleted:
		if !t.CompletedPos.Before(pos) {
			return false, nil
		}
		if t.Deleted && t.DeletedPos.Before(pos) {
			return false, ErrIllegalTransition
		}
		if !t.Completed {
			at := now
			t.CompletedAt = &at
		}
		t.Completed = true
		t.CompletedPos = pos
		changed = true

	case domain.EventTodoDeleted:
		if !t.DeletedPos.Before(pos) {
			return false, nil
		}
		t.Deleted = true
		t.DeletedPos = pos
		changed = true

	case domain.EventTodoRestored:
		if !t.DeletedPos.Before(pos) {
			return false, nil
		}
		t.Deleted = false
		t.DeletedPos = pos
		changed = true

	default:
		return false, nil
	}

	if changed {
		t.UpdatedAt = now
		t.LastPos = t.LastPos.Max(pos)
	}
	return changed, nil
}
