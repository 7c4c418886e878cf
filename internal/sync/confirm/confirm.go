// Package confirm decides whether an observed event has enough blocks on
// top of it to be treated as final.
package confirm

import "sync/atomic"

// Status of one event relative to the source's confirmation depth.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

// At is the pure confirmation rule: an event is confirmed once
// head - eventBlock >= depth.
func At(eventBlock, head, depth uint64) Status {
	if head >= eventBlock && head-eventBlock >= depth {
		return StatusConfirmed
	}
	return StatusPending
}

// Tracker holds the highest observed head for one source. It keeps no
// timers of its own: callers re-evaluate pending events whenever the
// head advances.
type Tracker struct {
	depth uint64
	head  atomic.Uint64
}

// NewTracker creates a tracker with the source's required depth.
func NewTracker(depth uint64) *Tracker {
	return &Tracker{depth: depth}
}

// Observe records a newly seen head height. Heads never move backward
// here; a lower observation is ignored.
func (t *Tracker) Observe(head uint64) {
	for {
		cur := t.head.Load()
		if head <= cur {
			return
		}
		if t.head.CompareAndSwap(cur, head) {
			return
		}
	}
}

// Head returns the highest observed head.
func (t *Tracker) Head() uint64 {
	return t.head.Load()
}

// Depth returns the required confirmation depth.
func (t *Tracker) Depth() uint64 {
	return t.depth
}

// Status evaluates one event block against the current head.
func (t *Tracker) Status(eventBlock uint64) Status {
	return At(eventBlock, t.head.Load(), t.depth)
}

// ConfirmedBoundary returns the highest block whose events are all
// confirmed, and false when no block is confirmed yet.
func (t *Tracker) ConfirmedBoundary() (uint64, bool) {
	head := t.head.Load()
	if head < t.depth {
		return 0, false
	}
	return head - t.depth, true
}
