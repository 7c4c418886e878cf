package confirm

import "testing"

func TestAt(t *testing.T) {
	tests := []struct {
		name       string
		eventBlock uint64
		head       uint64
		depth      uint64
		want       Status
	}{
		{"exactly at depth", 100, 112, 12, StatusConfirmed},
		{"one short of depth", 100, 111, 12, StatusPending},
		{"well past depth", 100, 500, 12, StatusConfirmed},
		{"zero depth confirms immediately", 100, 100, 0, StatusConfirmed},
		{"event ahead of head", 110, 100, 12, StatusPending},
		{"same block nonzero depth", 100, 100, 1, StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := At(tt.eventBlock, tt.head, tt.depth); got != tt.want {
				t.Errorf("At(%d, %d, %d) = %v, want %v",
					tt.eventBlock, tt.head, tt.depth, got, tt.want)
			}
		})
	}
}

func TestTrackerObserveIsMonotonic(t *testing.T) {
	tr := NewTracker(12)

	tr.Observe(100)
	tr.Observe(90) // stale head from a lagging endpoint
	if got := tr.Head(); got != 100 {
		t.Errorf("Head() = %d after stale observe, want 100", got)
	}

	tr.Observe(150)
	if got := tr.Head(); got != 150 {
		t.Errorf("Head() = %d, want 150", got)
	}
}

func TestTrackerStatus(t *testing.T) {
	tr := NewTracker(12)
	tr.Observe(120)

	if got := tr.Status(100); got != StatusConfirmed {
		t.Errorf("Status(100) = %v, want confirmed", got)
	}
	if got := tr.Status(115); got != StatusPending {
		t.Errorf("Status(115) = %v, want pending", got)
	}
}

func TestConfirmedBoundary(t *testing.T) {
	tr := NewTracker(12)

	if _, ok := tr.ConfirmedBoundary(); ok {
		t.Error("ConfirmedBoundary() reported a boundary before any head")
	}

	tr.Observe(10)
	if _, ok := tr.ConfirmedBoundary(); ok {
		t.Error("ConfirmedBoundary() reported a boundary with head below depth")
	}

	tr.Observe(120)
	boundary, ok := tr.ConfirmedBoundary()
	if !ok || boundary != 108 {
		t.Errorf("ConfirmedBoundary() = (%d, %v), want (108, true)", boundary, ok)
	}
}
