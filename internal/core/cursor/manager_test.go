package cursor

import (
	"context"
	"errors"
	"testing"

	"github.com/vietddude/todosync/internal/infra/storage/memory"
)

func TestGetOrInitCreatesAtStartBlock(t *testing.T) {
	mgr := NewManager(memory.NewCursorRepo())
	ctx := context.Background()

	cur, err := mgr.GetOrInit(ctx, "test", 4_500_000)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Block != 4_500_000 || cur.LogIndex != 0 {
		t.Errorf("fresh cursor at (%d, %d), want (4500000, 0)", cur.Block, cur.LogIndex)
	}

	// Second call returns the stored cursor, not a reset one.
	if err := mgr.Advance(ctx, "test", 4_500_100, 3); err != nil {
		t.Fatal(err)
	}
	cur, err = mgr.GetOrInit(ctx, "test", 4_500_000)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Block != 4_500_100 {
		t.Errorf("GetOrInit reset an existing cursor to %d", cur.Block)
	}
}

func TestAdvanceNeverMovesBackward(t *testing.T) {
	mgr := NewManager(memory.NewCursorRepo())
	ctx := context.Background()

	if err := mgr.Advance(ctx, "test", 100, 5); err != nil {
		t.Fatal(err)
	}

	// Replayed positions: same block lower index, and an older block.
	if err := mgr.Advance(ctx, "test", 100, 2); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Advance(ctx, "test", 90, 9); err != nil {
		t.Fatal(err)
	}

	cur, _ := mgr.GetOrInit(ctx, "test", 0)
	if cur.Block != 100 || cur.LogIndex != 5 {
		t.Errorf("cursor at (%d, %d) after stale advances, want (100, 5)", cur.Block, cur.LogIndex)
	}

	// Same block, higher index moves forward.
	if err := mgr.Advance(ctx, "test", 100, 8); err != nil {
		t.Fatal(err)
	}
	cur, _ = mgr.GetOrInit(ctx, "test", 0)
	if cur.LogIndex != 8 {
		t.Errorf("LogIndex = %d, want 8", cur.LogIndex)
	}
}

func TestRollback(t *testing.T) {
	mgr := NewManager(memory.NewCursorRepo())
	ctx := context.Background()

	if err := mgr.Advance(ctx, "test", 200, 0); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Rollback(ctx, "test", 150); err != nil {
		t.Fatal(err)
	}

	cur, _ := mgr.GetOrInit(ctx, "test", 0)
	if cur.Block != 150 || cur.LogIndex != 0 {
		t.Errorf("cursor at (%d, %d) after rollback, want (150, 0)", cur.Block, cur.LogIndex)
	}

	if err := mgr.Rollback(ctx, "test", 300); !errors.Is(err, ErrCursorBackward) {
		t.Errorf("roll-forward err = %v, want ErrCursorBackward", err)
	}
}

func TestLag(t *testing.T) {
	mgr := NewManager(memory.NewCursorRepo())
	ctx := context.Background()

	lag, err := mgr.Lag(ctx, "test", 500)
	if err != nil || lag != 500 {
		t.Errorf("Lag with no cursor = (%d, %v), want (500, nil)", lag, err)
	}

	if err := mgr.Advance(ctx, "test", 480, 0); err != nil {
		t.Fatal(err)
	}
	lag, _ = mgr.Lag(ctx, "test", 500)
	if lag != 20 {
		t.Errorf("Lag = %d, want 20", lag)
	}
}
