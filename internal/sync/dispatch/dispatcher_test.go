package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/vietddude/todosync/internal/core/domain"
	"github.com/vietddude/todosync/internal/sync/confirm"
)

func event(name domain.EventName, block uint64) *domain.RawEvent {
	return &domain.RawEvent{SourceID: "test", Name: name, TodoID: 1, Block: block}
}

type recorder struct {
	events   []*domain.RawEvent
	statuses []confirm.Status
}

func (r *recorder) Handle(ctx context.Context, ev *domain.RawEvent, status confirm.Status) error {
	r.events = append(r.events, ev)
	r.statuses = append(r.statuses, status)
	return nil
}

func TestDispatchRoutesWithConfirmStatus(t *testing.T) {
	tracker := confirm.NewTracker(12)
	tracker.Observe(120)
	d := NewDispatcher("test", tracker)

	rec := &recorder{}
	d.Register(domain.EventTodoCreated, rec)

	if err := d.Dispatch(context.Background(), event(domain.EventTodoCreated, 100)); err != nil {
		t.Fatal(err)
	}
	if err := d.Dispatch(context.Background(), event(domain.EventTodoCreated, 115)); err != nil {
		t.Fatal(err)
	}

	if len(rec.events) != 2 {
		t.Fatalf("handled %d events, want 2", len(rec.events))
	}
	if rec.statuses[0] != confirm.StatusConfirmed || rec.statuses[1] != confirm.StatusPending {
		t.Errorf("statuses = %v, want [confirmed pending]", rec.statuses)
	}
}

func TestDispatchSkipsUnknownEvent(t *testing.T) {
	d := NewDispatcher("test", confirm.NewTracker(0))

	if err := d.Dispatch(context.Background(), event("SomethingElse", 100)); err != nil {
		t.Fatalf("unknown event returned error: %v", err)
	}
	if d.UnknownCount() != 1 {
		t.Errorf("UnknownCount() = %d, want 1", d.UnknownCount())
	}
}

func TestDispatchIsolatesHandlerFailure(t *testing.T) {
	d := NewDispatcher("test", confirm.NewTracker(0))

	d.Register(domain.EventTodoUpdated, HandlerFunc(func(context.Context, *domain.RawEvent, confirm.Status) error {
		return errors.New("db down")
	}))
	rec := &recorder{}
	d.Register(domain.EventTodoCreated, rec)

	// The failing event must not prevent the next one from processing.
	if err := d.Dispatch(context.Background(), event(domain.EventTodoUpdated, 100)); err != nil {
		t.Fatalf("handler failure propagated: %v", err)
	}
	if err := d.Dispatch(context.Background(), event(domain.EventTodoCreated, 101)); err != nil {
		t.Fatal(err)
	}

	if d.ErrorCount() != 1 {
		t.Errorf("ErrorCount() = %d, want 1", d.ErrorCount())
	}
	if len(rec.events) != 1 {
		t.Errorf("later event not handled after failure")
	}
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	d := NewDispatcher("test", confirm.NewTracker(0))
	d.Register(domain.EventTodoDeleted, HandlerFunc(func(context.Context, *domain.RawEvent, confirm.Status) error {
		panic("nil map write")
	}))

	if err := d.Dispatch(context.Background(), event(domain.EventTodoDeleted, 100)); err != nil {
		t.Fatalf("panic propagated: %v", err)
	}
	if d.ErrorCount() != 1 {
		t.Errorf("ErrorCount() = %d, want 1", d.ErrorCount())
	}
}

func TestDispatchHonorsCancelledContext(t *testing.T) {
	d := NewDispatcher("test", confirm.NewTracker(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Dispatch(ctx, event(domain.EventTodoCreated, 100)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
