// Package dispatch routes decoded events to their handlers and isolates
// handler failures from the ingestion loop.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vietddude/todosync/internal/core/domain"
	"github.com/vietddude/todosync/internal/sync/confirm"
	"github.com/vietddude/todosync/internal/sync/metrics"
)

// Handler applies one event kind. The confirmation status is the
// tracker's verdict for the event at dispatch time.
type Handler interface {
	Handle(ctx context.Context, ev *domain.RawEvent, status confirm.Status) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, ev *domain.RawEvent, status confirm.Status) error

// Handle calls the function.
func (f HandlerFunc) Handle(ctx context.Context, ev *domain.RawEvent, status confirm.Status) error {
	return f(ctx, ev, status)
}

// Dispatcher routes events of one source to registered handlers,
// strictly sequentially: Dispatch is only ever called from the source's
// single pipeline lane, which preserves (block, log index) ordering.
// Handler errors are recorded and counted, never propagated; a single
// bad event must not stop ingestion.
type Dispatcher struct {
	source   domain.SourceID
	tracker  *confirm.Tracker
	handlers map[domain.EventName]Handler
	log      *slog.Logger

	// Read concurrently by the health monitor.
	lastEvent  atomic.Int64 // unix nanos
	errorCount atomic.Uint64
	unknown    atomic.Uint64
}

// NewDispatcher creates a dispatcher for one source.
func NewDispatcher(source domain.SourceID, tracker *confirm.Tracker) *Dispatcher {
	d := &Dispatcher{
		source:   source,
		tracker:  tracker,
		handlers: make(map[domain.EventName]Handler),
		log:      slog.Default().With("source", source),
	}
	d.lastEvent.Store(time.Now().UnixNano())
	return d
}

// Register binds a handler to an event name. Later registrations for the
// same name replace earlier ones.
func (d *Dispatcher) Register(name domain.EventName, h Handler) {
	d.handlers[name] = h
}

// Dispatch routes one event. The returned error is reserved for context
// cancellation; handler failures are swallowed after being recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *domain.RawEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h, ok := d.handlers[ev.Name]
	if !ok {
		d.unknown.Add(1)
		metrics.UnknownEvents.WithLabelValues(string(d.source)).Inc()
		d.log.Warn("no handler for event, skipping",
			"event", ev.Name, "block", ev.Block, "tx", ev.TxHash)
		return nil
	}

	status := d.tracker.Status(ev.Block)
	if err := d.invoke(ctx, h, ev, status); err != nil {
		d.errorCount.Add(1)
		metrics.HandlerErrors.WithLabelValues(string(d.source), string(ev.Name)).Inc()
		d.log.Error("handler failed, event skipped",
			"event", ev.Name, "todo", ev.TodoID, "block", ev.Block,
			"log_index", ev.LogIndex, "error", err)
		return nil
	}

	d.lastEvent.Store(time.Now().UnixNano())
	metrics.EventsProcessed.WithLabelValues(string(d.source), string(ev.Name)).Inc()
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, ev *domain.RawEvent, status confirm.Status) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, ev, status)
}

// LastEventAt returns when the last event was dispatched successfully.
func (d *Dispatcher) LastEventAt() time.Time {
	return time.Unix(0, d.lastEvent.Load())
}

// ErrorCount returns the number of handler failures recorded.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errorCount.Load()
}

// UnknownCount returns the number of events skipped for lack of a handler.
func (d *Dispatcher) UnknownCount() uint64 {
	return d.unknown.Load()
}
