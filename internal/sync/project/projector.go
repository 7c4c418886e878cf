// Package project applies decoded events to the cache rows. Every apply
// is an upsert keyed by (source id, todo id), idempotent under replay
// and tolerant of out-of-order delivery.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/todosync/internal/core/domain"
	"github.com/vietddude/todosync/internal/infra/storage"
	"github.com/vietddude/todosync/internal/sync/confirm"
	"github.com/vietddude/todosync/internal/sync/dispatch"
	"github.com/vietddude/todosync/internal/sync/metrics"
)

// Projector owns the cache rows of one source.
type Projector struct {
	source  domain.SourceID
	todos   storage.TodoRepository
	tracker *confirm.Tracker
	log     *slog.Logger
}

// NewProjector creates a projector for one source.
func NewProjector(source domain.SourceID, todos storage.TodoRepository, tracker *confirm.Tracker) *Projector {
	return &Projector{
		source:  source,
		todos:   todos,
		tracker: tracker,
		log:     slog.Default().With("source", source),
	}
}

// Register binds the projector to every event kind on the dispatcher.
func (p *Projector) Register(d *dispatch.Dispatcher) {
	h := dispatch.HandlerFunc(p.handle)
	for _, name := range []domain.EventName{
		domain.EventTodoCreated,
		domain.EventTodoUpdated,
		domain.EventTodoCompleted,
		domain.EventTodoDeleted,
		domain.EventTodoRestored,
	} {
		d.Register(name, h)
	}
}

func (p *Projector) handle(ctx context.Context, ev *domain.RawEvent, status confirm.Status) error {
	t, err := p.todos.Get(ctx, p.source, ev.TodoID)
	if err != nil {
		return fmt.Errorf("load todo %d: %w", ev.TodoID, err)
	}

	fresh := t == nil
	if fresh {
		// An event can precede the creation row under out-of-order
		// delivery; start from an empty row and let apply fill it.
		t = &domain.Todo{
			SourceID:  p.source,
			TodoID:    ev.TodoID,
			CreatedAt: time.Now(),
		}
	}

	changed, err := apply(t, ev, time.Now())
	if errors.Is(err, ErrIllegalTransition) {
		p.log.Warn("rejected illegal transition",
			"event", ev.Name, "todo", ev.TodoID, "block", ev.Block, "deleted", t.Deleted)
		return nil
	}
	if err != nil {
		return err
	}
	if !changed && !fresh {
		p.log.Debug("duplicate or stale event, no-op",
			"event", ev.Name, "todo", ev.TodoID, "block", ev.Block, "log_index", ev.LogIndex)
		return nil
	}

	t.SyncStatus = statusFor(status)
	t.LastSyncedAt = time.Now()

	if err := p.todos.Upsert(ctx, t); err != nil {
		return fmt.Errorf("upsert todo %d: %w", ev.TodoID, err)
	}
	return nil
}

func statusFor(s confirm.Status) domain.SyncStatus {
	if s == confirm.StatusConfirmed {
		return domain.SyncSynced
	}
	return domain.SyncPending
}

// ConfirmSweep flips pending rows whose last event has reached the
// confirmation depth to synced. Called whenever the head advances.
func (p *Projector) ConfirmSweep(ctx context.Context) error {
	boundary, ok := p.tracker.ConfirmedBoundary()
	if !ok {
		return nil
	}

	n, err := p.todos.MarkSyncedBelow(ctx, p.source, boundary)
	if err != nil {
		return fmt.Errorf("confirm sweep: %w", err)
	}
	if n > 0 {
		p.log.Debug("confirmed rows", "count", n, "boundary", boundary)
	}
	return nil
}

// MarkError flags one row for reconciliation, used on reorg suspicion.
func (p *Projector) MarkError(ctx context.Context, todoID uint64) error {
	return p.todos.SetSyncStatus(ctx, p.source, todoID, domain.SyncError)
}

// EventFetcher is the slice of the source adapter reconciliation needs.
type EventFetcher interface {
	HeadHeight(ctx context.Context) (uint64, error)
	LogsForTodo(ctx context.Context, todoID uint64, from, to uint64) ([]*domain.RawEvent, error)
}

// Reconcile rebuilds one entity's row by re-fetching and replaying its
// events. Triggered on demand by the API layer when a row sits in
// sync_status = error.
func (p *Projector) Reconcile(ctx context.Context, fetcher EventFetcher, todoID uint64) error {
	head, err := fetcher.HeadHeight(ctx)
	if err != nil {
		return fmt.Errorf("reconcile %d: head: %w", todoID, err)
	}
	p.tracker.Observe(head)

	events, err := fetcher.LogsForTodo(ctx, todoID, 0, head)
	if err != nil {
		return fmt.Errorf("reconcile %d: fetch: %w", todoID, err)
	}

	existing, err := p.todos.Get(ctx, p.source, todoID)
	if err != nil {
		return fmt.Errorf("reconcile %d: load: %w", todoID, err)
	}

	if len(events) == 0 {
		// The chain has no trace of this entity: leave the row flagged
		// rather than guessing.
		if existing != nil {
			p.log.Warn("reconcile found no events for entity, keeping error flag", "todo", todoID)
			metrics.ReconcileJobs.WithLabelValues(string(p.source), "no_events").Inc()
			return p.todos.SetSyncStatus(ctx, p.source, todoID, domain.SyncError)
		}
		return nil
	}

	rebuilt := &domain.Todo{
		SourceID:  p.source,
		TodoID:    todoID,
		CreatedAt: time.Now(),
	}
	if existing != nil {
		rebuilt.CreatedAt = existing.CreatedAt
	}

	now := time.Now()
	for _, ev := range events {
		if _, err := apply(rebuilt, ev, now); err != nil && !errors.Is(err, ErrIllegalTransition) {
			return fmt.Errorf("reconcile %d: apply: %w", todoID, err)
		}
	}

	rebuilt.SyncStatus = statusFor(confirm.At(rebuilt.LastPos.Block, head, p.tracker.Depth()))
	rebuilt.LastSyncedAt = now

	if err := p.todos.Upsert(ctx, rebuilt); err != nil {
		return fmt.Errorf("reconcile %d: upsert: %w", todoID, err)
	}

	metrics.ReconcileJobs.WithLabelValues(string(p.source), "rebuilt").Inc()
	p.log.Info("reconciled entity", "todo", todoID, "events", len(events), "status", rebuilt.SyncStatus)
	return nil
}
