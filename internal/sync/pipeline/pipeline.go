// Package pipeline runs one source's ingestion lane: recover the gap,
// subscribe live, and reconnect with backoff when the stream is lost.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/todosync/internal/core/cursor"
	"github.com/vietddude/todosync/internal/core/domain"
	"github.com/vietddude/todosync/internal/sync/confirm"
	"github.com/vietddude/todosync/internal/sync/dispatch"
	"github.com/vietddude/todosync/internal/sync/metrics"
	"github.com/vietddude/todosync/internal/sync/project"
	"github.com/vietddude/todosync/internal/sync/recover"
	"github.com/vietddude/todosync/internal/sync/source"
)

var errBounced = errors.New("reconnect requested")

// Pipeline drives one source. All event processing happens on the
// pipeline's single goroutine, which keeps (block, log index) order.
type Pipeline struct {
	source     domain.SourceID
	adapter    *source.EVMAdapter
	scanner    *recover.Scanner
	dispatcher *dispatch.Dispatcher
	projector  *project.Projector
	tracker    *confirm.Tracker
	cursors    *cursor.Manager
	log        *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	bounce   chan struct{}
}

// New creates a pipeline for one source.
func New(
	src domain.SourceID,
	adapter *source.EVMAdapter,
	scanner *recover.Scanner,
	dispatcher *dispatch.Dispatcher,
	projector *project.Projector,
	tracker *confirm.Tracker,
	cursors *cursor.Manager,
) *Pipeline {
	return &Pipeline{
		source:     src,
		adapter:    adapter,
		scanner:    scanner,
		dispatcher: dispatcher,
		projector:  projector,
		tracker:    tracker,
		cursors:    cursors,
		log:        slog.Default().With("source", src),
		stop:       make(chan struct{}),
		bounce:     make(chan struct{}, 1),
	}
}

func newBackoff() retry.Backoff {
	b := retry.NewExponential(time.Second)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(30*time.Second, b)
	return b
}

// Run blocks until Stop is called or the context ends. Stream loss and
// scan failures reconnect with jittered exponential backoff; a run that
// stayed up for a while resets the backoff.
func (p *Pipeline) Run(ctx context.Context) error {
	backoff := newBackoff()

	for {
		started := time.Now()
		err := p.runOnce(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reason := "stream_lost"
		if errors.Is(err, errBounced) {
			reason = "forced"
		}
		metrics.Reconnects.WithLabelValues(string(p.source), reason).Inc()

		if time.Since(started) > time.Minute || errors.Is(err, errBounced) {
			backoff = newBackoff()
		}
		delay, _ := backoff.Next()
		p.log.Warn("pipeline interrupted, reconnecting",
			"reason", reason, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		case <-time.After(delay):
		}
	}
}

func (p *Pipeline) runOnce(ctx context.Context) error {
	last, err := p.scanner.Run(ctx)
	if err != nil {
		return fmt.Errorf("gap recovery: %w", err)
	}

	sub, err := p.adapter.Subscribe(ctx, last)
	if err != nil {
		return fmt.Errorf("subscribe from %d: %w", last, err)
	}
	defer sub.Close()

	p.log.Info("live", "from_block", last)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		case <-p.bounce:
			return errBounced

		case ev := <-sub.Events():
			if err := p.dispatcher.Dispatch(ctx, ev); err != nil {
				return err
			}
			if err := p.cursors.Advance(ctx, p.source, ev.Block, ev.LogIndex); err != nil {
				p.log.Error("cursor advance failed", "block", ev.Block, "error", err)
			}

		case head := <-sub.Heads():
			p.tracker.Observe(head)
			metrics.HeadHeight.WithLabelValues(string(p.source)).Set(float64(head))
			if err := p.projector.ConfirmSweep(ctx); err != nil {
				p.log.Error("confirm sweep failed", "head", head, "error", err)
			}

		case err := <-sub.Lost():
			return fmt.Errorf("subscription lost: %w", err)
		}
	}
}

// Bounce forces the pipeline to drop its subscription and reconnect.
// Used by the health monitor on stall detection.
func (p *Pipeline) Bounce() {
	select {
	case p.bounce <- struct{}{}:
	default:
	}
}

// Stop shuts the pipeline down. Safe to call more than once.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}
