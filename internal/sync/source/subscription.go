package source

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/todosync/internal/core/domain"
	"github.com/vietddude/todosync/internal/infra/rpc"
)

// lostAfter is how many consecutive poll failures turn into a
// connection-lost signal.
const lostAfter = 5

// Subscription is the explicit handle for one live event stream. The
// owner reads Events and Heads, watches Lost for a connection-lost
// signal, and must Close the handle before opening another one.
type Subscription struct {
	events chan *domain.RawEvent
	heads  chan uint64
	lost   chan error

	closeOnce sync.Once
	closed    chan struct{}
}

// Events delivers decoded events in (block, log index) order.
func (s *Subscription) Events() <-chan *domain.RawEvent { return s.events }

// Heads delivers observed head heights.
func (s *Subscription) Heads() <-chan uint64 { return s.heads }

// Lost signals that the stream cannot continue; the owner should close
// the handle and reconnect. At most one signal is delivered.
func (s *Subscription) Lost() <-chan error { return s.lost }

// Close disposes the subscription and stops its polling goroutine.
// Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Subscribe starts a polling subscription delivering events observed
// after fromBlock.
func (a *EVMAdapter) Subscribe(ctx context.Context, fromBlock uint64) (*Subscription, error) {
	sub := &Subscription{
		events: make(chan *domain.RawEvent, 256),
		heads:  make(chan uint64, 8),
		lost:   make(chan error, 1),
		closed: make(chan struct{}),
	}

	go a.pollLoop(ctx, sub, fromBlock)
	return sub, nil
}

func (a *EVMAdapter) pollLoop(ctx context.Context, sub *Subscription, fromBlock uint64) {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	last := fromBlock
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.closed:
			return
		case <-ticker.C:
		}

		head, err := a.HeadHeight(ctx)
		if err != nil {
			failures++
			if rpc.Classify(err) == rpc.CategoryUnavailable || failures >= lostAfter {
				sub.signalLost(err)
				return
			}
			a.log.Warn("head poll failed", "failures", failures, "error", err)
			continue
		}

		if !sub.deliverHead(ctx, head) {
			return
		}
		if head <= last {
			failures = 0
			continue
		}

		// Cap each tick's fetch to one range so a long outage does not
		// block the loop; the remainder is picked up next tick.
		to := min(head, last+a.cfg.MaxLogRange)
		events, err := a.LogsInRange(ctx, last+1, to)
		if err != nil {
			failures++
			if rpc.Classify(err) == rpc.CategoryUnavailable || failures >= lostAfter {
				sub.signalLost(err)
				return
			}
			a.log.Warn("log poll failed", "from", last+1, "to", to, "error", err)
			continue
		}

		failures = 0
		for _, ev := range events {
			if !sub.deliver(ctx, ev) {
				return
			}
		}
		last = to
	}
}

func (s *Subscription) deliver(ctx context.Context, ev *domain.RawEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.closed:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Subscription) deliverHead(ctx context.Context, head uint64) bool {
	// Head updates are advisory; drop when the owner is busy.
	select {
	case s.heads <- head:
	default:
	}
	select {
	case <-s.closed:
		return false
	case <-ctx.Done():
		return false
	default:
		return true
	}
}

func (s *Subscription) signalLost(err error) {
	select {
	case s.lost <- err:
	default:
	}
	slog.Debug("subscription lost", "error", err)
}
