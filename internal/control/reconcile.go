package control

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/todosync/internal/core/domain"
	redisclient "github.com/vietddude/todosync/internal/infra/redis"
	"github.com/vietddude/todosync/internal/sync/metrics"
)

// ReconcileWorker drains the Redis reconcile queue and rebuilds the
// requested entities through their source's projector.
type ReconcileWorker struct {
	queue       *redisclient.ReconcileQueue
	lanes       map[domain.SourceID]*lane
	concurrency int
	log         *slog.Logger
}

// NewReconcileWorker creates a worker over the shared lanes.
func NewReconcileWorker(queue *redisclient.ReconcileQueue, lanes map[domain.SourceID]*lane, concurrency int) *ReconcileWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ReconcileWorker{
		queue:       queue,
		lanes:       lanes,
		concurrency: concurrency,
		log:         slog.Default().With("component", "reconcile-worker"),
	}
}

// Run blocks, popping jobs until the context ends. Jobs run on a bounded
// group so a burst of requests cannot flood the RPC pool.
func (w *ReconcileWorker) Run(ctx context.Context) error {
	sources := make([]domain.SourceID, 0, len(w.lanes))
	for id := range w.lanes {
		sources = append(sources, id)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for {
		if gctx.Err() != nil {
			break
		}

		job, err := w.queue.Pop(gctx, sources, 5*time.Second)
		if err != nil {
			if gctx.Err() != nil {
				break
			}
			w.log.Error("queue pop failed", "error", err)
			select {
			case <-gctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}

		g.Go(func() error {
			w.process(gctx, job)
			return nil
		})
	}

	return g.Wait()
}

func (w *ReconcileWorker) process(ctx context.Context, job *redisclient.ReconcileJob) {
	l, ok := w.lanes[job.Source]
	if !ok {
		w.log.Warn("reconcile job for unknown source dropped", "job", job.ID, "source", job.Source)
		metrics.ReconcileJobs.WithLabelValues(string(job.Source), "unknown_source").Inc()
		return
	}

	if err := l.projector.Reconcile(ctx, l.adapter, job.TodoID); err != nil {
		w.log.Error("reconcile failed", "job", job.ID, "source", job.Source, "todo", job.TodoID, "error", err)
		metrics.ReconcileJobs.WithLabelValues(string(job.Source), "failed").Inc()
	}
}
