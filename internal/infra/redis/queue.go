// Package redis holds the Redis-backed reconcile queue. Jobs survive a
// process restart and can be pushed from any replica.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/todosync/internal/core/domain"
)

// Config holds the Redis connection settings.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Client wraps the shared Redis connection.
type Client struct {
	rdb *redis.Client
}

// NewClient connects and pings.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ReconcileJob is one queued single-entity rebuild request.
type ReconcileJob struct {
	ID         string          `json:"id"`
	Source     domain.SourceID `json:"source"`
	TodoID     uint64          `json:"todo_id"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// ReconcileQueue is a per-source list of reconcile jobs.
type ReconcileQueue struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewReconcileQueue creates the queue on an existing client.
func NewReconcileQueue(c *Client) *ReconcileQueue {
	return &ReconcileQueue{
		rdb: c.rdb,
		log: slog.Default().With("component", "reconcile-queue"),
	}
}

func queueKey(source domain.SourceID) string {
	return fmt.Sprintf("todosync:reconcile:%s", source)
}

// Push enqueues one job and returns its id.
func (q *ReconcileQueue) Push(ctx context.Context, source domain.SourceID, todoID uint64) (string, error) {
	job := ReconcileJob{
		ID:         uuid.NewString(),
		Source:     source,
		TodoID:     todoID,
		EnqueuedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal reconcile job: %w", err)
	}
	if err := q.rdb.LPush(ctx, queueKey(source), payload).Err(); err != nil {
		return "", fmt.Errorf("enqueue reconcile job: %w", err)
	}

	q.log.Info("reconcile job queued", "job", job.ID, "source", source, "todo", todoID)
	return job.ID, nil
}

// Pop blocks up to timeout for the next job across the given sources.
// Returns (nil, nil) when the wait times out.
func (q *ReconcileQueue) Pop(ctx context.Context, sources []domain.SourceID, timeout time.Duration) (*ReconcileJob, error) {
	keys := make([]string, 0, len(sources))
	for _, s := range sources {
		keys = append(keys, queueKey(s))
	}

	res, err := q.rdb.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue reconcile job: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected brpop reply of %d parts", len(res))
	}

	var job ReconcileJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode reconcile job: %w", err)
	}
	return &job, nil
}
