package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vietddude/todosync/internal/core/domain"
	"github.com/vietddude/todosync/internal/infra/rpc"
	"github.com/vietddude/todosync/internal/sync/metrics"
)

// Adapter exposes one source's event log: current head height, historical
// logs by range, and a live subscription. All failure handling below this
// interface is endpoint failover; callers see ErrSourceUnavailable only
// when every endpoint is down.
type Adapter interface {
	// HeadHeight returns the current head height of the source.
	HeadHeight(ctx context.Context) (uint64, error)

	// LogsInRange returns decoded events in [from, to], ascending by
	// (block, log index). Ranges wider than the source's cap are split
	// internally; provider range-limit errors trigger a further split.
	LogsInRange(ctx context.Context, from, to uint64) ([]*domain.RawEvent, error)

	// LogsForTodo returns every event of one entity in [from, to],
	// ascending. Used by single-entity reconciliation.
	LogsForTodo(ctx context.Context, todoID uint64, from, to uint64) ([]*domain.RawEvent, error)

	// Subscribe starts delivering events observed after fromBlock on an
	// explicit handle. The handle must be closed before resubscribing.
	Subscribe(ctx context.Context, fromBlock uint64) (*Subscription, error)
}

// Config holds the per-source adapter settings.
type Config struct {
	SourceID     domain.SourceID
	Contract     string
	MaxLogRange  uint64
	PollInterval time.Duration
}

// EVMAdapter implements Adapter over a JSON-RPC endpoint pool.
type EVMAdapter struct {
	cfg    Config
	pool   *rpc.Pool
	schema Schema
	log    *slog.Logger
}

// NewEVMAdapter creates an adapter for one EVM source.
func NewEVMAdapter(cfg Config, pool *rpc.Pool, schema Schema) *EVMAdapter {
	if cfg.MaxLogRange == 0 {
		cfg.MaxLogRange = 1000
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return &EVMAdapter{
		cfg:    cfg,
		pool:   pool,
		schema: schema,
		log:    slog.Default().With("source", cfg.SourceID),
	}
}

// HeadHeight returns the current head height.
func (a *EVMAdapter) HeadHeight(ctx context.Context) (uint64, error) {
	result, err := a.pool.Do(ctx, "eth_blockNumber", []any{})
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}

	var blockHex string
	if err := json.Unmarshal(result, &blockHex); err != nil {
		return 0, fmt.Errorf("invalid block number response: %w", err)
	}
	return parseHexUint64(blockHex)
}

// LogsInRange fetches and decodes contract events in [from, to].
func (a *EVMAdapter) LogsInRange(ctx context.Context, from, to uint64) ([]*domain.RawEvent, error) {
	return a.fetchRange(ctx, from, to, nil)
}

// LogsForTodo fetches one entity's events in [from, to], filtered
// upstream by the id topic.
func (a *EVMAdapter) LogsForTodo(ctx context.Context, todoID uint64, from, to uint64) ([]*domain.RawEvent, error) {
	idTopic := fmt.Sprintf("0x%064x", todoID)
	return a.fetchRange(ctx, from, to, []any{a.schema.Topics(), []string{idTopic}})
}

// fetchRange splits [from, to] by the configured cap, then splits further
// when a provider rejects a chunk with a range-limit error. Chunks are
// fetched in ascending order so decoded events stay ordered.
func (a *EVMAdapter) fetchRange(ctx context.Context, from, to uint64, topics []any) ([]*domain.RawEvent, error) {
	if from > to {
		return nil, nil
	}

	var events []*domain.RawEvent
	for start := from; start <= to; {
		end := min(start+a.cfg.MaxLogRange-1, to)

		chunk, err := a.fetchChunk(ctx, start, end, topics)
		if err != nil {
			return nil, err
		}
		events = append(events, chunk...)
		start = end + 1
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Position().Before(events[j].Position())
	})
	return events, nil
}

func (a *EVMAdapter) fetchChunk(ctx context.Context, from, to uint64, topics []any) ([]*domain.RawEvent, error) {
	if topics == nil {
		topics = []any{a.schema.Topics()}
	}
	filter := map[string]any{
		"fromBlock": fmt.Sprintf("0x%x", from),
		"toBlock":   fmt.Sprintf("0x%x", to),
		"address":   a.cfg.Contract,
		"topics":    topics,
	}

	result, err := a.pool.Do(ctx, "eth_getLogs", []any{filter})
	if err != nil {
		if rpc.Classify(err) == rpc.CategoryRangeLimit && from < to {
			// Provider cap is tighter than configured: halve and retry.
			mid := from + (to-from)/2
			a.log.Debug("range limit hit, splitting", "from", from, "to", to, "mid", mid)

			left, err := a.fetchChunk(ctx, from, mid, topics)
			if err != nil {
				return nil, err
			}
			right, err := a.fetchChunk(ctx, mid+1, to, topics)
			if err != nil {
				return nil, err
			}
			return append(left, right...), nil
		}
		return nil, fmt.Errorf("eth_getLogs [%d, %d] failed: %w", from, to, err)
	}

	var entries []LogEntry
	if err := json.Unmarshal(result, &entries); err != nil {
		return nil, fmt.Errorf("invalid getLogs response: %w", err)
	}

	events := make([]*domain.RawEvent, 0, len(entries))
	for _, entry := range entries {
		if entry.Removed {
			continue
		}
		ev, err := a.schema.Decode(a.cfg.SourceID, entry)
		if err != nil {
			// Malformed payloads are never fatal: log, count, skip.
			a.log.Warn("skipping undecodable log",
				"block", entry.BlockNumber, "tx", entry.TxHash, "error", err)
			metrics.MalformedEvents.WithLabelValues(string(a.cfg.SourceID)).Inc()
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Snapshot exposes endpoint health for diagnostics.
func (a *EVMAdapter) Snapshot() []rpc.EndpointStatus {
	return a.pool.Snapshot()
}

// CurrentEndpoint returns the endpoint the next request would use.
func (a *EVMAdapter) CurrentEndpoint() string {
	return a.pool.Current()
}
