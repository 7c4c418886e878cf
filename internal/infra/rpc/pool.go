package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/vietddude/todosync/internal/core/domain"
	"github.com/vietddude/todosync/internal/sync/metrics"
)

// Pool routes requests for one source across its ranked endpoints.
// The primary (lowest rank) is always preferred; a request that fails
// there falls through to the next available endpoint, and endpoints that
// keep failing are demoted out of rotation for a cooldown window.
type Pool struct {
	source    domain.SourceID
	endpoints []*Endpoint // sorted by rank
	log       *slog.Logger
}

// NewPool creates a failover pool from ranked endpoints.
func NewPool(source domain.SourceID, endpoints []*Endpoint) *Pool {
	sorted := make([]*Endpoint, len(endpoints))
	copy(sorted, endpoints)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].rank < sorted[j].rank })

	return &Pool{
		source:    source,
		endpoints: sorted,
		log:       slog.Default().With("source", source),
	}
}

// Do executes a JSON-RPC call against the best available endpoint,
// failing over down the ranking. Range-limit and fatal errors are
// returned to the caller untouched: they are properties of the request,
// not of the endpoint, and must not poison endpoint health.
func (p *Pool) Do(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	now := time.Now()
	tried := 0

	for _, ep := range p.endpoints {
		if !ep.Available(now) {
			continue
		}
		tried++

		result, err := ep.caller.Call(ctx, method, params)
		if err == nil {
			ep.RecordSuccess()
			return result, nil
		}

		switch Classify(err) {
		case CategoryRangeLimit, CategoryFatal:
			ep.RecordSuccess()
			return nil, err
		}

		state := ep.RecordFailure(now)
		metrics.EndpointFailures.WithLabelValues(string(p.source), ep.Name()).Inc()
		p.log.Warn("endpoint call failed",
			"endpoint", ep.Name(), "method", method, "state", state, "error", err)
		if state != EndpointHealthy {
			p.log.Info("endpoint demoted", "endpoint", ep.Name(), "state", state)
			metrics.EndpointDemotions.WithLabelValues(string(p.source), ep.Name()).Inc()
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if tried == 0 {
		p.log.Error("no endpoint available", "method", method)
	}
	return nil, ErrSourceUnavailable
}

// Current returns the name of the endpoint the next request would use,
// or "" when none is available.
func (p *Pool) Current() string {
	now := time.Now()
	for _, ep := range p.endpoints {
		if ep.Available(now) {
			return ep.Name()
		}
	}
	return ""
}

// Snapshot returns the health of every endpoint, in rank order.
func (p *Pool) Snapshot() []EndpointStatus {
	statuses := make([]EndpointStatus, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		statuses = append(statuses, ep.Status())
	}
	return statuses
}
