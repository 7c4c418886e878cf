package rpc

import (
	"sync"
	"time"
)

// EndpointState is the health state of one upstream endpoint.
type EndpointState string

const (
	// EndpointHealthy: in rotation.
	EndpointHealthy EndpointState = "healthy"
	// EndpointCooling: demoted after consecutive failures; retried once
	// its cooldown window has elapsed.
	EndpointCooling EndpointState = "cooling_down"
	// EndpointUnhealthy: kept failing through cooldown probes; retried on
	// a much longer window.
	EndpointUnhealthy EndpointState = "unhealthy"
)

// unhealthyMultiplier scales the demotion threshold and the cooldown
// window for endpoints that keep failing through their probes.
const unhealthyMultiplier = 3

// Endpoint is one ranked upstream URL with its health bookkeeping.
type Endpoint struct {
	name   string
	rank   int
	caller Caller

	failThreshold int
	cooldown      time.Duration

	mu               sync.Mutex
	state            EndpointState
	consecutiveFails int
	lastFailure      time.Time
}

// EndpointStatus is a read-only snapshot for diagnostics.
type EndpointStatus struct {
	Name             string        `json:"name"`
	Rank             int           `json:"rank"`
	State            EndpointState `json:"state"`
	ConsecutiveFails int           `json:"consecutive_fails"`
	LastFailureAt    time.Time     `json:"last_failure_at,omitzero"`
}

// NewEndpoint wraps a caller with health tracking. failThreshold is the
// number of consecutive failures that demotes the endpoint; cooldown is
// how long it stays out of rotation before being probed again.
func NewEndpoint(name string, rank int, caller Caller, failThreshold int, cooldown time.Duration) *Endpoint {
	return &Endpoint{
		name:          name,
		rank:          rank,
		caller:        caller,
		failThreshold: failThreshold,
		cooldown:      cooldown,
		state:         EndpointHealthy,
	}
}

// Name returns the endpoint identifier.
func (e *Endpoint) Name() string { return e.name }

// Available reports whether the endpoint may serve a request now.
// A demoted endpoint becomes available again once its cooldown window
// has elapsed, so the next request acts as a probe.
func (e *Endpoint) Available(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case EndpointHealthy:
		return true
	case EndpointCooling:
		return now.Sub(e.lastFailure) >= e.cooldown
	case EndpointUnhealthy:
		return now.Sub(e.lastFailure) >= e.cooldown*unhealthyMultiplier
	}
	return false
}

// RecordSuccess restores the endpoint to healthy.
func (e *Endpoint) RecordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecutiveFails = 0
	e.state = EndpointHealthy
}

// RecordFailure increments the failure count and demotes the endpoint
// once the threshold is crossed. Returns the resulting state.
func (e *Endpoint) RecordFailure(now time.Time) EndpointState {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFails++
	e.lastFailure = now

	if e.consecutiveFails >= e.failThreshold*unhealthyMultiplier {
		e.state = EndpointUnhealthy
	} else if e.consecutiveFails >= e.failThreshold {
		e.state = EndpointCooling
	}
	return e.state
}

// Status returns a snapshot of the endpoint's health.
func (e *Endpoint) Status() EndpointStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EndpointStatus{
		Name:             e.name,
		Rank:             e.rank,
		State:            e.state,
		ConsecutiveFails: e.consecutiveFails,
		LastFailureAt:    e.lastFailure,
	}
}
