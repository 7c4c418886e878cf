package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryTransient},
		{"source unavailable", ErrSourceUnavailable, CategoryUnavailable},
		{"wrapped unavailable", fmt.Errorf("do: %w", ErrSourceUnavailable), CategoryUnavailable},
		{"malformed", &MalformedError{Reason: "no topics"}, CategoryMalformed},
		{"deadline", context.DeadlineExceeded, CategoryTransient},
		{"net timeout", timeoutErr{}, CategoryTransient},
		{"plain error", errors.New("connection refused"), CategoryTransient},

		{"invalid params", &RPCError{Code: -32602, Message: "invalid params"}, CategoryFatal},
		{"method not found", &RPCError{Code: -32601, Message: "method not found"}, CategoryFatal},
		{"parse error", &RPCError{Code: -32700, Message: "parse error"}, CategoryFatal},
		{"server error", &RPCError{Code: -32000, Message: "execution aborted"}, CategoryTransient},

		{"infura range", &RPCError{Code: -32005, Message: "query returned more than 10000 results"}, CategoryRangeLimit},
		{"alchemy range", &RPCError{Code: -32000, Message: "you can make eth_getLogs requests with up to a 2k block range"}, CategoryRangeLimit},
		{"bsc range", &RPCError{Code: -32000, Message: "exceed maximum block range: 5000"}, CategoryRangeLimit},
		{"generic range", &RPCError{Code: -32000, Message: "eth_getLogs block range too large, max is 2048"}, CategoryRangeLimit},
		{"rate limit -32005", &RPCError{Code: -32005, Message: "daily request count exceeded"}, CategoryTransient},
		{"wrapped rpc error", fmt.Errorf("eth_getLogs: %w", &RPCError{Code: -32000, Message: "too many results"}), CategoryRangeLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestEndpointCooldownCycle(t *testing.T) {
	ep := NewEndpoint("primary", 0, nil, 3, time.Minute)
	now := time.Now()

	if !ep.Available(now) {
		t.Fatal("fresh endpoint not available")
	}

	ep.RecordFailure(now)
	ep.RecordFailure(now)
	if !ep.Available(now) {
		t.Fatal("endpoint demoted before threshold")
	}

	if state := ep.RecordFailure(now); state != EndpointCooling {
		t.Fatalf("state = %v at threshold, want cooling_down", state)
	}
	if ep.Available(now) {
		t.Error("cooling endpoint still available")
	}
	if !ep.Available(now.Add(2 * time.Minute)) {
		t.Error("endpoint not probed after cooldown elapsed")
	}

	ep.RecordSuccess()
	if st := ep.Status(); st.State != EndpointHealthy || st.ConsecutiveFails != 0 {
		t.Errorf("status after success = %+v, want healthy/0", st)
	}
}
