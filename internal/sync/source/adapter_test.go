package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/todosync/internal/core/domain"
	"github.com/vietddude/todosync/internal/infra/rpc"
)

type fakeCaller struct {
	fn func(method string, params []any) (json.RawMessage, error)
}

func (f *fakeCaller) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	return f.fn(method, params)
}

func newTestAdapter(caller rpc.Caller, maxRange uint64, poll time.Duration) *EVMAdapter {
	pool := rpc.NewPool("test", []*rpc.Endpoint{
		rpc.NewEndpoint("fake", 0, caller, 3, time.Minute),
	})
	return NewEVMAdapter(Config{
		SourceID:     "test",
		Contract:     "0x5fbdb2315678afecb367f032d93f642f64180aa3",
		MaxLogRange:  maxRange,
		PollInterval: poll,
	}, pool, DefaultSchema())
}

func filterRange(params []any) (uint64, uint64) {
	filter := params[0].(map[string]any)
	from, _ := strconv.ParseUint(strings.TrimPrefix(filter["fromBlock"].(string), "0x"), 16, 64)
	to, _ := strconv.ParseUint(strings.TrimPrefix(filter["toBlock"].(string), "0x"), 16, 64)
	return from, to
}

func logAt(block uint64) LogEntry {
	return LogEntry{
		Topics:      []string{TopicTodoCompleted, idTopic(9)},
		Data:        "0x",
		BlockNumber: fmt.Sprintf("0x%x", block),
		LogIndex:    "0x0",
	}
}

func TestHeadHeight(t *testing.T) {
	a := newTestAdapter(&fakeCaller{fn: func(method string, _ []any) (json.RawMessage, error) {
		if method != "eth_blockNumber" {
			t.Errorf("unexpected method %s", method)
		}
		return json.RawMessage(`"0x1b4"`), nil
	}}, 100, time.Second)

	head, err := a.HeadHeight(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if head != 436 {
		t.Errorf("HeadHeight = %d, want 436", head)
	}
}

func TestLogsInRangeSplitsOnProviderLimit(t *testing.T) {
	var served []struct{ from, to uint64 }

	caller := &fakeCaller{fn: func(method string, params []any) (json.RawMessage, error) {
		from, to := filterRange(params)
		// The provider's real cap is 4 blocks, tighter than configured.
		if to-from+1 > 4 {
			return nil, &rpc.RPCError{Code: -32005, Message: "query returned more than 10000 results"}
		}
		served = append(served, struct{ from, to uint64 }{from, to})

		var logs []LogEntry
		if from <= 10 && 10 <= to {
			logs = append(logs, logAt(10))
		}
		return json.Marshal(logs)
	}}

	a := newTestAdapter(caller, 16, time.Second)
	events, err := a.LogsInRange(context.Background(), 1, 16)
	if err != nil {
		t.Fatal(err)
	}

	if len(events) != 1 || events[0].Block != 10 || events[0].TodoID != 9 {
		t.Fatalf("events = %+v, want one event at block 10", events)
	}

	// The served chunks must respect the discovered cap and cover the
	// range exactly once.
	covered := make(map[uint64]int)
	for _, r := range served {
		if r.to-r.from+1 > 4 {
			t.Errorf("served chunk [%d, %d] wider than provider cap", r.from, r.to)
		}
		for b := r.from; b <= r.to; b++ {
			covered[b]++
		}
	}
	for b := uint64(1); b <= 16; b++ {
		if covered[b] != 1 {
			t.Errorf("block %d covered %d times, want exactly once", b, covered[b])
		}
	}
}

func TestLogsInRangeSkipsRemovedAndMalformed(t *testing.T) {
	caller := &fakeCaller{fn: func(method string, params []any) (json.RawMessage, error) {
		logs := []LogEntry{
			logAt(5),
			{Topics: []string{TopicTodoDeleted, idTopic(9)}, BlockNumber: "0x6", LogIndex: "0x0", Removed: true},
			{Topics: []string{TopicTodoUpdated, idTopic(9)}, Data: "0xzz", BlockNumber: "0x7", LogIndex: "0x0"},
		}
		return json.Marshal(logs)
	}}

	a := newTestAdapter(caller, 100, time.Second)
	events, err := a.LogsInRange(context.Background(), 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Block != 5 {
		t.Errorf("events = %+v, want only the valid log at block 5", events)
	}
}

func TestSubscribeDeliversNewEvents(t *testing.T) {
	caller := &fakeCaller{fn: func(method string, params []any) (json.RawMessage, error) {
		switch method {
		case "eth_blockNumber":
			return json.RawMessage(`"0x65"`), nil // head 101
		case "eth_getLogs":
			from, to := filterRange(params)
			var logs []LogEntry
			if from <= 101 && 101 <= to {
				logs = append(logs, logAt(101))
			}
			return json.Marshal(logs)
		}
		return nil, fmt.Errorf("unexpected method %s", method)
	}}

	a := newTestAdapter(caller, 100, 5*time.Millisecond)
	sub, err := a.Subscribe(context.Background(), 100)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	select {
	case ev := <-sub.Events():
		if ev.Block != 101 || ev.Name != domain.EventTodoCompleted {
			t.Errorf("got %+v, want TodoCompleted at 101", ev)
		}
	case err := <-sub.Lost():
		t.Fatalf("subscription lost: %v", err)
	case <-time.After(time.Second):
		t.Fatal("no event within a second")
	}
}

func TestSubscribeSignalsLostWhenSourceDies(t *testing.T) {
	caller := &fakeCaller{fn: func(method string, params []any) (json.RawMessage, error) {
		return nil, &rpc.RPCError{Code: -32000, Message: "connection reset"}
	}}

	a := newTestAdapter(caller, 100, time.Millisecond)
	sub, err := a.Subscribe(context.Background(), 100)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	select {
	case <-sub.Lost():
	case <-time.After(time.Second):
		t.Fatal("no lost signal within a second")
	}
}
