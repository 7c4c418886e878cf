package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/vietddude/todosync/internal/core/cursor"
	"github.com/vietddude/todosync/internal/core/domain"
	"github.com/vietddude/todosync/internal/infra/rpc"
	"github.com/vietddude/todosync/internal/infra/storage/memory"
	"github.com/vietddude/todosync/internal/sync/confirm"
	"github.com/vietddude/todosync/internal/sync/dispatch"
	"github.com/vietddude/todosync/internal/sync/project"
	"github.com/vietddude/todosync/internal/sync/recover"
	"github.com/vietddude/todosync/internal/sync/source"
)

type fakeCaller struct {
	fn func(method string) (json.RawMessage, error)
}

func (f *fakeCaller) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	return f.fn(method)
}

func newTestPipeline(t *testing.T, caller rpc.Caller) (*Pipeline, *memory.TodoRepo) {
	t.Helper()

	pool := rpc.NewPool("test", []*rpc.Endpoint{
		rpc.NewEndpoint("fake", 0, caller, 3, time.Minute),
	})
	adapter := source.NewEVMAdapter(source.Config{
		SourceID:     "test",
		Contract:     "0x5fbdb2315678afecb367f032d93f642f64180aa3",
		MaxLogRange:  100,
		PollInterval: 5 * time.Millisecond,
	}, pool, source.DefaultSchema())

	todoRepo := memory.NewTodoRepo()
	cursorRepo := memory.NewCursorRepo()
	if err := cursorRepo.Save(context.Background(), &domain.Cursor{SourceID: "test", Block: 100}); err != nil {
		t.Fatal(err)
	}

	cursors := cursor.NewManager(cursorRepo)
	tracker := confirm.NewTracker(12)
	dispatcher := dispatch.NewDispatcher("test", tracker)
	projector := project.NewProjector("test", todoRepo, tracker)
	projector.Register(dispatcher)
	scanner := recover.NewScanner("test", adapter, cursors, dispatcher, tracker, 100, 0, 100)

	return New("test", adapter, scanner, dispatcher, projector, tracker, cursors), todoRepo
}

func TestPipelineStopsCleanly(t *testing.T) {
	caller := &fakeCaller{fn: func(method string) (json.RawMessage, error) {
		switch method {
		case "eth_blockNumber":
			return json.RawMessage(`"0x64"`), nil
		case "eth_getLogs":
			return json.RawMessage(`[]`), nil
		}
		return json.RawMessage(`null`), nil
	}}

	p, _ := newTestPipeline(t, caller)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	time.Sleep(30 * time.Millisecond)
	p.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v on Stop, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop within a second")
	}
}

func TestPipelineStopsOnContextCancel(t *testing.T) {
	caller := &fakeCaller{fn: func(method string) (json.RawMessage, error) {
		switch method {
		case "eth_blockNumber":
			return json.RawMessage(`"0x64"`), nil
		case "eth_getLogs":
			return json.RawMessage(`[]`), nil
		}
		return json.RawMessage(`null`), nil
	}}

	p, _ := newTestPipeline(t, caller)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v on cancel, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop within a second")
	}
}
