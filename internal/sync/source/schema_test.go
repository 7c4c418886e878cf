package source

import (
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/vietddude/todosync/internal/core/domain"
	"github.com/vietddude/todosync/internal/infra/rpc"
)

func idTopic(id uint64) string {
	return fmt.Sprintf("0x%064x", id)
}

func ownerTopic(addr string) string {
	return "0x000000000000000000000000" + addr
}

// abiString encodes one dynamic string parameter: offset, length, bytes.
func abiString(s string) string {
	padded := []byte(s)
	for len(padded)%32 != 0 {
		padded = append(padded, 0)
	}
	return fmt.Sprintf("0x%064x%064x%s", 32, len(s), hex.EncodeToString(padded))
}

func TestDecodeCreated(t *testing.T) {
	schema := DefaultSchema()

	ev, err := schema.Decode("test", LogEntry{
		Topics:      []string{TopicTodoCreated, idTopic(7), ownerTopic("a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")},
		Data:        abiString("buy milk"),
		BlockNumber: "0x64",
		TxHash:      "0xdeadbeef",
		LogIndex:    "0x2",
	})
	if err != nil {
		t.Fatal(err)
	}

	if ev.Name != domain.EventTodoCreated {
		t.Errorf("Name = %v", ev.Name)
	}
	if ev.TodoID != 7 || ev.Block != 100 || ev.LogIndex != 2 {
		t.Errorf("ids = (%d, %d, %d), want (7, 100, 2)", ev.TodoID, ev.Block, ev.LogIndex)
	}
	if ev.Owner != "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48" {
		t.Errorf("Owner = %q", ev.Owner)
	}
	if ev.Content != "buy milk" {
		t.Errorf("Content = %q, want %q", ev.Content, "buy milk")
	}
}

func TestDecodeUpdated(t *testing.T) {
	ev, err := DefaultSchema().Decode("test", LogEntry{
		Topics:      []string{TopicTodoUpdated, idTopic(7)},
		Data:        abiString("buy oat milk instead"),
		BlockNumber: "0x69",
		LogIndex:    "0x0",
	})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Name != domain.EventTodoUpdated || ev.Content != "buy oat milk instead" {
		t.Errorf("decoded %v %q", ev.Name, ev.Content)
	}
}

func TestDecodeArgumentlessEvents(t *testing.T) {
	for topic, want := range map[string]domain.EventName{
		TopicTodoCompleted: domain.EventTodoCompleted,
		TopicTodoDeleted:   domain.EventTodoDeleted,
		TopicTodoRestored:  domain.EventTodoRestored,
	} {
		ev, err := DefaultSchema().Decode("test", LogEntry{
			Topics:      []string{topic, idTopic(42)},
			Data:        "0x",
			BlockNumber: "0x100",
			LogIndex:    "0x1",
		})
		if err != nil {
			t.Fatalf("%s: %v", want, err)
		}
		if ev.Name != want || ev.TodoID != 42 {
			t.Errorf("decoded %v id=%d, want %v id=42", ev.Name, ev.TodoID, want)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		lg   LogEntry
	}{
		{"no topics", LogEntry{BlockNumber: "0x64", LogIndex: "0x0"}},
		{"unknown topic0", LogEntry{
			Topics:      []string{"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"},
			BlockNumber: "0x64", LogIndex: "0x0",
		}},
		{"missing id topic", LogEntry{
			Topics:      []string{TopicTodoCompleted},
			BlockNumber: "0x64", LogIndex: "0x0",
		}},
		{"created without owner", LogEntry{
			Topics:      []string{TopicTodoCreated, idTopic(1)},
			Data:        abiString("x"),
			BlockNumber: "0x64", LogIndex: "0x0",
		}},
		{"truncated string data", LogEntry{
			Topics:      []string{TopicTodoUpdated, idTopic(1)},
			Data:        "0x0000",
			BlockNumber: "0x64", LogIndex: "0x0",
		}},
		{"bad block number", LogEntry{
			Topics:      []string{TopicTodoDeleted, idTopic(1)},
			BlockNumber: "not-hex", LogIndex: "0x0",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DefaultSchema().Decode("test", tt.lg)
			var malformed *rpc.MalformedError
			if !errors.As(err, &malformed) {
				t.Errorf("err = %v, want MalformedError", err)
			}
		})
	}
}

func TestAbiDecodeStringRejectsOutOfBounds(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"offset past payload", fmt.Sprintf("0x%064x%064x", 4096, 1)},
		{"length past payload", fmt.Sprintf("0x%064x%064x", 32, 4096)},
		// Values chosen so that naively adding 32 to them wraps the
		// uint64 arithmetic back into range; must error, not panic.
		{"offset wraps on add", fmt.Sprintf("0x%064x%064x", uint64(0xfffffffffffffff0), 0)},
		{"length wraps on add", fmt.Sprintf("0x%064x%064x", 32, uint64(0xffffffffffffffc0))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := abiDecodeString(tt.data); err == nil {
				t.Error("out-of-bounds data accepted")
			}
		})
	}
}

func TestDecodeRejectsIDAboveInt64(t *testing.T) {
	_, err := DefaultSchema().Decode("test", LogEntry{
		Topics:      []string{TopicTodoCompleted, fmt.Sprintf("0x%064x", uint64(1)<<63)},
		Data:        "0x",
		BlockNumber: "0x64",
		LogIndex:    "0x0",
	})
	var malformed *rpc.MalformedError
	if !errors.As(err, &malformed) {
		t.Errorf("err = %v, want MalformedError for id above int64 range", err)
	}

	// The largest storable id still decodes.
	ev, err := DefaultSchema().Decode("test", LogEntry{
		Topics:      []string{TopicTodoCompleted, fmt.Sprintf("0x%064x", uint64(1<<63-1))},
		Data:        "0x",
		BlockNumber: "0x64",
		LogIndex:    "0x0",
	})
	if err != nil {
		t.Fatal(err)
	}
	if ev.TodoID != 1<<63-1 {
		t.Errorf("TodoID = %d, want MaxInt64", ev.TodoID)
	}
}
