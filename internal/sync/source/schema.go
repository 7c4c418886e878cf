// Package source implements the event source adapter: the typed event
// schema, chunked historical log fetching, and the live subscription.
package source

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/vietddude/todosync/internal/core/domain"
	"github.com/vietddude/todosync/internal/infra/rpc"
)

// Topic0 hashes of the contract's event signatures.
const (
	TopicTodoCreated   = "0xcf2fcabd20b863af4f5125436f0d4760d45f77eda0a8e1ed3441f9275525321d" // TodoCreated(uint256,address,string)
	TopicTodoUpdated   = "0xf6aa4c407ff1f85ddb094ba6915892cbcc249d824c17408bfdb24febd802598a" // TodoUpdated(uint256,string)
	TopicTodoCompleted = "0xa553a8e805ed1d935dc03f59e3289fce64b601d27c8fb4154afb0f61e905985d" // TodoCompleted(uint256)
	TopicTodoDeleted   = "0x1072e4eeea43a52d09f5b6dfc870a079948f706133840ce9239aebc57fabb65f" // TodoDeleted(uint256)
	TopicTodoRestored  = "0xeba6a46d0a0b151ed85d0d7b308b68b4c5a139dd1b109576b474b0b399c1e2cb" // TodoRestored(uint256)
)

// LogEntry is one raw log as returned by eth_getLogs.
type LogEntry struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

// Schema maps topic0 hashes to event names and decodes raw logs into
// typed RawEvents. The dispatcher and projector only ever see decoded
// events.
type Schema struct {
	byTopic map[string]domain.EventName
}

// DefaultSchema covers the five contract events.
func DefaultSchema() Schema {
	return Schema{byTopic: map[string]domain.EventName{
		TopicTodoCreated:   domain.EventTodoCreated,
		TopicTodoUpdated:   domain.EventTodoUpdated,
		TopicTodoCompleted: domain.EventTodoCompleted,
		TopicTodoDeleted:   domain.EventTodoDeleted,
		TopicTodoRestored:  domain.EventTodoRestored,
	}}
}

// Topics returns every topic0 the schema matches, for getLogs filters.
func (s Schema) Topics() []string {
	topics := make([]string, 0, len(s.byTopic))
	for t := range s.byTopic {
		topics = append(topics, t)
	}
	return topics
}

// Decode turns a raw log into a typed RawEvent. A log whose topics or
// data do not fit its schema yields a MalformedError.
func (s Schema) Decode(sourceID domain.SourceID, lg LogEntry) (*domain.RawEvent, error) {
	if len(lg.Topics) == 0 {
		return nil, &rpc.MalformedError{Reason: "log has no topics"}
	}

	name, ok := s.byTopic[strings.ToLower(lg.Topics[0])]
	if !ok {
		return nil, &rpc.MalformedError{Reason: "unknown topic0 " + lg.Topics[0]}
	}

	block, err := parseHexUint64(lg.BlockNumber)
	if err != nil {
		return nil, &rpc.MalformedError{Reason: "bad block number: " + err.Error()}
	}
	logIndex, err := parseHexUint64(lg.LogIndex)
	if err != nil {
		return nil, &rpc.MalformedError{Reason: "bad log index: " + err.Error()}
	}

	ev := &domain.RawEvent{
		SourceID: sourceID,
		Name:     name,
		Block:    block,
		TxHash:   lg.TxHash,
		LogIndex: logIndex,
	}

	if len(lg.Topics) < 2 {
		return nil, &rpc.MalformedError{Reason: string(name) + ": missing id topic"}
	}
	ev.TodoID, err = topicToUint64(lg.Topics[1])
	if err != nil {
		return nil, &rpc.MalformedError{Reason: string(name) + ": bad id topic: " + err.Error()}
	}

	switch name {
	case domain.EventTodoCreated:
		if len(lg.Topics) < 3 {
			return nil, &rpc.MalformedError{Reason: "TodoCreated: missing owner topic"}
		}
		ev.Owner = topicToAddress(lg.Topics[2])
		ev.Content, err = abiDecodeString(lg.Data)
		if err != nil {
			return nil, &rpc.MalformedError{Reason: "TodoCreated: bad content: " + err.Error()}
		}
	case domain.EventTodoUpdated:
		ev.Content, err = abiDecodeString(lg.Data)
		if err != nil {
			return nil, &rpc.MalformedError{Reason: "TodoUpdated: bad content: " + err.Error()}
		}
	}

	return ev, nil
}

func parseHexUint64(s string) (uint64, error) {
	n := new(big.Int)
	if _, ok := n.SetString(strings.TrimPrefix(s, "0x"), 16); !ok {
		return 0, fmt.Errorf("invalid hex: %q", s)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("hex out of range: %q", s)
	}
	return n.Uint64(), nil
}

func topicToUint64(topic string) (uint64, error) {
	v, err := parseHexUint64(topic)
	if err != nil {
		return 0, err
	}
	// Ids are persisted in a signed BIGINT column; anything above
	// MaxInt64 could never round-trip and would fail on every replay.
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("id %d exceeds int64 range", v)
	}
	return v, nil
}

// topicToAddress extracts the 20-byte address from a 32-byte topic.
func topicToAddress(topic string) string {
	if len(topic) >= 42 {
		return strings.ToLower("0x" + topic[len(topic)-40:])
	}
	return ""
}

// abiDecodeString decodes a single ABI-encoded dynamic string parameter:
// a 32-byte offset, a 32-byte length, then the padded bytes.
func abiDecodeString(data string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid data hex: %w", err)
	}
	if len(raw) < 64 {
		return "", fmt.Errorf("data too short: %d bytes", len(raw))
	}

	// Compared by subtraction: adding to attacker-controlled uint64 values
	// can wrap around and defeat the bounds check.
	size := uint64(len(raw))

	offset := new(big.Int).SetBytes(raw[:32])
	if !offset.IsUint64() || offset.Uint64() > size || size-offset.Uint64() < 32 {
		return "", fmt.Errorf("string offset out of bounds")
	}
	off := offset.Uint64()

	length := new(big.Int).SetBytes(raw[off : off+32])
	if !length.IsUint64() || length.Uint64() > size-off-32 {
		return "", fmt.Errorf("string length out of bounds")
	}

	return string(raw[off+32 : off+32+length.Uint64()]), nil
}
