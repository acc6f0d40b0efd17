package webmonitor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/beststop/parking-server/internal/logger"
	"github.com/beststop/parking-server/pkg/types"
)

// SerializedEvent holds pre-serialized data in both formats.
// This avoids redundant serialization when broadcasting to multiple clients.
type SerializedEvent struct {
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // Pre-serialized Protobuf (base64 encoded for SSE)
}

// ResultBroadcaster fans published results out to SSE clients.
type ResultBroadcaster struct {
	mu      sync.Mutex
	clients map[int]chan *SerializedEvent
	nextID  int
	stopped bool
}

// NewResultBroadcaster creates an empty broadcaster.
func NewResultBroadcaster() *ResultBroadcaster {
	return &ResultBroadcaster{
		clients: make(map[int]chan *SerializedEvent),
	}
}

// Subscribe adds a new client and returns a channel for receiving result events.
func (rb *ResultBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	id := rb.nextID
	rb.nextID++
	ch := make(chan *SerializedEvent, 2) // Buffer 2 events to avoid blocking
	if rb.stopped {
		close(ch)
		return id, ch
	}
	rb.clients[id] = ch

	logger.Debug("ResultBroadcaster", "Client #%d subscribed (total clients: %d)", id, len(rb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (rb *ResultBroadcaster) Unsubscribe(id int) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if ch, ok := rb.clients[id]; ok {
		close(ch)
		delete(rb.clients, id)
		logger.Debug("ResultBroadcaster", "Client #%d unsubscribed (remaining clients: %d)", id, len(rb.clients))
	}
}

// Clients returns the number of subscribers.
func (rb *ResultBroadcaster) Clients() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.clients)
}

// Stop disconnects every client.
func (rb *ResultBroadcaster) Stop() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.stopped {
		return
	}
	rb.stopped = true
	for id, ch := range rb.clients {
		close(ch)
		delete(rb.clients, id)
	}
}

// Broadcast pre-serializes r and sends it to every client. Slow clients skip the event.
func (rb *ResultBroadcaster) Broadcast(r types.AggregateResult) {
	if rb.Clients() == 0 {
		return
	}

	event, err := serializeResult(r)
	if err != nil {
		logger.Error("ResultBroadcaster", "Serialize error: %v", err)
		return
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	for id, ch := range rb.clients {
		select {
		case ch <- event:
		default:
			logger.Debug("ResultBroadcaster", "Client #%d too slow, event skipped", id)
		}
	}
}

func serializeResult(r types.AggregateResult) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}
	pbData, err := resultToProto(jsonData)
	if err != nil {
		return nil, err
	}
	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}

// resultToProto re-encodes a JSON object as a google.protobuf.Struct so clients can
// decode it with the well-known types alone.
func resultToProto(jsonData []byte) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("protobuf marshal: %w", err)
	}
	return data, nil
}
