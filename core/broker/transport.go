package broker

import (
	"sync"

	"github.com/kilianp07/gridmarket/core/model"
)

// Transport delivers outbound messages to brokers.
type Transport interface {
	// Send delivers msg to a single broker.
	Send(brokerID string, msg model.Message) error
	// Broadcast delivers msg to every broker.
	Broadcast(msg model.Message) error
	// BroadcastBatch delivers msgs to every broker as one unit.
	BroadcastBatch(msgs []model.Message) error
}

// NopTransport drops every message.
type NopTransport struct{}

func (NopTransport) Send(string, model.Message) error     { return nil }
func (NopTransport) Broadcast(model.Message) error        { return nil }
func (NopTransport) BroadcastBatch([]model.Message) error { return nil }

// MemoryTransport records outbound traffic. It backs scenario replays and
// tests.
type MemoryTransport struct {
	mu         sync.Mutex
	sent       map[string][]model.Message
	broadcasts []model.Message
}

// NewMemoryTransport creates an empty MemoryTransport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{sent: make(map[string][]model.Message)}
}

func (m *MemoryTransport) Send(brokerID string, msg model.Message) error {
	m.mu.Lock()
	m.sent[brokerID] = append(m.sent[brokerID], msg)
	m.mu.Unlock()
	return nil
}

func (m *MemoryTransport) Broadcast(msg model.Message) error {
	m.mu.Lock()
	m.broadcasts = append(m.broadcasts, msg)
	m.mu.Unlock()
	return nil
}

func (m *MemoryTransport) BroadcastBatch(msgs []model.Message) error {
	m.mu.Lock()
	m.broadcasts = append(m.broadcasts, msgs...)
	m.mu.Unlock()
	return nil
}

// SentTo returns the messages sent to one broker.
func (m *MemoryTransport) SentTo(brokerID string) []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message(nil), m.sent[brokerID]...)
}

// Broadcasts returns every broadcast message in order.
func (m *MemoryTransport) Broadcasts() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message(nil), m.broadcasts...)
}

// BroadcastsOf returns the broadcasts of the given kind.
func (m *MemoryTransport) BroadcastsOf(kind model.MessageKind) []model.Message {
	var out []model.Message
	for _, msg := range m.Broadcasts() {
		if msg.Kind() == kind {
			out = append(out, msg)
		}
	}
	return out
}

// Reset forgets all recorded traffic.
func (m *MemoryTransport) Reset() {
	m.mu.Lock()
	m.sent = make(map[string][]model.Message)
	m.broadcasts = nil
	m.mu.Unlock()
}
