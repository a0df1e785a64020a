package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// mockClient implements pahoClient for tests.
type mockClient struct {
	mu          sync.Mutex
	opts        *paho.ClientOptions
	subscribed  map[string]byte
	handlers    map[string]paho.MessageHandler
	published   []published
	publishErrs []error
	connected   bool
}

func installMock(t interface{ Cleanup(func()) }, mc *mockClient) {
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
}

func (m *mockClient) IsConnected() bool { return m.connected }
func (m *mockClient) Connect() paho.Token {
	m.connected = true
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) { m.connected = false }
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, _ := payload.([]byte)
	m.published = append(m.published, published{topic: topic, qos: qos, payload: b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, h paho.MessageHandler) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribed == nil {
		m.subscribed = make(map[string]byte)
		m.handlers = make(map[string]paho.MessageHandler)
	}
	m.subscribed[topic] = qos
	m.handlers[topic] = h
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return m.connected }

// deliver feeds a message to the handler registered for the subscription.
func (m *mockClient) deliver(sub, topic string, payload []byte) {
	m.mu.Lock()
	h := m.handlers[sub]
	m.mu.Unlock()
	if h != nil {
		h(m, mockMessage{topic: topic, p: payload})
	}
}

func (m *mockClient) sent() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.published...)
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct {
	topic string
	p     []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}
