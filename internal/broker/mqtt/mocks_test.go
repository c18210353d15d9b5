package mqtt

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockToken implements mqtt.Token for testing
type MockToken struct {
	err  error
	done chan struct{}
}

func NewMockToken(err error) *MockToken {
	done := make(chan struct{})
	close(done)
	return &MockToken{
		err:  err,
		done: done,
	}
}

func (t *MockToken) Wait() bool                       { return true }
func (t *MockToken) WaitTimeout(d time.Duration) bool { return true }
func (t *MockToken) Error() error                     { return t.err }
func (t *MockToken) Done() <-chan struct{}            { return t.done }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// MockClient implements mqtt.Client for testing
type MockClient struct {
	connected    atomic.Bool
	connectErr   error
	subscribeErr error
	publishErr   error

	handlers  map[string]mqtt.MessageHandler
	qos       map[string]byte
	published []published
	mu        sync.RWMutex
}

func NewMockClient() *MockClient {
	return &MockClient{
		handlers: make(map[string]mqtt.MessageHandler),
		qos:      make(map[string]byte),
	}
}

func (m *MockClient) Connect() mqtt.Token {
	if m.connectErr == nil {
		m.connected.Store(true)
	}
	return NewMockToken(m.connectErr)
}
func (m *MockClient) Disconnect(quiesce uint) { m.connected.Store(false) }
func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return NewMockToken(m.publishErr)
	}
	m.published = append(m.published, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return NewMockToken(nil)
}
func (m *MockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return NewMockToken(m.subscribeErr)
	}
	m.handlers[topic] = callback
	m.qos[topic] = qos
	return NewMockToken(nil)
}
func (m *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return NewMockToken(errors.New("not supported"))
}
func (m *MockClient) Unsubscribe(topics ...string) mqtt.Token         { return NewMockToken(nil) }
func (m *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {}
func (m *MockClient) IsConnected() bool                                 { return m.connected.Load() }
func (m *MockClient) IsConnectionOpen() bool                            { return m.connected.Load() }
func (m *MockClient) OptionsReader() mqtt.ClientOptionsReader           { return mqtt.ClientOptionsReader{} }

// Deliver simulates the broker delivering a message on topic
func (m *MockClient) Deliver(topic, payload string) bool {
	m.mu.RLock()
	handler, ok := m.handlers[topic]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	handler(m, &MockMessage{topic: topic, payload: []byte(payload)})
	return true
}

func (m *MockClient) Published() []published {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]published(nil), m.published...)
}

// MockMessage implements mqtt.Message for testing
type MockMessage struct {
	topic   string
	payload []byte
}

func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return 0 }
func (m *MockMessage) Retained() bool    { return false }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) MessageID() uint16 { return 0 }
func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Ack()              {}
