package nats

import (
	"github.com/nats-io/nats.go"
)

// Conn is the part of *nats.Conn the broker uses
type Conn interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
	ConnectedUrl() string
	IsConnected() bool
	Close()
}

// ConnectionManager handles NATS connection lifecycle
type ConnectionManager interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	GetConnection() Conn
}

// SubscriptionManager handles subject subscriptions and message reception
type SubscriptionManager interface {
	Subscribe(subs []Subscription) error
	UnsubscribeAll() error
	GetSubscribedTopics() []string
	IsSubscribed() bool
}

// Publisher handles message publishing
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retain bool) error
}

// Subscription pairs a topic name with the subject it maps to
type Subscription struct {
	Topic   string
	Subject string
}
