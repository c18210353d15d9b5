package mqtt

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ConnectionManager handles MQTT connection lifecycle
type ConnectionManager interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	GetClient() mqtt.Client
}

// SubscriptionManager handles topic subscriptions and message reception
type SubscriptionManager interface {
	Subscribe(subs []Subscription) error
	HandleMessage(client mqtt.Client, msg mqtt.Message)
	ResubscribeAll() error
	MarkLost()
	GetSubscribedTopics() []string
	IsSubscribed() bool
}

// Publisher handles message publishing
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retain bool) error
}

// Subscription is one inbound topic and the QoS to request for it
type Subscription struct {
	Topic string
	QoS   byte
}
