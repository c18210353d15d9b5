package mqtt

import (
	"fmt"
	"sync/atomic"
	"time"
)

const publishTimeout = 5 * time.Second

// PublisherImpl handles MQTT message publishing
type PublisherImpl struct {
	broker *MQTTBroker
	conn   ConnectionManager
}

// NewPublisher creates a new MQTT publisher
func NewPublisher(b *MQTTBroker) Publisher {
	return &PublisherImpl{
		broker: b,
		conn:   b.conn,
	}
}

// Publish sends a message to a specific topic
func (p *PublisherImpl) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if !p.conn.IsConnected() {
		atomic.AddUint64(&p.broker.stats.Errors, 1)
		return fmt.Errorf("not connected to broker")
	}

	token := p.conn.GetClient().Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		atomic.AddUint64(&p.broker.stats.Errors, 1)
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		atomic.AddUint64(&p.broker.stats.Errors, 1)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	atomic.AddUint64(&p.broker.stats.StatusPublished, 1)
	p.broker.logger.Debug("published message",
		"topic", topic,
		"payloadSize", len(payload))

	return nil
}
