package nats

import (
	"fmt"
	"sync/atomic"
)

// PublisherImpl implements the Publisher interface for NATS
type PublisherImpl struct {
	broker *NATSBroker
	conn   ConnectionManager
}

// NewPublisher creates a new NATS publisher
func NewPublisher(b *NATSBroker, conn ConnectionManager) Publisher {
	return &PublisherImpl{
		broker: b,
		conn:   conn,
	}
}

// Publish sends a message to the subject for topic. Core NATS has neither
// delivery levels nor retained messages, so qos and retain are ignored.
func (p *PublisherImpl) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if !p.conn.IsConnected() {
		atomic.AddUint64(&p.broker.stats.Errors, 1)
		return fmt.Errorf("not connected to NATS server")
	}

	subject := ToNATSSubject(topic)
	if err := p.conn.GetConnection().Publish(subject, payload); err != nil {
		atomic.AddUint64(&p.broker.stats.Errors, 1)
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	atomic.AddUint64(&p.broker.stats.StatusPublished, 1)
	p.broker.logger.Debug("published message",
		"topic", topic,
		"subject", subject,
		"payloadSize", len(payload))

	return nil
}
