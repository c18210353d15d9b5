// Package broker defines the transport contract shared by the MQTT and NATS
// backends and the inbox that turns asynchronous deliveries into polling.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// BrokerState represents the current state of a broker connection
type BrokerState string

const (
	// BrokerStateDisconnected indicates the broker is not connected
	BrokerStateDisconnected BrokerState = "disconnected"
	// BrokerStateConnecting indicates the broker is attempting to connect
	BrokerStateConnecting BrokerState = "connecting"
	// BrokerStateConnected indicates the broker is connected
	BrokerStateConnected BrokerState = "connected"
	// BrokerStateReconnecting indicates the broker is attempting to reconnect
	BrokerStateReconnecting BrokerState = "reconnecting"
)

// Broker is a connected transport feeding the processor
type Broker interface {
	// Start connects and subscribes to the inbound topics
	Start(ctx context.Context) error

	// Poll processes every message queued so far. With wait set it first
	// blocks up to the poll wait for one to arrive. Transport failures are
	// returned as errors.
	Poll(ctx context.Context, wait bool) (int, error)

	// Run polls until ctx is done or the transport fails
	Run(ctx context.Context) error

	// PublishStatus sends a status string, at most once per second unless
	// force is set. It reports whether a delivery was attempted.
	PublishStatus(message string, force bool) bool

	// Close disconnects from the broker
	Close()

	// GetStats returns current broker statistics
	GetStats() BrokerStats
}

// BrokerStats holds statistics for a broker connection
type BrokerStats struct {
	MessagesReceived  uint64
	MessagesProcessed uint64
	StatusPublished   uint64
	Errors            uint64
	LastReconnect     time.Time
	State             BrokerState
}

// InboundMessage is a delivery waiting for the next poll
type InboundMessage struct {
	Topic   string
	Payload []byte
}

// ClientID returns id, or a random dagd-prefixed id when id is empty
func ClientID(id string) string {
	if id != "" {
		return id
	}
	return "dagd-" + uuid.NewString()[:8]
}

// RunPolling polls b until ctx is done or the transport fails. Cancellation
// is a clean exit.
func RunPolling(ctx context.Context, b Broker) error {
	for {
		if _, err := b.Poll(ctx, true); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
