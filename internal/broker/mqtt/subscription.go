package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"dagd-mqtt/internal/metrics"
)

// SubscriptionManagerImpl implements the SubscriptionManager interface
type SubscriptionManagerImpl struct {
	broker     *MQTTBroker
	conn       ConnectionManager
	subs       []Subscription
	subscribed bool
	mu         sync.RWMutex
}

// NewSubscriptionManager creates a new subscription manager
func NewSubscriptionManager(b *MQTTBroker) SubscriptionManager {
	return &SubscriptionManagerImpl{
		broker: b,
		conn:   b.conn,
	}
}

// Subscribe subscribes to the provided topics and remembers them for reconnects
func (s *SubscriptionManagerImpl) Subscribe(subs []Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conn.IsConnected() {
		return fmt.Errorf("not connected to broker")
	}

	s.subs = append([]Subscription(nil), subs...)
	s.broker.logger.Info("subscribing to topics", "count", len(subs))

	for _, sub := range subs {
		if token := s.conn.GetClient().Subscribe(sub.Topic, sub.QoS, s.HandleMessage); token.Wait() && token.Error() != nil {
			s.broker.logger.Error("failed to subscribe to topic",
				"topic", sub.Topic,
				"error", token.Error())
			return fmt.Errorf("failed to subscribe to topic %s: %w", sub.Topic, token.Error())
		}
		s.broker.logger.Debug("subscribed to topic", "topic", sub.Topic, "qos", sub.QoS)
	}

	s.subscribed = true
	return nil
}

// HandleMessage queues a delivery for the next poll. It runs on paho's
// goroutine and does no decoding itself.
func (s *SubscriptionManagerImpl) HandleMessage(client mqtt.Client, msg mqtt.Message) {
	atomic.AddUint64(&s.broker.stats.MessagesReceived, 1)

	s.broker.logger.Debug("received message",
		"topic", msg.Topic(),
		"payloadSize", len(msg.Payload()))

	if !s.broker.inbox.Push(msg.Topic(), msg.Payload()) {
		s.broker.logger.Debug("inbox closed, dropping message", "topic", msg.Topic())
		return
	}

	s.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetInboxDepth(float64(s.broker.inbox.Len()))
	})
}

// ResubscribeAll resubscribes to all topics after a reconnection
func (s *SubscriptionManagerImpl) ResubscribeAll() error {
	s.mu.RLock()
	needsSubscribe := !s.subscribed && len(s.subs) > 0
	subs := append([]Subscription(nil), s.subs...)
	s.mu.RUnlock()

	if needsSubscribe {
		return s.Subscribe(subs)
	}
	return nil
}

// MarkLost records that the broker dropped our subscriptions
func (s *SubscriptionManagerImpl) MarkLost() {
	s.mu.Lock()
	s.subscribed = false
	s.mu.Unlock()
}

// GetSubscribedTopics returns the list of currently subscribed topics
func (s *SubscriptionManagerImpl) GetSubscribedTopics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.subs))
	for _, sub := range s.subs {
		topics = append(topics, sub.Topic)
	}
	return topics
}

// IsSubscribed returns whether there are active subscriptions
func (s *SubscriptionManagerImpl) IsSubscribed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed
}
