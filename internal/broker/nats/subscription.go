package nats

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"dagd-mqtt/internal/metrics"
)

// SubscriptionManagerImpl implements SubscriptionManager for NATS
type SubscriptionManagerImpl struct {
	broker     *NATSBroker
	conn       ConnectionManager
	topics     []string
	subs       map[string]*nats.Subscription
	subscribed bool
	mu         sync.RWMutex
}

// NewSubscriptionManager creates a new NATS subscription manager
func NewSubscriptionManager(b *NATSBroker, conn ConnectionManager) SubscriptionManager {
	return &SubscriptionManagerImpl{
		broker: b,
		conn:   conn,
		subs:   make(map[string]*nats.Subscription),
	}
}

// Subscribe subscribes to the subject of every subscription
func (s *SubscriptionManagerImpl) Subscribe(subs []Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conn.IsConnected() {
		return fmt.Errorf("not connected to NATS server")
	}

	s.broker.logger.Info("subscribing to subjects", "count", len(subs))

	for _, sub := range subs {
		if err := s.subscribeTopic(sub); err != nil {
			s.broker.logger.Error("failed to subscribe to subject",
				"topic", sub.Topic,
				"subject", sub.Subject,
				"error", err)
			return fmt.Errorf("failed to subscribe to subject %s: %w", sub.Subject, err)
		}
		s.topics = append(s.topics, sub.Topic)
		s.broker.logger.Debug("subscribed to subject",
			"topic", sub.Topic,
			"subject", sub.Subject)
	}

	s.subscribed = true
	return nil
}

func (s *SubscriptionManagerImpl) subscribeTopic(sub Subscription) error {
	topic := sub.Topic
	ns, err := s.conn.GetConnection().Subscribe(sub.Subject, func(msg *nats.Msg) {
		s.handleMessage(topic, msg)
	})
	if err != nil {
		return err
	}

	// Store subscription for later cleanup
	s.subs[topic] = ns
	return nil
}

// UnsubscribeAll unsubscribes from all subjects
func (s *SubscriptionManagerImpl) UnsubscribeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for topic, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.broker.logger.Debug("failed to unsubscribe",
				"topic", topic,
				"error", err)
		}
	}

	s.subs = make(map[string]*nats.Subscription)
	s.topics = nil
	s.subscribed = false

	return nil
}

// GetSubscribedTopics returns the topics behind the active subscriptions
func (s *SubscriptionManagerImpl) GetSubscribedTopics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.topics...)
}

// IsSubscribed returns whether there are active subscriptions
func (s *SubscriptionManagerImpl) IsSubscribed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed
}

// handleMessage queues a delivery under its topic name for the next poll
func (s *SubscriptionManagerImpl) handleMessage(topic string, msg *nats.Msg) {
	atomic.AddUint64(&s.broker.stats.MessagesReceived, 1)

	s.broker.logger.Debug("received message",
		"topic", topic,
		"subject", msg.Subject,
		"payloadSize", len(msg.Data))

	if !s.broker.inbox.Push(topic, msg.Data) {
		s.broker.logger.Debug("inbox closed, dropping message", "topic", topic)
		return
	}

	s.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetInboxDepth(float64(s.broker.inbox.Len()))
	})
}
