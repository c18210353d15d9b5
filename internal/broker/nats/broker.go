// Package nats carries the inbound topics and the status message over core
// NATS instead of MQTT. Topic names map to subjects with ToNATSSubject.
package nats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dagd-mqtt/config"
	"dagd-mqtt/internal/broker"
	"dagd-mqtt/internal/logger"
	"dagd-mqtt/internal/metrics"
	"dagd-mqtt/internal/payload"
	"dagd-mqtt/internal/processor"
)

// NATSBroker implements the broker.Broker interface for NATS
type NATSBroker struct {
	logger    *logger.Logger
	config    *config.Config
	processor *processor.Processor
	metrics   *metrics.Metrics
	inbox     *broker.Inbox
	status    *broker.StatusPublisher
	pollWait  time.Duration

	stats     broker.BrokerStats
	state     broker.BrokerState
	reconnect time.Time

	conn ConnectionManager
	sub  SubscriptionManager
	pub  Publisher

	mu sync.RWMutex
}

// NewBroker creates a new NATS broker instance. It does not connect until Start.
func NewBroker(cfg *config.Config, log *logger.Logger, proc *processor.Processor, metricsService *metrics.Metrics) (broker.Broker, error) {
	b := newNATSBroker(cfg, log, proc, metricsService)

	var err error
	b.conn, err = NewConnectionManager(b)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}
	b.wire()

	return b, nil
}

// NewBrokerWithConn creates a broker around an existing connection (for testing)
func NewBrokerWithConn(cfg *config.Config, log *logger.Logger, proc *processor.Processor, metricsService *metrics.Metrics, conn Conn) *NATSBroker {
	b := newNATSBroker(cfg, log, proc, metricsService)
	b.conn = NewConnectionManagerWithConn(b, conn)
	b.wire()
	return b
}

func newNATSBroker(cfg *config.Config, log *logger.Logger, proc *processor.Processor, metricsService *metrics.Metrics) *NATSBroker {
	if log == nil {
		log = logger.NewNop()
	}
	_, pollWait := cfg.MQTT.Durations()
	return &NATSBroker{
		logger:    log.With("transport", "nats"),
		config:    cfg,
		processor: proc,
		metrics:   metricsService,
		inbox:     broker.NewInbox(cfg.MQTT.InboxSize),
		pollWait:  pollWait,
		state:     broker.BrokerStateDisconnected,
		reconnect: time.Now(),
	}
}

func (b *NATSBroker) wire() {
	b.pub = NewPublisher(b, b.conn)
	b.sub = NewSubscriptionManager(b, b.conn)
	b.status = broker.NewStatusPublisher(b.pub, b.processor.Topics().Name(payload.TopicStatus), b.logger, b.metrics)
}

// Start connects and subscribes to the subjects of the inbound topics
func (b *NATSBroker) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !b.conn.IsConnected() {
		if err := b.conn.Connect(); err != nil {
			return err
		}
	}

	topics := b.processor.Topics()
	subs := make([]Subscription, 0, len(payload.Inbound))
	for _, t := range payload.Inbound {
		name := topics.Name(t)
		subs = append(subs, Subscription{Topic: name, Subject: ToNATSSubject(name)})
	}

	if err := b.sub.Subscribe(subs); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	b.logger.Info("nats broker started",
		"urls", b.config.MQTT.NATSURLs,
		"topics", b.sub.GetSubscribedTopics())
	return nil
}

// Poll processes queued messages on the calling goroutine
func (b *NATSBroker) Poll(ctx context.Context, wait bool) (int, error) {
	var timeout time.Duration
	if wait {
		timeout = b.pollWait
	}

	n, err := b.inbox.Poll(ctx, timeout, b.handle)
	if err != nil {
		return n, fmt.Errorf("nats poll: %w", err)
	}

	b.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetInboxDepth(float64(b.inbox.Len()))
	})
	return n, nil
}

func (b *NATSBroker) handle(msg broker.InboundMessage) {
	if err := b.processor.Process(msg.Topic, msg.Payload); err != nil {
		atomic.AddUint64(&b.stats.Errors, 1)
		return
	}
	atomic.AddUint64(&b.stats.MessagesProcessed, 1)
}

// Run polls until ctx is done or the connection is closed for good
func (b *NATSBroker) Run(ctx context.Context) error {
	return broker.RunPolling(ctx, b)
}

// PublishStatus sends a rate-limited status message
func (b *NATSBroker) PublishStatus(message string, force bool) bool {
	return b.status.Publish(message, force)
}

// Close implements broker.Broker interface
func (b *NATSBroker) Close() {
	b.logger.Info("shutting down NATS broker")
	b.inbox.Close()
	b.sub.UnsubscribeAll()
	b.conn.Disconnect()
}

// GetStats implements broker.Broker interface
func (b *NATSBroker) GetStats() broker.BrokerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return broker.BrokerStats{
		MessagesReceived:  atomic.LoadUint64(&b.stats.MessagesReceived),
		MessagesProcessed: atomic.LoadUint64(&b.stats.MessagesProcessed),
		StatusPublished:   atomic.LoadUint64(&b.stats.StatusPublished),
		Errors:            atomic.LoadUint64(&b.stats.Errors),
		LastReconnect:     b.reconnect,
		State:             b.state,
	}
}

func (b *NATSBroker) setState(state broker.BrokerState) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

func (b *NATSBroker) markReconnect() {
	b.mu.Lock()
	b.reconnect = time.Now()
	b.mu.Unlock()
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (b *NATSBroker) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if b.metrics != nil {
		fn(b.metrics)
	}
}
