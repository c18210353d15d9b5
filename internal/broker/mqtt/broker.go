package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"dagd-mqtt/config"
	"dagd-mqtt/internal/broker"
	"dagd-mqtt/internal/logger"
	"dagd-mqtt/internal/metrics"
	"dagd-mqtt/internal/payload"
	"dagd-mqtt/internal/processor"
)

// MQTTBroker implements the broker.Broker interface over paho
type MQTTBroker struct {
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

// NewBroker creates a new MQTT broker instance. It does not connect until Start.
func NewBroker(cfg *config.Config, log *logger.Logger, proc *processor.Processor, metricsService *metrics.Metrics) (broker.Broker, error) {
	b := newMQTTBroker(cfg, log, proc, metricsService)

	var err error
	b.conn, err = NewConnectionManager(b)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}
	b.wire()

	return b, nil
}

// NewBrokerWithClient creates a broker around an existing paho client (for testing)
func NewBrokerWithClient(cfg *config.Config, log *logger.Logger, proc *processor.Processor, metricsService *metrics.Metrics, client mqtt.Client) *MQTTBroker {
	b := newMQTTBroker(cfg, log, proc, metricsService)
	b.conn = NewConnectionManagerWithClient(b, client)
	b.wire()
	return b
}

func newMQTTBroker(cfg *config.Config, log *logger.Logger, proc *processor.Processor, metricsService *metrics.Metrics) *MQTTBroker {
	if log == nil {
		log = logger.NewNop()
	}
	_, pollWait := cfg.MQTT.Durations()
	return &MQTTBroker{
		logger:    log.With("transport", "mqtt"),
		config:    cfg,
		processor: proc,
		metrics:   metricsService,
		inbox:     broker.NewInbox(cfg.MQTT.InboxSize),
		pollWait:  pollWait,
		state:     broker.BrokerStateDisconnected,
		reconnect: time.Now(),
	}
}

// wire builds the components that depend on the connection manager
func (b *MQTTBroker) wire() {
	b.pub = NewPublisher(b)
	b.sub = NewSubscriptionManager(b)
	b.status = broker.NewStatusPublisher(b.pub, b.processor.Topics().Name(payload.TopicStatus), b.logger, b.metrics)
}

// Start connects and subscribes to the inbound topics
func (b *MQTTBroker) Start(ctx context.Context) error {
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
		subs = append(subs, Subscription{Topic: topics.Name(t), QoS: t.QoS()})
	}

	if err := b.sub.Subscribe(subs); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	b.logger.Info("mqtt broker started",
		"broker", b.config.MQTT.Broker,
		"topics", b.sub.GetSubscribedTopics())
	return nil
}

// Poll processes queued messages on the calling goroutine
func (b *MQTTBroker) Poll(ctx context.Context, wait bool) (int, error) {
	var timeout time.Duration
	if wait {
		timeout = b.pollWait
	}

	n, err := b.inbox.Poll(ctx, timeout, b.handle)
	if err != nil {
		return n, fmt.Errorf("mqtt poll: %w", err)
	}

	b.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetInboxDepth(float64(b.inbox.Len()))
	})
	return n, nil
}

func (b *MQTTBroker) handle(msg broker.InboundMessage) {
	// Decode failures are logged by the processor and never stop the poll
	if err := b.processor.Process(msg.Topic, msg.Payload); err != nil {
		atomic.AddUint64(&b.stats.Errors, 1)
		return
	}
	atomic.AddUint64(&b.stats.MessagesProcessed, 1)
}

// Run polls until ctx is done or the transport fails
func (b *MQTTBroker) Run(ctx context.Context) error {
	return broker.RunPolling(ctx, b)
}

// PublishStatus sends a rate-limited status message
func (b *MQTTBroker) PublishStatus(message string, force bool) bool {
	return b.status.Publish(message, force)
}

// Close implements broker.Broker interface
func (b *MQTTBroker) Close() {
	b.logger.Info("shutting down mqtt broker")
	b.inbox.Close()
	b.conn.Disconnect()
}

// GetStats implements broker.Broker interface
func (b *MQTTBroker) GetStats() broker.BrokerStats {
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

func (b *MQTTBroker) setState(state broker.BrokerState) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

func (b *MQTTBroker) markReconnect() {
	b.mu.Lock()
	b.reconnect = time.Now()
	b.mu.Unlock()
}

func (b *MQTTBroker) lastReconnect() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.reconnect
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (b *MQTTBroker) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if b.metrics != nil {
		fn(b.metrics)
	}
}
