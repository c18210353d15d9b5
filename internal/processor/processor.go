// Package processor runs one inbound message through decode, state tracking
// and notification dispatch.
package processor

import (
	"errors"
	"fmt"

	"dagd-mqtt/internal/algo"
	"dagd-mqtt/internal/event"
	"dagd-mqtt/internal/logger"
	"dagd-mqtt/internal/metrics"
	"dagd-mqtt/internal/payload"
	"dagd-mqtt/internal/session"
	"dagd-mqtt/internal/stats"
)

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Topics   *payload.TopicMap
	Resolver algo.Resolver
}

// Processor owns the session tracker and the notification registry
type Processor struct {
	topics   *payload.TopicMap
	decoder  *payload.Decoder
	tracker  *session.Tracker
	registry *event.Registry
	logger   *logger.Logger
	metrics  *metrics.Metrics
	stats    *stats.StatsCollector
}

// NewProcessor creates a processor. metrics and stats may be nil.
func NewProcessor(cfg ProcessorConfig, log *logger.Logger, m *metrics.Metrics, st *stats.StatsCollector) (*Processor, error) {
	if cfg.Topics == nil {
		return nil, fmt.Errorf("topic map is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if st == nil {
		st = stats.NewStatsCollector()
	}

	return &Processor{
		topics:   cfg.Topics,
		decoder:  payload.NewDecoder(cfg.Resolver),
		tracker:  session.NewTracker(log),
		registry: event.NewRegistry(log),
		logger:   log,
		metrics:  m,
		stats:    st,
	}, nil
}

// Process handles one inbound message. Malformed payloads are logged and
// dropped; the returned error is informational and never fatal.
func (p *Processor) Process(topicName string, raw []byte) error {
	p.stats.IncReceived()
	p.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncMessagesTotal("received")
	})

	topic, ok := p.topics.Lookup(topicName)
	if !ok {
		topic = payload.TopicUnknown
	}

	msg, err := p.decoder.Decode(topic, raw)
	if err != nil {
		p.drop(topicName, topic, err)
		return err
	}

	kind, changed, err := p.tracker.Apply(msg)
	if err != nil {
		p.drop(topicName, topic, err)
		return err
	}
	p.stats.IncDecoded()

	if !changed {
		p.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncMessagesTotal("unchanged")
		})
		p.logger.Debug("message left state unchanged", "topic", topicName)
		return nil
	}

	p.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncMessagesTotal("changed")
	})
	p.logChange(kind)

	n := p.registry.Dispatch(kind)
	p.stats.AddNotifications(uint64(n))
	p.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncNotifications(kind.String())
	})

	return nil
}

func (p *Processor) drop(topicName string, topic payload.Topic, err error) {
	p.stats.IncDropped()
	p.stats.IncErrors()
	p.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncMessagesTotal("dropped")
		m.IncDecodeErrors(topic.String())
	})

	if errors.Is(err, payload.ErrUnknownTopic) {
		p.logger.Warn("unrecognized topic", "topic", topicName)
		return
	}
	p.logger.Warn("dropping message", "topic", topicName, "error", err)
}

func (p *Processor) logChange(kind event.Kind) {
	state := p.tracker.Snapshot()
	switch kind {
	case event.EpochChanged:
		p.logger.Info("epoch changed",
			"epoch", state.Epoch,
			"algorithm", state.Algorithm.String())
	case event.MinedStateChanged:
		p.logger.Info("mined state changed", "hold", state.Hold)
	case event.ShutdownRequested:
		p.logger.Info("shutdown request", "pending", state.ShutdownPending)
	}
}

// Subscribe registers cb for kind; ctx is handed back on every call
func (p *Processor) Subscribe(kind event.Kind, cb event.Callback, ctx any) {
	p.registry.Subscribe(kind, cb, ctx)
}

// SubscribeFunc is Subscribe for a plain function
func (p *Processor) SubscribeFunc(kind event.Kind, fn func(ctx any), ctx any) {
	p.registry.SubscribeFunc(kind, fn, ctx)
}

// State returns a snapshot of the session state
func (p *Processor) State() session.State {
	return p.tracker.Snapshot()
}

// Tracker exposes the session tracker for read access
func (p *Processor) Tracker() *session.Tracker {
	return p.tracker
}

// Topics returns the topic map the processor decodes with
func (p *Processor) Topics() *payload.TopicMap {
	return p.topics
}

// Status returns the stats snapshot with the session state under "session",
// the payload of the periodic status message
func (p *Processor) Status() ([]byte, error) {
	return p.stats.GetStatsJSON(map[string]interface{}{
		"session": p.tracker.Snapshot(),
	})
}

// Stats returns the stats collector
func (p *Processor) Stats() *stats.StatsCollector {
	return p.stats
}

// SessionSource adapts the tracker to the metrics collector
func (p *Processor) SessionSource() metrics.SessionSource {
	return func() (int, uint64, bool, bool) {
		s := p.tracker.Snapshot()
		return int(s.Algorithm), s.Epoch, s.Hold, s.ShutdownPending
	}
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (p *Processor) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if p.metrics != nil {
		fn(p.metrics)
	}
}
