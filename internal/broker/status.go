package broker

import (
	"sync"
	"time"

	"dagd-mqtt/internal/logger"
	"dagd-mqtt/internal/metrics"
)

// StatusQoS is the delivery level for status messages
const StatusQoS byte = 1

// Publisher sends one message to the transport
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retain bool) error
}

// StatusPublisher emits retained status messages, at most one per
// wall-clock second unless forced. Failures are logged and forgotten; the
// next status supersedes a lost one.
type StatusPublisher struct {
	pub     Publisher
	topic   string
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	last    int64
	mu      sync.Mutex
}

// NewStatusPublisher creates a status publisher for topic. m may be nil.
func NewStatusPublisher(pub Publisher, topic string, log *logger.Logger, m *metrics.Metrics) *StatusPublisher {
	if log == nil {
		log = logger.NewNop()
	}
	return &StatusPublisher{
		pub:     pub,
		topic:   topic,
		logger:  log,
		metrics: m,
		now:     time.Now,
	}
}

// SetClock replaces the time source
func (s *StatusPublisher) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Publish sends message unless one already went out this second. force
// bypasses the limit. It reports whether a delivery was attempted.
func (s *StatusPublisher) Publish(message string, force bool) bool {
	s.mu.Lock()
	t := s.now().Unix()
	if t == s.last && !force {
		s.mu.Unlock()
		s.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncStatusPublish("limited")
		})
		return false
	}
	s.last = t
	s.mu.Unlock()

	if err := s.pub.Publish(s.topic, []byte(message), StatusQoS, true); err != nil {
		s.logger.Error("failed to publish status",
			"topic", s.topic,
			"error", err)
		s.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncStatusPublish("error")
		})
		return true
	}

	s.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncStatusPublish("success")
	})
	s.logger.Debug("published status", "topic", s.topic, "force", force)
	return true
}

func (s *StatusPublisher) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}
