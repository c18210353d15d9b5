package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dagd_mqtt"

// Metrics holds the prometheus collectors for the adapter
type Metrics struct {
	messagesTotal      *prometheus.CounterVec
	decodeErrorsTotal  *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	statusPublishTotal *prometheus.CounterVec
	mqttConnected      prometheus.Gauge
	mqttReconnects     prometheus.Counter
	inboxDepth         prometheus.Gauge

	sessionEpoch           prometheus.Gauge
	sessionAlgorithm       prometheus.Gauge
	sessionHold            prometheus.Gauge
	sessionShutdownPending prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is handy in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by outcome (received, changed, unchanged, dropped)",
		}, []string{"status"}),
		decodeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Payloads dropped by the decoder, by topic",
		}, []string{"topic"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications dispatched, by kind",
		}, []string{"kind"}),
		statusPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_publish_total",
			Help:      "Status publish attempts by result (success, error, limited)",
		}, []string{"result"}),
		mqttConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connection_status",
			Help:      "1 when connected to the broker",
		}),
		mqttReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_reconnects_total",
			Help:      "Reconnect attempts",
		}),
		inboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inbox_depth",
			Help:      "Messages waiting for the next poll",
		}),
		sessionEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_epoch",
			Help:      "Current DAG epoch",
		}),
		sessionAlgorithm: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_algorithm",
			Help:      "Current algorithm code, -1 when unset",
		}),
		sessionHold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_hold",
			Help:      "1 while upstream holds for an epoch upload",
		}),
		sessionShutdownPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_shutdown_pending",
			Help:      "1 when a shutdown was requested",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.messagesTotal,
			m.decodeErrorsTotal,
			m.notificationsTotal,
			m.statusPublishTotal,
			m.mqttConnected,
			m.mqttReconnects,
			m.inboxDepth,
			m.sessionEpoch,
			m.sessionAlgorithm,
			m.sessionHold,
			m.sessionShutdownPending,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Metrics) IncMessagesTotal(status string) {
	m.messagesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncDecodeErrors(topic string) {
	m.decodeErrorsTotal.WithLabelValues(topic).Inc()
}

func (m *Metrics) IncNotifications(kind string) {
	m.notificationsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncStatusPublish(result string) {
	m.statusPublishTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetMQTTConnectionStatus(connected bool) {
	m.mqttConnected.Set(boolToFloat(connected))
}

func (m *Metrics) IncMQTTReconnects() {
	m.mqttReconnects.Inc()
}

func (m *Metrics) SetInboxDepth(depth float64) {
	m.inboxDepth.Set(depth)
}

// SetSession publishes the session snapshot as gauges
func (m *Metrics) SetSession(algorithm int, epoch uint64, hold, shutdownPending bool) {
	m.sessionAlgorithm.Set(float64(algorithm))
	m.sessionEpoch.Set(float64(epoch))
	m.sessionHold.Set(boolToFloat(hold))
	m.sessionShutdownPending.Set(boolToFloat(shutdownPending))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
