package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	assert.NoError(t, err)
	assert.NotNil(t, m)

	// Registering twice on the same registry fails
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestNewMetricsNilRegistry(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	m.IncMessagesTotal("received")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.messagesTotal.WithLabelValues("received")))
}

func TestMetricsSetConnectionStatus(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SetMQTTConnectionStatus(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.mqttConnected))

	m.SetMQTTConnectionStatus(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.mqttConnected))
}

func TestMetricsIncrementCounters(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.IncMessagesTotal("received")
	m.IncMessagesTotal("received")
	m.IncMessagesTotal("dropped")
	m.IncDecodeErrors("epoch")
	m.IncNotifications("epoch_changed")
	m.IncMQTTReconnects()
	m.IncStatusPublish("success")
	m.IncStatusPublish("error")
	m.SetInboxDepth(3)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.messagesTotal.WithLabelValues("received")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.messagesTotal.WithLabelValues("dropped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.decodeErrorsTotal.WithLabelValues("epoch")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.notificationsTotal.WithLabelValues("epoch_changed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.mqttReconnects))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.statusPublishTotal.WithLabelValues("error")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.inboxDepth))
}

func TestMetricsCollector(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	c := NewMetricsCollector(m, 10*time.Millisecond, func() (int, uint64, bool, bool) {
		return 1, 400, true, false
	})
	c.Start()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.sessionEpoch) == 400
	}, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessionAlgorithm))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessionHold))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.sessionShutdownPending))
}
