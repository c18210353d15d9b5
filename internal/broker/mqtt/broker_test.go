package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dagd-mqtt/config"
	"dagd-mqtt/internal/algo"
	"dagd-mqtt/internal/broker"
	"dagd-mqtt/internal/event"
	"dagd-mqtt/internal/logger"
	"dagd-mqtt/internal/metrics"
	"dagd-mqtt/internal/payload"
	"dagd-mqtt/internal/processor"
)

func setupTestBroker(t *testing.T) (*MQTTBroker, *MockClient, *processor.Processor) {
	t.Helper()

	cfg := config.Default()
	cfg.MQTT.PollWait = "20ms"

	log, err := logger.NewLogger(&config.LogConfig{
		Level:      "debug",
		OutputPath: "stdout",
		Encoding:   "console",
	})
	require.NoError(t, err)

	metricsService, err := metrics.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	topics, err := payload.NewTopicMap(cfg.Topics)
	require.NoError(t, err)

	proc, err := processor.NewProcessor(processor.ProcessorConfig{Topics: topics}, log, metricsService, nil)
	require.NoError(t, err)

	client := NewMockClient()
	b := NewBrokerWithClient(cfg, log, proc, metricsService, client)
	return b, client, proc
}

func TestNewBroker(t *testing.T) {
	cfg := config.Default()
	topics, err := payload.NewTopicMap(cfg.Topics)
	require.NoError(t, err)
	proc, err := processor.NewProcessor(processor.ProcessorConfig{Topics: topics}, nil, nil, nil)
	require.NoError(t, err)

	b, err := NewBroker(cfg, logger.NewNop(), proc, nil)
	require.NoError(t, err)
	assert.Equal(t, broker.BrokerStateDisconnected, b.GetStats().State)

	cfg.MQTT.Broker = "localhost:notaport"
	_, err = NewBroker(cfg, logger.NewNop(), proc, nil)
	assert.Error(t, err)
}

func TestStartSubscribes(t *testing.T) {
	b, client, _ := setupTestBroker(t)

	require.NoError(t, b.Start(context.Background()))

	assert.Equal(t, map[string]byte{
		"/mine/epoch":       1,
		"/mine/mined-state": 0,
		"/sys/shutdown":     1,
	}, client.qos)
	assert.True(t, b.sub.IsSubscribed())
	assert.Equal(t, []string{"/mine/epoch", "/mine/mined-state", "/sys/shutdown"}, b.sub.GetSubscribedTopics())
}

func TestStartSubscribeFailure(t *testing.T) {
	b, client, _ := setupTestBroker(t)
	client.subscribeErr = errors.New("not authorized")

	err := b.Start(context.Background())
	assert.Error(t, err)
	assert.False(t, b.sub.IsSubscribed())
}

func TestStartCancelledContext(t *testing.T) {
	b, _, _ := setupTestBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, b.Start(ctx), context.Canceled)
}

func TestPollProcessesDeliveries(t *testing.T) {
	b, client, proc := setupTestBroker(t)
	require.NoError(t, b.Start(context.Background()))

	var kinds []event.Kind
	for _, kind := range event.Kinds {
		kind := kind
		proc.SubscribeFunc(kind, func(any) { kinds = append(kinds, kind) }, nil)
	}

	require.True(t, client.Deliver("/mine/epoch", "512 etchash"))
	require.True(t, client.Deliver("/mine/mined-state", "epoch_upload 512"))
	require.True(t, client.Deliver("/sys/shutdown", "bogus"))
	require.True(t, client.Deliver("/sys/shutdown", "1"))

	// Nothing is processed until the owner polls
	assert.Empty(t, kinds)

	n, err := b.Poll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Equal(t, []event.Kind{event.EpochChanged, event.MinedStateChanged, event.ShutdownRequested}, kinds)

	state := proc.State()
	assert.Equal(t, uint64(512), state.Epoch)
	assert.Equal(t, algo.Etchash, state.Algorithm)
	assert.True(t, state.Hold)
	assert.True(t, state.ShutdownPending)

	stats := b.GetStats()
	assert.Equal(t, uint64(4), stats.MessagesReceived)
	assert.Equal(t, uint64(3), stats.MessagesProcessed)
	assert.Equal(t, uint64(1), stats.Errors)
}

func TestPollWaitTimesOut(t *testing.T) {
	b, _, _ := setupTestBroker(t)
	require.NoError(t, b.Start(context.Background()))

	start := time.Now()
	n, err := b.Poll(context.Background(), true)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestResubscribeFailureIsFatal(t *testing.T) {
	b, client, _ := setupTestBroker(t)
	require.NoError(t, b.Start(context.Background()))

	cm := b.conn.(*ConnectionManagerImpl)
	cm.handleDisconnect(client, errors.New("connection reset"))
	assert.False(t, b.sub.IsSubscribed())
	assert.Equal(t, broker.BrokerStateReconnecting, b.GetStats().State)

	client.subscribeErr = errors.New("not authorized")
	cm.handleConnect(client)

	_, err := b.Poll(context.Background(), false)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "resubscribe"))
}

func TestReconnectResubscribes(t *testing.T) {
	b, client, _ := setupTestBroker(t)
	require.NoError(t, b.Start(context.Background()))

	cm := b.conn.(*ConnectionManagerImpl)
	cm.handleDisconnect(client, errors.New("connection reset"))
	cm.handleConnect(client)

	assert.True(t, b.sub.IsSubscribed())
	assert.Len(t, client.handlers, 3)
	assert.Equal(t, broker.BrokerStateConnected, b.GetStats().State)
}

func TestPublishStatusRateLimit(t *testing.T) {
	b, client, _ := setupTestBroker(t)
	require.NoError(t, b.Start(context.Background()))

	now := time.Unix(1700000000, 0)
	b.status.SetClock(func() time.Time { return now })

	assert.True(t, b.PublishStatus("cache 1", false))
	assert.False(t, b.PublishStatus("cache 2", false))
	assert.Len(t, client.Published(), 1)

	assert.True(t, b.PublishStatus("cache 3", true))
	assert.True(t, b.PublishStatus("cache 4", true))

	pubs := client.Published()
	require.Len(t, pubs, 3)
	assert.Equal(t, "/mine/dag-cache", pubs[0].topic)
	assert.Equal(t, byte(1), pubs[0].qos)
	assert.True(t, pubs[0].retained)
	assert.Equal(t, "cache 4", string(pubs[2].payload))
	assert.Equal(t, uint64(3), b.GetStats().StatusPublished)
}

func TestPublishStatusFailureNotEscalated(t *testing.T) {
	b, client, _ := setupTestBroker(t)
	client.publishErr = errors.New("queue full")

	assert.NotPanics(t, func() {
		assert.True(t, b.PublishStatus("cache", true))
	})
	assert.Equal(t, uint64(1), b.GetStats().Errors)
}

func TestRunStopsOnCancel(t *testing.T) {
	b, client, proc := setupTestBroker(t)
	require.NoError(t, b.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- b.Run(ctx) }()

	client.Deliver("/mine/epoch", "7")
	assert.Eventually(t, func() bool {
		return proc.State().Epoch == 7
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCloseStopsPolling(t *testing.T) {
	b, client, _ := setupTestBroker(t)
	require.NoError(t, b.Start(context.Background()))

	b.Close()
	assert.False(t, client.IsConnected())
	assert.Equal(t, broker.BrokerStateDisconnected, b.GetStats().State)

	_, err := b.Poll(context.Background(), false)
	assert.ErrorIs(t, err, broker.ErrInboxClosed)

	// Deliveries after close are dropped without blocking
	client.Deliver("/mine/epoch", "8")
}
