package mqtt

import (
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"dagd-mqtt/config"
	"dagd-mqtt/internal/broker"
	"dagd-mqtt/internal/metrics"
)

const (
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250
)

// ConnectionManagerImpl handles MQTT connection lifecycle
type ConnectionManagerImpl struct {
	broker    *MQTTBroker
	client    mqtt.Client
	connected atomic.Bool
}

// NewConnectionManager creates a connection manager. It does not connect;
// the broker calls Connect once every component is wired.
func NewConnectionManager(b *MQTTBroker) (ConnectionManager, error) {
	cm := &ConnectionManagerImpl{
		broker: b,
	}

	server, err := config.BrokerURL(b.config.MQTT.Broker)
	if err != nil {
		return nil, err
	}
	keepAlive, _ := b.config.MQTT.Durations()

	opts := mqtt.NewClientOptions().
		AddBroker(server).
		SetClientID(broker.ClientID(b.config.MQTT.ClientID)).
		SetUsername(b.config.MQTT.Username).
		SetPassword(b.config.MQTT.Password).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute) // Prevent exponential backoff from growing too large

	// Set up connection handlers
	opts.OnConnect = cm.handleConnect
	opts.OnConnectionLost = cm.handleDisconnect
	opts.OnReconnecting = cm.handleReconnecting

	cm.client = mqtt.NewClient(opts)
	return cm, nil
}

// NewConnectionManagerWithClient creates a connection manager with a provided client (for testing)
func NewConnectionManagerWithClient(b *MQTTBroker, client mqtt.Client) ConnectionManager {
	cm := &ConnectionManagerImpl{
		broker: b,
		client: client,
	}
	cm.connected.Store(true)
	return cm
}

// Connect establishes connection to the MQTT broker
func (cm *ConnectionManagerImpl) Connect() error {
	cm.broker.setState(broker.BrokerStateConnecting)

	token := cm.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("failed to connect to broker: timeout after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		cm.broker.setState(broker.BrokerStateDisconnected)
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	// The OnConnect handler may not have run yet
	cm.connected.Store(true)
	cm.broker.setState(broker.BrokerStateConnected)
	return nil
}

// Disconnect cleanly disconnects from the MQTT broker
func (cm *ConnectionManagerImpl) Disconnect() {
	cm.broker.logger.Info("disconnecting from mqtt broker")
	cm.connected.Store(false)
	cm.client.Disconnect(disconnectQuiesce)
	cm.broker.setState(broker.BrokerStateDisconnected)
}

// IsConnected returns current connection status
func (cm *ConnectionManagerImpl) IsConnected() bool {
	return cm.connected.Load()
}

// GetClient returns the MQTT client instance
func (cm *ConnectionManagerImpl) GetClient() mqtt.Client {
	return cm.client
}

// handleConnect runs on every (re)connect and restores the subscriptions.
// A failed subscribe is fatal and surfaces on the next poll.
func (cm *ConnectionManagerImpl) handleConnect(client mqtt.Client) {
	cm.broker.logger.Info("mqtt client connected", "broker", cm.broker.config.MQTT.Broker)
	cm.connected.Store(true)
	cm.broker.setState(broker.BrokerStateConnected)
	cm.broker.markReconnect()

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetMQTTConnectionStatus(true)
	})

	if cm.broker.sub == nil {
		return
	}
	if err := cm.broker.sub.ResubscribeAll(); err != nil {
		cm.broker.logger.Error("failed to resubscribe to topics after reconnect",
			"error", err)
		cm.broker.inbox.Fail(fmt.Errorf("resubscribe: %w", err))
		return
	}
	cm.broker.logger.Debug("subscriptions active",
		"topics", cm.broker.sub.GetSubscribedTopics())
}

// handleDisconnect processes connection loss; paho reconnects on its own
func (cm *ConnectionManagerImpl) handleDisconnect(client mqtt.Client, err error) {
	cm.broker.logger.Warn("reconnecting mqtt", "reason", err)
	cm.connected.Store(false)
	cm.broker.setState(broker.BrokerStateReconnecting)

	if cm.broker.sub != nil {
		cm.broker.sub.MarkLost()
	}

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetMQTTConnectionStatus(false)
	})
}

// handleReconnecting processes reconnection attempts
func (cm *ConnectionManagerImpl) handleReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	cm.broker.logger.Info("mqtt client reconnecting",
		"broker", cm.broker.config.MQTT.Broker,
		"since", time.Since(cm.broker.lastReconnect()))

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncMQTTReconnects()
	})
}
