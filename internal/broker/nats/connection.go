package nats

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"dagd-mqtt/internal/broker"
	"dagd-mqtt/internal/metrics"
)

const reconnectWait = 2 * time.Second

// ErrConnectionClosed is reported when the client gives up reconnecting
var ErrConnectionClosed = errors.New("nats connection closed")

// ConnectionManagerImpl implements ConnectionManager for NATS
type ConnectionManagerImpl struct {
	broker    *NATSBroker
	conn      Conn
	connected atomic.Bool
	closing   atomic.Bool
}

// NewConnectionManager creates a NATS connection manager. It does not
// connect until Connect is called.
func NewConnectionManager(b *NATSBroker) (ConnectionManager, error) {
	if len(b.config.MQTT.NATSURLs) == 0 {
		return nil, fmt.Errorf("no NATS server URLs provided")
	}
	return &ConnectionManagerImpl{broker: b}, nil
}

// NewConnectionManagerWithConn creates a connection manager around an existing connection (for testing)
func NewConnectionManagerWithConn(b *NATSBroker, conn Conn) ConnectionManager {
	cm := &ConnectionManagerImpl{
		broker: b,
		conn:   conn,
	}
	cm.connected.Store(true)
	return cm
}

// Connect establishes connection to the NATS server
func (cm *ConnectionManagerImpl) Connect() error {
	cfg := cm.broker.config.MQTT
	cm.broker.setState(broker.BrokerStateConnecting)

	opts := []nats.Option{
		nats.Name(broker.ClientID(cfg.ClientID)),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1), // Unlimited reconnects
		nats.DisconnectErrHandler(cm.handleDisconnect),
		nats.ReconnectHandler(cm.handleReconnect),
		nats.ClosedHandler(cm.handleClosed),
		nats.ErrorHandler(cm.handleError),
	}

	// Add authentication if configured
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	cm.broker.logger.Info("connecting to NATS server", "urls", cfg.NATSURLs)

	conn, err := nats.Connect(strings.Join(cfg.NATSURLs, ","), opts...)
	if err != nil {
		cm.broker.setState(broker.BrokerStateDisconnected)
		return fmt.Errorf("failed to connect to NATS server: %w", err)
	}
	cm.conn = conn
	cm.connected.Store(true)
	cm.broker.setState(broker.BrokerStateConnected)

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetMQTTConnectionStatus(true)
	})

	cm.broker.logger.Info("connected to NATS server", "url", conn.ConnectedUrl())
	return nil
}

// Disconnect cleanly disconnects from the NATS server
func (cm *ConnectionManagerImpl) Disconnect() {
	if cm.conn == nil {
		return
	}
	cm.broker.logger.Info("disconnecting from NATS server")
	cm.closing.Store(true)
	cm.connected.Store(false)
	cm.conn.Close()
	cm.broker.setState(broker.BrokerStateDisconnected)
}

// IsConnected returns the current connection status
func (cm *ConnectionManagerImpl) IsConnected() bool {
	return cm.conn != nil && cm.conn.IsConnected() && cm.connected.Load()
}

// GetConnection returns the NATS connection
func (cm *ConnectionManagerImpl) GetConnection() Conn {
	return cm.conn
}

// The client restores subscriptions on its own after a reconnect, so the
// handlers only track state.

func (cm *ConnectionManagerImpl) handleDisconnect(_ *nats.Conn, err error) {
	cm.broker.logger.Warn("reconnecting nats", "reason", err)
	cm.connected.Store(false)
	cm.broker.setState(broker.BrokerStateReconnecting)

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetMQTTConnectionStatus(false)
	})
}

func (cm *ConnectionManagerImpl) handleReconnect(_ *nats.Conn) {
	cm.broker.logger.Info("reconnected to NATS server", "url", cm.conn.ConnectedUrl())
	cm.connected.Store(true)
	cm.broker.setState(broker.BrokerStateConnected)
	cm.broker.markReconnect()

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetMQTTConnectionStatus(true)
		m.IncMQTTReconnects()
	})
}

// handleClosed fails the next poll unless we closed the connection ourselves
func (cm *ConnectionManagerImpl) handleClosed(_ *nats.Conn) {
	cm.connected.Store(false)
	cm.broker.setState(broker.BrokerStateDisconnected)

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetMQTTConnectionStatus(false)
	})

	if cm.closing.Load() {
		return
	}
	cm.broker.logger.Error("NATS connection closed")
	cm.broker.inbox.Fail(ErrConnectionClosed)
}

func (cm *ConnectionManagerImpl) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	cm.broker.logger.Error("nats async error", "subject", subject, "error", err)
}
