package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 1883
)

type Config struct {
	MQTT    MQTTConfig    `json:"mqtt" yaml:"mqtt"`
	Topics  TopicConfig   `json:"topics" yaml:"topics"`
	Logging LogConfig     `json:"logging" yaml:"logging"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Status  StatusConfig  `json:"status" yaml:"status"`
}

type MQTTConfig struct {
	Transport string   `json:"transport" yaml:"transport"` // mqtt or nats
	Broker    string   `json:"broker" yaml:"broker"`       // host, host:port or URL
	ClientID  string   `json:"clientId" yaml:"clientId"`
	Username  string   `json:"username" yaml:"username"`
	Password  string   `json:"password" yaml:"password"`
	KeepAlive string   `json:"keepAlive" yaml:"keepAlive"` // Duration string
	PollWait  string   `json:"pollWait" yaml:"pollWait"`   // Duration string
	InboxSize int      `json:"inboxSize" yaml:"inboxSize"`
	NATSURLs  []string `json:"natsUrls" yaml:"natsUrls"`
}

type TopicConfig struct {
	Epoch      string `json:"epoch" yaml:"epoch"`
	MinedState string `json:"minedState" yaml:"minedState"`
	Shutdown   string `json:"shutdown" yaml:"shutdown"`
	Status     string `json:"status" yaml:"status"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`           // debug, info, warn, error
	OutputPath string `json:"outputPath" yaml:"outputPath"` // file path or "stdout"
	Encoding   string `json:"encoding" yaml:"encoding"`     // json or console
}

type MetricsConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Address        string `json:"address" yaml:"address"`
	Path           string `json:"path" yaml:"path"`
	UpdateInterval string `json:"updateInterval" yaml:"updateInterval"` // Duration string
}

type StatusConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Interval string `json:"interval" yaml:"interval"` // Duration string
}

// Load reads and parses the configuration file. Files ending in .yaml or .yml
// are parsed as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.SetDefaults()

	// Validate the configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var config Config
	config.SetDefaults()
	return &config
}

// SetDefaults fills in every empty field
func (c *Config) SetDefaults() {
	if c.MQTT.Transport == "" {
		c.MQTT.Transport = "mqtt"
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = fmt.Sprintf("%s:%d", DefaultHost, DefaultPort)
	}
	if c.MQTT.KeepAlive == "" {
		c.MQTT.KeepAlive = "1h"
	}
	if c.MQTT.PollWait == "" {
		c.MQTT.PollWait = "200ms"
	}
	if c.MQTT.InboxSize <= 0 {
		c.MQTT.InboxSize = 256
	}

	// Set defaults for topics
	if c.Topics.Epoch == "" {
		c.Topics.Epoch = "/mine/epoch"
	}
	if c.Topics.MinedState == "" {
		c.Topics.MinedState = "/mine/mined-state"
	}
	if c.Topics.Shutdown == "" {
		c.Topics.Shutdown = "/sys/shutdown"
	}
	if c.Topics.Status == "" {
		c.Topics.Status = "/mine/dag-cache"
	}

	// Set defaults for logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.OutputPath == "" {
		c.Logging.OutputPath = "stdout"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}

	// Set defaults for metrics
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":2112"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.UpdateInterval == "" {
		c.Metrics.UpdateInterval = "15s"
	}

	if c.Status.Interval == "" {
		c.Status.Interval = "5s"
	}
}

// Validate re-checks the configuration, e.g. after flag overrides
func (c *Config) Validate() error {
	return validateConfig(c)
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	switch cfg.MQTT.Transport {
	case "mqtt":
		if _, err := BrokerURL(cfg.MQTT.Broker); err != nil {
			return err
		}
	case "nats":
		if len(cfg.MQTT.NATSURLs) == 0 {
			return fmt.Errorf("nats urls are required when transport is nats")
		}
	default:
		return fmt.Errorf("invalid transport: %s", cfg.MQTT.Transport)
	}

	if _, err := time.ParseDuration(cfg.MQTT.KeepAlive); err != nil {
		return fmt.Errorf("invalid mqtt keep alive: %w", err)
	}
	// A zero poll wait would make the run loop spin
	if err := positiveDuration("mqtt poll wait", cfg.MQTT.PollWait); err != nil {
		return err
	}

	// Inbound topics must be distinct, the decoder is keyed on them
	seen := make(map[string]string)
	for name, topic := range map[string]string{
		"epoch":       cfg.Topics.Epoch,
		"mined state": cfg.Topics.MinedState,
		"shutdown":    cfg.Topics.Shutdown,
	} {
		if other, ok := seen[topic]; ok {
			return fmt.Errorf("%s topic duplicates %s topic: %s", name, other, topic)
		}
		seen[topic] = name
	}

	// Validate logging config
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	// Validate metrics config
	if cfg.Metrics.Enabled {
		if err := positiveDuration("metrics update interval", cfg.Metrics.UpdateInterval); err != nil {
			return err
		}
	}

	if cfg.Status.Enabled {
		if err := positiveDuration("status interval", cfg.Status.Interval); err != nil {
			return err
		}
	}

	return nil
}

func positiveDuration(name, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s: %s is not positive", name, value)
	}
	return nil
}

// BrokerURL turns a broker address into a paho server URL. It accepts a bare
// host, host:port, or a full URL. A missing port means 1883.
func BrokerURL(broker string) (string, error) {
	if broker == "" {
		broker = DefaultHost
	}

	if strings.Contains(broker, "://") {
		u, err := url.Parse(broker)
		if err != nil {
			return "", fmt.Errorf("invalid broker address %q: %w", broker, err)
		}
		if u.Port() == "" {
			u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(DefaultPort))
		} else if _, err := parsePort(u.Port()); err != nil {
			return "", err
		}
		return u.String(), nil
	}

	host, port := broker, DefaultPort
	switch {
	case strings.HasPrefix(broker, "["):
		// Bracketed IPv6, with or without a port
		if strings.HasSuffix(broker, "]") {
			host = broker[1 : len(broker)-1]
			break
		}
		h, p, err := net.SplitHostPort(broker)
		if err != nil {
			return "", fmt.Errorf("invalid broker address %q: %w", broker, err)
		}
		if port, err = parsePort(p); err != nil {
			return "", err
		}
		host = h
	case strings.Count(broker, ":") > 1:
		// Bare IPv6 address; a port needs brackets
	case strings.Contains(broker, ":"):
		i := strings.LastIndex(broker, ":")
		p, err := parsePort(broker[i+1:])
		if err != nil {
			return "", err
		}
		host, port = broker[:i], p
	}
	if host == "" {
		host = DefaultHost
	}

	return "tcp://" + net.JoinHostPort(host, strconv.Itoa(port)), nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.ParseUint(s, 0, 16)
	if err != nil || port == 0 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return int(port), nil
}

// Durations returns the parsed keep alive and poll wait settings
func (c *MQTTConfig) Durations() (keepAlive, pollWait time.Duration) {
	keepAlive, _ = time.ParseDuration(c.KeepAlive)
	pollWait, _ = time.ParseDuration(c.PollWait)
	return keepAlive, pollWait
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(broker, clientID, metricsAddr, metricsPath string, metricsInterval, statusInterval time.Duration) {
	if broker != "" {
		c.MQTT.Broker = broker
	}
	if clientID != "" {
		c.MQTT.ClientID = clientID
	}
	if metricsAddr != "" {
		c.Metrics.Address = metricsAddr
	}
	if metricsPath != "" {
		c.Metrics.Path = metricsPath
	}
	if metricsInterval > 0 {
		c.Metrics.UpdateInterval = metricsInterval.String()
	}
	if statusInterval > 0 {
		c.Status.Interval = statusInterval.String()
	}
}
