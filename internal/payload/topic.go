package payload

import (
	"fmt"

	"dagd-mqtt/config"
)

// Topic is the closed set of topics the adapter knows about
type Topic int

const (
	TopicUnknown Topic = iota
	TopicEpoch
	TopicMinedState
	TopicShutdown
	// TopicStatus is outbound only; the decoder rejects it
	TopicStatus
)

// Inbound lists the topics the adapter subscribes to
var Inbound = []Topic{TopicEpoch, TopicMinedState, TopicShutdown}

func (t Topic) String() string {
	switch t {
	case TopicEpoch:
		return "epoch"
	case TopicMinedState:
		return "mined_state"
	case TopicShutdown:
		return "shutdown"
	case TopicStatus:
		return "status"
	default:
		return "unknown"
	}
}

// QoS is the subscription quality of service for an inbound topic
func (t Topic) QoS() byte {
	switch t {
	case TopicEpoch, TopicShutdown:
		return 1
	default:
		return 0
	}
}

// TopicMap resolves broker topic names to Topic values
type TopicMap struct {
	byName map[string]Topic
	names  map[Topic]string
}

// NewTopicMap builds the lookup from the configured topic names
func NewTopicMap(cfg config.TopicConfig) (*TopicMap, error) {
	m := &TopicMap{
		byName: make(map[string]Topic, 4),
		names:  make(map[Topic]string, 4),
	}

	for topic, name := range map[Topic]string{
		TopicEpoch:      cfg.Epoch,
		TopicMinedState: cfg.MinedState,
		TopicShutdown:   cfg.Shutdown,
		TopicStatus:     cfg.Status,
	} {
		if name == "" {
			return nil, fmt.Errorf("%s topic name is empty", topic)
		}
		if other, ok := m.byName[name]; ok {
			return nil, fmt.Errorf("%s and %s share topic name %q", other, topic, name)
		}
		m.byName[name] = topic
		m.names[topic] = name
	}

	return m, nil
}

// Lookup returns the Topic for a broker topic name
func (m *TopicMap) Lookup(name string) (Topic, bool) {
	t, ok := m.byName[name]
	return t, ok
}

// Name returns the broker topic name for t
func (m *TopicMap) Name(t Topic) string {
	return m.names[t]
}

// InboundNames returns the names to subscribe to, in Inbound order
func (m *TopicMap) InboundNames() []string {
	names := make([]string, 0, len(Inbound))
	for _, t := range Inbound {
		names = append(names, m.names[t])
	}
	return names
}
