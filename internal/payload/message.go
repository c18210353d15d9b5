package payload

import (
	"fmt"

	"dagd-mqtt/internal/algo"
)

// Message is a decoded inbound payload. The set of implementations is closed.
type Message interface {
	Topic() Topic
	isMessage()
}

// EpochMessage announces the active epoch and DAG algorithm
type EpochMessage struct {
	Epoch     uint64
	Algorithm algo.Code
}

// MinedStateMessage reports whether upstream is holding for an epoch upload
type MinedStateMessage struct {
	Holding bool
}

// ShutdownMessage carries the requested shutdown flag
type ShutdownMessage struct {
	Pending bool
}

func (EpochMessage) Topic() Topic      { return TopicEpoch }
func (MinedStateMessage) Topic() Topic { return TopicMinedState }
func (ShutdownMessage) Topic() Topic   { return TopicShutdown }

func (EpochMessage) isMessage()      {}
func (MinedStateMessage) isMessage() {}
func (ShutdownMessage) isMessage()   {}

func (m EpochMessage) String() string {
	return fmt.Sprintf("epoch %d (%s)", m.Epoch, m.Algorithm)
}
