// Package session tracks the state derived from inbound messages and decides
// which messages are real changes worth a notification.
package session

import (
	"fmt"
	"sync"

	"dagd-mqtt/internal/algo"
	"dagd-mqtt/internal/event"
	"dagd-mqtt/internal/logger"
	"dagd-mqtt/internal/payload"
)

// State is a snapshot of the session
type State struct {
	Algorithm       algo.Code `json:"algorithm"`
	Epoch           uint64    `json:"epoch"`
	Block           uint64    `json:"block"`
	Hold            bool      `json:"hold"`
	ShutdownPending bool      `json:"shutdown_pending"`
}

// Tracker owns the session state. All mutation goes through Apply.
type Tracker struct {
	state  State
	logger *logger.Logger
	mu     sync.RWMutex
}

// NewTracker creates a tracker with no algorithm set
func NewTracker(log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewNop()
	}
	return &Tracker{
		state:  State{Algorithm: algo.Unset},
		logger: log,
	}
}

// Apply folds msg into the state. It returns the notification kind for msg
// and whether that notification should fire. Shutdown messages always fire,
// even when the flag does not change.
func (t *Tracker) Apply(msg payload.Message) (event.Kind, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch m := msg.(type) {
	case payload.EpochMessage:
		if m.Algorithm == t.state.Algorithm && m.Epoch == t.state.Epoch {
			return event.EpochChanged, false, nil
		}
		t.state.Algorithm = m.Algorithm
		t.state.Epoch = m.Epoch
		return event.EpochChanged, true, nil

	case payload.MinedStateMessage:
		if m.Holding == t.state.Hold {
			return event.MinedStateChanged, false, nil
		}
		if m.Holding {
			t.logger.Debug("begin holding")
		} else {
			t.logger.Debug("end holding")
		}
		t.state.Hold = m.Holding
		return event.MinedStateChanged, true, nil

	case payload.ShutdownMessage:
		t.state.ShutdownPending = m.Pending
		return event.ShutdownRequested, true, nil

	default:
		return 0, false, fmt.Errorf("unsupported message type %T", msg)
	}
}

// Snapshot returns a copy of the current state
func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Hold reports whether upstream is holding for an epoch upload
func (t *Tracker) Hold() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Hold
}

// ShutdownPending reports the last shutdown flag received
func (t *Tracker) ShutdownPending() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.ShutdownPending
}

// Epoch returns the current algorithm and epoch
func (t *Tracker) Epoch() (algo.Code, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Algorithm, t.state.Epoch
}
