// Package event holds the notification registry that fans decoded session
// changes out to local listeners.
package event

import (
	"fmt"
	"sync"

	"dagd-mqtt/internal/logger"
)

// Kind is the closed set of notifications the adapter emits
type Kind int

const (
	EpochChanged Kind = iota
	MinedStateChanged
	ShutdownRequested
)

// Kinds lists every notification kind
var Kinds = []Kind{EpochChanged, MinedStateChanged, ShutdownRequested}

func (k Kind) String() string {
	switch k {
	case EpochChanged:
		return "epoch_changed"
	case MinedStateChanged:
		return "mined_state_changed"
	case ShutdownRequested:
		return "shutdown_requested"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Callback is invoked with the context value given at registration
type Callback interface {
	Invoke(ctx any)
}

// CallbackFunc adapts a plain function to Callback
type CallbackFunc func(ctx any)

func (f CallbackFunc) Invoke(ctx any) {
	f(ctx)
}

type registration struct {
	kind     Kind
	callback Callback
	ctx      any
}

// Registry is an append-only list of (kind, callback, context) registrations
type Registry struct {
	subs   []registration
	logger *logger.Logger
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{logger: log}
}

// Subscribe appends a registration. Duplicates are kept and each one fires.
func (r *Registry) Subscribe(kind Kind, cb Callback, ctx any) {
	if cb == nil {
		return
	}

	r.mu.Lock()
	r.subs = append(r.subs, registration{kind: kind, callback: cb, ctx: ctx})
	r.mu.Unlock()

	r.logger.Debug("notification registered", "kind", kind.String())
}

// SubscribeFunc is Subscribe for a plain function
func (r *Registry) SubscribeFunc(kind Kind, fn func(ctx any), ctx any) {
	if fn == nil {
		return
	}
	r.Subscribe(kind, CallbackFunc(fn), ctx)
}

// Dispatch calls every callback registered for kind, in registration order,
// on the calling goroutine. It returns the number of callbacks invoked.
func (r *Registry) Dispatch(kind Kind) int {
	// Callbacks may subscribe; they see their own registration from the next dispatch
	r.mu.RLock()
	subs := r.subs
	r.mu.RUnlock()

	invoked := 0
	for _, s := range subs {
		if s.kind != kind {
			continue
		}
		s.callback.Invoke(s.ctx)
		invoked++
	}

	return invoked
}

// Len returns the number of registrations
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
