// Package signal is the subscription registry for features that piggyback on
// the session channel (call signaling and the like). Delivery is best-effort
// and unordered; subscribers filter event types themselves.
package signal

import (
	"sync"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// Handler receives every parsed inbound envelope.
type Handler func(env schema.Envelope)

// Registry is a set of independent subscriber handles. Registration and
// removal never affect message delivery or other subscribers.
type Registry struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[uint64]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[uint64]Handler)}
}

// Subscribe registers a handler and returns its unsubscribe function.
// Unsubscribing twice is harmless.
func (r *Registry) Subscribe(fn Handler) (unsubscribe func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.handlers, id)
		r.mu.Unlock()
	}
}

// Len reports the number of active subscribers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Publish delivers the envelope to every subscriber. A panicking subscriber
// is logged and never takes down delivery to the rest.
func (r *Registry) Publish(env schema.Envelope) {
	if r == nil {
		return
	}
	r.mu.Lock()
	handlers := make([]Handler, 0, len(r.handlers))
	for _, fn := range r.handlers {
		handlers = append(handlers, fn)
	}
	r.mu.Unlock()

	for _, fn := range handlers {
		deliver(fn, env)
	}
}

func deliver(fn Handler, env schema.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			logs.Errorf("signal: subscriber panic: %v", rec)
		}
	}()
	fn(env)
}
