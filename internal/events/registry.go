// Package events implements the listener registry for push events.
//
// The registry is a per-event-name list of callbacks. Delivery is
// synchronous and in registration order; a callback panicking is isolated
// so the remaining callbacks still run. Named convenience channels
// (OnOrderPlaced, OnPriceChanged, ...) are fixed event names with typed
// payload contracts layered on the same mechanism.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Handler receives the raw payload of a single event.
type Handler func(payload json.RawMessage)

type registration struct {
	id int64
	fn Handler
}

// Registry holds listener registrations keyed by event name.
type Registry struct {
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string][]registration
	nextID   int64
}

// NewRegistry creates an empty listener registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		handlers: make(map[string][]registration),
	}
}

// On registers a callback for an event name and returns a function that
// removes exactly that registration. Registering the same callback twice
// yields two independent registrations; each off function removes only its
// own. Calling off more than once is a no-op.
func (r *Registry) On(event string, fn Handler) (off func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers[event] = append(r.handlers[event], registration{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		regs := r.handlers[event]
		for i, reg := range regs {
			if reg.id == id {
				r.handlers[event] = append(regs[:i:i], regs[i+1:]...)
				break
			}
		}
		if len(r.handlers[event]) == 0 {
			delete(r.handlers, event)
		}
	}
}

// Emit delivers a payload to every callback registered for the event,
// synchronously, in registration order.
func (r *Registry) Emit(event string, payload json.RawMessage) {
	r.mu.Lock()
	regs := make([]registration, len(r.handlers[event]))
	copy(regs, r.handlers[event])
	r.mu.Unlock()

	for _, reg := range regs {
		r.deliver(event, reg, payload)
	}
}

func (r *Registry) deliver(event string, reg registration, payload json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event listener panicked",
				"event", event,
				"panic", rec,
			)
		}
	}()
	reg.fn(payload)
}

// ListenerCount returns the number of registrations for an event name.
func (r *Registry) ListenerCount(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[event])
}
