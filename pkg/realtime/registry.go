// Package realtime implements the console's live event layer: an SSE client
// and a WebSocket client with reconnection state machines, endpoint
// factories bound to the console's realtime channels, and a shared provider
// that fans events out to many consumers over one connection per channel.
package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/logging"
)

// Handler consumes a dispatched event. Handlers must not be re-entrant into
// the owning client's lifecycle methods.
type Handler func(ev events.Event)

type registration struct {
	id uuid.UUID
	fn Handler
}

// handlerRegistry maps event-type keys (including the wildcard) to ordered
// handler registrations. It is mutated only through subscribe/unsubscribe/
// clear; dispatch touches a snapshot so handlers can subscribe or
// unsubscribe from inside a callback without deadlocking.
type handlerRegistry struct {
	mu       sync.Mutex
	handlers map[string][]registration
	logger   logging.Logger
}

func newHandlerRegistry(logger logging.Logger) *handlerRegistry {
	return &handlerRegistry{
		handlers: make(map[string][]registration),
		logger:   logger,
	}
}

// subscribe registers fn under eventType and returns an unsubscribe closure
// removing exactly that registration. When a type's last registration is
// removed, the map entry goes with it.
func (r *handlerRegistry) subscribe(eventType string, fn Handler) func() {
	id := uuid.New()

	r.mu.Lock()
	r.handlers[eventType] = append(r.handlers[eventType], registration{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			regs := r.handlers[eventType]
			for i, reg := range regs {
				if reg.id == id {
					r.handlers[eventType] = append(regs[:i:i], regs[i+1:]...)
					break
				}
			}
			if len(r.handlers[eventType]) == 0 {
				delete(r.handlers, eventType)
			}
		})
	}
}

// dispatch invokes every handler registered for the event's exact type, then
// every wildcard handler, each exactly once per registration. A panicking
// handler is logged and must never abort delivery to the rest.
func (r *handlerRegistry) dispatch(ev events.Event) {
	r.mu.Lock()
	snapshot := make([]registration, 0, len(r.handlers[ev.EventType])+len(r.handlers[events.Wildcard]))
	snapshot = append(snapshot, r.handlers[ev.EventType]...)
	if ev.EventType != events.Wildcard {
		snapshot = append(snapshot, r.handlers[events.Wildcard]...)
	}
	r.mu.Unlock()

	for _, reg := range snapshot {
		r.invoke(reg, ev)
	}
}

func (r *handlerRegistry) invoke(reg registration, ev events.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logging.Fields{
				"event_type": ev.EventType,
				"panic":      rec,
			}).Error("Event handler panic")
		}
	}()
	reg.fn(ev)
}

// clear drops every registration. Called on client close so no handler can
// fire against a dead connection.
func (r *handlerRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string][]registration)
}

func (r *handlerRegistry) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[eventType])
}
