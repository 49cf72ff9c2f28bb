package realtime

import (
	"sort"
	"sync"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/logging"
)

// SessionTracker folds session lifecycle events into the live RADIUS
// session table keyed by session_id: started adds, updated merges in place,
// stopped removes. An update for an unknown session is a no-op; update
// never implicitly creates.
type SessionTracker struct {
	mu       sync.Mutex
	sessions map[string]events.RadiusSessionPayload
	logger   logging.Logger
}

// NewSessionTracker creates an empty tracker.
func NewSessionTracker(logger logging.Logger) *SessionTracker {
	if logger == nil {
		logger = logging.NewLoggerWithComponent("session-tracker")
	}
	return &SessionTracker{
		sessions: make(map[string]events.RadiusSessionPayload),
		logger:   logger,
	}
}

// Apply folds one event into the table. Non-session tags are ignored so the
// tracker can sit behind a wildcard subscription.
func (t *SessionTracker) Apply(ev events.Event) {
	switch ev.EventType {
	case events.TypeSessionStarted, events.TypeSessionUpdated, events.TypeSessionStopped:
	default:
		return
	}

	var payload events.RadiusSessionPayload
	if err := ev.Decode(&payload); err != nil {
		t.logger.WithError(err).Warn("Dropping undecodable session event")
		return
	}
	if payload.SessionID == "" {
		t.logger.Warn("Dropping session event without session_id")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.EventType {
	case events.TypeSessionStarted:
		t.sessions[payload.SessionID] = payload
	case events.TypeSessionUpdated:
		existing, ok := t.sessions[payload.SessionID]
		if !ok {
			return
		}
		// Merge the update over the known session so partial frames
		// (e.g. counters only) keep earlier fields.
		if err := ev.Decode(&existing); err != nil {
			return
		}
		t.sessions[payload.SessionID] = existing
	case events.TypeSessionStopped:
		delete(t.sessions, payload.SessionID)
	}
}

// Bind subscribes the tracker to a client's session events and returns the
// combined unsubscribe closure.
func (t *SessionTracker) Bind(c *WebSocketClient) func() {
	unsubs := []func(){
		c.Subscribe(events.TypeSessionStarted, t.Apply),
		c.Subscribe(events.TypeSessionUpdated, t.Apply),
		c.Subscribe(events.TypeSessionStopped, t.Apply),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Sessions returns a snapshot sorted by session id.
func (t *SessionTracker) Sessions() []events.RadiusSessionPayload {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]events.RadiusSessionPayload, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Len returns the live session count.
func (t *SessionTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
