package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/logging"
)

// Generator publishes synthetic events across the SSE channels so client
// work can be exercised without the production backend.
type Generator struct {
	hub      *Hub
	logger   logging.Logger
	interval time.Duration
	tenantID string
	rng      *rand.Rand

	// live session ids the generator updates and stops
	sessions []string
}

// NewGenerator creates a generator emitting one event per interval.
func NewGenerator(hub *Hub, logger logging.Logger, interval time.Duration) *Generator {
	if interval <= 0 {
		interval = time.Second
	}
	return &Generator{
		hub:      hub,
		logger:   logger,
		interval: interval,
		tenantID: "tenant-dev",
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run emits events until ctx is done.
func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.emit()
		}
	}
}

func (g *Generator) emit() {
	switch g.rng.Intn(5) {
	case 0:
		g.emitONUStatus()
	case 1:
		g.emitAlert()
	case 2:
		g.emitTicket()
	case 3:
		g.emitSubscriber()
	case 4:
		g.emitSession()
	}
}

func (g *Generator) base(eventType string) events.Event {
	return events.Event{
		EventType: eventType,
		TenantID:  g.tenantID,
		Timestamp: time.Now().UTC(),
	}
}

func (g *Generator) emitONUStatus() {
	statuses := []string{"online", "offline", "dying_gasp", "los"}
	payload := events.ONUStatusPayload{
		Event:        g.base(events.TypeONUStatusChanged),
		ONUID:        fmt.Sprintf("onu-%03d", g.rng.Intn(200)),
		SerialNumber: fmt.Sprintf("GPON%08X", g.rng.Uint32()),
		OLTID:        fmt.Sprintf("olt-%02d", g.rng.Intn(4)),
		Status:       statuses[g.rng.Intn(len(statuses))],
		RxPowerDBm:   -18 - g.rng.Float64()*10,
	}
	g.hub.Broadcast(events.ChannelONUStatus, payload.EventType, payload)
}

func (g *Generator) emitAlert() {
	eventType := events.TypeAlertRaised
	if g.rng.Intn(3) == 0 {
		eventType = events.TypeAlertCleared
	}
	severities := []string{"critical", "major", "minor", "warning"}
	payload := events.AlertPayload{
		Event:    g.base(eventType),
		AlertID:  uuid.NewString(),
		Severity: severities[g.rng.Intn(len(severities))],
		Source:   fmt.Sprintf("olt-%02d", g.rng.Intn(4)),
		Message:  "synthetic alert",
	}
	g.hub.Broadcast(events.ChannelAlerts, payload.EventType, payload)
}

func (g *Generator) emitTicket() {
	eventType := events.TypeTicketCreated
	if g.rng.Intn(2) == 0 {
		eventType = events.TypeTicketUpdated
	}
	payload := events.TicketPayload{
		Event:    g.base(eventType),
		TicketID: fmt.Sprintf("TCK-%05d", g.rng.Intn(10000)),
		Subject:  "synthetic ticket",
		Status:   []string{"open", "pending", "resolved"}[g.rng.Intn(3)],
		Priority: []string{"low", "normal", "high"}[g.rng.Intn(3)],
	}
	g.hub.Broadcast(events.ChannelTickets, payload.EventType, payload)
}

func (g *Generator) emitSubscriber() {
	types := []string{events.TypeSubscriberCreated, events.TypeSubscriberUpdated, events.TypeSubscriberSuspended}
	eventType := types[g.rng.Intn(len(types))]
	payload := events.SubscriberPayload{
		Event:        g.base(eventType),
		SubscriberID: uuid.NewString(),
		Username:     fmt.Sprintf("user%04d", g.rng.Intn(5000)),
		Plan:         []string{"home-25", "home-50", "business-100"}[g.rng.Intn(3)],
		Status:       "active",
	}
	g.hub.Broadcast(events.ChannelSubscribers, payload.EventType, payload)
}

// emitSession keeps a small pool of live sessions moving through their
// lifecycle so session trackers always have state to fold.
func (g *Generator) emitSession() {
	var payload events.RadiusSessionPayload

	switch {
	case len(g.sessions) < 5 || g.rng.Intn(4) == 0:
		id := uuid.NewString()
		g.sessions = append(g.sessions, id)
		payload = events.RadiusSessionPayload{
			Event:     g.base(events.TypeSessionStarted),
			SessionID: id,
			Username:  fmt.Sprintf("user%04d", g.rng.Intn(5000)),
			NASIP:     fmt.Sprintf("10.0.%d.%d", g.rng.Intn(4), g.rng.Intn(255)),
			FramedIP:  fmt.Sprintf("100.64.%d.%d", g.rng.Intn(255), g.rng.Intn(255)),
			StartedAt: time.Now().UTC(),
		}
	case g.rng.Intn(5) == 0:
		idx := g.rng.Intn(len(g.sessions))
		id := g.sessions[idx]
		g.sessions = append(g.sessions[:idx], g.sessions[idx+1:]...)
		payload = events.RadiusSessionPayload{
			Event:     g.base(events.TypeSessionStopped),
			SessionID: id,
		}
	default:
		id := g.sessions[g.rng.Intn(len(g.sessions))]
		payload = events.RadiusSessionPayload{
			Event:     g.base(events.TypeSessionUpdated),
			SessionID: id,
			BytesIn:   int64(g.rng.Intn(1 << 30)),
			BytesOut:  int64(g.rng.Intn(1 << 28)),
		}
	}

	g.hub.Broadcast(events.ChannelRadiusSessions, payload.EventType, payload)
}
