// Package events defines the realtime event model shared by the SSE and
// WebSocket clients: connection states, channel names, the base event shape,
// typed payload variants and the control-frame vocabulary.
package events

import (
	"encoding/json"
	"errors"
	"time"
)

// ConnectionStatus represents the lifecycle state of one realtime connection.
// A client holds exactly one status at any time.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusError        ConnectionStatus = "error"
)

// SSE channel names served under /realtime/
const (
	ChannelONUStatus      = "onu-status"
	ChannelAlerts         = "alerts"
	ChannelTickets        = "tickets"
	ChannelSubscribers    = "subscribers"
	ChannelRadiusSessions = "radius-sessions"
)

// Channels lists every SSE channel the shared provider opens.
var Channels = []string{
	ChannelONUStatus,
	ChannelAlerts,
	ChannelTickets,
	ChannelSubscribers,
	ChannelRadiusSessions,
}

// WebSocket paths under /realtime/
const (
	PathSessions  = "ws/sessions"
	PathJobs      = "ws/jobs"      // + /{jobID}
	PathCampaigns = "ws/campaigns" // + /{campaignID}
)

// Wildcard is the handler-registry key matched by every dispatched event.
const Wildcard = "*"

// Event type constants (dispatch keys)
const (
	TypeONUStatusChanged = "onu.status_changed"

	TypeSessionStarted = "session.started"
	TypeSessionUpdated = "session.updated"
	TypeSessionStopped = "session.stopped"

	TypeJobProgress  = "job.progress"
	TypeJobCompleted = "job.completed"
	TypeJobFailed    = "job.failed"

	TypeCampaignProgress  = "campaign.progress"
	TypeCampaignCompleted = "campaign.completed"

	TypeTicketCreated = "ticket.created"
	TypeTicketUpdated = "ticket.updated"

	TypeAlertRaised  = "alert.raised"
	TypeAlertCleared = "alert.cleared"

	TypeSubscriberCreated   = "subscriber.created"
	TypeSubscriberUpdated   = "subscriber.updated"
	TypeSubscriberSuspended = "subscriber.suspended"
)

// Control message types exchanged over WebSocket channels.
// Client to server:
const (
	ControlPing           = "ping"
	ControlCancelJob      = "cancel_job"
	ControlPauseJob       = "pause_job"
	ControlResumeJob      = "resume_job"
	ControlCancelCampaign = "cancel_campaign"
	ControlPauseCampaign  = "pause_campaign"
	ControlResumeCampaign = "resume_campaign"
)

// Server to client:
const (
	ControlPong       = "pong"
	ControlSubscribed = "subscribed"
	ControlError      = "error"
)

// ControlMessage is a system/control frame. Frames carrying a "type" field
// take the control path; frames carrying an "event_type" field take the
// event dispatch path. A frame may carry both.
type ControlMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// Event is the base shape every domain event conforms to. Variant fields
// live alongside the base fields in the same JSON object; Raw preserves the
// full frame so typed payloads can be decoded from it.
type Event struct {
	EventType string          `json:"event_type"`
	TenantID  string          `json:"tenant_id,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`

	Raw json.RawMessage `json:"-"`
}

var (
	// ErrMissingEventType is returned at the decode boundary for frames
	// without a usable dispatch key.
	ErrMissingEventType = errors.New("events: frame has no event_type")

	// ErrUnknownEventType is returned by DecodePayload for tags outside the
	// known vocabulary. Callers log and drop; wildcard dispatch still sees
	// the event.
	ErrUnknownEventType = errors.New("events: unknown event_type")
)

// Parse validates a raw frame at the decode boundary and returns the event.
// Malformed JSON or a missing event_type is an error; the caller drops the
// frame and keeps the connection alive.
func Parse(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, err
	}
	if ev.EventType == "" {
		return Event{}, ErrMissingEventType
	}
	ev.Raw = append(json.RawMessage(nil), payload...)
	return ev, nil
}

// Decode unmarshals the event's variant fields into v. Variant fields sit at
// the top level of the frame, so the full raw frame is used when present.
func (e Event) Decode(v any) error {
	if len(e.Raw) > 0 {
		return json.Unmarshal(e.Raw, v)
	}
	if len(e.Data) > 0 {
		return json.Unmarshal(e.Data, v)
	}
	return errors.New("events: event carries no payload")
}
