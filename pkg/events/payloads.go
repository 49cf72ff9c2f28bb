package events

import "time"

// ONUStatusPayload carries optical network unit health transitions.
type ONUStatusPayload struct {
	Event
	ONUID        string  `json:"onu_id"`
	SerialNumber string  `json:"serial_number,omitempty"`
	OLTID        string  `json:"olt_id,omitempty"`
	Status       string  `json:"status"`
	RxPowerDBm   float64 `json:"rx_power_dbm,omitempty"`
}

// RadiusSessionPayload carries live RADIUS accounting state. SessionID is
// the tracking key for session tables.
type RadiusSessionPayload struct {
	Event
	SessionID   string    `json:"session_id"`
	Username    string    `json:"username,omitempty"`
	NASIP       string    `json:"nas_ip,omitempty"`
	FramedIP    string    `json:"framed_ip,omitempty"`
	BytesIn     int64     `json:"bytes_in,omitempty"`
	BytesOut    int64     `json:"bytes_out,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	TerminateBy string    `json:"terminate_cause,omitempty"`
}

// JobProgressPayload carries provisioning/maintenance job progress.
type JobProgressPayload struct {
	Event
	JobID    string  `json:"job_id"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Step     string  `json:"step,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// CampaignProgressPayload carries notification campaign progress.
type CampaignProgressPayload struct {
	Event
	CampaignID string  `json:"campaign_id"`
	Status     string  `json:"status"`
	Sent       int     `json:"sent"`
	Delivered  int     `json:"delivered"`
	Failed     int     `json:"failed"`
	Progress   float64 `json:"progress"`
}

// TicketPayload carries support ticket lifecycle events.
type TicketPayload struct {
	Event
	TicketID   string `json:"ticket_id"`
	Subject    string `json:"subject,omitempty"`
	Status     string `json:"status"`
	Priority   string `json:"priority,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

// AlertPayload carries network/system alerts.
type AlertPayload struct {
	Event
	AlertID  string `json:"alert_id"`
	Severity string `json:"severity"`
	Source   string `json:"source,omitempty"`
	Message  string `json:"message"`
}

// SubscriberPayload carries subscriber account lifecycle events.
type SubscriberPayload struct {
	Event
	SubscriberID string `json:"subscriber_id"`
	Username     string `json:"username,omitempty"`
	Plan         string `json:"plan,omitempty"`
	Status       string `json:"status"`
}

// DecodePayload maps an event's tag to its typed variant. Unknown tags
// return ErrUnknownEventType so callers can log and drop while wildcard
// subscribers still receive the untyped event.
func DecodePayload(ev Event) (any, error) {
	switch ev.EventType {
	case TypeONUStatusChanged:
		var p ONUStatusPayload
		return &p, ev.Decode(&p)
	case TypeSessionStarted, TypeSessionUpdated, TypeSessionStopped:
		var p RadiusSessionPayload
		return &p, ev.Decode(&p)
	case TypeJobProgress, TypeJobCompleted, TypeJobFailed:
		var p JobProgressPayload
		return &p, ev.Decode(&p)
	case TypeCampaignProgress, TypeCampaignCompleted:
		var p CampaignProgressPayload
		return &p, ev.Decode(&p)
	case TypeTicketCreated, TypeTicketUpdated:
		var p TicketPayload
		return &p, ev.Decode(&p)
	case TypeAlertRaised, TypeAlertCleared:
		var p AlertPayload
		return &p, ev.Decode(&p)
	case TypeSubscriberCreated, TypeSubscriberUpdated, TypeSubscriberSuspended:
		var p SubscriberPayload
		return &p, ev.Decode(&p)
	default:
		return nil, ErrUnknownEventType
	}
}
