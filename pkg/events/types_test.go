package events

import (
	"errors"
	"testing"
	"time"
)

func TestParseValidEvent(t *testing.T) {
	frame := []byte(`{"event_type":"session.started","tenant_id":"t1","timestamp":"2026-01-01T10:00:00Z","session_id":"s1","username":"bob"}`)

	ev, err := Parse(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.EventType != TypeSessionStarted {
		t.Fatalf("expected session.started, got %s", ev.EventType)
	}
	if ev.TenantID != "t1" {
		t.Fatalf("expected tenant t1, got %s", ev.TenantID)
	}
	if ev.Timestamp.IsZero() {
		t.Fatal("expected parsed timestamp")
	}
	if len(ev.Raw) == 0 {
		t.Fatal("expected raw frame to be preserved")
	}
}

func TestParseRejectsMissingEventType(t *testing.T) {
	_, err := Parse([]byte(`{"tenant_id":"t1"}`))
	if !errors.Is(err, ErrMissingEventType) {
		t.Fatalf("expected ErrMissingEventType, got %v", err)
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	if _, err := Parse([]byte(`{not json`)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDecodePayloadSession(t *testing.T) {
	frame := []byte(`{"event_type":"session.updated","session_id":"s1","bytes_in":1024,"bytes_out":2048}`)
	ev, err := Parse(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload, err := DecodePayload(ev)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	session, ok := payload.(*RadiusSessionPayload)
	if !ok {
		t.Fatalf("expected RadiusSessionPayload, got %T", payload)
	}
	if session.SessionID != "s1" || session.BytesIn != 1024 || session.BytesOut != 2048 {
		t.Fatalf("unexpected payload: %+v", session)
	}
}

func TestDecodePayloadUnknownTag(t *testing.T) {
	ev := Event{EventType: "totally.unknown", Raw: []byte(`{"event_type":"totally.unknown"}`)}
	if _, err := DecodePayload(ev); !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestDecodePayloadAllKnownTags(t *testing.T) {
	cases := map[string]any{
		TypeONUStatusChanged: &ONUStatusPayload{},
		TypeJobProgress:      &JobProgressPayload{},
		TypeCampaignProgress: &CampaignProgressPayload{},
		TypeTicketCreated:    &TicketPayload{},
		TypeAlertRaised:      &AlertPayload{},
		TypeSubscriberUpdated: &SubscriberPayload{},
	}
	for tag := range cases {
		ev := Event{EventType: tag, Raw: []byte(`{"event_type":"` + tag + `"}`)}
		if _, err := DecodePayload(ev); err != nil {
			t.Fatalf("tag %s: unexpected error %v", tag, err)
		}
	}
}

func TestEventDecodePrefersRaw(t *testing.T) {
	ev := Event{
		EventType: TypeAlertRaised,
		Timestamp: time.Now(),
		Raw:       []byte(`{"event_type":"alert.raised","alert_id":"a1","severity":"critical","message":"olt down"}`),
	}
	var alert AlertPayload
	if err := ev.Decode(&alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.AlertID != "a1" || alert.Severity != "critical" {
		t.Fatalf("unexpected alert: %+v", alert)
	}
}
