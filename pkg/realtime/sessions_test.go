package realtime

import (
	"testing"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
)

func sessionEvent(t *testing.T, payload string) events.Event {
	t.Helper()
	ev, err := events.Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse session event: %v", err)
	}
	return ev
}

func TestSessionTrackerLifecycle(t *testing.T) {
	tr := NewSessionTracker(testLogger())

	tr.Apply(sessionEvent(t, `{"event_type":"session.started","session_id":"s1","username":"bob","framed_ip":"10.0.0.17"}`))
	if tr.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", tr.Len())
	}

	// Partial update merges over the known session.
	tr.Apply(sessionEvent(t, `{"event_type":"session.updated","session_id":"s1","bytes_in":1024,"bytes_out":2048}`))
	sessions := tr.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session after update, got %d", len(sessions))
	}
	s := sessions[0]
	if s.Username != "bob" || s.FramedIP != "10.0.0.17" {
		t.Fatalf("update dropped earlier fields: %+v", s)
	}
	if s.BytesIn != 1024 || s.BytesOut != 2048 {
		t.Fatalf("update counters not applied: %+v", s)
	}

	tr.Apply(sessionEvent(t, `{"event_type":"session.stopped","session_id":"s1"}`))
	if tr.Len() != 0 {
		t.Fatalf("expected empty table after stop, got %d", tr.Len())
	}
}

func TestSessionTrackerUpdateNeverCreates(t *testing.T) {
	tr := NewSessionTracker(testLogger())

	tr.Apply(sessionEvent(t, `{"event_type":"session.updated","session_id":"ghost","bytes_in":99}`))
	if tr.Len() != 0 {
		t.Fatal("update created a session it never saw start")
	}
}

func TestSessionTrackerStopUnknownIsNoOp(t *testing.T) {
	tr := NewSessionTracker(testLogger())

	tr.Apply(sessionEvent(t, `{"event_type":"session.started","session_id":"s1","username":"bob"}`))
	tr.Apply(sessionEvent(t, `{"event_type":"session.stopped","session_id":"other"}`))
	if tr.Len() != 1 {
		t.Fatalf("stop of unknown session disturbed the table: %d", tr.Len())
	}
}

func TestSessionTrackerIgnoresForeignEvents(t *testing.T) {
	tr := NewSessionTracker(testLogger())

	tr.Apply(sessionEvent(t, `{"event_type":"alert.raised","alert_id":"a1","severity":"minor","message":"m"}`))
	tr.Apply(sessionEvent(t, `{"event_type":"session.started"}`)) // no session_id
	if tr.Len() != 0 {
		t.Fatalf("tracker accepted events it should drop: %d", tr.Len())
	}
}

func TestSessionTrackerSnapshotSorted(t *testing.T) {
	tr := NewSessionTracker(testLogger())

	tr.Apply(sessionEvent(t, `{"event_type":"session.started","session_id":"s3"}`))
	tr.Apply(sessionEvent(t, `{"event_type":"session.started","session_id":"s1"}`))
	tr.Apply(sessionEvent(t, `{"event_type":"session.started","session_id":"s2"}`))

	sessions := tr.Sessions()
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	for i, want := range []string{"s1", "s2", "s3"} {
		if sessions[i].SessionID != want {
			t.Fatalf("snapshot not sorted: %v", sessions)
		}
	}
}
