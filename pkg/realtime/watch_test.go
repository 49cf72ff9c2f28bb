package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
)

func TestWatchersInactiveMakeNoConnections(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	eps := WebSocketEndpoints{BaseURL: srv.URL, Logger: testLogger()}
	ctx := context.Background()

	for _, opts := range []WatchOptions{
		{Authenticated: false},
		{Disabled: true, Authenticated: true},
	} {
		sw, err := WatchSessions(ctx, eps, opts)
		if err != nil {
			t.Fatalf("WatchSessions: %v", err)
		}
		if sw.Status() != events.StatusDisconnected {
			t.Fatalf("inactive session watcher status: %s", sw.Status())
		}
		if len(sw.Sessions()) != 0 {
			t.Fatal("inactive session watcher has sessions")
		}
		if _, ok := sw.Latency(); ok {
			t.Fatal("inactive session watcher reports latency")
		}

		jw, err := WatchJob(ctx, eps, "j1", opts)
		if err != nil {
			t.Fatalf("WatchJob: %v", err)
		}
		if _, ok := jw.Progress(); ok {
			t.Fatal("inactive job watcher reports progress")
		}
		jw.Cancel() // inert, must not panic
		jw.Pause()
		jw.Resume()

		cw, err := WatchCampaign(ctx, eps, "c1", opts)
		if err != nil {
			t.Fatalf("WatchCampaign: %v", err)
		}
		if cw.Status() != events.StatusDisconnected {
			t.Fatalf("inactive campaign watcher status: %s", cw.Status())
		}
		cw.Cancel()
	}

	time.Sleep(30 * time.Millisecond)
	if got := requests.Load(); got != 0 {
		t.Fatalf("inactive watchers made %d requests", got)
	}
}

func TestWatchSessionsTracksTable(t *testing.T) {
	s := newWSTestServer(t)
	eps := WebSocketEndpoints{BaseURL: s.URL, Logger: testLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := WatchSessions(ctx, eps, WatchOptions{Authenticated: true})
	if err != nil {
		t.Fatalf("WatchSessions: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return w.Status() == events.StatusConnected }, "watcher never connected")

	s.push(t, map[string]any{"event_type": events.TypeSessionStarted, "session_id": "s1", "username": "alice"})
	s.push(t, map[string]any{"event_type": events.TypeSessionStarted, "session_id": "s2", "username": "bob"})
	waitUntil(t, 2*time.Second, func() bool { return len(w.Sessions()) == 2 }, "sessions never tracked")

	s.push(t, map[string]any{"event_type": events.TypeSessionStopped, "session_id": "s1"})
	waitUntil(t, 2*time.Second, func() bool { return len(w.Sessions()) == 1 }, "stop never applied")
	if w.Sessions()[0].Username != "bob" {
		t.Fatalf("wrong session survived: %+v", w.Sessions())
	}

	cancel()
	waitUntil(t, 2*time.Second, func() bool { return w.Status() == events.StatusDisconnected }, "context cancel never closed the watcher")
}

func TestWatchJobProgressAndControls(t *testing.T) {
	s := newWSTestServer(t)
	eps := WebSocketEndpoints{BaseURL: s.URL, Logger: testLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := WatchJob(ctx, eps, "j1", WatchOptions{Authenticated: true})
	if err != nil {
		t.Fatalf("WatchJob: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return w.Status() == events.StatusConnected }, "watcher never connected")

	if _, ok := w.Progress(); ok {
		t.Fatal("progress reported before any event")
	}

	s.push(t, map[string]any{"event_type": events.TypeJobProgress, "job_id": "j1", "status": "running", "progress": 0.4, "step": "provisioning"})
	waitUntil(t, 2*time.Second, func() bool {
		p, ok := w.Progress()
		return ok && p.Progress == 0.4
	}, "progress never recorded")

	s.push(t, map[string]any{"event_type": events.TypeJobCompleted, "job_id": "j1", "status": "completed", "progress": 1.0})
	waitUntil(t, 2*time.Second, func() bool {
		p, ok := w.Progress()
		return ok && p.Status == "completed"
	}, "completion never recorded")

	w.Cancel()
	select {
	case frame := <-s.inbound:
		if frame["type"] != events.ControlCancelJob {
			t.Fatalf("expected cancel_job, got %v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel never reached the server")
	}
}

func TestWatchCampaignProgressAndControls(t *testing.T) {
	s := newWSTestServer(t)
	eps := WebSocketEndpoints{BaseURL: s.URL, Logger: testLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := WatchCampaign(ctx, eps, "c1", WatchOptions{Authenticated: true})
	if err != nil {
		t.Fatalf("WatchCampaign: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return w.Status() == events.StatusConnected }, "watcher never connected")

	s.push(t, map[string]any{
		"event_type":  events.TypeCampaignProgress,
		"campaign_id": "c1",
		"status":      "sending",
		"sent":        40,
		"delivered":   38,
		"failed":      2,
		"progress":    0.4,
	})
	waitUntil(t, 2*time.Second, func() bool {
		p, ok := w.Progress()
		return ok && p.Sent == 40 && p.Delivered == 38
	}, "campaign progress never recorded")

	w.Pause()
	select {
	case frame := <-s.inbound:
		if frame["type"] != events.ControlPauseCampaign {
			t.Fatalf("expected pause_campaign, got %v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pause never reached the server")
	}
}
