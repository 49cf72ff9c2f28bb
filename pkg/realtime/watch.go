package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
)

// WatchOptions gate a watcher's network activity. A connection is made only
// when the watcher is not disabled AND the caller asserts it is
// authenticated (in practice: a credentialed cookie jar exists). A watcher
// created before authentication stays silent and makes no network calls at all.
type WatchOptions struct {
	Disabled      bool
	Authenticated bool
}

func (o WatchOptions) active() bool { return !o.Disabled && o.Authenticated }

// SessionWatcher binds a sessions WebSocket client to a caller's lifetime:
// it connects on creation and closes when the context is done, maintaining
// the live session table as events arrive.
type SessionWatcher struct {
	client  *WebSocketClient
	tracker *SessionTracker
}

// WatchSessions opens the live session channel. With inactive options the
// watcher is a connected-nothing shell: empty table, disconnected status.
func WatchSessions(ctx context.Context, eps WebSocketEndpoints, opts WatchOptions) (*SessionWatcher, error) {
	w := &SessionWatcher{tracker: NewSessionTracker(eps.Logger)}
	if !opts.active() {
		return w, nil
	}

	client, err := eps.Sessions()
	if err != nil {
		return nil, err
	}
	w.client = client
	w.tracker.Bind(client)

	go func() {
		<-ctx.Done()
		client.Close()
	}()
	return w, nil
}

// Sessions returns the live session table snapshot.
func (w *SessionWatcher) Sessions() []events.RadiusSessionPayload {
	return w.tracker.Sessions()
}

// Status returns the underlying connection state.
func (w *SessionWatcher) Status() events.ConnectionStatus {
	if w.client == nil {
		return events.StatusDisconnected
	}
	return w.client.Status()
}

// Latency exposes the heartbeat latency signal.
func (w *SessionWatcher) Latency() (time.Duration, bool) {
	if w.client == nil {
		return 0, false
	}
	return w.client.Latency()
}

// JobWatcher follows one job's progress channel, retaining the latest
// progress payload and exposing control actions over the live client.
type JobWatcher struct {
	client  *WebSocketClient
	control JobControl

	mu       sync.Mutex
	progress *events.JobProgressPayload
}

// WatchJob opens the job channel and tracks progress until ctx is done.
func WatchJob(ctx context.Context, eps WebSocketEndpoints, jobID string, opts WatchOptions) (*JobWatcher, error) {
	w := &JobWatcher{}
	if !opts.active() {
		return w, nil
	}

	client, err := eps.Job(jobID)
	if err != nil {
		return nil, err
	}
	w.client = client
	w.control = NewJobControl(client)

	record := func(ev events.Event) {
		var p events.JobProgressPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		w.mu.Lock()
		w.progress = &p
		w.mu.Unlock()
	}
	client.Subscribe(events.TypeJobProgress, record)
	client.Subscribe(events.TypeJobCompleted, record)
	client.Subscribe(events.TypeJobFailed, record)

	go func() {
		<-ctx.Done()
		client.Close()
	}()
	return w, nil
}

// Progress returns the latest progress payload, or false before any arrived.
func (w *JobWatcher) Progress() (events.JobProgressPayload, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.progress == nil {
		return events.JobProgressPayload{}, false
	}
	return *w.progress, true
}

// Cancel requests job cancellation. Fire-and-forget; the outcome arrives as
// a job event.
func (w *JobWatcher) Cancel() { w.control.Cancel() }

// Pause requests a job pause.
func (w *JobWatcher) Pause() { w.control.Pause() }

// Resume requests a job resume.
func (w *JobWatcher) Resume() { w.control.Resume() }

// Status returns the underlying connection state.
func (w *JobWatcher) Status() events.ConnectionStatus {
	if w.client == nil {
		return events.StatusDisconnected
	}
	return w.client.Status()
}

// CampaignWatcher follows one campaign's progress channel.
type CampaignWatcher struct {
	client  *WebSocketClient
	control CampaignControl

	mu       sync.Mutex
	progress *events.CampaignProgressPayload
}

// WatchCampaign opens the campaign channel and tracks progress until ctx is
// done.
func WatchCampaign(ctx context.Context, eps WebSocketEndpoints, campaignID string, opts WatchOptions) (*CampaignWatcher, error) {
	w := &CampaignWatcher{}
	if !opts.active() {
		return w, nil
	}

	client, err := eps.Campaign(campaignID)
	if err != nil {
		return nil, err
	}
	w.client = client
	w.control = NewCampaignControl(client)

	record := func(ev events.Event) {
		var p events.CampaignProgressPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		w.mu.Lock()
		w.progress = &p
		w.mu.Unlock()
	}
	client.Subscribe(events.TypeCampaignProgress, record)
	client.Subscribe(events.TypeCampaignCompleted, record)

	go func() {
		<-ctx.Done()
		client.Close()
	}()
	return w, nil
}

// Progress returns the latest progress payload, or false before any arrived.
func (w *CampaignWatcher) Progress() (events.CampaignProgressPayload, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.progress == nil {
		return events.CampaignProgressPayload{}, false
	}
	return *w.progress, true
}

// Cancel requests campaign cancellation.
func (w *CampaignWatcher) Cancel() { w.control.Cancel() }

// Pause requests a campaign pause.
func (w *CampaignWatcher) Pause() { w.control.Pause() }

// Resume requests a campaign resume.
func (w *CampaignWatcher) Resume() { w.control.Resume() }

// Status returns the underlying connection state.
func (w *CampaignWatcher) Status() events.ConnectionStatus {
	if w.client == nil {
		return events.StatusDisconnected
	}
	return w.client.Status()
}
