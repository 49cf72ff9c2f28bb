package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/logging"
)

// DefaultEventBufferSize is the per-channel retention window.
const DefaultEventBufferSize = 100

// ProviderMetrics are optional prometheus instruments the provider updates.
// Wire them from a monitoring.MetricsCollector.
type ProviderMetrics struct {
	EventsReceived *prometheus.CounterVec // labels: channel, event_type
	ChannelUp      *prometheus.GaugeVec   // labels: channel; 1 while connected
	Reconnects     *prometheus.CounterVec // labels: channel
}

// ProviderConfig configures the shared realtime provider.
type ProviderConfig struct {
	BaseURL    string
	HTTPClient *http.Client // credentialed via cookie jar
	BufferSize int          // default 100
	Metrics    *ProviderMetrics
	Logger     logging.Logger
}

// Health is the aggregate view over every channel, recomputed from live
// statuses on each call, never cached.
type Health struct {
	Overall       events.ConnectionStatus
	AllConnected  bool
	AnyConnecting bool
	AnyError      bool
	Statuses      map[string]events.ConnectionStatus
}

// Provider opens each SSE channel exactly once and fans events out to every
// subscribed consumer, so N components watching the same channel share one
// physical connection. One instance per process tree: construct at startup,
// Close on shutdown.
//
// Events within one channel reach consumers in delivery order; the shared
// connection is also what makes that ordering meaningful across consumers
// (two independently-owned clients on the same channel have no cross-client
// ordering guarantee).
type Provider struct {
	cfg    ProviderConfig
	logger logging.Logger

	clients map[string]*SSEClient

	mu      sync.Mutex
	buffers map[string][]events.Event
	started bool
	closed  bool
}

// NewProvider creates an idle provider. Call Start to open the channels.
func NewProvider(cfg ProviderConfig) *Provider {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultEventBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLoggerWithComponent("realtime-provider")
	}
	p := &Provider{
		cfg:     cfg,
		logger:  cfg.Logger,
		clients: make(map[string]*SSEClient),
		buffers: make(map[string][]events.Event),
	}
	for _, channel := range events.Channels {
		p.buffers[channel] = nil
	}
	return p
}

// NewDisconnectedProvider returns the safe fallback used when no provider
// was injected: every status reads disconnected, buffers are empty and
// subscriptions are no-ops. It never opens a connection.
func NewDisconnectedProvider(logger logging.Logger) *Provider {
	if logger == nil {
		logger = logging.NewLoggerWithComponent("realtime-provider")
	}
	return NewProvider(ProviderConfig{Logger: logger})
}

// Start opens one SSE client per channel. Calling Start twice is a no-op.
func (p *Provider) Start() {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for _, channel := range events.Channels {
		p.openChannel(channel)
	}
	p.logger.WithField("channels", len(events.Channels)).Info("Realtime provider started")
}

func (p *Provider) openChannel(channel string) {
	client := NewSSEClient(SSEConfig{
		URL:        realtimeURL(p.cfg.BaseURL, channel),
		HTTPClient: p.cfg.HTTPClient,
		Logger:     p.logger,
		OnOpen: func() {
			p.setChannelUp(channel, 1)
		},
		OnError: func(error) {
			p.setChannelUp(channel, 0)
			if m := p.cfg.Metrics; m != nil && m.Reconnects != nil {
				m.Reconnects.WithLabelValues(channel).Inc()
			}
		},
	})
	client.Subscribe(events.Wildcard, func(ev events.Event) {
		p.ingest(channel, ev)
	})
	p.mu.Lock()
	p.clients[channel] = client
	p.mu.Unlock()
	client.Connect()
}

func (p *Provider) setChannelUp(channel string, up float64) {
	if m := p.cfg.Metrics; m != nil && m.ChannelUp != nil {
		m.ChannelUp.WithLabelValues(channel).Set(up)
	}
}

// ingest appends an event to the channel's ring buffer, trimming to the
// retention window on every insert.
func (p *Provider) ingest(channel string, ev events.Event) {
	p.mu.Lock()
	buf := append(p.buffers[channel], ev)
	if excess := len(buf) - p.cfg.BufferSize; excess > 0 {
		buf = buf[excess:]
	}
	p.buffers[channel] = buf
	p.mu.Unlock()

	if m := p.cfg.Metrics; m != nil && m.EventsReceived != nil {
		m.EventsReceived.WithLabelValues(channel, ev.EventType).Inc()
	}
}

// Subscribe fans a channel's events out to fn without opening another
// connection. Unknown channels and stopped providers get a no-op
// unsubscribe back so consumers degrade instead of crashing.
func (p *Provider) Subscribe(channel, eventType string, fn Handler) func() {
	p.mu.Lock()
	client, ok := p.clients[channel]
	p.mu.Unlock()
	if !ok {
		p.logger.WithField("channel", channel).Warn("Subscribe on unknown or inactive realtime channel")
		return func() {}
	}
	return client.Subscribe(eventType, fn)
}

// Events returns a copy of the channel's buffered events, oldest first.
func (p *Provider) Events(channel string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.buffers[channel]...)
}

// ClearEvents drops the channel's buffer.
func (p *Provider) ClearEvents(channel string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.buffers[channel]; ok {
		p.buffers[channel] = nil
	}
}

// Status returns one channel's live connection state.
func (p *Provider) Status(channel string) events.ConnectionStatus {
	p.mu.Lock()
	client, ok := p.clients[channel]
	p.mu.Unlock()
	if ok {
		return client.Status()
	}
	return events.StatusDisconnected
}

// Health recomputes the aggregate over all channels from their live
// statuses. Error outranks connecting, which outranks connected.
func (p *Provider) Health() Health {
	statuses := make(map[string]events.ConnectionStatus, len(events.Channels))
	for _, channel := range events.Channels {
		statuses[channel] = p.Status(channel)
	}
	return computeHealth(statuses)
}

func computeHealth(statuses map[string]events.ConnectionStatus) Health {
	h := Health{AllConnected: len(statuses) > 0, Statuses: statuses}
	for _, status := range statuses {
		switch status {
		case events.StatusConnected:
		case events.StatusConnecting, events.StatusReconnecting:
			h.AnyConnecting = true
			h.AllConnected = false
		case events.StatusError:
			h.AnyError = true
			h.AllConnected = false
		default:
			h.AllConnected = false
		}
	}
	switch {
	case h.AnyError:
		h.Overall = events.StatusError
	case h.AnyConnecting:
		h.Overall = events.StatusConnecting
	case h.AllConnected:
		h.Overall = events.StatusConnected
	default:
		h.Overall = events.StatusDisconnected
	}
	return h
}

// Close tears down every channel client and clears the buffers. Safe to
// call repeatedly.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	clients := make(map[string]*SSEClient, len(p.clients))
	for channel, client := range p.clients {
		clients[channel] = client
	}
	p.mu.Unlock()

	for channel, client := range clients {
		client.Close()
		p.setChannelUp(channel, 0)
	}

	p.mu.Lock()
	for channel := range p.buffers {
		p.buffers[channel] = nil
	}
	p.mu.Unlock()

	p.logger.Info("Realtime provider closed")
}

// WaitConnected blocks until every channel reports connected or the timeout
// elapses. Convenience for consumers that want a settled dashboard before
// first render.
func (p *Provider) WaitConnected(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.Health().AllConnected {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return p.Health().AllConnected
}
