package realtime

import (
	"net/http"
	"strings"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/logging"
)

// realtimePrefix is where the console API mounts its push endpoints.
const realtimePrefix = "/realtime/"

func realtimeURL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + realtimePrefix + path
}

// SSEEndpoints constructs SSE clients bound to the console's push channels.
// Pure construction: every call opens an independent connection. Callers
// wanting a shared connection go through the Provider instead.
type SSEEndpoints struct {
	BaseURL    string
	HTTPClient *http.Client // credentialed via cookie jar
	Logger     logging.Logger
}

func (e SSEEndpoints) channel(name string) *SSEClient {
	c := NewSSEClient(SSEConfig{
		URL:        realtimeURL(e.BaseURL, name),
		HTTPClient: e.HTTPClient,
		Logger:     e.Logger,
	})
	c.Connect()
	return c
}

// ONUStatus opens the ONU health channel.
func (e SSEEndpoints) ONUStatus() *SSEClient { return e.channel(events.ChannelONUStatus) }

// Alerts opens the alert channel.
func (e SSEEndpoints) Alerts() *SSEClient { return e.channel(events.ChannelAlerts) }

// Tickets opens the support ticket channel.
func (e SSEEndpoints) Tickets() *SSEClient { return e.channel(events.ChannelTickets) }

// Subscribers opens the subscriber lifecycle channel.
func (e SSEEndpoints) Subscribers() *SSEClient { return e.channel(events.ChannelSubscribers) }

// RadiusSessions opens the RADIUS session channel.
func (e SSEEndpoints) RadiusSessions() *SSEClient { return e.channel(events.ChannelRadiusSessions) }

// WebSocketEndpoints constructs WebSocket clients bound to the console's
// bidirectional channels. Same contract as SSEEndpoints: one independent
// connection per call.
type WebSocketEndpoints struct {
	BaseURL string
	Jar     http.CookieJar
	Logger  logging.Logger
}

func (e WebSocketEndpoints) dial(path string) (*WebSocketClient, error) {
	c, err := NewWebSocketClient(WSConfig{
		URL:    realtimeURL(e.BaseURL, path),
		Jar:    e.Jar,
		Logger: e.Logger,
	})
	if err != nil {
		return nil, err
	}
	c.Connect()
	return c, nil
}

// Sessions opens the live RADIUS session channel.
func (e WebSocketEndpoints) Sessions() (*WebSocketClient, error) {
	return e.dial(events.PathSessions)
}

// Job opens the progress channel for one job.
func (e WebSocketEndpoints) Job(jobID string) (*WebSocketClient, error) {
	return e.dial(events.PathJobs + "/" + jobID)
}

// Campaign opens the progress channel for one campaign.
func (e WebSocketEndpoints) Campaign(campaignID string) (*WebSocketClient, error) {
	return e.dial(events.PathCampaigns + "/" + campaignID)
}
