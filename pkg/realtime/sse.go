package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/logging"
)

// Default SSE client tuning
const (
	DefaultSSEReconnectInterval = 3 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// SSEConfig configures one server-push connection. The HTTP client must
// carry the caller's credential cookie jar: authentication travels with the
// request, never as a token in the URL.
type SSEConfig struct {
	URL                  string
	HTTPClient           *http.Client
	DisableReconnect     bool
	ReconnectInterval    time.Duration // default 3s
	MaxReconnectAttempts int           // default 10
	OnOpen               func()
	OnError              func(error)
	OnEvent              func(events.Event) // generic hook, fires before registered handlers
	Logger               logging.Logger
}

// SSEClient wraps one SSE connection with automatic recovery and a
// per-event-type handler registry.
//
// States: disconnected -> connecting -> connected; connected -> error ->
// reconnecting -> connecting (loop); any state -> disconnected on Close.
type SSEClient struct {
	cfg      SSEConfig
	client   *http.Client
	registry *handlerRegistry
	logger   logging.Logger

	mu             sync.Mutex
	status         events.ConnectionStatus
	attempts       int
	lastErr        error
	cancel         context.CancelFunc
	reconnectTimer *time.Timer
	gen            int
	closed         bool
}

// NewSSEClient creates a client in the disconnected state. Call Connect to
// open the stream.
func NewSSEClient(cfg SSEConfig) *SSEClient {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultSSEReconnectInterval
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLoggerWithComponent("sse-client")
	}
	client := cfg.HTTPClient
	if client == nil {
		// Streaming connection: the client must not time out the response body.
		client = &http.Client{Timeout: 0}
	}
	return &SSEClient{
		cfg:      cfg,
		client:   client,
		registry: newHandlerRegistry(cfg.Logger),
		logger:   cfg.Logger,
		status:   events.StatusDisconnected,
	}
}

// Connect opens the stream. An already-open stream is torn down first, so
// calling Connect on a live client is a safe reconnect.
func (c *SSEClient) Connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.gen++
	gen := c.gen
	c.status = events.StatusConnecting
	c.mu.Unlock()

	go c.stream(ctx, gen)
}

func (c *SSEClient) stream(ctx context.Context, gen int) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		c.streamFailed(gen, err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.streamFailed(gen, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.streamFailed(gen, fmt.Errorf("sse endpoint returned status %d", resp.StatusCode))
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.status = events.StatusConnected
	c.attempts = 0
	c.lastErr = nil
	onOpen := c.cfg.OnOpen
	c.mu.Unlock()

	c.logger.WithField("url", c.cfg.URL).Info("SSE stream connected")
	if onOpen != nil {
		onOpen()
	}

	reader := bufio.NewReader(resp.Body)
	var eventName string
	var data strings.Builder

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.streamFailed(gen, err)
			return
		}

		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			if data.Len() > 0 {
				c.dispatchFrame(eventName, data.String())
			}
			eventName = ""
			data.Reset()
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// keepalive comment
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteString("\n")
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		// id: and retry: lines are ignored
	}
}

// dispatchFrame decodes one frame and fans it out. The dispatch key is the
// payload's event_type field, falling back to the frame's event name for
// payloads that rely on named SSE events.
func (c *SSEClient) dispatchFrame(name, payload string) {
	ev, err := events.Parse([]byte(payload))
	if err != nil {
		if errors.Is(err, events.ErrMissingEventType) && name != "" {
			if uerr := json.Unmarshal([]byte(payload), &ev); uerr == nil {
				ev.EventType = name
				ev.Raw = []byte(payload)
			} else {
				c.logger.WithError(uerr).Warn("Dropping malformed SSE frame")
				return
			}
		} else {
			c.logger.WithError(err).Warn("Dropping malformed SSE frame")
			return
		}
	}

	if c.cfg.OnEvent != nil {
		c.safeCallback(func() { c.cfg.OnEvent(ev) }, ev.EventType)
	}
	c.registry.dispatch(ev)
}

func (c *SSEClient) safeCallback(fn func(), eventType string) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.WithFields(logging.Fields{
				"event_type": eventType,
				"panic":      rec,
			}).Error("Event callback panic")
		}
	}()
	fn()
}

func (c *SSEClient) streamFailed(gen int, err error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.status = events.StatusError
	c.lastErr = err
	onError := c.cfg.OnError
	retry := !c.cfg.DisableReconnect && c.attempts < c.cfg.MaxReconnectAttempts
	exhausted := !c.cfg.DisableReconnect && c.attempts >= c.cfg.MaxReconnectAttempts
	c.mu.Unlock()

	c.logger.WithError(err).WithField("url", c.cfg.URL).Warn("SSE stream error")
	if onError != nil {
		onError(err)
	}

	if retry {
		c.scheduleReconnect()
	} else if exhausted {
		c.logger.WithField("attempts", c.cfg.MaxReconnectAttempts).Error("SSE reconnect attempts exhausted")
	}
}

// Subscribe registers a handler for eventType (or events.Wildcard) and
// returns its unsubscribe closure.
func (c *SSEClient) Subscribe(eventType string, fn Handler) func() {
	return c.registry.subscribe(eventType, fn)
}

// Reconnect restores the full retry budget and schedules a fresh Connect.
// The explicit recovery path once automatic attempts are exhausted.
func (c *SSEClient) Reconnect() {
	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()
	c.scheduleReconnect()
}

// scheduleReconnect cancels any pending reconnect timer and schedules the
// next Connect after exponential backoff, consuming one retry attempt.
func (c *SSEClient) scheduleReconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.status = events.StatusReconnecting
	c.attempts++
	attempt := c.attempts
	delay := backoffDelay(c.cfg.ReconnectInterval, attempt)
	c.reconnectTimer = time.AfterFunc(delay, c.Connect)
	c.mu.Unlock()

	c.logger.WithFields(logging.Fields{
		"attempt": attempt,
		"delay":   delay.String(),
	}).Info("Scheduling SSE reconnect")
}

// Close tears the client down: pending timers cancelled, stream closed,
// handler registry cleared, status disconnected. Safe to call repeatedly.
func (c *SSEClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.status = events.StatusDisconnected
	c.mu.Unlock()

	c.registry.clear()
	c.logger.Debug("SSE client closed")
}

// Status returns the connection state.
func (c *SSEClient) Status() events.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastError returns the most recent connection error, or nil while healthy.
func (c *SSEClient) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
