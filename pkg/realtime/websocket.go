package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/logging"
)

// Default WebSocket client tuning
const (
	DefaultWSReconnectInterval = 1 * time.Second
	DefaultHeartbeatInterval   = 30 * time.Second
	DefaultHandshakeTimeout    = 10 * time.Second
	defaultWriteWait           = 10 * time.Second
)

// WSConfig configures one bidirectional connection. The URL may use an
// http(s) scheme; it is translated to ws(s) before dialing. Credentials
// ride on the upgrade request via the cookie jar, never as a token in the URL.
type WSConfig struct {
	URL                  string
	Jar                  http.CookieJar
	DisableReconnect     bool
	ReconnectInterval    time.Duration // default 1s
	MaxReconnectAttempts int           // default 10
	HeartbeatInterval    time.Duration // default 30s
	HandshakeTimeout     time.Duration // default 10s
	OnOpen               func()
	OnError              func(error)
	OnClose              func()
	OnMessage            func(events.Event)
	Logger               logging.Logger
}

// WebSocketClient wraps one socket with heartbeat-based health tracking,
// exponential-backoff reconnection and fire-and-forget control sends.
type WebSocketClient struct {
	cfg      WSConfig
	wsURL    string
	registry *handlerRegistry
	logger   logging.Logger

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	mu             sync.Mutex
	conn           *websocket.Conn
	status         events.ConnectionStatus
	attempts       int
	lastErr        error
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}
	lastPong       time.Time
	hasPong        bool
	gen            int
	closed         bool
}

// NewWebSocketClient creates a client in the disconnected state. Call
// Connect to dial.
func NewWebSocketClient(cfg WSConfig) (*WebSocketClient, error) {
	wsURL, err := websocketURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultWSReconnectInterval
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLoggerWithComponent("ws-client")
	}
	return &WebSocketClient{
		cfg:      cfg,
		wsURL:    wsURL,
		registry: newHandlerRegistry(cfg.Logger),
		logger:   cfg.Logger,
		status:   events.StatusDisconnected,
	}, nil
}

// websocketURL translates an http(s) endpoint to its ws(s) equivalent.
func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse websocket url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported websocket scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Connect dials the socket. An already-open connection is closed first.
func (c *WebSocketClient) Connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.stopHeartbeatLocked()
	c.gen++
	gen := c.gen
	c.status = events.StatusConnecting
	c.mu.Unlock()

	go c.dial(gen)
}

func (c *WebSocketClient) dial(gen int) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		Jar:              c.cfg.Jar,
	}

	conn, resp, err := dialer.Dial(c.wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("websocket dial (status %d): %w", resp.StatusCode, err)
		}
		c.dialFailed(gen, err)
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.status = events.StatusConnected
	c.attempts = 0
	c.lastErr = nil
	c.hasPong = false
	stop := make(chan struct{})
	c.heartbeatStop = stop
	onOpen := c.cfg.OnOpen
	c.mu.Unlock()

	c.logger.WithField("url", c.wsURL).Info("WebSocket connected")
	if onOpen != nil {
		onOpen()
	}

	go c.heartbeat(stop)
	go c.readLoop(conn, gen)
}

func (c *WebSocketClient) dialFailed(gen int, err error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.status = events.StatusError
	c.lastErr = err
	onError := c.cfg.OnError
	c.mu.Unlock()

	c.logger.WithError(err).Warn("WebSocket dial failed")
	if onError != nil {
		onError(err)
	}
	c.maybeReconnect()
}

func (c *WebSocketClient) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.readClosed(gen, err)
			return
		}
		c.handleFrame(msg)
	}
}

// handleFrame routes one inbound frame. A "type" field marks a system/
// control message; an "event_type" field marks a domain event. A frame may
// satisfy both branches.
func (c *WebSocketClient) handleFrame(msg []byte) {
	var frame struct {
		Type      string `json:"type"`
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(msg, &frame); err != nil {
		c.logger.WithError(err).Warn("Dropping malformed WebSocket frame")
		return
	}

	if frame.Type != "" {
		c.handleControl(frame.Type, msg)
	}

	if frame.EventType != "" {
		ev, err := events.Parse(msg)
		if err != nil {
			c.logger.WithError(err).Warn("Dropping undecodable WebSocket event")
			return
		}
		if c.cfg.OnMessage != nil {
			c.safeOnMessage(ev)
		}
		c.registry.dispatch(ev)
	}
}

func (c *WebSocketClient) safeOnMessage(ev events.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.WithFields(logging.Fields{
				"event_type": ev.EventType,
				"panic":      rec,
			}).Error("Message callback panic")
		}
	}()
	c.cfg.OnMessage(ev)
}

func (c *WebSocketClient) handleControl(msgType string, msg []byte) {
	switch msgType {
	case events.ControlPong:
		c.mu.Lock()
		c.lastPong = time.Now()
		c.hasPong = true
		c.mu.Unlock()
	case events.ControlSubscribed:
		c.logger.Debug("Channel subscription confirmed")
	case events.ControlError:
		var ctrl events.ControlMessage
		if err := json.Unmarshal(msg, &ctrl); err == nil && ctrl.Message != "" {
			c.logger.WithField("message", ctrl.Message).Warn("Server control error")
		} else {
			c.logger.Warn("Server control error")
		}
	default:
		c.logger.WithField("type", msgType).Debug("Ignoring unknown control message")
	}
}

func (c *WebSocketClient) readClosed(gen int, err error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	abnormal := websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure)
	if abnormal {
		c.status = events.StatusError
	} else {
		c.status = events.StatusDisconnected
	}
	c.lastErr = err
	c.stopHeartbeatLocked()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	onError := c.cfg.OnError
	onClose := c.cfg.OnClose
	c.mu.Unlock()

	if abnormal {
		c.logger.WithError(err).Warn("WebSocket read error")
		if onError != nil {
			onError(err)
		}
	} else {
		c.logger.Info("WebSocket closed")
	}
	if onClose != nil {
		onClose()
	}
	c.maybeReconnect()
}

func (c *WebSocketClient) maybeReconnect() {
	c.mu.Lock()
	retry := !c.closed && !c.cfg.DisableReconnect && c.attempts < c.cfg.MaxReconnectAttempts
	exhausted := !c.closed && !c.cfg.DisableReconnect && c.attempts >= c.cfg.MaxReconnectAttempts
	c.mu.Unlock()

	if retry {
		c.scheduleReconnect()
	} else if exhausted {
		c.logger.WithField("attempts", c.cfg.MaxReconnectAttempts).Error("WebSocket reconnect attempts exhausted")
	}
}

// Send marshals and transmits a message only while the socket is open.
// Anything else is a logged no-op: control sends are fire-and-forget, never
// queued for later delivery.
func (c *WebSocketClient) Send(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal outbound message")
		return
	}

	c.mu.Lock()
	conn := c.conn
	open := conn != nil && c.status == events.StatusConnected
	c.mu.Unlock()

	if !open {
		c.logger.Debug("Dropping outbound message: socket not open")
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.WithError(err).Warn("WebSocket write failed")
	}
}

// heartbeat sends an application-level ping on a fixed interval while the
// connection is up. Missing pongs never force a disconnect; the transport's
// own close/error events drive reconnection.
func (c *WebSocketClient) heartbeat(stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Send(events.ControlMessage{Type: events.ControlPing})
		}
	}
}

func (c *WebSocketClient) stopHeartbeatLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
}

// Latency returns the time since the last heartbeat pong. The second return
// is false until the first pong of the current connection arrives.
func (c *WebSocketClient) Latency() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasPong {
		return 0, false
	}
	return time.Since(c.lastPong), true
}

// Subscribe registers a handler for eventType (or events.Wildcard) and
// returns its unsubscribe closure.
func (c *WebSocketClient) Subscribe(eventType string, fn Handler) func() {
	return c.registry.subscribe(eventType, fn)
}

// Reconnect restores the full retry budget and schedules a fresh dial. The
// explicit recovery path once automatic attempts are exhausted.
func (c *WebSocketClient) Reconnect() {
	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()
	c.scheduleReconnect()
}

// scheduleReconnect cancels any pending reconnect timer and schedules the
// next dial after exponential backoff, consuming one retry attempt.
func (c *WebSocketClient) scheduleReconnect() {
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
	}).Info("Scheduling WebSocket reconnect")
}

// Close tears the client down: heartbeat and reconnect timers stopped,
// socket closed, handler registry cleared, status disconnected. Safe to
// call repeatedly.
func (c *WebSocketClient) Close() {
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
	c.stopHeartbeatLocked()
	conn := c.conn
	c.conn = nil
	c.status = events.StatusDisconnected
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
	}
	c.registry.clear()
	c.logger.Debug("WebSocket client closed")
}

// Status returns the connection state.
func (c *WebSocketClient) Status() events.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastError returns the most recent connection error, or nil while healthy.
func (c *WebSocketClient) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
