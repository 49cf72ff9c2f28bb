// Package sim is a development stand-in for the console API's push
// endpoints. It serves the SSE channels and WebSocket paths the realtime
// clients consume, fed by a synthetic event generator and an in-memory
// job table. Not a production server.
package sim

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/logging"
)

const keepaliveInterval = 15 * time.Second

// HubMetrics are optional instruments the hub updates.
type HubMetrics struct {
	EventsPublished *prometheus.CounterVec // labels: channel, event_type
	Subscribers     *prometheus.GaugeVec   // labels: channel
}

// Hub fans published events out to every SSE subscriber of a channel.
// Subscribers that fall behind get dropped rather than block publishers.
type Hub struct {
	logger  logging.Logger
	metrics *HubMetrics

	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger logging.Logger, metrics *HubMetrics) *Hub {
	return &Hub{
		logger:  logger,
		metrics: metrics,
		subs:    make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe attaches a buffered frame channel to an event channel and
// returns it with its detach closure.
func (h *Hub) Subscribe(channel string) (chan []byte, func()) {
	sub := make(chan []byte, 64)

	h.mu.Lock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[chan []byte]struct{})
	}
	h.subs[channel][sub] = struct{}{}
	count := len(h.subs[channel])
	h.mu.Unlock()

	if h.metrics != nil && h.metrics.Subscribers != nil {
		h.metrics.Subscribers.WithLabelValues(channel).Set(float64(count))
	}

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[channel], sub)
			count := len(h.subs[channel])
			h.mu.Unlock()
			if h.metrics != nil && h.metrics.Subscribers != nil {
				h.metrics.Subscribers.WithLabelValues(channel).Set(float64(count))
			}
		})
	}
}

// Broadcast marshals payload and delivers it to every subscriber of the
// channel. A subscriber with a full buffer misses the frame; event buffers
// on the client side absorb the gap on reconnect.
func (h *Hub) Broadcast(channel, eventType string, payload any) {
	frame, err := json.Marshal(payload)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal broadcast payload")
		return
	}

	h.mu.RLock()
	for sub := range h.subs[channel] {
		select {
		case sub <- frame:
		default:
			h.logger.WithField("channel", channel).Warn("Dropping frame for slow subscriber")
		}
	}
	h.mu.RUnlock()

	if h.metrics != nil && h.metrics.EventsPublished != nil {
		h.metrics.EventsPublished.WithLabelValues(channel, eventType).Inc()
	}
}

// Stats returns the live subscriber count per channel.
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.subs))
	for channel, subs := range h.subs {
		out[channel] = len(subs)
	}
	return out
}

// ServeSSE returns a gin handler streaming one channel as text/event-stream
// until the client goes away.
func (h *Hub) ServeSSE(channel string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, cancel := h.Subscribe(channel)
		defer cancel()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Writer.Flush()

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		ctx := c.Request.Context()
		for {
			select {
			case frame := <-sub:
				if _, err := io.WriteString(c.Writer, "data: "+string(frame)+"\n\n"); err != nil {
					return
				}
				c.Writer.Flush()
			case <-keepalive.C:
				if _, err := io.WriteString(c.Writer, ": keepalive\n"); err != nil {
					return
				}
				c.Writer.Flush()
			case <-ctx.Done():
				return
			}
		}
	}
}
