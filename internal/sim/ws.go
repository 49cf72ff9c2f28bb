package sim

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/logging"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Development tool, any origin may connect.
		return true
	},
}

// wsConn serializes writes to one socket.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeRaw(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsConn) writeJSON(v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.writeRaw(frame)
}

// serveWS runs the shared connection loop: subscription ack on connect,
// frames from sub forwarded to the socket, inbound pings answered with
// pongs and other inbound control types passed to onControl.
func serveWS(c *gin.Context, logger logging.Logger, sub chan []byte, cancel func(), onControl func(string)) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		cancel()
		return
	}
	wc := &wsConn{conn: conn}
	defer func() {
		cancel()
		conn.Close()
	}()

	wc.writeJSON(events.ControlMessage{Type: events.ControlSubscribed})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var frame struct {
				Type string `json:"type"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			switch frame.Type {
			case events.ControlPing:
				wc.writeJSON(events.ControlMessage{Type: events.ControlPong})
			case "":
				wc.writeJSON(events.ControlMessage{Type: events.ControlError, Message: "frame has no type"})
			default:
				if onControl != nil {
					onControl(frame.Type)
				}
			}
		}
	}()

	for {
		select {
		case frame := <-sub:
			if err := wc.writeRaw(frame); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// ServeSessions streams the RADIUS session channel over WebSocket. The
// frames are the same ones the radius-sessions SSE channel carries.
func ServeSessions(hub *Hub, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, cancel := hub.Subscribe(events.ChannelRadiusSessions)
		serveWS(c, logger, sub, cancel, nil)
	}
}

// ServeJob streams one job's progress and honors its control frames.
func ServeJob(store *JobStore, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		sub, cancel := store.Subscribe(jobID)
		serveWS(c, logger, sub, cancel, func(control string) {
			store.Apply(jobID, control)
		})
	}
}

// ServeCampaign streams one campaign's progress and honors its control
// frames.
func ServeCampaign(store *CampaignStore, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		campaignID := c.Param("id")
		sub, cancel := store.Subscribe(campaignID)
		serveWS(c, logger, sub, cancel, func(control string) {
			store.Apply(campaignID, control)
		})
	}
}
