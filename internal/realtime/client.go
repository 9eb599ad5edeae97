package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/posetrack/backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Dispatcher applies sample frames and lifecycle commands arriving over
// the socket to the session's tracker.
type Dispatcher interface {
	Ingest(sessionID uuid.UUID, frame models.SampleFrame) (models.Snapshot, error)
	Command(sessionID uuid.UUID, name string) (models.Snapshot, bool)
}

// Client represents a single WebSocket connection in a session room.
// Role is "source" for the sample-producing client and "presenter" for
// read-only live viewers.
type Client struct {
	ID         string
	SessionID  uuid.UUID
	Role       string
	hub        *Hub
	dispatcher Dispatcher
	conn       *websocket.Conn
	send       chan WSMessage
	logger     *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, logger *zap.Logger, validate func(token string) (uuid.UUID, error), dispatcher Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionIDStr := c.Query("session_id")
		token := c.Query("token")
		if sessionIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and token required"})
			return
		}
		sessionID, err := uuid.Parse(sessionIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
			return
		}
		tokenSession, err := validate(token)
		if err != nil || tokenSession != sessionID {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		role := c.DefaultQuery("role", "source")
		if role != "source" && role != "presenter" {
			role = "presenter"
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:         uuid.New().String(),
			SessionID:  sessionID,
			Role:       role,
			hub:        hub,
			dispatcher: dispatcher,
			conn:       conn,
			send:       make(chan WSMessage, 256),
			logger:     logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	sendToMe := func(event string, payload interface{}) {
		c.hub.SendToClient(c.SessionID, c.ID, event, payload)
	}

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		if c.Role != "source" {
			// presenters are read-only
			continue
		}

		switch msg.Event {
		case "sample":
			var frame models.SampleFrame
			if err := json.Unmarshal(msg.Data, &frame); err != nil {
				sendToMe("error", map[string]string{"error": "invalid sample frame"})
				continue
			}
			snap, err := c.dispatcher.Ingest(c.SessionID, frame)
			if err != nil {
				sendToMe("sample_rejected", map[string]string{"error": err.Error()})
				continue
			}
			c.hub.BroadcastSession(c.SessionID, "snapshot", snap)
		case "start", "pause", "resume":
			snap, applied := c.dispatcher.Command(c.SessionID, msg.Event)
			if applied {
				c.hub.BroadcastSession(c.SessionID, "snapshot", snap)
			} else {
				sendToMe("ignored", map[string]string{"command": msg.Event, "state": snap.State})
			}
		default:
			// ignore
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
