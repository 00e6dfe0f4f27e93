package relay

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rapidride/internal/domain"
)

// Client is one authenticated WebSocket connection.
type Client struct {
	ID     string
	UserID string
	Role   domain.Role

	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// rooms is guarded by hub.mu.
	rooms map[string]struct{}
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServeWS upgrades the request and authenticates the connection from its
// first frame, which must be {"token": "..."} within five seconds.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("relay upgrade failed", "error", err)
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(authTimeout))

	var authMsg struct {
		Token string `json:"token"`
	}
	if err := conn.ReadJSON(&authMsg); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "auth timeout"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		h.logger.Info("relay auth frame missing", "error", err)
		return
	}

	claims, err := h.tokens.Parse(authMsg.Token)
	if err != nil {
		if msg, encErr := encodeFrame("error", errorData("invalid token")); encErr == nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.TextMessage, msg)
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		h.logger.Info("relay auth rejected", "error", err)
		return
	}

	c := &Client{
		ID:     uuid.New().String(),
		UserID: claims.UserID,
		Role:   claims.Role,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    h,
		rooms:  make(map[string]struct{}),
	}

	// Registered before the ack so that anything published once the client
	// has seen it is queued. The write pump is not running yet, so this is
	// the only writer.
	h.register(c)

	ack, err := encodeFrame("authenticated", map[string]any{"userId": c.UserID, "role": c.Role})
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		err = conn.WriteMessage(websocket.TextMessage, ack)
	}
	if err != nil {
		h.unregister(c)
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Info("relay read ended", "client_id", c.ID, "error", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.replyError(c, "malformed message")
			continue
		}
		c.hub.handleMessage(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
