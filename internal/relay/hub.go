// Package relay fans ride events out to subscribed WebSocket connections.
//
// A connection authenticates with its first frame, then joins the rooms of
// the rides it takes part in. Events published for a ride reach every
// connection in that ride's room, stamped with a per-ride sequence number.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rapidride/internal/auth"
	"rapidride/internal/domain"
	"rapidride/internal/metrics"
)

const (
	authTimeout    = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 8192
	sendBuffer     = 256
)

const defaultStoreTimeout = 5 * time.Second

// TokenVerifier validates the session token sent in the first frame.
type TokenVerifier interface {
	Parse(token string) (*auth.Claims, error)
}

// RideLookup reads rides for subscription and sender checks.
type RideLookup interface {
	GetByID(ctx context.Context, rideID string) (*domain.Ride, error)
}

// PositionRecorder stores driver positions reported over the socket.
type PositionRecorder interface {
	Record(ctx context.Context, driverID string, lat, lng float64) error
}

// Bus carries events to every instance. Each instance's subscriber hands
// them back through DeliverToRide and DeliverToRole.
type Bus interface {
	Publish(ctx context.Context, e domain.Event) error
	PublishRole(ctx context.Context, role domain.Role, e domain.Event) error
}

// HubDeps holds the collaborators of a Hub. Tokens and Rides are required.
type HubDeps struct {
	Tokens       TokenVerifier
	Rides        RideLookup
	Positions    PositionRecorder
	Bus          Bus
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	StoreTimeout time.Duration
	CheckOrigin  func(r *http.Request) bool
}

// Hub tracks authenticated connections and their ride rooms.
type Hub struct {
	tokens    TokenVerifier
	rides     RideLookup
	positions PositionRecorder
	bus       Bus
	metrics   *metrics.Metrics
	logger    *slog.Logger
	timeout   time.Duration
	upgrader  websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	seq     map[string]int64
}

// NewHub creates a Hub.
func NewHub(deps HubDeps) *Hub {
	h := &Hub{
		tokens:    deps.Tokens,
		rides:     deps.Rides,
		positions: deps.Positions,
		bus:       deps.Bus,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		timeout:   deps.StoreTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     deps.CheckOrigin,
		},
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		seq:     make(map[string]int64),
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.timeout <= 0 {
		h.timeout = defaultStoreTimeout
	}
	if h.upgrader.CheckOrigin == nil {
		h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return h
}

// Publish delivers e to the room of e.RideID. With a bus configured the
// event travels through it so every instance delivers to its local room.
func (h *Hub) Publish(ctx context.Context, e domain.Event) {
	h.metrics.EventPublished(string(e.Name))

	if h.bus != nil {
		err := h.bus.Publish(ctx, e)
		if err == nil {
			return
		}
		h.logger.Warn("relay bus publish failed, delivering locally",
			"ride_id", e.RideID, "event", e.Name, "error", err)
	}
	h.DeliverToRide(e, h.nextSeq(e.RideID))
}

// BroadcastToRole delivers e to every connection authenticated as role.
func (h *Hub) BroadcastToRole(ctx context.Context, role domain.Role, e domain.Event) {
	h.metrics.EventPublished(string(e.Name))

	if h.bus != nil {
		err := h.bus.PublishRole(ctx, role, e)
		if err == nil {
			return
		}
		h.logger.Warn("relay bus broadcast failed, delivering locally",
			"role", role, "event", e.Name, "error", err)
	}
	h.DeliverToRole(role, e)
}

// DeliverToRide sends e to this instance's connections in the ride's room.
// seq also advances the local counter, so a later local fallback continues
// after the last number delivered here.
func (h *Hub) DeliverToRide(e domain.Event, seq int64) {
	h.observeSeq(e.RideID, seq)

	frame, err := encodeFrame(string(e.Name), e.With("seq", seq).Data)
	if err != nil {
		h.logger.Error("relay frame encoding failed", "event", e.Name, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[e.RideID]
	if len(room) == 0 {
		h.logger.Debug("no subscribers", "ride_id", e.RideID, "event", e.Name, "seq", seq)
		return
	}
	for c := range room {
		h.sendLocked(c, frame)
	}
}

// DeliverToRole sends e to this instance's connections of role.
func (h *Hub) DeliverToRole(role domain.Role, e domain.Event) {
	frame, err := encodeFrame(string(e.Name), e.Data)
	if err != nil {
		h.logger.Error("relay frame encoding failed", "event", e.Name, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.clients {
		if c.Role == role {
			h.sendLocked(c, frame)
			sent++
		}
	}
	if sent == 0 {
		h.logger.Debug("no subscribers", "role", role, "event", e.Name)
	}
}

// Close disconnects every connection. Their read loops then unregister them.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		_ = c.conn.Close()
	}
}

func (h *Hub) nextSeq(rideID string) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq[rideID]++
	return h.seq[rideID]
}

func (h *Hub) observeSeq(rideID string, seq int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if seq > h.seq[rideID] {
		h.seq[rideID] = seq
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.metrics.RelayConnected(1)
	h.logger.Info("relay client registered", "client_id", c.ID, "user_id", c.UserID, "role", c.Role)
}

// unregister removes c from the hub and from every room it joined.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for rideID := range c.rooms {
		h.leaveLocked(c, rideID)
	}
	close(c.send)
	h.mu.Unlock()

	h.metrics.RelayConnected(-1)
	h.logger.Info("relay client unregistered", "client_id", c.ID, "user_id", c.UserID)
}

func (h *Hub) join(c *Client, rideID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	room, ok := h.rooms[rideID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[rideID] = room
	}
	room[c] = struct{}{}
	c.rooms[rideID] = struct{}{}
	return true
}

func (h *Hub) leave(c *Client, rideID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, rideID)
}

func (h *Hub) leaveLocked(c *Client, rideID string) {
	delete(c.rooms, rideID)
	room, ok := h.rooms[rideID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, rideID)
	}
}

func (h *Hub) roomSize(rideID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[rideID])
}

// reply queues frame for c alone.
func (h *Hub) reply(c *Client, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		h.sendLocked(c, frame)
	}
}

// sendLocked never blocks: a full buffer drops the frame. Callers hold mu.
func (h *Hub) sendLocked(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		h.metrics.DeliveryDropped()
		h.logger.Warn("relay delivery dropped", "client_id", c.ID, "user_id", c.UserID)
	}
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func encodeFrame(typ string, data any) ([]byte, error) {
	return json.Marshal(envelope{Type: typ, Data: data})
}
