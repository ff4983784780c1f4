package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roomkit/console-backend/pkg/events"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains room_id -> set of connections and relays recording lifecycle
// events to them. The event bus carries events across instances; each hub
// subscribes per room while it has local clients.
type Hub struct {
	// roomID -> map[clientID]*Client
	rooms  map[uuid.UUID]map[string]*Client
	subs   map[uuid.UUID]func() // cancel bus subscription per room
	mu     sync.RWMutex
	bus    events.Bus
	logger *zap.Logger
}

// NewHub creates a new WebSocket hub fed by the event bus.
func NewHub(bus events.Bus, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[uuid.UUID]map[string]*Client),
		subs:   make(map[uuid.UUID]func()),
		bus:    bus,
		logger: logger,
	}
}

// Register adds a client to a room. The first client of a room starts the bus
// subscription for it.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.RoomID] == nil {
		h.rooms[c.RoomID] = make(map[string]*Client)
		if h.bus != nil {
			roomID := c.RoomID
			cancel, err := h.bus.Subscribe(events.RoomTopic(roomID.String()), func(event string, payload []byte) {
				h.broadcast(roomID, event, payload)
			})
			if err != nil {
				h.logger.Warn("room subscription failed", zap.String("room_id", roomID.String()), zap.Error(err))
			} else {
				h.subs[roomID] = cancel
			}
		}
	}
	h.rooms[c.RoomID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("room_id", c.RoomID.String()))
}

// Unregister removes a client. The last client leaving a room cancels its bus
// subscription.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.RoomID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.RoomID)
			if cancel, ok := h.subs[c.RoomID]; ok {
				cancel()
				delete(h.subs, c.RoomID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left room", zap.String("client_id", c.ID), zap.String("room_id", c.RoomID.String()))
}

// broadcast sends an event to all local clients of a room.
func (h *Hub) broadcast(roomID uuid.UUID, event string, payload []byte) {
	msg := WSMessage{Event: event, Data: json.RawMessage(payload)}

	h.mu.RLock()
	clients := h.rooms[roomID]
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// ClientCount returns the number of connected clients in a room.
func (h *Hub) ClientCount(roomID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
