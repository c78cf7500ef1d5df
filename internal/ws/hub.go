package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatrooms-service/internal/models"
	"chatrooms-service/internal/observability"
)

// Hub tracks which live connections are subscribed to which room and fans
// room events out to them. A connection belongs to at most one room for its
// whole lifetime; empty room entries are dropped.
type Hub struct {
	rooms map[string]map[Conn]ConnInfo
	mu    sync.RWMutex
	log   *zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[Conn]ConnInfo),
		log:   logger,
	}
}

// Add registers a connection under a room.
func (h *Hub) Add(roomID string, conn Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[Conn]ConnInfo)
	}
	h.rooms[roomID][conn] = info
}

// Remove deletes a connection from a room and drops the room entry once it
// is empty. Removing an absent connection is a no-op: disconnects can race
// with broadcast-side cleanup.
func (h *Hub) Remove(roomID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// connections returns a snapshot of the room's live set so broadcast can
// iterate while disconnects mutate the registry.
func (h *Hub) connections(roomID string) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]Conn, 0, len(h.rooms[roomID]))
	for conn := range h.rooms[roomID] {
		conns = append(conns, conn)
	}
	return conns
}

// RoomCount reports how many connections a room currently holds.
func (h *Hub) RoomCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// BroadcastMessage sends a message event to every connection in the room.
// Delivery is best effort: a peer that cannot be written to is closed and
// dropped without affecting the others or the caller.
func (h *Hub) BroadcastMessage(roomID string, msg models.Message) {
	event := models.MessageEvent{Message: msg, Type: "message"}
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("marshal message event")
		return
	}

	for _, conn := range h.connections(roomID) {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Debug().Err(err).Str("room_id", roomID).Msg("websocket write failed, dropping connection")
			h.publishWSError(roomID, conn, err)
			conn.Close()
			h.Remove(roomID, conn)
		}
	}
}

func (h *Hub) publishWSError(roomID string, conn Conn, err error) {
	info, ok := h.connInfo(roomID, conn)
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "room",
			"room_id":     roomID,
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.rooms", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("room", "ws_error")
}

func (h *Hub) connInfo(roomID string, conn Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if conns, ok := h.rooms[roomID]; ok {
		info, exists := conns[conn]
		return info, exists
	}
	return ConnInfo{}, false
}
