package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"chatrooms-service/internal/auth"
	"chatrooms-service/internal/observability"
	"chatrooms-service/internal/repositories"
)

// RoomWebSocketHandler handles room websocket connections.
type RoomWebSocketHandler struct {
	hub      *Hub
	verifier auth.TokenVerifier
	users    repositories.UserRepository
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	log      *zerolog.Logger
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(hub *Hub, verifier auth.TokenVerifier, users repositories.UserRepository,
	rooms repositories.RoomRepository, messages repositories.MessageRepository, logger *zerolog.Logger) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{
		hub:      hub,
		verifier: verifier,
		users:    users,
		rooms:    rooms,
		messages: messages,
		log:      logger,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, registers it under the room and runs the
// session loop. Subscribing requires no credential; each inbound frame is
// authenticated individually by the session.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	roomID := c.Param("room_id")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	ctx, span := otel.Tracer("chatrooms-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn := newSocketConn(raw)

	info := ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.Add(roomID, conn, info)

	observability.IncWSActive("room")
	observability.IncWSEvent("room", "ws_connect")
	h.publishLifecycle(ctx, roomID, "ws_connect", info, "")

	sess := newSession(roomID, conn, h.hub, h.verifier, h.users, h.rooms, h.messages, h.log)

	// The request context is canceled once Handle returns, which would kill
	// the session loop under the hijacked connection. Detach cancellation but
	// keep the trace.
	sessCtx := context.WithoutCancel(ctx)

	go func() {
		var closeReason string
		defer func() {
			h.hub.Remove(roomID, conn)
			observability.DecWSActive("room")
			observability.IncWSEvent("room", "ws_disconnect")
			h.publishLifecycle(sessCtx, roomID, "ws_disconnect", info, closeReason)
			conn.Close()
		}()

		if err := sess.run(sessCtx); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("room", "ws_error")
				h.publishLifecycle(sessCtx, roomID, "ws_error", info, closeReason)
			}
		}
	}()
}

func (h *RoomWebSocketHandler) publishLifecycle(ctx context.Context, roomID, event string, info ConnInfo, reason string) {
	durationMS := int64(0)
	if event != "ws_connect" {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "room",
			"room_id":     roomID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	_ = observability.PublishEvent(ctx, "ws_events.rooms", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
