package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatrooms-service/internal/middleware"
	"chatrooms-service/internal/models"
	"chatrooms-service/internal/observability"
	"chatrooms-service/internal/repositories"
	"chatrooms-service/internal/telemetry"
	"chatrooms-service/internal/ws"
)

const (
	historyPageSize     = 50
	recentSendersWindow = 20
	unknownUserName     = "Unknown User"
)

// RoomHandler manages room endpoints, including the HTTP send path.
type RoomHandler struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	hub      *ws.Hub
	audit    *telemetry.AuditEmitter
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(rooms repositories.RoomRepository, messages repositories.MessageRepository,
	users repositories.UserRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{
		rooms:    rooms,
		messages: messages,
		users:    users,
		hub:      hub,
		audit:    audit,
	}
}

// CreateRoom handles POST /api/rooms. The creator becomes the first member.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	var req struct {
		Name        string  `json:"name" binding:"required"`
		Description *string `json:"description"`
		IsPrivate   bool    `json:"is_private"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), userID, req.Name, req.Description, req.IsPrivate)
	if err != nil {
		h.emitAudit(c, "ERROR", "room creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	h.emitAudit(c, "INFO", "Room created")
	c.JSON(http.StatusOK, room)
}

// ListRooms returns public rooms plus private rooms the caller belongs to.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	rooms, err := h.rooms.ListRoomsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	c.JSON(http.StatusOK, rooms)
}

// JoinRoom handles POST /api/rooms/:room_id/join. Joining twice is a no-op.
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	roomID := c.Param("room_id")
	userID := c.GetString(middleware.ContextUserID)

	if _, err := h.rooms.GetRoom(c.Request.Context(), roomID); err != nil {
		h.roomError(c, err)
		return
	}

	if err := h.rooms.AddMember(c.Request.Context(), roomID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join room"})
		return
	}

	h.emitAudit(c, "INFO", "Room joined")
	c.JSON(http.StatusOK, gin.H{"message": "Successfully joined room"})
}

// GetRoomMessages handles GET /api/rooms/:room_id/messages: the latest page
// of history, oldest first.
func (h *RoomHandler) GetRoomMessages(c *gin.Context) {
	roomID := c.Param("room_id")
	userID := c.GetString(middleware.ContextUserID)

	if !h.authorizeRoomAccess(c, roomID, userID) {
		return
	}

	msgs, err := h.messages.ListRoomMessages(c.Request.Context(), roomID, historyPageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	for i := range msgs {
		if msgs[i].UserName == "" {
			msgs[i].UserName = unknownUserName
		}
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

// PostRoomMessage handles POST /api/rooms/:room_id/messages. The persistence
// shape matches the websocket path exactly, and the stored message is fanned
// out through the same broadcaster so socket subscribers see it live.
func (h *RoomHandler) PostRoomMessage(c *gin.Context) {
	roomID := c.Param("room_id")
	userID := c.GetString(middleware.ContextUserID)

	if !h.authorizeRoomAccess(c, roomID, userID) {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := userFromContext(c)
	msg := models.Message{
		ID:         uuid.NewString(),
		Content:    req.Content,
		RoomID:     roomID,
		UserID:     user.ID,
		UserName:   user.Nickname,
		UserAvatar: user.AvatarURL,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.messages.AppendMessage(c.Request.Context(), msg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.hub.BroadcastMessage(roomID, msg)
	observability.IncBroadcast("http")
	c.JSON(http.StatusOK, msg)
}

// GetRoomUsers handles GET /api/rooms/:room_id/users: profiles of recent
// senders in the room, excluding the caller.
func (h *RoomHandler) GetRoomUsers(c *gin.Context) {
	roomID := c.Param("room_id")
	userID := c.GetString(middleware.ContextUserID)

	if !h.authorizeRoomAccess(c, roomID, userID) {
		return
	}

	senderIDs, err := h.messages.ListRecentSenderIDs(c.Request.Context(), roomID, recentSendersWindow)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
		return
	}

	ids := make([]string, 0, len(senderIDs))
	seen := map[string]struct{}{userID: {}}
	for _, id := range senderIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	users, err := h.users.ListUsersByIDs(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}

	type userResponse struct {
		ID        string  `json:"id"`
		Nickname  string  `json:"nickname"`
		AvatarURL *string `json:"avatar_url"`
	}
	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, userResponse{ID: u.ID, Nickname: u.Nickname, AvatarURL: u.AvatarURL})
	}
	c.JSON(http.StatusOK, resp)
}

// authorizeRoomAccess resolves the room and enforces the private-room
// membership check shared by history, send and users endpoints. It writes
// the error response itself and reports whether the caller may proceed.
func (h *RoomHandler) authorizeRoomAccess(c *gin.Context, roomID, userID string) bool {
	room, err := h.rooms.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		h.roomError(c, err)
		return false
	}

	if !room.IsPrivate {
		return true
	}

	member, err := h.rooms.IsMember(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return false
	}
	if !member {
		h.emitAudit(c, "ERROR", "access denied to private room")
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied to private room"})
		return false
	}
	return true
}

func (h *RoomHandler) roomError(c *gin.Context, err error) {
	if errors.Is(err, repositories.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
}

func userFromContext(c *gin.Context) models.User {
	if val, ok := c.Get(middleware.ContextUser); ok {
		if user, ok := val.(models.User); ok {
			return user
		}
	}
	return models.User{ID: c.GetString(middleware.ContextUserID)}
}
