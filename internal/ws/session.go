package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatrooms-service/internal/auth"
	"chatrooms-service/internal/models"
	"chatrooms-service/internal/observability"
	"chatrooms-service/internal/repositories"
)

// inboundFrame is one client frame on a room socket. Every frame carries its
// own credential; the socket itself is never authenticated.
type inboundFrame struct {
	Content string `json:"content"`
	Token   string `json:"token"`
}

// Protocol error strings reported back on the originating connection. The
// connection stays open after each of them.
const (
	errInvalidMessage = "Invalid message"
	errNoToken        = "No token provided"
	errInvalidToken   = "Invalid token"
	errUserNotFound   = "User not found"
	errRoomNotFound   = "Room not found"
	errAccessDenied   = "Access denied"
)

// session runs the per-connection protocol for one room subscription:
// frames are read and handled strictly in order, each one passing
// parse -> authenticate -> authorize -> persist -> broadcast.
type session struct {
	roomID   string
	conn     Conn
	hub      *Hub
	verifier auth.TokenVerifier
	users    repositories.UserRepository
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	log      *zerolog.Logger
}

func newSession(roomID string, conn Conn, hub *Hub, verifier auth.TokenVerifier,
	users repositories.UserRepository, rooms repositories.RoomRepository,
	messages repositories.MessageRepository, logger *zerolog.Logger) *session {
	return &session{
		roomID:   roomID,
		conn:     conn,
		hub:      hub,
		verifier: verifier,
		users:    users,
		rooms:    rooms,
		messages: messages,
		log:      logger,
	}
}

// run consumes frames until the peer disconnects or the context is done.
// The returned error is the read error that terminated the loop.
func (s *session) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleFrame(ctx, data)
	}
}

// handleFrame processes a single inbound frame. Protocol violations are
// answered with an error frame and leave no state behind; infrastructure
// failures are logged and the frame dropped so the loop survives an outage.
func (s *session) handleFrame(ctx context.Context, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Content == "" {
		s.writeError(errInvalidMessage)
		return
	}

	if frame.Token == "" {
		s.writeError(errNoToken)
		return
	}

	userID, err := s.verifier.VerifyToken(ctx, frame.Token)
	if err != nil {
		s.writeError(errInvalidToken)
		return
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			s.writeError(errUserNotFound)
			return
		}
		s.log.Error().Err(err).Str("room_id", s.roomID).Msg("user lookup failed")
		return
	}
	if !user.IsActive {
		s.writeError(errUserNotFound)
		return
	}

	room, err := s.rooms.GetRoom(ctx, s.roomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			s.writeError(errRoomNotFound)
			return
		}
		s.log.Error().Err(err).Str("room_id", s.roomID).Msg("room lookup failed")
		return
	}

	if room.IsPrivate {
		member, err := s.rooms.IsMember(ctx, room.ID, user.ID)
		if err != nil {
			s.log.Error().Err(err).Str("room_id", s.roomID).Msg("membership check failed")
			return
		}
		if !member {
			s.writeError(errAccessDenied)
			return
		}
	}

	msg := models.Message{
		ID:         uuid.NewString(),
		Content:    frame.Content,
		RoomID:     s.roomID,
		UserID:     user.ID,
		UserName:   user.Nickname,
		UserAvatar: user.AvatarURL,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.messages.AppendMessage(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("room_id", s.roomID).Msg("append message failed")
		return
	}

	s.hub.BroadcastMessage(s.roomID, msg)
	observability.IncBroadcast("ws")
}

func (s *session) writeError(reason string) {
	payload, _ := json.Marshal(models.ErrorFrame{Error: reason})
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.log.Debug().Err(err).Str("room_id", s.roomID).Msg("write error frame")
	}
}
