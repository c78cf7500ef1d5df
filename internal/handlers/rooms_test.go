package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatrooms-service/internal/middleware"
	"chatrooms-service/internal/mocks"
	"chatrooms-service/internal/models"
	"chatrooms-service/internal/repositories"
	"chatrooms-service/internal/telemetry"
	"chatrooms-service/internal/ws"
)

// recordingConn implements ws.Conn so handler tests can observe what the
// broadcaster delivered to a subscribed socket.
type recordingConn struct {
	mu      sync.Mutex
	written [][]byte
}

func (c *recordingConn) ReadMessage() (int, []byte, error) { select {} }

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.written = append(c.written, cp)
	return nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

func newTestHub() *ws.Hub {
	logger := zerolog.Nop()
	return ws.NewHub(&logger)
}

func setupRoomRouter(handler *RoomHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, "user-alice")
		c.Set(middleware.ContextUser, models.User{ID: "user-alice", Nickname: "alice", IsActive: true})
		c.Next()
	})
	r.POST("/api/rooms", handler.CreateRoom)
	r.GET("/api/rooms", handler.ListRooms)
	r.POST("/api/rooms/:room_id/join", handler.JoinRoom)
	r.GET("/api/rooms/:room_id/messages", handler.GetRoomMessages)
	r.POST("/api/rooms/:room_id/messages", handler.PostRoomMessage)
	r.GET("/api/rooms/:room_id/users", handler.GetRoomUsers)
	return r
}

func TestCreateRoomSuccess(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, nil, nil, newTestHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("CreateRoom", mock.Anything, "user-alice", "general", (*string)(nil), false).
		Return(models.Room{ID: "room-1", Name: "general", CreatedBy: "user-alice", MemberCount: 1}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewBufferString(`{"name":"general"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var room models.Room
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&room))
	assert.Equal(t, "room-1", room.ID)
	assert.Equal(t, "general", room.Name)
	assert.Equal(t, 1, room.MemberCount)
	roomRepo.AssertExpectations(t)
}

func TestCreateRoomMissingName(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, nil, nil, newTestHub(), nil)
	router := setupRoomRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewBufferString(`{"is_private":true}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	roomRepo.AssertNotCalled(t, "CreateRoom", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateRoomEmitsAudit(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	publisher := new(mocks.PublisherMock)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chatrooms", "chatrooms-service", "test")
	handler := NewRoomHandler(roomRepo, nil, nil, newTestHub(), audit)
	router := setupRoomRouter(handler)

	roomRepo.On("CreateRoom", mock.Anything, "user-alice", "general", (*string)(nil), false).
		Return(models.Room{ID: "room-1", Name: "general"}, nil).Once()
	publisher.On("Publish", mock.Anything, "audit.chatrooms", mock.AnythingOfType("telemetry.AuditEnvelope")).
		Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewBufferString(`{"name":"general"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	publisher.AssertExpectations(t)

	envelope := publisher.Calls[0].Arguments.Get(2).(telemetry.AuditEnvelope)
	assert.Equal(t, "audit_log", envelope.EventType)
	require.NotNil(t, envelope.UserID)
	assert.Equal(t, "user-alice", *envelope.UserID)
}

func TestListRoomsEmptyIsArray(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, nil, nil, newTestHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("ListRoomsForUser", mock.Anything, "user-alice").Return(([]models.Room)(nil), nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())
	roomRepo.AssertExpectations(t)
}

func TestJoinRoomSuccess(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, nil, nil, newTestHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("GetRoom", mock.Anything, "room-1").Return(models.Room{ID: "room-1"}, nil).Once()
	roomRepo.On("AddMember", mock.Anything, "room-1", "user-alice").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/rooms/room-1/join", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Successfully joined room", resp["message"])
	roomRepo.AssertExpectations(t)
}

func TestJoinRoomNotFound(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, nil, nil, newTestHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("GetRoom", mock.Anything, "room-missing").Return(models.Room{}, repositories.ErrRoomNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/rooms/room-missing/join", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	roomRepo.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetRoomMessagesFillsUnknownUser(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewRoomHandler(roomRepo, messageRepo, nil, newTestHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("GetRoom", mock.Anything, "room-1").Return(models.Room{ID: "room-1"}, nil).Once()
	messageRepo.On("ListRoomMessages", mock.Anything, "room-1", 50).Return([]models.Message{
		{ID: "m1", Content: "first", RoomID: "room-1", UserID: "user-gone", UserName: ""},
		{ID: "m2", Content: "second", RoomID: "room-1", UserID: "user-alice", UserName: "alice"},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/room-1/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "Unknown User", msgs[0].UserName)
	assert.Equal(t, "alice", msgs[1].UserName)
	messageRepo.AssertExpectations(t)
}

func TestGetRoomMessagesPrivateDenied(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewRoomHandler(roomRepo, messageRepo, nil, newTestHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("GetRoom", mock.Anything, "room-private").Return(models.Room{ID: "room-private", IsPrivate: true}, nil).Once()
	roomRepo.On("IsMember", mock.Anything, "room-private", "user-alice").Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/room-private/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "ListRoomMessages", mock.Anything, mock.Anything, mock.Anything)
}

func TestPostRoomMessageBroadcasts(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	hub := newTestHub()
	subscriber := new(recordingConn)
	hub.Add("room-1", subscriber, ws.ConnInfo{ConnID: "c1"})

	handler := NewRoomHandler(roomRepo, messageRepo, nil, hub, nil)
	router := setupRoomRouter(handler)

	roomRepo.On("GetRoom", mock.Anything, "room-1").Return(models.Room{ID: "room-1"}, nil).Once()
	messageRepo.On("AppendMessage", mock.Anything, mock.AnythingOfType("models.Message")).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/rooms/room-1/messages", bytes.NewBufferString(`{"content":"via http"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var msg models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "via http", msg.Content)
	assert.Equal(t, "alice", msg.UserName)

	frames := subscriber.frames()
	require.Len(t, frames, 1)
	var event models.MessageEvent
	require.NoError(t, json.Unmarshal(frames[0], &event))
	assert.Equal(t, "message", event.Type)
	assert.Equal(t, msg.ID, event.ID)
	assert.Equal(t, "via http", event.Content)

	messageRepo.AssertExpectations(t)
}

func TestPostRoomMessageRoomNotFound(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewRoomHandler(roomRepo, messageRepo, nil, newTestHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("GetRoom", mock.Anything, "room-missing").Return(models.Room{}, repositories.ErrRoomNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/rooms/room-missing/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	messageRepo.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
}

func TestPostRoomMessageEmptyBody(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewRoomHandler(roomRepo, messageRepo, nil, newTestHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("GetRoom", mock.Anything, "room-1").Return(models.Room{ID: "room-1"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/rooms/room-1/messages", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	messageRepo.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
}

func TestGetRoomUsersExcludesCaller(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewRoomHandler(roomRepo, messageRepo, userRepo, newTestHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("GetRoom", mock.Anything, "room-1").Return(models.Room{ID: "room-1"}, nil).Once()
	messageRepo.On("ListRecentSenderIDs", mock.Anything, "room-1", 20).
		Return([]string{"user-bob", "user-alice", "user-bob", "user-carol"}, nil).Once()
	userRepo.On("ListUsersByIDs", mock.Anything, []string{"user-bob", "user-carol"}).
		Return([]models.User{
			{ID: "user-bob", Nickname: "bob"},
			{ID: "user-carol", Nickname: "carol"},
		}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/room-1/users", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "bob", resp[0]["nickname"])
	assert.Equal(t, "carol", resp[1]["nickname"])
	userRepo.AssertExpectations(t)
}
