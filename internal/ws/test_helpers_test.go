package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chatrooms-service/internal/models"
)

var errConnClosed = errors.New("connection closed")

// fakeConn is an in-memory Conn. Inbound frames are fed through a channel;
// written frames are captured for assertions.
type fakeConn struct {
	inbound   chan []byte
	mu        sync.Mutex
	written   [][]byte
	failWrite bool
	closed    bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.inbound
	if !ok {
		return 0, nil, errConnClosed
	}
	return websocket.TextMessage, data, nil
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite || c.closed {
		return errConnClosed
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.written = append(c.written, cp)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func decodeErrorFrame(t *testing.T, data []byte) string {
	t.Helper()
	var frame models.ErrorFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame.Error
}

func decodeMessageEvent(t *testing.T, data []byte) models.MessageEvent {
	t.Helper()
	var event models.MessageEvent
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}
