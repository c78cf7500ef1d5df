package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is the hub's non-owning view of one live socket. Implementations must
// allow WriteMessage from multiple goroutines: broadcasts arrive from other
// sessions while the owning session writes error frames.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// socketConn serializes writes to a gorilla connection, which permits only
// one concurrent writer.
type socketConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func newSocketConn(ws *websocket.Conn) *socketConn {
	return &socketConn{ws: ws}
}

func (c *socketConn) ReadMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

func (c *socketConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(messageType, data)
}

func (c *socketConn) Close() error {
	return c.ws.Close()
}
