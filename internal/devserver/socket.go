package devserver

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const socketWriteWait = 5 * time.Second

type reloadMessage struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// SocketTarget pushes reload messages to a browser over a websocket.
type SocketTarget struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// NewSocketTarget wraps an upgraded connection.
func NewSocketTarget(conn *websocket.Conn) *SocketTarget {
	return &SocketTarget{conn: conn}
}

// Reload sends {"type":"reload","path":...}.
func (t *SocketTarget) Reload(path string) error {
	data, err := sonic.Marshal(reloadMessage{Type: "reload", Path: path})
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return websocket.ErrCloseSent
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the connection once.
func (t *SocketTarget) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// wait blocks until the peer disconnects.
func (t *SocketTarget) wait() {
	for {
		if _, _, err := t.conn.ReadMessage(); err != nil {
			return
		}
	}
}
