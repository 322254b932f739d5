package session

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport presents a WebSocket connection as a byte stream. Each
// Write is sent as one binary message; Read concatenates binary messages in
// arrival order, so frames may span message boundaries. Text messages are
// ignored.
type WebSocketTransport struct {
	conn *websocket.Conn
	r    io.Reader
}

func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

func (t *WebSocketTransport) Read(p []byte) (int, error) {
	for {
		if t.r == nil {
			kind, r, err := t.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if kind != websocket.BinaryMessage {
				continue
			}
			t.r = r
		}
		n, err := t.r.Read(p)
		if errors.Is(err, io.EOF) {
			t.r = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (t *WebSocketTransport) Write(p []byte) (int, error) {
	if err := t.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal closure before dropping the connection.
func (t *WebSocketTransport) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return t.conn.Close()
}

func (t *WebSocketTransport) SetReadDeadline(at time.Time) error {
	return t.conn.SetReadDeadline(at)
}

func (t *WebSocketTransport) SetWriteDeadline(at time.Time) error {
	return t.conn.SetWriteDeadline(at)
}

func (t *WebSocketTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *WebSocketTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}
