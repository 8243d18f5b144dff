package transport

import (
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// closeReplaced is an application-level close code sent to a browser socket
// that has been displaced by a newer connection for the same session,
// distinguishing it from an ordinary going-away close.
const closeReplaced = 4000

// wsAttachment implements session.Attachment over a browser WebSocket.
// gorilla/websocket forbids concurrent writers on one connection, and the
// connection's read loop runs on its own goroutine blocked in ReadMessage,
// so a dedicated writer goroutine drains an internal channel — unlike the
// SSE attachments, there is no handler loop free to double as the pump.
type wsAttachment struct {
	conn   *websocket.Conn
	out    chan []byte
	closed chan struct{}
}

func newWSAttachment(conn *websocket.Conn) *wsAttachment {
	a := &wsAttachment{
		conn:   conn,
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	go a.writeLoop()
	return a
}

func (a *wsAttachment) Send(raw []byte) error {
	select {
	case <-a.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case a.out <- raw:
		return nil
	default:
		slog.Default().Warn("ws attachment buffer full, dropping frame")
		return nil
	}
}

// Close stops the writer loop and closes the underlying connection.
// Idempotent.
func (a *wsAttachment) Close() error {
	select {
	case <-a.closed:
		return nil
	default:
		close(a.closed)
	}
	return a.conn.Close()
}

// CloseReplaced closes the connection with an application close frame
// indicating it was displaced, then tears down the writer loop.
func (a *wsAttachment) CloseReplaced() error {
	_ = a.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(closeReplaced, "replaced by a newer connection"),
		time.Now().Add(time.Second),
	)
	return a.Close()
}

func (a *wsAttachment) writeLoop() {
	for {
		select {
		case <-a.closed:
			return
		case raw := <-a.out:
			if err := a.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				slog.Default().Debug("ws write error", "error", err)
				return
			}
		}
	}
}
