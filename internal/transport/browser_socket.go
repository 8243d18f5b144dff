package transport

import (
	"net/http"

	"github.com/gorilla/websocket"

	"mcpwsbridge/internal/audit"
	"mcpwsbridge/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin checks are not this endpoint's security boundary; bearer auth is
	},
}

// handleBrowserSocket implements GET /ws: it upgrades the connection,
// attaches it as the session's browser socket (displacing any previous
// one), flushes queued client-to-server frames, and then reads frames
// until the peer disconnects, handing each to the Router.
func (s *Server) handleBrowserSocket(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(r)
	sess := s.sessions.GetOrCreate(key)

	if !authorize(r, sess) {
		s.writeUnauthorized(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session", key, "error", err)
		return
	}

	attachment := newWSAttachment(conn)
	queued := sess.AttachBrowserSocket(attachment)
	s.metrics.RecordAttach("browser_socket")
	s.publishAudit(key, audit.KindAttach, "browser_socket", "")
	s.logger.Info("browser socket attached", "session", key)

	for _, raw := range queued {
		if err := attachment.Send(raw); err != nil {
			s.logger.Warn("flush to_ws failed", "session", key, "error", err)
			break
		}
	}

	defer func() {
		sess.DetachBrowserSocket(attachment)
		sess.UntrackAttachment(attachment)
		_ = attachment.Close()
		s.metrics.RecordDetach("browser_socket")
		s.publishAudit(key, audit.KindDetach, "browser_socket", "")
		s.logger.Info("browser socket detached", "session", key)
	}()

	s.readBrowserFrames(sess, conn)
}

func (s *Server) readBrowserFrames(sess *session.Session, conn *websocket.Conn) {
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debug("websocket read error", "session", sess.Key, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		s.router.RouteFromBrowser(sess, raw)
	}
}
