package transport

import (
	"net/http"

	"mcpwsbridge/internal/audit"
)

// handleClientStream implements GET /mcp (and /{config}/mcp): it attaches a
// long-lived event-stream to the session, displacing any previous one,
// drains queued server-to-client frames, and then pumps live frames until
// the peer disconnects.
func (s *Server) handleClientStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := sessionKey(r)
	sess := s.sessions.GetOrCreate(key)

	if !authorize(r, sess) {
		s.writeUnauthorized(w, r)
		return
	}

	flusher, ok := prepareSSE(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	attachment := newSSEAttachment()
	queued := sess.AttachClientStream(attachment)
	s.metrics.RecordAttach("client_stream")
	s.publishAudit(key, audit.KindAttach, "client_stream", "")
	s.logger.Info("client stream attached", "session", key)

	if err := writeSSEComment(w, "connected"); err != nil {
		return
	}
	flusher.Flush()
	for _, raw := range queued {
		if err := writeSSEData(w, raw); err != nil {
			return
		}
	}
	flusher.Flush()

	defer func() {
		sess.DetachClientStream(attachment)
		_ = attachment.Close()
		s.metrics.RecordDetach("client_stream")
		s.publishAudit(key, audit.KindDetach, "client_stream", "")
		s.logger.Info("client stream detached", "session", key)
	}()

	attachment.pump(r.Context(), w, flusher.Flush)
}
