package transport

import (
	"fmt"
	"net/http"
	"time"

	"mcpwsbridge/internal/assets"
)

// handleStatus renders the embedded operator status page (C8): a small
// human-readable view of session count and headline metrics, with links to
// the machine-readable endpoints.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	snap := s.metrics.Snapshot()
	data := assets.StatusData{
		Sessions:        s.sessions.Count(),
		Uptime:          time.Duration(snap.UptimeSeconds * float64(time.Second)).Round(time.Second).String(),
		ClientAttaches:  snap.ClientAttaches,
		BrowserAttaches: snap.BrowserAttaches,
		TokensIssued:    snap.TokensIssued,
	}
	if s.audit != nil {
		data.AuditSubscribers = s.audit.SubscriberCount()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := assets.StatusTemplate.Execute(w, data); err != nil {
		s.logger.Warn("status page render failed", "error", err)
	}
}

// handleAdminEvents streams the in-memory audit feed as server-sent events,
// for an operator watching session lifecycle (attach/detach, routing
// decisions, OAuth issuance) live. Not authenticated beyond whatever sits in
// front of this process. Each event carries its session key, and for a
// session that has completed the token exchange that key is also its bearer.
func (s *Server) handleAdminEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		http.Error(w, "audit feed not configured", http.StatusNotImplemented)
		return
	}
	flusher, ok := prepareSSE(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, events := s.audit.Subscribe()
	defer s.audit.Unsubscribe(id)

	if err := writeSSEComment(w, "connected"); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			raw := []byte(fmt.Sprintf(`{"timestamp":%q,"session":%q,"kind":%q,"attachment":%q,"detail":%q}`,
				ev.Timestamp.Format(time.RFC3339Nano), ev.Session, ev.Kind, ev.Attachment, ev.Detail))
			if err := writeSSEData(w, raw); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
