package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"mcpwsbridge/internal/session"
)

// maxBodyBytes bounds a single POST body, matching the teacher's own
// request-size ceiling for inbound JSON-RPC payloads.
const maxBodyBytes = 10 * 1024 * 1024

// handleClientIngress implements POST /mcp (and /{config}/mcp): it forwards
// the body to the browser side and decides, per the response policy below,
// whether the HTTP response becomes an event-stream carrying responses for
// the requests in this batch, or an immediate 202.
func (s *Server) handleClientIngress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := sessionKey(r)
	sess := s.sessions.GetOrCreate(key)

	if !authorize(r, sess) {
		s.writeUnauthorized(w, r)
		return
	}

	if !s.ingressLimiter.Allow(key) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	frames := session.BatchOrSingle(body)
	if len(frames) == 0 {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	requestIDs := make([]string, 0, len(frames))
	for _, f := range frames {
		if f.IsRequestOrNotification() {
			if id, ok := f.IDKey(); ok {
				requestIDs = append(requestIDs, id)
			}
		}
	}

	browserAttached := sess.HasLiveBrowserSocket()

	if len(requestIDs) > 0 && browserAttached {
		s.streamPostResponses(w, r, sess, requestIDs, body)
		return
	}

	if err := s.router.RouteToBrowser(sess, body); err != nil {
		s.logger.Warn("client ingress: forward to browser failed", "session", key, "error", err)
	}

	w.WriteHeader(http.StatusAccepted)
}

// streamPostResponses turns this POST's HTTP response into an event-stream,
// registering it as the tracked writer for every request id in requestIDs
// before the body is forwarded to the browser, so a reply racing in on the
// browser socket's own goroutine always finds its id already tracked (see
// Router.RouteFromBrowser). Only after tracking is in place does it forward
// body to the browser and start pumping the stream.
func (s *Server) streamPostResponses(w http.ResponseWriter, r *http.Request, sess *session.Session, requestIDs []string, body []byte) {
	flusher, ok := prepareSSE(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	attachment := newSSEAttachment()
	for _, id := range requestIDs {
		sess.TrackResponse(id, attachment)
	}
	defer sess.UntrackAttachment(attachment)

	if err := s.router.RouteToBrowser(sess, body); err != nil {
		s.logger.Warn("client ingress: forward to browser failed", "session", sess.Key, "error", err)
	}

	attachment.pump(r.Context(), w, flusher.Flush)
}
