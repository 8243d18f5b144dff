// Package transport wires the session-scoped duplex message router's HTTP
// and WebSocket surface: the client stream and ingress endpoints, the
// browser socket endpoint, and the ambient operability endpoints.
package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/segmentio/encoding/json"

	"mcpwsbridge/internal/audit"
	"mcpwsbridge/internal/metrics"
	"mcpwsbridge/internal/oauth"
	"mcpwsbridge/internal/ratelimit"
	"mcpwsbridge/internal/redact"
	"mcpwsbridge/internal/router"
	"mcpwsbridge/internal/session"
)

// Server holds the dependencies every handler needs and builds the mux.
type Server struct {
	sessions       *session.Registry
	router         *router.Router
	oauth          *oauth.Handlers
	metrics        *metrics.Collector
	audit          *audit.Hub
	redactor       *redact.Redactor
	logger         *slog.Logger
	ingressLimiter *ratelimit.PerSession
	staticDir      string
}

// Config bundles the constructed collaborators a Server needs.
type Config struct {
	Sessions  *session.Registry
	Router    *router.Router
	OAuth     *oauth.Handlers
	Metrics   *metrics.Collector
	Audit     *audit.Hub
	Redactor  *redact.Redactor
	Logger    *slog.Logger
	StaticDir string
}

// New builds a Server from its collaborators.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	redactor := cfg.Redactor
	if redactor == nil {
		redactor = redact.NewRedactor()
	}
	return &Server{
		sessions:       cfg.Sessions,
		router:         cfg.Router,
		oauth:          cfg.OAuth,
		metrics:        cfg.Metrics,
		audit:          cfg.Audit,
		redactor:       redactor,
		logger:         logger,
		ingressLimiter: ratelimit.NewPerSession(50, 100),
		staticDir:      cfg.StaticDir,
	}
}

// Handler builds the complete http.Handler for the bridge, with CORS and
// request logging applied uniformly.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /mcp", s.handleClientStream)
	mux.HandleFunc("GET /{config}/mcp", s.handleClientStream)
	mux.HandleFunc("POST /mcp", s.handleClientIngress)
	mux.HandleFunc("POST /{config}/mcp", s.handleClientIngress)
	mux.HandleFunc("GET /ws", s.handleBrowserSocket)
	mux.HandleFunc("GET /{config}/ws", s.handleBrowserSocket)

	s.oauth.Register(mux)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /", s.handleStatus)
	mux.HandleFunc("GET /admin/events", s.handleAdminEvents)

	if s.staticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))
	}

	return s.withMiddleware(mux)
}

func (s *Server) withMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		applyCORS(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "session", sessionKey(r))
		h.ServeHTTP(w, r)
	})
}

// applyCORS permits every origin with credentials: the security boundary
// here is bearer-token validation, not same-origin policy, since the
// browser-hosted tool runtime this bridge talks to is not same-origin with
// the automation client.
func applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Mcp-Protocol-Version")
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Count(),
		"metrics":  snap,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(s.metrics.PrometheusFormat()))
}

// publishAudit records a lifecycle event on the audit feed, a no-op if no
// hub was configured.
func (s *Server) publishAudit(sessionKey, kind, attachment, detail string) {
	if s.audit == nil {
		return
	}
	s.audit.Publish(audit.Event{
		Timestamp:  time.Now(),
		Session:    sessionKey,
		Kind:       kind,
		Attachment: attachment,
		Detail:     detail,
	})
}
