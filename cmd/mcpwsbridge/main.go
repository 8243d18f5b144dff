// Command mcpwsbridge runs the reverse proxy that bridges an MCP
// Streamable HTTP client to a browser-hosted tool runtime reached over a
// WebSocket, mediating JSON-RPC 2.0 traffic between them.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcpwsbridge/internal/audit"
	"mcpwsbridge/internal/logging"
	"mcpwsbridge/internal/metrics"
	"mcpwsbridge/internal/oauth"
	"mcpwsbridge/internal/redact"
	"mcpwsbridge/internal/router"
	"mcpwsbridge/internal/session"
	"mcpwsbridge/internal/transport"
)

func main() {
	listen := flag.String("listen", envOr("PORT", ":8787"), "listen address or bare port")
	logFormat := flag.String("log-format", envOr("MCP_LOG_FORMAT", "text"), "log format: text or json")
	logLevel := flag.String("log-level", envOr("MCP_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	staticDir := flag.String("static-dir", envOr("MCP_STATIC_DIR", ""), "optional directory of extra static assets served under /static/")
	clientsFile := flag.String("clients-file", envOr("MCP_CLIENTS_FILE", ""), "optional YAML file of pre-registered OAuth clients")
	flag.Parse()

	logger := logging.Setup(*logFormat, *logLevel)

	addr := normalizeAddr(*listen)

	sessions := session.NewRegistry()
	collector := metrics.NewCollector()
	auditHub := audit.NewHub()
	sessions.SetOnCreate(func(key string) {
		collector.RecordSessionCreated()
		auditHub.Publish(audit.Event{Timestamp: time.Now(), Session: key, Kind: audit.KindSessionCreated})
	})

	rt := router.New(logger, collector)
	rt.SetAuditHub(auditHub)

	oauthStore := oauth.NewStore()
	if *clientsFile != "" {
		n, err := oauth.LoadClientsFile(oauthStore, *clientsFile)
		if err != nil {
			logger.Error("failed to load clients file", "path", *clientsFile, "error", err)
			os.Exit(1)
		}
		logger.Info("loaded static OAuth clients", "count", n, "path", *clientsFile)
	}
	oauthHandlers := oauth.NewHandlers(oauthStore, sessions, collector, logger)
	oauthHandlers.SetAuditHub(auditHub)

	redactor := redact.NewRedactor()
	oauthHandlers.SetRedactor(redactor)

	srv := transport.New(transport.Config{
		Sessions:  sessions,
		Router:    rt,
		OAuth:     oauthHandlers,
		Metrics:   collector,
		Audit:     auditHub,
		Redactor:  redactor,
		Logger:    logger,
		StaticDir: *staticDir,
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("mcpwsbridge listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// normalizeAddr lets -listen/PORT be either a bare port ("8787") or a full
// address (":8787", "0.0.0.0:8787").
func normalizeAddr(listen string) string {
	if listen == "" {
		return ":8787"
	}
	for _, c := range listen {
		if c == ':' {
			return listen
		}
	}
	return ":" + listen
}
