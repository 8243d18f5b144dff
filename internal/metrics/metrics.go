// Package metrics collects counters and gauges for the session router and
// exports them in Prometheus text format, in the style the rest of this
// codebase's ambient stack uses for operability.
package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects router-domain metrics: session lifecycle, attachment
// churn, per-class frame routing counts, queue drops, and OAuth issuance.
type Collector struct {
	totalSessions     atomic.Int64
	clientAttaches    atomic.Int64
	browserAttaches   atomic.Int64
	clientDetaches    atomic.Int64
	browserDetaches   atomic.Int64
	queueDropsSSE     atomic.Int64
	queueDropsWS      atomic.Int64
	codesIssued       atomic.Int64
	tokensIssued      atomic.Int64
	tokenExchangeFail atomic.Int64

	routedMu sync.RWMutex
	routed   map[string]*atomic.Int64

	startTime time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		routed:    make(map[string]*atomic.Int64),
		startTime: time.Now(),
	}
}

// RecordSessionCreated increments the lifetime session counter.
func (c *Collector) RecordSessionCreated() { c.totalSessions.Add(1) }

// RecordAttach records a new client-stream or browser-socket attachment.
func (c *Collector) RecordAttach(kind string) {
	switch kind {
	case "client_stream":
		c.clientAttaches.Add(1)
	case "browser_socket":
		c.browserAttaches.Add(1)
	}
}

// RecordDetach records an attachment going away.
func (c *Collector) RecordDetach(kind string) {
	switch kind {
	case "client_stream":
		c.clientDetaches.Add(1)
	case "browser_socket":
		c.browserDetaches.Add(1)
	}
}

// RecordRouted increments the counter for the given routing-destination
// class (e.g. "post_writer", "client_stream_live_response_fallback",
// "ws_queued").
func (c *Collector) RecordRouted(class string) {
	c.routedMu.RLock()
	counter, ok := c.routed[class]
	c.routedMu.RUnlock()
	if !ok {
		c.routedMu.Lock()
		counter, ok = c.routed[class]
		if !ok {
			counter = &atomic.Int64{}
			c.routed[class] = counter
		}
		c.routedMu.Unlock()
	}
	counter.Add(1)
}

// RecordQueueDrop increments the drop counter for the named queue ("to_sse"
// or "to_ws").
func (c *Collector) RecordQueueDrop(queue string) {
	switch queue {
	case "to_sse":
		c.queueDropsSSE.Add(1)
	case "to_ws":
		c.queueDropsWS.Add(1)
	}
}

// RecordCodeIssued increments the authorization-code issuance counter.
func (c *Collector) RecordCodeIssued() { c.codesIssued.Add(1) }

// RecordTokenIssued increments the token-exchange success counter.
func (c *Collector) RecordTokenIssued() { c.tokensIssued.Add(1) }

// RecordTokenExchangeFailed increments the token-exchange failure counter.
func (c *Collector) RecordTokenExchangeFailed() { c.tokenExchangeFail.Add(1) }

// PrometheusFormat exports metrics in Prometheus text format.
func (c *Collector) PrometheusFormat() string {
	var out string

	out += "# HELP mcpwsbridge_sessions_total Total number of sessions created\n"
	out += "# TYPE mcpwsbridge_sessions_total counter\n"
	out += fmt.Sprintf("mcpwsbridge_sessions_total %d\n\n", c.totalSessions.Load())

	out += "# HELP mcpwsbridge_attachments_total Attachment events by kind and direction\n"
	out += "# TYPE mcpwsbridge_attachments_total counter\n"
	out += fmt.Sprintf("mcpwsbridge_attachments_total{kind=\"client_stream\",event=\"attach\"} %d\n", c.clientAttaches.Load())
	out += fmt.Sprintf("mcpwsbridge_attachments_total{kind=\"client_stream\",event=\"detach\"} %d\n", c.clientDetaches.Load())
	out += fmt.Sprintf("mcpwsbridge_attachments_total{kind=\"browser_socket\",event=\"attach\"} %d\n", c.browserAttaches.Load())
	out += fmt.Sprintf("mcpwsbridge_attachments_total{kind=\"browser_socket\",event=\"detach\"} %d\n\n", c.browserDetaches.Load())

	out += "# HELP mcpwsbridge_frames_routed_total Frames routed by destination class\n"
	out += "# TYPE mcpwsbridge_frames_routed_total counter\n"
	c.routedMu.RLock()
	for class, counter := range c.routed {
		out += fmt.Sprintf("mcpwsbridge_frames_routed_total{class=\"%s\"} %d\n", class, counter.Load())
	}
	c.routedMu.RUnlock()
	out += "\n"

	out += "# HELP mcpwsbridge_queue_drops_total Frames dropped for queue overflow\n"
	out += "# TYPE mcpwsbridge_queue_drops_total counter\n"
	out += fmt.Sprintf("mcpwsbridge_queue_drops_total{queue=\"to_sse\"} %d\n", c.queueDropsSSE.Load())
	out += fmt.Sprintf("mcpwsbridge_queue_drops_total{queue=\"to_ws\"} %d\n\n", c.queueDropsWS.Load())

	out += "# HELP mcpwsbridge_oauth_codes_issued_total Authorization codes issued\n"
	out += "# TYPE mcpwsbridge_oauth_codes_issued_total counter\n"
	out += fmt.Sprintf("mcpwsbridge_oauth_codes_issued_total %d\n\n", c.codesIssued.Load())

	out += "# HELP mcpwsbridge_oauth_tokens_issued_total Access tokens issued\n"
	out += "# TYPE mcpwsbridge_oauth_tokens_issued_total counter\n"
	out += fmt.Sprintf("mcpwsbridge_oauth_tokens_issued_total %d\n", c.tokensIssued.Load())
	out += fmt.Sprintf("mcpwsbridge_oauth_token_exchange_failed_total %d\n\n", c.tokenExchangeFail.Load())

	uptime := time.Since(c.startTime).Seconds()
	out += "# HELP mcpwsbridge_uptime_seconds Uptime in seconds\n"
	out += "# TYPE mcpwsbridge_uptime_seconds counter\n"
	out += fmt.Sprintf("mcpwsbridge_uptime_seconds %.0f\n", uptime)

	return out
}

// Snapshot is a JSON-friendly view of the current counters, served at
// /healthz alongside liveness information.
type Snapshot struct {
	TotalSessions      int64            `json:"total_sessions"`
	ClientAttaches     int64            `json:"client_stream_attaches"`
	BrowserAttaches    int64            `json:"browser_socket_attaches"`
	QueueDropsSSE      int64            `json:"queue_drops_to_sse"`
	QueueDropsWS       int64            `json:"queue_drops_to_ws"`
	CodesIssued        int64            `json:"oauth_codes_issued"`
	TokensIssued       int64            `json:"oauth_tokens_issued"`
	TokenExchangeFails int64            `json:"oauth_token_exchange_failed"`
	RoutedByClass      map[string]int64 `json:"frames_routed_by_class"`
	UptimeSeconds      float64          `json:"uptime_seconds"`
}

// Snapshot returns a point-in-time copy of the counters.
func (c *Collector) Snapshot() *Snapshot {
	snap := &Snapshot{
		TotalSessions:      c.totalSessions.Load(),
		ClientAttaches:     c.clientAttaches.Load(),
		BrowserAttaches:    c.browserAttaches.Load(),
		QueueDropsSSE:      c.queueDropsSSE.Load(),
		QueueDropsWS:       c.queueDropsWS.Load(),
		CodesIssued:        c.codesIssued.Load(),
		TokensIssued:       c.tokensIssued.Load(),
		TokenExchangeFails: c.tokenExchangeFail.Load(),
		RoutedByClass:      make(map[string]int64),
		UptimeSeconds:      time.Since(c.startTime).Seconds(),
	}
	c.routedMu.RLock()
	for class, counter := range c.routed {
		snap.RoutedByClass[class] = counter.Load()
	}
	c.routedMu.RUnlock()
	return snap
}
