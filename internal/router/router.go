// Package router implements the policy that decides, for every frame
// received from either side of a session, where it goes next.
package router

import (
	"log/slog"
	"time"

	"mcpwsbridge/internal/audit"
	"mcpwsbridge/internal/metrics"
	"mcpwsbridge/internal/session"
)

// Router classifies frames and applies the routing table described by the
// session-scoped duplex message router: responses go to the POST writer
// that introduced their request id when one is tracked, otherwise to the
// live client stream, otherwise to the client queue. Requests, notifications,
// and unparseable text always target the client side.
type Router struct {
	logger  *slog.Logger
	metrics *metrics.Collector
	audit   *audit.Hub
}

// New creates a Router. logger and metrics may be nil in tests.
func New(logger *slog.Logger, collector *metrics.Collector) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger, metrics: collector}
}

// SetAuditHub attaches the audit feed the router publishes routing events
// to. Optional: a Router with no hub set simply skips publishing.
func (rt *Router) SetAuditHub(hub *audit.Hub) {
	rt.audit = hub
}

func (rt *Router) publish(sess *session.Session, kind, detail string) {
	if rt.audit == nil {
		return
	}
	rt.audit.Publish(audit.Event{Timestamp: time.Now(), Session: sess.Key, Kind: kind, Detail: detail})
}

// RouteFromBrowser handles a single frame read off a session's browser
// socket: raw is the literal bytes received, which may or may not parse as
// JSON-RPC.
func (rt *Router) RouteFromBrowser(sess *session.Session, raw []byte) {
	frame, ok := session.ParseFrame(raw)
	if !ok {
		rt.logger.Debug("unparseable frame from browser, forwarding raw", "session", sess.Key)
		rt.deliverToClient(sess, raw, "raw")
		return
	}

	if frame.IsResponse() {
		id, _ := frame.IDKey()
		if writer, tracked := sess.ResolveResponse(id); tracked {
			if err := writer.Send(raw); err != nil {
				rt.logger.Warn("post writer send failed, falling back to client stream", "session", sess.Key, "id", id, "error", err)
				rt.recordRouted("post_writer_failed")
				rt.deliverToClient(sess, raw, "response_fallback")
				return
			}
			rt.logger.Debug("routed response to post writer", "session", sess.Key, "id", id)
			rt.recordRouted("post_writer")
			rt.publish(sess, audit.KindRouted, "response id "+id+" -> post writer")
			return
		}
		rt.deliverToClient(sess, raw, "response_fallback")
		return
	}

	if frame.IsRequestOrNotification() {
		rt.deliverToClient(sess, raw, "request_or_notification")
		return
	}

	// Frame parsed as an object but carries neither id nor method: best
	// effort forward, same as the unparseable case.
	rt.deliverToClient(sess, raw, "shapeless")
}

func (rt *Router) deliverToClient(sess *session.Session, raw []byte, class string) {
	live, dropped, err := sess.SendToClient(raw)
	if err != nil {
		rt.logger.Warn("client stream send failed", "session", sess.Key, "error", err)
	}
	switch {
	case live:
		rt.recordRouted("client_stream_live_" + class)
	case dropped:
		rt.logger.Warn("to_sse queue full, dropped oldest frame", "session", sess.Key)
		rt.recordDrop("to_sse")
		rt.recordRouted("client_stream_queued_" + class)
	default:
		rt.recordRouted("client_stream_queued_" + class)
	}
}

// RouteToBrowser delivers a client-originated frame to the browser side,
// live if attached, queued otherwise. Used by the Client Ingress Endpoint.
func (rt *Router) RouteToBrowser(sess *session.Session, raw []byte) error {
	live, dropped, err := sess.SendToBrowser(raw)
	if err != nil {
		rt.logger.Warn("browser socket send failed", "session", sess.Key, "error", err)
		return err
	}
	switch {
	case live:
		rt.recordRouted("ws_live")
	case dropped:
		rt.logger.Warn("to_ws queue full, dropped oldest frame", "session", sess.Key)
		rt.recordDrop("to_ws")
		rt.recordRouted("ws_queued")
	default:
		rt.recordRouted("ws_queued")
	}
	return nil
}

func (rt *Router) recordRouted(class string) {
	if rt.metrics != nil {
		rt.metrics.RecordRouted(class)
	}
}

func (rt *Router) recordDrop(queue string) {
	if rt.metrics != nil {
		rt.metrics.RecordQueueDrop(queue)
	}
}
