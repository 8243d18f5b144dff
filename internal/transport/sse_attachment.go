package transport

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// sseAttachment implements session.Attachment over an open SSE response. The
// HTTP handler goroutine that owns the underlying connection is the only
// writer; Send only pushes onto an internal channel so callers from other
// goroutines (the browser socket's read loop, routing a response) never
// touch the ResponseWriter directly.
type sseAttachment struct {
	out    chan []byte
	closed chan struct{}
}

func newSSEAttachment() *sseAttachment {
	return &sseAttachment{
		out:    make(chan []byte, 32),
		closed: make(chan struct{}),
	}
}

// Send queues raw for delivery. Non-blocking: if the internal buffer is
// full, raw itself is dropped (and nil returned) rather than stalling the
// caller; frames already buffered are kept. This differs from the
// session-level queue, which drops its oldest entry instead.
func (a *sseAttachment) Send(raw []byte) error {
	select {
	case <-a.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case a.out <- raw:
		return nil
	default:
		slog.Default().Warn("sse attachment buffer full, dropping frame")
		return nil
	}
}

// Close signals the owning handler loop to stop. Idempotent.
func (a *sseAttachment) Close() error {
	select {
	case <-a.closed:
	default:
		close(a.closed)
	}
	return nil
}

// pump runs the handler-owned write loop: it drains a.out onto w until ctx
// is done or the attachment is closed, writing a comment keepalive when
// idle. Returns when the connection should end.
func (a *sseAttachment) pump(ctx context.Context, w io.Writer, flush func()) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.closed:
			return
		case <-ticker.C:
			if err := writeSSEComment(w, "ping"); err != nil {
				return
			}
			flush()
		case raw := <-a.out:
			if err := writeSSEData(w, raw); err != nil {
				return
			}
			flush()
		}
	}
}
