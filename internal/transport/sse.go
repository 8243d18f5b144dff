package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// keepaliveInterval bounds how long an idle SSE connection goes without a
// byte on the wire, so intermediary proxies don't time it out.
const keepaliveInterval = 15 * time.Second

// prepareSSE sets the headers an event-stream response needs and returns
// the response's Flusher. ok is false if the ResponseWriter cannot flush,
// in which case the caller should fail the request instead of streaming.
func prepareSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return flusher, true
}

// writeSSEData writes raw as a single SSE event's data field(s), handling
// embedded newlines by repeating the data: prefix per line.
func writeSSEData(w io.Writer, raw []byte) error {
	bw := bufio.NewWriter(w)
	if len(raw) == 0 {
		if _, err := bw.WriteString("data: \n\n"); err != nil {
			return err
		}
		return bw.Flush()
	}
	for _, line := range bytes.Split(raw, []byte{'\n'}) {
		if _, err := bw.WriteString("data: "); err != nil {
			return err
		}
		if _, err := bw.Write(line); err != nil {
			return err
		}
		if _, err := bw.WriteString("\n"); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\n"); err != nil {
		return err
	}
	return bw.Flush()
}

func writeSSEComment(w io.Writer, comment string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", comment)
	return err
}
