package session

import "github.com/segmentio/encoding/json"

// Frame is a single JSON-RPC 2.0 message, classified only as far as the
// router needs to make a delivery decision. It never validates method names,
// params shapes, or protocol versions — that is the endpoint's business.
type Frame struct {
	Raw    []byte
	ID     json.RawMessage // nil if absent
	Method string          // "" if absent
}

// rpcShape mirrors only the fields the router cares about. Unknown fields
// are ignored by encoding/json, so tool-specific payloads still parse fine.
type rpcShape struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
}

// ParseFrame attempts to classify raw as a JSON-RPC frame. ok is false when
// raw does not parse as a JSON object at all; callers should still forward
// the raw bytes (see Router's raw-passthrough fallback) rather than drop them.
func ParseFrame(raw []byte) (Frame, bool) {
	var shape rpcShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		return Frame{Raw: raw}, false
	}
	return Frame{Raw: raw, ID: shape.ID, Method: shape.Method}, true
}

// IsResponse reports whether f should be routed as a JSON-RPC response: it
// carries an id and no method. A frame with both is routed as a
// request/notification — malformed but still deliverable.
func (f Frame) IsResponse() bool {
	return len(f.ID) > 0 && f.Method == ""
}

// IsRequestOrNotification reports whether f carries a method.
func (f Frame) IsRequestOrNotification() bool {
	return f.Method != ""
}

// IDKey returns a comparable key for f.ID suitable for map lookups.
// Returns ("", false) when f has no id.
func (f Frame) IDKey() (string, bool) {
	if len(f.ID) == 0 {
		return "", false
	}
	return string(f.ID), true
}

// BatchOrSingle splits a client POST body into individual frames. A body
// beginning with '[' is treated as a JSON-RPC batch; anything else is a
// single frame. Frames that fail to parse as objects are still returned,
// unclassified, so the caller can still forward them.
func BatchOrSingle(body []byte) []Frame {
	trimmed := trimLeadingSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '[' {
		var rawItems []json.RawMessage
		if err := json.Unmarshal(trimmed, &rawItems); err != nil {
			f, _ := ParseFrame(trimmed)
			return []Frame{f}
		}
		frames := make([]Frame, 0, len(rawItems))
		for _, item := range rawItems {
			f, _ := ParseFrame(item)
			frames = append(frames, f)
		}
		return frames
	}
	f, _ := ParseFrame(trimmed)
	return []Frame{f}
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}
		break
	}
	return b[i:]
}
