// Package session implements the session-scoped duplex message router's
// state: the registry of sessions, each session's queues and attachment
// slots, and the JSON-RPC frame-shape classification used to route frames.
package session

import (
	"sync"
)

// DefaultQueueCapacity bounds each of a session's two queues. Chosen so a
// single abusive burst drops the oldest frames instead of exhausting memory,
// without tearing down a session an operator may still want to reattach to.
const DefaultQueueCapacity = 256

// Attachment is the uniform write capability shared by the client stream,
// a POST-turned-event-stream, and the browser socket. The router only ever
// needs to hand a frame to something that can accept it and eventually
// close; transport details live entirely behind this interface.
type Attachment interface {
	// Send delivers raw to the peer. Implementations must not block the
	// caller on slow peers for long — offload to a per-attachment writer
	// goroutine/channel where the underlying transport requires it.
	Send(raw []byte) error
	// Close tears down the attachment from the router's side.
	Close() error
}

// Session holds all per-session-key state. All mutation goes through the
// methods below, which take the session's lock; callers outside this
// package never touch the fields directly.
type Session struct {
	Key string

	mu            sync.Mutex
	token         string
	pendingCode   string
	clientStream  Attachment
	browserSocket Attachment
	toSSE         *Queue
	toWS          *Queue
	postResponses map[string]Attachment
}

func newSession(key string) *Session {
	return &Session{
		Key:           key,
		toSSE:         NewQueue(DefaultQueueCapacity),
		toWS:          NewQueue(DefaultQueueCapacity),
		postResponses: make(map[string]Attachment),
	}
}

// Token returns the session's bearer. Empty until the OAuth exchange (or an
// equivalent admission path) assigns one.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken assigns the session's bearer.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// PendingCode returns the single-use authorization code minted for this
// session, if any.
func (s *Session) PendingCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingCode
}

// SetPendingCode records the authorization code minted for this session.
func (s *Session) SetPendingCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCode = code
}

// ClearPendingCode clears the pending code once it has been exchanged.
func (s *Session) ClearPendingCode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCode = ""
}

// AttachClientStream installs a as the session's client stream, displacing
// and closing any previous one ("last writer wins"), then drains to_sse into
// the new attachment in FIFO order. Returns the frames to deliver; the
// caller performs the actual Send calls outside the lock.
func (s *Session) AttachClientStream(a Attachment) (queued [][]byte) {
	s.mu.Lock()
	prev := s.clientStream
	s.clientStream = a
	queued = s.toSSE.Drain()
	s.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return queued
}

// DetachClientStream clears the client stream slot if it still points at a,
// preventing a replace-then-close race from clobbering a newer attachment.
func (s *Session) DetachClientStream(a Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clientStream == a {
		s.clientStream = nil
	}
}

// Replaceable is implemented by attachments that distinguish an ordinary
// close from being displaced by a newer connection for the same session
// (e.g. to send a distinct WebSocket close code). Attachments that don't
// care about the distinction just implement Attachment.
type Replaceable interface {
	Attachment
	CloseReplaced() error
}

// AttachBrowserSocket installs a as the session's browser socket, displacing
// and closing any previous one, then drains to_ws for the caller to deliver.
func (s *Session) AttachBrowserSocket(a Attachment) (queued [][]byte) {
	s.mu.Lock()
	prev := s.browserSocket
	s.browserSocket = a
	queued = s.toWS.Drain()
	s.mu.Unlock()

	if prev != nil {
		if r, ok := prev.(Replaceable); ok {
			_ = r.CloseReplaced()
		} else {
			_ = prev.Close()
		}
	}
	return queued
}

// DetachBrowserSocket clears the browser socket slot if it still points at a.
func (s *Session) DetachBrowserSocket(a Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browserSocket == a {
		s.browserSocket = nil
	}
}

// SendToBrowser delivers raw to the live browser socket, or enqueues it on
// to_ws if none is attached. Reports whether the frame was handed to the
// live socket and whether an overflow drop occurred while queueing.
func (s *Session) SendToBrowser(raw []byte) (live bool, dropped bool, err error) {
	s.mu.Lock()
	a := s.browserSocket
	if a == nil {
		dropped = s.toWS.Push(raw)
		s.mu.Unlock()
		return false, dropped, nil
	}
	s.mu.Unlock()
	return true, false, a.Send(raw)
}

// SendToClient delivers raw to the live client stream, or enqueues it on
// to_sse if none is attached.
func (s *Session) SendToClient(raw []byte) (live bool, dropped bool, err error) {
	s.mu.Lock()
	a := s.clientStream
	if a == nil {
		dropped = s.toSSE.Push(raw)
		s.mu.Unlock()
		return false, dropped, nil
	}
	s.mu.Unlock()
	return true, false, a.Send(raw)
}

// TrackResponse records that responses matching id should be routed to a
// instead of the client stream, until the id is consumed or a closes.
func (s *Session) TrackResponse(id string, a Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postResponses[id] = a
}

// ResolveResponse looks up and removes the POST writer tracked for id, if
// any. The removal is unconditional: once claimed, that id falls through to
// the client stream for any later, unexpected duplicate.
func (s *Session) ResolveResponse(id string) (Attachment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.postResponses[id]
	if ok {
		delete(s.postResponses, id)
	}
	return a, ok
}

// UntrackAttachment removes every post_responses entry pointing at a. Called
// when a POST event-stream writer closes before its response arrived.
func (s *Session) UntrackAttachment(a Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, tracked := range s.postResponses {
		if tracked == a {
			delete(s.postResponses, id)
		}
	}
}

// HasLiveBrowserSocket reports whether a browser socket is currently attached.
func (s *Session) HasLiveBrowserSocket() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browserSocket != nil
}

// HasLiveClientStream reports whether a client stream is currently attached.
func (s *Session) HasLiveClientStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientStream != nil
}
