package session

import (
	"bytes"
	"sync"
	"testing"
)

type fakeAttachment struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (f *fakeAttachment) Send(raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, raw)
	return nil
}

func (f *fakeAttachment) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeAttachment) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestAttachClientStreamDisplacesPrevious(t *testing.T) {
	sess := newSession("s1")
	first := &fakeAttachment{}
	second := &fakeAttachment{}

	sess.AttachClientStream(first)
	sess.AttachClientStream(second)

	if !first.isClosed() {
		t.Error("expected the displaced client stream to be closed")
	}
	if second.isClosed() {
		t.Error("the new client stream should not be closed")
	}
}

func TestAttachClientStreamDrainsQueueFIFO(t *testing.T) {
	sess := newSession("s1")
	sess.SendToClient([]byte("1")) // queued, no attachment yet
	sess.SendToClient([]byte("2"))
	sess.SendToClient([]byte("3"))

	a := &fakeAttachment{}
	queued := sess.AttachClientStream(a)

	want := [][]byte{[]byte("1"), []byte("2"), []byte("3")}
	if len(queued) != len(want) {
		t.Fatalf("expected %d queued frames, got %d", len(want), len(queued))
	}
	for i := range want {
		if !bytes.Equal(queued[i], want[i]) {
			t.Errorf("frame %d: expected %q, got %q", i, want[i], queued[i])
		}
	}
}

func TestDetachClientStreamOnlyClearsIfStillCurrent(t *testing.T) {
	sess := newSession("s1")
	first := &fakeAttachment{}
	second := &fakeAttachment{}

	sess.AttachClientStream(first)
	sess.AttachClientStream(second) // displaces first

	// A delayed close event for the now-displaced first attachment must not
	// clobber the second attachment's registration.
	sess.DetachClientStream(first)

	live, _, _ := sess.SendToClient([]byte("hello"))
	if !live {
		t.Error("expected the second attachment to still be live after a stale detach of the first")
	}
}

func TestSendToClientLiveVsQueued(t *testing.T) {
	sess := newSession("s1")
	live, _, err := sess.SendToClient([]byte("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if live {
		t.Error("expected frame to be queued when no client stream is attached")
	}

	a := &fakeAttachment{}
	sess.AttachClientStream(a)
	live, _, err = sess.SendToClient([]byte("y"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !live {
		t.Error("expected frame to be delivered live once a client stream is attached")
	}
}

func TestResponseAffinity(t *testing.T) {
	sess := newSession("s1")
	postWriter := &fakeAttachment{}
	sess.TrackResponse("1", postWriter)

	writer, ok := sess.ResolveResponse("1")
	if !ok {
		t.Fatal("expected id 1 to be tracked")
	}
	if writer != postWriter {
		t.Error("expected the tracked writer to be returned")
	}

	// Resolving again must miss — the id was already claimed.
	if _, ok := sess.ResolveResponse("1"); ok {
		t.Error("expected id 1 to be removed after first resolution")
	}
}

func TestResponseFallbackWhenUntracked(t *testing.T) {
	sess := newSession("s1")
	if _, ok := sess.ResolveResponse("unknown"); ok {
		t.Error("expected lookup for an untracked id to miss")
	}
}

func TestUntrackAttachmentRemovesAllItsIDs(t *testing.T) {
	sess := newSession("s1")
	writer := &fakeAttachment{}
	sess.TrackResponse("1", writer)
	sess.TrackResponse("2", writer)
	other := &fakeAttachment{}
	sess.TrackResponse("3", other)

	sess.UntrackAttachment(writer)

	if _, ok := sess.ResolveResponse("1"); ok {
		t.Error("expected id 1 to be untracked")
	}
	if _, ok := sess.ResolveResponse("2"); ok {
		t.Error("expected id 2 to be untracked")
	}
	if _, ok := sess.ResolveResponse("3"); !ok {
		t.Error("expected id 3 (different writer) to remain tracked")
	}
}

func TestBrowserSocketReplacementUsesCloseReplaceable(t *testing.T) {
	sess := newSession("s1")
	first := &replaceableFake{}
	second := &fakeAttachment{}

	sess.AttachBrowserSocket(first)
	sess.AttachBrowserSocket(second)

	if !first.replacedCalled {
		t.Error("expected CloseReplaced to be invoked on a Replaceable attachment")
	}
}

type replaceableFake struct {
	fakeAttachment
	replacedCalled bool
}

func (r *replaceableFake) CloseReplaced() error {
	r.replacedCalled = true
	return r.Close()
}
