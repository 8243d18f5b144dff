package session

import (
	"bytes"
	"testing"
)

func TestQueueFIFODrain(t *testing.T) {
	q := NewQueue(4)
	q.Push([]byte("a"))
	q.Push([]byte("b"))
	q.Push([]byte("c"))

	got := q.Drain()
	want := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	if len(got) != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), len(got))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("frame %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if q.Len() != 0 {
		t.Error("queue should be empty after drain")
	}
}

func TestQueueDropsOldestOnOverflow(t *testing.T) {
	q := NewQueue(2)
	q.Push([]byte("1"))
	q.Push([]byte("2"))
	dropped := q.Push([]byte("3"))
	if !dropped {
		t.Error("expected push past capacity to report a drop")
	}

	got := q.Drain()
	if len(got) != 2 {
		t.Fatalf("expected 2 frames retained, got %d", len(got))
	}
	if !bytes.Equal(got[0], []byte("2")) || !bytes.Equal(got[1], []byte("3")) {
		t.Errorf("expected oldest frame dropped, leaving [2,3], got %v", got)
	}
	if q.Dropped() != 1 {
		t.Errorf("expected cumulative drop count 1, got %d", q.Dropped())
	}
}

func TestQueueNeverDropsTheFrameBeingPushed(t *testing.T) {
	q := NewQueue(1)
	q.Push([]byte("old"))
	q.Push([]byte("new"))
	got := q.Drain()
	if len(got) != 1 || !bytes.Equal(got[0], []byte("new")) {
		t.Errorf("expected the newly pushed frame to survive, got %v", got)
	}
}
