package gateway

import (
	"bytes"
	"testing"
)

func TestReplayBufferRecentOrder(t *testing.T) {
	rb := NewReplayBuffer(100)
	rb.Push(1, []byte("a"))
	rb.Push(2, []byte("b"))
	rb.Push(3, []byte("c"))

	got := rb.Recent(0)
	if len(got) != 3 {
		t.Fatalf("Recent(0) returned %d entries, want 3", len(got))
	}
	want := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("entry[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReplayBufferRecentMax(t *testing.T) {
	rb := NewReplayBuffer(10)
	for i := 1; i <= 5; i++ {
		rb.Push(int64(i), []byte{byte('0' + i)})
	}

	got := rb.Recent(2)
	if len(got) != 2 {
		t.Fatalf("Recent(2) returned %d entries, want 2", len(got))
	}
	if string(got[0]) != "4" || string(got[1]) != "5" {
		t.Errorf("Recent(2) = %q, %q, want the two newest", got[0], got[1])
	}
}

func TestReplayBufferWraparound(t *testing.T) {
	rb := NewReplayBuffer(5)

	// Push 8 entries; the first 3 get overwritten.
	for i := 1; i <= 8; i++ {
		rb.Push(int64(i), []byte{byte('0' + i)})
	}

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}
	got := rb.Recent(0)
	if string(got[0]) != "4" {
		t.Errorf("oldest entry = %q, want 4", got[0])
	}
	if string(got[4]) != "8" {
		t.Errorf("newest entry = %q, want 8", got[4])
	}
}

func TestReplayBufferDetachesFromCaller(t *testing.T) {
	rb := NewReplayBuffer(5)
	payload := []byte("original")
	rb.Push(1, payload)

	payload[0] = 'X'
	if string(rb.Recent(0)[0]) != "original" {
		t.Error("buffer must copy pushed data, not alias it")
	}
}

func TestReplayBufferEmpty(t *testing.T) {
	rb := NewReplayBuffer(10)
	if got := rb.Recent(0); len(got) != 0 {
		t.Fatalf("empty buffer Recent returned %d entries", len(got))
	}
}
