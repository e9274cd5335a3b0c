package spyserver

import (
	"testing"
	"time"
)

func TestRingBuffer_FIFOOrderNoOverflow(t *testing.T) {
	r := newRingBuffer(32, nil)

	a := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	b := []byte{11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	r.write(a)
	r.write(b)

	out := make([]byte, 20)
	delivered, done := r.read(5, 1, out[:10])
	if delivered != 5 || done {
		t.Fatalf("first read = (%d, %v), want (5, false)", delivered, done)
	}
	delivered2, done2 := r.read(5, 1, out[10:])
	if delivered2 != 5 || done2 {
		t.Fatalf("second read = (%d, %v), want (5, false)", delivered2, done2)
	}

	for i := 0; i < 20; i++ {
		if out[i] != byte(i+1) {
			t.Fatalf("byte %d = %d, want %d", i, out[i], i+1)
		}
	}
}

func TestRingBuffer_WrapCorrectness(t *testing.T) {
	r := newRingBuffer(10, nil)

	a := []byte{1, 2, 3, 4, 5, 6}
	r.write(a)

	drain := make([]byte, 6)
	if delivered, done := r.read(3, 1, drain); delivered != 3 || done {
		t.Fatalf("drain read = (%d, %v), want (3, false)", delivered, done)
	}

	b := []byte{101, 102, 103, 104, 105, 106, 107, 108}
	r.write(b) // head=6, head+len(b) > capacity: must wrap without overflowing

	out := make([]byte, 8)
	delivered, done := r.read(4, 1, out)
	if delivered != 4 || done {
		t.Fatalf("wrap read = (%d, %v), want (4, false)", delivered, done)
	}
	for i := range b {
		if out[i] != b[i] {
			t.Fatalf("wrapped byte %d = %d, want %d", i, out[i], b[i])
		}
	}
}

func TestRingBuffer_OverflowSnapsTail(t *testing.T) {
	var dropped uint32
	r := newRingBuffer(10, func(n uint32) { dropped = n })

	a := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	b := []byte{9, 10, 11, 12, 13}
	r.write(a)
	r.write(b)

	if dropped != 3 {
		t.Fatalf("dropped = %d, want 3", dropped)
	}

	out := make([]byte, 10)
	delivered, done := r.read(5, 1, out)
	if delivered != 5 || done {
		t.Fatalf("read = (%d, %v), want (5, false)", delivered, done)
	}

	want := []byte{4, 5, 6, 7, 8, 9, 10, 11, 12, 13}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d (got %v)", i, out[i], want[i], out)
		}
	}
}

func TestRingBuffer_TeardownWakeup(t *testing.T) {
	r := newRingBuffer(16, nil)

	type result struct {
		delivered uint32
		done      bool
	}
	resCh := make(chan result, 1)
	go func() {
		out := make([]byte, 8)
		delivered, done := r.read(4, 1, out)
		resCh <- result{delivered, done}
	}()

	time.Sleep(20 * time.Millisecond) // let the reader block in Wait
	r.terminate()

	select {
	case got := <-resCh:
		if !got.done {
			t.Fatalf("expected done=true after terminate, got %+v", got)
		}
		if got.delivered != 0 {
			t.Fatalf("expected 0 delivered with no pending data, got %d", got.delivered)
		}
	case <-time.After(time.Second):
		t.Fatal("read did not wake up after terminate")
	}
}
