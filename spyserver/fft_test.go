package spyserver

import (
	"testing"
	"time"
)

func TestFFTAccumulator_AccumulateThenDrain(t *testing.T) {
	f := newFFTAccumulator(8)

	f.accumulate([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	f.accumulate([]byte{1, 1, 1, 1, 1, 1, 1, 1})
	f.accumulate([]byte{0, 0, 0, 0, 0, 0, 0, 0})

	sums, periods, done := f.drain()
	if done {
		t.Fatal("drain reported done on a live accumulator")
	}
	if periods != 3 {
		t.Fatalf("periods = %d, want 3", periods)
	}
	want := []uint32{2, 3, 4, 5, 6, 7, 8, 9}
	for i := range want {
		if sums[i] != want[i] {
			t.Fatalf("sums[%d] = %d, want %d (got %v)", i, sums[i], want[i], sums)
		}
	}
}

func TestFFTAccumulator_DrainIdempotence(t *testing.T) {
	f := newFFTAccumulator(4)
	f.accumulate([]byte{5, 5, 5, 5})

	if _, periods, done := f.drain(); done || periods != 1 {
		t.Fatalf("first drain = (periods=%d, done=%v), want (1, false)", periods, done)
	}

	type result struct {
		periods uint32
		done    bool
	}
	resCh := make(chan result, 1)
	go func() {
		_, periods, done := f.drain()
		resCh <- result{periods, done}
	}()

	select {
	case got := <-resCh:
		t.Fatalf("second drain returned early with no new frame: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}

	f.terminate()

	select {
	case got := <-resCh:
		if !got.done {
			t.Fatalf("expected done=true after terminate, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("second drain did not wake up after terminate")
	}
}

func TestFFTAccumulator_TruncatesWiderFrames(t *testing.T) {
	f := newFFTAccumulator(4)
	f.accumulate([]byte{1, 2, 3, 4, 5, 6}) // wider than bin count

	sums, periods, _ := f.drain()
	if periods != 1 {
		t.Fatalf("periods = %d, want 1", periods)
	}
	want := []uint32{1, 2, 3, 4}
	for i := range want {
		if sums[i] != want[i] {
			t.Fatalf("sums[%d] = %d, want %d", i, sums[i], want[i])
		}
	}
}
