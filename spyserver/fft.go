package spyserver

import "sync"

// fftAccumulator integrates successive FFT frames from the server into a
// per-bin running sum, handing the accumulated sums and the number of
// periods they cover back to a consumer on drain and then starting a fresh
// integration window. It is the
// push side of the client: the receiver goroutine pushes frames in as they
// arrive, while GetFFTData callers pull whenever they're ready.
type fftAccumulator struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	sums  []uint32
	count uint32

	terminated bool
}

func newFFTAccumulator(bins uint32) *fftAccumulator {
	f := &fftAccumulator{sums: make([]uint32, bins)}
	f.notEmpty = sync.NewCond(&f.mu)
	return f
}

// accumulate adds one server FFT frame (one byte per bin) into the running
// sums. A frame narrower than the configured bin count is added into the
// low bins and the rest left untouched; a wider one is truncated. Neither
// case should occur once SettingFFTDisplayPixels has taken effect, but the
// server's frame size is not trusted blindly.
func (f *fftAccumulator) accumulate(frame []byte) {
	f.mu.Lock()
	n := len(frame)
	if n > len(f.sums) {
		n = len(f.sums)
	}
	for i := 0; i < n; i++ {
		f.sums[i] += uint32(frame[i])
	}
	f.count++
	f.mu.Unlock()

	f.notEmpty.Signal()
}

// drain blocks until at least one FFT period has been integrated, or the
// accumulator is terminated, then returns the accumulated sums and the
// number of periods they cover, and resets the window to zero. A
// termination with nothing accumulated yet returns done=true and a nil
// slice rather than blocking forever.
func (f *fftAccumulator) drain() (sums []uint32, periods uint32, done bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.count == 0 && !f.terminated {
		f.notEmpty.Wait()
	}

	if f.count == 0 {
		return nil, 0, true
	}

	sums = make([]uint32, len(f.sums))
	copy(sums, f.sums)
	periods = f.count

	for i := range f.sums {
		f.sums[i] = 0
	}
	f.count = 0

	return sums, periods, false
}

// resize changes the bin count, discarding any partially-integrated window.
// Nothing in the session calls it; the bin count stays at Options.FFTBins.
func (f *fftAccumulator) resize(bins uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sums = make([]uint32, bins)
	f.count = 0
}

func (f *fftAccumulator) terminate() {
	f.mu.Lock()
	f.terminated = true
	f.mu.Unlock()
	f.notEmpty.Broadcast()
}

func (f *fftAccumulator) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sums {
		f.sums[i] = 0
	}
	f.count = 0
	f.terminated = false
}
