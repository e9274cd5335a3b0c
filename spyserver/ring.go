package spyserver

import "sync"

// ringBuffer is a fixed-capacity byte FIFO with a single producer (the
// receiver goroutine, via write) and a single consumer (any one caller of
// read at a time). Unlike a bare head/tail pair, it tracks readable byte
// count explicitly so the empty and full states are never ambiguous.
type ringBuffer struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	buf      []byte
	capacity uint32
	head     uint32
	tail     uint32
	readable uint32

	terminated bool

	onOverflow func(droppedBytes uint32)
}

func newRingBuffer(capacity uint32, onOverflow func(droppedBytes uint32)) *ringBuffer {
	r := &ringBuffer{
		buf:        make([]byte, capacity),
		capacity:   capacity,
		onOverflow: onOverflow,
	}
	r.notEmpty = sync.NewCond(&r.mu)
	return r
}

// write appends data to the buffer. If data does not fit in the currently
// free space, the oldest unread bytes are overwritten: tail is snapped
// forward past the overwritten region (rather than left behind to produce a
// silent phase discontinuity on the next read) and onOverflow is invoked
// with the number of bytes dropped.
//
// write assumes len(data) <= capacity; callers bound body sizes by
// MaxMessageBodySize, which is always <= the configured ring capacity.
func (r *ringBuffer) write(data []byte) {
	n := uint32(len(data))
	if n == 0 {
		return
	}

	r.mu.Lock()
	free := r.capacity - r.readable
	var overflow uint32
	if n > free {
		overflow = n - free
		r.tail = (r.tail + overflow) % r.capacity
		r.readable = r.capacity
	} else {
		r.readable += n
	}
	r.copyIn(data)
	r.mu.Unlock()

	if overflow > 0 && r.onOverflow != nil {
		r.onOverflow(overflow)
	}
	r.notEmpty.Signal()
}

func (r *ringBuffer) copyIn(data []byte) {
	n := uint32(len(data))
	if r.head+n <= r.capacity {
		copy(r.buf[r.head:r.head+n], data)
	} else {
		firstLen := r.capacity - r.head
		copy(r.buf[r.head:], data[:firstLen])
		copy(r.buf[:n-firstLen], data[firstLen:])
	}
	r.head = (r.head + n) % r.capacity
}

func (r *ringBuffer) copyOut(out []byte, n uint32) {
	if r.tail+n <= r.capacity {
		copy(out, r.buf[r.tail:r.tail+n])
	} else {
		firstLen := r.capacity - r.tail
		copy(out[:firstLen], r.buf[r.tail:])
		copy(out[firstLen:n], r.buf[:n-firstLen])
	}
}

// read blocks until at least batchSamples complete I/Q sample pairs (each
// sampleWidth bytes per component) are available, or the buffer is
// terminated, then copies them into out (which must be at least
// batchSamples*2*sampleWidth bytes) and advances tail.
//
// On termination with insufficient data, read returns immediately with
// however many whole samples are available (possibly zero) and done=true,
// rather than blocking forever.
func (r *ringBuffer) read(batchSamples uint32, sampleWidth uint32, out []byte) (delivered uint32, done bool) {
	bytesPerSample := 2 * sampleWidth
	need := batchSamples * bytesPerSample

	r.mu.Lock()
	defer r.mu.Unlock()

	for r.readable < need && !r.terminated {
		r.notEmpty.Wait()
	}

	if r.readable < need {
		// Terminated with a partial batch: hand back whatever whole
		// samples are on hand instead of blocking forever.
		avail := r.readable / bytesPerSample
		need = avail * bytesPerSample
		delivered = avail
		done = true
	} else {
		delivered = batchSamples
	}

	if need > 0 {
		r.copyOut(out, need)
		r.tail = (r.tail + need) % r.capacity
		r.readable -= need
	}

	return delivered, done
}

// terminate wakes any consumer blocked in read so it can observe
// termination instead of hanging once the receiver task exits.
func (r *ringBuffer) terminate() {
	r.mu.Lock()
	r.terminated = true
	r.mu.Unlock()
	r.notEmpty.Broadcast()
}

// reset reopens the buffer for a new connection, discarding any buffered
// samples from the previous session.
func (r *ringBuffer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head, r.tail, r.readable = 0, 0, 0
	r.terminated = false
}
