// Package ringbuffer implements a lock-free single-producer/single-consumer
// byte FIFO used to decouple the capture and render audio threads.
package ringbuffer

import "sync/atomic"

// cacheLinePad is sized so head and tail land on separate cache lines,
// avoiding false sharing between the producer and consumer cores.
type cacheLinePad [64 - 8]byte

// RingBuffer is a fixed-capacity byte FIFO. Exactly one goroutine may call
// Write (the producer) and exactly one may call Read (the consumer);
// AvailableRead/AvailableWrite may be called from either side or from a
// third status-reporting goroutine. Reset may only be called while
// neither side is active.
//
// One byte of capacity is sacrificed to disambiguate empty from full:
// AvailableRead() + AvailableWrite() == Capacity() at all times.
//
// Go's atomic package already gives loads/stores the acquire/release
// semantics this algorithm needs (and then some, since Go atomics are
// sequentially consistent); there is no relaxed-load variant to reach for.
type RingBuffer struct {
	buf      []byte
	capacity int // usable capacity + 1 disambiguation slot

	head atomic.Uint64 // producer write position, mod capacity
	_    cacheLinePad
	tail atomic.Uint64 // consumer read position, mod capacity
	_    cacheLinePad
}

// New creates a ring buffer holding capacityBytes usable bytes (backed by
// capacityBytes+1 bytes of storage).
func New(capacityBytes int) *RingBuffer {
	if capacityBytes < 1 {
		capacityBytes = 1
	}
	return &RingBuffer{
		buf:      make([]byte, capacityBytes+1),
		capacity: capacityBytes + 1,
	}
}

// Capacity returns the number of usable bytes.
func (rb *RingBuffer) Capacity() int {
	return rb.capacity - 1
}

// AvailableRead returns a snapshot of the number of bytes available to read.
func (rb *RingBuffer) AvailableRead() int {
	head := rb.head.Load()
	tail := rb.tail.Load()
	return int((head - tail + uint64(rb.capacity)) % uint64(rb.capacity))
}

// AvailableWrite returns a snapshot of the number of bytes available to write.
func (rb *RingBuffer) AvailableWrite() int {
	return rb.Capacity() - rb.AvailableRead()
}

// Write copies up to len(src) bytes into the buffer, wrapping once if the
// span crosses the capacity boundary. It never blocks and returns the
// number of bytes actually written, which may be less than len(src) (or
// zero) when the consumer is behind. A short write is the normal
// back-pressure signal, not an error.
func (rb *RingBuffer) Write(src []byte) int {
	head := rb.head.Load()
	toWrite := len(src)
	if avail := rb.AvailableWrite(); toWrite > avail {
		toWrite = avail
	}
	if toWrite == 0 {
		return 0
	}

	h := int(head % uint64(rb.capacity))
	firstPart := rb.capacity - h
	if firstPart > toWrite {
		firstPart = toWrite
	}
	copy(rb.buf[h:h+firstPart], src[:firstPart])
	if toWrite > firstPart {
		copy(rb.buf[0:toWrite-firstPart], src[firstPart:toWrite])
	}

	rb.head.Store((head + uint64(toWrite)) % uint64(rb.capacity))
	return toWrite
}

// Read copies up to len(dst) bytes out of the buffer. It never blocks and
// returns the number of bytes actually read, which may be less than
// len(dst) (or zero) when the producer hasn't caught up. A short read is
// the normal starvation signal, not an error.
func (rb *RingBuffer) Read(dst []byte) int {
	tail := rb.tail.Load()
	toRead := len(dst)
	if avail := rb.AvailableRead(); toRead > avail {
		toRead = avail
	}
	if toRead == 0 {
		return 0
	}

	t := int(tail % uint64(rb.capacity))
	firstPart := rb.capacity - t
	if firstPart > toRead {
		firstPart = toRead
	}
	copy(dst[:firstPart], rb.buf[t:t+firstPart])
	if toRead > firstPart {
		copy(dst[firstPart:toRead], rb.buf[0:toRead-firstPart])
	}

	rb.tail.Store((tail + uint64(toRead)) % uint64(rb.capacity))
	return toRead
}

// Reset sets both indices back to zero. Callers must ensure neither a
// producer nor a consumer is active when calling Reset.
func (rb *RingBuffer) Reset() {
	rb.head.Store(0)
	rb.tail.Store(0)
}
