package ringbuf

import "sync/atomic"

// Ring is a lock-free SPSC byte ring buffer. The zero value is not
// usable; construct one with New.
//
// writeIdx is only ever written by the producer and read by the
// consumer; readIdx is only ever written by the consumer and read by
// the producer. Both are monotonically increasing counters (never
// wrapped), so the amount of data currently buffered is always
// writeIdx-readIdx, and the byte position in data is (idx & mask).
type Ring struct {
	data []byte
	mask uint64

	writeIdx atomic.Uint64
	readIdx  atomic.Uint64
}

// New creates a Ring with capacity rounded up to the next power of two
// that is >= capacity. A capacity of zero is treated as 1.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	sz := nextPowerOfTwo(uint64(capacity))
	return &Ring{
		data: make([]byte, sz),
		mask: sz - 1,
	}
}

func nextPowerOfTwo(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	return v + 1
}

// Capacity returns the total number of bytes the ring can hold.
func (r *Ring) Capacity() int {
	return len(r.data)
}

// ReadSpace returns the number of bytes currently available to read.
// Safe to call from the consumer goroutine; may also be called from
// the producer goroutine as a conservative (possibly stale) estimate.
func (r *Ring) ReadSpace() int {
	w := r.writeIdx.Load()
	rd := r.readIdx.Load()
	return int(w - rd)
}

// WriteSpace returns the number of bytes currently available to write.
// Safe to call from the producer goroutine.
func (r *Ring) WriteSpace() int {
	return len(r.data) - r.ReadSpace()
}

// Write copies up to len(src) bytes into the ring and advances the
// write cursor by the number of bytes actually copied. It never writes
// more than WriteSpace() bytes: a write that would overflow is
// truncated to whatever space remains. Overflow drops the offending
// data and is surfaced by the caller comparing its return value to
// len(src); it never panics here.
func (r *Ring) Write(src []byte) int {
	n := len(src)
	if avail := r.WriteSpace(); n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}

	w := r.writeIdx.Load()
	start := int(w & r.mask)
	first := len(r.data) - start
	if first > n {
		first = n
	}
	copy(r.data[start:], src[:first])
	if rest := n - first; rest > 0 {
		copy(r.data, src[first:n])
	}

	r.writeIdx.Store(w + uint64(n))
	return n
}

// Read copies up to len(dst) bytes out of the ring into dst and
// advances the read cursor by the number of bytes actually copied. A
// nil dst reads nothing, discards nothing and returns 0; Advance is the
// way to discard a given number of bytes without copying them.
func (r *Ring) Read(dst []byte) int {
	n := r.Peek(dst)
	r.Advance(n)
	return n
}

// Peek copies up to len(dst) bytes from the ring into dst without
// advancing the read cursor, and returns the number of bytes copied. If
// dst is nil, Peek copies nothing and returns 0.
func (r *Ring) Peek(dst []byte) int {
	avail := r.ReadSpace()
	n := len(dst)
	if n > avail {
		n = avail
	}
	if n == 0 || dst == nil {
		return n
	}

	rd := r.readIdx.Load()
	start := int(rd & r.mask)
	first := len(r.data) - start
	if first > n {
		first = n
	}
	copy(dst[:first], r.data[start:])
	if rest := n - first; rest > 0 {
		copy(dst[first:n], r.data)
	}
	return n
}

// Advance moves the read cursor forward by n bytes, discarding them
// without copying. n is clamped to ReadSpace().
func (r *Ring) Advance(n int) int {
	avail := r.ReadSpace()
	if n > avail {
		n = avail
	}
	if n <= 0 {
		return 0
	}
	r.readIdx.Store(r.readIdx.Load() + uint64(n))
	return n
}

// Reset discards all buffered data, returning the ring to an empty
// state. Only safe to call when neither the producer nor the consumer
// is concurrently active (e.g. during the engine's buffer-clear
// transition).
func (r *Ring) Reset() {
	r.writeIdx.Store(0)
	r.readIdx.Store(0)
}
