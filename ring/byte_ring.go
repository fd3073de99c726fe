package ring

import "sync/atomic"

// ByteRing is a plain single-producer/single-consumer circular buffer of
// bytes with no length framing, used where the consumer processes
// arbitrary chunk sizes rather than discrete frames (the DVR path). The
// zero value is invalid, use [NewByteRing].
type ByteRing struct {
	data []byte
	cap  uint32

	start atomic.Uint32 // only written by the reader
	size  atomic.Uint32 // size of the byte stream currently buffered
}

// NewByteRing allocates a new [ByteRing] with the given capacity.
func NewByteRing(capacity uint32) *ByteRing {
	if capacity == 0 {
		panic("ring: ByteRing capacity must be > 0")
	}
	return &ByteRing{
		data: make([]byte, capacity),
		cap:  capacity,
	}
}

// Capacity returns the ring's total byte capacity.
func (r *ByteRing) Capacity() uint32 { return r.cap }

// Size returns the number of bytes currently buffered.
func (r *ByteRing) Size() uint32 { return r.size.Load() }

// FreeSpace returns the number of bytes that can still be written.
func (r *ByteRing) FreeSpace() uint32 { return r.cap - r.size.Load() }

// Write copies len(data) bytes into the ring. It fails (returns false,
// writing nothing) if there isn't enough free space.
func (r *ByteRing) Write(data []byte) bool {
	size := r.size.Load()
	free := r.cap - size
	n := uint32(len(data))
	if n > free {
		return false
	}

	start := r.start.Load()
	idx := (start + size) % r.cap
	if idx+n <= r.cap {
		copy(r.data[idx:idx+n], data)
	} else {
		first := r.cap - idx
		copy(r.data[idx:], data[:first])
		copy(r.data[0:], data[first:])
	}
	r.size.Store(size + n)
	return true
}

// Read copies len(dst) bytes out of the ring into dst. It fails (returns
// false, leaving the ring untouched) if fewer bytes are buffered.
func (r *ByteRing) Read(dst []byte) bool {
	n := uint32(len(dst))
	size := r.size.Load()
	if size < n {
		return false
	}

	start := r.start.Load()
	if start+n <= r.cap {
		copy(dst, r.data[start:start+n])
	} else {
		first := r.cap - start
		copy(dst[:first], r.data[start:])
		copy(dst[first:], r.data[0:n-first])
	}
	r.start.Store((start + n) % r.cap)
	r.size.Store(size - n)
	return true
}

// PeekContiguous returns a read-only view of up to maxLen contiguous
// buffered bytes starting at the current read cursor, without consuming
// them. The returned slice may be shorter than maxLen if the buffered
// region wraps or if fewer bytes are available. Call [ByteRing.Advance]
// with the number of bytes actually consumed.
func (r *ByteRing) PeekContiguous(maxLen uint32) []byte {
	size := r.size.Load()
	if size == 0 {
		return nil
	}
	if maxLen > size {
		maxLen = size
	}
	start := r.start.Load()
	if start+maxLen > r.cap {
		maxLen = r.cap - start
	}
	return r.data[start : start+maxLen]
}

// Advance consumes n bytes previously returned by [ByteRing.PeekContiguous].
func (r *ByteRing) Advance(n uint32) {
	if n == 0 {
		return
	}
	start := r.start.Load()
	size := r.size.Load()
	if n > size {
		n = size
	}
	r.start.Store((start + n) % r.cap)
	r.size.Store(size - n)
}

// Clear empties the ring.
func (r *ByteRing) Clear() {
	r.start.Store(0)
	r.size.Store(0)
}
