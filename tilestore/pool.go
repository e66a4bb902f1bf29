package tilestore

import "sync"

// bufferPool reuses tile-sized byte buffers via sync.Pool.
//
// Thread safety: bufferPool is safe for concurrent use.
type bufferPool struct {
	size int
	pool sync.Pool
}

// newBufferPool creates a pool of size-byte buffers.
func newBufferPool(size int) *bufferPool {
	p := &bufferPool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Get returns a buffer of exactly p.size bytes. Contents are unspecified.
func (p *bufferPool) Get() []byte {
	return *(p.pool.Get().(*[]byte))
}

// Put returns a buffer to the pool. Buffers of the wrong size are dropped.
func (p *bufferPool) Put(b []byte) {
	if len(b) != p.size {
		return
	}
	p.pool.Put(&b)
}

// fillPixel fills dst with repeated copies of pixel.
func fillPixel(dst, pixel []byte) {
	if len(pixel) == 0 || len(dst) == 0 {
		return
	}
	n := copy(dst, pixel)
	for n < len(dst) {
		n += copy(dst[n:], dst[:n])
	}
}
