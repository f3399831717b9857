// Package collections provides pooled buffers for the streaming pipeline.
package collections

import (
	"sync"
)

// BufferPool recycles byte buffers of a fixed capacity. The pipeline pushes
// every chunk through it so that steady-state parsing allocates no new
// buffers regardless of input size.
type BufferPool struct {
	pool sync.Pool
	cap  int
}

// NewBufferPool creates a pool handing out buffers with the given capacity.
func NewBufferPool(capacity int) *BufferPool {
	if capacity <= 0 {
		capacity = 64 * 1024
	}
	p := &BufferPool{cap: capacity}
	p.pool.New = func() interface{} {
		b := make([]byte, 0, capacity)
		return &b
	}
	return p
}

// Get returns an empty buffer with the pool's capacity.
func (p *BufferPool) Get() []byte {
	b := p.pool.Get().(*[]byte)
	return (*b)[:0]
}

// Put returns a buffer to the pool. Buffers that were grown past the pool
// capacity are dropped to keep the pool's footprint bounded.
func (p *BufferPool) Put(b []byte) {
	if cap(b) != p.cap {
		return
	}
	b = b[:0]
	p.pool.Put(&b)
}

// Cap returns the capacity of pooled buffers.
func (p *BufferPool) Cap() int {
	return p.cap
}

// SlicePool is a generic pool for slices of any type.
type SlicePool[T any] struct {
	pool       sync.Pool
	initialCap int
}

// NewSlicePool creates a new slice pool with the given initial capacity.
func NewSlicePool[T any](initialCap int) *SlicePool[T] {
	if initialCap <= 0 {
		initialCap = 256
	}
	p := &SlicePool[T]{initialCap: initialCap}
	p.pool.New = func() interface{} {
		s := make([]T, 0, initialCap)
		return &s
	}
	return p
}

// Get gets an empty slice from the pool.
func (p *SlicePool[T]) Get() []T {
	s := p.pool.Get().(*[]T)
	return (*s)[:0]
}

// Put returns a slice to the pool after clearing it.
func (p *SlicePool[T]) Put(s []T) {
	s = s[:0]
	p.pool.Put(&s)
}
