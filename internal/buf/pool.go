package buf

import "sync"

// Pool recycles Buffers in three size classes, grounded on the teacher's
// BufferPool (small/medium/large sync.Pool buckets): most client I/O
// buffers fall into a small number of common sizes, and a tiered pool
// avoids both the cost of always allocating the largest bucket and the
// fragmentation of one pool holding wildly different sizes.
type Pool struct {
	small  sync.Pool // 4 KiB
	medium sync.Pool // 16 KiB
	large  sync.Pool // 64 KiB
}

const (
	smallClass  = 4 << 10
	mediumClass = 16 << 10
	largeClass  = 64 << 10
)

// NewPool creates a tiered buffer pool.
func NewPool() *Pool {
	p := &Pool{}
	p.small.New = func() any { return New(smallClass) }
	p.medium.New = func() any { return New(mediumClass) }
	p.large.New = func() any { return New(largeClass) }
	return p
}

// Get returns a Buffer with at least size bytes of spare capacity.
func (p *Pool) Get(size int) *Buffer {
	var v any
	switch {
	case size <= smallClass:
		v = p.small.Get()
	case size <= mediumClass:
		v = p.medium.Get()
	case size <= largeClass:
		v = p.large.Get()
	default:
		// Larger than our largest pooled class: allocate directly and
		// never pool it back (Put drops it), same policy as the teacher.
		return New(size)
	}
	b := v.(*Buffer)
	b.Reset()
	return b
}

// Put returns b to the appropriate pool bucket, or drops it if it's grown
// past the largest class (avoids pinning oversized allocations in the pool
// indefinitely).
func (p *Pool) Put(b *Buffer) {
	if b == nil {
		return
	}
	switch c := b.Cap(); {
	case c <= smallClass:
		b.Reset()
		p.small.Put(b)
	case c <= mediumClass:
		b.Reset()
		p.medium.Put(b)
	case c <= largeClass:
		b.Reset()
		p.large.Put(b)
	default:
		// drop: don't pool buffers larger than the largest class
	}
}
