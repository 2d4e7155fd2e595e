// Package buf implements the growable, length-prefixed byte string used
// throughout vire: client input/output buffers, command argv storage and
// persistence staging buffers all build on top of Buffer.
package buf

// Buffer is a growable byte string modeled on sds (simple dynamic strings):
// callers append to it without tracking capacity themselves, and Buffer
// only reallocates when the backing array is exhausted.
type Buffer struct {
	data []byte
}

// New returns an empty Buffer pre-sized to hold at least capHint bytes
// without reallocating.
func New(capHint int) *Buffer {
	if capHint < 0 {
		capHint = 0
	}
	return &Buffer{data: make([]byte, 0, capHint)}
}

// FromBytes wraps an existing slice without copying. The caller must not
// mutate b after the Buffer takes ownership.
func FromBytes(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Bytes returns the buffer's current contents. The slice is valid until the
// next mutating call.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the number of bytes currently stored.
func (b *Buffer) Len() int { return len(b.data) }

// Cap returns the backing array's capacity.
func (b *Buffer) Cap() int { return cap(b.data) }

// Append appends p to the buffer, growing the backing array if needed.
func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// AppendString appends s to the buffer without an intermediate []byte copy
// beyond what append itself performs.
func (b *Buffer) AppendString(s string) {
	b.data = append(b.data, s...)
}

// AppendByte appends a single byte.
func (b *Buffer) AppendByte(c byte) {
	b.data = append(b.data, c)
}

// Grow ensures the backing array can hold n more bytes without reallocating,
// mirroring sds's proactive growth before a known-size write.
func (b *Buffer) Grow(n int) {
	if cap(b.data)-len(b.data) >= n {
		return
	}
	grown := make([]byte, len(b.data), len(b.data)+n)
	copy(grown, b.data)
	b.data = grown
}

// Truncate shrinks the buffer to n bytes. Truncate panics if n > Len(),
// matching the invariant that callers only truncate to a previously
// observed length (used when a protocol error rolls back a partial parse).
func (b *Buffer) Truncate(n int) {
	if n > len(b.data) {
		panic("buf: truncate beyond length")
	}
	b.data = b.data[:n]
}

// Consume removes the first n bytes, shifting the remainder to the front.
// Used by the RESP parser to drop a fully-consumed request from the input
// buffer while preserving any trailing partial request.
func (b *Buffer) Consume(n int) {
	if n <= 0 {
		return
	}
	if n >= len(b.data) {
		b.data = b.data[:0]
		return
	}
	copy(b.data, b.data[n:])
	b.data = b.data[:len(b.data)-n]
}

// Rebase copies the buffer's contents so they start at offset 0 of a fresh
// backing array sized to hold at least extra additional bytes. The RESP
// parser calls this when a large bulk argument is about to be read, so the
// bulk's payload can be taken over without copying once it's fully read
// (spec §4.1: "the parser rebases the input buffer to make the bulk start
// at offset 0, then reserves capacity for len+2").
func (b *Buffer) Rebase(extra int) {
	n := len(b.data)
	rebased := make([]byte, n, n+extra)
	copy(rebased, b.data)
	b.data = rebased
}

// Reset empties the buffer without releasing its backing array.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}

// Clone returns a deep copy, used when an Object must be duplicated for
// copy-on-share semantics.
func (b *Buffer) Clone() *Buffer {
	cp := make([]byte, len(b.data))
	copy(cp, b.data)
	return &Buffer{data: cp}
}
