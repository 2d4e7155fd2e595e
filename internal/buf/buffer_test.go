package buf

import "testing"

func TestAppendAndConsume(t *testing.T) {
	b := New(4)
	b.AppendString("hello")
	b.AppendByte(' ')
	b.AppendString("world")
	if got := string(b.Bytes()); got != "hello world" {
		t.Fatalf("unexpected contents: %q", got)
	}

	b.Consume(6)
	if got := string(b.Bytes()); got != "world" {
		t.Fatalf("after consume: %q", got)
	}
}

func TestConsumeAll(t *testing.T) {
	b := New(0)
	b.AppendString("abc")
	b.Consume(100)
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, got len %d", b.Len())
	}
}

func TestTruncatePanicsBeyondLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic truncating beyond length")
		}
	}()
	b := New(0)
	b.AppendString("ab")
	b.Truncate(5)
}

func TestRebasePreservesContents(t *testing.T) {
	b := New(2)
	b.AppendString("partial")
	b.Rebase(1024)
	if string(b.Bytes()) != "partial" {
		t.Fatalf("rebase changed contents: %q", b.Bytes())
	}
	if b.Cap() < 1024+len("partial") {
		t.Fatalf("rebase did not reserve capacity: cap=%d", b.Cap())
	}
}

func TestPoolSizeClasses(t *testing.T) {
	p := NewPool()
	small := p.Get(100)
	if small.Cap() < smallClass {
		t.Fatalf("expected small class buffer")
	}
	p.Put(small)

	huge := p.Get(largeClass + 1)
	if huge.Cap() < largeClass+1 {
		t.Fatalf("expected oversized buffer to satisfy request")
	}
	p.Put(huge) // dropped, not pooled — must not panic
}
