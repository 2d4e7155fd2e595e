package resp

import (
	"bytes"
	"testing"
)

func flushed(w *Writer) []byte {
	var out []byte
	for _, c := range w.Flush() {
		out = append(out, c...)
	}
	return out
}

func TestSimpleStringAndInteger(t *testing.T) {
	w := NewWriter()
	w.SimpleString("OK")
	w.Integer(42)
	got := flushed(w)
	want := []byte("+OK\r\n:42\r\n")
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBulkAndNilBulk(t *testing.T) {
	w := NewWriter()
	w.Bulk([]byte("hello"))
	w.NilBulk()
	got := flushed(w)
	want := []byte("$5\r\nhello\r\n$-1\r\n")
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestArrayHeaderThenElements(t *testing.T) {
	w := NewWriter()
	w.ArrayHeader(2)
	w.Bulk([]byte("a"))
	w.Bulk([]byte("b"))
	got := flushed(w)
	want := []byte("*2\r\n$1\r\na\r\n$1\r\nb\r\n")
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestOverflowSpillsPastInlineCap(t *testing.T) {
	w := NewWriter()
	big := bytes.Repeat([]byte("a"), inlineReplyCap+1024)
	w.Bulk(big)
	if len(w.overflow) == 0 {
		t.Fatal("expected overflow to be used for a reply exceeding inline capacity")
	}
}

func TestSharedIntegerRange(t *testing.T) {
	if SharedInteger(5) == nil {
		t.Fatal("expected shared reply for small integer")
	}
	if SharedInteger(-1) != nil {
		t.Fatal("expected nil for negative integer")
	}
	if SharedInteger(1_000_000) != nil {
		t.Fatal("expected nil outside shared range")
	}
}

func TestResetClearsQueuedBytes(t *testing.T) {
	w := NewWriter()
	w.SimpleString("OK")
	w.Reset()
	if w.Len() != 0 {
		t.Fatalf("expected writer to be empty after reset, got %d", w.Len())
	}
}
