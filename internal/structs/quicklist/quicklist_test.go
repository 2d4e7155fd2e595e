package quicklist

import (
	"bytes"
	"testing"
)

func TestPushPopOrder(t *testing.T) {
	l := New()
	l.PushBack([]byte("a"))
	l.PushBack([]byte("b"))
	l.PushFront([]byte("z"))

	if l.Len() != 3 {
		t.Fatalf("expected len 3, got %d", l.Len())
	}
	got := l.Range(0, -1)
	want := [][]byte{[]byte("z"), []byte("a"), []byte("b")}
	if len(got) != len(want) {
		t.Fatalf("range mismatch: %v", got)
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("index %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestMultiNodeSpanning(t *testing.T) {
	l := &List{nodeCap: 4}
	for i := 0; i < 20; i++ {
		l.PushBack([]byte{byte(i)})
	}
	for i := 0; i < 20; i++ {
		v, ok := l.Index(i)
		if !ok || v[0] != byte(i) {
			t.Fatalf("index %d: v=%v ok=%v", i, v, ok)
		}
	}
	nodes := 0
	l.ForEachNode(func(*Node) { nodes++ })
	if nodes < 5 {
		t.Fatalf("expected at least 5 nodes for 20 elements capped at 4, got %d", nodes)
	}
}

func TestPopFrontBackEmptiesList(t *testing.T) {
	l := New()
	l.PushBack([]byte("only"))
	v, ok := l.PopFront()
	if !ok || string(v) != "only" {
		t.Fatalf("unexpected pop: %v %v", v, ok)
	}
	if l.Len() != 0 {
		t.Fatalf("expected empty list")
	}
	if _, ok := l.PopBack(); ok {
		t.Fatal("expected empty list pop to fail")
	}
}
