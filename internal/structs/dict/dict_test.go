package dict

import (
	"fmt"
	"testing"
)

func strHash(s string) uint64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func TestSetGetDelete(t *testing.T) {
	d := New[string, int](strHash)
	d.Set("a", 1)
	d.Set("b", 2)

	if v, ok := d.Get("a"); !ok || v != 1 {
		t.Fatalf("a=%v ok=%v", v, ok)
	}
	if !d.Delete("a") {
		t.Fatal("expected delete to report found")
	}
	if _, ok := d.Get("a"); ok {
		t.Fatal("a should be gone")
	}
	if d.Len() != 1 {
		t.Fatalf("expected len 1, got %d", d.Len())
	}
}

func TestGrowTriggersRehashAndPreservesAllKeys(t *testing.T) {
	d := New[string, int](strHash)
	const n = 200
	for i := 0; i < n; i++ {
		d.Set(fmt.Sprintf("key-%d", i), i)
	}

	// Drive any in-progress rehash to completion.
	for i := 0; i < 10000 && d.RehashStep(4); i++ {
	}

	if d.Len() != n {
		t.Fatalf("expected %d keys, got %d", n, d.Len())
	}
	for i := 0; i < n; i++ {
		v, ok := d.Get(fmt.Sprintf("key-%d", i))
		if !ok || v != i {
			t.Fatalf("key-%d missing or wrong: v=%d ok=%v", i, v, ok)
		}
	}
}

func TestIteratorVisitsEveryKeyDuringRehash(t *testing.T) {
	d := New[string, int](strHash)
	const n = 100
	for i := 0; i < n; i++ {
		d.Set(fmt.Sprintf("k%d", i), i)
	}

	seen := make(map[string]bool)
	it := d.NewIterator()
	steps := 0
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		seen[k] = true
		steps++
		if steps%10 == 0 {
			d.RehashStep(1) // interleave rehashing with iteration
		}
	}
	if len(seen) != n {
		t.Fatalf("iterator visited %d of %d keys", len(seen), n)
	}
}

func TestSafeIteratorBlocksRehash(t *testing.T) {
	d := New[string, int](strHash)
	for i := 0; i < 50; i++ {
		d.Set(fmt.Sprintf("k%d", i), i)
	}
	// Force a rehash to start.
	d.maybeStartRehash()
	wasRehashing := d.isRehashing()

	it := d.NewSafeIterator()
	defer it.Release()

	d.rehashStep(100) // should be a no-op while safe iterator is live
	if wasRehashing && !d.isRehashing() {
		t.Fatal("safe iterator did not block rehashing")
	}
}
