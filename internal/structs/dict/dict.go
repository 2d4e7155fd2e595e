// Package dict implements an incrementally-rehashing hash table, the
// backing structure for every shard's key→Object map, its key→expiry map,
// and the hashtable encoding of Set/Hash Objects (spec §3 Shard, §4.4
// Rehashing).
//
// Unlike a plain Go map, Dict exposes the rehashing step explicitly so a
// shard's cron tick can bound how much migration work happens per
// invocation (spec: "the worker cron spends up to 1 ms per shard per tick
// migrating buckets"), and so a long-lived iterator can run in "safe" mode
// that forbids resizing for its lifetime (spec §9 design note on
// incremental rehashing mid-iteration).
package dict

// entry is a single chained hash bucket slot.
type entry[K comparable, V any] struct {
	key  K
	val  V
	next *entry[K, V]
}

type table[K comparable, V any] struct {
	buckets []*entry[K, V]
	used    int
}

// HashFunc computes a key's hash. Callers supply one at construction so
// Dict can be reused for string keys (xxhash-class speed not required;
// correctness and stable distribution are).
type HashFunc[K comparable] func(K) uint64

// Dict is a hash table with incremental rehashing.
type Dict[K comparable, V any] struct {
	ht        [2]table[K, V]
	rehashIdx int // -1 when not rehashing, else next bucket of ht[0] to migrate
	hash      HashFunc[K]
	safeIters int // active safe iterators; >0 forbids resize
}

const initialSize = 4

// New creates an empty Dict using hash to place keys.
func New[K comparable, V any](hash HashFunc[K]) *Dict[K, V] {
	d := &Dict[K, V]{hash: hash, rehashIdx: -1}
	d.ht[0].buckets = make([]*entry[K, V], initialSize)
	return d
}

func (d *Dict[K, V]) isRehashing() bool { return d.rehashIdx != -1 }

// Len returns the total number of stored keys.
func (d *Dict[K, V]) Len() int { return d.ht[0].used + d.ht[1].used }

// rehashStep migrates up to n buckets from ht[0] to ht[1]. It is a no-op
// while a safe iterator is active, mirroring the API-level rule from the
// design notes: "a 'safe iterator' mode that forbids resize for its
// lifetime". Returns the number of buckets actually migrated.
func (d *Dict[K, V]) rehashStep(n int) int {
	if !d.isRehashing() || d.safeIters > 0 {
		return 0
	}
	moved := 0
	for moved < n {
		for d.rehashIdx < len(d.ht[0].buckets) && d.ht[0].buckets[d.rehashIdx] == nil {
			d.rehashIdx++
		}
		if d.rehashIdx >= len(d.ht[0].buckets) {
			// done
			d.ht[0] = d.ht[1]
			d.ht[1] = table[K, V]{}
			d.rehashIdx = -1
			return moved
		}
		bucket := d.ht[0].buckets[d.rehashIdx]
		d.ht[0].buckets[d.rehashIdx] = nil
		for bucket != nil {
			next := bucket.next
			idx := d.hash(bucket.key) % uint64(len(d.ht[1].buckets))
			bucket.next = d.ht[1].buckets[idx]
			d.ht[1].buckets[idx] = bucket
			d.ht[0].used--
			d.ht[1].used++
			bucket = next
		}
		d.rehashIdx++
		moved++
	}
	return moved
}

// RehashStep migrates up to n buckets; exported for the worker cron to call
// under a time budget (spec §4.4/§4.7). Returns true if rehashing is still
// in progress after the call.
func (d *Dict[K, V]) RehashStep(n int) bool {
	d.rehashStep(n)
	return d.isRehashing()
}

func (d *Dict[K, V]) maybeStartRehash() {
	if d.isRehashing() || d.safeIters > 0 {
		return
	}
	load := float64(d.ht[0].used) / float64(len(d.ht[0].buckets))
	switch {
	case load >= 1.0:
		d.beginRehash(len(d.ht[0].buckets) * 2)
	case load < 0.1 && len(d.ht[0].buckets) > initialSize:
		// Resize down when fill factor falls below 10% (spec §4.4).
		target := len(d.ht[0].buckets) / 2
		if target < initialSize {
			target = initialSize
		}
		d.beginRehash(target)
	}
}

func (d *Dict[K, V]) beginRehash(newSize int) {
	d.ht[1].buckets = make([]*entry[K, V], newSize)
	d.ht[1].used = 0
	d.rehashIdx = 0
}

// every access migrates one bucket while rehashing (spec §4.4).
func (d *Dict[K, V]) onAccess() {
	if d.isRehashing() {
		d.rehashStep(1)
	}
}

func (d *Dict[K, V]) lookup(key K) (*entry[K, V], int) {
	h := d.hash(key)
	idx0 := int(h % uint64(len(d.ht[0].buckets)))
	for e := d.ht[0].buckets[idx0]; e != nil; e = e.next {
		if e.key == key {
			return e, 0
		}
	}
	if d.isRehashing() {
		idx1 := int(h % uint64(len(d.ht[1].buckets)))
		for e := d.ht[1].buckets[idx1]; e != nil; e = e.next {
			if e.key == key {
				return e, 1
			}
		}
	}
	return nil, -1
}

// Get returns the value stored at key.
func (d *Dict[K, V]) Get(key K) (V, bool) {
	d.onAccess()
	e, _ := d.lookup(key)
	if e == nil {
		var zero V
		return zero, false
	}
	return e.val, true
}

// Set inserts or overwrites key, triggering a resize check.
func (d *Dict[K, V]) Set(key K, val V) {
	d.onAccess()
	if e, _ := d.lookup(key); e != nil {
		e.val = val
		return
	}
	d.maybeStartRehash()
	tblIdx := 0
	if d.isRehashing() {
		tblIdx = 1
	}
	h := d.hash(key)
	idx := int(h % uint64(len(d.ht[tblIdx].buckets)))
	d.ht[tblIdx].buckets[idx] = &entry[K, V]{key: key, val: val, next: d.ht[tblIdx].buckets[idx]}
	d.ht[tblIdx].used++
}

// Delete removes key, returning whether it was present.
func (d *Dict[K, V]) Delete(key K) bool {
	d.onAccess()
	h := d.hash(key)
	for t := 0; t < 2; t++ {
		if t == 1 && !d.isRehashing() {
			break
		}
		idx := int(h % uint64(len(d.ht[t].buckets)))
		var prev *entry[K, V]
		for e := d.ht[t].buckets[idx]; e != nil; e = e.next {
			if e.key == key {
				if prev == nil {
					d.ht[t].buckets[idx] = e.next
				} else {
					prev.next = e.next
				}
				d.ht[t].used--
				return true
			}
			prev = e
		}
	}
	return false
}

// Iterator walks every key/value pair. In "safe" mode (NewSafeIterator) no
// resize happens for the iterator's lifetime; Release must be called when
// done. In normal mode the dict may rehash mid-iteration and the iterator
// still visits every key present both before and after any such rehash by
// scanning ht[0] then ht[1].
type Iterator[K comparable, V any] struct {
	d      *Dict[K, V]
	safe   bool
	tIdx   int
	bucket int
	cur    *entry[K, V]
	done   bool
}

// NewIterator returns a normal-mode iterator.
func (d *Dict[K, V]) NewIterator() *Iterator[K, V] {
	return &Iterator[K, V]{d: d}
}

// NewSafeIterator returns a safe-mode iterator that forbids resizing until
// Release is called.
func (d *Dict[K, V]) NewSafeIterator() *Iterator[K, V] {
	d.safeIters++
	return &Iterator[K, V]{d: d, safe: true}
}

// Release must be called on safe iterators once done.
func (it *Iterator[K, V]) Release() {
	if it.safe {
		it.d.safeIters--
		it.safe = false
	}
}

// Next advances the iterator and returns the next key/value, or ok=false
// when exhausted.
func (it *Iterator[K, V]) Next() (key K, val V, ok bool) {
	for {
		if it.cur != nil {
			key, val = it.cur.key, it.cur.val
			it.cur = it.cur.next
			return key, val, true
		}
		if it.done {
			var zk K
			var zv V
			return zk, zv, false
		}
		tbl := &it.d.ht[it.tIdx]
		if it.bucket >= len(tbl.buckets) {
			if it.tIdx == 0 && it.d.isRehashing() {
				it.tIdx = 1
				it.bucket = 0
				continue
			}
			it.done = true
			continue
		}
		it.cur = tbl.buckets[it.bucket]
		it.bucket++
	}
}
