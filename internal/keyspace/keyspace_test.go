package keyspace

import (
	"testing"

	"github.com/vipshop/vire/internal/object"
)

func makeTestString(v string) *object.Object { return object.NewRawString([]byte(v)) }

func TestShardIndexDeterministicAndInRange(t *testing.T) {
	ks := New(2, 16)
	idx1 := ks.ShardIndex(0, []byte("foo"))
	idx2 := ks.ShardIndex(0, []byte("foo"))
	if idx1 != idx2 {
		t.Fatal("routing must be deterministic for the same key")
	}
	if idx1 < 0 || idx1 >= 16 {
		t.Fatalf("expected shard in db0's range [0,16), got %d", idx1)
	}
	idx3 := ks.ShardIndex(1, []byte("foo"))
	if idx3 < 16 || idx3 >= 32 {
		t.Fatalf("expected shard in db1's range [16,32), got %d", idx3)
	}
}

func TestHashTagRoutesTogether(t *testing.T) {
	ks := New(1, 16)
	a := ks.ShardIndex(0, []byte("user:{42}:profile"))
	b := ks.ShardIndex(0, []byte("user:{42}:settings"))
	if a != b {
		t.Fatalf("keys sharing a hash tag must land on the same shard, got %d vs %d", a, b)
	}
}

func TestShardsForDBReturnsContiguousRange(t *testing.T) {
	ks := New(2, 4)
	shards := ks.ShardsForDB(1)
	if len(shards) != 4 {
		t.Fatalf("expected 4 shards, got %d", len(shards))
	}
	if shards[0].ID != 4 || shards[3].ID != 7 {
		t.Fatalf("unexpected shard ids: first=%d last=%d", shards[0].ID, shards[3].ID)
	}
}

func TestSetGetDeleteAndExpiry(t *testing.T) {
	s := NewShard(0)
	s.Set("k", makeTestString("v"))
	o, found, expired := s.LookupWrite("k")
	if !found || expired {
		t.Fatalf("expected found, not expired: found=%v expired=%v", found, expired)
	}
	if string(o.StringBytes()) != "v" {
		t.Fatalf("got %q", o.StringBytes())
	}
	s.SetExpire("k", nowMillis()-1000)
	if _, found, expired := s.LookupWrite("k"); found || !expired {
		t.Fatalf("expected expired deletion: found=%v expired=%v", found, expired)
	}
	if s.Len() != 0 {
		t.Fatalf("expected shard empty after expiry, got len %d", s.Len())
	}
}

func TestLockOrderSortsAscending(t *testing.T) {
	ks := New(1, 8)
	ordered := ks.LockOrder(5, 1, 3)
	if ordered[0].ID != 1 || ordered[1].ID != 3 || ordered[2].ID != 5 {
		t.Fatalf("unexpected order: %d %d %d", ordered[0].ID, ordered[1].ID, ordered[2].ID)
	}
}

func TestExpireIfNeededReplicaDoesNotDelete(t *testing.T) {
	s := NewShard(0)
	s.Set("k", makeTestString("v"))
	s.SetExpire("k", nowMillis()-1000)
	if !s.ExpireIfNeeded("k", true) {
		t.Fatal("expected expired=true for replica path")
	}
	if s.Len() != 1 {
		t.Fatalf("replica path must not delete locally, got len %d", s.Len())
	}
	if !s.ExpireIfNeeded("k", false) {
		t.Fatal("expected expired=true for non-replica path")
	}
	if s.Len() != 0 {
		t.Fatalf("non-replica path must delete, got len %d", s.Len())
	}
}

func TestEvictLRUPicksHighestIdle(t *testing.T) {
	s := NewShard(0)
	s.Set("old", makeTestString("v"))
	s.Set("new", makeTestString("v"))
	s.SampleForEviction(2, false)
	key, ok := s.EvictLRU()
	if !ok {
		t.Fatal("expected an eviction candidate")
	}
	if key != "old" && key != "new" {
		t.Fatalf("unexpected evicted key %q", key)
	}
}
