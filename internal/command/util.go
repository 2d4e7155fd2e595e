package command

import (
	"strconv"
	"time"

	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/object"
)

func nowMillis() int64 { return time.Now().UnixMilli() }

// evictionSampleSize is how many keys one eviction pass samples per shard
// before picking a victim from the pool (spec §4.4, default 5).
const evictionSampleSize = 5

// ensureMemory enforces the maxmemory policy before a write command runs
// (spec §4.4 Eviction): under the ceiling it is a no-op; over it, the
// configured policy either refuses the write (-OOM) or evicts sampled
// candidates shard by shard.
func (ctx *Ctx) ensureMemory() error {
	max := ctx.Config.MaxMemory()
	if max <= 0 || ctx.Config.UsedMemory() < max {
		return nil
	}
	policy, _ := ctx.Config.Get("maxmemory-policy")
	switch policy {
	case "", "noeviction":
		return errOOM()
	case "volatile-ttl":
		for _, sh := range ctx.Keyspace.ShardsForDB(ctx.Client.DB) {
			sh.Lock()
			sh.SampleForEviction(evictionSampleSize, true)
			sh.EvictNearestTTL()
			sh.Unlock()
		}
	default:
		// allkeys-lru / volatile-lru, with the random policies sharing the
		// sampled pool as their victim source.
		volatile := policy == "volatile-lru" || policy == "volatile-random"
		for _, sh := range ctx.Keyspace.ShardsForDB(ctx.Client.DB) {
			sh.Lock()
			sh.SampleForEviction(evictionSampleSize, volatile)
			sh.EvictLRU()
			sh.Unlock()
		}
	}
	return nil
}

// writeBarrier dumps o's pre-image into sh's in-progress snapshot before a
// mutation, when one is running and o hasn't been captured yet (spec §4.5
// Write barriers). Safe to call with a nil object or no propagator.
func (ctx *Ctx) writeBarrier(sh *keyspace.Shard, key string, o *object.Object) {
	if ctx.Propagator != nil && o != nil {
		ctx.Propagator.WriteBarrier(sh, key, o)
	}
}

// shardFor returns the shard owning key on the client's current logical
// DB.
func (ctx *Ctx) shardFor(key []byte) *keyspace.Shard {
	return ctx.Keyspace.ShardFor(ctx.Client.DB, key)
}

// lockShards locks every distinct shard backing keys, in ascending
// shard-id order, returning an unlock function that releases them in
// reverse (spec §5 deadlock avoidance: "always in ascending shard-id
// order"). write selects RWMutex.Lock vs RLock.
func (ctx *Ctx) lockShards(keys [][]byte, write bool) (shards []*keyspace.Shard, unlock func()) {
	seen := make(map[int]bool, len(keys))
	ids := make([]int, 0, len(keys))
	for _, k := range keys {
		idx := ctx.Keyspace.ShardIndex(ctx.Client.DB, k)
		if !seen[idx] {
			seen[idx] = true
			ids = append(ids, idx)
		}
	}
	shards = ctx.Keyspace.LockOrder(ids...)
	for _, s := range shards {
		if write {
			s.Lock()
		} else {
			s.RLock()
		}
	}
	return shards, func() {
		for i := len(shards) - 1; i >= 0; i-- {
			if write {
				shards[i].Unlock()
			} else {
				shards[i].RUnlock()
			}
		}
	}
}

func parseInt(b []byte) (int64, error) {
	return strconv.ParseInt(string(b), 10, 64)
}

func parseFloat(b []byte) (float64, error) {
	return strconv.ParseFloat(string(b), 64)
}

// formatScore renders a zset score the way RESP bulk replies expect:
// integral scores without a trailing ".0", others at full precision.
func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
