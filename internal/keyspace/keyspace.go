package keyspace

// Keyspace is the fixed array of L*I shards described by the design notes:
// L logical databases (selected by SELECT) times I internal shards per
// database, addressed by CRC16(key) so co-located keys (via hash tags)
// land on the same shard.
type Keyspace struct {
	logicalDBs  int
	shardsPerDB int
	shards      []*Shard
}

// New builds a Keyspace with logicalDBs logical databases, each split into
// shardsPerDB internal shards.
func New(logicalDBs, shardsPerDB int) *Keyspace {
	if logicalDBs < 1 {
		logicalDBs = 1
	}
	if shardsPerDB < 1 {
		shardsPerDB = 1
	}
	ks := &Keyspace{logicalDBs: logicalDBs, shardsPerDB: shardsPerDB}
	ks.shards = make([]*Shard, logicalDBs*shardsPerDB)
	for i := range ks.shards {
		ks.shards[i] = NewShard(i)
	}
	return ks
}

// LogicalDBs returns the number of logical databases (the SELECT range).
func (ks *Keyspace) LogicalDBs() int { return ks.logicalDBs }

// ShardsPerDB returns the number of internal shards per logical database.
func (ks *Keyspace) ShardsPerDB() int { return ks.shardsPerDB }

// TotalShards returns the total shard count (logicalDBs * shardsPerDB).
func (ks *Keyspace) TotalShards() int { return len(ks.shards) }

// ShardIndex computes the shard index for key on logical database db:
// d*I + (crc16(k) & 0x3FFF) mod I (spec §3 Keyspace).
func (ks *Keyspace) ShardIndex(db int, key []byte) int {
	slot := int(crc16(hashTagSlice(key)) & 0x3FFF)
	return db*ks.shardsPerDB + slot%ks.shardsPerDB
}

// Shard returns the shard at idx (as returned by ShardIndex or by a
// direct SCAN cursor walk).
func (ks *Keyspace) Shard(idx int) *Shard { return ks.shards[idx] }

// ShardFor is a convenience combining ShardIndex and Shard.
func (ks *Keyspace) ShardFor(db int, key []byte) *Shard {
	return ks.shards[ks.ShardIndex(db, key)]
}

// ShardsForDB returns the slice of shards backing logical database db, in
// ascending shard-id order — callers iterating "all keys in db" (e.g.
// FLUSHDB, a full SCAN) walk these sequentially.
func (ks *Keyspace) ShardsForDB(db int) []*Shard {
	start := db * ks.shardsPerDB
	return ks.shards[start : start+ks.shardsPerDB]
}

// All returns every shard across every logical database, in ascending
// shard-id order (used by the backend and worker cron sweeps and INFO).
func (ks *Keyspace) All() []*Shard { return ks.shards }

// LockOrder returns the shards for ids sorted by ascending shard id, the
// order every multi-shard command must acquire locks in to avoid deadlock
// (spec §6 deadlock avoidance: "always in ascending shard-id order").
func (ks *Keyspace) LockOrder(ids ...int) []*Shard {
	out := make([]*Shard, len(ids))
	for i, id := range ids {
		out[i] = ks.shards[id]
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ID < out[j-1].ID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
