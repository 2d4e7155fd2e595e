// Package keyspace implements the sharded database: a fixed array of
// L*I Shards (logical DBs times internal shards per DB), CRC16-routed key
// lookup, per-shard locking, expiration, and LRU/TTL eviction sampling
// (spec §3 Shard/Keyspace, §4.4).
package keyspace

import (
	"sort"
	"sync"
	"time"

	"github.com/vipshop/vire/internal/object"
	"github.com/vipshop/vire/internal/structs/dict"
)

func fnv1a(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

// evictionCandidate is one sampled key held in a Shard's eviction pool,
// ordered by ascending idle time so the tail is always the best eviction
// target (spec §4.4: "pool of up to 16 sampled candidates ordered by
// ascending idle time").
type evictionCandidate struct {
	key        string
	idleMillis int64
	expiresAt  int64 // 0 = no TTL; used by the volatile-ttl policy
}

const evictionPoolCap = 16

// Shard is one cell of the keyspace: a key->Object dict, a key->expiry
// dict, blocking/ready/watch bookkeeping, and the per-shard read/write
// lock that serializes mutation.
type Shard struct {
	sync.RWMutex

	ID int

	data    *dict.Dict[string, *object.Object]
	expires *dict.Dict[string, int64] // unix ms

	blockingKeys map[string][]uint64 // key -> client ids waiting (BLPOP et al.)
	readyKeys    map[string]struct{} // keys pushed to while clients were blocked
	watchedKeys  map[string][]uint64 // key -> client ids that WATCH it
	dirtyCAS     map[uint64]struct{} // client ids whose watched keys on this shard changed

	evictionPool []evictionCandidate
	avgTTLMillis float64 // EWMA estimate, spec §4.4 "2% new, 98% old"

	// Version is bumped each time a background snapshot of this shard
	// begins; every Object's Version must stay <= Version (spec §3 Shard
	// invariant, §4.5 write barriers).
	Version       uint64
	Dumping       bool
	DumpFirstStep bool

	dirtyAtDumpStart int64
	dirty            int64
}

// NewShard returns an empty shard with the given identity.
func NewShard(id int) *Shard {
	return &Shard{
		ID:           id,
		data:         dict.New[string, *object.Object](fnv1a),
		expires:      dict.New[string, int64](fnv1a),
		blockingKeys: make(map[string][]uint64),
		readyKeys:    make(map[string]struct{}),
		watchedKeys:  make(map[string][]uint64),
		dirtyCAS:     make(map[uint64]struct{}),
	}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// LookupRead returns the Object at key, reporting it absent if its TTL has
// passed. Callers must hold at least the read lock. LookupRead does not
// delete an expired key; LookupWrite (under the write lock) and the
// backend's active expiration do.
func (s *Shard) LookupRead(key string) (*object.Object, bool) {
	if s.expired(key) {
		return nil, false
	}
	o, ok := s.data.Get(key)
	if ok {
		o.Touch()
	}
	return o, ok
}

// LookupWrite returns the Object at key for a mutating command, deleting
// it first if expired, and reports whether an expiration happened so the
// caller can add it to the worker's stats (spec §4.4 lookupKeyWrite).
func (s *Shard) LookupWrite(key string) (o *object.Object, found bool, expired bool) {
	if s.expiredWrite(key) {
		return nil, false, true
	}
	o, found = s.data.Get(key)
	if found {
		o.Touch()
	}
	return o, found, false
}

// expired reports (without deleting) whether key's TTL has passed; used by
// LookupRead and on the replica path, which must not perform local deletions (spec
// §4.4: "If the caller is running as a replica it must not delete expired
// keys locally").
func (s *Shard) expired(key string) bool {
	at, ok := s.expires.Get(key)
	return ok && at <= nowMillis()
}

// expiredWrite deletes key (and its TTL entry) if its TTL has passed,
// reporting whether it did so.
func (s *Shard) expiredWrite(key string) bool {
	at, ok := s.expires.Get(key)
	if !ok || at > nowMillis() {
		return false
	}
	s.data.Delete(key)
	s.expires.Delete(key)
	s.dirty++
	s.TouchWatchers(key)
	return true
}

// ExpireIfNeeded reports whether key's TTL has passed, deleting it unless
// isReplica is true. This implementation never actually runs as a
// replica (replication is out of scope), so the isReplica=true branch
// exists only so the read-path invariant — "a replica must not delete
// expired keys locally" — stays checkable by a test rather than dead
// code with no caller.
func (s *Shard) ExpireIfNeeded(key string, isReplica bool) bool {
	if isReplica {
		return s.expired(key)
	}
	return s.expiredWrite(key)
}

// Set installs obj at key, clearing any previous TTL (the caller re-adds
// one via SetExpire if the command calls for it, matching SET's
// clear-TTL-unless-KEEPTTL semantics).
//
// While a snapshot is in progress the installed object is marked as
// already captured: the caller's write barrier has dumped any pre-image
// this key had at snapshot start, and an object arriving after the start
// must not leak its post-image into the point-in-time cut.
func (s *Shard) Set(key string, obj *object.Object) {
	if s.Dumping && obj.Version < s.Version {
		obj.Version = s.Version
	}
	s.data.Set(key, obj)
	s.expires.Delete(key)
	s.dirty++
	s.TouchWatchers(key)
}

// Delete removes key and any TTL entry, reporting whether it was present.
func (s *Shard) Delete(key string) bool {
	_, found := s.data.Get(key)
	s.data.Delete(key)
	s.expires.Delete(key)
	if found {
		s.dirty++
		s.TouchWatchers(key)
	}
	return found
}

// SetExpire installs an absolute-millisecond TTL on key; the key must
// already exist in data (spec invariant: "k in expires => k in dict").
func (s *Shard) SetExpire(key string, atMillis int64) {
	if _, ok := s.data.Get(key); !ok {
		return
	}
	s.expires.Set(key, atMillis)
	s.TouchWatchers(key)
}

// Persist removes key's TTL, returning whether one was present.
func (s *Shard) Persist(key string) bool {
	if s.expires.Delete(key) {
		s.TouchWatchers(key)
		return true
	}
	return false
}

// TTL returns the remaining milliseconds until key expires, ok=false if
// key has no TTL.
func (s *Shard) TTL(key string) (millis int64, ok bool) {
	at, has := s.expires.Get(key)
	if !has {
		return 0, false
	}
	return at - nowMillis(), true
}

// Len returns the number of live keys (expired keys not yet swept still
// count, matching Redis's DBSIZE semantics).
func (s *Shard) Len() int { return s.data.Len() }

// RehashStep advances both the main dict and the expires dict's
// incremental rehash by up to n buckets each, called from the worker/
// backend cron under a time budget (spec §4.4, §4.7).
func (s *Shard) RehashStep(n int) (stillRehashing bool) {
	a := s.data.RehashStep(n)
	b := s.expires.RehashStep(n)
	return a || b
}

// SampleForEviction draws up to n random-ish keys (by walking a bounded
// number of dict buckets) and folds them into the shard's eviction pool,
// keeping it sorted by ascending idle time and capped at evictionPoolCap
// (spec §4.4: "sample N keys (default 5) from dict or expires, insert them
// into the pool").
func (s *Shard) SampleForEviction(n int, volatileOnly bool) {
	it := s.data.NewIterator()
	sampled := 0
	for sampled < n {
		key, obj, ok := it.Next()
		if !ok {
			break
		}
		if volatileOnly {
			if _, has := s.expires.Get(key); !has {
				continue
			}
		}
		exp, _ := s.expires.Get(key)
		s.evictionPool = append(s.evictionPool, evictionCandidate{
			key:        key,
			idleMillis: obj.IdleMillis(),
			expiresAt:  exp,
		})
		sampled++
	}
	sort.Slice(s.evictionPool, func(i, j int) bool {
		return s.evictionPool[i].idleMillis < s.evictionPool[j].idleMillis
	})
	if len(s.evictionPool) > evictionPoolCap {
		s.evictionPool = s.evictionPool[len(s.evictionPool)-evictionPoolCap:]
	}
}

// EvictLRU removes and returns the pool's highest-idle-time candidate
// (the tail), or ok=false if the pool is empty.
func (s *Shard) EvictLRU() (key string, ok bool) {
	if len(s.evictionPool) == 0 {
		return "", false
	}
	last := len(s.evictionPool) - 1
	c := s.evictionPool[last]
	s.evictionPool = s.evictionPool[:last]
	s.Delete(c.key)
	return c.key, true
}

// EvictNearestTTL removes and returns whichever pooled candidate's expiry
// is soonest (spec §4.4 volatile-ttl policy).
func (s *Shard) EvictNearestTTL() (key string, ok bool) {
	best := -1
	for i, c := range s.evictionPool {
		if c.expiresAt == 0 {
			continue
		}
		if best == -1 || c.expiresAt < s.evictionPool[best].expiresAt {
			best = i
		}
	}
	if best == -1 {
		return "", false
	}
	key = s.evictionPool[best].key
	s.evictionPool = append(s.evictionPool[:best], s.evictionPool[best+1:]...)
	s.Delete(key)
	return key, true
}

// UpdateAvgTTL folds a freshly observed TTL (ms) into the shard's running
// estimate via an EWMA of 2% new / 98% old (spec §4.4 active expiration).
func (s *Shard) UpdateAvgTTL(observedMillis int64) {
	if s.avgTTLMillis == 0 {
		s.avgTTLMillis = float64(observedMillis)
		return
	}
	s.avgTTLMillis = 0.02*float64(observedMillis) + 0.98*s.avgTTLMillis
}

// AvgTTLMillis returns the current EWMA TTL estimate.
func (s *Shard) AvgTTLMillis() float64 { return s.avgTTLMillis }

// SampleExpired scans up to n keys from the expires dict, deleting those
// whose TTL has passed and returning how many were deleted and how many
// were sampled in total (spec §4.4 active expiration: "samples up to 20
// keys from expires, deletes those past due").
func (s *Shard) SampleExpired(n int) (sampled, deleted int) {
	it := s.expires.NewIterator()
	now := nowMillis()
	for sampled < n {
		key, at, ok := it.Next()
		if !ok {
			break
		}
		sampled++
		if at <= now {
			s.data.Delete(key)
			s.expires.Delete(key)
			s.dirty++
			s.TouchWatchers(key)
			deleted++
		}
	}
	return sampled, deleted
}

// BeginDump bumps Version and sets the dumping flags, called at the start
// of a background save (spec §4.5 Snapshot start).
func (s *Shard) BeginDump() {
	s.Version++
	s.Dumping = true
	s.DumpFirstStep = true
	s.dirtyAtDumpStart = s.dirty
}

// FinishDump clears the dumping flags and decrements the dirty counter by
// the value captured when the dump started (spec §4.5 Finish).
func (s *Shard) FinishDump() {
	s.Dumping = false
	s.DumpFirstStep = false
	s.dirty -= s.dirtyAtDumpStart
	if s.dirty < 0 {
		s.dirty = 0
	}
}

// WriteBarrier must be called by every mutator before changing obj, when
// obj belongs to a shard currently Dumping and obj.Version is stale. dump
// is the persistence engine's callback to serialize obj's pre-image; after
// it runs, obj.Version is bumped to the shard's Version (spec §4.5 Write
// barriers).
func (s *Shard) WriteBarrier(obj *object.Object, dump func(*object.Object)) {
	if !s.Dumping || obj.Version >= s.Version {
		return
	}
	dump(obj)
	obj.Version = s.Version
}

// Dirty returns the number of mutations since the last successful dump.
func (s *Shard) Dirty() int64 { return s.dirty }

// Data exposes the underlying key->Object dict for iteration by the
// persistence engine and SCAN; callers must hold at least the read lock.
func (s *Shard) Data() *dict.Dict[string, *object.Object] { return s.data }

// Expires exposes the underlying key->expiry dict for the same reasons.
func (s *Shard) Expires() *dict.Dict[string, int64] { return s.expires }

// AddWatcher registers clientID as watching key (for MULTI/WATCH).
func (s *Shard) AddWatcher(key string, clientID uint64) {
	s.watchedKeys[key] = append(s.watchedKeys[key], clientID)
}

// TouchWatchers flags every client watching key so its EXEC aborts, then
// clears key's watch list (a watch fires at most once). Set/Delete and
// the expiry paths call this themselves; in-place collection mutators
// (SADD on an existing set, HSET on an existing hash, a list push) must
// call it explicitly since the dict entry never changes.
func (s *Shard) TouchWatchers(key string) {
	ids := s.watchedKeys[key]
	if len(ids) == 0 {
		return
	}
	delete(s.watchedKeys, key)
	for _, id := range ids {
		s.dirtyCAS[id] = struct{}{}
	}
}

// DirtyCAS reports whether one of clientID's watched keys on this shard
// changed since the WATCH was registered.
func (s *Shard) DirtyCAS(clientID uint64) bool {
	_, ok := s.dirtyCAS[clientID]
	return ok
}

// ClearDirtyCAS drops clientID's dirty mark, called when its transaction
// ends (EXEC, DISCARD, UNWATCH) or the client disconnects.
func (s *Shard) ClearDirtyCAS(clientID uint64) {
	delete(s.dirtyCAS, clientID)
}

// RemoveWatcher drops clientID from key's watcher list, used on UNWATCH
// and on client disconnect.
func (s *Shard) RemoveWatcher(key string, clientID uint64) {
	list := s.watchedKeys[key]
	for i, id := range list {
		if id == clientID {
			s.watchedKeys[key] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// AddBlocker registers clientID as waiting on key (BLPOP/BRPOP et al).
func (s *Shard) AddBlocker(key string, clientID uint64) {
	s.blockingKeys[key] = append(s.blockingKeys[key], clientID)
}

// RemoveBlocker drops clientID from key's waiter list, used once a
// blocked client is served or its deadline expires.
func (s *Shard) RemoveBlocker(key string, clientID uint64) {
	list := s.blockingKeys[key]
	for i, id := range list {
		if id == clientID {
			s.blockingKeys[key] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Blockers returns the client ids currently waiting on key.
func (s *Shard) Blockers(key string) []uint64 { return s.blockingKeys[key] }

// MarkReady records that key received a push while clients were blocked
// on it, so the worker cron's wake pass knows to look at it.
func (s *Shard) MarkReady(key string) {
	if len(s.blockingKeys[key]) > 0 {
		s.readyKeys[key] = struct{}{}
	}
}

// DrainReady returns and clears the set of keys marked ready since the
// last drain.
func (s *Shard) DrainReady() []string {
	if len(s.readyKeys) == 0 {
		return nil
	}
	keys := make([]string, 0, len(s.readyKeys))
	for k := range s.readyKeys {
		keys = append(keys, k)
	}
	s.readyKeys = make(map[string]struct{})
	return keys
}
