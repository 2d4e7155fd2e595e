package persistence

import (
	"fmt"
	"hash/crc64"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/object"
	"github.com/vipshop/vire/internal/structs/dict"
	"github.com/vipshop/vire/internal/structs/quicklist"
)

// snapshotStepBudget bounds how many small keys one StepSnapshot call
// inspects, matching the cron's "~200µs per tick" snapshot budget (spec
// §8 "Snapshot tick").
const snapshotStepBudget = 200

// bigKeyChunk bounds how many elements of a big key one tick serializes
// (spec §4.5: "Big keys are broken into chunks of up to 100 elements per
// tick").
const bigKeyChunk = 100

var crcTable = crc64.MakeTable(crc64.ISO)

// dumper is one logical database's in-progress background save: the temp
// file, a zstd-compressed record stream, and a cursor over the database's
// shards that the cron resumes across StepSnapshot calls. Snapshot
// granularity matches the append-log's (one file per logical database),
// so Load's newest-base election always covers the whole database.
type dumper struct {
	mu sync.Mutex // protects the record stream and the big-key cursor

	db       int
	shards   []*keyspace.Shard
	cur      int // index into shards of the shard currently being walked
	iter     *dict.Iterator[string, *object.Object]
	big      *bigCursor
	tmpPath  string
	destPath string
	file     *os.File
	zw       *zstd.Encoder
	rw       *recordWriter
	checksum *crc64Writer
}

// bigCursor is a big key's chunked-dump state, kept between ticks so one
// large hash/set/zset/list never holds its shard's lock for more than one
// chunk's worth of serialization. While a cursor is open the object is
// effectively frozen: the first mutation's write barrier serializes every
// remaining element and closes the cursor before the mutation applies.
type bigCursor struct {
	sh        *keyspace.Shard
	key       string
	obj       *object.Object
	expiresAt int64

	// fields is the emission order for the hash/set/zset encodings,
	// captured when the cursor opens; pos is the next element to emit.
	fields []string
	pos    int

	// node is the next quicklist node to emit for the list encoding.
	node *quicklist.Node
}

// crc64Writer wraps an io.Writer, folding every byte written into a
// running CRC-64/ISO checksum appended as the snapshot's trailing footer
// (spec §4.5 Load: "verifying the CRC-64 footer when present").
type crc64Writer struct {
	w   *os.File
	sum uint64
}

func (c *crc64Writer) Write(p []byte) (int, error) {
	c.sum = crc64.Update(c.sum, crcTable, p)
	return c.w.Write(p)
}

func (d *dumper) writeRecord(key string, obj *object.Object, expiresAt int64) {
	d.mu.Lock()
	d.rw.writeObject(key, obj, expiresAt)
	d.mu.Unlock()
}

// isBigEncoding reports whether o's encoding needs the chunked dump path
// (spec §4.5: "A key is 'big' if its collection encoding is skiplist
// (zset), hashtable (set or hash), or multi-node packed-list (list)").
func isBigEncoding(o *object.Object) bool {
	switch o.Kind {
	case object.KindHash, object.KindZSet:
		return true
	case object.KindSet:
		return o.Encoding == object.EncHashtable
	case object.KindList:
		head := o.List.Head()
		return head != nil && head.Next() != nil
	}
	return false
}

func markField(o *object.Object, field string, version uint64) {
	if o.FieldVersions == nil {
		o.FieldVersions = make(map[string]uint64)
	}
	o.FieldVersions[field] = version
}

// BeginSnapshot starts a background save of logical database dbid: bumps
// every one of its shards' Versions, opens an `rdbtmp_...` file, and
// registers an in-progress dumper so concurrent WriteBarrier calls land
// in the same stream (spec §4.5 Snapshot start). Callers must not hold
// any shard lock.
func (e *Engine) BeginSnapshot(dbid int) error {
	shards := e.ks.ShardsForDB(dbid)
	e.mu.Lock()
	if _, busy := e.dumpers[dbid]; busy {
		e.mu.Unlock()
		return fmt.Errorf("persistence: db %d is already dumping", dbid)
	}
	e.mu.Unlock()

	var version uint64
	for _, sh := range shards {
		sh.Lock()
		sh.BeginDump()
		if sh.Version > version {
			version = sh.Version
		}
		sh.Unlock()
	}

	tmp := Descriptor{Kind: KindSnapshotTemp, DBID: dbid, IShards: e.ishards, Timestamp: e.now(), Version: version}
	dest := Descriptor{Kind: KindSnapshot, DBID: dbid, IShards: e.ishards, Timestamp: tmp.Timestamp, Version: version}
	path := filepath.Join(e.dir, tmp.Name())
	f, err := os.Create(path)
	if err != nil {
		e.finishShards(shards)
		return fmt.Errorf("persistence: creating snapshot temp file: %w", err)
	}
	cw := &crc64Writer{w: f}
	zw, err := zstd.NewWriter(cw)
	if err != nil {
		f.Close()
		os.Remove(path)
		e.finishShards(shards)
		return fmt.Errorf("persistence: creating zstd encoder: %w", err)
	}
	d := &dumper{
		db:       dbid,
		shards:   shards,
		tmpPath:  path,
		destPath: filepath.Join(e.dir, dest.Name()),
		file:     f,
		zw:       zw,
		rw:       newRecordWriter(zw),
		checksum: cw,
	}
	e.mu.Lock()
	e.dumpers[dbid] = d
	e.mu.Unlock()
	return nil
}

func (e *Engine) finishShards(shards []*keyspace.Shard) {
	for _, sh := range shards {
		sh.Lock()
		sh.FinishDump()
		sh.Unlock()
	}
}

// dumpObject is the write barrier callback bound to one database's active
// dumper: it serializes obj's pre-image into the in-progress stream (spec
// §4.5 Write barriers). The caller already holds sh's write lock. For a
// big key only the elements not already captured by earlier chunks are
// written, after which any open cursor on the key is closed — the barrier
// has finished the key's capture, and the mutation about to apply must
// not reach the stream.
func (e *Engine) dumpObject(sh *keyspace.Shard, key string, obj *object.Object) {
	e.mu.Lock()
	d := e.dumpers[sh.ID/e.ishards]
	e.mu.Unlock()
	if d == nil {
		return
	}
	expiresAt := absoluteExpiry(sh, key)

	d.mu.Lock()
	defer d.mu.Unlock()
	if isBigEncoding(obj) {
		d.writeRemaining(sh, key, obj, expiresAt)
	} else {
		d.rw.writeObject(key, obj, expiresAt)
	}
	if d.big != nil && d.big.sh == sh && d.big.key == key {
		d.big = nil
	}
}

func absoluteExpiry(sh *keyspace.Shard, key string) int64 {
	remaining, ok := sh.TTL(key)
	if !ok {
		return 0
	}
	return nowMillis() + remaining
}

// writeRemaining serializes every element of a big key that no chunk has
// captured yet, as one or more chunk records. Called with d.mu and the
// shard's write lock held.
func (d *dumper) writeRemaining(sh *keyspace.Shard, key string, obj *object.Object, expiresAt int64) {
	switch obj.Kind {
	case object.KindHash:
		chunk := object.NewHash()
		for f, v := range obj.Hash {
			if obj.FieldVersions[f] >= sh.Version {
				continue
			}
			chunk.Hash[f] = v
			markField(obj, f, sh.Version)
		}
		if len(chunk.Hash) > 0 {
			d.rw.writeObject(key, chunk, expiresAt)
		}
	case object.KindSet:
		chunk := object.NewHashtableSet()
		for m := range obj.Set {
			if obj.FieldVersions[m] >= sh.Version {
				continue
			}
			chunk.Set[m] = struct{}{}
			markField(obj, m, sh.Version)
		}
		if len(chunk.Set) > 0 {
			d.rw.writeObject(key, chunk, expiresAt)
		}
	case object.KindZSet:
		chunk := object.NewZSet()
		for _, e := range obj.ZSet.Range(0, -1) {
			if obj.FieldVersions[e.Member] >= sh.Version {
				continue
			}
			chunk.ZSet.Insert(e.Member, e.Score)
			markField(obj, e.Member, sh.Version)
		}
		if chunk.ZSet.Len() > 0 {
			d.rw.writeObject(key, chunk, expiresAt)
		}
	case object.KindList:
		chunk := object.NewList()
		obj.List.ForEachNode(func(n *quicklist.Node) {
			if n.Version >= sh.Version {
				return
			}
			for _, el := range n.Elements {
				chunk.List.PushBack(el)
			}
			n.Version = sh.Version
		})
		if chunk.List.Len() > 0 {
			d.rw.writeObject(key, chunk, expiresAt)
		}
	}
}

// openBigKey captures a big key's emission order and installs the cursor.
// Called with d.mu and the shard's write lock held.
func (d *dumper) openBigKey(sh *keyspace.Shard, key string, obj *object.Object) {
	cur := &bigCursor{sh: sh, key: key, obj: obj, expiresAt: absoluteExpiry(sh, key)}
	switch obj.Kind {
	case object.KindHash:
		cur.fields = make([]string, 0, len(obj.Hash))
		for f := range obj.Hash {
			cur.fields = append(cur.fields, f)
		}
	case object.KindSet:
		cur.fields = make([]string, 0, len(obj.Set))
		for m := range obj.Set {
			cur.fields = append(cur.fields, m)
		}
	case object.KindZSet:
		entries := obj.ZSet.Range(0, -1)
		cur.fields = make([]string, 0, len(entries))
		for _, e := range entries {
			cur.fields = append(cur.fields, e.Member)
		}
	case object.KindList:
		cur.node = obj.List.Head()
	}
	d.big = cur
}

// emitBigChunk serializes up to bigKeyChunk elements of the open cursor,
// marking each element's version so neither a later chunk nor a write
// barrier re-emits it, and closes the cursor once the key is exhausted.
// Called with d.mu and the cursor's shard write lock held.
func (d *dumper) emitBigChunk() {
	cur := d.big
	sh := cur.sh
	obj := cur.obj

	switch obj.Kind {
	case object.KindList:
		chunk := object.NewList()
		emitted := 0
		for cur.node != nil && emitted < bigKeyChunk {
			n := cur.node
			cur.node = n.Next()
			if n.Version >= sh.Version {
				continue
			}
			for _, el := range n.Elements {
				chunk.List.PushBack(el)
			}
			emitted += len(n.Elements)
			n.Version = sh.Version
		}
		if chunk.List.Len() > 0 {
			d.rw.writeObject(cur.key, chunk, cur.expiresAt)
		}
		if cur.node == nil {
			obj.Version = sh.Version
			d.big = nil
		}
		return
	}

	end := cur.pos + bigKeyChunk
	if end > len(cur.fields) {
		end = len(cur.fields)
	}
	switch obj.Kind {
	case object.KindHash:
		chunk := object.NewHash()
		for _, f := range cur.fields[cur.pos:end] {
			v, ok := obj.Hash[f]
			if !ok || obj.FieldVersions[f] >= sh.Version {
				continue
			}
			chunk.Hash[f] = v
			markField(obj, f, sh.Version)
		}
		if len(chunk.Hash) > 0 {
			d.rw.writeObject(cur.key, chunk, cur.expiresAt)
		}
	case object.KindSet:
		chunk := object.NewHashtableSet()
		for _, m := range cur.fields[cur.pos:end] {
			if _, ok := obj.Set[m]; !ok || obj.FieldVersions[m] >= sh.Version {
				continue
			}
			chunk.Set[m] = struct{}{}
			markField(obj, m, sh.Version)
		}
		if len(chunk.Set) > 0 {
			d.rw.writeObject(cur.key, chunk, cur.expiresAt)
		}
	case object.KindZSet:
		chunk := object.NewZSet()
		for _, m := range cur.fields[cur.pos:end] {
			score, ok := obj.ZSet.Score(m)
			if !ok || obj.FieldVersions[m] >= sh.Version {
				continue
			}
			chunk.ZSet.Insert(m, score)
			markField(obj, m, sh.Version)
		}
		if chunk.ZSet.Len() > 0 {
			d.rw.writeObject(cur.key, chunk, cur.expiresAt)
		}
	}
	cur.pos = end
	if cur.pos >= len(cur.fields) {
		obj.Version = sh.Version
		d.big = nil
	}
}

// StepSnapshot advances dbid's in-progress dump by one tick: either the
// next chunk of an open big key, or up to snapshotStepBudget small keys
// on the shard currently being walked, skipping any Object whose Version
// already matches its shard's (captured by a prior step or a write
// barrier). It reports whether the database's dump is now complete (spec
// §4.5, §8 "Snapshot tick").
func (e *Engine) StepSnapshot(dbid int) (done bool, err error) {
	e.mu.Lock()
	d := e.dumpers[dbid]
	e.mu.Unlock()
	if d == nil {
		return true, nil
	}

	for d.cur < len(d.shards) {
		sh := d.shards[d.cur]
		sh.Lock()

		d.mu.Lock()
		if d.big != nil {
			d.emitBigChunk()
			d.mu.Unlock()
			sh.Unlock()
			return false, nil
		}
		d.mu.Unlock()

		if d.iter == nil {
			d.iter = sh.Data().NewSafeIterator()
		}
		exhausted := false
		for i := 0; i < snapshotStepBudget; i++ {
			key, obj, ok := d.iter.Next()
			if !ok {
				exhausted = true
				break
			}
			if obj.Version >= sh.Version {
				continue // already captured by a write barrier mid-scan
			}
			if isBigEncoding(obj) {
				d.mu.Lock()
				d.openBigKey(sh, key, obj)
				d.emitBigChunk()
				d.mu.Unlock()
				sh.Unlock()
				return false, nil
			}
			d.writeRecord(key, obj, absoluteExpiry(sh, key))
			obj.Version = sh.Version
		}
		if !exhausted {
			sh.Unlock()
			return false, nil
		}
		d.iter.Release()
		d.iter = nil
		sh.FinishDump()
		sh.Unlock()
		d.cur++
	}
	return true, e.finishSnapshot(d)
}

func (e *Engine) finishSnapshot(d *dumper) error {
	if err := d.rw.flush(); err != nil {
		return e.abortSnapshot(d, err)
	}
	if err := d.zw.Close(); err != nil {
		return e.abortSnapshot(d, err)
	}
	var footer [8]byte
	for i := 0; i < 8; i++ {
		footer[i] = byte(d.checksum.sum >> (8 * i))
	}
	if _, err := d.file.Write(footer[:]); err != nil {
		return e.abortSnapshot(d, err)
	}
	if err := d.file.Sync(); err != nil {
		return e.abortSnapshot(d, err)
	}
	if err := d.file.Close(); err != nil {
		return e.abortSnapshot(d, err)
	}
	if err := os.Rename(d.tmpPath, d.destPath); err != nil {
		return e.abortSnapshot(d, err)
	}
	e.mu.Lock()
	delete(e.dumpers, d.db)
	e.mu.Unlock()
	e.logger.Info().Int("db", d.db).Str("file", d.destPath).Msg("snapshot finished")
	return nil
}

func (e *Engine) abortSnapshot(d *dumper, cause error) error {
	d.file.Close()
	os.Remove(d.tmpPath)
	e.mu.Lock()
	delete(e.dumpers, d.db)
	e.mu.Unlock()
	if d.iter != nil {
		d.iter.Release()
		d.iter = nil
	}
	d.big = nil
	for i := d.cur; i < len(d.shards); i++ {
		sh := d.shards[i]
		sh.Lock()
		sh.FinishDump()
		sh.Unlock()
	}
	return fmt.Errorf("persistence: snapshot of db %d aborted: %w", d.db, cause)
}
