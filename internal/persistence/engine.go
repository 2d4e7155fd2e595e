package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/object"
)

// Engine implements command.Propagator: it owns one append-log per
// logical database and the registry of in-progress shard snapshots,
// grounded on the teacher's config-driven file layout and on
// boomballa-df2redis's zstd/LZ4/LZF codec usage for an on-disk RDB-like
// format (spec §4.5 Persistence engine).
//
// Propagate's signature only carries (db, argv), not the shard a write
// landed on, so — unlike the spec's literal per-shard append-log buffer —
// this implementation keeps one append-log per logical database; deriving
// the owning shard would mean duplicating the command table's key-extraction
// metadata inside this package. This is a deliberate simplification,
// recorded in the grounding ledger.
type Engine struct {
	dir     string
	ishards int
	ks      *keyspace.Keyspace
	logger  zerolog.Logger

	mu      sync.Mutex
	dumpers map[int]*dumper    // keyed by logical db id
	logs    map[int]*appendLog // keyed by logical db id

	clock func() int64
}

// New returns an Engine rooted at dir, ready to Propagate writes and drive
// snapshots for ks. policy governs every logical database's append-log
// fsync behavior.
func New(dir string, ks *keyspace.Keyspace, policy FsyncPolicy, logger zerolog.Logger) (*Engine, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("persistence: creating %s: %w", dir, err)
	}
	e := &Engine{
		dir:     dir,
		ishards: ks.ShardsPerDB(),
		ks:      ks,
		logger:  logger.With().Str("component", "persistence").Logger(),
		dumpers: make(map[int]*dumper),
		logs:    make(map[int]*appendLog),
		clock:   func() int64 { return time.Now().UnixMilli() },
	}
	for db := 0; db < ks.LogicalDBs(); db++ {
		l := newAppendLog(dir, db, e.ishards, policy)
		if err := l.rotate(e.now(), 0); err != nil {
			return nil, err
		}
		e.logs[db] = l
	}
	return e, nil
}

func (e *Engine) now() int64 { return e.clock() }

// Propagate stages argv on db's append-log (command.Propagator).
func (e *Engine) Propagate(db int, argv [][]byte) {
	e.mu.Lock()
	l := e.logs[db]
	e.mu.Unlock()
	if l == nil {
		return
	}
	l.append(db, argv)
	if l.policy == FsyncAlways {
		// The always policy may never ack a write that isn't durable, so
		// the staged frame goes to disk before the command's reply can be
		// flushed (spec §4.5, §7 persistence-write errors).
		if err := l.flush(); err != nil {
			e.logger.Fatal().Err(err).Msg("append-log write failed under always fsync policy")
		}
	}
}

// WriteBarrier forwards to keyspace.Shard.WriteBarrier with this Engine's
// dump callback bound to sh (command.Propagator).
func (e *Engine) WriteBarrier(sh *keyspace.Shard, key string, obj *object.Object) {
	sh.WriteBarrier(obj, func(o *object.Object) { e.dumpObject(sh, key, o) })
}

// FlushAppendLogs pushes every logical database's staged bytes to disk,
// called once per backend tick; workers do not call it themselves.
func (e *Engine) FlushAppendLogs() {
	e.mu.Lock()
	logs := make([]*appendLog, 0, len(e.logs))
	for _, l := range e.logs {
		logs = append(logs, l)
	}
	e.mu.Unlock()
	for _, l := range logs {
		if err := l.flush(); err != nil {
			if l.policy == FsyncAlways {
				// An acknowledged write must never outlive its durability
				// under the always policy (spec §4.5: "log loudly and
				// exit").
				e.logger.Fatal().Err(err).Msg("append-log flush failed under always fsync policy")
			}
			e.logger.Warn().Err(err).Msg("append-log flush failed")
		}
	}
}

// SyncEverySecond fsyncs every FsyncEverySec-policy append-log; the
// backend cron calls this at most once per second (spec §4.5).
func (e *Engine) SyncEverySecond() {
	e.mu.Lock()
	logs := make([]*appendLog, 0, len(e.logs))
	for _, l := range e.logs {
		logs = append(logs, l)
	}
	e.mu.Unlock()
	for _, l := range logs {
		l.syncIfDue()
	}
}

// RotateAppendLog closes db's current log, archives it with LZ4 in the
// background (an on-disk space optimization distinct from the LZF/zstd
// codecs used inside a live snapshot), and opens a fresh one stamped with
// version — called when a new snapshot of that database starts (spec
// §4.5: "Log rotation on snapshot boundary").
func (e *Engine) RotateAppendLog(db int, version uint64) error {
	e.mu.Lock()
	l := e.logs[db]
	e.mu.Unlock()
	if l == nil {
		return fmt.Errorf("persistence: no append-log for db %d", db)
	}
	if err := l.flush(); err != nil {
		e.logger.Warn().Err(err).Msg("flush before rotation failed")
	}
	retiring := filepath.Join(e.dir, l.desc.Name())
	hadFile := l.file != nil
	if err := l.rotate(e.now(), version); err != nil {
		return err
	}
	if hadFile {
		go archiveWithLZ4(retiring, e.logger)
	}
	return nil
}

// Close flushes and closes every append-log, used on graceful shutdown.
func (e *Engine) Close() {
	e.mu.Lock()
	logs := make([]*appendLog, 0, len(e.logs))
	for _, l := range e.logs {
		logs = append(logs, l)
	}
	e.mu.Unlock()
	for _, l := range logs {
		l.flush()
		l.close()
	}
}

// Dir returns the directory this Engine persists into, so Load(dir, ...)
// call sites can share it with New at startup.
func (e *Engine) Dir() string { return e.dir }
