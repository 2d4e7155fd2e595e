// Package command implements the command table and dispatcher: name
// lookup, arity checking, MULTI queuing, key extraction and shard-lock
// ordering, handler invocation, and write propagation (spec §4.6 Command
// dispatch). Handlers live one file per data kind, grounded on the
// `original_source/src/vr_t_*.c` command bodies the distilled spec names
// in its supplemented command catalogue.
package command

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/object"
	"github.com/vipshop/vire/internal/session"
)

// Flag is a bitset of command-table metadata (spec §4.6 command entries).
type Flag uint32

const (
	FlagWrite Flag = 1 << iota
	FlagReadonly
	FlagAdmin
	FlagBlocking
	FlagNoMulti // MULTI/EXEC/DISCARD/WATCH themselves: never queued
	FlagLoading // allowed to run while the server is still replaying its AOF/RDB
)

// Outcome reports what Dispatch (or a handler it calls) did with a
// command, so the worker event loop knows whether a reply is ready to
// flush, the client must be parked as blocked, or it is mid-jump to
// another worker (spec §4.2, §4.3).
type Outcome int

const (
	OutcomeReplied Outcome = iota
	OutcomeBlocked
	OutcomeJumped
)

// HandlerFunc executes one command against ctx, writing its reply to
// ctx.Client.Out (unless it returns OutcomeBlocked/OutcomeJumped, in
// which case the worker defers the reply).
type HandlerFunc func(ctx *Ctx, argv [][]byte) Outcome

// Command is one command table entry.
type Command struct {
	Name     string
	Handler  HandlerFunc
	Arity    int // negative means "at least |Arity|" (spec §4.6)
	Flags    Flag
	FirstKey int // 0 = no keys
	LastKey  int // -1 = last argument
	KeyStep  int
}

func (c *Command) arityOK(argc int) bool {
	if c.Arity >= 0 {
		return argc == c.Arity
	}
	return argc >= -c.Arity
}

// Host is the worker-side surface the command package needs to complete
// cross-worker "jump" commands (CLIENT LIST, CLIENT KILL) and to report
// aggregate stats for INFO. Implemented by internal/worker; kept as an
// interface here so this package never imports it back (spec §4.3).
type Host interface {
	WorkerIndex() int
	WorkerCount() int
	LocalClientLines() []string
	KillLocalClients(filter func(*session.Client) bool) int
	Dispatch(to int, c *session.Client)
	Stats() Stats
}

// Stats is the subset of per-worker counters INFO aggregates across
// workers (spec §4.7 cron duties, §8 CLIENT LIST/INFO properties).
type Stats struct {
	Connections      int64
	CommandsExecuted int64
	ExpiredKeys      int64
	KeyspaceHits     int64
	KeyspaceMisses   int64
}

// Propagator receives the translated form of a successful write command
// for append-log/replication propagation (spec §4.5 Append-log, §4.6
// step 7). Implemented by internal/persistence.
type Propagator interface {
	Propagate(db int, argv [][]byte)

	// WriteBarrier gives a mutating handler about to change a
	// pre-existing Object the chance to have its pre-image dumped first,
	// if sh is mid-snapshot and obj hasn't been captured yet (spec §4.5
	// Write barriers). Implementations forward to
	// keyspace.Shard.WriteBarrier with their own dump callback; a no-op
	// Propagator (or persistence not yet wired) simply does nothing.
	WriteBarrier(sh *keyspace.Shard, key string, obj *object.Object)
}

// Ctx bundles everything a handler needs: the issuing client, the shared
// keyspace, the owning worker (for jump commands), and the write-log
// sink.
type Ctx struct {
	Client     *session.Client
	Keyspace   *keyspace.Keyspace
	Host       Host
	Propagator Propagator

	// Config holds the live, CONFIG SET-mutable subset of server
	// parameters; shared across all clients of a worker.
	Config *RuntimeConfig

	// NoPropagate is set by a handler that already propagated an
	// equivalent command itself (e.g. SPOP -> SREM), matching spec §4.6
	// step 7's "preventCommandPropagation".
	NoPropagate bool
	// RewriteArgv overrides what gets propagated instead of the
	// original argv, e.g. EXPIRE -> PEXPIREAT (spec §4.5 Append-log).
	RewriteArgv [][]byte
	// ExtraPropagate carries additional command frames to append after the
	// main propagation, e.g. SETEX -> SET + PEXPIREAT (spec §4.5
	// Append-log translation rules).
	ExtraPropagate [][][]byte

	// InExec is set while EXEC drains its queued commands, so a blocking
	// command served from inside a transaction replies immediately instead
	// of parking the client mid-EXEC.
	InExec bool

	// Per-dispatch stat deltas, folded into the owning worker's counters
	// once the command returns (spec §4.4: expirations observed by
	// lookupKeyWrite count into the worker's stats).
	StatKeyspaceHits   int64
	StatKeyspaceMisses int64
	StatExpiredKeys    int64
}

// RuntimeConfig is the small set of parameters CONFIG GET/SET exposes at
// runtime, guarded by its own mutex since multiple workers' clients can
// read or write it concurrently. The memory figures live as atomics so
// the per-command OOM check never takes the map lock.
type RuntimeConfig struct {
	mu     sync.RWMutex
	values map[string]string

	usedMemory atomic.Int64 // sampled RSS, refreshed once per second
	maxMemory  atomic.Int64 // 0 = unlimited
}

// NewRuntimeConfig seeds a RuntimeConfig from a loaded configuration.
func NewRuntimeConfig(seed map[string]string) *RuntimeConfig {
	values := make(map[string]string, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	rc := &RuntimeConfig{values: values}
	if v, ok := values["maxmemory"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			rc.maxMemory.Store(n)
		}
	}
	return rc
}

// SetUsedMemory records the latest sampled process memory, called by the
// once-a-second stats sampler.
func (rc *RuntimeConfig) SetUsedMemory(n int64) { rc.usedMemory.Store(n) }

// UsedMemory returns the most recently sampled process memory.
func (rc *RuntimeConfig) UsedMemory() int64 { return rc.usedMemory.Load() }

// MaxMemory returns the configured memory ceiling, 0 meaning unlimited.
func (rc *RuntimeConfig) MaxMemory() int64 { return rc.maxMemory.Load() }

// Get returns a parameter's current value.
func (rc *RuntimeConfig) Get(key string) (string, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.values[key]
	return v, ok
}

// Set updates a parameter's value.
func (rc *RuntimeConfig) Set(key, value string) {
	rc.mu.Lock()
	rc.values[key] = value
	rc.mu.Unlock()
	if key == "maxmemory" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			rc.maxMemory.Store(n)
		}
	}
}

// Matching returns every key/value pair whose key matches a glob pattern.
func (rc *RuntimeConfig) Matching(pattern string) map[string]string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make(map[string]string)
	for k, v := range rc.values {
		if globMatch(pattern, k) {
			out[k] = v
		}
	}
	return out
}
