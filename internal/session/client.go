// Package session implements Client, the per-connection state a worker
// owns for the lifetime of a socket: its input/output buffers, the
// in-progress argv, MULTI/WATCH state, and the typed continuation used by
// the cross-worker "jump" protocol (spec §3 Client session, §4.3).
package session

import (
	"net"
	"time"

	"github.com/vipshop/vire/internal/buf"
	"github.com/vipshop/vire/internal/resp"
)

// Flag is a bitset of per-client state toggles.
type Flag uint32

const (
	FlagCloseAfterReply Flag = 1 << iota
	FlagCloseASAP
	FlagPendingWrite
	FlagMulti
	FlagDirtyCAS  // a watched key changed; EXEC must abort
	FlagDirtyExec // a queued command failed at parse time; EXEC must reply -EXECABORT
	FlagMonitor
	FlagSubscriber
	FlagBlocked
	FlagJumping
)

// ContinuationKind tags which cross-worker jump is in flight, replacing
// the original implementation's untyped `void *cache` accumulator with an
// explicit sum type (spec §9 Redesign: "model as a typed sum, not
// type-erased storage").
type ContinuationKind uint8

const (
	ContinuationNone ContinuationKind = iota
	ContinuationClientList
	ContinuationClientKill
)

// Continuation carries the in-flight accumulator for a jumping client.
type Continuation struct {
	Kind ContinuationKind

	// ListLines accumulates one "CLIENT LIST" line per worker visited.
	ListLines []string

	// KillFilter/KillCount drive "CLIENT KILL": Filter selects victims on
	// each worker visited, Count tallies how many were killed so far.
	KillFilter func(*Client) bool
	KillCount  int

	// TargetWorker is the next worker index to dispatch to; StepsTaken is
	// bounded by the number of workers (spec §9: "the spec bounds it by
	// the number of workers", closing the Open Question left by the
	// original's unbounded `c->steps`).
	TargetWorker int
	StepsTaken   int

	// OriginWorker is where the jump began, so the final worker's
	// response (or a zero-worker degenerate case) can be routed back.
	OriginWorker int
	// Finish writes the final reply once the continuation completes;
	// left nil for continuations that short-circuit before completing.
	Finish func(*Client)
}

// MultiState holds a client's queued MULTI/EXEC transaction.
type MultiState struct {
	Active bool
	Queue  [][][]byte // one entry per queued command's argv
}

// Client is one connection's state, owned exclusively by its current
// worker (spec invariant: "a session is linked into exactly one worker's
// clients list at a time").
type Client struct {
	ID   uint64
	Conn net.Conn
	Addr string
	Name string // set by CLIENT SETNAME, empty by default

	In  *buf.Buffer
	Out *resp.Writer

	Parser *resp.Parser

	DB    int
	Flags Flag

	Argv [][]byte // the command currently being executed, if any

	Multi MultiState

	// WatchedKeys is (db, key) pairs this client has WATCHed; EXEC
	// aborts if any changed since WATCH (flagged via FlagDirtyCAS by the
	// shard's TouchWatchers on mutation).
	WatchedKeys []WatchedKey

	OwningWorker int
	Continuation *Continuation

	CreatedAt  time.Time
	LastActive time.Time

	// BlockedDeadline is the absolute unix-ms deadline for a blocking
	// command (0 = infinite), checked by the worker cron (spec §4.2
	// Cancellation & timeouts).
	BlockedDeadline int64
	BlockedKeys     []string // keys this client is waiting on (BLPOP family)
}

// WatchedKey identifies a key a client is watching inside MULTI/WATCH.
type WatchedKey struct {
	DB  int
	Key string
}

// New returns a freshly accepted client, not yet registered with any
// worker.
func New(id uint64, conn net.Conn) *Client {
	now := time.Now()
	in := buf.New(16 * 1024)
	c := &Client{
		ID:         id,
		Conn:       conn,
		In:         in,
		Out:        resp.NewWriter(),
		CreatedAt:  now,
		LastActive: now,
	}
	if conn != nil {
		c.Addr = conn.RemoteAddr().String()
	}
	c.Parser = resp.NewParser(in)
	return c
}

// HasFlag reports whether all bits in f are set.
func (c *Client) HasFlag(f Flag) bool { return c.Flags&f == f }

// SetFlag sets bits in f.
func (c *Client) SetFlag(f Flag) { c.Flags |= f }

// ClearFlag clears bits in f.
func (c *Client) ClearFlag(f Flag) { c.Flags &^= f }

// Touch records activity for idle-timeout tracking.
func (c *Client) Touch() { c.LastActive = time.Now() }

// IdleSeconds returns how long the client has been idle.
func (c *Client) IdleSeconds() int64 { return int64(time.Since(c.LastActive).Seconds()) }

// AgeSeconds returns how long the connection has existed.
func (c *Client) AgeSeconds() int64 { return int64(time.Since(c.CreatedAt).Seconds()) }

// BeginMulti switches the client into queued-command mode.
func (c *Client) BeginMulti() {
	c.Multi.Active = true
	c.Multi.Queue = c.Multi.Queue[:0]
	c.ClearFlag(FlagDirtyCAS)
}

// QueueCommand appends argv to the pending transaction.
func (c *Client) QueueCommand(argv [][]byte) {
	c.Multi.Queue = append(c.Multi.Queue, argv)
}

// EndMulti clears MULTI/WATCH state and returns the queued commands; EXEC
// runs them and DISCARD ignores the return value.
func (c *Client) EndMulti() [][][]byte {
	queue := c.Multi.Queue
	c.Multi = MultiState{}
	c.WatchedKeys = nil
	c.ClearFlag(FlagDirtyCAS)
	return queue
}

// Watch records a (db, key) pair as watched.
func (c *Client) Watch(db int, key string) {
	c.WatchedKeys = append(c.WatchedKeys, WatchedKey{DB: db, Key: key})
}

// Unwatch clears all watched keys without touching MULTI state.
func (c *Client) Unwatch() {
	c.WatchedKeys = nil
	c.ClearFlag(FlagDirtyCAS)
}

// StartJump attaches a continuation and marks the client as in flight
// between workers; the caller is responsible for having already removed
// the client from its current worker's lists (spec invariant: "while a
// client is in flight between workers it appears in no worker's lists and
// holds no locks").
func (c *Client) StartJump(cont *Continuation) {
	c.Continuation = cont
	c.SetFlag(FlagJumping)
}

// EndJump clears the in-flight continuation once the jump completes.
func (c *Client) EndJump() {
	c.Continuation = nil
	c.ClearFlag(FlagJumping)
}
