// Package worker implements the per-connection event loop: a single
// goroutine per worker owns a set of clients and processes their
// commands to completion, matching the teacher's single-owner-goroutine
// reactor in `src/sharded/shard.go` ("ALL state accessed by ONE
// goroutine") generalized from a WebSocket broadcast shard to a command
// execution engine. Socket reads happen on a per-client goroutine that
// only ever feeds raw bytes into the worker's inbound channel; parsing,
// dispatch, blocking-wakeup and write-flush all happen on the worker's
// own goroutine, so no client state needs a lock.
package worker

import (
	"context"
	"net"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vipshop/vire/internal/command"
	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/resp"
	"github.com/vipshop/vire/internal/session"
)

func nowMillis() int64 { return time.Now().UnixMilli() }

type inboundChunk struct {
	clientID uint64
	data     []byte
	err      error
}

// awayClient tracks a client that left on a jump, plus any socket bytes
// that arrived while it was visiting other workers.
type awayClient struct {
	c       *session.Client
	pending []inboundChunk
}

// Worker is one single-threaded cooperative reactor (spec §4.2). It
// implements command.Host so the command package can route CLIENT
// LIST/KILL jumps and INFO stats through it without importing this
// package back.
type Worker struct {
	index int
	pool  *Pool

	ks     *keyspace.Keyspace
	config *command.RuntimeConfig
	prop   command.Propagator
	hz     int
	logger zerolog.Logger

	clients map[uint64]*session.Client
	blocked map[uint64]*session.Client

	// away holds clients this worker accepted that are currently in
	// flight on a cross-worker jump; socket bytes arriving while the
	// client is away are queued in order and replayed once it returns.
	away map[uint64]*awayClient

	accept  chan net.Conn
	inbound chan inboundChunk
	jumpIn  chan *session.Client

	quit chan struct{}
	wg   sync.WaitGroup

	connections      int64
	commandsExecuted int64
	expiredKeys      int64
	keyspaceHits     int64
	keyspaceMisses   int64
}

func newWorker(index int, pool *Pool, ks *keyspace.Keyspace, cfg *command.RuntimeConfig, prop command.Propagator, hz int, logger zerolog.Logger) *Worker {
	return &Worker{
		index:   index,
		pool:    pool,
		ks:      ks,
		config:  cfg,
		prop:    prop,
		hz:      hz,
		logger:  logger.With().Str("component", "worker").Int("worker", index).Logger(),
		clients: make(map[uint64]*session.Client),
		blocked: make(map[uint64]*session.Client),
		away:    make(map[uint64]*awayClient),
		accept:  make(chan net.Conn, 64),
		inbound: make(chan inboundChunk, 256),
		jumpIn:  make(chan *session.Client, 16),
		quit:    make(chan struct{}),
	}
}

// Submit hands conn to this worker for acceptance; called by
// internal/master's accept loop.
func (w *Worker) Submit(conn net.Conn) {
	select {
	case w.accept <- conn:
	case <-w.quit:
		conn.Close()
	}
}

// Run is the worker's single goroutine: the reactor loop described by
// spec §4.2, grounded on the teacher's `Shard.Run` select-loop over
// register/unregister/broadcast/stats-ticker channels.
func (w *Worker) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.quit)

	if w.hz <= 0 {
		w.hz = 10
	}
	cron := time.NewTicker(time.Second / time.Duration(w.hz))
	defer cron.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case conn := <-w.accept:
			w.handleAccept(conn)
		case chunk := <-w.inbound:
			w.handleInbound(chunk)
		case c := <-w.jumpIn:
			w.handleJumpIn(c)
		case <-cron.C:
			w.runCron()
		}
	}
}

func (w *Worker) shutdown() {
	for _, c := range w.clients {
		c.Conn.Close()
	}
	for _, aw := range w.away {
		aw.c.Conn.Close()
	}
}

func (w *Worker) handleAccept(conn net.Conn) {
	id := w.pool.nextClientID()
	c := session.New(id, conn)
	c.OwningWorker = w.index
	w.clients[id] = c
	atomic.AddInt64(&w.connections, 1)
	w.wg.Add(1)
	go w.readLoop(c)
}

// readLoop only ever reads the socket and forwards raw bytes; it never
// touches client state the worker goroutine owns.
func (w *Worker) readLoop(c *session.Client) {
	defer w.wg.Done()
	buf := make([]byte, 16*1024)
	for {
		n, err := c.Conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case w.inbound <- inboundChunk{clientID: c.ID, data: chunk}:
			case <-w.quit:
				return
			}
		}
		if err != nil {
			select {
			case w.inbound <- inboundChunk{clientID: c.ID, err: err}:
			case <-w.quit:
			}
			return
		}
	}
}

func (w *Worker) handleInbound(chunk inboundChunk) {
	c, ok := w.clients[chunk.clientID]
	if !ok {
		if aw, isAway := w.away[chunk.clientID]; isAway {
			aw.pending = append(aw.pending, chunk)
		}
		return
	}
	if chunk.err != nil {
		w.closeClient(c)
		return
	}
	c.In.Append(chunk.data)
	c.Touch()
	if _, isBlocked := w.blocked[c.ID]; isBlocked {
		return
	}
	w.drainClient(c)
}

// drainClient runs every complete request currently buffered for c to
// completion, stopping early if c blocks, jumps, or asks to close (spec
// §4.2 step 2).
func (w *Worker) drainClient(c *session.Client) {
	for {
		status, argv, perr := c.Parser.Next()
		switch status {
		case resp.NeedMore:
			w.flushClient(c)
			return
		case resp.ProtocolError:
			c.Out.Error("ERR Protocol error: " + perr.Error())
			c.SetFlag(session.FlagCloseAfterReply)
			w.flushClient(c)
			w.closeClient(c)
			return
		case resp.Ready:
			c.Argv = argv
			outcome := w.dispatch(c, argv)
			atomic.AddInt64(&w.commandsExecuted, 1)
			switch outcome {
			case command.OutcomeBlocked:
				w.blocked[c.ID] = c
				w.flushClient(c)
				return
			case command.OutcomeJumped:
				// The client is in flight to another worker; its queued
				// replies (this command's predecessors included) are
				// flushed when the jump completes and it returns here.
				return
			default:
				if c.HasFlag(session.FlagCloseAfterReply) {
					w.flushClient(c)
					w.closeClient(c)
					return
				}
			}
		}
	}
}

func (w *Worker) dispatch(c *session.Client, argv [][]byte) command.Outcome {
	ctx := &command.Ctx{
		Client:     c,
		Keyspace:   w.ks,
		Host:       w,
		Propagator: w.prop,
		Config:     w.config,
	}
	outcome := command.Dispatch(ctx, argv)
	atomic.AddInt64(&w.keyspaceHits, ctx.StatKeyspaceHits)
	atomic.AddInt64(&w.keyspaceMisses, ctx.StatKeyspaceMisses)
	atomic.AddInt64(&w.expiredKeys, ctx.StatExpiredKeys)
	return outcome
}

func (w *Worker) flushClient(c *session.Client) {
	chunks := c.Out.Flush()
	if len(chunks) == 0 {
		return
	}
	for _, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		if _, err := c.Conn.Write(chunk); err != nil {
			c.Out.Reset()
			w.closeClient(c)
			return
		}
	}
	c.Out.Reset()
}

func (w *Worker) closeClient(c *session.Client) {
	if _, ok := w.clients[c.ID]; !ok {
		return
	}
	for _, k := range c.BlockedKeys {
		sh := w.ks.ShardFor(c.DB, []byte(k))
		sh.Lock()
		sh.RemoveBlocker(k, c.ID)
		sh.Unlock()
	}
	for _, wk := range c.WatchedKeys {
		sh := w.ks.Shard(w.ks.ShardIndex(wk.DB, []byte(wk.Key)))
		sh.Lock()
		sh.RemoveWatcher(wk.Key, c.ID)
		sh.ClearDirtyCAS(c.ID)
		sh.Unlock()
	}
	delete(w.clients, c.ID)
	delete(w.blocked, c.ID)
	c.Conn.Close()
}

// handleJumpIn receives a client arriving via the cross-worker jump
// protocol (spec §4.3). An in-progress continuation contributes this
// worker's share and forwards the client along the chain; a completed
// continuation has come home to the worker that accepted the
// connection, which writes the final reply, re-attaches the client, and
// replays any socket bytes that arrived while it was away.
func (w *Worker) handleJumpIn(c *session.Client) {
	cont := c.Continuation
	count := w.pool.WorkerCount()

	if cont.StepsTaken < count {
		switch cont.Kind {
		case session.ContinuationClientList:
			cont.ListLines = append(cont.ListLines, w.localClientLinesLocked()...)
		case session.ContinuationClientKill:
			cont.KillCount += w.killLocalClientsLocked(cont.KillFilter)
		}
		cont.StepsTaken++
		next := (w.index + 1) % count
		if cont.StepsTaken >= count {
			next = cont.OriginWorker
		}
		cont.TargetWorker = next
		w.Dispatch(next, c)
		return
	}

	aw := w.away[c.ID]
	delete(w.away, c.ID)
	if cont.Finish != nil {
		cont.Finish(c)
	}
	c.EndJump()
	w.clients[c.ID] = c
	w.flushClient(c)
	if c.HasFlag(session.FlagCloseAfterReply) {
		w.closeClient(c)
		return
	}
	if aw != nil {
		for _, chunk := range aw.pending {
			if chunk.err != nil {
				w.closeClient(c)
				return
			}
			c.In.Append(chunk.data)
		}
		w.drainClient(c)
	}
}

// runCron drives spec §4.7's cron duties that this package owns: waking
// blocked clients once their key receives a push (drains Shard.DrainReady
// across every shard) and enforcing blocking deadlines. Active expiration
// and rehash stepping are not done here: internal/backend runs them on its
// own single goroutine, shared by all workers.
func (w *Worker) runCron() {
	for _, sh := range w.ks.All() {
		sh.Lock()
		ready := sh.DrainReady()
		sh.Unlock()
		for _, key := range ready {
			w.wakeBlockersOnKey(key)
		}
	}
	w.checkBlockedDeadlines()
	w.timeOutIdleClients()
	w.sweepCloseASAP()
}

// timeOutIdleClients flags clients idle past the configured maxidletime
// for close (spec §4.7: "time-out idle clients"); 0 or unset disables the
// sweep.
func (w *Worker) timeOutIdleClients() {
	v, ok := w.config.Get("maxidletime")
	if !ok {
		return
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return
	}
	for id, c := range w.clients {
		if _, blocked := w.blocked[id]; blocked {
			continue // a parked BLPOP waiter is not idle, its deadline governs
		}
		if c.IdleSeconds() >= int64(secs) {
			c.SetFlag(session.FlagCloseASAP)
		}
	}
}

func (w *Worker) wakeBlockersOnKey(key string) {
	for id, c := range w.blocked {
		if !containsString(c.BlockedKeys, key) {
			continue
		}
		w.retryBlocked(id, c)
	}
}

func (w *Worker) retryBlocked(id uint64, c *session.Client) {
	for _, k := range c.BlockedKeys {
		sh := w.ks.ShardFor(c.DB, []byte(k))
		sh.Lock()
		sh.RemoveBlocker(k, id)
		sh.Unlock()
	}
	outcome := w.dispatch(c, c.Argv)
	atomic.AddInt64(&w.commandsExecuted, 1)
	if outcome == command.OutcomeBlocked {
		return
	}
	delete(w.blocked, id)
	w.flushClient(c)
	if c.HasFlag(session.FlagCloseAfterReply) {
		w.closeClient(c)
		return
	}
	// Serve anything the client pipelined behind the blocking command
	// while it was parked.
	w.drainClient(c)
}

func (w *Worker) checkBlockedDeadlines() {
	now := nowMillis()
	for id, c := range w.blocked {
		if c.BlockedDeadline == 0 || c.BlockedDeadline > now {
			continue
		}
		for _, k := range c.BlockedKeys {
			sh := w.ks.ShardFor(c.DB, []byte(k))
			sh.Lock()
			sh.RemoveBlocker(k, id)
			sh.Unlock()
		}
		c.Out.NilArray()
		delete(w.blocked, id)
		w.flushClient(c)
		w.drainClient(c)
	}
}

func (w *Worker) sweepCloseASAP() {
	var dead []uint64
	for id, c := range w.clients {
		if c.HasFlag(session.FlagCloseASAP) && c.Out.Len() == 0 {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		if c, ok := w.clients[id]; ok {
			w.closeClient(c)
		}
	}
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// --- command.Host implementation ---

func (w *Worker) WorkerIndex() int { return w.index }
func (w *Worker) WorkerCount() int { return w.pool.WorkerCount() }

func (w *Worker) LocalClientLines() []string { return w.localClientLinesLocked() }

func (w *Worker) localClientLinesLocked() []string {
	lines := make([]string, 0, len(w.clients))
	for _, c := range w.clients {
		lines = append(lines, command.ClientLine(c))
	}
	return lines
}

func (w *Worker) KillLocalClients(filter func(*session.Client) bool) int {
	return w.killLocalClientsLocked(filter)
}

func (w *Worker) killLocalClientsLocked(filter func(*session.Client) bool) int {
	killed := 0
	for _, c := range w.clients {
		if filter(c) {
			c.SetFlag(session.FlagCloseASAP)
			killed++
		}
	}
	return killed
}

// Dispatch removes c from this worker's lists and hands it to worker
// `to`'s jump-in channel, honoring the invariant that a jumping client
// belongs to no worker's lists (spec §4.3). The worker that accepted the
// connection keeps an away record so socket bytes arriving mid-jump are
// queued rather than lost; intermediate workers never had the client in
// their lists to begin with.
func (w *Worker) Dispatch(to int, c *session.Client) {
	delete(w.clients, c.ID)
	delete(w.blocked, c.ID)
	if c.Continuation != nil && c.OwningWorker == w.index {
		w.away[c.ID] = &awayClient{c: c}
	}
	target := w.pool.workerAt(to)
	select {
	case target.jumpIn <- c:
	case <-w.quit:
	}
}

func (w *Worker) Stats() command.Stats {
	return command.Stats{
		Connections:      atomic.LoadInt64(&w.connections),
		CommandsExecuted: atomic.LoadInt64(&w.commandsExecuted),
		ExpiredKeys:      atomic.LoadInt64(&w.expiredKeys),
		KeyspaceHits:     atomic.LoadInt64(&w.keyspaceHits),
		KeyspaceMisses:   atomic.LoadInt64(&w.keyspaceMisses),
	}
}
