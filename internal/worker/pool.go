package worker

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vipshop/vire/internal/command"
	"github.com/vipshop/vire/internal/keyspace"
)

// Pool owns the fixed set of workers a running server dispatches
// connections across (spec §5: "a fixed pool of N worker threads,
// default = min(online CPUs, 6)"). It also hands out globally unique
// client IDs, since a client referenced from a shard's blocker/watcher
// lists must be identifiable regardless of which worker currently owns
// it.
type Pool struct {
	workers []*Worker
	nextID  uint64
}

// NewPool builds n workers sharing the same keyspace, runtime config and
// propagator.
func NewPool(n int, ks *keyspace.Keyspace, cfg *command.RuntimeConfig, prop command.Propagator, hz int, logger zerolog.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{workers: make([]*Worker, n)}
	for i := 0; i < n; i++ {
		p.workers[i] = newWorker(i, p, ks, cfg, prop, hz, logger)
	}
	return p
}

// Start launches every worker's reactor goroutine; it returns
// immediately, the workers run until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// WorkerCount returns the number of workers in the pool.
func (p *Pool) WorkerCount() int { return len(p.workers) }

func (p *Pool) workerAt(i int) *Worker { return p.workers[i] }

// Submit hands an accepted connection to worker index i, called by
// internal/master's round-robin accept loop.
func (p *Pool) Submit(i int, conn net.Conn) {
	p.workers[i].Submit(conn)
}

// Stats aggregates every worker's local counters into one INFO-ready
// snapshot.
func (p *Pool) Stats() command.Stats {
	var total command.Stats
	for _, w := range p.workers {
		s := w.Stats()
		total.Connections += s.Connections
		total.CommandsExecuted += s.CommandsExecuted
		total.ExpiredKeys += s.ExpiredKeys
		total.KeyspaceHits += s.KeyspaceHits
		total.KeyspaceMisses += s.KeyspaceMisses
	}
	return total
}

func (p *Pool) nextClientID() uint64 { return atomic.AddUint64(&p.nextID, 1) }
