// Package master implements the accept loop: bind the configured TCP
// port, accept connections, and hand each one to a worker round-robin
// (spec §4.3 "The master thread binds to the configured TCP port, calls
// accept, and hands each new connection to a worker... round-robin is
// the default; the master keeps a cursor"), grounded on the teacher's
// `net.Listen` + `Server.Start` accept pattern (`src/server.go`,
// `ws/server.go`) and its `MessageRouter.AssignClient` round-robin
// assignment (`src/sharded/router.go`).
package master

import (
	"context"
	"errors"
	"net"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Dispatcher is the subset of worker.Pool the master needs: how many
// workers there are, and how to hand one an accepted connection.
type Dispatcher interface {
	WorkerCount() int
	Submit(i int, conn net.Conn)
}

// Master owns the listening socket and the round-robin cursor.
type Master struct {
	listener net.Listener
	pool     Dispatcher
	cursor   uint64
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// New binds addr and returns a Master ready to Serve. acceptsPerSecond
// throttles how fast the master hands off new connections, guarding
// workers against an accept storm (spec §5 resource model); 0 disables
// throttling.
func New(addr string, pool Dispatcher, acceptsPerSecond int, logger zerolog.Logger) (*Master, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	var limiter *rate.Limiter
	if acceptsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(acceptsPerSecond), acceptsPerSecond)
	}
	return &Master{
		listener: ln,
		pool:     pool,
		limiter:  limiter,
		logger:   logger.With().Str("component", "master").Logger(),
	}, nil
}

// Addr returns the bound address, useful when the configured port was 0.
func (m *Master) Addr() net.Addr { return m.listener.Addr() }

// Serve runs the accept loop until ctx is cancelled or the listener
// fails. It never returns a non-nil error on a clean shutdown triggered
// by ctx.
func (m *Master) Serve(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			m.listener.Close()
		case <-done:
		}
	}()
	defer close(done)

	for {
		conn, err := m.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Temporary() {
				continue
			}
			m.logger.Error().Err(err).Msg("accept failed")
			return err
		}
		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				conn.Close()
				continue
			}
		}
		m.dispatch(conn)
	}
}

// dispatch hands conn to the next worker in round-robin order.
func (m *Master) dispatch(conn net.Conn) {
	n := m.pool.WorkerCount()
	if n <= 0 {
		conn.Close()
		return
	}
	idx := int((atomic.AddUint64(&m.cursor, 1) - 1) % uint64(n))
	m.pool.Submit(idx, conn)
}

// Close stops accepting new connections.
func (m *Master) Close() error { return m.listener.Close() }
