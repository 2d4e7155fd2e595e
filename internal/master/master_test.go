package master

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// recordingDispatcher implements Dispatcher and records which worker
// index each connection was assigned to, so the round-robin cursor can
// be verified without pulling in internal/worker.
type recordingDispatcher struct {
	mu      sync.Mutex
	count   int
	assigns []int
}

func (d *recordingDispatcher) WorkerCount() int { return d.count }

func (d *recordingDispatcher) Submit(i int, conn net.Conn) {
	d.mu.Lock()
	d.assigns = append(d.assigns, i)
	d.mu.Unlock()
	conn.Close()
}

func TestRoundRobinDispatch(t *testing.T) {
	disp := &recordingDispatcher{count: 3}
	m, err := New("127.0.0.1:0", disp, 0, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Serve(ctx)

	for i := 0; i < 6; i++ {
		conn, err := net.Dial("tcp", m.Addr().String())
		require.NoError(t, err)
		conn.Close()
	}

	require.Eventually(t, func() bool {
		disp.mu.Lock()
		defer disp.mu.Unlock()
		return len(disp.assigns) == 6
	}, time.Second, 10*time.Millisecond)

	disp.mu.Lock()
	defer disp.mu.Unlock()
	for i, w := range disp.assigns {
		require.Equal(t, i%3, w)
	}
}
