package worker

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vipshop/vire/internal/command"
	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/object"
)

type nopPropagator struct{}

func (nopPropagator) Propagate(db int, argv [][]byte) {}

func (nopPropagator) WriteBarrier(sh *keyspace.Shard, key string, obj *object.Object) {}

func newTestPool(t *testing.T, n int) (*Pool, context.CancelFunc) {
	t.Helper()
	ks := keyspace.New(1, 4)
	cfg := command.NewRuntimeConfig(map[string]string{})
	pool := NewPool(n, ks, cfg, nopPropagator{}, 50, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	return pool, cancel
}

// TestSetGetOverRealSocket drives the literal end-to-end scenario the
// module-map review called out as impossible before this package existed:
// SET foo bar / GET foo over a real net.Conn, through the worker reactor.
func TestSetGetOverRealSocket(t *testing.T) {
	pool, cancel := newTestPool(t, 1)
	defer cancel()

	client, server := net.Pipe()
	defer client.Close()
	pool.Submit(0, server)

	w := bufio.NewWriter(client)
	r := bufio.NewReader(client)

	_, err := w.WriteString("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+OK\r\n", line)

	_, err = w.WriteString("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n")
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	header, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "$3\r\n", header)
	body := make([]byte, 5)
	_, err = readFull(r, body)
	require.NoError(t, err)
	require.Equal(t, "bar\r\n", string(body))
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// TestBlockingPopWakesOnPush exercises the blocking-keys wakeup path: a
// BLPOP on an empty list parks the client, an RPUSH from a second
// connection marks the key ready, and the worker cron must drain it and
// reply within a couple of ticks.
func TestBlockingPopWakesOnPush(t *testing.T) {
	pool, cancel := newTestPool(t, 1)
	defer cancel()

	blockerClient, blockerServer := net.Pipe()
	defer blockerClient.Close()
	pool.Submit(0, blockerServer)

	pusherClient, pusherServer := net.Pipe()
	defer pusherClient.Close()
	pool.Submit(0, pusherServer)

	bw := bufio.NewWriter(blockerClient)
	br := bufio.NewReader(blockerClient)
	_, err := bw.WriteString("*3\r\n$5\r\nBLPOP\r\n$1\r\nq\r\n$1\r\n0\r\n")
	require.NoError(t, err)
	require.NoError(t, bw.Flush())

	// Give the worker a chance to register the blocker before pushing.
	time.Sleep(20 * time.Millisecond)

	pw := bufio.NewWriter(pusherClient)
	pr := bufio.NewReader(pusherClient)
	_, err = pw.WriteString("*3\r\n$5\r\nRPUSH\r\n$1\r\nq\r\n$2\r\nhi\r\n")
	require.NoError(t, err)
	require.NoError(t, pw.Flush())
	reply, err := pr.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ":1\r\n", reply)

	blockerClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	header, err := br.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "*2\r\n", header)
}

// TestClientListAcrossWorkers drives the cross-worker jump protocol: three
// connections spread over two workers, and a CLIENT LIST issued on one of
// them must come back with one line per live client, no duplicates,
// regardless of which worker each connection landed on.
func TestClientListAcrossWorkers(t *testing.T) {
	pool, cancel := newTestPool(t, 2)
	defer cancel()

	conns := make([]net.Conn, 3)
	for i := range conns {
		client, server := net.Pipe()
		defer client.Close()
		pool.Submit(i%2, server)
		conns[i] = client
	}
	// Let every worker register its connections before asking for the list.
	time.Sleep(50 * time.Millisecond)

	w := bufio.NewWriter(conns[0])
	r := bufio.NewReader(conns[0])
	_, err := w.WriteString("*2\r\n$6\r\nCLIENT\r\n$4\r\nLIST\r\n")
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	conns[0].SetReadDeadline(time.Now().Add(2 * time.Second))
	header, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, byte('$'), header[0])
	n, err := strconv.Atoi(strings.TrimSpace(header[1:]))
	require.NoError(t, err)
	body := make([]byte, n+2)
	_, err = readFull(r, body)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(body[:n]), "\n"), "\n")
	require.Len(t, lines, 3)
	seen := make(map[string]bool)
	for _, line := range lines {
		require.Contains(t, line, "id=")
		id := strings.Fields(line)[0]
		require.False(t, seen[id], "duplicate client line: %s", line)
		seen[id] = true
	}
}

// TestConnectionStaysLiveAfterJump pipelines a GET behind a CLIENT LIST on
// a two-worker pool: the jump must hand the connection back to its origin
// worker with no bytes lost, so the GET still gets its reply.
func TestConnectionStaysLiveAfterJump(t *testing.T) {
	pool, cancel := newTestPool(t, 2)
	defer cancel()

	client, server := net.Pipe()
	defer client.Close()
	pool.Submit(0, server)

	w := bufio.NewWriter(client)
	r := bufio.NewReader(client)

	_, err := w.WriteString("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+OK\r\n", line)

	_, err = w.WriteString("*2\r\n$6\r\nCLIENT\r\n$4\r\nLIST\r\n*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n")
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	header, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, byte('$'), header[0])
	n, err := strconv.Atoi(strings.TrimSpace(header[1:]))
	require.NoError(t, err)
	body := make([]byte, n+2)
	_, err = readFull(r, body)
	require.NoError(t, err)

	header, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "$3\r\n", header)
	val := make([]byte, 5)
	_, err = readFull(r, val)
	require.NoError(t, err)
	require.Equal(t, "bar\r\n", string(val))
}
