package command

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vipshop/vire/internal/object"
)

func TestMultiExecRunsQueuedCommands(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("MULTI"))
	require.Equal(t, "+OK\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("SET", "a", "1"))
	require.Equal(t, "+QUEUED\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("INCR", "a"))
	require.Equal(t, "+QUEUED\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("EXEC"))
	require.Equal(t, "*2\r\n+OK\r\n:2\r\n", flushed(ctx.Client))
	require.False(t, ctx.Client.Multi.Active, "MULTI state should be cleared after EXEC")
}

func TestExecWithoutMultiErrors(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("EXEC"))
	got := flushed(ctx.Client)
	require.Equal(t, byte('-'), got[0], "expected error, got %q", got)
}

func TestDiscardDropsQueue(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("MULTI"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("SET", "a", "1"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("DISCARD"))
	require.Equal(t, "+OK\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("EXISTS", "a"))
	require.Equal(t, ":0\r\n", flushed(ctx.Client), "discarded SET should not have run")
}

func TestWatchAbortsExecOnDirtyKey(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("SET", "a", "1"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("WATCH", "a"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("MULTI"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("GET", "a"))
	flushed(ctx.Client)

	// Simulate a concurrent writer touching the watched key directly
	// through the shard, as another client's SET would.
	sh := ctx.shardFor([]byte("a"))
	sh.Lock()
	sh.Set("a", object.NewRawString([]byte("2")))
	require.True(t, sh.DirtyCAS(ctx.Client.ID))
	sh.Unlock()

	Dispatch(ctx, argv("EXEC"))
	require.Equal(t, "*-1\r\n", flushed(ctx.Client), "EXEC after dirty watch should reply with a nil array")
}

func TestQueueTimeFailureAbortsExec(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("MULTI"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("NOSUCHCMD"))
	got := flushed(ctx.Client)
	require.Equal(t, byte('-'), got[0])
	Dispatch(ctx, argv("SET", "a", "1"))
	require.Equal(t, "+QUEUED\r\n", flushed(ctx.Client))

	Dispatch(ctx, argv("EXEC"))
	got = flushed(ctx.Client)
	require.Contains(t, got, "EXECABORT")

	Dispatch(ctx, argv("EXISTS", "a"))
	require.Equal(t, ":0\r\n", flushed(ctx.Client), "aborted transaction must not run its queue")
}
