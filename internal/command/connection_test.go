package command

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPingPong(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("PING"))
	require.Equal(t, "+PONG\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("PING", "hello"))
	require.Equal(t, "$5\r\nhello\r\n", flushed(ctx.Client))
}

func TestSelectValidatesRange(t *testing.T) {
	ctx := newTestCtx(t) // keyspace.New(1, 4): only DB 0 exists
	Dispatch(ctx, argv("SELECT", "0"))
	require.Equal(t, "+OK\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("SELECT", "5"))
	got := flushed(ctx.Client)
	require.Equal(t, byte('-'), got[0], "expected error for out-of-range DB, got %q", got)
}

func TestUnknownCommand(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("NOTACOMMAND"))
	got := flushed(ctx.Client)
	require.Equal(t, byte('-'), got[0], "expected error reply, got %q", got)
}

func TestWrongArity(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("GET"))
	got := flushed(ctx.Client)
	require.Equal(t, byte('-'), got[0], "expected error reply, got %q", got)
}
