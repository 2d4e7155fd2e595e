package command

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDBSizeAndFlushDB(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("MSET", "a", "1", "b", "2"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("DBSIZE"))
	require.Equal(t, ":2\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("FLUSHDB"))
	require.Equal(t, "+OK\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("DBSIZE"))
	require.Equal(t, ":0\r\n", flushed(ctx.Client))
}

func TestConfigGetSet(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("CONFIG", "SET", "maxmemory", "100mb"))
	require.Equal(t, "+OK\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("CONFIG", "GET", "maxmemory"))
	require.Equal(t, "*2\r\n$9\r\nmaxmemory\r\n$5\r\n100mb\r\n", flushed(ctx.Client))
}

func TestClientGetNameSetName(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("CLIENT", "SETNAME", "myconn"))
	require.Equal(t, "+OK\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("CLIENT", "GETNAME"))
	require.Equal(t, "$6\r\nmyconn\r\n", flushed(ctx.Client))
}
