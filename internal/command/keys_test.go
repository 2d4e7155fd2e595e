package command

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDelExists(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("SET", "a", "1"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("EXISTS", "a", "b"))
	require.Equal(t, ":1\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("DEL", "a", "b"))
	require.Equal(t, ":1\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("EXISTS", "a"))
	require.Equal(t, ":0\r\n", flushed(ctx.Client))
}

func TestExpireAndTTL(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("SET", "a", "1"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("EXPIRE", "a", "100"))
	require.Equal(t, ":1\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("TTL", "a"))
	got := flushed(ctx.Client)
	require.NotEqual(t, ":-1\r\n", got)
	require.NotEqual(t, ":-2\r\n", got)
}

func TestExpireImmediatelyDeletesPastDeadlines(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("SET", "a", "1"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("EXPIRE", "a", "-1"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("EXISTS", "a"))
	require.Equal(t, ":0\r\n", flushed(ctx.Client))
}

func TestPersistClearsTTL(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("SET", "a", "1"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("EXPIRE", "a", "100"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("PERSIST", "a"))
	require.Equal(t, ":1\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("TTL", "a"))
	require.Equal(t, ":-1\r\n", flushed(ctx.Client))
}

func TestRenameMovesTTL(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("SET", "a", "1"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("EXPIRE", "a", "100"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("RENAME", "a", "b"))
	require.Equal(t, "+OK\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("EXISTS", "a"))
	require.Equal(t, ":0\r\n", flushed(ctx.Client), "source key should be gone")
	Dispatch(ctx, argv("TTL", "b"))
	got := flushed(ctx.Client)
	require.NotEqual(t, ":-1\r\n", got, "expected carried-over TTL")
	require.NotEqual(t, ":-2\r\n", got, "expected carried-over TTL")
}

func TestTypeReportsKind(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("RPUSH", "l", "x"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("TYPE", "l"))
	require.Equal(t, "+list\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("TYPE", "nokey"))
	require.Equal(t, "+none\r\n", flushed(ctx.Client))
}
