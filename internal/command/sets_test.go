package command

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSAddSIsMemberSRem(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("SADD", "s", "a", "b", "a"))
	require.Equal(t, ":2\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("SISMEMBER", "s", "a"))
	require.Equal(t, ":1\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("SCARD", "s"))
	require.Equal(t, ":2\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("SREM", "s", "a"))
	require.Equal(t, ":1\r\n", flushed(ctx.Client))
}

func TestSInterStore(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("SADD", "s1", "a", "b", "c"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("SADD", "s2", "b", "c", "d"))
	flushed(ctx.Client)
	Dispatch(ctx, argv("SINTERSTORE", "dest", "s1", "s2"))
	require.Equal(t, ":2\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("SCARD", "dest"))
	require.Equal(t, ":2\r\n", flushed(ctx.Client))
}

func TestSAddIntSetEncodingUpgradesOnNonInt(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("SADD", "s", "1", "2", "three"))
	require.Equal(t, ":3\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("SISMEMBER", "s", "three"))
	require.Equal(t, ":1\r\n", flushed(ctx.Client))
}
