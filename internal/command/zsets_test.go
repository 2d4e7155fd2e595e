package command

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZAddZScoreZRange(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("ZADD", "z", "1", "a", "2", "b", "3", "c"))
	require.Equal(t, ":3\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("ZSCORE", "z", "b"))
	require.Equal(t, "$1\r\n2\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("ZRANGE", "z", "0", "-1"))
	require.Equal(t, "*3\r\n$1\r\na\r\n$1\r\nb\r\n$1\r\nc\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("ZCARD", "z"))
	require.Equal(t, ":3\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("ZREM", "z", "a"))
	require.Equal(t, ":1\r\n", flushed(ctx.Client))
}
