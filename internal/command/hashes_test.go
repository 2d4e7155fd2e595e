package command

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHSetHGetHDel(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("HSET", "h", "f1", "v1", "f2", "v2"))
	require.Equal(t, ":2\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("HGET", "h", "f1"))
	require.Equal(t, "$2\r\nv1\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("HLEN", "h"))
	require.Equal(t, ":2\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("HDEL", "h", "f1"))
	require.Equal(t, ":1\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("HEXISTS", "h", "f1"))
	require.Equal(t, ":0\r\n", flushed(ctx.Client))
}
