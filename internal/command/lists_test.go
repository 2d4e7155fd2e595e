package command

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushPopOrdering(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("RPUSH", "l", "a", "b", "c"))
	require.Equal(t, ":3\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("LRANGE", "l", "0", "-1"))
	require.Equal(t, "*3\r\n$1\r\na\r\n$1\r\nb\r\n$1\r\nc\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("LPOP", "l"))
	require.Equal(t, "$1\r\na\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("RPOP", "l"))
	require.Equal(t, "$1\r\nc\r\n", flushed(ctx.Client))
	Dispatch(ctx, argv("LLEN", "l"))
	require.Equal(t, ":1\r\n", flushed(ctx.Client))
}

func TestBLPopServesImmediatelyWhenAvailable(t *testing.T) {
	ctx := newTestCtx(t)
	Dispatch(ctx, argv("RPUSH", "l", "x"))
	flushed(ctx.Client)
	outcome := Dispatch(ctx, argv("BLPOP", "l", "0"))
	require.Equal(t, OutcomeReplied, outcome, "expected immediate reply")
	require.Equal(t, "*2\r\n$1\r\nl\r\n$1\r\nx\r\n", flushed(ctx.Client))
}

func TestBLPopBlocksWhenEmpty(t *testing.T) {
	ctx := newTestCtx(t)
	outcome := Dispatch(ctx, argv("BLPOP", "missing", "0"))
	require.Equal(t, OutcomeBlocked, outcome)
	require.Equal(t, []string{"missing"}, ctx.Client.BlockedKeys)
}
