package object

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIntStringBytes(t *testing.T) {
	o := NewInt(42)
	require.Equal(t, "42", string(o.StringBytes()))
	o = NewInt(-7)
	require.Equal(t, "-7", string(o.StringBytes()))
}

func TestCloneForWriteOnlyCopiesShared(t *testing.T) {
	o := NewRawString([]byte("hello"))
	require.Same(t, o, o.CloneForWrite(), "non-shared object should not be cloned")

	o.MarkShared()
	clone := o.CloneForWrite()
	require.NotSame(t, o, clone, "shared object must be cloned")
	require.False(t, clone.IsShared(), "clone must not be shared")

	clone.Str.AppendString(" world")
	require.NotEqual(t, string(o.Str.Bytes()), string(clone.Str.Bytes()), "mutating the clone must not affect the original")
}

func TestTouchUpdatesIdleTime(t *testing.T) {
	o := NewInt(1)
	o.Touch()
	require.LessOrEqual(t, o.IdleMillis(), int64(1000), "expected small idle time right after Touch")
}

func TestKindStrings(t *testing.T) {
	cases := map[Kind]string{
		KindString: "string",
		KindList:   "list",
		KindSet:    "set",
		KindHash:   "hash",
		KindZSet:   "zset",
	}
	for k, want := range cases {
		require.Equal(t, want, k.String(), "kind %d", k)
	}
}
