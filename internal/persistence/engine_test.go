package persistence

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vipshop/vire/internal/buf"
	"github.com/vipshop/vire/internal/command"
	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/object"
)

func TestPropagateFlushAndReloadReplaysCommands(t *testing.T) {
	dir := t.TempDir()
	ks := keyspace.New(1, 1)

	eng, err := New(dir, ks, FsyncAlways, zerolog.Nop())
	require.NoError(t, err)

	eng.Propagate(0, [][]byte{[]byte("SET"), []byte("foo"), []byte("bar")})
	eng.Propagate(0, [][]byte{[]byte("INCR"), []byte("counter")})
	eng.FlushAppendLogs()
	eng.Close()

	ks2 := keyspace.New(1, 1)
	rc := command.NewRuntimeConfig(nil)
	require.NoError(t, Load(dir, ks2, 0, rc, zerolog.Nop()))

	sh := ks2.ShardFor(0, []byte("foo"))
	sh.RLock()
	o, found := sh.LookupRead("foo")
	sh.RUnlock()
	require.True(t, found)
	require.Equal(t, "bar", string(o.StringBytes()))

	sh2 := ks2.ShardFor(0, []byte("counter"))
	sh2.RLock()
	c, found := sh2.LookupRead("counter")
	sh2.RUnlock()
	require.True(t, found)
	require.Equal(t, "1", string(c.StringBytes()))
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ks := keyspace.New(1, 1)
	sh := ks.Shard(0)
	sh.Lock()
	sh.Set("a", object.NewRawString([]byte("hello")))
	sh.Set("b", object.NewRawString([]byte("world")))
	sh.Unlock()

	eng, err := New(dir, ks, FsyncAlways, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, eng.BeginSnapshot(0))
	for {
		done, err := eng.StepSnapshot(0)
		require.NoError(t, err)
		if done {
			break
		}
	}
	eng.Close()

	ks2 := keyspace.New(1, 1)
	rc := command.NewRuntimeConfig(nil)
	require.NoError(t, Load(dir, ks2, 0, rc, zerolog.Nop()))

	sh2 := ks2.ShardFor(0, []byte("a"))
	sh2.RLock()
	o, found := sh2.LookupRead("a")
	sh2.RUnlock()
	require.True(t, found)
	require.Equal(t, "hello", string(o.StringBytes()))
}

func TestWriteBarrierCapturesPreImage(t *testing.T) {
	dir := t.TempDir()
	ks := keyspace.New(1, 1)
	sh := ks.Shard(0)
	sh.Lock()
	sh.Set("k", object.NewRawString([]byte("before")))
	sh.Unlock()

	eng, err := New(dir, ks, FsyncNo, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, eng.BeginSnapshot(0))

	// A mutator fires the barrier before overwriting, exactly as the
	// command handlers do under the shard write lock.
	sh.Lock()
	old, found, _ := sh.LookupWrite("k")
	require.True(t, found)
	eng.WriteBarrier(sh, "k", old)
	sh.Set("k", object.NewRawString([]byte("after")))
	sh.Unlock()

	for {
		done, err := eng.StepSnapshot(0)
		require.NoError(t, err)
		if done {
			break
		}
	}
	eng.Close()

	ks2 := keyspace.New(1, 1)
	require.NoError(t, Load(dir, ks2, 0, command.NewRuntimeConfig(nil), zerolog.Nop()))
	sh2 := ks2.ShardFor(0, []byte("k"))
	sh2.RLock()
	o, found := sh2.LookupRead("k")
	sh2.RUnlock()
	require.True(t, found)
	require.Equal(t, "before", string(o.StringBytes()),
		"the snapshot must hold the value as of its start, not the later overwrite")
}

func TestBigKeyChunkedSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ks := keyspace.New(1, 1)
	sh := ks.Shard(0)
	h := object.NewHash()
	for i := 0; i < 250; i++ {
		h.Hash[fmt.Sprintf("field-%03d", i)] = buf.FromBytes([]byte(fmt.Sprintf("value-%03d", i)))
	}
	sh.Lock()
	sh.Set("bighash", h)
	sh.Unlock()

	eng, err := New(dir, ks, FsyncNo, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, eng.BeginSnapshot(0))

	ticks := 0
	for {
		done, err := eng.StepSnapshot(0)
		require.NoError(t, err)
		ticks++
		if done {
			break
		}
	}
	require.GreaterOrEqual(t, ticks, 3, "a 250-field hash must be dumped across multiple chunk ticks")
	eng.Close()

	ks2 := keyspace.New(1, 1)
	require.NoError(t, Load(dir, ks2, 0, command.NewRuntimeConfig(nil), zerolog.Nop()))
	sh2 := ks2.ShardFor(0, []byte("bighash"))
	sh2.RLock()
	o, found := sh2.LookupRead("bighash")
	sh2.RUnlock()
	require.True(t, found)
	require.Len(t, o.Hash, 250)
	require.Equal(t, "value-123", string(o.Hash["field-123"].Bytes()))
}
