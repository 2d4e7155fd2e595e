package backend

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/object"
)

type countingPropagator struct {
	calls int
}

func (c *countingPropagator) SyncEverySecond() { c.calls++ }

func (c *countingPropagator) FlushAppendLogs() {}

func (c *countingPropagator) BeginSnapshot(dbid int) error { return nil }

func (c *countingPropagator) StepSnapshot(dbid int) (bool, error) { return true, nil }

func (c *countingPropagator) RotateAppendLog(db int, version uint64) error { return nil }

func TestTickActivelyExpiresKeys(t *testing.T) {
	ks := keyspace.New(1, 1)
	sh := ks.Shard(0)
	sh.Lock()
	sh.Set("expired", object.NewRawString([]byte("v")))
	sh.SetExpire("expired", time.Now().Add(-time.Second).UnixMilli())
	sh.Unlock()

	b := New(ks, nil, 50, zerolog.Nop())
	b.tick()

	require.Equal(t, int64(1), b.ExpiredTotal())
	sh.RLock()
	_, found := sh.LookupRead("expired")
	sh.RUnlock()
	require.False(t, found)
}

func TestRunSamplesProcessStatsAndSyncs(t *testing.T) {
	ks := keyspace.New(1, 1)
	prop := &countingPropagator{}
	b := New(ks, prop, 50, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	require.Eventually(t, func() bool {
		return prop.calls > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	s := b.Stats()
	require.GreaterOrEqual(t, s.Goroutines, 1)
}
