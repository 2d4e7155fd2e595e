package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescriptorNameRoundTrip(t *testing.T) {
	d := Descriptor{Kind: KindSnapshot, DBID: 3, IShards: 16, Timestamp: 1234567, Version: 9}
	parsed, ok := ParseName(d.Name())
	require.True(t, ok)
	require.Equal(t, d, parsed)
}

func TestParseNameRejectsGarbage(t *testing.T) {
	for _, name := range []string{"not_a_valid_name", "rdb_1_2_3", "xyz_1_2_3_4", "rdb_a_2_3_4"} {
		_, ok := ParseName(name)
		require.False(t, ok, "expected %q to be rejected", name)
	}
}

func TestGroupByDBElectsNewestSnapshotAndOrdersLogs(t *testing.T) {
	descs := []Descriptor{
		{Kind: KindSnapshot, DBID: 0, Timestamp: 100},
		{Kind: KindSnapshot, DBID: 0, Timestamp: 300},
		{Kind: KindSnapshot, DBID: 0, Timestamp: 200},
		{Kind: KindAppendLog, DBID: 0, Timestamp: 250},
		{Kind: KindAppendLog, DBID: 0, Timestamp: 150},
		{Kind: KindAppendLog, DBID: 0, Timestamp: 350},
		{Kind: KindSnapshotTemp, DBID: 0, Timestamp: 400},
	}
	groups := GroupByDB(descs)
	g, ok := groups[0]
	require.True(t, ok)

	base, tail := g.ReplayTail()
	require.NotNil(t, base)
	require.Equal(t, int64(300), base.Timestamp)
	// The log stamped 250 predates the elected base (300), so only 350 replays.
	require.Len(t, tail, 1)
	require.Equal(t, int64(350), tail[0].Timestamp)
	require.Equal(t, int64(150), g.AppendLogs[0].Timestamp)
}

func TestReplayTailWithNoSnapshotReplaysEverything(t *testing.T) {
	descs := []Descriptor{
		{Kind: KindAppendLog, DBID: 1, Timestamp: 10},
		{Kind: KindAppendLog, DBID: 1, Timestamp: 5},
	}
	g := GroupByDB(descs)[1]
	base, tail := g.ReplayTail()
	require.Nil(t, base)
	require.Len(t, tail, 2)
	require.Equal(t, int64(5), tail[0].Timestamp)
	require.Equal(t, int64(10), tail[1].Timestamp)
}
