package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFsyncPolicy(t *testing.T) {
	require.Equal(t, FsyncAlways, ParseFsyncPolicy("always"))
	require.Equal(t, FsyncNo, ParseFsyncPolicy("no"))
	require.Equal(t, FsyncEverySec, ParseFsyncPolicy("everysec"))
	require.Equal(t, FsyncEverySec, ParseFsyncPolicy("garbage"))
}

func TestAppendLogSelectPrefixOnlyForNonzeroDB(t *testing.T) {
	dir := t.TempDir()

	l := newAppendLog(dir, 2, 1, FsyncAlways)
	require.NoError(t, l.rotate(1000, 0))
	l.append(2, [][]byte{[]byte("SET"), []byte("k"), []byte("v")})
	require.NoError(t, l.flush())
	l.close()

	raw, err := os.ReadFile(filepath.Join(dir, l.desc.Name()))
	require.NoError(t, err)
	require.Contains(t, string(raw), "SELECT")
	require.Contains(t, string(raw), "SET")
}

func TestAppendLogNoSelectPrefixForDBZero(t *testing.T) {
	dir := t.TempDir()

	l := newAppendLog(dir, 0, 1, FsyncAlways)
	require.NoError(t, l.rotate(1000, 0))
	l.append(0, [][]byte{[]byte("SET"), []byte("k"), []byte("v")})
	require.NoError(t, l.flush())
	l.close()

	raw, err := os.ReadFile(filepath.Join(dir, l.desc.Name()))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "SELECT")
}
