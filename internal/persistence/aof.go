package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vipshop/vire/internal/resp"
)

// FsyncPolicy selects when a log writer durably fsyncs its buffered bytes
// (spec §4.5 Append-log: "always / everysec / no").
type FsyncPolicy int

const (
	FsyncAlways FsyncPolicy = iota
	FsyncEverySec
	FsyncNo
)

// ParseFsyncPolicy maps a config string to a FsyncPolicy, defaulting to
// FsyncEverySec (Redis's own default) for anything unrecognized.
func ParseFsyncPolicy(s string) FsyncPolicy {
	switch s {
	case "always":
		return FsyncAlways
	case "no":
		return FsyncNo
	default:
		return FsyncEverySec
	}
}

// appendLog is one logical database's append-only command log: a
// resp.Writer staging buffer plus the currently open file. Propagate
// writes translate straight into the staging buffer; Flush pushes it to
// the fd and, per policy, fsyncs.
type appendLog struct {
	mu sync.Mutex

	dbid    int
	ishards int
	dir     string
	policy  FsyncPolicy

	file      *os.File
	desc      Descriptor
	committed int64 // size last known to be durably on disk, for ftruncate recovery
	errored   bool

	staging    *resp.Writer
	selectSent bool
}

func newAppendLog(dir string, dbid, ishards int, policy FsyncPolicy) *appendLog {
	return &appendLog{dir: dir, dbid: dbid, ishards: ishards, policy: policy, staging: resp.NewWriter()}
}

// rotate closes the current file (if any) and opens a fresh one stamped
// with version, matching "log rotation on snapshot boundary" (spec §4.5).
func (l *appendLog) rotate(timestamp int64, version uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	l.desc = Descriptor{Kind: KindAppendLog, DBID: l.dbid, IShards: l.ishards, Timestamp: timestamp, Version: version}
	f, err := os.OpenFile(filepath.Join(l.dir, l.desc.Name()), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("persistence: opening append-log: %w", err)
	}
	l.file = f
	l.committed = 0
	l.selectSent = false
	l.errored = false
	return nil
}

// append stages argv as a multi-bulk command frame, prefixed with a
// SELECT if this is the first frame written to an empty file and dbid is
// non-zero (spec §4.5: "A SELECT <logical-db> header is prepended if the
// new file is empty").
func (l *appendLog) append(dbid int, argv [][]byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.selectSent {
		l.selectSent = true
		if dbid != 0 {
			l.writeFrame([][]byte{[]byte("SELECT"), []byte(fmt.Sprint(dbid))})
		}
	}
	l.writeFrame(argv)
}

func (l *appendLog) writeFrame(argv [][]byte) {
	l.staging.ArrayHeader(len(argv))
	for _, a := range argv {
		l.staging.Bulk(a)
	}
}

// flush pushes the staging buffer to the open fd and applies the fsync
// policy. Short writes are handled by truncating back to the last known
// committed size (spec §7: "Short writes truncate back to the previously
// committed size (ftruncate) when possible; otherwise the error is
// remembered and later writes refused until cleared").
func (l *appendLog) flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.errored || l.file == nil {
		if l.errored {
			return fmt.Errorf("persistence: append-log for db %d is in error state", l.dbid)
		}
		return nil
	}
	chunks := l.staging.Flush()
	if len(chunks) == 0 {
		return nil
	}
	var written int64
	for _, c := range chunks {
		n, err := l.file.Write(c)
		written += int64(n)
		if err != nil {
			if terr := l.file.Truncate(l.committed); terr == nil {
				l.file.Seek(l.committed, 0)
			} else {
				l.errored = true
			}
			l.staging.Reset()
			return fmt.Errorf("persistence: short write to append-log db %d: %w", l.dbid, err)
		}
	}
	l.committed += written
	l.staging.Reset()
	if l.policy == FsyncAlways {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("persistence: fsync append-log db %d: %w", l.dbid, err)
		}
	}
	return nil
}

// syncIfDue fsyncs the open file when its policy is everysec (and does
// nothing otherwise), called by the backend cron's once-a-second tick.
func (l *appendLog) syncIfDue() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil || l.policy != FsyncEverySec {
		return
	}
	l.file.Sync()
}

func (l *appendLog) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
