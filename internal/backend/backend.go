// Package backend implements the single backend thread spec §4.7
// assigns to active expiration and rehash stepping, separate from each
// worker's own per-connection cron (spec §4.7: "Single master thread
// plus a fixed pool of N worker threads... Plus one backend thread for
// active expiration and rehash stepping"). Grounded on the worker
// package's own ticker-driven cron loop (internal/worker/worker.go
// Run/runCron), generalized to a keyspace-wide sweep instead of a
// per-worker client sweep, and on gopsutil for the process stats INFO
// exposes.
package backend

import (
	"context"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/vipshop/vire/internal/keyspace"
)

// activeExpireSampleSize is how many keys SampleExpired draws per shard
// per tick (spec §4.4 active expiration: "samples up to 20 keys").
const activeExpireSampleSize = 20

// rehashStepSize bounds how many buckets RehashStep advances per shard
// per tick, keeping each tick's hold of a shard's lock short.
const rehashStepSize = 16

// autoSaveInterval is how often the backend considers starting a fresh
// background save of each logical database with unsaved mutations.
const autoSaveInterval = 60 * time.Second

// Propagator is the slice of persistence.Engine the backend cron drives:
// append-log flushing and rotation, the everysec fsync, and the
// incremental per-database snapshot stepping (spec §4.5, §4.7).
type Propagator interface {
	SyncEverySecond()
	FlushAppendLogs()
	BeginSnapshot(dbid int) error
	StepSnapshot(dbid int) (done bool, err error)
	RotateAppendLog(db int, version uint64) error
}

// Stats is a point-in-time snapshot of process-level resource usage,
// refreshed once per second by Run and exposed to INFO/metrics consumers.
type Stats struct {
	CPUPercent           float64
	HostCPUPercent       float64
	RSSBytes             uint64
	VMSizeBytes          uint64
	SystemMemUsedPercent float64
	Goroutines           int
}

// Backend runs the active-expiration/rehash/stats sweep across every
// shard in ks, at hz ticks per second, until ctx is cancelled.
type Backend struct {
	ks     *keyspace.Keyspace
	prop   Propagator
	hz     int
	logger zerolog.Logger

	proc *process.Process

	expiredTotal int64
	rehashTicks  int64
	lastSave     time.Time

	stats atomic.Value // Stats
}

// New returns a Backend ready to Run. prop may be nil if persistence
// isn't wired (e.g. in tests).
func New(ks *keyspace.Keyspace, prop Propagator, hz int, logger zerolog.Logger) *Backend {
	if hz <= 0 {
		hz = 1
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Backend{
		ks:       ks,
		prop:     prop,
		hz:       hz,
		logger:   logger.With().Str("component", "backend").Logger(),
		proc:     proc,
		lastSave: time.Now(),
	}
}

// Run drives the sweep loop until ctx is cancelled, matching the worker
// package's own single-owner ticker pattern.
func (b *Backend) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(b.hz))
	defer ticker.Stop()

	secondTicker := time.NewTicker(time.Second)
	defer secondTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick()
		case <-secondTicker.C:
			b.sampleProcessStats()
			if b.prop != nil {
				b.prop.SyncEverySecond()
				b.maybeBeginSaves()
			}
		}
	}
}

// tick runs one bounded pass of active expiration and rehash stepping
// across every shard (spec §4.7: "advance active expiration... advance
// rehashing").
func (b *Backend) tick() {
	for _, sh := range b.ks.All() {
		sh.Lock()
		_, deleted := sh.SampleExpired(activeExpireSampleSize)
		if deleted > 0 {
			atomic.AddInt64(&b.expiredTotal, int64(deleted))
		}
		if sh.RehashStep(rehashStepSize) {
			atomic.AddInt64(&b.rehashTicks, 1)
		}
		sh.Unlock()
	}
	if b.prop != nil {
		for db := 0; db < b.ks.LogicalDBs(); db++ {
			if _, err := b.prop.StepSnapshot(db); err != nil {
				b.logger.Error().Err(err).Int("db", db).Msg("snapshot step failed")
			}
		}
		b.prop.FlushAppendLogs()
	}
}

// maybeBeginSaves starts a background save of every logical database that
// has accumulated unsaved mutations, once per autoSaveInterval; the new
// append-log opened by the rotation carries the snapshot's version so the
// two line up on disk (spec §4.5 "Log rotation on snapshot boundary").
func (b *Backend) maybeBeginSaves() {
	if time.Since(b.lastSave) < autoSaveInterval {
		return
	}
	b.lastSave = time.Now()
	for db := 0; db < b.ks.LogicalDBs(); db++ {
		dirty := int64(0)
		for _, sh := range b.ks.ShardsForDB(db) {
			sh.RLock()
			dirty += sh.Dirty()
			sh.RUnlock()
		}
		if dirty == 0 {
			continue
		}
		if err := b.prop.BeginSnapshot(db); err != nil {
			b.logger.Warn().Err(err).Int("db", db).Msg("background save not started")
			continue
		}
		version := uint64(0)
		for _, sh := range b.ks.ShardsForDB(db) {
			sh.RLock()
			if sh.Version > version {
				version = sh.Version
			}
			sh.RUnlock()
		}
		if err := b.prop.RotateAppendLog(db, version); err != nil {
			b.logger.Warn().Err(err).Int("db", db).Msg("append-log rotation failed")
		}
		b.logger.Info().Int("db", db).Int64("dirty", dirty).Msg("background save started")
	}
}

// ExpiredTotal returns the running count of keys actively expired since
// startup.
func (b *Backend) ExpiredTotal() int64 { return atomic.LoadInt64(&b.expiredTotal) }

func (b *Backend) sampleProcessStats() {
	s := Stats{Goroutines: runtime.NumGoroutine()}
	if b.proc != nil {
		if pct, err := b.proc.CPUPercent(); err == nil {
			s.CPUPercent = pct
		}
		if mi, err := b.proc.MemoryInfo(); err == nil && mi != nil {
			s.RSSBytes = mi.RSS
			s.VMSizeBytes = mi.VMS
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.SystemMemUsedPercent = vm.UsedPercent
	}
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		s.HostCPUPercent = pcts[0]
	}
	b.stats.Store(s)
}

// Stats returns the most recently sampled process stats.
func (b *Backend) Stats() Stats {
	if v := b.stats.Load(); v != nil {
		return v.(Stats)
	}
	return Stats{}
}
