// Command vire is the server entrypoint: it loads configuration, wires
// together the keyspace, the worker pool, the master accept loop,
// persistence, the backend cron, metrics, the admin surface and
// (optionally) the NATS changefeed, then runs until an interrupt or
// TERM signal asks it to shut down.
//
// Grounded on the teacher's own entrypoint (`src/main.go`): a flag for a
// debug override, GOMAXPROCS reporting via go.uber.org/automaxprocs,
// signal-channel-driven shutdown, and a structured zerolog logger built
// from the resolved log level/format exactly as `src/logger.go` does.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/vipshop/vire/internal/assert"
	"github.com/vipshop/vire/internal/backend"
	"github.com/vipshop/vire/internal/changefeed"
	"github.com/vipshop/vire/internal/command"
	"github.com/vipshop/vire/internal/config"
	"github.com/vipshop/vire/internal/keyspace"
	"github.com/vipshop/vire/internal/manage"
	"github.com/vipshop/vire/internal/master"
	"github.com/vipshop/vire/internal/metrics"
	"github.com/vipshop/vire/internal/object"
	"github.com/vipshop/vire/internal/persistence"
	"github.com/vipshop/vire/internal/worker"
)

const serverVersion = "0.3.0"

func main() {
	var (
		configPath  = flag.String("c", "", "path to the server configuration file")
		testConf    = flag.Bool("t", false, "validate the configuration and exit")
		showVersion = flag.Bool("V", false, "print the version and exit")
		logLevel    = flag.String("v", "", "log level override (debug/info/warn/error)")
		logFile     = flag.String("o", "", "log file path (default stdout)")
		pidFile     = flag.String("p", "", "pid file path override")
		threadsArg  = flag.Int("T", 0, "worker threads override (0 = use configuration)")
		manageAddr  = flag.String("a", "", "manage address override (host:port)")
		statsDict   = flag.Bool("D", false, "print the stats field dictionary and exit")
		debug       = flag.Bool("debug", false, "enable debug logging (overrides the log level)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("vire %s\n", serverVersion)
		return
	}
	if *statsDict {
		for _, name := range []string{
			"connected_clients", "total_commands_processed", "expired_keys",
			"keyspace_hits", "keyspace_misses", "rdb_changes_since_last_save",
			"rdb_bgsave_in_progress",
		} {
			fmt.Println(name)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if *testConf {
		if err != nil {
			fmt.Fprintf(os.Stderr, "vire: configuration invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("configuration OK")
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "vire: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if *pidFile != "" {
		cfg.PidFile = *pidFile
	}
	if *threadsArg > 0 {
		cfg.Threads = *threadsArg
	}
	if *manageAddr != "" {
		cfg.ManageAddr = *manageAddr
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat, *logFile)
	assert.SetLogger(&logger)
	cfg.Log(logger)

	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("automaxprocs applied")

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
		if threads > 6 {
			threads = 6
		}
	}

	ks := keyspace.New(cfg.LogicalDBs, cfg.ShardsPerDB)
	rc := command.NewRuntimeConfig(map[string]string{
		"maxmemory":   fmt.Sprintf("%d", cfg.MaxMemory),
		"max_clients": fmt.Sprintf("%d", cfg.MaxClients),
	})

	persist, err := persistence.New(cfg.Dir, ks, persistence.FsyncEverySec, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open persistence engine")
	}
	defer persist.Close()

	for db := 0; db < cfg.LogicalDBs; db++ {
		if err := persistence.Load(cfg.Dir, ks, db, rc, logger); err != nil {
			logger.Fatal().Err(err).Int("db", db).Msg("failed to load persisted data")
		}
	}

	prop := command.Propagator(persist)
	if feedCfg, ok := loadChangefeedConfig(); ok {
		feed, err := changefeed.Connect(feedCfg, logger)
		if err != nil {
			logger.Error().Err(err).Msg("changefeed disabled: connect failed")
		} else {
			defer feed.Close()
			prop = fanoutPropagator{persist: persist, feed: feed}
			logger.Info().Str("url", feedCfg.URL).Msg("changefeed enabled")
		}
	}

	pool := worker.NewPool(threads, ks, rc, prop, cfg.HZ, logger)

	m, err := master.New(cfg.Listen, pool, 0, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("listen", cfg.Listen).Msg("failed to bind")
	}

	reg := metrics.New()

	be := backend.New(ks, persist, cfg.HZ, logger)

	var mgmt *manage.Server
	if cfg.ManageAddr != "" {
		mgmt = manage.New(cfg.ManageAddr, os.Getenv("VIRE_MANAGE_SECRET"), pool, reg, logger)
	}

	if cfg.PidFile != "" {
		if err := os.WriteFile(cfg.PidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
			logger.Warn().Err(err).Str("path", cfg.PidFile).Msg("failed to write pid file")
		} else {
			defer os.Remove(cfg.PidFile)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	go be.Run(ctx)
	go runMetricsSampler(ctx, pool, be, reg, rc)

	serveErr := make(chan error, 1)
	go func() { serveErr <- m.Serve(ctx) }()

	if mgmt != nil {
		go func() {
			if err := mgmt.ListenAndServe(); err != nil {
				logger.Warn().Err(err).Msg("manage server stopped")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("accept loop exited unexpectedly")
		}
	}

	cancel()
	m.Close()
	if mgmt != nil {
		mgmt.Close()
	}
	persist.FlushAppendLogs()
	logger.Info().Msg("shutdown complete")
}

// fanoutPropagator sends every write to both the durable append-log
// engine and the external changefeed publisher. Only persist implements
// a real WriteBarrier (feed's is an intentional no-op), so snapshot
// consistency is unaffected by fanning writes out to the feed as well.
type fanoutPropagator struct {
	persist *persistence.Engine
	feed    *changefeed.Publisher
}

func (f fanoutPropagator) Propagate(db int, argv [][]byte) {
	f.persist.Propagate(db, argv)
	f.feed.Propagate(db, argv)
}

func (f fanoutPropagator) WriteBarrier(sh *keyspace.Shard, key string, obj *object.Object) {
	f.persist.WriteBarrier(sh, key, obj)
}

// loadChangefeedConfig builds a changefeed.Config from environment
// variables; the changefeed is optional, so an unset URL disables it
// entirely rather than failing startup.
func loadChangefeedConfig() (changefeed.Config, bool) {
	url := os.Getenv("VIRE_CHANGEFEED_URL")
	if url == "" {
		return changefeed.Config{}, false
	}
	return changefeed.Config{
		URL:           url,
		StreamName:    envOr("VIRE_CHANGEFEED_STREAM", "VIRE_CHANGES"),
		SubjectPrefix: envOr("VIRE_CHANGEFEED_SUBJECT", "vire.changes"),
		MaxAge:        24 * time.Hour,
		MaxMsgs:       -1,
		MaxBytes:      -1,
	}, true
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// runMetricsSampler folds worker and backend stats into the Prometheus
// registry once per second until ctx is cancelled.
func runMetricsSampler(ctx context.Context, pool *worker.Pool, be *backend.Backend, reg *metrics.Registry, rc *command.RuntimeConfig) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.ObserveWorkerStats(pool.Stats())
			s := be.Stats()
			rc.SetUsedMemory(int64(s.RSSBytes))
			reg.ObserveProcessSample(metrics.ProcessSample{
				CPUPercent:           s.CPUPercent,
				RSSBytes:             s.RSSBytes,
				Goroutines:           s.Goroutines,
				SystemMemUsedPercent: s.SystemMemUsedPercent,
			})
		}
	}
}

// newLogger builds the structured zerolog.Logger every component shares,
// matching the teacher's NewLogger (src/logger.go): JSON by default,
// console-pretty for local development, level parsed from the resolved
// configuration.
func newLogger(level, format, path string) zerolog.Logger {
	var output io.Writer = os.Stdout
	if path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			output = f
		} else {
			fmt.Fprintf(os.Stderr, "vire: cannot open log file %s: %v, logging to stdout\n", path, err)
		}
	}
	if format == "pretty" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(output).With().Timestamp().Str("service", "vire").Logger()
}
