package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config is the fully resolved server configuration: file-format values
// from the `[common]` section (spec §6), overlaid by the handful of
// options that make sense as environment variables in container
// deployments, exactly the precedence order the teacher's LoadConfig
// documents ("ENV vars > .env file > defaults").
type Config struct {
	Listen     string `env:"VIRE_LISTEN"`
	MaxMemory  int64  `env:"-"`
	Threads    int    `env:"VIRE_THREADS"` // 0 = min(online CPUs, 6)
	Dir        string `env:"VIRE_DIR"`
	MaxClients int    `env:"VIRE_MAX_CLIENTS"`

	LogicalDBs  int `env:"-"`
	ShardsPerDB int `env:"-"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	ManageAddr string `env:"VIRE_MANAGE_ADDR" envDefault:""`
	PidFile    string `env:"VIRE_PID_FILE" envDefault:""`

	HZ int `env:"VIRE_HZ" envDefault:"10"` // cron invocations per second

	maxMemoryRaw string // as read from the file, before suffix parsing
}

// Default returns a Config populated with every default value, as if no
// file and no environment variables were present.
func Default() *Config {
	return &Config{
		Listen:       ":6380",
		Threads:      0,
		Dir:          ".",
		MaxClients:   10000,
		LogicalDBs:   16,
		ShardsPerDB:  16,
		LogLevel:     "info",
		LogFormat:    "json",
		HZ:           10,
		maxMemoryRaw: "0",
	}
}

// Load reads path (the indented config-file grammar from spec §6),
// optionally overlays a `.env` file, then overlays process environment
// variables, and validates the result. path may be empty, in which case
// only defaults plus the environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: opening %s: %w", path, err)
		}
		defer f.Close()
		sections, err := ParseFile(f)
		if err != nil {
			return nil, err
		}
		if err := cfg.applyCommonSection(sections["common"]); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load() // optional; a missing .env is not an error

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}

	mem, err := ParseMemory(cfg.maxMemoryRaw)
	if err != nil {
		return nil, err
	}
	cfg.MaxMemory = mem

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyCommonSection(sec Section) error {
	if v, ok := sec.Scalars["listen"]; ok {
		c.Listen = v
	}
	if v, ok := sec.Scalars["maxmemory"]; ok {
		c.maxMemoryRaw = v
	}
	if v, ok := sec.Scalars["threads"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: threads: %w", err)
		}
		c.Threads = n
	}
	if v, ok := sec.Scalars["dir"]; ok {
		c.Dir = v
	}
	if v, ok := sec.Scalars["max_clients"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: max_clients: %w", err)
		}
		c.MaxClients = n
	}
	return nil
}

// Validate checks the resolved configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.MaxClients < 1 {
		return fmt.Errorf("config: max_clients must be > 0, got %d", c.MaxClients)
	}
	if c.Threads < 0 {
		return fmt.Errorf("config: threads must be >= 0, got %d", c.Threads)
	}
	if c.LogicalDBs < 1 || c.ShardsPerDB < 1 {
		return fmt.Errorf("config: logical_dbs and shards_per_db must be >= 1")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log level must be one of debug/info/warn/error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "pretty":
	default:
		return fmt.Errorf("config: log format must be json or pretty, got %q", c.LogFormat)
	}
	return nil
}

// Log emits the resolved configuration as a structured log line, the way
// the teacher's Config.LogConfig does.
func (c *Config) Log(logger zerolog.Logger) {
	logger.Info().
		Str("listen", c.Listen).
		Int64("max_memory", c.MaxMemory).
		Int("threads", c.Threads).
		Str("dir", c.Dir).
		Int("max_clients", c.MaxClients).
		Int("logical_dbs", c.LogicalDBs).
		Int("shards_per_db", c.ShardsPerDB).
		Int("hz", c.HZ).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
