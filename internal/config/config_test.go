package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen != ":6380" {
		t.Fatalf("got %q", cfg.Listen)
	}
	if cfg.MaxClients != 10000 {
		t.Fatalf("got %d", cfg.MaxClients)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vire.conf")
	body := "[common]\nlisten: 0.0.0.0:7000\nmaxmemory: 64mb\nthreads: 4\nmax_clients: 500\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen != "0.0.0.0:7000" {
		t.Fatalf("got %q", cfg.Listen)
	}
	if cfg.MaxMemory != 64*1024*1024 {
		t.Fatalf("got %d", cfg.MaxMemory)
	}
	if cfg.Threads != 4 {
		t.Fatalf("got %d", cfg.Threads)
	}
	if cfg.MaxClients != 500 {
		t.Fatalf("got %d", cfg.MaxClients)
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for bad log level")
	}
}

func TestValidateRejectsZeroMaxClients(t *testing.T) {
	cfg := Default()
	cfg.MaxClients = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero max clients")
	}
}
