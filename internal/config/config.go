// Package config loads harness configuration from environment variables and
// an optional YAML suite manifest.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "crucible.db"
	defaultCycleDelay = 100 * time.Millisecond

	envListenAddr = "CRUCIBLE_LISTEN_ADDR"
	envDBPath     = "CRUCIBLE_DB_PATH"
	envLogLevel   = "CRUCIBLE_LOG_LEVEL"
	envCycleDelay = "CRUCIBLE_CYCLE_DELAY_MS"
	envSuiteFile  = "CRUCIBLE_SUITE_FILE"
)

// Config holds application configuration. Environment variables take
// precedence over the suite manifest, which takes precedence over defaults.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
	SuiteName  string
	CycleDelay time.Duration
}

// manifest is the YAML suite file schema.
type manifest struct {
	Suite        string `yaml:"suite"`
	DBPath       string `yaml:"db_path"`
	LogLevel     string `yaml:"log_level"`
	ListenAddr   string `yaml:"listen_addr"`
	CycleDelayMS int    `yaml:"cycle_delay_ms"`
}

// Load reads configuration from the optional suite manifest named by
// CRUCIBLE_SUITE_FILE, then applies environment overrides.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		DBPath:     defaultDBPath,
		LogLevel:   slog.LevelInfo,
		CycleDelay: defaultCycleDelay,
	}

	if path := os.Getenv(envSuiteFile); path != "" {
		if err := cfg.applyManifest(path); err != nil {
			return cfg, err
		}
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envCycleDelay); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return cfg, fmt.Errorf("invalid %s: %q", envCycleDelay, v)
		}
		cfg.CycleDelay = time.Duration(ms) * time.Millisecond
	}

	return cfg, nil
}

// applyManifest merges a YAML suite file into the config.
func (c *Config) applyManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read suite file: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse suite file %s: %w", path, err)
	}

	if m.Suite != "" {
		c.SuiteName = m.Suite
	}
	if m.DBPath != "" {
		c.DBPath = m.DBPath
	}
	if m.ListenAddr != "" {
		c.ListenAddr = m.ListenAddr
	}
	if m.LogLevel != "" {
		c.LogLevel = parseLogLevel(m.LogLevel)
	}
	if m.CycleDelayMS > 0 {
		c.CycleDelay = time.Duration(m.CycleDelayMS) * time.Millisecond
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
