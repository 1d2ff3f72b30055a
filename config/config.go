// Package config loads workbench configuration from a TOML file and maps it
// onto the per-package configuration structs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/codedeck/workbench/broadcast"
	"github.com/codedeck/workbench/cleanup"
	"github.com/codedeck/workbench/supervisor"
)

// duration decodes TOML strings like "30s" or "500ms".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d duration) or(fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return time.Duration(d)
}

// Config is the full workbench configuration.
type Config struct {
	// Listen is the HTTP listen address for the dashboard API.
	Listen string `toml:"listen"`

	Supervisor Supervisor `toml:"supervisor"`
	Shutdown   Shutdown   `toml:"shutdown"`
	Broadcast  Broadcast  `toml:"broadcast"`
	Bus        Bus        `toml:"bus"`
}

// Supervisor configures agent server spawning.
type Supervisor struct {
	Command        []string `toml:"command"`
	StartupTimeout duration `toml:"startup_timeout"`
	TerminateGrace duration `toml:"terminate_grace"`
}

// Shutdown configures the two-phase shutdown coordinator.
type Shutdown struct {
	DefaultTimeout  duration `toml:"default_timeout"`
	GracefulTimeout duration `toml:"graceful_timeout"`
	ForceTimeout    duration `toml:"force_timeout"`
	RetryAttempts   int      `toml:"retry_attempts"`
	RetryDelay      duration `toml:"retry_delay"`
	Verbose         bool     `toml:"verbose"`
}

// Broadcast configures the live-update stream.
type Broadcast struct {
	SnapshotInterval  duration `toml:"snapshot_interval"`
	HeartbeatInterval duration `toml:"heartbeat_interval"`
	BufferSize        int      `toml:"buffer_size"`
}

// Bus configures the optional NATS relay for detached dashboards.
type Bus struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Name    string `toml:"name"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Listen: "localhost:8080",
	}
}

// LoadFile loads configuration from a TOML file. A missing file yields the
// defaults; a malformed file is an error.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(string(content))
}

// Parse parses configuration from TOML content.
func Parse(content string) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration by building and validating every
// per-package config.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	sup := c.SupervisorConfig()
	if err := sup.Validate(); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	shut := c.ShutdownConfig()
	if err := shut.Validate(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := c.BroadcastConfig().Validate(); err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	if c.Bus.Enabled && c.Bus.URL == "" {
		return fmt.Errorf("bus: url is required when enabled")
	}
	return nil
}

// SupervisorConfig maps onto supervisor.Config.
func (c *Config) SupervisorConfig() supervisor.Config {
	def := supervisor.DefaultConfig()
	cfg := supervisor.Config{
		Command:        c.Supervisor.Command,
		StartupTimeout: c.Supervisor.StartupTimeout.or(def.StartupTimeout),
		TerminateGrace: c.Supervisor.TerminateGrace.or(def.TerminateGrace),
	}
	if len(cfg.Command) == 0 {
		cfg.Command = def.Command
	}
	return cfg
}

// ShutdownConfig maps onto cleanup.Config.
func (c *Config) ShutdownConfig() cleanup.Config {
	def := cleanup.DefaultConfig()
	cfg := cleanup.Config{
		DefaultTimeout:  c.Shutdown.DefaultTimeout.or(def.DefaultTimeout),
		GracefulTimeout: c.Shutdown.GracefulTimeout.or(def.GracefulTimeout),
		ForceTimeout:    c.Shutdown.ForceTimeout.or(def.ForceTimeout),
		RetryAttempts:   c.Shutdown.RetryAttempts,
		RetryDelay:      c.Shutdown.RetryDelay.or(def.RetryDelay),
		Verbose:         c.Shutdown.Verbose,
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	return cfg
}

// BroadcastConfig maps onto broadcast.Config.
func (c *Config) BroadcastConfig() broadcast.Config {
	def := broadcast.DefaultConfig()
	cfg := broadcast.Config{
		SnapshotInterval:  c.Broadcast.SnapshotInterval.or(def.SnapshotInterval),
		HeartbeatInterval: c.Broadcast.HeartbeatInterval.or(def.HeartbeatInterval),
		BufferSize:        c.Broadcast.BufferSize,
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = def.BufferSize
	}
	return cfg
}

// NATSConfig maps onto broadcast.NATSConfig. Only meaningful when
// Bus.Enabled is set.
func (c *Config) NATSConfig() broadcast.NATSConfig {
	cfg := broadcast.DefaultNATSConfig()
	if c.Bus.URL != "" {
		cfg.URL = c.Bus.URL
	}
	if c.Bus.Name != "" {
		cfg.Name = c.Bus.Name
	}
	return cfg
}
