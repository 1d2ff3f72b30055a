package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Listen != "localhost:8080" {
		t.Errorf("listen = %q", cfg.Listen)
	}

	sup := cfg.SupervisorConfig()
	if sup.StartupTimeout != 30*time.Second {
		t.Errorf("startup timeout = %v, want 30s", sup.StartupTimeout)
	}
	if len(sup.Command) == 0 {
		t.Error("supervisor command should default")
	}

	shut := cfg.ShutdownConfig()
	if shut.RetryAttempts != 3 {
		t.Errorf("retry attempts = %d, want 3", shut.RetryAttempts)
	}
	if shut.GracefulTimeout != 30*time.Second {
		t.Errorf("graceful timeout = %v, want 30s", shut.GracefulTimeout)
	}

	bc := cfg.BroadcastConfig()
	if bc.SnapshotInterval != 2*time.Second {
		t.Errorf("snapshot interval = %v, want 2s", bc.SnapshotInterval)
	}
	if bc.HeartbeatInterval != 30*time.Second {
		t.Errorf("heartbeat interval = %v, want 30s", bc.HeartbeatInterval)
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(`
listen = "0.0.0.0:9090"

[supervisor]
command = ["mock-agent", "serve", "--port=0"]
startup_timeout = "5s"
terminate_grace = "500ms"

[shutdown]
default_timeout = "2s"
graceful_timeout = "8s"
force_timeout = "3s"
retry_attempts = 5
retry_delay = "250ms"
verbose = true

[broadcast]
snapshot_interval = "1s"
heartbeat_interval = "10s"
buffer_size = 32

[bus]
enabled = true
url = "nats://localhost:4222"
name = "workbench-test"
`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Listen != "0.0.0.0:9090" {
		t.Errorf("listen = %q", cfg.Listen)
	}

	sup := cfg.SupervisorConfig()
	if sup.Command[0] != "mock-agent" {
		t.Errorf("command = %v", sup.Command)
	}
	if sup.StartupTimeout != 5*time.Second || sup.TerminateGrace != 500*time.Millisecond {
		t.Errorf("timeouts = %v/%v", sup.StartupTimeout, sup.TerminateGrace)
	}

	shut := cfg.ShutdownConfig()
	if shut.RetryAttempts != 5 || !shut.Verbose {
		t.Errorf("shutdown = %+v", shut)
	}
	if shut.RetryDelay != 250*time.Millisecond {
		t.Errorf("retry delay = %v", shut.RetryDelay)
	}

	bc := cfg.BroadcastConfig()
	if bc.SnapshotInterval != time.Second || bc.BufferSize != 32 {
		t.Errorf("broadcast = %+v", bc)
	}

	if !cfg.Bus.Enabled {
		t.Error("bus should be enabled")
	}
	nats := cfg.NATSConfig()
	if nats.URL != "nats://localhost:4222" || nats.Name != "workbench-test" {
		t.Errorf("nats = %+v", nats)
	}
}

func TestParsePartialFileKeepsDefaults(t *testing.T) {
	cfg, err := Parse(`
[shutdown]
retry_attempts = 7
`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	shut := cfg.ShutdownConfig()
	if shut.RetryAttempts != 7 {
		t.Errorf("retry attempts = %d, want 7", shut.RetryAttempts)
	}
	if shut.GracefulTimeout != 30*time.Second {
		t.Errorf("graceful timeout = %v, want default 30s", shut.GracefulTimeout)
	}
	if cfg.Listen != "localhost:8080" {
		t.Errorf("listen = %q, want default", cfg.Listen)
	}
}

func TestParseRejectsBadContent(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"malformed toml", `listen = `},
		{"bad duration", "[supervisor]\nstartup_timeout = \"fast\""},
		{"empty listen", `listen = ""`},
		{"bus without url", "[bus]\nenabled = true"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.content); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestLoadFileMissingYieldsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Listen != "localhost:8080" {
		t.Errorf("listen = %q, want default", cfg.Listen)
	}
}

func TestLoadFileReadsContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workbench.toml")
	if err := os.WriteFile(path, []byte(`listen = "127.0.0.1:7000"`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Listen != "127.0.0.1:7000" {
		t.Errorf("listen = %q", cfg.Listen)
	}
}
