package supervisor

import (
	"context"
	"testing"
	"time"

	werrors "github.com/codedeck/workbench/errors"
)

// shCommand builds a Config whose "agent server" is a shell script.
func shCommand(script string, startupTimeout time.Duration) Config {
	return Config{
		Command:        []string{"/bin/sh", "-c", script},
		StartupTimeout: startupTimeout,
		TerminateGrace: 200 * time.Millisecond,
	}
}

func TestSpawnDiscoversAnnouncedPort(t *testing.T) {
	s := New(shCommand(`echo "opencode server listening on http://127.0.0.1:54321"; sleep 30`, 5*time.Second), nil)

	p, err := s.Spawn(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer s.Terminate(context.Background(), p)

	if p.Port != 54321 {
		t.Errorf("expected port 54321, got %d", p.Port)
	}
	if p.PID <= 0 {
		t.Errorf("expected positive pid, got %d", p.PID)
	}
	if p.StartTime.IsZero() {
		t.Error("expected start time recorded")
	}
	if !s.IsAlive(p.PID) {
		t.Error("expected spawned process alive")
	}
}

func TestSpawnIgnoresNoiseBeforeAnnouncement(t *testing.T) {
	script := `echo "loading config"; echo "opencode server listening on https://localhost:8099"; sleep 30`
	s := New(shCommand(script, 5*time.Second), nil)

	p, err := s.Spawn(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer s.Terminate(context.Background(), p)

	if p.Port != 8099 {
		t.Errorf("expected port 8099, got %d", p.Port)
	}
}

func TestSpawnFailsOnStderrOutput(t *testing.T) {
	s := New(shCommand(`echo "fatal: no model configured" 1>&2; sleep 10`, 5*time.Second), nil)

	_, err := s.Spawn(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("expected spawn failure")
	}
	if !werrors.Is(err, werrors.ErrCodeSpawnFailed) {
		t.Errorf("expected SPAWN_FAILED, got %v", err)
	}
	var werr *werrors.Error
	if e, ok := err.(*werrors.Error); ok {
		werr = e
	} else {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if werr.Metadata()["stderr"] != "fatal: no model configured" {
		t.Errorf("expected captured stderr line, got %v", werr.Metadata())
	}
}

func TestSpawnFailsOnEarlyExit(t *testing.T) {
	s := New(shCommand(`echo "starting"; exit 3`, 5*time.Second), nil)

	_, err := s.Spawn(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("expected spawn failure")
	}
	if !werrors.Is(err, werrors.ErrCodeSpawnFailed) {
		t.Errorf("expected SPAWN_FAILED, got %v", err)
	}
}

func TestSpawnTimesOutWhenPortNeverAnnounced(t *testing.T) {
	s := New(shCommand(`sleep 30`, 200*time.Millisecond), nil)

	start := time.Now()
	_, err := s.Spawn(context.Background(), t.TempDir())
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected timeout")
	}
	if !werrors.Is(err, werrors.ErrCodeTimeout) {
		t.Errorf("expected TIMEOUT, got %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("spawn hung for %v despite timeout", elapsed)
	}
}

func TestSpawnRequiresFolder(t *testing.T) {
	s := New(DefaultConfig(), nil)
	if _, err := s.Spawn(context.Background(), ""); !werrors.Is(err, werrors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestTerminateStopsProcess(t *testing.T) {
	s := New(shCommand(`echo "listening on http://127.0.0.1:1234"; sleep 30`, 5*time.Second), nil)

	p, err := s.Spawn(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	if err := s.Terminate(context.Background(), p); err != nil {
		t.Fatalf("terminate: %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
	if s.IsAlive(p.PID) {
		t.Error("expected process dead after terminate")
	}
}

func TestTerminateEscalatesToKill(t *testing.T) {
	// The child traps SIGTERM and refuses to die.
	script := `trap "" TERM; echo "listening on http://127.0.0.1:1234"; sleep 30`
	s := New(shCommand(script, 5*time.Second), nil)

	p, err := s.Spawn(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	start := time.Now()
	if err := s.Terminate(context.Background(), p); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if !p.Exited() {
		t.Error("expected process reaped after SIGKILL")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("terminate took %v, expected grace period then kill", elapsed)
	}
}

func TestTerminateExitedProcessIsNoop(t *testing.T) {
	s := New(shCommand(`echo "listening on http://127.0.0.1:1234"`, 5*time.Second), nil)

	p, err := s.Spawn(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	<-p.Done()

	if err := s.Terminate(context.Background(), p); err != nil {
		t.Errorf("expected no-op terminate, got %v", err)
	}
	if err := s.Terminate(context.Background(), nil); err != nil {
		t.Errorf("expected nil process terminate to be no-op, got %v", err)
	}
}

func TestIsAlive(t *testing.T) {
	s := New(DefaultConfig(), nil)

	if !s.IsAlive(1) {
		t.Error("expected pid 1 alive")
	}
	if s.IsAlive(0) || s.IsAlive(-1) {
		t.Error("expected non-positive pids reported dead")
	}
}
