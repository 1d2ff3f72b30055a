package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codedeck/workbench/cleanup"
	"github.com/codedeck/workbench/logging"
	"github.com/codedeck/workbench/workspace"
)

// stubRegistry serves fixed snapshots.
type stubRegistry struct {
	snaps []workspace.Snapshot
}

func (s *stubRegistry) All() []workspace.Snapshot {
	return s.snaps
}

// stubProber reports liveness from a fixed table.
type stubProber struct {
	alive map[int]bool
}

func (s *stubProber) IsAlive(pid int) bool {
	return s.alive[pid]
}

func running(id string, pid int) workspace.Snapshot {
	return workspace.Snapshot{
		ID:     id,
		Folder: "/tmp/" + id,
		Model:  "m",
		Port:   4000 + pid,
		Status: workspace.StatusRunning,
		Sessions: []workspace.SessionSnapshot{
			{ID: id + "-s1", WorkspaceID: id},
		},
		Proc: &workspace.Meta{PID: pid, StartTime: time.Now()},
	}
}

func newCoordinator(t *testing.T) *cleanup.Coordinator {
	t.Helper()
	reg := cleanup.NewRegistry(logging.Nop())
	return cleanup.NewCoordinator(cleanup.DefaultConfig(), reg, logging.Nop())
}

func TestReportHealthyWhenAllProcessesAlive(t *testing.T) {
	registry := &stubRegistry{snaps: []workspace.Snapshot{
		running("a", 11),
		running("b", 12),
	}}
	prober := &stubProber{alive: map[int]bool{11: true, 12: true}}

	rep := NewReporter(registry, newCoordinator(t), nil, prober).Report()

	if rep.Overall.Status != StatusHealthy {
		t.Errorf("status = %q, want %q", rep.Overall.Status, StatusHealthy)
	}
	if rep.Overall.TotalWorkspaces != 2 {
		t.Errorf("totalWorkspaces = %d, want 2", rep.Overall.TotalWorkspaces)
	}
	if rep.Overall.HealthyProcesses != 2 || rep.Overall.OrphanedProcesses != 0 {
		t.Errorf("healthy/orphaned = %d/%d, want 2/0",
			rep.Overall.HealthyProcesses, rep.Overall.OrphanedProcesses)
	}
	if rep.Overall.StatusCounts["running"] != 2 {
		t.Errorf("statusCounts = %v", rep.Overall.StatusCounts)
	}
	if rep.Timestamp.IsZero() {
		t.Error("report should carry a timestamp")
	}
}

func TestReportDegradedOnOrphanedProcess(t *testing.T) {
	registry := &stubRegistry{snaps: []workspace.Snapshot{
		running("a", 11),
		running("b", 12),
	}}
	prober := &stubProber{alive: map[int]bool{11: true, 12: false}}

	rep := NewReporter(registry, newCoordinator(t), nil, prober).Report()

	if rep.Overall.Status != StatusDegraded {
		t.Errorf("status = %q, want %q", rep.Overall.Status, StatusDegraded)
	}
	if rep.Overall.HealthyProcesses != 1 || rep.Overall.OrphanedProcesses != 1 {
		t.Errorf("healthy/orphaned = %d/%d, want 1/1",
			rep.Overall.HealthyProcesses, rep.Overall.OrphanedProcesses)
	}

	var dead *WorkspaceHealth
	for i := range rep.Workspaces {
		if rep.Workspaces[i].ID == "b" {
			dead = &rep.Workspaces[i]
		}
	}
	if dead == nil {
		t.Fatal("workspace b missing from report")
	}
	if dead.ProcessAlive == nil || *dead.ProcessAlive {
		t.Error("workspace b should report processAlive=false")
	}
	if !dead.HasProcess {
		t.Error("workspace b should report hasProcess=true")
	}
}

func TestReportProbesOnlyRunningWorkspaces(t *testing.T) {
	errored := workspace.Snapshot{
		ID:     "broken",
		Status: workspace.StatusError,
		Error:  "spawn failed",
	}
	registry := &stubRegistry{snaps: []workspace.Snapshot{errored}}
	prober := &stubProber{alive: map[int]bool{}}

	rep := NewReporter(registry, newCoordinator(t), nil, prober).Report()

	if rep.Overall.Status != StatusHealthy {
		t.Errorf("errored workspaces alone should not degrade status, got %q", rep.Overall.Status)
	}
	wh := rep.Workspaces[0]
	if wh.ProcessAlive != nil {
		t.Error("non-running workspace must not be probed")
	}
	if wh.HasProcess {
		t.Error("errored workspace has no process")
	}
	if wh.Error != "spawn failed" {
		t.Errorf("error = %q", wh.Error)
	}
	if rep.Overall.StatusCounts["error"] != 1 {
		t.Errorf("statusCounts = %v", rep.Overall.StatusCounts)
	}
}

func TestReportSessionCounts(t *testing.T) {
	registry := &stubRegistry{snaps: []workspace.Snapshot{running("a", 11)}}
	prober := &stubProber{alive: map[int]bool{11: true}}

	rep := NewReporter(registry, newCoordinator(t), nil, prober).Report()
	if rep.Workspaces[0].SessionCount != 1 {
		t.Errorf("sessionCount = %d, want 1", rep.Workspaces[0].SessionCount)
	}
}

func TestReportCleanupAndConfigurationSections(t *testing.T) {
	coord := newCoordinator(t)
	bridge := cleanup.NewBridge(coord, logging.Nop())
	bridge.SetExit(func(int) {})
	if err := bridge.InstallSignalHandlers(); err != nil {
		t.Fatalf("InstallSignalHandlers failed: %v", err)
	}

	registry := &stubRegistry{}
	prober := &stubProber{}
	rep := NewReporter(registry, coord, bridge, prober).Report()

	if !rep.Cleanup.ShutdownManagerInitialized {
		t.Error("shutdownManagerInitialized should be true")
	}
	if !rep.Cleanup.SignalHandlersInitialized {
		t.Error("signalHandlersInitialized should be true")
	}
	if rep.Cleanup.ExceptionHandlersInitialized {
		t.Error("exceptionHandlersInitialized should be false")
	}
	if rep.Cleanup.IsShuttingDown {
		t.Error("isShuttingDown should be false before Shutdown")
	}

	cfg := cleanup.DefaultConfig()
	if rep.Configuration.WorkspaceCleanupTimeout != cfg.DefaultTimeout.Milliseconds() {
		t.Errorf("workspaceCleanupTimeout = %d", rep.Configuration.WorkspaceCleanupTimeout)
	}
	if rep.Configuration.WorkspaceRetryAttempts != cfg.RetryAttempts {
		t.Errorf("workspaceRetryAttempts = %d", rep.Configuration.WorkspaceRetryAttempts)
	}
	if !rep.Configuration.EnableProcessMonitoring {
		t.Error("enableProcessMonitoring should be true with a prober")
	}
}

func TestReportAfterShutdown(t *testing.T) {
	coord := newCoordinator(t)
	coord.Shutdown("test")

	rep := NewReporter(&stubRegistry{}, coord, nil, &stubProber{}).Report()
	if !rep.Cleanup.IsShuttingDown {
		t.Error("isShuttingDown should be true after Shutdown")
	}
}

func TestServeHTTP(t *testing.T) {
	registry := &stubRegistry{snaps: []workspace.Snapshot{running("a", 11)}}
	prober := &stubProber{alive: map[int]bool{11: true}}
	reporter := NewReporter(registry, newCoordinator(t), nil, prober)

	rec := httptest.NewRecorder()
	reporter.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	for _, key := range []string{"timestamp", "overall", "cleanup", "configuration", "workspaces"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("document missing %q", key)
		}
	}
	overall := doc["overall"].(map[string]interface{})
	if overall["status"] != StatusHealthy {
		t.Errorf("overall.status = %v", overall["status"])
	}
}

func TestServeHTTPDegradedIs503(t *testing.T) {
	registry := &stubRegistry{snaps: []workspace.Snapshot{running("a", 11)}}
	prober := &stubProber{alive: map[int]bool{11: false}}
	reporter := NewReporter(registry, newCoordinator(t), nil, prober)

	rec := httptest.NewRecorder()
	reporter.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
