package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/codedeck/workbench/cleanup"
	"github.com/codedeck/workbench/workspace"
)

// Overall status values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Prober answers process liveness questions. Implemented by
// supervisor.Supervisor.
type Prober interface {
	IsAlive(pid int) bool
}

// Registry is the workspace surface the reporter reads.
type Registry interface {
	All() []workspace.Snapshot
}

// Report is the health document served to operators.
type Report struct {
	Timestamp     time.Time         `json:"timestamp"`
	Overall       Overall           `json:"overall"`
	Cleanup       CleanupStatus     `json:"cleanup"`
	Configuration Configuration     `json:"configuration"`
	Workspaces    []WorkspaceHealth `json:"workspaces"`
}

// Overall aggregates process liveness across all workspaces.
type Overall struct {
	Status            string         `json:"status"`
	TotalWorkspaces   int            `json:"totalWorkspaces"`
	HealthyProcesses  int            `json:"healthyProcesses"`
	OrphanedProcesses int            `json:"orphanedProcesses"`
	StatusCounts      map[string]int `json:"statusCounts"`
}

// CleanupStatus reports which shutdown machinery is installed.
type CleanupStatus struct {
	ShutdownManagerInitialized   bool `json:"shutdownManagerInitialized"`
	ProcessCleanupInitialized    bool `json:"processCleanupInitialized"`
	SignalHandlersInitialized    bool `json:"signalHandlersInitialized"`
	ExceptionHandlersInitialized bool `json:"exceptionHandlersInitialized"`
	IsShuttingDown               bool `json:"isShuttingDown"`
}

// Configuration echoes the effective cleanup settings.
type Configuration struct {
	EnableProcessMonitoring bool  `json:"enableProcessMonitoring"`
	WorkspaceCleanupTimeout int64 `json:"workspaceCleanupTimeout"`
	WorkspaceRetryAttempts  int   `json:"workspaceRetryAttempts"`
	EnableVerboseLogging    bool  `json:"enableVerboseLogging"`
}

// WorkspaceHealth is the per-workspace section of the report.
type WorkspaceHealth struct {
	ID           string           `json:"id"`
	Status       workspace.Status `json:"status"`
	Port         int              `json:"port"`
	Folder       string           `json:"folder"`
	Model        string           `json:"model"`
	SessionCount int              `json:"sessionCount"`
	ProcessInfo  *workspace.Meta  `json:"processInfo"`
	HasProcess   bool             `json:"hasProcess"`
	ProcessAlive *bool            `json:"processAlive"`
	Error        string           `json:"error,omitempty"`
}

// Reporter assembles health reports. It is a pure read path and never
// mutates any of its collaborators.
type Reporter struct {
	registry Registry
	coord    *cleanup.Coordinator
	bridge   *cleanup.Bridge
	prober   Prober
	now      func() time.Time
}

// NewReporter creates a reporter over the given collaborators. Any of them
// may be nil; the corresponding report sections degrade gracefully.
func NewReporter(registry Registry, coord *cleanup.Coordinator, bridge *cleanup.Bridge, prober Prober) *Reporter {
	return &Reporter{
		registry: registry,
		coord:    coord,
		bridge:   bridge,
		prober:   prober,
		now:      time.Now,
	}
}

// Report builds the health document. Liveness is probed only for workspaces
// in running status; a workspace whose process has vanished counts as
// orphaned and degrades the overall status.
func (r *Reporter) Report() Report {
	rep := Report{
		Timestamp:  r.now(),
		Workspaces: []WorkspaceHealth{},
	}
	rep.Overall.StatusCounts = map[string]int{}

	var snaps []workspace.Snapshot
	if r.registry != nil {
		snaps = r.registry.All()
	}

	for _, snap := range snaps {
		wh := WorkspaceHealth{
			ID:           snap.ID,
			Status:       snap.Status,
			Port:         snap.Port,
			Folder:       snap.Folder,
			Model:        snap.Model,
			SessionCount: snap.SessionCount(),
			ProcessInfo:  snap.Proc,
			HasProcess:   snap.Proc != nil,
			Error:        snap.Error,
		}

		if snap.Status == workspace.StatusRunning && snap.Proc != nil && r.prober != nil {
			alive := r.prober.IsAlive(snap.Proc.PID)
			wh.ProcessAlive = &alive
			if alive {
				rep.Overall.HealthyProcesses++
			} else {
				rep.Overall.OrphanedProcesses++
			}
		}

		rep.Overall.StatusCounts[string(snap.Status)]++
		rep.Workspaces = append(rep.Workspaces, wh)
	}

	rep.Overall.TotalWorkspaces = len(snaps)
	rep.Overall.Status = StatusHealthy
	if rep.Overall.OrphanedProcesses > 0 {
		rep.Overall.Status = StatusDegraded
	}

	rep.Cleanup = r.cleanupStatus()
	rep.Configuration = r.configuration()
	return rep
}

func (r *Reporter) cleanupStatus() CleanupStatus {
	cs := CleanupStatus{
		ShutdownManagerInitialized: r.coord != nil,
		ProcessCleanupInitialized:  r.registry != nil && r.prober != nil,
	}
	if r.bridge != nil {
		cs.SignalHandlersInitialized = r.bridge.SignalHandlersInstalled()
		cs.ExceptionHandlersInitialized = r.bridge.FaultHandlersInstalled()
	}
	if r.coord != nil {
		cs.IsShuttingDown = r.coord.Phase() != cleanup.PhaseIdle
	}
	return cs
}

func (r *Reporter) configuration() Configuration {
	c := Configuration{
		EnableProcessMonitoring: r.prober != nil,
	}
	if r.coord != nil {
		cfg := r.coord.Config()
		c.WorkspaceCleanupTimeout = cfg.DefaultTimeout.Milliseconds()
		c.WorkspaceRetryAttempts = cfg.RetryAttempts
		c.EnableVerboseLogging = cfg.Verbose
	}
	return c
}

// ServeHTTP serves the JSON report. Routing stays with the caller.
func (r *Reporter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	rep := r.Report()

	w.Header().Set("Content-Type", "application/json")
	if rep.Overall.Status != StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(rep)
}
