package workspace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codedeck/workbench/agentclient"
	"github.com/codedeck/workbench/cleanup"
	werrors "github.com/codedeck/workbench/errors"
	"github.com/codedeck/workbench/logging"
	"github.com/codedeck/workbench/supervisor"
)

// cleanupPriority places workspace termination in the middle of the shutdown
// order: after frontends stop accepting work, before shared infrastructure
// closes.
const cleanupPriority = 50

// ProcessManager is the supervisor surface the registry depends on.
// Implemented by supervisor.Supervisor.
type ProcessManager interface {
	Spawn(ctx context.Context, folder string) (*supervisor.Process, error)
	Terminate(ctx context.Context, p *supervisor.Process) error
	IsAlive(pid int) bool
}

// entry is the registry's owned record for one workspace.
type entry struct {
	id     string
	folder string
	model  string
	port   int
	status Status
	err    *werrors.Error

	proc   *supervisor.Process
	client *agentclient.Client

	sessions     map[string]*Session
	sessionOrder []string
}

// Registry is the authoritative table of workspaces and their sessions. All
// mutation happens behind one mutex; reads return projections, never shared
// state.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry

	procs   ProcessManager
	cleanup *cleanup.Registry
	logger  *logging.Logger
	now     func() time.Time
}

// NewRegistry creates an empty workspace registry.
func NewRegistry(procs ProcessManager, cleanupReg *cleanup.Registry, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		entries: make(map[string]*entry),
		procs:   procs,
		cleanup: cleanupReg,
		logger:  logger.WithComponent("workspace"),
		now:     time.Now,
	}
}

func cleanupName(id string) string {
	return "workspace-" + id
}

// Start creates a workspace in starting status, spawns its agent server, and
// flips it to running with the discovered port once the server announces
// readiness. On spawn failure the entry flips to error status with a message
// and recovery suggestion; no cleanup handler is registered because there is
// nothing to clean up.
func (r *Registry) Start(ctx context.Context, folder, model string) (Snapshot, error) {
	if folder == "" {
		return Snapshot{}, werrors.New(werrors.ErrCodeInvalidInput, "folder is required")
	}
	if model == "" {
		return Snapshot{}, werrors.New(werrors.ErrCodeInvalidInput, "model is required")
	}

	e := &entry{
		id:       uuid.NewString(),
		folder:   folder,
		model:    model,
		status:   StatusStarting,
		sessions: make(map[string]*Session),
	}

	r.mu.Lock()
	r.entries[e.id] = e
	r.order = append(r.order, e.id)
	r.mu.Unlock()

	r.logger.Info("starting workspace", map[string]interface{}{
		"workspace": e.id,
		"folder":    folder,
		"model":     model,
	})

	proc, err := r.procs.Spawn(ctx, folder)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, present := r.entries[e.id]; !present {
		// Stopped while spawning. Nothing references the process anymore.
		if proc != nil {
			go r.procs.Terminate(context.Background(), proc)
		}
		return Snapshot{}, werrors.NotFound("workspace was stopped during startup", werrors.WithWorkspaceID(e.id))
	}

	if err != nil {
		e.status = StatusError
		e.err = werrors.Wrap(err, "failed to start agent server", werrors.WithWorkspaceID(e.id))
		if e.err.Suggestion() == "" {
			werrors.WithSuggestion("verify the folder exists and the agent binary is installed")(e.err)
		}
		r.logger.Error("workspace failed to start", map[string]interface{}{
			"workspace": e.id,
			"error":     err,
		})
		return snapshotLocked(e), e.err
	}

	// Port and client become visible together.
	e.proc = proc
	e.port = proc.Port
	e.client = agentclient.New(proc.Port)
	e.status = StatusRunning

	if rerr := r.cleanup.Register(cleanup.Handler{
		Name:     cleanupName(e.id),
		Priority: cleanupPriority,
		Run: func(ctx context.Context) error {
			return r.procs.Terminate(ctx, proc)
		},
	}); rerr != nil {
		r.logger.Warn("could not register cleanup handler", map[string]interface{}{
			"workspace": e.id,
			"error":     rerr,
		})
	}

	r.logger.Info("workspace running", map[string]interface{}{
		"workspace": e.id,
		"port":      e.port,
		"pid":       proc.PID,
	})
	return snapshotLocked(e), nil
}

// Stop terminates a workspace's process and removes the workspace and all of
// its sessions. This is the explicit deletion path; deletion is terminal.
func (r *Registry) Stop(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return werrors.NotFound("workspace not found", werrors.WithWorkspaceID(id))
	}
	delete(r.entries, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	e.status = StatusStopped
	r.mu.Unlock()

	r.cleanup.Unregister(cleanupName(id))

	if e.proc != nil {
		if err := r.procs.Terminate(ctx, e.proc); err != nil {
			// The workspace is already gone from the registry; the failed
			// termination is logged, not surfaced.
			r.logger.Error("failed to terminate agent server", map[string]interface{}{
				"workspace": id,
				"pid":       e.proc.PID,
				"error":     err,
			})
		}
	}

	r.logger.Info("workspace stopped", map[string]interface{}{"workspace": id})
	return nil
}

// Get returns the workspace projection, or false if the id is unknown.
func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotLocked(e), true
}

// All returns every workspace projection in insertion order.
func (r *Registry) All() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, snapshotLocked(r.entries[id]))
	}
	return out
}

// Snapshot implements the broadcast source interface.
func (r *Registry) Snapshot() []Snapshot {
	return r.All()
}

// Client returns the chat client handle for a running workspace.
func (r *Registry) Client(id string) (*agentclient.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok || e.status != StatusRunning {
		return nil, false
	}
	return e.client, true
}

// CreateSession allocates a session under a running workspace. A session can
// never be created against an unknown workspace; this is enforced here, not
// by any background sweep.
func (r *Registry) CreateSession(workspaceID, model string) (SessionSnapshot, error) {
	if model == "" {
		return SessionSnapshot{}, werrors.New(werrors.ErrCodeInvalidInput, "model is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[workspaceID]
	if !ok {
		return SessionSnapshot{}, werrors.NotFound("workspace not found", werrors.WithWorkspaceID(workspaceID))
	}
	if e.status != StatusRunning {
		return SessionSnapshot{}, werrors.NotFound("workspace is not running", werrors.WithWorkspaceID(workspaceID))
	}

	now := r.now()
	sess := &Session{
		ID:           uuid.NewString(),
		WorkspaceID:  workspaceID,
		Model:        model,
		CreatedAt:    now,
		LastActivity: now,
		Status:       SessionActive,
	}
	e.sessions[sess.ID] = sess
	e.sessionOrder = append(e.sessionOrder, sess.ID)

	r.logger.Info("session created", map[string]interface{}{
		"workspace": workspaceID,
		"session":   sess.ID,
		"model":     model,
	})
	return sessionSnapshotLocked(e, sess), nil
}

// GetSession returns a session scoped to a workspace. A lookup scoped to the
// wrong workspace behaves exactly like a lookup for an absent session.
func (r *Registry) GetSession(workspaceID, sessionID string) (SessionSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[workspaceID]
	if !ok {
		return SessionSnapshot{}, false
	}
	sess, ok := e.sessions[sessionID]
	if !ok {
		return SessionSnapshot{}, false
	}
	return sessionSnapshotLocked(e, sess), true
}

// Sessions returns a workspace's sessions in creation order. An unknown
// workspace yields an empty slice, not an error.
func (r *Registry) Sessions(workspaceID string) []SessionSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[workspaceID]
	if !ok {
		return []SessionSnapshot{}
	}
	out := make([]SessionSnapshot, 0, len(e.sessionOrder))
	for _, sid := range e.sessionOrder {
		out = append(out, sessionSnapshotLocked(e, e.sessions[sid]))
	}
	return out
}

// DeleteSession removes a session by id, scoped to its workspace.
func (r *Registry) DeleteSession(workspaceID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[workspaceID]
	if !ok {
		return werrors.NotFound("session not found",
			werrors.WithWorkspaceID(workspaceID), werrors.WithSessionID(sessionID))
	}
	if _, ok := e.sessions[sessionID]; !ok {
		return werrors.NotFound("session not found",
			werrors.WithWorkspaceID(workspaceID), werrors.WithSessionID(sessionID))
	}
	delete(e.sessions, sessionID)
	for i, sid := range e.sessionOrder {
		if sid == sessionID {
			e.sessionOrder = append(e.sessionOrder[:i], e.sessionOrder[i+1:]...)
			break
		}
	}
	return nil
}

// TouchSession updates a session's last-activity time. Unknown ids are a
// silent no-op: activity updates are best-effort telemetry from the chat
// path, not correctness-critical.
func (r *Registry) TouchSession(workspaceID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[workspaceID]
	if !ok {
		return
	}
	if sess, ok := e.sessions[sessionID]; ok {
		sess.LastActivity = r.now()
	}
}

// Len returns the number of workspaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// snapshotLocked projects an entry. Caller holds at least the read lock.
func snapshotLocked(e *entry) Snapshot {
	s := Snapshot{
		ID:       e.id,
		Folder:   e.folder,
		Model:    e.model,
		Port:     e.port,
		Status:   e.status,
		Sessions: make([]SessionSnapshot, 0, len(e.sessionOrder)),
	}
	for _, sid := range e.sessionOrder {
		s.Sessions = append(s.Sessions, sessionSnapshotLocked(e, e.sessions[sid]))
	}
	if e.err != nil {
		s.Error = e.err.Error()
		s.Suggestion = e.err.Suggestion()
	}
	if e.proc != nil {
		s.Proc = &Meta{PID: e.proc.PID, StartTime: e.proc.StartTime}
	}
	return s
}

func sessionSnapshotLocked(e *entry, sess *Session) SessionSnapshot {
	return SessionSnapshot{
		ID:           sess.ID,
		WorkspaceID:  sess.WorkspaceID,
		Model:        sess.Model,
		Port:         e.port,
		CreatedAt:    sess.CreatedAt,
		LastActivity: sess.LastActivity,
		Status:       sess.Status,
	}
}
