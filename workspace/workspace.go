package workspace

import (
	"time"
)

// Status represents a workspace's lifecycle state.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// SessionStatus represents a chat session's state.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionInactive SessionStatus = "inactive"
)

// Meta is the spawned process's identifying metadata.
type Meta struct {
	PID       int       `json:"pid"`
	StartTime time.Time `json:"startTime"`
}

// Session is a conversational context nested under a workspace. Sessions are
// owned exclusively by their workspace and destroyed with it.
type Session struct {
	ID           string
	WorkspaceID  string
	Model        string
	CreatedAt    time.Time
	LastActivity time.Time
	Status       SessionStatus
}

// SessionSnapshot is the JSON projection of a session. It carries the
// workspace's port so chat callers can reach the agent server directly.
type SessionSnapshot struct {
	ID           string        `json:"id"`
	WorkspaceID  string        `json:"workspaceId"`
	Model        string        `json:"model"`
	Port         int           `json:"port"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActivity time.Time     `json:"lastActivity"`
	Status       SessionStatus `json:"status"`
}

// Snapshot is the JSON projection of a workspace, as served by list
// endpoints and the live-update stream.
type Snapshot struct {
	ID         string            `json:"id"`
	Folder     string            `json:"folder"`
	Model      string            `json:"model"`
	Port       int               `json:"port"`
	Status     Status            `json:"status"`
	Sessions   []SessionSnapshot `json:"sessions"`
	Error      string            `json:"error,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`

	// Proc is process metadata for health reporting, not part of the UI
	// projection.
	Proc *Meta `json:"-"`
}

// SessionCount returns the number of sessions in the snapshot.
func (s Snapshot) SessionCount() int {
	return len(s.Sessions)
}
