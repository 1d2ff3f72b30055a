// Package workspace tracks agent-server workspaces and their chat sessions.
//
// A workspace pairs a project folder with one spawned agent server process.
// The Registry is the single authoritative table: Start spawns the server and
// records the workspace, Stop terminates it and removes the workspace along
// with every session under it. Sessions exist only inside a workspace and are
// cascade-deleted with it; there is no orphan state to sweep.
//
// Every running workspace registers a termination handler with the cleanup
// registry, so a coordinated shutdown reaps agent servers without the
// Registry being consulted.
//
// Read methods return value snapshots, never pointers into registry state,
// so callers can serialize or inspect them without holding any lock.
package workspace
