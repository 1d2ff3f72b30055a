// Package supervisor spawns and terminates the per-workspace agent server
// subprocesses.
//
// Each workspace owns exactly one OS process, launched with a "bind to an
// ephemeral port" argument in the workspace folder. The supervisor watches
// the subprocess's stdout for the "listening on host:port" announcement and
// resolves the spawn exactly once: with the discovered port on success, or
// with the captured diagnostic output when the subprocess writes to stderr,
// exits early, or stays silent past the startup timeout.
//
// Liveness is probed with a zero signal, distinguishing processes that are
// still running from orphans that exist only in the registry. Termination
// escalates from SIGTERM to SIGKILL after a grace period, so a registered
// cleanup handler wrapping Terminate always finishes in bounded time.
package supervisor
