// Package errors provides structured errors for the workbench supervisor.
//
// Every error carries an ErrorCode identifying the failure, an ErrorCategory
// driving retry decisions, and optional workspace/session context plus a
// user-facing recovery suggestion. Errors marshal to JSON so the HTTP layer
// can surface them without translation.
//
// The taxonomy mirrors how failures propagate through the system:
//
//   - NOT_FOUND: unknown workspace or session ID. Lookups scoped to the
//     wrong workspace are indistinguishable from lookups for IDs that never
//     existed, so existence never leaks across workspace boundaries.
//   - SPAWN_FAILED: the agent subprocess exited early, wrote to stderr, or
//     never announced a listening port. Returned to the caller, never retried.
//   - HANDLER_FAILED: a cleanup action failed or timed out. Retried within
//     the graceful shutdown phase, then escalated to the force phase; never
//     surfaced as a crash.
//   - PHASE_TIMEOUT: an entire shutdown phase exceeded its budget. Truncates
//     the phase but never aborts the overall shutdown.
package errors
