package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: a cleanup action that timed out, a slow subprocess.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: unknown workspace ID, invalid input, a subprocess that
	// exited with a diagnostic on stderr.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates unexpected errors, bugs, or system failures.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for common failure scenarios.
const (
	// Transient errors
	ErrCodeTimeout       ErrorCode = "TIMEOUT"        // Operation timed out
	ErrCodeHandlerFailed ErrorCode = "HANDLER_FAILED" // Cleanup handler failed or timed out
	ErrCodePhaseTimeout  ErrorCode = "PHASE_TIMEOUT"  // Shutdown phase exceeded its budget

	// Permanent errors
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"     // Workspace or session does not exist
	ErrCodeSpawnFailed  ErrorCode = "SPAWN_FAILED"  // Subprocess failed to start or announce a port
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT" // Malformed or invalid input
	ErrCodeShuttingDown ErrorCode = "SHUTTING_DOWN" // Operation rejected because shutdown is in progress
	ErrCodeCanceled     ErrorCode = "CANCELED"      // Operation was canceled

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL" // Unexpected internal error
	ErrCodePanic    ErrorCode = "PANIC"    // Recovered from panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeHandlerFailed, ErrCodePhaseTimeout:
		return CategoryTransient
	case ErrCodeNotFound, ErrCodeSpawnFailed, ErrCodeInvalidInput, ErrCodeShuttingDown, ErrCodeCanceled:
		return CategoryPermanent
	default:
		return CategoryInternal
	}
}

// Description returns a human-readable description for the code.
func (c ErrorCode) Description() string {
	switch c {
	case ErrCodeTimeout:
		return "operation timed out"
	case ErrCodeHandlerFailed:
		return "cleanup handler failed"
	case ErrCodePhaseTimeout:
		return "shutdown phase exceeded its time budget"
	case ErrCodeNotFound:
		return "resource not found"
	case ErrCodeSpawnFailed:
		return "subprocess failed to start"
	case ErrCodeInvalidInput:
		return "invalid input"
	case ErrCodeShuttingDown:
		return "shutdown in progress"
	case ErrCodeCanceled:
		return "operation canceled"
	case ErrCodePanic:
		return "recovered from panic"
	default:
		return "internal error"
	}
}
