package cleanup

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	// ErrShutdownInProgress indicates the registry is frozen because shutdown began.
	ErrShutdownInProgress = errors.New("shutdown already in progress")

	// ErrAlreadyInstalled indicates signal or fault handlers were installed twice.
	ErrAlreadyInstalled = errors.New("handlers already installed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidHandler indicates a handler with no name or no action.
	ErrInvalidHandler = errors.New("handler requires a name and an action")
)

// Handler is a named, prioritized shutdown action. Handlers with higher
// priority are scheduled first; ties keep registration order. A zero Timeout
// means the coordinator's DefaultTimeout applies.
type Handler struct {
	Name     string
	Priority int
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Config configures the shutdown coordinator. Set once at startup.
type Config struct {
	// DefaultTimeout bounds a single handler attempt when the handler has
	// no explicit timeout.
	// Default: 10 seconds
	DefaultTimeout time.Duration

	// GracefulTimeout bounds the entire graceful phase. When it expires the
	// phase is abandoned regardless of in-flight retries.
	// Default: 30 seconds
	GracefulTimeout time.Duration

	// ForceTimeout bounds the entire force phase.
	// Default: 10 seconds
	ForceTimeout time.Duration

	// RetryAttempts is the total number of attempts a handler gets during
	// the graceful phase.
	// Default: 3
	RetryAttempts int

	// RetryDelay between attempts of the same handler. Retries for one
	// handler are strictly sequential; handlers run concurrently with
	// each other.
	// Default: 1 second
	RetryDelay time.Duration

	// Verbose logs every handler outcome at INFO instead of DEBUG.
	Verbose bool
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DefaultTimeout < 0 || c.GracefulTimeout < 0 || c.ForceTimeout < 0 {
		return ErrInvalidConfig
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:  10 * time.Second,
		GracefulTimeout: 30 * time.Second,
		ForceTimeout:    10 * time.Second,
		RetryAttempts:   3,
		RetryDelay:      time.Second,
	}
}

// Phase is the coordinator's position in the shutdown state machine.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseGraceful
	PhaseForce
	PhaseDone
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseGraceful:
		return "graceful"
	case PhaseForce:
		return "force"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Outcome records how a single handler fared across both phases.
type Outcome struct {
	// Name of the handler.
	Name string

	// Success is true if any attempt, graceful or forced, succeeded.
	Success bool

	// Attempts made during the graceful phase. A force-phase attempt is
	// tracked by Forced, not counted here.
	Attempts int

	// Forced is true if the handler was re-run in the force phase.
	Forced bool

	// Elapsed is the total time spent on this handler.
	Elapsed time.Duration

	// Err is the last error observed, nil on success.
	Err error
}

// Summary is the accounting for a completed shutdown.
type Summary struct {
	// Reason that initiated the shutdown.
	Reason string

	// Succeeded and Failed count handlers by final outcome.
	Succeeded int
	Failed    int

	// TotalAttempts across all handlers and both phases.
	TotalAttempts int

	// Elapsed is the wall time of the whole shutdown.
	Elapsed time.Duration

	// Outcomes per handler, in scheduling order.
	Outcomes []Outcome
}

// FailedHandlers returns the names of handlers that never succeeded.
func (s *Summary) FailedHandlers() []string {
	var failed []string
	for _, o := range s.Outcomes {
		if !o.Success {
			failed = append(failed, o.Name)
		}
	}
	return failed
}
