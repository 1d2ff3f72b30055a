package cleanup

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	werrors "github.com/codedeck/workbench/errors"
	"github.com/codedeck/workbench/logging"
)

// Coordinator drives two-phase execution of all registered cleanup handlers:
// a graceful phase with per-handler retries, then a force phase that re-runs
// whatever did not succeed, exactly once. Shutdown always completes within
// GracefulTimeout + ForceTimeout; a stuck handler is recorded as failed, never
// waited on indefinitely.
type Coordinator struct {
	config   Config
	registry *Registry
	logger   *logging.Logger

	phase   atomic.Int32
	once    sync.Once
	done    chan struct{}
	summary *Summary
}

// NewCoordinator creates a coordinator over the given registry.
func NewCoordinator(config Config, registry *Registry, logger *logging.Logger) *Coordinator {
	def := DefaultConfig()
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = def.DefaultTimeout
	}
	if config.GracefulTimeout == 0 {
		config.GracefulTimeout = def.GracefulTimeout
	}
	if config.ForceTimeout == 0 {
		config.ForceTimeout = def.ForceTimeout
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = def.RetryAttempts
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Coordinator{
		config:   config,
		registry: registry,
		logger:   logger.WithComponent("shutdown"),
		done:     make(chan struct{}),
	}
}

// Config returns the coordinator's configuration.
func (c *Coordinator) Config() Config {
	return c.config
}

// Registry returns the underlying handler registry.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Phase returns the coordinator's current phase.
func (c *Coordinator) Phase() Phase {
	return Phase(c.phase.Load())
}

// Done returns a channel that is closed once shutdown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Summary returns the shutdown accounting, or nil while shutdown has not
// completed.
func (c *Coordinator) Summary() *Summary {
	select {
	case <-c.done:
		return c.summary
	default:
		return nil
	}
}

// Shutdown runs every registered handler to completion or timeout and blocks
// until the whole sequence finishes. It is idempotent: concurrent and repeat
// callers all block on the same in-flight run and receive the same summary.
func (c *Coordinator) Shutdown(reason string) *Summary {
	c.once.Do(func() {
		c.summary = c.run(reason)
		c.phase.Store(int32(PhaseDone))
		close(c.done)
	})
	<-c.done
	return c.summary
}

// tracker carries per-handler state shared between the runner goroutine and
// the phase collector, so an abandoned phase can still report attempt counts.
type tracker struct {
	handler  Handler
	attempts atomic.Int32
	start    time.Time
}

type result struct {
	index   int
	outcome Outcome
}

func (c *Coordinator) run(reason string) *Summary {
	start := time.Now()
	c.registry.beginShutdown()
	handlers := c.registry.List()

	c.logger.Info("shutdown initiated", map[string]interface{}{
		"reason":   reason,
		"handlers": len(handlers),
	})

	c.phase.Store(int32(PhaseGraceful))
	outcomes := c.gracefulPhase(handlers)

	var remaining []int
	for i, o := range outcomes {
		if !o.Success {
			remaining = append(remaining, i)
		}
	}

	if len(remaining) > 0 {
		c.phase.Store(int32(PhaseForce))
		c.forcePhase(handlers, outcomes, remaining)
	}

	s := &Summary{
		Reason:   reason,
		Elapsed:  time.Since(start),
		Outcomes: outcomes,
	}
	for _, o := range outcomes {
		if o.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.TotalAttempts += o.Attempts
		if o.Forced {
			s.TotalAttempts++
		}
	}

	c.logger.Info("shutdown complete", map[string]interface{}{
		"reason":    reason,
		"succeeded": s.Succeeded,
		"failed":    s.Failed,
		"attempts":  s.TotalAttempts,
		"elapsed":   s.Elapsed.Round(time.Millisecond),
	})
	return s
}

// gracefulPhase runs every handler concurrently, each with its own sequential
// retry ladder, bounded overall by GracefulTimeout.
func (c *Coordinator) gracefulPhase(handlers []Handler) []Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.GracefulTimeout)
	defer cancel()

	trackers := make([]*tracker, len(handlers))
	results := make(chan result, len(handlers))

	for i, h := range handlers {
		trackers[i] = &tracker{handler: h, start: time.Now()}
		go c.runGraceful(ctx, i, trackers[i], results)
	}

	outcomes := make([]Outcome, len(handlers))
	reported := make([]bool, len(handlers))
	pending := len(handlers)

collect:
	for pending > 0 {
		select {
		case res := <-results:
			outcomes[res.index] = res.outcome
			reported[res.index] = true
			pending--
			c.logOutcome("graceful", res.outcome)
		case <-ctx.Done():
			break collect
		}
	}

	// Pick up results that completed right at the deadline.
drain:
	for pending > 0 {
		select {
		case res := <-results:
			outcomes[res.index] = res.outcome
			reported[res.index] = true
			pending--
			c.logOutcome("graceful", res.outcome)
		default:
			break drain
		}
	}

	// Phase abandoned: whatever has not reported is recorded as failed.
	for i := range handlers {
		if !reported[i] {
			outcomes[i] = Outcome{
				Name:     handlers[i].Name,
				Attempts: int(trackers[i].attempts.Load()),
				Elapsed:  time.Since(trackers[i].start),
				Err:      werrors.New(werrors.ErrCodePhaseTimeout, "graceful phase abandoned before handler finished"),
			}
			c.logOutcome("graceful", outcomes[i])
		}
	}
	return outcomes
}

// runGraceful executes one handler's retry ladder. Retries are strictly
// sequential for this handler; other handlers proceed in parallel.
func (c *Coordinator) runGraceful(ctx context.Context, index int, tr *tracker, results chan<- result) {
	lastErr := error(werrors.New(werrors.ErrCodePhaseTimeout, "graceful phase ended before any attempt"))

	for attempt := 1; attempt <= c.config.RetryAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		tr.attempts.Add(1)

		err := c.runOnce(ctx, tr.handler)
		if err == nil {
			results <- result{index, Outcome{
				Name:     tr.handler.Name,
				Success:  true,
				Attempts: int(tr.attempts.Load()),
				Elapsed:  time.Since(tr.start),
			}}
			return
		}
		lastErr = err

		if attempt < c.config.RetryAttempts {
			select {
			case <-ctx.Done():
			case <-time.After(c.config.RetryDelay):
			}
		}
	}

	results <- result{index, Outcome{
		Name:     tr.handler.Name,
		Attempts: int(tr.attempts.Load()),
		Elapsed:  time.Since(tr.start),
		Err:      lastErr,
	}}
}

// forcePhase re-runs each remaining handler exactly once, concurrently,
// bounded overall by ForceTimeout.
func (c *Coordinator) forcePhase(handlers []Handler, outcomes []Outcome, remaining []int) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.ForceTimeout)
	defer cancel()

	c.logger.Warn("entering force phase", map[string]interface{}{
		"remaining": len(remaining),
	})

	results := make(chan result, len(remaining))
	starts := make(map[int]time.Time, len(remaining))

	for _, i := range remaining {
		starts[i] = time.Now()
		go func(index int, h Handler) {
			err := c.runOnce(ctx, h)
			results <- result{index: index, outcome: Outcome{Err: err}}
		}(i, handlers[i])
	}

	pending := len(remaining)
	reported := make(map[int]bool, len(remaining))

collect:
	for pending > 0 {
		select {
		case res := <-results:
			o := &outcomes[res.index]
			o.Forced = true
			o.Elapsed += time.Since(starts[res.index])
			if res.outcome.Err == nil {
				o.Success = true
				o.Err = nil
			} else {
				o.Err = res.outcome.Err
			}
			reported[res.index] = true
			pending--
			c.logOutcome("force", *o)
		case <-ctx.Done():
			break collect
		}
	}

forceDrain:
	for pending > 0 {
		select {
		case res := <-results:
			o := &outcomes[res.index]
			o.Forced = true
			o.Elapsed += time.Since(starts[res.index])
			if res.outcome.Err == nil {
				o.Success = true
				o.Err = nil
			} else {
				o.Err = res.outcome.Err
			}
			reported[res.index] = true
			pending--
			c.logOutcome("force", *o)
		default:
			break forceDrain
		}
	}

	for _, i := range remaining {
		if !reported[i] {
			o := &outcomes[i]
			o.Forced = true
			o.Elapsed += time.Since(starts[i])
			o.Err = werrors.New(werrors.ErrCodePhaseTimeout, "force phase abandoned before handler finished")
			c.logOutcome("force", *o)
		}
	}
}

// runOnce executes a single attempt bounded by the handler's effective
// timeout. A handler still running when the timeout fires is reported failed
// but is not forcibly interrupted beyond context cancellation; this attempt
// simply stops waiting on it.
func (c *Coordinator) runOnce(parent context.Context, h Handler) error {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = c.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- safeRun(ctx, h)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return werrors.WrapWithCode(err, werrors.ErrCodeHandlerFailed, "cleanup handler failed")
		}
		return nil
	case <-ctx.Done():
		return werrors.New(werrors.ErrCodeTimeout, "cleanup handler timed out")
	}
}

// safeRun invokes the handler action, converting panics into errors.
func safeRun(ctx context.Context, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = werrors.Newf(werrors.ErrCodePanic, "cleanup handler panicked: %v", r)
		}
	}()
	return h.Run(ctx)
}

func (c *Coordinator) logOutcome(phase string, o Outcome) {
	fields := map[string]interface{}{
		"handler":  o.Name,
		"phase":    phase,
		"success":  o.Success,
		"attempts": o.Attempts,
		"elapsed":  o.Elapsed.Round(time.Millisecond),
	}
	if o.Err != nil {
		fields["error"] = o.Err
	}
	if c.config.Verbose {
		c.logger.Info("handler outcome", fields)
	} else {
		c.logger.Debug("handler outcome", fields)
	}
}
