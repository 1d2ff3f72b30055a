package cleanup

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/codedeck/workbench/logging"
)

// Bridge connects OS-level termination events to the coordinator. Signals
// (SIGINT, SIGTERM) and process-wide faults each trigger shutdown exactly
// once; signal-initiated shutdown exits 0, fault-initiated exits 1.
//
// Idempotency is tracked with explicit booleans on the struct so health
// reporting can observe initialization state.
type Bridge struct {
	coord  *Coordinator
	logger *logging.Logger
	exit   func(int)

	mu               sync.Mutex
	signalsInstalled bool
	faultsInstalled  bool

	sigCh       chan os.Signal
	faultCh     chan error
	triggerOnce sync.Once
}

// NewBridge creates a bridge for the given coordinator. The process exits
// through os.Exit once a triggered shutdown completes.
func NewBridge(coord *Coordinator, logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Bridge{
		coord:   coord,
		logger:  logger.WithComponent("signals"),
		exit:    os.Exit,
		sigCh:   make(chan os.Signal, 1),
		faultCh: make(chan error, 1),
	}
}

// SetExit replaces the process-exit function. Tests use this to observe exit
// codes without terminating the test binary.
func (b *Bridge) SetExit(exit func(int)) {
	b.exit = exit
}

// InstallSignalHandlers registers once-only listeners for SIGINT and SIGTERM.
// Double installation is rejected with a warning.
func (b *Bridge) InstallSignalHandlers() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.signalsInstalled {
		b.logger.Warn("signal handlers already installed")
		return ErrAlreadyInstalled
	}
	b.signalsInstalled = true

	signal.Notify(b.sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-b.sigCh
		b.trigger(sig.String(), 0)
	}()
	return nil
}

// InstallFaultHandlers registers the once-only fault path. Goroutines report
// asynchronous faults through ReportFault; deferred Recover converts panics
// into faults. Double installation is rejected with a warning.
func (b *Bridge) InstallFaultHandlers() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.faultsInstalled {
		b.logger.Warn("fault handlers already installed")
		return ErrAlreadyInstalled
	}
	b.faultsInstalled = true

	go func() {
		err := <-b.faultCh
		b.logger.Error("uncaught fault", map[string]interface{}{"error": err})
		b.trigger(fmt.Sprintf("fault: %v", err), 1)
	}()
	return nil
}

// SignalHandlersInstalled reports whether signal handlers are in place.
func (b *Bridge) SignalHandlersInstalled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.signalsInstalled
}

// FaultHandlersInstalled reports whether fault handlers are in place.
func (b *Bridge) FaultHandlersInstalled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.faultsInstalled
}

// ReportFault delivers an asynchronous fault to the bridge. Only the first
// fault is acted on; later ones are dropped.
func (b *Bridge) ReportFault(err error) {
	if err == nil {
		return
	}
	select {
	case b.faultCh <- err:
	default:
	}
}

// Recover converts a panic in the calling goroutine into a reported fault.
// Use as: defer bridge.Recover().
func (b *Bridge) Recover() {
	if r := recover(); r != nil {
		b.ReportFault(fmt.Errorf("panic: %v", r))
	}
}

// Trigger feeds a synthetic SIGTERM into the signal path. Useful for tests
// and for explicit stop requests that should follow the signal exit path.
func (b *Bridge) Trigger() {
	select {
	case b.sigCh <- syscall.SIGTERM:
	default:
	}
}

// trigger runs the coordinated shutdown exactly once, then exits.
func (b *Bridge) trigger(reason string, code int) {
	b.triggerOnce.Do(func() {
		b.logger.Info("termination event", map[string]interface{}{
			"reason": reason,
			"code":   code,
		})
		b.coord.Shutdown(reason)
		b.exit(code)
	})
}
