package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	werrors "github.com/codedeck/workbench/errors"
	"github.com/codedeck/workbench/logging"
)

// portPattern matches the agent server's readiness announcement, e.g.
// "opencode server listening on http://127.0.0.1:54321".
var portPattern = regexp.MustCompile(`listening on https?://[^\s:]+:(\d+)`)

// Config configures the process supervisor.
type Config struct {
	// Command launches the agent server. The subprocess picks an ephemeral
	// port and announces it on stdout.
	// Default: ["opencode", "serve", "--port=0"]
	Command []string

	// StartupTimeout bounds the wait for the port announcement. A spawn
	// that never announces a port is killed and fails instead of hanging
	// the caller.
	// Default: 30 seconds
	StartupTimeout time.Duration

	// TerminateGrace is how long Terminate waits after SIGTERM before
	// escalating to SIGKILL.
	// Default: 5 seconds
	TerminateGrace time.Duration
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Command) > 0 && c.Command[0] == "" {
		return fmt.Errorf("empty command")
	}
	if c.StartupTimeout < 0 || c.TerminateGrace < 0 {
		return fmt.Errorf("negative timeout")
	}
	return nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Command:        []string{"opencode", "serve", "--port=0"},
		StartupTimeout: 30 * time.Second,
		TerminateGrace: 5 * time.Second,
	}
}

// Supervisor spawns one agent server subprocess per workspace folder and
// owns their lifecycle until termination.
type Supervisor struct {
	config Config
	logger *logging.Logger
}

// New creates a supervisor.
func New(config Config, logger *logging.Logger) *Supervisor {
	def := DefaultConfig()
	if len(config.Command) == 0 {
		config.Command = def.Command
	}
	if config.StartupTimeout == 0 {
		config.StartupTimeout = def.StartupTimeout
	}
	if config.TerminateGrace == 0 {
		config.TerminateGrace = def.TerminateGrace
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Supervisor{
		config: config,
		logger: logger.WithComponent("supervisor"),
	}
}

// Process is the exclusively-owned handle to one spawned agent server.
type Process struct {
	PID       int
	Port      int
	StartTime time.Time

	cmd     *exec.Cmd
	done    chan struct{}
	exitErr error
}

// Done returns a channel closed when the subprocess has exited and been
// reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the subprocess has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Spawn launches the agent server in the given working directory and blocks
// until the subprocess announces its listening port on stdout. The spawn
// fails if the subprocess writes to stderr first, exits before announcing a
// port, or stays silent past StartupTimeout.
func (s *Supervisor) Spawn(ctx context.Context, folder string) (*Process, error) {
	if folder == "" {
		return nil, werrors.New(werrors.ErrCodeInvalidInput, "workspace folder is required")
	}

	cmd := exec.Command(s.config.Command[0], s.config.Command[1:]...)
	cmd.Dir = folder

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, werrors.WrapWithCode(err, werrors.ErrCodeSpawnFailed, "create stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, werrors.WrapWithCode(err, werrors.ErrCodeSpawnFailed, "create stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, werrors.WrapWithCode(err, werrors.ErrCodeSpawnFailed, "start agent server",
			werrors.WithSuggestion(fmt.Sprintf("check that %q is installed and on PATH", s.config.Command[0])))
	}

	p := &Process{
		PID:       cmd.Process.Pid,
		StartTime: time.Now(),
		cmd:       cmd,
		done:      make(chan struct{}),
	}

	s.logger.Info("spawned agent server", map[string]interface{}{
		"pid":    p.PID,
		"folder": folder,
	})

	portCh := make(chan int, 1)
	stderrCh := make(chan string, 1)
	var diag diagnostics

	var readers sync.WaitGroup
	readers.Add(2)

	// Scan stdout for the readiness line, then keep draining so the pipe
	// never blocks the child.
	go func() {
		defer readers.Done()
		announced := false
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			diag.addStdout(line)
			if !announced {
				if m := portPattern.FindStringSubmatch(line); m != nil {
					if port, err := strconv.Atoi(m[1]); err == nil {
						announced = true
						portCh <- port
					}
				}
			}
		}
	}()

	// Any stderr output before the port announcement is a fatal spawn error.
	go func() {
		defer readers.Done()
		first := true
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			diag.addStderr(line)
			if first {
				first = false
				select {
				case stderrCh <- line:
				default:
				}
			}
		}
	}()

	// Reap exactly once, after both pipes are drained.
	go func() {
		readers.Wait()
		p.exitErr = cmd.Wait()
		close(p.done)
	}()

	startupTimer := time.NewTimer(s.config.StartupTimeout)
	defer startupTimer.Stop()

	select {
	case port := <-portCh:
		p.Port = port
		s.logger.Info("agent server ready", map[string]interface{}{
			"pid":  p.PID,
			"port": port,
		})
		return p, nil

	case line := <-stderrCh:
		s.kill(p)
		return nil, werrors.SpawnFailed("agent server wrote to stderr during startup", diag.String(),
			werrors.WithMetadata("stderr", line),
			werrors.WithSuggestion("inspect the agent server's error output and the workspace folder"))

	case <-p.done:
		return nil, werrors.SpawnFailed(
			fmt.Sprintf("agent server exited before announcing a port: %v", p.exitErr), diag.String(),
			werrors.WithSuggestion("run the agent server manually in the workspace folder to see why it exits"))

	case <-startupTimer.C:
		s.kill(p)
		return nil, werrors.New(werrors.ErrCodeTimeout,
			fmt.Sprintf("agent server did not announce a port within %s", s.config.StartupTimeout),
			werrors.WithSuggestion("increase the startup timeout or check the agent server's output format"))

	case <-ctx.Done():
		s.kill(p)
		return nil, werrors.Wrap(ctx.Err(), "spawn canceled")
	}
}

// IsAlive probes a process ID with a zero signal and reports whether the
// process still exists. EPERM means the process exists but belongs to
// another user, so it counts as alive.
func (s *Supervisor) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == unix.EPERM
}

// Terminate requests graceful termination: SIGTERM, then SIGKILL after
// TerminateGrace. Terminating an already-exited process is a no-op.
func (s *Supervisor) Terminate(ctx context.Context, p *Process) error {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	if p.Exited() {
		return nil
	}

	s.logger.Info("terminating agent server", map[string]interface{}{"pid": p.PID})
	if err := p.cmd.Process.Signal(unix.SIGTERM); err != nil {
		// Process likely exited between the check and the signal.
		if p.Exited() {
			return nil
		}
		return werrors.Wrap(err, "send SIGTERM")
	}

	grace := time.NewTimer(s.config.TerminateGrace)
	defer grace.Stop()

	select {
	case <-p.done:
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	s.logger.Warn("agent server did not exit after SIGTERM, sending SIGKILL", map[string]interface{}{
		"pid": p.PID,
	})
	s.kill(p)
	return nil
}

// kill force-kills the subprocess and waits for the reaper.
func (s *Supervisor) kill(p *Process) {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	<-p.done
}

// diagnostics accumulates captured subprocess output for spawn errors.
type diagnostics struct {
	mu     sync.Mutex
	stdout []string
	stderr []string
}

const maxDiagLines = 50

func (d *diagnostics) addStdout(line string) {
	d.mu.Lock()
	if len(d.stdout) < maxDiagLines {
		d.stdout = append(d.stdout, line)
	}
	d.mu.Unlock()
}

func (d *diagnostics) addStderr(line string) {
	d.mu.Lock()
	if len(d.stderr) < maxDiagLines {
		d.stderr = append(d.stderr, line)
	}
	d.mu.Unlock()
}

func (d *diagnostics) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder
	if len(d.stderr) > 0 {
		b.WriteString("stderr: ")
		b.WriteString(strings.Join(d.stderr, "\n"))
	}
	if len(d.stdout) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("stdout: ")
		b.WriteString(strings.Join(d.stdout, "\n"))
	}
	return b.String()
}
