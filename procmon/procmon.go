// Package procmon supervises streaming worker processes. It tracks each
// worker together with its last observed status as one entry, polls
// liveness without blocking, and kills the whole set on demand.
package procmon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/nominal-io/connect/metric"
)

// State is the lifecycle state of a supervised worker.
type State int

const (
	// StateStopped means the worker is not running: either it was never
	// observed alive or it was deliberately killed.
	StateStopped State = iota
	// StateRunning means the worker is alive.
	StateRunning
	// StateFinished means the worker exited with status zero.
	StateFinished
	// StateFailed means the worker exited abnormally or its exit could
	// not be observed.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Status is one worker's observed status. ExitCode is set only for
// StateFailed when the exit code was observed.
type Status struct {
	Name     string
	State    State
	ExitCode *int
}

// String renders the status for display.
func (s Status) String() string {
	if s.State == StateFailed && s.ExitCode != nil {
		return fmt.Sprintf("%s: failed (exit %d)", s.Name, *s.ExitCode)
	}
	return fmt.Sprintf("%s: %s", s.Name, s.State)
}

// process pairs one worker handle with its status so the two can never
// drift apart.
type process struct {
	name    string
	cmd     *exec.Cmd
	stopped bool

	// Written once by the wait goroutine, read by PollAll.
	mu       sync.Mutex
	exited   bool
	exitCode *int
	waitErr  error
}

func (p *process) recordExit(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exited = true
	if err == nil {
		return
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		p.exitCode = &code
		return
	}
	p.waitErr = err
}

// Supervisor tracks a set of streaming worker processes.
type Supervisor struct {
	logger  *slog.Logger
	metrics *metric.Metrics

	mu    sync.Mutex
	procs []*process
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor(logger *slog.Logger, metrics *metric.Metrics) *Supervisor {
	if logger == nil {
		logger = slog.Default().With("component", "procmon")
	}
	return &Supervisor{logger: logger, metrics: metrics}
}

// Register adds a started worker to the supervised set. stdout, when
// non-nil, is drained line by line into the log so the worker never
// blocks on a full pipe.
func (s *Supervisor) Register(name string, cmd *exec.Cmd, stdout io.Reader) {
	p := &process{name: name, cmd: cmd}

	// Drain stdout to EOF before Wait: Wait closes the pipe, so calling
	// it while the scanner is still reading can drop tail output.
	go func() {
		if stdout != nil {
			s.drainOutput(name, stdout)
		}
		p.recordExit(cmd.Wait())
	}()

	s.mu.Lock()
	s.procs = append(s.procs, p)
	count := len(s.procs)
	s.mu.Unlock()

	s.logger.Info("Registered worker process", "script", name, "pid", cmd.Process.Pid)
	if s.metrics != nil {
		s.metrics.RecordProcessesSupervised(count)
	}
}

func (s *Supervisor) drainOutput(name string, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		s.logger.Info("Worker output", "script", name, "line", scanner.Text())
	}
}

// PollAll returns the current status of every supervised worker without
// blocking. A worker killed through StopAll stays Stopped regardless of
// how its exit is later observed.
func (s *Supervisor) PollAll() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]Status, 0, len(s.procs))
	for _, p := range s.procs {
		statuses = append(statuses, s.poll(p))
	}
	return statuses
}

func (s *Supervisor) poll(p *process) Status {
	if p.stopped {
		return Status{Name: p.name, State: StateStopped}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.exited {
		return Status{Name: p.name, State: StateRunning}
	}
	if p.waitErr != nil {
		s.logger.Warn("Worker exit could not be observed", "script", p.name, "error", p.waitErr)
		return Status{Name: p.name, State: StateFailed}
	}
	if p.exitCode != nil {
		return Status{Name: p.name, State: StateFailed, ExitCode: p.exitCode}
	}
	return Status{Name: p.name, State: StateFinished}
}

// Count returns the number of supervised workers.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

// StopAll kills every supervised worker and marks it Stopped. The
// entries remain visible to PollAll until the next Clear.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.procs {
		s.kill(p)
	}
}

// Clear kills any remaining workers and forgets them all.
func (s *Supervisor) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.procs {
		s.kill(p)
	}
	s.procs = nil
	if s.metrics != nil {
		s.metrics.RecordProcessesSupervised(0)
	}
}

func (s *Supervisor) kill(p *process) {
	if p.stopped {
		return
	}
	p.stopped = true
	// Kill on an already-exited process is a harmless no-op.
	if err := p.cmd.Process.Kill(); err == nil {
		s.logger.Info("Killed worker process", "script", p.name)
	}
}
