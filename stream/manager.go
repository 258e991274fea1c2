package stream

import (
	"io"
	"log/slog"
	"os/exec"
	"sync/atomic"

	"github.com/nominal-io/connect/metric"
	"github.com/nominal-io/connect/procmon"
)

// Manager owns the streaming lifecycle: the running flag the listener
// polls, the hand-off channel, the stream buffer store, and the set of
// supervised worker processes. Start and stop are idempotent.
type Manager struct {
	running    atomic.Bool
	handoff    chan Data
	store      *Store
	supervisor *procmon.Supervisor
	logger     *slog.Logger
}

// ManagerDeps carries the Manager's collaborators.
type ManagerDeps struct {
	Recognized map[string]bool
	Logger     *slog.Logger
	Metrics    *metric.Metrics
}

// NewManager creates a stopped manager with an empty store. The hand-off
// channel is bounded by MaxFlightPoints; the listener blocks on it when
// drains fall behind.
func NewManager(deps ManagerDeps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "stream.manager")
	}
	handoff := make(chan Data, MaxFlightPoints)
	return &Manager{
		handoff: handoff,
		store: NewStore(StoreDeps{
			Handoff:    handoff,
			Recognized: deps.Recognized,
			Logger:     logger,
			Metrics:    deps.Metrics,
		}),
		supervisor: procmon.NewSupervisor(logger, deps.Metrics),
		logger:     logger,
	}
}

// Handoff returns the channel the listener feeds.
func (m *Manager) Handoff() chan<- Data { return m.handoff }

// Store returns the stream buffer store.
func (m *Manager) Store() *Store { return m.store }

// Supervisor returns the worker process supervisor.
func (m *Manager) Supervisor() *procmon.Supervisor { return m.supervisor }

// IsRunning reports whether streaming is active.
func (m *Manager) IsRunning() bool { return m.running.Load() }

// StartStreaming begins a fresh streaming session: any workers and
// buffered data left over from a previous session are discarded first,
// then the running flag is raised so the listener starts consuming.
// Starting while already running restarts the session from scratch.
func (m *Manager) StartStreaming() {
	m.supervisor.Clear()
	m.flushHandoff()
	m.store.Clear()
	m.running.Store(true)

	m.logger.Info("Streaming started")
}

// StopStreaming lowers the running flag, kills every worker process
// (their statuses stay visible as stopped), discards queued and buffered
// telemetry, and leaves the listener idling. Calling it while already
// stopped is a no-op.
func (m *Manager) StopStreaming() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}

	m.supervisor.StopAll()
	m.flushHandoff()
	m.store.Clear()

	m.logger.Info("Streaming stopped")
}

// RegisterProcess adds a started worker to the supervised set.
func (m *Manager) RegisterProcess(name string, cmd *exec.Cmd, stdout io.Reader) {
	m.supervisor.Register(name, cmd, stdout)
}

// PollProcesses returns the current status of every supervised worker.
func (m *Manager) PollProcesses() []procmon.Status {
	return m.supervisor.PollAll()
}

// DrainAndRoute moves queued telemetry into the stream buffers. While
// streaming is stopped it discards instead, so stale messages never
// leak into a later session.
func (m *Manager) DrainAndRoute() int {
	if !m.running.Load() {
		m.flushHandoff()
		return 0
	}
	return m.store.DrainAndRoute()
}

// flushHandoff discards everything queued on the hand-off channel.
func (m *Manager) flushHandoff() {
	for {
		select {
		case <-m.handoff:
		default:
			return
		}
	}
}
