// Package engine wires the Connect integration engine together: the
// telemetry listener and stream buffers, the streaming worker lifecycle,
// and discrete script execution with result storage. It is the single
// entry point a host (CLI or UI layer) talks to.
package engine

import (
	"context"
	"log/slog"

	"github.com/nominal-io/connect/config"
	"github.com/nominal-io/connect/errors"
	"github.com/nominal-io/connect/metric"
	"github.com/nominal-io/connect/natsclient"
	"github.com/nominal-io/connect/procmon"
	"github.com/nominal-io/connect/script"
	"github.com/nominal-io/connect/stream"
)

// Engine is the integration engine facade.
type Engine struct {
	cfg      *config.Config
	nats     *natsclient.Client
	manager  *stream.Manager
	listener *stream.Listener
	runner   *script.Runner
	results  *script.ResultStore
	logger   *slog.Logger
	metrics  *metric.Metrics
}

// Deps carries the Engine's collaborators. Config is required; the rest
// default sensibly.
type Deps struct {
	Config  *config.Config
	NATS    *natsclient.Client
	Logger  *slog.Logger
	Metrics *metric.Metrics
	// Interpreter overrides the script interpreter (tests use sh).
	Interpreter string
}

// New assembles an engine from its configuration.
func New(deps Deps) (*Engine, error) {
	if deps.Config == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Engine", "New", "assemble engine")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "engine")
	}

	nats := deps.NATS
	if nats == nil {
		var err error
		nats, err = natsclient.NewClient(deps.Config.NATS.URL,
			natsclient.WithLogger(logger.With("component", "natsclient")),
		)
		if err != nil {
			return nil, err
		}
	}

	manager := stream.NewManager(stream.ManagerDeps{
		Recognized: deps.Config.PlotStreamIDs(),
		Logger:     logger.With("component", "stream"),
		Metrics:    deps.Metrics,
	})

	results := script.NewResultStore()
	runner := script.NewRunner(script.RunnerDeps{
		Config:      deps.Config,
		Results:     results,
		Logger:      logger.With("component", "script"),
		Metrics:     deps.Metrics,
		Interpreter: deps.Interpreter,
	})

	e := &Engine{
		cfg:     deps.Config,
		nats:    nats,
		manager: manager,
		runner:  runner,
		results: results,
		logger:  logger,
		metrics: deps.Metrics,
	}

	e.listener = stream.NewListener(stream.ListenerDeps{
		Connect: e.subscribe,
		Handoff: manager.Handoff(),
		State:   manager,
		Logger:  logger.With("component", "stream.listener"),
		Metrics: deps.Metrics,
	})

	return e, nil
}

func (e *Engine) subscribe() (stream.Receiver, error) {
	if err := e.nats.Connect(); err != nil {
		return nil, err
	}
	return e.nats.SubscribeSync(e.cfg.NATS.Subject)
}

// Start launches the telemetry listener. It returns immediately; the
// listener runs until ctx is cancelled. A transport that never comes up
// disables ingestion but leaves script execution working.
func (e *Engine) Start(ctx context.Context) {
	go e.listener.Run(ctx)
}

// Close releases the transport connection.
func (e *Engine) Close() {
	e.manager.StopStreaming()
	e.nats.Close()
}

// StartStreaming begins a streaming session: prior session state is
// discarded, the running flag is raised, and every configured streaming
// script is spawned with the serialized input state on its stdin and
// registered for supervision. Starting while already running restarts
// the session. A script that fails to spawn is logged and skipped; the
// session still starts.
func (e *Engine) StartStreaming(state script.InputState) {
	e.manager.StartStreaming()

	for _, sc := range e.cfg.StreamingScripts() {
		cmd, stdout, err := e.runner.SpawnStreaming(sc, state)
		if err != nil {
			e.logger.Error("Streaming worker spawn failed", "script", sc.Name, "error", err)
			if e.metrics != nil {
				e.metrics.RecordError("engine", "spawn")
			}
			continue
		}
		e.manager.RegisterProcess(sc.Name, cmd, stdout)
	}
}

// StopStreaming ends the streaming session: workers are killed and
// marked stopped, queued and buffered telemetry is discarded.
func (e *Engine) StopStreaming() {
	e.manager.StopStreaming()
}

// IsRunning reports whether a streaming session is active.
func (e *Engine) IsRunning() bool {
	return e.manager.IsRunning()
}

// DrainAndRoute moves queued telemetry into the stream buffers and
// returns the number of messages routed. Hosts call this on every tick.
func (e *Engine) DrainAndRoute() int {
	return e.manager.DrainAndRoute()
}

// PollProcessStatus returns the current status of every supervised
// streaming worker without blocking.
func (e *Engine) PollProcessStatus() []procmon.Status {
	return e.manager.PollProcesses()
}

// StreamSnapshot returns the buffered records for one stream, oldest
// first, without consuming them.
func (e *Engine) StreamSnapshot(streamID string) []stream.Record {
	return e.manager.Store().Snapshot(streamID)
}

// StreamSnapshots returns every stream's buffered records.
func (e *Engine) StreamSnapshots() map[string][]stream.Record {
	return e.manager.Store().Snapshots()
}

// RunScript executes a configured discrete script synchronously and
// records its result. An unknown script name is an error; an abnormal
// script exit is logged but not surfaced, leaving the prior result in
// place.
func (e *Engine) RunScript(name, functionName string, state script.InputState) error {
	sc, ok := e.cfg.Script(name)
	if !ok {
		return errors.WrapInvalid(errors.ErrScriptNotFound, "Engine", "RunScript", "look up script "+name)
	}
	if sc.Type != config.ScriptTypeDiscrete {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Engine", "RunScript", "run non-discrete script "+name)
	}

	if err := e.runner.Run(sc, functionName, state); err != nil {
		e.logger.Warn("Script run failed", "script", name, "error", err)
	}
	return nil
}

// ExecuteAll runs every configured script with the same input state.
// All stored results are cleared first. When any streaming script is
// configured the streaming session is (re)started from scratch, even
// mid-session. Discrete scripts run once per declared function, or once
// when none are declared. Failures are logged per run; the sweep
// continues.
func (e *Engine) ExecuteAll(state script.InputState) {
	e.results.Clear()

	if len(e.cfg.StreamingScripts()) > 0 {
		e.StartStreaming(state)
	}

	for _, sc := range e.cfg.Scripts {
		if sc.Type != config.ScriptTypeDiscrete {
			continue
		}
		if len(sc.Functions) == 0 {
			if err := e.runner.Run(sc, "", state); err != nil {
				e.logger.Warn("Script run failed", "script", sc.Name, "error", err)
			}
			continue
		}
		for _, fn := range sc.Functions {
			if err := e.runner.Run(sc, fn.Name, state); err != nil {
				e.logger.Warn("Script run failed", "script", sc.Name, "function", fn.Name, "error", err)
			}
		}
	}
}

// Result returns the stored result for a key.
func (e *Engine) Result(key string) (script.Result, bool) {
	return e.results.Get(key)
}

// Results returns a copy of all stored script results.
func (e *Engine) Results() map[string]script.Result {
	return e.results.Snapshot()
}
