package script

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nominal-io/connect/config"
	"github.com/nominal-io/connect/errors"
	"github.com/nominal-io/connect/metric"
)

// DefaultInterpreter runs worker scripts unless overridden.
const DefaultInterpreter = "python3"

// InputState is the UI state handed to a script on stdin. It is written
// only when the script declares functions.
type InputState struct {
	InputValues  map[string]string  `json:"input_values"`
	SliderValues map[string]float32 `json:"slider_values"`
}

// Runner executes discrete scripts synchronously and records their
// results. Runs block the caller; abnormal exits are logged and leave
// the prior result untouched.
type Runner struct {
	cfg         *config.Config
	results     *ResultStore
	logger      *slog.Logger
	metrics     *metric.Metrics
	interpreter string
}

// RunnerDeps carries the Runner's collaborators. Interpreter defaults to
// DefaultInterpreter when empty.
type RunnerDeps struct {
	Config      *config.Config
	Results     *ResultStore
	Logger      *slog.Logger
	Metrics     *metric.Metrics
	Interpreter string
}

// NewRunner creates a runner.
func NewRunner(deps RunnerDeps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "script.runner")
	}
	interpreter := deps.Interpreter
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	return &Runner{
		cfg:         deps.Config,
		results:     deps.Results,
		logger:      logger,
		metrics:     deps.Metrics,
		interpreter: interpreter,
	}
}

// ResultKey returns the store key for a run: the script name, suffixed
// with the function name when one was invoked.
func ResultKey(scriptName, functionName string) string {
	if functionName == "" {
		return scriptName
	}
	return scriptName + "_" + functionName
}

// Run executes a discrete script to completion and stores its classified
// result. functionName may be empty. The returned error covers spawn and
// abnormal-exit failures; in both cases the prior result for the key is
// left untouched. There is no per-run timeout: a script that never exits
// blocks the caller indefinitely.
func (r *Runner) Run(script config.ScriptConfig, functionName string, state InputState) error {
	runID := uuid.NewString()[:8]
	key := ResultKey(script.Name, functionName)
	logger := r.logger.With("script", script.Name, "run_id", runID)

	path := r.cfg.ScriptPath(script)
	args := []string{path}
	if functionName != "" && len(script.Functions) > 0 {
		args = append(args, "--function", functionName)
	}

	cmd := exec.Command(r.interpreter, args...)
	if len(script.Functions) > 0 {
		payload, err := json.Marshal(state)
		if err != nil {
			return errors.WrapInvalid(err, "Runner", "Run", "encode input state")
		}
		cmd.Stdin = bytes.NewReader(payload)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.WrapFatal(err, "Runner", "Run", "open stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.WrapFatal(err, "Runner", "Run", "open stderr pipe")
	}

	logger.Info("Running script", "path", path, "function", functionName)
	started := time.Now()
	if err := cmd.Start(); err != nil {
		logger.Error("Script spawn failed", "error", err)
		if r.metrics != nil {
			r.metrics.RecordScriptRun(script.Name, "spawn_failed")
		}
		return errors.WrapTransient(err, "Runner", "Run", "spawn script")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.drainStderr(logger, stderr)
	}()

	line := r.lastOutputLine(logger, stdout)
	wg.Wait()

	waitErr := cmd.Wait()
	elapsed := time.Since(started)
	if r.metrics != nil {
		r.metrics.RecordScriptDuration(script.Name, elapsed)
	}

	if waitErr != nil {
		// Abnormal exit: log it and keep the previous result visible.
		logger.Warn("Script exited abnormally", "error", waitErr, "elapsed", elapsed)
		if r.metrics != nil {
			r.metrics.RecordScriptRun(script.Name, "failed")
		}
		return errors.WrapTransient(waitErr, "Runner", "Run", "script execution")
	}

	if line == "" {
		logger.Debug("Script produced no output", "elapsed", elapsed)
		if r.metrics != nil {
			r.metrics.RecordScriptRun(script.Name, "ok")
		}
		return nil
	}

	r.results.Set(key, classify(line))
	logger.Info("Script finished", "elapsed", elapsed)
	if r.metrics != nil {
		r.metrics.RecordScriptRun(script.Name, "ok")
	}
	return nil
}

// lastOutputLine drains stdout, keeping the last non-empty trimmed line
// as the result candidate. Earlier lines go to the debug log so progress
// output is not lost.
func (r *Runner) lastOutputLine(logger *slog.Logger, stdout io.Reader) string {
	var last string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if last != "" {
			logger.Debug("Script output", "line", last)
		}
		last = line
	}
	return last
}

// drainStderr forwards stderr lines to the log.
func (r *Runner) drainStderr(logger *slog.Logger, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		logger.Warn("Script stderr", "line", scanner.Text())
	}
}
