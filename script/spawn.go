package script

import (
	"bytes"
	"encoding/json"
	"io"
	"os/exec"

	"github.com/nominal-io/connect/config"
	"github.com/nominal-io/connect/errors"
)

// SpawnStreaming starts a long-running streaming worker with its stdout
// piped for supervision. The serialized input state is written to the
// worker's stdin before it is handed over: streaming workers read their
// initial state from stdin on startup. The caller registers the returned
// command and pipe with the process supervisor; the worker publishes
// telemetry on its own transport connection.
func (r *Runner) SpawnStreaming(script config.ScriptConfig, state InputState) (*exec.Cmd, io.ReadCloser, error) {
	path := r.cfg.ScriptPath(script)

	payload, err := json.Marshal(state)
	if err != nil {
		return nil, nil, errors.WrapInvalid(err, "Runner", "SpawnStreaming", "encode input state")
	}

	cmd := exec.Command(r.interpreter, path)
	cmd.Stdin = bytes.NewReader(payload)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, errors.WrapFatal(err, "Runner", "SpawnStreaming", "open stdout pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, errors.WrapTransient(err, "Runner", "SpawnStreaming", "spawn worker")
	}

	r.logger.Info("Spawned streaming worker", "script", script.Name, "pid", cmd.Process.Pid)
	return cmd, stdout, nil
}
