package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nominal-io/connect/config"
	"github.com/nominal-io/connect/procmon"
	"github.com/nominal-io/connect/script"
)

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = config.DefaultNATSURL
		cfg.NATS.Subject = config.DefaultNATSSubject
	}
	e, err := New(Deps{Config: cfg, Interpreter: "sh"})
	require.NoError(t, err)
	return e
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+".sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestRunScriptStoresResult(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "answer", "echo 42\n")
	cfg := &config.Config{
		Scripts: []config.ScriptConfig{
			{Name: "answer", Path: path, Type: config.ScriptTypeDiscrete},
		},
	}
	e := newTestEngine(t, cfg)

	require.NoError(t, e.RunScript("answer", "", script.InputState{}))

	got, ok := e.Result("answer")
	require.True(t, ok)
	assert.Equal(t, script.Scalar("42"), got)
}

func TestRunScriptUnknownName(t *testing.T) {
	e := newTestEngine(t, &config.Config{})
	assert.Error(t, e.RunScript("ghost", "", script.InputState{}))
}

func TestRunScriptRejectsStreamingScript(t *testing.T) {
	cfg := &config.Config{
		Scripts: []config.ScriptConfig{
			{Name: "worker", Path: "worker.sh", Type: config.ScriptTypeStreaming},
		},
	}
	e := newTestEngine(t, cfg)
	assert.Error(t, e.RunScript("worker", "", script.InputState{}))
}

func TestRunScriptAbnormalExitIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "flaky", "exit 3\n")
	cfg := &config.Config{
		Scripts: []config.ScriptConfig{
			{Name: "flaky", Path: path, Type: config.ScriptTypeDiscrete},
		},
	}
	e := newTestEngine(t, cfg)

	// The failure is logged, not surfaced.
	assert.NoError(t, e.RunScript("flaky", "", script.InputState{}))
	_, ok := e.Result("flaky")
	assert.False(t, ok)
}

func TestExecuteAllSweepsDiscreteScripts(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Scripts: []config.ScriptConfig{
			{Name: "one", Path: writeScript(t, dir, "one", "echo 1\n"), Type: config.ScriptTypeDiscrete},
			{Name: "two", Path: writeScript(t, dir, "two", "echo 2\n"), Type: config.ScriptTypeDiscrete},
		},
	}
	e := newTestEngine(t, cfg)

	e.ExecuteAll(script.InputState{})

	results := e.Results()
	assert.Equal(t, script.Scalar("1"), results["one"])
	assert.Equal(t, script.Scalar("2"), results["two"])
	assert.Len(t, results, 2)
	assert.False(t, e.IsRunning(), "no streaming scripts configured")
}

func TestExecuteAllRunsEachDeclaredFunction(t *testing.T) {
	dir := t.TempDir()
	body := "read -r state\necho \"fn=$2\"\n"
	cfg := &config.Config{
		Scripts: []config.ScriptConfig{
			{
				Name: "calc", Path: writeScript(t, dir, "calc", body),
				Type: config.ScriptTypeDiscrete,
				Functions: []config.FunctionConfig{
					{Name: "mean"}, {Name: "sum"},
				},
			},
		},
	}
	e := newTestEngine(t, cfg)

	e.ExecuteAll(script.InputState{
		InputValues:  map[string]string{},
		SliderValues: map[string]float32{},
	})

	results := e.Results()
	assert.Equal(t, script.Scalar("fn=mean"), results["calc_mean"])
	assert.Equal(t, script.Scalar("fn=sum"), results["calc_sum"])
}

func TestExecuteAllStartsStreamingWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Scripts: []config.ScriptConfig{
			{Name: "worker", Path: writeScript(t, dir, "worker", "sleep 10\n"), Type: config.ScriptTypeStreaming},
		},
	}
	e := newTestEngine(t, cfg)

	e.ExecuteAll(script.InputState{})
	defer e.StopStreaming()

	assert.True(t, e.IsRunning())
}

func TestExecuteAllClearsStaleResults(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Scripts: []config.ScriptConfig{
			{Name: "calc", Path: writeScript(t, dir, "calc", "echo hi\n"), Type: config.ScriptTypeDiscrete},
		},
	}
	e := newTestEngine(t, cfg)

	// A targeted run leaves a result under a function-suffixed key.
	require.NoError(t, e.RunScript("calc", "mean", script.InputState{}))
	_, ok := e.Result("calc_mean")
	require.True(t, ok)

	e.ExecuteAll(script.InputState{})

	// The sweep clears everything first, then stores only what it ran.
	_, ok = e.Result("calc_mean")
	assert.False(t, ok)
	got, ok := e.Result("calc")
	require.True(t, ok)
	assert.Equal(t, script.Scalar("hi"), got)
}

func TestExecuteAllRestartsRunningSession(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	body := "echo x >> " + marker + "\nsleep 10\n"
	cfg := &config.Config{
		Scripts: []config.ScriptConfig{
			{Name: "worker", Path: writeScript(t, dir, "worker", body), Type: config.ScriptTypeStreaming},
		},
	}
	e := newTestEngine(t, cfg)

	e.StartStreaming(script.InputState{})
	defer e.StopStreaming()
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(marker)
		return err == nil && len(data) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Execute All mid-session spawns the worker afresh.
	e.ExecuteAll(script.InputState{})

	assert.True(t, e.IsRunning())
	require.Len(t, e.PollProcessStatus(), 1)
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(marker)
		return err == nil && len(data) == 4
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartStreamingSpawnsWorkers(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "worker", "sleep 10\n")
	cfg := &config.Config{
		Scripts: []config.ScriptConfig{
			{Name: "worker", Path: path, Type: config.ScriptTypeStreaming},
		},
	}
	e := newTestEngine(t, cfg)

	e.StartStreaming(script.InputState{})
	defer e.StopStreaming()

	assert.True(t, e.IsRunning())
	statuses := e.PollProcessStatus()
	require.Len(t, statuses, 1)
	assert.Equal(t, "worker", statuses[0].Name)
	assert.Equal(t, procmon.StateRunning, statuses[0].State)
}

func TestStartStreamingSkipsFailedSpawn(t *testing.T) {
	dir := t.TempDir()
	good := writeScript(t, dir, "good", "sleep 10\n")
	cfg := &config.Config{
		Scripts: []config.ScriptConfig{
			{Name: "missing", Path: filepath.Join(dir, "missing.sh"), Type: config.ScriptTypeStreaming},
			{Name: "good", Path: good, Type: config.ScriptTypeStreaming},
		},
	}
	e := newTestEngine(t, cfg)

	e.StartStreaming(script.InputState{})
	defer e.StopStreaming()

	// sh starts even for a missing file and exits non-zero, so both
	// workers register; the session runs either way.
	assert.True(t, e.IsRunning())
	assert.NotEmpty(t, e.PollProcessStatus())
}

func TestStopStreamingClearsSession(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "worker", "sleep 10\n")
	cfg := &config.Config{
		Plots: []config.PlotConfig{{StreamID: "chan_a"}},
		Scripts: []config.ScriptConfig{
			{Name: "worker", Path: path, Type: config.ScriptTypeStreaming},
		},
	}
	e := newTestEngine(t, cfg)

	e.StartStreaming(script.InputState{})
	e.StopStreaming()

	assert.False(t, e.IsRunning())
	require.Eventually(t, func() bool {
		statuses := e.PollProcessStatus()
		return len(statuses) == 1 && statuses[0].State == procmon.StateStopped
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, e.StreamSnapshots())
	assert.Nil(t, e.StreamSnapshot("chan_a"))
}
