package procmon

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, name string, args ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(name, args...)
	require.NoError(t, cmd.Start())
	return cmd
}

func TestPollAllReportsRunning(t *testing.T) {
	s := NewSupervisor(nil, nil)
	cmd := start(t, "sleep", "10")
	defer func() { _ = cmd.Process.Kill() }()
	s.Register("sleeper", cmd, nil)

	statuses := s.PollAll()
	require.Len(t, statuses, 1)
	assert.Equal(t, "sleeper", statuses[0].Name)
	assert.Equal(t, StateRunning, statuses[0].State)
}

func TestPollAllReportsFinished(t *testing.T) {
	s := NewSupervisor(nil, nil)
	s.Register("quick", start(t, "true"), nil)

	require.Eventually(t, func() bool {
		statuses := s.PollAll()
		return len(statuses) == 1 && statuses[0].State == StateFinished
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPollAllReportsFailedWithExitCode(t *testing.T) {
	s := NewSupervisor(nil, nil)
	s.Register("broken", start(t, "sh", "-c", "exit 3"), nil)

	require.Eventually(t, func() bool {
		statuses := s.PollAll()
		if len(statuses) != 1 || statuses[0].State != StateFailed {
			return false
		}
		require.NotNil(t, statuses[0].ExitCode)
		assert.Equal(t, 3, *statuses[0].ExitCode)
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopAllMarksStopped(t *testing.T) {
	s := NewSupervisor(nil, nil)
	s.Register("a", start(t, "sleep", "10"), nil)
	s.Register("b", start(t, "sleep", "10"), nil)

	s.StopAll()

	statuses := s.PollAll()
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.Equal(t, StateStopped, st.State)
	}

	// Stopped wins even after the exit is reaped.
	require.Eventually(t, func() bool {
		for _, st := range s.PollAll() {
			if st.State != StateStopped {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClearForgetsEverything(t *testing.T) {
	s := NewSupervisor(nil, nil)
	s.Register("a", start(t, "sleep", "10"), nil)
	require.Equal(t, 1, s.Count())

	s.Clear()
	assert.Equal(t, 0, s.Count())
	assert.Empty(t, s.PollAll())
}

// lineCountHandler counts worker output log records.
type lineCountHandler struct {
	mu    sync.Mutex
	lines int
}

func (h *lineCountHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *lineCountHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Message == "Worker output" {
		h.mu.Lock()
		h.lines++
		h.mu.Unlock()
	}
	return nil
}

func (h *lineCountHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *lineCountHandler) WithGroup(string) slog.Handler      { return h }

func (h *lineCountHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lines
}

func TestRegisterDrainsAllOutputBeforeExit(t *testing.T) {
	handler := &lineCountHandler{}
	s := NewSupervisor(slog.New(handler), nil)

	// A fast-exiting worker with a large burst of output: every line must
	// reach the log before the exit is recorded, none dropped by the pipe
	// closing on Wait.
	cmd := exec.Command("sh", "-c", "seq 1 500")
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())
	s.Register("bursty", cmd, stdout)

	require.Eventually(t, func() bool {
		statuses := s.PollAll()
		return len(statuses) == 1 && statuses[0].State == StateFinished
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 500, handler.count())
}

func TestStatusString(t *testing.T) {
	code := 3
	tests := []struct {
		status Status
		want   string
	}{
		{Status{Name: "w", State: StateRunning}, "w: running"},
		{Status{Name: "w", State: StateFinished}, "w: finished"},
		{Status{Name: "w", State: StateStopped}, "w: stopped"},
		{Status{Name: "w", State: StateFailed}, "w: failed"},
		{Status{Name: "w", State: StateFailed, ExitCode: &code}, "w: failed (exit 3)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}
