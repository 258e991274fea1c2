package stream

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nominal-io/connect/procmon"
)

func newTestManager(recognized ...string) *Manager {
	m := make(map[string]bool, len(recognized))
	for _, id := range recognized {
		m[id] = true
	}
	return NewManager(ManagerDeps{Recognized: m})
}

func TestManagerStartStop(t *testing.T) {
	m := newTestManager()
	assert.False(t, m.IsRunning())

	m.StartStreaming()
	assert.True(t, m.IsRunning())

	m.StopStreaming()
	assert.False(t, m.IsRunning())
}

func TestManagerStartStopIdempotent(t *testing.T) {
	m := newTestManager()
	m.StartStreaming()
	m.StartStreaming()
	assert.True(t, m.IsRunning())

	m.StopStreaming()
	m.StopStreaming()
	assert.False(t, m.IsRunning())
}

func TestStartWhileRunningRestartsSession(t *testing.T) {
	m := newTestManager("chan_a")
	m.StartStreaming()
	m.Handoff() <- Data{StreamID: "chan_a", Timestamp: 1.0, Value: 2.0}
	m.DrainAndRoute()

	cmd := exec.Command("sleep", "10")
	require.NoError(t, cmd.Start())
	m.RegisterProcess("worker", cmd, nil)

	// start == restart: buffers and workers from the prior session go away
	m.StartStreaming()
	assert.True(t, m.IsRunning())
	assert.Empty(t, m.Store().StreamIDs())
	assert.Empty(t, m.PollProcesses())
}

func TestManagerDrainWhileStoppedDiscards(t *testing.T) {
	m := newTestManager("chan_a")
	m.Handoff() <- Data{StreamID: "chan_a", Timestamp: 1.0, Value: 2.0}

	assert.Equal(t, 0, m.DrainAndRoute())

	// The queued message is gone: starting fresh yields nothing.
	m.StartStreaming()
	assert.Equal(t, 0, m.DrainAndRoute())
	assert.Nil(t, m.Store().Snapshot("chan_a"))
}

func TestManagerDrainWhileRunningRoutes(t *testing.T) {
	m := newTestManager("chan_a")
	m.StartStreaming()
	m.Handoff() <- Data{StreamID: "chan_a", Timestamp: 1.0, Value: 2.0}

	assert.Equal(t, 1, m.DrainAndRoute())
	assert.Len(t, m.Store().Snapshot("chan_a"), 1)
}

func TestStopThenStartYieldsEmptyState(t *testing.T) {
	m := newTestManager("chan_a")
	m.StartStreaming()
	m.Handoff() <- Data{StreamID: "chan_a", Timestamp: 1.0, Value: 2.0}
	m.DrainAndRoute()
	require.Len(t, m.Store().Snapshot("chan_a"), 1)

	cmd := exec.Command("sleep", "10")
	require.NoError(t, cmd.Start())
	m.RegisterProcess("worker", cmd, nil)

	m.StopStreaming()

	// Killed workers stay visible as stopped until the next start.
	statuses := m.PollProcesses()
	require.Len(t, statuses, 1)
	assert.Equal(t, procmon.StateStopped, statuses[0].State)
	assert.Empty(t, m.Store().StreamIDs())

	m.StartStreaming()
	assert.Empty(t, m.PollProcesses())
	assert.Empty(t, m.Store().StreamIDs())
	assert.Equal(t, 0, m.DrainAndRoute())
}

func TestStopKillsWorkers(t *testing.T) {
	m := newTestManager()
	m.StartStreaming()

	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	m.RegisterProcess("long_worker", cmd, nil)

	m.StopStreaming()

	// The kill lands quickly; Wait in the supervisor reaps the child.
	require.Eventually(t, func() bool {
		statuses := m.PollProcesses()
		return len(statuses) == 1 && statuses[0].State == procmon.StateStopped
	}, 2*time.Second, 10*time.Millisecond)
}
