//go:build !windows

package supervisor

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qol-tools/qol-tray/internal/models"
)

func newTestSupervisor(t *testing.T) (*Supervisor, string) {
	t.Helper()
	runDir := t.TempDir()
	s := New(Options{
		RunDir:       runDir,
		StopTimeout:  2 * time.Second,
		StartupGrace: 300 * time.Millisecond,
	})
	t.Cleanup(s.StopAll)
	return s, runDir
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0o755)
	require.NoError(t, err)
}

func TestStartAndStopDaemon(t *testing.T) {
	s, runDir := newTestSupervisor(t)
	pluginDir := t.TempDir()
	writeScript(t, pluginDir, "daemon.sh", "trap 'exit 0' TERM\nwhile :; do sleep 0.1; done\n")

	err := s.Start("clipboard-sync", pluginDir, "daemon.sh")
	require.NoError(t, err)

	assert.True(t, s.IsRunning("clipboard-sync"))
	assert.Equal(t, StateRunning, s.State("clipboard-sync"))
	assert.FileExists(t, filepath.Join(runDir, "clipboard-sync.json"))

	s.Stop("clipboard-sync")

	assert.False(t, s.IsRunning("clipboard-sync"))
	assert.Equal(t, StateNotRunning, s.State("clipboard-sync"))
	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(runDir, "clipboard-sync.json"))
		return os.IsNotExist(err)
	}, 2*time.Second, 50*time.Millisecond, "pidfile should be removed after stop")
}

func TestStartMissingCommand(t *testing.T) {
	s, _ := newTestSupervisor(t)
	pluginDir := t.TempDir()

	err := s.Start("ghost", pluginDir, "daemon.sh")
	require.Error(t, err)
	assert.Equal(t, StateFailed, s.State("ghost"))
	assert.NotEmpty(t, s.FailureMessage("ghost"))
}

func TestEarlyExitReportsStderr(t *testing.T) {
	s, _ := newTestSupervisor(t)
	pluginDir := t.TempDir()
	writeScript(t, pluginDir, "daemon.sh", "echo 'missing API token' >&2\nexit 1\n")

	err := s.Start("broken", pluginDir, "daemon.sh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing API token")
	assert.Equal(t, StateFailed, s.State("broken"))
	assert.False(t, s.IsRunning("broken"))
}

func TestStartClearsPreviousFailure(t *testing.T) {
	s, _ := newTestSupervisor(t)
	pluginDir := t.TempDir()
	writeScript(t, pluginDir, "daemon.sh", "exit 1\n")

	require.Error(t, s.Start("flaky", pluginDir, "daemon.sh"))
	require.Equal(t, StateFailed, s.State("flaky"))

	writeScript(t, pluginDir, "daemon.sh", "trap 'exit 0' TERM\nwhile :; do sleep 0.1; done\n")
	require.NoError(t, s.Start("flaky", pluginDir, "daemon.sh"))
	assert.Equal(t, StateRunning, s.State("flaky"))
}

func TestStopWithoutDaemonIsNoOp(t *testing.T) {
	s, _ := newTestSupervisor(t)

	s.Stop("never-started")
	s.Stop("never-started")

	assert.Equal(t, StateNotRunning, s.State("never-started"))
}

func TestStartReplacesRunningDaemon(t *testing.T) {
	s, _ := newTestSupervisor(t)
	pluginDir := t.TempDir()
	writeScript(t, pluginDir, "daemon.sh", "trap 'exit 0' TERM\nwhile :; do sleep 0.1; done\n")

	require.NoError(t, s.Start("solo", pluginDir, "daemon.sh"))
	firstPID := runningPID(t, s, "solo")

	require.NoError(t, s.Start("solo", pluginDir, "daemon.sh"))
	secondPID := runningPID(t, s, "solo")

	assert.NotEqual(t, firstPID, secondPID)
	assert.Equal(t, 1, s.RunningCount())
}

func runningPID(t *testing.T, s *Supervisor, pluginID string) int {
	t.Helper()
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.daemons[pluginID]
	require.True(t, ok, "daemon %s should be running", pluginID)
	return h.cmd.Process.Pid
}

func TestStopAll(t *testing.T) {
	s, _ := newTestSupervisor(t)
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeScript(t, dirA, "daemon.sh", "trap 'exit 0' TERM\nwhile :; do sleep 0.1; done\n")
	writeScript(t, dirB, "daemon.sh", "trap 'exit 0' TERM\nwhile :; do sleep 0.1; done\n")

	require.NoError(t, s.Start("a", dirA, "daemon.sh"))
	require.NoError(t, s.Start("b", dirB, "daemon.sh"))
	require.Equal(t, 2, s.RunningCount())

	s.StopAll()

	assert.Equal(t, 0, s.RunningCount())
}

func TestCleanupOrphans(t *testing.T) {
	s, runDir := newTestSupervisor(t)

	// Simulate a daemon left over from a crashed run: a detached child this
	// supervisor has no handle for, identified only by its pidfile.
	orphan := exec.Command("sh", "-c", "sleep 30")
	Detach(orphan)
	require.NoError(t, orphan.Start())
	go orphan.Wait()
	pid := orphan.Process.Pid

	info := &models.DaemonPidfile{
		PluginID:     "leftover",
		PID:          pid,
		CreateTimeMS: processCreateTime(pid),
		Command:      "sleep",
		StartedAt:    time.Now().UTC(),
	}
	require.NoError(t, savePidfile(runDir, info))

	s.CleanupOrphans()

	assert.Eventually(t, func() bool {
		p, err := process.NewProcess(int32(pid))
		if err != nil {
			return true
		}
		running, err := p.IsRunning()
		return err != nil || !running
	}, 3*time.Second, 100*time.Millisecond, "orphan process should be terminated")

	_, err := os.Stat(pidfilePath(runDir, "leftover"))
	assert.True(t, os.IsNotExist(err), "pidfile should be removed")
}

func TestCleanupOrphansSkipsRecycledPID(t *testing.T) {
	s, runDir := newTestSupervisor(t)

	// A live process whose create time does not match the pidfile must not
	// be killed; only the stale pidfile goes away.
	bystander := exec.Command("sh", "-c", "sleep 30")
	Detach(bystander)
	require.NoError(t, bystander.Start())
	pid := bystander.Process.Pid
	defer func() {
		_ = bystander.Process.Kill()
		_ = bystander.Wait()
	}()

	info := &models.DaemonPidfile{
		PluginID:     "recycled",
		PID:          pid,
		CreateTimeMS: 12345, // from a long-dead boot
		Command:      "sleep",
		StartedAt:    time.Now().UTC(),
	}
	require.NoError(t, savePidfile(runDir, info))

	s.CleanupOrphans()

	p, err := process.NewProcess(int32(pid))
	require.NoError(t, err)
	running, err := p.IsRunning()
	require.NoError(t, err)
	assert.True(t, running, "unrelated process must survive orphan cleanup")

	_, err = os.Stat(pidfilePath(runDir, "recycled"))
	assert.True(t, os.IsNotExist(err), "stale pidfile should be removed")
}

func TestCleanupOrphansRemovesDeadEntries(t *testing.T) {
	s, runDir := newTestSupervisor(t)

	short := exec.Command("true")
	require.NoError(t, short.Start())
	pid := short.Process.Pid
	require.NoError(t, short.Wait())

	info := &models.DaemonPidfile{
		PluginID:     "dead",
		PID:          pid,
		CreateTimeMS: 1,
		Command:      "true",
		StartedAt:    time.Now().UTC(),
	}
	require.NoError(t, savePidfile(runDir, info))

	s.CleanupOrphans()

	_, err := os.Stat(pidfilePath(runDir, "dead"))
	assert.True(t, os.IsNotExist(err))
}

func TestCreateTimeMatches(t *testing.T) {
	tests := []struct {
		name     string
		actual   int64
		recorded int64
		want     bool
	}{
		{"exact", 1700000000000, 1700000000000, true},
		{"within tolerance", 1700000000400, 1700000000000, true},
		{"outside tolerance", 1700000002000, 1700000000000, false},
		{"unknown recorded time never matches", 1700000000000, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := createTimeMatches(tt.actual, tt.recorded); got != tt.want {
				t.Errorf("createTimeMatches(%d, %d) = %v, want %v", tt.actual, tt.recorded, got, tt.want)
			}
		})
	}
}
