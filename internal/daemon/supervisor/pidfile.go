package supervisor

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/config"
	"github.com/qol-tools/qol-tray/internal/models"
)

// createTimeTolerance covers create-time rounding differences between
// platforms when matching a pidfile against a live process.
const createTimeTolerance = int64(time.Second / time.Millisecond)

func pidfilePath(runDir, pluginID string) string {
	return filepath.Join(runDir, pluginID+".json")
}

func savePidfile(runDir string, info *models.DaemonPidfile) error {
	return config.SaveJSON(pidfilePath(runDir, info.PluginID), info)
}

func removePidfile(runDir, pluginID string) error {
	return os.Remove(pidfilePath(runDir, pluginID))
}

// processCreateTime returns the kernel create time for a pid in unix
// milliseconds, or 0 when it cannot be determined.
func processCreateTime(pid int) int64 {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ct, err := p.CreateTime()
	if err != nil {
		return 0
	}
	return ct
}

// CleanupOrphans finds daemons left behind by a previous run and terminates
// them before any new daemons are started. A pidfile alone is not enough to
// kill: the live process must also match the recorded create time, so a pid
// recycled by the OS never takes down an unrelated process.
func (s *Supervisor) CleanupOrphans() {
	if s.runDir == "" {
		return
	}

	entries, err := os.ReadDir(s.runDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("failed to read run directory", zap.Error(err))
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(s.runDir, entry.Name())
		var info models.DaemonPidfile
		if err := config.LoadJSON(path, &info); err != nil {
			s.log.Warn("removing unreadable pidfile", zap.String("path", path), zap.Error(err))
			_ = os.Remove(path)
			continue
		}

		proc, err := process.NewProcess(int32(info.PID))
		if err != nil {
			// Process already gone, the pidfile is stale.
			_ = os.Remove(path)
			continue
		}

		ct, err := proc.CreateTime()
		if err != nil || !createTimeMatches(ct, info.CreateTimeMS) {
			// The pid now belongs to a different process.
			s.log.Info("removing stale pidfile for recycled pid",
				zap.String("plugin", info.PluginID),
				zap.Int("pid", info.PID))
			_ = os.Remove(path)
			continue
		}

		s.log.Warn("terminating orphaned plugin daemon",
			zap.String("plugin", info.PluginID),
			zap.Int("pid", info.PID))
		s.killOrphan(proc)
		_ = os.Remove(path)
	}
}

func createTimeMatches(actual, recorded int64) bool {
	if recorded == 0 {
		return false
	}
	diff := actual - recorded
	if diff < 0 {
		diff = -diff
	}
	return diff <= createTimeTolerance
}

// killOrphan applies the same graceful-then-forceful policy as Stop, polling
// because the orphan is not our child and cannot be waited on.
func (s *Supervisor) killOrphan(proc *process.Process) {
	_ = proc.Terminate()

	deadline := time.Now().Add(s.stopTimeout)
	for time.Now().Before(deadline) {
		if running, err := proc.IsRunning(); err != nil || !running {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	if running, _ := proc.IsRunning(); running {
		_ = proc.Kill()
	}
}
