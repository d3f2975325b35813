// Package supervisor manages plugin daemon child processes: starting them
// detached from the tray's terminal, stopping them gracefully with a kill
// escalation, and cleaning up orphans left behind by a crashed run.
package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/models"
)

// State describes a plugin daemon's lifecycle position.
type State string

const (
	StateNotRunning State = "not_running"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateFailed     State = "failed"
)

// Defaults applied when Options fields are zero.
const (
	DefaultStopTimeout  = 2 * time.Second
	DefaultStartupGrace = 1500 * time.Millisecond
)

// stderrTailSize bounds the diagnostic output captured per daemon.
const stderrTailSize = 8 * 1024

// handle tracks one running daemon process.
type handle struct {
	pluginID  string
	cmd       *exec.Cmd
	startedAt time.Time
	done      chan struct{}
	exitErr   error
	state     State
}

// Options configures a Supervisor.
type Options struct {
	// RunDir is where pidfiles are written, one per plugin daemon.
	RunDir string
	// StopTimeout is how long a daemon gets to exit after the graceful
	// termination signal before it is killed.
	StopTimeout time.Duration
	// StartupGrace is how long a freshly started daemon must survive before
	// it counts as started rather than failed.
	StartupGrace time.Duration
	Logger       *zap.Logger
}

// Supervisor owns every plugin daemon handle. At most one daemon runs per
// plugin: starting a new one stops any old one first.
type Supervisor struct {
	log          *zap.Logger
	runDir       string
	stopTimeout  time.Duration
	startupGrace time.Duration

	mu       sync.RWMutex
	daemons  map[string]*handle
	failures map[string]string // plugin id -> last startup failure, cleared on next Start
	onChange func()
}

// New creates a supervisor. Zero Options fields fall back to defaults.
func New(opts Options) *Supervisor {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.StartupGrace <= 0 {
		opts.StartupGrace = DefaultStartupGrace
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Supervisor{
		log:          opts.Logger,
		runDir:       opts.RunDir,
		stopTimeout:  opts.StopTimeout,
		startupGrace: opts.StartupGrace,
		daemons:      make(map[string]*handle),
		failures:     make(map[string]string),
	}
}

// SetOnChange sets a callback invoked whenever daemon state changes
// (started, stopped, exited). Used to refresh the tray menu.
func (s *Supervisor) SetOnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Start launches the daemon command for a plugin with the plugin directory as
// working directory and stdio detached. If the process exits within the
// startup grace window the start is reported as a failure carrying the
// captured stderr tail. Any previously running daemon for the same plugin is
// stopped first.
func (s *Supervisor) Start(pluginID, dir, command string) error {
	// Replace, never duplicate.
	s.Stop(pluginID)

	s.mu.Lock()
	delete(s.failures, pluginID)
	s.mu.Unlock()

	path := filepath.Join(dir, command)
	if _, err := os.Stat(path); err != nil {
		s.recordFailure(pluginID, "daemon command not found")
		return fmt.Errorf("daemon command not found: %w", err)
	}

	tail := newTailBuffer(stderrTailSize)
	cmd := exec.Command(path)
	cmd.Dir = dir
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = tail
	Detach(cmd)

	h := &handle{
		pluginID:  pluginID,
		cmd:       cmd,
		startedAt: time.Now().UTC(),
		done:      make(chan struct{}),
		state:     StateStarting,
	}

	if err := cmd.Start(); err != nil {
		s.recordFailure(pluginID, "daemon failed to start")
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	s.mu.Lock()
	s.daemons[pluginID] = h
	s.mu.Unlock()

	s.writePidfile(h)

	go s.monitor(h)

	s.log.Info("plugin daemon starting",
		zap.String("plugin", pluginID),
		zap.Int("pid", cmd.Process.Pid))

	// A daemon that dies inside the grace window is a startup failure and
	// its stderr becomes part of the error. Cleanup happens here rather than
	// in monitor so the failed state is visible as soon as Start returns.
	select {
	case <-h.done:
		msg := strings.TrimSpace(tail.String())
		s.untrack(h)
		s.recordFailure(pluginID, "daemon exited during startup")
		s.notifyChange()
		if msg != "" {
			return fmt.Errorf("daemon exited during startup: %s", msg)
		}
		return fmt.Errorf("daemon exited during startup: %v", h.exitErr)
	case <-time.After(s.startupGrace):
	}

	s.mu.Lock()
	h.state = StateRunning
	s.mu.Unlock()
	s.notifyChange()
	return nil
}

// monitor waits for a daemon process to exit and cleans up its tracking
// state, unless a newer handle has already replaced it.
func (s *Supervisor) monitor(h *handle) {
	h.exitErr = h.cmd.Wait()
	close(h.done)

	s.untrack(h)

	if h.exitErr != nil {
		s.log.Info("plugin daemon exited",
			zap.String("plugin", h.pluginID),
			zap.Error(h.exitErr))
	} else {
		s.log.Info("plugin daemon exited", zap.String("plugin", h.pluginID))
	}
	s.notifyChange()
}

// Stop terminates a plugin's daemon: graceful signal, bounded wait, then
// kill. Stopping a plugin with no running daemon is a no-op.
func (s *Supervisor) Stop(pluginID string) {
	s.mu.Lock()
	h, ok := s.daemons[pluginID]
	if !ok {
		s.mu.Unlock()
		return
	}
	h.state = StateStopping
	s.mu.Unlock()

	s.log.Info("stopping plugin daemon", zap.String("plugin", pluginID))
	h.stop(s.stopTimeout)
	s.untrack(h)
	s.notifyChange()
}

// StopAll stops every running daemon. Used during shutdown and before a
// registry reload.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	handles := make([]*handle, 0, len(s.daemons))
	for _, h := range s.daemons {
		h.state = StateStopping
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		s.log.Info("stopping plugin daemon", zap.String("plugin", h.pluginID))
		h.stop(s.stopTimeout)
		s.untrack(h)
	}
	if len(handles) > 0 {
		s.notifyChange()
	}
}

// untrack removes a handle from the daemon map if it is still the current
// owner for its plugin. Both the stop path and the exit monitor call this;
// whichever runs first wins.
func (s *Supervisor) untrack(h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if curr, ok := s.daemons[h.pluginID]; ok && curr == h {
		delete(s.daemons, h.pluginID)
		s.removePidfileLocked(h.pluginID)
	}
}

// stop delivers the graceful signal, waits up to timeout, then kills.
func (h *handle) stop(timeout time.Duration) {
	if h.cmd.Process == nil {
		return
	}

	_ = terminate(h.cmd.Process)

	select {
	case <-h.done:
		return
	case <-time.After(timeout):
	}

	_ = h.cmd.Process.Kill()
	<-h.done
}

// IsRunning reports whether a daemon is currently tracked for the plugin.
func (s *Supervisor) IsRunning(pluginID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.daemons[pluginID]
	return ok
}

// Tracked returns the plugin ids with a tracked daemon.
func (s *Supervisor) Tracked() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.daemons))
	for id := range s.daemons {
		ids = append(ids, id)
	}
	return ids
}

// State returns the lifecycle state for a plugin's daemon.
func (s *Supervisor) State(pluginID string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if h, ok := s.daemons[pluginID]; ok {
		return h.state
	}
	if _, ok := s.failures[pluginID]; ok {
		return StateFailed
	}
	return StateNotRunning
}

// FailureMessage returns the last recorded startup failure for a plugin, or
// the empty string.
func (s *Supervisor) FailureMessage(pluginID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures[pluginID]
}

// RunningCount returns the number of tracked daemons.
func (s *Supervisor) RunningCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.daemons)
}

func (s *Supervisor) recordFailure(pluginID, msg string) {
	s.mu.Lock()
	s.failures[pluginID] = msg
	s.mu.Unlock()
}

func (s *Supervisor) notifyChange() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		go fn()
	}
}

// writePidfile records the daemon's identity so a later run can tell a
// genuine orphan from an unrelated process that reused the pid.
func (s *Supervisor) writePidfile(h *handle) {
	if s.runDir == "" {
		return
	}

	info := &models.DaemonPidfile{
		PluginID:     h.pluginID,
		PID:          h.cmd.Process.Pid,
		CreateTimeMS: processCreateTime(h.cmd.Process.Pid),
		Command:      h.cmd.Path,
		StartedAt:    h.startedAt,
	}
	if err := savePidfile(s.runDir, info); err != nil {
		s.log.Warn("failed to write daemon pidfile",
			zap.String("plugin", h.pluginID),
			zap.Error(err))
	}
}

func (s *Supervisor) removePidfileLocked(pluginID string) {
	if s.runDir == "" {
		return
	}
	if err := removePidfile(s.runDir, pluginID); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove daemon pidfile",
			zap.String("plugin", pluginID),
			zap.Error(err))
	}
}

// tailBuffer is an io.Writer that keeps only the last capacity bytes written.
type tailBuffer struct {
	mu       sync.Mutex
	capacity int
	buf      []byte
}

func newTailBuffer(capacity int) *tailBuffer {
	return &tailBuffer{capacity: capacity}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if len(t.buf) > t.capacity {
		t.buf = t.buf[len(t.buf)-t.capacity:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
