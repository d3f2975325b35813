// Package taskrunner executes named shell commands declared in
// task-runner.json. Each action is a command template with {{name}}
// placeholders filled in from the caller's parameters at execution time.
package taskrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/config"
)

// DefaultTimeout bounds an action whose config does not set one.
const DefaultTimeout = 60 * time.Second

var (
	// ErrUnknownAction is returned when the requested action id is not configured.
	ErrUnknownAction = errors.New("unknown action")
	// ErrTimeout is returned when an action outlives its timeout.
	ErrTimeout = errors.New("action timed out")
)

// Action is one configured command.
type Action struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Command     string `json:"command"`
	// Timeout is in seconds; zero falls back to DefaultTimeout.
	Timeout int    `json:"timeout,omitempty"`
	Cwd     string `json:"cwd,omitempty"`
}

// Config is the task-runner.json shape: actions keyed by id.
type Config struct {
	Actions map[string]Action `json:"actions"`
}

// ActionInfo is the listing view of an action.
type ActionInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Result carries everything a finished command produced. A non-zero exit is
// a Result, not an error; errors mean the command never ran to completion.
type Result struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Runner executes configured actions through the platform shell.
type Runner struct {
	log        *zap.Logger
	configPath string

	mu  sync.RWMutex
	cfg Config
}

// New creates a runner backed by the config file at configPath. A missing
// or unreadable config starts the runner with no actions.
func New(configPath string, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{
		log:        log,
		configPath: configPath,
		cfg:        Config{Actions: map[string]Action{}},
	}
	var cfg Config
	if err := config.LoadJSON(configPath, &cfg); err == nil {
		if cfg.Actions == nil {
			cfg.Actions = map[string]Action{}
		}
		r.cfg = cfg
	}
	return r
}

// Actions lists the configured actions sorted by id.
func (r *Runner) Actions() []ActionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ActionInfo, 0, len(r.cfg.Actions))
	for id, a := range r.cfg.Actions {
		infos = append(infos, ActionInfo{ID: id, Name: a.Name, Description: a.Description})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Config returns a copy of the current configuration.
func (r *Runner) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := Config{Actions: make(map[string]Action, len(r.cfg.Actions))}
	for id, a := range r.cfg.Actions {
		out.Actions[id] = a
	}
	return out
}

// SetConfig persists and adopts a new configuration. The in-memory config
// only changes after the file write succeeds.
func (r *Runner) SetConfig(cfg Config) error {
	if cfg.Actions == nil {
		cfg.Actions = map[string]Action{}
	}
	if err := config.SaveJSON(r.configPath, &cfg); err != nil {
		return err
	}

	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()

	r.log.Info("task runner config saved", zap.Int("actions", len(cfg.Actions)))
	return nil
}

// Execute runs an action with the given parameters and waits for it to
// finish, collecting its output.
func (r *Runner) Execute(ctx context.Context, id string, params map[string]string) (*Result, error) {
	r.mu.RLock()
	action, ok := r.cfg.Actions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}

	command := interpolate(action.Command, params)
	cwd := interpolate(action.Cwd, params)
	timeout := time.Duration(action.Timeout) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	r.log.Info("executing task",
		zap.String("action", id),
		zap.String("command", command))

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := shellCommand(runCtx, command)
	if cwd != "" {
		cmd.Dir = cwd
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		r.log.Error("task timed out", zap.String("action", id), zap.Duration("timeout", timeout))
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}

	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Success = true
	case errors.As(err, &exitErr):
		// ExitCode is -1 when the command died to a signal.
		res.ExitCode = exitErr.ExitCode()
	default:
		r.log.Error("task failed to run", zap.String("action", id), zap.Error(err))
		return nil, fmt.Errorf("command failed: %w", err)
	}
	return res, nil
}

var paramPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// interpolate substitutes {{name}} placeholders with parameter values.
// Placeholders without a matching parameter become empty strings.
func interpolate(template string, params map[string]string) string {
	return paramPattern.ReplaceAllStringFunc(template, func(m string) string {
		return params[m[2:len(m)-2]]
	})
}
