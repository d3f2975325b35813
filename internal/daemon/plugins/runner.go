package plugins

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/qol-tools/qol-tray/internal/daemon/supervisor"
)

// scriptRunner pairs an entry-point filename with the interpreter that runs
// it. The per-platform candidate lists live in runner_unix.go and
// runner_windows.go.
type scriptRunner struct {
	file  string
	shell string
	flag  string
}

// Script is a resolved plugin entry point.
type Script struct {
	Shell string
	Flag  string
	Path  string
}

// FindScript returns the plugin's runnable entry point, or nil if the
// directory has none.
func FindScript(dir string) *Script {
	for _, r := range scriptRunners {
		path := filepath.Join(dir, r.file)
		if _, err := os.Stat(path); err == nil {
			return &Script{Shell: r.shell, Flag: r.flag, Path: path}
		}
	}
	return nil
}

// RunAction executes a plugin's entry point as a detached child, passing the
// action id as its only argument. The child inherits nothing else from the
// host: no stdio, no environment contract, just "your script was invoked
// with an action name".
func RunAction(pluginDir, action string) error {
	script := FindScript(pluginDir)
	if script == nil {
		return fmt.Errorf("no run script in %s", filepath.Base(pluginDir))
	}

	args := make([]string, 0, 3)
	if script.Flag != "" {
		args = append(args, script.Flag)
	}
	args = append(args, script.Path, action)

	cmd := exec.Command(script.Shell, args...)
	cmd.Dir = pluginDir
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	supervisor.Detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start plugin script: %w", err)
	}
	// Reap in the background; the action's outcome is the plugin's business.
	go cmd.Wait()
	return nil
}
