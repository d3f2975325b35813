// Package config handles configuration loading, saving, and path management.
package config

import (
	"os"
	"path/filepath"
)

// AppDirName is the name of the application directory inside the user's
// OS config directory (~/.config/qol-tray on Linux).
const AppDirName = "qol-tray"

// Directory names inside the application directory.
const (
	PluginsDirName = "plugins"
	RunDirName     = "run"
	LogsDirName    = "logs"
)

// File names inside the application directory.
const (
	DaemonFileName        = "daemon.yaml"
	SettingsFileName      = "settings.yaml"
	HotkeysFileName       = "hotkeys.json"
	BackupConfigsFileName = "plugin-configs.json"
	TokenFileName         = ".github-token"
	StoreCacheFileName    = ".plugin-cache.json"
	LockFileName          = ".qol-tray.lock"
	TaskRunnerFileName    = "task-runner.json"
	DevFileName           = "dev.json"
)

// Dir returns the path to the application directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppDirName), nil
}

// PluginsDir returns the path to the plugins directory.
func PluginsDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, PluginsDirName), nil
}

// RunDir returns the path to the directory holding plugin daemon pidfiles.
func RunDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, RunDirName), nil
}

// LogsDir returns the path to the logs directory.
func LogsDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, LogsDirName), nil
}

// DaemonFile returns the path to the daemon.yaml file.
func DaemonFile() (string, error) {
	return fileInDir(DaemonFileName)
}

// SettingsFile returns the path to the settings.yaml file.
func SettingsFile() (string, error) {
	return fileInDir(SettingsFileName)
}

// HotkeysFile returns the path to the hotkeys.json file.
func HotkeysFile() (string, error) {
	return fileInDir(HotkeysFileName)
}

// BackupConfigsFile returns the path to the aggregate plugin config backup.
func BackupConfigsFile() (string, error) {
	return fileInDir(BackupConfigsFileName)
}

// TokenFile returns the path to the stored GitHub token.
func TokenFile() (string, error) {
	return fileInDir(TokenFileName)
}

// StoreCacheFile returns the path to the plugin store cache.
func StoreCacheFile() (string, error) {
	return fileInDir(StoreCacheFileName)
}

// LockFile returns the path to the single-instance lock file.
func LockFile() (string, error) {
	return fileInDir(LockFileName)
}

// TaskRunnerFile returns the path to the task runner config.
func TaskRunnerFile() (string, error) {
	return fileInDir(TaskRunnerFileName)
}

// DevFile returns the path to the dev-mode search path config.
func DevFile() (string, error) {
	return fileInDir(DevFileName)
}

func fileInDir(name string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// EnsureDir creates the application directory if it doesn't exist.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// EnsurePluginsDir creates the plugins directory if it doesn't exist.
func EnsurePluginsDir() error {
	dir, err := PluginsDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// EnsureRunDir creates the pidfile directory if it doesn't exist.
func EnsureRunDir() error {
	dir, err := RunDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// EnsureLogsDir creates the logs directory if it doesn't exist.
func EnsureLogsDir() error {
	dir, err := LogsDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}
