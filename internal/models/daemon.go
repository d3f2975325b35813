package models

import "time"

// DaemonInfo represents the running daemon's connection information.
// This corresponds to <config dir>/qol-tray/daemon.yaml.
type DaemonInfo struct {
	Version   int       `yaml:"version"`
	Host      string    `yaml:"host"`
	Port      int       `yaml:"port"`
	PID       int       `yaml:"pid"`
	StartedAt time.Time `yaml:"started_at"`
}

// NewDaemonInfo creates a new daemon info with current values.
func NewDaemonInfo(host string, port, pid int) *DaemonInfo {
	return &DaemonInfo{
		Version:   1,
		Host:      host,
		Port:      port,
		PID:       pid,
		StartedAt: time.Now().UTC(),
	}
}

// DaemonPidfile records an identifying snapshot of a spawned plugin daemon.
// This corresponds to run/<plugin id>.json. Orphan cleanup verifies both the
// pid and the process create time before killing anything, so a recycled pid
// belonging to an unrelated process is never touched.
type DaemonPidfile struct {
	PluginID     string    `json:"plugin_id"`
	PID          int       `json:"pid"`
	CreateTimeMS int64     `json:"create_time_ms"`
	Command      string    `json:"command"`
	StartedAt    time.Time `json:"started_at"`
}
