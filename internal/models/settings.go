package models

// ServerConfig holds the control surface listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DaemonsConfig holds plugin daemon supervision settings.
type DaemonsConfig struct {
	StopTimeoutSeconds int `yaml:"stop_timeout_seconds"`
	StartupGraceMillis int `yaml:"startup_grace_ms"`
}

// StoreConfig holds plugin store settings.
type StoreConfig struct {
	Org               string `yaml:"org"`
	CacheMaxAgeMinutes int   `yaml:"cache_max_age_minutes"`
}

// NotificationsConfig holds desktop notification settings.
type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// UpdatesConfig holds daemon self-update check settings.
type UpdatesConfig struct {
	CheckOnStartup bool `yaml:"check_on_startup"`
}

// TelemetryConfig holds opt-in anonymous telemetry settings.
// Nothing is sent unless Enabled is true and an API key is present.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	APIKey      string `yaml:"api_key,omitempty"`
	AnonymousID string `yaml:"anonymous_id,omitempty"`
}

// Settings represents global application settings.
// This corresponds to <config dir>/qol-tray/settings.yaml.
type Settings struct {
	Version       int                 `yaml:"version"`
	LogLevel      string              `yaml:"log_level"` // "debug" | "info" | "warn" | "error"
	PluginsDir    string              `yaml:"plugins_dir,omitempty"` // empty = default location
	Server        ServerConfig        `yaml:"server"`
	Daemons       DaemonsConfig       `yaml:"daemons"`
	Store         StoreConfig         `yaml:"store"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Updates       UpdatesConfig       `yaml:"updates"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
}

// NewSettings creates settings with default values.
func NewSettings() *Settings {
	return &Settings{
		Version:  1,
		LogLevel: "info",
		Server: ServerConfig{
			Port: 42700,
		},
		Daemons: DaemonsConfig{
			StopTimeoutSeconds: 2,
			StartupGraceMillis: 1500,
		},
		Store: StoreConfig{
			Org:               "qol-tools",
			CacheMaxAgeMinutes: 60,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
		},
		Updates: UpdatesConfig{
			CheckOnStartup: true,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}
