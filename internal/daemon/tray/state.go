// Package tray implements the system tray icon and menu for the daemon.
package tray

// DaemonState is the tray's window into the daemon: read access for menu
// labels plus the operations its entries trigger.
type DaemonState interface {
	Port() int
	Plugins() []PluginInfo
	OpenUI(pluginID string)
	OpenStore()
	RunAction(pluginID, actionID string)
	ToggleConfig(pluginID, configKey string)
	ReloadPlugins()
	RequestShutdown()
}

// PluginInfo describes an installed plugin for display in the tray menu.
type PluginInfo struct {
	ID            string
	Label         string
	HasUI         bool
	DaemonRunning bool
	Actions       []ActionInfo
	Toggles       []ToggleInfo
}

// ActionInfo is one runnable entry in a plugin's submenu.
type ActionInfo struct {
	ID    string
	Label string
}

// ToggleInfo is one checkbox entry in a plugin's submenu. Checked reflects
// the plugin's stored config, not menu-local state.
type ToggleInfo struct {
	ConfigKey string
	Label     string
	Checked   bool
}
