package models

// HotkeyBinding associates a global key combination with a plugin action.
// One element of the hotkeys array in hotkeys.json.
type HotkeyBinding struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	PluginID string `json:"plugin_id"`
	Action   string `json:"action"`
	// Enabled is retained for older configs and the browser UI. Presence in
	// the list is what activates a binding; removal is how one is disabled.
	Enabled bool `json:"enabled"`
}

// HotkeyConfig is the persisted binding list.
// This corresponds to <config dir>/hotkeys.json.
type HotkeyConfig struct {
	Hotkeys []HotkeyBinding `json:"hotkeys"`
}

// NewHotkeyConfig creates an empty hotkey config.
func NewHotkeyConfig() *HotkeyConfig {
	return &HotkeyConfig{Hotkeys: []HotkeyBinding{}}
}
