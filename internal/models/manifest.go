// Package models contains shared data structures used across the application.
package models

// Menu item types recognized in a manifest.
const (
	MenuItemAction    = "action"
	MenuItemCheckbox  = "checkbox"
	MenuItemSeparator = "separator"
	MenuItemSubmenu   = "submenu"
)

// ActionRun is the default action id a binding or menu item dispatches to.
const ActionRun = "run"

// Manifest represents a plugin's declaration.
// This corresponds to the plugin.toml file in the plugin's directory.
type Manifest struct {
	Plugin PluginMeta  `toml:"plugin"`
	Menu   *Menu       `toml:"menu,omitempty"`
	Daemon *DaemonSpec `toml:"daemon,omitempty"`
}

// PluginMeta is the [plugin] section of a manifest.
type PluginMeta struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description,omitempty"`
	Version     string   `toml:"version,omitempty"`
	Author      string   `toml:"author,omitempty"`
	Platforms   []string `toml:"platforms,omitempty"` // nil = all platforms
}

// Menu is the [menu] section: a tray label plus an ordered item list.
type Menu struct {
	Label string     `toml:"label"`
	Icon  string     `toml:"icon,omitempty"`
	Items []MenuItem `toml:"items,omitempty"`
}

// MenuItem is one entry in a plugin menu, discriminated by Type.
type MenuItem struct {
	Type      string     `toml:"type"`
	ID        string     `toml:"id,omitempty"`
	Label     string     `toml:"label,omitempty"`
	Action    string     `toml:"action,omitempty"` // "run" | "settings" | "toggle-config" | "custom"
	ConfigKey string     `toml:"config_key,omitempty"`
	Checked   bool       `toml:"checked,omitempty"`
	Items     []MenuItem `toml:"items,omitempty"` // submenu children
}

// DaemonSpec is the optional [daemon] section.
type DaemonSpec struct {
	Enabled        bool   `toml:"enabled"`
	Command        string `toml:"command"`
	RestartOnCrash bool   `toml:"restart_on_crash,omitempty"`
}

// MinimalManifest creates a manifest carrying only a display name. It is the
// fallback shape for plugin directories whose manifest is missing or broken.
func MinimalManifest(name string) *Manifest {
	return &Manifest{Plugin: PluginMeta{Name: name}}
}

// PlatformAllowed reports whether a platforms list admits the given GOOS
// value. An absent (nil) list allows every platform; a present-but-empty
// list allows none. "macos" is accepted as a synonym for darwin since that
// is what most published manifests say.
func PlatformAllowed(platforms []string, goos string) bool {
	if platforms == nil {
		return true
	}
	for _, p := range platforms {
		if p == goos || (p == "macos" && goos == "darwin") {
			return true
		}
	}
	return false
}

// SupportsPlatform reports whether the manifest allows the given GOOS value.
func (m *Manifest) SupportsPlatform(goos string) bool {
	return PlatformAllowed(m.Plugin.Platforms, goos)
}

// HasDaemon reports whether the manifest declares an enabled daemon command.
func (m *Manifest) HasDaemon() bool {
	return m.Daemon != nil && m.Daemon.Enabled && m.Daemon.Command != ""
}

// ActionRef identifies one invocable menu action: the id passed to the run
// script plus the label shown to the user.
type ActionRef struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Actions collects every action item in the menu, submenus included,
// preserving menu order.
func (m *Manifest) Actions() []ActionRef {
	if m.Menu == nil {
		return nil
	}
	var refs []ActionRef
	collectActions(m.Menu.Items, &refs)
	return refs
}

// ActionIDs collects the ids of every action item in the menu, submenus
// included, preserving menu order.
func (m *Manifest) ActionIDs() []string {
	refs := m.Actions()
	if len(refs) == 0 {
		return nil
	}
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}
	return ids
}

// ToggleRef identifies one checkbox menu item: the dotted config key it
// flips, the label shown next to the check mark, and the checked state to
// display before the config holds a value.
type ToggleRef struct {
	ConfigKey string `json:"config_key"`
	Label     string `json:"label"`
	Default   bool   `json:"default"`
}

// Toggles collects every checkbox item in the menu, submenus included,
// preserving menu order. A checkbox without a config key has nothing to
// flip and is skipped.
func (m *Manifest) Toggles() []ToggleRef {
	if m.Menu == nil {
		return nil
	}
	var refs []ToggleRef
	collectToggles(m.Menu.Items, &refs)
	return refs
}

func collectToggles(items []MenuItem, out *[]ToggleRef) {
	for _, it := range items {
		switch it.Type {
		case MenuItemCheckbox:
			if it.ConfigKey != "" {
				label := it.Label
				if label == "" {
					label = it.ConfigKey
				}
				*out = append(*out, ToggleRef{ConfigKey: it.ConfigKey, Label: label, Default: it.Checked})
			}
		case MenuItemSubmenu:
			collectToggles(it.Items, out)
		}
	}
}

func collectActions(items []MenuItem, out *[]ActionRef) {
	for _, it := range items {
		switch it.Type {
		case MenuItemAction:
			if it.ID != "" {
				label := it.Label
				if label == "" {
					label = it.ID
				}
				*out = append(*out, ActionRef{ID: it.ID, Label: label})
			}
		case MenuItemSubmenu:
			collectActions(it.Items, out)
		}
	}
}
