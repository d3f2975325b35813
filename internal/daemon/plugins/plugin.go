package plugins

import (
	"strings"

	"github.com/qol-tools/qol-tray/internal/models"
)

// Well-known files inside a plugin directory.
const (
	ConfigFileName = "config.json"
	CoverFileName  = "cover.png"
)

// Plugin is the in-memory record for one installed plugin, built from its
// directory during a scan. The directory name is its stable identity.
type Plugin struct {
	ID           string
	Path         string
	Manifest     *models.Manifest
	HasRunScript bool
	HasUI        bool
	HasCover     bool
}

// Name returns the plugin's display name.
func (p *Plugin) Name() string {
	return p.Manifest.Plugin.Name
}

// HasDaemon reports whether the plugin declares an enabled daemon command.
func (p *Plugin) HasDaemon() bool {
	return p.Manifest.HasDaemon()
}

// IsSafeID reports whether id is usable as a single path component under the
// plugins root: no separators, no parent references, no NUL bytes. Every
// externally supplied plugin id goes through this before touching the
// filesystem.
func IsSafeID(id string) bool {
	switch {
	case id == "" || id == ".":
		return false
	case strings.Contains(id, ".."):
		return false
	case strings.ContainsAny(id, `/\`):
		return false
	case strings.ContainsRune(id, 0):
		return false
	}
	return true
}
