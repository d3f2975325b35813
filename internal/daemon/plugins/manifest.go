package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/qol-tools/qol-tray/internal/models"
)

// ManifestFileName is the per-plugin declaration file.
const ManifestFileName = "plugin.toml"

// nameLine matches a `name = "..."` assignment. It is the salvage path for
// manifests that do not parse as TOML.
var nameLine = regexp.MustCompile(`(?m)^\s*name\s*=\s*"([^"]*)"`)

// ParseManifest parses raw manifest text. It never gives up entirely: when
// strict parsing fails it salvages a minimal manifest, scanning the text for
// a name line and falling back to dirName, and returns it together with the
// parse error so the caller can log what went wrong. Unknown fields are
// ignored; missing sections mean no menu and no daemon.
func ParseManifest(raw []byte, dirName string) (*models.Manifest, error) {
	var m models.Manifest
	if err := toml.Unmarshal(raw, &m); err != nil {
		return salvageManifest(raw, dirName), fmt.Errorf("manifest does not parse: %w", err)
	}
	if strings.TrimSpace(m.Plugin.Name) == "" {
		m.Plugin.Name = dirName
	}
	return &m, nil
}

func salvageManifest(raw []byte, dirName string) *models.Manifest {
	if match := nameLine.FindSubmatch(raw); match != nil {
		if name := strings.TrimSpace(string(match[1])); name != "" {
			return models.MinimalManifest(name)
		}
	}
	return models.MinimalManifest(dirName)
}

// LoadManifest reads and parses the manifest in dir. The returned manifest
// is always usable; a non-nil error only reports why it is degraded (file
// missing, unreadable, or unparseable).
func LoadManifest(dir string) (*models.Manifest, error) {
	dirName := filepath.Base(dir)

	raw, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return models.MinimalManifest(dirName), fmt.Errorf("no %s present", ManifestFileName)
		}
		return models.MinimalManifest(dirName), fmt.Errorf("failed to read manifest: %w", err)
	}

	return ParseManifest(raw, dirName)
}
