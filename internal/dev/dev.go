// Package dev implements developer tooling: discovering plugin working
// trees on disk and symlinking them into the plugins directory so edits
// show up without reinstalling. Everything here sits behind
// config.DevMode.
package dev

import (
	"os"
	"path/filepath"

	"github.com/qol-tools/qol-tray/internal/config"
)

// SearchConfig is the dev.json shape: where to look for plugin working trees.
type SearchConfig struct {
	SearchPaths []string `json:"search_paths"`
}

// LoadSearchConfig reads dev.json. A missing or unreadable file yields an
// empty config, which makes EffectiveSearchPaths fall back to guessing.
func LoadSearchConfig(path string) *SearchConfig {
	var cfg SearchConfig
	if err := config.LoadJSON(path, &cfg); err != nil {
		return &SearchConfig{}
	}
	return &cfg
}

// commonDevDirs are home-relative directories tried when no search paths
// are configured.
var commonDevDirs = []string{
	"Developer",
	"Projects",
	"repos",
	"src",
	"code",
	"dev",
	"Git",
	"GitHub",
	"work",
	"workspace",
	filepath.Join("Documents", "GitHub"),
	filepath.Join("Documents", "Projects"),
}

// EffectiveSearchPaths returns the configured paths, or falls back to
// common development directories under the home dir plus the parent of the
// working directory. Duplicates collapse after symlink resolution.
func (c *SearchConfig) EffectiveSearchPaths() []string {
	var paths []string
	if len(c.SearchPaths) > 0 {
		paths = append(paths, c.SearchPaths...)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			for _, name := range commonDevDirs {
				if p := filepath.Join(home, name); isDir(p) {
					paths = append(paths, p)
				}
			}
		}
		if cwd, err := os.Getwd(); err == nil {
			if parent := filepath.Dir(cwd); parent != cwd {
				paths = append(paths, parent)
			}
		}
	}

	seen := make(map[string]bool, len(paths))
	unique := make([]string, 0, len(paths))
	for _, p := range paths {
		abs := canonical(p)
		if !seen[abs] {
			seen[abs] = true
			unique = append(unique, abs)
		}
	}
	return unique
}

// canonical resolves symlinks and relative segments, falling back to the
// input when resolution fails.
func canonical(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
