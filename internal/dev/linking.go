package dev

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/qol-tools/qol-tray/internal/config"
	"github.com/qol-tools/qol-tray/internal/daemon/plugins"
)

// backupSuffix marks a regular install moved aside to make room for a link.
const backupSuffix = ".backup"

var (
	// ErrAlreadyLinked is returned when the plugins dir already symlinks
	// this id somewhere.
	ErrAlreadyLinked = errors.New("plugin is already linked")
	// ErrNotALink is returned when unlinking an id that is a regular
	// install rather than a symlink.
	ErrNotALink = errors.New("not a symlink, uninstall it instead")
	// ErrLinkNotFound is returned when unlinking an id with no entry.
	ErrLinkNotFound = errors.New("plugin not found")
)

// Linked describes one plugins-dir entry as the dev tooling sees it:
// symlinked working trees carry their target, regular installs do not.
type Linked struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsSymlink bool   `json:"is_symlink"`
	Target    string `json:"target,omitempty"`
}

// ListLinks inventories the plugins dir, backups excluded, sorted by
// display name. A missing plugins dir is an empty inventory.
func ListLinks(pluginsDir string) ([]Linked, error) {
	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read plugins dir: %w", err)
	}

	var links []Linked
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), backupSuffix) {
			continue
		}
		path := filepath.Join(pluginsDir, entry.Name())
		fi, err := os.Lstat(path)
		if err != nil {
			continue
		}

		l := Linked{ID: entry.Name()}
		if fi.Mode()&os.ModeSymlink != 0 {
			l.IsSymlink = true
			if target, err := os.Readlink(path); err == nil {
				l.Target = target
			}
		}
		manifest, _ := plugins.LoadManifest(path)
		l.Name = manifest.Plugin.Name
		links = append(links, l)
	}

	sort.Slice(links, func(i, j int) bool { return links[i].Name < links[j].Name })
	return links, nil
}

// Link symlinks a plugin working tree into the plugins dir under its
// directory name and returns that id. A regular install under the same id
// is moved aside to <id>.backup first, to come back on Unlink.
func Link(source, pluginsDir string) (string, error) {
	if !isDir(source) {
		return "", errors.New("source path does not exist")
	}
	if !config.FileExists(filepath.Join(source, plugins.ManifestFileName)) {
		return "", fmt.Errorf("no %s found in source", plugins.ManifestFileName)
	}

	id := filepath.Base(source)
	linkPath := filepath.Join(pluginsDir, id)

	if err := backupExisting(linkPath); err != nil {
		return "", err
	}
	if err := os.MkdirAll(pluginsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create plugins dir: %w", err)
	}
	if err := os.Symlink(source, linkPath); err != nil {
		return "", fmt.Errorf("failed to create symlink: %w", err)
	}
	return id, nil
}

// Unlink removes a plugin symlink and restores the backed-up regular
// install if one was moved aside by Link.
func Unlink(id, pluginsDir string) error {
	linkPath := filepath.Join(pluginsDir, id)

	fi, err := os.Lstat(linkPath)
	if err != nil {
		return ErrLinkNotFound
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		return ErrNotALink
	}
	if err := os.Remove(linkPath); err != nil {
		return fmt.Errorf("failed to remove link: %w", err)
	}

	backup := linkPath + backupSuffix
	if _, err := os.Stat(backup); err == nil {
		if err := os.Rename(backup, linkPath); err != nil {
			return fmt.Errorf("failed to restore backup: %w", err)
		}
	}
	return nil
}

// backupExisting moves a regular install out of the link's way. An
// existing symlink means the id is already linked.
func backupExisting(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return nil
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return ErrAlreadyLinked
	}

	backup := path + backupSuffix
	if err := os.RemoveAll(backup); err != nil {
		return fmt.Errorf("failed to remove old backup: %w", err)
	}
	if err := os.Rename(path, backup); err != nil {
		return fmt.Errorf("failed to back up existing plugin: %w", err)
	}
	return nil
}
