package store

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

const gitTimeout = 2 * time.Minute

// Installer fetches and updates plugin working trees with git. It satisfies
// the registry's installer interface.
type Installer struct {
	log *zap.Logger
	org string
}

// NewInstaller creates an installer cloning from the given GitHub
// organization; empty means DefaultOrg.
func NewInstaller(org string, log *zap.Logger) *Installer {
	if log == nil {
		log = zap.NewNop()
	}
	if org == "" {
		org = DefaultOrg
	}
	return &Installer{log: log, org: org}
}

// Install clones the plugin repository into dest.
func (i *Installer) Install(id, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("plugin %s is already installed", id)
	}
	url := fmt.Sprintf("https://github.com/%s/%s.git", i.org, id)
	i.log.Info("cloning plugin", zap.String("plugin", id), zap.String("url", url))
	return i.git("", "clone", url, dest)
}

// Update pulls the latest changes in the plugin's working tree.
func (i *Installer) Update(id, dest string) error {
	if _, err := os.Stat(dest); err != nil {
		return fmt.Errorf("plugin %s is not installed", id)
	}
	i.log.Info("updating plugin", zap.String("plugin", id))
	return i.git(dest, "pull")
}

// git runs a git subcommand, surfacing its combined output on failure.
func (i *Installer) git(dir string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s failed: %s", args[0], strings.TrimSpace(string(out)))
	}
	return nil
}
