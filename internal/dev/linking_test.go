//go:build !windows

package dev

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkAndList(t *testing.T) {
	source := filepath.Join(t.TempDir(), "my-plugin")
	writePluginToml(t, source, "My Plugin")
	pluginsDir := t.TempDir()

	id, err := Link(source, pluginsDir)
	require.NoError(t, err)
	assert.Equal(t, "my-plugin", id)

	links, err := ListLinks(pluginsDir)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "my-plugin", links[0].ID)
	assert.Equal(t, "My Plugin", links[0].Name)
	assert.True(t, links[0].IsSymlink)
	assert.Equal(t, source, links[0].Target)
}

func TestLinkRejectsMissingSource(t *testing.T) {
	_, err := Link(filepath.Join(t.TempDir(), "ghost"), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestLinkRejectsSourceWithoutManifest(t *testing.T) {
	source := filepath.Join(t.TempDir(), "not-a-plugin")
	require.NoError(t, os.MkdirAll(source, 0o755))

	_, err := Link(source, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin.toml")
}

func TestLinkTwiceFails(t *testing.T) {
	source := filepath.Join(t.TempDir(), "my-plugin")
	writePluginToml(t, source, "My Plugin")
	pluginsDir := t.TempDir()

	_, err := Link(source, pluginsDir)
	require.NoError(t, err)

	_, err = Link(source, pluginsDir)
	require.ErrorIs(t, err, ErrAlreadyLinked)
}

func TestLinkBacksUpRegularInstallAndUnlinkRestoresIt(t *testing.T) {
	source := filepath.Join(t.TempDir(), "clip")
	writePluginToml(t, source, "Dev Clip")

	pluginsDir := t.TempDir()
	installed := filepath.Join(pluginsDir, "clip")
	writePluginToml(t, installed, "Installed Clip")
	require.NoError(t, os.WriteFile(filepath.Join(installed, "state.txt"), []byte("keep me"), 0o644))

	_, err := Link(source, pluginsDir)
	require.NoError(t, err)

	// The regular install moved aside and the link took its place.
	assert.DirExists(t, installed+backupSuffix)
	fi, err := os.Lstat(installed)
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeSymlink)

	require.NoError(t, Unlink("clip", pluginsDir))

	// The original install is back, contents intact.
	data, err := os.ReadFile(filepath.Join(installed, "state.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
	assert.NoDirExists(t, installed+backupSuffix)
}

func TestUnlinkMissing(t *testing.T) {
	require.ErrorIs(t, Unlink("ghost", t.TempDir()), ErrLinkNotFound)
}

func TestUnlinkRefusesRegularInstall(t *testing.T) {
	pluginsDir := t.TempDir()
	writePluginToml(t, filepath.Join(pluginsDir, "real"), "Real")

	require.ErrorIs(t, Unlink("real", pluginsDir), ErrNotALink)
}

func TestListLinksSkipsBackups(t *testing.T) {
	pluginsDir := t.TempDir()
	writePluginToml(t, filepath.Join(pluginsDir, "alpha"), "Alpha")
	writePluginToml(t, filepath.Join(pluginsDir, "alpha.backup"), "Old Alpha")

	links, err := ListLinks(pluginsDir)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "alpha", links[0].ID)
	assert.False(t, links[0].IsSymlink)
}

func TestListLinksMissingDir(t *testing.T) {
	links, err := ListLinks(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestInstallStatus(t *testing.T) {
	pluginsDir := t.TempDir()
	target := filepath.Join(t.TempDir(), "tree")
	writePluginToml(t, target, "Tree")

	// Nothing under the id at all.
	linked, installed := installStatus(pluginsDir, "tree", target)
	assert.False(t, linked)
	assert.False(t, installed)

	// A regular install under the id.
	writePluginToml(t, filepath.Join(pluginsDir, "other"), "Other")
	linked, installed = installStatus(pluginsDir, "other", target)
	assert.False(t, linked)
	assert.True(t, installed)

	// A symlink pointing at this very tree.
	require.NoError(t, os.Symlink(target, filepath.Join(pluginsDir, "tree")))
	linked, installed = installStatus(pluginsDir, "tree", target)
	assert.True(t, linked)
	assert.False(t, installed)

	// A symlink pointing somewhere else.
	elsewhere := filepath.Join(t.TempDir(), "elsewhere")
	writePluginToml(t, elsewhere, "Elsewhere")
	require.NoError(t, os.Symlink(elsewhere, filepath.Join(pluginsDir, "stray")))
	linked, installed = installStatus(pluginsDir, "stray", target)
	assert.False(t, linked)
	assert.True(t, installed)
}

func TestDiscoverOmitsLinkedTrees(t *testing.T) {
	root := t.TempDir()
	tree := filepath.Join(root, "linked-plugin")
	writePluginToml(t, tree, "Linked")
	writePluginToml(t, filepath.Join(root, "free-plugin"), "Free")

	pluginsDir := t.TempDir()
	_, err := Link(tree, pluginsDir)
	require.NoError(t, err)

	found := Discover(&SearchConfig{SearchPaths: []string{root}}, pluginsDir)
	require.Len(t, found, 1)
	assert.Equal(t, "Free", found[0].Name)
}
