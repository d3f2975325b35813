package store

import (
	"time"

	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/config"
	"github.com/qol-tools/qol-tray/internal/models"
)

// cacheFile is the on-disk shape of the listing cache.
type cacheFile struct {
	FetchedAt time.Time            `json:"fetched_at"`
	Plugins   []models.StorePlugin `json:"plugins"`
}

// freshCache returns the cached listing when it is younger than the max age.
func (c *Client) freshCache() ([]models.StorePlugin, bool) {
	cached, err := c.readCache()
	if err != nil || cached == nil {
		return nil, false
	}
	if time.Since(cached.FetchedAt) > c.cacheMaxAge {
		return nil, false
	}
	return cached.Plugins, true
}

// Cached returns the last fetched listing regardless of age, or nil when
// nothing was ever cached. Used for update hints against installed plugins,
// where a stale version is better than none.
func (c *Client) Cached() []models.StorePlugin {
	cached, err := c.readCache()
	if err != nil || cached == nil {
		return nil
	}
	return cached.Plugins
}

// CacheAge reports how old the cached listing is. The second return is
// false when no cache exists.
func (c *Client) CacheAge() (time.Duration, bool) {
	cached, err := c.readCache()
	if err != nil || cached == nil {
		return 0, false
	}
	return time.Since(cached.FetchedAt), true
}

// UpdateCachedVersion rewrites one plugin's version in the cache after an
// update, so the listing stops advertising an update that already happened.
func (c *Client) UpdateCachedVersion(id, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, err := c.readCacheLocked()
	if err != nil || cached == nil {
		return
	}
	for i := range cached.Plugins {
		if cached.Plugins[i].ID == id {
			cached.Plugins[i].Version = version
		}
	}
	if err := config.SaveJSON(c.cachePath, cached); err != nil {
		c.log.Warn("failed to update plugin cache", zap.Error(err))
	}
}

func (c *Client) readCache() (*cacheFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readCacheLocked()
}

func (c *Client) readCacheLocked() (*cacheFile, error) {
	if c.cachePath == "" {
		return nil, nil
	}
	var cached cacheFile
	if err := config.LoadJSON(c.cachePath, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func (c *Client) writeCache(plugins []models.StorePlugin) {
	if c.cachePath == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cached := cacheFile{FetchedAt: time.Now(), Plugins: plugins}
	if err := config.SaveJSON(c.cachePath, &cached); err != nil {
		c.log.Warn("failed to write plugin cache", zap.Error(err))
	}
}
