// Package store talks to the plugin registry on GitHub: listing published
// plugins, caching the listing, and fetching plugin repositories with git.
package store

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/buildinfo"
	"github.com/qol-tools/qol-tray/internal/models"
)

const (
	// DefaultOrg is the GitHub organization publishing plugins.
	DefaultOrg = "qol-tools"
	// RepoPrefix marks a repository in the organization as a plugin.
	RepoPrefix = "plugin-"

	defaultAPIBase = "https://api.github.com"
	defaultRawBase = "https://raw.githubusercontent.com"

	requestTimeout = 15 * time.Second
)

// githubRepo is the subset of the repository listing we read.
type githubRepo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	HTMLURL     string `json:"html_url"`
}

// Client lists plugins published in a GitHub organization. Repositories
// named plugin-* whose default branch carries a parseable plugin.toml are
// plugins; everything else in the organization is ignored.
type Client struct {
	log   *zap.Logger
	org   string
	httpc *http.Client
	token func() string

	apiBase string
	rawBase string

	cachePath   string
	cacheMaxAge time.Duration
	mu          sync.Mutex
}

// ClientOptions configures a store client.
type ClientOptions struct {
	// Org defaults to DefaultOrg.
	Org string
	// CachePath holds the JSON listing cache; empty disables caching.
	CachePath string
	// CacheMaxAge defaults to one hour.
	CacheMaxAge time.Duration
	// Token returns a GitHub token, or "" when none is configured.
	Token func() string
	// APIBase and RawBase override the GitHub endpoints, for enterprise
	// hosts and tests. Defaults are the public ones.
	APIBase string
	RawBase string
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// NewClient creates a store client.
func NewClient(opts ClientOptions) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	org := opts.Org
	if org == "" {
		org = DefaultOrg
	}
	maxAge := opts.CacheMaxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	apiBase := opts.APIBase
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	rawBase := opts.RawBase
	if rawBase == "" {
		rawBase = defaultRawBase
	}
	return &Client{
		log:         log,
		org:         org,
		httpc:       &http.Client{Timeout: requestTimeout},
		token:       opts.Token,
		apiBase:     apiBase,
		rawBase:     rawBase,
		cachePath:   opts.CachePath,
		cacheMaxAge: maxAge,
	}
}

// List returns the published plugin listing. A cache younger than the max
// age is served as is unless refresh forces a fetch; when the fetch fails
// and any cache exists, the stale listing is returned instead of the error.
func (c *Client) List(refresh bool) ([]models.StorePlugin, error) {
	if !refresh {
		if plugins, ok := c.freshCache(); ok {
			return plugins, nil
		}
	}

	plugins, err := c.fetchListing()
	if err != nil {
		if cached, cerr := c.readCache(); cerr == nil && cached != nil {
			c.log.Warn("serving stale plugin listing", zap.Error(err))
			return cached.Plugins, nil
		}
		return nil, err
	}

	c.writeCache(plugins)
	return plugins, nil
}

// fetchListing pulls the organization's repositories and resolves each
// plugin repo's manifest. Repos without a readable manifest are skipped.
func (c *Client) fetchListing() ([]models.StorePlugin, error) {
	var repos []githubRepo
	if err := c.getJSON(fmt.Sprintf("%s/orgs/%s/repos", c.apiBase, c.org), &repos); err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}

	plugins := make([]models.StorePlugin, 0, len(repos))
	for _, repo := range repos {
		if !strings.HasPrefix(repo.Name, RepoPrefix) {
			continue
		}
		manifest, err := c.fetchManifest(repo.Name)
		if err != nil {
			c.log.Warn("skipping plugin repo without readable manifest",
				zap.String("repo", repo.Name),
				zap.Error(err))
			continue
		}
		name := manifest.Plugin.Name
		if name == "" {
			name = repo.Name
		}
		plugins = append(plugins, models.StorePlugin{
			ID:          repo.Name,
			Name:        name,
			Description: manifest.Plugin.Description,
			Version:     manifest.Plugin.Version,
			RepoURL:     repo.HTMLURL,
			Platforms:   manifest.Plugin.Platforms,
		})
	}

	c.log.Info("fetched plugin listing", zap.Int("count", len(plugins)))
	return plugins, nil
}

// fetchManifest reads plugin.toml from the repo's main branch.
func (c *Client) fetchManifest(repoName string) (*models.Manifest, error) {
	url := fmt.Sprintf("%s/%s/%s/main/plugin.toml", c.rawBase, c.org, repoName)
	resp, err := c.get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest fetch returned %d", resp.StatusCode)
	}

	var manifest models.Manifest
	if _, err := toml.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &manifest, nil
}

func (c *Client) getJSON(url string, v interface{}) error {
	resp, err := c.get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GitHub API returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "qol-tray/"+buildinfo.Version)
	if c.token != nil {
		if t := c.token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}
	return c.httpc.Do(req)
}
