package models

// StorePlugin is one entry in the published plugin listing: a plugin-
// prefixed repository in the store organization whose manifest could be
// read from its default branch.
type StorePlugin struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Version     string   `json:"version"`
	RepoURL     string   `json:"repo_url"`
	Platforms   []string `json:"platforms,omitempty"`
}

// SupportsPlatform reports whether the listing entry applies to the given
// GOOS value.
func (p StorePlugin) SupportsPlatform(goos string) bool {
	return PlatformAllowed(p.Platforms, goos)
}
