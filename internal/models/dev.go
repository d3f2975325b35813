package models

// DiscoveredPlugin describes a plugin directory found by a dev-mode
// search-path scan. Path is the real (unlinked) location.
type DiscoveredPlugin struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}
