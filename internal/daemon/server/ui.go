package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/daemon/plugins"
)

const (
	uiDirName     = "ui"
	indexFileName = "index.html"

	// maxCoverSize caps cover images. Anything larger is a packaging
	// mistake, not artwork.
	maxCoverSize = 5 << 20
)

// handlePluginIndex serves GET /plugins/{id}: the plugin UI entry page.
func (s *Server) handlePluginIndex(w http.ResponseWriter, r *http.Request) {
	s.servePluginAsset(w, r.PathValue("id"), indexFileName)
}

// handlePluginFile serves GET /plugins/{id}/{path...}: any asset under the
// plugin's ui directory.
func (s *Server) handlePluginFile(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if path == "" {
		path = indexFileName
	}
	s.servePluginAsset(w, r.PathValue("id"), path)
}

// servePluginAsset resolves path inside the plugin's ui directory and
// serves it. Plugin directories are plugin-controlled content, so every
// request is re-checked against symlink escapes; a linked dev plugin is
// fine (its whole tree resolves together) but a single file pointing
// outside the tree is not.
func (s *Server) servePluginAsset(w http.ResponseWriter, id, path string) {
	if !plugins.IsSafeID(id) {
		writeText(w, http.StatusBadRequest, "Invalid plugin ID")
		return
	}

	base := filepath.Join(s.pluginsDir, id, uiDirName)
	requested := filepath.Join(base, filepath.FromSlash(path))

	if _, err := os.Stat(requested); err != nil {
		writeText(w, http.StatusNotFound, "File not found")
		return
	}
	resolved, ok := safePath(base, requested)
	if !ok {
		s.log.Warn("blocked path escape", zap.String("plugin", id), zap.String("path", path))
		writeText(w, http.StatusForbidden, "Access denied")
		return
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		s.log.Error("failed to read plugin asset", zap.String("plugin", id), zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(requested))
	_, _ = w.Write(data)
}

// handleCover serves GET /api/cover/{id}: the plugin's cover.png.
func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !plugins.IsSafeID(id) {
		writeText(w, http.StatusBadRequest, "Invalid plugin ID")
		return
	}

	base := filepath.Join(s.pluginsDir, id)
	requested := filepath.Join(base, plugins.CoverFileName)

	info, err := os.Stat(requested)
	if err != nil {
		writeText(w, http.StatusNotFound, "Cover not found")
		return
	}
	if info.Size() > maxCoverSize {
		writeText(w, http.StatusRequestEntityTooLarge, "Cover image too large")
		return
	}
	resolved, ok := safePath(base, requested)
	if !ok {
		s.log.Warn("blocked path escape", zap.String("plugin", id), zap.String("path", plugins.CoverFileName))
		writeText(w, http.StatusForbidden, "Access denied")
		return
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		s.log.Error("failed to read cover", zap.String("plugin", id), zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Failed to read cover")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

// safePath resolves symlinks in both the base directory and the requested
// path and requires the result to stay inside the resolved base. Returns
// the resolved path to read. Both paths must exist.
func safePath(base, requested string) (string, bool) {
	resolvedBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		return "", false
	}
	resolved, err := filepath.EvalSymlinks(requested)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(resolvedBase, resolved)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return resolved, true
}

// contentTypeFor maps a file extension to the Content-Type served for it.
// Unknown extensions download as opaque bytes rather than guessing.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".svg":
		return "image/svg+xml"
	case ".ico":
		return "image/x-icon"
	case ".woff":
		return "font/woff"
	case ".woff2":
		return "font/woff2"
	default:
		return "application/octet-stream"
	}
}
