package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/daemon/plugins"
	"github.com/qol-tools/qol-tray/internal/dev"
	"github.com/qol-tools/qol-tray/internal/models"
)

// Dev-only handlers. None of these routes exist outside dev mode; the UI
// probes /api/dev/enabled before showing the panel that calls them.

// handleDevReload serves POST /api/dev/reload.
func (s *Server) handleDevReload(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Reload(); err != nil {
		s.log.Error("failed to reload plugins", zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Failed to reload plugins")
		return
	}
	writeText(w, http.StatusOK, "Plugins reloaded")
}

// handleListLinks serves GET /api/dev/links.
func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := dev.ListLinks(s.pluginsDir)
	if err != nil {
		s.log.Error("failed to list linked plugins", zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Failed to list links")
		return
	}
	if links == nil {
		links = []dev.Linked{}
	}
	writeJSON(w, http.StatusOK, links)
}

// handleCreateLink serves POST /api/dev/links. The body names a source
// directory to symlink into the plugins root. Error messages are echoed to
// the caller here; this surface only exists for the developer who typed the
// path.
func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeText(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	id, err := dev.Link(req.Path, s.pluginsDir)
	switch {
	case errors.Is(err, dev.ErrAlreadyLinked):
		writeText(w, http.StatusConflict, "Plugin is already linked")
	case err != nil:
		writeText(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Info("dev plugin linked", zap.String("plugin", id), zap.String("source", req.Path))
		if s.discoverer != nil {
			s.discoverer.Start()
		}
		writeText(w, http.StatusOK, "Link created")
	}
}

// handleDeleteLink serves DELETE /api/dev/links/{id}.
func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !plugins.IsSafeID(id) {
		writeText(w, http.StatusBadRequest, "Invalid plugin ID")
		return
	}

	if err := dev.Unlink(id, s.pluginsDir); err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	s.log.Info("dev plugin unlinked", zap.String("plugin", id))
	if s.discoverer != nil {
		s.discoverer.Start()
	}
	writeText(w, http.StatusOK, "Unlinked")
}

// handleDiscover serves POST /api/dev/discover.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if s.discoverer != nil {
		s.discoverer.Start()
	}
	writeText(w, http.StatusOK, "Discovery started")
}

// handleDiscoveryState serves GET /api/dev/discovery-state.
func (s *Server) handleDiscoveryState(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status  string                    `json:"status"`
		Plugins []models.DiscoveredPlugin `json:"plugins"`
	}{Status: dev.StatusIdle, Plugins: []models.DiscoveredPlugin{}}

	if s.discoverer != nil {
		status, found := s.discoverer.State()
		resp.Status = status
		if found != nil {
			resp.Plugins = found
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
