package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/buildinfo"
	"github.com/qol-tools/qol-tray/internal/config"
	"github.com/qol-tools/qol-tray/internal/daemon/plugins"
	"github.com/qol-tools/qol-tray/internal/daemon/taskrunner"
	"github.com/qol-tools/qol-tray/internal/models"
	"github.com/qol-tools/qol-tray/internal/version"
)

// storeEntry is one row of the store listing as the UI renders it.
type storeEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Installed   bool   `json:"installed"`
}

// installedEntry is one row of the installed-plugins listing.
type installedEntry struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Description      string             `json:"description"`
	Version          string             `json:"version"`
	HasCover         bool               `json:"has_cover"`
	HasUI            bool               `json:"has_ui"`
	HasDaemon        bool               `json:"has_daemon"`
	Running          bool               `json:"running"`
	AvailableVersion *string            `json:"available_version"`
	UpdateAvailable  bool               `json:"update_available"`
	Actions          []models.ActionRef `json:"actions"`
	Toggles          []toggleEntry      `json:"toggles"`
}

// toggleEntry is one checkbox menu item with its current config state.
type toggleEntry struct {
	ConfigKey string `json:"config_key"`
	Label     string `json:"label"`
	Checked   bool   `json:"checked"`
}

// actionResult is the body of install-lifecycle mutations that always
// answer 200 and carry their outcome in the payload.
type actionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}

// handleStoreListing serves GET /api/plugins. Fetch failures degrade to an
// empty listing so the UI renders instead of erroring.
func (s *Server) handleStoreListing(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") == "true"

	resp := struct {
		Plugins      []storeEntry `json:"plugins"`
		CacheAgeSecs *int64       `json:"cache_age_secs"`
	}{Plugins: []storeEntry{}}

	if s.store == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	listing, err := s.store.List(refresh)
	if err != nil {
		s.log.Error("failed to fetch plugin listing", zap.Error(err))
		writeJSON(w, http.StatusOK, resp)
		return
	}

	installed := s.installedIDs()
	for _, p := range listing {
		if !p.SupportsPlatform(runtime.GOOS) {
			continue
		}
		resp.Plugins = append(resp.Plugins, storeEntry{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Version:     p.Version,
			Installed:   installed[p.ID],
		})
	}
	if age, ok := s.store.CacheAge(); ok {
		secs := int64(age.Seconds())
		resp.CacheAgeSecs = &secs
	}

	writeJSON(w, http.StatusOK, resp)
}

// installedIDs returns the set of directory names under the plugins root,
// following symlinks so dev-linked plugins count as installed.
func (s *Server) installedIDs() map[string]bool {
	out := make(map[string]bool)
	entries, err := os.ReadDir(s.pluginsDir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		info, err := os.Stat(filepath.Join(s.pluginsDir, e.Name()))
		if err == nil && info.IsDir() {
			out[e.Name()] = true
		}
	}
	return out
}

// handleInstalled serves GET /api/installed.
func (s *Server) handleInstalled(w http.ResponseWriter, r *http.Request) {
	cached := make(map[string]string)
	if s.store != nil {
		for _, p := range s.store.Cached() {
			cached[p.ID] = p.Version
		}
	}

	sup := s.registry.Supervisor()
	list := s.registry.List()
	out := make([]installedEntry, 0, len(list))
	for _, p := range list {
		entry := installedEntry{
			ID:          p.ID,
			Name:        p.Name(),
			Description: p.Manifest.Plugin.Description,
			Version:     p.Manifest.Plugin.Version,
			HasCover:    p.HasCover,
			HasUI:       p.HasUI,
			HasDaemon:   p.HasDaemon(),
			Running:     sup.IsRunning(p.ID),
			Actions:     p.Manifest.Actions(),
		}
		if entry.Actions == nil {
			entry.Actions = []models.ActionRef{}
		}
		entry.Toggles = []toggleEntry{}
		for _, tg := range p.Manifest.Toggles() {
			entry.Toggles = append(entry.Toggles, toggleEntry{
				ConfigKey: tg.ConfigKey,
				Label:     tg.Label,
				Checked:   s.configs.BoolAt(p.ID, tg.ConfigKey, tg.Default),
			})
		}
		if av, ok := cached[p.ID]; ok && av != "" {
			entry.AvailableVersion = &av
			entry.UpdateAvailable = version.UpdateAvailable(entry.Version, av)
		}
		out = append(out, entry)
	}

	writeJSON(w, http.StatusOK, out)
}

// handleInstall serves POST /api/install/{id}.
func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !plugins.IsSafeID(id) {
		writeText(w, http.StatusBadRequest, "Invalid plugin ID")
		return
	}

	if err := s.registry.Install(id); err != nil {
		s.log.Error("plugin install failed", zap.String("plugin", id), zap.Error(err))
		s.notifier.Alert("Plugin install failed", id)
		writeText(w, http.StatusInternalServerError, "Installation failed")
		return
	}

	ver := "unknown"
	name := id
	if p, ok := s.registry.Get(id); ok {
		name = p.Name()
		if v := p.Manifest.Plugin.Version; v != "" {
			ver = v
		}
	}

	s.telemetry.PluginInstalled(id)
	s.notifier.Send("Plugin installed", name)

	writeJSON(w, http.StatusOK, storeEntry{
		ID:          id,
		Name:        id,
		Description: "Installed successfully",
		Version:     ver,
		Installed:   true,
	})
}

// handleUpdate serves POST /api/update/{id}. The outcome travels in the
// body; the status is always 200.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !plugins.IsSafeID(id) {
		writeJSON(w, http.StatusOK, actionResult{Success: false, Message: "Invalid plugin ID"})
		return
	}

	if err := s.registry.Update(id); err != nil {
		s.log.Error("plugin update failed", zap.String("plugin", id), zap.Error(err))
		s.notifier.Alert("Plugin update failed", id)
		writeJSON(w, http.StatusOK, actionResult{Success: false, Message: "Update failed"})
		return
	}

	// Reflect the new version in the cached listing so the UI stops
	// offering an update that already happened.
	if p, ok := s.registry.Get(id); ok && s.store != nil {
		if v := p.Manifest.Plugin.Version; v != "" {
			s.store.UpdateCachedVersion(id, v)
		}
	}
	s.notifier.Send("Plugin updated", id)

	writeJSON(w, http.StatusOK, actionResult{Success: true, Message: "Updated successfully"})
}

// handleUninstall serves POST /api/uninstall/{id}.
func (s *Server) handleUninstall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !plugins.IsSafeID(id) {
		writeJSON(w, http.StatusOK, actionResult{Success: false, Message: "Invalid plugin ID"})
		return
	}

	if err := s.registry.Uninstall(id); err != nil {
		s.log.Error("plugin uninstall failed", zap.String("plugin", id), zap.Error(err))
		writeJSON(w, http.StatusOK, actionResult{Success: false, Message: "Uninstall failed"})
		return
	}

	s.telemetry.PluginUninstalled(id)
	writeJSON(w, http.StatusOK, actionResult{Success: true, Message: "Uninstalled successfully"})
}

// handleGetConfig serves GET /api/plugins/{id}/config.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	raw, err := s.configs.Load(id)
	switch {
	case errors.Is(err, plugins.ErrInvalidID):
		writeText(w, http.StatusBadRequest, "Invalid plugin ID")
	case errors.Is(err, plugins.ErrConfigNotFound):
		writeText(w, http.StatusNotFound, "Config not found")
	case err != nil:
		s.log.Error("failed to read plugin config", zap.String("plugin", id), zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Failed to read config")
	default:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	}
}

// handleSetConfig serves PUT /api/plugins/{id}/config.
func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	body, err := io.ReadAll(io.LimitReader(r.Body, plugins.MaxConfigSize+1))
	if err != nil {
		writeText(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(body) > plugins.MaxConfigSize {
		writeText(w, http.StatusRequestEntityTooLarge, "Config too large")
		return
	}

	err = s.configs.Save(id, body)
	switch {
	case errors.Is(err, plugins.ErrInvalidID):
		writeText(w, http.StatusBadRequest, "Invalid plugin ID")
	case errors.Is(err, plugins.ErrConfigInvalid):
		writeText(w, http.StatusBadRequest, "Invalid JSON")
	case errors.Is(err, plugins.ErrConfigTooLarge):
		writeText(w, http.StatusRequestEntityTooLarge, "Config too large")
	case err != nil:
		s.log.Error("failed to save plugin config", zap.String("plugin", id), zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Failed to save config")
	default:
		writeText(w, http.StatusOK, "Config saved")
	}
}

// handleToggleConfig serves POST /api/plugins/{id}/toggle/{key}: flips the
// boolean at a dotted config key and reports the new value.
func (s *Server) handleToggleConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	key := r.PathValue("key")

	val, err := s.configs.Toggle(id, key)
	switch {
	case errors.Is(err, plugins.ErrInvalidID):
		writeText(w, http.StatusBadRequest, "Invalid plugin ID")
	case errors.Is(err, plugins.ErrKeyNotBoolean):
		writeText(w, http.StatusBadRequest, "Config key is not a boolean")
	case errors.Is(err, plugins.ErrConfigInvalid):
		writeText(w, http.StatusBadRequest, "Config is not a JSON object")
	case err != nil:
		s.log.Error("failed to toggle plugin config",
			zap.String("plugin", id),
			zap.String("key", key),
			zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Failed to toggle config")
	default:
		// Config writes inside a plugin directory don't reach the
		// filesystem watcher, so announce the change here.
		s.bus.PluginsChanged()
		writeJSON(w, http.StatusOK, struct {
			Key   string `json:"key"`
			Value bool   `json:"value"`
		}{key, val})
	}
}

// handleTokenStatus serves GET /api/github-token.
func (s *Server) handleTokenStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		HasToken bool `json:"has_token"`
	}{config.HasStoredGitHubToken()})
}

// handleSetToken serves POST /api/github-token.
func (s *Server) handleSetToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeText(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := config.SaveGitHubToken(req.Token); err != nil {
		s.log.Error("failed to store token", zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Failed to store token")
		return
	}
	writeText(w, http.StatusOK, "Token stored")
}

// handleDeleteToken serves DELETE /api/github-token.
func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	if err := config.DeleteGitHubToken(); err != nil {
		s.log.Error("failed to delete token", zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Failed to delete token")
		return
	}
	writeText(w, http.StatusOK, "Token deleted")
}

// handleGetHotkeys serves GET /api/hotkeys.
func (s *Server) handleGetHotkeys(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.hotkeys.LoadConfig()
	if err != nil {
		s.log.Error("failed to load hotkeys", zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Failed to load hotkeys")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleSetHotkeys serves PUT /api/hotkeys. The reload signal fires only
// after the config is durably on disk, so a reload never reads stale state.
func (s *Server) handleSetHotkeys(w http.ResponseWriter, r *http.Request) {
	var cfg models.HotkeyConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeText(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := s.hotkeys.SaveConfig(&cfg); err != nil {
		s.log.Error("failed to save hotkeys", zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Failed to save hotkeys")
		return
	}
	s.hotkeys.TriggerReload()
	writeText(w, http.StatusOK, "Hotkeys saved")
}

// handleVersion serves GET /api/version: the running version plus the
// startup release check's result when it found something newer.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Version         string `json:"version"`
		UpdateAvailable bool   `json:"update_available"`
		LatestVersion   string `json:"latest_version,omitempty"`
		ReleaseURL      string `json:"release_url,omitempty"`
	}{Version: buildinfo.Version}

	if latest, url, ok := s.UpdateAvailable(); ok {
		resp.UpdateAvailable = true
		resp.LatestVersion = latest
		resp.ReleaseURL = url
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDevEnabled serves GET /api/dev/enabled. Mounted unconditionally so
// the UI can probe whether the dev panel exists.
func (s *Server) handleDevEnabled(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.devMode)
}

// handleTaskActions serves GET /api/task-runner/actions.
func (s *Server) handleTaskActions(w http.ResponseWriter, r *http.Request) {
	actions := s.tasks.Actions()
	if actions == nil {
		actions = []taskrunner.ActionInfo{}
	}
	writeJSON(w, http.StatusOK, struct {
		Actions []taskrunner.ActionInfo `json:"actions"`
	}{actions})
}

// handleTaskExecute serves POST /api/task-runner/execute.
func (s *Server) handleTaskExecute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string            `json:"action"`
		Params map[string]string `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}

	res, err := s.tasks.Execute(r.Context(), req.Action, req.Params)
	switch {
	case errors.Is(err, taskrunner.ErrUnknownAction):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unknown action"})
	case errors.Is(err, taskrunner.ErrTimeout):
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Action timed out"})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Command failed"})
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// handleTaskConfig serves GET /api/task-runner/config.
func (s *Server) handleTaskConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tasks.Config())
}

// handleSetTaskConfig serves PUT /api/task-runner/config.
func (s *Server) handleSetTaskConfig(w http.ResponseWriter, r *http.Request) {
	var cfg taskrunner.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}
	if err := s.tasks.SetConfig(cfg); err != nil {
		s.log.Error("failed to save task runner config", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to save config"})
		return
	}
	writeText(w, http.StatusOK, "Config saved")
}
