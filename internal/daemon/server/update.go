package server

import (
	"sync"

	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/updater"
)

// updateState holds the result of the latest release check for the tray to
// surface.
type updateState struct {
	mu         sync.RWMutex
	available  bool
	latest     string
	releaseURL string
}

// startUpdateCheck runs one release check in the background. Failures are
// logged and forgotten; an unreachable GitHub must not delay startup.
func (s *Server) startUpdateCheck() {
	go func() {
		result, err := updater.Check()
		if err != nil {
			s.log.Debug("update check failed", zap.Error(err))
			return
		}

		s.update.mu.Lock()
		s.update.available = result.Available
		s.update.latest = result.LatestVersion
		s.update.releaseURL = result.ReleaseURL
		s.update.mu.Unlock()

		if result.Available {
			s.log.Info("update available",
				zap.String("current", result.CurrentVersion),
				zap.String("latest", result.LatestVersion))
		} else {
			s.log.Debug("daemon up to date", zap.String("version", result.CurrentVersion))
		}
	}()
}

// UpdateAvailable reports the latest known release when it is newer than
// the running build.
func (s *Server) UpdateAvailable() (version, url string, ok bool) {
	s.update.mu.RLock()
	defer s.update.mu.RUnlock()
	return s.update.latest, s.update.releaseURL, s.update.available
}
