// Package server implements the daemon's local HTTP control surface.
//
// The server binds to loopback only. Everything the browser UI and the CLI
// do goes through it: store listing, install lifecycle, plugin config,
// hotkey config, dev-mode linking, task runner, and the SSE event stream.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/daemon/events"
	"github.com/qol-tools/qol-tray/internal/daemon/hotkeys"
	"github.com/qol-tools/qol-tray/internal/daemon/plugins"
	"github.com/qol-tools/qol-tray/internal/daemon/taskrunner"
	"github.com/qol-tools/qol-tray/internal/dev"
	"github.com/qol-tools/qol-tray/internal/notify"
	"github.com/qol-tools/qol-tray/internal/store"
	"github.com/qol-tools/qol-tray/internal/telemetry"
)

// DefaultPort is the control surface port when settings do not override it.
const DefaultPort = 42700

// Options wires the server to the daemon's components. Registry and Bus are
// required; the rest degrade gracefully when absent so tests can stand up a
// partial server.
type Options struct {
	// Port to bind on 127.0.0.1. Zero picks an ephemeral port.
	Port int

	// PluginsDir is the root the registry scans; plugin UI assets and
	// covers are served from under it.
	PluginsDir string

	Registry *plugins.Registry
	Configs  *plugins.ConfigStore
	Hotkeys  *hotkeys.Manager
	Store    *store.Client
	Tasks    *taskrunner.Runner
	Bus      *events.Bus

	// Discoverer drives the dev-mode plugin search. Only consulted when
	// DevMode is set.
	Discoverer *dev.Discoverer
	DevMode    bool

	Notifier  *notify.Notifier
	Telemetry *telemetry.Telemetry

	// CheckUpdates runs a release check in the background after startup.
	CheckUpdates bool

	Logger *zap.Logger
}

// Server is the daemon's HTTP control surface.
type Server struct {
	log        *zap.Logger
	httpServer *http.Server
	listener   net.Listener
	port       int
	cancel     context.CancelFunc

	pluginsDir string
	registry   *plugins.Registry
	configs    *plugins.ConfigStore
	hotkeys    *hotkeys.Manager
	store      *store.Client
	tasks      *taskrunner.Runner
	bus        *events.Bus
	discoverer *dev.Discoverer
	devMode    bool
	notifier   *notify.Notifier
	telemetry  *telemetry.Telemetry

	update updateState
}

// New creates a server bound to 127.0.0.1 on the configured port.
// Pass port 0 for dynamic allocation.
func New(opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	listener, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", fmt.Sprintf("127.0.0.1:%d", opts.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port

	s := &Server{
		log:        log,
		listener:   listener,
		port:       actualPort,
		pluginsDir: opts.PluginsDir,
		registry:   opts.Registry,
		configs:    opts.Configs,
		hotkeys:    opts.Hotkeys,
		store:      opts.Store,
		tasks:      opts.Tasks,
		bus:        opts.Bus,
		discoverer: opts.Discoverer,
		devMode:    opts.DevMode,
		notifier:   opts.Notifier,
		telemetry:  opts.Telemetry,
	}

	// The base context is cancelled on Stop so long-lived SSE handlers
	// drain instead of pinning the graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.httpServer = &http.Server{
		Handler:           noCache(s.routes()),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if opts.CheckUpdates {
		s.startUpdateCheck()
	}

	return s, nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Serve starts serving requests. This blocks until Stop is called.
func (s *Server) Serve() error {
	err := s.httpServer.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully stops the server, waiting up to ctx for in-flight
// requests to finish.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

// routes builds the full route table. Dev endpoints are only mounted in dev
// mode, so outside it they 404 like any unknown path.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/plugins", s.handleStoreListing)
	mux.HandleFunc("GET /api/installed", s.handleInstalled)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/cover/{id}", s.handleCover)
	mux.HandleFunc("POST /api/install/{id}", s.handleInstall)
	mux.HandleFunc("POST /api/update/{id}", s.handleUpdate)
	mux.HandleFunc("POST /api/uninstall/{id}", s.handleUninstall)
	mux.HandleFunc("GET /api/plugins/{id}/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/plugins/{id}/config", s.handleSetConfig)
	mux.HandleFunc("POST /api/plugins/{id}/toggle/{key}", s.handleToggleConfig)
	mux.HandleFunc("GET /api/github-token", s.handleTokenStatus)
	mux.HandleFunc("POST /api/github-token", s.handleSetToken)
	mux.HandleFunc("DELETE /api/github-token", s.handleDeleteToken)
	mux.HandleFunc("GET /api/hotkeys", s.handleGetHotkeys)
	mux.HandleFunc("PUT /api/hotkeys", s.handleSetHotkeys)
	mux.HandleFunc("GET /api/dev/enabled", s.handleDevEnabled)
	mux.HandleFunc("GET /api/version", s.handleVersion)

	mux.HandleFunc("GET /api/task-runner/actions", s.handleTaskActions)
	mux.HandleFunc("POST /api/task-runner/execute", s.handleTaskExecute)
	mux.HandleFunc("GET /api/task-runner/config", s.handleTaskConfig)
	mux.HandleFunc("PUT /api/task-runner/config", s.handleSetTaskConfig)

	mux.HandleFunc("GET /plugins/{id}", s.handlePluginIndex)
	mux.HandleFunc("GET /plugins/{id}/{path...}", s.handlePluginFile)

	if s.devMode {
		mux.HandleFunc("POST /api/dev/reload", s.handleDevReload)
		mux.HandleFunc("GET /api/dev/links", s.handleListLinks)
		mux.HandleFunc("POST /api/dev/links", s.handleCreateLink)
		mux.HandleFunc("DELETE /api/dev/links/{id}", s.handleDeleteLink)
		mux.HandleFunc("POST /api/dev/discover", s.handleDiscover)
		mux.HandleFunc("GET /api/dev/discovery-state", s.handleDiscoveryState)
	}

	return mux
}

// noCache disables client caching on every response. The UI polls state
// endpoints and must never act on yesterday's answer.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		next.ServeHTTP(w, r)
	})
}
