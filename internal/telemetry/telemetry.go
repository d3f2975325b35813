// Package telemetry sends opt-in anonymous usage events to PostHog.
// Nothing leaves the machine unless telemetry is enabled in settings and an
// API key is configured; events carry coarse lifecycle facts only, never
// plugin contents or user data.
package telemetry

import (
	"github.com/posthog/posthog-go"
	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/buildinfo"
	"github.com/qol-tools/qol-tray/internal/models"
)

// Telemetry is an event sink. The zero-value (or opted-out) sink drops
// every event without touching the network.
type Telemetry struct {
	log     *zap.Logger
	client  posthog.Client
	id      string
	version string
}

// New builds a telemetry sink from settings. Disabled or keyless settings
// yield an inert sink.
func New(cfg models.TelemetryConfig, log *zap.Logger) *Telemetry {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Telemetry{log: log, version: buildinfo.Version}

	if !cfg.Enabled || cfg.APIKey == "" || cfg.AnonymousID == "" {
		return t
	}

	client, err := posthog.NewWithConfig(cfg.APIKey, posthog.Config{})
	if err != nil {
		log.Warn("telemetry client init failed, events disabled", zap.Error(err))
		return t
	}
	t.client = client
	t.id = cfg.AnonymousID
	log.Info("telemetry enabled")
	return t
}

// Enabled reports whether events actually get sent.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.client != nil
}

// Capture enqueues one event. Failures are logged at debug; telemetry never
// interferes with the operation it observes. Safe on a nil receiver.
func (t *Telemetry) Capture(event string, props map[string]interface{}) {
	if t == nil || t.client == nil {
		return
	}
	p := posthog.NewProperties().Set("app_version", t.version)
	for k, v := range props {
		p.Set(k, v)
	}
	err := t.client.Enqueue(posthog.Capture{
		DistinctId: t.id,
		Event:      event,
		Properties: p,
	})
	if err != nil {
		t.log.Debug("telemetry enqueue failed", zap.Error(err))
	}
}

// DaemonStarted records a daemon start.
func (t *Telemetry) DaemonStarted() {
	t.Capture("daemon_started", nil)
}

// PluginInstalled records an install by plugin id only.
func (t *Telemetry) PluginInstalled(id string) {
	t.Capture("plugin_installed", map[string]interface{}{"plugin": id})
}

// PluginUninstalled records an uninstall by plugin id only.
func (t *Telemetry) PluginUninstalled(id string) {
	t.Capture("plugin_uninstalled", map[string]interface{}{"plugin": id})
}

// Close flushes queued events.
func (t *Telemetry) Close() {
	if t != nil && t.client != nil {
		_ = t.client.Close()
	}
}
