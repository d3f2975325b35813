// Package notify shows desktop notifications through the OS notification
// center, honoring the user's settings toggle.
package notify

import (
	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// Notifier sends desktop notifications. A disabled notifier swallows
// everything silently.
type Notifier struct {
	log     *zap.Logger
	enabled bool
}

// New creates a notifier. Notifications only appear when enabled is true.
func New(enabled bool, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{log: log, enabled: enabled}
}

// Enabled reports whether notifications are switched on.
func (n *Notifier) Enabled() bool {
	return n != nil && n.enabled
}

// Send shows a notification. Failures are logged, never surfaced; a broken
// notification daemon must not break the operation being announced. Safe on
// a nil receiver.
func (n *Notifier) Send(title, message string) {
	if !n.Enabled() {
		return
	}
	if err := beeep.Notify(title, message, ""); err != nil {
		n.log.Debug("desktop notification failed", zap.Error(err))
	}
}

// Alert shows an attention-demanding notification for failures.
func (n *Notifier) Alert(title, message string) {
	if !n.Enabled() {
		return
	}
	if err := beeep.Alert(title, message, ""); err != nil {
		n.log.Debug("desktop alert failed", zap.Error(err))
	}
}
