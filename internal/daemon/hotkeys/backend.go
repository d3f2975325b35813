package hotkeys

// Registration is one live OS-level hotkey grab.
type Registration interface {
	// Keydown delivers one event per press of the combination.
	Keydown() <-chan struct{}
	// Keyup delivers one event per release. The manager drains but never
	// acts on these.
	Keyup() <-chan struct{}
	// Close releases the grab. The channels go quiet afterward.
	Close() error
}

// Backend abstracts the OS global-hotkey layer so the manager can be
// exercised without grabbing real keys.
type Backend interface {
	// Register grabs a combination. Registrations are independent; one
	// failing must not disturb the others.
	Register(combo Combo) (Registration, error)
	// Close releases every grab made through this backend.
	Close() error
}

// BackendFactory creates a fresh backend. A reload closes the old backend
// entirely and builds a new one, so stale grabs can never linger.
type BackendFactory func() (Backend, error)
