package hotkeys

import (
	"fmt"
	"sync"

	"golang.design/x/hotkey"
)

// keyCodes maps canonical key names to the codes the hotkey library can
// grab on every supported OS. Names parsed by ParseCombo but absent here
// (Home, End, PageUp, PageDown, Insert, Backspace, PrintScreen, Pause) fail
// at registration with a per-binding error.
var keyCodes = map[string]hotkey.Key{
	"A": hotkey.KeyA, "B": hotkey.KeyB, "C": hotkey.KeyC, "D": hotkey.KeyD,
	"E": hotkey.KeyE, "F": hotkey.KeyF, "G": hotkey.KeyG, "H": hotkey.KeyH,
	"I": hotkey.KeyI, "J": hotkey.KeyJ, "K": hotkey.KeyK, "L": hotkey.KeyL,
	"M": hotkey.KeyM, "N": hotkey.KeyN, "O": hotkey.KeyO, "P": hotkey.KeyP,
	"Q": hotkey.KeyQ, "R": hotkey.KeyR, "S": hotkey.KeyS, "T": hotkey.KeyT,
	"U": hotkey.KeyU, "V": hotkey.KeyV, "W": hotkey.KeyW, "X": hotkey.KeyX,
	"Y": hotkey.KeyY, "Z": hotkey.KeyZ,

	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,

	"F1": hotkey.KeyF1, "F2": hotkey.KeyF2, "F3": hotkey.KeyF3,
	"F4": hotkey.KeyF4, "F5": hotkey.KeyF5, "F6": hotkey.KeyF6,
	"F7": hotkey.KeyF7, "F8": hotkey.KeyF8, "F9": hotkey.KeyF9,
	"F10": hotkey.KeyF10, "F11": hotkey.KeyF11, "F12": hotkey.KeyF12,

	"Space":  hotkey.KeySpace,
	"Enter":  hotkey.KeyReturn,
	"Escape": hotkey.KeyEscape,
	"Tab":    hotkey.KeyTab,
	"Delete": hotkey.KeyDelete,
	"Up":     hotkey.KeyUp,
	"Down":   hotkey.KeyDown,
	"Left":   hotkey.KeyLeft,
	"Right":  hotkey.KeyRight,
}

// XBackend registers hotkeys through golang.design/x/hotkey.
type XBackend struct {
	mu   sync.Mutex
	regs []*xRegistration
}

// NewXBackend creates a backend over the OS hotkey layer.
func NewXBackend() (Backend, error) {
	return &XBackend{}, nil
}

// Register grabs the combination system-wide.
func (b *XBackend) Register(combo Combo) (Registration, error) {
	key, ok := keyCodes[combo.Key]
	if !ok {
		return nil, fmt.Errorf("key %s is not supported on this platform", combo.Key)
	}

	hk := hotkey.New(combo.modifiers(), key)
	if err := hk.Register(); err != nil {
		return nil, fmt.Errorf("failed to grab %s: %w", combo, err)
	}

	reg := newXRegistration(hk)
	b.mu.Lock()
	b.regs = append(b.regs, reg)
	b.mu.Unlock()
	return reg, nil
}

// Close releases every grab made through this backend.
func (b *XBackend) Close() error {
	b.mu.Lock()
	regs := b.regs
	b.regs = nil
	b.mu.Unlock()

	var firstErr error
	for _, r := range regs {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// xRegistration adapts the library's event channels to plain signal
// channels, buffered one deep so a press during dispatch is kept.
type xRegistration struct {
	hk        *hotkey.Hotkey
	down      chan struct{}
	up        chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
}

func newXRegistration(hk *hotkey.Hotkey) *xRegistration {
	r := &xRegistration{
		hk:   hk,
		down: make(chan struct{}, 1),
		up:   make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	go r.pump(hk.Keydown(), r.down)
	go r.pump(hk.Keyup(), r.up)
	return r
}

func (r *xRegistration) pump(in <-chan hotkey.Event, out chan<- struct{}) {
	for {
		select {
		case <-r.stop:
			return
		case <-in:
			select {
			case out <- struct{}{}:
			case <-r.stop:
				return
			}
		}
	}
}

func (r *xRegistration) Keydown() <-chan struct{} { return r.down }

func (r *xRegistration) Keyup() <-chan struct{} { return r.up }

func (r *xRegistration) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stop)
		err = r.hk.Unregister()
	})
	return err
}
