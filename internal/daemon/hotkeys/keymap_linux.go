//go:build linux

package hotkeys

import "golang.design/x/hotkey"

// modifiers translates the combo to X11 modifier masks. Alt is Mod1 and
// Super is Mod4 under X11.
func (c Combo) modifiers() []hotkey.Modifier {
	var mods []hotkey.Modifier
	if c.Ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if c.Alt {
		mods = append(mods, hotkey.Mod1)
	}
	if c.Shift {
		mods = append(mods, hotkey.ModShift)
	}
	if c.Super {
		mods = append(mods, hotkey.Mod4)
	}
	return mods
}
