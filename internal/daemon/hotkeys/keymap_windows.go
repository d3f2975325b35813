//go:build windows

package hotkeys

import "golang.design/x/hotkey"

// modifiers translates the combo to Win32 modifier flags.
func (c Combo) modifiers() []hotkey.Modifier {
	var mods []hotkey.Modifier
	if c.Ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if c.Alt {
		mods = append(mods, hotkey.ModAlt)
	}
	if c.Shift {
		mods = append(mods, hotkey.ModShift)
	}
	if c.Super {
		mods = append(mods, hotkey.ModWin)
	}
	return mods
}
