//go:build darwin

package hotkeys

import "golang.design/x/hotkey"

// modifiers translates the combo to Carbon modifier flags. Alt means the
// Option key and Super means Command.
func (c Combo) modifiers() []hotkey.Modifier {
	var mods []hotkey.Modifier
	if c.Ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if c.Alt {
		mods = append(mods, hotkey.ModOption)
	}
	if c.Shift {
		mods = append(mods, hotkey.ModShift)
	}
	if c.Super {
		mods = append(mods, hotkey.ModCmd)
	}
	return mods
}
