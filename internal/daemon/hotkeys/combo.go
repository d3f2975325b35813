package hotkeys

import (
	"fmt"
	"strings"
)

// Combo is a parsed key combination: a modifier set plus exactly one key.
type Combo struct {
	Ctrl  bool
	Alt   bool
	Shift bool
	Super bool
	// Key is the canonical key name, e.g. "R", "F5", "PageUp".
	Key string
}

// keyNames maps a lowercased key token to its canonical name. Letters,
// digits, and function keys are filled in by init.
var keyNames = map[string]string{
	"space":       "Space",
	"enter":       "Enter",
	"return":      "Enter",
	"escape":      "Escape",
	"esc":         "Escape",
	"tab":         "Tab",
	"backspace":   "Backspace",
	"delete":      "Delete",
	"del":         "Delete",
	"insert":      "Insert",
	"ins":         "Insert",
	"home":        "Home",
	"end":         "End",
	"pageup":      "PageUp",
	"pgup":        "PageUp",
	"pagedown":    "PageDown",
	"pgdn":        "PageDown",
	"up":          "Up",
	"down":        "Down",
	"left":        "Left",
	"right":       "Right",
	"printscreen": "PrintScreen",
	"print":       "PrintScreen",
	"prtsc":       "PrintScreen",
	"pause":       "Pause",
}

func init() {
	for r := 'a'; r <= 'z'; r++ {
		keyNames[string(r)] = strings.ToUpper(string(r))
	}
	for r := '0'; r <= '9'; r++ {
		keyNames[string(r)] = string(r)
	}
	for i := 1; i <= 12; i++ {
		keyNames[fmt.Sprintf("f%d", i)] = fmt.Sprintf("F%d", i)
	}
}

// ParseCombo parses a combination string like "Ctrl+Shift+R". Tokens are
// split on "+", trimmed, and matched case-insensitively; empty tokens are
// skipped. Exactly one token must be a key; the rest must be modifiers
// (Ctrl|Control, Alt, Shift, Super|Win|Meta|Cmd).
func ParseCombo(s string) (Combo, error) {
	var c Combo
	keys := 0

	for _, part := range strings.Split(s, "+") {
		token := strings.ToLower(strings.TrimSpace(part))
		if token == "" {
			continue
		}
		switch token {
		case "ctrl", "control":
			c.Ctrl = true
		case "alt":
			c.Alt = true
		case "shift":
			c.Shift = true
		case "super", "win", "meta", "cmd":
			c.Super = true
		default:
			name, ok := keyNames[token]
			if !ok {
				return Combo{}, fmt.Errorf("unknown key %q in hotkey %q", strings.TrimSpace(part), s)
			}
			c.Key = name
			keys++
		}
	}

	if keys == 0 {
		return Combo{}, fmt.Errorf("hotkey %q has no key", s)
	}
	if keys > 1 {
		return Combo{}, fmt.Errorf("hotkey %q has more than one key", s)
	}
	return c, nil
}

// String returns the canonical form: modifiers in the fixed order
// Ctrl, Alt, Shift, Super, then the key. Two strings that parse to the same
// combination always canonicalize identically.
func (c Combo) String() string {
	parts := make([]string, 0, 5)
	if c.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if c.Alt {
		parts = append(parts, "Alt")
	}
	if c.Shift {
		parts = append(parts, "Shift")
	}
	if c.Super {
		parts = append(parts, "Super")
	}
	parts = append(parts, c.Key)
	return strings.Join(parts, "+")
}
