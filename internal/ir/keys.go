package ir

import "strings"

// Canonical key tokens. These are the values stored in Step.Keys; a
// printable character is stored as itself.
const (
	KeyShift    = "shift"
	KeyCtrl     = "ctrl"
	KeyAlt      = "alt"
	KeyMeta     = "meta"
	KeyEnter    = "enter"
	KeyTab      = "tab"
	KeySpace    = "space"
	KeyBack     = "bsp"
	KeyDelete   = "delete"
	KeyEscape   = "esc"
	KeyUp       = "up"
	KeyDown     = "down"
	KeyLeft     = "left"
	KeyRight    = "right"
	KeyHome     = "home"
	KeyEnd      = "end"
	KeyPageUp   = "pgup"
	KeyPageDown = "pgdn"
	KeyInsert   = "ins"
)

// keyConstants maps a canonical token to the name of its constant in the
// generated script's Keys vocabulary where the two differ from upper case.
var keyConstants = map[string]string{
	KeyBack:       "BACKSPACE",
	KeyEscape:     "ESC",
	KeyPageUp:     "PAGE_UP",
	KeyPageDown:   "PAGE_DOWN",
	KeyInsert:     "INSERT",
	"caplk":       "CAPS_LOCK",
	"numlk":       "NUM_LOCK",
	"scrlk":       "SCROLL_LOCK",
	"printscreen": "PRINT_SCREEN",
}

var namedTokens = map[string]bool{
	KeyShift: true, KeyCtrl: true, KeyAlt: true, KeyMeta: true,
	KeyEnter: true, KeyTab: true, KeySpace: true, KeyBack: true,
	KeyDelete: true, KeyEscape: true, KeyUp: true, KeyDown: true,
	KeyLeft: true, KeyRight: true, KeyHome: true, KeyEnd: true,
	KeyPageUp: true, KeyPageDown: true, KeyInsert: true,
	"caplk": true, "numlk": true, "scrlk": true, "printscreen": true,
	"pause": true,
	"f1": true, "f2": true, "f3": true, "f4": true, "f5": true, "f6": true,
	"f7": true, "f8": true, "f9": true, "f10": true, "f11": true, "f12": true,
}

// IsNamedKey reports whether token is a canonical named key rather than a
// literal character.
func IsNamedKey(token string) bool {
	return namedTokens[token]
}

// IsModifierKey reports whether token is one of the four modifiers.
func IsModifierKey(token string) bool {
	switch token {
	case KeyShift, KeyCtrl, KeyAlt, KeyMeta:
		return true
	}
	return false
}

// KeyConstant returns the Keys vocabulary constant for a named token, e.g.
// "bsp" -> "BACKSPACE". ok is false for literal characters.
func KeyConstant(token string) (name string, ok bool) {
	if !IsNamedKey(token) {
		return "", false
	}
	if c, found := keyConstants[token]; found {
		return c, true
	}
	return strings.ToUpper(token), true
}
