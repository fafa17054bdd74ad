package capture

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/autovnc/internal/ir"
)

// KeyClass is the classification of a raw key name.
type KeyClass int

const (
	KeyUnknown KeyClass = iota
	KeyModifier
	KeyNamed
	KeyPrintable
)

// keyAliases maps lower-cased transport key names to canonical tokens.
var keyAliases = map[string]string{
	"shift":       ir.KeyShift,
	"control":     ir.KeyCtrl,
	"ctrl":        ir.KeyCtrl,
	"alt":         ir.KeyAlt,
	"altgraph":    ir.KeyAlt,
	"option":      ir.KeyAlt,
	"meta":        ir.KeyMeta,
	"os":          ir.KeyMeta,
	"super":       ir.KeyMeta,
	"command":     ir.KeyMeta,
	"enter":       ir.KeyEnter,
	"return":      ir.KeyEnter,
	"tab":         ir.KeyTab,
	"spacebar":    ir.KeySpace,
	"space":       ir.KeySpace,
	"backspace":   ir.KeyBack,
	"delete":      ir.KeyDelete,
	"del":         ir.KeyDelete,
	"escape":      ir.KeyEscape,
	"esc":         ir.KeyEscape,
	"arrowup":     ir.KeyUp,
	"up":          ir.KeyUp,
	"arrowdown":   ir.KeyDown,
	"down":        ir.KeyDown,
	"arrowleft":   ir.KeyLeft,
	"left":        ir.KeyLeft,
	"arrowright":  ir.KeyRight,
	"right":       ir.KeyRight,
	"home":        ir.KeyHome,
	"end":         ir.KeyEnd,
	"pageup":      ir.KeyPageUp,
	"pagedown":    ir.KeyPageDown,
	"insert":      ir.KeyInsert,
	"capslock":    "caplk",
	"numlock":     "numlk",
	"scrolllock":  "scrlk",
	"printscreen": "printscreen",
	"pause":       "pause",
}

// ClassifyKey maps a transport key name ("Enter", "ArrowUp", "a") to its
// canonical token and class. Single printable characters keep their case.
func ClassifyKey(key string) (string, KeyClass) {
	if key == "" {
		return "", KeyUnknown
	}
	if utf8.RuneCountInString(key) == 1 {
		r, _ := utf8.DecodeRuneInString(key)
		if unicode.IsPrint(r) {
			return key, KeyPrintable
		}
		return "", KeyUnknown
	}

	lower := strings.ToLower(key)
	token, ok := keyAliases[lower]
	if !ok {
		if isFunctionKey(lower) {
			return lower, KeyNamed
		}
		return "", KeyUnknown
	}
	if ir.IsModifierKey(token) {
		return token, KeyModifier
	}
	return token, KeyNamed
}

func isFunctionKey(s string) bool {
	switch s {
	case "f1", "f2", "f3", "f4", "f5", "f6", "f7", "f8", "f9", "f10", "f11", "f12":
		return true
	}
	return false
}
