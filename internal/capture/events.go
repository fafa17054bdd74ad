// Package capture turns a stream of primitive pointer, wheel and keyboard
// events over a remote display into committed steps.
//
// The Classifier is synchronous: Handle never blocks on I/O. Steps that
// need a template or recognised text carry a CaptureRequest which the
// caller resolves asynchronously.
package capture

import (
	"fmt"

	"github.com/roach88/autovnc/internal/coords"
	"github.com/roach88/autovnc/internal/ir"
)

// EventKind distinguishes primitive input events.
type EventKind int

const (
	PointerDown EventKind = iota + 1
	PointerMove
	PointerUp
	Wheel
	KeyDown
)

func (k EventKind) String() string {
	switch k {
	case PointerDown:
		return "pointer_down"
	case PointerMove:
		return "pointer_move"
	case PointerUp:
		return "pointer_up"
	case Wheel:
		return "wheel"
	case KeyDown:
		return "key_down"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Button identifies a pointer button.
type Button int

const (
	ButtonPrimary Button = iota
	ButtonMiddle
	ButtonSecondary
)

// Modifiers is the set of modifier keys held during an event.
type Modifiers struct {
	Ctrl  bool `yaml:"ctrl,omitempty"`
	Alt   bool `yaml:"alt,omitempty"`
	Shift bool `yaml:"shift,omitempty"`
	Meta  bool `yaml:"meta,omitempty"`
}

// Tokens returns the held modifiers as canonical key tokens in the order
// ctrl, alt, shift, meta.
func (m Modifiers) Tokens() []string {
	var out []string
	if m.Ctrl {
		out = append(out, ir.KeyCtrl)
	}
	if m.Alt {
		out = append(out, ir.KeyAlt)
	}
	if m.Shift {
		out = append(out, ir.KeyShift)
	}
	if m.Meta {
		out = append(out, ir.KeyMeta)
	}
	return out
}

// Event is one primitive input event. X and Y are in local display units.
type Event struct {
	Kind       EventKind
	X, Y       float64
	Button     Button
	ClickCount int
	DeltaX     float64
	DeltaY     float64
	Key        string
	Modifiers  Modifiers
	Repeat     bool
}

// Mode selects how pointer interactions are interpreted.
type Mode int

const (
	// ModeNormal records coordinate clicks.
	ModeNormal Mode = iota
	// ModeSmart records clicks that request a template around the point.
	ModeSmart
	// ModeAssertImage turns pointer drags into wait_for_image selections.
	ModeAssertImage
	// ModeAssertText turns pointer drags into wait_for_text selections.
	ModeAssertText
)

var modeNames = map[Mode]string{
	ModeNormal:      "normal",
	ModeSmart:       "smart",
	ModeAssertImage: "assert_image",
	ModeAssertText:  "assert_text",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// IsAssertion reports whether m is a rectangle selection mode.
func (m Mode) IsAssertion() bool {
	return m == ModeAssertImage || m == ModeAssertText
}

// ParseMode parses a mode name. The empty string is ModeNormal.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeNormal, nil
	}
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return ModeNormal, fmt.Errorf("unknown capture mode %q", s)
}

// CaptureTarget says what a CaptureRequest resolves into.
type CaptureTarget int

const (
	// TargetTemplate stores a sub-image and sets Step.Template.
	TargetTemplate CaptureTarget = iota + 1
	// TargetText recognises text in the region and sets Step.Text.
	TargetText
)

// CaptureRequest asks for the area of the frame a committed step refers to.
// Exactly one of Point and Rect is set; both are in remote pixels.
type CaptureRequest struct {
	Target CaptureTarget
	Point  *coords.Point
	Rect   *coords.Rect
}
