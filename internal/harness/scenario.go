package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/autovnc/internal/capture"
	"github.com/roach88/autovnc/internal/coords"
	"github.com/roach88/autovnc/internal/ir"
)

// Scenario defines a recorded capture session.
// Scenarios replay timed input events through a live session and assert on
// the steps and source it produces.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the script name
	// and the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates. It becomes the
	// script docstring.
	Description string `yaml:"description"`

	// Display is the size of the local view events are reported in.
	Display coords.Size `yaml:"display"`

	// Remote is the remote framebuffer size. Defaults to Display.
	Remote coords.Size `yaml:"remote,omitempty"`

	// Mode is the capture mode at the start of the session.
	Mode string `yaml:"mode,omitempty"`

	// RecognizedText is what the text recognizer returns for every
	// assert_text selection. Empty means no recognizer is configured.
	RecognizedText string `yaml:"recognized_text,omitempty"`

	// FailCapture makes every template upload fail.
	FailCapture bool `yaml:"fail_capture,omitempty"`

	// Events is the timed input stream.
	Events []EventStep `yaml:"events"`

	// Manual is appended to the source after recording stops, followed by
	// a resynthesis.
	Manual string `yaml:"manual,omitempty"`

	// Assertions validate the final steps and source.
	// Supported types: step_types, step_count, source_contains,
	// source_not_contains, findings, warning_count, template_count
	Assertions []Assertion `yaml:"assertions"`
}

// EventStep is one entry of the event stream. The clock is moved first
// (At or Advance), then the mode is switched, then the event is handled.
type EventStep struct {
	// At is the offset in seconds from the start of the session.
	At *float64 `yaml:"at,omitempty"`

	// Advance moves the clock forward by this many seconds.
	Advance float64 `yaml:"advance,omitempty"`

	// Mode switches the capture mode before the event.
	Mode string `yaml:"mode,omitempty"`

	// Kind is a primitive event kind (pointer_down, pointer_move,
	// pointer_up, wheel, key_down) or a shorthand: click, drag, type.
	// Empty means only the clock or mode changes.
	Kind string `yaml:"kind,omitempty"`

	X          float64 `yaml:"x,omitempty"`
	Y          float64 `yaml:"y,omitempty"`
	EndX       float64 `yaml:"end_x,omitempty"`
	EndY       float64 `yaml:"end_y,omitempty"`
	Button     string  `yaml:"button,omitempty"`
	ClickCount int     `yaml:"click_count,omitempty"`
	DeltaX     float64 `yaml:"delta_x,omitempty"`
	DeltaY     float64 `yaml:"delta_y,omitempty"`
	Key        string  `yaml:"key,omitempty"`
	// Text is typed one key_down per character by the type shorthand.
	Text      string            `yaml:"text,omitempty"`
	Modifiers capture.Modifiers `yaml:"modifiers,omitempty"`
	Repeat    bool              `yaml:"repeat,omitempty"`
}

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "step_types": the recorded step types, in order
	// - "step_count": the number of recorded steps
	// - "source_contains": Text appears in the final source
	// - "source_not_contains": Text does not appear in the final source
	// - "findings": the validator reports exactly Codes, in order
	// - "warning_count": the number of capture warnings
	// - "template_count": the number of stored templates
	Type string `yaml:"type"`

	// Types is the expected step type order (used by step_types).
	Types []string `yaml:"types,omitempty"`

	// Count is the expected number (used by the *_count assertions).
	Count int `yaml:"count,omitempty"`

	// Text is the expected source fragment (used by source_contains and
	// source_not_contains).
	Text string `yaml:"text,omitempty"`

	// Codes are the expected finding codes (used by findings).
	Codes []string `yaml:"codes,omitempty"`
}

// Assertion type constants.
const (
	AssertStepTypes         = "step_types"
	AssertStepCount         = "step_count"
	AssertSourceContains    = "source_contains"
	AssertSourceNotContains = "source_not_contains"
	AssertFindings          = "findings"
	AssertWarningCount      = "warning_count"
	AssertTemplateCount     = "template_count"
)

// Event kind names, including the shorthands expanded by Events.
const (
	KindPointerDown = "pointer_down"
	KindPointerMove = "pointer_move"
	KindPointerUp   = "pointer_up"
	KindWheel       = "wheel"
	KindKeyDown     = "key_down"
	KindClick       = "click"
	KindDrag        = "drag"
	KindType        = "type"
)

var buttons = map[string]capture.Button{
	"":          capture.ButtonPrimary,
	"primary":   capture.ButtonPrimary,
	"left":      capture.ButtonPrimary,
	"middle":    capture.ButtonMiddle,
	"secondary": capture.ButtonSecondary,
	"right":     capture.ButtonSecondary,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Remote == (coords.Size{}) {
		scenario.Remote = scenario.Display
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if !s.Display.Valid() {
		return fmt.Errorf("display size is required")
	}
	if !s.Remote.Valid() {
		return fmt.Errorf("remote size must be positive")
	}
	if _, err := capture.ParseMode(s.Mode); err != nil {
		return err
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}

	for i, ev := range s.Events {
		if err := validateEvent(ev); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return nil
}

func validateEvent(ev EventStep) error {
	if ev.At != nil && ev.Advance != 0 {
		return fmt.Errorf("at and advance are mutually exclusive")
	}
	if ev.Advance < 0 || (ev.At != nil && *ev.At < 0) {
		return fmt.Errorf("time must not move backwards")
	}
	if _, err := capture.ParseMode(ev.Mode); err != nil {
		return err
	}
	if _, ok := buttons[strings.ToLower(ev.Button)]; !ok {
		return fmt.Errorf("unknown button %q", ev.Button)
	}

	switch ev.Kind {
	case "", KindPointerDown, KindPointerMove, KindPointerUp, KindClick, KindDrag:
	case KindWheel:
		if ev.DeltaX == 0 && ev.DeltaY == 0 {
			return fmt.Errorf("wheel requires delta_x or delta_y")
		}
	case KindKeyDown:
		if ev.Key == "" {
			return fmt.Errorf("key_down requires key")
		}
	case KindType:
		if ev.Text == "" {
			return fmt.Errorf("type requires text")
		}
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return nil
}

// validateAssertion checks that an assertion has required fields for its type.
func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertStepTypes:
		for _, t := range a.Types {
			if !ir.StepType(t).Valid() {
				return fmt.Errorf("step_types: unknown step type %q", t)
			}
		}
	case AssertStepCount, AssertWarningCount, AssertTemplateCount:
		if a.Count < 0 {
			return fmt.Errorf("%s: count must be non-negative", a.Type)
		}
	case AssertSourceContains, AssertSourceNotContains:
		if a.Text == "" {
			return fmt.Errorf("%s: text is required", a.Type)
		}
	case AssertFindings:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// Events expands the step into primitive input events.
func (ev EventStep) Events() []capture.Event {
	button := buttons[strings.ToLower(ev.Button)]
	clicks := ev.ClickCount
	if clicks == 0 {
		clicks = 1
	}
	base := capture.Event{
		X:          ev.X,
		Y:          ev.Y,
		Button:     button,
		ClickCount: clicks,
		DeltaX:     ev.DeltaX,
		DeltaY:     ev.DeltaY,
		Key:        ev.Key,
		Modifiers:  ev.Modifiers,
		Repeat:     ev.Repeat,
	}
	with := func(kind capture.EventKind, x, y float64) capture.Event {
		e := base
		e.Kind, e.X, e.Y = kind, x, y
		return e
	}

	switch ev.Kind {
	case KindPointerDown:
		return []capture.Event{with(capture.PointerDown, ev.X, ev.Y)}
	case KindPointerMove:
		return []capture.Event{with(capture.PointerMove, ev.X, ev.Y)}
	case KindPointerUp:
		return []capture.Event{with(capture.PointerUp, ev.X, ev.Y)}
	case KindWheel:
		return []capture.Event{with(capture.Wheel, ev.X, ev.Y)}
	case KindKeyDown:
		return []capture.Event{with(capture.KeyDown, ev.X, ev.Y)}
	case KindClick:
		return []capture.Event{
			with(capture.PointerDown, ev.X, ev.Y),
			with(capture.PointerUp, ev.X, ev.Y),
		}
	case KindDrag:
		return []capture.Event{
			with(capture.PointerDown, ev.X, ev.Y),
			with(capture.PointerMove, ev.EndX, ev.EndY),
			with(capture.PointerUp, ev.EndX, ev.EndY),
		}
	case KindType:
		var out []capture.Event
		for _, r := range ev.Text {
			e := with(capture.KeyDown, ev.X, ev.Y)
			e.Key = string(r)
			out = append(out, e)
		}
		return out
	}
	return nil
}
