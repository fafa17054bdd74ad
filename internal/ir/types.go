package ir

import (
	"time"

	"github.com/roach88/autovnc/internal/coords"
)

// StepType identifies the kind of automation instruction a Step encodes.
type StepType string

const (
	StepClick        StepType = "click"
	StepDoubleClick  StepType = "double_click"
	StepRightClick   StepType = "right_click"
	StepDrag         StepType = "drag"
	StepScroll       StepType = "scroll"
	StepTypeText     StepType = "type"
	StepKeyPress     StepType = "key_press"
	StepKeyCombo     StepType = "key_combo"
	StepWait         StepType = "wait"
	StepWaitForImage StepType = "wait_for_image"
	StepWaitForText  StepType = "wait_for_text"
	StepScreenshot   StepType = "screenshot"
)

// StepTypes lists every valid StepType in declaration order.
var StepTypes = []StepType{
	StepClick, StepDoubleClick, StepRightClick, StepDrag, StepScroll,
	StepTypeText, StepKeyPress, StepKeyCombo, StepWait, StepWaitForImage,
	StepWaitForText, StepScreenshot,
}

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	for _, v := range StepTypes {
		if v == t {
			return true
		}
	}
	return false
}

// IsClick reports whether t is one of the three click variants.
func (t StepType) IsClick() bool {
	return t == StepClick || t == StepDoubleClick || t == StepRightClick
}

// Defaults applied when the corresponding Step field is zero.
const (
	DefaultThreshold      = 0.8
	DefaultTimeout        = 30.0
	DefaultWaitDuration   = 1.0
	DefaultScrollClicks   = 1
	DefaultScreenshotName = "screenshot.png"
)

// Scroll directions.
const (
	ScrollUp    = "up"
	ScrollDown  = "down"
	ScrollLeft  = "left"
	ScrollRight = "right"
)

// Region bounds template matching or text recognition, in remote pixels.
type Region struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// RegionFromRect converts a remote rectangle into a Region.
func RegionFromRect(r coords.Rect) *Region {
	return &Region{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

// Step is one recorded or authored automation instruction.
//
// Coordinates are pointers so that "unknown" and "0" stay distinct; every
// other optional field uses its zero value as "unset" and the Default*
// constants apply.
type Step struct {
	ID    string   `json:"id" yaml:"id,omitempty"`
	Type  StepType `json:"type" yaml:"type"`
	Order int      `json:"order" yaml:"order,omitempty"`

	X    *int `json:"x,omitempty" yaml:"x,omitempty"`
	Y    *int `json:"y,omitempty" yaml:"y,omitempty"`
	EndX *int `json:"end_x,omitempty" yaml:"end_x,omitempty"`
	EndY *int `json:"end_y,omitempty" yaml:"end_y,omitempty"`

	Text string   `json:"text,omitempty" yaml:"text,omitempty"`
	Keys []string `json:"keys,omitempty" yaml:"keys,omitempty"`

	Template      string  `json:"template,omitempty" yaml:"template,omitempty"`
	Threshold     float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Region        *Region `json:"region,omitempty" yaml:"region,omitempty"`
	CaseSensitive bool    `json:"case_sensitive,omitempty" yaml:"case_sensitive,omitempty"`

	Direction string `json:"direction,omitempty" yaml:"direction,omitempty"`
	Clicks    int    `json:"clicks,omitempty" yaml:"clicks,omitempty"`

	Timeout     float64 `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Duration    float64 `json:"duration,omitempty" yaml:"duration,omitempty"`
	DelayBefore float64 `json:"delay_before,omitempty" yaml:"delay_before,omitempty"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// HasPoint reports whether both X and Y are set.
func (s Step) HasPoint() bool {
	return s.X != nil && s.Y != nil
}

// Point returns the step's anchor; ok is false when either axis is unset.
func (s Step) Point() (p coords.Point, ok bool) {
	if !s.HasPoint() {
		return coords.Point{}, false
	}
	return coords.Point{X: *s.X, Y: *s.Y}, true
}

// SetPoint sets X and Y.
func (s *Step) SetPoint(p coords.Point) {
	x, y := p.X, p.Y
	s.X, s.Y = &x, &y
}

// SetEnd sets EndX and EndY.
func (s *Step) SetEnd(p coords.Point) {
	x, y := p.X, p.Y
	s.EndX, s.EndY = &x, &y
}

// EffectiveThreshold returns Threshold or DefaultThreshold.
func (s Step) EffectiveThreshold() float64 {
	if s.Threshold == 0 {
		return DefaultThreshold
	}
	return s.Threshold
}

// EffectiveTimeout returns Timeout or DefaultTimeout.
func (s Step) EffectiveTimeout() float64 {
	if s.Timeout == 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

// EffectiveDuration returns Duration or DefaultWaitDuration.
func (s Step) EffectiveDuration() float64 {
	if s.Duration == 0 {
		return DefaultWaitDuration
	}
	return s.Duration
}

// EffectiveClicks returns Clicks or DefaultScrollClicks.
func (s Step) EffectiveClicks() int {
	if s.Clicks <= 0 {
		return DefaultScrollClicks
	}
	return s.Clicks
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	c := s
	c.X = cloneInt(s.X)
	c.Y = cloneInt(s.Y)
	c.EndX = cloneInt(s.EndX)
	c.EndY = cloneInt(s.EndY)
	if s.Keys != nil {
		c.Keys = append([]string(nil), s.Keys...)
	}
	if s.Region != nil {
		r := *s.Region
		c.Region = &r
	}
	return c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Template is a named captured sub-image owned by one script.
type Template struct {
	Name       string    `json:"name"`
	ScriptName string    `json:"script_name"`
	Data       []byte    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScriptMetadata describes a stored script.
type ScriptMetadata struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	IsEjected   bool      `json:"is_ejected"`
}

// CodeMetadata records where the generated region of Code ends and what it
// hashed to when it was last synthesized.
type CodeMetadata struct {
	GeneratedLineCount int        `json:"generated_line_count"`
	GeneratedCodeHash  string     `json:"generated_code_hash,omitempty"`
	LastGeneratedAt    *time.Time `json:"last_generated_at,omitempty"`
}

// Script is a complete script: metadata, steps, optional source and the
// names of its templates.
type Script struct {
	Metadata     ScriptMetadata `json:"metadata"`
	Steps        []Step         `json:"steps"`
	Code         string         `json:"code,omitempty"`
	CodeMetadata *CodeMetadata  `json:"code_metadata,omitempty"`
	Templates    []string       `json:"templates,omitempty"`
}

// ScriptSummary is the list-view projection of a Script.
type ScriptSummary struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	StepCount   int       `json:"step_count"`
	IsEjected   bool      `json:"is_ejected"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
