// Package coords maps points and rectangles between the local display
// surface (where the operator's pointer lives) and the remote frame buffer.
//
// All functions are pure. Results are rounded to the nearest pixel and
// clamped to [0, dimension-1], so mapping between two surfaces of equal size
// is the identity for every in-range point.
package coords

import "math"

// Size is the width and height of a surface in its own units.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Point is an integer position on a surface.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Rect is an axis-aligned rectangle given by its origin and size.
type Rect struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Center returns the integer centre of the rectangle.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// RectFromCorners builds a normalised rectangle from two opposite corners
// given in any order.
func RectFromCorners(a, b Point) Rect {
	x0, x1 := a.X, b.X
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	y0, y1 := a.Y, b.Y
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Mapper converts between a display surface and a remote frame.
// The zero value is not usable; both sizes must be valid.
type Mapper struct {
	Display Size
	Remote  Size
}

// NewMapper returns a Mapper for the given display and remote sizes.
func NewMapper(display, remote Size) Mapper {
	return Mapper{Display: display, Remote: remote}
}

// Valid reports whether both surfaces have positive dimensions.
func (m Mapper) Valid() bool {
	return m.Display.Valid() && m.Remote.Valid()
}

// ScaleX returns remote units per display unit on the horizontal axis.
func (m Mapper) ScaleX() float64 {
	return float64(m.Remote.Width) / float64(m.Display.Width)
}

// ScaleY returns remote units per display unit on the vertical axis.
func (m Mapper) ScaleY() float64 {
	return float64(m.Remote.Height) / float64(m.Display.Height)
}

// ToRemote maps a local display position to remote frame space.
func (m Mapper) ToRemote(localX, localY float64) Point {
	return ToRemote(localX, localY, m.Display.Width, m.Display.Height, m.Remote.Width, m.Remote.Height)
}

// ToLocal maps a remote frame position back to display space.
func (m Mapper) ToLocal(remoteX, remoteY float64) Point {
	return ToLocal(remoteX, remoteY, m.Display.Width, m.Display.Height, m.Remote.Width, m.Remote.Height)
}

// RectToRemote maps a display rectangle to remote space.
func (m Mapper) RectToRemote(r Rect) Rect {
	return scaleRect(r, m.Display, m.Remote)
}

// RectToLocal maps a remote rectangle to display space.
func (m Mapper) RectToLocal(r Rect) Rect {
	return scaleRect(r, m.Remote, m.Display)
}

// LogicalToRemote converts a size expressed in display units into remote
// pixels, e.g. the fixed template window around a click.
func (m Mapper) LogicalToRemote(w, h int) Size {
	return Size{
		Width:  int(math.Round(float64(w) * m.ScaleX())),
		Height: int(math.Round(float64(h) * m.ScaleY())),
	}
}

// ToRemote maps (localX, localY) on a displayWidth×displayHeight surface to a
// remoteWidth×remoteHeight frame.
func ToRemote(localX, localY float64, displayWidth, displayHeight, remoteWidth, remoteHeight int) Point {
	return Point{
		X: scaleAxis(localX, displayWidth, remoteWidth),
		Y: scaleAxis(localY, displayHeight, remoteHeight),
	}
}

// ToLocal is the inverse of ToRemote.
func ToLocal(remoteX, remoteY float64, displayWidth, displayHeight, remoteWidth, remoteHeight int) Point {
	return Point{
		X: scaleAxis(remoteX, remoteWidth, displayWidth),
		Y: scaleAxis(remoteY, remoteHeight, displayHeight),
	}
}

func scaleAxis(v float64, from, to int) int {
	if from <= 0 || to <= 0 {
		return 0
	}
	return clamp(int(math.Round(v*float64(to)/float64(from))), 0, to-1)
}

// scaleRect applies the per-axis scale to origin and size independently.
// The origin is clamped into the target surface; the size is not.
func scaleRect(r Rect, from, to Size) Rect {
	if !from.Valid() || !to.Valid() {
		return Rect{}
	}
	sx := float64(to.Width) / float64(from.Width)
	sy := float64(to.Height) / float64(from.Height)
	return Rect{
		X:      clamp(int(math.Round(float64(r.X)*sx)), 0, to.Width-1),
		Y:      clamp(int(math.Round(float64(r.Y)*sy)), 0, to.Height-1),
		Width:  int(math.Round(float64(r.Width) * sx)),
		Height: int(math.Round(float64(r.Height) * sy)),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
