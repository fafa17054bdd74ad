// Package template cuts template images out of the remote frame and hands
// them to a Storage collaborator.
package template

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"go.uber.org/zap"

	"github.com/roach88/autovnc/internal/coords"
	"github.com/roach88/autovnc/internal/observability"
)

// DefaultWindow is the side, in logical display units, of the square cut
// around a point anchor.
const DefaultWindow = 80

// CaptureError wraps a failure in any capture stage. Callers degrade to a
// coordinate-only step and keep recording.
type CaptureError struct {
	Op  string // "crop", "encode", "upload" or "recognize"
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("template %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Result is a stored template.
type Result struct {
	Name string
	// Hint is the remote centre of the captured area.
	Hint coords.Point
	// Area is the captured remote rectangle after clipping to the frame.
	Area coords.Rect
}

// Recognizer extracts text from an encoded image.
type Recognizer interface {
	Recognize(ctx context.Context, png []byte) (string, error)
}

// Capturer crops, encodes and stores templates for one script.
type Capturer struct {
	storage Storage
	script  string
	window  int
	logger  *zap.Logger
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithWindow sets the logical size of point captures.
func WithWindow(units int) Option {
	return func(c *Capturer) {
		if units > 0 {
			c.window = units
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Capturer) {
		c.logger = l
	}
}

// NewCapturer creates a capturer storing into storage under script.
func NewCapturer(storage Storage, script string, opts ...Option) *Capturer {
	c := &Capturer{storage: storage, script: script, window: DefaultWindow}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = observability.GetLogger()
	}
	c.logger = c.logger.Named("template").With(zap.String("script", script))
	return c
}

// PointArea returns the remote rectangle captured around p: a window of
// the configured logical size scaled per axis by m.
func (c *Capturer) PointArea(m coords.Mapper, p coords.Point) coords.Rect {
	size := m.LogicalToRemote(c.window, c.window)
	return coords.Rect{
		X:      p.X - size.Width/2,
		Y:      p.Y - size.Height/2,
		Width:  size.Width,
		Height: size.Height,
	}
}

// CapturePoint stores the window centred on remote point p.
func (c *Capturer) CapturePoint(ctx context.Context, frame image.Image, m coords.Mapper, p coords.Point) (Result, error) {
	return c.CaptureRect(ctx, frame, c.PointArea(m, p))
}

// CaptureRect stores exactly the remote rectangle r, clipped to the frame.
func (c *Capturer) CaptureRect(ctx context.Context, frame image.Image, r coords.Rect) (Result, error) {
	img, area, err := Crop(frame, r)
	if err != nil {
		return Result{}, &CaptureError{Op: "crop", Err: err}
	}
	data, err := Encode(img)
	if err != nil {
		return Result{}, &CaptureError{Op: "encode", Err: err}
	}
	name, err := c.storage.Upload(ctx, c.script, data)
	if err != nil {
		return Result{}, &CaptureError{Op: "upload", Err: err}
	}
	c.logger.Debug("template stored", zap.String("name", name),
		zap.Int("width", area.Width), zap.Int("height", area.Height))
	return Result{Name: name, Hint: area.Center(), Area: area}, nil
}

// RecognizeRect crops r and asks rec for the text inside it.
func (c *Capturer) RecognizeRect(ctx context.Context, frame image.Image, r coords.Rect, rec Recognizer) (string, error) {
	img, _, err := Crop(frame, r)
	if err != nil {
		return "", &CaptureError{Op: "crop", Err: err}
	}
	data, err := Encode(img)
	if err != nil {
		return "", &CaptureError{Op: "encode", Err: err}
	}
	text, err := rec.Recognize(ctx, data)
	if err != nil {
		return "", &CaptureError{Op: "recognize", Err: err}
	}
	return text, nil
}

// Crop copies the part of frame inside r into a new image whose origin is
// (0,0). The returned rect is r clipped to the frame bounds.
func Crop(frame image.Image, r coords.Rect) (image.Image, coords.Rect, error) {
	if frame == nil {
		return nil, coords.Rect{}, fmt.Errorf("no frame")
	}
	b := frame.Bounds()
	want := image.Rect(b.Min.X+r.X, b.Min.Y+r.Y, b.Min.X+r.X+r.Width, b.Min.Y+r.Y+r.Height)
	clipped := want.Intersect(b)
	if clipped.Empty() {
		return nil, coords.Rect{}, fmt.Errorf("area %+v outside frame %v", r, b)
	}

	dst := image.NewRGBA(image.Rect(0, 0, clipped.Dx(), clipped.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, clipped.Min, draw.Src)

	area := coords.Rect{
		X:      clipped.Min.X - b.Min.X,
		Y:      clipped.Min.Y - b.Min.Y,
		Width:  clipped.Dx(),
		Height: clipped.Dy(),
	}
	return dst, area, nil
}

// Encode renders img as PNG.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
