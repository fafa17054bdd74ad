package capture

import (
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/autovnc/internal/clock"
	"github.com/roach88/autovnc/internal/coords"
	"github.com/roach88/autovnc/internal/ir"
	"github.com/roach88/autovnc/internal/observability"
)

// Defaults for Config.
const (
	DefaultDragThreshold = 10.0
	DefaultDebounce      = 250 * time.Millisecond
	DefaultMinRegion     = 5
)

// Config tunes the classifier.
type Config struct {
	// DragThreshold is the local-unit displacement on either axis that a
	// press must exceed to become a drag. Exactly DragThreshold is a click.
	DragThreshold float64
	// Debounce is how long a plain click is held back waiting for a second
	// click at the same spot.
	Debounce time.Duration
	// MinRegion is the minimum width and height, in local units, of an
	// assertion selection.
	MinRegion int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		DragThreshold: DefaultDragThreshold,
		Debounce:      DefaultDebounce,
		MinRegion:     DefaultMinRegion,
	}
}

// Action is a committed step plus the metadata the session needs to place
// it. Step has no id or order yet; DelayBefore is set.
type Action struct {
	Step    ir.Step
	At      time.Time
	Capture *CaptureRequest
}

// Sink receives committed actions in commit order. It is called with the
// classifier's lock held and must not call back into the classifier.
type Sink func(Action)

// Pointer states. Exactly one is current; a buffered click is tracked
// alongside because a second press can begin while the first click waits.
type pointerState interface {
	isPointerState()
}

type idleState struct{}

type pendingState struct {
	button      Button
	clickCount  int
	startLocal  [2]float64
	startRemote coords.Point
}

type draggingState struct {
	startRemote coords.Point
}

type selectingState struct {
	startLocal [2]float64
}

func (idleState) isPointerState()      {}
func (pendingState) isPointerState()   {}
func (draggingState) isPointerState()  {}
func (selectingState) isPointerState() {}

// bufferedClick is a plain click waiting out the debounce window.
type bufferedClick struct {
	local  [2]float64
	remote coords.Point
	at     time.Time
	timer  clock.Timer
}

// Classifier is the per-session action classifier.
//
// Thread-safety: Handle, SetMode, SetSurface and Stop may be called from
// any goroutine; debounce timers fire on the clock's goroutine and take the
// same lock.
type Classifier struct {
	mu     sync.Mutex
	cfg    Config
	clk    clock.Clock
	sink   Sink
	logger *zap.Logger

	mapper  coords.Mapper
	mode    Mode
	state   pointerState
	pointer [2]float64

	buffered   *bufferedClick
	lastCommit time.Time
	stopped    bool
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithConfig overrides the default thresholds. Zero fields keep defaults.
func WithConfig(cfg Config) Option {
	return func(c *Classifier) {
		if cfg.DragThreshold > 0 {
			c.cfg.DragThreshold = cfg.DragThreshold
		}
		if cfg.Debounce > 0 {
			c.cfg.Debounce = cfg.Debounce
		}
		if cfg.MinRegion > 0 {
			c.cfg.MinRegion = cfg.MinRegion
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) {
		c.logger = l
	}
}

// WithMode sets the initial mode.
func WithMode(m Mode) Option {
	return func(c *Classifier) {
		c.mode = m
	}
}

// NewClassifier creates a classifier that reports committed actions to
// sink. The delay of the first commit is measured from creation time.
func NewClassifier(clk clock.Clock, sink Sink, opts ...Option) *Classifier {
	c := &Classifier{
		cfg:   DefaultConfig(),
		clk:   clk,
		sink:  sink,
		state: idleState{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = observability.GetLogger()
	}
	c.logger = c.logger.Named("classifier")
	c.lastCommit = clk.Now()
	return c
}

// SetSurface installs the current display and remote frame sizes. Events
// are dropped until both are valid.
func (c *Classifier) SetSurface(display, remote coords.Size) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mapper = coords.NewMapper(display, remote)
}

// ClearSurface forgets the frame, e.g. after the transport disconnects.
// In-progress pointer interactions are abandoned.
func (c *Classifier) ClearSurface() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mapper = coords.Mapper{}
	c.state = idleState{}
}

// Mode returns the current mode.
func (c *Classifier) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches mode. A buffered click is committed first and any
// in-progress pointer interaction is abandoned.
func (c *Classifier) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushBuffered()
	c.state = idleState{}
	c.mode = m
}

// Stop rejects all further events. A buffered click is committed because it
// happened before the stop.
func (c *Classifier) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.flushBuffered()
	c.state = idleState{}
	c.stopped = true
}

// Handle classifies one event. It returns false when the event was dropped
// (classifier stopped or no frame surface).
func (c *Classifier) Handle(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return false
	}
	if !c.mapper.Valid() {
		c.logger.Debug("event dropped: no frame surface", zap.Stringer("kind", ev.Kind))
		return false
	}

	switch ev.Kind {
	case PointerDown:
		c.pointerDown(ev)
	case PointerMove:
		c.pointerMove(ev)
	case PointerUp:
		c.pointerUp(ev)
	case Wheel:
		c.wheel(ev)
	case KeyDown:
		c.keyDown(ev)
	default:
		c.logger.Debug("event dropped: unknown kind", zap.Stringer("kind", ev.Kind))
		return false
	}
	return true
}

func (c *Classifier) pointerDown(ev Event) {
	c.pointer = [2]float64{ev.X, ev.Y}
	if c.mode.IsAssertion() {
		if ev.Button == ButtonPrimary {
			c.state = selectingState{startLocal: c.pointer}
		}
		return
	}
	if ev.Button == ButtonMiddle {
		return
	}
	c.state = pendingState{
		button:      ev.Button,
		clickCount:  ev.ClickCount,
		startLocal:  c.pointer,
		startRemote: c.mapper.ToRemote(ev.X, ev.Y),
	}
}

func (c *Classifier) pointerMove(ev Event) {
	c.pointer = [2]float64{ev.X, ev.Y}
	p, ok := c.state.(pendingState)
	if !ok || p.button != ButtonPrimary {
		return
	}
	if c.beyondThreshold(p.startLocal, c.pointer) {
		c.state = draggingState{startRemote: p.startRemote}
	}
}

func (c *Classifier) pointerUp(ev Event) {
	c.pointer = [2]float64{ev.X, ev.Y}
	state := c.state
	c.state = idleState{}

	// A release far from the press is a drag even without intermediate moves.
	if p, ok := state.(pendingState); ok && p.button == ButtonPrimary && c.beyondThreshold(p.startLocal, c.pointer) {
		state = draggingState{startRemote: p.startRemote}
	}

	switch s := state.(type) {
	case selectingState:
		c.finishSelection(s)

	case draggingState:
		c.flushBuffered()
		step := ir.Step{Type: ir.StepDrag}
		step.SetPoint(s.startRemote)
		step.SetEnd(c.mapper.ToRemote(ev.X, ev.Y))
		c.commit(step, nil)

	case pendingState:
		c.finishPress(s)
	}
}

// finishPress resolves a press that never became a drag.
func (c *Classifier) finishPress(p pendingState) {
	switch {
	case p.button == ButtonSecondary:
		c.cancelBuffered()
		c.commitClick(ir.StepRightClick, p.startRemote, c.clk.Now())

	case p.clickCount >= 2:
		c.cancelBuffered()
		c.commitClick(ir.StepDoubleClick, p.startRemote, c.clk.Now())

	case c.buffered != nil && !c.beyondThreshold(c.buffered.local, p.startLocal):
		first := c.buffered.remote
		c.cancelBuffered()
		c.commitClick(ir.StepDoubleClick, first, c.clk.Now())

	default:
		c.flushBuffered()
		b := &bufferedClick{local: p.startLocal, remote: p.startRemote, at: c.clk.Now()}
		b.timer = c.clk.AfterFunc(c.cfg.Debounce, func() { c.expire(b) })
		c.buffered = b
	}
}

// expire commits a buffered click whose debounce window elapsed.
func (c *Classifier) expire(b *bufferedClick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buffered != b {
		return
	}
	c.buffered = nil
	c.commitClick(ir.StepClick, b.remote, b.at)
}

// flushBuffered commits a buffered click immediately with its original
// timestamp so that commit order stays equal to event order.
func (c *Classifier) flushBuffered() {
	b := c.buffered
	if b == nil {
		return
	}
	b.timer.Stop()
	c.buffered = nil
	c.commitClick(ir.StepClick, b.remote, b.at)
}

func (c *Classifier) cancelBuffered() {
	if c.buffered == nil {
		return
	}
	c.buffered.timer.Stop()
	c.buffered = nil
}

func (c *Classifier) finishSelection(s selectingState) {
	local := coords.RectFromCorners(
		coords.Point{X: int(math.Round(s.startLocal[0])), Y: int(math.Round(s.startLocal[1]))},
		coords.Point{X: int(math.Round(c.pointer[0])), Y: int(math.Round(c.pointer[1]))},
	)
	if local.Width < c.cfg.MinRegion || local.Height < c.cfg.MinRegion {
		c.logger.Debug("selection discarded: below minimum size",
			zap.Int("width", local.Width), zap.Int("height", local.Height))
		return
	}

	c.flushBuffered()
	rect := c.mapper.RectToRemote(local)
	step := ir.Step{Region: ir.RegionFromRect(rect)}
	step.SetPoint(rect.Center())

	req := &CaptureRequest{Rect: &rect}
	if c.mode == ModeAssertText {
		step.Type = ir.StepWaitForText
		req.Target = TargetText
	} else {
		step.Type = ir.StepWaitForImage
		req.Target = TargetTemplate
	}
	c.commit(step, req)
}

func (c *Classifier) wheel(ev Event) {
	c.pointer = [2]float64{ev.X, ev.Y}
	var dir string
	switch {
	case ev.DeltaY > 0:
		dir = ir.ScrollDown
	case ev.DeltaY < 0:
		dir = ir.ScrollUp
	case ev.DeltaX > 0:
		dir = ir.ScrollRight
	case ev.DeltaX < 0:
		dir = ir.ScrollLeft
	default:
		return
	}

	c.flushBuffered()
	step := ir.Step{Type: ir.StepScroll, Direction: dir, Clicks: 1}
	step.SetPoint(c.mapper.ToRemote(ev.X, ev.Y))
	c.commit(step, nil)
}

func (c *Classifier) keyDown(ev Event) {
	if ev.Repeat {
		return
	}
	token, class := ClassifyKey(ev.Key)

	if c.mode.IsAssertion() && token == ir.KeyEscape && class == KeyNamed {
		if _, ok := c.state.(selectingState); ok {
			c.logger.Debug("selection cancelled")
		}
		c.state = idleState{}
		return
	}

	var step ir.Step
	mods := ev.Modifiers
	switch class {
	case KeyUnknown, KeyModifier:
		return
	case KeyPrintable:
		// Shift alone only changes which character is typed.
		if mods.Ctrl || mods.Alt || mods.Meta {
			step = ir.Step{Type: ir.StepKeyCombo, Keys: append(mods.Tokens(), strings.ToLower(token))}
		} else {
			step = ir.Step{Type: ir.StepTypeText, Text: token}
		}
	case KeyNamed:
		if held := mods.Tokens(); len(held) > 0 {
			step = ir.Step{Type: ir.StepKeyCombo, Keys: append(held, token)}
		} else {
			step = ir.Step{Type: ir.StepKeyPress, Keys: []string{token}}
		}
	}

	c.flushBuffered()
	c.commit(step, nil)
}

func (c *Classifier) commitClick(t ir.StepType, at coords.Point, when time.Time) {
	step := ir.Step{Type: t}
	step.SetPoint(at)
	var req *CaptureRequest
	if c.mode == ModeSmart {
		p := at
		req = &CaptureRequest{Target: TargetTemplate, Point: &p}
	}
	c.commitAt(step, req, when)
}

func (c *Classifier) commit(step ir.Step, req *CaptureRequest) {
	c.commitAt(step, req, c.clk.Now())
}

func (c *Classifier) commitAt(step ir.Step, req *CaptureRequest, at time.Time) {
	step.DelayBefore = DelaySeconds(c.lastCommit, at)
	c.lastCommit = at
	c.logger.Debug("action committed",
		zap.String("type", string(step.Type)),
		zap.Float64("delay_before", step.DelayBefore))
	c.sink(Action{Step: step, At: at, Capture: req})
}

func (c *Classifier) beyondThreshold(a, b [2]float64) bool {
	return math.Abs(b[0]-a[0]) > c.cfg.DragThreshold || math.Abs(b[1]-a[1]) > c.cfg.DragThreshold
}

// DelaySeconds returns the time between prev and now in seconds rounded to
// one decimal place. Negative intervals yield 0.
func DelaySeconds(prev, now time.Time) float64 {
	d := now.Sub(prev).Seconds()
	if d <= 0 {
		return 0
	}
	return math.Round(d*10) / 10
}
