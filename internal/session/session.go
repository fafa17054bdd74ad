// Package session runs one live recording session for one script.
//
// A session wires the action classifier to the step model and the source
// buffer:
//
//	events -> Classifier -> insertion queue -> Model.Append + Buffer.Insert
//	                     \-> capture goroutine (template / text) -/
//
// Actions that need a template or recognised text reserve their queue slot
// at commit time and fill it when the capture finishes, so a slow capture
// never lets a later action overtake it.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/autovnc/internal/boundary"
	"github.com/roach88/autovnc/internal/capture"
	"github.com/roach88/autovnc/internal/clock"
	"github.com/roach88/autovnc/internal/config"
	"github.com/roach88/autovnc/internal/coords"
	"github.com/roach88/autovnc/internal/ir"
	"github.com/roach88/autovnc/internal/observability"
	"github.com/roach88/autovnc/internal/steps"
	"github.com/roach88/autovnc/internal/synth"
	"github.com/roach88/autovnc/internal/template"
	"github.com/roach88/autovnc/internal/validator"
)

// DefaultCaptureTimeout bounds one template capture or text recognition.
const DefaultCaptureTimeout = 10 * time.Second

// ErrNotStarted is returned by Stop when Start was never called.
var ErrNotStarted = errors.New("session not started")

// ErrStarted is returned by Start on a running session.
var ErrStarted = errors.New("session already started")

// Config describes the script being recorded and tunes its components.
type Config struct {
	Script      string
	Description string
	Mode        capture.Mode

	Classifier     capture.Config
	TemplateWindow int
	CaptureTimeout time.Duration
	Synth          synth.Options
}

// ConfigFromSettings builds a session Config from loaded configuration.
func ConfigFromSettings(cfg *config.Config, script string) Config {
	return Config{
		Script: script,
		Classifier: capture.Config{
			DragThreshold: cfg.Capture.DragThreshold,
			Debounce:      cfg.Capture.Debounce,
			MinRegion:     cfg.Capture.MinRegion,
		},
		TemplateWindow: cfg.Capture.TemplateSize,
		CaptureTimeout: cfg.Capture.CaptureTimeout,
		Synth: synth.Options{
			WaitThreshold: cfg.Synth.WaitThreshold,
			DefaultHost:   cfg.Connection.Host,
			DefaultPort:   cfg.Connection.Port,
		},
	}
}

// Update is reported to the observer after each applied insertion.
type Update struct {
	Seq int64
	// Step is the stored step, nil when the action produced none.
	Step    *ir.Step
	Warning string
	Insert  boundary.InsertResult
}

// surface is the latest remote frame and its mapping to the local display.
type surface struct {
	frame  image.Image
	mapper coords.Mapper
}

// insertion is the value carried by one queue slot.
type insertion struct {
	step    *ir.Step
	warning string
}

// Session is a live capture session.
//
// Thread-safety model:
//   - Handle, SetMode and SetFrame: safe from any goroutine (event source)
//   - Steps, Source, Snapshot, Resynthesize and the step edits: safe from
//     any goroutine; they serialize with the insertion loop
//   - Start and Stop: call once each
//
// INVARIANTS:
//   - insertions are applied in commit order regardless of capture latency
//   - the step model and the buffer are only mutated under editMu
//   - lock order is surfaceMu before the classifier's lock; the classifier
//     sink reads the surface without locking
type Session struct {
	cfg        Config
	clk        clock.Clock
	logger     *zap.Logger
	classifier *capture.Classifier
	capturer   *template.Capturer
	recognizer template.Recognizer
	synth      *synth.Synthesizer
	queue      *boundary.Queue[insertion]
	observer   func(Update)
	ids        ir.IDGenerator
	restore    *ir.Script

	surfaceMu sync.Mutex
	current   atomic.Pointer[surface]

	editMu sync.Mutex
	model  *steps.Model
	buffer *boundary.Buffer

	// ctx bounds captures and the insertion loop. It exists from New on so
	// that captures started before Start see a fixed value.
	ctx       context.Context
	cancel    context.CancelFunc
	stopAfter func() bool
	captures  sync.WaitGroup
	runDone  chan struct{}
	runErr   error
	started  bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithRecognizer sets the text recognizer used by assert_text selections.
// Without one, text assertions degrade to a warning.
func WithRecognizer(r template.Recognizer) Option {
	return func(s *Session) {
		s.recognizer = r
	}
}

// WithIDGenerator sets the step id generator.
func WithIDGenerator(g ir.IDGenerator) Option {
	return func(s *Session) {
		s.ids = g
	}
}

// WithObserver registers fn to be called on the insertion goroutine after
// every applied insertion. fn must not call Stop.
func WithObserver(fn func(Update)) Option {
	return func(s *Session) {
		s.observer = fn
	}
}

// WithScript resumes recording into an existing script: its steps are
// loaded and its source, if any, is restored with the stored boundary.
func WithScript(script ir.Script) Option {
	return func(s *Session) {
		s.restore = &script
	}
}

// New creates a session. Templates go to storage under cfg.Script.
func New(cfg Config, clk clock.Clock, storage template.Storage, opts ...Option) (*Session, error) {
	if cfg.Script == "" {
		return nil, fmt.Errorf("session: script name is required")
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = DefaultCaptureTimeout
	}

	s := &Session{
		cfg:     cfg,
		clk:     clk,
		synth:   synth.New(cfg.Synth),
		queue:   boundary.NewQueue[insertion](),
		ids:     ir.RandomIDGenerator{},
		runDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = observability.GetLogger()
	}
	s.logger = s.logger.Named("session").With(zap.String("script", cfg.Script))

	if err := s.load(); err != nil {
		return nil, err
	}

	s.capturer = template.NewCapturer(storage, cfg.Script,
		template.WithWindow(cfg.TemplateWindow),
		template.WithLogger(s.logger))
	s.classifier = capture.NewClassifier(clk, s.commit,
		capture.WithConfig(cfg.Classifier),
		capture.WithMode(cfg.Mode),
		capture.WithLogger(s.logger))
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

func (s *Session) load() error {
	var list []ir.Step
	if s.restore != nil {
		list = s.restore.Steps
		if s.restore.Metadata.Description != "" && s.cfg.Description == "" {
			s.cfg.Description = s.restore.Metadata.Description
		}
	}
	model, err := steps.Load(list, steps.WithIDGenerator(s.ids))
	if err != nil {
		return fmt.Errorf("load steps: %w", err)
	}
	s.model = model

	if s.restore != nil && s.restore.Code != "" {
		s.buffer = s.resume(model.Steps())
		return nil
	}
	s.buffer = boundary.NewBuffer(s.synth.Synthesize(model.Steps(), s.cfg.Script, s.cfg.Description), "")
	return nil
}

// resume rebuilds the buffer of a stored script. The stored generated line
// count is trusted only while the stored prefix still hashes to the
// recorded generated_code_hash; otherwise the author edited inside the
// generated region before saving and the original generated text is
// recovered by resynthesizing the stored steps.
func (s *Session) resume(list []ir.Step) *boundary.Buffer {
	code, md := s.restore.Code, s.restore.CodeMetadata
	if md == nil {
		return boundary.Restore(code, 0)
	}
	restored := boundary.Restore(code, md.GeneratedLineCount)
	if md.GeneratedCodeHash == "" || ir.GeneratedCodeHash(restored.Generated()) == md.GeneratedCodeHash {
		return restored
	}

	generated := s.synth.Synthesize(list, s.cfg.Script, s.cfg.Description)
	if ir.GeneratedCodeHash(generated) == md.GeneratedCodeHash {
		s.logger.Info("stored generated region was edited; edits will be kept as manual code")
		return boundary.Resume(code, generated)
	}
	s.logger.Warn("stored generated region cannot be recovered; whole source kept as manual code",
		zap.Int("generated_lines", md.GeneratedLineCount))
	return boundary.Resume(code, "")
}

// Start launches the insertion loop. Events may be handled before Start;
// their insertions are applied once the loop runs. Cancelling ctx ends the
// loop and any capture in flight.
func (s *Session) Start(ctx context.Context) error {
	if s.started {
		return ErrStarted
	}
	s.started = true
	s.stopAfter = context.AfterFunc(ctx, s.cancel)

	go func() {
		defer close(s.runDone)
		s.runErr = s.queue.Run(s.ctx, s.apply)
	}()
	s.logger.Info("session started", zap.Stringer("mode", s.classifier.Mode()))
	return nil
}

// Stop ends recording. New events are rejected immediately, a buffered
// click is committed, and Stop waits until every reserved insertion has
// been applied or ctx ends.
func (s *Session) Stop(ctx context.Context) error {
	if !s.started {
		return ErrNotStarted
	}
	s.classifier.Stop()
	s.queue.Close()

	var err error
	select {
	case <-s.runDone:
		err = s.runErr
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.cancel()
	s.stopAfter()
	<-s.runDone
	s.captures.Wait()

	if err != nil {
		s.logger.Warn("session stopped before draining", zap.Error(err))
		return fmt.Errorf("stop session: %w", err)
	}
	s.logger.Info("session stopped", zap.Int("steps", s.StepCount()))
	return nil
}

// Handle classifies one input event. It returns false when the event was
// dropped.
func (s *Session) Handle(ev capture.Event) bool {
	return s.classifier.Handle(ev)
}

// SetMode switches the capture mode.
func (s *Session) SetMode(m capture.Mode) {
	s.classifier.SetMode(m)
	s.logger.Debug("mode changed", zap.Stringer("mode", m))
}

// Mode returns the current capture mode.
func (s *Session) Mode() capture.Mode {
	return s.classifier.Mode()
}

// SetFrame installs the latest remote frame and the size of the local
// display it is shown in. A nil frame clears the surface and events are
// dropped until the next frame.
func (s *Session) SetFrame(display coords.Size, frame image.Image) {
	s.surfaceMu.Lock()
	defer s.surfaceMu.Unlock()

	if frame == nil {
		s.current.Store(nil)
		s.classifier.ClearSurface()
		return
	}
	b := frame.Bounds()
	remote := coords.Size{Width: b.Dx(), Height: b.Dy()}
	s.current.Store(&surface{frame: frame, mapper: coords.NewMapper(display, remote)})
	s.classifier.SetSurface(display, remote)
}

// commit is the classifier sink. It runs under the classifier's lock, so
// slots are reserved in commit order.
func (s *Session) commit(a capture.Action) {
	var (
		slot *boundary.Pending[insertion]
		ok   bool
	)
	if a.Capture == nil {
		step := a.Step
		slot, ok = s.queue.EnqueueResolved(insertion{step: &step})
	} else {
		slot, ok = s.queue.Enqueue()
	}
	if !ok {
		s.logger.Debug("action dropped: queue closed", zap.String("type", string(a.Step.Type)))
		return
	}
	s.logger.Debug("action queued", zap.Int64("seq", slot.Seq),
		zap.String("type", string(a.Step.Type)), zap.Bool("capture", a.Capture != nil))
	if a.Capture == nil {
		return
	}

	var (
		frame  image.Image
		mapper coords.Mapper
	)
	if sf := s.current.Load(); sf != nil {
		frame, mapper = sf.frame, sf.mapper
	}

	s.captures.Add(1)
	go func() {
		defer s.captures.Done()
		slot.Resolve(s.resolveCapture(a, frame, mapper))
	}()
}

// resolveCapture performs the capture an action asked for. Failures keep
// recording going: clicks fall back to their coordinates, assertions are
// replaced by a warning.
func (s *Session) resolveCapture(a capture.Action, frame image.Image, mapper coords.Mapper) insertion {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.CaptureTimeout)
	defer cancel()

	step := a.Step
	req := a.Capture
	var err error

	switch {
	case req.Target == capture.TargetText:
		if s.recognizer == nil {
			err = &template.CaptureError{Op: "recognize", Err: errors.New("no text recognizer configured")}
			break
		}
		var text string
		text, err = s.capturer.RecognizeRect(ctx, frame, *req.Rect, s.recognizer)
		if err == nil && strings.TrimSpace(text) == "" {
			err = &template.CaptureError{Op: "recognize", Err: errors.New("no text found in region")}
		}
		step.Text = text

	case req.Point != nil:
		var res template.Result
		res, err = s.capturer.CapturePoint(ctx, frame, mapper, *req.Point)
		if err == nil {
			step.Template = res.Name
			step.SetPoint(res.Hint)
		}

	case req.Rect != nil:
		var res template.Result
		res, err = s.capturer.CaptureRect(ctx, frame, *req.Rect)
		if err == nil {
			step.Template = res.Name
			step.SetPoint(res.Hint)
		}
	}

	if err == nil {
		return insertion{step: &step}
	}

	s.logger.Warn("capture failed", zap.String("type", string(step.Type)), zap.Error(err))
	warning := fmt.Sprintf("%s capture failed: %v", step.Type, err)
	if step.Type.IsClick() {
		step.Template = ""
		return insertion{step: &step, warning: warning + "; recorded coordinates instead"}
	}
	return insertion{warning: warning}
}

// apply runs on the insertion goroutine.
func (s *Session) apply(seq int64, ins insertion) {
	s.editMu.Lock()
	u := Update{Seq: seq, Warning: ins.warning}
	if ins.warning != "" {
		u.Insert = s.buffer.Insert("# warning: " + ins.warning)
	}
	if ins.step != nil {
		stored, err := s.model.Append(*ins.step)
		if err != nil {
			s.logger.Warn("step rejected", zap.Int64("seq", seq),
				zap.String("type", string(ins.step.Type)), zap.Error(err))
			rejected := fmt.Sprintf("%s step rejected: %v", ins.step.Type, err)
			u.Insert = s.buffer.Insert("# warning: " + rejected)
			if u.Warning != "" {
				u.Warning += "; "
			}
			u.Warning += rejected
		} else {
			u.Step = &stored
			u.Insert = s.buffer.Insert(s.synth.Snippet(stored))
			s.logger.Debug("step inserted", zap.Int64("seq", seq),
				zap.String("id", stored.ID), zap.String("type", string(stored.Type)),
				zap.Stringer("placement", u.Insert.Placement))
		}
	}
	s.editMu.Unlock()

	if s.observer != nil && (u.Step != nil || u.Warning != "") {
		s.observer(u)
	}
}

// Steps returns the current step list.
func (s *Session) Steps() []ir.Step {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	return s.model.Steps()
}

// StepCount returns the number of recorded steps.
func (s *Session) StepCount() int {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	return s.model.Len()
}

// Source returns the full live source text.
func (s *Session) Source() string {
	return s.buffer.Text()
}

// SetSource replaces the live source after an editor change.
func (s *Session) SetSource(text string) {
	s.buffer.SetText(text)
}

// Resynthesize regenerates the generated region from the current steps and
// keeps the manual region.
func (s *Session) Resynthesize() boundary.ResynthResult {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	return s.resynthesizeLocked()
}

func (s *Session) resynthesizeLocked() boundary.ResynthResult {
	generated := s.synth.Synthesize(s.model.Steps(), s.cfg.Script, s.cfg.Description)
	res := s.buffer.Resynthesize(generated)
	if res.Conflict {
		s.logger.Warn("edits inside generated region preserved as manual code",
			zap.Int("matched_lines", res.MatchedLines))
	}
	return res
}

// DeleteStep removes a step and resynthesizes.
func (s *Session) DeleteStep(id string) (boundary.ResynthResult, error) {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	if !s.model.Delete(id) {
		return boundary.ResynthResult{}, fmt.Errorf("delete step %q: %w", id, steps.ErrStepNotFound)
	}
	return s.resynthesizeLocked(), nil
}

// MoveStep moves the step at from to position to and resynthesizes.
func (s *Session) MoveStep(from, to int) (boundary.ResynthResult, error) {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	if err := s.model.Move(from, to); err != nil {
		return boundary.ResynthResult{}, err
	}
	return s.resynthesizeLocked(), nil
}

// UpdateStep replaces a step's fields and resynthesizes.
func (s *Session) UpdateStep(id string, step ir.Step) (boundary.ResynthResult, error) {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	if err := s.model.Update(id, step); err != nil {
		return boundary.ResynthResult{}, err
	}
	return s.resynthesizeLocked(), nil
}

// Validate runs the advisory source checks.
func (s *Session) Validate() validator.Report {
	text, n := s.buffer.Snapshot()
	return validator.Validate(text, n)
}

// Snapshot returns a self-consistent copy of the script for saving.
func (s *Session) Snapshot() ir.Script {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	text, n := s.buffer.Snapshot()
	now := s.clk.Now().UTC()
	script := ir.Script{
		Metadata: ir.ScriptMetadata{
			Name:        s.cfg.Script,
			Description: s.cfg.Description,
			UpdatedAt:   now,
		},
		Steps: s.model.Steps(),
		Code:  text,
		CodeMetadata: &ir.CodeMetadata{
			GeneratedLineCount: n,
			GeneratedCodeHash:  ir.GeneratedCodeHash(s.buffer.Generated()),
			LastGeneratedAt:    &now,
		},
	}
	if s.restore != nil {
		script.Metadata.CreatedAt = s.restore.Metadata.CreatedAt
		script.Metadata.IsEjected = s.restore.Metadata.IsEjected
	}
	if script.Metadata.CreatedAt.IsZero() {
		script.Metadata.CreatedAt = now
	}
	return script
}
