package harness

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/autovnc/internal/capture"
	"github.com/roach88/autovnc/internal/session"
	"github.com/roach88/autovnc/internal/store"
	"github.com/roach88/autovnc/internal/template"
	"github.com/roach88/autovnc/internal/testutil"
	"github.com/roach88/autovnc/internal/validator"
)

// StopTimeout bounds how long a scenario waits for pending captures after
// its last event.
const StopTimeout = 10 * time.Second

// errCaptureUnavailable is returned by every upload in fail_capture scenarios.
var errCaptureUnavailable = errors.New("storage unavailable")

// Harness is the scenario execution engine.
// It replays a scenario against a live session with a fake clock,
// sequential step ids and a fresh in-memory store.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	session  *session.Session
	clock    *testutil.FakeClock
	logger   *zap.Logger

	mu    sync.Mutex
	trace []TraceEvent
}

// RunOption configures a scenario run.
type RunOption func(*runConfig)

type runConfig struct {
	logger *zap.Logger
}

// WithLogger sets the logger for the session under test. Logs are
// discarded by default.
func WithLogger(l *zap.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Open a fresh in-memory store and create the script
//  2. Start a session on a solid frame of the remote size
//  3. Replay the events, moving the fake clock before each one
//  4. Stop the session, draining pending captures
//  5. Append the manual code and resynthesize, if any
//  6. Save the snapshot, reload it, and evaluate assertions
//
// An error means the scenario could not be executed; assertion failures
// are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...RunOption) (*Result, error) {
	cfg := runConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	clk := testutil.NewFakeClock(time.Time{})
	st, err := store.Open(":memory:", store.WithClock(clk.Now), store.WithLogger(cfg.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if _, err := st.CreateScript(ctx, scenario.Name, scenario.Description); err != nil {
		return nil, err
	}

	h := &Harness{
		scenario: scenario,
		store:    st,
		clock:    clk,
		logger:   cfg.logger.Named("harness").With(zap.String("scenario", scenario.Name)),
	}
	if err := h.start(ctx); err != nil {
		return nil, err
	}

	if err := h.replay(); err != nil {
		_ = h.stop(ctx)
		return nil, err
	}
	if err := h.stop(ctx); err != nil {
		return nil, err
	}

	result := NewResult()
	if scenario.Manual != "" {
		h.session.SetSource(h.session.Source() + scenario.Manual)
		result.Conflict = h.session.Resynthesize().Conflict
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	h.logger.Debug("scenario finished", zap.Bool("pass", result.Pass), zap.Int("steps", len(result.Steps)))
	return result, nil
}

func (h *Harness) start(ctx context.Context) error {
	mode, err := capture.ParseMode(h.scenario.Mode)
	if err != nil {
		return err
	}

	var storage template.Storage = h.store
	if h.scenario.FailCapture {
		storage = failingStorage{Storage: h.store}
	}

	opts := []session.Option{
		session.WithLogger(h.logger),
		session.WithIDGenerator(testutil.NewSequentialIDGenerator("step")),
		session.WithObserver(h.observe),
	}
	if h.scenario.RecognizedText != "" {
		opts = append(opts, session.WithRecognizer(fixedRecognizer(h.scenario.RecognizedText)))
	}

	s, err := session.New(session.Config{
		Script:      h.scenario.Name,
		Description: h.scenario.Description,
		Mode:        mode,
	}, h.clock, storage, opts...)
	if err != nil {
		return err
	}
	remote := h.scenario.Remote
	s.SetFrame(h.scenario.Display, solidFrame(remote.Width, remote.Height))
	if err := s.Start(ctx); err != nil {
		return err
	}
	h.session = s
	return nil
}

func (h *Harness) replay() error {
	start := h.clock.Now()
	for i, ev := range h.scenario.Events {
		switch {
		case ev.At != nil:
			h.clock.Set(start.Add(seconds(*ev.At)))
		case ev.Advance > 0:
			h.clock.Advance(seconds(ev.Advance))
		}

		if ev.Mode != "" {
			mode, err := capture.ParseMode(ev.Mode)
			if err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
			h.session.SetMode(mode)
		}

		for _, e := range ev.Events() {
			if !h.session.Handle(e) {
				h.logger.Debug("event dropped", zap.Int("event", i), zap.Stringer("kind", e.Kind))
			}
		}
	}
	return nil
}

func (h *Harness) stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, StopTimeout)
	defer cancel()
	return h.session.Stop(ctx)
}

func (h *Harness) observe(u session.Update) {
	ev := TraceEvent{
		Seq:       u.Seq,
		Warning:   u.Warning,
		Placement: u.Insert.Placement.String(),
		Line:      u.Insert.Line,
	}
	if u.Step != nil {
		ev.StepID = u.Step.ID
		ev.StepType = string(u.Step.Type)
	}
	h.mu.Lock()
	h.trace = append(h.trace, ev)
	h.mu.Unlock()
}

// collect saves the session snapshot and fills result from what the store
// returns, so a scenario also checks persistence.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	if err := h.store.SaveScript(ctx, h.session.Snapshot()); err != nil {
		return err
	}
	saved, err := h.store.GetScript(ctx, h.scenario.Name)
	if err != nil {
		return err
	}

	h.mu.Lock()
	result.Trace = append(result.Trace, h.trace...)
	h.mu.Unlock()

	result.Steps = saved.Steps
	result.Source = saved.Code
	result.Templates = saved.Templates
	generated := 0
	if saved.CodeMetadata != nil {
		generated = saved.CodeMetadata.GeneratedLineCount
	}
	result.Findings = validator.Validate(saved.Code, generated).Findings
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func solidFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 32, G: 64, B: 96, A: 255}}, image.Point{}, draw.Src)
	return img
}

// failingStorage rejects uploads and delegates everything else.
type failingStorage struct {
	template.Storage
}

func (failingStorage) Upload(context.Context, string, []byte) (string, error) {
	return "", errCaptureUnavailable
}

// fixedRecognizer returns the same text for every region.
type fixedRecognizer string

func (r fixedRecognizer) Recognize(context.Context, []byte) (string, error) {
	return string(r), nil
}
