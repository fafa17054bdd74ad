package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/autovnc/internal/capture"
	"github.com/roach88/autovnc/internal/coords"
	"github.com/roach88/autovnc/internal/ir"
	"github.com/roach88/autovnc/internal/synth"
	"github.com/roach88/autovnc/internal/template"
	"github.com/roach88/autovnc/internal/testutil"
)

var display = coords.Size{Width: 800, Height: 600}

func solidFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 40, G: 80, B: 120, A: 255}}, image.Point{}, draw.Src)
	return img
}

type harness struct {
	s       *Session
	clk     *testutil.FakeClock
	storage template.Storage
}

func newTestSession(t *testing.T, cfg Config, storage template.Storage, opts ...Option) *harness {
	t.Helper()
	if cfg.Script == "" {
		cfg.Script = "demo"
	}
	if storage == nil {
		storage = template.NewMemoryStorage()
	}
	clk := testutil.NewFakeClock(time.Time{})
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithIDGenerator(testutil.NewSequentialIDGenerator("step")),
	}, opts...)
	s, err := New(cfg, clk, storage, opts...)
	require.NoError(t, err)
	s.SetFrame(display, solidFrame(800, 600))
	require.NoError(t, s.Start(context.Background()))
	return &harness{s: s, clk: clk, storage: storage}
}

func (h *harness) click(x, y float64) {
	h.s.Handle(capture.Event{Kind: capture.PointerDown, X: x, Y: y, ClickCount: 1})
	h.s.Handle(capture.Event{Kind: capture.PointerUp, X: x, Y: y, ClickCount: 1})
}

func (h *harness) key(k string) {
	h.s.Handle(capture.Event{Kind: capture.KeyDown, Key: k})
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.s.Stop(ctx))
}

func stepTypes(list []ir.Step) []ir.StepType {
	out := make([]ir.StepType, len(list))
	for i, s := range list {
		out[i] = s.Type
	}
	return out
}

func TestSession_LiveInsertionMatchesSynthesis(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestSession(t, Config{Description: "records a login"}, nil)
	h.clk.Advance(time.Second)
	h.click(100, 200)
	h.clk.Advance(capture.DefaultDebounce)
	h.clk.Advance(650 * time.Millisecond)
	h.key("a")
	h.key("Enter")
	h.stop(t)

	list := h.s.Steps()
	require.Equal(t, []ir.StepType{ir.StepClick, ir.StepTypeText, ir.StepKeyPress}, stepTypes(list))
	assert.Equal(t, "step-1", list[0].ID)
	assert.InDelta(t, 1.0, list[0].DelayBefore, 1e-9)
	assert.InDelta(t, 0.9, list[1].DelayBefore, 1e-9)

	want := synth.Synthesize(list, "demo", "records a login") + "\n"
	if diff := cmp.Diff(want, h.s.Source()); diff != "" {
		t.Errorf("live source differs from full synthesis (-want +got):\n%s", diff)
	}
}

func TestSession_SmartClickCapturesTemplate(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestSession(t, Config{Mode: capture.ModeSmart}, nil)
	h.click(400, 300)
	h.clk.Advance(capture.DefaultDebounce)
	h.stop(t)

	list := h.s.Steps()
	require.Len(t, list, 1)
	assert.Equal(t, "template.png", list[0].Template)
	p, ok := list[0].Point()
	require.True(t, ok)
	assert.Equal(t, coords.Point{X: 400, Y: 300}, p)

	names, err := h.storage.List(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"template.png"}, names)
	assert.Contains(t, h.s.Source(), `vnc.click("template.png", timeout=30.0, hint=(400, 300))`)
}

// gatedStorage blocks uploads until release is closed.
type gatedStorage struct {
	*template.MemoryStorage
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (g *gatedStorage) Upload(ctx context.Context, script string, data []byte) (string, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return g.MemoryStorage.Upload(ctx, script, data)
}

func TestSession_SlowCaptureKeepsCommitOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	storage := &gatedStorage{
		MemoryStorage: template.NewMemoryStorage(),
		release:       make(chan struct{}),
		started:       make(chan struct{}),
	}
	var mu sync.Mutex
	var applied []ir.StepType
	h := newTestSession(t, Config{Mode: capture.ModeSmart}, storage, WithObserver(func(u Update) {
		mu.Lock()
		defer mu.Unlock()
		if u.Step != nil {
			applied = append(applied, u.Step.Type)
		}
	}))

	h.click(50, 50)
	h.key("x") // flushes the buffered click first
	<-storage.started

	mu.Lock()
	assert.Empty(t, applied, "typed key must wait for the earlier capture")
	mu.Unlock()

	close(storage.release)
	h.stop(t)

	assert.Equal(t, []ir.StepType{ir.StepClick, ir.StepTypeText}, applied)
	assert.Equal(t, "template.png", h.s.Steps()[0].Template)
}

type failingStorage struct {
	*template.MemoryStorage
}

func (failingStorage) Upload(context.Context, string, []byte) (string, error) {
	return "", errors.New("disk full")
}

func TestSession_CaptureFailureDegradesToCoordinates(t *testing.T) {
	defer goleak.VerifyNone(t)

	core, logs := observer.New(zap.WarnLevel)
	h := newTestSession(t, Config{Mode: capture.ModeSmart}, failingStorage{template.NewMemoryStorage()},
		WithLogger(zap.New(core)))
	h.click(10, 20)
	h.clk.Advance(capture.DefaultDebounce)
	h.stop(t)

	list := h.s.Steps()
	require.Len(t, list, 1)
	assert.Equal(t, ir.StepClick, list[0].Type)
	assert.Empty(t, list[0].Template)

	src := h.s.Source()
	assert.Contains(t, src, "    # warning: click capture failed: template upload: disk full; recorded coordinates instead\n    vnc.click(10, 20)")
	assert.Equal(t, 1, logs.FilterMessage("capture failed").Len())
}

type stubRecognizer struct {
	text string
}

func (r stubRecognizer) Recognize(context.Context, []byte) (string, error) {
	return r.text, nil
}

func selectRegion(h *harness, x0, y0, x1, y1 float64) {
	h.s.Handle(capture.Event{Kind: capture.PointerDown, X: x0, Y: y0})
	h.s.Handle(capture.Event{Kind: capture.PointerMove, X: x1, Y: y1})
	h.s.Handle(capture.Event{Kind: capture.PointerUp, X: x1, Y: y1})
}

func TestSession_TextAssertion(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestSession(t, Config{Mode: capture.ModeAssertText}, nil, WithRecognizer(stubRecognizer{text: "Welcome"}))
	selectRegion(h, 100, 100, 200, 140)
	h.stop(t)

	list := h.s.Steps()
	require.Len(t, list, 1)
	assert.Equal(t, ir.StepWaitForText, list[0].Type)
	assert.Equal(t, "Welcome", list[0].Text)
	assert.Equal(t, &ir.Region{X: 100, Y: 100, Width: 100, Height: 40}, list[0].Region)
	assert.Contains(t, h.s.Source(), `vnc.wait_for_text("Welcome", timeout=30.0, region=(100, 100, 100, 40))`)
}

func TestSession_FailedAssertionLeavesOnlyWarning(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestSession(t, Config{Mode: capture.ModeAssertText}, nil)
	selectRegion(h, 100, 100, 200, 140)
	h.stop(t)

	assert.Empty(t, h.s.Steps())
	src := h.s.Source()
	assert.Contains(t, src, "def run(vnc):\n    # warning: wait_for_text capture failed: template recognize: no text recognizer configured\n")
	assert.NotContains(t, src, "    pass\n")
}

func TestSession_ImageAssertion(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestSession(t, Config{Mode: capture.ModeAssertImage}, nil)
	selectRegion(h, 10, 10, 60, 40)
	h.stop(t)

	list := h.s.Steps()
	require.Len(t, list, 1)
	assert.Equal(t, ir.StepWaitForImage, list[0].Type)
	assert.Equal(t, "template.png", list[0].Template)
	assert.Contains(t, h.s.Source(), `vnc.wait_for_image("template.png", timeout=30.0, region=(10, 10, 50, 30), hint=(35, 25))`)
}

func TestSession_EventsWithoutFrameAreDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestSession(t, Config{}, nil)
	h.s.SetFrame(display, nil)
	assert.False(t, h.s.Handle(capture.Event{Kind: capture.KeyDown, Key: "a"}))

	h.s.SetFrame(display, solidFrame(1600, 1200))
	assert.True(t, h.s.Handle(capture.Event{Kind: capture.KeyDown, Key: "a"}))
	h.stop(t)

	assert.False(t, h.s.Handle(capture.Event{Kind: capture.KeyDown, Key: "b"}), "stopped session rejects events")
	assert.Len(t, h.s.Steps(), 1)
}

func TestSession_StopFlushesBufferedClick(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestSession(t, Config{}, nil)
	h.click(5, 5)
	h.stop(t)

	assert.Equal(t, []ir.StepType{ir.StepClick}, stepTypes(h.s.Steps()))
	assert.Zero(t, h.clk.Pending())
}

func TestSession_StartStopErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := New(Config{Script: "x"}, testutil.NewFakeClock(time.Time{}), template.NewMemoryStorage(),
		WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.ErrorIs(t, s.Stop(context.Background()), ErrNotStarted)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrStarted)
	require.NoError(t, s.Stop(context.Background()))

	_, err = New(Config{}, testutil.NewFakeClock(time.Time{}), template.NewMemoryStorage())
	assert.Error(t, err)
}

func TestSession_EditsPreserveManualCode(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestSession(t, Config{}, nil)
	h.key("a")
	h.key("b")
	h.stop(t)

	manual := "def helper():\n    return 1"
	h.s.SetSource(h.s.Source() + manual)

	first := h.s.Steps()[0]
	res, err := h.s.DeleteStep(first.ID)
	require.NoError(t, err)
	assert.False(t, res.Conflict)
	assert.Equal(t, manual, res.Manual)

	remaining := h.s.Steps()
	require.Len(t, remaining, 1)
	assert.Equal(t, 0, remaining[0].Order)
	assert.Equal(t, synth.Synthesize(remaining, "demo", "")+"\n"+manual, h.s.Source())

	_, err = h.s.DeleteStep("missing")
	assert.Error(t, err)

	upd := remaining[0]
	upd.Text = "z"
	_, err = h.s.UpdateStep(upd.ID, upd)
	require.NoError(t, err)
	assert.Contains(t, h.s.Source(), `vnc.type("z")`)
	assert.True(t, strings.HasSuffix(h.s.Source(), manual))
}

func TestSession_SnapshotAndResume(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestSession(t, Config{Description: "first take"}, nil)
	h.key("a")
	h.stop(t)
	h.s.SetSource(h.s.Source() + "# mine")

	snap := h.s.Snapshot()
	assert.Equal(t, "demo", snap.Metadata.Name)
	assert.Equal(t, "first take", snap.Metadata.Description)
	require.NotNil(t, snap.CodeMetadata)
	generated := synth.Synthesize(snap.Steps, "demo", "first take")
	assert.Equal(t, synth.LineCount(generated), snap.CodeMetadata.GeneratedLineCount)
	assert.Equal(t, ir.GeneratedCodeHash(generated), snap.CodeMetadata.GeneratedCodeHash)
	assert.True(t, h.s.Validate().OK())

	resumed := newTestSession(t, Config{}, nil, WithScript(snap),
		WithIDGenerator(testutil.NewSequentialIDGenerator("more")))
	assert.Equal(t, snap.Code, resumed.s.Source())
	resumed.key("b")
	resumed.stop(t)

	list := resumed.s.Steps()
	require.Len(t, list, 2)
	assert.Equal(t, "more-1", list[1].ID)
	assert.Equal(t, synth.Synthesize(list, "demo", "first take")+"\n# mine", resumed.s.Source())
}

func TestSession_FramesDuringSelectionsDoNotDeadlock(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestSession(t, Config{Mode: capture.ModeAssertImage}, nil)
	frames := []image.Image{solidFrame(800, 600), solidFrame(1600, 1200)}
	const rounds = 200

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			h.s.SetFrame(display, frames[i%len(frames)])
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			selectRegion(h, 10, 10, 60, 40)
		}
	}()
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("SetFrame and selection commits deadlocked")
	}
	h.stop(t)

	assert.Len(t, h.s.Steps(), rounds)
}

func TestSession_CaptureBeforeStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := New(Config{Script: "demo", Mode: capture.ModeAssertImage}, testutil.NewFakeClock(time.Time{}),
		template.NewMemoryStorage(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	s.SetFrame(display, solidFrame(800, 600))
	h := &harness{s: s}
	selectRegion(h, 10, 10, 60, 40)

	require.NoError(t, s.Start(context.Background()))
	h.stop(t)

	list := s.Steps()
	require.Len(t, list, 1)
	assert.Equal(t, "template.png", list[0].Template)
}

func TestSession_CancelledStartContextEndsLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := New(Config{Script: "demo"}, testutil.NewFakeClock(time.Time{}),
		template.NewMemoryStorage(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	select {
	case <-s.runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("insertion loop ignored cancellation")
	}
	assert.Error(t, s.Stop(context.Background()))
}

func TestSession_BlankRecognizedTextIsCaptureFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	var updates []Update
	h := newTestSession(t, Config{Mode: capture.ModeAssertText}, nil,
		WithRecognizer(stubRecognizer{text: "  \n "}),
		WithObserver(func(u Update) {
			mu.Lock()
			defer mu.Unlock()
			updates = append(updates, u)
		}))
	selectRegion(h, 100, 100, 200, 140)
	h.stop(t)

	assert.Empty(t, h.s.Steps())
	assert.Contains(t, h.s.Source(), "def run(vnc):\n    # warning: wait_for_text capture failed: template recognize: no text found in region\n")
	require.Len(t, updates, 1)
	assert.Nil(t, updates[0].Step)
	assert.Contains(t, updates[0].Warning, "no text found in region")
}

func TestSession_RejectedStepLeavesWarning(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := New(Config{Script: "demo"}, testutil.NewFakeClock(time.Time{}),
		template.NewMemoryStorage(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	var got []Update
	s.observer = func(u Update) { got = append(got, u) }
	s.apply(1, insertion{step: &ir.Step{Type: ir.StepClick}})

	assert.Empty(t, s.Steps())
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Step)
	assert.Contains(t, got[0].Warning, "click step rejected: invalid step: [E102]")
	assert.Contains(t, s.Source(), "def run(vnc):\n    # warning: click step rejected: invalid step: [E102]")
	assert.NotContains(t, s.Source(), "    pass\n")
}

func TestSession_ResumeKeepsEditsInsideGeneratedRegion(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestSession(t, Config{}, nil)
	h.stop(t)
	edited := strings.Replace(h.s.Source(), "    pass", "    vnc.click(1, 2)  # my edit", 1)
	require.NotEqual(t, h.s.Source(), edited)
	h.s.SetSource(edited)
	snap := h.s.Snapshot()

	resumed, err := New(Config{Script: "demo"}, testutil.NewFakeClock(time.Time{}),
		template.NewMemoryStorage(), WithScript(snap), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, edited, resumed.Source())

	res := resumed.Resynthesize()
	assert.True(t, res.Conflict)
	assert.Contains(t, resumed.Source(), "    vnc.click(1, 2)  # my edit")
	assert.True(t, strings.HasPrefix(resumed.Source(), synth.Synthesize(nil, "demo", "")+"\n"))
}

func TestSession_ResumeWithUnrecoverableGeneratedRegion(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestSession(t, Config{}, nil)
	h.key("a")
	h.stop(t)
	h.s.SetSource(strings.Replace(h.s.Source(), `vnc.type("a")`, `vnc.type("edited")`, 1))
	snap := h.s.Snapshot()
	snap.CodeMetadata.GeneratedCodeHash = ir.GeneratedCodeHash("something else")

	resumed, err := New(Config{Script: "demo"}, testutil.NewFakeClock(time.Time{}),
		template.NewMemoryStorage(), WithScript(snap), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	res := resumed.Resynthesize()
	assert.True(t, res.Conflict)
	assert.Equal(t, snap.Code, res.Manual)
	assert.Equal(t, synth.Synthesize(snap.Steps, "demo", "")+"\n"+snap.Code, resumed.Source())
}

func TestSession_ResumeUneditedUsesStoredBoundary(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestSession(t, Config{}, nil)
	h.key("a")
	h.stop(t)
	manual := "\n\ndef helper(vnc):\n    vnc.wait(1.0)\n"
	h.s.SetSource(h.s.Source() + manual)
	snap := h.s.Snapshot()

	resumed, err := New(Config{Script: "demo"}, testutil.NewFakeClock(time.Time{}),
		template.NewMemoryStorage(), WithScript(snap), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	res := resumed.Resynthesize()
	assert.False(t, res.Conflict)
	assert.Equal(t, manual, res.Manual)
	assert.Equal(t, snap.Code, resumed.Source())
}

func TestSession_UpdateSeqMatchesQueuedSeq(t *testing.T) {
	defer goleak.VerifyNone(t)

	core, logs := observer.New(zap.DebugLevel)
	var mu sync.Mutex
	var got []int64
	h := newTestSession(t, Config{Mode: capture.ModeAssertImage}, nil,
		WithLogger(zap.New(core)),
		WithObserver(func(u Update) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, u.Seq)
		}))
	for i := 0; i < 3; i++ {
		selectRegion(h, 10, 10, 60, 40)
	}
	h.stop(t)

	var queued []int64
	for _, e := range logs.FilterMessage("action queued").All() {
		queued = append(queued, e.ContextMap()["seq"].(int64))
	}
	require.Len(t, queued, 3)
	assert.Equal(t, queued, got)
	assert.Less(t, queued[0], queued[1])
	assert.Less(t, queued[1], queued[2])
}
