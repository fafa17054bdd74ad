package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autovnc/internal/coords"
)

func TestStepType_Valid(t *testing.T) {
	for _, st := range StepTypes {
		assert.True(t, st.Valid(), "%s should be valid", st)
	}
	assert.False(t, StepType("move").Valid())
	assert.False(t, StepType("").Valid())
}

func TestStepType_IsClick(t *testing.T) {
	assert.True(t, StepClick.IsClick())
	assert.True(t, StepDoubleClick.IsClick())
	assert.True(t, StepRightClick.IsClick())
	assert.False(t, StepDrag.IsClick())
}

func TestStep_Defaults(t *testing.T) {
	var s Step
	assert.Equal(t, DefaultThreshold, s.EffectiveThreshold())
	assert.Equal(t, DefaultTimeout, s.EffectiveTimeout())
	assert.Equal(t, DefaultWaitDuration, s.EffectiveDuration())
	assert.Equal(t, DefaultScrollClicks, s.EffectiveClicks())

	s = Step{Threshold: 0.95, Timeout: 5, Duration: 2.5, Clicks: 3}
	assert.Equal(t, 0.95, s.EffectiveThreshold())
	assert.Equal(t, 5.0, s.EffectiveTimeout())
	assert.Equal(t, 2.5, s.EffectiveDuration())
	assert.Equal(t, 3, s.EffectiveClicks())
}

func TestStep_PointRoundTrip(t *testing.T) {
	var s Step
	_, ok := s.Point()
	assert.False(t, ok)

	s.SetPoint(coords.Point{X: 0, Y: 7})
	p, ok := s.Point()
	require.True(t, ok)
	assert.Equal(t, coords.Point{X: 0, Y: 7}, p, "zero is a real coordinate")
}

func TestStep_CloneIsDeep(t *testing.T) {
	s := Step{Type: StepKeyCombo, Keys: []string{"ctrl", "c"}, Region: &Region{Width: 4}}
	s.SetPoint(coords.Point{X: 1, Y: 2})

	c := s.Clone()
	*c.X = 99
	c.Keys[0] = "alt"
	c.Region.Width = 8

	assert.Equal(t, 1, *s.X)
	assert.Equal(t, "ctrl", s.Keys[0])
	assert.Equal(t, 4, s.Region.Width)
}

func TestNewStepID(t *testing.T) {
	a, b := NewStepID(), NewStepID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}

func TestGeneratedCodeHash_NFC(t *testing.T) {
	// "é" precomposed vs. "e" + combining acute.
	assert.Equal(t, GeneratedCodeHash("caf\u00e9"), GeneratedCodeHash("cafe\u0301"))
	assert.NotEqual(t, GeneratedCodeHash("a"), GeneratedCodeHash("b"))
	assert.Len(t, GeneratedCodeHash(""), 64)
}
