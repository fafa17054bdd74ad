package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autovnc/internal/capture"
	"github.com/roach88/autovnc/internal/coords"
)

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/login_flow.yaml")
	require.NoError(t, err)

	assert.Equal(t, "login_flow", s.Name)
	assert.Equal(t, coords.Size{Width: 800, Height: 600}, s.Display)
	assert.Equal(t, coords.Size{Width: 1600, Height: 1200}, s.Remote)
	require.Len(t, s.Events, 7)
	require.NotNil(t, s.Events[0].At)
	assert.Equal(t, 1.0, *s.Events[0].At)
	assert.Equal(t, 0.5, s.Events[2].Advance)
	assert.True(t, s.Events[3].Modifiers.Ctrl)
	assert.Len(t, s.Assertions, 6)
}

func TestParseScenario_RemoteDefaultsToDisplay(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: same_size
description: "no scaling"
display: { width: 640, height: 480 }
events:
  - kind: key_down
    key: a
`))
	require.NoError(t, err)
	assert.Equal(t, s.Display, s.Remote)
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: x\ndescription: y\ndisplay: {width: 1, height: 1}\nevents: [{kind: click}]\nassertion: []\n",
			wantErr: "field assertion not found",
		},
		{
			name:    "missing name",
			yaml:    "description: y\ndisplay: {width: 1, height: 1}\nevents: [{kind: click}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: x\ndisplay: {width: 1, height: 1}\nevents: [{kind: click}]\n",
			wantErr: "description is required",
		},
		{
			name:    "missing display",
			yaml:    "name: x\ndescription: y\nevents: [{kind: click}]\n",
			wantErr: "display size is required",
		},
		{
			name:    "no events",
			yaml:    "name: x\ndescription: y\ndisplay: {width: 1, height: 1}\n",
			wantErr: "events list is required",
		},
		{
			name:    "unknown mode",
			yaml:    "name: x\ndescription: y\ndisplay: {width: 1, height: 1}\nmode: fancy\nevents: [{kind: click}]\n",
			wantErr: `unknown capture mode "fancy"`,
		},
		{
			name:    "unknown kind",
			yaml:    "name: x\ndescription: y\ndisplay: {width: 1, height: 1}\nevents: [{kind: tap}]\n",
			wantErr: `event 0: unknown event kind "tap"`,
		},
		{
			name:    "at and advance",
			yaml:    "name: x\ndescription: y\ndisplay: {width: 1, height: 1}\nevents: [{at: 1, advance: 1}]\n",
			wantErr: "mutually exclusive",
		},
		{
			name:    "wheel without delta",
			yaml:    "name: x\ndescription: y\ndisplay: {width: 1, height: 1}\nevents: [{kind: wheel}]\n",
			wantErr: "wheel requires delta_x or delta_y",
		},
		{
			name:    "unknown button",
			yaml:    "name: x\ndescription: y\ndisplay: {width: 1, height: 1}\nevents: [{kind: click, button: fourth}]\n",
			wantErr: `unknown button "fourth"`,
		},
		{
			name:    "unknown step type",
			yaml:    "name: x\ndescription: y\ndisplay: {width: 1, height: 1}\nevents: [{kind: click}]\nassertions: [{type: step_types, types: [tap]}]\n",
			wantErr: `unknown step type "tap"`,
		},
		{
			name:    "source_contains without text",
			yaml:    "name: x\ndescription: y\ndisplay: {width: 1, height: 1}\nevents: [{kind: click}]\nassertions: [{type: source_contains}]\n",
			wantErr: "source_contains: text is required",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ndescription: y\ndisplay: {width: 1, height: 1}\nevents: [{kind: click}]\nassertions: [{type: final_state}]\n",
			wantErr: `unknown assertion type "final_state"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "scenario.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestEventStep_Expansion(t *testing.T) {
	t.Run("click", func(t *testing.T) {
		evs := EventStep{Kind: KindClick, X: 5, Y: 6, Button: "right"}.Events()
		require.Len(t, evs, 2)
		assert.Equal(t, capture.PointerDown, evs[0].Kind)
		assert.Equal(t, capture.PointerUp, evs[1].Kind)
		assert.Equal(t, capture.ButtonSecondary, evs[0].Button)
		assert.Equal(t, 1, evs[0].ClickCount)
		assert.Equal(t, 5.0, evs[1].X)
	})

	t.Run("drag", func(t *testing.T) {
		evs := EventStep{Kind: KindDrag, X: 1, Y: 2, EndX: 30, EndY: 40}.Events()
		require.Len(t, evs, 3)
		assert.Equal(t, capture.PointerMove, evs[1].Kind)
		assert.Equal(t, [2]float64{30, 40}, [2]float64{evs[2].X, evs[2].Y})
		assert.Equal(t, [2]float64{1, 2}, [2]float64{evs[0].X, evs[0].Y})
	})

	t.Run("type", func(t *testing.T) {
		evs := EventStep{Kind: KindType, Text: "hé!"}.Events()
		require.Len(t, evs, 3)
		for _, e := range evs {
			assert.Equal(t, capture.KeyDown, e.Kind)
		}
		assert.Equal(t, "é", evs[1].Key)
	})

	t.Run("clock only", func(t *testing.T) {
		assert.Empty(t, EventStep{Advance: 1}.Events())
	})
}
