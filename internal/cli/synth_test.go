package cli

import (
	"os"
	"path/filepath"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autovnc/internal/ir"
	"github.com/roach88/autovnc/internal/steps"
	"github.com/roach88/autovnc/internal/synth"
)

// expectedSource synthesizes the login step file with default options.
func expectedSource(t *testing.T) string {
	t.Helper()
	file, err := LoadStepFile("testdata/steps/login.yaml")
	require.NoError(t, err)
	return synth.Synthesize(steps.Sorted(file.Steps), file.Name, file.Description) + "\n"
}

func TestSynth_Stdout(t *testing.T) {
	for _, name := range []string{"login.yaml", "login.cue", "login.json"} {
		t.Run(name, func(t *testing.T) {
			out, err := execute(t, "synth", filepath.Join("testdata", "steps", name))
			require.NoError(t, err)
			assert.Equal(t, expectedSource(t), out)
			assert.Contains(t, out, "    # Focus the user field\n    vnc.click(200, 100)\n")
			assert.Contains(t, out, "    vnc.wait(1.0)\n")
		})
	}
}

func TestSynth_OutputFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "login.py")

	out, err := execute(t, "synth", "testdata/steps/login.yaml", "-o", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Wrote "+dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, expectedSource(t), string(data))
}

func TestSynth_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "synth", "testdata/steps/login.yaml")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   SynthResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	generated := expectedSource(t)
	generated = generated[:len(generated)-1]
	assert.Equal(t, "login", resp.Data.Name)
	assert.Equal(t, 3, resp.Data.StepCount)
	assert.Equal(t, synth.LineCount(generated), resp.Data.LineCount)
	assert.Equal(t, ir.GeneratedCodeHash(generated), resp.Data.GeneratedCodeHash)
	assert.Equal(t, expectedSource(t), resp.Data.Source)
}

func TestSynth_ConfiguredConnectionDefaults(t *testing.T) {
	t.Setenv("AUTOVNC_CONNECTION_HOST", "vnc.internal")
	t.Setenv("AUTOVNC_CONNECTION_PORT", "5901")

	out, err := execute(t, "synth", "testdata/steps/login.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, `HOST = os.environ.get("VNC_HOST", "vnc.internal")`)
	assert.Contains(t, out, `PORT = int(os.environ.get("VNC_PORT", 5901))`)
}

func TestSynth_InvalidSteps(t *testing.T) {
	out, err := execute(t, "synth", "testdata/steps/invalid.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E102]")
	assert.NotContains(t, out, "def run(vnc):")
}

func TestSynth_MissingFile(t *testing.T) {
	_, err := execute(t, "synth", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
