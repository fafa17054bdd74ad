package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	scenarioDir = "../harness/testdata/scenarios"
	goldenDir   = "../harness/testdata/golden"
)

func TestReplay_Text(t *testing.T) {
	out, err := execute(t, "replay", filepath.Join(scenarioDir, "capture_failure.yaml"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "Scenario: capture_failure (2 step(s))\n"))
	assert.Contains(t, out, "  [1] warning: click capture failed")
	assert.Contains(t, out, "  [1] click step-1 (appended_to_body, line ")
	assert.Contains(t, out, "  [3] type ")

	golden, err := os.ReadFile(filepath.Join(goldenDir, "capture_failure.golden"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "\n"+string(golden)))
}

func TestReplay_SourceOnlyMatchesGolden(t *testing.T) {
	out, err := execute(t, "replay", filepath.Join(scenarioDir, "login_flow.yaml"), "--show", "source")
	require.NoError(t, err)

	golden, err := os.ReadFile(filepath.Join(goldenDir, "login_flow.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(golden), out)
}

func TestReplay_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "replay", filepath.Join(scenarioDir, "smart_assert.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Name      string   `json:"name"`
			Pass      bool     `json:"pass"`
			Templates []string `json:"templates"`
			Steps     []struct {
				Type string `json:"type"`
			} `json:"steps"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "smart_assert", resp.Data.Name)
	assert.True(t, resp.Data.Pass)
	assert.Equal(t, []string{"template.png"}, resp.Data.Templates)
	require.Len(t, resp.Data.Steps, 3)
	assert.Equal(t, "wait_for_text", resp.Data.Steps[1].Type)
}

func TestReplay_FailedAssertions(t *testing.T) {
	path := writeFile(t, "wrong.yaml", `
name: wrong
description: "expects a click that never happens"
display: { width: 800, height: 600 }
events:
  - at: 1.0
    kind: key_down
    key: a
assertions:
  - type: step_count
    count: 2
`)

	out, err := execute(t, "replay", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ assertion 0:")
}

func TestReplay_InvalidScenario(t *testing.T) {
	path := writeFile(t, "invalid.yaml", "name: x\n")

	out, err := execute(t, "replay", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "invalid scenario")
}

func TestReplay_InvalidShow(t *testing.T) {
	_, err := execute(t, "replay", filepath.Join(scenarioDir, "login_flow.yaml"), "--show", "steps")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
