package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunScenario(t *testing.T) {
	out, err := execute(t, "run", "testdata/static.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ static-two-pulses")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestRunScenarioJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "run", "testdata/static.yaml")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRunFailingScenario(t *testing.T) {
	dir := t.TempDir()
	cue, err := os.ReadFile("testdata/static.cue")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "static.cue"), cue, 0o644))
	scenario := `name: wrong-word-count
description: Expects the wrong number of words.
sequence: static.cue
assertions:
  - type: words
    count: 99
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(scenario), 0o644))

	out, err := execute(t, "run", filepath.Join(dir, "wrong.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong-word-count")
}

func TestRunDirectoryWithFilter(t *testing.T) {
	dir := t.TempDir()
	cue, err := os.ReadFile("testdata/static.cue")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "static.cue"), cue, 0o644))
	yaml, err := os.ReadFile("testdata/static.yaml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "static-two-pulses.yaml"), yaml, 0o644))

	out, err := execute(t, "run", dir, "--filter", "static-*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed")

	out, err = execute(t, "run", dir, "--filter", "branch-*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestRunMissingPath(t *testing.T) {
	_, err := execute(t, "run", "testdata/nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
