package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectDefinition(t *testing.T) {
	out, err := execute(t, "inspect", "testdata/static.cue")
	require.NoError(t, err)
	assert.Contains(t, out, "two-pulse variant 0: 8 words, 30 ticks")
	assert.Contains(t, out, "SET")
	assert.Contains(t, out, "END")
}

func TestInspectDefinitionJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "inspect", "testdata/static.cue")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result InspectResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Len(t, result.Words, 8)
	assert.Contains(t, result.Disassembly, "WAIT")
}

func TestInspectArchivedRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	out, err := execute(t, "--format", "json", "compile", "testdata/static.cue", "--db", db)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var compiled CompileResult
	require.NoError(t, json.Unmarshal(data, &compiled))
	require.Len(t, compiled.Variants, 1)
	runID := compiled.Variants[0].RunID

	out, err = execute(t, "inspect", "--db", db, "--run", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "two-pulse variant 0")
	assert.Contains(t, out, runID)
}

func TestInspectList(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	_, err := execute(t, "compile", "testdata/static.cue", "--db", db)
	require.NoError(t, err)

	out, err := execute(t, "inspect", "--db", db, "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "two-pulse variant 0")

	out, err = execute(t, "inspect", "--db", db, "--list", "--sequence", "other")
	require.NoError(t, err)
	assert.Contains(t, out, "No archived runs")
}

func TestInspectUnknownRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	_, err := execute(t, "compile", "testdata/static.cue", "--db", db)
	require.NoError(t, err)

	_, err = execute(t, "inspect", "--db", db, "--run", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInspectNeedsInput(t *testing.T) {
	_, err := execute(t, "inspect")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInspectListNeedsDatabase(t *testing.T) {
	_, err := execute(t, "inspect", "--list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
