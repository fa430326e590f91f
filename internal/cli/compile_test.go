package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iontrap/fecs/internal/compiler"
	"github.com/iontrap/fecs/internal/store"
)

func TestCompileText(t *testing.T) {
	out, err := execute(t, "compile", "testdata/static.cue")
	require.NoError(t, err)
	assert.Contains(t, out, `Compiled "two-pulse"`)
	assert.Contains(t, out, "8 words, 30 ticks")
}

func TestCompileJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "compile", "testdata/static.cue")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result CompileResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "two-pulse", result.Sequence)
	assert.False(t, result.ContainsJumps)
	require.Len(t, result.Variants, 1)
	assert.Equal(t, 8, result.Variants[0].Words)
}

func TestCompileInvalidDefinition(t *testing.T) {
	out, err := execute(t, "compile", "testdata/overlap.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "WINDOW_OVERLAP")
}

func TestCompileMissingDefinition(t *testing.T) {
	_, err := execute(t, "compile", "testdata/no-such.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileAllRejectsOutput(t *testing.T) {
	_, err := execute(t, "compile", "testdata/static.cue", "--all", "-o", "report.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileWritesReport(t *testing.T) {
	report := filepath.Join(t.TempDir(), "report.json")
	_, err := execute(t, "compile", "testdata/static.cue", "-o", report)
	require.NoError(t, err)

	r, err := compiler.ReadReport(report)
	require.NoError(t, err)
	assert.Equal(t, "two-pulse", r.Sequence)
	assert.Len(t, r.Words, 8)
}

func TestCompileArchivesRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	out, err := execute(t, "--format", "json", "compile", "testdata/static.cue", "--db", db)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result CompileResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Variants, 1)
	require.NotEmpty(t, result.Variants[0].RunID)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	run, err := st.GetRun(context.Background(), result.Variants[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, "two-pulse", run.Report.Sequence)
	assert.Len(t, run.Report.Words, 8)
}
