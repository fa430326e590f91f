package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValid(t *testing.T) {
	out, err := execute(t, "validate", "testdata/static.cue")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}

func TestValidateInvalid(t *testing.T) {
	out, err := execute(t, "validate", "testdata/overlap.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "WINDOW_OVERLAP")
}

func TestValidateInvalidJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", "testdata/overlap.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "WINDOW_OVERLAP", resp.Error.Code)
}

func TestValidateMissingFile(t *testing.T) {
	_, err := execute(t, "validate", "testdata/no-such.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
