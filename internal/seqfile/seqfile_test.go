package seqfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iontrap/fecs/internal/seq"
)

func writeDefinition(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "def.cue")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDetection(t *testing.T) {
	s, err := Load("testdata/detection.cue")
	require.NoError(t, err)

	assert.Equal(t, "detection", s.Name)
	assert.Equal(t, 120.0, s.Length)
	assert.Equal(t, 200, s.Shots)
	assert.Equal(t, 5, s.Variants)

	require.NotNil(t, s.Hardware)
	assert.Equal(t, "trap-a", s.Hardware.Name)
	assert.Equal(t, 0.04, s.Hardware.DelayUnit)
	require.Len(t, s.Hardware.Outputs, 2)
	assert.True(t, s.Hardware.Outputs[0].IdleState)
	assert.False(t, s.Hardware.Outputs[1].Polarity)
	require.Len(t, s.Hardware.PulseCounters, 1)
	assert.Equal(t, 5, s.Hardware.PulseCounters[0].Gate)
	assert.Equal(t, 2, s.Hardware.Register.Width)
	require.Contains(t, s.Hardware.Register.Bits, 1)
	assert.Equal(t, 23, s.Hardware.Register.Bits[1].Output)

	require.Len(t, s.Variables, 2)
	assert.Equal(t, seq.VariableConstant, s.Variables[0].Kind)
	assert.Equal(t, seq.VariableLinear, s.Variables[1].Kind)

	require.Len(t, s.Outputs, 1)
	require.Len(t, s.Outputs[0].Windows, 1)
	cool := s.Outputs[0].Windows[0]
	assert.Equal(t, seq.PointAbsolute, cool.Start.Kind)
	assert.Equal(t, seq.PointVariable, cool.End.Kind)
	assert.Equal(t, "tDetect", cool.End.Variable)

	require.Len(t, s.Controls, 1)
	det := s.Controls[0].Windows[0]
	assert.Equal(t, seq.PointRelative, det.End.Kind)
	assert.Equal(t, seq.RefStart, det.End.Ref.Kind)
	assert.Equal(t, 10.0, det.End.Off.Value)

	require.Len(t, s.Controls[0].Jumps, 1)
	branch := s.Controls[0].Jumps[0]
	assert.Equal(t, seq.JumpConditional, branch.Kind)
	assert.Equal(t, "det", branch.Window)
	require.Len(t, branch.Conditions, 3)
	assert.Equal(t, seq.ConditionThreshold, branch.Conditions[0].Kind)
	assert.IsType(t, &seq.Destination{}, branch.Conditions[0].Target)
	assert.Equal(t, seq.ConditionRange, branch.Conditions[1].Kind)
	assert.IsType(t, &seq.Pass{}, branch.Conditions[1].Target)
	assert.Equal(t, seq.ConditionElse, branch.Conditions[2].Kind)
	assert.IsType(t, &seq.Terminator{}, branch.Conditions[2].Target)
}

func TestLoadedSequenceVerifies(t *testing.T) {
	s, err := Load("testdata/detection.cue")
	require.NoError(t, err)
	require.NoError(t, s.Verify())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/no-such-file.cue")
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}

func TestLoadNoSequence(t *testing.T) {
	path := writeDefinition(t, `
hardware: {
	name:      "bench"
	delayUnit: 1.0
	register: {width: 0}
}
`)
	_, err := Load(path)
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeBadDef, loadErr.Code)
	assert.Contains(t, loadErr.Message, "no sequence")
}

func TestLoadNoHardware(t *testing.T) {
	path := writeDefinition(t, `
sequence: {
	name:     "bare"
	length:   10.0
	shots:    1
	variants: 1
}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no hardware")
}

func TestLoadUnknownVariableKind(t *testing.T) {
	path := writeDefinition(t, `
hardware: {
	name:      "bench"
	delayUnit: 1.0
	register: {width: 0}
}
sequence: {
	name:     "bad"
	length:   10.0
	shots:    1
	variants: 1
	variables: [{name: "x", kind: "quadratic"}]
}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestLoadAmbiguousTimePoint(t *testing.T) {
	path := writeDefinition(t, `
hardware: {
	name:      "bench"
	delayUnit: 1.0
	outputs: [{name: "out", id: 0, polarity: true}]
	register: {width: 0}
}
sequence: {
	name:     "bad"
	length:   10.0
	shots:    1
	variants: 1
	outputs: [{
		channel: "out"
		windows: [{name: "w", start: {at: 0.0, variable: "x"}, end: {at: 5.0}}]
	}]
}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of at, variable or after")
}

func TestLoadGotoWithoutDest(t *testing.T) {
	path := writeDefinition(t, `
hardware: {
	name:      "bench"
	delayUnit: 1.0
	pulseCounters: [{name: "det", id: 1, gate: 5}]
	register: {width: 0}
}
sequence: {
	name:     "bad"
	length:   10.0
	shots:    1
	variants: 1
	controls: [{
		channel: "det"
		jumps: [{name: "j", kind: "goto", time: {at: 5.0}}]
	}]
}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "goto needs a dest")
}
