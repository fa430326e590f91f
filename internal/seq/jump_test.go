package seq_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iontrap/fecs/internal/seq"
	"github.com/iontrap/fecs/internal/testutil"
)

func chainJump(conditions ...*seq.Condition) *seq.Jump {
	return seq.NewConditionalJump("branch", seq.AbsolutePoint(70), "det", conditions...)
}

func TestThresholdChainSingleRange(t *testing.T) {
	dest := &seq.Destination{Ref: seq.NewReference(seq.RefStart, "cool")}
	term := &seq.Terminator{}
	j := chainJump(
		seq.RangeCondition(5, 10, dest),
		seq.ElseCondition(term),
	)

	chain, err := j.ThresholdChain()
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, seq.ChainEntry{Threshold: 10, Target: term}, chain[0])
	assert.Equal(t, seq.ChainEntry{Threshold: 5, Target: dest}, chain[1])
	assert.Equal(t, seq.ChainEntry{Threshold: 0, Target: term}, chain[2])
}

func TestThresholdChainContiguous(t *testing.T) {
	bright := &seq.Destination{Ref: seq.NewReference(seq.RefStart, "cool")}
	dim := &seq.Destination{Ref: seq.NewReference(seq.RefStart, "probe")}
	term := &seq.Terminator{}
	j := chainJump(
		seq.ThresholdCond(8, bright),
		seq.RangeCondition(2, 8, dim),
		seq.ElseCondition(term),
	)

	chain, err := j.ThresholdChain()
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, seq.ChainEntry{Threshold: 8, Target: bright}, chain[0])
	assert.Equal(t, seq.ChainEntry{Threshold: 2, Target: dim}, chain[1])
	assert.Equal(t, seq.ChainEntry{Threshold: 0, Target: term}, chain[2])
}

func TestThresholdChainThreeWay(t *testing.T) {
	low := &seq.Destination{Ref: seq.NewReference(seq.RefStart, "cool")}
	mid := &seq.Destination{Ref: seq.NewReference(seq.RefStart, "probe")}
	term := &seq.Terminator{}
	j := chainJump(
		seq.RangeCondition(0, 10, low),
		seq.RangeCondition(10, 100, mid),
		seq.ElseCondition(term),
	)

	chain, err := j.ThresholdChain()
	require.NoError(t, err)
	require.Len(t, chain, 3)

	// Descending evaluation selects low for 0-9, mid for 10-99 and the
	// else branch from 100 up.
	pick := func(count int) seq.Target {
		for _, entry := range chain {
			if count >= entry.Threshold {
				return entry.Target
			}
		}
		return nil
	}
	assert.Equal(t, seq.Target(low), pick(0))
	assert.Equal(t, seq.Target(low), pick(9))
	assert.Equal(t, seq.Target(mid), pick(10))
	assert.Equal(t, seq.Target(mid), pick(99))
	assert.Equal(t, seq.Target(term), pick(100))
	assert.Equal(t, seq.Target(term), pick(40000))
}

func TestThresholdChainValueCondition(t *testing.T) {
	dest := &seq.Destination{Ref: seq.NewReference(seq.RefStart, "cool")}
	term := &seq.Terminator{}
	j := chainJump(
		seq.ValueCondition(3, dest),
		seq.ElseCondition(term),
	)

	chain, err := j.ThresholdChain()
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, seq.ChainEntry{Threshold: 4, Target: term}, chain[0])
	assert.Equal(t, seq.ChainEntry{Threshold: 3, Target: dest}, chain[1])
	assert.Equal(t, seq.ChainEntry{Threshold: 0, Target: term}, chain[2])
}

func TestThresholdChainOverlap(t *testing.T) {
	dest := &seq.Destination{Ref: seq.NewReference(seq.RefStart, "cool")}
	j := chainJump(
		seq.RangeCondition(2, 8, dest),
		seq.ThresholdCond(5, dest),
		seq.ElseCondition(&seq.Terminator{}),
	)

	_, err := j.ThresholdChain()
	requireCode(t, err, seq.ErrCodeRangeOverlap)
}

func TestThresholdChainRequiresElse(t *testing.T) {
	j := chainJump(seq.ThresholdCond(8, &seq.Terminator{}))
	_, err := j.ThresholdChain()
	requireCode(t, err, seq.ErrCodeInvalidDefinition)
}

func TestCompressedChainMergesRuns(t *testing.T) {
	// A value condition with the same target as the else collapses to
	// an unconditional entry at threshold zero.
	term := &seq.Terminator{}
	j := chainJump(
		seq.ValueCondition(3, term),
		seq.ElseCondition(term),
	)

	chain, err := j.CompressedChain()
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, seq.ChainEntry{Threshold: 0, Target: term}, chain[0])
}

func TestCompressedChainKeepsDistinctTargets(t *testing.T) {
	dest := &seq.Destination{Ref: seq.NewReference(seq.RefStart, "cool")}
	term := &seq.Terminator{}
	j := chainJump(
		seq.RangeCondition(5, 10, dest),
		seq.ElseCondition(term),
	)

	chain, err := j.CompressedChain()
	require.NoError(t, err)
	require.Len(t, chain, 3)
}

func TestEnsureElse(t *testing.T) {
	j := chainJump(seq.ThresholdCond(8, &seq.Destination{
		Ref: seq.NewReference(seq.RefStart, "cool"),
	}))
	j.EnsureElse(testutil.Logger())
	require.Len(t, j.Conditions, 2)
	assert.Equal(t, seq.ConditionElse, j.Conditions[1].Kind)
	assert.IsType(t, &seq.Pass{}, j.Conditions[1].Target)

	j.EnsureElse(testutil.Logger())
	assert.Len(t, j.Conditions, 2)
}

func TestEnsureElseWarnsOnGivenLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	j := chainJump(seq.ThresholdCond(8, &seq.Destination{
		Ref: seq.NewReference(seq.RefStart, "cool"),
	}))
	j.EnsureElse(logger)

	assert.Contains(t, buf.String(), "no else condition")
	assert.Contains(t, buf.String(), "branch")
}

func TestConditionRange(t *testing.T) {
	lo, hi, err := seq.ValueCondition(3, &seq.Pass{}).Range()
	require.NoError(t, err)
	assert.Equal(t, 3, lo)
	assert.Equal(t, 4, hi)

	lo, hi, err = seq.ThresholdCond(8, &seq.Pass{}).Range()
	require.NoError(t, err)
	assert.Equal(t, 8, lo)
	assert.Equal(t, seq.CountSpace, hi)

	lo, hi, err = seq.ElseCondition(&seq.Pass{}).Range()
	require.NoError(t, err)
	assert.Equal(t, 0, lo)
	assert.Equal(t, seq.CountSpace, hi)
}
