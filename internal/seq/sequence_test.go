package seq_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iontrap/fecs/internal/seq"
	"github.com/iontrap/fecs/internal/testutil"
)

func requireCode(t *testing.T, err error, code seq.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var serr *seq.Error
	require.ErrorAs(t, err, &serr)
	require.Equal(t, code, serr.Code)
}

func TestVerifyFixtures(t *testing.T) {
	require.NoError(t, testutil.StaticSequence().Verify())
	require.NoError(t, testutil.BranchingSequence(8).Verify())
}

func TestCanonicalName(t *testing.T) {
	// NFD "é" (e + combining acute) folds to the composed form.
	assert.Equal(t, "café", seq.CanonicalName("café"))
	assert.Equal(t, "cool", seq.CanonicalName("  cool "))
}

func TestStatic(t *testing.T) {
	assert.True(t, testutil.StaticSequence().Static())
	assert.False(t, testutil.BranchingSequence(8).Static())
}

func TestVerifyWindowOverlap(t *testing.T) {
	s := testutil.StaticSequence()
	s.Outputs[0].Windows = []*seq.TimeWindow{
		seq.AbsoluteWindow("cool", 0, 10),
		seq.AbsoluteWindow("probe", 5, 15),
	}
	requireCode(t, s.Verify(), seq.ErrCodeWindowOverlap)
}

func TestVerifyDuplicateWindowName(t *testing.T) {
	s := testutil.StaticSequence()
	s.Counters = []*seq.CounterChannel{
		seq.NewCounterChannel("pmt", seq.AbsoluteWindow("cool", 0, 10)),
	}
	requireCode(t, s.Verify(), seq.ErrCodeDuplicateName)
}

func TestVerifyReservedWindowName(t *testing.T) {
	s := testutil.StaticSequence()
	s.Outputs[0].Windows[0].Name = "_cool"
	requireCode(t, s.Verify(), seq.ErrCodeInvalidDefinition)
}

func TestVerifyUnboundOutputChannel(t *testing.T) {
	s := testutil.StaticSequence()
	s.Outputs[0].Name = "heating"
	requireCode(t, s.Verify(), seq.ErrCodeUnresolvedReference)
}

func TestVerifyUnresolvedReference(t *testing.T) {
	s := testutil.StaticSequence()
	s.Outputs[0].Windows[1].End = seq.RelativePoint(
		seq.NewReference(seq.RefStart, "nope"), seq.AbsoluteOffset(1))
	requireCode(t, s.Verify(), seq.ErrCodeUnresolvedReference)
}

func TestVerifyRecursiveReference(t *testing.T) {
	s := testutil.StaticSequence()
	w := s.Outputs[0].Windows[0]
	w.Start = seq.RelativePoint(seq.NewReference(seq.RefEnd, "cool"), seq.AbsoluteOffset(-2))
	w.End = seq.RelativePoint(seq.NewReference(seq.RefStart, "cool"), seq.AbsoluteOffset(2))
	requireCode(t, s.Verify(), seq.ErrCodeRecursiveReference)
}

func TestVerifyUnknownVariable(t *testing.T) {
	s := testutil.StaticSequence()
	s.Outputs[0].Windows[0].End = seq.VariablePoint("tCool")
	requireCode(t, s.Verify(), seq.ErrCodeUnknownVariable)
}

func TestVerifyWindowOutOfBounds(t *testing.T) {
	s := testutil.StaticSequence()
	s.Outputs[0].Windows[1].End = seq.AbsolutePoint(31)
	requireCode(t, s.Verify(), seq.ErrCodeOutOfBounds)
}

func TestVerifyNoTerminator(t *testing.T) {
	s := testutil.BranchingSequence(8)
	// Both branches loop back, so no run can ever end.
	s.Controls[0].Jumps[0].Conditions[1] = seq.ElseCondition(&seq.Destination{
		Ref: seq.NewReference(seq.RefStart, "cool"),
	})
	requireCode(t, s.Verify(), seq.ErrCodeNoTerminator)
}

func TestVerifyJumpOnWindowEdge(t *testing.T) {
	s := testutil.BranchingSequence(8)
	s.Outputs[0].Windows[0] = seq.AbsoluteWindow("cool", 0, 70)
	requireCode(t, s.Verify(), seq.ErrCodeTimeCollision)
}

func TestVerifyJumpTimeCollision(t *testing.T) {
	s := testutil.BranchingSequence(8)
	s.Controls[0].Jumps = append(s.Controls[0].Jumps,
		seq.NewEnd("stop", seq.AbsolutePoint(70)))
	requireCode(t, s.Verify(), seq.ErrCodeTimeCollision)
}

func TestVerifyShortCountWindow(t *testing.T) {
	s := testutil.BranchingSequence(8)
	s.Controls[0].Windows[0] = seq.AbsoluteWindow("det", 50, 50.5)
	requireCode(t, s.Verify(), seq.ErrCodeInvalidDefinition)
}

func TestVerifyCountWindowNotPreceding(t *testing.T) {
	s := testutil.BranchingSequence(8)
	// A later window on the same channel overwrites the count the
	// jump is about to test.
	s.Controls[0].Windows = append(s.Controls[0].Windows,
		seq.AbsoluteWindow("det2", 62, 65))
	requireCode(t, s.Verify(), seq.ErrCodeInvalidDefinition)
}

func TestVerifyDestinationInsideCountRegion(t *testing.T) {
	s := testutil.BranchingSequence(8)
	s.Controls[0].Jumps[0].Conditions[0].Target = &seq.Destination{
		Ref: seq.NewReference(seq.RefEnd, "det"),
	}
	requireCode(t, s.Verify(), seq.ErrCodeInvalidDefinition)
}

func TestControlValues(t *testing.T) {
	s := &seq.Sequence{
		Name:     "sweep",
		Variants: 4,
		Variables: []*seq.ControlVariable{
			{Name: "tDetect", Kind: seq.VariableConstant, Value: 60},
			{Name: "tProbe", Kind: seq.VariableLinear, Start: 1, Stop: 10},
		},
	}
	values, err := s.ControlValues(0)
	require.NoError(t, err)
	assert.Equal(t, 60.0, values["tDetect"])
	assert.Equal(t, 1.0, values["tProbe"])

	values, err = s.ControlValues(3)
	require.NoError(t, err)
	assert.Equal(t, 60.0, values["tDetect"])
	assert.Equal(t, 10.0, values["tProbe"])

	_, err = s.ControlValues(4)
	requireCode(t, err, seq.ErrCodeInvalidDefinition)
}

func TestLinearVariableSingleVariant(t *testing.T) {
	v := &seq.ControlVariable{Name: "t", Kind: seq.VariableLinear, Start: 3, Stop: 9}
	value, err := v.ValueFor(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 3.0, value)
}

func TestLatestTimePoint(t *testing.T) {
	s := testutil.BranchingSequence(8)
	require.NoError(t, s.Verify())
	latest, err := s.LatestTimePoint(0, testutil.Logger())
	require.NoError(t, err)
	assert.Equal(t, 70.0, latest)

	s = testutil.StaticSequence()
	require.NoError(t, s.Verify())
	latest, err = s.LatestTimePoint(0, testutil.Logger())
	require.NoError(t, err)
	assert.Equal(t, 28.0, latest)
}

func TestErrorVariantTag(t *testing.T) {
	s := testutil.StaticSequence()
	s.Variants = 2
	s.Variables = []*seq.ControlVariable{
		{Name: "tEnd", Kind: seq.VariableLinear, Start: 28, Stop: 40},
	}
	s.Outputs[0].Windows[1].End = seq.VariablePoint("tEnd")

	err := s.Verify()
	var serr *seq.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, seq.ErrCodeOutOfBounds, serr.Code)
	assert.Equal(t, 1, serr.Variant)
}
