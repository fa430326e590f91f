package ipu_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iontrap/fecs/internal/compiler"
	"github.com/iontrap/fecs/internal/instr"
	"github.com/iontrap/fecs/internal/ipu"
	"github.com/iontrap/fecs/internal/seq"
	"github.com/iontrap/fecs/internal/testutil"
)

func compileFixture(t *testing.T, s *seq.Sequence, opts compiler.Options) []uint32 {
	t.Helper()
	opts.Logger = testutil.Logger()
	c, err := compiler.New(s, opts)
	require.NoError(t, err)
	words, _, err := c.Compile(0)
	require.NoError(t, err)
	return words
}

func TestRunStaticProgram(t *testing.T) {
	words := compileFixture(t, testutil.StaticSequence(), compiler.Options{})

	trace, err := ipu.Run(words, ipu.Options{Shots: 2})
	require.NoError(t, err)
	assert.Equal(t, 60, trace.Ticks)
	assert.Equal(t, 2, trace.Shots)
	require.Len(t, trace.Events, 16)

	assert.Equal(t, uint32(1<<3), trace.Events[0].Bus)
	assert.Equal(t, 1, trace.Events[0].Address)
	// Second shot restarts at address 1, tick 30.
	assert.Equal(t, 2, trace.Events[8].Shot)
	assert.Equal(t, 30, trace.Events[8].Tick)
	assert.Equal(t, uint32(1<<3), trace.Events[8].Bus)
}

func TestWaitOccupiesDuration(t *testing.T) {
	words := []uint32{0x80000008, 0x4, 0xC0000000}
	trace, err := ipu.Run(words, ipu.Options{})
	require.NoError(t, err)
	// SET at 0, WAIT covering 1-4, END at 5.
	assert.Equal(t, 6, trace.Ticks)
	require.Len(t, trace.Events, 3)
	assert.Equal(t, 5, trace.Events[2].Tick)
}

func TestConditionalNotTaken(t *testing.T) {
	words := compileFixture(t, testutil.BranchingSequence(8),
		compiler.Options{ControlRegisterHighTime: 10})

	trace, err := ipu.Run(words, ipu.Options{Counts: ipu.FixedCounts{1: 3}})
	require.NoError(t, err)
	assert.Equal(t, 1, trace.Shots)
	// The else branch jumps straight to the terminator, skipping the
	// trailing wait.
	assert.Equal(t, 72, trace.Ticks)
}

func TestConditionalTakenOnce(t *testing.T) {
	words := compileFixture(t, testutil.BranchingSequence(8),
		compiler.Options{ControlRegisterHighTime: 10})

	calls := 0
	counts := ipu.CounterFunc(func(channel int) uint32 {
		calls++
		if calls == 1 {
			return 12
		}
		return 0
	})

	trace, err := ipu.Run(words, ipu.Options{Counts: counts})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	// One full loop back to the start before terminating.
	assert.Equal(t, 142, trace.Ticks)
}

func TestConstantCountLoopsForever(t *testing.T) {
	words := compileFixture(t, testutil.BranchingSequence(8),
		compiler.Options{ControlRegisterHighTime: 10})

	_, err := ipu.Run(words, ipu.Options{Counts: ipu.FixedCounts{1: 9}})
	require.ErrorIs(t, err, ipu.ErrJumpBudget)
}

func TestMaxJumpsOverride(t *testing.T) {
	words := compileFixture(t, testutil.BranchingSequence(8),
		compiler.Options{ControlRegisterHighTime: 10})

	trace, err := ipu.Run(words, ipu.Options{
		Counts:   ipu.FixedCounts{1: 100},
		MaxJumps: 3,
	})
	require.ErrorIs(t, err, ipu.ErrJumpBudget)
	taken := 0
	for _, e := range trace.Events {
		if e.Word.Op == instr.OpJump {
			taken++
		}
	}
	assert.Equal(t, 3, taken)
}

func TestBadAddress(t *testing.T) {
	// A lone goto pointing past the end of RAM.
	words := []uint32{1<<30 | 1<<29 | 5}
	_, err := ipu.Run(words, ipu.Options{})
	require.ErrorIs(t, err, ipu.ErrBadAddress)
}

func TestIdleStateBeforeFirstSet(t *testing.T) {
	words := []uint32{0xC0000000}
	trace, err := ipu.Run(words, ipu.Options{IdleState: 1 << 4})
	require.NoError(t, err)
	require.Len(t, trace.Events, 1)
	assert.Equal(t, uint32(1<<4), trace.Events[0].Bus)
}

func TestTraceString(t *testing.T) {
	words := compileFixture(t, testutil.StaticSequence(), compiler.Options{})
	trace, err := ipu.Run(words, ipu.Options{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(trace.String(), "\n"), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, "shot 1 tick      0 addr   1 SET  bus 0x000008", lines[0])
	assert.Equal(t, "shot 1 tick      1 addr   2 WAIT bus 0x000008 duration=4", lines[1])
	assert.Equal(t, "ticks=30 shots=1", lines[8])
}
