package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iontrap/fecs/internal/compiler"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testReport(sequence string, variant int) *compiler.Report {
	return &compiler.Report{
		Sequence:                sequence,
		Variant:                 variant,
		CompiledAt:              time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		ControlRegisterHighTime: compiler.DefaultControlRegisterHighTime,
		MaxJumpConditions:       compiler.DefaultMaxJumpConditions,
		DelayUnit:               0.04,
		LengthTicks:             3000,
		ContainsJumps:           true,
		Words:                   []uint32{0x80000008, 0x4, 0xC0000000},
	}
}

func TestOpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

func TestSaveAndGetRun(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	run := Run{ID: "run-1", Report: testReport("detection", 2)}
	require.NoError(t, st.SaveRun(ctx, run))

	got, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, "detection", got.Report.Sequence)
	assert.Equal(t, 2, got.Report.Variant)
	assert.Equal(t, 3000, got.Report.LengthTicks)
	assert.True(t, got.Report.ContainsJumps)
	assert.Equal(t, []uint32{0x80000008, 0x4, 0xC0000000}, got.Report.Words)
}

func TestSaveRunIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	run := Run{ID: "run-1", Report: testReport("detection", 0)}
	require.NoError(t, st.SaveRun(ctx, run))
	require.NoError(t, st.SaveRun(ctx, run))

	runs, err := st.ListRuns(ctx, "")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSaveRunNilReport(t *testing.T) {
	st := openTestStore(t)
	err := st.SaveRun(context.Background(), Run{ID: "run-1"})
	require.Error(t, err)
}

func TestGetRunNotFound(t *testing.T) {
	st := openTestStore(t)
	_, err := st.GetRun(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	gen := NewFixedGenerator("a-1", "b-2", "c-3")

	require.NoError(t, st.SaveRun(ctx, Run{ID: gen.Generate(), Report: testReport("cooling", 0)}))
	require.NoError(t, st.SaveRun(ctx, Run{ID: gen.Generate(), Report: testReport("detection", 0)}))
	require.NoError(t, st.SaveRun(ctx, Run{ID: gen.Generate(), Report: testReport("detection", 1)}))

	all, err := st.ListRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first: ids sort descending.
	assert.Equal(t, "c-3", all[0].ID)
	assert.Equal(t, "a-1", all[2].ID)

	detection, err := st.ListRuns(ctx, "detection")
	require.NoError(t, err)
	require.Len(t, detection, 2)
	for _, r := range detection {
		assert.Equal(t, "detection", r.Sequence)
	}
}

func TestPackWordsRoundTrip(t *testing.T) {
	words := []uint32{0, 1, 0x80000008, 0xFFFFFFFF}
	assert.Equal(t, words, unpackWords(packWords(words)))
	assert.Empty(t, unpackWords(nil))
}

func TestUUIDv7GeneratorOrdered(t *testing.T) {
	gen := UUIDv7Generator{}
	a := gen.Generate()
	b := gen.Generate()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestFixedGeneratorExhausted(t *testing.T) {
	gen := NewFixedGenerator("only")
	assert.Equal(t, "only", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}
