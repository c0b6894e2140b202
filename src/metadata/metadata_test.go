package metadata

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/will-rowe/bigsi/src/storage"
)

func newTestMetadata(t *testing.T) *SampleMetadata {
	store := storage.OpenMemory(uuid.NewString())
	t.Cleanup(func() { store.Close() })
	sm, err := New(store)
	require.NoError(t, err)
	return sm
}

func TestAddSamples(t *testing.T) {
	sm := newTestMetadata(t)
	colour, err := sm.AddSample("S1")
	require.NoError(t, err)
	assert.Equal(t, uint(0), colour)

	colours, err := sm.AddSamples([]string{"S2", "S3"})
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, colours)
	assert.Equal(t, uint(3), sm.NumColours())
	assert.Equal(t, []string{"S1", "S2", "S3"}, sm.Samples())

	name, err := sm.ColourToSample(2)
	require.NoError(t, err)
	assert.Equal(t, "S3", name)
	colour, err = sm.SampleToColour("S2")
	require.NoError(t, err)
	assert.Equal(t, uint(1), colour)

	_, err = sm.ColourToSample(3)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = sm.SampleToColour("S4")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateBatchCommitsNothing(t *testing.T) {
	sm := newTestMetadata(t)
	_, err := sm.AddSamples([]string{"A", "B", "A"})
	assert.ErrorIs(t, err, ErrDuplicateSample)
	assert.Equal(t, uint(0), sm.NumColours())
	assert.Empty(t, sm.Samples())

	_, err = sm.AddSample("A")
	require.NoError(t, err)
	_, err = sm.AddSamples([]string{"B", "A"})
	assert.ErrorIs(t, err, ErrDuplicateSample)
	assert.Equal(t, []string{"A"}, sm.Samples())
}

func TestInvalidNames(t *testing.T) {
	sm := newTestMetadata(t)
	_, err := sm.AddSample("")
	assert.ErrorIs(t, err, ErrInvalidSampleName)
	_, err = sm.AddSample(Tombstone)
	assert.ErrorIs(t, err, ErrInvalidSampleName)
}

func TestDeleteSample(t *testing.T) {
	sm := newTestMetadata(t)
	_, err := sm.AddSamples([]string{"S1", "S2", "S3"})
	require.NoError(t, err)
	require.NoError(t, sm.DeleteSample("S2"))

	assert.Equal(t, uint(3), sm.NumColours(), "colours are not reclaimed")
	assert.Equal(t, []string{"S1", "S3"}, sm.Samples())
	_, err = sm.ColourToSample(1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = sm.SampleToColour("S2")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, sm.Tombstones().Contains(1))
	assert.ErrorIs(t, sm.DeleteSample("S2"), ErrNotFound)

	names := sm.ColoursToSamples(roaring.BitmapOf(0, 1, 2, 9))
	assert.Equal(t, map[uint32]string{0: "S1", 2: "S3"}, names)

	// a deleted name can come back under a new colour
	colour, err := sm.AddSample("S2")
	require.NoError(t, err)
	assert.Equal(t, uint(3), colour)
}

func TestLoadSharesStoredRecords(t *testing.T) {
	name := uuid.NewString()
	store := storage.OpenMemory(name)
	sm, err := New(store)
	require.NoError(t, err)
	_, err = sm.AddSamples([]string{"S1", "S2"})
	require.NoError(t, err)
	require.NoError(t, sm.DeleteSample("S1"))
	require.NoError(t, store.Close())

	reopened, err := New(storage.OpenMemory(name))
	require.NoError(t, err)
	assert.Equal(t, []string{"S2"}, reopened.Samples())
	assert.Equal(t, uint(2), reopened.NumColours())
}

func TestStageInsideTransaction(t *testing.T) {
	store := storage.OpenMemory(uuid.NewString())
	defer store.Close()
	sm, err := New(store)
	require.NoError(t, err)
	err = store.Update(func(tx storage.Tx) error {
		colours, err := sm.Stage(tx, []string{"X", "Y"})
		assert.Equal(t, []uint{0, 1}, colours)
		return err
	})
	require.NoError(t, err)
	assert.Empty(t, sm.Samples(), "cache is only refreshed by Load")
	require.NoError(t, sm.Load())
	assert.Equal(t, []string{"X", "Y"}, sm.Samples())
}

func TestHandlesCheckCommittedRecords(t *testing.T) {
	name := uuid.NewString()
	a, err := New(storage.OpenMemory(name))
	require.NoError(t, err)
	b, err := New(storage.OpenMemory(name))
	require.NoError(t, err)

	_, err = a.AddSample("X")
	require.NoError(t, err)
	_, err = b.AddSample("X")
	assert.ErrorIs(t, err, ErrDuplicateSample, "b has not loaded X but it is stored")

	require.NoError(t, b.DeleteSample("X"))
	colour, err := a.AddSample("X")
	require.NoError(t, err, "a still caches X but it was tombstoned by b")
	assert.Equal(t, uint(1), colour)
	assert.Equal(t, []string{"X"}, a.Samples())

	records, err := storage.OpenMemory(name).Samples()
	require.NoError(t, err)
	assert.Equal(t, []string{Tombstone, "X"}, records)
}
