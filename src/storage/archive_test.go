package storage

import (
	"path/filepath"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s Storage) {
	rows := make([]*bitset.BitSet, testParams.M)
	for i := range rows {
		rows[i] = bitset.New(3)
	}
	rows[1].Set(0)
	rows[5].Set(1).Set(2)
	require.NoError(t, s.Update(func(tx Tx) error {
		if err := WriteRows(tx, testParams, rows, 3); err != nil {
			return err
		}
		for colour, name := range []string{"a", "DELETED", "c"} {
			if err := tx.PutSample(uint(colour), name); err != nil {
				return err
			}
		}
		return nil
	}))
}

func assertSeeded(t *testing.T, s Storage) {
	p, ok, err := s.Params()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testParams, p)
	samples, err := s.Samples()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "DELETED", "c"}, samples)
	rows, err := s.ReadRows([]uint{0, 1, 5})
	require.NoError(t, err)
	assert.True(t, rows[0].None())
	assert.True(t, rows[1].Test(0))
	assert.Equal(t, uint(2), rows[2].Count())
	assert.Equal(t, uint(3), rows[2].Len())
}

func TestCopy(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		src := OpenMemory(uuid.NewString())
		seed(t, src)
		require.NoError(t, Copy(s, src))
		assertSeeded(t, s)
	})

	assert.Error(t, Copy(OpenMemory(uuid.NewString()), OpenMemory(uuid.NewString())))
}

func TestExportImport(t *testing.T) {
	src := OpenMemory(uuid.NewString())
	seed(t, src)
	archive := filepath.Join(t.TempDir(), "index.tar.gz")
	require.NoError(t, Export(src, archive))
	assert.FileExists(t, archive)
	assert.Error(t, Export(src, archive), "existing archives are not overwritten")

	forEachBackend(t, func(t *testing.T, s Storage) {
		require.NoError(t, Import(s, archive))
		assertSeeded(t, s)
	})

	assert.Error(t, Import(OpenMemory(uuid.NewString()), filepath.Join(t.TempDir(), "missing.tar.gz")))
}
