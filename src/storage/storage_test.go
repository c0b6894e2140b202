package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/will-rowe/bigsi/src/config"
)

var testParams = Params{K: 3, M: 8, H: 2, HashFamily: "murmur3"}

// opener returns a fresh, empty store
type opener func(t *testing.T) Storage

func backends() map[string]opener {
	return map[string]opener{
		"memory": func(t *testing.T) Storage {
			return OpenMemory(uuid.NewString())
		},
		"file": func(t *testing.T) Storage {
			s, err := OpenFile(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"redis": func(t *testing.T) Storage {
			addr := os.Getenv("BIGSI_TEST_REDIS")
			if addr == "" {
				addr = ":6379"
			}
			prefix := "bigsi-test-" + uuid.NewString()
			s, err := OpenRedis([]string{addr}, 0, prefix)
			if err != nil {
				t.Skipf("no redis server at %s: %v", addr, err)
			}
			t.Cleanup(func() {
				if c, err := OpenRedis([]string{addr}, 0, prefix); err == nil {
					c.DeleteAll()
					c.Close()
				}
			})
			return s
		},
	}
}

func column(m uint, set ...uint) *bitset.BitSet {
	b := bitset.New(m)
	for _, i := range set {
		b.Set(i)
	}
	return b
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Storage)) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			fn(t, s)
		})
	}
}

func TestEmptyStore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		_, ok, err := s.Params()
		require.NoError(t, err)
		assert.False(t, ok)
		n, err := s.NumColours()
		require.NoError(t, err)
		assert.Equal(t, uint(0), n)
		samples, err := s.Samples()
		require.NoError(t, err)
		assert.Empty(t, samples)
	})
}

func TestWriteRowsAndRead(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		rows := make([]*bitset.BitSet, testParams.M)
		for i := range rows {
			rows[i] = bitset.New(2)
		}
		rows[1].Set(0)
		rows[5].Set(1)
		rows[7].Set(0).Set(1)
		require.NoError(t, s.Update(func(tx Tx) error {
			if err := WriteRows(tx, testParams, rows, 2); err != nil {
				return err
			}
			if err := tx.PutSample(0, "S1"); err != nil {
				return err
			}
			return tx.PutSample(1, "S2")
		}))

		p, ok, err := s.Params()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, testParams, p)
		m, err := s.NumRows()
		require.NoError(t, err)
		assert.Equal(t, testParams.M, m)

		got, err := s.ReadRows([]uint{7, 1, 7, 0})
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.True(t, got[0].Equal(rows[7]))
		assert.True(t, got[1].Equal(rows[1]))
		assert.True(t, got[2].Equal(rows[7]))
		assert.Equal(t, uint(2), got[3].Len())
		assert.Equal(t, uint(0), got[3].Count())

		samples, err := s.Samples()
		require.NoError(t, err)
		assert.Equal(t, []string{"S1", "S2"}, samples)

		_, err = s.ReadRows([]uint{testParams.M})
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})
}

func TestWriteRowsRejectsRaggedRows(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		rows := make([]*bitset.BitSet, testParams.M)
		for i := range rows {
			rows[i] = bitset.New(2)
		}
		rows[3] = bitset.New(3)
		err := s.Update(func(tx Tx) error {
			return WriteRows(tx, testParams, rows, 2)
		})
		assert.ErrorIs(t, err, ErrShapeMismatch)
		_, ok, err := s.Params()
		require.NoError(t, err)
		assert.False(t, ok, "nothing should be committed")
	})
}

func TestExtendRows(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		require.NoError(t, s.Update(func(tx Tx) error {
			return tx.Init(testParams, 0)
		}))
		require.NoError(t, s.Update(func(tx Tx) error {
			if err := tx.ExtendRows(column(testParams.M, 0, 3)); err != nil {
				return err
			}
			return tx.PutSample(0, "S1")
		}))
		require.NoError(t, s.Update(func(tx Tx) error {
			if err := tx.ExtendRows(column(testParams.M, 3, 4)); err != nil {
				return err
			}
			if err := tx.ExtendRows(column(testParams.M, 0)); err != nil {
				return err
			}
			assert.Equal(t, uint(3), tx.NumColours())
			if err := tx.PutSample(1, "S2"); err != nil {
				return err
			}
			return tx.PutSample(2, "S3")
		}))

		n, err := s.NumColours()
		require.NoError(t, err)
		assert.Equal(t, uint(3), n)
		rows, err := s.ReadRows([]uint{0, 3, 4, 5})
		require.NoError(t, err)
		for _, row := range rows {
			assert.Equal(t, uint(3), row.Len())
		}
		assert.True(t, rows[0].Equal(column(3, 0, 2)))
		assert.True(t, rows[1].Equal(column(3, 0, 1)))
		assert.True(t, rows[2].Equal(column(3, 1)))
		assert.Equal(t, uint(0), rows[3].Count())

		err = s.Update(func(tx Tx) error {
			return tx.ExtendRows(column(testParams.M + 1))
		})
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})
}

func TestFailedUpdateCommitsNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		require.NoError(t, s.Update(func(tx Tx) error {
			return tx.Init(testParams, 0)
		}))
		boom := errors.New("boom")
		err := s.Update(func(tx Tx) error {
			if err := tx.ExtendRows(column(testParams.M, 1)); err != nil {
				return err
			}
			if err := tx.PutSample(0, "S1"); err != nil {
				return err
			}
			return boom
		})
		assert.Equal(t, boom, err)
		n, err := s.NumColours()
		require.NoError(t, err)
		assert.Equal(t, uint(0), n)
		samples, err := s.Samples()
		require.NoError(t, err)
		assert.Empty(t, samples)
	})
}

func TestPutSampleGap(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		err := s.Update(func(tx Tx) error {
			return tx.PutSample(2, "S3")
		})
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})
}

func TestDeleteAllTwice(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		require.NoError(t, s.Update(func(tx Tx) error {
			if err := tx.Init(testParams, 0); err != nil {
				return err
			}
			if err := tx.ExtendRows(column(testParams.M, 2)); err != nil {
				return err
			}
			return tx.PutSample(0, "S1")
		}))
		require.NoError(t, s.DeleteAll())
		require.NoError(t, s.DeleteAll())
		_, ok, err := s.Params()
		require.NoError(t, err)
		assert.False(t, ok)
		samples, err := s.Samples()
		require.NoError(t, err)
		assert.Empty(t, samples)
	})
}

// readers must only ever see rows of one length while a writer extends them
func TestRowLengthInvariantUnderConcurrentReads(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		require.NoError(t, s.Update(func(tx Tx) error {
			return tx.Init(testParams, 0)
		}))
		all := make([]uint, testParams.M)
		for i := range all {
			all[i] = uint(i)
		}
		var wg sync.WaitGroup
		stop := make(chan struct{})
		for r := 0; r < 4; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					rows, err := s.ReadRows(all)
					if !assert.NoError(t, err) {
						return
					}
					for _, row := range rows[1:] {
						assert.Equal(t, rows[0].Len(), row.Len())
					}
				}
			}()
		}
		for c := uint(0); c < 20; c++ {
			require.NoError(t, s.Update(func(tx Tx) error {
				return tx.ExtendRows(column(testParams.M, c%testParams.M))
			}))
		}
		close(stop)
		wg.Wait()
	})
}

func TestMemoryReopen(t *testing.T) {
	name := uuid.NewString()
	s := OpenMemory(name)
	require.NoError(t, s.Update(func(tx Tx) error {
		return tx.Init(testParams, 0)
	}))
	require.NoError(t, s.Close())
	_, _, err := s.Params()
	assert.ErrorIs(t, err, ErrClosed)

	again := OpenMemory(name)
	defer again.Close()
	p, ok, err := again.Params()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testParams, p)
}

func TestFileLockAndReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := OpenFile(dir)
	require.NoError(t, err)
	require.NoError(t, s.Update(func(tx Tx) error {
		if err := tx.Init(testParams, 0); err != nil {
			return err
		}
		if err := tx.ExtendRows(column(testParams.M, 1, 6)); err != nil {
			return err
		}
		return tx.PutSample(0, "S1")
	}))

	_, err = OpenFile(dir)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	again, err := OpenFile(dir)
	require.NoError(t, err)
	defer again.Close()
	rows, err := again.ReadRows([]uint{1, 2, 6})
	require.NoError(t, err)
	assert.Equal(t, uint(1), rows[0].Count())
	assert.Equal(t, uint(0), rows[1].Count())
	assert.Equal(t, uint(1), rows[2].Count())
	samples, err := again.Samples()
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, samples)
}

func TestFileCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, snapshotFile), []byte("garbage"), 0644))
	_, err := OpenFile(dir)
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	var serr *Error
	assert.True(t, errors.As(err, &serr))
}

func TestRowCodec(t *testing.T) {
	for _, n := range []uint{0, 1, 7, 8, 9, 64, 65, 130} {
		row := bitset.New(n)
		for i := uint(0); i < n; i += 3 {
			row.Set(i)
		}
		got := decodeRow(encodeRow(row), n)
		assert.True(t, row.Equal(got), "%d colours", n)
	}
	// SETBIT 0 sets the most significant bit of the first byte
	assert.Equal(t, []byte{0x80}, encodeRow(column(3, 0)))
	// rows shorter than the colour count pad with zeros
	assert.Equal(t, uint(20), decodeRow([]byte{0x80}, 20).Len())
}

func TestOpenFactory(t *testing.T) {
	s, err := Open(config.StorageConfig{Backend: config.BackendMemory, Path: uuid.NewString()})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
	require.NoError(t, s.Close())

	s, err = Open(config.StorageConfig{Backend: config.BackendFile, Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)
	require.NoError(t, s.Close())

	_, err = Open(config.StorageConfig{Backend: "leveldb"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestTxSamplesIncludeStagedRecords(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		require.NoError(t, s.Update(func(tx Tx) error {
			if err := tx.Init(testParams, 0); err != nil {
				return err
			}
			return tx.PutSample(0, "S1")
		}))
		require.NoError(t, s.Update(func(tx Tx) error {
			records, err := tx.Samples()
			require.NoError(t, err)
			assert.Equal(t, []string{"S1"}, records)

			require.NoError(t, tx.PutSample(1, "S2"))
			require.NoError(t, tx.PutSample(0, "DELETED"))
			records, err = tx.Samples()
			require.NoError(t, err)
			assert.Equal(t, []string{"DELETED", "S2"}, records)
			return nil
		}))
		samples, err := s.Samples()
		require.NoError(t, err)
		assert.Equal(t, []string{"DELETED", "S2"}, samples)

		require.NoError(t, s.Update(func(tx Tx) error {
			if err := tx.Init(testParams, 0); err != nil {
				return err
			}
			records, err := tx.Samples()
			require.NoError(t, err)
			assert.Empty(t, records, "Init drops the stored records")
			return nil
		}))
	})
}

func TestNewMemoryIsNotRegistered(t *testing.T) {
	registry.Lock()
	before := len(registry.stores)
	registry.Unlock()

	s := NewMemory()
	require.NoError(t, s.Update(func(tx Tx) error {
		return tx.Init(testParams, 0)
	}))
	p, ok, err := s.Params()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testParams, p)

	registry.Lock()
	after := len(registry.stores)
	registry.Unlock()
	assert.Equal(t, before, after)
	require.NoError(t, s.Close())

	other := NewMemory()
	defer other.Close()
	_, ok, err = other.Params()
	require.NoError(t, err)
	assert.False(t, ok, "private stores do not share state")
}
