package signature

import (
	"math/rand"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/will-rowe/bigsi/src/bloom"
	"github.com/will-rowe/bigsi/src/kmers"
	"github.com/will-rowe/bigsi/src/storage"
)

const (
	testM = 1000
	testH = 3
	testK = 3
)

var testParams = storage.Params{K: testK, M: testM, H: testH, HashFamily: bloom.Murmur3.String()}

func testBloom(t testing.TB, seq string) *bitset.BitSet {
	bf, err := bloom.FromSequences(testM, testH, testK, bloom.Murmur3, []byte(seq))
	require.NoError(t, err)
	return bf.BitArray()
}

func distinctKmers(t testing.TB, seq string) []string {
	it, err := kmers.New([]byte(seq), testK)
	require.NoError(t, err)
	return it.Distinct()
}

func newTestIndex(t testing.TB, lowmem bool, seqs ...string) (*Index, storage.Storage) {
	store := storage.OpenMemory(uuid.NewString())
	blooms := make([]*bitset.BitSet, len(seqs))
	for i, seq := range seqs {
		blooms[i] = testBloom(t, seq)
	}
	require.NoError(t, store.Update(func(tx storage.Tx) error {
		return Create(tx, testParams, blooms, lowmem)
	}))
	return New(store, testM, testH, bloom.Murmur3), store
}

func TestCreateTransposes(t *testing.T) {
	blooms := make([]*bitset.BitSet, 70)
	rng := rand.New(rand.NewSource(1))
	for c := range blooms {
		blooms[c] = bitset.New(testM)
		for j := 0; j < 50; j++ {
			blooms[c].Set(uint(rng.Intn(testM)))
		}
	}
	for _, lowmem := range []bool{false, true} {
		store := storage.OpenMemory(uuid.NewString())
		require.NoError(t, store.Update(func(tx storage.Tx) error {
			return Create(tx, testParams, blooms, lowmem)
		}))
		rows, err := New(store, testM, testH, bloom.Murmur3).AllRows()
		require.NoError(t, err)
		require.Len(t, rows, testM)
		for i, row := range rows {
			require.Equal(t, uint(len(blooms)), row.Len())
			for c, b := range blooms {
				assert.Equal(t, b.Test(uint(i)), row.Test(uint(c)), "row %d colour %d (lowmem=%v)", i, c, lowmem)
			}
		}
		store.Close()
	}
}

func TestCreateRejectsWrongBloomLength(t *testing.T) {
	store := storage.OpenMemory(uuid.NewString())
	defer store.Close()
	err := store.Update(func(tx storage.Tx) error {
		return Create(tx, testParams, []*bitset.BitSet{bitset.New(testM), bitset.New(testM - 1)}, false)
	})
	assert.ErrorIs(t, err, storage.ErrShapeMismatch)
}

func TestLookupAndExactFilter(t *testing.T) {
	idx, store := newTestIndex(t, false, "AAATTT", "GGGCCC")
	defer store.Close()

	query := distinctKmers(t, "AAATTT")
	presence, n, err := idx.Lookup(append(query, query...))
	require.NoError(t, err)
	assert.Equal(t, uint(2), n)
	assert.Len(t, presence, len(query))
	for _, v := range presence {
		assert.True(t, v.Test(0))
	}
	colours := ExactFilter(presence, n)
	assert.True(t, colours.Contains(0))
}

func TestInsertBloom(t *testing.T) {
	idx, store := newTestIndex(t, false, "AAATTT")
	defer store.Close()

	err := store.Update(func(tx storage.Tx) error {
		return InsertBloom(tx, testBloom(t, "GGGCCC"), 5)
	})
	assert.ErrorIs(t, err, storage.ErrShapeMismatch)

	require.NoError(t, store.Update(func(tx storage.Tx) error {
		return InsertBloom(tx, testBloom(t, "GGGCCC"), 1)
	}))
	presence, n, err := idx.Lookup(distinctKmers(t, "GGGCCC"))
	require.NoError(t, err)
	assert.Equal(t, uint(2), n)
	assert.True(t, ExactFilter(presence, n).Contains(1))
}

func TestInexactFilter(t *testing.T) {
	presence := map[string]*bitset.BitSet{
		"AAA": bitset.New(4).Set(0).Set(1).Set(2),
		"AAC": bitset.New(4).Set(0).Set(1),
		"AAG": bitset.New(4).Set(0),
		"AAT": bitset.New(4).Set(0).Set(3),
	}
	hits := InexactFilter(presence, 4, 0.5)
	assert.Equal(t, map[uint32]Count{
		0: {Found: 4, Total: 4},
		1: {Found: 2, Total: 4},
	}, hits)
	assert.Equal(t, 100.0, hits[0].Percent())
	assert.Equal(t, 50.0, hits[1].Percent())

	assert.Len(t, InexactFilter(presence, 4, 0), 4)
	assert.Len(t, InexactFilter(presence, 4, 1), 1)
	assert.Empty(t, InexactFilter(map[string]*bitset.BitSet{}, 4, 0))
}

func TestThresholdMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	presence := make(map[string]*bitset.BitSet)
	for i := 0; i < 40; i++ {
		v := bitset.New(100)
		for c := uint(0); c < 100; c++ {
			if rng.Intn(3) == 0 {
				v.Set(c)
			}
		}
		presence[string(rune('A'+i))] = v
	}
	thresholds := []float64{0, 0.1, 0.25, 0.3, 0.5, 0.75, 1}
	for j := 1; j < len(thresholds); j++ {
		lower := InexactFilter(presence, 100, thresholds[j-1])
		higher := InexactFilter(presence, 100, thresholds[j])
		for c := range higher {
			assert.Contains(t, lower, c)
		}
	}
	exact := ExactFilter(presence, 100)
	atOne := InexactFilter(presence, 100, 1)
	assert.Equal(t, int(exact.GetCardinality()), len(atOne))
}

func BenchmarkInexactFilter(b *testing.B) {
	presence := make(map[string]*bitset.BitSet)
	for i := 0; i < 1000; i++ {
		v := bitset.New(10000)
		for c := uint(i % 7); c < 10000; c += 7 {
			v.Set(c)
		}
		presence[string(rune(i))] = v
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		InexactFilter(presence, 10000, 0.5)
	}
}
