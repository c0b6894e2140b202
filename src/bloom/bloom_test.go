package bloom

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/will-rowe/bigsi/src/kmers"
)

var (
	testKmers = []string{"AAA", "AAT", "ACG", "CCC", "GCC"}
	seqA      = []byte("ACTGCGTGCGTGAAACGTGCACGTGACGTG")
)

func TestBloomfilter(t *testing.T) {
	for _, family := range []HashFamily{Murmur3, WyHash} {
		filter := New(1000, 3, family)
		filter.InsertAll(testKmers)
		for _, kmer := range testKmers {
			assert.True(t, filter.Check(kmer), "'%s' should be have been marked present (%v)", kmer, family)
		}
		filter.Reset()
		for _, kmer := range testKmers {
			assert.False(t, filter.Check(kmer), "'%s' shouldn't be marked as present (%v)", kmer, family)
		}
	}
}

func TestNewWithLowNumbers(t *testing.T) {
	f := New(0, 0, Murmur3)
	assert.Equal(t, uint(1), f.M())
	assert.Equal(t, uint(1), f.H())
}

func TestPositionsAreDeterministic(t *testing.T) {
	a := Positions("ACGT", 500, 4, Murmur3)
	b := Positions("ACGT", 500, 4, Murmur3)
	require.Len(t, a, 4)
	assert.Equal(t, a, b)
	for _, p := range a {
		assert.Less(t, p, uint(500))
	}
	assert.NotEqual(t, a, Positions("ACGT", 500, 4, WyHash))
}

func TestBitArrayIsASnapshot(t *testing.T) {
	f := New(64, 2, Murmur3)
	snapshot := f.BitArray()
	f.Add("AAA")
	assert.Equal(t, uint(0), snapshot.Count())
	assert.NotEqual(t, uint(0), f.Count())
	assert.Equal(t, uint(64), snapshot.Len())
}

func TestFromSequencesHasNoFalseNegatives(t *testing.T) {
	f, err := FromSequences(256, 3, 7, Murmur3, seqA)
	require.NoError(t, err)
	it, err := kmers.New(seqA, 7)
	require.NoError(t, err)
	for _, kmer := range it.Distinct() {
		assert.True(t, f.Check(kmer))
	}
	_, err = FromSequences(256, 3, 7, Murmur3, []byte("ACG"))
	assert.ErrorIs(t, err, kmers.ErrInvalidInput)
}

func TestSerialisation(t *testing.T) {
	f := New(333, 3, WyHash)
	f.InsertAll(testKmers)

	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	g := &BloomFilter{}
	_, err = g.ReadFrom(&buf)
	require.NoError(t, err)
	assert.Equal(t, f.M(), g.M())
	assert.Equal(t, f.H(), g.H())
	assert.Equal(t, f.Family(), g.Family())
	assert.True(t, f.BitArray().Equal(g.BitArray()))

	path := filepath.Join(t.TempDir(), "sample.bloom")
	require.NoError(t, f.Dump(path))
	h, err := Load(path)
	require.NoError(t, err)
	assert.True(t, f.BitArray().Equal(h.BitArray()))

	_, err = (&BloomFilter{}).ReadFrom(bytes.NewReader([]byte("not a bloom filter")))
	assert.ErrorIs(t, err, ErrInvalidFileFormat)
}

func TestEstimates(t *testing.T) {
	m, h := EstimateParameters(1000, 0.01)
	fpr := EstimateFalsePositiveRate(m, h, 1000)
	assert.InDelta(t, 0.01, fpr, 0.005)
	assert.Equal(t, 1.0, EstimateFalsePositiveRate(0, 3, 10))
}

func TestParseHashFamily(t *testing.T) {
	f, err := ParseHashFamily("wyhash")
	require.NoError(t, err)
	assert.Equal(t, WyHash, f)
	f, err = ParseHashFamily("")
	require.NoError(t, err)
	assert.Equal(t, Murmur3, f)
	_, err = ParseHashFamily("md5")
	assert.ErrorIs(t, err, ErrUnknownHashFamily)
}
