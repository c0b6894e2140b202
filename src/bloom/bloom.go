// Package bloom contains the Bloom filter used to summarise the canonical k-mer set of a sample.
package bloom

import (
	"math"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
	"github.com/twmb/murmur3"
	"github.com/zeebo/wyhash"

	"github.com/will-rowe/bigsi/src/kmers"
)

// HashFamily selects the hash functions used to place k-mers in the filter
type HashFamily uint8

const (
	// Murmur3 seeds murmur3 with the hash function index
	Murmur3 HashFamily = iota
	// WyHash seeds wyhash with the hash function index
	WyHash
)

// ErrUnknownHashFamily is returned when parsing an unsupported hash family name
var ErrUnknownHashFamily = errors.New("unknown hash family")

// String returns the name used for the family in config files
func (f HashFamily) String() string {
	switch f {
	case Murmur3:
		return "murmur3"
	case WyHash:
		return "wyhash"
	default:
		return "unknown"
	}
}

// ParseHashFamily converts a config name into a HashFamily
func ParseHashFamily(name string) (HashFamily, error) {
	switch name {
	case "", "murmur3":
		return Murmur3, nil
	case "wyhash":
		return WyHash, nil
	default:
		return 0, errors.Wrapf(ErrUnknownHashFamily, "%q", name)
	}
}

func (f HashFamily) sum(seed uint64, kmer []byte) uint64 {
	if f == WyHash {
		return wyhash.Hash(kmer, seed)
	}
	return murmur3.SeedSum64(seed, kmer)
}

// Positions returns the h bit positions of a k-mer in a filter of m bits.
// Positions may repeat when two hash functions collide.
func Positions(kmer string, m, h uint, family HashFamily) []uint {
	positions := make([]uint, h)
	data := []byte(kmer)
	for i := uint(0); i < h; i++ {
		positions[i] = uint(family.sum(uint64(i), data) % uint64(m))
	}
	return positions
}

// BloomFilter is the bloom filter type
type BloomFilter struct {
	m      uint
	h      uint
	family HashFamily
	bits   *bitset.BitSet
	lock   sync.RWMutex
}

// New is the Bloom Filter constructor, m and h are forced to be at least one
func New(m, h uint, family HashFamily) *BloomFilter {
	if m < 1 {
		m = 1
	}
	if h < 1 {
		h = 1
	}
	return &BloomFilter{
		m:      m,
		h:      h,
		family: family,
		bits:   bitset.New(m),
	}
}

// FromBitArray wraps an existing bit array, which sets m
func FromBitArray(bits *bitset.BitSet, h uint, family HashFamily) *BloomFilter {
	bf := New(bits.Len(), h, family)
	bf.bits = bits.Clone()
	return bf
}

// FromSequences builds a filter over the canonical k-mers of one or more sequences
func FromSequences(m, h, k uint, family HashFamily, sequences ...[]byte) (*BloomFilter, error) {
	bf := New(m, h, family)
	for _, sequence := range sequences {
		it, err := kmers.New(sequence, k)
		if err != nil {
			return nil, err
		}
		for kmer, ok := it.Next(); ok; kmer, ok = it.Next() {
			bf.Add(kmer.Text)
		}
	}
	return bf, nil
}

// M returns the number of bits in the filter
func (bf *BloomFilter) M() uint { return bf.m }

// H returns the number of hash functions
func (bf *BloomFilter) H() uint { return bf.h }

// Family returns the hash family
func (bf *BloomFilter) Family() HashFamily { return bf.family }

// Positions returns the bit positions for a k-mer in this filter
func (bf *BloomFilter) Positions(kmer string) []uint {
	return Positions(kmer, bf.m, bf.h, bf.family)
}

// Add sets the bits for a k-mer
func (bf *BloomFilter) Add(kmer string) {
	positions := bf.Positions(kmer)
	bf.lock.Lock()
	for _, p := range positions {
		bf.bits.Set(p)
	}
	bf.lock.Unlock()
}

// InsertAll adds a batch of k-mers
func (bf *BloomFilter) InsertAll(kmers []string) {
	for _, kmer := range kmers {
		bf.Add(kmer)
	}
}

// Check reports whether all the bits for a k-mer are set
func (bf *BloomFilter) Check(kmer string) bool {
	positions := bf.Positions(kmer)
	bf.lock.RLock()
	defer bf.lock.RUnlock()
	for _, p := range positions {
		if !bf.bits.Test(p) {
			return false
		}
	}
	return true
}

// BitArray returns a snapshot of the m-bit array
func (bf *BloomFilter) BitArray() *bitset.BitSet {
	bf.lock.RLock()
	defer bf.lock.RUnlock()
	return bf.bits.Clone()
}

// Count returns the number of set bits
func (bf *BloomFilter) Count() uint {
	bf.lock.RLock()
	defer bf.lock.RUnlock()
	return bf.bits.Count()
}

// Reset clears all marked bits
func (bf *BloomFilter) Reset() {
	bf.lock.Lock()
	bf.bits.ClearAll()
	bf.lock.Unlock()
}

// EstimateFalsePositiveRate returns the expected false positive rate of a filter
// with m bits and h hash functions holding n distinct k-mers
func EstimateFalsePositiveRate(m, h, n uint) float64 {
	if m == 0 {
		return 1
	}
	return math.Pow(1-math.Exp(-float64(h)*float64(n)/float64(m)), float64(h))
}

// EstimateParameters estimates m and h for n k-mers at false positive rate p
func EstimateParameters(n uint, p float64) (m uint, h uint) {
	m = uint(math.Ceil(-1 * float64(n) * math.Log(p) / math.Pow(math.Log(2), 2)))
	h = uint(math.Ceil(math.Log(2) * float64(m) / float64(n)))
	return
}
