// Package kmers decomposes nucleotide sequences into canonical k-mers.
//
// A canonical k-mer is the lexicographically smaller of a k-mer and its reverse
// complement, so a sequence and its reverse complement yield the same k-mer set.
// Input is case-insensitive. A, C, G and T are indexed; the IUPAC degenerate
// bases (N, R, Y, S, W, K, M, B, D, H, V) are skipped, meaning no k-mer spanning
// one is emitted; any other byte is rejected with ErrInvalidInput.
package kmers

import (
	"github.com/pkg/errors"
	"github.com/shenwei356/kmers"
	"github.com/will-rowe/ntHash"
)

// MaxK is the largest k-mer size that fits the 2-bit encoding
const MaxK = 32

// CANONICAL tells nthash to return the hash of the canonical k-mer
const CANONICAL bool = true

// ErrInvalidInput is returned for sequences that cannot be decomposed into k-mers
var ErrInvalidInput = errors.New("invalid sequence input")

const (
	degenerate uint8 = 4
	invalid    uint8 = 5
)

// seqNT4table converts a nucleotide to its 2-bit code (A=0, C=1, G=2, T=3)
var seqNT4table [256]uint8

// complementBases is the lookup table used during reverse complementation
var complementBases [256]byte

func init() {
	for i := range seqNT4table {
		seqNT4table[i] = invalid
		complementBases[i] = 'N'
	}
	for code, base := range []byte("ACGT") {
		seqNT4table[base] = uint8(code)
		seqNT4table[base+32] = uint8(code)
	}
	for _, base := range []byte("NRYSWKMBDHV") {
		seqNT4table[base] = degenerate
		seqNT4table[base+32] = degenerate
	}
	for _, pair := range [][2]byte{{'A', 'T'}, {'C', 'G'}, {'G', 'C'}, {'T', 'A'}} {
		complementBases[pair[0]] = pair[1]
		complementBases[pair[0]+32] = pair[1]
	}
}

// Kmer is a canonical k-mer and the 0-based offset of the window it was taken from
type Kmer struct {
	Text string
	Pos  int
}

// Iterator lazily yields the canonical k-mers of a sequence, in sequence order
type Iterator struct {
	seq      []byte
	k        uint
	bitmask  uint64
	bitshift uint64

	// rolling state
	i    int
	span uint
	fwd  uint64
	rev  uint64
}

// New validates a sequence and returns an iterator over its canonical k-mers
func New(sequence []byte, k uint) (*Iterator, error) {
	if k == 0 || k > MaxK {
		return nil, errors.Wrapf(ErrInvalidInput, "k-mer size must be in [1, %d], got %d", MaxK, k)
	}
	if uint(len(sequence)) < k {
		return nil, errors.Wrapf(ErrInvalidInput, "sequence length (%d) is shorter than k-mer length (%d)", len(sequence), k)
	}
	for i, base := range sequence {
		if seqNT4table[base] == invalid {
			return nil, errors.Wrapf(ErrInvalidInput, "unsupported base %q at position %d", base, i)
		}
	}
	return &Iterator{
		seq:      sequence,
		k:        k,
		bitmask:  (uint64(1) << uint64(2*k)) - uint64(1),
		bitshift: uint64(2 * (k - 1)),
	}, nil
}

// K returns the k-mer size used by the iterator
func (it *Iterator) K() uint {
	return it.k
}

// Next returns the next canonical k-mer; ok is false once the sequence is exhausted
func (it *Iterator) Next() (kmer Kmer, ok bool) {
	for it.i < len(it.seq) {
		c := seqNT4table[it.seq[it.i]]
		it.i++

		// degenerate bases break the current window
		if c > 3 {
			it.span = 0
			continue
		}
		it.fwd = (it.fwd<<2 | uint64(c)) & it.bitmask
		it.rev = (it.rev >> 2) | (uint64(3)-uint64(c))<<it.bitshift
		if it.span < it.k {
			it.span++
		}
		if it.span < it.k {
			continue
		}
		code := it.fwd
		if it.rev < code {
			code = it.rev
		}
		return Kmer{Text: string(kmers.MustDecode(code, int(it.k))), Pos: it.i - int(it.k)}, true
	}
	return Kmer{}, false
}

// Reset rewinds the iterator to the start of the sequence
func (it *Iterator) Reset() {
	it.i, it.span, it.fwd, it.rev = 0, 0, 0, 0
}

// All returns every canonical k-mer of the sequence in order, duplicates included
func (it *Iterator) All() []Kmer {
	it.Reset()
	defer it.Reset()
	out := make([]Kmer, 0, len(it.seq))
	for kmer, ok := it.Next(); ok; kmer, ok = it.Next() {
		out = append(out, kmer)
	}
	return out
}

// Distinct returns the distinct canonical k-mers of the sequence in first-seen order
func (it *Iterator) Distinct() []string {
	it.Reset()
	defer it.Reset()
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for kmer, ok := it.Next(); ok; kmer, ok = it.Next() {
		if _, dup := seen[kmer.Text]; dup {
			continue
		}
		seen[kmer.Text] = struct{}{}
		out = append(out, kmer.Text)
	}
	return out
}

// Canonical returns the canonical form of a single k-mer
func Canonical(kmer string) (string, error) {
	it, err := New([]byte(kmer), uint(len(kmer)))
	if err != nil {
		return "", err
	}
	canonical, ok := it.Next()
	if !ok {
		return "", errors.Wrapf(ErrInvalidInput, "k-mer %q contains degenerate bases", kmer)
	}
	return canonical.Text, nil
}

// ReverseComplement returns the reverse complement of a sequence, upper-cased
func ReverseComplement(sequence []byte) []byte {
	rc := make([]byte, len(sequence))
	for i, j := 0, len(sequence)-1; j >= 0; i, j = i+1, j-1 {
		rc[i] = complementBases[sequence[j]]
	}
	return rc
}

// EstimateCardinality counts the distinct canonical k-mers of a sequence using ntHash.
// Hash collisions make this an estimate, which is all the false positive maths needs.
func EstimateCardinality(sequence []byte, k uint) (int, error) {
	if _, err := New(sequence, k); err != nil {
		return 0, err
	}
	hashes := make(map[uint64]struct{})
	for _, run := range acgtRuns(sequence, k) {
		hasher, err := ntHash.New(&run, k)
		if err != nil {
			return 0, errors.Wrap(err, "could not initialise ntHash")
		}
		for hv := range hasher.Hash(CANONICAL) {
			hashes[hv] = struct{}{}
		}
	}
	return len(hashes), nil
}

// acgtRuns splits a sequence on degenerate bases, returning upper-cased runs of at least k bases
func acgtRuns(sequence []byte, k uint) [][]byte {
	runs := [][]byte{}
	start := 0
	for i := 0; i <= len(sequence); i++ {
		if i < len(sequence) && seqNT4table[sequence[i]] < degenerate {
			continue
		}
		if uint(i-start) >= k {
			run := make([]byte, i-start)
			for j, base := range sequence[start:i] {
				run[j] = "ACGT"[seqNT4table[base]]
			}
			runs = append(runs, run)
		}
		start = i + 1
	}
	return runs
}
