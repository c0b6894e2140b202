// Package signature is the k-mer signature index: Bloom filter bit arrays
// transposed into rows so that the h rows of a k-mer, ANDed together, give the
// colours (samples) which may contain it.
package signature

import (
	"math/bits"
	"runtime"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
	logging "github.com/shenwei356/go-logging"
	"golang.org/x/sync/errgroup"

	"github.com/will-rowe/bigsi/src/bloom"
	"github.com/will-rowe/bigsi/src/storage"
)

var log = logging.MustGetLogger("bigsi/signature")

// wordSize is the number of rows covered by one word of a bloom bit array
const wordSize = 64

// Index answers k-mer presence queries against the rows of a store
type Index struct {
	store  storage.Storage
	m      uint
	h      uint
	family bloom.HashFamily
}

// New returns a signature index over a store with the given bloom parameters
func New(store storage.Storage, m, h uint, family bloom.HashFamily) *Index {
	return &Index{store: store, m: m, h: h, family: family}
}

// Create resets the store to the transposition of the bloom bit arrays, bloom c becomes colour c
func Create(tx storage.Tx, p storage.Params, blooms []*bitset.BitSet, lowmem bool) error {
	for c, b := range blooms {
		if b.Len() != p.M {
			return errors.Wrapf(storage.ErrShapeMismatch, "bloom filter %d holds %d bits, expected %d", c, b.Len(), p.M)
		}
	}
	if err := tx.Init(p, uint(len(blooms))); err != nil {
		return err
	}
	if lowmem {
		return createRowByRow(tx, p.M, blooms)
	}
	rows, err := transpose(p.M, blooms)
	if err != nil {
		return err
	}
	for i, row := range rows {
		if row == nil {
			continue
		}
		if err := tx.SetRow(uint(i), row); err != nil {
			return err
		}
	}
	return nil
}

// createRowByRow holds only one transposed row at a time
func createRowByRow(tx storage.Tx, m uint, blooms []*bitset.BitSet) error {
	n := uint(len(blooms))
	row := bitset.New(n)
	for i := uint(0); i < m; i++ {
		row.ClearAll()
		for c, b := range blooms {
			if b.Test(i) {
				row.Set(uint(c))
			}
		}
		if row.None() {
			continue
		}
		if err := tx.SetRow(i, row); err != nil {
			return err
		}
	}
	return nil
}

// transpose splits the rows into word-aligned ranges and fills each range in its own goroutine.
// All-zero rows are left nil.
func transpose(m uint, blooms []*bitset.BitSet) ([]*bitset.BitSet, error) {
	n := uint(len(blooms))
	rows := make([]*bitset.BitSet, m)
	numWords := int((m + wordSize - 1) / wordSize)
	workers := runtime.GOMAXPROCS(0)
	chunk := (numWords + workers - 1) / workers
	if chunk < 1 {
		chunk = 1
	}
	var g errgroup.Group
	for start := 0; start < numWords; start += chunk {
		end := start + chunk
		if end > numWords {
			end = numWords
		}
		start := start
		g.Go(func() error {
			for w := start; w < end; w++ {
				for c, b := range blooms {
					words := b.Words()
					if w >= len(words) {
						continue
					}
					word := words[w]
					for word != 0 {
						bit := uint(bits.TrailingZeros64(word))
						word &= word - 1
						i := uint(w)*wordSize + bit
						if i >= m {
							break
						}
						if rows[i] == nil {
							rows[i] = bitset.New(n)
						}
						rows[i].Set(uint(c))
					}
				}
			}
			return nil
		})
	}
	return rows, g.Wait()
}

// InsertBloom appends a bloom bit array as the next colour
func InsertBloom(tx storage.Tx, b *bitset.BitSet, colour uint) error {
	if next := tx.NumColours(); colour != next {
		return errors.Wrapf(storage.ErrShapeMismatch, "colour %d is not the next colour %d", colour, next)
	}
	return tx.ExtendRows(b)
}

// Lookup returns the presence vector of every distinct k-mer and the colour count.
// All rows are fetched in one batched read, so every vector comes from the same snapshot.
func (idx *Index) Lookup(kmers []string) (map[string]*bitset.BitSet, uint, error) {
	distinct := make([]string, 0, len(kmers))
	seen := make(map[string]struct{}, len(kmers))
	for _, kmer := range kmers {
		if _, ok := seen[kmer]; ok {
			continue
		}
		seen[kmer] = struct{}{}
		distinct = append(distinct, kmer)
	}
	if len(distinct) == 0 {
		n, err := idx.store.NumColours()
		return map[string]*bitset.BitSet{}, n, err
	}

	positions := make([]uint, 0, uint(len(distinct))*idx.h)
	for _, kmer := range distinct {
		positions = append(positions, bloom.Positions(kmer, idx.m, idx.h, idx.family)...)
	}
	rows, err := idx.store.ReadRows(positions)
	if err != nil {
		return nil, 0, err
	}
	numColours := rows[0].Len()
	presence := make(map[string]*bitset.BitSet, len(distinct))
	for j, kmer := range distinct {
		kmerRows := rows[uint(j)*idx.h : uint(j+1)*idx.h]
		v := kmerRows[0].Clone()
		for _, row := range kmerRows[1:] {
			v.InPlaceIntersection(row)
		}
		presence[kmer] = v
	}
	log.Debugf("looked up %d distinct k-mers across %d colours", len(distinct), numColours)
	return presence, numColours, nil
}

// ExactFilter returns the colours present for every k-mer
func ExactFilter(presence map[string]*bitset.BitSet, numColours uint) *roaring.Bitmap {
	colours := roaring.New()
	if len(presence) == 0 {
		return colours
	}
	acc := bitset.New(numColours)
	acc.SetAll()
	for _, v := range presence {
		acc.InPlaceIntersection(v)
	}
	buffer := make([]uint, 256)
	for i, set := acc.NextSetMany(0, buffer); len(set) > 0; i, set = acc.NextSetMany(i+1, buffer) {
		for _, c := range set {
			colours.Add(uint32(c))
		}
	}
	return colours
}

// Count is the number of distinct query k-mers found for a colour
type Count struct {
	Found int
	Total int
}

// Percent returns the share of k-mers found, 0 to 100
func (c Count) Percent() float64 {
	if c.Total == 0 {
		return 0
	}
	return 100 * float64(c.Found) / float64(c.Total)
}

// InexactFilter returns every colour holding at least threshold of the k-mers.
// Counts are summed column-wise over the set bits of each presence vector.
func InexactFilter(presence map[string]*bitset.BitSet, numColours uint, threshold float64) map[uint32]Count {
	hits := make(map[uint32]Count)
	total := len(presence)
	if total == 0 {
		return hits
	}
	counts := make([]int, numColours)
	buffer := make([]uint, 256)
	for _, v := range presence {
		for i, set := v.NextSetMany(0, buffer); len(set) > 0; i, set = v.NextSetMany(i+1, buffer) {
			for _, c := range set {
				counts[c]++
			}
		}
	}
	for c, found := range counts {
		if float64(found)/float64(total) >= threshold {
			hits[uint32(c)] = Count{Found: found, Total: total}
		}
	}
	return hits
}

// AllRows reads every row in one batch, rows are read-only
func (idx *Index) AllRows() ([]*bitset.BitSet, error) {
	m, err := idx.store.NumRows()
	if err != nil {
		return nil, err
	}
	indices := make([]uint, m)
	for i := range indices {
		indices[i] = uint(i)
	}
	return idx.store.ReadRows(indices)
}
