package bigsi

import (
	"math"

	"github.com/will-rowe/bigsi/src/bloom"
)

// Stats summarises an index
type Stats struct {
	K          uint   `json:"k"`
	M          uint   `json:"m"`
	H          uint   `json:"h"`
	HashFamily string `json:"hash_family"`
	NumColours uint   `json:"num_colours"`
	NumSamples int    `json:"num_samples"`
	NumDeleted uint64 `json:"num_deleted"`
	NumRows    uint   `json:"num_rows"`

	// ApproxBytes is the size of the uncompressed row words
	ApproxBytes uint64 `json:"approx_bytes"`

	// Density holds the fraction of rows set for each colour, which is the fill ratio of its bloom filter
	Density []float64 `json:"density"`

	// FalsePositiveRates holds the per-k-mer false positive rate implied by each density
	FalsePositiveRates []float64 `json:"false_positive_rates"`
}

// Stats is a method to summarise the index, every row is read
func (idx *Index) Stats() (*Stats, error) {
	idx.lock.RLock()
	defer idx.lock.RUnlock()
	if idx.deleted {
		return nil, ErrIndexDeleted
	}
	rows, err := idx.signatures.AllRows()
	if err != nil {
		return nil, err
	}
	if err := idx.metadata.Load(); err != nil {
		return nil, err
	}
	numColours := uint(0)
	if len(rows) > 0 {
		numColours = rows[0].Len()
	}
	counts := make([]uint, numColours)
	buffer := make([]uint, 256)
	for _, row := range rows {
		for j, set := row.NextSetMany(0, buffer); len(set) > 0; j, set = row.NextSetMany(j+1, buffer) {
			for _, c := range set {
				counts[c]++
			}
		}
	}
	stats := &Stats{
		K:                  idx.cfg.K,
		M:                  idx.cfg.M,
		H:                  idx.cfg.H,
		HashFamily:         idx.family.String(),
		NumColours:         numColours,
		NumSamples:         len(idx.metadata.Samples()),
		NumDeleted:         idx.metadata.Tombstones().GetCardinality(),
		NumRows:            uint(len(rows)),
		ApproxBytes:        uint64(len(rows)) * uint64((numColours+63)/64) * 8,
		Density:            make([]float64, numColours),
		FalsePositiveRates: make([]float64, numColours),
	}
	for c, count := range counts {
		if len(rows) == 0 {
			break
		}
		density := float64(count) / float64(len(rows))
		stats.Density[c] = density
		stats.FalsePositiveRates[c] = math.Pow(density, float64(idx.cfg.H))
	}
	return stats, nil
}

// EstimateFalsePositiveRate returns the expected false positive rate of one sample
// holding n distinct k-mers under the index parameters
func (idx *Index) EstimateFalsePositiveRate(n uint) float64 {
	return bloom.EstimateFalsePositiveRate(idx.cfg.M, idx.cfg.H, n)
}
