package bigsi

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"

	"github.com/will-rowe/bigsi/src/kmers"
	"github.com/will-rowe/bigsi/src/signature"
)

// Hit is the result for one sample
type Hit struct {
	PercentKmersFound float64 `json:"percent_kmers_found"`
	NumKmers          int     `json:"num_kmers"`
	NumKmersFound     int     `json:"num_kmers_found"`
	Score             *Score  `json:"score,omitempty"`
}

// Results maps sample names to hits
type Results map[string]Hit

// Search returns the samples holding at least threshold of the distinct k-mers of seq.
// A threshold of 1 takes the exact path (AND of every presence vector).
func (idx *Index) Search(seq []byte, threshold float64, score bool) (Results, error) {
	idx.lock.RLock()
	defer idx.lock.RUnlock()
	if idx.deleted {
		return nil, ErrIndexDeleted
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, errors.Wrapf(ErrInvalidThreshold, "got %v", threshold)
	}
	it, err := kmers.New(seq, idx.cfg.K)
	if err != nil {
		return nil, err
	}
	if err := idx.validateQuery(it); err != nil {
		return nil, err
	}
	it.Reset()
	all := it.All()
	distinct := make([]string, 0, len(all))
	seen := make(map[string]struct{}, len(all))
	for _, kmer := range all {
		if _, ok := seen[kmer.Text]; !ok {
			seen[kmer.Text] = struct{}{}
			distinct = append(distinct, kmer.Text)
		}
	}

	presence, numColours, err := idx.signatures.Lookup(distinct)
	if err != nil {
		return nil, err
	}
	// records are reloaded after the rows so every colour read is named
	if err := idx.metadata.Load(); err != nil {
		return nil, err
	}
	counts := make(map[uint32]signature.Count)
	if threshold == 1 {
		total := len(presence)
		colours := signature.ExactFilter(presence, numColours)
		ci := colours.Iterator()
		for ci.HasNext() {
			counts[ci.Next()] = signature.Count{Found: total, Total: total}
		}
	} else {
		counts = signature.InexactFilter(presence, numColours, threshold)
	}

	hitColours := roaring.New()
	for colour := range counts {
		hitColours.Add(colour)
	}
	results := make(Results, len(counts))
	for colour, sample := range idx.metadata.ColoursToSamples(hitColours) {
		count := counts[colour]
		hit := Hit{
			PercentKmersFound: count.Percent(),
			NumKmers:          count.Total,
			NumKmersFound:     count.Found,
		}
		if score && idx.scorer != nil {
			found := make([]bool, len(all))
			for i, kmer := range all {
				found[i] = presence[kmer.Text].Test(uint(colour))
			}
			hit.Score = idx.scorer.Score(Query{Length: len(seq), K: int(idx.cfg.K), Kmers: all}, found)
		}
		results[sample] = hit
	}
	return results, nil
}

// validateQuery counts distinct k-mers until it passes the minimum, short of it the query
// is rejected under the strict policy and warned about otherwise
func (idx *Index) validateQuery(it *kmers.Iterator) error {
	minimum := idx.cfg.MinUniqueKmers
	seen := make(map[string]struct{})
	for kmer, ok := it.Next(); ok; kmer, ok = it.Next() {
		seen[kmer.Text] = struct{}{}
		if len(seen) > minimum {
			return nil
		}
	}
	if idx.cfg.Strict() {
		return errors.Wrapf(ErrTooFewKmers, "needs more than %d unique k-mers, got %d", minimum, len(seen))
	}
	log.Warningf("query should contain more than %d unique k-mers but contains %d, the false discovery rate may be high", minimum, len(seen))
	return nil
}
