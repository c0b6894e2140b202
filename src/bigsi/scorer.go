package bigsi

import (
	"github.com/will-rowe/bigsi/src/kmers"
)

// Query describes a search sequence for scoring
type Query struct {
	Length int
	K      int
	Kmers  []kmers.Kmer
}

// Score is the secondary score of one hit
type Score struct {
	Coverage   float64 `json:"coverage"`
	LongestRun int     `json:"longest_run"`
}

// Scorer scores a hit after the reduction, found[i] reports whether query.Kmers[i] was found.
// It never changes which samples are reported.
type Scorer interface {
	Score(query Query, found []bool) *Score
}

// CoverageScorer reports the fraction of query bases covered by found k-mers and the
// longest run of consecutive found k-mers
type CoverageScorer struct {
	K int
}

// Score implements Scorer
func (cs *CoverageScorer) Score(query Query, found []bool) *Score {
	score := &Score{}
	if query.Length == 0 {
		return score
	}
	k := query.K
	if k == 0 {
		k = cs.K
	}
	covered, coveredTo := 0, 0
	run := 0
	for i, kmer := range query.Kmers {
		if !found[i] {
			run = 0
			continue
		}
		run++
		if run > score.LongestRun {
			score.LongestRun = run
		}
		start, end := kmer.Pos, kmer.Pos+k
		if start < coveredTo {
			start = coveredTo
		}
		if end > start {
			covered += end - start
			coveredTo = end
		}
	}
	score.Coverage = float64(covered) / float64(query.Length)
	return score
}
